package extract

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replypilot/enrich-cli/internal/fetch"
	"github.com/replypilot/enrich-cli/internal/model"
)

type fakeJudge struct {
	reply string
	err   error
	got   JudgeRequest
	ctx   context.Context
}

func (f *fakeJudge) Name() string { return "fake" }

func (f *fakeJudge) Judge(ctx context.Context, req JudgeRequest) (string, error) {
	f.got = req
	f.ctx = ctx
	return f.reply, f.err
}

var acme = &model.Lead{Name: "Acme Plumbing", Location: "Halifax, NS"}

func TestIdentityExtractor_Completed(t *testing.T) {
	j := &fakeJudge{reply: "```json\n" + `{"completed":true,"reason":"Homepage of the business","type":"Plumber","description":"Residential plumbing.","keywords":["plumbing"," drains ","Plumbing"]}` + "\n```"}
	x := NewIdentityExtractor(j, 6000, time.Minute)

	res, err := x.Extract(context.Background(), &fetch.Page{URL: "https://acme.test", Title: "Acme", Text: "We fix pipes."}, acme)
	require.NoError(t, err)
	require.NotNil(t, res.Identity)
	assert.Equal(t, model.IdentityFacts{
		Completed:   true,
		Reason:      "Homepage of the business",
		Type:        "Plumber",
		Description: "Residential plumbing.",
		Keywords:    []string{"plumbing", "drains"},
	}, *res.Identity)

	assert.Contains(t, j.got.Prompt, "Business name: Acme Plumbing")
	assert.Contains(t, j.got.Prompt, "Business location: Halifax, NS")
	assert.Contains(t, j.got.Prompt, "We fix pipes.")
	assert.NotEmpty(t, j.got.System)
	_, hasDeadline := j.ctx.Deadline()
	assert.True(t, hasDeadline)
}

func TestIdentityExtractor_NotCompletedKeepsPartialFields(t *testing.T) {
	j := &fakeJudge{reply: `{"completed":false,"reason":"Directory listing","type":"Plumber","description":"","keywords":[]}`}
	res, err := NewIdentityExtractor(j, 0, 0).Extract(context.Background(), &fetch.Page{Text: "x"}, acme)
	require.NoError(t, err)
	assert.False(t, res.Identity.Completed)
	assert.Equal(t, "Plumber", res.Identity.Type)
	assert.Equal(t, "Directory listing", res.Identity.Reason)
}

func TestIdentityExtractor_TruncatesText(t *testing.T) {
	j := &fakeJudge{reply: `{"completed":false,"reason":"r"}`}
	page := &fetch.Page{Text: strings.Repeat("a", 100) + "TAIL"}

	_, err := NewIdentityExtractor(j, 100, time.Second).Extract(context.Background(), page, acme)
	require.NoError(t, err)
	assert.NotContains(t, j.got.Prompt, "TAIL")
}

func TestIdentityExtractor_JudgeError(t *testing.T) {
	j := &fakeJudge{err: errors.New("overloaded")}
	_, err := NewIdentityExtractor(j, 0, 0).Extract(context.Background(), &fetch.Page{}, acme)
	require.Error(t, err)
	var pe *ParseError
	assert.False(t, errors.As(err, &pe))
	assert.Contains(t, err.Error(), "overloaded")
}

func TestIdentityExtractor_ParseError(t *testing.T) {
	j := &fakeJudge{reply: "Sure! The business is a plumber."}
	_, err := NewIdentityExtractor(j, 0, 0).Extract(context.Background(), &fetch.Page{}, acme)

	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "Sure! The business is a plumber.", pe.Raw)
}

func TestIdentityExtractor_RequiresInputs(t *testing.T) {
	_, err := NewIdentityExtractor(&fakeJudge{}, 0, 0).Extract(context.Background(), nil, acme)
	assert.Error(t, err)
}

func TestParseIdentity_Rejects(t *testing.T) {
	tests := map[string]string{
		"missing completed": `{"reason":"r"}`,
		"missing reason":    `{"completed":true}`,
		"wrong type":        `{"completed":"yes","reason":"r"}`,
		"unknown field":     `{"completed":true,"reason":"r","confidence":0.9}`,
		"trailing object":   `{"completed":true,"reason":"r"} {"completed":false,"reason":"r"}`,
		"truncated":         `{"completed":true,"reason":"r"`,
		"empty":             ``,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseIdentity(raw)
			var pe *ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, raw, pe.Raw)
		})
	}
}

func TestParseIdentity_BareFence(t *testing.T) {
	got, err := ParseIdentity("```\n{\"completed\":false,\"reason\":\"thin page\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "thin page", got.Reason)
	assert.Empty(t, got.Keywords)
}

func TestParseError_TruncatesRaw(t *testing.T) {
	pe := &ParseError{Raw: strings.Repeat("x", 5000), Err: errors.New("bad")}
	assert.Less(t, len(pe.Error()), 2100)
}

func TestTruncate_RuneBoundary(t *testing.T) {
	assert.Equal(t, "caf", Truncate("café", 4))
	assert.Equal(t, "café", Truncate("café", 5))
	assert.Equal(t, "abc", Truncate("abc", 0))
}
