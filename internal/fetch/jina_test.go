package fetch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replypilot/enrich-cli/pkg/jina"
)

type fakeJina struct {
	resp *jina.ReadResponse
	err  error
}

func (f *fakeJina) Read(_ context.Context, _ string, _ ...jina.ReadOption) (*jina.ReadResponse, error) {
	return f.resp, f.err
}

func (f *fakeJina) Search(_ context.Context, _ string, _ ...jina.SearchOption) (*jina.SearchResponse, error) {
	return nil, errors.New("not used")
}

func TestJinaFetcher_Page(t *testing.T) {
	content := "# Acme Plumbing\n\n" + strings.Repeat("We fix pipes. ", 20) +
		"\n[Email](mailto:info@acme.test) [Facebook](https://facebook.com/acme \"fb\")"
	fj := &fakeJina{resp: &jina.ReadResponse{Code: 200, Data: jina.ReadData{
		Title:   "Acme",
		Content: content,
		Links: map[string]string{
			"Facebook":  "https://facebook.com/acme",
			"Instagram": "https://instagram.com/acme",
		},
	}}}

	page, err := NewJinaFetcher(fj, 10*time.Second).Fetch(context.Background(), "https://acme.test")
	require.NoError(t, err)
	assert.Equal(t, "jina", page.Source)
	assert.Equal(t, "Acme", page.Title)
	assert.Equal(t, []string{
		"mailto:info@acme.test",
		"https://facebook.com/acme",
		"https://instagram.com/acme",
	}, page.Links)
}

func TestJinaFetcher_StatusError(t *testing.T) {
	fj := &fakeJina{err: &jina.StatusError{StatusCode: 451, Body: "unavailable"}}

	_, err := NewJinaFetcher(fj, time.Second).Fetch(context.Background(), "https://acme.test")
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindStatus, fe.Kind)
	assert.Equal(t, 451, fe.StatusCode)
}

func TestJinaFetcher_ChallengePage(t *testing.T) {
	fj := &fakeJina{resp: &jina.ReadResponse{Code: 200, Data: jina.ReadData{Content: "Just a moment..."}}}

	_, err := NewJinaFetcher(fj, time.Second).Fetch(context.Background(), "https://acme.test")
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindBlocked, fe.Kind)
}

func TestJinaFetcher_CircuitOpensAfterThreeFailures(t *testing.T) {
	fj := &fakeJina{err: errors.New("connection refused")}
	f := NewJinaFetcher(fj, time.Second)

	for i := 0; i < 3; i++ {
		_, err := f.Fetch(context.Background(), "https://acme.test")
		require.Error(t, err)
	}
	assert.True(t, f.breaker.isOpen())

	fj.err = nil
	fj.resp = &jina.ReadResponse{Code: 200, Data: jina.ReadData{Content: strings.Repeat("ok ", 50)}}
	_, err := f.Fetch(context.Background(), "https://acme.test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker open")
}

func TestCircuitBreaker_WindowResets(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := newCircuitBreaker(2, time.Second, time.Minute)
	cb.now = func() time.Time { return now }

	cb.recordFailure()
	now = now.Add(2 * time.Second)
	cb.recordFailure()
	assert.False(t, cb.isOpen(), "failures outside the window do not accumulate")

	cb.recordFailure()
	assert.True(t, cb.isOpen())

	now = now.Add(2 * time.Minute)
	assert.False(t, cb.isOpen())
}
