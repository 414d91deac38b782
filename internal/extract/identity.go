package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"

	"github.com/replypilot/enrich-cli/internal/fetch"
	"github.com/replypilot/enrich-cli/internal/model"
)

// identitySystemPrompt is constant across leads so providers can cache it.
const identitySystemPrompt = `You verify local businesses for a sales prospecting tool.
You receive the visible text of one web page and the name and location of a business.
Decide whether the page clearly describes THIS business (not a directory listing, not a
different business with a similar name) and whether it says enough to write a short
description of what the business does.

Respond with a single JSON object and nothing else:
{
  "completed": boolean,     // true only if the page clearly describes this business
  "reason": string,         // one sentence explaining the verdict
  "type": string,           // short business category, e.g. "Plumber", "Coffee shop"
  "description": string,    // two or three sentences about what the business offers
  "keywords": [string]      // up to 8 short service or product keywords
}
When completed is false, still fill type, description and keywords with whatever the
page supports, or leave them empty.`

// MaxRawInLog bounds how much unparseable model output is kept in a log message.
const MaxRawInLog = 2000

// ParseError is returned when the judge's output does not match the identity
// schema. Raw holds the output as received.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("extract: unparseable judgment: %v: %s", e.Err, Truncate(e.Raw, MaxRawInLog))
}

func (e *ParseError) Unwrap() error { return e.Err }

// IdentityExtractor asks a Judge whether a page describes the lead.
type IdentityExtractor struct {
	judge    Judge
	maxChars int
	timeout  time.Duration
}

// NewIdentityExtractor creates an IdentityExtractor. Page text beyond
// maxChars is dropped; each judgment is bounded by timeout.
func NewIdentityExtractor(judge Judge, maxChars int, timeout time.Duration) *IdentityExtractor {
	if maxChars <= 0 {
		maxChars = 6000
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &IdentityExtractor{judge: judge, maxChars: maxChars, timeout: timeout}
}

func (*IdentityExtractor) Goal() model.Goal { return model.GoalIdentity }

// Extract judges page against lead. A judge failure is returned as is; output
// that does not match the schema is a *ParseError.
func (x *IdentityExtractor) Extract(ctx context.Context, page *fetch.Page, lead *model.Lead) (*Result, error) {
	if page == nil || lead == nil {
		return nil, eris.New("extract: identity needs a page and a lead")
	}

	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	raw, err := x.judge.Judge(ctx, JudgeRequest{
		System: identitySystemPrompt,
		Prompt: BuildIdentityPrompt(lead, page, x.maxChars),
	})
	if err != nil {
		return nil, eris.Wrap(err, "extract: identity judgment")
	}

	facts, err := ParseIdentity(raw)
	if err != nil {
		return nil, err
	}
	return &Result{Identity: facts}, nil
}

// BuildIdentityPrompt renders the per-lead part of the judgment prompt.
func BuildIdentityPrompt(lead *model.Lead, page *fetch.Page, maxChars int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Business name: %s\n", lead.Name)
	fmt.Fprintf(&b, "Business location: %s\n", lead.Location)
	fmt.Fprintf(&b, "Page URL: %s\n", page.URL)
	if page.Title != "" {
		fmt.Fprintf(&b, "Page title: %s\n", page.Title)
	}
	b.WriteString("\nPage text:\n")
	b.WriteString(Truncate(page.Text, maxChars))
	return b.String()
}

type identityWire struct {
	Completed   *bool    `json:"completed"`
	Reason      *string  `json:"reason"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
}

// ParseIdentity decodes a judgment. Markdown code fences around the object
// are tolerated; unknown fields, trailing data, and a missing completed or
// reason are not.
func ParseIdentity(raw string) (*model.IdentityFacts, error) {
	cleaned := stripFences(raw)

	dec := json.NewDecoder(bytes.NewReader([]byte(cleaned)))
	dec.DisallowUnknownFields()

	var w identityWire
	if err := dec.Decode(&w); err != nil {
		return nil, &ParseError{Raw: raw, Err: err}
	}
	if dec.More() {
		return nil, &ParseError{Raw: raw, Err: eris.New("trailing data after object")}
	}
	if w.Completed == nil {
		return nil, &ParseError{Raw: raw, Err: eris.New(`missing "completed"`)}
	}
	if w.Reason == nil {
		return nil, &ParseError{Raw: raw, Err: eris.New(`missing "reason"`)}
	}

	return &model.IdentityFacts{
		Completed:   *w.Completed,
		Reason:      strings.TrimSpace(*w.Reason),
		Type:        strings.TrimSpace(w.Type),
		Description: strings.TrimSpace(w.Description),
		Keywords:    model.NormalizeKeywords(w.Keywords),
	}, nil
}

// stripFences removes a surrounding ``` or ```json fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// drop the language tag line
		if tag := strings.TrimSpace(s[:nl]); !strings.HasPrefix(tag, "{") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// Truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
