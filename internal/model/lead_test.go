package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseGoal(t *testing.T) {
	g, ok := ParseGoal("contact")
	assert.True(t, ok)
	assert.Equal(t, GoalContact, g)

	g, ok = ParseGoal(" Identity ")
	assert.True(t, ok)
	assert.Equal(t, GoalIdentity, g)

	_, ok = ParseGoal("billing")
	assert.False(t, ok)
}

func TestMergeContact_NeverClearsKnownFacts(t *testing.T) {
	existing := ContactFacts{Phone: "416-555-0100", Email: "old@acme.ca"}
	extracted := ContactFacts{Email: "info@acme.ca", Facebook: "https://facebook.com/acme"}

	got := MergeContact(existing, extracted)

	assert.Equal(t, "416-555-0100", got.Phone)
	assert.Equal(t, "info@acme.ca", got.Email)
	assert.Equal(t, "https://facebook.com/acme", got.Facebook)
	assert.Empty(t, got.Instagram)
	assert.Empty(t, got.Tiktok)
}

func TestMergeContact_EmptyExtraction(t *testing.T) {
	existing := ContactFacts{Phone: "1", Email: "a@b.c", Facebook: "f", Instagram: "i", Tiktok: "t"}
	assert.Equal(t, existing, MergeContact(existing, ContactFacts{}))
}

func TestContactFacts_Complete(t *testing.T) {
	full := ContactFacts{Phone: "1", Email: "a@b.c", Facebook: "f", Instagram: "i", Tiktok: "t"}
	assert.True(t, full.Complete())
	assert.Empty(t, full.Missing())

	partial := full
	partial.Tiktok = ""
	assert.False(t, partial.Complete())
	assert.Equal(t, []string{"tiktok"}, partial.Missing())
}

func TestNormalizeKeywords(t *testing.T) {
	got := NormalizeKeywords([]string{" plumbing ", "", "Plumbing", "drains", "drains "})
	assert.Equal(t, []string{"plumbing", "drains"}, got)
}

func TestSplitKeywords(t *testing.T) {
	assert.Equal(t, []string{"bakery", "cafe"}, SplitKeywords("bakery, cafe,,"))
}

func TestLogStatusTerminal(t *testing.T) {
	assert.False(t, LogStarted.Terminal())
	assert.True(t, LogSuccess.Terminal())
	assert.True(t, LogError.Terminal())
}

func TestFailedOutcome(t *testing.T) {
	l := &Lead{ID: "l1"}
	out := Failed(l, "no source")
	assert.False(t, out.Updated)
	assert.False(t, out.Eval.Completed)
	assert.Equal(t, "no source", out.Eval.Reason)
	assert.Same(t, l, out.Lead)
}
