package enrich

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replypilot/enrich-cli/internal/model"
)

var blocked = []string{"google.com"}

func TestSatisfied(t *testing.T) {
	l := &model.Lead{Phone: "1", Email: "a@b.c", Facebook: "f", Instagram: "i", Tiktok: "t"}
	assert.True(t, Satisfied(l, model.GoalContact))
	assert.False(t, Satisfied(l, model.GoalIdentity))

	l.IdentityComplete = true
	assert.True(t, Satisfied(l, model.GoalIdentity))

	l.Tiktok = ""
	assert.False(t, Satisfied(l, model.GoalContact))
}

func TestSearchQuery(t *testing.T) {
	l := &model.Lead{Name: "Acme Plumbing", Location: "Toronto, ON"}
	assert.Equal(t, "Acme Plumbing Toronto, ON contact", SearchQuery(l, model.GoalContact))
	assert.Equal(t, "Acme Plumbing Toronto, ON", SearchQuery(l, model.GoalIdentity))
}

func TestFromKnown_WebsiteFirst(t *testing.T) {
	l := &model.Lead{Website: "https://acme.ca"}
	srcs := []model.LeadSource{
		{Goal: model.GoalIdentity, URL: "https://facebook.com/acme", Type: model.SourceSocial},
	}
	c, ok := FromKnown(l, model.GoalContact, srcs)
	require.True(t, ok)
	assert.Equal(t, Candidate{URL: "https://acme.ca", Type: model.SourceWebsite}, c)
}

func TestFromKnown_SourcesFromOtherGoals(t *testing.T) {
	l := &model.Lead{Website: "https://acme.ca"}
	srcs := []model.LeadSource{
		{Goal: model.GoalContact, URL: "https://acme.ca", Type: model.SourceWebsite},
		{Goal: model.GoalIdentity, URL: "https://facebook.com/acme", Type: model.SourceSocial},
	}
	c, ok := FromKnown(l, model.GoalContact, srcs)
	require.True(t, ok)
	assert.Equal(t, "https://facebook.com/acme", c.URL)
	assert.Equal(t, model.SourceSocial, c.Type)
}

func TestFromKnown_AllUsed(t *testing.T) {
	l := &model.Lead{Website: "https://acme.ca"}
	srcs := []model.LeadSource{
		{Goal: model.GoalContact, URL: "https://acme.ca", Type: model.SourceWebsite},
	}
	_, ok := FromKnown(l, model.GoalContact, srcs)
	assert.False(t, ok)

	// The same URL is still fresh for another goal.
	c, ok := FromKnown(l, model.GoalIdentity, srcs)
	require.True(t, ok)
	assert.Equal(t, "https://acme.ca", c.URL)
}

func TestFromSearch(t *testing.T) {
	lead := &model.Lead{Name: "Acme Plumbing", Instagram: "https://instagram.com/acme"}

	tests := []struct {
		name    string
		used    map[string]bool
		results []string
		want    Candidate
	}{
		{
			name:    "similar host",
			results: []string{"https://yelp.com/acme", "https://acmeplumbing.ca"},
			want:    Candidate{URL: "https://acmeplumbing.ca", Type: model.SourceSearchWebsite},
		},
		{
			name:    "unknown social",
			results: []string{"https://yelp.com/acme", "https://www.facebook.com/acmeplumbing"},
			want:    Candidate{URL: "https://www.facebook.com/acmeplumbing", Type: model.SourceSocial},
		},
		{
			name:    "known social skipped",
			results: []string{"https://instagram.com/acme2"},
		},
		{
			name:    "used skipped",
			used:    map[string]bool{"https://acmeplumbing.ca": true},
			results: []string{"https://acmeplumbing.ca"},
		},
		{
			name:    "plain http rejected",
			results: []string{"http://acmeplumbing.ca"},
		},
		{
			name:    "blocked host rejected",
			results: []string{"https://maps.google.com/acmeplumbing"},
		},
		{
			name:    "facebook lookalike host is not social",
			results: []string{"https://notfacebook.com/acme"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromSearch(lead, tt.used, tt.results, blocked, DefaultSimilarityThreshold)
			assert.Equal(t, tt.want, got)
		})
	}
}

type stubSearcher struct {
	results []string
	err     error
	queries []string
}

func (s *stubSearcher) Search(_ context.Context, q string) ([]string, error) {
	s.queries = append(s.queries, q)
	return s.results, s.err
}

func TestSelectorNext_SatisfiedSkipsEverything(t *testing.T) {
	srch := &stubSearcher{}
	sel := NewSelector(srch, 0, blocked)
	l := &model.Lead{Website: "https://acme.ca", IdentityComplete: true}

	c, err := sel.Next(context.Background(), l, model.GoalIdentity, nil)
	require.NoError(t, err)
	assert.True(t, c.Exhausted())
	assert.Empty(t, srch.queries)
}

func TestSelectorNext_FallsBackToSearch(t *testing.T) {
	srch := &stubSearcher{results: []string{"https://acmeplumbing.ca"}}
	sel := NewSelector(srch, 0, blocked)
	l := &model.Lead{Name: "Acme Plumbing", Location: "Toronto, ON"}

	c, err := sel.Next(context.Background(), l, model.GoalContact, nil)
	require.NoError(t, err)
	assert.Equal(t, model.SourceSearchWebsite, c.Type)
	assert.Equal(t, []string{"Acme Plumbing Toronto, ON contact"}, srch.queries)
}

func TestSelectorNext_NoResults(t *testing.T) {
	sel := NewSelector(&stubSearcher{}, 0, blocked)
	l := &model.Lead{Name: "Acme Plumbing"}

	_, err := sel.Next(context.Background(), l, model.GoalContact, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoSearchResults))
}

func TestSelectorNext_AllRejectedIsExhausted(t *testing.T) {
	sel := NewSelector(&stubSearcher{results: []string{"https://totallyunrelated.com"}}, 0, blocked)
	l := &model.Lead{Name: "Acme Plumbing"}

	c, err := sel.Next(context.Background(), l, model.GoalContact, nil)
	require.NoError(t, err)
	assert.True(t, c.Exhausted())
}

func TestSelectorNext_SearchError(t *testing.T) {
	boom := errors.New("boom")
	sel := NewSelector(&stubSearcher{err: boom}, 0, blocked)

	_, err := sel.Next(context.Background(), &model.Lead{Name: "Acme"}, model.GoalContact, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.False(t, errors.Is(err, ErrNoSearchResults))
}

func TestSelectorNext_NilSearcher(t *testing.T) {
	sel := NewSelector(nil, 0, blocked)
	c, err := sel.Next(context.Background(), &model.Lead{Name: "Acme"}, model.GoalContact, nil)
	require.NoError(t, err)
	assert.True(t, c.Exhausted())
}
