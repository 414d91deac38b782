package enrich

import (
	"context"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/replypilot/enrich-cli/internal/extract"
	"github.com/replypilot/enrich-cli/internal/model"
	"github.com/replypilot/enrich-cli/internal/search"
)

// DefaultSimilarityThreshold is the name/host score a search result must
// exceed to be taken for the business's own website.
const DefaultSimilarityThreshold = 0.6

// Candidate is the next source to try. The zero value means exhausted.
type Candidate struct {
	URL  string
	Type model.SourceType
}

// Exhausted reports whether the selector found nothing to try.
func (c Candidate) Exhausted() bool { return c.URL == "" }

// Satisfied reports whether every fact tracked for goal is already known.
func Satisfied(lead *model.Lead, goal model.Goal) bool {
	switch goal {
	case model.GoalContact:
		return lead.Contact().Complete()
	case model.GoalIdentity:
		return lead.IdentityComplete
	case model.GoalSocial:
		return lead.SocialsComplete()
	}
	return false
}

// SearchQuery is the web search issued when no known source is left.
func SearchQuery(lead *model.Lead, goal model.Goal) string {
	q := strings.TrimSpace(lead.Name + " " + lead.Location)
	if goal == model.GoalContact {
		q += " contact"
	}
	return q
}

// FromKnown picks from structured data: the lead's website first, then
// sources recorded under any goal in insertion order. Anything already used
// for goal is skipped.
func FromKnown(lead *model.Lead, goal model.Goal, srcs []model.LeadSource) (Candidate, bool) {
	used := UsedURLs(srcs, goal)

	if w := strings.TrimSpace(lead.Website); w != "" && !used[w] {
		return Candidate{URL: w, Type: model.SourceWebsite}, true
	}

	for _, s := range srcs {
		if used[s.URL] {
			continue
		}
		switch s.Type {
		case model.SourceWebsite, model.SourceSearchWebsite, model.SourceSocial:
			return Candidate{URL: s.URL, Type: s.Type}, true
		}
	}
	return Candidate{}, false
}

// FromSearch scans ranked search results. A result whose host resembles the
// lead name above threshold is taken as its website; failing that, a social
// profile is taken only when the lead does not know that profile yet. Used,
// non-HTTPS and blocked links are skipped. The zero Candidate is returned
// when nothing is accepted.
func FromSearch(lead *model.Lead, used map[string]bool, results []string, blocked []string, threshold float64) Candidate {
	for _, r := range results {
		if used[r] {
			continue
		}
		u, err := url.Parse(r)
		if err != nil || u.Scheme != "https" || u.Hostname() == "" {
			continue
		}
		if search.IsBlockedHost(u.Hostname(), blocked) {
			continue
		}

		if NameHostSimilarity(lead.Name, r) > threshold {
			return Candidate{URL: r, Type: model.SourceSearchWebsite}
		}
		if field := extract.SocialField(r); field != "" && lead.Field(field) == "" {
			return Candidate{URL: r, Type: model.SourceSocial}
		}
	}
	return Candidate{}
}

// Selector decides the single next source for a goal.
type Selector struct {
	searcher  search.Searcher
	threshold float64
	blocked   []string
}

// NewSelector creates a Selector. threshold <= 0 selects the default.
func NewSelector(searcher search.Searcher, threshold float64, blocked []string) *Selector {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	return &Selector{searcher: searcher, threshold: threshold, blocked: blocked}
}

// Next returns the next candidate for (lead, goal) given the lead's recorded
// sources. Tiers are tried in order: nothing left to learn, known website,
// recorded sources, web search. A search with no results is
// ErrNoSearchResults; a search whose results are all rejected is an
// exhausted Candidate.
func (s *Selector) Next(ctx context.Context, lead *model.Lead, goal model.Goal, srcs []model.LeadSource) (Candidate, error) {
	if Satisfied(lead, goal) {
		return Candidate{}, nil
	}
	if c, ok := FromKnown(lead, goal, srcs); ok {
		return c, nil
	}
	if s.searcher == nil {
		return Candidate{}, nil
	}

	query := SearchQuery(lead, goal)
	results, err := s.searcher.Search(ctx, query)
	if err != nil {
		return Candidate{}, eris.Wrapf(err, "selector: search %q", query)
	}
	if len(results) == 0 {
		return Candidate{}, eris.Wrapf(ErrNoSearchResults, "selector: %q", query)
	}
	return FromSearch(lead, UsedURLs(srcs, goal), results, s.blocked, s.threshold), nil
}
