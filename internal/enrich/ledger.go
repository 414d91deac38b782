package enrich

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/replypilot/enrich-cli/internal/model"
	"github.com/replypilot/enrich-cli/internal/store"
)

// Ledger is the durable record of which sources each goal has consumed.
// Rows are only ever inserted.
type Ledger struct {
	store store.Store
}

// NewLedger creates a Ledger over st.
func NewLedger(st store.Store) *Ledger {
	return &Ledger{store: st}
}

// Sources returns every source recorded for the lead, any goal, oldest first.
func (l *Ledger) Sources(ctx context.Context, leadID string) ([]model.LeadSource, error) {
	srcs, err := l.store.ListSources(ctx, leadID)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: list sources")
	}
	return srcs, nil
}

// IsUsed reports whether url has already been recorded for (leadID, goal).
func (l *Ledger) IsUsed(ctx context.Context, leadID string, goal model.Goal, url string) (bool, error) {
	srcs, err := l.Sources(ctx, leadID)
	if err != nil {
		return false, err
	}
	return UsedURLs(srcs, goal)[url], nil
}

// Record claims url for (leadID, goal). When a concurrent enrichment got
// there first the error satisfies errors.Is(err, store.ErrDuplicateSource).
func (l *Ledger) Record(ctx context.Context, leadID string, goal model.Goal, url string, typ model.SourceType) (*model.LeadSource, error) {
	src := &model.LeadSource{LeadID: leadID, Goal: goal, URL: url, Type: typ}
	if err := l.store.CreateSource(ctx, src); err != nil {
		if errors.Is(err, store.ErrDuplicateSource) {
			return nil, eris.Wrapf(err, "ledger: %s already claimed for %s", url, goal)
		}
		return nil, eris.Wrap(err, "ledger: record source")
	}
	return src, nil
}

// UsedURLs returns the set of URLs recorded for goal.
func UsedURLs(srcs []model.LeadSource, goal model.Goal) map[string]bool {
	used := make(map[string]bool, len(srcs))
	for _, s := range srcs {
		if s.Goal == goal {
			used[s.URL] = true
		}
	}
	return used
}
