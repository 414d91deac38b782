package enrich

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/replypilot/enrich-cli/internal/model"
	"github.com/replypilot/enrich-cli/internal/store"
)

// StepLog records one entry per step attempt. It never retries or rolls
// back; callers bracket each step with Start and Finish.
type StepLog struct {
	store store.Store
}

// NewStepLog creates a StepLog over st.
func NewStepLog(st store.Store) *StepLog {
	return &StepLog{store: st}
}

// Start inserts a STARTED entry whose attempt is one more than the number of
// earlier entries for (lead, goal, step), and returns it with its id set.
func (l *StepLog) Start(ctx context.Context, userID, leadID string, goal model.Goal, step model.Step) (*model.LogEntry, error) {
	e := &model.LogEntry{UserID: userID, LeadID: leadID, Goal: goal, Step: step}
	if err := l.store.StartLog(ctx, e); err != nil {
		return nil, eris.Wrapf(err, "steplog: start %s", step)
	}
	return e, nil
}

// Finish moves an entry to SUCCESS or ERROR. Entries that are already
// terminal are left alone.
func (l *StepLog) Finish(ctx context.Context, logID string, status model.LogStatus, message string) error {
	if !status.Terminal() {
		return eris.Errorf("steplog: %s is not a terminal status", status)
	}
	if err := l.store.FinishLog(ctx, logID, status, message); err != nil {
		return eris.Wrap(err, "steplog: finish")
	}
	return nil
}

// Latest returns the most recent entry for (lead, goal), or nil.
func (l *StepLog) Latest(ctx context.Context, userID, leadID string, goal model.Goal) (*model.LogEntry, error) {
	e, err := l.store.LatestLog(ctx, userID, leadID, goal)
	if err != nil {
		return nil, eris.Wrap(err, "steplog: latest")
	}
	return e, nil
}

// History returns every entry for (lead, goal), oldest first.
func (l *StepLog) History(ctx context.Context, userID, leadID string, goal model.Goal) ([]model.LogEntry, error) {
	es, err := l.store.ListLogs(ctx, userID, leadID, goal)
	if err != nil {
		return nil, eris.Wrap(err, "steplog: history")
	}
	return es, nil
}
