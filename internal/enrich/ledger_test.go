package enrich

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replypilot/enrich-cli/internal/model"
	"github.com/replypilot/enrich-cli/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "enrich.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newLead(t *testing.T, st store.Store, l model.Lead) *model.Lead {
	t.Helper()
	if l.UserID == "" {
		l.UserID = "u1"
	}
	if l.Name == "" {
		l.Name = "Acme Plumbing"
	}
	if l.Location == "" {
		l.Location = "Toronto, ON"
	}
	require.NoError(t, st.CreateLead(context.Background(), &l))
	return &l
}

func TestLedger_RecordAndIsUsed(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	lead := newLead(t, st, model.Lead{})
	ledger := NewLedger(st)

	used, err := ledger.IsUsed(ctx, lead.ID, model.GoalContact, "https://acme.ca")
	require.NoError(t, err)
	assert.False(t, used)

	src, err := ledger.Record(ctx, lead.ID, model.GoalContact, "https://acme.ca", model.SourceWebsite)
	require.NoError(t, err)
	assert.NotEmpty(t, src.ID)

	used, err = ledger.IsUsed(ctx, lead.ID, model.GoalContact, "https://acme.ca")
	require.NoError(t, err)
	assert.True(t, used)

	used, err = ledger.IsUsed(ctx, lead.ID, model.GoalIdentity, "https://acme.ca")
	require.NoError(t, err)
	assert.False(t, used, "usage is per goal")
}

func TestLedger_RecordDuplicate(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	lead := newLead(t, st, model.Lead{})
	ledger := NewLedger(st)

	_, err := ledger.Record(ctx, lead.ID, model.GoalContact, "https://acme.ca", model.SourceWebsite)
	require.NoError(t, err)
	_, err = ledger.Record(ctx, lead.ID, model.GoalContact, "https://acme.ca", model.SourceWebsite)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrDuplicateSource))

	srcs, err := ledger.Sources(ctx, lead.ID)
	require.NoError(t, err)
	assert.Len(t, srcs, 1)
}

func TestUsedURLs(t *testing.T) {
	srcs := []model.LeadSource{
		{Goal: model.GoalContact, URL: "a"},
		{Goal: model.GoalIdentity, URL: "b"},
	}
	assert.Equal(t, map[string]bool{"a": true}, UsedURLs(srcs, model.GoalContact))
	assert.Empty(t, UsedURLs(nil, model.GoalContact))
}

func TestStepLog_AttemptsAndFinish(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	lead := newLead(t, st, model.Lead{})
	steps := NewStepLog(st)

	first, err := steps.Start(ctx, "u1", lead.ID, model.GoalContact, model.StepGetLead)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Attempt)
	assert.Equal(t, model.LogStarted, first.Status)
	require.NoError(t, steps.Finish(ctx, first.ID, model.LogSuccess, "ok"))

	second, err := steps.Start(ctx, "u1", lead.ID, model.GoalContact, model.StepGetLead)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Attempt)

	other, err := steps.Start(ctx, "u1", lead.ID, model.GoalIdentity, model.StepGetLead)
	require.NoError(t, err)
	assert.Equal(t, 1, other.Attempt, "attempts count per goal")

	latest, err := steps.Latest(ctx, "u1", lead.ID, model.GoalContact)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.ID, latest.ID)
	assert.Equal(t, model.LogStarted, latest.Status)

	history, err := steps.History(ctx, "u1", lead.ID, model.GoalContact)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.LogSuccess, history[0].Status)
	assert.Equal(t, "ok", history[0].Message)
}

func TestStepLog_FinishRejectsStarted(t *testing.T) {
	steps := NewStepLog(newTestStore(t))
	err := steps.Finish(context.Background(), "id", model.LogStarted, "")
	assert.Error(t, err)
}

func TestStepLog_TerminalIsFinal(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	lead := newLead(t, st, model.Lead{})
	steps := NewStepLog(st)

	e, err := steps.Start(ctx, "u1", lead.ID, model.GoalContact, model.StepPersist)
	require.NoError(t, err)
	require.NoError(t, steps.Finish(ctx, e.ID, model.LogError, "failed"))
	require.NoError(t, steps.Finish(ctx, e.ID, model.LogSuccess, "late"))

	latest, err := steps.Latest(ctx, "u1", lead.ID, model.GoalContact)
	require.NoError(t, err)
	assert.Equal(t, model.LogError, latest.Status)
	assert.Equal(t, "failed", latest.Message)
}

func TestStepLog_LatestNone(t *testing.T) {
	steps := NewStepLog(newTestStore(t))
	e, err := steps.Latest(context.Background(), "u1", "missing", model.GoalContact)
	require.NoError(t, err)
	assert.Nil(t, e)
}
