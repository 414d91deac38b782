// Package enrich runs lead enrichment: pick an unused source, claim it in the
// ledger, fetch it, extract facts, and merge them into the lead, logging every
// step so progress can be polled.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/replypilot/enrich-cli/internal/extract"
	"github.com/replypilot/enrich-cli/internal/fetch"
	"github.com/replypilot/enrich-cli/internal/model"
	"github.com/replypilot/enrich-cli/internal/store"
)

// Orchestrator runs one enrichment attempt per call. It never retries: the
// caller invokes it again, and the ledger moves it on to the next source.
type Orchestrator struct {
	store      store.Store
	ledger     *Ledger
	selector   *Selector
	fetcher    fetch.Fetcher
	steps      *StepLog
	extractors map[model.Goal]extract.Extractor
}

// NewOrchestrator wires an Orchestrator. Each extractor serves the goal it
// reports.
func NewOrchestrator(st store.Store, sel *Selector, f fetch.Fetcher, extractors ...extract.Extractor) *Orchestrator {
	o := &Orchestrator{
		store:      st,
		ledger:     NewLedger(st),
		selector:   sel,
		fetcher:    f,
		steps:      NewStepLog(st),
		extractors: make(map[model.Goal]extract.Extractor, len(extractors)),
	}
	for _, x := range extractors {
		o.extractors[x.Goal()] = x
	}
	return o
}

// EnrichContact looks for the lead's phone, email and social profiles.
func (o *Orchestrator) EnrichContact(ctx context.Context, userID, leadID string) (*model.Outcome, error) {
	return o.Enrich(ctx, model.GoalContact, userID, leadID)
}

// EnrichIdentity asks the judge what the business is and whether the source
// describes it well enough.
func (o *Orchestrator) EnrichIdentity(ctx context.Context, userID, leadID string) (*model.Outcome, error) {
	return o.Enrich(ctx, model.GoalIdentity, userID, leadID)
}

// LatestLog returns the newest log entry for (lead, goal), or nil.
func (o *Orchestrator) LatestLog(ctx context.Context, userID, leadID string, goal model.Goal) (*model.LogEntry, error) {
	return o.steps.Latest(ctx, userID, leadID, goal)
}

// History returns every log entry for (lead, goal), oldest first.
func (o *Orchestrator) History(ctx context.Context, userID, leadID string, goal model.Goal) ([]model.LogEntry, error) {
	return o.steps.History(ctx, userID, leadID, goal)
}

// Enrich runs GET_LEAD, GET_SOURCE, SCRAPE_SOURCE, EVALUATE_GPT (identity
// only) and PERSIST. Every step failure becomes a negative Outcome with a nil
// error; only a missing or foreign lead returns ErrLeadNotFound.
func (o *Orchestrator) Enrich(ctx context.Context, goal model.Goal, userID, leadID string) (*model.Outcome, error) {
	ext, ok := o.extractors[goal]
	if !ok {
		return model.Failed(nil, fmt.Sprintf("%s enrichment is not available", goal)), eris.Wrapf(ErrUnsupportedGoal, "enrich: %s", goal)
	}

	r := &run{
		o:      o,
		ctx:    ctx,
		userID: userID,
		leadID: leadID,
		goal:   goal,
		log: zap.L().With(
			zap.String("lead_id", leadID),
			zap.String("user_id", userID),
			zap.String("goal", string(goal)),
		),
	}
	r.log.Info("enrich: starting")

	// GET_LEAD
	var lead *model.Lead
	err := r.step(model.StepGetLead, func() (string, error) {
		var err error
		lead, err = o.store.GetLead(ctx, userID, leadID)
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrLeadNotFound
		}
		if err != nil {
			return "", eris.Wrap(err, "load lead")
		}
		return "loaded " + lead.Name, nil
	})
	if errors.Is(err, ErrLeadNotFound) {
		return model.Failed(nil, "Lead not found"), ErrLeadNotFound
	}
	if err != nil {
		return model.Failed(nil, "Could not load the lead: "+err.Error()), nil
	}

	// GET_SOURCE
	var cand Candidate
	err = r.step(model.StepGetSource, func() (string, error) {
		srcs, err := o.ledger.Sources(ctx, leadID)
		if err != nil {
			return "", err
		}
		cand, err = o.selector.Next(ctx, lead, goal, srcs)
		if err != nil {
			return "", err
		}
		if cand.Exhausted() {
			return exhaustedReason(lead, goal), nil
		}
		if _, err := o.ledger.Record(ctx, leadID, goal, cand.URL, cand.Type); err != nil {
			if errors.Is(err, store.ErrDuplicateSource) {
				return "", eris.Wrapf(err, "%s was claimed by a concurrent enrichment", cand.URL)
			}
			return "", err
		}
		return fmt.Sprintf("selected %s %s", cand.Type, cand.URL), nil
	})
	if err != nil {
		return model.Failed(lead, sourceFailureReason(err)), nil
	}
	if cand.Exhausted() {
		return model.Failed(lead, exhaustedReason(lead, goal)), nil
	}

	// SCRAPE_SOURCE
	var page *fetch.Page
	var res *extract.Result
	err = r.step(model.StepScrapeSource, func() (string, error) {
		var err error
		page, err = o.fetcher.Fetch(ctx, cand.URL)
		if err != nil {
			return "", err
		}
		if goal == model.GoalIdentity {
			return fmt.Sprintf("fetched %d chars via %s", len(page.Text), page.Source), nil
		}
		res, err = ext.Extract(ctx, page, lead)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("fetched via %s, found %s", page.Source, describeContact(res.Contact)), nil
	})
	if err != nil {
		return model.Failed(lead, "Could not read "+cand.URL+": "+err.Error()), nil
	}

	// EVALUATE_GPT
	if goal == model.GoalIdentity {
		err = r.step(model.StepEvaluateGPT, func() (string, error) {
			var err error
			res, err = ext.Extract(ctx, page, lead)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("completed=%t: %s", res.Identity.Completed, res.Identity.Reason), nil
		})
		if err != nil {
			var pe *extract.ParseError
			if errors.As(err, &pe) {
				return model.Failed(lead, "The model's answer could not be understood"), nil
			}
			return model.Failed(lead, "Could not evaluate "+cand.URL+": "+err.Error()), nil
		}
	}

	// PERSIST
	var updated *model.Lead
	err = r.step(model.StepPersist, func() (string, error) {
		var err error
		switch goal {
		case model.GoalContact:
			updated, err = o.store.UpdateContact(ctx, userID, leadID, *res.Contact)
		case model.GoalIdentity:
			updated, err = o.store.UpdateIdentity(ctx, userID, leadID, *res.Identity, adoptedWebsite(lead, cand))
		}
		if err != nil {
			return "", err
		}
		if updated.Sources, err = o.ledger.Sources(ctx, leadID); err != nil {
			return "", err
		}
		return "lead updated", nil
	})
	if err != nil {
		r.log.Error("enrich: persist failed", zap.Error(err))
		return model.Failed(lead, "Could not save the results: "+err.Error()), nil
	}

	eval := model.Eval{}
	switch goal {
	case model.GoalContact:
		eval = contactEval(updated, res.Contact, cand.URL)
	case model.GoalIdentity:
		eval = model.Eval{Completed: res.Identity.Completed, Reason: res.Identity.Reason}
	}
	r.log.Info("enrich: finished", zap.Bool("completed", eval.Completed), zap.String("source", cand.URL))
	return &model.Outcome{Lead: updated, Updated: true, Eval: eval}, nil
}

// run carries the state of one invocation.
type run struct {
	o      *Orchestrator
	ctx    context.Context
	userID string
	leadID string
	goal   model.Goal
	log    *zap.Logger
}

// step brackets fn with STARTED and a terminal log entry. The log is
// written even when ctx has expired so polling always sees the outcome; a
// failure to write it is only logged.
func (r *run) step(step model.Step, fn func() (string, error)) error {
	logCtx := context.WithoutCancel(r.ctx)

	entry, err := r.o.steps.Start(logCtx, r.userID, r.leadID, r.goal, step)
	if err != nil {
		r.log.Warn("enrich: failed to start step log", zap.String("step", string(step)), zap.Error(err))
	}

	start := time.Now()
	msg, fnErr := fn()
	duration := time.Since(start).Milliseconds()

	status := model.LogSuccess
	if fnErr != nil {
		status = model.LogError
		msg = fnErr.Error()
		r.log.Warn("enrich: step failed",
			zap.String("step", string(step)),
			zap.Int64("duration_ms", duration),
			zap.Error(fnErr),
		)
	} else {
		r.log.Info("enrich: step complete",
			zap.String("step", string(step)),
			zap.Int64("duration_ms", duration),
			zap.String("message", msg),
		)
	}

	if entry != nil {
		if err := r.o.steps.Finish(logCtx, entry.ID, status, msg); err != nil {
			r.log.Warn("enrich: failed to finish step log", zap.String("step", string(step)), zap.Error(err))
		}
	}
	return fnErr
}

func exhaustedReason(lead *model.Lead, goal model.Goal) string {
	if Satisfied(lead, goal) {
		return fmt.Sprintf("All %s details are already known", strings.ToLower(string(goal)))
	}
	return fmt.Sprintf("No unused sources left for %s enrichment", strings.ToLower(string(goal)))
}

func sourceFailureReason(err error) string {
	switch {
	case errors.Is(err, ErrNoSearchResults):
		return "The web search returned no results for this business"
	case errors.Is(err, store.ErrDuplicateSource):
		return "Another enrichment claimed the next source; try again"
	}
	return "Could not choose a source: " + err.Error()
}

// adoptedWebsite returns the URL to store as the lead's website when it has
// none and the source was a website.
func adoptedWebsite(lead *model.Lead, c Candidate) string {
	if lead.Website != "" {
		return ""
	}
	if c.Type == model.SourceWebsite || c.Type == model.SourceSearchWebsite {
		return c.URL
	}
	return ""
}

func describeContact(c *model.ContactFacts) string {
	if c == nil {
		return "nothing"
	}
	var found []string
	for _, f := range []struct{ name, v string }{
		{"phone", c.Phone}, {"email", c.Email}, {"facebook", c.Facebook},
		{"instagram", c.Instagram}, {"tiktok", c.Tiktok},
	} {
		if f.v != "" {
			found = append(found, f.name)
		}
	}
	if len(found) == 0 {
		return "nothing new"
	}
	return strings.Join(found, ", ")
}

func contactEval(updated *model.Lead, found *model.ContactFacts, url string) model.Eval {
	if updated.ContactComplete {
		return model.Eval{Completed: true, Reason: "All contact details found"}
	}
	missing := strings.Join(updated.Contact().Missing(), ", ")
	if desc := describeContact(found); desc != "nothing new" && desc != "nothing" {
		return model.Eval{Reason: fmt.Sprintf("Found %s on %s; still missing %s", desc, url, missing)}
	}
	return model.Eval{Reason: fmt.Sprintf("No new contact details on %s; still missing %s", url, missing)}
}
