package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/replypilot/enrich-cli/internal/enrich"
	"github.com/replypilot/enrich-cli/internal/model"
)

const defaultWatchInterval = 1500 * time.Millisecond

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Run enrichments and inspect their progress",
}

func newEnrichGoalCmd(goal model.Goal, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   goalName(goal),
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			ids, _ := cmd.Flags().GetStringSlice("lead")
			concurrency, _ := cmd.Flags().GetInt("concurrency")
			if len(ids) == 0 {
				return eris.New("at least one --lead is required")
			}

			env, err := initEnrich(ctx, "enrich")
			if err != nil {
				return err
			}
			defer env.Close()

			results := runEnrichments(ctx, ids, concurrency, func(ctx context.Context, id string) (*model.Outcome, error) {
				return env.Orchestrator.Enrich(ctx, goal, userID, id)
			})
			return printJSON(os.Stdout, results)
		},
	}
	cmd.Flags().StringSlice("lead", nil, "lead id (repeatable; each runs as its own invocation)")
	cmd.Flags().Int("concurrency", 4, "maximum invocations in flight")
	return cmd
}

// enrichResult is one line of enrich command output.
type enrichResult struct {
	LeadID  string         `json:"leadId"`
	Outcome *model.Outcome `json:"outcome,omitempty"`
	Error   string         `json:"error,omitempty"`
}

type enrichFunc func(ctx context.Context, leadID string) (*model.Outcome, error)

// runEnrichments runs one independent invocation per lead id, at most
// concurrency at a time. A failed invocation never stops the others.
func runEnrichments(ctx context.Context, ids []string, concurrency int, fn enrichFunc) []enrichResult {
	if concurrency <= 0 {
		concurrency = 1
	}
	results := make([]enrichResult, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var completed atomic.Int64
	for i, id := range ids {
		g.Go(func() error {
			out, err := fn(gctx, id)
			results[i] = enrichResult{LeadID: id, Outcome: out}
			if err != nil {
				results[i].Error = err.Error()
				zap.L().Warn("enrichment failed", zap.String("lead_id", id), zap.Error(err))
				return nil
			}
			if out != nil && out.Eval.Completed {
				completed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Info("enrichments finished",
		zap.Int("leads", len(ids)),
		zap.Int64("completed", completed.Load()),
	)
	return results
}

var enrichStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the latest enrichment step for a lead",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		leadID, goal, err := leadGoalFlags(cmd)
		if err != nil {
			return err
		}
		watch, _ := cmd.Flags().GetBool("watch")
		interval, _ := cmd.Flags().GetDuration("interval")

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		steps := enrich.NewStepLog(st)

		latest := func(ctx context.Context) (*model.LogEntry, error) {
			return steps.Latest(ctx, userID, leadID, goal)
		}
		if !watch {
			e, err := latest(ctx)
			if err != nil {
				return err
			}
			printEntry(os.Stdout, e)
			return nil
		}
		_, err = watchStatus(ctx, latest, interval, os.Stdout)
		return err
	},
}

var enrichHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List every logged enrichment step for a lead",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		leadID, goal, err := leadGoalFlags(cmd)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		entries, err := enrich.NewStepLog(st).History(ctx, userID, leadID, goal)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "No enrichment steps logged.")
			return nil
		}
		formatHistory(os.Stdout, entries)
		return nil
	},
}

// watchStatus polls latest until the run it shows has ended: an ERROR, a
// successful PERSIST, or a SUCCESS that stays unchanged for a whole interval.
func watchStatus(ctx context.Context, latest func(context.Context) (*model.LogEntry, error), interval time.Duration, w io.Writer) (*model.LogEntry, error) {
	if interval <= 0 {
		interval = defaultWatchInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var prev *model.LogEntry
	for polls := 0; ; polls++ {
		e, err := latest(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "poll status")
		}
		if polls == 0 || !sameEntry(prev, e) {
			printEntry(w, e)
		}
		if runEnded(prev, e) {
			return e, nil
		}
		prev = e

		select {
		case <-ctx.Done():
			return prev, ctx.Err()
		case <-ticker.C:
		}
	}
}

func runEnded(prev, cur *model.LogEntry) bool {
	if cur == nil {
		return false
	}
	switch {
	case cur.Status == model.LogError:
		return true
	case cur.Status == model.LogSuccess && cur.Step == model.StepPersist:
		return true
	case cur.Status == model.LogSuccess && sameEntry(prev, cur):
		return true
	}
	return false
}

func sameEntry(a, b *model.LogEntry) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID && a.Status == b.Status
}

func printEntry(w io.Writer, e *model.LogEntry) {
	if e == nil {
		fmt.Fprintln(w, "no enrichment has run yet")
		return
	}
	fmt.Fprintf(w, "%s  %-14s #%d  %-7s %s\n",
		e.UpdatedAt.Format("15:04:05"), e.Step, e.Attempt, e.Status, e.Message)
}

func formatHistory(w io.Writer, entries []model.LogEntry) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSTEP\tATTEMPT\tSTATUS\tMESSAGE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"), e.Step, e.Attempt, e.Status, e.Message)
	}
	_ = tw.Flush()
}

func leadGoalFlags(cmd *cobra.Command) (string, model.Goal, error) {
	leadID, _ := cmd.Flags().GetString("lead")
	goalStr, _ := cmd.Flags().GetString("goal")
	if leadID == "" {
		return "", "", eris.New("--lead is required")
	}
	goal, ok := model.ParseGoal(goalStr)
	if !ok {
		return "", "", eris.Errorf("unknown goal %q (want identity, contact or social)", goalStr)
	}
	return leadID, goal, nil
}

func goalName(g model.Goal) string {
	switch g {
	case model.GoalIdentity:
		return "identity"
	case model.GoalContact:
		return "contact"
	}
	return "social"
}

func init() {
	for _, c := range []*cobra.Command{enrichStatusCmd, enrichHistoryCmd} {
		c.Flags().String("lead", "", "lead id")
		c.Flags().String("goal", "contact", "identity, contact or social")
	}
	enrichStatusCmd.Flags().Bool("watch", false, "poll until the run ends")
	enrichStatusCmd.Flags().Duration("interval", defaultWatchInterval, "poll interval for --watch")

	enrichCmd.AddCommand(
		newEnrichGoalCmd(model.GoalIdentity, "Work out what a business does"),
		newEnrichGoalCmd(model.GoalContact, "Find a business's contact details"),
		enrichStatusCmd,
		enrichHistoryCmd,
	)
	rootCmd.AddCommand(enrichCmd)
}
