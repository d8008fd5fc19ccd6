package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"crossbot/internal/catchup"
	"crossbot/internal/config"
	"crossbot/pkg/logx"
)

const exitInterrupted = 130

type catchupFlags struct {
	postIDs         []string
	refreshQueue    bool
	straightToQueue bool
	dryRun          bool
}

func catchupCmd(root *rootFlags) *cobra.Command {
	f := &catchupFlags{}
	cmd := &cobra.Command{
		Use:   "catchup",
		Short: "Scan every account and drain the announcement queue once",
		Long: `Run one catch-up: announce any --post-id ids first, optionally refresh
the stored queue, scan every roster account for new cross-company posts,
then announce the queue oldest first with a rest after each post.

A failed scan leaves the queue untouched until the next run.

Examples:
  crossbot catchup
  crossbot catchup --post-id 1767709000000000000 --post-id 1767709000000000001
  crossbot catchup --straight-to-queue --refresh-queue`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if f.dryRun {
				cfg.Announce.Driver = config.DriverLog
				cfg.Logging.Telegram.Enabled = false
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runCatchup(ctx, cfg, f)
		},
	}
	cmd.Flags().StringSliceVar(&f.postIDs, "post-id", nil, "post ids to announce before anything else (repeatable)")
	cmd.Flags().BoolVar(&f.refreshQueue, "refresh-queue", false, "re-fetch every queued post before draining")
	cmd.Flags().BoolVar(&f.straightToQueue, "straight-to-queue", false, "drain the stored queue before the first scan")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "log announcements instead of sending them")
	return cmd
}

func runCatchup(ctx context.Context, cfg *config.Config, f *catchupFlags) error {
	runID := uuid.NewString()
	a, err := newApp(ctx, cfg, appOptions{runID: runID})
	if err != nil {
		return err
	}
	defer func() { _ = a.close() }()

	ids, bad := parseIDs(f.postIDs)
	for _, raw := range bad {
		a.log.Warn("invalid post id, skipping", logx.String("id", raw))
	}

	res := a.orch.Run(ctx, catchup.Options{
		PostIDs:         ids,
		RefreshQueue:    f.refreshQueue,
		StraightToQueue: f.straightToQueue,
	})
	return resultError(res)
}

// resultError maps a run result to the process exit code.
func resultError(res catchup.Result) error {
	switch {
	case res.State == catchup.StateDone:
		return nil
	case errors.Is(res.Err, catchup.ErrInterrupted):
		return &exitError{code: exitInterrupted, err: res.Err}
	case res.Err != nil:
		return &exitError{code: 1, err: res.Err}
	default:
		return &exitError{code: 1, err: errors.New("catch-up ended in state " + res.State.String())}
	}
}

// parseIDs returns the valid ids sorted and deduplicated, plus the raw
// values that were not non-negative integers.
func parseIDs(raw []string) (ids []int64, bad []string) {
	for _, r := range raw {
		for _, s := range strings.FieldsFunc(r, func(c rune) bool { return c == ',' || c == ' ' }) {
			id, err := strconv.ParseInt(s, 10, 64)
			if err != nil || id < 0 {
				bad = append(bad, s)
				continue
			}
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids), bad
}
