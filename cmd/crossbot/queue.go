package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"crossbot/internal/post"
	"crossbot/internal/queue"
	"crossbot/internal/storage"
	"crossbot/pkg/logx"
)

func queueCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect or edit the announcement queue",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List pending posts (announcement order) and watermarks",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withQueue(cmd.Context(), root, func(q *queue.Queue, names func(int64) string) error {
					return listQueue(cmd.OutOrStdout(), q, names)
				})
			},
		},
		&cobra.Command{
			Use:   "finish ID...",
			Short: "Mark ids as finished so they are never announced",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ids, bad := parseIDs(args)
				if len(bad) > 0 {
					return fmt.Errorf("invalid ids: %v", bad)
				}
				return withQueue(cmd.Context(), root, func(q *queue.Queue, _ func(int64) string) error {
					for _, id := range ids {
						if err := q.MarkFinished(cmd.Context(), id); err != nil {
							return err
						}
					}
					fmt.Fprintf(cmd.OutOrStdout(), "finished %d ids, %d pending\n", len(ids), q.Count())
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "add RECORD...",
			Short: `Queue encoded records, e.g. "5 7 1700000000.0 m 9 11 r 3"`,
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				posts := make([]post.Post, 0, len(args))
				for _, line := range args {
					p, err := post.Decode(line)
					if err != nil {
						return err
					}
					posts = append(posts, p)
				}
				return withQueue(cmd.Context(), root, func(q *queue.Queue, _ func(int64) string) error {
					added := 0
					for _, p := range posts {
						ok, err := q.Add(cmd.Context(), p)
						if err != nil {
							return err
						}
						if ok {
							added++
						}
					}
					fmt.Fprintf(cmd.OutOrStdout(), "added %d of %d, %d pending\n", added, len(posts), q.Count())
					return nil
				})
			},
		},
	)
	return cmd
}

func withQueue(ctx context.Context, root *rootFlags, fn func(q *queue.Queue, names func(int64) string) error) error {
	cfg, err := root.parseConfig()
	if err != nil {
		return err
	}
	stCfg, err := cfg.ResolveStorage()
	if err != nil {
		return err
	}
	names := func(id int64) string { return fmt.Sprint(id) }
	if r, err := cfg.ResolveRoster(); err == nil {
		names = r.Handle
	}
	st, err := storage.Open(stCfg, logx.Nop())
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	q, err := queue.Load(ctx, st, logx.Nop())
	if err != nil {
		return err
	}
	return fn(q, names)
}

func listQueue(out io.Writer, q *queue.Queue, names func(int64) string) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tID\tAUTHOR\tDATE\tRECORD")
	for i, p := range q.Pending() {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\n", i+1, p.ID(), names(p.AuthorID()), p.DateString(), post.Encode(p))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d pending, %d finished\n", q.Count(), q.FinishedCount())

	wms := q.Watermarks()
	ids := make([]int64, 0, len(wms))
	for id := range wms {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		fmt.Fprintf(out, "scanned %s through %s\n", names(id), wms[id].UTC().Format("2006-01-02 15:04:05Z07:00"))
	}
	return nil
}
