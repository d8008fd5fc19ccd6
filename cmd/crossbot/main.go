// crossbot watches a roster of accounts for posts that reach across rival
// organizations and announces them, oldest first, at a bounded rate.
//
// Usage:
//
//	crossbot --config crossbot.yaml                 # one catch-up run
//	crossbot catchup --post-id 123 --post-id 456    # announce ids first
//	crossbot watch                                  # run on schedule.spec
//	crossbot queue list
//	crossbot decode "5 7 1700000000.0 m 9 11 r 3"
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"crossbot/internal/catchup"
	"crossbot/internal/config"
	"crossbot/pkg/logx"
)

var version = "dev"

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

type rootFlags struct {
	configPath string
	envFiles   []string
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil && !errors.Is(ee.err, catchup.ErrInterrupted) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", ee.err)
		}
		return ee.code
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return 1
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cc := catchupCmd(flags)

	root := &cobra.Command{
		Use:   "crossbot",
		Short: "Announce cross-company posts from a roster of accounts",
		Long: `crossbot scans every roster account for posts that mention, reply to or
quote an account from a rival organization, queues them durably, and
announces them one at a time, oldest first, under a fixed rate limit.

Without a subcommand it performs one catch-up run.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          cc.RunE,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", config.PathFromEnv("crossbot.yaml"), "path to config file (json or yaml)")
	root.PersistentFlags().StringSliceVar(&flags.envFiles, "env-file", []string{".env"}, "env files to load before reading the config")
	root.Flags().AddFlagSet(cc.Flags())

	root.AddCommand(cc)
	root.AddCommand(watchCmd(flags))
	root.AddCommand(queueCmd(flags))
	root.AddCommand(decodeCmd(flags))
	return root
}

// loadConfig loads env files and the validated config.
func (f *rootFlags) loadConfig() (*config.Config, error) {
	config.LoadEnv(logx.NewConsole("warn"), f.envFiles...)
	m := config.NewManager(f.configPath, logx.Nop())
	return m.Load()
}

// parseConfig reads the config without validating it, for the offline
// queue and decode helpers.
func (f *rootFlags) parseConfig() (*config.Config, error) {
	config.LoadEnv(logx.Nop(), f.envFiles...)
	return config.NewManager(f.configPath, logx.Nop()).Parse()
}
