package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"crossbot/internal/post"
)

func decodeCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "decode [RECORD...]",
		Short: "Decode queue records (arguments, or stdin lines) and describe them",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := func(id int64) string { return fmt.Sprint(id) }
			var isCross func(post.Post) bool
			if cfg, err := root.parseConfig(); err == nil {
				if r, err := cfg.ResolveRoster(); err == nil {
					names = r.Handle
					isCross = func(p post.Post) bool { return p.IsCrossCompany(r) }
				}
			}

			lines := args
			if len(lines) == 0 {
				sc := bufio.NewScanner(cmd.InOrStdin())
				for sc.Scan() {
					lines = append(lines, sc.Text())
				}
				if err := sc.Err(); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			var bad int
			for _, line := range lines {
				line = strings.TrimSpace(line)
				if line == "" || strings.HasPrefix(line, "#") {
					continue
				}
				p, err := post.Decode(line)
				if err != nil {
					bad++
					fmt.Fprintf(cmd.ErrOrStderr(), "%q: %v\n", line, err)
					continue
				}
				fmt.Fprintln(out, p.Describe(names))
				if isCross != nil {
					fmt.Fprintf(out, "cross-company: %t\n", isCross(p))
				}
				fmt.Fprintln(out, strings.Repeat("=", 54))
			}
			if bad > 0 {
				return &exitError{code: 1, err: fmt.Errorf("%d malformed records", bad)}
			}
			return nil
		},
	}
}
