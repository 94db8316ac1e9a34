package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"fileprocessor/internal/config"
	"fileprocessor/internal/inspect"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status <DIRECTORY>",
		Short: "Show pending, locked and finished files of a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			dir, err := config.ResolveWorkingDir(args[0])
			if err != nil {
				return err
			}
			snap, err := inspect.Take(cmd.Context(), dir, time.Now(), cfg.ProcessTimeout())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, snap)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			fmt.Fprintf(out, "Directory: %s\n", snap.Dir)
			fmt.Fprintf(out, "Pending:   %d\n", snap.Pending)
			fmt.Fprintf(out, "Locked:    %d (%d stale)\n", len(snap.Locks), snap.StaleCount())
			fmt.Fprintf(out, "Done:      %d\n", snap.Done)
			if !snap.OldestPending.IsZero() {
				fmt.Fprintf(out, "Oldest:    %s\n", snap.OldestPending.Format(time.RFC3339))
			}
			if len(snap.Locks) == 0 {
				return nil
			}

			rows := make([][]string, 0, len(snap.Locks))
			for _, lock := range snap.Locks {
				state := "running"
				if lock.Stale {
					state = "stale"
				}
				rows = append(rows, []string{
					lock.Original,
					strconv.Itoa(lock.PID),
					lock.Age,
					paint(stateLabel(state), colorize),
				})
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, renderTable(
				[]string{"File", "PID", "Age", "State"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
