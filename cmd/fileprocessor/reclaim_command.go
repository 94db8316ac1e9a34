package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"fileprocessor/internal/config"
	"fileprocessor/internal/lockmgr"
)

func newReclaimCommand(ctx *commandContext) *cobra.Command {
	var all bool
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "reclaim <DIRECTORY>",
		Short: "Return locked files of exited instances to the queue",
		Long: `Rename lock records back to their original names so that they are
processed again. By default only locks whose owning process no longer runs are
released; --all releases every lock. Existing files are never replaced.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.ResolveWorkingDir(args[0])
			if err != nil {
				return err
			}

			locks := lockmgr.New(ctx.cliLogger(), lockmgr.Options{})
			actions, result, err := locks.ReclaimOwned(cmd.Context(), dir, lockmgr.OwnedOptions{All: all, DryRun: dryRun})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(actions) == 0 {
				fmt.Fprintln(out, "No locked files")
				return nil
			}
			colorize := shouldColorize(out)
			rows := make([][]string, 0, len(actions))
			for _, action := range actions {
				outcome := "released"
				if !action.Released {
					outcome = "skipped"
				}
				rows = append(rows, []string{
					action.Lock.Record.Original,
					strconv.Itoa(action.Lock.Record.PID),
					yesNo(action.OwnerAlive),
					paint(stateLabel(outcome), colorize),
					action.Skipped,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"File", "PID", "Owner Alive", "Result", "Reason"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
			))
			fmt.Fprintf(out, "Released %d of %d locks\n", result.Reclaimed, len(actions))
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Release locks even if their owner is still running")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only list what would be released")
	return cmd
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
