package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"dockup-scheduler/internal/scheduler"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Check a schedule file and print the next run of each job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := scheduler.LoadFile(args[0])
			if err != nil {
				return err
			}

			now := time.Now()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tACTION\tSCHEDULE\tNEXT")
			for _, j := range file.Jobs {
				sched, err := scheduler.ParseCadence(j.Schedule)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", j.Name, j.Action, j.Schedule, sched.Next(now).Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}
