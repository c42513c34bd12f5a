package main

import (
	"encoding/json"
	"os/signal"
	"syscall"

	"dockup-scheduler/internal/backup"

	"github.com/spf13/cobra"
)

func newBackupCmd(global *globalOptions) *cobra.Command {
	var printReport bool

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Run one backup cycle and exit",
		Long: `Run one backup cycle over the stack and exit. The exit status is
non-zero when any container failed to back up.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := global.serviceConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.orchestrator.RunCycle(ctx)
			if printReport && report != nil {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(reportView(report)); encErr != nil {
					return encErr
				}
			}
			if err != nil {
				return err
			}
			return report.Err()
		},
	}

	cmd.Flags().BoolVar(&printReport, "report", false, "print the cycle report as JSON")
	return cmd
}

type failureJSON struct {
	Target string `json:"target"`
	Error  string `json:"error"`
}

type reportJSON struct {
	CycleID string        `json:"cycleId"`
	Backed  []string      `json:"backed"`
	Skipped []string      `json:"skipped"`
	Failed  []failureJSON `json:"failed"`
}

func reportView(r *backup.Report) reportJSON {
	out := reportJSON{
		CycleID: r.CycleID,
		Backed:  r.Backed,
		Skipped: r.Skipped,
		Failed:  make([]failureJSON, 0, len(r.Failed)),
	}
	for _, f := range r.Failed {
		out.Failed = append(out.Failed, failureJSON{Target: f.Target, Error: f.Err.Error()})
	}
	return out
}
