// dockup-scheduler backs up the volumes of the containers that share its
// stack to S3, one short-lived worker service at a time, on a schedule.
package main

import (
	"log/slog"
	"os"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := newRootCmd().Execute(); err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}
