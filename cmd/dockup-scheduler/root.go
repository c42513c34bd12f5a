package main

import (
	"log/slog"
	"os"
	"strings"

	"dockup-scheduler/internal/config"

	"github.com/spf13/cobra"
)

// globalOptions are flags shared by every command. Flags override the
// matching environment variables.
type globalOptions struct {
	envFile    string
	logLevel   string
	backend    string
	serviceURI string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "dockup-scheduler",
		Short: "Schedule dockup backups of sibling containers",
		Long: `dockup-scheduler runs inside a stack and periodically backs up the
volumes of every other container in that stack to S3. Each backup runs
as a short-lived worker service that is deleted once it has stopped.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return config.LoadDotenv(opts.envFile)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error (overrides LOG_LEVEL)")
	flags.StringVar(&opts.backend, "backend", "", "resource backend: tutum or docker (overrides BACKEND)")
	flags.StringVar(&opts.serviceURI, "service-uri", "", "URI of the service this process runs as (overrides SERVICE_API_URI)")

	cmd.AddCommand(
		newRunCmd(opts),
		newBackupCmd(opts),
		newValidateCmd(),
	)
	return cmd
}

// serviceConfig loads the environment, applies flag overrides, installs
// the configured logger and validates the result.
func (o *globalOptions) serviceConfig() (*config.ServiceConfig, error) {
	cfg := config.LoadServiceConfig()
	if o.logLevel != "" {
		cfg.LogLevel = strings.ToLower(o.logLevel)
	}
	if o.backend != "" {
		cfg.Backend = strings.ToLower(o.backend)
	}
	if o.serviceURI != "" {
		cfg.ServiceURI = o.serviceURI
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
