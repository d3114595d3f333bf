package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"daily-movers/internal/config"
	"daily-movers/internal/logging"
)

// Version information
const (
	Version = "1.0.0"
)

// App holds the application dependencies.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	rootCmd := &cobra.Command{
		Use:   "daily-movers",
		Short: "Daily Movers Assistant - evidence-based stock digest",
		Long: `Daily Movers Assistant builds a daily digest of notable stock and crypto
movers. Each ticker is enriched with headlines and price history, analyzed
through a tiered strategy (reasoning agent, raw LLM, deterministic
heuristics), and rendered as HTML, CSV, and email artifacts.

The tool degrades gracefully: without an OpenAI key the heuristics run
alone, and without SMTP credentials the digest email is written to disk
instead of sent.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newRunsCmd(app))
	rootCmd.AddCommand(newHistoryCmd(app))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"version": Version})
			} else {
				output.Printf("Daily Movers Assistant v%s\n", Version)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(configView(app.Config))
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("Configuration is valid")
			return nil
		},
	})

	return cmd
}

// configView redacts secrets before display.
func configView(cfg *config.Config) map[string]any {
	return map[string]any{
		"openai_enabled":        cfg.OpenAIEnabled(),
		"openai_model":          cfg.OpenAI.Model,
		"smtp_ready":            cfg.SMTPReady(),
		"smtp_host":             cfg.SMTP.Host,
		"smtp_port":             cfg.SMTP.Port,
		"cache_dir":             cfg.HTTP.CacheDir,
		"cache_ttl_seconds":     int(cfg.HTTP.CacheTTL.Seconds()),
		"request_timeout_secs":  int(cfg.HTTP.RequestTimeout.Seconds()),
		"max_retries":           cfg.HTTP.MaxRetries,
		"max_requests_per_host": cfg.HTTP.MaxRequestsPerHost,
		"max_workers":           cfg.Run.MaxWorkers,
		"log_level":             cfg.Log.Level,
	}
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Analysis Configuration")
	output.Printf("  OpenAI Enabled:  %v\n", cfg.OpenAIEnabled())
	output.Printf("  Model:           %s\n", cfg.OpenAI.Model)
	output.Printf("  LLM Timeout:     %s\n", cfg.OpenAI.Timeout)
	output.Println()

	output.Bold("Email Configuration")
	output.Printf("  SMTP Ready:      %v\n", cfg.SMTPReady())
	output.Printf("  Host:            %s\n", cfg.SMTP.Host)
	output.Printf("  Port:            %d (SSL %d)\n", cfg.SMTP.Port, cfg.SMTP.SSLPort)
	output.Println()

	output.Bold("Fetch Configuration")
	output.Printf("  Cache Dir:       %s\n", cfg.HTTP.CacheDir)
	output.Printf("  Cache TTL:       %s\n", cfg.HTTP.CacheTTL)
	output.Printf("  Request Timeout: %s\n", cfg.HTTP.RequestTimeout)
	output.Printf("  Max Retries:     %d\n", cfg.HTTP.MaxRetries)
	output.Printf("  Per-Host Limit:  %d\n", cfg.HTTP.MaxRequestsPerHost)
	output.Println()

	output.Bold("Run Configuration")
	output.Printf("  Max Workers:     %d\n", cfg.Run.MaxWorkers)
	output.Printf("  Log Level:       %s\n", cfg.Log.Level)
}
