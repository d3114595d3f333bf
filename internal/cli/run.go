package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"daily-movers/internal/pipeline"
)

var (
	validModes   = map[string]bool{"movers": true, "watchlist": true}
	validSources = map[string]bool{"auto": true, "most-active": true, "universe": true}
	validRegions = map[string]bool{"us": true, "il": true, "uk": true, "eu": true, "crypto": true}
)

func newRunCmd(app *App) *cobra.Command {
	var (
		date      string
		mode      string
		source    string
		top       int
		region    string
		watchlist string
		outDir    string
		sendEmail bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daily movers pipeline",
		Long: `Run the full pipeline for one date: ingest movers or a watchlist, analyze
every ticker, and write the digest artifacts (digest.html, report.csv,
digest.eml, archive.jsonl, run.json) to the output directory. The artifact
manifest is printed as JSON.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !validModes[mode] {
				return fmt.Errorf("invalid mode %q (choose movers or watchlist)", mode)
			}
			if !validSources[source] {
				return fmt.Errorf("invalid source %q (choose auto, most-active, or universe)", source)
			}
			if !validRegions[region] {
				return fmt.Errorf("invalid region %q (choose us, il, uk, eu, or crypto)", region)
			}
			if top < 1 {
				return fmt.Errorf("top must be at least 1")
			}
			if date == "" {
				date = time.Now().Format("2006-01-02")
			}
			if outDir == "" {
				outDir = "runs/" + date
			}

			request := pipeline.RunRequest{
				Date:      date,
				Mode:      mode,
				Region:    region,
				Source:    source,
				Top:       top,
				Watchlist: watchlist,
				OutDir:    outDir,
				SendEmail: sendEmail,
			}

			orch := pipeline.NewOrchestrator(app.Config, app.Logger)
			artifacts, err := orch.Run(cmd.Context(), request)
			if err != nil {
				return err
			}
			return NewOutput(cmd).JSON(artifacts)
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "report date label YYYY-MM-DD (default: today)")
	cmd.Flags().StringVar(&mode, "mode", "movers", "run mode: movers or watchlist")
	cmd.Flags().StringVar(&source, "source", "auto", "movers source: auto, most-active, or universe")
	cmd.Flags().IntVar(&top, "top", 20, "number of tickers to analyze")
	cmd.Flags().StringVar(&region, "region", "us", "market region: us, il, uk, eu, or crypto")
	cmd.Flags().StringVar(&watchlist, "watchlist", "", "path to watchlist YAML/JSON (watchlist mode)")
	cmd.Flags().StringVar(&outDir, "out", "", "output run directory (default: runs/{date})")
	cmd.Flags().BoolVar(&sendEmail, "send-email", false, "send the digest when SMTP is configured")

	return cmd
}
