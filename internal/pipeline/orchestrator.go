package pipeline

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"daily-movers/internal/config"
	"daily-movers/internal/email"
	domerrors "daily-movers/internal/errors"
	"daily-movers/internal/logging"
	"daily-movers/internal/models"
	"daily-movers/internal/providers"
	"daily-movers/internal/render"
	"daily-movers/internal/store"
)

// RunRequest describes one digest run.
type RunRequest struct {
	Date      string
	Mode      string
	Region    string
	Source    string
	Top       int
	Watchlist string
	OutDir    string
	SendEmail bool
}

// Orchestrator drives a complete run: ingestion, per-ticker analysis,
// artifact rendering, email, and archival. A run degrades instead of
// aborting: ingestion failure yields empty artifacts, per-ticker failures
// yield heuristic fallback rows, and email failure downgrades the status.
type Orchestrator struct {
	cfg *config.Config
	log zerolog.Logger
}

// NewOrchestrator creates an orchestrator over the given configuration.
func NewOrchestrator(cfg *config.Config, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{cfg: cfg, log: log}
}

// Run executes the pipeline and returns the artifact manifest.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (models.RunArtifacts, error) {
	runID := newRunID()
	startedAt := time.Now()

	outDir, err := store.EnsureRunDir(req.OutDir)
	if err != nil {
		return models.RunArtifacts{}, err
	}

	runlog := logging.NewRunLogger(filepath.Join(outDir, "run.log"))
	client := store.NewCachedHTTPClient(o.cfg.HTTP, runlog)
	llm := NewOpenAIAnalyzer(o.cfg, runlog)
	agent := NewAgentPipeline(o.cfg, runlog)
	movers := providers.NewMoversProvider(client, runlog)
	enricher := providers.NewTickerEnricher(client, runlog)

	o.log.Info().Str("run_id", runID).Str("mode", req.Mode).Str("region", req.Region).Msg("run started")
	runlog.Info("run_started", map[string]any{
		"stage":   "orchestrator",
		"mode":    req.Mode,
		"region":  req.Region,
		"source":  req.Source,
		"top":     req.Top,
		"out_dir": outDir,
	})

	ingestStart := time.Now()
	rows, err := o.ingest(ctx, req, movers)
	if err != nil {
		runlog.Error("ingestion_failed", map[string]any{
			"stage":         "ingestion",
			"error_type":    fmt.Sprintf("%T", err),
			"error_message": err.Error(),
		})
		rows = nil
	} else {
		runlog.Info("ingestion_completed", map[string]any{
			"stage": "ingestion",
			"count": len(rows),
		})
	}
	ingestMS := time.Since(ingestStart).Milliseconds()

	processStart := time.Now()
	reportRows := o.processRows(ctx, rows, enricher, agent, llm, runlog)
	processMS := time.Since(processStart).Milliseconds()

	if req.Mode == "movers" {
		sortReportRows(reportRows)
	}

	renderStart := time.Now()
	archivePath := filepath.Join(outDir, "archive.jsonl")
	archiveRecords := make([]map[string]any, 0, len(reportRows))
	for i := range reportRows {
		record := map[string]any{
			"run_id":         runID,
			"requested_date": req.Date,
			"mode":           req.Mode,
			"region":         req.Region,
		}
		for k, v := range reportRows[i].ToArchiveRecord() {
			record[k] = v
		}
		archiveRecords = append(archiveRecords, record)
	}
	if err := store.WriteJSONL(archivePath, archiveRecords); err != nil {
		return models.RunArtifacts{}, err
	}

	digestHTML, err := render.BuildDigestHTML(reportRows, render.DigestMeta{
		RunID:         runID,
		RequestedDate: req.Date,
		Mode:          req.Mode,
		Region:        req.Region,
		Top:           req.Top,
	})
	if err != nil {
		return models.RunArtifacts{}, err
	}
	htmlPath := filepath.Join(outDir, "digest.html")
	if err := store.WriteText(htmlPath, digestHTML); err != nil {
		return models.RunArtifacts{}, err
	}

	csvPath := filepath.Join(outDir, "report.csv")
	if err := render.WriteReportCSV(csvPath, reportRows); err != nil {
		return models.RunArtifacts{}, err
	}
	renderMS := time.Since(renderStart).Milliseconds()

	emailStart := time.Now()
	emlPath := filepath.Join(outDir, "digest.eml")
	emailMeta := o.deliverEmail(req, digestHTML, emlPath, runlog)
	emailMS := time.Since(emailStart).Milliseconds()

	summary := buildSummary(reportRows, emailMeta, llm.Enabled())
	status := resolveRunStatus(reportRows, emailMeta)
	endedAt := time.Now()

	meta := models.RunMeta{
		RunID:         runID,
		RequestedDate: req.Date,
		Mode:          req.Mode,
		Region:        req.Region,
		Source:        req.Source,
		Top:           req.Top,
		OutDir:        outDir,
		StartedAt:     startedAt.UTC().Format(time.RFC3339),
		EndedAt:       endedAt.UTC().Format(time.RFC3339),
		Status:        status,
		Summary:       summary,
		Email:         emailMeta,
		TimingsMS: map[string]int64{
			"ingestion":  ingestMS,
			"processing": processMS,
			"rendering":  renderMS,
			"email":      emailMS,
			"total":      endedAt.Sub(startedAt).Milliseconds(),
		},
	}
	runJSONPath := filepath.Join(outDir, "run.json")
	if err := store.WriteJSON(runJSONPath, meta); err != nil {
		return models.RunArtifacts{}, err
	}

	dbPath := filepath.Join(filepath.Dir(filepath.Clean(outDir)), "runs.db")
	if archive, err := store.NewArchiveStore(dbPath); err != nil {
		runlog.Warning("archive_store_failed", map[string]any{
			"stage":         "archive",
			"error_type":    fmt.Sprintf("%T", err),
			"error_message": err.Error(),
		})
	} else {
		if err := archive.SaveRun(&meta, reportRows); err != nil {
			runlog.Warning("archive_store_failed", map[string]any{
				"stage":         "archive",
				"error_type":    fmt.Sprintf("%T", err),
				"error_message": err.Error(),
			})
		}
		archive.Close()
	}

	runlog.Info("run_completed", map[string]any{
		"stage":        "orchestrator",
		"status":       status,
		"processed":    summary.Processed,
		"needs_review": summary.NeedsReview,
		"error_rows":   summary.ErrorRows,
	})
	o.log.Info().Str("run_id", runID).Str("status", status).Int("processed", summary.Processed).Msg("run completed")

	return models.RunArtifacts{
		Status:  status,
		Summary: summary,
		Paths: map[string]string{
			"report_csv":    csvPath,
			"digest_html":   htmlPath,
			"digest_eml":    emlPath,
			"archive_jsonl": archivePath,
			"run_json":      runJSONPath,
			"run_log":       runlog.Path(),
			"runs_db":       dbPath,
		},
	}, nil
}

func newRunID() string {
	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("%012x", time.Now().UnixNano()&0xffffffffffff)
	}
	return hex.EncodeToString(b[:])
}

func (o *Orchestrator) ingest(ctx context.Context, req RunRequest, movers *providers.MoversProvider) ([]models.TickerRow, error) {
	switch req.Mode {
	case "movers":
		return movers.GetMovers(ctx, req.Region, req.Source, req.Top)
	case "watchlist":
		if strings.TrimSpace(req.Watchlist) == "" {
			return nil, domerrors.NewIngestionError("watchlist", "watchlist mode requires a watchlist path", nil)
		}
		return movers.GetWatchlistRows(ctx, req.Watchlist, req.Top)
	}
	return nil, domerrors.NewIngestionError(req.Mode, "unsupported mode "+req.Mode, domerrors.ErrUnsupportedMode)
}

// sortReportRows orders movers output by percent change then volume, both
// descending. Rows without a value sort last.
func sortReportRows(rows []models.ReportRow) {
	key := func(r *models.ReportRow) (float64, float64) {
		pct, vol := -1e18, -1e18
		if r.Ticker.PctChange != nil {
			pct = *r.Ticker.PctChange
		}
		if r.Ticker.Volume != nil {
			vol = *r.Ticker.Volume
		}
		return pct, vol
	}
	sort.SliceStable(rows, func(i, j int) bool {
		pi, vi := key(&rows[i])
		pj, vj := key(&rows[j])
		if pi != pj {
			return pi > pj
		}
		return vi > vj
	})
}

// rowWorker produces the report row for one ingested row.
type rowWorker func(ctx context.Context, row *models.TickerRow, index int) models.ReportRow

// processRows analyzes every ingested row concurrently through the batch
// runner.
func (o *Orchestrator) processRows(ctx context.Context, rows []models.TickerRow, enricher *providers.TickerEnricher, agent *AgentPipeline, llm *OpenAIAnalyzer, runlog *logging.RunLogger) []models.ReportRow {
	return o.runBatch(ctx, rows, runlog, func(ctx context.Context, row *models.TickerRow, index int) models.ReportRow {
		return o.processSingleRow(ctx, row, index, enricher, agent, llm, runlog)
	})
}

// runBatch runs the worker over every row concurrently. Worker count bounds
// parallelism and the whole batch gets a deadline derived from the per-row
// budget; rows that miss it are replaced with heuristic timeout rows and a
// panicking worker yields an exception row, so the output always lines up
// with the input.
func (o *Orchestrator) runBatch(ctx context.Context, rows []models.TickerRow, runlog *logging.RunLogger, work rowWorker) []models.ReportRow {
	if len(rows) == 0 {
		return nil
	}

	perRow := 6 * o.cfg.HTTP.RequestTimeout
	if perRow < 60*time.Second {
		perRow = 60 * time.Second
	}
	workers := o.cfg.Run.MaxWorkers
	batches := (len(rows) + workers - 1) / workers
	overall := perRow * time.Duration(batches)

	runCtx, cancel := context.WithTimeout(ctx, overall)
	defer cancel()

	type result struct {
		idx    int
		report models.ReportRow
	}
	resultCh := make(chan result, len(rows))
	sem := make(chan struct{}, workers)

	for i := range rows {
		go func(idx int) {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-runCtx.Done():
				return
			}
			row := rows[idx]
			resultCh <- result{idx, o.guardedRow(runCtx, &row, idx, runlog, work)}
		}(i)
	}

	results := make([]*models.ReportRow, len(rows))
	for received := 0; received < len(rows); {
		select {
		case r := <-resultCh:
			report := r.report
			results[r.idx] = &report
			received++
		case <-runCtx.Done():
			received = len(rows)
		}
	}

	out := make([]models.ReportRow, 0, len(rows))
	for i := range rows {
		if results[i] != nil {
			out = append(out, *results[i])
			continue
		}
		out = append(out, o.fallbackRow(&rows[i], "TimeoutError", "processing timed out", "processing_timeout"))
	}
	return out
}

// guardedRow converts a worker panic into a heuristic fallback row instead of
// killing the batch.
func (o *Orchestrator) guardedRow(ctx context.Context, row *models.TickerRow, index int, runlog *logging.RunLogger, work rowWorker) (report models.ReportRow) {
	defer func() {
		if r := recover(); r != nil {
			runlog.Error("ticker_processing_panicked", map[string]any{
				"stage":         "processing",
				"symbol":        row.Ticker,
				"error_type":    "panic",
				"error_message": fmt.Sprint(r),
			})
			report = o.fallbackRow(row, "panic", fmt.Sprint(r), "processing_exception")
		}
	}()
	return work(ctx, row, index)
}

// fallbackRow produces the degraded report row used when a ticker could not
// be processed: heuristics over an empty enrichment, with the failure
// embedded as an analysis error.
func (o *Orchestrator) fallbackRow(row *models.TickerRow, errType, errMsg, reason string) models.ReportRow {
	enrichment := models.Enrichment{}
	analysis := AnalyzeWithHeuristics(row, &enrichment)
	analysis.Errors = append(analysis.Errors, models.ErrorInfo{
		Stage:        "analysis",
		ErrorType:    errType,
		ErrorMessage: errMsg,
		FallbackUsed: true,
	})

	report := models.NewReportRow(*row, enrichment, analysis)
	report.Status = models.StatusPartial
	report.NeedsReviewReason = []string{reason}
	ApplyReviewRules(&report)
	return report
}

func (o *Orchestrator) processSingleRow(ctx context.Context, row *models.TickerRow, index int, enricher *providers.TickerEnricher, agent *AgentPipeline, llm *OpenAIAnalyzer, runlog *logging.RunLogger) models.ReportRow {
	runlog.Info("ticker_processing_started", map[string]any{
		"stage":  "processing",
		"symbol": row.Ticker,
		"index":  index,
	})

	enrichment := enricher.Enrich(ctx, row)

	// Heuristic baseline first, so there is always a complete analysis to
	// fall back on.
	analysis := AnalyzeWithHeuristics(row, &enrichment)
	var tags []string

	agentAnalysis, agentErr := agent.Analyze(ctx, row, &enrichment)
	if agentErr == nil {
		analysis = agentAnalysis
		tags = DeriveRecommendationTags(row, &analysis)
		runlog.Info("agent_analysis_used", map[string]any{
			"stage":      "analysis",
			"symbol":     row.Ticker,
			"model_used": analysis.ModelUsed,
			"tags":       tags,
		})
	} else {
		runlog.Warning("agent_analysis_failed", map[string]any{
			"stage":         "analysis",
			"symbol":        row.Ticker,
			"error_type":    fmt.Sprintf("%T", agentErr),
			"error_message": agentErr.Error(),
			"fallback_used": true,
		})
	}

	if agentErr != nil && llm.Enabled() {
		llmAnalysis, err := llm.Synthesize(ctx, row, &enrichment)
		if err != nil {
			analysis = AnalyzeWithHeuristics(row, &enrichment)
			if !contains(analysis.DecisionTrace.RulesTriggered, "openai_fallback_used") {
				analysis.DecisionTrace.RulesTriggered = append(analysis.DecisionTrace.RulesTriggered, "openai_fallback_used")
			}
			runlog.Warning("analysis_fallback_to_heuristics", map[string]any{
				"stage":         "analysis",
				"symbol":        row.Ticker,
				"error_type":    fmt.Sprintf("%T", err),
				"error_message": err.Error(),
				"fallback_used": true,
			})
		} else {
			analysis = llmAnalysis
		}
	}

	if len(tags) == 0 {
		tags = DeriveRecommendationTags(row, &analysis)
	}

	criticFlags := CriticReview(row, &enrichment, &analysis)

	report := models.NewReportRow(*row, enrichment, analysis)
	report.RecommendationTags = tags
	report.NeedsReviewReason = criticFlags
	ApplyReviewRules(&report)

	runlog.Info("ticker_processing_completed", map[string]any{
		"stage":        "processing",
		"symbol":       row.Ticker,
		"status":       report.Status,
		"needs_review": report.NeedsReview,
	})
	return report
}

// deliverEmail always writes digest.eml and optionally sends it over SMTP.
// The returned outcome feeds the run status: a failed send downgrades an
// otherwise clean run.
func (o *Orchestrator) deliverEmail(req RunRequest, digestHTML, emlPath string, runlog *logging.RunLogger) models.EmailOutcome {
	fromEmail := o.cfg.SMTP.FromEmail
	if fromEmail == "" {
		fromEmail = "daily-movers@localhost"
	}
	toEmail := o.cfg.SMTP.SelfEmail
	if toEmail == "" {
		toEmail = fromEmail
	}
	subject := "Daily Movers Digest - " + req.Date

	outcome := models.EmailOutcome{
		Attempted: req.SendEmail,
		Sent:      false,
		Status:    "eml_only",
		Backend:   "eml",
	}

	message, err := render.BuildDigestEML(subject, digestHTML, fromEmail, toEmail)
	if err != nil {
		outcome.Status = "failed"
		outcome.Error = err.Error()
		runlog.Error("email_build_failed", map[string]any{
			"stage":         "email",
			"error_type":    fmt.Sprintf("%T", err),
			"error_message": err.Error(),
		})
		return outcome
	}
	if err := render.WriteEMLFile(emlPath, message); err != nil {
		outcome.Status = "failed"
		outcome.Error = err.Error()
		runlog.Error("email_eml_write_failed", map[string]any{
			"stage":         "email",
			"error_type":    fmt.Sprintf("%T", err),
			"error_message": err.Error(),
		})
		return outcome
	}
	runlog.Info("email_eml_written", map[string]any{
		"stage":  "email",
		"status": "ok",
		"path":   emlPath,
	})

	if !req.SendEmail {
		return outcome
	}

	sender := email.NewSender(o.cfg, runlog)
	if !sender.CanSend() {
		outcome.Status = "skipped_missing_credentials"
		outcome.Error = "SMTP credentials not fully configured"
		runlog.Warning("email_send_skipped", map[string]any{
			"stage":         "email",
			"error_type":    "MissingCredentials",
			"error_message": outcome.Error,
		})
		return outcome
	}

	if err := sender.Send(message, fromEmail, toEmail); err != nil {
		outcome.Status = "failed"
		outcome.Error = err.Error()
		outcome.Backend = "smtp"
		runlog.Error("email_send_failed", map[string]any{
			"stage":         "email",
			"error_type":    fmt.Sprintf("%T", err),
			"error_message": err.Error(),
		})
		return outcome
	}

	outcome.Sent = true
	outcome.Status = "sent"
	outcome.Backend = "smtp"
	return outcome
}

func buildSummary(rows []models.ReportRow, emailMeta models.EmailOutcome, openaiAttempted bool) models.RunSummary {
	var errorRows, needsReview, fallbackRows, openaiUsedRows, openaiFallbackRows, agentRows int
	var topPickCount, mostPotentialCount int
	var topPick, mostPotential *models.ReportRow

	for i := range rows {
		row := &rows[i]
		if len(row.AllErrors()) > 0 {
			errorRows++
		}
		if row.NeedsReview {
			needsReview++
		}
		if row.Ticker.IngestionFallbackUsed {
			fallbackRows++
		}
		if strings.Contains(row.Analysis.ModelUsed, "openai") {
			openaiUsedRows++
		}
		if contains(row.Analysis.DecisionTrace.RulesTriggered, "openai_fallback_used") {
			openaiFallbackRows++
		}
		if strings.Contains(row.Analysis.ModelUsed, "agent") {
			agentRows++
		}
		if contains(row.RecommendationTags, "top_pick_candidate") {
			topPickCount++
			if topPick == nil || row.Analysis.Confidence > topPick.Analysis.Confidence {
				topPick = row
			}
		}
		if contains(row.RecommendationTags, "most_potential_candidate") {
			mostPotentialCount++
			if mostPotential == nil || row.Analysis.Sentiment > mostPotential.Analysis.Sentiment {
				mostPotential = row
			}
		}
	}

	summary := models.RunSummary{
		Processed:          len(rows),
		ErrorRows:          errorRows,
		NeedsReview:        needsReview,
		FallbackRows:       fallbackRows,
		EmailSent:          emailMeta.Sent,
		OpenAIAttempted:    openaiAttempted,
		OpenAIUsed:         openaiUsedRows > 0,
		OpenAIUsedRows:     openaiUsedRows,
		OpenAIFallbackRows: openaiFallbackRows,
		AgentRows:          agentRows,
		TopPickCount:       topPickCount,
		MostPotentialCount: mostPotentialCount,
	}
	if topPick != nil {
		summary.TopPick = topPick.Ticker.Ticker
	}
	if mostPotential != nil {
		summary.MostPotential = mostPotential.Ticker.Ticker
	}
	return summary
}

func resolveRunStatus(rows []models.ReportRow, emailMeta models.EmailOutcome) string {
	if len(rows) == 0 {
		return "failed"
	}
	for i := range rows {
		if len(rows[i].AllErrors()) > 0 {
			return "partial_success"
		}
	}
	if emailMeta.Attempted && !emailMeta.Sent && emailMeta.Status == "failed" {
		return "partial_success"
	}
	return "success"
}
