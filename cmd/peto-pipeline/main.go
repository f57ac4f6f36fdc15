package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/peto/internal/app"
	"github.com/ternarybob/peto/internal/common"
	"github.com/ternarybob/peto/internal/mail"
	"github.com/ternarybob/peto/internal/models"
	"github.com/ternarybob/peto/internal/pipeline"
)

type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles configPaths
	userID      = flag.String("user-id", "", "User to apply for (required)")
	maxApps     = flag.Int("max", 5, "Maximum applications this run, retries included")
	delaySec    = flag.Int("delay", 60, "Seconds between jobs")
	jobIDsCSV   = flag.String("job-ids", "", "Comma-separated job ids (default: ready jobs from the store)")
	autoSubmit  = flag.Bool("auto-submit", false, "Submit without pausing for review (auto mode)")
	apiURL      = flag.String("api-url", "", "Base URL of the external job/user stores (overrides config)")
	scanEmail   = flag.Bool("scan-email", false, "Scan the mailbox for confirmation emails after the run")
	showVersion = flag.Bool("version", false, "Print version information")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("Peto pipeline version %s\n", common.GetVersion())
		os.Exit(0)
	}

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "error: --user-id is required")
		flag.Usage()
		os.Exit(2)
	}

	if len(configFiles) == 0 {
		if _, err := os.Stat("peto.toml"); err == nil {
			configFiles = append(configFiles, "peto.toml")
		}
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		arbor.NewLogger().Error().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}
	if *apiURL != "" {
		config.API.BaseURL = *apiURL
	}
	if config.API.BaseURL == "" {
		fmt.Fprintln(os.Stderr, "error: no API base URL configured (use --api-url)")
		os.Exit(1)
	}

	logger := common.InitLogger(config)
	common.PrintBanner(common.GetFullVersion())

	application, err := app.New(config, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}

	// Cancel the run on Ctrl+C; the report still gets written
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Warn().Msg("Interrupt received, stopping pipeline")
		cancel()
	}()

	opts := pipeline.Options{
		MaxApplications: *maxApps,
		DelayBetween:    time.Duration(*delaySec) * time.Second,
		AutoSubmit:      *autoSubmit || config.Pipeline.AutoSubmit,
		MaxRetries:      config.Pipeline.MaxRetries,
		RetryDelayBase:  time.Duration(config.Pipeline.RetryDelayBase) * time.Second,
		ReportsDir:      config.Pipeline.ReportsDir,
		RenderPDF:       config.Pipeline.RenderPDFReports,
	}

	report, runErr := application.Pipeline.Run(ctx, *userID, parseJobIDs(*jobIDsCSV), opts)

	logger.Info().
		Int("submitted", report.Submitted).
		Int("paused", report.Paused).
		Int("blocked", report.Blocked).
		Int("failed", report.Failed).
		Int("skipped", report.Skipped).
		Int("closed", report.JobsClosed).
		Msg("Pipeline run finished")

	if *scanEmail {
		scanConfirmations(ctx, config, logger, report)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	application.Close(shutdownCtx)

	if runErr != nil && runErr != context.Canceled {
		logger.Error().Err(runErr).Msg("Pipeline run failed")
		os.Exit(1)
	}
}

func scanConfirmations(ctx context.Context, config *common.Config, logger arbor.ILogger, report *models.PipelineReport) {
	scanner := mail.NewScanner(&config.Mail, logger)
	if !scanner.Configured() {
		logger.Warn().Msg("Email scan requested but mail is not configured")
		return
	}

	confirmations, err := scanner.ScanForConfirmations(ctx, report.Attempts, report.StartedAt)
	if err != nil {
		logger.Warn().Err(err).Msg("Confirmation email scan failed")
		return
	}
	logger.Info().Int("confirmations", len(confirmations)).Msg("Email scan finished")
}

func parseJobIDs(csv string) []string {
	if csv == "" {
		return nil
	}
	var ids []string
	for _, part := range strings.Split(csv, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
