package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/peto/internal/common"
	"github.com/ternarybob/peto/internal/interfaces"
	"github.com/ternarybob/peto/internal/models"
	"github.com/ternarybob/peto/internal/orchestrator"
	"github.com/ternarybob/peto/internal/ratelimit"
)

// Applier is the slice of the orchestrator the pipeline drives
type Applier interface {
	Apply(ctx context.Context, req orchestrator.Request) *orchestrator.Result
}

// Options configures one pipeline run
type Options struct {
	MaxApplications int           // Attempt budget, retries included (default 5)
	DelayBetween    time.Duration // Pacing between jobs (default 60s)
	AutoSubmit      bool          // auto mode instead of semi_auto
	MaxRetries      int           // Per-job retry cap (default 3)
	RetryDelayBase  time.Duration // Linear backoff base (default 120s)
	ReportsDir      string
	RenderPDF       bool
}

// applyDefaults fills unset knobs. A zero attempt budget is honored:
// the run produces an empty report.
func (o *Options) applyDefaults() {
	if o.MaxApplications < 0 {
		o.MaxApplications = 5
	}
	if o.DelayBetween <= 0 {
		o.DelayBetween = 60 * time.Second
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.RetryDelayBase <= 0 {
		o.RetryDelayBase = 120 * time.Second
	}
}

// retryableFragments whitelists error text that marks a transient
// failure. Anything else is terminal for the job.
var retryableFragments = []string{
	"429",
	"too many requests",
	"rate limit",
	"taskgroup",
	"timeout",
	"connection",
	"temporary",
}

// IsRetryable classifies an error message against the whitelist,
// case-insensitively
func IsRetryable(msg string) bool {
	lower := strings.ToLower(msg)
	for _, fragment := range retryableFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

// closedFragments mark a posting that is no longer accepting applications
var closedFragments = []string{
	"no longer accepting",
	"position has been filled",
	"job is closed",
	"posting has expired",
}

// manualLoginHosts are platforms the pipeline never attempts
var manualLoginHosts = []string{"indeed.com", "glassdoor.com"}

// Pipeline drives a batch of candidate jobs for one user
type Pipeline struct {
	jobs    interfaces.JobStore
	users   interfaces.UserStore
	agent   Applier
	limiter *ratelimit.Limiter
	events  interfaces.EventService
	logger  arbor.ILogger

	// sleep is replaceable in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a pipeline
func New(jobs interfaces.JobStore, users interfaces.UserStore, agent Applier, limiter *ratelimit.Limiter, events interfaces.EventService, logger arbor.ILogger) *Pipeline {
	return &Pipeline{
		jobs:    jobs,
		users:   users,
		agent:   agent,
		limiter: limiter,
		events:  events,
		logger:  logger,
		sleep:   sleepCtx,
	}
}

// Run processes jobs for one user until the attempt budget is spent.
// jobIDs narrows the batch; when empty, ready jobs are pulled from the
// job store. The report is always returned, also on early stop.
func (p *Pipeline) Run(ctx context.Context, userID string, jobIDs []string, opts Options) (*models.PipelineReport, error) {
	opts.applyDefaults()

	report := &models.PipelineReport{
		UserID:    userID,
		StartedAt: time.Now(),
	}

	user, err := p.users.GetUser(ctx, userID)
	if err != nil {
		return report, fmt.Errorf("failed to load user %s: %w", userID, err)
	}

	jobs, err := p.selectJobs(ctx, userID, jobIDs, opts.MaxApplications)
	if err != nil {
		return report, err
	}

	mode := models.ModeSemiAuto
	if opts.AutoSubmit {
		mode = models.ModeAuto
	}

	p.logger.Info().
		Str("user_id", userID).
		Int("jobs", len(jobs)).
		Str("mode", string(mode)).
		Msg("Pipeline run started")

	attemptsUsed := 0
	for i, job := range jobs {
		if attemptsUsed >= opts.MaxApplications {
			break
		}
		select {
		case <-ctx.Done():
			return p.finishReport(ctx, report, opts), ctx.Err()
		default:
		}

		if reason := p.skipReason(job, user); reason != "" {
			p.record(ctx, report, models.Attempt{
				JobID:     job.ID,
				URL:       job.URL,
				Title:     job.Title,
				Company:   job.Company,
				Result:    models.AttemptSkipped,
				Error:     reason,
				Timestamp: time.Now(),
			})
			p.writeBack(ctx, job.ID, models.AttemptSkipped, "", "")
			continue
		}

		if err := p.limiter.Check(userID, mode); err != nil {
			p.logger.Warn().Str("user_id", userID).Err(err).Msg("Daily limit reached, stopping pipeline")
			p.record(ctx, report, models.Attempt{
				JobID:     job.ID,
				URL:       job.URL,
				Title:     job.Title,
				Company:   job.Company,
				Result:    models.AttemptSkipped,
				Error:     err.Error(),
				Timestamp: time.Now(),
			})
			break
		}

		attempt, used := p.attemptJob(ctx, job, user, mode, opts, opts.MaxApplications-attemptsUsed)
		attemptsUsed += used
		p.record(ctx, report, attempt)
		p.writeBack(ctx, job.ID, attempt.Result, string(attempt.BlockerType), attempt.BlockerMessage)

		if attempt.Result == models.AttemptSuccess {
			p.limiter.Record(userID, mode)
		}

		if i < len(jobs)-1 && attemptsUsed < opts.MaxApplications {
			if err := p.sleep(ctx, opts.DelayBetween); err != nil {
				return p.finishReport(ctx, report, opts), err
			}
		}
	}

	return p.finishReport(ctx, report, opts), nil
}

// attemptJob runs one job with retries. Returns the final attempt
// record and the number of budget units consumed.
func (p *Pipeline) attemptJob(ctx context.Context, job models.Job, user *models.UserProfile, mode models.ExecutionMode, opts Options, budget int) (models.Attempt, int) {
	attempt := models.Attempt{
		JobID:     job.ID,
		URL:       job.URL,
		Title:     job.Title,
		Company:   job.Company,
		Timestamp: time.Now(),
	}

	used := 0
	for retry := 0; ; retry++ {
		start := time.Now()
		used++

		result := p.agent.Apply(ctx, orchestrator.Request{
			UserID:           user.ID,
			JobURL:           job.URL,
			UserData:         user.FormData(),
			CVContent:        user.CVText,
			Mode:             mode,
			AutoSolveCaptcha: true,
			MaxSteps:         10,
		})

		attempt.SessionID = result.SessionID
		attempt.FilledFields = result.FilledFields
		attempt.Duration = time.Since(start)
		attempt.Retries = retry

		switch result.Status {
		case models.AppSubmitted:
			attempt.Result = models.AttemptSuccess
			return attempt, used
		case models.AppPaused:
			attempt.Result = models.AttemptPaused
			return attempt, used
		case models.AppNeedsIntervention:
			attempt.Result = models.AttemptBlocked
			if result.Blocker != nil {
				attempt.BlockerType = result.Blocker.Type
				attempt.BlockerMessage = result.Blocker.Message
			}
			return attempt, used
		}

		attempt.Error = result.Error
		if isJobClosed(result.Error) {
			attempt.Result = models.AttemptJobClosed
			return attempt, used
		}
		if !IsRetryable(result.Error) || retry >= opts.MaxRetries || used >= budget {
			attempt.Result = models.AttemptFailed
			return attempt, used
		}

		backoff := opts.RetryDelayBase * time.Duration(retry+1)
		p.logger.Warn().
			Str("job_id", job.ID).
			Str("error", result.Error).
			Str("backoff", backoff.String()).
			Int("retry", retry+1).
			Msg("Retryable failure, backing off")
		if err := p.sleep(ctx, backoff); err != nil {
			attempt.Result = models.AttemptFailed
			attempt.Error = err.Error()
			return attempt, used
		}
	}
}

// selectJobs resolves the batch: explicit IDs or ready jobs from the store
func (p *Pipeline) selectJobs(ctx context.Context, userID string, jobIDs []string, limit int) ([]models.Job, error) {
	if len(jobIDs) > 0 {
		var jobs []models.Job
		for _, id := range jobIDs {
			job, err := p.jobs.GetJob(ctx, id)
			if err != nil {
				p.logger.Warn().Err(err).Str("job_id", id).Msg("Requested job not found, skipping")
				continue
			}
			jobs = append(jobs, *job)
		}
		return jobs, nil
	}
	return p.jobs.ListJobs(ctx, userID, models.JobReady, limit)
}

// skipReason applies the platform skip rules, returning "" when the
// job may be attempted
func (p *Pipeline) skipReason(job models.Job, user *models.UserProfile) string {
	host := common.ExtractHost(job.URL)
	if host == "" {
		return "job URL is not parseable"
	}

	for _, blocked := range manualLoginHosts {
		if common.HostMatches(host, blocked) {
			return fmt.Sprintf("platform %s requires manual login", blocked)
		}
	}

	if common.HostMatches(host, "linkedin.com") && !user.LinkedInLinked {
		return "linkedin requires an active linked session"
	}
	return ""
}

// writeBack maps the attempt outcome to the job store's status
func (p *Pipeline) writeBack(ctx context.Context, jobID string, result models.AttemptResult, blockerType, blockerDetails string) {
	var status models.JobStatus
	switch result {
	case models.AttemptSuccess:
		status = models.JobApplied
	case models.AttemptPaused:
		status = models.JobReady
	case models.AttemptBlocked:
		status = models.JobBlocked
	case models.AttemptFailed, models.AttemptSkipped:
		status = models.JobInbox
	case models.AttemptJobClosed:
		status = models.JobArchived
	default:
		return
	}

	if err := p.jobs.UpdateJobStatus(ctx, jobID, status, models.BlockerType(blockerType), blockerDetails); err != nil {
		p.logger.Warn().Err(err).Str("job_id", jobID).Msg("Job status write-back failed")
	}
}

func (p *Pipeline) record(ctx context.Context, report *models.PipelineReport, attempt models.Attempt) {
	report.Attempts = append(report.Attempts, attempt)
	switch attempt.Result {
	case models.AttemptSuccess:
		report.Submitted++
	case models.AttemptPaused:
		report.Paused++
	case models.AttemptBlocked:
		report.Blocked++
	case models.AttemptFailed:
		report.Failed++
	case models.AttemptSkipped:
		report.Skipped++
	case models.AttemptJobClosed:
		report.JobsClosed++
	}

	p.logger.Info().
		Str("job_id", attempt.JobID).
		Str("result", string(attempt.Result)).
		Int("retries", attempt.Retries).
		Msg("Pipeline attempt finished")

	if p.events != nil {
		_ = p.events.Publish(ctx, interfaces.Event{
			Type:   interfaces.EventPipelineAttempt,
			UserID: report.UserID,
			Payload: map[string]interface{}{
				"job_id": attempt.JobID,
				"result": string(attempt.Result),
			},
		})
	}
}

func (p *Pipeline) finishReport(ctx context.Context, report *models.PipelineReport, opts Options) *models.PipelineReport {
	report.FinishedAt = time.Now()

	if opts.ReportsDir != "" {
		if path, err := WriteReport(report, opts.ReportsDir, opts.RenderPDF); err != nil {
			p.logger.Warn().Err(err).Msg("Failed to write pipeline report")
		} else {
			p.logger.Info().Str("path", path).Msg("Pipeline report written")
		}
	}

	if p.events != nil {
		_ = p.events.Publish(ctx, interfaces.Event{
			Type:   interfaces.EventPipelineFinished,
			UserID: report.UserID,
			Payload: map[string]interface{}{
				"submitted": report.Submitted,
				"paused":    report.Paused,
				"blocked":   report.Blocked,
				"failed":    report.Failed,
				"skipped":   report.Skipped,
			},
		})
	}
	return report
}

func isJobClosed(msg string) bool {
	lower := strings.ToLower(msg)
	for _, fragment := range closedFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
