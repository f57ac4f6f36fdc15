package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/peto/internal/models"
	"github.com/ternarybob/peto/internal/orchestrator"
	"github.com/ternarybob/peto/internal/ratelimit"
)

// fakeJobStore serves a fixed job list and records status updates
type fakeJobStore struct {
	jobs     map[string]models.Job
	order    []string
	statuses map[string]models.JobStatus
}

func newFakeJobStore(jobs ...models.Job) *fakeJobStore {
	s := &fakeJobStore{
		jobs:     make(map[string]models.Job),
		statuses: make(map[string]models.JobStatus),
	}
	for _, j := range jobs {
		s.jobs[j.ID] = j
		s.order = append(s.order, j.ID)
	}
	return s
}

func (s *fakeJobStore) ListJobs(_ context.Context, _ string, _ models.JobStatus, limit int) ([]models.Job, error) {
	var out []models.Job
	for _, id := range s.order {
		if len(out) >= limit {
			break
		}
		out = append(out, s.jobs[id])
	}
	return out, nil
}

func (s *fakeJobStore) GetJob(_ context.Context, id string) (*models.Job, error) {
	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job not found: %s", id)
	}
	return &j, nil
}

func (s *fakeJobStore) UpdateJobStatus(_ context.Context, id string, status models.JobStatus, _ models.BlockerType, _ string) error {
	s.statuses[id] = status
	return nil
}

// fakeUserStore serves one profile
type fakeUserStore struct {
	user models.UserProfile
}

func (s *fakeUserStore) GetUser(context.Context, string) (*models.UserProfile, error) {
	u := s.user
	return &u, nil
}
func (s *fakeUserStore) GetLinkedInStatus(context.Context, string) (bool, error) {
	return s.user.LinkedInLinked, nil
}

// scriptedAgent returns canned results per job URL, in call order
type scriptedAgent struct {
	results map[string][]*orchestrator.Result
	calls   []string
}

func (a *scriptedAgent) Apply(_ context.Context, req orchestrator.Request) *orchestrator.Result {
	a.calls = append(a.calls, req.JobURL)
	queue := a.results[req.JobURL]
	if len(queue) == 0 {
		return &orchestrator.Result{Status: models.AppFailed, Error: "unscripted"}
	}
	result := queue[0]
	a.results[req.JobURL] = queue[1:]
	return result
}

func job(id, url string) models.Job {
	return models.Job{ID: id, URL: url, Title: "Engineer " + id, Company: "Acme", UserID: "user_1", Status: models.JobReady}
}

func submitted() *orchestrator.Result {
	return &orchestrator.Result{Status: models.AppSubmitted, SessionID: "sess_x"}
}

func newTestPipeline(jobs *fakeJobStore, agent *scriptedAgent) *Pipeline {
	logger := arbor.NewLogger()
	users := &fakeUserStore{user: models.UserProfile{ID: "user_1", FirstName: "Jane", Email: "jane@example.com"}}
	p := New(jobs, users, agent, ratelimit.NewLimiter(10, 5, logger), nil, logger)
	p.sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

func fastOpts() Options {
	return Options{
		MaxApplications: 5,
		DelayBetween:    time.Millisecond,
		MaxRetries:      3,
		RetryDelayBase:  time.Millisecond,
	}
}

func TestRunAppliesAndWritesBack(t *testing.T) {
	jobs := newFakeJobStore(
		job("j1", "https://boards.greenhouse.io/acme/jobs/1"),
		job("j2", "https://jobs.lever.co/acme/2"),
	)
	agent := &scriptedAgent{results: map[string][]*orchestrator.Result{
		"https://boards.greenhouse.io/acme/jobs/1": {submitted()},
		"https://jobs.lever.co/acme/2":             {{Status: models.AppNeedsIntervention, Blocker: &models.Blocker{Type: models.BlockerCaptcha, Message: "captcha"}}},
	}}

	p := newTestPipeline(jobs, agent)
	report, err := p.Run(context.Background(), "user_1", nil, fastOpts())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Submitted)
	assert.Equal(t, 1, report.Blocked)
	require.Len(t, report.Attempts, 2)

	assert.Equal(t, models.JobApplied, jobs.statuses["j1"])
	assert.Equal(t, models.JobBlocked, jobs.statuses["j2"])
}

func TestRetryableFailureBacksOffThenSucceeds(t *testing.T) {
	jobs := newFakeJobStore(job("j1", "https://boards.greenhouse.io/acme/jobs/1"))
	agent := &scriptedAgent{results: map[string][]*orchestrator.Result{
		"https://boards.greenhouse.io/acme/jobs/1": {
			{Status: models.AppFailed, Error: "navigation failed: connection reset"},
			{Status: models.AppFailed, Error: "HTTP 429 too many requests"},
			submitted(),
		},
	}}

	p := newTestPipeline(jobs, agent)
	var delays []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	opts := fastOpts()
	opts.RetryDelayBase = 120 * time.Millisecond
	report, err := p.Run(context.Background(), "user_1", nil, opts)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Submitted)
	require.Len(t, report.Attempts, 1)
	assert.Equal(t, 2, report.Attempts[0].Retries)

	// Linear backoff: base*1 then base*2
	require.GreaterOrEqual(t, len(delays), 2)
	assert.Equal(t, 120*time.Millisecond, delays[0])
	assert.Equal(t, 240*time.Millisecond, delays[1])
}

func TestTerminalErrorDoesNotRetry(t *testing.T) {
	jobs := newFakeJobStore(job("j1", "https://boards.greenhouse.io/acme/jobs/1"))
	agent := &scriptedAgent{results: map[string][]*orchestrator.Result{
		"https://boards.greenhouse.io/acme/jobs/1": {
			{Status: models.AppFailed, Error: "form analysis failed: malformed page"},
		},
	}}

	p := newTestPipeline(jobs, agent)
	report, err := p.Run(context.Background(), "user_1", nil, fastOpts())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Failed)
	assert.Len(t, agent.calls, 1)
	assert.Equal(t, models.JobInbox, jobs.statuses["j1"])
}

func TestRetriesCountAgainstBudget(t *testing.T) {
	jobs := newFakeJobStore(
		job("j1", "https://boards.greenhouse.io/acme/jobs/1"),
		job("j2", "https://jobs.lever.co/acme/2"),
	)
	agent := &scriptedAgent{results: map[string][]*orchestrator.Result{
		"https://boards.greenhouse.io/acme/jobs/1": {
			{Status: models.AppFailed, Error: "timeout"},
			{Status: models.AppFailed, Error: "timeout"},
			{Status: models.AppFailed, Error: "timeout"},
		},
		"https://jobs.lever.co/acme/2": {submitted()},
	}}

	p := newTestPipeline(jobs, agent)
	opts := fastOpts()
	opts.MaxApplications = 3
	report, err := p.Run(context.Background(), "user_1", nil, opts)
	require.NoError(t, err)

	// The whole budget went to j1's retries; j2 was never attempted
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 0, report.Submitted)
	assert.Len(t, agent.calls, 3)
}

func TestSkipRules(t *testing.T) {
	jobs := newFakeJobStore(
		job("j1", "https://www.indeed.com/viewjob?jk=1"),
		job("j2", "https://www.glassdoor.com/job/2"),
		job("j3", "https://www.linkedin.com/jobs/view/3"),
		job("j4", "https://boards.greenhouse.io/acme/jobs/4"),
	)
	agent := &scriptedAgent{results: map[string][]*orchestrator.Result{
		"https://boards.greenhouse.io/acme/jobs/4": {submitted()},
	}}

	p := newTestPipeline(jobs, agent)
	report, err := p.Run(context.Background(), "user_1", nil, fastOpts())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Skipped)
	assert.Equal(t, 1, report.Submitted)
	assert.Len(t, agent.calls, 1)
	assert.Equal(t, models.JobInbox, jobs.statuses["j1"])
	assert.Equal(t, models.JobInbox, jobs.statuses["j3"])
}

func TestLinkedInAllowedWithLinkedSession(t *testing.T) {
	jobs := newFakeJobStore(job("j1", "https://www.linkedin.com/jobs/view/1"))
	agent := &scriptedAgent{results: map[string][]*orchestrator.Result{
		"https://www.linkedin.com/jobs/view/1": {submitted()},
	}}

	logger := arbor.NewLogger()
	users := &fakeUserStore{user: models.UserProfile{ID: "user_1", LinkedInLinked: true}}
	p := New(jobs, users, agent, ratelimit.NewLimiter(10, 5, logger), nil, logger)
	p.sleep = func(context.Context, time.Duration) error { return nil }

	report, err := p.Run(context.Background(), "user_1", nil, fastOpts())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Submitted)
}

func TestJobClosedArchives(t *testing.T) {
	jobs := newFakeJobStore(job("j1", "https://boards.greenhouse.io/acme/jobs/1"))
	agent := &scriptedAgent{results: map[string][]*orchestrator.Result{
		"https://boards.greenhouse.io/acme/jobs/1": {
			{Status: models.AppFailed, Error: "this posting is no longer accepting applications"},
		},
	}}

	p := newTestPipeline(jobs, agent)
	report, err := p.Run(context.Background(), "user_1", nil, fastOpts())
	require.NoError(t, err)

	assert.Equal(t, 1, report.JobsClosed)
	assert.Equal(t, models.JobArchived, jobs.statuses["j1"])
}

func TestRateLimitStopsPipeline(t *testing.T) {
	jobs := newFakeJobStore(
		job("j1", "https://boards.greenhouse.io/acme/jobs/1"),
		job("j2", "https://jobs.lever.co/acme/2"),
	)
	agent := &scriptedAgent{results: map[string][]*orchestrator.Result{
		"https://boards.greenhouse.io/acme/jobs/1": {submitted()},
		"https://jobs.lever.co/acme/2":             {submitted()},
	}}

	logger := arbor.NewLogger()
	users := &fakeUserStore{user: models.UserProfile{ID: "user_1"}}
	// Combined automated cap of 1: the second job must be refused
	p := New(jobs, users, agent, ratelimit.NewLimiter(1, 1, logger), nil, logger)
	p.sleep = func(context.Context, time.Duration) error { return nil }

	report, err := p.Run(context.Background(), "user_1", nil, fastOpts())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Submitted)
	assert.Equal(t, 1, report.Skipped)
	assert.Len(t, agent.calls, 1)
	assert.Contains(t, report.Attempts[1].Error, "daily limit")
}

func TestExplicitJobIDs(t *testing.T) {
	jobs := newFakeJobStore(
		job("j1", "https://boards.greenhouse.io/acme/jobs/1"),
		job("j2", "https://jobs.lever.co/acme/2"),
	)
	agent := &scriptedAgent{results: map[string][]*orchestrator.Result{
		"https://jobs.lever.co/acme/2": {submitted()},
	}}

	p := newTestPipeline(jobs, agent)
	report, err := p.Run(context.Background(), "user_1", []string{"j2", "j_missing"}, fastOpts())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Submitted)
	assert.Len(t, agent.calls, 1)
}

func TestReportWrittenToDisk(t *testing.T) {
	jobs := newFakeJobStore(job("j1", "https://boards.greenhouse.io/acme/jobs/1"))
	agent := &scriptedAgent{results: map[string][]*orchestrator.Result{
		"https://boards.greenhouse.io/acme/jobs/1": {submitted()},
	}}

	dir := t.TempDir()
	p := newTestPipeline(jobs, agent)
	opts := fastOpts()
	opts.ReportsDir = dir
	opts.RenderPDF = true

	_, err := p.Run(context.Background(), "user_1", nil, opts)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var jsonFound, pdfFound bool
	for _, e := range entries {
		switch filepath.Ext(e.Name()) {
		case ".json":
			jsonFound = true
		case ".pdf":
			pdfFound = true
		}
	}
	assert.True(t, jsonFound, "JSON report missing")
	assert.True(t, pdfFound, "PDF report missing")
}

func TestZeroBudgetWritesEmptyReport(t *testing.T) {
	jobs := newFakeJobStore(job("j1", "https://boards.greenhouse.io/acme/jobs/1"))
	agent := &scriptedAgent{results: map[string][]*orchestrator.Result{}}

	dir := t.TempDir()
	p := newTestPipeline(jobs, agent)
	opts := fastOpts()
	opts.MaxApplications = 0
	opts.ReportsDir = dir

	report, err := p.Run(context.Background(), "user_1", nil, opts)
	require.NoError(t, err)

	assert.Empty(t, report.Attempts)
	assert.Empty(t, agent.calls)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable("HTTP 429 Too Many Requests"))
	assert.True(t, IsRetryable("rate limit exceeded"))
	assert.True(t, IsRetryable("TaskGroup aborted"))
	assert.True(t, IsRetryable("dial tcp: connection refused"))
	assert.True(t, IsRetryable("context deadline exceeded: timeout"))
	assert.False(t, IsRetryable("invalid credentials"))
	assert.False(t, IsRetryable("form analysis failed"))
}
