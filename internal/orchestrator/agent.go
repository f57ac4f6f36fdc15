package orchestrator

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/peto/internal/ats"
	"github.com/ternarybob/peto/internal/detection"
	"github.com/ternarybob/peto/internal/interfaces"
	"github.com/ternarybob/peto/internal/models"
)

// SessionService is the slice of the session manager the agent needs
type SessionService interface {
	Create(ctx context.Context, opts models.BrowserOptions) (*models.BrowserSession, error)
	Get(sessionID string) (interfaces.BrowserAdapter, error)
	Close(ctx context.Context, sessionID string) error
	Touch(sessionID string)
	UpdateLocation(sessionID, url, title string)
}

// InterventionService is the slice of the intervention layer the agent needs
type InterventionService interface {
	Create(ctx context.Context, intervention *models.Intervention, pageHTML string) (*models.Intervention, error)
}

// Request describes one application attempt
type Request struct {
	UserID           string
	JobURL           string
	UserData         map[string]string
	CVContent        string
	CVPath           string
	CoverLetter      string
	Mode             models.ExecutionMode
	AutoSolveCaptcha bool
	MaxSteps         int
}

// Result reports the attempt outcome
type Result struct {
	Status         models.ApplicationStatus
	SessionID      string
	FilledFields   map[string]string
	Blocker        *models.Blocker
	InterventionID string
	FinalURL       string
	Steps          []string
	Error          string
}

// Agent drives a single application attempt end to end: navigate,
// detect blockers, fill, and submit or pause for a human.
type Agent struct {
	sessions      SessionService
	detector      *detection.Detector
	solver        interfaces.CaptchaSolver
	registry      *ats.Registry
	interventions InterventionService
	states        interfaces.StateStore
	events        interfaces.EventService
	answerer      interfaces.QuestionAnswerer
	logger        arbor.ILogger
}

// NewAgent wires an orchestrator agent. answerer may be nil; custom
// questions then escalate to an intervention.
func NewAgent(
	sessions SessionService,
	solver interfaces.CaptchaSolver,
	registry *ats.Registry,
	interventions InterventionService,
	states interfaces.StateStore,
	events interfaces.EventService,
	answerer interfaces.QuestionAnswerer,
	logger arbor.ILogger,
) *Agent {
	return &Agent{
		sessions:      sessions,
		detector:      detection.NewDetector(),
		solver:        solver,
		registry:      registry,
		interventions: interventions,
		states:        states,
		events:        events,
		answerer:      answerer,
		logger:        logger,
	}
}

// Apply runs one application attempt
func (a *Agent) Apply(ctx context.Context, req Request) *Result {
	result := &Result{
		Status:       models.AppFailed,
		FilledFields: make(map[string]string),
	}

	if req.MaxSteps <= 0 {
		result.Error = "no steps"
		return result
	}
	if req.CVPath != "" {
		if err := validateCV(req.CVPath); err != nil {
			result.Error = fmt.Sprintf("CV validation failed: %v", err)
			return result
		}
	}

	session, err := a.sessions.Create(ctx, models.BrowserOptions{})
	if err != nil {
		result.Error = fmt.Sprintf("failed to open browser session: %v", err)
		return result
	}
	result.SessionID = session.ID

	state := &models.ApplicationState{
		SessionID: session.ID,
		UserID:    req.UserID,
		JobURL:    req.JobURL,
		Status:    models.AppInProgress,
		Mode:      req.Mode,
		UserData:  req.UserData,
		CVContent: req.CVContent,
	}
	if err := a.states.Save(ctx, state); err != nil {
		a.logger.Warn().Err(err).Str("session_id", session.ID).Msg("Failed to persist initial state")
	}

	adapter, err := a.sessions.Get(session.ID)
	if err != nil {
		result.Error = err.Error()
		return a.finish(ctx, result, state)
	}

	nav := adapter.Navigate(ctx, req.JobURL, models.WaitNetworkIdle, 0)
	if !nav.Success {
		result.Error = fmt.Sprintf("navigation failed: %s", nav.Error)
		return a.finish(ctx, result, state)
	}
	a.step(ctx, result, state, "navigated")
	a.sessions.UpdateLocation(session.ID, nav.FinalURL, nav.PageTitle)

	return a.run(ctx, req, result, state, adapter)
}

// Resume continues a paused or intervention-blocked session after a
// human acted. The browser context is rebuilt from persisted cookies
// and URL; a live browser is never kept across process restarts.
func (a *Agent) Resume(ctx context.Context, sessionID string, req Request) *Result {
	result := &Result{
		Status:       models.AppFailed,
		FilledFields: make(map[string]string),
	}

	state, err := a.states.Load(ctx, sessionID)
	if err != nil {
		result.Error = fmt.Sprintf("no resumable state: %v", err)
		return result
	}
	if state.Status != models.AppPaused && state.Status != models.AppNeedsIntervention {
		result.Error = fmt.Sprintf("session %s is %s, not resumable", sessionID, state.Status)
		return result
	}
	if !state.Browser.HasState() {
		result.Error = "no browser state persisted for this session"
		return result
	}

	if req.MaxSteps <= 0 {
		req.MaxSteps = 10
	}
	if req.UserData == nil {
		req.UserData = state.UserData
	}
	if req.CVContent == "" {
		req.CVContent = state.CVContent
	}
	req.UserID = state.UserID
	req.JobURL = state.JobURL
	if req.Mode == "" {
		req.Mode = state.Mode
	}

	session, err := a.sessions.Create(ctx, models.BrowserOptions{})
	if err != nil {
		result.Error = fmt.Sprintf("failed to open browser session: %v", err)
		return result
	}

	// Carry the durable record over to the new browser session
	oldID := state.SessionID
	state.SessionID = session.ID
	state.Status = models.AppInProgress
	state.PausedAt = nil
	result.SessionID = session.ID
	result.FilledFields = state.FilledFields
	if result.FilledFields == nil {
		result.FilledFields = make(map[string]string)
	}
	if err := a.states.Save(ctx, state); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to persist resumed state")
	}
	if err := a.states.Delete(ctx, oldID); err != nil && oldID != session.ID {
		a.logger.Debug().Err(err).Str("session_id", oldID).Msg("Old state record not removed")
	}

	adapter, err := a.sessions.Get(session.ID)
	if err != nil {
		result.Error = err.Error()
		return a.finish(ctx, result, state)
	}

	if len(state.Browser.Cookies) > 0 {
		if err := adapter.SetCookies(ctx, state.Browser.Cookies); err != nil {
			a.logger.Warn().Err(err).Msg("Cookie restore failed, continuing without")
		}
	}

	target := state.Browser.URL
	if target == "" {
		target = state.JobURL
	}
	nav := adapter.Navigate(ctx, target, models.WaitNetworkIdle, 0)
	if !nav.Success {
		result.Error = fmt.Sprintf("navigation failed on resume: %s", nav.Error)
		return a.finish(ctx, result, state)
	}
	a.step(ctx, result, state, "resumed")

	return a.run(ctx, req, result, state, adapter)
}

// run is the shared step loop for fresh and resumed attempts
func (a *Agent) run(ctx context.Context, req Request, result *Result, state *models.ApplicationState, adapter interfaces.BrowserAdapter) *Result {
	for stepNum := 0; stepNum < req.MaxSteps; stepNum++ {
		select {
		case <-ctx.Done():
			result.Error = ctx.Err().Error()
			return a.finish(ctx, result, state)
		default:
		}
		a.sessions.Touch(state.SessionID)

		html, err := adapter.PageContent(ctx)
		if err != nil {
			result.Error = fmt.Sprintf("failed to read page: %v", err)
			return a.finish(ctx, result, state)
		}
		pageURL, _ := adapter.CurrentURL(ctx)
		result.FinalURL = pageURL

		blockers := a.detector.Detect(html, pageURL)
		if blocker := findBlocker(blockers, models.BlockerCaptcha); blocker != nil {
			if req.AutoSolveCaptcha && a.solver != nil {
				if err := a.solveCaptcha(ctx, adapter, html, pageURL); err != nil {
					a.logger.Warn().Err(err).Str("session_id", state.SessionID).Msg("Captcha solve failed")
					return a.escalate(ctx, result, state, adapter, blocker, models.InterventionCaptcha, html)
				}
				a.step(ctx, result, state, "captcha_solved")
			} else {
				return a.escalate(ctx, result, state, adapter, blocker, models.InterventionCaptcha, html)
			}
		}
		if blocker := findBlocker(blockers, models.BlockerLoginRequired); blocker != nil {
			return a.escalate(ctx, result, state, adapter, blocker, models.InterventionLoginRequired, html)
		}

		strategy := a.registry.Identify(html, pageURL)
		a.logger.Info().
			Str("session_id", state.SessionID).
			Str("strategy", strategy.Name()).
			Int("step", stepNum).
			Msg("Strategy selected")

		analysis, err := strategy.AnalyzeForm(ctx, adapter)
		if err != nil {
			result.Error = fmt.Sprintf("form analysis failed: %v", err)
			return a.finish(ctx, result, state)
		}

		filled, fillErrors := strategy.FillForm(ctx, adapter, req.UserData, req.CVPath, req.CoverLetter)
		for k, v := range filled {
			result.FilledFields[k] = v
		}
		a.stepWithFields(ctx, result, state, "form_filled", filled)

		if len(analysis.CustomQuestions) > 0 {
			if err := a.answerQuestions(ctx, req, result, state, adapter, strategy, analysis.CustomQuestions); err != nil {
				blocker := &models.Blocker{
					Type:    models.BlockerUnknown,
					Message: fmt.Sprintf("unanswered custom questions: %v", err),
				}
				return a.escalate(ctx, result, state, adapter, blocker, models.InterventionUnknown, html)
			}
		}
		if len(fillErrors) > 0 {
			a.logger.Warn().
				Str("session_id", state.SessionID).
				Int("errors", len(fillErrors)).
				Msg("Some fields could not be filled")
		}

		if req.Mode == models.ModeAssisted {
			blocker := &models.Blocker{
				Type:            models.BlockerUnknown,
				Message:         "Form filled, awaiting human review before submit",
				SuggestedAction: "review the form, then resolve with continue",
			}
			return a.pause(ctx, result, state, adapter, blocker, models.InterventionPreSubmit, html)
		}

		submit, err := strategy.Submit(ctx, adapter)
		if err != nil {
			result.Error = fmt.Sprintf("submit failed: %v", err)
			return a.finish(ctx, result, state)
		}
		if submit.Success {
			result.Status = models.AppSubmitted
			result.FinalURL = submit.RedirectURL
			a.step(ctx, result, state, "submitted")
			return a.finish(ctx, result, state)
		}

		a.logger.Info().
			Str("session_id", state.SessionID).
			Str("error", submit.Error).
			Msg("Submit did not confirm, re-inspecting page")
		a.step(ctx, result, state, "submit_retry")
	}

	result.Error = "max steps exceeded without submission"
	return a.finish(ctx, result, state)
}

// solveCaptcha solves from HTML and injects the token into the page
func (a *Agent) solveCaptcha(ctx context.Context, adapter interfaces.BrowserAdapter, html, pageURL string) error {
	solution, err := a.solver.SolveFromHTML(ctx, html, pageURL)
	if err != nil {
		return err
	}
	script := a.solver.InjectionScript(solution.Family, solution.Token)
	if res := adapter.Evaluate(ctx, script); !res.Success {
		return fmt.Errorf("token injection failed: %s", res.Error)
	}
	a.logger.Info().
		Str("family", string(solution.Family)).
		Dur("elapsed", solution.Elapsed).
		Msg("Captcha solved and injected")
	return nil
}

// answerQuestions fills custom questions via the answering collaborator
func (a *Agent) answerQuestions(ctx context.Context, req Request, result *Result, state *models.ApplicationState, adapter interfaces.BrowserAdapter, strategy ats.Strategy, questions []models.FormField) error {
	answers := strategy.HandleCustomQuestions(ctx, adapter, questions, req.UserData, "")

	var unanswered []models.FormField
	for _, q := range questions {
		if _, ok := answers[q.Locator]; !ok {
			unanswered = append(unanswered, q)
		}
	}

	if len(unanswered) > 0 {
		if a.answerer == nil {
			return fmt.Errorf("%d custom questions with no answering collaborator", len(unanswered))
		}
		for _, q := range unanswered {
			question := q.Label
			if question == "" {
				question = q.Name
			}
			answer, err := a.answerer.Answer(ctx, question, req.UserData, req.CVContent, req.JobURL)
			if err != nil {
				return fmt.Errorf("question %q: %w", question, err)
			}
			answers[q.Locator] = answer
		}
	}

	filled := make(map[string]string)
	for locator, answer := range answers {
		if res := adapter.Fill(ctx, locator, answer, models.FillOptions{ClearFirst: true}); res.Success {
			filled[locator] = answer
			result.FilledFields[locator] = answer
		} else {
			return fmt.Errorf("failed to fill answer at %s: %s", locator, res.Error)
		}
	}
	if len(filled) > 0 {
		a.stepWithFields(ctx, result, state, "questions_answered", filled)
	}
	return nil
}

// escalate records an intervention and parks the attempt as
// needs_intervention, keeping the browser session for the human
func (a *Agent) escalate(ctx context.Context, result *Result, state *models.ApplicationState, adapter interfaces.BrowserAdapter, blocker *models.Blocker, kind models.InterventionType, html string) *Result {
	result.Status = models.AppNeedsIntervention
	result.Blocker = blocker
	return a.park(ctx, result, state, adapter, blocker, kind, html, models.AppNeedsIntervention)
}

// pause parks an assisted attempt before submit
func (a *Agent) pause(ctx context.Context, result *Result, state *models.ApplicationState, adapter interfaces.BrowserAdapter, blocker *models.Blocker, kind models.InterventionType, html string) *Result {
	result.Status = models.AppPaused
	return a.park(ctx, result, state, adapter, blocker, kind, html, models.AppPaused)
}

func (a *Agent) park(ctx context.Context, result *Result, state *models.ApplicationState, adapter interfaces.BrowserAdapter, blocker *models.Blocker, kind models.InterventionType, html string, status models.ApplicationStatus) *Result {
	pageURL, _ := adapter.CurrentURL(ctx)
	result.FinalURL = pageURL

	// Persist browser context so the attempt survives a restart
	cookies, err := adapter.GetCookies(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Cookie capture failed")
	}
	if err := a.states.SaveBrowserState(ctx, state.SessionID, models.BrowserState{
		Cookies: cookies,
		URL:     pageURL,
	}); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to persist browser state")
	}

	intervention, err := a.interventions.Create(ctx, &models.Intervention{
		SessionID:   state.SessionID,
		UserID:      state.UserID,
		Type:        kind,
		Title:       blocker.Message,
		Description: blocker.SuggestedAction,
		CurrentURL:  pageURL,
	}, html)
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to create intervention")
	} else {
		result.InterventionID = intervention.ID
		state.InterventionID = intervention.ID
	}

	state.BlockerType = blocker.Type
	state.BlockerMessage = blocker.Message
	state.Status = status
	now := time.Now()
	state.PausedAt = &now
	if err := a.states.Save(ctx, state); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to persist paused state")
	}

	a.broadcastStatus(ctx, state, status)

	// The live session stays open for the human until the idle reaper
	// takes it; durable state allows resumption either way.
	return result
}

// finish persists the terminal status and closes the browser session
func (a *Agent) finish(ctx context.Context, result *Result, state *models.ApplicationState) *Result {
	state.Status = result.Status
	state.BlockerMessage = result.Error
	if err := a.states.Save(ctx, state); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to persist final state")
	}
	a.broadcastStatus(ctx, state, result.Status)

	if result.Status.IsTerminal() && result.SessionID != "" {
		if err := a.sessions.Close(ctx, result.SessionID); err != nil {
			a.logger.Debug().Err(err).Str("session_id", result.SessionID).Msg("Session close after finish")
		}
	}
	return result
}

func (a *Agent) step(ctx context.Context, result *Result, state *models.ApplicationState, name string) {
	a.stepWithFields(ctx, result, state, name, nil)
}

func (a *Agent) stepWithFields(ctx context.Context, result *Result, state *models.ApplicationState, name string, filled map[string]string) {
	result.Steps = append(result.Steps, name)
	state.CurrentStep = len(result.Steps)
	state.CompletedSteps = append(state.CompletedSteps, name)

	if err := a.states.UpdateProgress(ctx, state.SessionID, state.CurrentStep, name, filled); err != nil {
		a.logger.Debug().Err(err).Str("step", name).Msg("Progress update not persisted")
	}

	if a.events != nil {
		_ = a.events.Publish(ctx, interfaces.Event{
			Type:      interfaces.EventApplicationProgress,
			SessionID: state.SessionID,
			UserID:    state.UserID,
			Payload: map[string]interface{}{
				"step":     name,
				"step_num": state.CurrentStep,
				"job_url":  state.JobURL,
			},
		})
	}
}

func (a *Agent) broadcastStatus(ctx context.Context, state *models.ApplicationState, status models.ApplicationStatus) {
	if a.events == nil {
		return
	}
	_ = a.events.Publish(ctx, interfaces.Event{
		Type:      interfaces.EventApplicationProgress,
		SessionID: state.SessionID,
		UserID:    state.UserID,
		Payload: map[string]interface{}{
			"status":  string(status),
			"job_url": state.JobURL,
		},
	})
}

func findBlocker(blockers []models.Blocker, kind models.BlockerType) *models.Blocker {
	for i := range blockers {
		if blockers[i].Type == kind {
			return &blockers[i]
		}
	}
	return nil
}

// validateCV checks that the CV file exists and, for PDFs, parses as a
// well-formed document before it is pushed into an upload widget
func validateCV(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("CV file not readable: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("CV path %s is a directory", path)
	}
	if !strings.HasSuffix(strings.ToLower(path), ".pdf") {
		return nil
	}
	conf := model.NewDefaultConfiguration()
	if err := api.ValidateFile(path, conf); err != nil {
		return fmt.Errorf("not a valid PDF: %w", err)
	}
	return nil
}
