package ats

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/peto/internal/browser"
	"github.com/ternarybob/peto/internal/interfaces"
	"github.com/ternarybob/peto/internal/models"
)

// Strategy fills and submits application forms for one ATS platform
type Strategy interface {
	// Name is the registry key, lowercase
	Name() string

	// Detect reports whether this strategy handles the page
	Detect(html, pageURL string) bool

	// AnalyzeForm inventories the visible form before filling
	AnalyzeForm(ctx context.Context, adapter interfaces.BrowserAdapter) (*models.FormAnalysis, error)

	// FillForm fills known fields from user data. Returns the mapping of
	// logical field to the value written, and per-field errors.
	FillForm(ctx context.Context, adapter interfaces.BrowserAdapter, userData map[string]string, cvPath, coverLetter string) (map[string]string, map[string]string)

	// Submit presses the submit control and confirms the outcome
	Submit(ctx context.Context, adapter interfaces.BrowserAdapter) (*models.SubmitResult, error)

	// HandleCaptcha solves and injects any CAPTCHA on the current page
	HandleCaptcha(ctx context.Context, adapter interfaces.BrowserAdapter, solver interfaces.CaptchaSolver) error

	// HandleCustomQuestions maps question locators to answers. The base
	// implementation returns an empty mapping; answering is the
	// orchestrator's concern.
	HandleCustomQuestions(ctx context.Context, adapter interfaces.BrowserAdapter, questions []models.FormField, userData map[string]string, jobContext string) map[string]string
}

// fillOrder is the deterministic order logical fields are attempted in
var fillOrder = []string{
	"first_name", "last_name", "full_name", "email",
	"phone", "phone_country_code", "linkedin", "github",
	"portfolio", "city", "country",
}

// standardFieldTokens marks fields the strategies know how to fill.
// Anything outside this set is treated as a custom question.
var standardFieldTokens = []string{
	"first_name", "last_name", "email", "phone",
	"linkedin", "github", "resume", "cv", "cover", "portfolio",
}

var successPhrases = []string{
	"thank you",
	"application received",
	"successfully submitted",
	"we'll be in touch",
}

// baseStrategy carries the declarative parts of a platform strategy:
// URL patterns, content markers, and the selector table. Platform
// constructors produce configured instances.
type baseStrategy struct {
	name           string
	urlPatterns    []*regexp.Regexp
	contentMarkers []string

	// selectors maps a logical field to CSS alternatives tried in order
	selectors map[string][]string

	submitSelectors []string

	// useJSFill switches from native typing to the script-based path
	// for platforms whose widgets swallow synthetic keystrokes
	useJSFill bool

	logger arbor.ILogger
}

func (s *baseStrategy) Name() string { return s.name }

// Detect matches URL patterns first, page content markers second
func (s *baseStrategy) Detect(html, pageURL string) bool {
	for _, re := range s.urlPatterns {
		if re.MatchString(pageURL) {
			return true
		}
	}
	lower := strings.ToLower(html)
	for _, marker := range s.contentMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// AnalyzeForm inventories visible fields and flags uploads, cover
// letter areas, and custom questions
func (s *baseStrategy) AnalyzeForm(ctx context.Context, adapter interfaces.BrowserAdapter) (*models.FormAnalysis, error) {
	dom, err := adapter.GetDOM(ctx, "", true)
	if err != nil {
		return nil, err
	}

	analysis := &models.FormAnalysis{}
	for _, field := range dom.Fields {
		if !field.Visible {
			continue
		}
		analysis.TotalFields++

		switch field.Type {
		case models.FieldFile:
			analysis.HasFileUpload = true
			continue
		case models.FieldSubmit:
			continue
		case models.FieldTextarea:
			if isCoverLetterField(field) {
				analysis.HasCoverLetter = true
				continue
			}
		}

		if !isStandardField(field) {
			analysis.CustomQuestions = append(analysis.CustomQuestions, field)
		}
	}
	return analysis, nil
}

// FillForm writes user data into the form, trying each selector
// alternative per logical field until one lands
func (s *baseStrategy) FillForm(ctx context.Context, adapter interfaces.BrowserAdapter, userData map[string]string, cvPath, coverLetter string) (map[string]string, map[string]string) {
	filled := make(map[string]string)
	errors := make(map[string]string)

	for _, field := range fillOrder {
		value := userData[field]
		if value == "" {
			continue
		}
		alternatives := s.selectors[field]
		if len(alternatives) == 0 {
			continue
		}
		if locator, ok := s.fillFirst(ctx, adapter, alternatives, value); ok {
			filled[field] = value
			s.logger.Debug().Str("field", field).Str("locator", locator).Msg("Field filled")
		} else {
			errors[field] = "no matching element accepted the value"
		}
	}

	if cvPath != "" {
		if locator, ok := s.uploadFirst(ctx, adapter, s.selectors["resume"], cvPath); ok {
			filled["resume"] = cvPath
			s.logger.Debug().Str("locator", locator).Msg("Resume attached")
		} else {
			errors["resume"] = "no file input accepted the upload"
		}
	}

	if coverLetter != "" {
		if _, ok := s.fillFirst(ctx, adapter, s.selectors["cover_letter"], coverLetter); ok {
			filled["cover_letter"] = coverLetter
		} else {
			errors["cover_letter"] = "no cover letter area found"
		}
	}

	return filled, errors
}

func (s *baseStrategy) fillFirst(ctx context.Context, adapter interfaces.BrowserAdapter, alternatives []string, value string) (string, bool) {
	for _, locator := range splitAlternatives(alternatives) {
		var res *models.ActionResult
		if s.useJSFill {
			res = adapter.Evaluate(ctx, browser.JSFillScript(locator, value))
			if res.Success {
				if ok, isBool := res.Data.(bool); isBool && !ok {
					continue
				}
			}
		} else {
			res = adapter.Fill(ctx, locator, value, models.FillOptions{ClearFirst: true, Timeout: 3 * time.Second})
		}
		if res.Success {
			return locator, true
		}
	}
	return "", false
}

func (s *baseStrategy) uploadFirst(ctx context.Context, adapter interfaces.BrowserAdapter, alternatives []string, path string) (string, bool) {
	for _, locator := range splitAlternatives(alternatives) {
		if res := adapter.Upload(ctx, locator, path); res.Success {
			return locator, true
		}
	}
	return "", false
}

// Submit clicks the first working submit control, waits briefly for a
// navigation, and scans the final page for confirmation phrases
func (s *baseStrategy) Submit(ctx context.Context, adapter interfaces.BrowserAdapter) (*models.SubmitResult, error) {
	beforeURL, _ := adapter.CurrentURL(ctx)

	clicked := false
	for _, locator := range splitAlternatives(s.submitSelectors) {
		if res := adapter.Click(ctx, locator, models.ClickOptions{Timeout: 3 * time.Second}); res.Success {
			clicked = true
			break
		}
	}
	if !clicked {
		return &models.SubmitResult{Success: false, Error: "no submit control found"}, nil
	}

	// Give the page a moment to navigate or render confirmation
	afterURL := beforeURL
	for i := 0; i < 6; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
		if u, err := adapter.CurrentURL(ctx); err == nil && u != beforeURL {
			afterURL = u
			break
		}
	}

	result := &models.SubmitResult{RedirectURL: afterURL}
	if afterURL != beforeURL {
		result.Success = true
	}

	if content, err := adapter.PageContent(ctx); err == nil {
		lower := strings.ToLower(content)
		for _, phrase := range successPhrases {
			if strings.Contains(lower, phrase) {
				result.Success = true
				result.Confirmation = phrase
				break
			}
		}
	}

	if !result.Success {
		result.Error = "no navigation or confirmation after submit"
	}
	return result, nil
}

// HandleCaptcha solves from the current page HTML and injects the token
func (s *baseStrategy) HandleCaptcha(ctx context.Context, adapter interfaces.BrowserAdapter, solver interfaces.CaptchaSolver) error {
	html, err := adapter.PageContent(ctx)
	if err != nil {
		return err
	}
	pageURL, err := adapter.CurrentURL(ctx)
	if err != nil {
		return err
	}

	solution, err := solver.SolveFromHTML(ctx, html, pageURL)
	if err != nil {
		return err
	}

	script := solver.InjectionScript(solution.Family, solution.Token)
	if res := adapter.Evaluate(ctx, script); !res.Success {
		return fmt.Errorf("token injection failed: %s", res.Error)
	}
	return nil
}

// HandleCustomQuestions leaves answering to the orchestrator
func (s *baseStrategy) HandleCustomQuestions(_ context.Context, _ interfaces.BrowserAdapter, _ []models.FormField, _ map[string]string, _ string) map[string]string {
	return map[string]string{}
}

// splitAlternatives flattens selector entries, where each entry may be
// a comma-separated list of alternatives
func splitAlternatives(entries []string) []string {
	var out []string
	for _, entry := range entries {
		for _, part := range strings.Split(entry, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func isStandardField(field models.FormField) bool {
	id := strings.ToLower(field.Name + " " + field.Label)
	id = strings.NewReplacer("-", "_", " ", "_").Replace(id)
	for _, token := range standardFieldTokens {
		if strings.Contains(id, token) {
			return true
		}
	}
	return false
}

func isCoverLetterField(field models.FormField) bool {
	id := strings.ToLower(field.Name + " " + field.Label)
	return strings.Contains(id, "cover")
}
