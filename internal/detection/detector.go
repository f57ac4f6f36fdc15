package detection

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/peto/internal/models"
)

// Detector inspects page HTML for conditions that stop automated form
// filling. Detection is pure: no browser calls, HTML and URL in,
// blockers out.
type Detector struct{}

// NewDetector creates a blocker detector
func NewDetector() *Detector {
	return &Detector{}
}

// captchaMarkers maps CAPTCHA families to HTML fingerprints. Order
// matters: Turnstile pages often embed recaptcha fallback scripts, so
// the more specific families are checked first.
var captchaMarkers = []struct {
	family  models.CaptchaFamily
	markers []string
}{
	{models.CaptchaTurnstile, []string{
		"cf-turnstile",
		"challenges.cloudflare.com/turnstile",
		"__cf_bm",
		"challenge-platform",
		"turnstile",
	}},
	{models.CaptchaHCaptcha, []string{
		"h-captcha",
		"hcaptcha.com",
		"hcaptcha-response",
	}},
	{models.CaptchaRecaptchaV3, []string{
		"recaptcha/api.js?render=",
		"grecaptcha.execute",
	}},
	{models.CaptchaRecaptchaV2, []string{
		"g-recaptcha",
		"recaptcha.net",
		"grecaptcha",
		"recaptcha-response",
		"google.com/recaptcha/api.js",
	}},
}

var loginURLRe = regexp.MustCompile(`(?i)/(sign[-_]?in|log[-_]?in|auth|sso|account/login)(/|\?|$)`)

var loginPhrases = []string{
	"sign in to continue",
	"log in to continue",
	"sign in to apply",
	"log in to apply",
	"please sign in",
	"please log in",
	"login required",
	"session expired",
	"authentication required",
	"create an account to apply",
	"you must be logged in",
}

// applyContextWords mark pages that collect a password as part of an
// application (account creation on submit), which is not a login wall
var applyContextWords = []string{
	"apply", "application", "resume", "cover letter", "cv",
}

var stepOfRe = regexp.MustCompile(`(?i)\b(?:step|page)\s+(\d+)\s+(?:of|/)\s+(\d+)\b`)

// wizardClasses mark multi-step forms that do not print a step counter
var wizardClasses = []string{
	"multi-step",
	"multistep",
	"form-wizard",
	"wizard-step",
}

var eligibilityLocationRe = regexp.MustCompile(`(?i)\beligibility\b[^.!?]{0,120}\blocation\b`)

var locationPhrases = []string{
	"location requirement",
	"not available in your location",
	"not available in your region",
	"not available in your country",
	"position is only open to candidates",
	"must be located in",
	"must reside in",
	"work authorization",
	"not accepting applications from your",
}

// Detect returns all blockers present on the page, most severe first:
// CAPTCHA, then login wall, then multi-step form, then location
// restrictions. An unparseable document yields no blockers.
func (d *Detector) Detect(html, pageURL string) []models.Blocker {
	var blockers []models.Blocker

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	lower := strings.ToLower(html)
	text := strings.ToLower(doc.Text())

	if family := d.DetectCaptchaFamily(html); family != "" {
		blockers = append(blockers, models.Blocker{
			Type:            models.BlockerCaptcha,
			Subtype:         string(family),
			Message:         "CAPTCHA challenge detected (" + string(family) + ")",
			SuggestedAction: "solve automatically or escalate to a human",
		})
	}

	if b := d.detectLogin(doc, lower, text, pageURL); b != nil {
		blockers = append(blockers, *b)
	}

	if b := d.detectMultiStep(text, lower); b != nil {
		blockers = append(blockers, *b)
	}

	if b := d.detectLocationMismatch(text); b != nil {
		blockers = append(blockers, *b)
	}

	return blockers
}

// DetectCaptchaFamily identifies which CAPTCHA provider is embedded in
// the page, or "" when none is present
func (d *Detector) DetectCaptchaFamily(html string) models.CaptchaFamily {
	lower := strings.ToLower(html)
	for _, entry := range captchaMarkers {
		for _, marker := range entry.markers {
			if strings.Contains(lower, marker) {
				return entry.family
			}
		}
	}
	return ""
}

func (d *Detector) detectLogin(doc *goquery.Document, lowerHTML, text, pageURL string) *models.Blocker {
	blocker := &models.Blocker{
		Type:            models.BlockerLoginRequired,
		Message:         "Page requires authentication before the form can be filled",
		SuggestedAction: "log in manually, then resume the session",
	}

	if loginURLRe.MatchString(pageURL) {
		blocker.Subtype = "login_url"
		return blocker
	}

	for _, phrase := range loginPhrases {
		if strings.Contains(text, phrase) {
			blocker.Subtype = "login_phrase"
			blocker.Message = "Page says: " + phrase
			return blocker
		}
	}

	// Structural check: a password field plus a login-looking action,
	// unless the page reads like an application form that happens to
	// create an account on submit.
	hasPassword := doc.Find(`input[type="password"]`).Length() > 0
	if !hasPassword {
		return nil
	}
	for _, word := range applyContextWords {
		if strings.Contains(text, word) {
			return nil
		}
	}

	loginAction := false
	doc.Find("button, input[type=submit], a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		label := strings.ToLower(strings.TrimSpace(s.Text()))
		if label == "" {
			label = strings.ToLower(s.AttrOr("value", ""))
		}
		if strings.Contains(label, "sign in") || strings.Contains(label, "log in") || strings.Contains(label, "login") {
			loginAction = true
			return false
		}
		return true
	})
	if loginAction {
		blocker.Subtype = "login_form"
		return blocker
	}
	return nil
}

func (d *Detector) detectMultiStep(text, lowerHTML string) *models.Blocker {
	if m := stepOfRe.FindStringSubmatch(text); m != nil {
		return &models.Blocker{
			Type:            models.BlockerMultiStepForm,
			Subtype:         "step_" + m[1] + "_of_" + m[2],
			Message:         "Multi-step application form (step " + m[1] + " of " + m[2] + ")",
			SuggestedAction: "fill the visible step, then advance",
		}
	}
	for _, class := range wizardClasses {
		if strings.Contains(lowerHTML, class) {
			return &models.Blocker{
				Type:            models.BlockerMultiStepForm,
				Subtype:         "wizard",
				Message:         "Multi-step wizard form detected",
				SuggestedAction: "fill the visible step, then advance",
			}
		}
	}
	return nil
}

func (d *Detector) detectLocationMismatch(text string) *models.Blocker {
	for _, phrase := range locationPhrases {
		if strings.Contains(text, phrase) {
			return &models.Blocker{
				Type:            models.BlockerLocationMismatch,
				Message:         "Page says: " + phrase,
				SuggestedAction: "review eligibility before continuing",
			}
		}
	}
	if eligibilityLocationRe.MatchString(text) {
		return &models.Blocker{
			Type:            models.BlockerLocationMismatch,
			Message:         "Page mentions a location eligibility restriction",
			SuggestedAction: "review eligibility before continuing",
		}
	}
	return nil
}
