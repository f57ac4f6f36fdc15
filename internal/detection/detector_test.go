package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/peto/internal/models"
)

func TestDetectCaptchaFamily(t *testing.T) {
	d := NewDetector()

	tests := []struct {
		name   string
		html   string
		family models.CaptchaFamily
	}{
		{"turnstile widget", `<div class="cf-turnstile" data-sitekey="0x4AAA"></div>`, models.CaptchaTurnstile},
		{"turnstile script", `<script src="https://challenges.cloudflare.com/turnstile/v0/api.js"></script>`, models.CaptchaTurnstile},
		{"cloudflare bot cookie", `<script>document.cookie = "__cf_bm=abc";</script>`, models.CaptchaTurnstile},
		{"challenge platform", `<script src="/cdn-cgi/challenge-platform/h/b/orchestrate.js"></script>`, models.CaptchaTurnstile},
		{"hcaptcha", `<div class="h-captcha" data-sitekey="10000000-ffff"></div>`, models.CaptchaHCaptcha},
		{"hcaptcha domain", `<script src="https://js.hcaptcha.com/1/api.js"></script>`, models.CaptchaHCaptcha},
		{"hcaptcha response field", `<textarea name="hcaptcha-response"></textarea>`, models.CaptchaHCaptcha},
		{"recaptcha v2", `<div class="g-recaptcha" data-sitekey="6LeIxAcT"></div>`, models.CaptchaRecaptchaV2},
		{"recaptcha mirror domain", `<script src="https://www.recaptcha.net/recaptcha/api.js"></script>`, models.CaptchaRecaptchaV2},
		{"grecaptcha object", `<script>window.grecaptcha.render("c");</script>`, models.CaptchaRecaptchaV2},
		{"recaptcha response field", `<textarea name="g-recaptcha-response"></textarea>`, models.CaptchaRecaptchaV2},
		{"recaptcha v3", `<script src="https://www.google.com/recaptcha/api.js?render=6LeIxAcT"></script>`, models.CaptchaRecaptchaV3},
		{"clean page", `<form><input type="email" name="email"></form>`, models.CaptchaFamily("")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.family, d.DetectCaptchaFamily(tt.html))
		})
	}
}

func TestDetectLoginByURL(t *testing.T) {
	d := NewDetector()

	blockers := d.Detect("<html><body></body></html>", "https://jobs.example.com/sign-in?next=/apply")
	require.Len(t, blockers, 1)
	assert.Equal(t, models.BlockerLoginRequired, blockers[0].Type)
	assert.Equal(t, "login_url", blockers[0].Subtype)

	blockers = d.Detect("<html><body></body></html>", "https://jobs.example.com/apply/engineer")
	assert.Empty(t, blockers)
}

func TestDetectLoginByPhrase(t *testing.T) {
	d := NewDetector()

	tests := []struct {
		name string
		html string
	}{
		{"sign in", `<html><body><p>Please sign in to continue with your application.</p></body></html>`},
		{"session expired", `<html><body><p>Session expired. Start again.</p></body></html>`},
		{"authentication required", `<html><body><p>Authentication required to view this posting.</p></body></html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blockers := d.Detect(tt.html, "https://example.com/jobs/123")
			require.Len(t, blockers, 1)
			assert.Equal(t, models.BlockerLoginRequired, blockers[0].Type)
			assert.Equal(t, "login_phrase", blockers[0].Subtype)
		})
	}
}

func TestDetectLoginByStructure(t *testing.T) {
	d := NewDetector()

	html := `<html><body>
		<form>
			<input type="email" name="email">
			<input type="password" name="password">
			<button>Sign in</button>
		</form>
	</body></html>`
	blockers := d.Detect(html, "https://example.com/portal")
	require.Len(t, blockers, 1)
	assert.Equal(t, "login_form", blockers[0].Subtype)
}

func TestPasswordOnApplicationFormIsNotLogin(t *testing.T) {
	d := NewDetector()

	html := `<html><body>
		<h1>Apply for Software Engineer</h1>
		<p>Upload your resume and create a password for your account.</p>
		<form>
			<input type="file" name="resume">
			<input type="password" name="new_password">
			<button>Submit application</button>
		</form>
	</body></html>`
	assert.Empty(t, d.Detect(html, "https://example.com/careers/apply"))
}

func TestDetectMultiStep(t *testing.T) {
	d := NewDetector()

	html := `<html><body><div class="progress">Step 2 of 4</div></body></html>`
	blockers := d.Detect(html, "https://example.com/apply")
	require.Len(t, blockers, 1)
	assert.Equal(t, models.BlockerMultiStepForm, blockers[0].Type)
	assert.Equal(t, "step_2_of_4", blockers[0].Subtype)

	// Page counters and final steps report too
	html = `<html><body><div>Page 2 of 5</div></body></html>`
	blockers = d.Detect(html, "https://example.com/apply")
	require.Len(t, blockers, 1)
	assert.Equal(t, "step_2_of_5", blockers[0].Subtype)

	html = `<html><body><div>Step 3 of 3</div></body></html>`
	blockers = d.Detect(html, "https://example.com/apply")
	require.Len(t, blockers, 1)
	assert.Equal(t, "step_3_of_3", blockers[0].Subtype)
}

func TestDetectWizardClass(t *testing.T) {
	d := NewDetector()

	html := `<html><body><form class="form-wizard"><input name="first_name"></form></body></html>`
	blockers := d.Detect(html, "https://example.com/apply")
	require.Len(t, blockers, 1)
	assert.Equal(t, models.BlockerMultiStepForm, blockers[0].Type)
	assert.Equal(t, "wizard", blockers[0].Subtype)
}

func TestDetectLocationMismatch(t *testing.T) {
	d := NewDetector()

	tests := []struct {
		name string
		html string
	}{
		{"not available", `<html><body><p>This role is not available in your location.</p></body></html>`},
		{"location requirement", `<html><body><p>Location requirement: candidates in the EU only.</p></body></html>`},
		{"work authorization", `<html><body><p>Work authorization in the US is needed for this role.</p></body></html>`},
		{"eligibility wording", `<html><body><p>Eligibility for this role depends on your current location</p></body></html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blockers := d.Detect(tt.html, "https://example.com/jobs/1")
			require.Len(t, blockers, 1)
			assert.Equal(t, models.BlockerLocationMismatch, blockers[0].Type)
		})
	}
}

func TestCaptchaRankedBeforeLogin(t *testing.T) {
	d := NewDetector()

	html := `<html><body>
		<p>Please sign in to continue.</p>
		<div class="g-recaptcha" data-sitekey="6LeIxAcT"></div>
	</body></html>`
	blockers := d.Detect(html, "https://example.com/jobs/1")
	require.Len(t, blockers, 2)
	assert.Equal(t, models.BlockerCaptcha, blockers[0].Type)
	assert.Equal(t, models.BlockerLoginRequired, blockers[1].Type)
}
