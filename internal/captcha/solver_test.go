package captcha

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/peto/internal/models"
)

func TestExtractSitekey(t *testing.T) {
	s := NewSolver("key", "", arbor.NewLogger())

	tests := []struct {
		name    string
		html    string
		family  models.CaptchaFamily
		sitekey string
	}{
		{
			"turnstile",
			`<div class="cf-turnstile" data-sitekey="0x4AAAAAAA"></div>`,
			models.CaptchaTurnstile,
			"0x4AAAAAAA",
		},
		{
			"hcaptcha",
			`<div class="h-captcha" data-sitekey="10000000-ffff-ffff"></div>`,
			models.CaptchaHCaptcha,
			"10000000-ffff-ffff",
		},
		{
			"recaptcha v2",
			`<div class="g-recaptcha" data-sitekey="6LeIxAcTAAAA"></div>`,
			models.CaptchaRecaptchaV2,
			"6LeIxAcTAAAA",
		},
		{
			"recaptcha v3 render param",
			`<script src="https://www.google.com/recaptcha/api.js?render=6LcScoreKey"></script>`,
			models.CaptchaRecaptchaV3,
			"6LcScoreKey",
		},
		{
			"recaptcha v3 execute call",
			`<script>grecaptcha.execute('6LcExecKey', {action: 'submit'})</script>`,
			models.CaptchaRecaptchaV3,
			"6LcExecKey",
		},
		{
			"missing key",
			`<div class="g-recaptcha"></div>`,
			models.CaptchaRecaptchaV2,
			"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.sitekey, s.ExtractSitekey(tt.html, tt.family))
		})
	}
}

func TestSolveRequiresAPIKey(t *testing.T) {
	s := NewSolver("", "", arbor.NewLogger())
	_, err := s.Solve(context.Background(), models.CaptchaTurnstile, "0x4A", "https://example.com", "", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestSolveRequiresSitekey(t *testing.T) {
	s := NewSolver("key", "", arbor.NewLogger())
	_, err := s.Solve(context.Background(), models.CaptchaTurnstile, "", "https://example.com", "", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sitekey")
}

func TestSolveSubmitAndPoll(t *testing.T) {
	var polls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch r.URL.Path {
		case "/in.php":
			assert.Equal(t, "test-key", q.Get("key"))
			assert.Equal(t, "turnstile", q.Get("method"))
			assert.Equal(t, "0x4AAA", q.Get("sitekey"))
			assert.Equal(t, "https://jobs.example.com/apply", q.Get("pageurl"))
			_ = json.NewEncoder(w).Encode(apiResponse{Status: 1, Request: "task-77"})
		case "/res.php":
			assert.Equal(t, "task-77", q.Get("id"))
			if polls.Add(1) == 1 {
				_ = json.NewEncoder(w).Encode(apiResponse{Status: 0, Request: "CAPCHA_NOT_READY"})
				return
			}
			_ = json.NewEncoder(w).Encode(apiResponse{Status: 1, Request: "solved-token"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	s := NewSolver("test-key", server.URL, arbor.NewLogger())
	s.pollInterval = 5 * time.Millisecond

	solution, err := s.Solve(context.Background(), models.CaptchaTurnstile, "0x4AAA", "https://jobs.example.com/apply", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "solved-token", solution.Token)
	assert.Equal(t, models.CaptchaTurnstile, solution.Family)
	assert.GreaterOrEqual(t, polls.Load(), int64(2))
}

func TestSolvePropagatesServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(apiResponse{Status: 0, Request: "ERROR_WRONG_USER_KEY"})
	}))
	defer server.Close()

	s := NewSolver("bad-key", server.URL, arbor.NewLogger())
	s.pollInterval = 5 * time.Millisecond
	_, err := s.Solve(context.Background(), models.CaptchaRecaptchaV2, "6Le", "https://example.com", "", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERROR_WRONG_USER_KEY")
}

func TestGetBalance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "getbalance", r.URL.Query().Get("action"))
		_ = json.NewEncoder(w).Encode(apiResponse{Status: 1, Request: "12.50"})
	}))
	defer server.Close()

	s := NewSolver("test-key", server.URL, arbor.NewLogger())
	balance, err := s.GetBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12.50, balance)
}

func TestInjectionScriptTargetsFamilyFields(t *testing.T) {
	s := NewSolver("key", "", arbor.NewLogger())

	script := s.InjectionScript(models.CaptchaTurnstile, "tok")
	assert.Contains(t, script, "cf-turnstile-response")

	script = s.InjectionScript(models.CaptchaHCaptcha, "tok")
	assert.Contains(t, script, "h-captcha-response")

	script = s.InjectionScript(models.CaptchaRecaptchaV2, "tok")
	assert.Contains(t, script, "g-recaptcha-response")

	assert.Empty(t, s.InjectionScript(models.CaptchaNone, "tok"))
}
