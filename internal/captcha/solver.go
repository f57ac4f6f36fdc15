package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/peto/internal/detection"
	"github.com/ternarybob/peto/internal/interfaces"
	"github.com/ternarybob/peto/internal/models"
)

const (
	submitPath = "/in.php"
	resultPath = "/res.php"
)

// Solver submits CAPTCHAs to a 2captcha-compatible solving service and
// polls for the token.
type Solver struct {
	apiKey       string
	baseURL      string
	client       *http.Client
	detector     *detection.Detector
	logger       arbor.ILogger
	pollInterval time.Duration
	solveTimeout time.Duration
}

// NewSolver creates a solver. An empty API key is allowed; Solve then
// fails immediately so callers escalate to an intervention instead.
func NewSolver(apiKey, baseURL string, logger arbor.ILogger) *Solver {
	if baseURL == "" {
		baseURL = "https://2captcha.com"
	}
	return &Solver{
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       &http.Client{Timeout: 30 * time.Second},
		detector:     detection.NewDetector(),
		logger:       logger,
		pollInterval: 5 * time.Second,
		solveTimeout: 3 * time.Minute,
	}
}

// DetectType identifies the CAPTCHA family embedded in the page
func (s *Solver) DetectType(html string) models.CaptchaFamily {
	return s.detector.DetectCaptchaFamily(html)
}

var sitekeyAttrRe = regexp.MustCompile(`data-sitekey=["']([^"']+)["']`)
var recaptchaRenderRe = regexp.MustCompile(`recaptcha/api\.js\?render=([A-Za-z0-9_-]+)`)
var grecaptchaExecRe = regexp.MustCompile(`grecaptcha\.execute\(\s*["']([^"']+)["']`)

// ExtractSitekey pulls the site key out of the page HTML for the given
// family. Returns "" when no key is present.
func (s *Solver) ExtractSitekey(html string, family models.CaptchaFamily) string {
	switch family {
	case models.CaptchaRecaptchaV3:
		if m := recaptchaRenderRe.FindStringSubmatch(html); m != nil {
			return m[1]
		}
		if m := grecaptchaExecRe.FindStringSubmatch(html); m != nil {
			return m[1]
		}
		return ""
	case models.CaptchaTurnstile, models.CaptchaHCaptcha, models.CaptchaRecaptchaV2:
		if m := sitekeyAttrRe.FindStringSubmatch(html); m != nil {
			return m[1]
		}
		return ""
	default:
		return ""
	}
}

// apiResponse is the json=1 envelope of the solving service
type apiResponse struct {
	Status  int    `json:"status"`
	Request string `json:"request"`
}

// Solve submits the CAPTCHA and polls until a token arrives or the
// solve window closes. Action and minScore only apply to reCAPTCHA v3.
func (s *Solver) Solve(ctx context.Context, family models.CaptchaFamily, sitekey, pageURL, action string, minScore float64) (*interfaces.CaptchaSolution, error) {
	start := time.Now()
	if s.apiKey == "" {
		return nil, fmt.Errorf("captcha solving is not configured (no API key)")
	}
	if sitekey == "" {
		return nil, fmt.Errorf("no sitekey extracted for %s", family)
	}

	params := url.Values{}
	params.Set("key", s.apiKey)
	params.Set("pageurl", pageURL)
	params.Set("json", "1")

	switch family {
	case models.CaptchaTurnstile:
		params.Set("method", "turnstile")
		params.Set("sitekey", sitekey)
	case models.CaptchaHCaptcha:
		params.Set("method", "hcaptcha")
		params.Set("sitekey", sitekey)
	case models.CaptchaRecaptchaV2:
		params.Set("method", "userrecaptcha")
		params.Set("googlekey", sitekey)
	case models.CaptchaRecaptchaV3:
		params.Set("method", "userrecaptcha")
		params.Set("version", "v3")
		params.Set("googlekey", sitekey)
		if action != "" {
			params.Set("action", action)
		}
		if minScore > 0 {
			params.Set("min_score", strconv.FormatFloat(minScore, 'f', 1, 64))
		}
	default:
		return nil, fmt.Errorf("unsupported captcha family: %s", family)
	}

	taskID, err := s.call(ctx, submitPath, params)
	if err != nil {
		return nil, fmt.Errorf("captcha submit failed: %w", err)
	}

	s.logger.Debug().
		Str("family", string(family)).
		Str("task_id", taskID).
		Msg("Captcha submitted for solving")

	token, err := s.poll(ctx, taskID)
	if err != nil {
		return nil, err
	}

	return &interfaces.CaptchaSolution{
		Family:  family,
		Token:   token,
		Elapsed: time.Since(start),
	}, nil
}

// SolveFromHTML detects, extracts, and solves in one step
func (s *Solver) SolveFromHTML(ctx context.Context, html, pageURL string) (*interfaces.CaptchaSolution, error) {
	family := s.DetectType(html)
	if family == models.CaptchaNone {
		return nil, fmt.Errorf("no captcha detected on page")
	}
	sitekey := s.ExtractSitekey(html, family)
	return s.Solve(ctx, family, sitekey, pageURL, "", 0)
}

// GetBalance returns the remaining account balance in USD
func (s *Solver) GetBalance(ctx context.Context) (float64, error) {
	if s.apiKey == "" {
		return 0, fmt.Errorf("captcha solving is not configured (no API key)")
	}
	params := url.Values{}
	params.Set("key", s.apiKey)
	params.Set("action", "getbalance")
	params.Set("json", "1")

	raw, err := s.call(ctx, resultPath, params)
	if err != nil {
		return 0, err
	}
	balance, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected balance response %q: %w", raw, err)
	}
	return balance, nil
}

// InjectionScript builds the page script that plants a solved token
// into the form and fires the widget callback so the page accepts it
func (s *Solver) InjectionScript(family models.CaptchaFamily, token string) string {
	switch family {
	case models.CaptchaTurnstile:
		return fmt.Sprintf(`(() => {
	const token = %q;
	for (const el of document.querySelectorAll('[name="cf-turnstile-response"]')) { el.value = token; }
	const widget = document.querySelector('.cf-turnstile');
	if (widget && widget.dataset.callback && typeof window[widget.dataset.callback] === "function") {
		window[widget.dataset.callback](token);
	}
	return true;
})()`, token)
	case models.CaptchaHCaptcha:
		return fmt.Sprintf(`(() => {
	const token = %q;
	for (const el of document.querySelectorAll('[name="h-captcha-response"], [name="g-recaptcha-response"]')) { el.value = token; }
	const widget = document.querySelector('.h-captcha');
	if (widget && widget.dataset.callback && typeof window[widget.dataset.callback] === "function") {
		window[widget.dataset.callback](token);
	}
	return true;
})()`, token)
	case models.CaptchaRecaptchaV2, models.CaptchaRecaptchaV3:
		return fmt.Sprintf(`(() => {
	const token = %q;
	for (const el of document.querySelectorAll('[name="g-recaptcha-response"]')) {
		el.value = token;
		el.innerHTML = token;
	}
	const widget = document.querySelector('.g-recaptcha');
	if (widget && widget.dataset.callback && typeof window[widget.dataset.callback] === "function") {
		window[widget.dataset.callback](token);
	}
	return true;
})()`, token)
	default:
		return ""
	}
}

// poll fetches the result until the service reports a token
func (s *Solver) poll(ctx context.Context, taskID string) (string, error) {
	deadline := time.Now().Add(s.solveTimeout)

	params := url.Values{}
	params.Set("key", s.apiKey)
	params.Set("action", "get")
	params.Set("id", taskID)
	params.Set("json", "1")

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.pollInterval):
		}

		token, err := s.call(ctx, resultPath, params)
		if err != nil {
			if strings.Contains(err.Error(), "CAPCHA_NOT_READY") {
				continue
			}
			return "", fmt.Errorf("captcha poll failed: %w", err)
		}
		return token, nil
	}
	return "", fmt.Errorf("captcha solve timed out after %s", s.solveTimeout)
}

// call performs one API request and unwraps the json=1 envelope
func (s *Solver) call(ctx context.Context, path string, params url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return "", err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("solving service returned HTTP %d", resp.StatusCode)
	}

	var envelope apiResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", fmt.Errorf("malformed response from solving service: %w", err)
	}
	if envelope.Status != 1 {
		if envelope.Request == "ERROR_ZERO_BALANCE" {
			return "", fmt.Errorf("solving service balance exhausted")
		}
		return "", fmt.Errorf("solving service error: %s", envelope.Request)
	}
	return envelope.Request, nil
}
