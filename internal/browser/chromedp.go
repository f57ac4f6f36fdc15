package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/peto/internal/models"
)

// ChromedpAdapter drives a Chromium-class browser in-process via the
// DevTools protocol. Locators are CSS selectors used verbatim.
type ChromedpAdapter struct {
	opts        models.BrowserOptions
	logger      arbor.ILogger
	browserCtx  context.Context
	browserStop context.CancelFunc
	allocStop   context.CancelFunc
	initialized bool
}

// NewChromedpAdapter creates an uninitialized direct-automation adapter
func NewChromedpAdapter(opts models.BrowserOptions, logger arbor.ILogger) *ChromedpAdapter {
	return &ChromedpAdapter{opts: opts, logger: logger}
}

// Backend identifies the implementation
func (a *ChromedpAdapter) Backend() models.BackendMode {
	return models.BackendChromedp
}

// Initialize launches the browser and verifies it responds
func (a *ChromedpAdapter) Initialize(ctx context.Context) *models.ActionResult {
	start := time.Now()
	if a.initialized {
		return models.Failure(time.Since(start), "adapter already initialized")
	}

	allocOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", a.opts.Headless),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(a.opts.ViewportWidth, a.opts.ViewportHeight),
	)
	if a.opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(a.opts.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	testCtx, testCancel := context.WithTimeout(browserCtx, a.defaultTimeout())
	defer testCancel()

	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocCancel()
		return models.Failure(time.Since(start), fmt.Sprintf("browser failed startup test: %v", err))
	}

	a.browserCtx = browserCtx
	a.browserStop = browserCancel
	a.allocStop = allocCancel
	a.initialized = true

	a.logger.Debug().
		Bool("headless", a.opts.Headless).
		Int("viewport_width", a.opts.ViewportWidth).
		Int("viewport_height", a.opts.ViewportHeight).
		Dur("startup_time", time.Since(start)).
		Msg("Chromedp browser launched")

	return &models.ActionResult{Success: true, Elapsed: time.Since(start)}
}

// Close releases browser resources. Idempotent.
func (a *ChromedpAdapter) Close(ctx context.Context) *models.ActionResult {
	start := time.Now()
	if !a.initialized {
		return &models.ActionResult{Success: true, Elapsed: time.Since(start)}
	}
	if a.browserStop != nil {
		a.browserStop()
	}
	if a.allocStop != nil {
		a.allocStop()
	}
	a.initialized = false
	a.logger.Debug().Msg("Chromedp browser closed")
	return &models.ActionResult{Success: true, Elapsed: time.Since(start)}
}

// Navigate loads a URL and reports the final URL and title
func (a *ChromedpAdapter) Navigate(ctx context.Context, url string, waitUntil models.WaitUntil, timeout time.Duration) *models.ActionResult {
	start := time.Now()
	if !a.initialized {
		return models.Failure(time.Since(start), "adapter not initialized")
	}
	if timeout <= 0 {
		timeout = a.navTimeout()
	}

	opCtx, cancel := context.WithTimeout(a.browserCtx, timeout)
	defer cancel()

	actions := []chromedp.Action{chromedp.Navigate(url)}
	if waitUntil == models.WaitNetworkIdle {
		// Navigate resolves on load; give late XHR-driven pages a moment
		actions = append(actions, chromedp.Sleep(2*time.Second))
	}

	var finalURL, title string
	actions = append(actions, chromedp.Location(&finalURL), chromedp.Title(&title))

	if err := chromedp.Run(opCtx, actions...); err != nil {
		return models.Failure(time.Since(start), fmt.Sprintf("navigation failed: %v", err))
	}

	a.pause()
	return &models.ActionResult{
		Success:   true,
		Elapsed:   time.Since(start),
		FinalURL:  finalURL,
		PageTitle: title,
	}
}

// Fill types a value into the element matching the CSS locator
func (a *ChromedpAdapter) Fill(ctx context.Context, locator, value string, opts models.FillOptions) *models.ActionResult {
	start := time.Now()
	if locator == "" {
		return models.Failure(time.Since(start), "locator is required")
	}
	if !a.initialized {
		return models.Failure(time.Since(start), "adapter not initialized")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = a.defaultTimeout()
	}
	opCtx, cancel := context.WithTimeout(a.browserCtx, timeout)
	defer cancel()

	actions := []chromedp.Action{}
	if !opts.Force {
		actions = append(actions, chromedp.WaitVisible(locator, chromedp.ByQuery))
	}
	if opts.ClearFirst {
		actions = append(actions, chromedp.Clear(locator, chromedp.ByQuery))
	}
	actions = append(actions, chromedp.SendKeys(locator, value, chromedp.ByQuery))

	if err := chromedp.Run(opCtx, actions...); err != nil {
		return models.Failure(time.Since(start), fmt.Sprintf("fill failed for %s: %v", locator, err))
	}

	a.pause()
	return &models.ActionResult{Success: true, Elapsed: time.Since(start)}
}

// Click clicks the element matching the CSS locator
func (a *ChromedpAdapter) Click(ctx context.Context, locator string, opts models.ClickOptions) *models.ActionResult {
	start := time.Now()
	if locator == "" {
		return models.Failure(time.Since(start), "locator is required")
	}
	if !a.initialized {
		return models.Failure(time.Since(start), "adapter not initialized")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = a.defaultTimeout()
	}
	opCtx, cancel := context.WithTimeout(a.browserCtx, timeout)
	defer cancel()

	count := opts.Count
	if count <= 0 {
		count = 1
	}

	actions := []chromedp.Action{}
	if !opts.Force {
		actions = append(actions, chromedp.WaitVisible(locator, chromedp.ByQuery))
	}
	for i := 0; i < count; i++ {
		actions = append(actions, chromedp.Click(locator, chromedp.ByQuery))
	}

	if err := chromedp.Run(opCtx, actions...); err != nil {
		return models.Failure(time.Since(start), fmt.Sprintf("click failed for %s: %v", locator, err))
	}

	a.pause()
	return &models.ActionResult{Success: true, Elapsed: time.Since(start)}
}

// SelectOption picks an option via a JS value assignment so that input
// and change listeners fire, matching framework expectations.
func (a *ChromedpAdapter) SelectOption(ctx context.Context, locator string, by models.SelectBy) *models.ActionResult {
	start := time.Now()
	if locator == "" {
		return models.Failure(time.Since(start), "locator is required")
	}
	if !a.initialized {
		return models.Failure(time.Since(start), "adapter not initialized")
	}

	index := by.Index
	if by.Value != "" || by.Label != "" {
		index = -1
	}
	script := fmt.Sprintf(selectOptionJS, locator, by.Value, by.Label, index)

	opCtx, cancel := context.WithTimeout(a.browserCtx, a.defaultTimeout())
	defer cancel()

	var matched bool
	if err := chromedp.Run(opCtx, chromedp.Evaluate(script, &matched)); err != nil {
		return models.Failure(time.Since(start), fmt.Sprintf("select failed for %s: %v", locator, err))
	}
	if !matched {
		return models.Failure(time.Since(start), fmt.Sprintf("no matching option in %s", locator))
	}

	a.pause()
	return &models.ActionResult{Success: true, Elapsed: time.Since(start)}
}

// Upload attaches a local file to a file input
func (a *ChromedpAdapter) Upload(ctx context.Context, locator, filePath string) *models.ActionResult {
	start := time.Now()
	if locator == "" || filePath == "" {
		return models.Failure(time.Since(start), "locator and file path are required")
	}
	if !a.initialized {
		return models.Failure(time.Since(start), "adapter not initialized")
	}
	if _, err := os.Stat(filePath); err != nil {
		return models.Failure(time.Since(start), fmt.Sprintf("file not readable: %v", err))
	}

	opCtx, cancel := context.WithTimeout(a.browserCtx, a.defaultTimeout())
	defer cancel()

	if err := chromedp.Run(opCtx, chromedp.SetUploadFiles(locator, []string{filePath}, chromedp.ByQuery)); err != nil {
		return models.Failure(time.Since(start), fmt.Sprintf("upload failed for %s: %v", locator, err))
	}

	a.pause()
	return &models.ActionResult{Success: true, Elapsed: time.Since(start)}
}

// Screenshot captures the viewport or the full page
func (a *ChromedpAdapter) Screenshot(ctx context.Context, fullPage bool, path string) *models.ActionResult {
	start := time.Now()
	if !a.initialized {
		return models.Failure(time.Since(start), "adapter not initialized")
	}

	opCtx, cancel := context.WithTimeout(a.browserCtx, a.defaultTimeout())
	defer cancel()

	var buf []byte
	var action chromedp.Action
	if fullPage {
		action = chromedp.FullScreenshot(&buf, 90)
	} else {
		action = chromedp.CaptureScreenshot(&buf)
	}
	if err := chromedp.Run(opCtx, action); err != nil {
		return models.Failure(time.Since(start), fmt.Sprintf("screenshot failed: %v", err))
	}

	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err == nil {
			if err := os.WriteFile(path, buf, 0644); err != nil {
				a.logger.Warn().Err(err).Str("path", path).Msg("Failed to write screenshot file")
			}
		}
	}

	return &models.ActionResult{
		Success: true,
		Elapsed: time.Since(start),
		Base64:  base64.StdEncoding.EncodeToString(buf),
		Value:   path,
	}
}

// Evaluate runs a script expression in page context
func (a *ChromedpAdapter) Evaluate(ctx context.Context, script string) *models.ActionResult {
	start := time.Now()
	if !a.initialized {
		return models.Failure(time.Since(start), "adapter not initialized")
	}

	opCtx, cancel := context.WithTimeout(a.browserCtx, a.defaultTimeout())
	defer cancel()

	var raw json.RawMessage
	if err := chromedp.Run(opCtx, chromedp.Evaluate(script, &raw)); err != nil {
		return models.Failure(time.Since(start), fmt.Sprintf("evaluate failed: %v", err))
	}

	var data any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			return models.Failure(time.Since(start), fmt.Sprintf("evaluate result not JSON-serializable: %v", err))
		}
	}

	return &models.ActionResult{Success: true, Elapsed: time.Since(start), Data: data}
}

// GetDOM extracts the page's form-field inventory
func (a *ChromedpAdapter) GetDOM(ctx context.Context, scopeSelector string, formFieldsOnly bool) (*models.DOMSnapshot, error) {
	if !a.initialized {
		return nil, fmt.Errorf("adapter not initialized")
	}

	opCtx, cancel := context.WithTimeout(a.browserCtx, a.defaultTimeout())
	defer cancel()

	script := fmt.Sprintf(extractFieldsJS, scopeSelector, formFieldsOnly)

	var snap models.DOMSnapshot
	if err := chromedp.Run(opCtx, chromedp.Evaluate(script, &snap)); err != nil {
		return nil, fmt.Errorf("dom extraction failed: %w", err)
	}
	snap.TakenAt = time.Now()
	return &snap, nil
}

// WaitFor blocks until the element reaches the requested state
func (a *ChromedpAdapter) WaitFor(ctx context.Context, locator string, state models.WaitState, timeout time.Duration) *models.ActionResult {
	start := time.Now()
	if locator == "" {
		return models.Failure(time.Since(start), "locator is required")
	}
	if !a.initialized {
		return models.Failure(time.Since(start), "adapter not initialized")
	}
	if timeout <= 0 {
		timeout = a.defaultTimeout()
	}

	opCtx, cancel := context.WithTimeout(a.browserCtx, timeout)
	defer cancel()

	var action chromedp.Action
	switch state {
	case models.StateVisible:
		action = chromedp.WaitVisible(locator, chromedp.ByQuery)
	case models.StateHidden:
		action = chromedp.WaitNotVisible(locator, chromedp.ByQuery)
	case models.StateAttached:
		action = chromedp.WaitReady(locator, chromedp.ByQuery)
	case models.StateDetached:
		action = chromedp.WaitNotPresent(locator, chromedp.ByQuery)
	default:
		return models.Failure(time.Since(start), fmt.Sprintf("unknown wait state: %s", state))
	}

	if err := chromedp.Run(opCtx, action); err != nil {
		return models.Failure(time.Since(start), fmt.Sprintf("wait_for %s %s: %v", locator, state, err))
	}
	return &models.ActionResult{Success: true, Elapsed: time.Since(start)}
}

// CurrentURL returns the page location
func (a *ChromedpAdapter) CurrentURL(ctx context.Context) (string, error) {
	if !a.initialized {
		return "", fmt.Errorf("adapter not initialized")
	}
	opCtx, cancel := context.WithTimeout(a.browserCtx, a.defaultTimeout())
	defer cancel()
	var url string
	if err := chromedp.Run(opCtx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("failed to get current URL: %w", err)
	}
	return url, nil
}

// PageTitle returns the document title
func (a *ChromedpAdapter) PageTitle(ctx context.Context) (string, error) {
	if !a.initialized {
		return "", fmt.Errorf("adapter not initialized")
	}
	opCtx, cancel := context.WithTimeout(a.browserCtx, a.defaultTimeout())
	defer cancel()
	var title string
	if err := chromedp.Run(opCtx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("failed to get page title: %w", err)
	}
	return title, nil
}

// PageContent returns the full document HTML
func (a *ChromedpAdapter) PageContent(ctx context.Context) (string, error) {
	if !a.initialized {
		return "", fmt.Errorf("adapter not initialized")
	}
	opCtx, cancel := context.WithTimeout(a.browserCtx, a.defaultTimeout())
	defer cancel()
	var html string
	if err := chromedp.Run(opCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to get page content: %w", err)
	}
	return html, nil
}

// GetCookies captures all browser cookies for state persistence
func (a *ChromedpAdapter) GetCookies(ctx context.Context) ([]models.Cookie, error) {
	if !a.initialized {
		return nil, fmt.Errorf("adapter not initialized")
	}
	opCtx, cancel := context.WithTimeout(a.browserCtx, a.defaultTimeout())
	defer cancel()

	var cookies []models.Cookie
	err := chromedp.Run(opCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		raw, err := storage.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		for _, c := range raw {
			cookies = append(cookies, models.Cookie{
				Name:     c.Name,
				Value:    c.Value,
				Domain:   c.Domain,
				Path:     c.Path,
				Expires:  c.Expires,
				HTTPOnly: c.HTTPOnly,
				Secure:   c.Secure,
			})
		}
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to get cookies: %w", err)
	}
	return cookies, nil
}

// SetCookies restores previously captured cookies
func (a *ChromedpAdapter) SetCookies(ctx context.Context, cookies []models.Cookie) error {
	if !a.initialized {
		return fmt.Errorf("adapter not initialized")
	}
	if len(cookies) == 0 {
		return nil
	}
	opCtx, cancel := context.WithTimeout(a.browserCtx, a.defaultTimeout())
	defer cancel()

	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if c.Expires > 0 {
			t := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
			p.Expires = &t
		}
		params = append(params, p)
	}

	err := chromedp.Run(opCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return storage.SetCookies(params).Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("failed to set cookies: %w", err)
	}
	return nil
}

// pause applies the configured per-action slowdown
func (a *ChromedpAdapter) pause() {
	if a.opts.SlowMo > 0 {
		time.Sleep(a.opts.SlowMo)
	}
}

func (a *ChromedpAdapter) defaultTimeout() time.Duration {
	if a.opts.DefaultTimeout > 0 {
		return a.opts.DefaultTimeout
	}
	return 30 * time.Second
}

func (a *ChromedpAdapter) navTimeout() time.Duration {
	if a.opts.NavTimeout > 0 {
		return a.opts.NavTimeout
	}
	return 60 * time.Second
}
