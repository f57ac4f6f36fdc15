package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/peto/internal/common"
	"github.com/ternarybob/peto/internal/models"
)

// DevtoolsAdapter drives a browser through the chrome-devtools-mcp
// sidecar process over stdio. Elements are identified by opaque UIDs
// assigned by accessibility-tree snapshots; inbound CSS-like selectors
// are translated to UIDs against a fresh snapshot.
type DevtoolsAdapter struct {
	opts        models.BrowserOptions
	logger      arbor.ILogger
	client      *client.Client
	initialized bool
}

// NewDevtoolsAdapter creates an uninitialized devtools-mcp adapter
func NewDevtoolsAdapter(opts models.BrowserOptions, logger arbor.ILogger) *DevtoolsAdapter {
	return &DevtoolsAdapter{opts: opts, logger: logger}
}

// Backend identifies the implementation
func (a *DevtoolsAdapter) Backend() models.BackendMode {
	return models.BackendDevtoolsMCP
}

// Initialize spawns the sidecar and completes the MCP handshake
func (a *DevtoolsAdapter) Initialize(ctx context.Context) *models.ActionResult {
	start := time.Now()
	if a.initialized {
		return models.Failure(time.Since(start), "adapter already initialized")
	}
	if a.opts.DevtoolsCommand == "" {
		return models.Failure(time.Since(start), "devtools_command is required for the devtools-mcp backend")
	}

	args := append([]string{}, a.opts.DevtoolsArgs...)
	if a.opts.Headless {
		args = append(args, "--headless")
	}

	c, err := client.NewStdioMCPClient(a.opts.DevtoolsCommand, nil, args...)
	if err != nil {
		return models.Failure(time.Since(start), fmt.Sprintf("failed to spawn devtools-mcp sidecar: %v", err))
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "peto", Version: "1.0"}

	initCtx, cancel := context.WithTimeout(ctx, a.defaultTimeout())
	defer cancel()

	if _, err := c.Initialize(initCtx, initReq); err != nil {
		_ = c.Close()
		return models.Failure(time.Since(start), fmt.Sprintf("mcp handshake failed: %v", err))
	}

	a.client = c
	a.initialized = true

	a.logger.Debug().
		Str("command", a.opts.DevtoolsCommand).
		Dur("startup_time", time.Since(start)).
		Msg("Devtools-mcp sidecar started")

	return &models.ActionResult{Success: true, Elapsed: time.Since(start)}
}

// Close terminates the sidecar. Idempotent.
func (a *DevtoolsAdapter) Close(ctx context.Context) *models.ActionResult {
	start := time.Now()
	if !a.initialized {
		return &models.ActionResult{Success: true, Elapsed: time.Since(start)}
	}
	if err := a.client.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("Error closing devtools-mcp client")
	}
	a.initialized = false
	return &models.ActionResult{Success: true, Elapsed: time.Since(start)}
}

// callTool invokes one sidecar tool and returns the joined text output
func (a *DevtoolsAdapter) callTool(ctx context.Context, name string, args map[string]any, timeout time.Duration) (string, error) {
	if !a.initialized {
		return "", fmt.Errorf("adapter not initialized")
	}
	if timeout <= 0 {
		timeout = a.defaultTimeout()
	}
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := a.client.CallTool(opCtx, req)
	if err != nil {
		return "", fmt.Errorf("tool %s failed: %w", name, err)
	}

	var parts []string
	for _, content := range result.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	text := strings.Join(parts, "\n")

	if result.IsError {
		return "", fmt.Errorf("tool %s returned error: %s", name, text)
	}
	return text, nil
}

// resolveLocator translates a CSS-like selector into a snapshot UID.
// UIDs pass through untouched. Translation takes a fresh snapshot,
// guesses a role from the selector, extracts a name hint, and picks the
// best match by role then name substring then first-of-role.
func (a *DevtoolsAdapter) resolveLocator(ctx context.Context, locator string) (string, error) {
	if looksLikeUID(locator) {
		return locator, nil
	}

	snap, err := a.takeSnapshot(ctx)
	if err != nil {
		return "", err
	}

	role := GuessRole(locator)
	hint := NameHint(locator)
	node := snap.FindByRoleAndName(role, hint)
	if node == nil {
		return "", fmt.Errorf("no element matching selector %q (role=%s, hint=%q)", locator, role, hint)
	}
	return node.UID, nil
}

// takeSnapshot fetches and parses a fresh accessibility snapshot
func (a *DevtoolsAdapter) takeSnapshot(ctx context.Context) (*Snapshot, error) {
	text, err := a.callTool(ctx, "take_snapshot", map[string]any{}, 0)
	if err != nil {
		return nil, err
	}
	return ParseSnapshot(text), nil
}

// Navigate loads a URL through the sidecar
func (a *DevtoolsAdapter) Navigate(ctx context.Context, url string, waitUntil models.WaitUntil, timeout time.Duration) *models.ActionResult {
	start := time.Now()
	if timeout <= 0 {
		timeout = a.navTimeout()
	}

	args := map[string]any{"url": url, "timeout": timeout.Milliseconds()}
	if _, err := a.callTool(ctx, "navigate_page", args, timeout); err != nil {
		return models.Failure(time.Since(start), fmt.Sprintf("navigation failed: %v", err))
	}

	finalURL, _ := a.CurrentURL(ctx)
	title, _ := a.PageTitle(ctx)

	a.pause()
	return &models.ActionResult{
		Success:   true,
		Elapsed:   time.Since(start),
		FinalURL:  finalURL,
		PageTitle: title,
	}
}

// Fill types a value into the element behind the locator
func (a *DevtoolsAdapter) Fill(ctx context.Context, locator, value string, opts models.FillOptions) *models.ActionResult {
	start := time.Now()
	if locator == "" {
		return models.Failure(time.Since(start), "locator is required")
	}

	uid, err := a.resolveLocator(ctx, locator)
	if err != nil {
		return models.Failure(time.Since(start), err.Error())
	}

	if _, err := a.callTool(ctx, "fill", map[string]any{"uid": uid, "value": value}, opts.Timeout); err != nil {
		return models.Failure(time.Since(start), fmt.Sprintf("fill failed for %s: %v", locator, err))
	}

	a.pause()
	return &models.ActionResult{Success: true, Elapsed: time.Since(start)}
}

// Click clicks the element behind the locator
func (a *DevtoolsAdapter) Click(ctx context.Context, locator string, opts models.ClickOptions) *models.ActionResult {
	start := time.Now()
	if locator == "" {
		return models.Failure(time.Since(start), "locator is required")
	}

	uid, err := a.resolveLocator(ctx, locator)
	if err != nil {
		return models.Failure(time.Since(start), err.Error())
	}

	args := map[string]any{"uid": uid}
	if opts.Count >= 2 {
		args["dblClick"] = true
	}
	if _, err := a.callTool(ctx, "click", args, opts.Timeout); err != nil {
		return models.Failure(time.Since(start), fmt.Sprintf("click failed for %s: %v", locator, err))
	}

	a.pause()
	return &models.ActionResult{Success: true, Elapsed: time.Since(start)}
}

// SelectOption fills a combobox with the desired option text or value
func (a *DevtoolsAdapter) SelectOption(ctx context.Context, locator string, by models.SelectBy) *models.ActionResult {
	start := time.Now()
	choice := by.Value
	if choice == "" {
		choice = by.Label
	}
	if choice == "" {
		return models.Failure(time.Since(start), "select by index is not supported on the devtools-mcp backend")
	}

	uid, err := a.resolveLocator(ctx, locator)
	if err != nil {
		return models.Failure(time.Since(start), err.Error())
	}

	if _, err := a.callTool(ctx, "fill", map[string]any{"uid": uid, "value": choice}, 0); err != nil {
		return models.Failure(time.Since(start), fmt.Sprintf("select failed for %s: %v", locator, err))
	}

	a.pause()
	return &models.ActionResult{Success: true, Elapsed: time.Since(start)}
}

// Upload attaches a local file through the sidecar
func (a *DevtoolsAdapter) Upload(ctx context.Context, locator, filePath string) *models.ActionResult {
	start := time.Now()
	if locator == "" || filePath == "" {
		return models.Failure(time.Since(start), "locator and file path are required")
	}
	if _, err := os.Stat(filePath); err != nil {
		return models.Failure(time.Since(start), fmt.Sprintf("file not readable: %v", err))
	}

	uid, err := a.resolveLocator(ctx, locator)
	if err != nil {
		return models.Failure(time.Since(start), err.Error())
	}

	if _, err := a.callTool(ctx, "upload_file", map[string]any{"uid": uid, "filePath": filePath}, 0); err != nil {
		return models.Failure(time.Since(start), fmt.Sprintf("upload failed for %s: %v", locator, err))
	}

	a.pause()
	return &models.ActionResult{Success: true, Elapsed: time.Since(start)}
}

// Screenshot captures the page through the sidecar
func (a *DevtoolsAdapter) Screenshot(ctx context.Context, fullPage bool, path string) *models.ActionResult {
	start := time.Now()
	if !a.initialized {
		return models.Failure(time.Since(start), "adapter not initialized")
	}

	opCtx, cancel := context.WithTimeout(ctx, a.defaultTimeout())
	defer cancel()

	req := mcp.CallToolRequest{}
	req.Params.Name = "take_screenshot"
	req.Params.Arguments = map[string]any{"format": "png", "fullPage": fullPage}

	result, err := a.client.CallTool(opCtx, req)
	if err != nil {
		return models.Failure(time.Since(start), fmt.Sprintf("screenshot failed: %v", err))
	}

	var data string
	for _, content := range result.Content {
		if ic, ok := content.(mcp.ImageContent); ok {
			data = ic.Data
			break
		}
	}
	if data == "" {
		return models.Failure(time.Since(start), "screenshot returned no image content")
	}

	if path != "" {
		if raw, err := decodeBase64(data); err == nil {
			if err := os.MkdirAll(filepath.Dir(path), 0755); err == nil {
				if err := os.WriteFile(path, raw, 0644); err != nil {
					a.logger.Warn().Err(err).Str("path", path).Msg("Failed to write screenshot file")
				}
			}
		}
	}

	return &models.ActionResult{Success: true, Elapsed: time.Since(start), Base64: data, Value: path}
}

// Evaluate runs a script in page context. Bodies are wrapped as a
// zero-arg arrow function as the sidecar contract requires.
func (a *DevtoolsAdapter) Evaluate(ctx context.Context, script string) *models.ActionResult {
	start := time.Now()

	text, err := a.callTool(ctx, "evaluate_script", map[string]any{"function": wrapEvaluateScript(script)}, 0)
	if err != nil {
		return models.Failure(time.Since(start), fmt.Sprintf("evaluate failed: %v", err))
	}

	var data any
	if err := json.Unmarshal([]byte(extractResultJSON(text)), &data); err != nil {
		// Sidecar wraps results in prose; fall back to the raw text
		data = text
	}

	return &models.ActionResult{Success: true, Elapsed: time.Since(start), Data: data}
}

// wrapEvaluateScript shapes a script into the callable the sidecar
// expects. The sidecar invokes its argument, so an immediately-invoked
// expression loses its trailing call and bare expressions become a
// zero-arg arrow function body.
func wrapEvaluateScript(script string) string {
	fn := strings.TrimSpace(script)
	switch {
	case strings.HasPrefix(fn, "function") || strings.HasPrefix(fn, "async"):
		return fn
	case strings.HasPrefix(fn, "(") && strings.HasSuffix(fn, ")()"):
		return strings.TrimSuffix(fn, "()")
	case strings.HasPrefix(fn, "(") && strings.Contains(fn, "=>"):
		return fn
	default:
		return "() => (" + fn + ")"
	}
}

// GetDOM builds the field inventory from an accessibility snapshot
func (a *DevtoolsAdapter) GetDOM(ctx context.Context, scopeSelector string, formFieldsOnly bool) (*models.DOMSnapshot, error) {
	snap, err := a.takeSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	url, _ := a.CurrentURL(ctx)
	title, _ := a.PageTitle(ctx)

	dom := &models.DOMSnapshot{
		URL:     url,
		Title:   title,
		Fields:  snap.FormFields(),
		TakenAt: time.Now(),
	}

	// A short HTML snippet keeps blocker detection working on this backend
	res := a.Evaluate(ctx, "document.documentElement.outerHTML.slice(0, 4000)")
	if res.Success {
		if html, ok := res.Data.(string); ok {
			dom.HTML = html
		}
	}

	return dom, nil
}

// WaitFor polls snapshots until the element reaches the requested state
func (a *DevtoolsAdapter) WaitFor(ctx context.Context, locator string, state models.WaitState, timeout time.Duration) *models.ActionResult {
	start := time.Now()
	if timeout <= 0 {
		timeout = a.defaultTimeout()
	}
	deadline := time.Now().Add(timeout)

	role := GuessRole(locator)
	hint := NameHint(locator)

	for time.Now().Before(deadline) {
		snap, err := a.takeSnapshot(ctx)
		if err != nil {
			return models.Failure(time.Since(start), err.Error())
		}

		var present bool
		if looksLikeUID(locator) {
			present = snap.FindByUID(locator) != nil
		} else {
			present = snap.FindByRoleAndName(role, hint) != nil
		}

		switch state {
		case models.StateVisible, models.StateAttached:
			if present {
				return &models.ActionResult{Success: true, Elapsed: time.Since(start)}
			}
		case models.StateHidden, models.StateDetached:
			if !present {
				return &models.ActionResult{Success: true, Elapsed: time.Since(start)}
			}
		default:
			return models.Failure(time.Since(start), fmt.Sprintf("unknown wait state: %s", state))
		}

		select {
		case <-ctx.Done():
			return models.Failure(time.Since(start), ctx.Err().Error())
		case <-time.After(500 * time.Millisecond):
		}
	}

	return models.Failure(time.Since(start), fmt.Sprintf("wait_for %s %s: timed out", locator, state))
}

// CurrentURL returns the page location
func (a *DevtoolsAdapter) CurrentURL(ctx context.Context) (string, error) {
	res := a.Evaluate(ctx, "location.href")
	if !res.Success {
		return "", fmt.Errorf("%s", res.Error)
	}
	url, _ := res.Data.(string)
	return url, nil
}

// PageTitle returns the document title
func (a *DevtoolsAdapter) PageTitle(ctx context.Context) (string, error) {
	res := a.Evaluate(ctx, "document.title")
	if !res.Success {
		return "", fmt.Errorf("%s", res.Error)
	}
	title, _ := res.Data.(string)
	return title, nil
}

// PageContent returns the full document HTML
func (a *DevtoolsAdapter) PageContent(ctx context.Context) (string, error) {
	res := a.Evaluate(ctx, "document.documentElement.outerHTML")
	if !res.Success {
		return "", fmt.Errorf("%s", res.Error)
	}
	html, _ := res.Data.(string)
	return html, nil
}

// GetCookies reads cookies visible to page scripts. HttpOnly cookies are
// not observable on this backend.
func (a *DevtoolsAdapter) GetCookies(ctx context.Context) ([]models.Cookie, error) {
	res := a.Evaluate(ctx, "document.cookie")
	if !res.Success {
		return nil, fmt.Errorf("%s", res.Error)
	}
	raw, _ := res.Data.(string)

	url, _ := a.CurrentURL(ctx)
	domain := hostOf(url)

	var cookies []models.Cookie
	for _, pair := range strings.Split(raw, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, value, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		cookies = append(cookies, models.Cookie{Name: name, Value: value, Domain: domain, Path: "/"})
	}
	return cookies, nil
}

// SetCookies restores cookies via page-script assignment
func (a *DevtoolsAdapter) SetCookies(ctx context.Context, cookies []models.Cookie) error {
	for _, c := range cookies {
		script := fmt.Sprintf("document.cookie = %q", fmt.Sprintf("%s=%s; path=%s", c.Name, c.Value, c.Path))
		if res := a.Evaluate(ctx, script); !res.Success {
			return fmt.Errorf("failed to set cookie %s: %s", c.Name, res.Error)
		}
	}
	return nil
}

// pause applies the configured per-action slowdown
func (a *DevtoolsAdapter) pause() {
	if a.opts.SlowMo > 0 {
		time.Sleep(a.opts.SlowMo)
	}
}

func (a *DevtoolsAdapter) defaultTimeout() time.Duration {
	if a.opts.DefaultTimeout > 0 {
		return a.opts.DefaultTimeout
	}
	return 30 * time.Second
}

func (a *DevtoolsAdapter) navTimeout() time.Duration {
	if a.opts.NavTimeout > 0 {
		return a.opts.NavTimeout
	}
	return 60 * time.Second
}

func decodeBase64(data string) ([]byte, error) {
	if idx := strings.Index(data, ","); idx >= 0 && strings.HasPrefix(data, "data:") {
		data = data[idx+1:]
	}
	return base64.StdEncoding.DecodeString(data)
}

// extractResultJSON pulls the JSON payload out of the sidecar's prose
// wrapping ("Script executed.\nResult: {...}"). Plain JSON passes through.
func extractResultJSON(text string) string {
	if idx := strings.Index(text, "Result:"); idx >= 0 {
		return strings.TrimSpace(text[idx+len("Result:"):])
	}
	return strings.TrimSpace(text)
}

func hostOf(rawURL string) string {
	return common.ExtractHost(rawURL)
}
