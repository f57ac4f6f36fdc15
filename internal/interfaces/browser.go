package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/peto/internal/models"
)

// BrowserAdapter is the uniform low-level browser contract. Two backends
// implement it: a direct chromedp backend and a devtools-mcp sidecar
// backend. Operations never panic across this surface; failures are
// reported on the returned ActionResult.
//
// An adapter instance is exclusively owned by one session record and is
// not safe for concurrent use; the session manager serializes access.
type BrowserAdapter interface {
	// Initialize opens the browser with the options given at construction.
	Initialize(ctx context.Context) *models.ActionResult

	// Close releases browser resources. Idempotent.
	Close(ctx context.Context) *models.ActionResult

	// Navigate loads a URL and reports the final URL and title.
	Navigate(ctx context.Context, url string, waitUntil models.WaitUntil, timeout time.Duration) *models.ActionResult

	// Fill types a value into the element identified by locator.
	Fill(ctx context.Context, locator, value string, opts models.FillOptions) *models.ActionResult

	// Click clicks the element identified by locator.
	Click(ctx context.Context, locator string, opts models.ClickOptions) *models.ActionResult

	// SelectOption picks an option in a select element.
	SelectOption(ctx context.Context, locator string, by models.SelectBy) *models.ActionResult

	// Upload attaches a local file to a file input.
	Upload(ctx context.Context, locator, filePath string) *models.ActionResult

	// Screenshot captures the page; base64 data is returned and optionally
	// written to path.
	Screenshot(ctx context.Context, fullPage bool, path string) *models.ActionResult

	// Evaluate runs a script in page context and returns its
	// JSON-serializable result on ActionResult.Data.
	Evaluate(ctx context.Context, script string) *models.ActionResult

	// GetDOM returns the current URL, title, an HTML snippet and the
	// ordered form fields visible on the page.
	GetDOM(ctx context.Context, scopeSelector string, formFieldsOnly bool) (*models.DOMSnapshot, error)

	// WaitFor blocks until the element reaches the requested state or the
	// timeout elapses.
	WaitFor(ctx context.Context, locator string, state models.WaitState, timeout time.Duration) *models.ActionResult

	// Simple accessors.
	CurrentURL(ctx context.Context) (string, error)
	PageTitle(ctx context.Context) (string, error)
	PageContent(ctx context.Context) (string, error)

	// Cookie capture/restore for resumable sessions.
	GetCookies(ctx context.Context) ([]models.Cookie, error)
	SetCookies(ctx context.Context, cookies []models.Cookie) error

	// Backend identifies the implementation.
	Backend() models.BackendMode
}
