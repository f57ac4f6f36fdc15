package models

import "time"

// FieldType classifies a detected form field
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldEmail    FieldType = "email"
	FieldTel      FieldType = "tel"
	FieldSelect   FieldType = "select"
	FieldRadio    FieldType = "radio"
	FieldCheckbox FieldType = "checkbox"
	FieldFile     FieldType = "file"
	FieldTextarea FieldType = "textarea"
	FieldSubmit   FieldType = "submit"
	FieldSearch   FieldType = "search"
	FieldNumber   FieldType = "number"
)

// FormField describes one element extracted from the page DOM.
// Locator is backend-specific: a CSS selector for chromedp, an
// accessibility-tree UID for the devtools-mcp backend. Callers treat it
// as opaque.
type FormField struct {
	Locator     string    `json:"locator"`
	Name        string    `json:"name,omitempty"`
	Type        FieldType `json:"type"`
	Label       string    `json:"label,omitempty"`
	Placeholder string    `json:"placeholder,omitempty"`
	Required    bool      `json:"required"`
	Value       string    `json:"value,omitempty"`
	Options     []string  `json:"options,omitempty"`
	Visible     bool      `json:"visible"`
	Enabled     bool      `json:"enabled"`
}

// ActionResult is the uniform outcome of every adapter operation.
// Adapter operations never raise; failures are visible here.
type ActionResult struct {
	Success   bool          `json:"success"`
	Elapsed   time.Duration `json:"elapsed"`
	Error     string        `json:"error,omitempty"`
	Value     string        `json:"value,omitempty"`      // Operation-specific string payload
	Data      any           `json:"data,omitempty"`       // Operation-specific structured payload
	Base64    string        `json:"base64,omitempty"`     // Screenshot data
	FinalURL  string        `json:"final_url,omitempty"`  // Post-navigation URL
	PageTitle string        `json:"page_title,omitempty"` // Post-navigation title
}

// Failure builds a failed ActionResult with the given error text
func Failure(elapsed time.Duration, msg string) *ActionResult {
	return &ActionResult{Success: false, Elapsed: elapsed, Error: msg}
}

// DOMSnapshot is the adapter's structured view of the current page
type DOMSnapshot struct {
	URL     string      `json:"url"`
	Title   string      `json:"title"`
	HTML    string      `json:"html"` // Short snippet, not the full document
	Fields  []FormField `json:"fields"`
	TakenAt time.Time   `json:"taken_at"`
}

// Cookie is a backend-neutral browser cookie used for state restoration
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"http_only"`
	Secure   bool    `json:"secure"`
}
