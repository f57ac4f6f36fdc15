package models

import "time"

// SessionStatus represents the lifecycle state of a browser session
type SessionStatus string

const (
	SessionCreating   SessionStatus = "creating"
	SessionActive     SessionStatus = "active"
	SessionNavigating SessionStatus = "navigating"
	SessionIdle       SessionStatus = "idle"
	SessionClosed     SessionStatus = "closed"
	SessionError      SessionStatus = "error"
)

// BackendMode identifies which automation backend drives a session
type BackendMode string

const (
	BackendChromedp    BackendMode = "chromedp"
	BackendDevtoolsMCP BackendMode = "devtools-mcp"
)

// BrowserSession is the session manager's record of one live browser
type BrowserSession struct {
	ID           string        `json:"id"`
	Status       SessionStatus `json:"status"`
	Backend      BackendMode   `json:"backend"`
	CreatedAt    time.Time     `json:"created_at"`
	LastActionAt time.Time     `json:"last_action_at"`
	ActionCount  int           `json:"action_count"`
	CurrentURL   string        `json:"current_url,omitempty"`
	PageTitle    string        `json:"page_title,omitempty"`
}

// BrowserOptions configures a new browser session
type BrowserOptions struct {
	Backend        BackendMode   `json:"backend"`
	Headless       bool          `json:"headless"`
	ViewportWidth  int           `json:"viewport_width"`
	ViewportHeight int           `json:"viewport_height"`
	SlowMo         time.Duration `json:"slow_mo"`
	UserAgent      string        `json:"user_agent,omitempty"`
	DefaultTimeout time.Duration `json:"default_timeout"`
	NavTimeout     time.Duration `json:"nav_timeout"`
	// Required for the devtools-mcp backend
	DevtoolsCommand string   `json:"devtools_command,omitempty"`
	DevtoolsArgs    []string `json:"devtools_args,omitempty"`
	ScreenshotDir   string   `json:"screenshot_dir,omitempty"`
}
