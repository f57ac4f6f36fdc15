package models

import "time"

// WaitUntil selects the navigation completion signal
type WaitUntil string

const (
	WaitLoad             WaitUntil = "load"
	WaitDOMContentLoaded WaitUntil = "domcontentloaded"
	WaitNetworkIdle      WaitUntil = "networkidle"
)

// WaitState selects the element condition awaited by WaitFor
type WaitState string

const (
	StateVisible  WaitState = "visible"
	StateHidden   WaitState = "hidden"
	StateAttached WaitState = "attached"
	StateDetached WaitState = "detached"
)

// FillOptions tunes a fill operation
type FillOptions struct {
	ClearFirst bool
	Force      bool
	Timeout    time.Duration
}

// ClickOptions tunes a click operation
type ClickOptions struct {
	Button  string // "left", "right", "middle"
	Count   int
	Force   bool
	Timeout time.Duration
}

// SelectBy picks an option in a select element by exactly one criterion
type SelectBy struct {
	Value string
	Label string
	Index int // Used when Value and Label are empty
}
