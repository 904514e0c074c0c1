package console

import "encoding/json"

// ClientMessage is a message from the browser on the live list channel.
type ClientMessage struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ServerMessage is a message pushed to the browser.
type ServerMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// Client message types.
const (
	msgLoad        = "load"
	msgPage        = "page"
	msgSort        = "sort"
	msgToggleOrder = "toggle_order"
	msgPerPage     = "per_page"
	msgToggleRow   = "toggle_row"
	msgToggleAll   = "toggle_all"
	msgPing        = "ping"
)

// Server message types.
const (
	msgState  = "state"
	msgError  = "error"
	msgLogout = "logout"
	msgPong   = "pong"
)

// LoadData opens the list. Zero values fall back to the defaults.
type LoadData struct {
	Page    int    `json:"page"`
	PerPage int    `json:"per_page"`
	Sort    string `json:"sort"`
	Order   string `json:"order"`
}

// PageData selects a page.
type PageData struct {
	Page int `json:"page"`
}

// SortData selects the sort column.
type SortData struct {
	Field string `json:"field"`
}

// PerPageData changes the page size.
type PerPageData struct {
	PerPage int `json:"per_page"`
}

// ToggleRowData flips the selection of one row of the current page.
type ToggleRowData struct {
	Index int `json:"index"`
}

// ErrorData reports a failed request. View is set when the failure halted
// the list and carries the localized error component.
type ErrorData struct {
	Code    string     `json:"code"`
	Message string     `json:"message"`
	View    *errorView `json:"view,omitempty"`
}
