package types

import "time"

// RequestEvent is one lifecycle stage of a network request.
type RequestEvent string

const (
	OnBeforeRequest     RequestEvent = "on_before_request"
	OnBeforeSendHeaders RequestEvent = "on_before_send_headers"
	OnSendHeaders       RequestEvent = "on_send_headers"
	OnHeadersReceived   RequestEvent = "on_headers_received"
	OnAuthRequired      RequestEvent = "on_auth_required"
	OnBeforeRedirect    RequestEvent = "on_before_redirect"
	OnResponseStarted   RequestEvent = "on_response_started"
	OnCompleted         RequestEvent = "on_completed"
	OnErrorOccurred     RequestEvent = "on_error_occurred"
)

// Terminal reports whether the event frees the request's entry in the
// active-request table.
func (e RequestEvent) Terminal() bool {
	return e == OnCompleted || e == OnErrorOccurred
}

// ResourceType classifies what a request loads.
type ResourceType string

const (
	ResourceMainFrame  ResourceType = "main_frame"
	ResourceSubFrame   ResourceType = "sub_frame"
	ResourceStylesheet ResourceType = "stylesheet"
	ResourceScript     ResourceType = "script"
	ResourceImage      ResourceType = "image"
	ResourceFont       ResourceType = "font"
	ResourceObject     ResourceType = "object"
	ResourceXHR        ResourceType = "xmlhttprequest"
	ResourcePing       ResourceType = "ping"
	ResourceMedia      ResourceType = "media"
	ResourceWebSocket  ResourceType = "websocket"
	ResourceOther      ResourceType = "other"
)

// AllTabs means a filter is not scoped to a tab or window.
const AllTabs = -1

// RequestFilter restricts which requests a listener sees.
type RequestFilter struct {
	URLs     []string       `json:"urls,omitempty"`
	Types    []ResourceType `json:"types,omitempty"`
	TabID    int            `json:"tab_id"`
	WindowID int            `json:"window_id"`
}

// NewRequestFilter returns a filter matching all requests.
func NewRequestFilter(urls ...string) RequestFilter {
	return RequestFilter{URLs: urls, TabID: AllTabs, WindowID: AllTabs}
}

// RequestDetails is an immutable per-request snapshot. Later lifecycle
// stages replace the snapshot rather than mutating it.
type RequestDetails struct {
	RequestID       string            `json:"request_id"`
	URL             string            `json:"url"`
	Method          string            `json:"method"`
	FrameID         int               `json:"frame_id"`
	ParentFrameID   int               `json:"parent_frame_id"` // -1 = none
	TabID           int               `json:"tab_id"`          // -1 = not tab-associated
	Type            ResourceType      `json:"type"`
	Timestamp       time.Time         `json:"timestamp"`
	RequestHeaders  map[string]string `json:"request_headers,omitempty"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty"`
	StatusCode      int               `json:"status_code,omitempty"`
}

// Clone returns a deep copy so listener callbacks cannot alias the
// engine's snapshot.
func (d RequestDetails) Clone() RequestDetails {
	out := d
	if d.RequestHeaders != nil {
		out.RequestHeaders = make(map[string]string, len(d.RequestHeaders))
		for k, v := range d.RequestHeaders {
			out.RequestHeaders[k] = v
		}
	}
	if d.ResponseHeaders != nil {
		out.ResponseHeaders = make(map[string]string, len(d.ResponseHeaders))
		for k, v := range d.ResponseHeaders {
			out.ResponseHeaders[k] = v
		}
	}
	return out
}

// ActionKind discriminates the request action union.
type ActionKind string

const (
	ActionContinue      ActionKind = "continue"
	ActionCancel        ActionKind = "cancel"
	ActionRedirect      ActionKind = "redirect"
	ActionModifyHeaders ActionKind = "modify_headers"
	ActionAuth          ActionKind = "auth"
)

// RequestAction is a listener's opinion on a request. Ordering between
// kinds is a policy of the engine, not of the type.
type RequestAction struct {
	Kind        ActionKind        `json:"kind"`
	RedirectURL string            `json:"redirect_url,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Username    string            `json:"username,omitempty"`
	Password    string            `json:"password,omitempty"`
}

// Continue lets the request proceed untouched.
func Continue() RequestAction { return RequestAction{Kind: ActionContinue} }

// Cancel vetoes the request.
func Cancel() RequestAction { return RequestAction{Kind: ActionCancel} }

// Redirect rewrites the request to a new URL.
func Redirect(url string) RequestAction {
	return RequestAction{Kind: ActionRedirect, RedirectURL: url}
}

// ModifyHeaders replaces the outgoing header set.
func ModifyHeaders(headers map[string]string) RequestAction {
	return RequestAction{Kind: ActionModifyHeaders, Headers: headers}
}

// Auth supplies credentials for an auth challenge.
func Auth(username, password string) RequestAction {
	return RequestAction{Kind: ActionAuth, Username: username, Password: password}
}
