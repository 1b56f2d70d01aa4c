package models

// EventType is the first level of the activity taxonomy
type EventType string

const (
	EventTypeAuthentication EventType = "authentication"
	EventTypeRead           EventType = "read"
	EventTypeMutation       EventType = "mutation"
	EventTypeFile           EventType = "file"
	EventTypeCommand        EventType = "command"
)

// EventScope is the second level of the activity taxonomy
type EventScope string

const (
	EventScopeCreate       EventScope = "create"
	EventScopeUpdate       EventScope = "update"
	EventScopeDelete       EventScope = "delete"
	EventScopeRead         EventScope = "read"
	EventScopeSearch       EventScope = "search"
	EventScopeEnrich       EventScope = "enrich"
	EventScopeAnalyze      EventScope = "analyze"
	EventScopeDownload     EventScope = "download"
	EventScopeImport       EventScope = "import"
	EventScopeExport       EventScope = "export"
	EventScopeLogin        EventScope = "login"
	EventScopeLogout       EventScope = "logout"
	EventScopeUnauthorized EventScope = "unauthorized"
	EventScopeDisseminate  EventScope = "disseminate"
	EventScopeForgot       EventScope = "forgot"
)

// EventAccess is the visibility tier of an action
type EventAccess string

const (
	EventAccessExtended       EventAccess = "extended"
	EventAccessAdministration EventAccess = "administration"
)

// EventStatus is the outcome of an action
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusError   EventStatus = "error"
)

// Origin sockets reported by the request paths
const (
	SocketQuery        = "query"
	SocketInternal     = "internal"
	SocketSubscription = "subscription"
)

// UserOrigin describes the transport that triggered an action
type UserOrigin struct {
	Socket          string `json:"socket" validate:"omitempty,oneof=query internal subscription"`
	IP              string `json:"ip,omitempty"`
	UserAgent       string `json:"user_agent,omitempty"`
	Referer         string `json:"referer,omitempty"`
	ApplicantID     string `json:"applicant_id,omitempty"`
	CallRetryNumber int    `json:"call_retry_number,omitempty"`
}

// ActionUser is the identity that performed an action
type ActionUser struct {
	ID     string     `json:"id" validate:"required"`
	Name   string     `json:"name,omitempty"`
	Origin UserOrigin `json:"origin"`
}

// UserAction is one completed request-triggered action, consumed once by the activity pipeline
type UserAction struct {
	EventType       EventType      `json:"event_type" validate:"required,oneof=authentication read mutation file command"`
	EventScope      EventScope     `json:"event_scope" validate:"required,oneof=create update delete read search enrich analyze download import export login logout unauthorized disseminate forgot"`
	EventAccess     EventAccess    `json:"event_access" validate:"required,oneof=extended administration"`
	Status          EventStatus    `json:"status,omitempty" validate:"omitempty,oneof=success error"`
	User            ActionUser     `json:"user" validate:"required"`
	ContextData     map[string]any `json:"context_data,omitempty"`
	Message         string         `json:"message,omitempty"`
	PreventIndexing *bool          `json:"prevent_indexing,omitempty"`
}

// IsError reports whether the action failed
func (a *UserAction) IsError() bool {
	return a.Status == EventStatusError
}

// Key returns the routing key of the action ("type/scope")
func (a *UserAction) Key() string {
	return string(a.EventType) + "/" + string(a.EventScope)
}

// FromSocket reports whether the action came from one of the given sockets
func (a *UserAction) FromSocket(sockets ...string) bool {
	for _, s := range sockets {
		if a.User.Origin.Socket == s {
			return true
		}
	}
	return false
}
