// Package types provides common type definitions for the portal service.
package types

// Sender identifies who authored an assistant message
type Sender string

const (
	// SenderUser marks a message typed by the portal user
	SenderUser Sender = "user"
	// SenderAI marks a reply produced by the assistant
	SenderAI Sender = "ai"
)

// Valid reports whether s is one of the known senders
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderAI
}

// EntityKind names one of the collections held by the entity store
type EntityKind string

const (
	// KindUser is the user account collection
	KindUser EntityKind = "user"
	// KindSettings is the per-user preference collection
	KindSettings EntityKind = "settings"
	// KindSite is the quick-access shortcut collection
	KindSite EntityKind = "quick_access_site"
	// KindMessage is the assistant message log
	KindMessage EntityKind = "assistant_message"
)

// AllEntityKinds lists every entity kind in a stable order
var AllEntityKinds = []EntityKind{KindUser, KindSettings, KindSite, KindMessage}

// RateLimitBackend selects where request budgets are tracked
type RateLimitBackend string

const (
	// RateLimitMemory keeps budgets inside this process
	RateLimitMemory RateLimitBackend = "memory"
	// RateLimitRedis shares budgets through Redis
	RateLimitRedis RateLimitBackend = "redis"
)

// ServiceError is the body of an API error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
