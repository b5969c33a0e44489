// Package storage holds the portal entity store.
//
// Every lookup reports absence with a boolean rather than an error; the
// in-memory implementation performs no I/O and has no failure modes.
package storage

import (
	"github.com/portal-hub/internal/models"
)

// UserStore manages user accounts
type UserStore interface {
	GetUser(id int64) (*models.User, bool)
	// GetUserByUsername matches the username exactly. When advisory duplicates
	// exist the earliest created user wins.
	GetUserByUsername(username string) (*models.User, bool)
	// CreateUser stores the user and cascades default settings for it.
	// Username uniqueness is the caller's concern.
	CreateUser(data models.NewUser) *models.User
	// RegisterUser is CreateUser with an atomic uniqueness check. It returns
	// false, and writes nothing, when the username is already taken.
	RegisterUser(data models.NewUser) (*models.User, bool)
}

// SettingsStore manages the per-user preference record
type SettingsStore interface {
	GetSettings(userID int64) (*models.Settings, bool)
	// CreateSettings returns the existing record unchanged when userID already has one
	CreateSettings(data models.NewSettings) *models.Settings
	UpdateSettings(userID int64, patch models.SettingsPatch) (*models.Settings, bool)
}

// SiteStore manages quick-access shortcuts
type SiteStore interface {
	// ListSites returns the user's sites ascending by position, ties in creation order
	ListSites(userID int64) []*models.QuickAccessSite
	CreateSite(data models.NewSite) *models.QuickAccessSite
	UpdateSite(id int64, patch models.SitePatch) (*models.QuickAccessSite, bool)
	DeleteSite(id int64) bool
}

// MessageStore manages the append-only assistant log
type MessageStore interface {
	// ListMessages returns the user's messages ascending by timestamp, ties in creation order
	ListMessages(userID int64) []*models.AssistantMessage
	CreateMessage(data models.NewMessage) *models.AssistantMessage
}

// EntityCounts is the number of live records per entity kind
type EntityCounts struct {
	Users    int `json:"users"`
	Settings int `json:"settings"`
	Sites    int `json:"quickAccessSites"`
	Messages int `json:"assistantMessages"`
}

// EntityStore is the full storage boundary used by the service and API layers
type EntityStore interface {
	UserStore
	SettingsStore
	SiteStore
	MessageStore

	Counts() EntityCounts
}
