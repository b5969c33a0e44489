package storage

import (
	"cmp"
	"slices"
	"sync"

	"github.com/portal-hub/internal/models"
)

// MemoryStore is an EntityStore kept entirely in process memory.
//
// Each entity kind has its own lock, map, secondary indexes and id counter.
// Id issuance and map insertion happen under a single write lock, so ids are
// strictly increasing per kind and never reused. Records handed out are
// copies; callers cannot mutate stored state through them.
//
// The user -> settings cascade runs as two separate locked steps. A reader
// that looks between them can see a user with no settings yet.
type MemoryStore struct {
	usersMu    sync.RWMutex
	users      map[int64]*models.User
	byUsername map[string]int64
	nextUserID int64

	settingsMu     sync.RWMutex
	settings       map[int64]*models.Settings
	settingsByUser map[int64]int64
	nextSettingsID int64

	sitesMu     sync.RWMutex
	sites       map[int64]*models.QuickAccessSite
	sitesByUser map[int64]map[int64]struct{}
	nextSiteID  int64

	messagesMu     sync.RWMutex
	messages       map[int64]*models.AssistantMessage
	messagesByUser map[int64][]int64
	nextMessageID  int64
}

var _ EntityStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store. All counters start at 1.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:          make(map[int64]*models.User),
		byUsername:     make(map[string]int64),
		nextUserID:     1,
		settings:       make(map[int64]*models.Settings),
		settingsByUser: make(map[int64]int64),
		nextSettingsID: 1,
		sites:          make(map[int64]*models.QuickAccessSite),
		sitesByUser:    make(map[int64]map[int64]struct{}),
		nextSiteID:     1,
		messages:       make(map[int64]*models.AssistantMessage),
		messagesByUser: make(map[int64][]int64),
		nextMessageID:  1,
	}
}

// GetUser returns the user with the given id
func (s *MemoryStore) GetUser(id int64) (*models.User, bool) {
	s.usersMu.RLock()
	defer s.usersMu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, false
	}
	cp := *u
	return &cp, true
}

// GetUserByUsername returns the earliest created user with this exact username
func (s *MemoryStore) GetUserByUsername(username string) (*models.User, bool) {
	s.usersMu.RLock()
	defer s.usersMu.RUnlock()

	id, ok := s.byUsername[username]
	if !ok {
		return nil, false
	}
	cp := *s.users[id]
	return &cp, true
}

// CreateUser stores a new user and provisions its default settings
func (s *MemoryStore) CreateUser(data models.NewUser) *models.User {
	s.usersMu.Lock()
	u := s.insertUserLocked(data)
	s.usersMu.Unlock()

	s.CreateSettings(models.DefaultSettings(u.ID))
	return u
}

// RegisterUser creates the user only if the username is free.
// The check and the insert share one critical section.
func (s *MemoryStore) RegisterUser(data models.NewUser) (*models.User, bool) {
	s.usersMu.Lock()
	if _, taken := s.byUsername[data.Username]; taken {
		s.usersMu.Unlock()
		return nil, false
	}
	u := s.insertUserLocked(data)
	s.usersMu.Unlock()

	s.CreateSettings(models.DefaultSettings(u.ID))
	return u, true
}

// insertUserLocked must be called with usersMu held for writing
func (s *MemoryStore) insertUserLocked(data models.NewUser) *models.User {
	id := s.nextUserID
	s.nextUserID++

	u := &models.User{
		ID:       id,
		Username: data.Username,
		Password: data.Password,
		Name:     data.Name,
	}
	s.users[id] = u
	if _, exists := s.byUsername[data.Username]; !exists {
		s.byUsername[data.Username] = id
	}

	cp := *u
	return &cp
}

// GetSettings returns the settings owned by userID
func (s *MemoryStore) GetSettings(userID int64) (*models.Settings, bool) {
	s.settingsMu.RLock()
	defer s.settingsMu.RUnlock()

	id, ok := s.settingsByUser[userID]
	if !ok {
		return nil, false
	}
	cp := *s.settings[id]
	return &cp, true
}

// CreateSettings is idempotent per user id
func (s *MemoryStore) CreateSettings(data models.NewSettings) *models.Settings {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()

	if id, ok := s.settingsByUser[data.UserID]; ok {
		cp := *s.settings[id]
		return &cp
	}

	id := s.nextSettingsID
	s.nextSettingsID++

	rec := &models.Settings{
		ID:               id,
		UserID:           data.UserID,
		ProxyEnabled:     data.ProxyEnabled,
		AudioEnabled:     data.AudioEnabled,
		DarkThemeEnabled: data.DarkThemeEnabled,
		EffectsEnabled:   data.EffectsEnabled,
	}
	s.settings[id] = rec
	s.settingsByUser[data.UserID] = id

	cp := *rec
	return &cp
}

// UpdateSettings merges the supplied flags. Nothing is created on a miss.
func (s *MemoryStore) UpdateSettings(userID int64, patch models.SettingsPatch) (*models.Settings, bool) {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()

	id, ok := s.settingsByUser[userID]
	if !ok {
		return nil, false
	}
	rec := s.settings[id]
	rec.Apply(patch)

	cp := *rec
	return &cp, true
}

// ListSites returns the user's sites ordered by position
func (s *MemoryStore) ListSites(userID int64) []*models.QuickAccessSite {
	s.sitesMu.RLock()
	defer s.sitesMu.RUnlock()

	ids := s.sitesByUser[userID]
	out := make([]*models.QuickAccessSite, 0, len(ids))
	for id := range ids {
		cp := *s.sites[id]
		out = append(out, &cp)
	}

	// ids grow with insertion, so they break position ties in creation order
	slices.SortFunc(out, func(a, b *models.QuickAccessSite) int {
		return cmp.Or(cmp.Compare(a.Position, b.Position), cmp.Compare(a.ID, b.ID))
	})
	return out
}

// CreateSite stores the site with its position taken verbatim
func (s *MemoryStore) CreateSite(data models.NewSite) *models.QuickAccessSite {
	s.sitesMu.Lock()
	defer s.sitesMu.Unlock()

	id := s.nextSiteID
	s.nextSiteID++

	rec := &models.QuickAccessSite{
		ID:       id,
		UserID:   data.UserID,
		Name:     data.Name,
		URL:      data.URL,
		Icon:     data.Icon,
		Position: data.Position,
	}
	s.sites[id] = rec

	owned, ok := s.sitesByUser[data.UserID]
	if !ok {
		owned = make(map[int64]struct{})
		s.sitesByUser[data.UserID] = owned
	}
	owned[id] = struct{}{}

	cp := *rec
	return &cp
}

// UpdateSite merges the supplied fields into an existing site
func (s *MemoryStore) UpdateSite(id int64, patch models.SitePatch) (*models.QuickAccessSite, bool) {
	s.sitesMu.Lock()
	defer s.sitesMu.Unlock()

	rec, ok := s.sites[id]
	if !ok {
		return nil, false
	}
	rec.Apply(patch)

	cp := *rec
	return &cp, true
}

// DeleteSite removes a site and reports whether it existed
func (s *MemoryStore) DeleteSite(id int64) bool {
	s.sitesMu.Lock()
	defer s.sitesMu.Unlock()

	rec, ok := s.sites[id]
	if !ok {
		return false
	}
	delete(s.sites, id)

	owned := s.sitesByUser[rec.UserID]
	delete(owned, id)
	if len(owned) == 0 {
		delete(s.sitesByUser, rec.UserID)
	}
	return true
}

// ListMessages returns the user's messages ordered by timestamp
func (s *MemoryStore) ListMessages(userID int64) []*models.AssistantMessage {
	s.messagesMu.RLock()
	defer s.messagesMu.RUnlock()

	ids := s.messagesByUser[userID]
	out := make([]*models.AssistantMessage, 0, len(ids))
	for _, id := range ids {
		cp := *s.messages[id]
		out = append(out, &cp)
	}

	// ids are appended in insertion order, a stable sort keeps it for equal timestamps
	slices.SortStableFunc(out, func(a, b *models.AssistantMessage) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})
	return out
}

// CreateMessage appends a message to the log
func (s *MemoryStore) CreateMessage(data models.NewMessage) *models.AssistantMessage {
	s.messagesMu.Lock()
	defer s.messagesMu.Unlock()

	id := s.nextMessageID
	s.nextMessageID++

	rec := &models.AssistantMessage{
		ID:        id,
		UserID:    data.UserID,
		Content:   data.Content,
		Sender:    data.Sender,
		Timestamp: data.Timestamp,
	}
	s.messages[id] = rec
	s.messagesByUser[data.UserID] = append(s.messagesByUser[data.UserID], id)

	cp := *rec
	return &cp
}

// Counts reports the number of live records of each kind
func (s *MemoryStore) Counts() EntityCounts {
	var c EntityCounts

	s.usersMu.RLock()
	c.Users = len(s.users)
	s.usersMu.RUnlock()

	s.settingsMu.RLock()
	c.Settings = len(s.settings)
	s.settingsMu.RUnlock()

	s.sitesMu.RLock()
	c.Sites = len(s.sites)
	s.sitesMu.RUnlock()

	s.messagesMu.RLock()
	c.Messages = len(s.messages)
	s.messagesMu.RUnlock()

	return c
}
