package service

import (
	"context"
	"strconv"

	apperrors "github.com/portal-hub/internal/errors"
	"github.com/portal-hub/internal/models"
	"github.com/portal-hub/internal/storage"
)

// preferenceStore is the part of the entity store PreferencesService needs
type preferenceStore interface {
	storage.SettingsStore
	storage.SiteStore
}

// PreferencesService exposes settings and quick-access sites, turning store
// absence into NOT_FOUND errors
type PreferencesService struct {
	store preferenceStore
}

// NewPreferencesService creates a preferences service
func NewPreferencesService(store preferenceStore) *PreferencesService {
	return &PreferencesService{store: store}
}

func (s *PreferencesService) GetSettings(ctx context.Context, userID int64) (*models.Settings, error) {
	settings, ok := s.store.GetSettings(userID)
	if !ok {
		return nil, apperrors.NewNotFoundError("settings", strconv.FormatInt(userID, 10))
	}
	return settings, nil
}

// CreateSettings is idempotent per user: a second call returns the existing record
func (s *PreferencesService) CreateSettings(ctx context.Context, input models.NewSettings) (*models.Settings, error) {
	if err := ValidateStruct(input); err != nil {
		return nil, err
	}
	return s.store.CreateSettings(input), nil
}

func (s *PreferencesService) UpdateSettings(ctx context.Context, userID int64, patch models.SettingsPatch) (*models.Settings, error) {
	settings, ok := s.store.UpdateSettings(userID, patch)
	if !ok {
		return nil, apperrors.NewNotFoundError("settings", strconv.FormatInt(userID, 10))
	}
	return settings, nil
}

// ListSites returns the user's shortcuts by position; an unknown user has none
func (s *PreferencesService) ListSites(ctx context.Context, userID int64) ([]*models.QuickAccessSite, error) {
	return s.store.ListSites(userID), nil
}

func (s *PreferencesService) CreateSite(ctx context.Context, input models.NewSite) (*models.QuickAccessSite, error) {
	if err := ValidateStruct(input); err != nil {
		return nil, err
	}
	return s.store.CreateSite(input), nil
}

func (s *PreferencesService) UpdateSite(ctx context.Context, id int64, patch models.SitePatch) (*models.QuickAccessSite, error) {
	site, ok := s.store.UpdateSite(id, patch)
	if !ok {
		return nil, apperrors.NewNotFoundError("site", strconv.FormatInt(id, 10))
	}
	return site, nil
}

func (s *PreferencesService) DeleteSite(ctx context.Context, id int64) error {
	if !s.store.DeleteSite(id) {
		return apperrors.NewNotFoundError("site", strconv.FormatInt(id, 10))
	}
	return nil
}
