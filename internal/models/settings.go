package models

// Settings holds the per-user feature flags. Exactly one record exists per user.
type Settings struct {
	ID               int64 `json:"id"`
	UserID           int64 `json:"userId"`
	ProxyEnabled     bool  `json:"proxyEnabled"`
	AudioEnabled     bool  `json:"audioEnabled"`
	DarkThemeEnabled bool  `json:"darkThemeEnabled"`
	EffectsEnabled   bool  `json:"effectsEnabled"`
}

// NewSettings is the insert payload for settings
type NewSettings struct {
	UserID           int64 `json:"userId" validate:"required,gt=0"`
	ProxyEnabled     bool  `json:"proxyEnabled"`
	AudioEnabled     bool  `json:"audioEnabled"`
	DarkThemeEnabled bool  `json:"darkThemeEnabled"`
	EffectsEnabled   bool  `json:"effectsEnabled"`
}

// DefaultSettings returns the flags provisioned for a freshly created user
func DefaultSettings(userID int64) NewSettings {
	return NewSettings{
		UserID:           userID,
		ProxyEnabled:     false,
		AudioEnabled:     true,
		DarkThemeEnabled: true,
		EffectsEnabled:   true,
	}
}

// SettingsPatch is a partial settings update. A nil field is left untouched.
type SettingsPatch struct {
	ProxyEnabled     *bool `json:"proxyEnabled,omitempty"`
	AudioEnabled     *bool `json:"audioEnabled,omitempty"`
	DarkThemeEnabled *bool `json:"darkThemeEnabled,omitempty"`
	EffectsEnabled   *bool `json:"effectsEnabled,omitempty"`
}

// Apply merges the supplied flags of p into s
func (s *Settings) Apply(p SettingsPatch) {
	if p.ProxyEnabled != nil {
		s.ProxyEnabled = *p.ProxyEnabled
	}
	if p.AudioEnabled != nil {
		s.AudioEnabled = *p.AudioEnabled
	}
	if p.DarkThemeEnabled != nil {
		s.DarkThemeEnabled = *p.DarkThemeEnabled
	}
	if p.EffectsEnabled != nil {
		s.EffectsEnabled = *p.EffectsEnabled
	}
}
