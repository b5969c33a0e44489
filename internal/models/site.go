package models

// QuickAccessSite is a shortcut tile on a user's start page.
// Position defines display order; it need not be contiguous or unique.
type QuickAccessSite struct {
	ID       int64  `json:"id"`
	UserID   int64  `json:"userId"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Icon     string `json:"icon"`
	Position int    `json:"position"`
}

// NewSite is the insert payload for a quick-access site
type NewSite struct {
	UserID   int64  `json:"userId" validate:"required,gt=0"`
	Name     string `json:"name" validate:"required"`
	URL      string `json:"url" validate:"required"`
	Icon     string `json:"icon" validate:"required"`
	Position int    `json:"position"`
}

// SitePatch is a partial site update. A nil field is left untouched.
type SitePatch struct {
	Name     *string `json:"name,omitempty"`
	URL      *string `json:"url,omitempty"`
	Icon     *string `json:"icon,omitempty"`
	Position *int    `json:"position,omitempty"`
}

// Apply merges the supplied fields of p into s
func (s *QuickAccessSite) Apply(p SitePatch) {
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.URL != nil {
		s.URL = *p.URL
	}
	if p.Icon != nil {
		s.Icon = *p.Icon
	}
	if p.Position != nil {
		s.Position = *p.Position
	}
}
