package catalog

import (
	"fmt"
	"strings"
	"time"

	"avatarcast/internal/language"
)

// Category identifies a catalog list.
type Category string

const (
	CategoryAvatar Category = "avatar"
	CategoryVoice  Category = "voice"
)

// Categories lists every supported category in display order.
func Categories() []Category {
	return []Category{CategoryAvatar, CategoryVoice}
}

// ParseCategory accepts singular or plural category names.
func ParseCategory(raw string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "avatar", "avatars":
		return CategoryAvatar, nil
	case "voice", "voices":
		return CategoryVoice, nil
	default:
		return "", fmt.Errorf("unknown catalog category %q (want avatar or voice)", raw)
	}
}

// Source reports where a snapshot came from.
type Source string

const (
	SourceLive     Source = "live"
	SourceFallback Source = "fallback"
)

// Asset is a selectable generation input.
type Asset struct {
	ID          string            `json:"id"`
	DisplayName string            `json:"display_name"`
	Category    Category          `json:"category"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	PreviewURL  string            `json:"preview_url,omitempty"`
	Active      bool              `json:"active"`
}

// Snapshot is an immutable view of one category.
type Snapshot struct {
	Category  Category  `json:"category"`
	Assets    []Asset   `json:"assets"`
	FetchedAt time.Time `json:"fetched_at"`
	Source    Source    `json:"source"`
	Err       string    `json:"error,omitempty"`
}

// Degraded reports whether the snapshot is synthesized fallback data.
func (s Snapshot) Degraded() bool {
	return s.Source == SourceFallback
}

// Find returns the asset with the given ID.
func (s Snapshot) Find(id string) (Asset, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Asset{}, false
	}
	for _, asset := range s.Assets {
		if asset.ID == id {
			return asset, true
		}
	}
	return Asset{}, false
}

// FilterLanguage returns a copy holding only assets whose language matches
// filter, given as a code or a name. An empty filter returns s unchanged.
func (s Snapshot) FilterLanguage(filter string) Snapshot {
	if strings.TrimSpace(filter) == "" {
		return s
	}
	out := s
	out.Assets = make([]Asset, 0, len(s.Assets))
	for _, asset := range s.Assets {
		label := asset.Attributes["language_code"]
		if label == "" {
			label = asset.Attributes["language"]
		}
		if label != "" && language.Matches(label, filter) {
			out.Assets = append(out.Assets, asset)
		}
	}
	return out
}
