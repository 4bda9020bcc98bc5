package catalog

import (
	"maps"
	"time"
)

// Fallback assets are served whenever the provider catalog is unreachable.
// They name stock provider assets so submissions still have a chance to
// succeed once the provider recovers.
var (
	fallbackAvatars = []Asset{
		{ID: "Daisy-inskirt-20220818", DisplayName: "Daisy", Category: CategoryAvatar, Attributes: map[string]string{"gender": "female", "style": "casual"}, Active: true},
		{ID: "Tyler-incasualsuit-20220721", DisplayName: "Tyler", Category: CategoryAvatar, Attributes: map[string]string{"gender": "male", "style": "business"}, Active: true},
		{ID: "Anna_public_3_20240108", DisplayName: "Anna", Category: CategoryAvatar, Attributes: map[string]string{"gender": "female", "style": "business"}, Active: true},
		{ID: "Kristin_public_2_20240108", DisplayName: "Kristin", Category: CategoryAvatar, Attributes: map[string]string{"gender": "female", "style": "studio"}, Active: true},
	}
	fallbackVoices = []Asset{
		{ID: "2d5b0e6cf36f460aa7fc47e3eee4ba54", DisplayName: "Rachel", Category: CategoryVoice, Attributes: map[string]string{"gender": "female", "language": "English", "language_code": "en"}, Active: true},
		{ID: "1bd001e7e50f421d891986aad5158bc8", DisplayName: "Paul", Category: CategoryVoice, Attributes: map[string]string{"gender": "male", "language": "English", "language_code": "en"}, Active: true},
		{ID: "131a436c47064f708210df6628ef8f32", DisplayName: "Amber", Category: CategoryVoice, Attributes: map[string]string{"gender": "female", "language": "English", "language_code": "en"}, Active: true},
	}
)

// FallbackSnapshot returns the compiled-in snapshot for category, stamped
// with at and carrying reason as its error detail.
func FallbackSnapshot(category Category, at time.Time, reason string) Snapshot {
	var source []Asset
	switch category {
	case CategoryAvatar:
		source = fallbackAvatars
	case CategoryVoice:
		source = fallbackVoices
	}
	assets := make([]Asset, len(source))
	for i, asset := range source {
		asset.Attributes = maps.Clone(asset.Attributes)
		assets[i] = asset
	}
	return Snapshot{
		Category:  category,
		Assets:    assets,
		FetchedAt: at,
		Source:    SourceFallback,
		Err:       reason,
	}
}
