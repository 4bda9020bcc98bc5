package jobs

import (
	"context"
	"strings"

	"avatarcast/internal/catalog"
	"avatarcast/internal/services"
)

const (
	QualityLow    = "low"
	QualityMedium = "medium"
	QualityHigh   = "high"

	AspectLandscape = "16:9"
	AspectPortrait  = "9:16"
	AspectSquare    = "1:1"
)

// Resolver looks up catalog assets; satisfied by *catalog.Cache.
type Resolver interface {
	Resolve(ctx context.Context, category catalog.Category, id string) (catalog.Asset, bool)
}

// ValidQuality reports whether quality is a supported render quality.
func ValidQuality(quality string) bool {
	switch quality {
	case QualityLow, QualityMedium, QualityHigh:
		return true
	default:
		return false
	}
}

// ValidAspectRatio reports whether ratio is a supported output aspect ratio.
func ValidAspectRatio(ratio string) bool {
	switch ratio {
	case AspectLandscape, AspectPortrait, AspectSquare:
		return true
	default:
		return false
	}
}

// normalizeRequest trims fields, applies defaults, and checks the request
// shape. It does not consult the catalog.
func normalizeRequest(req Request) (Request, error) {
	req.Script = strings.TrimSpace(req.Script)
	req.AvatarID = strings.TrimSpace(req.AvatarID)
	req.VoiceID = strings.TrimSpace(req.VoiceID)
	req.Quality = strings.ToLower(strings.TrimSpace(req.Quality))
	req.AspectRatio = strings.TrimSpace(req.AspectRatio)

	if req.Script == "" {
		return req, services.Wrap(services.ErrInvalidRequest, "jobs", "validate", "script must not be empty", nil)
	}
	if req.AvatarID == "" {
		return req, services.Wrap(services.ErrInvalidReference, "jobs", "validate", "avatar id required", nil)
	}
	if req.VoiceID == "" {
		return req, services.Wrap(services.ErrInvalidReference, "jobs", "validate", "voice id required", nil)
	}
	if req.Quality == "" {
		req.Quality = QualityMedium
	}
	if !ValidQuality(req.Quality) {
		return req, services.Wrap(services.ErrInvalidRequest, "jobs", "validate", "unknown quality "+req.Quality, nil)
	}
	if req.AspectRatio == "" {
		req.AspectRatio = AspectLandscape
	}
	if !ValidAspectRatio(req.AspectRatio) {
		return req, services.Wrap(services.ErrInvalidRequest, "jobs", "validate", "unknown aspect ratio "+req.AspectRatio, nil)
	}
	return req, nil
}

func resolveReferences(ctx context.Context, resolver Resolver, req Request) error {
	if resolver == nil {
		return nil
	}
	if _, ok := resolver.Resolve(ctx, catalog.CategoryAvatar, req.AvatarID); !ok {
		return services.Wrap(services.ErrInvalidReference, "jobs", "validate", "unknown avatar "+req.AvatarID, nil)
	}
	if _, ok := resolver.Resolve(ctx, catalog.CategoryVoice, req.VoiceID); !ok {
		return services.Wrap(services.ErrInvalidReference, "jobs", "validate", "unknown voice "+req.VoiceID, nil)
	}
	return nil
}
