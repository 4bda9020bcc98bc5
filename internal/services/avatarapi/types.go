package avatarapi

import (
	"strings"
	"time"
)

// Avatar is a provider avatar record.
type Avatar struct {
	ID              string
	Name            string
	Gender          string
	PreviewImageURL string
	PreviewVideoURL string
	Premium         bool
	Tags            []string
}

// Voice is a provider voice record.
type Voice struct {
	ID              string
	Name            string
	Language        string
	Gender          string
	PreviewAudioURL string
	SupportsPause   bool
	EmotionSupport  bool
}

// GenerateRequest describes a single video generation call.
type GenerateRequest struct {
	Script      string
	AvatarID    string
	VoiceID     string
	Quality     string
	AspectRatio string
	CallbackID  string
}

// Provider-reported video states after normalization.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// VideoStatus is a decoded status response.
type VideoStatus struct {
	VideoID  string
	Status   string
	Progress int
	// HasProgress is false when the provider omitted the progress field.
	HasProgress     bool
	VideoURL        string
	ThumbnailURL    string
	DurationSeconds float64
	ErrorMessage    string
	ErrorCode       string
	PolledAt        time.Time
}

// Terminal reports whether the provider considers the video finished.
func (s VideoStatus) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusFailed
}

type envelope[T any] struct {
	Data  *T      `json:"data"`
	Error *apiErr `json:"error"`
}

// missing describes an envelope without the expected payload, surfacing any
// provider error detail.
func (e envelope[T]) missing(detail string) string {
	if e.Error != nil && strings.TrimSpace(e.Error.Message) != "" {
		return detail + " (" + strings.TrimSpace(e.Error.Message) + ")"
	}
	return detail
}

type apiErr struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type avatarListData struct {
	Avatars *[]avatarPayload `json:"avatars"`
}

type avatarPayload struct {
	AvatarID        string   `json:"avatar_id"`
	AvatarName      string   `json:"avatar_name"`
	Gender          string   `json:"gender"`
	PreviewImageURL string   `json:"preview_image_url"`
	PreviewVideoURL string   `json:"preview_video_url"`
	Premium         bool     `json:"premium"`
	Tags            []string `json:"tags"`
}

type voiceListData struct {
	Voices *[]voicePayload `json:"voices"`
}

type voicePayload struct {
	VoiceID        string `json:"voice_id"`
	Name           string `json:"name"`
	DisplayName    string `json:"display_name"`
	Language       string `json:"language"`
	Gender         string `json:"gender"`
	PreviewAudio   string `json:"preview_audio"`
	SupportPause   bool   `json:"support_pause"`
	EmotionSupport bool   `json:"emotion_support"`
}

type generatePayload struct {
	Script      string `json:"script"`
	AvatarID    string `json:"avatar_id"`
	VoiceID     string `json:"voice_id"`
	Quality     string `json:"quality,omitempty"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
	CallbackID  string `json:"callback_id,omitempty"`
}

type generateData struct {
	VideoID string `json:"video_id"`
}

type statusData struct {
	ID           string   `json:"id"`
	VideoID      string   `json:"video_id"`
	Status       string   `json:"status"`
	Progress     *float64 `json:"progress"`
	VideoURL     string   `json:"video_url"`
	ThumbnailURL string   `json:"thumbnail_url"`
	Duration     float64  `json:"duration"`
	Error        *apiErr  `json:"error"`
}
