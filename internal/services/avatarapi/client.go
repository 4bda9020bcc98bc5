package avatarapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"avatarcast/internal/services"
)

const (
	defaultBaseURL     = "https://api.heygen.com/v1"
	defaultHTTPTimeout = 30 * time.Second
	maxBodyBytes       = 4 << 20
)

// Config captures the runtime settings required to talk to the provider.
type Config struct {
	BaseURL            string
	APIKey             string
	BearerToken        string
	TimeoutSeconds     int
	RateLimitPerSecond float64
	RateBurst          int
}

// Client talks to the provider HTTP API. It holds no job state.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLimiter overrides the outbound rate limiter.
func WithLimiter(limiter *rate.Limiter) Option {
	return func(c *Client) {
		if limiter != nil {
			c.limiter = limiter
		}
	}
}

// WithClock overrides the clock used to stamp status responses.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient constructs a provider client. The bearer credential is optional
// and forwarded verbatim.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			BaseURL:            strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			APIKey:             strings.TrimSpace(cfg.APIKey),
			BearerToken:        strings.TrimSpace(cfg.BearerToken),
			TimeoutSeconds:     cfg.TimeoutSeconds,
			RateLimitPerSecond: cfg.RateLimitPerSecond,
			RateBurst:          cfg.RateBurst,
		},
		httpClient: &http.Client{Timeout: timeout},
		limiter:    newLimiter(cfg.RateLimitPerSecond, cfg.RateBurst),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = defaultBaseURL
	}
	return client
}

func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// ListAvatars returns the provider's avatar catalog.
func (c *Client) ListAvatars(ctx context.Context) ([]Avatar, error) {
	const op = "list avatars"
	var env envelope[avatarListData]
	if err := c.do(ctx, op, http.MethodPost, "/avatar/list", nil, struct{}{}, &env); err != nil {
		return nil, err
	}
	if env.Data == nil || env.Data.Avatars == nil {
		return nil, malformed(op, env.missing("response missing data.avatars"), nil)
	}
	avatars := make([]Avatar, 0, len(*env.Data.Avatars))
	for _, item := range *env.Data.Avatars {
		id := strings.TrimSpace(item.AvatarID)
		if id == "" {
			return nil, malformed(op, "avatar entry missing avatar_id", nil)
		}
		avatars = append(avatars, Avatar{
			ID:              id,
			Name:            strings.TrimSpace(item.AvatarName),
			Gender:          strings.TrimSpace(item.Gender),
			PreviewImageURL: strings.TrimSpace(item.PreviewImageURL),
			PreviewVideoURL: strings.TrimSpace(item.PreviewVideoURL),
			Premium:         item.Premium,
			Tags:            item.Tags,
		})
	}
	return avatars, nil
}

// ListVoices returns the provider's voice catalog.
func (c *Client) ListVoices(ctx context.Context) ([]Voice, error) {
	const op = "list voices"
	var env envelope[voiceListData]
	if err := c.do(ctx, op, http.MethodPost, "/voice/list", nil, struct{}{}, &env); err != nil {
		return nil, err
	}
	if env.Data == nil || env.Data.Voices == nil {
		return nil, malformed(op, env.missing("response missing data.voices"), nil)
	}
	voices := make([]Voice, 0, len(*env.Data.Voices))
	for _, item := range *env.Data.Voices {
		id := strings.TrimSpace(item.VoiceID)
		if id == "" {
			return nil, malformed(op, "voice entry missing voice_id", nil)
		}
		name := strings.TrimSpace(item.DisplayName)
		if name == "" {
			name = strings.TrimSpace(item.Name)
		}
		voices = append(voices, Voice{
			ID:              id,
			Name:            name,
			Language:        strings.TrimSpace(item.Language),
			Gender:          strings.TrimSpace(item.Gender),
			PreviewAudioURL: strings.TrimSpace(item.PreviewAudio),
			SupportsPause:   item.SupportPause,
			EmotionSupport:  item.EmotionSupport,
		})
	}
	return voices, nil
}

// Generate issues the create call and returns the provider video ID.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	const op = "generate video"
	payload := generatePayload{
		Script:      strings.TrimSpace(req.Script),
		AvatarID:    strings.TrimSpace(req.AvatarID),
		VoiceID:     strings.TrimSpace(req.VoiceID),
		Quality:     strings.TrimSpace(req.Quality),
		AspectRatio: strings.TrimSpace(req.AspectRatio),
		CallbackID:  strings.TrimSpace(req.CallbackID),
	}
	var env envelope[generateData]
	if err := c.do(ctx, op, http.MethodPost, "/video/generate", nil, payload, &env); err != nil {
		return "", err
	}
	if env.Data == nil {
		return "", malformed(op, env.missing("response missing data"), nil)
	}
	videoID := strings.TrimSpace(env.Data.VideoID)
	if videoID == "" {
		return "", malformed(op, "response missing data.video_id", nil)
	}
	return videoID, nil
}

// Status fetches the current provider state of a video. Unknown status
// strings and completed videos without a URL are malformed responses.
func (c *Client) Status(ctx context.Context, videoID string) (VideoStatus, error) {
	const op = "video status"
	videoID = strings.TrimSpace(videoID)
	if videoID == "" {
		return VideoStatus{}, errors.New("avatarapi status: video id required")
	}
	query := url.Values{"video_id": []string{videoID}}
	var env envelope[statusData]
	if err := c.do(ctx, op, http.MethodGet, "/video/status", query, nil, &env); err != nil {
		return VideoStatus{}, err
	}
	if env.Data == nil {
		return VideoStatus{}, malformed(op, env.missing("response missing data"), nil)
	}
	data := env.Data
	status, ok := normalizeStatus(data.Status)
	if !ok {
		return VideoStatus{}, malformed(op, fmt.Sprintf("unknown status %q", data.Status), nil)
	}
	result := VideoStatus{
		VideoID:         firstNonEmpty(data.VideoID, data.ID, videoID),
		Status:          status,
		VideoURL:        strings.TrimSpace(data.VideoURL),
		ThumbnailURL:    strings.TrimSpace(data.ThumbnailURL),
		DurationSeconds: data.Duration,
		PolledAt:        c.now(),
	}
	if data.Progress != nil {
		result.HasProgress = true
		result.Progress = normalizeProgress(*data.Progress)
	}
	if data.Error != nil {
		result.ErrorMessage = strings.TrimSpace(data.Error.Message)
		result.ErrorCode = strings.TrimSpace(data.Error.Code)
	}
	switch status {
	case StatusCompleted:
		if result.VideoURL == "" {
			return VideoStatus{}, malformed(op, "completed video missing video_url", nil)
		}
		result.Progress = 100
		result.HasProgress = true
	case StatusFailed:
		if result.ErrorMessage == "" {
			result.ErrorMessage = "provider reported failure without detail"
		}
	}
	return result, nil
}

func normalizeStatus(raw string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending", "waiting", "queued":
		return StatusPending, true
	case "processing", "rendering", "in_progress":
		return StatusProcessing, true
	case "completed", "complete", "done", "success":
		return StatusCompleted, true
	case "failed", "error":
		return StatusFailed, true
	default:
		return "", false
	}
}

// normalizeProgress accepts either a 0-1 fraction or a 0-100 percentage.
func normalizeProgress(value float64) int {
	if value > 0 && value < 1 {
		value *= 100
	}
	switch {
	case value < 0:
		return 0
	case value > 100:
		return 100
	default:
		return int(value)
	}
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body any, out any) error {
	if c.cfg.APIKey == "" {
		return classifyConfig(op)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		// Wait fails early, unwrapped, when the deadline cannot be met.
		return services.Wrap(services.ErrTransient, component, op, "rate limiter", err)
	}

	endpoint := c.cfg.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("avatarapi %s: encode body: %w", op, err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("avatarapi %s: new request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Key", c.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.BearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classify(op, err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return classify(op, fmt.Errorf("read body: %w", err))
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return classify(op, &StatusError{
			StatusCode: resp.StatusCode,
			Body:       string(payload),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		})
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return malformed(op, "decode response", err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
