package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"avatarcast/internal/language"
	"avatarcast/internal/logging"
	"avatarcast/internal/services/avatarapi"
)

const (
	defaultTTL           = 15 * time.Minute
	defaultFallbackRetry = 30 * time.Second
	refreshTimeout       = 30 * time.Second
)

// Fetcher is the subset of the provider client the cache needs.
type Fetcher interface {
	ListAvatars(ctx context.Context) ([]avatarapi.Avatar, error)
	ListVoices(ctx context.Context) ([]avatarapi.Voice, error)
}

// Stats summarizes refresh activity for one category.
type Stats struct {
	Refreshes   int64     `json:"refreshes"`
	Failures    int64     `json:"failures"`
	LastError   string    `json:"last_error,omitempty"`
	LastSuccess time.Time `json:"last_success,omitempty"`
}

// Option customizes a Cache.
type Option func(*Cache)

// WithTTL sets how long a live snapshot is served before a background refresh.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithFallbackRetry sets how long a fallback snapshot is served before retrying the provider.
func WithFallbackRetry(interval time.Duration) Option {
	return func(c *Cache) {
		if interval > 0 {
			c.fallbackRetry = interval
		}
	}
}

// WithClock overrides the cache clock.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// Cache serves avatar and voice snapshots.
type Cache struct {
	fetcher       Fetcher
	logger        *slog.Logger
	ttl           time.Duration
	fallbackRetry time.Duration
	now           func() time.Time

	group singleflight.Group

	mu         sync.RWMutex
	snapshots  map[Category]Snapshot
	stats      map[Category]*Stats
	background map[Category]bool
	wg         sync.WaitGroup
}

// New constructs a cache around the provider fetcher.
func New(fetcher Fetcher, logger *slog.Logger, opts ...Option) *Cache {
	c := &Cache{
		fetcher:       fetcher,
		logger:        logging.NewComponentLogger(logger, "catalog"),
		ttl:           defaultTTL,
		fallbackRetry: defaultFallbackRetry,
		now:           time.Now,
		snapshots:     make(map[Category]Snapshot),
		stats:         make(map[Category]*Stats),
		background:    make(map[Category]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the held snapshot without waiting on the provider. On a cold
// start it performs the first refresh inline. Stale snapshots are returned
// immediately while one background refresh runs.
func (c *Cache) Get(ctx context.Context, category Category) Snapshot {
	c.mu.RLock()
	snap, ok := c.snapshots[category]
	c.mu.RUnlock()
	if !ok {
		return c.Refresh(ctx, category)
	}
	if c.stale(snap) {
		c.refreshInBackground(ctx, category)
	}
	return snap
}

// Refresh issues one provider call for category (shared with any concurrent
// caller) and returns the resulting snapshot. Failures return the fallback
// snapshot; a previously held live snapshot stays in place for Get.
//
// The shared call is detached from ctx so one caller giving up cannot fail
// the refresh for the others. A caller whose ctx ends first gets the held
// snapshot (or an unrecorded fallback) and the cache is left unchanged.
func (c *Cache) Refresh(ctx context.Context, category Category) Snapshot {
	ch := c.group.DoChan(string(category), func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return c.refresh(fetchCtx, category), nil
	})
	select {
	case res := <-ch:
		snap, _ := res.Val.(Snapshot)
		return snap
	case <-ctx.Done():
		return c.heldOrFallback(category, ctx.Err())
	}
}

// heldOrFallback returns the held snapshot, or a fallback that is not stored.
func (c *Cache) heldOrFallback(category Category, err error) Snapshot {
	c.mu.RLock()
	held, ok := c.snapshots[category]
	c.mu.RUnlock()
	if ok {
		return held
	}
	return FallbackSnapshot(category, c.now(), err.Error())
}

// Resolve looks id up in the current snapshot for category.
func (c *Cache) Resolve(ctx context.Context, category Category, id string) (Asset, bool) {
	return c.Get(ctx, category).Find(id)
}

// Stats returns refresh counters per category.
func (c *Cache) Stats() map[Category]Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[Category]Stats, len(c.stats))
	for category, stats := range c.stats {
		out[category] = *stats
	}
	return out
}

// Wait blocks until background refreshes finish.
func (c *Cache) Wait() {
	c.wg.Wait()
}

func (c *Cache) stale(snap Snapshot) bool {
	age := c.now().Sub(snap.FetchedAt)
	if snap.Source == SourceFallback {
		return age >= c.fallbackRetry
	}
	return age >= c.ttl
}

func (c *Cache) refreshInBackground(ctx context.Context, category Category) {
	c.mu.Lock()
	if c.background[category] {
		c.mu.Unlock()
		return
	}
	c.background[category] = true
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			delete(c.background, category)
			c.mu.Unlock()
		}()
		c.Refresh(context.WithoutCancel(ctx), category)
	}()
}

func (c *Cache) refresh(ctx context.Context, category Category) Snapshot {
	started := c.now()
	assets, err := c.fetch(ctx, category)
	if errors.Is(err, context.Canceled) {
		// Not a provider failure; leave stats and snapshots alone.
		return c.heldOrFallback(category, err)
	}
	if err != nil {
		return c.recordFailure(category, err)
	}

	snap := Snapshot{
		Category:  category,
		Assets:    assets,
		FetchedAt: c.now(),
		Source:    SourceLive,
	}
	c.mu.Lock()
	c.snapshots[category] = snap
	stats := c.statsLocked(category)
	stats.Refreshes++
	stats.LastSuccess = snap.FetchedAt
	stats.LastError = ""
	c.mu.Unlock()

	c.logger.Debug("catalog refreshed",
		logging.String("category", string(category)),
		logging.Int("assets", len(assets)),
		logging.Duration("elapsed", c.now().Sub(started)),
	)
	return snap
}

func (c *Cache) recordFailure(category Category, err error) Snapshot {
	fallback := FallbackSnapshot(category, c.now(), err.Error())

	c.mu.Lock()
	stats := c.statsLocked(category)
	stats.Refreshes++
	stats.Failures++
	stats.LastError = err.Error()
	failures := stats.Failures
	held, ok := c.snapshots[category]
	keepLive := ok && held.Source == SourceLive
	if !keepLive {
		c.snapshots[category] = fallback
	}
	c.mu.Unlock()

	impact := "serving compiled-in fallback catalog"
	if keepLive {
		impact = "continuing to serve previous live catalog"
	}
	logging.WarnWithContext(c.logger, "catalog refresh failed",
		"catalog_refresh_failed",
		logging.String("category", string(category)),
		logging.Int64("failures", failures),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "verify provider.base_url and provider.api_key, or check provider status"),
		logging.String(logging.FieldImpact, impact),
	)
	return fallback
}

func (c *Cache) statsLocked(category Category) *Stats {
	stats, ok := c.stats[category]
	if !ok {
		stats = &Stats{}
		c.stats[category] = stats
	}
	return stats
}

func (c *Cache) fetch(ctx context.Context, category Category) ([]Asset, error) {
	if c.fetcher == nil {
		return nil, fmt.Errorf("catalog %s: no provider configured", category)
	}
	switch category {
	case CategoryAvatar:
		avatars, err := c.fetcher.ListAvatars(ctx)
		if err != nil {
			return nil, err
		}
		return avatarAssets(avatars), nil
	case CategoryVoice:
		voices, err := c.fetcher.ListVoices(ctx)
		if err != nil {
			return nil, err
		}
		return voiceAssets(voices), nil
	default:
		return nil, fmt.Errorf("unknown catalog category %q", category)
	}
}

func avatarAssets(avatars []avatarapi.Avatar) []Asset {
	assets := make([]Asset, 0, len(avatars))
	for _, avatar := range avatars {
		attrs := map[string]string{}
		if avatar.Gender != "" {
			attrs["gender"] = avatar.Gender
		}
		if avatar.Premium {
			attrs["premium"] = "true"
		}
		if avatar.PreviewVideoURL != "" {
			attrs["preview_video_url"] = avatar.PreviewVideoURL
		}
		if len(avatar.Tags) > 0 {
			attrs["tags"] = joinTags(avatar.Tags)
		}
		assets = append(assets, Asset{
			ID:          avatar.ID,
			DisplayName: displayName(avatar.Name, avatar.ID),
			Category:    CategoryAvatar,
			Attributes:  attrs,
			PreviewURL:  avatar.PreviewImageURL,
			Active:      true,
		})
	}
	return assets
}

func voiceAssets(voices []avatarapi.Voice) []Asset {
	assets := make([]Asset, 0, len(voices))
	for _, voice := range voices {
		attrs := map[string]string{}
		if voice.Gender != "" {
			attrs["gender"] = voice.Gender
		}
		if voice.Language != "" {
			attrs["language"] = language.DisplayName(voice.Language)
			if code := language.Code(voice.Language); code != "" {
				attrs["language_code"] = code
			}
		}
		if voice.SupportsPause {
			attrs["supports_pause"] = "true"
		}
		if voice.EmotionSupport {
			attrs["emotion"] = "true"
		}
		assets = append(assets, Asset{
			ID:          voice.ID,
			DisplayName: displayName(voice.Name, voice.ID),
			Category:    CategoryVoice,
			Attributes:  attrs,
			PreviewURL:  voice.PreviewAudioURL,
			Active:      true,
		})
	}
	return assets
}

func joinTags(tags []string) string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	return strings.Join(out, ",")
}
