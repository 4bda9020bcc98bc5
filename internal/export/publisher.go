package export

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"avatarcast/internal/services"
	"avatarcast/internal/storage"
	"avatarcast/internal/textutil"
)

// Transformer renders source bytes for a preset.
type Transformer interface {
	Transform(ctx context.Context, preset Preset, input []byte) ([]byte, error)
}

// TransformFunc adapts a function to Transformer.
type TransformFunc func(ctx context.Context, preset Preset, input []byte) ([]byte, error)

// Transform implements Transformer.
func (f TransformFunc) Transform(ctx context.Context, preset Preset, input []byte) ([]byte, error) {
	return f(ctx, preset, input)
}

// Passthrough returns input unchanged. Transcoding is delegated to the
// destination platforms.
var Passthrough = TransformFunc(func(_ context.Context, _ Preset, input []byte) ([]byte, error) {
	return input, nil
})

// Downloader fetches source assets.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// HTTPDownloader fetches sources over HTTP(S).
type HTTPDownloader struct {
	Client   *http.Client
	MaxBytes int64
}

// NewHTTPDownloader returns a downloader bounded by timeout.
func NewHTTPDownloader(timeout time.Duration) *HTTPDownloader {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &HTTPDownloader{Client: &http.Client{Timeout: timeout}, MaxBytes: 2 << 30}
}

// Download implements Downloader.
func (d *HTTPDownloader) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrInvalidRequest, "export", "download", "build request", err)
	}
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "export", "download", "fetch source", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, services.Wrap(services.ErrProviderError, "export", "download", fmt.Sprintf("source returned %s", resp.Status), nil)
	}
	reader := io.Reader(resp.Body)
	if d.MaxBytes > 0 {
		reader = io.LimitReader(resp.Body, d.MaxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "export", "download", "read source", err)
	}
	if d.MaxBytes > 0 && int64(len(data)) > d.MaxBytes {
		return nil, services.Wrap(services.ErrInvalidRequest, "export", "download", fmt.Sprintf("source exceeds %d bytes", d.MaxBytes), nil)
	}
	return data, nil
}

// PublisherOption customizes a StoragePublisher.
type PublisherOption func(*StoragePublisher)

// WithDownloader overrides the source downloader.
func WithDownloader(d Downloader) PublisherOption {
	return func(p *StoragePublisher) {
		if d != nil {
			p.downloader = d
		}
	}
}

// WithTransformer overrides the preset transformer.
func WithTransformer(t Transformer) PublisherOption {
	return func(p *StoragePublisher) {
		if t != nil {
			p.transformer = t
		}
	}
}

// StoragePublisher writes exported assets to a storage.Store.
type StoragePublisher struct {
	store       storage.Store
	downloader  Downloader
	transformer Transformer
}

// NewStoragePublisher wires a publisher over store.
func NewStoragePublisher(store storage.Store, opts ...PublisherOption) *StoragePublisher {
	p := &StoragePublisher{
		store:       store,
		downloader:  NewHTTPDownloader(0),
		transformer: Passthrough,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ObjectKey is the storage key for a task: destination/asset/preset.container.
func ObjectKey(task Task, preset Preset) string {
	container := strings.TrimPrefix(preset.Container, ".")
	if container == "" {
		container = "mp4"
	}
	return textutil.KeySegments(task.Destination, task.Source.Key()) + "/" +
		textutil.SanitizeToken(preset.ID) + "." + textutil.SanitizeToken(container)
}

// Publish implements Publisher. Objects already present are not rewritten.
func (p *StoragePublisher) Publish(ctx context.Context, task Task, preset Preset, sourceURL string) (Outcome, error) {
	if p.store == nil {
		return Outcome{}, services.Wrap(services.ErrConfiguration, "export", "publish", "storage not configured", nil)
	}
	key, err := storage.CleanKey(ObjectKey(task, preset))
	if err != nil {
		return Outcome{}, services.Wrap(services.ErrInvalidRequest, "export", "publish", "object key", err)
	}
	exists, err := p.store.Exists(ctx, key)
	if err != nil {
		return Outcome{}, services.Wrap(services.ErrTransient, "export", "publish", "check existing object", err)
	}
	if exists {
		return Outcome{URL: p.store.URL(key), Skipped: true}, nil
	}

	source, err := p.downloader.Download(ctx, sourceURL)
	if err != nil {
		return Outcome{}, err
	}
	rendered, err := p.transformer.Transform(ctx, preset, source)
	if err != nil {
		return Outcome{}, services.Wrap(services.ErrProviderError, "export", "publish", "transform for preset "+preset.ID, err)
	}
	url, err := p.store.Put(ctx, key, rendered, contentType(preset.Container))
	if err != nil {
		return Outcome{}, services.Wrap(services.ErrTransient, "export", "publish", "store object", err)
	}
	return Outcome{URL: url}, nil
}

func contentType(container string) string {
	container = strings.TrimPrefix(strings.ToLower(container), ".")
	switch container {
	case "mp4":
		return "video/mp4"
	case "webm":
		return "video/webm"
	case "mov":
		return "video/quicktime"
	}
	if ct := mime.TypeByExtension("." + container); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
