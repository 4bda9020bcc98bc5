package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"avatarcast/internal/config"
)

// NATS stores objects in a JetStream object store bucket.
type NATS struct {
	conn          *nats.Conn
	bucket        string
	store         nats.ObjectStore
	publicBaseURL string
}

// NewNATS connects to the server and binds (or creates) the bucket.
func NewNATS(serverURL, bucket, publicBaseURL string) (*NATS, error) {
	if serverURL == "" {
		return nil, errors.New("storage nats: url required")
	}
	if bucket == "" {
		return nil, errors.New("storage nats: bucket required")
	}
	conn, err := nats.Connect(serverURL, nats.Name("avatarcast"))
	if err != nil {
		return nil, fmt.Errorf("storage nats: connect: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage nats: jetstream: %w", err)
	}
	store, err := js.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucket,
		Description: "avatarcast export output",
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			conn.Close()
			return nil, fmt.Errorf("storage nats: create bucket %s: %w", bucket, err)
		}
		store, err = js.ObjectStore(bucket)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("storage nats: bind bucket %s: %w", bucket, err)
		}
	}
	return &NATS{conn: conn, bucket: bucket, store: store, publicBaseURL: publicBaseURL}, nil
}

func (n *NATS) Backend() string { return config.StorageNATS }

func (n *NATS) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	meta := &nats.ObjectMeta{Name: cleaned}
	if contentType != "" {
		meta.Headers = nats.Header{"Content-Type": []string{contentType}}
	}
	if _, err := n.store.Put(meta, bytes.NewReader(data), nats.Context(ctx)); err != nil {
		return "", fmt.Errorf("storage nats: put %s: %w", cleaned, err)
	}
	return n.URL(cleaned), nil
}

func (n *NATS) Exists(ctx context.Context, key string) (bool, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return false, err
	}
	info, err := n.store.GetInfo(cleaned, nats.Context(ctx))
	if err != nil {
		if errors.Is(err, nats.ErrObjectNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("storage nats: info %s: %w", cleaned, err)
	}
	return !info.Deleted, nil
}

func (n *NATS) URL(key string) string {
	cleaned, err := CleanKey(key)
	if err != nil {
		return ""
	}
	if n.publicBaseURL != "" {
		return joinURL(n.publicBaseURL, cleaned)
	}
	return "nats://" + n.bucket + "/" + cleaned
}

func (n *NATS) Ping(ctx context.Context) error {
	if !n.conn.IsConnected() {
		return fmt.Errorf("storage nats: not connected (status %s)", n.conn.Status())
	}
	if _, err := n.store.Status(); err != nil {
		return fmt.Errorf("storage nats: bucket %s: %w", n.bucket, err)
	}
	return ctx.Err()
}

func (n *NATS) Close() error {
	n.conn.Close()
	return nil
}
