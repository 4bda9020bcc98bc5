// Package storage writes export output to a blob store.
//
// Three backends share the Store interface: a local filesystem tree, an
// S3-compatible bucket (minio-go), and a NATS JetStream object store. Keys are
// slash-separated relative paths such as "youtube/job-1/shorts-vertical.mp4";
// Put returns the URL callers should hand out for the stored object.
package storage
