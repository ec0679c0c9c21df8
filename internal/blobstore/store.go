package blobstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key has no stored blob.
var ErrNotFound = errors.New("blobstore: key not found")

// Store is the persistence substrate consumed by the track repository: a
// flat keyspace of opaque text blobs. Implementations must make Set atomic
// per key (a reader never observes a half-written blob).
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	ListKeys(ctx context.Context) ([]string, error)
	Close() error
}
