// Package snapshot persists environment snapshots and the shared layouts
// blob. A snapshot body is the serialized env document; backends store it
// opaquely and replace it whole on every save.
package snapshot

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("snapshot not found")

// Backend is the persistence contract every snapshot store honours.
// Save must replace the previous body atomically: readers see either the
// old snapshot or the new one, never a partial write.
type Backend interface {
	List(ctx context.Context) ([]string, error)
	Load(ctx context.Context, eid string) ([]byte, error)
	Save(ctx context.Context, eid string, body []byte) error
	Delete(ctx context.Context, eid string) error
	// LoadLayouts returns "" with a nil error when no layouts were saved.
	LoadLayouts(ctx context.Context) (string, error)
	SaveLayouts(ctx context.Context, layouts string) error
	Ping(ctx context.Context) error
}
