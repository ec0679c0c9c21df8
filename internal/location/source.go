// Package location abstracts the device location API the recording session
// consumes. A Source delivers raw coordinate payloads asynchronously; the
// session validates them into canonical samples.
package location

import (
	"context"

	"github.com/geotrail/trackrec-go/internal/models"
)

// Handler receives each raw payload delivered by a watch subscription.
type Handler func(models.RawLocation)

// Subscription is the handle for one continuous watch. Unsubscribing is
// idempotent and must always succeed regardless of what the session does
// with the data afterwards.
type Subscription interface {
	Unsubscribe()
}

// Source is a producer of location payloads. CurrentPosition is the one-shot
// "get a fix now" mode; WatchPosition delivers continuously until the
// returned subscription is cancelled.
type Source interface {
	CurrentPosition(ctx context.Context) (models.RawLocation, error)
	WatchPosition(ctx context.Context, h Handler) (Subscription, error)
}
