package location

import (
	"context"
	"errors"
	"sync"

	"github.com/geotrail/trackrec-go/internal/models"
)

// ErrNoFix is returned by CurrentPosition when no payload arrives before the
// context expires.
var ErrNoFix = errors.New("location: no fix available")

// ChannelSource is a Source fed programmatically through Publish. It backs
// the HTTP ingestion endpoint and the tests; anything that can produce a
// RawLocation can push through it.
type ChannelSource struct {
	mu       sync.Mutex
	nextID   int
	watchers map[int]Handler
	latest   *models.RawLocation
}

// NewChannelSource creates an empty source with no watchers.
func NewChannelSource() *ChannelSource {
	return &ChannelSource{watchers: make(map[int]Handler)}
}

// Publish delivers a payload to every active watcher and retains it as the
// latest known position.
func (s *ChannelSource) Publish(raw models.RawLocation) {
	s.mu.Lock()
	s.latest = &raw
	handlers := make([]Handler, 0, len(s.watchers))
	for _, h := range s.watchers {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	for _, h := range handlers {
		h(raw)
	}
}

// CurrentPosition returns the most recently published payload, or ErrNoFix
// when nothing has been published yet.
func (s *ChannelSource) CurrentPosition(ctx context.Context) (models.RawLocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return models.RawLocation{}, ErrNoFix
	}
	return *s.latest, nil
}

// WatchPosition registers a handler for every subsequent Publish.
func (s *ChannelSource) WatchPosition(ctx context.Context, h Handler) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = h
	return &channelSubscription{source: s, id: id}, nil
}

// WatcherCount reports how many subscriptions are live.
func (s *ChannelSource) WatcherCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers)
}

type channelSubscription struct {
	source *ChannelSource
	id     int
	once   sync.Once
}

func (c *channelSubscription) Unsubscribe() {
	c.once.Do(func() {
		c.source.mu.Lock()
		delete(c.source.watchers, c.id)
		c.source.mu.Unlock()
	})
}
