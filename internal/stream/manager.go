// Package stream tracks the lifecycle of active live FLAC streams, providing
// create/remove/list operations used by the ingest and distribution layers.
package stream

import (
	"log/slog"
	"sync"
	"time"

	"github.com/prateekmedia/flacreframe/internal/ingest"
)

// Stream represents a live FLAC stream tracked by the manager.
type Stream struct {
	Key       string
	StartedAt time.Time
	Format    ingest.InputFormat
	done      chan struct{}
}

// Done returns a channel closed when the stream is removed, letting callers
// outside the ingest/distribution pair observe teardown without polling.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Manager manages the lifecycle of active streams.
type Manager struct {
	log     *slog.Logger
	mu      sync.RWMutex
	streams map[string]*Stream
}

// NewManager creates a new stream manager. If log is nil, slog.Default() is used.
func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		log:     log.With("component", "stream-manager"),
		streams: make(map[string]*Stream),
	}
}

// Create registers a new stream with the given ingest format. Returns the
// stream and true if created, or nil and false if a stream with this key
// already exists.
func (m *Manager) Create(key string, format ingest.InputFormat) (*Stream, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.streams[key]; ok {
		m.log.Warn("stream already exists, rejecting duplicate", "key", key)
		return nil, false
	}

	s := &Stream{
		Key:       key,
		StartedAt: time.Now(),
		Format:    format,
		done:      make(chan struct{}),
	}

	m.streams[key] = s
	m.log.Info("stream created", "key", key, "format", format)
	return s, true
}

// Remove removes a stream from the manager.
func (m *Manager) Remove(key string) {
	m.mu.Lock()
	s, ok := m.streams[key]
	if ok {
		delete(m.streams, key)
	}
	m.mu.Unlock()

	if ok {
		close(s.done)
		m.log.Info("stream removed", "key", key)
	}
}

// Get returns the stream registered under key, if any.
func (m *Manager) Get(key string) (*Stream, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.streams[key]
	return s, ok
}

// List returns all active streams.
func (m *Manager) List() []*Stream {
	m.mu.RLock()
	defer m.mu.RUnlock()

	streams := make([]*Stream, 0, len(m.streams))
	for _, s := range m.streams {
		streams = append(streams, s)
	}
	return streams
}
