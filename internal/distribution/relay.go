package distribution

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prateekmedia/flacreframe/internal/reframe"
)

// Viewer is the interface that a connected QUIC viewer stream must
// implement to receive frames from a Relay.
type Viewer interface {
	ID() string
	SendConfig(decoderConfig []byte)
	SendFrame(out reframe.Output)
	Stats() ViewerStats
}

// frameCacheSize is the number of recent frames cached for replay to
// late-joining viewers, analogous to the teacher's audio replay cache:
// FLAC frames have no GOP structure, so every viewer is caught up with the
// same short tail of recent frames rather than waiting for a keyframe.
const frameCacheSize = 50

// Relay is the fan-out hub for a single FLAC stream. It distributes
// reframed access units to all connected viewers, caching the current
// decoder configuration and a short tail of recent frames so late-joining
// viewers can start playback immediately.
type Relay struct {
	log      *slog.Logger
	mu       sync.RWMutex
	sessions map[string]Viewer

	decoderConfig []byte
	configSet     bool
	configReady   chan struct{}

	cacheMu sync.RWMutex
	cache   []reframe.Output
}

// NewRelay creates a Relay with no viewers.
func NewRelay() *Relay {
	return &Relay{
		log:         slog.With("component", "relay"),
		sessions:    make(map[string]Viewer),
		configReady: make(chan struct{}),
	}
}

// SetDecoderConfig stores the current decoder configuration. Called by the
// pipeline whenever reframe.Output.ConfigChanged is set.
func (r *Relay) SetDecoderConfig(cfg []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoderConfig = cfg
	if !r.configSet {
		r.configSet = true
		close(r.configReady)
	}
	r.log.Debug("decoder config set", "len", len(cfg))
}

// DecoderConfig returns the current decoder configuration, or nil if none
// has been set yet.
func (r *Relay) DecoderConfig() []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.decoderConfig
}

// WaitDecoderConfig blocks until the decoder configuration is available, or
// until ctx is cancelled. Returns true if the config is ready.
func (r *Relay) WaitDecoderConfig(ctx context.Context) bool {
	r.mu.RLock()
	if r.configSet {
		r.mu.RUnlock()
		return true
	}
	r.mu.RUnlock()

	select {
	case <-r.configReady:
		return true
	case <-ctx.Done():
		return false
	}
}

// AddViewer replays the cached recent frames to the viewer, then registers
// it for live delivery. Replay happens before registration so Broadcast
// cannot interleave live frames before the replay completes.
func (r *Relay) AddViewer(v Viewer) {
	if cfg := r.DecoderConfig(); cfg != nil {
		v.SendConfig(cfg)
	}
	r.replayCache(v)

	r.mu.Lock()
	r.sessions[v.ID()] = v
	r.mu.Unlock()

	r.log.Info("viewer added", "session", v.ID(), "viewers", r.ViewerCount())
}

// RemoveViewer unregisters a viewer by ID.
func (r *Relay) RemoveViewer(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()

	r.log.Info("viewer removed", "session", id, "viewers", r.ViewerCount())
}

// Broadcast sends a reframed frame to all connected viewers and updates the
// recent-frame replay cache.
func (r *Relay) Broadcast(out reframe.Output) {
	r.cacheMu.Lock()
	if len(r.cache) >= frameCacheSize {
		copy(r.cache, r.cache[1:])
		r.cache[len(r.cache)-1] = out
	} else {
		r.cache = append(r.cache, out)
	}
	r.cacheMu.Unlock()

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, v := range r.sessions {
		v.SendFrame(out)
	}
}

func (r *Relay) replayCache(v Viewer) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	for _, out := range r.cache {
		v.SendFrame(out)
	}
}

// ViewerCount returns the number of currently connected viewers.
func (r *Relay) ViewerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ViewerStatsAll returns delivery metrics for every connected viewer.
func (r *Relay) ViewerStatsAll() []ViewerStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := make([]ViewerStats, 0, len(r.sessions))
	for _, v := range r.sessions {
		stats = append(stats, v.Stats())
	}
	return stats
}
