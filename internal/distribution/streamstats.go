package distribution

import (
	"sync"
	"sync/atomic"
	"time"
)

// ViewerStats captures per-viewer delivery metrics including frame counts
// and drop rates, used for diagnostics and the stats overlay.
type ViewerStats struct {
	ID            string `json:"id"`
	FramesSent    int64  `json:"framesSent"`
	FramesDropped int64  `json:"framesDropped"`
	BytesSent     int64  `json:"bytesSent"`
	LastCTS       int64  `json:"lastCts,omitempty"`
}

// AudioStats holds point-in-time FLAC stream metrics for a stream,
// serialized as JSON in stats snapshots sent to viewers.
type AudioStats struct {
	SampleRate    int     `json:"sampleRate"`
	Channels      int     `json:"channels"`
	BitsPerSample int     `json:"bitsPerSample"`
	BlockSize     int     `json:"blockSize"`
	TotalFrames   int64   `json:"totalFrames"`
	ResyncEvents  int64   `json:"resyncEvents"`
	BitrateKbps   float64 `json:"bitrateKbps"`
	TotalBytes    int64   `json:"totalBytes"`
}

// StreamSnapshot is the top-level stats payload for a stream, aggregating
// audio and viewer metrics into a single JSON-serializable structure.
type StreamSnapshot struct {
	Timestamp   int64         `json:"ts"`
	UptimeMs    int64         `json:"uptimeMs"`
	Protocol    string        `json:"protocol"`
	IngestBytes int64         `json:"ingestBytes"`
	IngestKbps  float64       `json:"ingestKbps"`
	Audio       AudioStats    `json:"audio"`
	ViewerCount int           `json:"viewerCount"`
	Viewers     []ViewerStats `json:"viewers,omitempty"`
}

// PipelineDebugStats captures frame-forwarding counters for the
// reframe-to-relay pipeline. ChanDepth is the number of outputs the most
// recent reframer call produced.
type PipelineDebugStats struct {
	FramesForwarded int64 `json:"framesForwarded"`
	LastForwardCTS  int64 `json:"lastForwardCts"`
	ChanDepth       int   `json:"chanDepth"`
}

// IngestDebugStats captures SRT ingest connection metrics for the debug API.
type IngestDebugStats struct {
	BytesReceived int64  `json:"bytesReceived"`
	ReadCount     int64  `json:"readCount"`
	ConnectedAt   int64  `json:"connectedAt"`
	UptimeMs      int64  `json:"uptimeMs"`
	RemoteAddr    string `json:"remoteAddr"`
}

// PipelineDebugSnapshot is the JSON response for /api/streams/{key}/debug,
// aggregating ingest, reframer, and viewer diagnostics.
type PipelineDebugSnapshot struct {
	Ingest   *IngestDebugStats  `json:"ingest,omitempty"`
	Pipeline PipelineDebugStats `json:"pipeline"`
	Viewers  []ViewerStats      `json:"viewers"`
}

// AudioStreamStats accumulates FLAC stream telemetry in a concurrency-safe
// manner using atomic counters, producing point-in-time Snapshots for the
// stats API. It is updated directly by the pipeline as frames pass through.
type AudioStreamStats struct {
	totalFrames  atomic.Int64
	resyncEvents atomic.Int64
	totalBytes   atomic.Int64

	bitrateWindowMu sync.Mutex
	bitrateWindow   []bitrateEntry

	paramsMu      sync.RWMutex
	sampleRate    int
	channels      int
	bitsPerSample int
	blockSize     int
}

type bitrateEntry struct {
	ts    time.Time
	bytes int64
}

// NewAudioStreamStats creates an AudioStreamStats ready for use.
func NewAudioStreamStats() *AudioStreamStats {
	return &AudioStreamStats{}
}

// RecordFrame records a single reframed FLAC frame's size and updates the
// bitrate sliding window.
func (as *AudioStreamStats) RecordFrame(bytes int64) {
	as.totalFrames.Add(1)
	as.totalBytes.Add(bytes)

	now := time.Now()
	as.bitrateWindowMu.Lock()
	as.bitrateWindow = append(as.bitrateWindow, bitrateEntry{ts: now, bytes: bytes})
	cutoff := now.Add(-2 * time.Second)
	i := 0
	for i < len(as.bitrateWindow) && as.bitrateWindow[i].ts.Before(cutoff) {
		i++
	}
	as.bitrateWindow = as.bitrateWindow[i:]
	as.bitrateWindowMu.Unlock()
}

// RecordResync records a lost-sync/recovery event.
func (as *AudioStreamStats) RecordResync() {
	as.resyncEvents.Add(1)
}

// RecordParams stores the current stream parameters, updated whenever the
// decoder configuration changes.
func (as *AudioStreamStats) RecordParams(sampleRate, channels, bitsPerSample, blockSize int) {
	as.paramsMu.Lock()
	as.sampleRate = sampleRate
	as.channels = channels
	as.bitsPerSample = bitsPerSample
	as.blockSize = blockSize
	as.paramsMu.Unlock()
}

// BitrateKbps computes the current bitrate from a 2-second sliding window
// of frame sizes.
func (as *AudioStreamStats) BitrateKbps() float64 {
	as.bitrateWindowMu.Lock()
	defer as.bitrateWindowMu.Unlock()

	if len(as.bitrateWindow) < 2 {
		return 0
	}

	first := as.bitrateWindow[0].ts
	last := as.bitrateWindow[len(as.bitrateWindow)-1].ts
	dur := last.Sub(first).Seconds()
	if dur <= 0 {
		return 0
	}

	var total int64
	for _, e := range as.bitrateWindow {
		total += e.bytes
	}
	return float64(total) * 8 / dur / 1000
}

// Snapshot produces a consistent point-in-time view of the audio stats.
func (as *AudioStreamStats) Snapshot() AudioStats {
	as.paramsMu.RLock()
	sampleRate, channels, bps, blockSize := as.sampleRate, as.channels, as.bitsPerSample, as.blockSize
	as.paramsMu.RUnlock()

	return AudioStats{
		SampleRate:    sampleRate,
		Channels:      channels,
		BitsPerSample: bps,
		BlockSize:     blockSize,
		TotalFrames:   as.totalFrames.Load(),
		ResyncEvents:  as.resyncEvents.Load(),
		BitrateKbps:   as.BitrateKbps(),
		TotalBytes:    as.totalBytes.Load(),
	}
}
