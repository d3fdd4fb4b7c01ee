// Package pipeline orchestrates the ingest-to-distribution data flow for a
// single FLAC stream, reading raw bytes from the ingest layer, reframing
// them into access units, and forwarding those units to the Relay while
// collecting telemetry.
package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prateekmedia/flacreframe/internal/distribution"
	"github.com/prateekmedia/flacreframe/internal/reframe"
)

// readChunkSize is the size of reads from the ingest reader fed into the
// reframer's ring buffer on each pass.
const readChunkSize = 32 * 1024

// Broadcaster is the subset of distribution.Relay that the pipeline uses to
// fan out reframed access units to viewers. Accepting an interface here
// decouples the pipeline from the concrete Relay type, making it testable
// with stubs.
type Broadcaster interface {
	SetDecoderConfig(cfg []byte)
	Broadcast(out reframe.Output)
	ViewerCount() int
	ViewerStatsAll() []distribution.ViewerStats
}

// Pipeline bridges a single stream's ingest reader and Relay. It feeds raw
// bytes through a reframe.Reframer and broadcasts the resulting access
// units to all viewers via the relay, while accumulating statistics for
// the stats overlay.
type Pipeline struct {
	log       *slog.Logger
	input     io.Reader
	reframer  *reframe.Reframer
	relay     Broadcaster
	streamKey string
	stats     *distribution.AudioStreamStats
	startTime time.Time
	protocol  string

	framesForwarded atomic.Int64
	lastForwardCTS  atomic.Int64
	chanDepth       atomic.Int32
}

// New creates a Pipeline that reframes bytes read from input and
// broadcasts the resulting access units to all viewers via the relay.
// opts configures the underlying reframer (CRC validation, seek-index
// granularity); the zero value disables CRC checking and seek indexing.
func New(streamKey string, input io.Reader, relay Broadcaster, opts reframe.Options) *Pipeline {
	log := slog.With("stream", streamKey)
	return &Pipeline{
		log:       log,
		input:     input,
		reframer:  reframe.New(opts, log.With("component", "reframer")),
		relay:     relay,
		streamKey: streamKey,
		stats:     distribution.NewAudioStreamStats(),
		startTime: time.Now(),
	}
}

// SetProtocol records the ingest protocol name (e.g. "SRT") for inclusion
// in the stats overlay sent to viewers.
func (p *Pipeline) SetProtocol(proto string) {
	p.protocol = proto
}

// StreamSnapshot returns a point-in-time snapshot of stream health metrics,
// suitable for JSON serialization and delivery to viewers.
func (p *Pipeline) StreamSnapshot() distribution.StreamSnapshot {
	return distribution.StreamSnapshot{
		Timestamp:   time.Now().UnixMilli(),
		UptimeMs:    time.Since(p.startTime).Milliseconds(),
		Protocol:    p.protocol,
		Audio:       p.stats.Snapshot(),
		ViewerCount: p.relay.ViewerCount(),
		Viewers:     p.relay.ViewerStatsAll(),
	}
}

// PipelineDebug returns low-level forwarding counters for the
// /api/streams/{key}/debug endpoint. ChanDepth is the number of outputs the
// most recent reframer call produced.
func (p *Pipeline) PipelineDebug() distribution.PipelineDebugStats {
	return distribution.PipelineDebugStats{
		FramesForwarded: p.framesForwarded.Load(),
		LastForwardCTS:  p.lastForwardCTS.Load(),
		ChanDepth:       int(p.chanDepth.Load()),
	}
}

// AudioStats returns the underlying AudioStreamStats collector.
func (p *Pipeline) AudioStats() *distribution.AudioStreamStats {
	return p.stats
}

// Run reads from the ingest input, reframes it, and forwards the resulting
// access units to the relay. It blocks until the context is cancelled, the
// input reaches EOF, or the reframer reports a fatal bitstream error.
func (p *Pipeline) Run(ctx context.Context) error {
	buf := make([]byte, readChunkSize)

	for {
		if ctx.Err() != nil {
			return nil
		}

		n, readErr := p.input.Read(buf)
		if n > 0 {
			outs, err := p.reframer.Process(reframe.Packet{Data: buf[:n]})
			if err != nil {
				p.log.Error("reframe error", "stream", p.streamKey, "error", err)
				return err
			}
			p.forward(outs)
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				outs, err := p.reframer.Flush()
				if err == nil {
					p.forward(outs)
				}
				p.log.Info("ingest stream ended", "stream", p.streamKey)
				return nil
			}
			p.log.Info("ingest read error", "stream", p.streamKey, "error", readErr)
			return readErr
		}
	}
}

func (p *Pipeline) forward(outs []reframe.Output) {
	for _, out := range outs {
		if out.ConfigChanged {
			p.relay.SetDecoderConfig(out.DecoderConfig)
			p.stats.RecordParams(int(out.SampleRate), int(out.Channels), int(out.BitsPerSample), int(out.BlockSize))
		}
		p.relay.Broadcast(out)
		p.stats.RecordFrame(int64(len(out.Data)))
		p.framesForwarded.Add(1)
		p.lastForwardCTS.Store(int64(out.CTS))
	}
	p.chanDepth.Store(int32(len(outs)))
}
