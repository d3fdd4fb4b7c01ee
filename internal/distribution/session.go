package distribution

import (
	"log/slog"
	"sync/atomic"

	"github.com/quic-go/quic-go"

	"github.com/prateekmedia/flacreframe/internal/reframe"
	"github.com/prateekmedia/flacreframe/media"
)

// viewerSendBuffer is the per-viewer outbound frame channel depth, taken
// from media.AudioBufferSize: enough to absorb jitter
// without piling up unbounded memory behind a slow client.
const viewerSendBuffer = media.AudioBufferSize

// quicViewer adapts a single QUIC stream into a Viewer, serializing writes
// through an internal channel and goroutine so a slow or stalled client
// cannot block the relay's broadcast loop.
type quicViewer struct {
	id     string
	log    *slog.Logger
	stream *quic.Stream

	frames chan reframe.Output
	done   chan struct{}

	framesSent    atomic.Int64
	framesDropped atomic.Int64
	bytesSent     atomic.Int64
	lastCTS       atomic.Int64
}

func newQUICViewer(id string, stream *quic.Stream, log *slog.Logger) *quicViewer {
	v := &quicViewer{
		id:     id,
		log:    log.With("viewer", id),
		stream: stream,
		frames: make(chan reframe.Output, viewerSendBuffer),
		done:   make(chan struct{}),
	}
	go v.writeLoop()
	return v
}

func (v *quicViewer) ID() string { return v.id }

// SendConfig writes the decoder configuration synchronously: it only ever
// happens once (or on a rare mid-stream change), so there is no need to
// route it through the buffered frame channel.
func (v *quicViewer) SendConfig(decoderConfig []byte) {
	if err := writeConfigPacket(v.stream, decoderConfig); err != nil {
		v.log.Debug("write config failed", "error", err)
	}
}

// SendFrame enqueues a frame for delivery, dropping it if the viewer's
// outbound buffer is full rather than blocking the relay's broadcast loop.
func (v *quicViewer) SendFrame(out reframe.Output) {
	select {
	case v.frames <- out:
	default:
		v.framesDropped.Add(1)
	}
}

func (v *quicViewer) writeLoop() {
	for {
		select {
		case out := <-v.frames:
			if err := writeFramePacket(v.stream, out); err != nil {
				v.log.Debug("write frame failed", "error", err)
				return
			}
			v.framesSent.Add(1)
			v.bytesSent.Add(int64(len(out.Data)))
			v.lastCTS.Store(int64(out.CTS))
		case <-v.done:
			return
		}
	}
}

func (v *quicViewer) Close() {
	close(v.done)
}

func (v *quicViewer) Stats() ViewerStats {
	return ViewerStats{
		ID:            v.id,
		FramesSent:    v.framesSent.Load(),
		FramesDropped: v.framesDropped.Load(),
		BytesSent:     v.bytesSent.Load(),
		LastCTS:       v.lastCTS.Load(),
	}
}
