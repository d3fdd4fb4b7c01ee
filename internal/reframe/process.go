package reframe

import (
	"hash/crc32"
	"log/slog"
	"math"

	"github.com/prateekmedia/flacreframe/internal/flac"
)

// ringCapacityHint sizes the initial ring buffer allocation at roughly one
// maximum-size frame, avoiding repeated growth on the common path.
const ringCapacityHint = 64 * 1024

// Reframer is a single-threaded, cooperative FLAC reframing state machine:
// one instance per input pid, no shared state, no internal blocking. The
// host drives it by calling Process once per input packet and Flush at
// end-of-stream, exactly as described for the component it wraps.
type Reframer struct {
	log  *slog.Logger
	opts Options

	ring  *flac.Ring
	state state
	index Index

	decoderConfig []byte

	pendingHeader flac.Header
	havePending   bool

	pendingCTS    uint64
	pendingCTSSet bool

	byteOffsetNext uint64

	startRange float64 // seconds; valid only while state.inSeek

	fileSize uint64 // 0 if unknown; used for bitrate computation

	inError  bool
	errCause error
}

// New creates a Reframer. A nil logger defaults to slog.Default(), matching
// the rest of this module's components.
func New(opts Options, log *slog.Logger) *Reframer {
	if log == nil {
		log = slog.Default()
	}
	return &Reframer{
		log:  log.With("component", "reframe"),
		opts: opts,
		ring: flac.NewRing(ringCapacityHint),
	}
}

// SetFileSize records the total source size in bytes, used for bitrate
// computation once duration is known. Call once for file-mode input.
func (rf *Reframer) SetFileSize(size uint64) {
	rf.fileSize = size
}

// Configure supplies stream parameters out of band, required before the
// first Process call when Options.Unframed is set (there is no embedded
// "fLaC" magic or metadata chain to parse them from). It is also how a host
// signals a live decoder-config change mid-stream; Reframer detects whether
// the change is material via a CRC-32 over decoderConfig and only flags
// ConfigChanged on the next Output when it actually changed.
//
// Configure rejects caps that can never describe a valid FLAC stream
// (sample rate, channel count, or bit depth outside the format's encodable
// ranges) with ErrNotSupported, matching the pid-caps-mismatch-at-configure
// error kind; the Reframer is left unusable for the rest of its life once
// that happens.
func (rf *Reframer) Configure(info flac.StreamInfo, decoderConfig []byte) error {
	if err := validateCaps(info); err != nil {
		rf.fail(err)
		return err
	}
	rf.onStreamInfo(info, decoderConfig)
	return nil
}

// validateCaps reports ErrNotSupported if info describes caps that cannot
// correspond to any real FLAC stream: a zero or out-of-range sample rate
// (STREAMINFO's sample-rate field is 20 bits), a channel count
// outside the 8 direct channel_assignment codes this package decodes, or a
// bit depth outside FLAC's 4-32 bit sample size range.
func validateCaps(info flac.StreamInfo) error {
	if info.SampleRate == 0 || info.SampleRate > (1<<20)-1 {
		return ErrNotSupported
	}
	if info.Channels == 0 || info.Channels > 8 {
		return ErrNotSupported
	}
	if info.BitsPerSample < 4 || info.BitsPerSample > 32 {
		return ErrNotSupported
	}
	return nil
}

// Process consumes one input packet, appending its bytes to the internal
// ring and emitting zero or more Output access units for every frame
// boundary confirmed so far. It never blocks and never retains pkt.Data
// beyond this call (the bytes are copied into the ring).
func (rf *Reframer) Process(pkt Packet) ([]Output, error) {
	return rf.run(pkt, false)
}

// Flush signals end-of-stream: any bytes remaining in the ring are treated
// as one final frame (the format's "final flush" rule), emitted without
// requiring a trailing sync to confirm its length.
func (rf *Reframer) Flush() ([]Output, error) {
	return rf.run(Packet{}, true)
}

func (rf *Reframer) run(pkt Packet, atEOF bool) ([]Output, error) {
	if rf.inError {
		return nil, rf.errCause
	}

	if len(pkt.Data) > 0 {
		rf.trackByteOffset(pkt)
		rf.ring.Write(pkt.Data)
	}
	if pkt.HasCTS && !rf.opts.IsFile && !rf.opts.RecomputeCTS && !rf.pendingCTSSet {
		rf.pendingCTS = pkt.CTS
		rf.pendingCTSSet = true
	}

	if !rf.state.initialized {
		if rf.opts.Unframed {
			// Configure must be called by the host before the first
			// Process call in unframed mode; there is no magic/metadata
			// chain in the bitstream itself to parse it from.
			return nil, nil
		}
		info, consumed, status := flac.ParseMetadata(rf.ring.Bytes())
		switch status {
		case flac.MetadataInsufficient:
			if atEOF {
				rf.fail(ErrBadBitstream)
				return nil, rf.errCause
			}
			return nil, nil
		case flac.MetadataInvalid:
			rf.fail(ErrBadBitstream)
			return nil, rf.errCause
		}
		if err := validateCaps(info); err != nil {
			rf.fail(err)
			return nil, rf.errCause
		}
		rf.onStreamInfo(info, rf.ring.Bytes()[len(flac.Magic):consumed])
		rf.advanceByteOffset(uint64(consumed))
		rf.ring.Advance(consumed)
	}

	var outs []Output
	for {
		if !rf.havePending {
			if rf.ring.Len() < flac.MinHeaderWindow {
				if atEOF {
					rf.ring.Reset()
				}
				break
			}
			hdr, ok := flac.ParseHeader(rf.ring.Bytes(), rf.state.sampleRate)
			if !ok {
				rf.logResync()
				rf.advanceByteOffset(1)
				rf.ring.Advance(1)
				rf.state.isSync = false
				continue
			}
			rf.pendingHeader = hdr
			rf.havePending = true
		}

		f, ok := flac.Locate(rf.ring.Bytes(), 0, rf.state.sampleRate, rf.state.channelLayout, rf.opts.DoCRC, atEOF)
		if !ok || f.End == 0 {
			if !atEOF {
				break
			}
			// Locate could not confirm pendingHeader's own boundary even
			// with every remaining byte available: some later candidate's
			// header parsed cleanly but its body CRC never validated, so
			// frameStart's span (pendingHeader's frame) is the corrupted
			// one, not a genuine tail with nothing following it. Drop
			// pendingHeader and resync byte-by-byte from its start, same as
			// an unparseable header; the next real sync is picked up
			// cleanly once scanning reaches it.
			rf.logResync()
			rf.advanceByteOffset(1)
			rf.ring.Advance(1)
			rf.state.isSync = false
			rf.havePending = false
			continue
		}

		if rf.pendingCTSSet {
			rf.state.cts = rf.pendingCTS
			rf.pendingCTSSet = false
		}
		frame := rf.ring.Bytes()[f.Start:f.End]
		out := rf.shapeOutput(frame, rf.pendingHeader)

		rf.advanceByteOffset(uint64(f.End))
		rf.ring.Advance(f.End)
		rf.state.isSync = true

		emit := true
		if rf.state.inSeek {
			emit = rf.checkSeekReached(out)
		}
		if emit {
			outs = append(outs, out)
		}

		if f.Header.BlockSize != 0 || f.Header.SampleRate != 0 || f.Header.ChannelLayout != 0 {
			rf.pendingHeader = f.Header
			rf.havePending = true
		} else {
			rf.havePending = false
		}

		if atEOF && rf.ring.Len() == 0 {
			break
		}
	}

	return outs, nil
}

func (rf *Reframer) fail(err error) {
	rf.inError = true
	rf.errCause = err
	rf.ring.Reset()
}

func (rf *Reframer) logResync() {
	if rf.state.isSync {
		rf.log.Warn("false sync, resuming scan")
	} else {
		rf.log.Debug("false sync, resuming scan")
	}
}

// trackByteOffset maintains the ring[0] byte-offset anchor described by the
// ring buffer component: a newly arriving packet keeps the tracker valid
// only if its declared offset is contiguous with what's already buffered;
// any discontinuity invalidates it until the ring drains and a fresh offset
// arrives.
func (rf *Reframer) trackByteOffset(pkt Packet) {
	if !pkt.HasByteOffset {
		if rf.ring.Len() == 0 {
			rf.state.byteOffsetKnown = false
		}
		return
	}
	if rf.state.byteOffsetKnown && pkt.ByteOffset == rf.byteOffsetNext+uint64(rf.ring.Len()) {
		return
	}
	if rf.ring.Len() == 0 {
		rf.state.byteOffsetKnown = true
		rf.state.byteOffset = pkt.ByteOffset
		rf.byteOffsetNext = pkt.ByteOffset
		return
	}
	// Discontinuous arrival mid-buffer: offset becomes unknown until the
	// ring empties and a fresh anchor arrives, per the sticky-unknown rule.
	rf.state.byteOffsetKnown = false
}

func (rf *Reframer) advanceByteOffset(n uint64) {
	if rf.state.byteOffsetKnown {
		rf.state.byteOffset += n
	}
	rf.byteOffsetNext += n
}

func (rf *Reframer) onStreamInfo(info flac.StreamInfo, decoderConfig []byte) {
	rf.state.sampleRate = info.SampleRate
	rf.state.channels = info.Channels
	rf.state.bitsPerSample = info.BitsPerSample
	if info.MinBlockSize == info.MaxBlockSize {
		rf.state.blockSize = uint32(info.MinBlockSize)
	} else {
		rf.state.blockSize = 0
	}
	rf.state.durationNum = info.TotalSamples
	rf.state.durationDen = info.SampleRate
	rf.state.channelLayout = uint32(info.Channels) - 1
	if rf.state.channelLayout > 7 {
		rf.state.channelLayout = 1
	}

	if rf.opts.RecomputeCTS {
		rf.state.timescale = info.SampleRate
	} else if rf.pendingCTSSet {
		rf.state.cts = rf.pendingCTS
		rf.state.timescale = info.SampleRate
	} else {
		rf.state.timescale = info.SampleRate
	}

	newCRC := crc32.ChecksumIEEE(decoderConfig)
	if !rf.state.initialized || newCRC != rf.state.decoderConfigCRC {
		rf.decoderConfig = append([]byte(nil), decoderConfig...)
		rf.state.decoderConfigCRC = newCRC
		rf.state.copyProps = true
	}
	rf.state.initialized = true
}

// shapeOutput copies frame verbatim into an Output, per the output shaper
// component: cts/duration from the timestamp engine, sap=1, full framing,
// and pid property updates gated on copyProps.
func (rf *Reframer) shapeOutput(frame []byte, hdr flac.Header) Output {
	blockSize := hdr.BlockSize
	if blockSize == 0 {
		blockSize = rf.state.blockSize
	}

	out := Output{
		Data:         append([]byte(nil), frame...),
		SAP:          1,
		FramingBegin: true,
		FramingEnd:   true,
	}

	if rf.state.byteOffsetKnown {
		out.HasByteOffset = true
		out.ByteOffset = rf.state.byteOffset
	}

	duration := rescaleDuration(blockSize, rf.state.sampleRate, rf.state.timescale)
	out.CTS = rf.state.cts
	out.Duration = duration
	rf.state.cts += duration

	if hdr.SampleRate != 0 && hdr.SampleRate != rf.state.sampleRate {
		rf.state.sampleRate = hdr.SampleRate
		rf.state.copyProps = true
	}
	if hdr.ChannelLayout != rf.state.channelLayout {
		rf.state.channelLayout = hdr.ChannelLayout
		rf.state.copyProps = true
	}
	rf.state.blockSize = blockSize

	if rf.state.copyProps {
		out.ConfigChanged = true
		out.DecoderConfig = rf.decoderConfig
		out.SampleRate = rf.state.sampleRate
		out.Channels = rf.state.channels
		out.ChannelLayout = rf.state.channelLayout
		out.ChannelBitmask = channelLayoutBitmasks[rf.state.channelLayout&7]
		out.BlockSize = rf.state.blockSize
		out.BitsPerSample = rf.state.bitsPerSample
		out.Timescale = rf.state.timescale
		out.DurationNum = rf.state.durationNum
		out.DurationDen = rf.state.durationDen

		out.CanDataRef = rf.opts.IsFile
		out.PlaybackFastFwd = rf.opts.IsFile && rf.opts.IndexSeconds > 0

		if rf.state.durationDen != 0 && rf.fileSize != 0 {
			seconds := float64(rf.state.durationNum) / float64(rf.state.durationDen)
			if seconds > 0 {
				out.Bitrate = uint64(float64(rf.fileSize*8) / seconds)
			}
			out.HasBitrate = !rf.opts.TestMode && out.Bitrate != 0
		}

		rf.state.copyProps = false
	}

	return out
}

// rescaleDuration computes a frame's duration in output timescale units.
// In file mode timescale == sampleRate and this is just blockSize; in
// transmuxed mode it rescales with 64-bit intermediates per the timestamp
// engine.
func rescaleDuration(blockSize, sampleRate, timescale uint32) uint64 {
	if sampleRate == 0 || timescale == sampleRate {
		return uint64(blockSize)
	}
	return uint64(blockSize) * uint64(timescale) / uint64(sampleRate)
}

// HandlePlay implements the Play event: in file mode with a nonzero
// start_range and a built index, it resolves a byte-offset seek target and
// suppresses output until the target cts is reached; in unframed live mode
// (Options.IsFile == false) there is no seekable file underneath, so every
// Play, the first one included, simply resets the ring and resumes from the
// live edge. It returns the byte offset the host should seek the source to, and
// whether a seek is actually requested.
func (rf *Reframer) HandlePlay(startRange float64) (seekTo uint64, wantSeek bool) {
	if !rf.opts.IsFile {
		rf.ring.Reset()
		rf.havePending = false
		rf.state.inSeek = false
		return 0, false
	}

	if startRange <= 0 {
		return 0, false
	}

	entry, ok := rf.index.Seek(startRange)
	if !ok {
		return 0, false
	}

	rf.ring.Reset()
	rf.havePending = false
	rf.startRange = startRange
	rf.state.cts = uint64(math.Floor(entry.Duration * float64(rf.state.sampleRate)))
	rf.state.inSeek = true
	rf.state.byteOffsetKnown = true
	rf.state.byteOffset = entry.ByteOffset
	rf.byteOffsetNext = entry.ByteOffset

	return entry.ByteOffset, true
}

// checkSeekReached decides, while suppressing output during an in-progress
// seek, whether out reaches the requested start_range and clears in_seek if
// so. It returns whether out should actually be emitted.
func (rf *Reframer) checkSeekReached(out Output) bool {
	target := uint64(rf.startRange * float64(rf.state.sampleRate))
	if out.CTS+out.Duration >= target {
		rf.state.inSeek = false
		return true
	}
	return false
}

// HandleStop implements the Stop event: playing state is cleared and cts
// resets, but negotiated stream configuration (sample rate, decoder config,
// index) survives so a subsequent Play doesn't need to reprobe metadata.
func (rf *Reframer) HandleStop() {
	rf.state.cts = 0
	rf.state.inSeek = false
	rf.pendingCTSSet = false
	rf.ring.Reset()
	rf.havePending = false
}

// SetIndex installs a pre-built seek index (see BuildIndex), required
// before HandlePlay can resolve a nonzero start_range in file mode.
func (rf *Reframer) SetIndex(ix Index) {
	rf.index = ix
}

// StreamInfo exposes the negotiated stream parameters for callers that need
// them outside the Output stream (e.g. an HTTP debug endpoint).
func (rf *Reframer) StreamInfo() (sampleRate uint32, channels uint8, bitsPerSample uint8, blockSize uint32) {
	return rf.state.sampleRate, rf.state.channels, rf.state.bitsPerSample, rf.state.blockSize
}
