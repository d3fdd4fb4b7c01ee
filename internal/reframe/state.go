package reframe

// Options configures a Reframer. Zero value is a reasonable default except
// where noted.
type Options struct {
	// IndexSeconds is the "index" option: the spacing, in seconds, between
	// entries built into the seek index for file-mode input. <= 0 disables
	// indexing. Zero value of Options means indexing is off; callers that
	// want the spec's documented default of 1.0 should set it explicitly.
	IndexSeconds float64

	// DoCRC is the "docrc" option: force CRC-16 body validation on every
	// frame, not only on state-change boundaries.
	DoCRC bool

	// IsFile indicates the input is a seekable local FLAC file, as opposed
	// to an unframed audio/flac transmux stream with no underlying file.
	// It gates seeking behavior (byte-offset seeks vs. ring resets) and the
	// can_dataref / playback_mode=fast_forward output properties.
	IsFile bool

	// RecomputeCTS is the "nocts" input property: when set, any CTS carried
	// on input packets is ignored and cts is derived purely from block-size
	// accumulation, even in transmuxed mode.
	RecomputeCTS bool

	// TestMode gates emission of the bitrate output property. The value is
	// always computed when duration is known; TestMode only controls
	// whether it is attached to the output pid, mirroring the source
	// filter's coverage-mode behavior.
	TestMode bool

	// Unframed marks the input as a bare, unframed audio/flac stream with
	// no "fLaC" magic or metadata block chain of its own. Callers in this
	// mode must call Reframer.Configure with an out-of-band StreamInfo and
	// decoder configuration before the first Process call.
	Unframed bool
}

// channelLayout is the decoded, normalized (0..7) channel_assignment value
// from a frame header, used to index channelLayoutBitmasks.
type channelLayout = uint32

// channelLayoutNames gives a short human-readable label per layout code.
var channelLayoutNames = [8]string{
	0: "mono",
	1: "L R",
	2: "L R C",
	3: "L R Ls Rs",
	4: "L R C Ls Rs",
	5: "L R C LFE Ls Rs",
	6: "L R C LFE Ls Rs Cs",
	7: "L R C LFE Lss Rss Ls Rs",
}

// Channel bit positions within channelLayoutBitmasks, following the
// conventional WAVEFORMATEXTENSIBLE speaker-position ordering.
const (
	chanFL uint32 = 1 << iota
	chanFR
	chanFC
	chanLFE
	chanBL
	chanBR
	chanBC
	chanSL
	chanSR
)

// channelLayoutBitmasks maps each of the 8 direct channel_assignment codes
// to the bitmask the output pid's channel_layout property carries.
var channelLayoutBitmasks = [8]uint32{
	0: chanFC,
	1: chanFL | chanFR,
	2: chanFL | chanFR | chanFC,
	3: chanFL | chanFR | chanSL | chanSR,
	4: chanFL | chanFR | chanFC | chanSL | chanSR,
	5: chanFL | chanFR | chanFC | chanLFE | chanSL | chanSR,
	6: chanFL | chanFR | chanFC | chanLFE | chanSL | chanSR | chanBC,
	7: chanFL | chanFR | chanFC | chanLFE | chanBL | chanBR | chanSL | chanSR,
}

// state holds the per-instance stream state described by the data model:
// negotiated stream parameters, timestamp cursor, and the flags that drive
// resync logging and seek suppression.
type state struct {
	sampleRate    uint32
	channels      uint8
	bitsPerSample uint8
	blockSize     uint32 // 0 means variable
	channelLayout channelLayout

	durationNum uint64 // total_samples
	durationDen uint32 // sample_rate; 0 means unknown

	cts       uint64
	timescale uint32

	decoderConfigCRC uint32
	copyProps        bool

	initialized bool
	inSeek      bool
	isSync      bool

	byteOffsetKnown bool
	byteOffset      uint64
}
