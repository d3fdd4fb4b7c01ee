package reframe

// Packet is one input access unit as delivered by the host runtime: opaque
// bytes plus the optional CTS and byte offset the upstream source may have
// attached.
type Packet struct {
	Data []byte

	// HasCTS and CTS carry an upstream-declared composition timestamp, used
	// only in transmuxed mode and only on the first frame emitted after this
	// packet's bytes enter the ring (per the timestamp engine).
	HasCTS bool
	CTS    uint64

	// HasByteOffset and ByteOffset carry the upstream-declared source byte
	// offset of Data[0]. Used to maintain the offset tracker; absence (or a
	// value inconsistent with the running tracker) invalidates it.
	HasByteOffset bool
	ByteOffset    uint64
}

// Output is one emitted FLAC access unit, shaped from a located frame.
type Output struct {
	Data []byte

	CTS      uint64
	Duration uint64 // in output timescale units
	SAP      int    // always 1: every FLAC frame is a sync point

	FramingBegin bool
	FramingEnd   bool

	HasByteOffset bool
	ByteOffset    uint64

	// ConfigChanged is set on the first output after Configure(), and again
	// whenever the decoder configuration's CRC-32 changes. Callers should
	// re-copy the decoder-config / sample-rate / channel-layout pid
	// properties only when this is set.
	ConfigChanged  bool
	DecoderConfig  []byte
	SampleRate     uint32
	Channels       uint8
	ChannelLayout  uint32
	ChannelBitmask uint32
	BlockSize      uint32 // samples_per_frame; 0 if variable
	BitsPerSample  uint8
	Timescale      uint32

	// Bitrate and HasBitrate carry the computed average bitrate. HasBitrate
	// is only true when duration is known AND Options.TestMode permits
	// emission; Bitrate itself is always computed once duration is known,
	// regardless of TestMode, matching the source filter's coverage-mode
	// gate on emission rather than computation.
	Bitrate    uint64
	HasBitrate bool

	// CanDataRef and PlaybackFastFwd mirror the original's file-mode,
	// index-enabled-only output properties.
	CanDataRef      bool
	PlaybackFastFwd bool

	// Duration of the whole stream, as a fraction num/den (den == sample
	// rate, 0 if unknown).
	DurationNum uint64
	DurationDen uint32
}
