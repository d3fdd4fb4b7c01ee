package flac

// MinHeaderWindow is the smallest byte window ParseHeader needs to have any
// chance of succeeding: sync + strategy + block-size code + sample-rate code
// + channel/bps/reserved + a single-byte coded number + the header CRC.
const MinHeaderWindow = 17

// syncCode is the 15-bit frame sync pattern, 0x7FFC, read MSB-first alongside
// the 1-bit blocking-strategy flag that follows it.
const syncCode = 0x7FFC

// blockSizeTable maps the 4-bit block-size code to a sample count. Codes 0,
// 6 and 7 are handled specially: 0 is reserved, 6/7 mean "read the real
// value from the trailing extension byte(s)".
var blockSizeTable = [16]uint32{
	0, 192, 576, 1152, 2304, 4608, 0, 0,
	256, 512, 1024, 2048, 4096, 8192, 16384, 32768,
}

// sampleRateTable maps sample-rate codes 1-11 (index code-1) to Hz. Code 0
// means "use the stream sample rate"; codes 12-14 read an extension; 15 is
// reserved.
var sampleRateTable = [11]uint32{
	88200, 176400, 192000, 8000, 16000, 22050, 24000, 32000, 44100, 48000, 96000,
}

// channelLayoutCount is the number of direct channel-layout rows (codes
// 0-7); codes 8-10 are stereo variants normalized to layout 1 (L, R).
const channelLayoutCount = 8

// Header holds the fields of a FLAC frame header needed to locate frame
// boundaries and shape output packets. It does not retain the coded
// frame/sample number: that field is read only to validate the header and
// to advance the bit cursor, per the design note that frame numbering is
// reconstructed from running sample counts rather than trusted verbatim.
type Header struct {
	BlockSize     uint32
	SampleRate    uint32
	ChannelLayout uint32 // normalized, 0..channelLayoutCount-1
}

// ParseHeader attempts to parse a FLAC frame header starting at window[0].
// curSampleRate is substituted when the header's sample-rate code is 0
// ("use the stream rate"); pass 0 if the stream rate is not yet known, which
// will simply surface as a SampleRate of 0 for the caller to reject.
//
// ok is false if window is shorter than MinHeaderWindow, any reserved field
// is hit, any bit read overflows the window, the header CRC-8 fails, or the
// leading subframe-type byte is not a value a real encoder emits. A false
// result means "not a frame header here", not "malformed stream": callers
// resync by advancing one byte and retrying.
func ParseHeader(window []byte, curSampleRate uint32) (Header, bool) {
	if len(window) < MinHeaderWindow {
		return Header{}, false
	}

	r := newBitReader(window)

	if r.readBits(15) != syncCode {
		return Header{}, false
	}
	r.readBits(1) // blocking strategy: fixed vs variable, not needed downstream

	blockSizeCode := r.readBits(4)
	sampleRateCode := r.readBits(4)
	channelCode := r.readBits(4)
	bpsCode := r.readBits(3)
	if r.readBits(1) != 0 {
		return Header{}, false // reserved bit must be 0
	}

	if blockSizeCode == 0 {
		return Header{}, false
	}
	if sampleRateCode == 15 {
		return Header{}, false
	}
	if channelCode >= 11 {
		return Header{}, false
	}
	if bpsCode == 3 {
		return Header{}, false // reserved bps code
	}

	if !skipCodedNumber(&r) {
		return Header{}, false
	}

	var blockSize uint32
	switch blockSizeCode {
	case 6:
		blockSize = uint32(r.readByte()) + 1
	case 7:
		blockSize = uint32(r.readUint16()) + 1
	default:
		blockSize = blockSizeTable[blockSizeCode]
	}

	var sampleRate uint32
	switch sampleRateCode {
	case 0:
		sampleRate = curSampleRate
	case 12:
		sampleRate = uint32(r.readByte()) * 1000
	case 13:
		sampleRate = uint32(r.readUint16())
	case 14:
		sampleRate = uint32(r.readUint16()) * 10
	default:
		sampleRate = sampleRateTable[sampleRateCode-1]
	}

	channelLayout := channelCode
	if channelLayout >= channelLayoutCount {
		channelLayout = 1 // 8/9/10: stereo with mid/side coding, normalized to L/R
	}

	pos := r.bytePos()
	if pos > len(window) {
		return Header{}, false
	}
	gotCRC := r.readByte()
	if r.overflowed() {
		return Header{}, false
	}
	if crc8sum(window[:pos]) != gotCRC {
		return Header{}, false
	}

	if r.readBits(1) != 0 {
		return Header{}, false // reserved bit in first subframe header
	}
	subframeType := r.readBits(6)
	if !validSubframeType(subframeType) {
		return Header{}, false
	}

	if r.overflowed() {
		return Header{}, false
	}

	return Header{
		BlockSize:     blockSize,
		SampleRate:    sampleRate,
		ChannelLayout: channelLayout,
	}, true
}

func validSubframeType(v uint32) bool {
	switch {
	case v == 0, v == 1:
		return true
	case v >= 8 && v <= 12:
		return true
	case v >= 32:
		return true
	default:
		return false
	}
}

// skipCodedNumber consumes the variable-length UTF-8-style frame or sample
// number that follows the fixed header fields. Its value is never used
// downstream; only well-formedness matters.
func skipCodedNumber(r *bitReader) bool {
	first := r.readByte()
	top := (uint32(first) & 0x80) >> 1
	if (first&0xC0) == 0x80 || first >= 0xFE {
		return false
	}

	res := uint32(first)
	for res&top != 0 {
		c := r.readByte()
		tmp := int32(c) - 128
		if tmp>>6 != 0 {
			return false
		}
		res = (res << 6) + uint32(tmp)
		top <<= 5
	}
	return !r.overflowed()
}
