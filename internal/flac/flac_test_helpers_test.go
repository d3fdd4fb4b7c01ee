package flac

import "encoding/binary"

// buildStreamInfo encodes a 34-byte STREAMINFO block body.
func buildStreamInfo(sampleRate uint32, channels, bps uint8, totalSamples uint64, minBS, maxBS uint16) []byte {
	b := make([]byte, streamInfoSize)
	binary.BigEndian.PutUint16(b[0:2], minBS)
	binary.BigEndian.PutUint16(b[2:4], maxBS)
	// minFrameSize/maxFrameSize (24 bits each) left at 0: unused by this package.

	packed := uint64(sampleRate)<<44 | uint64(channels-1)<<41 | uint64(bps-1)<<36 | (totalSamples & 0xFFFFFFFFF)
	binary.BigEndian.PutUint64(b[10:18], packed)
	// MD5 left at zero.
	return b
}

// buildFLACFile prepends the "fLaC" magic and a single last-block
// STREAMINFO metadata block to the given frame bytes.
func buildFLACFile(streamInfo []byte, frames []byte) []byte {
	out := []byte(Magic)
	out = append(out, 0x80, 0x00, 0x00, byte(streamInfoSize)) // last_flag=1, type=0, length=34
	out = append(out, streamInfo...)
	out = append(out, frames...)
	return out
}

// frameParams describes the handful of frame header fields the tests need
// to control; every frame built by buildFrame is otherwise a minimal,
// well-formed FLAC frame: a single CONSTANT subframe marker byte, a
// zero-filled payload, and a correct CRC-16 footer.
type frameParams struct {
	blockSizeCode  byte
	sampleRateCode byte
	channelCode    byte
	bpsCode        byte
	payloadLen     int
}

func defaultFrameParams() frameParams {
	return frameParams{
		blockSizeCode:  12, // 256 * 2^(12-8) = 4096 samples
		sampleRateCode: 9,  // table[9-1] = 44100 Hz
		channelCode:    1,  // L R
		bpsCode:        4,  // 16 bits/sample
		payloadLen:     20,
	}
}

// buildFrame encodes a single FLAC frame per p, returning the full frame
// bytes including the header, header CRC-8, the CONSTANT-subframe marker
// byte, payloadLen zero bytes, and a valid trailing CRC-16.
func buildFrame(p frameParams) []byte {
	header := make([]byte, 0, 8)

	// sync(15) + blocking_strategy(1), byte-aligned as 0xFF 0xF8.
	header = append(header, 0xFF, 0xF8)

	header = append(header, (p.blockSizeCode<<4)|p.sampleRateCode)
	header = append(header, (p.channelCode<<4)|(p.bpsCode<<1)) // reserved bit = 0

	// Coded frame number: single byte, value 0.
	header = append(header, 0x00)

	crc := crc8sum(header)
	header = append(header, crc)

	// First subframe byte: reserved bit 0 + subframe_type 0 (CONSTANT).
	header = append(header, 0x00)

	body := make([]byte, p.payloadLen)
	frame := append(header, body...)

	footer := make([]byte, 2)
	binary.BigEndian.PutUint16(footer, crc16sum(frame))
	return append(frame, footer...)
}
