package reframe

import (
	"encoding/binary"

	"github.com/prateekmedia/flacreframe/internal/flac"
)

type testFrameParams struct {
	blockSizeCode  byte
	sampleRateCode byte
	channelCode    byte
	bpsCode        byte
	payloadLen     int
}

func defaultTestFrameParams() testFrameParams {
	return testFrameParams{
		blockSizeCode:  12, // 4096 samples
		sampleRateCode: 9,  // 44100 Hz
		channelCode:    1,  // L R
		bpsCode:        4,  // 16 bits/sample
		payloadLen:     20,
	}
}

func buildTestFrame(p testFrameParams) []byte {
	header := make([]byte, 0, 8)
	header = append(header, 0xFF, 0xF8)
	header = append(header, (p.blockSizeCode<<4)|p.sampleRateCode)
	header = append(header, (p.channelCode<<4)|(p.bpsCode<<1))
	header = append(header, 0x00) // coded frame number

	header = append(header, flac.CRC8(header))
	header = append(header, 0x00) // CONSTANT subframe marker

	frame := append(header, make([]byte, p.payloadLen)...)
	footer := make([]byte, 2)
	binary.BigEndian.PutUint16(footer, flac.CRC16(frame))
	return append(frame, footer...)
}

func buildTestStreamInfo(sampleRate uint32, channels, bps uint8, totalSamples uint64, minBS, maxBS uint16) []byte {
	b := make([]byte, flac.StreamInfoSize)
	binary.BigEndian.PutUint16(b[0:2], minBS)
	binary.BigEndian.PutUint16(b[2:4], maxBS)
	packed := uint64(sampleRate)<<44 | uint64(channels-1)<<41 | uint64(bps-1)<<36 | (totalSamples & 0xFFFFFFFFF)
	binary.BigEndian.PutUint64(b[10:18], packed)
	return b
}

func buildTestFLACFile(streamInfo []byte, frames []byte) []byte {
	out := []byte(flac.Magic)
	out = append(out, 0x80, 0x00, 0x00, byte(flac.StreamInfoSize))
	out = append(out, streamInfo...)
	out = append(out, frames...)
	return out
}
