package pipeline

import (
	"encoding/binary"

	"github.com/prateekmedia/flacreframe/internal/flac"
)

func buildOneFrameFLACFile() []byte {
	header := []byte{0xFF, 0xF8, (12 << 4) | 9, (1 << 4) | (4 << 1), 0x00}
	header = append(header, flac.CRC8(header))
	header = append(header, 0x00) // CONSTANT subframe marker
	frame := append(header, make([]byte, 20)...)
	footer := make([]byte, 2)
	binary.BigEndian.PutUint16(footer, flac.CRC16(frame))
	frame = append(frame, footer...)

	si := make([]byte, flac.StreamInfoSize)
	binary.BigEndian.PutUint16(si[0:2], 4096)
	binary.BigEndian.PutUint16(si[2:4], 4096)
	packed := uint64(44100)<<44 | uint64(1)<<41 | uint64(15)<<36 | uint64(4096)
	binary.BigEndian.PutUint64(si[10:18], packed)

	out := []byte(flac.Magic)
	out = append(out, 0x80, 0x00, 0x00, byte(flac.StreamInfoSize))
	out = append(out, si...)
	out = append(out, frame...)
	return out
}
