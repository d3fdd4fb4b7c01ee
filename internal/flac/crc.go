package flac

import (
	"github.com/mewkiz/pkg/hashutil/crc16"
	"github.com/mewkiz/pkg/hashutil/crc8"
)

// crc8sum computes the frame header checksum (poly 0x07, no reflection, zero
// init) over the header bytes preceding the checksum byte itself, using the
// same ATM CRC-8 variant mewkiz/flac validates frame headers with.
func crc8sum(data []byte) byte {
	return crc8.ChecksumATM(data)
}

// crc16sum computes the frame footer checksum (poly 0x8005 reflected, zero
// init) over the whole frame preceding the two checksum bytes, using the
// IBM CRC-16 variant FLAC's format specifies.
func crc16sum(data []byte) uint16 {
	return crc16.ChecksumIBM(data)
}

// CRC8 and CRC16 expose the frame header and frame footer checksums for
// callers that build or validate raw FLAC bytes outside this package (e.g.
// a file writer or a test fixture).
func CRC8(data []byte) byte    { return crc8sum(data) }
func CRC16(data []byte) uint16 { return crc16sum(data) }
