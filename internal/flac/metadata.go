package flac

import "encoding/binary"

// Magic is the 4-byte FLAC stream signature that precedes the metadata
// block chain.
const Magic = "fLaC"

// streamInfoBlockType is the metadata block type code for STREAMINFO, the
// only block type this package interprets; every other block type is
// skipped over by length.
const streamInfoBlockType = 0

// metadataBlockHeaderSize is the fixed 4-byte block header: 1 bit
// last-block flag, 7 bits block type, 24 bits length.
const metadataBlockHeaderSize = 4

// streamInfoSize is the fixed, unconditional size of the STREAMINFO block
// body in bytes.
const streamInfoSize = 34

// StreamInfoSize exposes streamInfoSize for callers outside this package
// that need to build or size a STREAMINFO block (e.g. a file writer).
const StreamInfoSize = streamInfoSize

// StreamInfo holds the decoded STREAMINFO metadata block: the only metadata
// needed to drive reframing and decoder configuration. Other block types
// (SEEKTABLE, VORBIS_COMMENT, PICTURE, ...) are consumed but not
// interpreted.
type StreamInfo struct {
	MinBlockSize  uint16
	MaxBlockSize  uint16
	MinFrameSize  uint32
	MaxFrameSize  uint32
	SampleRate    uint32
	Channels      uint8
	BitsPerSample uint8
	TotalSamples  uint64
	MD5           [16]byte

	// Raw is the verbatim STREAMINFO block body, forwarded downstream as
	// the decoder configuration record.
	Raw [streamInfoSize]byte
}

// MetadataStatus distinguishes "wait for more bytes" from "this will never
// be valid FLAC", which a byte-window parse returning a single bool cannot:
// the caller needs to know whether to keep buffering or to declare the
// stream fatally malformed.
type MetadataStatus int

const (
	MetadataInsufficient MetadataStatus = iota // need more bytes, try again later
	MetadataInvalid                            // magic or STREAMINFO block is malformed; fatal
	MetadataOK                                  // fully parsed
)

// ParseMetadata reads the "fLaC" magic and the metadata block chain from the
// front of data. On MetadataOK it returns the decoded STREAMINFO and the
// number of bytes consumed through the end of the last metadata block (the
// offset at which frame scanning should begin).
func ParseMetadata(data []byte) (StreamInfo, int, MetadataStatus) {
	if len(data) < len(Magic)+metadataBlockHeaderSize {
		return StreamInfo{}, 0, MetadataInsufficient
	}
	if string(data[:len(Magic)]) != Magic {
		return StreamInfo{}, 0, MetadataInvalid
	}

	// The metadata chain is walked block-by-block by type, not by position:
	// STREAMINFO is required somewhere in the chain but not necessarily
	// first, matching how the original demuxer scans every block and only
	// fails if it never sees one.
	pos := len(Magic)
	var info StreamInfo
	sawStreamInfo := false

	for {
		if pos+metadataBlockHeaderSize > len(data) {
			return StreamInfo{}, 0, MetadataInsufficient
		}
		header := data[pos : pos+metadataBlockHeaderSize]
		blockType := header[0] & 0x7F
		length := int(header[1])<<16 | int(header[2])<<8 | int(header[3])
		last := header[0]&0x80 != 0
		pos += metadataBlockHeaderSize

		if blockType == streamInfoBlockType {
			if length != streamInfoSize {
				return StreamInfo{}, 0, MetadataInvalid
			}
			if pos+streamInfoSize > len(data) {
				return StreamInfo{}, 0, MetadataInsufficient
			}
			info = decodeStreamInfo(data[pos : pos+streamInfoSize])
			sawStreamInfo = true
			pos += streamInfoSize
		} else {
			if pos+length > len(data) {
				return StreamInfo{}, 0, MetadataInsufficient
			}
			pos += length
		}

		if last {
			break
		}
	}

	if !sawStreamInfo {
		return StreamInfo{}, 0, MetadataInvalid
	}

	return info, pos, MetadataOK
}

func decodeStreamInfo(b []byte) StreamInfo {
	var info StreamInfo
	copy(info.Raw[:], b)

	info.MinBlockSize = binary.BigEndian.Uint16(b[0:2])
	info.MaxBlockSize = binary.BigEndian.Uint16(b[2:4])
	info.MinFrameSize = uint32(b[4])<<16 | uint32(b[5])<<8 | uint32(b[6])
	info.MaxFrameSize = uint32(b[7])<<16 | uint32(b[8])<<8 | uint32(b[9])

	// Bytes 10-17 pack: sample rate (20 bits), channels-1 (3 bits),
	// bits-per-sample-1 (5 bits), total samples (36 bits) = 64 bits exactly.
	packed := binary.BigEndian.Uint64(b[10:18])
	info.SampleRate = uint32(packed >> 44)
	info.Channels = uint8((packed>>41)&0x7) + 1
	info.BitsPerSample = uint8((packed>>36)&0x1F) + 1
	info.TotalSamples = packed & 0xFFFFFFFFF

	copy(info.MD5[:], b[18:34])
	return info
}
