// Package distribution implements the QUIC-based viewer delivery layer for
// reframed FLAC streams, including the fan-out relay and the TLS/QUIC
// server that ties it together with the REST debug API.
package distribution

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/prateekmedia/flacreframe/internal/reframe"
)

// Wire packet types. Every packet on a viewer's QUIC stream is a 4-byte
// big-endian length prefix followed by a 1-byte type tag and a type-specific
// body. This is deliberately simpler than the teacher's MoQ subgroup/object
// framing: FLAC frames are independently decodable access units with no
// GOP structure, so there is no keyframe/delta distinction to encode.
const (
	packetTypeConfig byte = 0
	packetTypeFrame  byte = 1
)

// maxPacketSize bounds a single wire packet, guarding against a malformed
// length prefix causing an unbounded allocation on read.
const maxPacketSize = 16 << 20

// writeConfigPacket writes the decoder configuration (the bytes from just
// after the fLaC magic through the last metadata block) as a config packet.
func writeConfigPacket(w io.Writer, decoderConfig []byte) error {
	body := make([]byte, 1+len(decoderConfig))
	body[0] = packetTypeConfig
	copy(body[1:], decoderConfig)
	return writeLengthPrefixed(w, body)
}

// writeFramePacket writes a single reframed FLAC access unit as a frame
// packet: CTS, duration, and SAP are carried alongside the raw frame bytes
// so a viewer can reconstruct timing without re-parsing the frame header.
func writeFramePacket(w io.Writer, out reframe.Output) error {
	body := make([]byte, 1+8+8+1+len(out.Data))
	body[0] = packetTypeFrame
	binary.BigEndian.PutUint64(body[1:9], out.CTS)
	binary.BigEndian.PutUint64(body[9:17], out.Duration)
	body[17] = byte(out.SAP)
	copy(body[18:], out.Data)
	return writeLengthPrefixed(w, body)
}

func writeLengthPrefixed(w io.Writer, body []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(body)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("write length prefix: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write packet body: %w", err)
	}
	return nil
}

// readLengthPrefixed reads a single length-prefixed packet from r.
func readLengthPrefixed(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxPacketSize {
		return nil, fmt.Errorf("packet length %d exceeds maximum %d", n, maxPacketSize)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read packet body: %w", err)
	}
	return body, nil
}

// readStreamKeyRequest reads the viewer's initial request: a single
// length-prefixed packet whose body is the UTF-8 stream key.
func readStreamKeyRequest(r io.Reader) (string, error) {
	body, err := readLengthPrefixed(r)
	if err != nil {
		return "", fmt.Errorf("read stream key request: %w", err)
	}
	return string(body), nil
}

// writeStreamKeyRequest writes a viewer's initial stream key request.
func writeStreamKeyRequest(w io.Writer, streamKey string) error {
	return writeLengthPrefixed(w, []byte(streamKey))
}
