package distribution

import (
	"bytes"
	"testing"

	"github.com/prateekmedia/flacreframe/internal/reframe"
)

func TestWriteReadStreamKeyRequest(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	if err := writeStreamKeyRequest(&buf, "camera1"); err != nil {
		t.Fatalf("writeStreamKeyRequest: %v", err)
	}

	key, err := readStreamKeyRequest(&buf)
	if err != nil {
		t.Fatalf("readStreamKeyRequest: %v", err)
	}
	if key != "camera1" {
		t.Errorf("key = %q, want %q", key, "camera1")
	}
}

func TestWriteConfigPacket(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	cfg := []byte{0x01, 0x02, 0x03}
	if err := writeConfigPacket(&buf, cfg); err != nil {
		t.Fatalf("writeConfigPacket: %v", err)
	}

	body, err := readLengthPrefixed(&buf)
	if err != nil {
		t.Fatalf("readLengthPrefixed: %v", err)
	}
	if body[0] != packetTypeConfig {
		t.Errorf("packet type = %d, want %d", body[0], packetTypeConfig)
	}
	if !bytes.Equal(body[1:], cfg) {
		t.Errorf("config body = %v, want %v", body[1:], cfg)
	}
}

func TestWriteFramePacket(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	out := reframe.Output{Data: []byte("framebytes"), CTS: 4096, Duration: 4096, SAP: 1}
	if err := writeFramePacket(&buf, out); err != nil {
		t.Fatalf("writeFramePacket: %v", err)
	}

	body, err := readLengthPrefixed(&buf)
	if err != nil {
		t.Fatalf("readLengthPrefixed: %v", err)
	}
	if body[0] != packetTypeFrame {
		t.Errorf("packet type = %d, want %d", body[0], packetTypeFrame)
	}
	if !bytes.Equal(body[18:], out.Data) {
		t.Errorf("frame data = %v, want %v", body[18:], out.Data)
	}
}

func TestReadLengthPrefixedRejectsOversizedPacket(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	var hdr [4]byte
	hdr[0] = 0xFF // length field far exceeds maxPacketSize
	buf.Write(hdr[:])

	if _, err := readLengthPrefixed(&buf); err == nil {
		t.Fatalf("expected an error for an oversized length prefix")
	}
}
