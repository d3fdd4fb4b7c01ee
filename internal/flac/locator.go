package flac

import (
	"bytes"
	"encoding/binary"
)

// Frame describes a single located frame: its header fields and the
// half-open byte range [Start, End) within the buffer passed to Locate.
type Frame struct {
	Header Header
	Start  int
	End    int
}

// Locate scans buf, starting at frameStart (the offset of the frame whose
// end we are trying to confirm), for the next confirmed frame sync. It
// implements the resync-tolerant boundary search: a `0xFF` byte is only a
// candidate if its successor matches the rest of the sync pattern, the
// tentative header parses cleanly, and — when required — the frame body's
// CRC-16 footer validates.
//
// curSampleRate and curChannelLayout are the stream's current negotiated
// values. They resolve "use current" codes inside the next header and
// decide whether the body CRC is forced: a next header whose sample rate or
// channel layout diverges from the current state always forces a check even
// when forceCRC (the docrc option) is false, since a real format change is
// exactly when false syncs are costliest to miss.
//
// ok is false when no confirmed boundary could be found in buf and more
// input is needed, unless atEOF is set, in which case the remainder of buf
// is accepted unconditionally as the stream's final frame — unless a later
// candidate's header parsed cleanly but its body CRC never validated, which
// means frameStart's own span is corrupted rather than genuinely tailless;
// ok is false in that case too, so the caller drops frameStart and resyncs
// instead of folding the corruption into one bloated "final frame".
func Locate(buf []byte, frameStart int, curSampleRate, curChannelLayout uint32, forceCRC, atEOF bool) (Frame, bool) {
	// frameStart is always the start of an already-confirmed sync (either
	// the byte right after metadata, or a header a previous Locate call
	// validated); begin the search for the *next* one just past it so we
	// never immediately rematch the current frame's own sync bytes.
	scan := frameStart + 1
	sawCRCMismatch := false
	for {
		rel := bytes.IndexByte(buf[scan:], 0xFF)
		if rel < 0 {
			break
		}
		h := scan + rel
		if h+MinHeaderWindow > len(buf) {
			break
		}
		if buf[h+1]&0xFC != 0xF8 {
			scan = h + 1
			continue
		}

		hdr, ok := ParseHeader(buf[h:], curSampleRate)
		if !ok {
			scan = h + 1
			continue
		}

		mustCheck := forceCRC || hdr.SampleRate != curSampleRate || hdr.ChannelLayout != curChannelLayout
		if mustCheck && !bodyCRCValid(buf[frameStart:h]) {
			sawCRCMismatch = true
			scan = h + 1
			continue
		}

		return Frame{Header: hdr, Start: frameStart, End: h}, true
	}

	if atEOF && len(buf) > frameStart && !sawCRCMismatch {
		// No following sync will ever arrive; the tail is the last frame.
		// Its header was already confirmed when it became frameStart.
		return Frame{Start: frameStart, End: len(buf)}, true
	}
	return Frame{}, false
}

// bodyCRCValid reports whether the trailing two bytes of frame are a valid
// big-endian CRC-16 over the bytes preceding them.
func bodyCRCValid(frame []byte) bool {
	if len(frame) < 2 {
		return false
	}
	body := frame[:len(frame)-2]
	want := binary.BigEndian.Uint16(frame[len(frame)-2:])
	return crc16sum(body) == want
}
