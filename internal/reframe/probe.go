package reframe

import "github.com/prateekmedia/flacreframe/internal/flac"

// ProbeScore is the host runtime's confidence that this component can
// handle a given byte stream, mirroring the probe_data score a filter
// registers itself with before it is ever configured.
type ProbeScore int

// Probe score levels. Only the levels this component actually returns are
// defined; a richer host runtime may distinguish more (e.g. Maybe), but
// this reframer only ever claims a stream outright or not at all.
const (
	ProbeNotSupported ProbeScore = iota
	ProbeSupported
)

// Probe inspects the leading bytes of a byte stream and reports whether
// this package can reframe it, along with the MIME type to advertise if
// so. It does no allocation and never reads past len(flac.Magic) bytes.
func Probe(data []byte) (mime string, score ProbeScore) {
	if len(data) < len(flac.Magic) {
		return "", ProbeNotSupported
	}
	if string(data[:len(flac.Magic)]) != flac.Magic {
		return "", ProbeNotSupported
	}
	return "audio/flac", ProbeSupported
}
