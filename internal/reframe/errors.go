package reframe

import "errors"

// ErrBadBitstream is returned when the input cannot possibly be FLAC (bad
// magic, missing STREAMINFO). It is fatal for the stream: once returned,
// every subsequent call to Process on the same Reframer returns it again
// without touching the buffered bytes.
var ErrBadBitstream = errors.New("reframe: bad FLAC bitstream")

// ErrOutOfMemory is returned when an output packet could not be allocated.
// It is transient: the input packet that triggered it is not consumed, so
// the caller can retry Process with the same packet once memory pressure
// eases.
var ErrOutOfMemory = errors.New("reframe: out of memory allocating output packet")

// ErrNotSupported is returned at configuration time when the declared input
// capabilities don't match what this reframer accepts (e.g. neither a file
// with mime/ext flac nor an unframed audio/flac stream).
var ErrNotSupported = errors.New("reframe: unsupported input configuration")
