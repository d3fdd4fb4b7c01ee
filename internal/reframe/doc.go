// Package reframe implements the stateful FLAC reframing engine: a
// single-threaded, cooperative state machine, one instance per input
// stream, that consumes arbitrarily-chunked input bytes and emits
// access-unit-aligned output packets with timestamps, decoder
// configuration, and seek support.
//
// It is built entirely on top of internal/flac's stateless parsing
// primitives; this package owns the ring buffer, the negotiated stream
// state, the seek index, and the Play/Stop event handling.
package reframe
