// Package flac implements the byte- and bit-level mechanics of the FLAC
// container format needed to locate frame boundaries in a live or file
// bitstream: the "fLaC" magic and STREAMINFO metadata block, the frame
// header bit layout with its CRC-8 checksum, and a resync-tolerant scanner
// that discriminates real frame syncs from coincidental false ones using
// header CRC, body CRC-16, and reserved-field checks.
//
// Apart from Ring, a plain byte accumulator, nothing in this package retains
// state across calls, and nothing in it does any I/O; the stateful reframing
// engine built on top of it lives in internal/reframe.
package flac
