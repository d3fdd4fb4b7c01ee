// Package media defines the buffering constants used by the distribution
// layer. The frames themselves are carried as
// [github.com/prateekmedia/flacreframe/internal/reframe.Output] values; this
// package only sizes the channels those values flow through.
package media

// AudioBufferSize is the channel buffer size used between the relay and each
// viewer's writer, sized to absorb jitter without excessive memory: at a
// typical 4096-sample block size and 44.1kHz, ~11 seconds of audio.
const AudioBufferSize = 120
