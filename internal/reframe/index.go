package reframe

import (
	"sort"

	"github.com/prateekmedia/flacreframe/internal/flac"
)

// IndexEntry pairs a source byte offset with the playback duration (in
// seconds) elapsed at that offset, ordered ascending by Duration.
type IndexEntry struct {
	ByteOffset uint64
	Duration   float64
}

// Index is an ordered seek index, built once per file in a probe pass. A
// binary search locates the seek target, replacing the linear scan the
// format this package distills from uses.
type Index struct {
	entries []IndexEntry
}

// Add appends e. Callers must add entries in ascending Duration order; Seek
// assumes the slice is sorted.
func (ix *Index) Add(e IndexEntry) {
	ix.entries = append(ix.entries, e)
}

// Len reports the number of entries in the index.
func (ix *Index) Len() int {
	return len(ix.entries)
}

// Seek returns the last entry with Duration <= target. ok is false if
// target precedes every entry (including when the index is empty).
func (ix *Index) Seek(target float64) (IndexEntry, bool) {
	// sort.Search finds the first entry with Duration > target; the entry
	// just before it is the one we want.
	i := sort.Search(len(ix.entries), func(i int) bool {
		return ix.entries[i].Duration > target
	})
	if i == 0 {
		return IndexEntry{}, false
	}
	return ix.entries[i-1], true
}

// BuildIndex runs a one-time probe pass over a complete in-memory FLAC file,
// parsing the metadata block chain and then walking frame boundaries,
// recording an index entry every stepSeconds of accumulated duration. It is
// intended for local file inputs where the whole file is available up
// front (internal/reframe.Reframer itself never needs random access: this
// is purely a host-side convenience for index construction).
func BuildIndex(data []byte, stepSeconds float64) (Index, flac.StreamInfo, error) {
	info, offset, status := flac.ParseMetadata(data)
	if status != flac.MetadataOK {
		return Index{}, flac.StreamInfo{}, ErrBadBitstream
	}

	var ix Index
	if stepSeconds <= 0 {
		return ix, info, nil
	}

	ix.Add(IndexEntry{ByteOffset: uint64(offset), Duration: 0})

	curHeader, ok := flac.ParseHeader(data[offset:], info.SampleRate)
	if !ok {
		return ix, info, nil
	}

	var (
		samples    uint64
		nextMark   = stepSeconds
		frameStart = offset
		chanLayout = uint32(info.Channels) - 1
	)
	for {
		// f.Header describes the *next* frame (parsed at f.End while
		// confirming this one's boundary), not the frame spanning
		// [frameStart, f.End) — that frame's header is curHeader, carried
		// forward from the previous iteration the same way process.go's
		// pendingHeader is, so the block size attributed to each span
		// matches the frame that actually occupies it.
		f, ok := flac.Locate(data, frameStart, info.SampleRate, chanLayout, false, true)
		if !ok {
			break
		}
		if f.End <= frameStart {
			break
		}
		blockSize := curHeader.BlockSize
		if blockSize == 0 {
			blockSize = uint32(info.MinBlockSize)
		}
		samples += uint64(blockSize)
		duration := float64(samples) / float64(info.SampleRate)
		if duration >= nextMark {
			ix.Add(IndexEntry{ByteOffset: uint64(f.End), Duration: duration})
			nextMark += stepSeconds
		}
		if f.Header.BlockSize != 0 || f.Header.SampleRate != 0 || f.Header.ChannelLayout != 0 {
			curHeader = f.Header
		}
		if f.End >= len(data) {
			break
		}
		frameStart = f.End
	}

	return ix, info, nil
}
