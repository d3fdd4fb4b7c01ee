package reframe

import (
	"testing"

	"github.com/prateekmedia/flacreframe/internal/flac"
)

func TestIndexSeek(t *testing.T) {
	t.Parallel()
	var ix Index
	ix.Add(IndexEntry{ByteOffset: 0, Duration: 0})
	ix.Add(IndexEntry{ByteOffset: 1000, Duration: 1.0})
	ix.Add(IndexEntry{ByteOffset: 2000, Duration: 2.0})

	tests := []struct {
		target     float64
		wantOffset uint64
		wantOK     bool
	}{
		{-1, 0, false},
		{0, 0, true},
		{0.5, 0, true},
		{1.0, 1000, true},
		{1.9, 1000, true},
		{5.0, 2000, true},
	}
	for _, tt := range tests {
		entry, ok := ix.Seek(tt.target)
		if ok != tt.wantOK {
			t.Errorf("Seek(%v) ok = %v, want %v", tt.target, ok, tt.wantOK)
			continue
		}
		if ok && entry.ByteOffset != tt.wantOffset {
			t.Errorf("Seek(%v) offset = %d, want %d", tt.target, entry.ByteOffset, tt.wantOffset)
		}
	}
}

func TestBuildIndexFromFile(t *testing.T) {
	t.Parallel()
	data := buildTestStream(testFrameCount)

	ix, info, err := BuildIndex(data, 0.1)
	if err != nil {
		t.Fatalf("BuildIndex error: %v", err)
	}
	if info.SampleRate != testSampleRate {
		t.Errorf("SampleRate = %d, want %d", info.SampleRate, testSampleRate)
	}
	if ix.Len() == 0 {
		t.Errorf("expected at least one index entry")
	}
}

func TestBuildIndexByteOffsetAlignsWithElapsedDuration(t *testing.T) {
	t.Parallel()
	const frameCount = 10
	data := buildTestStream(frameCount)

	ix, info, err := BuildIndex(data, 0.1)
	if err != nil {
		t.Fatalf("BuildIndex error: %v", err)
	}
	if ix.Len() < 2 {
		t.Fatalf("expected at least 2 index entries, got %d", ix.Len())
	}

	// Every frame in buildTestStream has the same fixed byte length and the
	// same testBlockSize block size, so the byte offset recorded for any
	// entry must sit on an exact frame boundary: metadataEnd + k*frameSize
	// for the integer k of whole frames elapsed by that entry's Duration.
	_, metaOffset, status := flac.ParseMetadata(data)
	if status != flac.MetadataOK {
		t.Fatalf("ParseMetadata status = %v, want OK", status)
	}
	frameSize := (len(data) - metaOffset) / frameCount

	for i, e := range ix.entries {
		if i == 0 {
			continue
		}
		elapsedFrames := int(e.Duration*float64(info.SampleRate)/float64(testBlockSize) + 0.5)
		wantOffset := uint64(metaOffset + elapsedFrames*frameSize)
		if e.ByteOffset != wantOffset {
			t.Errorf("entry %d: ByteOffset = %d, want %d (duration %.6fs => %d whole frames elapsed)",
				i, e.ByteOffset, wantOffset, e.Duration, elapsedFrames)
		}
	}
}

func TestBuildIndexRejectsBadMagic(t *testing.T) {
	t.Parallel()
	_, _, err := BuildIndex([]byte("not a flac file"), 1.0)
	if err == nil {
		t.Fatalf("expected an error for non-FLAC data")
	}
}
