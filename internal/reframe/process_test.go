package reframe

import (
	"testing"

	"github.com/prateekmedia/flacreframe/internal/flac"
)

const (
	testSampleRate = 44100
	testBlockSize  = 4096
	testFrameCount = 10
)

func buildTestStream(n int) []byte {
	si := buildTestStreamInfo(testSampleRate, 2, 16, uint64(testBlockSize*n), testBlockSize, testBlockSize)
	var frames []byte
	for i := 0; i < n; i++ {
		frames = append(frames, buildTestFrame(defaultTestFrameParams())...)
	}
	return buildTestFLACFile(si, frames)
}

func TestReframerEmitsAllFramesInOneShot(t *testing.T) {
	t.Parallel()
	rf := New(Options{}, nil)
	data := buildTestStream(testFrameCount)

	outs, err := rf.Process(Packet{Data: data})
	if err != nil {
		t.Fatalf("Process error: %v", err)
	}
	flushOuts, err := rf.Flush()
	if err != nil {
		t.Fatalf("Flush error: %v", err)
	}
	outs = append(outs, flushOuts...)

	if len(outs) != testFrameCount {
		t.Fatalf("got %d output packets, want %d", len(outs), testFrameCount)
	}

	var wantCTS uint64
	for i, o := range outs {
		if o.CTS != wantCTS {
			t.Errorf("packet %d: CTS = %d, want %d", i, o.CTS, wantCTS)
		}
		if o.Duration != testBlockSize {
			t.Errorf("packet %d: Duration = %d, want %d", i, o.Duration, testBlockSize)
		}
		if o.SAP != 1 {
			t.Errorf("packet %d: SAP = %d, want 1", i, o.SAP)
		}
		wantCTS += testBlockSize
	}
	if !outs[0].ConfigChanged {
		t.Errorf("first packet did not carry a decoder-config change")
	}
}

func TestReframerChunkedInputMatchesOneShot(t *testing.T) {
	t.Parallel()
	data := buildTestStream(testFrameCount)

	rf := New(Options{}, nil)
	var chunked []Output
	for off := 0; off < len(data); off += 37 {
		end := off + 37
		if end > len(data) {
			end = len(data)
		}
		outs, err := rf.Process(Packet{Data: data[off:end]})
		if err != nil {
			t.Fatalf("Process error: %v", err)
		}
		chunked = append(chunked, outs...)
	}
	flushOuts, err := rf.Flush()
	if err != nil {
		t.Fatalf("Flush error: %v", err)
	}
	chunked = append(chunked, flushOuts...)

	if len(chunked) != testFrameCount {
		t.Fatalf("got %d output packets from chunked input, want %d", len(chunked), testFrameCount)
	}
	for i, o := range chunked {
		wantCTS := uint64(i) * testBlockSize
		if o.CTS != wantCTS {
			t.Errorf("packet %d: CTS = %d, want %d", i, o.CTS, wantCTS)
		}
	}
}

func TestReframerSkipsFalseSyncInsidePayload(t *testing.T) {
	t.Parallel()
	si := buildTestStreamInfo(testSampleRate, 2, 16, uint64(testBlockSize*testFrameCount), testBlockSize, testBlockSize)

	var frames []byte
	for i := 0; i < testFrameCount; i++ {
		f := buildTestFrame(defaultTestFrameParams())
		if i == 2 {
			// Plant a spurious sync inside frame 3's payload (index 2).
			f[10] = 0xFF
			f[11] = 0xF8
		}
		frames = append(frames, f...)
	}
	data := buildTestFLACFile(si, frames)

	rf := New(Options{}, nil)
	outs, err := rf.Process(Packet{Data: data})
	if err != nil {
		t.Fatalf("Process error: %v", err)
	}
	flushOuts, err := rf.Flush()
	if err != nil {
		t.Fatalf("Flush error: %v", err)
	}
	outs = append(outs, flushOuts...)

	if len(outs) != testFrameCount {
		t.Fatalf("got %d output packets, want %d (false sync should be skipped)", len(outs), testFrameCount)
	}
}

func TestReframerDoCRCSkipsOnlyCorruptFrame(t *testing.T) {
	t.Parallel()
	si := buildTestStreamInfo(testSampleRate, 2, 16, uint64(testBlockSize*testFrameCount), testBlockSize, testBlockSize)

	const corruptIdx = 3
	frames := make([][]byte, testFrameCount)
	for i := range frames {
		frames[i] = buildTestFrame(defaultTestFrameParams())
	}
	// Flip a byte inside the corrupt frame's payload (past its 7-byte
	// header), leaving its own trailing CRC-16 footer untouched so the
	// mismatch surfaces when confirming *this* frame's own end boundary,
	// not a neighbor's.
	frames[corruptIdx][10] ^= 0xFF

	var frameBytes []byte
	for _, f := range frames {
		frameBytes = append(frameBytes, f...)
	}
	data := buildTestFLACFile(si, frameBytes)

	rf := New(Options{DoCRC: true}, nil)
	outs, err := rf.Process(Packet{Data: data})
	if err != nil {
		t.Fatalf("Process error: %v", err)
	}
	flushOuts, err := rf.Flush()
	if err != nil {
		t.Fatalf("Flush error: %v", err)
	}
	outs = append(outs, flushOuts...)

	if len(outs) != testFrameCount-1 {
		t.Fatalf("got %d output packets, want %d (only the corrupt frame should be dropped)", len(outs), testFrameCount-1)
	}

	want := make([][]byte, 0, testFrameCount-1)
	for i, f := range frames {
		if i == corruptIdx {
			continue
		}
		want = append(want, f)
	}
	for i, o := range outs {
		if !bytesEqual(o.Data, want[i]) {
			t.Errorf("packet %d does not match the expected surviving frame bytes (neighbors of the dropped frame should be intact)", i)
		}
	}
}

func TestReframerTruncatedFinalFrameFlushedAsIs(t *testing.T) {
	t.Parallel()
	si := buildTestStreamInfo(testSampleRate, 2, 16, uint64(testBlockSize*testFrameCount), testBlockSize, testBlockSize)

	var frames []byte
	var lastFrame []byte
	for i := 0; i < testFrameCount; i++ {
		f := buildTestFrame(defaultTestFrameParams())
		if i == testFrameCount-1 {
			lastFrame = f
			f = f[:len(f)-5] // drop trailing bytes, including the CRC-16 footer
		}
		frames = append(frames, f...)
	}
	data := buildTestFLACFile(si, frames)

	rf := New(Options{}, nil)
	outs, err := rf.Process(Packet{Data: data})
	if err != nil {
		t.Fatalf("Process error: %v", err)
	}
	if len(outs) != testFrameCount-1 {
		t.Fatalf("got %d packets before flush, want %d", len(outs), testFrameCount-1)
	}

	flushOuts, err := rf.Flush()
	if err != nil {
		t.Fatalf("Flush error: %v", err)
	}
	if len(flushOuts) != 1 {
		t.Fatalf("got %d packets from Flush, want 1 final partial frame", len(flushOuts))
	}
	if len(flushOuts[0].Data) != len(lastFrame)-5 {
		t.Errorf("final flushed frame length = %d, want %d", len(flushOuts[0].Data), len(lastFrame)-5)
	}
}

func TestReframerBadMagicIsFatal(t *testing.T) {
	t.Parallel()
	rf := New(Options{}, nil)
	_, err := rf.Process(Packet{Data: []byte("not flac at all, but long enough")})
	if err == nil {
		t.Fatalf("expected an error for non-FLAC input")
	}

	_, err2 := rf.Process(Packet{Data: []byte("more")})
	if err2 == nil {
		t.Fatalf("expected the error to persist on subsequent Process calls")
	}
}

func TestConfigureUnframedAcceptsValidCaps(t *testing.T) {
	t.Parallel()
	rf := New(Options{Unframed: true}, nil)

	info := flac.StreamInfo{
		SampleRate:    testSampleRate,
		Channels:      2,
		BitsPerSample: 16,
		MinBlockSize:  testBlockSize,
		MaxBlockSize:  testBlockSize,
	}
	decoderConfig := buildTestStreamInfo(testSampleRate, 2, 16, 0, testBlockSize, testBlockSize)
	if err := rf.Configure(info, decoderConfig); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	// No "fLaC" magic or metadata chain: Process sees raw frames directly.
	data := buildTestFrame(defaultTestFrameParams())
	outs, err := rf.Process(Packet{Data: data})
	if err != nil {
		t.Fatalf("Process after Configure: %v", err)
	}
	// A lone frame has no following sync to confirm its end; Flush does.
	flushOuts, err := rf.Flush()
	if err != nil {
		t.Fatalf("Flush after Configure: %v", err)
	}
	outs = append(outs, flushOuts...)
	if len(outs) != 1 {
		t.Fatalf("got %d output packets, want 1", len(outs))
	}
	if !outs[0].ConfigChanged {
		t.Errorf("first packet after Configure did not carry decoder config")
	}
	if !bytesEqual(outs[0].DecoderConfig, decoderConfig) {
		t.Errorf("DecoderConfig = %v, want %v", outs[0].DecoderConfig, decoderConfig)
	}
}

func TestReframerRoundTripUnframedMatchesOriginal(t *testing.T) {
	t.Parallel()
	data := buildTestStream(testFrameCount)

	rf := New(Options{}, nil)
	outs, err := rf.Process(Packet{Data: data})
	if err != nil {
		t.Fatalf("Process error: %v", err)
	}
	flushOuts, err := rf.Flush()
	if err != nil {
		t.Fatalf("Flush error: %v", err)
	}
	outs = append(outs, flushOuts...)
	if len(outs) != testFrameCount {
		t.Fatalf("got %d output packets, want %d", len(outs), testFrameCount)
	}

	// Feed the emitted decoder config and raw frame bytes back in as
	// unframed input and confirm the re-processed frame sequence is
	// identical to the original framed run's.
	rf2 := New(Options{Unframed: true}, nil)
	info := flac.StreamInfo{
		SampleRate:    testSampleRate,
		Channels:      2,
		BitsPerSample: 16,
		MinBlockSize:  testBlockSize,
		MaxBlockSize:  testBlockSize,
	}
	if err := rf2.Configure(info, outs[0].DecoderConfig); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	var raw []byte
	for _, o := range outs {
		raw = append(raw, o.Data...)
	}
	reouts, err := rf2.Process(Packet{Data: raw})
	if err != nil {
		t.Fatalf("Process (round trip) error: %v", err)
	}
	reflush, err := rf2.Flush()
	if err != nil {
		t.Fatalf("Flush (round trip) error: %v", err)
	}
	reouts = append(reouts, reflush...)

	if len(reouts) != len(outs) {
		t.Fatalf("round trip produced %d packets, want %d", len(reouts), len(outs))
	}
	for i := range outs {
		if !bytesEqual(reouts[i].Data, outs[i].Data) {
			t.Errorf("packet %d: round-tripped Data differs from the original framed run", i)
		}
		if reouts[i].CTS != outs[i].CTS {
			t.Errorf("packet %d: round-tripped CTS = %d, want %d", i, reouts[i].CTS, outs[i].CTS)
		}
		if reouts[i].Duration != outs[i].Duration {
			t.Errorf("packet %d: round-tripped Duration = %d, want %d", i, reouts[i].Duration, outs[i].Duration)
		}
	}
}

func TestConfigureRejectsCapsMismatch(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		info flac.StreamInfo
	}{
		{"zero sample rate", flac.StreamInfo{SampleRate: 0, Channels: 2, BitsPerSample: 16}},
		{"zero channels", flac.StreamInfo{SampleRate: testSampleRate, Channels: 0, BitsPerSample: 16}},
		{"too many channels", flac.StreamInfo{SampleRate: testSampleRate, Channels: 9, BitsPerSample: 16}},
		{"bit depth too low", flac.StreamInfo{SampleRate: testSampleRate, Channels: 2, BitsPerSample: 2}},
		{"bit depth too high", flac.StreamInfo{SampleRate: testSampleRate, Channels: 2, BitsPerSample: 40}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rf := New(Options{Unframed: true}, nil)
			err := rf.Configure(tc.info, nil)
			if err != ErrNotSupported {
				t.Fatalf("Configure(%+v) error = %v, want ErrNotSupported", tc.info, err)
			}

			// A rejected Configure leaves the Reframer unusable, same as a
			// fatal bitstream error.
			if _, err := rf.Process(Packet{Data: []byte("anything")}); err != ErrNotSupported {
				t.Errorf("Process after rejected Configure = %v, want ErrNotSupported", err)
			}
		})
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestHandlePlaySeeksToIndexedOffsetAndCTS(t *testing.T) {
	t.Parallel()
	const frameCount = 60
	data := buildTestStream(frameCount)

	ix, info, err := BuildIndex(data, 0.1)
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	if ix.Len() < 2 {
		t.Fatalf("index has %d entries, want at least 2", ix.Len())
	}

	rf := New(Options{IsFile: true}, nil)
	rf.SetIndex(ix)

	// Prime negotiated stream state the same way a live Process call would,
	// so HandlePlay's cts computation has a sample rate to work with.
	_, metaEnd, _ := flac.ParseMetadata(data)
	if _, err := rf.Process(Packet{Data: data[:metaEnd]}); err != nil {
		t.Fatalf("priming Process: %v", err)
	}

	const startRange = 1.5 // seconds
	seekTo, wantSeek := rf.HandlePlay(startRange)
	if !wantSeek {
		t.Fatalf("HandlePlay(%v) wantSeek = false, want true", startRange)
	}

	entry, ok := ix.Seek(startRange)
	if !ok {
		t.Fatalf("index has no entry at or before %v seconds", startRange)
	}
	if seekTo != entry.ByteOffset {
		t.Errorf("HandlePlay seekTo = %d, want %d (index entry at %.2fs)", seekTo, entry.ByteOffset, entry.Duration)
	}

	// Simulate the host performing SourceSeek and resuming Process at the
	// returned byte offset.
	outs, err := rf.Process(Packet{Data: data[seekTo:]})
	if err != nil {
		t.Fatalf("Process after seek: %v", err)
	}
	flushOuts, err := rf.Flush()
	if err != nil {
		t.Fatalf("Flush after seek: %v", err)
	}
	outs = append(outs, flushOuts...)

	if len(outs) == 0 {
		t.Fatalf("no output emitted after seeking to %v seconds", startRange)
	}

	wantFirstCTS := uint64(entry.Duration * float64(info.SampleRate))
	if outs[0].CTS < wantFirstCTS {
		t.Errorf("first post-seek CTS = %d, want >= %d (seek floor)", outs[0].CTS, wantFirstCTS)
	}
	target := uint64(startRange * float64(info.SampleRate))
	if outs[0].CTS+outs[0].Duration < target {
		t.Errorf("first emitted post-seek packet does not reach requested start_range: cts+duration=%d, target=%d",
			outs[0].CTS+outs[0].Duration, target)
	}
}

func TestHandlePlayNonFileResetsWithoutSeek(t *testing.T) {
	t.Parallel()
	rf := New(Options{IsFile: false}, nil)
	seekTo, wantSeek := rf.HandlePlay(1.5)
	if wantSeek {
		t.Errorf("HandlePlay on non-file input: wantSeek = true, want false")
	}
	if seekTo != 0 {
		t.Errorf("HandlePlay on non-file input: seekTo = %d, want 0", seekTo)
	}
}
