package testutil

import (
	"bytes"
	"testing"

	"github.com/cwbudde/wav"
)

// WAVInfo is what the WAV assertions inspect.
type WAVInfo struct {
	Channels   int
	BitDepth   int
	SampleRate int
	Frames     int
}

// ReadWAV decodes data completely and fails the test if it is not a WAV.
func ReadWAV(tb testing.TB, data []byte) WAVInfo {
	tb.Helper()

	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		tb.Fatalf("not a valid WAV (%d bytes)", len(data))
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		tb.Fatalf("read WAV samples: %v", err)
	}

	info := WAVInfo{
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
		SampleRate: int(dec.SampleRate),
	}
	if info.Channels > 0 {
		info.Frames = len(buf.Data) / info.Channels
	}
	return info
}

// AssertValidWAV checks that data is a non-empty mono 16-bit WAV at
// sampleRate, the only format the synthesizer writes.
func AssertValidWAV(tb testing.TB, data []byte, sampleRate int) {
	tb.Helper()

	got := ReadWAV(tb, data)
	want := WAVInfo{Channels: 1, BitDepth: 16, SampleRate: sampleRate, Frames: got.Frames}
	if got != want {
		tb.Fatalf("WAV format = %+v, want %+v", got, want)
	}
	if got.Frames == 0 {
		tb.Fatal("WAV holds no samples")
	}
}

// WAVSampleCount returns the number of frames in data.
func WAVSampleCount(tb testing.TB, data []byte) int {
	tb.Helper()
	return ReadWAV(tb, data).Frames
}

// AssertWAVDurationApprox fails unless the duration of data at sampleRate
// lies in [minSec, maxSec].
func AssertWAVDurationApprox(tb testing.TB, data []byte, sampleRate int, minSec, maxSec float64) {
	tb.Helper()

	sec := float64(WAVSampleCount(tb, data)) / float64(sampleRate)
	if sec < minSec || sec > maxSec {
		tb.Fatalf("WAV lasts %.3fs, want [%.3fs, %.3fs]", sec, minSec, maxSec)
	}
}
