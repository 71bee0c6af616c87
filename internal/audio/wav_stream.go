package audio

import (
	"encoding/binary"
	"fmt"
	"io"
)

// unknownLength fills both RIFF size fields of a stream whose length is not
// known when the header goes out.
const unknownLength = 0xFFFFFFFF

// WAVStream writes a mono 16-bit PCM WAV to a writer that cannot seek, such
// as an HTTP response. The header is emitted with the first samples.
type WAVStream struct {
	w          io.Writer
	sampleRate int
	started    bool
	pcm        []byte
}

func NewWAVStream(w io.Writer) *WAVStream {
	return &WAVStream{w: w}
}

// Started reports whether a header write has been attempted.
func (s *WAVStream) Started() bool { return s.started }

// Write appends samples, clamped to [-1, 1]. The first call fixes the
// sample rate; later calls must match it.
func (s *WAVStream) Write(samples []float32, sampleRate int) error {
	if !s.started {
		if sampleRate < 1 {
			return fmt.Errorf("audio: invalid sample rate %d", sampleRate)
		}
		s.started = true
		s.sampleRate = sampleRate
		if _, err := s.w.Write(streamHeader(sampleRate)); err != nil {
			return fmt.Errorf("audio: wav header: %w", err)
		}
	} else if sampleRate != s.sampleRate {
		return fmt.Errorf("audio: sample rate changed from %d to %d mid-stream", s.sampleRate, sampleRate)
	}

	if len(samples) == 0 {
		return nil
	}

	s.pcm = appendPCM16(s.pcm[:0], samples)
	_, err := s.w.Write(s.pcm)
	return err
}

func streamHeader(sampleRate int) []byte {
	blockAlign := OutputChannels * OutputBitDepth / 8

	h := make([]byte, 0, 44)
	h = append(h, "RIFF"...)
	h = binary.LittleEndian.AppendUint32(h, unknownLength)
	h = append(h, "WAVEfmt "...)
	h = binary.LittleEndian.AppendUint32(h, 16)
	h = binary.LittleEndian.AppendUint16(h, 1) // PCM
	h = binary.LittleEndian.AppendUint16(h, OutputChannels)
	h = binary.LittleEndian.AppendUint32(h, uint32(sampleRate))
	h = binary.LittleEndian.AppendUint32(h, uint32(sampleRate*blockAlign))
	h = binary.LittleEndian.AppendUint16(h, uint16(blockAlign))
	h = binary.LittleEndian.AppendUint16(h, OutputBitDepth)
	h = append(h, "data"...)
	return binary.LittleEndian.AppendUint32(h, unknownLength)
}

func appendPCM16(dst []byte, samples []float32) []byte {
	for _, v := range samples {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(pcm16(v)))
	}
	return dst
}

func pcm16(v float32) int16 {
	return int16(min(max(v, -1), 1) * 32767)
}
