package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cwbudde/wav"
	goaudio "github.com/go-audio/audio"
)

// Every WAV this package writes is mono 16-bit PCM.
const (
	OutputChannels = 1
	OutputBitDepth = 16
)

const wavFormatPCM = 1

// encodeTo writes samples as a WAV through the go-audio encoder, which
// seeks back to patch the chunk sizes on Close.
func encodeTo(ws io.WriteSeeker, samples []float32, sampleRate int) error {
	if sampleRate < 1 {
		return fmt.Errorf("audio: invalid sample rate %d", sampleRate)
	}

	clamped := make([]float32, len(samples))
	for i, v := range samples {
		clamped[i] = min(max(v, -1), 1)
	}

	enc := wav.NewEncoder(ws, sampleRate, OutputBitDepth, OutputChannels, wavFormatPCM)
	err := enc.Write(&goaudio.Float32Buffer{
		Data:           clamped,
		Format:         &goaudio.Format{SampleRate: sampleRate, NumChannels: OutputChannels},
		SourceBitDepth: OutputBitDepth,
	})
	if err != nil {
		return fmt.Errorf("audio: encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("audio: finish wav: %w", err)
	}
	return nil
}

// EncodeWAV returns samples as an in-memory WAV file.
func EncodeWAV(samples []float32, sampleRate int) ([]byte, error) {
	var mf memFile
	if err := encodeTo(&mf, samples, sampleRate); err != nil {
		return nil, err
	}
	return mf.data, nil
}

// WriteWAVFile encodes samples straight into path. A failed encode removes
// the partial file.
func WriteWAVFile(path string, samples []float32, sampleRate int) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("audio: close %s: %w", path, cerr)
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	return encodeTo(f, samples, sampleRate)
}

// memFile is a growable byte slice with a file cursor.
type memFile struct {
	data []byte
	off  int
}

func (m *memFile) Write(p []byte) (int, error) {
	if end := m.off + len(p); end > len(m.data) {
		m.data = append(m.data, make([]byte, end-len(m.data))...)
	}
	n := copy(m.data[m.off:], p)
	m.off += n
	return n, nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	base := 0
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = m.off
	case io.SeekEnd:
		base = len(m.data)
	default:
		return 0, fmt.Errorf("audio: bad whence %d", whence)
	}

	next := base + int(offset)
	if next < 0 {
		return 0, errors.New("audio: seek before start")
	}
	m.off = next
	return int64(next), nil
}
