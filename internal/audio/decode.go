package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cwbudde/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	"github.com/mewkiz/flac"
)

// Format names a container this package can decode.
type Format string

const (
	FormatWAV  Format = "wav"
	FormatMP3  Format = "mp3"
	FormatOGG  Format = "ogg"
	FormatFLAC Format = "flac"
)

var (
	// ErrUnsupportedFormat is returned for containers other than WAV, MP3,
	// OGG/Vorbis and FLAC.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	// ErrEmptyAudio is returned when a file decodes to zero samples.
	ErrEmptyAudio = errors.New("audio contains no samples")
	// ErrNotRegularFile is returned for directories, devices and pipes.
	ErrNotRegularFile = errors.New("not a regular file")
	// ErrFileTooLarge is returned for files over MaxFileBytes.
	ErrFileTooLarge = errors.New("audio file too large")
)

// MaxFileBytes caps the size of an audio file LoadFile will read.
const MaxFileBytes = 32 << 20

// Clip is decoded mono audio.
type Clip struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the clip length in seconds.
func (c Clip) Duration() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// DetectFormat sniffs magic bytes and falls back to the file extension.
func DetectFormat(data []byte, name string) (Format, error) {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return FormatWAV, nil
	case len(data) >= 4 && string(data[0:4]) == "OggS":
		return FormatOGG, nil
	case len(data) >= 4 && string(data[0:4]) == "fLaC":
		return FormatFLAC, nil
	case len(data) >= 3 && string(data[0:3]) == "ID3":
		return FormatMP3, nil
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return FormatMP3, nil
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav", ".wave":
		return FormatWAV, nil
	case ".mp3":
		return FormatMP3, nil
	case ".ogg", ".oga":
		return FormatOGG, nil
	case ".flac":
		return FormatFLAC, nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
}

// Decode decodes data to a mono clip at its native sample rate. name is only
// used as a format hint.
func Decode(data []byte, name string) (Clip, error) {
	if len(data) == 0 {
		return Clip{}, ErrEmptyAudio
	}

	format, err := DetectFormat(data, name)
	if err != nil {
		return Clip{}, err
	}

	var clip Clip
	switch format {
	case FormatWAV:
		clip, err = DecodeWAV(data)
	case FormatMP3:
		clip, err = DecodeMP3(data)
	case FormatOGG:
		clip, err = DecodeOGG(data)
	case FormatFLAC:
		clip, err = DecodeFLAC(data)
	}
	if err != nil {
		return Clip{}, fmt.Errorf("decode %s: %w", format, err)
	}
	if len(clip.Samples) == 0 {
		return Clip{}, ErrEmptyAudio
	}

	return clip, nil
}

// LoadFile decodes the file at path and resamples it to targetRate. A
// targetRate of 0 keeps the native rate.
func LoadFile(path string, targetRate int) (Clip, error) {
	data, err := readFile(path, MaxFileBytes)
	if err != nil {
		return Clip{}, fmt.Errorf("read audio: %w", err)
	}

	clip, err := Decode(data, path)
	if err != nil {
		return Clip{}, fmt.Errorf("%s: %w", path, err)
	}

	if targetRate > 0 && clip.SampleRate != targetRate {
		clip.Samples = Resample(clip.Samples, clip.SampleRate, targetRate)
		clip.SampleRate = targetRate
	}

	return clip, nil
}

// readFile reads a regular file of at most limit bytes.
func readFile(path string, limit int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if !fi.Mode().IsRegular() {
		return nil, fmt.Errorf("%s: %w", path, ErrNotRegularFile)
	}
	if fi.Size() > limit {
		return nil, fmt.Errorf("%s: %d bytes: %w", path, fi.Size(), ErrFileTooLarge)
	}

	// The file may grow after Stat.
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%s: %w", path, ErrFileTooLarge)
	}
	return data, nil
}

// DecodeWAV decodes PCM WAV of any rate, channel count and bit depth.
func DecodeWAV(data []byte) (Clip, error) {
	if len(data) == 0 {
		return Clip{}, errors.New("empty WAV input")
	}

	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return Clip{}, errors.New("invalid WAV file")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("reading PCM data: %w", err)
	}

	return Clip{
		Samples:    Downmix(buf.Data, int(dec.NumChans)),
		SampleRate: int(dec.SampleRate),
	}, nil
}

// DecodeMP3 decodes MPEG-1/2 layer III. go-mp3 always yields 16-bit stereo.
func DecodeMP3(data []byte) (Clip, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return Clip{}, err
	}

	raw, err := io.ReadAll(dec)
	if err != nil {
		return Clip{}, err
	}

	frames := len(raw) / 4
	out := make([]float32, frames)
	for i := range frames {
		l := int16(binary.LittleEndian.Uint16(raw[i*4:]))
		r := int16(binary.LittleEndian.Uint16(raw[i*4+2:]))
		out[i] = (float32(l) + float32(r)) / (2 * 32768)
	}

	return Clip{Samples: out, SampleRate: dec.SampleRate()}, nil
}

// DecodeOGG decodes Ogg/Vorbis.
func DecodeOGG(data []byte) (Clip, error) {
	samples, format, err := oggvorbis.ReadAll(bytes.NewReader(data))
	if err != nil {
		return Clip{}, err
	}

	return Clip{Samples: Downmix(samples, format.Channels), SampleRate: format.SampleRate}, nil
}

// DecodeFLAC decodes a native FLAC stream.
func DecodeFLAC(data []byte) (Clip, error) {
	stream, err := flac.New(bytes.NewReader(data))
	if err != nil {
		return Clip{}, err
	}
	defer stream.Close()

	channels := int(stream.Info.NChannels)
	scale := float32(int64(1) << (stream.Info.BitsPerSample - 1))

	var out []float32
	for {
		frame, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Clip{}, err
		}

		n := len(frame.Subframes[0].Samples)
		for i := range n {
			var sum float32
			for _, sub := range frame.Subframes {
				sum += float32(sub.Samples[i])
			}
			out = append(out, sum/float32(channels)/scale)
		}
	}

	return Clip{Samples: out, SampleRate: int(stream.Info.SampleRate)}, nil
}

// Downmix averages interleaved channels into mono.
func Downmix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}

	frames := len(interleaved) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for c := range channels {
			sum += interleaved[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}

	return out
}
