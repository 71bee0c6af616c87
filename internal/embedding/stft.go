package embedding

import (
	"errors"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// STFTParams describes framing for a short-time Fourier transform.
type STFTParams struct {
	NFFT int
	Hop  int
	Win  int
}

func (p STFTParams) validate() error {
	if p.NFFT <= 0 || p.Hop <= 0 || p.Win <= 0 || p.Win > p.NFFT {
		return errors.New("embedding: invalid STFT parameters")
	}
	return nil
}

// Bins is the one-sided spectrum size.
func (p STFTParams) Bins() int { return p.NFFT/2 + 1 }

// hannWindow returns a periodic Hann window of length win, zero padded and
// centered inside nfft samples.
func hannWindow(win, nfft int) []float64 {
	w := make([]float64, nfft)
	off := (nfft - win) / 2
	for i := range win {
		w[off+i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(win))
	}
	return w
}

// reflectPad mirrors left and right samples around the edges without
// repeating the edge sample.
func reflectPad(x []float64, left, right int) []float64 {
	n := len(x)
	out := make([]float64, left+n+right)
	copy(out[left:], x)

	for i := 1; i <= left; i++ {
		out[left-i] = x[reflectIndex(i, n)]
	}
	for i := 1; i <= right; i++ {
		out[left+n-1+i] = x[reflectIndex(n-1-i, n)]
	}

	return out
}

func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * (n - 1)
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i
	}
	return i
}

// stft frames x (already padded) and returns the one-sided spectra.
func stft(x []float64, p STFTParams) [][]complex128 {
	if len(x) < p.NFFT {
		return nil
	}

	window := hannWindow(p.Win, p.NFFT)
	fft := fourier.NewFFT(p.NFFT)
	frames := 1 + (len(x)-p.NFFT)/p.Hop

	out := make([][]complex128, frames)
	buf := make([]float64, p.NFFT)
	for f := range frames {
		start := f * p.Hop
		for i := range buf {
			buf[i] = x[start+i] * window[i]
		}
		out[f] = fft.Coefficients(nil, buf)
	}

	return out
}

// LinearSpectrogram is the magnitude spectrogram used by the reference
// encoder: reflect padding of (nfft-hop)/2 on both sides, no centering.
// The result is time-major, [frames][bins].
func LinearSpectrogram(samples []float32, p STFTParams) ([][]float64, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	pad := (p.NFFT - p.Hop) / 2
	if len(samples) <= pad {
		return nil, errors.New("embedding: clip shorter than the STFT padding")
	}

	x := reflectPad(toFloat64(samples), pad, pad)
	spec := stft(x, p)
	if len(spec) == 0 {
		return nil, errors.New("embedding: clip shorter than one STFT frame")
	}

	out := make([][]float64, len(spec))
	for f, frame := range spec {
		row := make([]float64, len(frame))
		for k, c := range frame {
			row[k] = cmplx.Abs(c)
		}
		out[f] = row
	}

	return out, nil
}

// PowerSpectrogram is a centered power spectrogram with zero padding of
// nfft/2, as used for the statistical features.
func PowerSpectrogram(samples []float32, p STFTParams) ([][]float64, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	x := make([]float64, len(samples)+p.NFFT)
	for i, s := range samples {
		x[p.NFFT/2+i] = float64(s)
	}

	spec := stft(x, p)
	out := make([][]float64, len(spec))
	for f, frame := range spec {
		row := make([]float64, len(frame))
		for k, c := range frame {
			re, im := real(c), imag(c)
			row[k] = re*re + im*im
		}
		out[f] = row
	}

	return out, nil
}

// binFrequencies returns the centre frequency of each one-sided bin.
func binFrequencies(sampleRate, nfft int) []float64 {
	out := make([]float64, nfft/2+1)
	for k := range out {
		out[k] = float64(k) * float64(sampleRate) / float64(nfft)
	}
	return out
}

func toFloat64(x []float32) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = float64(v)
	}
	return out
}
