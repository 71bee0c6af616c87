package embedding

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Slaney mel scale: linear below 1 kHz, logarithmic above.
const (
	melMinLogHz  = 1000.0
	melFSP       = 200.0 / 3
	melMinLogMel = melMinLogHz / melFSP
)

var melLogStep = math.Log(6.4) / 27

func hzToMel(hz float64) float64 {
	if hz < melMinLogHz {
		return hz / melFSP
	}
	return melMinLogMel + math.Log(hz/melMinLogHz)/melLogStep
}

func melToHz(mel float64) float64 {
	if mel < melMinLogMel {
		return mel * melFSP
	}
	return melMinLogHz * math.Exp(melLogStep*(mel-melMinLogMel))
}

// MelFilterbank builds nMels triangular filters over the one-sided spectrum
// of an nfft-point transform, with Slaney area normalization. fmax <= 0
// means sampleRate/2.
func MelFilterbank(sampleRate, nfft, nMels int, fmin, fmax float64) [][]float64 {
	if fmax <= 0 {
		fmax = float64(sampleRate) / 2
	}

	lo, hi := hzToMel(fmin), hzToMel(fmax)
	hz := make([]float64, nMels+2)
	for i := range hz {
		hz[i] = melToHz(lo + (hi-lo)*float64(i)/float64(nMels+1))
	}

	freqs := binFrequencies(sampleRate, nfft)
	bank := make([][]float64, nMels)
	for m := range bank {
		row := make([]float64, len(freqs))
		left, center, right := hz[m], hz[m+1], hz[m+2]
		norm := 2 / (right - left)
		for k, f := range freqs {
			up := (f - left) / (center - left)
			down := (right - f) / (right - center)
			if w := math.Min(up, down); w > 0 {
				row[k] = w * norm
			}
		}
		bank[m] = row
	}

	return bank
}

// applyFilterbank maps each power spectrum frame through bank.
func applyFilterbank(power, bank [][]float64) [][]float64 {
	out := make([][]float64, len(power))
	for f, frame := range power {
		row := make([]float64, len(bank))
		for m, filt := range bank {
			row[m] = floats.Dot(filt, frame)
		}
		out[f] = row
	}
	return out
}

// MelSpectrogram is the power mel spectrogram, [frames][nMels].
func MelSpectrogram(samples []float32, sampleRate int, p STFTParams, nMels int) ([][]float64, error) {
	power, err := PowerSpectrogram(samples, p)
	if err != nil {
		return nil, err
	}

	return applyFilterbank(power, MelFilterbank(sampleRate, p.NFFT, nMels, 0, 0)), nil
}

// PowerToDB converts power to decibels relative to ref, clipping at topDB
// below the loudest value. ref <= 0 uses the maximum of spec.
func PowerToDB(spec [][]float64, ref, topDB float64) [][]float64 {
	const amin = 1e-10

	if ref <= 0 {
		for _, row := range spec {
			if len(row) > 0 {
				ref = math.Max(ref, floats.Max(row))
			}
		}
	}
	refDB := 10 * math.Log10(math.Max(amin, ref))

	out := make([][]float64, len(spec))
	peak := math.Inf(-1)
	for f, row := range spec {
		db := make([]float64, len(row))
		for i, v := range row {
			db[i] = 10*math.Log10(math.Max(amin, v)) - refDB
			peak = math.Max(peak, db[i])
		}
		out[f] = db
	}

	if topDB > 0 {
		floor := peak - topDB
		for _, row := range out {
			for i := range row {
				row[i] = math.Max(row[i], floor)
			}
		}
	}

	return out
}

// MFCC computes n cepstral coefficients per frame from a dB mel spectrogram
// with an orthonormal DCT-II. The result is [n][frames].
func MFCC(melDB [][]float64, n int) [][]float64 {
	if len(melDB) == 0 {
		return nil
	}

	nMels := len(melDB[0])
	n = min(n, nMels)

	basis := make([][]float64, n)
	for k := range basis {
		scale := math.Sqrt(2 / float64(nMels))
		if k == 0 {
			scale = math.Sqrt(1 / float64(nMels))
		}
		row := make([]float64, nMels)
		for m := range row {
			row[m] = scale * math.Cos(math.Pi*float64(k)*(2*float64(m)+1)/(2*float64(nMels)))
		}
		basis[k] = row
	}

	out := make([][]float64, n)
	for k := range out {
		out[k] = make([]float64, len(melDB))
		for f, frame := range melDB {
			out[k][f] = floats.Dot(basis[k], frame)
		}
	}

	return out
}
