package embedding

import (
	"crypto/md5"
	"errors"
	"math"
	"math/big"
	"math/rand"

	"gonum.org/v1/gonum/stat"
)

const (
	mfccCount      = 12
	mfccUsed       = 8
	mfccMels       = 128
	pseudoSquash   = 0.5
	layerNormEps   = 1e-5
	legacyMaxMels  = 80
	minVoicedCount = 5
)

var legacySTFT = STFTParams{NFFT: 1024, Hop: 256, Win: 1024}

// EnhancedFeatures builds the statistical voice descriptor: spectral
// centroid (mean, std, p25, p75), zero-crossing rate (mean, std), rolloff
// (mean, std), the first 8 MFCCs (mean, std each) and voiced f0 (mean, std,
// median; zeros when no frame is voiced).
func EnhancedFeatures(samples []float32, sampleRate int) ([]float64, error) {
	if len(samples) == 0 {
		return nil, errors.New("embedding: empty clip")
	}

	power, err := PowerSpectrogram(samples, featureSTFT)
	if err != nil {
		return nil, err
	}

	var features []float64

	centroid := summarize(SpectralCentroid(power, sampleRate, featureSTFT.NFFT))
	features = append(features, centroid.mean, centroid.std, centroid.p25, centroid.p75)

	zcr := summarize(ZeroCrossingRate(samples, featureSTFT.NFFT, featureSTFT.Hop))
	features = append(features, zcr.mean, zcr.std)

	rolloff := summarize(SpectralRolloff(power, sampleRate, featureSTFT.NFFT))
	features = append(features, rolloff.mean, rolloff.std)

	mel := applyFilterbank(power, MelFilterbank(sampleRate, featureSTFT.NFFT, mfccMels, 0, 0))
	mfcc := MFCC(PowerToDB(mel, 1, 80), mfccCount)
	for i := range min(mfccUsed, len(mfcc)) {
		s := summarize(mfcc[i])
		features = append(features, s.mean, s.std)
	}

	f0 := []float64{0, 0, 0}
	if track, err := TrackPitch(samples, sampleRate, enhancedPitch); err == nil {
		if voiced := track.VoicedF0(); len(voiced) > 0 {
			s := summarize(voiced)
			f0 = []float64{s.mean, s.std, s.median}
		}
	}
	features = append(features, f0...)

	return features, nil
}

// EnhancedEmbedding fits the descriptor to dim (zero pad or truncate), layer
// normalizes it and squashes it with tanh(0.5x).
func EnhancedEmbedding(samples []float32, sampleRate, dim int) ([]float32, error) {
	features, err := EnhancedFeatures(samples, sampleRate)
	if err != nil {
		return nil, err
	}

	v := layerNorm(fitLength(features, dim))
	out := make([]float32, dim)
	for i, x := range v {
		out[i] = float32(math.Tanh(x * pseudoSquash))
	}

	return out, nil
}

// LegacyStats gathers per-bin mel dB mean and std, optional log f0
// statistics with the voiced ratio, and optional log RMS statistics.
func LegacyStats(samples []float32, sampleRate, nMels int) ([]float64, error) {
	if nMels <= 0 || nMels > legacySTFT.Bins() {
		nMels = legacyMaxMels
	}

	mel, err := MelSpectrogram(samples, sampleRate, legacySTFT, nMels)
	if err != nil {
		return nil, err
	}
	if len(mel) < 2 {
		return nil, errors.New("embedding: clip too short for legacy statistics")
	}
	db := PowerToDB(mel, 0, 80)

	means := make([]float64, nMels)
	stds := make([]float64, nMels)
	col := make([]float64, len(db))
	for m := range nMels {
		for f, row := range db {
			col[f] = row[m]
		}
		mean, std := stat.MeanStdDev(col, nil)
		means[m] = mean
		stds[m] = math.Max(std, 1e-5)
	}
	stats := append(means, stds...)

	if track, err := TrackPitch(samples, sampleRate, legacyPitch); err == nil {
		if voiced := track.VoicedF0(); len(voiced) > minVoicedCount {
			s := summarize(voiced)
			f0 := []float64{s.mean, s.std + 1e-5, s.median, s.p25, s.p75}
			for i, v := range f0 {
				f0[i] = math.Log(math.Max(v, 1e-3))
			}
			ratio := float64(len(voiced)) / (float64(len(track.F0)) + 1e-5)
			stats = append(stats, append(f0, ratio)...)
		}
	}

	rms := FrameRMS(samples, legacySTFT.NFFT, legacySTFT.Hop)
	var valid []float64
	for _, v := range rms {
		if v > 1e-5 {
			valid = append(valid, v)
		}
	}
	if len(valid) > minVoicedCount {
		s := summarize(valid)
		stats = append(stats, math.Log(s.mean), math.Log(s.std+1e-6), math.Log(s.median))
	}

	return stats, nil
}

// LegacyEmbedding projects LegacyStats through a Gaussian matrix seeded
// from the MD5 of path, then layer normalizes the result.
func LegacyEmbedding(path string, samples []float32, sampleRate, nMels, dim int) ([]float32, error) {
	stats, err := LegacyStats(samples, sampleRate, nMels)
	if err != nil {
		return nil, err
	}

	proj := seededProjection(PathSeed(path), dim, len(stats))

	v := make([]float64, dim)
	for i, row := range proj {
		var acc float64
		for j, w := range row {
			acc += w * stats[j]
		}
		v[i] = acc
	}

	out := make([]float32, dim)
	for i, x := range layerNorm(v) {
		out[i] = float32(x)
	}

	return out, nil
}

// PathSeed is md5(path) as a big-endian integer modulo 2^31-1.
func PathSeed(path string) int64 {
	sum := md5.Sum([]byte(path))
	n := new(big.Int).SetBytes(sum[:])
	return n.Mod(n, big.NewInt(math.MaxInt32)).Int64()
}

// seededProjection draws a rows x cols N(0, 1/cols) matrix.
func seededProjection(seed int64, rows, cols int) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	scale := 1 / math.Sqrt(float64(cols))

	out := make([][]float64, rows)
	for i := range out {
		row := make([]float64, cols)
		for j := range row {
			row[j] = rng.NormFloat64() * scale
		}
		out[i] = row
	}
	return out
}

func fitLength(x []float64, n int) []float64 {
	out := make([]float64, n)
	copy(out, x)
	return out
}

func layerNorm(x []float64) []float64 {
	mean, std := stat.PopMeanStdDev(x, nil)
	den := math.Sqrt(std*std + layerNormEps)

	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = (v - mean) / den
	}
	return out
}
