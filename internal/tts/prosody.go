package tts

import (
	"strings"
	"unicode/utf8"
)

const vowelChars = "aeiou"

// Length-scale nudges derived from the decoded token string.
const (
	lowVowelRatio     = 0.25
	highVowelRatio    = 0.5
	lowVowelFactor    = 1.06
	highVowelFactor   = 0.97
	shortSequenceLen  = 12
	shortSequenceGain = 1.04
)

// Log-duration bias added per token.
const (
	pauseBias         = 0.20
	vowelBias         = 0.08
	stressedBias      = 0.12
	prePunctBias      = 0.06
	tailBias          = 0.05
	tailStart         = 0.6
	questionVowelBias = 0.15
)

// Inference controls in clarity mode, and the sdp ratio outside it.
const (
	clarityNoiseScale  = 0.55
	clarityNoiseScaleW = 0.5
	claritySDPRatio    = 0.25
	plainSDPRatio      = 0.2
	plainLengthFactor  = 1.05
)

func isPauseToken(tok string) bool {
	switch tok {
	case ",", ".", "!", "?":
		return true
	}
	return false
}

func isVowelToken(tok string) bool {
	return len(tok) == 1 && strings.Contains(vowelChars, tok)
}

// vowelRatio is the share of plain vowel letters in decoded.
func vowelRatio(decoded string) float64 {
	n := 0
	for _, r := range decoded {
		if strings.ContainsRune(vowelChars, r) {
			n++
		}
	}

	return float64(n) / float64(max(1, utf8.RuneCountInString(decoded)))
}

// prosodyLengthScale adjusts base from the vowel density and length of a
// token sequence.
func prosodyLengthScale(base float64, decoded string, tokens int) float64 {
	scale := base

	switch r := vowelRatio(decoded); {
	case r < lowVowelRatio:
		scale *= lowVowelFactor
	case r > highVowelRatio:
		scale *= highVowelFactor
	}

	if tokens < shortSequenceLen {
		scale *= shortSequenceGain
	}

	return scale
}

// durationBias lengthens pauses before punctuation, vowels (more when
// stressed or followed by punctuation) and the sentence tail. A question
// also stretches its final vowel.
func durationBias(tokens []string, stressed map[int]bool, question bool) []float32 {
	bias := make([]float32, len(tokens))
	n := len(tokens)

	for i, tok := range tokens {
		switch {
		case isPauseToken(tok):
			if i > 0 {
				bias[i-1] += pauseBias
			}
		case isVowelToken(tok):
			b := float32(vowelBias)
			if stressed[i] {
				b += stressedBias
			}
			if i+1 < n && isPauseToken(tokens[i+1]) {
				b += prePunctBias
			}
			bias[i] += b
		}

		if float64(i) >= float64(n)*tailStart {
			bias[i] += tailBias
		}
	}

	if question {
		for i := n - 1; i >= 0; i-- {
			if isVowelToken(tokens[i]) {
				bias[i] += questionVowelBias
				break
			}
		}
	}

	return bias
}

// remapStress carries stressed positions through id filtering. kept[i] is
// the pre-filter index of the i-th surviving id.
func remapStress(stressed map[int]bool, kept []int) map[int]bool {
	if len(stressed) == 0 {
		return nil
	}

	out := make(map[int]bool)
	for i, orig := range kept {
		if stressed[orig] {
			out[i] = true
		}
	}

	return out
}

type inferParams struct {
	lengthScale float64
	noiseScale  float64
	noiseScaleW float64
	sdpRatio    float64
}

func (o Options) params(lengthScale, noise, noiseW float64) inferParams {
	if o.ClarityMode {
		return inferParams{
			lengthScale: lengthScale,
			noiseScale:  clarityNoiseScale,
			noiseScaleW: clarityNoiseScaleW,
			sdpRatio:    claritySDPRatio,
		}
	}

	return inferParams{
		lengthScale: lengthScale * plainLengthFactor,
		noiseScale:  noise,
		noiseScaleW: noiseW,
		sdpRatio:    plainSDPRatio,
	}
}
