// Package embedding turns a reference clip into a speaker conditioning
// vector.
//
// Extraction runs in this order:
//
//  1. A pre-computed embedding file (.safetensors) is loaded as is.
//  2. A trained reference encoder, native or ONNX, consumes the linear
//     magnitude spectrogram of the clip.
//  3. Without one, a pseudo embedding is built from spectral centroid,
//     zero-crossing rate, rolloff, MFCC and pitch statistics, layer
//     normalized and squashed with tanh.
//  4. If that fails, the legacy extractor projects mel, pitch and energy
//     statistics through a matrix seeded from the MD5 of the clip path.
//
// Results are cached per absolute path for the life of the Extractor.
package embedding
