// Package audio provides the multi-channel float32 sample buffer shared by
// every part of the engine, together with channel up/down-mixing and
// interleaving helpers.
//
// A Buffer is a set of contiguous per-channel sample slices plus sample-rate
// metadata. Mixing follows the speaker matrix for the standard layouts
// (mono, stereo, quad, 5.1); any other pairing, including 5.0, falls back to discrete
// index-wise summation.
package audio
