// Package fingerprint compares acoustic fingerprints and produces them from audio via external tools.
package fingerprint

import "math/bits"

const (
	// BitsPerElement is the width of one fingerprint sub-print.
	BitsPerElement = 32
	// DefaultThreshold is the minimum similarity percentage accepted as the same recording.
	DefaultThreshold = 60.0
)

// Similarity slides preview over full and returns the best similarity percentage and its offset.
//
// At each offset the mismatch is the number of differing bits divided by len(preview)*32; the
// similarity is (1 - min mismatch) * 100. A preview longer than full cannot align and scores 0.
// An empty preview also scores 0.
func Similarity(full, preview []uint32) (float64, int) {
	if len(preview) == 0 || len(full) < len(preview) {
		return 0, 0
	}

	bitsTotal := float64(len(preview) * BitsPerElement)
	bestMismatch, bestOffset := 1.0, 0

	for offset := 0; offset <= len(full)-len(preview); offset++ {
		diff := 0
		for i, p := range preview {
			diff += bits.OnesCount32(full[offset+i] ^ p)
		}
		if mismatch := float64(diff) / bitsTotal; mismatch < bestMismatch {
			bestMismatch, bestOffset = mismatch, offset
			if diff == 0 {
				break
			}
		}
	}

	return (1 - bestMismatch) * 100, bestOffset
}
