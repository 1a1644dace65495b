package fingerprint

import (
	"math/rand"
	"slices"
	"testing"
)

func randomPrint(r *rand.Rand, n int) []uint32 {
	fp := make([]uint32, n)
	for i := range fp {
		fp[i] = r.Uint32()
	}
	return fp
}

func TestSimilarity(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	full := randomPrint(r, 300)

	t.Run("verbatim sub-slice scores 100 at its offset", func(t *testing.T) {
		preview := slices.Clone(full[120:180])
		sim, offset := Similarity(full, preview)
		if sim != 100 {
			t.Errorf("expected similarity 100, got %v", sim)
		}
		if offset != 120 {
			t.Errorf("expected offset 120, got %d", offset)
		}
		if sim <= DefaultThreshold {
			t.Errorf("expected similarity above threshold %v", DefaultThreshold)
		}
	})

	t.Run("reversed preview falls below threshold", func(t *testing.T) {
		preview := slices.Clone(full[120:180])
		slices.Reverse(preview)
		sim, _ := Similarity(full, preview)
		if sim >= DefaultThreshold {
			t.Errorf("expected similarity below %v, got %v", DefaultThreshold, sim)
		}
	})

	t.Run("preview longer than full", func(t *testing.T) {
		sim, offset := Similarity(full[:10], full[:20])
		if sim != 0 || offset != 0 {
			t.Errorf("expected 0 at 0, got %v at %d", sim, offset)
		}
	})

	t.Run("empty preview", func(t *testing.T) {
		if sim, _ := Similarity(full, nil); sim != 0 {
			t.Errorf("expected 0, got %v", sim)
		}
	})

	t.Run("bit noise lowers similarity proportionally", func(t *testing.T) {
		preview := slices.Clone(full[0:50])
		for i := range preview {
			preview[i] ^= 0x0000000F // 4 of 32 bits flipped
		}
		sim, offset := Similarity(full, preview)
		if offset != 0 {
			t.Errorf("expected offset 0, got %d", offset)
		}
		if want := (1 - 4.0/32.0) * 100; sim != want {
			t.Errorf("expected %v, got %v", want, sim)
		}
	})

	t.Run("equal lengths have a single offset", func(t *testing.T) {
		a := []uint32{0xFFFFFFFF, 0}
		b := []uint32{0xFFFF0000, 0}
		sim, offset := Similarity(a, b)
		if offset != 0 || sim != 75 {
			t.Errorf("expected 75 at 0, got %v at %d", sim, offset)
		}
	})
}
