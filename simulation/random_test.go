package simulation

import (
	"testing"
)

func TestWeightedSkipsEmptyEntries(t *testing.T) {
	rnd := NewRandomSource(9)
	weights := []float64{0, 3, 0, 1, -2}
	counts := make([]int, len(weights))
	for i := 0; i < 4000; i++ {
		counts[rnd.Weighted(weights, 4)]++
	}
	if counts[0] != 0 || counts[2] != 0 || counts[4] != 0 {
		t.Fatalf("non-positive weights picked: %v", counts)
	}
	share := float64(counts[1]) / 4000
	if share < 0.7 || share > 0.8 {
		t.Fatalf("weight 3 of 4 picked %v of the time", share)
	}
	if got := rnd.Weighted([]float64{0, 0}, 0); got != -1 {
		t.Fatalf("Weighted on zero total = %d, want -1", got)
	}
}

func TestWeightedRoundingFallsBackToLastPositive(t *testing.T) {
	rnd := NewRandomSource(1)
	// A total larger than the sum forces the pick past every entry
	for i := 0; i < 100; i++ {
		if got := rnd.Weighted([]float64{1, 1, 0}, 1e9); got != 1 {
			t.Fatalf("Weighted = %d, want 1", got)
		}
	}
}

func TestUniformBounds(t *testing.T) {
	rnd := NewRandomSource(4)
	for i := 0; i < 1000; i++ {
		if v := rnd.Uniform(0.7, 1); v < 0.7 || v >= 1 {
			t.Fatalf("Uniform(0.7, 1) = %v", v)
		}
	}
	if v := rnd.Uniform(5, 5); v != 5 {
		t.Fatalf("degenerate Uniform = %v", v)
	}
}

func TestStreams(t *testing.T) {
	shared := NewStreams(3, StreamsShared)
	if shared.Generation != shared.Lottery {
		t.Fatalf("shared streams use two sources")
	}
	split := NewStreams(3, StreamsSplit)
	if split.Generation == split.Lottery {
		t.Fatalf("split streams share a source")
	}
	if splitSeed(3) == 3 || splitSeed(3) != splitSeed(3) {
		t.Fatalf("splitSeed(3) = %d", splitSeed(3))
	}
	again := NewStreams(3, StreamsSplit)
	for i := 0; i < 10; i++ {
		if split.Lottery.Float64() != again.Lottery.Float64() {
			t.Fatalf("split lottery stream not reproducible")
		}
	}
}
