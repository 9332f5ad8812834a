package utils

import (
	"math"
	"testing"
)

func TestL2Norm(t *testing.T) {
	if got := L2Norm([]float32{3, 4}); got != 5 {
		t.Errorf("L2Norm got %v, want 5", got)
	}
	if got := L2Norm(nil); got != 0 {
		t.Errorf("L2Norm(nil) got %v, want 0", got)
	}
}

func TestNormalizeL2(t *testing.T) {
	v := []float32{3, 4}
	NormalizeL2(v)
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("got %v, want [0.6 0.8]", v)
	}
}

func TestNormalizeL2_zeroVectorUnchanged(t *testing.T) {
	v := []float32{0, 0, 0}
	NormalizeL2(v)
	for _, x := range v {
		if x != 0 {
			t.Fatalf("zero vector changed: %v", v)
		}
	}
}

func TestNormalizedCopy_leavesInput(t *testing.T) {
	in := []float32{0, 2}
	out := NormalizedCopy(in)
	if in[1] != 2 {
		t.Error("input was modified")
	}
	if n := L2Norm(out); math.Abs(n-1) > 1e-6 {
		t.Errorf("copy norm = %v, want 1", n)
	}
	if out[1] != 1 {
		t.Errorf("copy = %v, want [0 1]", out)
	}
}
