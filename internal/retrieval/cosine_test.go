package retrieval

import (
	"math"
	"testing"
)

func TestCosineSimilarityIdentity(t *testing.T) {
	vectors := [][]float32{
		{1, 0, 0},
		{0.3, 0.4, 0.5},
		{-1, 2, -3, 4},
	}
	for _, v := range vectors {
		got := CosineSimilarity(v, v)
		if math.Abs(got-1) > 1e-9 {
			t.Errorf("CosineSimilarity(v, v) = %v, want 1", got)
		}
	}
}

func TestCosineSimilaritySymmetry(t *testing.T) {
	pairs := [][2][]float32{
		{{1, 2, 3}, {4, 5, 6}},
		{{-1, 0.5}, {0.5, -1}},
		{{0.1, 0.9, 0.3}, {0.7, 0.2, 0.8}},
	}
	for _, p := range pairs {
		ab := CosineSimilarity(p[0], p[1])
		ba := CosineSimilarity(p[1], p[0])
		if math.Abs(ab-ba) > 1e-12 {
			t.Errorf("asymmetric: sim(a,b)=%v sim(b,a)=%v", ab, ba)
		}
	}
}

func TestCosineSimilarityOrthogonal(t *testing.T) {
	got := CosineSimilarity([]float32{1, 0}, []float32{0, 1})
	if math.Abs(got) > 1e-9 {
		t.Errorf("orthogonal vectors should score 0, got %v", got)
	}
}

func TestCosineSimilarityOpposite(t *testing.T) {
	got := CosineSimilarity([]float32{1, 2}, []float32{-1, -2})
	if math.Abs(got+1) > 1e-9 {
		t.Errorf("opposite vectors should score -1, got %v", got)
	}
}

func TestCosineSimilarityZeroVector(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
	}{
		{"zero first", []float32{0, 0, 0}, []float32{1, 2, 3}},
		{"zero second", []float32{1, 2, 3}, []float32{0, 0, 0}},
		{"both zero", []float32{0, 0}, []float32{0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if got != 0 {
				t.Errorf("zero-magnitude input should score 0, got %v", got)
			}
			if math.IsNaN(got) {
				t.Error("similarity must never be NaN")
			}
		})
	}
}

func TestCosineSimilarityLengthMismatch(t *testing.T) {
	got := CosineSimilarity([]float32{1, 2, 3}, []float32{1, 2})
	if got != 0 {
		t.Errorf("mismatched lengths should score 0 (no signal), got %v", got)
	}
}

func TestCosineSimilarityEmpty(t *testing.T) {
	if got := CosineSimilarity(nil, nil); got != 0 {
		t.Errorf("empty vectors should score 0, got %v", got)
	}
}
