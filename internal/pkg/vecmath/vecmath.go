// Package vecmath holds the small amount of dense-vector arithmetic the
// scoring engine needs. Values are stored as float32 (the embedding wire
// type) and accumulated in float64.
package vecmath

import (
	"fmt"
	"math"
)

// Cosine returns the cosine similarity of a and b. Zero-magnitude vectors
// have similarity 0 with everything.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vecmath: cosine dimension mismatch: %d vs %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("vecmath: cosine on empty vectors")
	}
	var dot, na2, nb2 float64
	for i := range a {
		va, vb := float64(a[i]), float64(b[i])
		dot += va * vb
		na2 += va * va
		nb2 += vb * vb
	}
	if na2 == 0 || nb2 == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na2) * math.Sqrt(nb2)), nil
}

// L2 returns the Euclidean distance between a and b.
func L2(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vecmath: L2 dimension mismatch: %d vs %d", len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// IsZero reports whether v is empty or all zeros.
func IsZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// Blend returns a·wa + b·wb element-wise. Lengths must match.
func Blend(a []float32, wa float64, b []float32, wb float64) ([]float32, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("vecmath: blend dimension mismatch: %d vs %d", len(a), len(b))
	}
	out := make([]float32, len(a))
	for i := range a {
		out[i] = float32(float64(a[i])*wa + float64(b[i])*wb)
	}
	return out, nil
}

// Clone returns a copy of v (nil stays nil).
func Clone(v []float32) []float32 {
	if v == nil {
		return nil
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
