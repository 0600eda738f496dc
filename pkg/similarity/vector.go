// Package similarity provides vector similarity and centroid utilities.
package similarity

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// centroidEpsilon guards the renormalization of a folded centroid against a
// zero-norm result.
const centroidEpsilon = 1e-10

// ErrInvalidVector is returned when a serialized vector is malformed.
var ErrInvalidVector = errors.New("invalid vector encoding")

// Cosine returns the cosine similarity of a and b in [-1, 1].
// It returns 0 when either vector has zero norm or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Rounding can push identical vectors a hair past 1.
	return math.Max(-1, math.Min(1, sim))
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Usable reports whether v can be normalized: every component is finite and
// the norm is non-zero.
func Usable(v []float32) bool {
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return Norm(v) > 0
}

// Normalize returns a unit-length copy of v. A zero vector is returned
// unchanged.
func Normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	n := Norm(v)
	if n == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}

// FoldCentroid folds v into a centroid that currently averages size members:
// (centroid*size + v) / (size+1), renormalized to unit length.
func FoldCentroid(centroid []float32, size int, v []float32) ([]float32, error) {
	if len(centroid) != len(v) {
		return nil, fmt.Errorf("fold centroid: dimension %d != %d", len(v), len(centroid))
	}
	if size < 0 {
		size = 0
	}

	mean := make([]float64, len(v))
	var sum float64
	for i := range v {
		mean[i] = (float64(centroid[i])*float64(size) + float64(v[i])) / float64(size+1)
		sum += mean[i] * mean[i]
	}

	denom := math.Sqrt(sum) + centroidEpsilon
	out := make([]float32, len(v))
	for i, x := range mean {
		out[i] = float32(x / denom)
	}
	return out, nil
}

// EncodeVector serializes v as concatenated little-endian float32 values.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

// DecodeVector parses the output of EncodeVector.
func DecodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("%w: length %d is not a multiple of 4", ErrInvalidVector, len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
