package similarity

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type VectorSuite struct {
	suite.Suite
}

func TestVectorSuite(t *testing.T) {
	suite.Run(t, new(VectorSuite))
}

func (s *VectorSuite) TestCosine_TableDrivenCases() {
	tests := []struct {
		name      string
		a         []float32
		b         []float32
		expected  float64
		tolerance float64
	}{
		{
			name:      "identical vectors",
			a:         []float32{1, 2, 3},
			b:         []float32{1, 2, 3},
			expected:  1.0,
			tolerance: 1e-9,
		},
		{
			name:      "opposite vectors",
			a:         []float32{1, 2, 3},
			b:         []float32{-1, -2, -3},
			expected:  -1.0,
			tolerance: 1e-9,
		},
		{
			name:      "orthogonal vectors",
			a:         []float32{1, 0},
			b:         []float32{0, 1},
			expected:  0.0,
			tolerance: 1e-9,
		},
		{
			name:      "different lengths",
			a:         []float32{1, 2, 3},
			b:         []float32{1, 2},
			expected:  0.0,
			tolerance: 1e-9,
		},
		{
			name:      "empty slices",
			a:         []float32{},
			b:         []float32{},
			expected:  0.0,
			tolerance: 1e-9,
		},
		{
			name:      "zero vector",
			a:         []float32{0, 0, 0},
			b:         []float32{1, 2, 3},
			expected:  0.0,
			tolerance: 1e-9,
		},
		{
			name:      "both zero",
			a:         []float32{0, 0},
			b:         []float32{0, 0},
			expected:  0.0,
			tolerance: 0,
		},
		{
			name:      "known numeric",
			a:         []float32{1, 2, 3},
			b:         []float32{4, 5, 6},
			expected:  32.0 / math.Sqrt(float64(1078)),
			tolerance: 1e-6,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			got := Cosine(tt.a, tt.b)
			s.False(math.IsNaN(got))
			assert.InDelta(s.T(), tt.expected, got, tt.tolerance)
		})
	}
}

func (s *VectorSuite) TestCosine_BoundedForUnitVectors() {
	vectors := [][]float32{
		Normalize([]float32{0.3, -0.7, 0.2, 0.9}),
		Normalize([]float32{-0.1, 0.4, 0.4, -0.8}),
		Normalize([]float32{1e-3, 1e-3, 1e-3, 1e-3}),
		Normalize([]float32{5, 0, 0, 0}),
	}
	for _, a := range vectors {
		s.InDelta(1.0, Cosine(a, a), 1e-6)
		for _, b := range vectors {
			sim := Cosine(a, b)
			s.GreaterOrEqual(sim, -1.0)
			s.LessOrEqual(sim, 1.0)
		}
	}
}

func (s *VectorSuite) TestNormalize() {
	v := Normalize([]float32{3, 4})
	s.InDelta(0.6, v[0], 1e-6)
	s.InDelta(0.8, v[1], 1e-6)
	s.InDelta(1.0, Norm(v), 1e-6)

	zero := Normalize([]float32{0, 0, 0})
	s.Equal([]float32{0, 0, 0}, zero)
}

func (s *VectorSuite) TestFoldCentroid_IdenticalVectorKeepsCentroid() {
	c := Normalize([]float32{0.2, 0.5, -0.3, 0.1})

	folded, err := FoldCentroid(c, 1, c)
	s.Require().NoError(err)
	for i := range c {
		s.InDelta(c[i], folded[i], 1e-6)
	}
}

func (s *VectorSuite) TestFoldCentroid_WeightedAverage() {
	c := []float32{1, 0}
	v := []float32{0, 1}

	// Three members along x, one along y: mean (0.75, 0.25) renormalized.
	folded, err := FoldCentroid(c, 3, v)
	s.Require().NoError(err)

	n := math.Sqrt(0.75*0.75 + 0.25*0.25)
	s.InDelta(0.75/n, folded[0], 1e-6)
	s.InDelta(0.25/n, folded[1], 1e-6)
	s.InDelta(1.0, Norm(folded), 1e-6)
}

func (s *VectorSuite) TestFoldCentroid_OppositeVectorsStayFinite() {
	folded, err := FoldCentroid([]float32{1, 0}, 1, []float32{-1, 0})
	s.Require().NoError(err)
	for _, x := range folded {
		s.False(math.IsNaN(float64(x)))
		s.False(math.IsInf(float64(x), 0))
	}
}

func (s *VectorSuite) TestFoldCentroid_DimensionMismatch() {
	_, err := FoldCentroid([]float32{1, 0}, 1, []float32{1, 0, 0})
	s.Error(err)
}

func TestEncodeDecodeVector_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		v    []float32
	}{
		{"empty", []float32{}},
		{"single", []float32{1.5}},
		{"mixed", []float32{0, -1, 3.25, float32(math.SmallestNonzeroFloat32), math.MaxFloat32}},
		{"unit", Normalize([]float32{1, 2, 3, 4, 5, 6, 7, 8})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := EncodeVector(tt.v)
			assert.Len(t, encoded, len(tt.v)*4)

			decoded, err := DecodeVector(encoded)
			require.NoError(t, err)
			assert.Equal(t, tt.v, decoded)
		})
	}
}

func TestEncodeVector_LittleEndian(t *testing.T) {
	// 1.0 is 0x3f800000.
	assert.Equal(t, []byte{0x00, 0x00, 0x80, 0x3f}, EncodeVector([]float32{1}))
}

func TestDecodeVector_InvalidLength(t *testing.T) {
	_, err := DecodeVector([]byte{1, 2, 3})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidVector)
}

func TestUsable(t *testing.T) {
	tests := []struct {
		name string
		vec  []float32
		want bool
	}{
		{"unit", []float32{1, 0}, true},
		{"unnormalized", []float32{3, 4}, true},
		{"empty", nil, false},
		{"zero", []float32{0, 0}, false},
		{"nan", []float32{float32(math.NaN()), 1}, false},
		{"inf", []float32{float32(math.Inf(1)), 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Usable(tt.vec))
		})
	}
}
