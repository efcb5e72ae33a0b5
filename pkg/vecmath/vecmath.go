// Package vecmath provides the numeric routines behind article clustering:
// cosine similarity, dimension normalization, and centroid maintenance.
// All routines are pure and stateless.
package vecmath

import (
	"errors"
	"math"

	"github.com/newsmesh/clusterd/pkg/models"
)

// ErrDimensionMismatch is returned when two vectors cannot be compared
// because their lengths differ. With consistent dimension normalization
// this should not occur; callers skip the affected candidate and log.
var ErrDimensionMismatch = errors.New("vecmath: embedding dimension mismatch")

// NormalizeDimension coerces a vector to the canonical dimension: longer
// vectors are truncated, shorter ones zero-padded. Different embedding
// models produce different native dimensions; all stored and compared
// vectors must share one canonical dimension.
func NormalizeDimension(v models.Vector, dim int) models.Vector {
	if dim <= 0 || len(v) == dim {
		return v
	}
	out := make(models.Vector, dim)
	copy(out, v)
	return out
}

// DotProduct computes the dot product of two equal-length vectors.
func DotProduct(a, b models.Vector) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Norm computes the L2 norm of a vector.
func Norm(v models.Vector) float64 {
	return math.Sqrt(DotProduct(v, v))
}

// CosineSimilarity computes cosine similarity in [-1, 1]. Returns
// ErrDimensionMismatch when lengths differ. A zero-norm operand yields a
// similarity of 0: a degenerate vector matches nothing.
func CosineSimilarity(a, b models.Vector) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}
	normA := Norm(a)
	normB := Norm(b)
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return DotProduct(a, b) / (normA * normB), nil
}

// IncrementalCentroid returns the exact running mean after adding one
// vector to a cluster: (old*n + v) / (n+1). Avoids re-reading all member
// embeddings on every assignment.
func IncrementalCentroid(old models.Vector, oldCount int, v models.Vector) models.Vector {
	if oldCount <= 0 {
		return v.Clone()
	}
	n := float64(oldCount)
	out := make(models.Vector, len(old))
	for i := range old {
		out[i] = float32((float64(old[i])*n + float64(v[i])) / (n + 1))
	}
	return out
}

// Mean returns the exact arithmetic mean of the given vectors. Used when
// creating a cluster from a pair and when repairing a corrupt centroid.
// Returns nil for empty input.
func Mean(vs []models.Vector) models.Vector {
	if len(vs) == 0 {
		return nil
	}
	dim := len(vs[0])
	acc := make([]float64, dim)
	for _, v := range vs {
		for i := 0; i < dim && i < len(v); i++ {
			acc[i] += float64(v[i])
		}
	}
	out := make(models.Vector, dim)
	n := float64(len(vs))
	for i := range acc {
		out[i] = float32(acc[i] / n)
	}
	return out
}
