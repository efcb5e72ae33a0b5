package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorScan(t *testing.T) {
	tests := []struct {
		name     string
		src      interface{}
		expected Vector
	}{
		{
			name:     "json array string",
			src:      "[0.1,0.2,0.3]",
			expected: Vector{0.1, 0.2, 0.3},
		},
		{
			name:     "json array bytes",
			src:      []byte("[1,2,3]"),
			expected: Vector{1, 2, 3},
		},
		{
			name:     "bracketed with spaces",
			src:      "[ 0.5, -0.5,  1.0 ]",
			expected: Vector{0.5, -0.5, 1.0},
		},
		{
			name:     "nil source",
			src:      nil,
			expected: nil,
		},
		{
			name:     "empty string",
			src:      "",
			expected: nil,
		},
		{
			name:     "empty brackets",
			src:      "[]",
			expected: Vector{},
		},
		{
			name:     "garbage yields nil not error",
			src:      "not a vector",
			expected: nil,
		},
		{
			name:     "unsupported type yields nil",
			src:      42,
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v Vector
			err := v.Scan(tt.src)
			require.NoError(t, err)
			if tt.expected == nil {
				assert.Nil(t, v)
			} else {
				require.Len(t, v, len(tt.expected))
				for i := range tt.expected {
					assert.InDelta(t, tt.expected[i], v[i], 1e-6)
				}
			}
		})
	}
}

func TestVectorValueRoundTrip(t *testing.T) {
	orig := Vector{0.25, -1.5, 3}

	val, err := orig.Value()
	require.NoError(t, err)

	var scanned Vector
	require.NoError(t, scanned.Scan(val))
	require.Len(t, scanned, len(orig))
	for i := range orig {
		assert.InDelta(t, orig[i], scanned[i], 1e-6)
	}
}

func TestVectorValueNil(t *testing.T) {
	var v Vector
	val, err := v.Value()
	require.NoError(t, err)
	assert.Nil(t, val)
}

func TestVectorIsZero(t *testing.T) {
	assert.True(t, Vector(nil).IsZero())
	assert.True(t, Vector{}.IsZero())
	assert.True(t, Vector{0, 0, 0}.IsZero())
	assert.False(t, Vector{0, 0.001, 0}.IsZero())
}

func TestVectorClone(t *testing.T) {
	orig := Vector{1, 2, 3}
	clone := orig.Clone()
	clone[0] = 99
	assert.Equal(t, float32(1), orig[0])
	assert.Nil(t, Vector(nil).Clone())
}

func TestArticleClustered(t *testing.T) {
	a := &Article{ID: 1}
	assert.False(t, a.Clustered())

	id := "c1"
	a.ClusterID = &id
	assert.True(t, a.Clustered())

	empty := ""
	a.ClusterID = &empty
	assert.False(t, a.Clustered())
}

func TestClusterDegenerate(t *testing.T) {
	assert.True(t, (&Cluster{MemberCount: 0}).Degenerate())
	assert.True(t, (&Cluster{MemberCount: 1}).Degenerate())
	assert.False(t, (&Cluster{MemberCount: 2}).Degenerate())
}
