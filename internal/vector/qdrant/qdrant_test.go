package qdrant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alpa-strategie/aia-backend/internal/vector"
)

func TestPointIDIsStable(t *testing.T) {
	a := pointID("chunk-0")
	b := pointID("chunk-0")
	c := pointID("chunk-1")

	assert.Equal(t, a.GetUuid(), b.GetUuid())
	assert.NotEqual(t, a.GetUuid(), c.GetUuid())
	assert.Len(t, a.GetUuid(), 36)
}

func TestNew_RequiresURL(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestUpsert_RejectsWrongDimension(t *testing.T) {
	c := &Client{vectorDim: 3}
	err := c.Upsert(t.Context(), []vector.Record{{ID: "chunk-0", Vector: []float32{1, 2}}})
	assert.ErrorIs(t, err, vector.ErrDimensionMismatch)
}
