package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksum_OrderIndependent(t *testing.T) {
	a := Checksum(map[string]interface{}{"b": 2, "a": "x", "c": nil})
	b := Checksum(map[string]interface{}{"c": nil, "a": "x", "b": 2})
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	assert.NotEqual(t, a, Checksum(map[string]interface{}{"b": 3, "a": "x", "c": nil}))
}

func TestCanonicalJSON(t *testing.T) {
	x, err := CanonicalJSON([]byte(`{"state": "APPROVED", "amount": "8000"}`))
	require.NoError(t, err)
	y, err := CanonicalJSON([]byte(`{"amount":"8000","state":"APPROVED"}`))
	require.NoError(t, err)
	assert.Equal(t, x, y)
	assert.Equal(t, `{"amount":"8000","state":"APPROVED"}`, x)

	empty, err := CanonicalJSON(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = CanonicalJSON([]byte(`{broken`))
	assert.Error(t, err)
}

func TestGenerateID_Sortable(t *testing.T) {
	prev := GenerateID()
	for i := 0; i < 100; i++ {
		next := GenerateID()
		require.True(t, IsID(next))
		assert.Less(t, prev, next)
		prev = next
	}
}
