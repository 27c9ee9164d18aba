package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	id1 := NewID()
	id2 := NewID()

	assert.NotEmpty(t, id1)
	assert.NotEmpty(t, id2)
	assert.NotEqual(t, id1, id2)
	assert.NoError(t, id1.Validate())
}

func TestDeterministicID(t *testing.T) {
	a := DeterministicID("abc123:0")
	b := DeterministicID("abc123:0")
	c := DeterministicID("abc123:1")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NoError(t, a.Validate())
}

func TestParseID(t *testing.T) {
	t.Run("valid UUID", func(t *testing.T) {
		id, err := ParseID("550e8400-e29b-41d4-a716-446655440000")
		require.NoError(t, err)
		assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", id.String())
	})

	t.Run("empty string", func(t *testing.T) {
		_, err := ParseID("")
		assert.Error(t, err)
	})

	t.Run("invalid format", func(t *testing.T) {
		_, err := ParseID("not-a-uuid")
		assert.Error(t, err)
	})
}

func TestIDValidate(t *testing.T) {
	assert.NoError(t, NewID().Validate())
	assert.Error(t, ID("").Validate())
	assert.Error(t, ID("bogus").Validate())
}

func TestIDJSON(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		original := NewID()
		data, err := json.Marshal(original)
		require.NoError(t, err)

		var decoded ID
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, original, decoded)
	})

	t.Run("zero marshals as null", func(t *testing.T) {
		data, err := json.Marshal(ID(""))
		require.NoError(t, err)
		assert.Equal(t, "null", string(data))
	})

	t.Run("invalid string rejected", func(t *testing.T) {
		var id ID
		err := json.Unmarshal([]byte(`"nope"`), &id)
		assert.Error(t, err)
	})
}
