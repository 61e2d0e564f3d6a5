package features

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/herbtax/internal/core"
)

func TestEncodeCountsOccurrences(t *testing.T) {
	records := []Record{
		{Entity: "A", Attributes: []string{"x", "y"}},
		{Entity: "B", Attributes: []string{"x", "y"}},
		{Entity: "C", Attributes: []string{"z"}},
	}

	enc, err := Encode(records, []string{"x", "y", "z"})
	require.NoError(t, err)

	assert.Equal(t, 3, enc.N())
	assert.Equal(t, 3, enc.D())
	assert.Equal(t, []string{"A", "B", "C"}, enc.Entities)
	assert.Equal(t, [][]int{{1, 1, 0}, {1, 1, 0}, {0, 0, 1}}, enc.Vectors)
}

func TestEncodeRepeatsAndVectorSum(t *testing.T) {
	records := []Record{
		{Entity: "licorice", Attributes: []string{"cough", "cough", "fatigue", "cough"}},
	}
	enc, err := Encode(records, []string{"fatigue", "cough", "fever"})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 3, 0}, enc.Vectors[0])

	sum := 0
	for _, v := range enc.Vectors[0] {
		sum += v
	}
	assert.Equal(t, len(records[0].Attributes), sum)
	assert.Equal(t, []uint32{0, 1}, enc.Presence(0).ToArray())
}

func TestEncodeSharedUsesPresence(t *testing.T) {
	records := []Record{
		{Entity: "A", Attributes: []string{"x", "x", "y"}},
		{Entity: "B", Attributes: []string{"y", "z", "x"}},
		{Entity: "C", Attributes: []string{"z"}},
	}
	enc, err := Encode(records, []string{"x", "y", "z"})
	require.NoError(t, err)

	assert.Equal(t, []string{"x", "y"}, enc.Shared(0, 1))
	assert.Equal(t, []string{"z"}, enc.Shared(1, 2))
	assert.Empty(t, enc.Shared(0, 2))
}

func TestEncodeIndex(t *testing.T) {
	enc, err := Encode([]Record{
		{Entity: "ginseng", Attributes: []string{"fatigue"}},
		{Entity: "ginger", Attributes: []string{"nausea"}},
	}, []string{"fatigue", "nausea"})
	require.NoError(t, err)

	i, ok := enc.Index("ginger")
	assert.True(t, ok)
	assert.Equal(t, 1, i)

	_, ok = enc.Index("mint")
	assert.False(t, ok)
}

func TestEncodePresenceIsACopy(t *testing.T) {
	enc, err := Encode([]Record{{Entity: "A", Attributes: []string{"x"}}}, []string{"x", "y"})
	require.NoError(t, err)

	p := enc.Presence(0)
	p.Add(1)
	assert.Equal(t, []uint32{0}, enc.Presence(0).ToArray())
}

func TestEncodeInvalidInput(t *testing.T) {
	cases := []struct {
		name     string
		records  []Record
		universe []string
	}{
		{"empty universe", []Record{{Entity: "A", Attributes: []string{"x"}}}, nil},
		{"empty attribute list", []Record{{Entity: "A"}}, []string{"x"}},
		{"duplicate universe entry", []Record{{Entity: "A", Attributes: []string{"x"}}}, []string{"x", "x"}},
		{"duplicate entity", []Record{
			{Entity: "A", Attributes: []string{"x"}},
			{Entity: "A", Attributes: []string{"x"}},
		}, []string{"x"}},
		{"unknown attribute", []Record{{Entity: "A", Attributes: []string{"q"}}}, []string{"x"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Encode(tc.records, tc.universe)
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrInvalidInput))
		})
	}
}

func TestEncodeErrorNamesEntity(t *testing.T) {
	_, err := Encode([]Record{{Entity: "huang qi"}}, []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "huang qi")
}
