package storage

import (
	"bytes"
	"testing"

	"github.com/poiesic/docsearch/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalID_SortsNumerically(t *testing.T) {
	ids := []core.ID{1, 2, 9, 10, 255, 256, 1000, 1 << 40}

	for i := 1; i < len(ids); i++ {
		prev := MarshalID(ids[i-1])
		next := MarshalID(ids[i])
		assert.Equal(t, -1, bytes.Compare(prev, next), "%d should sort before %d", ids[i-1], ids[i])

		decoded, err := UnmarshalID(next)
		require.NoError(t, err)
		assert.Equal(t, ids[i], decoded)
	}
}

func TestUnmarshalID_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty data", []byte{}},
		{"short data", []byte{1, 2, 3}},
		{"long data", make([]byte, 9)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalID(tt.data)
			assert.ErrorIs(t, err, ErrSerializationFailed)
		})
	}
}

func TestUnmarshalSection_KeepsMissingEmbeddingNil(t *testing.T) {
	data, err := MarshalSection(&core.PageSection{Id: 3, PageId: 1, Slug: "intro"})
	require.NoError(t, err)

	section, err := UnmarshalSection(data)
	require.NoError(t, err)
	assert.Nil(t, section.Embedding)
	assert.Equal(t, "intro", section.Slug)
}

func TestUnmarshalPage_Corrupt(t *testing.T) {
	_, err := UnmarshalPage([]byte("{not json"))
	assert.ErrorIs(t, err, ErrSerializationFailed)
}
