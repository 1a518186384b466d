package pck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeader(t *testing.T) {
	t.Run("MarshalUnmarshal", func(t *testing.T) {
		original := &Header{
			Magic:       Magic,
			Version:     Version,
			EngineMajor: 4,
			EngineMinor: 2,
			EnginePatch: 1,
			FileCount:   3,
		}

		data, err := original.MarshalBinary()
		require.NoError(t, err)
		require.Len(t, data, HeaderSize)

		decoded := &Header{}
		require.NoError(t, decoded.UnmarshalBinary(data))
		assert.Equal(t, *original, *decoded)
		assert.Equal(t, "4.2.1", decoded.EngineVersion())
	})

	t.Run("ShortData", func(t *testing.T) {
		err := (&Header{}).UnmarshalBinary(make([]byte, HeaderSize-1))
		assert.ErrorIs(t, err, ErrFormat)
	})

	tests := []struct {
		name   string
		mutate func(h *Header)
	}{
		{"InvalidMagic", func(h *Header) { h.Magic = [4]byte{'Z', 'S', 'T', 'D'} }},
		{"VersionZero", func(h *Header) { h.Version = 0 }},
		{"VersionTwo", func(h *Header) { h.Version = 2 }},
		{"FirstReservedWord", func(h *Header) { h.Reserved[0] = 1 }},
		{"LastReservedWord", func(h *Header) { h.Reserved[ReservedWords-1] = 0x80000000 }},
		{"ZeroFileCount", func(h *Header) { h.FileCount = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHeader(1)
			require.NoError(t, h.Validate())

			tt.mutate(h)
			err := h.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrFormat)

			var fe *FormatError
			assert.ErrorAs(t, err, &fe)
		})
	}
}
