package decode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRawDecoderCopiesInPlace(t *testing.T) {
	params := Params{Codec: "raw", Width: 2, Height: 2}
	d := NewRawDecoder(params)

	encoded := make([]byte, params.frameBytes())
	for i := range encoded {
		encoded[i] = byte(i + 1)
	}
	out := make([]byte, params.frameBytes())

	require.NoError(t, d.Decode(encoded, out))
	require.Equal(t, encoded, out)
	require.NoError(t, d.Close())
}

func TestRawDecoderRejectsWrongSize(t *testing.T) {
	params := Params{Codec: "raw", Width: 2, Height: 2}
	d := NewRawDecoder(params)

	err := d.Decode(make([]byte, 1), make([]byte, params.frameBytes()))
	require.ErrorIs(t, err, ErrSizeMismatch)
}
