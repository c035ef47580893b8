package pairing

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncoder_Image(t *testing.T) {
	enc := NewEncoder()

	artifact, err := enc.Image("2@abc,def,ghi")
	require.NoError(t, err)
	require.Contains(t, artifact, "data:image/png;base64,")

	raw, err := DecodeImage(artifact)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, DefaultSize, img.Bounds().Dx())
}

func TestEncoder_ImageEmpty(t *testing.T) {
	_, err := NewEncoder().Image("")
	require.ErrorIs(t, err, ErrEmptyChallenge)
}

func TestEncoder_FormatCode(t *testing.T) {
	enc := NewEncoder()
	require.Equal(t, "ABCD-EFGH", enc.FormatCode("abcdefgh"))
	require.Equal(t, "ABCD-EFGH", enc.FormatCode("ABCD-EFGH"))
	require.Equal(t, "ABC", enc.FormatCode("a b c"))
}

func TestDecodeImage_Rejects(t *testing.T) {
	_, err := DecodeImage("data:text/plain,hi")
	require.Error(t, err)
}
