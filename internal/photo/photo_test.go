package photo

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestReadResolvesMimeType(t *testing.T) {
	t.Run("declared type wins", func(t *testing.T) {
		img, err := Read(strings.NewReader("\xff\xd8\xffrest"), "image/webp; q=1", 0)
		require.NoError(t, err)
		assert.Equal(t, "image/webp", img.MimeType)
	})

	t.Run("octet-stream is sniffed", func(t *testing.T) {
		img, err := Read(strings.NewReader(string(pngHeader)), "application/octet-stream", 0)
		require.NoError(t, err)
		assert.Equal(t, "image/png", img.MimeType)
		assert.Equal(t, ".png", img.Extension())
	})

	t.Run("text is rejected", func(t *testing.T) {
		_, err := Read(strings.NewReader("just some words"), "", 0)
		assert.ErrorIs(t, err, ErrNotImage)
	})
}

func TestReadLimits(t *testing.T) {
	_, err := Read(strings.NewReader(""), "image/png", 10)
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = Read(strings.NewReader(strings.Repeat("x", 11)), "image/png", 10)
	assert.ErrorIs(t, err, ErrTooLarge)

	img, err := Read(strings.NewReader(strings.Repeat("x", 10)), "image/png", 10)
	require.NoError(t, err)
	assert.Len(t, img.Data, 10)
}

func TestParseDataURL(t *testing.T) {
	url := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngHeader)
	img, err := ParseDataURL(url)
	require.NoError(t, err)
	assert.Equal(t, Image{Data: pngHeader, MimeType: "image/png"}, img)
}

func TestParseDataURLBarePayload(t *testing.T) {
	img, err := ParseDataURL(base64.StdEncoding.EncodeToString([]byte("abc")))
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", img.MimeType)
	assert.Equal(t, []byte("abc"), img.Data)

	_, err = ParseDataURL("data:image/png;base64")
	assert.Error(t, err)
	_, err = ParseDataURL("data:image/png;base64,***")
	assert.Error(t, err)
}

func TestAnalysisHasSuggestions(t *testing.T) {
	assert.False(t, Analysis{}.HasSuggestions())
	assert.False(t, Analysis{Suggestions: []string{" ", ""}}.HasSuggestions())
	assert.True(t, Analysis{Suggestions: []string{"lift shadows"}}.HasSuggestions())
}
