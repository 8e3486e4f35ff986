package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateStringSHA256(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", CalculateStringSHA256(""))
	assert.Equal(t, "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08", CalculateStringSHA256("test"))
}

func TestShortHash(t *testing.T) {
	const directURL = "https://wallpapercave.com/download/naruto-wallpapers-wp2544005"
	full := CalculateStringSHA256(directURL)

	assert.Equal(t, full[:12], ShortHash(directURL, 12))
	assert.Equal(t, ShortHash(directURL, 12), ShortHash(directURL, 12), "stable across calls")
	assert.NotEqual(t, ShortHash(directURL, 12), ShortHash(directURL+"x", 12))
	assert.Equal(t, full, ShortHash(directURL, 0))
	assert.Len(t, ShortHash(directURL, 500), 64)
}
