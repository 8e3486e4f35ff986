package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileMarkerPatterns(t *testing.T) {
	compiled, err := CompileMarkerPatterns([]string{`just a moment`, "", `challenge-platform`, `cf-[a-z]+`, ""})
	require.NoError(t, err)
	assert.Len(t, compiled, 3, "empty patterns are skipped")
}

func TestCompileMarkerPatterns_InvalidPattern(t *testing.T) {
	_, err := CompileMarkerPatterns([]string{`just a moment`, `[unclosed`})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigValidation)
	assert.Contains(t, err.Error(), "#2")
}

func TestMatchAny(t *testing.T) {
	compiled, err := CompileMarkerPatterns([]string{`just a moment`, `cf-chl-[a-z]+`})
	require.NoError(t, err)

	assert.True(t, MatchAny(compiled, []byte("<title>Just a Moment...</title>")), "matching ignores case")
	assert.True(t, MatchAny(compiled, []byte(`<script src="/cdn-cgi/cf-chl-bypass"></script>`)))
	assert.False(t, MatchAny(compiled, []byte("<title>Anime Wallpapers</title>")))
	assert.False(t, MatchAny(nil, []byte("just a moment")))
}
