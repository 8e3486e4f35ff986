package utils

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var reservedNameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F\x7F]`) // Reserved on Windows or Unix
var underscoreRuns = regexp.MustCompile(`_+`)

// tempNameOverhead is what a download's temp file adds around the final
// name: a leading dot, then ".<random>.part" from os.CreateTemp.
const tempNameOverhead = len(".") + len(".4294967295.part")

// MaxFilenameBytes is the longest name SanitizeFilename returns, chosen so
// the in-flight temp file still fits the common 255-byte filename limit.
const MaxFilenameBytes = 255 - tempNameOverhead

// SanitizeFilename builds a safe local filename from a URL path stem and an
// extension (including its dot). Reserved characters become underscores and
// invalid UTF-8 is replaced. A long stem is cut on a rune boundary so the
// extension always survives. If nothing usable is left of stem, fallback is
// used in its place.
func SanitizeFilename(stem, ext, fallback string) string {
	s := strings.ToValidUTF8(stem, "_")
	s = reservedNameChars.ReplaceAllString(s, "_")
	s = underscoreRuns.ReplaceAllString(s, "_")
	// Leading dots would hide the file.
	s = strings.Trim(s, "_. ")

	if budget := MaxFilenameBytes - len(ext); len(s) > budget {
		s = strings.TrimRight(truncateUTF8(s, budget), "_. ")
	}
	if s == "" {
		s = truncateUTF8(fallback, MaxFilenameBytes-len(ext))
	}
	return s + ext
}

// truncateUTF8 cuts s to at most n bytes without splitting a multi-byte rune.
func truncateUTF8(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
