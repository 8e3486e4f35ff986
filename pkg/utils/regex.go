package utils

import (
	"regexp"
)

// CompileMarkerPatterns compiles body-marker regexes used to recognise
// challenge interstitials. Matching is case-insensitive. Empty patterns are skipped.
func CompileMarkerPatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for i, pattern := range patterns {
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, WrapErrorf(ErrConfigValidation, "invalid marker pattern #%d ('%s')", i+1, pattern)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// MatchAny reports whether any of the patterns matches data.
func MatchAny(patterns []*regexp.Regexp, data []byte) bool {
	for _, re := range patterns {
		if re.Match(data) {
			return true
		}
	}
	return false
}
