package collector

import "strings"

// KeywordFilter decides whether a profile is relevant to a run.
type KeywordFilter struct {
	keywords []string
}

// NewKeywordFilter lowercases keywords once up front.
func NewKeywordFilter(keywords []string) KeywordFilter {
	lowered := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			lowered = append(lowered, kw)
		}
	}
	return KeywordFilter{keywords: lowered}
}

// ShouldInclude reports whether text contains any keyword, ignoring case.
// With no keywords every profile is included.
func (f KeywordFilter) ShouldInclude(text string) bool {
	if len(f.keywords) == 0 {
		return true
	}
	lower := strings.ToLower(text)
	for _, kw := range f.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
