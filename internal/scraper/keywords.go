package scraper

import (
	"math"
	"strings"
)

// ParseKeywords splits a comma separated keyword list, trimming entries and
// dropping empty ones.
func ParseKeywords(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if kw := strings.TrimSpace(p); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

// SuccessRate returns found/scanned as a percentage rounded to one decimal.
func SuccessRate(scanned, found int) float64 {
	if scanned <= 0 {
		return 0
	}
	return math.Round(float64(found)/float64(scanned)*1000) / 10
}
