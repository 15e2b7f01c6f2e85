package sanitizer

import (
	"regexp"
	"strings"
)

type Strategy func(string) string

type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}

var (
	reFeatureSeparators = regexp.MustCompile(`[^a-z0-9_-]+`)
	reMultiUnderscore   = regexp.MustCompile(`_+`)
)

func trimAndLower(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	return s
}

func collapseUnderscores(s string) string {
	s = reMultiUnderscore.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

var featurePipeline = Pipeline{
	trimAndLower,
	func(s string) string { return reFeatureSeparators.ReplaceAllString(s, "_") },
	collapseUnderscores,
}

// NormalizeFeature folds a feature flag into the lowercase form units are tagged with.
func NormalizeFeature(feature string) string {
	return featurePipeline.Apply(feature)
}
