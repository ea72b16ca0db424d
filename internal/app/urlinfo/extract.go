package urlinfo

import (
	"regexp"

	"mvdan.cc/xurls/v2"
)

// Extractor finds candidate URLs in message text, in order of appearance.
type Extractor interface {
	ExtractURLs(text string) []string
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(text string) []string

func (f ExtractorFunc) ExtractURLs(text string) []string { return f(text) }

// RelaxedExtractor matches URLs with or without a scheme, so "see example.org"
// yields "example.org". Mail addresses are skipped.
type RelaxedExtractor struct {
	re *regexp.Regexp
}

// NewRelaxedExtractor returns an extractor backed by xurls' relaxed matcher.
func NewRelaxedExtractor() *RelaxedExtractor {
	return &RelaxedExtractor{re: xurls.Relaxed()}
}

func (e *RelaxedExtractor) ExtractURLs(text string) []string {
	var out []string
	for _, m := range e.re.FindAllString(text, -1) {
		if isAddress(m) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// StrictExtractor only matches URLs that carry a scheme.
type StrictExtractor struct {
	re *regexp.Regexp
}

// NewStrictExtractor returns an extractor backed by xurls' strict matcher.
func NewStrictExtractor() *StrictExtractor {
	return &StrictExtractor{re: xurls.Strict()}
}

func (e *StrictExtractor) ExtractURLs(text string) []string {
	return e.re.FindAllString(text, -1)
}
