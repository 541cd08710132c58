// Entity extraction for the recommendations flow.
//
// The catalog matcher prefers entity phrases over raw text when deriving
// series tokens and volume hints, so extraction here is high-precision:
// quoted titles, volume references, and capitalized name spans. Missing an
// entity degrades to raw-text matching; inventing one misroutes the match.
package nlp

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// Quoted segments: the user named the title verbatim.
	quotedEntityRE = regexp.MustCompile(`["“”«']([^"“”«»']{2,60})["“”»']`)

	// Volume references, keeping the category word when one directly
	// precedes ("manga Nro 1", "tomo 3", "vol. 12").
	volumeEntityRE = regexp.MustCompile(`(?i)\b(?:(?:manga|comic|cómic|figura|novela|libro)\s+)?(?:tomo|vol(?:umen)?\.?|nro\.?|numero|núm\.?|#)\s*\d{1,4}\b`)
)

// Lowercase words tolerated inside a capitalized span ("Attack on Titan",
// "Caballeros del Zodiaco").
var spanConnectors = map[string]struct{}{
	"de": {}, "del": {}, "la": {}, "el": {}, "las": {}, "los": {},
	"y": {}, "no": {}, "of": {}, "on": {}, "the": {}, "and": {},
}

// ExtractEntities pulls the phrases worth matching against catalog titles
// out of free text: quoted segments, volume references, and runs of
// capitalized words such as series names. Results keep their original
// spelling and input order, deduplicated on their normalized form.
func ExtractEntities(text string) []string {
	var out []string
	seen := map[string]struct{}{}
	add := func(s string) {
		s = strings.TrimSpace(s)
		key := NormalizeText(s)
		if key == "" {
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}

	for _, m := range quotedEntityRE.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, m := range volumeEntityRE.FindAllString(text, -1) {
		add(m)
	}
	for _, span := range capitalizedSpans(text) {
		add(span)
	}
	return out
}

// capitalizedSpans collects runs of two or more capitalized words, allowing
// connector words inside a run. Sentence punctuation ends a span, and
// trailing connectors are dropped so "de Attack on Titan," yields exactly
// "Attack on Titan".
func capitalizedSpans(text string) []string {
	var spans []string
	var run []string
	caps := 0

	flush := func() {
		for len(run) > 0 {
			if _, conn := spanConnectors[strings.ToLower(run[len(run)-1])]; !conn {
				break
			}
			run = run[:len(run)-1]
		}
		if caps >= 2 {
			spans = append(spans, strings.Join(run, " "))
		}
		run = nil
		caps = 0
	}

	for _, w := range strings.Fields(text) {
		trimmed := strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if trimmed == "" {
			flush()
			continue
		}
		first, _ := utf8.DecodeRuneInString(trimmed)
		_, conn := spanConnectors[strings.ToLower(trimmed)]
		switch {
		case unicode.IsUpper(first):
			run = append(run, trimmed)
			caps++
		case conn && len(run) > 0:
			run = append(run, trimmed)
		default:
			flush()
		}
		if trimmed != w && strings.ContainsAny(w, ",.;:!?") {
			flush()
		}
	}
	flush()
	return spans
}
