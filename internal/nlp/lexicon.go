// Package nlp holds the small deterministic language helpers the flows rely
// on: a tolerant Spanish affirmation/negation classifier and free-text
// extraction of order identity factors. No statistical models — everything
// here must be auditable and stable under test.
package nlp

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Answer classifies a short user reply.
type Answer int

// Answer values.
const (
	AnswerUnknown Answer = iota
	AnswerYes
	AnswerNo
)

// String implements fmt.Stringer for logging.
func (a Answer) String() string {
	switch a {
	case AnswerYes:
		return "yes"
	case AnswerNo:
		return "no"
	default:
		return "unknown"
	}
}

// Rioplatense-leaning affirmation lexicon. Matched on normalized tokens or
// as whole phrases, so "de una" and "ni en pedo" work even though they are
// multi-word.
var affirmations = map[string]struct{}{
	"si": {}, "sii": {}, "sip": {}, "sep": {}, "claro": {}, "obvio": {},
	"dale": {}, "ok": {}, "okey": {}, "oka": {}, "listo": {}, "perfecto": {},
	"genial": {}, "bueno": {}, "ya": {}, "afirmativo": {}, "correcto": {},
	"exacto": {}, "seguro": {}, "yes": {}, "obviamente": {}, "desde ya": {},
	"de una": {}, "de acuerdo": {}, "por supuesto": {}, "como no": {},
	"me sirve": {}, "quiero": {}, "vamos": {},
}

var negations = map[string]struct{}{
	"no": {}, "nop": {}, "nope": {}, "nada": {}, "negativo": {}, "jamas": {},
	"nunca": {}, "tampoco": {}, "mejor no": {}, "no gracias": {}, "paso": {},
	"ni en pedo": {}, "ni loco": {}, "ni ahi": {}, "para nada": {},
	"no tengo": {}, "no se": {}, "no quiero": {},
}

// ClassifyAnswer maps a free-text reply onto yes/no/unknown.
//
// The reply is normalized (diacritics stripped, lowercased, punctuation
// dropped) and matched first as a whole phrase, then by leading token. A
// negation always wins over an affirmation appearing later in the same
// reply ("no, mejor dale" is a no).
func ClassifyAnswer(text string) Answer {
	t := NormalizeText(text)
	if t == "" {
		return AnswerUnknown
	}

	if _, ok := negations[t]; ok {
		return AnswerNo
	}
	if _, ok := affirmations[t]; ok {
		return AnswerYes
	}

	// Multi-word phrases embedded in a longer reply.
	for phrase := range negations {
		if strings.Contains(phrase, " ") && strings.Contains(t, phrase) {
			return AnswerNo
		}
	}
	for phrase := range affirmations {
		if strings.Contains(phrase, " ") && strings.Contains(t, phrase) {
			return AnswerYes
		}
	}

	// Leading token decides; "no ..." beats any later "si".
	fields := strings.Fields(t)
	if len(fields) > 0 {
		if _, ok := negations[fields[0]]; ok {
			return AnswerNo
		}
		if _, ok := affirmations[fields[0]]; ok {
			return AnswerYes
		}
	}
	return AnswerUnknown
}

// IsShortAcknowledgement reports whether the reply is a bare yes-like
// acknowledgement ("dale", "sí") with no content of its own. The
// recommendations memory resolver only rewrites these.
func IsShortAcknowledgement(text string) bool {
	t := NormalizeText(text)
	if t == "" {
		return false
	}
	if len(strings.Fields(t)) > 3 {
		return false
	}
	return ClassifyAnswer(t) == AnswerYes
}

// NormalizeText lowercases, strips diacritics, and collapses everything that
// is not a letter, digit, or space.
func NormalizeText(s string) string {
	stripped := StripDiacritics(strings.ToLower(strings.TrimSpace(s)))
	var b strings.Builder
	b.Grow(len(stripped))
	for _, r := range stripped {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// diacriticStripper removes combining marks after NFD decomposition.
var diacriticStripper = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// StripDiacritics converts "Sí, ñoño" into "Si, nono". On transform failure
// the input is returned unchanged; callers treat it as best-effort.
func StripDiacritics(s string) string {
	out, _, err := transform.String(diacriticStripper, s)
	if err != nil {
		return s
	}
	return out
}
