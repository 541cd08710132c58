// Package catalog implements deterministic best-match selection over product
// lists and the snapshot records persisted on bot turns for price follow-ups.
//
// Matching never guesses: when no series tokens can be extracted from the
// query the result is ambiguous and nothing is returned, which callers turn
// into a clarification question rather than a wrong product.
package catalog

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/lumakode/go-chatbot-backend/internal/nlp"
)

// Item is one product row as loaded from the catalog dump.
type Item struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	ProductURL   string  `json:"productUrl,omitempty"`
	ThumbnailURL string  `json:"thumbnailUrl,omitempty"`
	Currency     string  `json:"currency,omitempty"`
	Amount       float64 `json:"amount"`
	Stock        int     `json:"stock"`
}

// volumeHintRE captures a volume number following any of the usual manga
// numbering spellings ("tomo 3", "vol. 3", "nro 3", "#3", "numero 3").
var volumeHintRE = regexp.MustCompile(`(?i)(?:tomo|vol(?:umen)?\.?|nro\.?|numero|núm\.?|#)\s*(\d{1,4})\b`)

// volumeStripRE removes volume-hint substrings when building series tokens.
var volumeStripRE = regexp.MustCompile(`(?i)(?:tomo|vol(?:umen)?\.?|nro\.?|numero|núm\.?|#)\s*\d{1,4}\b`)

// seriesStopWords are discarded from series tokens; they carry no identity.
var seriesStopWords = map[string]struct{}{
	"the": {}, "manga": {}, "comic": {}, "libro": {}, "tomo": {}, "vol": {},
	"volumen": {}, "nro": {}, "numero": {}, "edicion": {}, "serie": {},
	"del": {}, "las": {}, "los": {}, "una": {}, "uno": {}, "para": {},
	"con": {}, "que": {}, "quiero": {}, "busco": {}, "tienen": {},
	"algo": {}, "recomendame": {}, "recomienda": {}, "mas": {},
}

// ExtractVolume returns the volume number hinted at in entities or text,
// or 0 when none is present. Entities win over raw text.
func ExtractVolume(entities []string, text string) int {
	for _, e := range entities {
		if m := volumeHintRE.FindStringSubmatch(e); m != nil {
			if v, err := strconv.Atoi(m[1]); err == nil {
				return v
			}
		}
	}
	if m := volumeHintRE.FindStringSubmatch(text); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			return v
		}
	}
	return 0
}

// SeriesTokens derives the normalized tokens identifying a series from the
// longest entity candidate (or the raw text when no entities exist). Volume
// hints are stripped first; tokens under 3 runes and stop-words are dropped.
// An empty result means the query is ambiguous.
func SeriesTokens(entities []string, text string) []string {
	source := text
	longest := ""
	for _, e := range entities {
		// Entities that are pure volume hints don't identify a series.
		if strings.TrimSpace(volumeStripRE.ReplaceAllString(e, "")) == "" {
			continue
		}
		if len(e) > len(longest) {
			longest = e
		}
	}
	if longest != "" {
		source = longest
	}

	source = volumeStripRE.ReplaceAllString(source, "")
	normalized := nlp.NormalizeText(source)

	var out []string
	for _, tok := range strings.Fields(normalized) {
		if len([]rune(tok)) < 3 {
			continue
		}
		if _, stop := seriesStopWords[tok]; stop {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// titleHasVolume reports whether a normalized title names the volume, either
// as a labeled pair ("tomo 3", "vol 3") or as a standalone number token
// ("one piece 3", "#3" normalizes to a bare "3").
func titleHasVolume(normTitle string, v int) bool {
	n := strconv.Itoa(v)
	padded := n
	if v < 10 {
		padded = "0" + n
	}
	fields := strings.Fields(normTitle)
	for i, f := range fields {
		if f == n || f == padded {
			return true
		}
		switch f {
		case "tomo", "vol", "volumen", "nro", "numero", "num":
			if i+1 < len(fields) && (fields[i+1] == n || fields[i+1] == padded) {
				return true
			}
		}
	}
	return false
}

// SelectBestMatch picks the single best product for the query, or nil when
// the query is ambiguous or nothing contains every series token.
//
// Selection order:
//  1. candidates whose normalized title contains ALL series tokens;
//  2. among those, prefer titles carrying the hinted volume spelling
//     (falling back to the series-only set when none does);
//  3. prefer in-stock items, highest stock first; if everything is out of
//     stock, keep the first candidate (stable, input-order tie-break).
func SelectBestMatch(items []Item, entities []string, text string) *Item {
	tokens := SeriesTokens(entities, text)
	if len(tokens) == 0 {
		return nil // ambiguous: refuse to guess
	}

	var series []int
	for i, it := range items {
		title := nlp.NormalizeText(it.Title)
		all := true
		for _, tok := range tokens {
			if !strings.Contains(title, tok) {
				all = false
				break
			}
		}
		if all {
			series = append(series, i)
		}
	}
	if len(series) == 0 {
		return nil
	}

	candidates := series
	if vol := ExtractVolume(entities, text); vol > 0 {
		var withVol []int
		for _, i := range series {
			if titleHasVolume(nlp.NormalizeText(items[i].Title), vol) {
				withVol = append(withVol, i)
			}
		}
		if len(withVol) > 0 {
			candidates = withVol
		}
	}

	best := candidates[0]
	for _, i := range candidates[1:] {
		if items[i].Stock > items[best].Stock {
			best = i
		}
	}
	item := items[best]
	return &item
}
