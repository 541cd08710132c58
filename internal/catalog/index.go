// In-memory product index backing the recommendations flow. It is
// deterministic and read-only after construction (safe for concurrent use),
// and keeps no logging of its own; callers decide how/what to log.
//
// Scoring uses Jaccard similarity between the query token set and each
// item's title token set: score = |Q ∩ T| / |Q ∪ T|. Ties break on stock
// (highest first), then title, so results are stable across runs.
package catalog

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"strings"

	"github.com/lumakode/go-chatbot-backend/internal/nlp"
)

// ----------------------------------------------------------------------------
// Options

type Option func(*indexConfig)

type indexConfig struct {
	maxResults int
	minScore   float64
	stopwords  map[string]struct{}
}

func defaultIndexConfig() indexConfig {
	return indexConfig{
		maxResults: 12,
		minScore:   0,
		stopwords:  nil,
	}
}

// WithMaxResults caps how many items a single search returns.
func WithMaxResults(n int) Option {
	return func(c *indexConfig) {
		if n > 0 {
			c.maxResults = n
		}
	}
}

// WithMinScore discards matches scoring below the cutoff.
func WithMinScore(s float64) Option {
	return func(c *indexConfig) {
		if s >= 0 && s <= 1 {
			c.minScore = s
		}
	}
}

// WithIndexStopwords removes the given words from both title and query
// token sets before scoring.
func WithIndexStopwords(words []string) Option {
	return func(c *indexConfig) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = nlp.NormalizeText(w)
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

// ----------------------------------------------------------------------------
// Implementation

type indexedItem struct {
	item   Item
	tokens map[string]struct{}
	tLen   int
}

// Index is an immutable similarity index over catalog items. It implements
// the Search contract the recommendations flow depends on.
type Index struct {
	cfg  indexConfig
	rows []indexedItem
}

// NewIndexFromFile builds an Index from a JSON product dump (an array of
// items). A missing or unreadable file returns an empty index alongside the
// error so callers can degrade instead of crashing.
func NewIndexFromFile(path string, opts ...Option) (*Index, error) {
	cfg := defaultIndexConfig()
	for _, o := range opts {
		o(&cfg)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return &Index{cfg: cfg}, err
	}
	var items []Item
	if err := json.Unmarshal(b, &items); err != nil {
		return &Index{cfg: cfg}, err
	}
	return buildIndex(items, cfg), nil
}

// NewIndexFromItems builds an Index directly from a slice of items.
func NewIndexFromItems(items []Item, opts ...Option) *Index {
	cfg := defaultIndexConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return buildIndex(items, cfg)
}

func buildIndex(items []Item, cfg indexConfig) *Index {
	rows := make([]indexedItem, 0, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.Title) == "" {
			continue
		}
		toks := indexTokens(it.Title, cfg.stopwords)
		if len(toks) == 0 {
			continue
		}
		rows = append(rows, indexedItem{item: it, tokens: toks, tLen: len(toks)})
	}
	return &Index{cfg: cfg, rows: rows}
}

// Len reports how many items are searchable.
func (i *Index) Len() int { return len(i.rows) }

// Search returns the best-scoring items for the query, most similar first.
// An empty or unmatchable query yields no items and no error.
func (i *Index) Search(ctx context.Context, query string) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(i.rows) == 0 {
		return nil, nil
	}
	qTokens := indexTokens(query, i.cfg.stopwords)
	if len(qTokens) == 0 {
		return nil, nil
	}
	qLen := len(qTokens)

	type scored struct {
		item  Item
		score float64
	}
	buf := make([]scored, 0, len(i.rows))
	for _, row := range i.rows {
		over := tokenOverlap(qTokens, row.tokens)
		if over == 0 {
			continue
		}
		score := float64(over) / float64(qLen+row.tLen-over)
		if score < i.cfg.minScore || score <= 0 {
			continue
		}
		buf = append(buf, scored{item: row.item, score: score})
	}
	if len(buf) == 0 {
		return nil, nil
	}

	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].score != buf[b].score {
			return buf[a].score > buf[b].score
		}
		if buf[a].item.Stock != buf[b].item.Stock {
			return buf[a].item.Stock > buf[b].item.Stock
		}
		return buf[a].item.Title < buf[b].item.Title
	})

	k := i.cfg.maxResults
	if k > len(buf) {
		k = len(buf)
	}
	out := make([]Item, k)
	for n := 0; n < k; n++ {
		out[n] = buf[n].item
	}
	return out, nil
}

// ----------------------------------------------------------------------------
// Helpers

// indexTokens relies on nlp.NormalizeText dropping everything that is not a
// letter, digit, or space, so splitting on fields is a full tokenization.
func indexTokens(s string, stop map[string]struct{}) map[string]struct{} {
	words := strings.Fields(nlp.NormalizeText(s))
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if stop != nil {
			if _, skip := stop[w]; skip {
				continue
			}
		}
		out[w] = struct{}{}
	}
	return out
}

func tokenOverlap(a, b map[string]struct{}) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}
