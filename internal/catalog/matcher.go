// Package catalog resolves customer queries against the product catalog.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"catalog-assistant/internal/domain"
	"catalog-assistant/internal/textnorm"
)

const (
	DefaultFetchLimit    = 15
	DefaultResponseLimit = 8
)

// ErrUnavailable wraps any failure of the backing store during a lookup.
var ErrUnavailable = errors.New("catalog: unavailable")

var stopWords = toSet(normalizeAll([]string{
	"el", "la", "los", "las", "un", "una", "unos", "unas",
	"de", "del", "para", "con", "sin", "por", "que", "como",
	"tiene", "hay", "tengo", "busco", "necesito", "quiero",
	"precio", "cuanto", "cuesta", "vale",
	"me", "te", "le", "se", "si", "no", "es", "en",
	"the", "for", "with", "want", "need", "have", "price",
}))

var punctuation = strings.NewReplacer(
	"¿", " ", "?", " ", "¡", " ", "!", " ",
	".", " ", ",", " ", ";", " ", ":", " ",
)

// Finder runs a conjunctive name lookup: a row qualifies only when every
// token is a case- and accent-insensitive substring of its name. Rows come
// back in catalog retrieval order.
type Finder interface {
	FindByName(ctx context.Context, tokens []string, limit int) ([]domain.Product, error)
}

// Store is the full catalog contract consumed by the chat service.
type Store interface {
	Finder
	Categories(ctx context.Context) ([]string, error)
}

// Matcher tokenizes queries, looks them up and ranks the result.
type Matcher struct {
	finder     Finder
	fetchLimit int
}

// NewMatcher creates a Matcher. fetchLimit bounds rows read from the store
// per lookup; non-positive values use DefaultFetchLimit.
func NewMatcher(f Finder, fetchLimit int) (*Matcher, error) {
	if f == nil {
		return nil, errors.New("catalog: finder must not be nil")
	}
	if fetchLimit <= 0 {
		fetchLimit = DefaultFetchLimit
	}
	return &Matcher{finder: f, fetchLimit: fetchLimit}, nil
}

// Match returns at most limit products for query, most relevant first.
// A query with no searchable tokens returns nil without touching the store.
// When the full query matches nothing and has more than two tokens, the
// lookup is retried once without the first token.
func (m *Matcher) Match(ctx context.Context, query string, limit int) ([]domain.Product, error) {
	if limit <= 0 {
		limit = DefaultResponseLimit
	}
	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return nil, nil
	}

	rows, err := m.find(ctx, tokens)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 && len(tokens) > 2 {
		rows, err = m.find(ctx, tokens[1:])
		if err != nil {
			return nil, err
		}
	}
	if len(rows) == 0 {
		return nil, nil
	}

	Rank(rows, scoringKeywords(query))
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (m *Matcher) find(ctx context.Context, tokens []string) ([]domain.Product, error) {
	rows, err := m.finder.FindByName(ctx, tokens, m.fetchLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return rows, nil
}

// Tokenize returns the searchable tokens of query: normalized, without
// punctuation, stop-words or tokens of two characters or fewer.
func Tokenize(query string) []string {
	var out []string
	for _, w := range splitWords(query) {
		if len(w) <= 2 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		out = append(out, w)
	}
	return out
}

// scoringKeywords keeps stop-words so that rows also matching them rank
// above rows that only carry the searched tokens.
func scoringKeywords(query string) []string {
	var out []string
	for _, w := range splitWords(query) {
		if len(w) > 2 {
			out = append(out, w)
		}
	}
	return out
}

func splitWords(query string) []string {
	return strings.Fields(punctuation.Replace(textnorm.Normalize(query)))
}

// Rank sorts rows in place by the number of keywords found in each
// normalized name, descending. Ties keep their retrieval order.
func Rank(rows []domain.Product, keywords []string) {
	scores := make([]int, len(rows))
	for i, p := range rows {
		scores[i] = Score(p.Name, keywords)
	}
	idx := make([]int, len(rows))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return scores[idx[a]] > scores[idx[b]]
	})
	sorted := make([]domain.Product, len(rows))
	for i, j := range idx {
		sorted[i] = rows[j]
	}
	copy(rows, sorted)
}

// Score counts the keywords contained in the normalized name.
func Score(name string, keywords []string) int {
	n := textnorm.Normalize(name)
	score := 0
	for _, kw := range keywords {
		if strings.Contains(n, kw) {
			score++
		}
	}
	return score
}

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
