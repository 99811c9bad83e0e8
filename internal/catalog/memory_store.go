package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"

	"catalog-assistant/internal/domain"
	"catalog-assistant/internal/textnorm"
)

// MemoryStore is an in-process catalog, safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	products []domain.Product
	names    []string
}

// NewMemoryStore returns a store holding products in retrieval order.
func NewMemoryStore(products ...domain.Product) *MemoryStore {
	s := &MemoryStore{}
	s.Add(products...)
	return s
}

// Add appends products to the end of the retrieval order.
func (s *MemoryStore) Add(products ...domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range products {
		s.products = append(s.products, p)
		s.names = append(s.names, textnorm.Normalize(p.Name))
	}
}

func (s *MemoryStore) FindByName(ctx context.Context, tokens []string, limit int) ([]domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Product
	for i, name := range s.names {
		if !containsAll(name, tokens) {
			continue
		}
		out = append(out, s.products[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) Categories(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := map[string]struct{}{}
	var out []string
	for _, p := range s.products {
		if p.Category == "" {
			continue
		}
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		out = append(out, p.Category)
	}
	sort.Strings(out)
	return out, nil
}

func containsAll(name string, tokens []string) bool {
	for _, tok := range tokens {
		if !strings.Contains(name, textnorm.Normalize(tok)) {
			return false
		}
	}
	return true
}
