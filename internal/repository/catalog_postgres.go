package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"catalog-assistant/internal/domain"
	"catalog-assistant/internal/textnorm"
)

// Accented characters folded by translate() so that SQL-side matching uses
// the same alphabet as textnorm.Normalize.
const (
	accentsFrom = "áàäâãéèëêíìïîóòöôõúùüûñç"
	accentsTo   = "aaaaaeeeeiiiiooooouuuunc"
)

const findByNameQuery = `SELECT p.name, p.price, p.promo_price, p.quantity, p.stock, p.currency,
	p.image1, p.images, c.name, p.location
FROM products p
LEFT JOIN product_categories c ON c.id = p.category_id
WHERE translate(lower(p.name), $1, $2) LIKE ALL($3)
ORDER BY p.id
LIMIT $4`

const categoriesQuery = `SELECT name FROM product_categories WHERE name <> '' ORDER BY name`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// CatalogStore reads the product catalog from Postgres.
type CatalogStore struct {
	db              *sql.DB
	defaultCurrency string
}

// NewCatalogStore creates a CatalogStore. Rows without a currency are
// reported in defaultCurrency.
func NewCatalogStore(db *sql.DB, defaultCurrency string) (*CatalogStore, error) {
	if db == nil {
		return nil, errors.New("repository: db must not be nil")
	}
	defaultCurrency = strings.TrimSpace(defaultCurrency)
	if defaultCurrency == "" {
		defaultCurrency = "USD"
	}
	return &CatalogStore{db: db, defaultCurrency: defaultCurrency}, nil
}

// FindByName returns up to limit products whose normalized name contains
// every token, in catalog order.
func (s *CatalogStore) FindByName(ctx context.Context, tokens []string, limit int) ([]domain.Product, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	patterns := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		patterns = append(patterns, "%"+likeEscaper.Replace(textnorm.Normalize(tok))+"%")
	}

	rows, err := s.db.QueryContext(ctx, findByNameQuery, accentsFrom, accentsTo, pq.Array(patterns), limit)
	if err != nil {
		return nil, fmt.Errorf("repository: FindByName query: %w", err)
	}
	defer rows.Close()

	var out []domain.Product
	for rows.Next() {
		var (
			name, currency, image1, category, location sql.NullString
			price, promo                               sql.NullFloat64
			quantity, stock                            sql.NullInt64
			images                                     pq.StringArray
		)
		if err := rows.Scan(&name, &price, &promo, &quantity, &stock, &currency, &image1, &images, &category, &location); err != nil {
			return nil, fmt.Errorf("repository: FindByName scan: %w", err)
		}
		raw := domain.RawProduct{
			Name:       name.String,
			Price:      nullFloat(price),
			PromoPrice: nullFloat(promo),
			Quantity:   nullInt(quantity),
			Stock:      nullInt(stock),
			Currency:   currency.String,
			Category:   category.String,
			Location:   location.String,
		}
		if image1.Valid && image1.String != "" {
			raw.Images = append(raw.Images, image1.String)
		}
		raw.Images = append(raw.Images, images...)
		out = append(out, domain.NewProduct(raw, s.defaultCurrency))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: FindByName rows: %w", err)
	}
	return out, nil
}

// Categories lists catalog category names alphabetically.
func (s *CatalogStore) Categories(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, categoriesQuery)
	if err != nil {
		return nil, fmt.Errorf("repository: Categories query: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("repository: Categories scan: %w", err)
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: Categories rows: %w", err)
	}
	return out, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
