package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"catalog-assistant/internal/domain"
)

const ratesQuery = `SELECT to_currency, rate FROM exchange_rates WHERE rate > 0 ORDER BY to_currency`

// pgUndefinedTable is the SQLSTATE for a missing relation.
const pgUndefinedTable = "42P01"

// RatesStore reads USD exchange rates from Postgres.
type RatesStore struct {
	db *sql.DB
}

func NewRatesStore(db *sql.DB) (*RatesStore, error) {
	if db == nil {
		return nil, errors.New("repository: db must not be nil")
	}
	return &RatesStore{db: db}, nil
}

// Rates returns all configured rates. A missing exchange_rates table is not
// an error: there is simply nothing to show.
func (s *RatesStore) Rates(ctx context.Context) ([]domain.ExchangeRate, error) {
	rows, err := s.db.QueryContext(ctx, ratesQuery)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUndefinedTable {
			return nil, nil
		}
		return nil, fmt.Errorf("repository: Rates query: %w", err)
	}
	defer rows.Close()

	var out []domain.ExchangeRate
	for rows.Next() {
		var r domain.ExchangeRate
		if err := rows.Scan(&r.ToCurrency, &r.Rate); err != nil {
			return nil, fmt.Errorf("repository: Rates scan: %w", err)
		}
		r.ToCurrency = strings.ToUpper(strings.TrimSpace(r.ToCurrency))
		if r.ToCurrency == "" {
			continue
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: Rates rows: %w", err)
	}
	return out, nil
}
