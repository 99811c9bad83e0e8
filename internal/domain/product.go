package domain

import "strings"

// Product is a catalog row shaped for prompt context and channel media.
type Product struct {
	Name string
	// Price is the effective price: the promo price when one is set,
	// otherwise the regular price. Nil means "price on request".
	Price        *float64
	PromoPrice   *float64
	RegularPrice *float64
	Currency     string
	Quantity     int
	InStock      bool
	ImageURL     string
	Category     string
	Location     string
}

// HasPrice reports whether the product can be quoted. A missing or zero
// price is display-only and must never be presented as free.
func (p Product) HasPrice() bool {
	return p.Price != nil && *p.Price > 0
}

// HasPromo reports whether a promotional price overrides the regular one.
func (p Product) HasPromo() bool {
	return p.PromoPrice != nil && *p.PromoPrice > 0
}

// RawProduct is a catalog row as returned by a store, before derivation.
type RawProduct struct {
	Name       string
	Price      *float64
	PromoPrice *float64
	Quantity   *int
	Stock      *int
	Currency   string
	Images     []string
	Category   string
	Location   string
}

// NewProduct derives the display product from a raw catalog row.
func NewProduct(raw RawProduct, defaultCurrency string) Product {
	qty := 0
	switch {
	case raw.Quantity != nil:
		qty = *raw.Quantity
	case raw.Stock != nil:
		qty = *raw.Stock
	}
	if qty < 0 {
		qty = 0
	}

	currency := strings.TrimSpace(raw.Currency)
	if currency == "" {
		currency = defaultCurrency
	}

	price := raw.Price
	if raw.PromoPrice != nil {
		price = raw.PromoPrice
	}

	return Product{
		Name:         strings.TrimSpace(raw.Name),
		Price:        price,
		PromoPrice:   raw.PromoPrice,
		RegularPrice: raw.Price,
		Currency:     currency,
		Quantity:     qty,
		InStock:      qty > 0,
		ImageURL:     firstAbsoluteURL(raw.Images),
		Category:     strings.TrimSpace(raw.Category),
		Location:     strings.TrimSpace(raw.Location),
	}
}

// firstAbsoluteURL returns the first image when it is an absolute http(s)
// URL. Only the first candidate is considered.
func firstAbsoluteURL(images []string) string {
	for _, img := range images {
		img = strings.TrimSpace(img)
		if img == "" {
			continue
		}
		if strings.HasPrefix(img, "http://") || strings.HasPrefix(img, "https://") {
			return img
		}
		return ""
	}
	return ""
}

// ExchangeRate is the number of target currency units per 1 USD.
type ExchangeRate struct {
	ToCurrency string
	Rate       float64
}
