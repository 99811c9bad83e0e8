package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }
func intp(v int) *int        { return &v }

func TestNewProduct_PromoOverridesPrice(t *testing.T) {
	p := NewProduct(RawProduct{
		Name:       "  Batería iPhone 11 ",
		Price:      f64(30),
		PromoPrice: f64(25),
		Quantity:   intp(4),
	}, "USD")

	require.Equal(t, "Batería iPhone 11", p.Name)
	require.Equal(t, 25.0, *p.Price)
	require.Equal(t, 30.0, *p.RegularPrice)
	require.True(t, p.HasPromo())
	require.True(t, p.InStock)
	require.Equal(t, "USD", p.Currency)
}

func TestNewProduct_StockFallbackAndClamp(t *testing.T) {
	p := NewProduct(RawProduct{Name: "Flex", Stock: intp(2)}, "USD")
	require.Equal(t, 2, p.Quantity)
	require.True(t, p.InStock)

	p = NewProduct(RawProduct{Name: "Flex", Quantity: intp(-3), Stock: intp(5)}, "USD")
	require.Zero(t, p.Quantity)
	require.False(t, p.InStock)
}

func TestNewProduct_NoPriceIsOnRequest(t *testing.T) {
	p := NewProduct(RawProduct{Name: "Placa"}, "USD")
	require.False(t, p.HasPrice())

	p = NewProduct(RawProduct{Name: "Placa", Price: f64(0)}, "USD")
	require.False(t, p.HasPrice())
}

func TestNewProduct_ImageURL(t *testing.T) {
	p := NewProduct(RawProduct{Name: "x", Images: []string{"", "https://cdn.example.com/a.jpg"}}, "USD")
	require.Equal(t, "https://cdn.example.com/a.jpg", p.ImageURL)

	p = NewProduct(RawProduct{Name: "x", Images: []string{"/uploads/a.jpg", "https://cdn.example.com/b.jpg"}}, "USD")
	require.Empty(t, p.ImageURL)
}

func TestNewProduct_CurrencyOverride(t *testing.T) {
	p := NewProduct(RawProduct{Name: "x", Currency: "ARS"}, "USD")
	require.Equal(t, "ARS", p.Currency)
}

func TestChatKey(t *testing.T) {
	require.Equal(t, "tg_123", ChatKey(ChannelTelegram, "123"))
	require.Equal(t, "wa_549111", ChatKey(ChannelWhatsApp, "549111"))
	require.Equal(t, "wa_549111", ChatKey(ChannelWhatsApp, "wa_549111"))
	require.Equal(t, ChannelWhatsApp, ChannelFromChatID("wa_549111"))
	require.Equal(t, ChannelWeb, ChannelFromChatID("web_abc"))
	require.Equal(t, ChannelTelegram, ChannelFromChatID("12345"))
}

func TestParseChannel(t *testing.T) {
	ch, ok := ParseChannel(" WhatsApp ")
	require.True(t, ok)
	require.Equal(t, ChannelWhatsApp, ch)

	_, ok = ParseChannel("sms")
	require.False(t, ok)
}
