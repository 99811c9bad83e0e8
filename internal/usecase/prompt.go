package usecase

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"catalog-assistant/internal/domain"
)

// Lookup is the outcome of the catalog step for one turn.
type Lookup int

const (
	// LookupSkipped means the message was not a product query.
	LookupSkipped Lookup = iota
	// LookupDone means the catalog was queried; the result may be empty.
	LookupDone
	// LookupFailed means the catalog could not be queried.
	LookupFailed
)

const closedWorldRule = "Only mention products, prices and stock that appear in a catalog list given in this conversation. " +
	"Never invent products, prices, availability or currency conversions."

const ratesHeader = "CURRENT EXCHANGE RATES (always use these exact figures, never estimate other conversions):"

var currencyNames = map[string]string{
	"ARS":     "Argentine pesos",
	"REAL":    "Brazilian reais",
	"BRL":     "Brazilian reais",
	"GUARANI": "Paraguayan guaraníes",
	"PYG":     "Paraguayan guaraníes",
}

// rates are quoted the way the shop's customers write them: 1.250,5
var ratePrinter = message.NewPrinter(language.MustParse("es-AR"))

// AssembleContext renders the grounding block for the system prompt. The
// closed-world rule is always present, so the model is constrained even when
// no lookup ran or it returned nothing.
func AssembleContext(products []domain.Product, rates []domain.ExchangeRate, lookup Lookup) string {
	var blocks []string
	if r := ratesBlock(rates); r != "" {
		blocks = append(blocks, r)
	}

	switch lookup {
	case LookupDone:
		blocks = append(blocks, productsBlock(products))
	case LookupFailed:
		blocks = append(blocks, "The catalog could not be queried right now. "+
			"Do not quote any product, price or stock; apologize and ask the customer to try again in a few minutes.")
	}

	blocks = append(blocks, closedWorldRule)
	return strings.Join(blocks, "\n\n")
}

// BuildSystemPrompt appends the context block to the persona, which is never replaced.
func BuildSystemPrompt(persona, contextBlock string) string {
	persona = strings.TrimSpace(persona)
	contextBlock = strings.TrimSpace(contextBlock)
	if contextBlock == "" {
		return persona
	}
	return persona + "\n\n--- CATALOG CONTEXT ---\n" + contextBlock + "\n--- END CONTEXT ---"
}

func ratesBlock(rates []domain.ExchangeRate) string {
	if len(rates) == 0 {
		return ""
	}
	lines := make([]string, 0, len(rates)+1)
	lines = append(lines, ratesHeader)
	for _, r := range rates {
		code := strings.ToUpper(strings.TrimSpace(r.ToCurrency))
		line := fmt.Sprintf("1 USD = %s %s", ratePrinter.Sprint(number.Decimal(r.Rate, number.MaxFractionDigits(2))), code)
		if name, ok := currencyNames[code]; ok {
			line += " (" + name + ")"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func productsBlock(products []domain.Product) string {
	if len(products) == 0 {
		return "No matching products were found in the catalog for this query. " +
			"Do not offer or invent any product; tell the customer it was not found and ask for the exact model or another detail."
	}
	lines := make([]string, 0, len(products)+2)
	lines = append(lines, fmt.Sprintf("EXACT LIST OF AVAILABLE PRODUCTS (you may only mention these %d products):", len(products)))
	for _, p := range products {
		lines = append(lines, fmt.Sprintf("- %s | %s | %s", p.Name, priceText(p), stockText(p)))
	}
	lines = append(lines, "Any product not on this list does not exist in the catalog.")
	return strings.Join(lines, "\n")
}

func priceText(p domain.Product) string {
	if !p.HasPrice() {
		return "Price on request"
	}
	text := "$" + formatAmount(*p.Price) + " " + p.Currency
	if p.HasPromo() && p.RegularPrice != nil && *p.RegularPrice > 0 {
		text += " (PROMO, was $" + formatAmount(*p.RegularPrice) + ")"
	}
	return text
}

func stockText(p domain.Product) string {
	if !p.InStock {
		return "Out of stock"
	}
	return fmt.Sprintf("In stock (%d units)", p.Quantity)
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// buildMessages orders the completion input: system, history oldest first, user.
// History is replayed verbatim so user/assistant alternation is preserved.
func buildMessages(systemPrompt string, history []domain.Turn, userMessage string) []domain.ChatMessage {
	messages := make([]domain.ChatMessage, 0, len(history)+2)
	messages = append(messages, domain.ChatMessage{Role: domain.RoleSystem, Content: systemPrompt})
	for _, t := range history {
		messages = append(messages, t.Message())
	}
	return append(messages, domain.ChatMessage{Role: domain.RoleUser, Content: userMessage})
}
