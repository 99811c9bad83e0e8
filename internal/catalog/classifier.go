package catalog

import (
	"strings"

	"catalog-assistant/internal/textnorm"
)

// productVocabulary lists the price words, part names, brands and model codes
// that make a message worth a catalog lookup.
var productVocabulary = normalizeAll([]string{
	"precio", "precios", "cuánto", "cuesta", "vale", "valor",
	"stock", "tenés", "tienen", "hay", "disponible", "disponibilidad",
	"busco", "necesito", "quiero", "pantalla", "batería", "cámara",
	"flex", "módulo", "repuesto", "placa", "conector",
	"carga", "speaker", "parlante", "altavoz", "blindaje", "táctil",
	"vidrio", "display", "lcd", "samsung", "iphone", "xiaomi", "motorola",
	"huawei", "lg", "nokia", "oppo", "realme", "poco", "redmi", "a10",
	"a20", "a30", "a50", "a51", "a52", "a71", "a72", "s20", "s21", "s22",
})

// IsProductQuery reports whether message mentions any catalog vocabulary
// term. False negatives only cost grounding; false positives only cost a
// lookup.
func IsProductQuery(message string) bool {
	msg := textnorm.Normalize(message)
	if strings.TrimSpace(msg) == "" {
		return false
	}
	for _, term := range productVocabulary {
		if strings.Contains(msg, term) {
			return true
		}
	}
	return false
}

func normalizeAll(words []string) []string {
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		n := textnorm.Normalize(w)
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
