package biz

import (
	"regexp"
	"strings"
)

// intentPattern pairs a query intent with the regexes that pull the matching
// fact out of a chunk's raw text. This is the last rung of the fallback
// ladder: it produces a content-grounded reply with zero external services.
type intentPattern struct {
	name     string
	triggers []string
	extract  []*regexp.Regexp
	prefix   string
}

var intentPatterns = []intentPattern{
	{
		name:     "hours",
		triggers: []string{"horario", "hora", "abren", "cierran", "atienden", "atención"},
		extract: []*regexp.Regexp{
			regexp.MustCompile(`(?i)horarios?\s+(?:de\s+\w+\s+)?(?:es|son)?\s*:?\s*[^.\n]+`),
			regexp.MustCompile(`(?i)(?:abrimos|atendemos|abierto)\s+[^.\n]+`),
			regexp.MustCompile(`(?i)\b(?:de|desde)\s+\d{1,2}(?::\d{2})?\s*(?:a|hasta)\s+\d{1,2}(?::\d{2})?\s*(?:horas|hrs|hs|am|pm)?[^.\n]*`),
		},
		prefix: "Nuestro horario: ",
	},
	{
		name:     "delivery",
		triggers: []string{"envío", "envíos", "envio", "envios", "entrega", "delivery", "despacho"},
		extract: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(?:envíos?|envios?|entregas?|despachos?)\s+[^.\n]+`),
			regexp.MustCompile(`(?i)(?:enviamos|entregamos|despachamos)\s+[^.\n]+`),
		},
		prefix: "Sobre envíos: ",
	},
	{
		name:     "location",
		triggers: []string{"ubicación", "ubicacion", "dirección", "direccion", "dónde", "donde", "local", "tienda"},
		extract: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(?:estamos|ubicados?|encontramos)\s+(?:en|ubicados\s+en)\s+[^.\n]+`),
			regexp.MustCompile(`(?i)(?:dirección|direccion)\s*:?\s*[^.\n]+`),
			regexp.MustCompile(`(?i)(?:calle|avenida|av\.?|carrera)\s+[^.\n]+`),
		},
		prefix: "Nuestra ubicación: ",
	},
	{
		name:     "phone",
		triggers: []string{"teléfono", "telefono", "celular", "contacto", "llamar", "whatsapp", "número", "numero"},
		extract: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(?:teléfono|telefono|celular|whatsapp|contacto)\s*:?\s*\+?[\d\s\-().]{7,}`),
			regexp.MustCompile(`\+?\d[\d\s\-()]{6,}\d`),
		},
		prefix: "Contacto: ",
	},
	{
		name:     "products",
		triggers: []string{"producto", "productos", "venden", "ofrecen", "catálogo", "catalogo", "precio", "precios"},
		extract: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(?:vendemos|ofrecemos|productos?|catálogo|catalogo)\s*:?\s*[^.\n]+`),
			regexp.MustCompile(`(?i)precios?\s+[^.\n]+`),
		},
		prefix: "Sobre nuestros productos: ",
	},
}

// ExtractAnswer builds a best-effort reply from chunk text by matching the
// query against known intents and pulling the relevant sentence. Returns
// false when no intent or no extractable fact matches.
func ExtractAnswer(queryText, chunkText string) (string, bool) {
	query := strings.ToLower(queryText)

	for _, intent := range intentPatterns {
		if !matchesIntent(query, intent.triggers) {
			continue
		}
		for _, re := range intent.extract {
			if m := re.FindString(chunkText); m != "" {
				return intent.prefix + strings.TrimSpace(m), true
			}
		}
	}

	// no intent matched; fall back to the first sentence of the chunk so
	// the reply is still grounded in ingested content
	if sentence := firstSentence(chunkText); sentence != "" {
		return sentence, true
	}
	return "", false
}

func matchesIntent(query string, triggers []string) bool {
	for _, t := range triggers {
		if strings.Contains(query, t) {
			return true
		}
	}
	return false
}

func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if idx := strings.IndexAny(text, ".\n"); idx > 0 {
		return strings.TrimSpace(text[:idx+1])
	}
	const maxLen = 200
	if runes := []rune(text); len(runes) > maxLen {
		return string(runes[:maxLen]) + "..."
	}
	return text
}
