package nlp

import (
	"strings"

	"github.com/lumakode/go-chatbot-backend/internal/domain"
)

// Keyword groups checked in priority order. Order matters: a message asking
// where a purchase is should land on orders even if it also names a series.
var intentKeywords = []struct {
	intent string
	words  []string
}{
	{domain.IntentOrders, []string{
		"pedido", " orden ", "mi orden", "compra", "envio", "seguimiento",
		"tracking", "donde esta", "cuando llega", "factura", "cancelar",
	}},
	{domain.IntentRecommendations, []string{
		"recomend", "recomiend", "sugeri", "sugier", "parecido", "similar",
		"que leo", "que me conviene", "algo de", "tienen algo",
	}},
	{domain.IntentStoreInfo, []string{
		"horario", "direccion", "sucursal", "local", "como llego",
		"medios de pago", "cuotas", "abren",
	}},
	{domain.IntentGreeting, []string{
		" hola ", "buenas", "buen dia", "buenos dias", "que tal",
	}},
}

// ResolveIntent classifies a message by keyword lookup over normalized text.
// Deliberately shallow: real understanding happens downstream, this only has
// to pick the right flow and model tier.
func ResolveIntent(text string) string {
	normalized := " " + NormalizeText(text) + " "
	for _, group := range intentKeywords {
		for _, w := range group.words {
			if strings.Contains(normalized, w) {
				return group.intent
			}
		}
	}
	return domain.IntentGeneral
}
