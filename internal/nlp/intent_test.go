package nlp

import (
	"testing"

	"github.com/lumakode/go-chatbot-backend/internal/domain"
)

func TestResolveIntent(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
	}{
		{"order tracking", "¿Dónde está mi pedido?", domain.IntentOrders},
		{"order by word orden", "quiero ver mi orden", domain.IntentOrders},
		{"shipping question", "cuando llega el envío", domain.IntentOrders},
		{"recommendation request", "recomendame algo de acción", domain.IntentRecommendations},
		{"similar titles", "tienen algo similar a Berserk?", domain.IntentRecommendations},
		{"store hours", "¿Cuáles son sus horarios?", domain.IntentStoreInfo},
		{"payment options", "aceptan medios de pago en cuotas?", domain.IntentStoreInfo},
		{"greeting", "Hola!", domain.IntentGreeting},
		{"greeting buenas", "buenas tardes", domain.IntentGreeting},
		{"fallback", "gracias por todo", domain.IntentGeneral},
		{"empty", "", domain.IntentGeneral},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ResolveIntent(tc.text); got != tc.want {
				t.Fatalf("ResolveIntent(%q) = %q, want %q", tc.text, got, tc.want)
			}
		})
	}
}

// A message naming both a purchase and a series must land on orders: flow
// selection checks groups in priority order.
func TestResolveIntent_OrdersBeatRecommendations(t *testing.T) {
	got := ResolveIntent("donde esta mi pedido de One Piece, me recomendas algo similar?")
	if got != domain.IntentOrders {
		t.Fatalf("got %q, want %q", got, domain.IntentOrders)
	}
}
