package flows

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/lumakode/go-chatbot-backend/internal/domain"
	"github.com/lumakode/go-chatbot-backend/internal/orderlookup"
	"github.com/lumakode/go-chatbot-backend/internal/ratelimit"
)

type fakeLimiter struct {
	decision ratelimit.Decision
	calls    int
}

func (f *fakeLimiter) Allow(_ context.Context, _, _, _, _ string) ratelimit.Decision {
	f.calls++
	return f.decision
}

type fakeOrders struct {
	order orderlookup.Order
	err   error
	calls int
	last  orderlookup.LookupRequest
}

func (f *fakeOrders) Lookup(_ context.Context, req orderlookup.LookupRequest) (orderlookup.Order, error) {
	f.calls++
	f.last = req
	return f.order, f.err
}

func allowAll() *fakeLimiter {
	return &fakeLimiter{decision: ratelimit.Decision{Allowed: true}}
}

func guestFlow(l *fakeLimiter, o *fakeOrders) *GuestOrderFlow {
	return NewGuestOrderFlow(l, o, zerolog.Nop())
}

func guestInput(text string, state domain.GuestOrderState) GuestOrderInput {
	return GuestOrderInput{
		Text:    text,
		Intent:  domain.IntentOrders,
		IP:      "10.0.0.1",
		UserKey: "guest",
		EventID: "evt-1",
		Prior:   domain.TurnMetadata{GuestOrder: state},
	}
}

func TestGuestOrder_EntersFlowWithoutData(t *testing.T) {
	f := guestFlow(allowAll(), &fakeOrders{})
	res, ok := f.Step(context.Background(), guestInput("donde esta mi pedido?", domain.GuestOrderNone))
	if !ok || !res.Handled {
		t.Fatalf("flow must claim an orders message: %+v", res)
	}
	if res.Metadata.GuestOrder != domain.GuestOrderAwaitingHas {
		t.Fatalf("state = %q; want awaiting_has_data_answer", res.Metadata.GuestOrder)
	}
}

func TestGuestOrder_NonOrdersIntentNotClaimed(t *testing.T) {
	f := guestFlow(allowAll(), &fakeOrders{})
	in := guestInput("hola", domain.GuestOrderNone)
	in.Intent = domain.IntentGreeting
	if _, ok := f.Step(context.Background(), in); ok {
		t.Fatalf("greeting must not enter the guest order flow")
	}
}

func TestGuestOrder_HasDataAnswers(t *testing.T) {
	cases := []struct {
		text         string
		wantState    domain.GuestOrderState
		requiresAuth bool
	}{
		{"dale", domain.GuestOrderAwaitingData, false},
		{"ni en pedo", domain.GuestOrderNone, true},
		{"que se yo", domain.GuestOrderAwaitingHas, false},
	}
	for _, c := range cases {
		f := guestFlow(allowAll(), &fakeOrders{})
		res, ok := f.Step(context.Background(), guestInput(c.text, domain.GuestOrderAwaitingHas))
		if !ok {
			t.Fatalf("%q: flow must claim the turn", c.text)
		}
		if res.Metadata.GuestOrder != c.wantState {
			t.Errorf("%q: state = %q; want %q", c.text, res.Metadata.GuestOrder, c.wantState)
		}
		if res.RequiresAuth != c.requiresAuth {
			t.Errorf("%q: requiresAuth = %v; want %v", c.text, res.RequiresAuth, c.requiresAuth)
		}
	}
}

func TestGuestOrder_InsufficientFactorsNamesMissingCount(t *testing.T) {
	orders := &fakeOrders{}
	f := guestFlow(allowAll(), orders)
	res, _ := f.Step(context.Background(), guestInput("pedido 55555 dni 30123456", domain.GuestOrderAwaitingData))
	if res.Metadata.GuestOrder != domain.GuestOrderAwaitingData {
		t.Fatalf("state = %q; want to stay awaiting payload", res.Metadata.GuestOrder)
	}
	if !strings.Contains(res.Message, "1 dato") {
		t.Fatalf("message = %q; want it to name 1 missing factor", res.Message)
	}
	if orders.calls != 0 {
		t.Fatalf("backend must not be called with insufficient factors")
	}
}

func TestGuestOrder_SufficientFactorsExecuteLookup(t *testing.T) {
	orders := &fakeOrders{order: orderlookup.Order{ID: "55555", Status: orderlookup.StatusShipped}}
	f := guestFlow(allowAll(), orders)
	res, _ := f.Step(context.Background(), guestInput("pedido 55555 dni 30123456 cel 011 4555 6677", domain.GuestOrderAwaitingData))
	if orders.calls != 1 {
		t.Fatalf("backend calls = %d; want 1", orders.calls)
	}
	if orders.last.OrderID != "55555" || orders.last.DNI != "30123456" {
		t.Fatalf("lookup request = %+v", orders.last)
	}
	if res.Metadata.GuestOrder != domain.GuestOrderNone {
		t.Fatalf("state = %q; want terminal", res.Metadata.GuestOrder)
	}
	if !strings.Contains(res.Message, "55555") {
		t.Fatalf("summary %q missing order id", res.Message)
	}
}

func TestGuestOrder_DirectLookupFromFirstMessage(t *testing.T) {
	orders := &fakeOrders{order: orderlookup.Order{ID: "98765", Status: orderlookup.StatusPending}}
	f := guestFlow(allowAll(), orders)
	res, ok := f.Step(context.Background(), guestInput("soy Ana Perez, orden 98765, dni 30123456", domain.GuestOrderNone))
	if !ok || orders.calls != 1 {
		t.Fatalf("complete first message must trigger a lookup (ok=%v calls=%d)", ok, orders.calls)
	}
	if res.Metadata.GuestOrder != domain.GuestOrderNone {
		t.Fatalf("state = %q; want terminal", res.Metadata.GuestOrder)
	}
}

func TestGuestOrder_RateLimitedKeepsStateAndSkipsBackend(t *testing.T) {
	limiter := &fakeLimiter{decision: ratelimit.Decision{Allowed: false, BlockedBy: ratelimit.DimensionOrder}}
	orders := &fakeOrders{}
	f := guestFlow(limiter, orders)
	res, _ := f.Step(context.Background(), guestInput("pedido 55555 dni 30123456 cel 011 4555 6677", domain.GuestOrderAwaitingData))
	if orders.calls != 0 {
		t.Fatalf("backend must not be called when rate limited")
	}
	if res.Metadata.GuestOrder != domain.GuestOrderAwaitingData {
		t.Fatalf("state = %q; want to keep awaiting payload", res.Metadata.GuestOrder)
	}
	if res.Message != msgHighDemand {
		t.Fatalf("message = %q", res.Message)
	}
}

func TestGuestOrder_NotFoundTerminatesWithGuidance(t *testing.T) {
	orders := &fakeOrders{err: orderlookup.ErrNotFoundOrMismatch}
	f := guestFlow(allowAll(), orders)
	res, _ := f.Step(context.Background(), guestInput("pedido 55555 dni 30123456 cel 011 4555 6677", domain.GuestOrderAwaitingData))
	if res.Metadata.GuestOrder != domain.GuestOrderNone {
		t.Fatalf("state = %q; want terminal on not-found", res.Metadata.GuestOrder)
	}
	if res.Message != msgNotFound {
		t.Fatalf("message = %q", res.Message)
	}
}

func TestGuestOrder_InvalidPayloadStaysInFlow(t *testing.T) {
	orders := &fakeOrders{err: orderlookup.ErrInvalidPayload}
	f := guestFlow(allowAll(), orders)
	res, _ := f.Step(context.Background(), guestInput("pedido 55555 dni 30123456 cel 011 4555 6677", domain.GuestOrderAwaitingData))
	if res.Metadata.GuestOrder != domain.GuestOrderAwaitingData {
		t.Fatalf("state = %q; want to stay for a corrected retry", res.Metadata.GuestOrder)
	}
}

func TestGuestOrder_TransientFailureStaysInFlow(t *testing.T) {
	orders := &fakeOrders{err: orderlookup.ErrThrottled}
	f := guestFlow(allowAll(), orders)
	res, _ := f.Step(context.Background(), guestInput("pedido 55555 dni 30123456 cel 011 4555 6677", domain.GuestOrderAwaitingData))
	if res.Metadata.GuestOrder != domain.GuestOrderAwaitingData {
		t.Fatalf("state = %q; want to stay after transient failure", res.Metadata.GuestOrder)
	}
	if res.Message != msgBackendErr {
		t.Fatalf("message = %q", res.Message)
	}
}

func TestGuestOrder_CancelledOrderOffersEscalation(t *testing.T) {
	orders := &fakeOrders{order: orderlookup.Order{
		ID:              "55555",
		Status:          orderlookup.StatusCancelled,
		CancelledReason: "pago rechazado",
	}}
	f := guestFlow(allowAll(), orders)
	res, _ := f.Step(context.Background(), guestInput("pedido 55555 dni 30123456 cel 011 4555 6677", domain.GuestOrderAwaitingData))
	if res.Metadata.Escalation != domain.EscalationAwaitingConfirm {
		t.Fatalf("escalation = %q; want awaiting confirmation", res.Metadata.Escalation)
	}
	if !strings.Contains(res.Message, "pago rechazado") {
		t.Fatalf("summary %q missing cancellation reason", res.Message)
	}
}
