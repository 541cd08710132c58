package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lumakode/go-chatbot-backend/internal/domain"
	"github.com/lumakode/go-chatbot-backend/internal/nlp"
	"github.com/lumakode/go-chatbot-backend/internal/orderlookup"
	"github.com/lumakode/go-chatbot-backend/internal/ratelimit"
)

// RateLimiter gates backend lookups. Implemented by ratelimit.Limiter.
type RateLimiter interface {
	Allow(ctx context.Context, ip, userKey, orderID, eventID string) ratelimit.Decision
}

// OrderFinder resolves an order. Implemented by orderlookup.Client.
type OrderFinder interface {
	Lookup(ctx context.Context, req orderlookup.LookupRequest) (orderlookup.Order, error)
}

// User-facing prompts for the guest lookup dialog.
const (
	msgAskHasData = "Para consultar un pedido sin iniciar sesión necesito verificar tu identidad. ¿Tenés a mano el número de pedido y tus datos?"
	msgAskPayload = "Perfecto. Pasame el número de pedido y al menos dos de estos datos: DNI, nombre, apellido o teléfono."
	msgNeedLogin  = "Sin esos datos solo puedo mostrarte el pedido si iniciás sesión con tu cuenta."
	msgHighDemand = "Estamos recibiendo muchas consultas de pedidos en este momento. Esperá unos minutos y volvé a intentar."
	msgNotFound   = "No encontré un pedido que coincida con esos datos. Revisá el número de pedido y que los datos sean los de la compra."
	msgBadPayload = "Alguno de los datos no tiene el formato esperado. Revisalos y mandámelos de nuevo."
	msgBackendErr = "No pude consultar el pedido en este momento. Probá de nuevo en unos minutos."
)

// GuestOrderInput is one turn's input to the guest lookup flow.
type GuestOrderInput struct {
	Text    string
	Intent  string
	IP      string
	UserKey string
	EventID string
	Prior   domain.TurnMetadata
}

// GuestOrderFlow walks an unauthenticated user through identity verification
// and a rate-limited backend lookup.
type GuestOrderFlow struct {
	limiter RateLimiter
	orders  OrderFinder
	log     zerolog.Logger
}

func NewGuestOrderFlow(limiter RateLimiter, orders OrderFinder, log zerolog.Logger) *GuestOrderFlow {
	return &GuestOrderFlow{limiter: limiter, orders: orders, log: log}
}

// Step advances the flow one turn. The second return value reports whether
// the flow claimed this turn.
func (f *GuestOrderFlow) Step(ctx context.Context, in GuestOrderInput) (Result, bool) {
	next := in.Prior

	switch in.Prior.GuestOrder {
	case domain.GuestOrderNone:
		if in.Intent != domain.IntentOrders {
			return Result{}, false
		}
		factors := nlp.ExtractIdentityFactors(in.Text)
		if factors.Sufficient() {
			return f.lookup(ctx, in, next, factors), true
		}
		next.GuestOrder = domain.GuestOrderAwaitingHas
		return Result{Handled: true, Intent: domain.IntentOrders, Message: msgAskHasData, Metadata: next}, true

	case domain.GuestOrderAwaitingHas:
		switch nlp.ClassifyAnswer(in.Text) {
		case nlp.AnswerYes:
			next.GuestOrder = domain.GuestOrderAwaitingData
			return Result{Handled: true, Intent: domain.IntentOrders, Message: msgAskPayload, Metadata: next}, true
		case nlp.AnswerNo:
			next.GuestOrder = domain.GuestOrderNone
			return Result{Handled: true, Intent: domain.IntentOrders, Message: msgNeedLogin, RequiresAuth: true, Metadata: next}, true
		default:
			return Result{Handled: true, Intent: domain.IntentOrders, Message: msgAskHasData, Metadata: next}, true
		}

	case domain.GuestOrderAwaitingData:
		factors := nlp.ExtractIdentityFactors(in.Text)
		if !factors.Sufficient() {
			next.GuestOrder = domain.GuestOrderAwaitingData
			return Result{Handled: true, Intent: domain.IntentOrders, Message: insufficientMessage(factors), Metadata: next}, true
		}
		return f.lookup(ctx, in, next, factors), true
	}

	return Result{}, false
}

func (f *GuestOrderFlow) lookup(ctx context.Context, in GuestOrderInput, next domain.TurnMetadata, factors nlp.IdentityFactors) Result {
	decision := f.limiter.Allow(ctx, in.IP, in.UserKey, factors.OrderID, in.EventID)
	if !decision.Allowed {
		f.log.Warn().
			Str("blocked_by", string(decision.BlockedBy)).
			Msg("guest order lookup rate limited")
		next.GuestOrder = domain.GuestOrderAwaitingData
		return Result{Handled: true, Intent: domain.IntentOrders, Message: msgHighDemand, Metadata: next}
	}

	order, err := f.orders.Lookup(ctx, orderlookup.LookupRequest{
		OrderID:  factors.OrderID,
		DNI:      factors.DNI,
		Name:     factors.Name,
		LastName: factors.LastName,
		Phone:    factors.Phone,
	})
	switch {
	case err == nil:
		next.GuestOrder = domain.GuestOrderNone
		msg := summarizeOrder(order)
		if order.Status == orderlookup.StatusCancelled {
			next.Escalation = domain.EscalationAwaitingConfirm
			msg += " ¿Querés que lo derive al equipo de ventas para que revisen la cancelación?"
		}
		return Result{Handled: true, Intent: domain.IntentOrders, Message: msg, Metadata: next}
	case errors.Is(err, orderlookup.ErrNotFoundOrMismatch):
		next.GuestOrder = domain.GuestOrderNone
		return Result{Handled: true, Intent: domain.IntentOrders, Message: msgNotFound, Metadata: next}
	case errors.Is(err, orderlookup.ErrInvalidPayload):
		next.GuestOrder = domain.GuestOrderAwaitingData
		return Result{Handled: true, Intent: domain.IntentOrders, Message: msgBadPayload, Metadata: next}
	default:
		f.log.Warn().Err(err).Msg("guest order lookup failed")
		next.GuestOrder = domain.GuestOrderAwaitingData
		return Result{Handled: true, Intent: domain.IntentOrders, Message: msgBackendErr, Metadata: next}
	}
}

// insufficientMessage states exactly how many more identity factors are
// needed, or asks for the order number when that is what is missing.
func insufficientMessage(f nlp.IdentityFactors) string {
	if f.OrderID == "" {
		return "Me falta el número de pedido. Mandámelo junto con tus datos."
	}
	missing := f.MissingFactors()
	if missing == 1 {
		return "Me falta 1 dato más para verificar tu identidad (DNI, nombre, apellido o teléfono)."
	}
	return fmt.Sprintf("Me faltan %d datos más para verificar tu identidad (DNI, nombre, apellido o teléfono).", missing)
}

var statusLabels = map[string]string{
	orderlookup.StatusPending:   "pendiente de despacho",
	orderlookup.StatusShipped:   "en camino",
	orderlookup.StatusDelivered: "entregado",
	orderlookup.StatusCancelled: "cancelado",
}

func summarizeOrder(o orderlookup.Order) string {
	label, ok := statusLabels[o.Status]
	if !ok {
		label = o.Status
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Tu pedido %s está %s.", o.ID, label)
	if o.Status == orderlookup.StatusCancelled && o.CancelledReason != "" {
		fmt.Fprintf(&b, " Motivo: %s.", o.CancelledReason)
	}
	if o.EstimatedDelivery != "" && o.Status != orderlookup.StatusDelivered && o.Status != orderlookup.StatusCancelled {
		fmt.Fprintf(&b, " Entrega estimada: %s.", o.EstimatedDelivery)
	}
	return b.String()
}
