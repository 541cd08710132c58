package flows

import (
	"github.com/lumakode/go-chatbot-backend/internal/domain"
	"github.com/lumakode/go-chatbot-backend/internal/nlp"
)

// Escalation prompts.
const (
	msgEscalated     = "Listo, derivé tu caso al equipo de ventas. Te van a contactar para revisar la cancelación."
	msgNotEscalated  = "Perfecto, no lo derivo. Si cambiás de idea avisame."
	msgConfirmRepeat = "¿Querés que derive la cancelación de tu pedido al equipo de ventas? (sí/no)"
)

// StepEscalation resolves the cancelled-order confirmation offered after a
// lookup. The second return value reports whether the flow claimed the turn.
func StepEscalation(prior domain.TurnMetadata, text string) (Result, bool) {
	if prior.Escalation != domain.EscalationAwaitingConfirm {
		return Result{}, false
	}
	next := prior
	switch nlp.ClassifyAnswer(text) {
	case nlp.AnswerYes:
		next.Escalation = domain.EscalationNone
		return Result{Handled: true, Intent: domain.IntentOrders, Message: msgEscalated, Metadata: next}, true
	case nlp.AnswerNo:
		next.Escalation = domain.EscalationNone
		return Result{Handled: true, Intent: domain.IntentOrders, Message: msgNotEscalated, Metadata: next}, true
	default:
		return Result{Handled: true, Intent: domain.IntentOrders, Message: msgConfirmRepeat, Metadata: next}, true
	}
}
