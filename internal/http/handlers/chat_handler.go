// Chat HTTP handlers.
//
// This file exposes the webhook endpoints of the engine:
//   - POST /chat/web          (web widget turn)
//   - POST /chat/whatsapp     (WhatsApp delivery)
//   - GET  /conversations/{id}/turns (paginated history)
//
// Handlers are transport-thin: they validate input, call the orchestrator,
// and translate the outcome into the chat turn contract. Channel semantics
// matter here: a webhook answered with 5xx gets redelivered, so everything
// past validation answers 200 with ok/requiresAuth flags in the body.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lumakode/go-chatbot-backend/internal/domain"
	"github.com/lumakode/go-chatbot-backend/internal/http/middleware"
	"github.com/lumakode/go-chatbot-backend/internal/services"
	"github.com/lumakode/go-chatbot-backend/internal/utils"
)

// ChatService is the orchestrator contract consumed by the webhook handlers.
// Implementations must be safe for concurrent use and honor the context.
type ChatService interface {
	HandleMessage(ctx context.Context, req services.ChatRequest) (services.ChatReply, error)
}

// TurnHistory lists persisted conversation turns for the history endpoint.
type TurnHistory interface {
	ListPage(ctx context.Context, conversationID string, page, pageSize int) ([]domain.ConversationTurn, int64, error)
}

// Handlers groups the HTTP endpoints of the chat API.
type Handlers struct {
	chatSvc ChatService
	history TurnHistory
}

// New constructs a Handlers instance bound to the given services.
func New(chatSvc ChatService, history TurnHistory) *Handlers {
	return &Handlers{chatSvc: chatSvc, history: history}
}

//
// DTOs
//

// ChatTurnRequest is the inbound payload of one chat turn, shared by both
// channels. AccessToken is accepted for authenticated sessions and passed
// through opaquely; this service never validates it itself.
type ChatTurnRequest struct {
	ExternalEventID string `json:"externalEventId" binding:"required"`
	ConversationID  string `json:"conversationId"`
	UserID          string `json:"userId"`
	AccessToken     string `json:"accessToken"`
	Text            string `json:"text" binding:"required"`
}

// ChatTurnResponse is the chat turn contract's reply envelope. OK is false
// only when the turn could not be served as-is and the client must act
// (today: authenticate, when RequiresAuth is set).
type ChatTurnResponse struct {
	OK             bool                         `json:"ok"`
	Message        string                       `json:"message"`
	ConversationID string                       `json:"conversationId,omitempty"`
	Intent         string                       `json:"intent,omitempty"`
	ResponseID     string                       `json:"responseId,omitempty"`
	RequiresAuth   bool                         `json:"requiresAuth,omitempty"`
	Duplicate      bool                         `json:"duplicate,omitempty"`
	UI             []domain.CatalogSnapshotItem `json:"ui,omitempty"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListTurnsResponse wraps a page of conversation turns.
type ListTurnsResponse struct {
	Turns      []domain.ConversationTurn `json:"turns"`
	Pagination Pagination                `json:"pagination"`
}

// clampPagination parses and bounds page and page_size query params.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

//
// Handlers
//

// PostWebMessage handles one turn from the web widget.
func (h *Handlers) PostWebMessage(c *gin.Context) {
	h.postTurn(c, domain.SourceWeb)
}

// PostWhatsAppMessage handles one WhatsApp webhook delivery.
func (h *Handlers) PostWhatsAppMessage(c *gin.Context) {
	h.postTurn(c, domain.SourceWhatsApp)
}

func (h *Handlers) postTurn(c *gin.Context, source string) {
	var req ChatTurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "externalEventId and text are required")
		return
	}

	reply, err := h.chatSvc.HandleMessage(c.Request.Context(), services.ChatRequest{
		Source:          source,
		ExternalEventID: req.ExternalEventID,
		ConversationID:  req.ConversationID,
		UserID:          req.UserID,
		AccessToken:     req.AccessToken,
		Text:            req.Text,
		IP:              c.ClientIP(),
		RequestID:       middleware.RequestIDFrom(c),
	})
	switch {
	case err == nil:
	case errors.Is(err, services.ErrEmptyMessage),
		errors.Is(err, services.ErrMessageTooLong),
		errors.Is(err, services.ErrMissingEventID),
		errors.Is(err, services.ErrUnknownSource):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not process the message")
		return
	}

	ok(c, http.StatusOK, ChatTurnResponse{
		OK:             !reply.RequiresAuth,
		Message:        reply.Message,
		ConversationID: reply.ConversationID,
		Intent:         reply.Intent,
		ResponseID:     reply.TurnID,
		RequiresAuth:   reply.RequiresAuth,
		Duplicate:      reply.Duplicate,
		UI:             reply.UI,
	})
}

// ListTurns returns a page of a conversation's history, oldest first.
func (h *Handlers) ListTurns(c *gin.Context) {
	conversationID := c.Param("id")
	if conversationID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversation id required")
		return
	}
	page, pageSize := clampPagination(c)

	turns, total, err := h.history.ListPage(c.Request.Context(), conversationID, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not list turns")
		return
	}
	if turns == nil {
		turns = []domain.ConversationTurn{}
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListTurnsResponse{
		Turns: turns,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}
