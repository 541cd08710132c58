package orderlookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/lumakode/go-chatbot-backend/internal/config"
	"github.com/lumakode/go-chatbot-backend/internal/retry"
)

// Sentinel errors the orchestrator maps to user guidance.
var (
	ErrNotFoundOrMismatch = errors.New("order not found or identity mismatch")
	ErrInvalidPayload     = errors.New("order lookup payload rejected")
	ErrThrottled          = errors.New("order backend throttled")
	ErrUnauthorized       = errors.New("order backend rejected credentials")
	ErrUnavailable        = errors.New("order backend unavailable")
)

const lookupPath = "/v1/orders/lookup"

// retryBaseDelay paces 429 retries; the attempt count comes from config.
const retryBaseDelay = 300 * time.Millisecond

// Order statuses the flows react to.
const (
	StatusPending   = "pending"
	StatusShipped   = "shipped"
	StatusDelivered = "delivered"
	StatusCancelled = "cancelled"
)

// LookupRequest carries the order id and the identity factors backing it.
type LookupRequest struct {
	OrderID  string `json:"orderId"`
	DNI      string `json:"dni,omitempty"`
	Name     string `json:"name,omitempty"`
	LastName string `json:"lastName,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// OrderItem is one line of a looked-up order.
type OrderItem struct {
	Title    string `json:"title"`
	Quantity int    `json:"quantity"`
}

// Order is the validated lookup result.
type Order struct {
	ID                string
	Status            string
	Currency          string
	Total             float64
	Items             []OrderItem
	EstimatedDelivery string
	CancelledReason   string
}

// Client calls the order backend with signed requests.
type Client struct {
	http    *resty.Client
	signer  *Signer
	cfg     config.OrderLookupConfig
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

func New(cfg config.OrderLookupConfig, log zerolog.Logger) *Client {
	hc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(cfg.Timeout)
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "order-lookup",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
	})
	return &Client{
		http:    hc,
		signer:  NewSigner(cfg.KeyID, cfg.Secret),
		cfg:     cfg,
		breaker: breaker,
		log:     log,
	}
}

// Lookup resolves one order. Business rejections come back as the sentinel
// errors above; throttling is retried within the configured budget first.
func (c *Client) Lookup(ctx context.Context, req LookupRequest) (Order, error) {
	if req.OrderID == "" {
		return Order{}, fmt.Errorf("%w: missing order id", ErrInvalidPayload)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return Order{}, fmt.Errorf("marshal lookup request: %w", err)
	}

	policy := retry.Policy{MaxAttempts: c.cfg.MaxAttempts, BaseDelay: retryBaseDelay}
	return retry.Do(ctx, policy, c.log, "order_lookup", func(ctx context.Context) (Order, error) {
		return c.attempt(ctx, body)
	})
}

func (c *Client) attempt(ctx context.Context, body []byte) (Order, error) {
	resp, err := c.post(ctx, body)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Order{}, retry.Permanent(fmt.Errorf("%w: circuit open", ErrUnavailable))
		}
		return Order{}, err
	}

	// A stale timestamp, nonce or signature gets exactly one refreshed
	// retry; every other 401 surfaces as unauthorized.
	if resp.StatusCode() == http.StatusUnauthorized && staleSignatureReason(resp.Body()) {
		resp, err = c.post(ctx, body)
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return Order{}, retry.Permanent(fmt.Errorf("%w: circuit open", ErrUnavailable))
			}
			return Order{}, err
		}
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		order, perr := parseOrder(resp.Body())
		if perr != nil {
			return Order{}, retry.Permanent(fmt.Errorf("%w: %v", ErrInvalidPayload, perr))
		}
		return order, nil
	case http.StatusUnauthorized:
		return Order{}, retry.Permanent(ErrUnauthorized)
	case http.StatusNotFound:
		return Order{}, retry.Permanent(ErrNotFoundOrMismatch)
	case http.StatusUnprocessableEntity:
		return Order{}, retry.Permanent(ErrInvalidPayload)
	case http.StatusTooManyRequests:
		return Order{}, fmt.Errorf("%w: retry later", ErrThrottled)
	default:
		return Order{}, fmt.Errorf("unexpected order backend status %d", resp.StatusCode())
	}
}

// post signs with a fresh timestamp/nonce and sends the request through the
// breaker. Only transport failures and 5xx count against the breaker.
func (c *Client) post(ctx context.Context, body []byte) (*resty.Response, error) {
	sig := c.signer.Sign(http.MethodPost, lookupPath, body)
	out, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.http.R().
			SetContext(ctx).
			SetHeader(HeaderKeyID, sig.KeyID).
			SetHeader(HeaderTimestamp, sig.Timestamp).
			SetHeader(HeaderNonce, sig.Nonce).
			SetHeader(HeaderSignature, sig.Digest).
			SetBody(json.RawMessage(body)).
			Post(lookupPath)
		if err != nil {
			return nil, fmt.Errorf("order lookup request: %w", err)
		}
		if resp.StatusCode() >= http.StatusInternalServerError {
			return nil, fmt.Errorf("order backend error: %s", resp.Status())
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(*resty.Response), nil
}

// staleSignatureReason inspects a 401 body for the refreshable reasons.
func staleSignatureReason(body []byte) bool {
	var payload struct {
		Reason string `json:"reason"`
		Error  struct {
			Reason string `json:"reason"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return false
	}
	reason := payload.Reason
	if reason == "" {
		reason = payload.Error.Reason
	}
	switch reason {
	case "stale_timestamp", "stale_nonce", "stale_signature", "signature_expired":
		return true
	}
	return strings.HasPrefix(reason, "stale_")
}

// parseOrder validates the backend payload at the boundary; raw external
// JSON never flows past this function.
func parseOrder(body []byte) (Order, error) {
	var wire struct {
		ID                *string `json:"id"`
		Status            *string `json:"status"`
		Currency          string  `json:"currency"`
		Total             float64 `json:"total"`
		EstimatedDelivery string  `json:"estimated_delivery"`
		CancelledReason   string  `json:"cancelled_reason"`
		Items             []struct {
			Title    string `json:"title"`
			Quantity int    `json:"quantity"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return Order{}, fmt.Errorf("decode order payload: %w", err)
	}
	if wire.ID == nil || *wire.ID == "" {
		return Order{}, errors.New("order payload missing id")
	}
	if wire.Status == nil || *wire.Status == "" {
		return Order{}, errors.New("order payload missing status")
	}

	order := Order{
		ID:                *wire.ID,
		Status:            strings.ToLower(*wire.Status),
		Currency:          wire.Currency,
		Total:             wire.Total,
		EstimatedDelivery: wire.EstimatedDelivery,
		CancelledReason:   wire.CancelledReason,
	}
	for _, it := range wire.Items {
		order.Items = append(order.Items, OrderItem{Title: it.Title, Quantity: it.Quantity})
	}
	return order, nil
}
