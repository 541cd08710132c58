// Package services implements the turn orchestrator composing idempotent
// intake, flow state machines, model routing, and exactly-once persistence.
// This file centralizes service-level error values so they can be returned
// consistently and translated to HTTP results at the handler layer.
package services

import "errors"

var (
	// ErrEmptyMessage is returned when an inbound event carries no text.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrMessageTooLong is returned when the text exceeds the configured
	// maximum length.
	ErrMessageTooLong = errors.New("message too long")

	// ErrUnknownSource is returned for a source outside the supported
	// channels ("web", "whatsapp").
	ErrUnknownSource = errors.New("unknown event source")

	// ErrMissingEventID is returned when the channel did not provide an
	// external event identifier; without it deduplication is impossible.
	ErrMissingEventID = errors.New("external event id is required")
)
