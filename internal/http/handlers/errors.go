// Package handlers defines the HTTP-layer error codes shared by all
// endpoints. Codes are lowercase snake_case and stable: clients branch on
// them, messages are free to change.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
