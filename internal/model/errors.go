package model

import "errors"

// ErrorKind is the closed enumeration of delivery failure kinds. Provider,
// render and routing code return a *RouteError tagged with a kind instead
// of bespoke error types, so the retry classifier and the event formatter
// match on an exhaustive set.
type ErrorKind string

const (
	// KindInternal marks unclassified faults: timeouts, broken
	// connections, unexpected panics recovered at the boundary.
	KindInternal ErrorKind = "INTERNAL"
	// KindProviderConfiguration marks invalid or incomplete provider
	// credentials/settings.
	KindProviderConfiguration ErrorKind = "PROVIDER_CONFIGURATION"
	// KindRouting marks failures raised by the selection machinery
	// itself.
	KindRouting ErrorKind = "ROUTING"
	// KindProviderResponse marks a definitive provider rejection.
	KindProviderResponse ErrorKind = "PROVIDER_RESPONSE"
	// KindProviderRetryable marks a provider response that explicitly
	// asks for a retry (throttling, transient 5xx).
	KindProviderRetryable ErrorKind = "PROVIDER_RETRYABLE"
	// KindContentParse marks malformed message-context or block content.
	KindContentParse ErrorKind = "CONTENT_PARSE"
	// KindTemplateEvaluation marks a failure while rendering templates.
	KindTemplateEvaluation ErrorKind = "TEMPLATE_EVALUATION"
	// KindBlockedAddress marks an explicitly disallowed destination
	// domain/address; recorded as UNDELIVERABLE, never retried.
	KindBlockedAddress ErrorKind = "BLOCKED_ADDRESS"
)

// RouteError is the tagged failure result carried through the executor.
type RouteError struct {
	Kind    ErrorKind
	Message string
	// Payload is the structured provider error body, if any.
	Payload map[string]any
	// Request echoes the provider request for the ERROR event, if the
	// provider captured it.
	Request map[string]any
	Cause   error
}

func (e *RouteError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *RouteError) Unwrap() error { return e.Cause }

// NewRouteError builds a tagged error without a cause.
func NewRouteError(kind ErrorKind, message string) *RouteError {
	return &RouteError{Kind: kind, Message: message}
}

// WrapRouteError tags an underlying error with a kind.
func WrapRouteError(kind ErrorKind, message string, cause error) *RouteError {
	return &RouteError{Kind: kind, Message: message, Cause: cause}
}

// ClassifyError returns the RouteError for err, wrapping unknown errors as
// KindInternal so every failure path lands in the closed set.
func ClassifyError(err error) *RouteError {
	var re *RouteError
	if errors.As(err, &re) {
		return re
	}
	return &RouteError{Kind: KindInternal, Message: "internal error", Cause: err}
}
