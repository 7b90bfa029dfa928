// Package llmerrors provides provider error normalization and classification
// utilities. Adapters translate vendor-specific failures into a ProviderError
// carrying one of a small closed set of semantic kinds; the classifier then
// maps a kind to a retry classification without ever parsing vendor strings.
package llmerrors

import (
	"context"
	"errors"
	"fmt"
)

// Kind is the semantic category of a provider failure. Adapters normalize
// their native errors into exactly one Kind.
type Kind int

const (
	// KindUnknown represents an unrecognized provider error.
	KindUnknown Kind = iota
	// KindRateLimited represents an upstream 429 / rate-limit rejection.
	KindRateLimited
	// KindTimeout represents a request that exceeded the adapter's timeout.
	KindTimeout
	// KindOverloaded represents an upstream overloaded/capacity response.
	KindOverloaded
	// KindUnavailable represents a 5xx / service-unavailable response.
	KindUnavailable
	// KindAuth represents an authentication failure (invalid or expired key).
	KindAuth
	// KindPermissionDenied represents a permission/entitlement rejection.
	KindPermissionDenied
	// KindBadRequest represents a malformed or rejected request payload.
	KindBadRequest
	// KindContextLength represents a prompt exceeding the model's context window.
	KindContextLength
	// KindCanceled represents caller-side cancellation, never a provider fault.
	KindCanceled
)

// String returns the kind's wire name, used in logs and diagnostics.
func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindTimeout:
		return "timeout"
	case KindOverloaded:
		return "overloaded"
	case KindUnavailable:
		return "unavailable"
	case KindAuth:
		return "auth"
	case KindPermissionDenied:
		return "permission_denied"
	case KindBadRequest:
		return "bad_request"
	case KindContextLength:
		return "context_length"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Classification is the retry semantics of a failure.
type Classification int

const (
	// ClassificationUnknown means the failure is unrecognized; the breaker
	// treats it like a transient failure for safety.
	ClassificationUnknown Classification = iota
	// ClassificationTransient means a retry may succeed (same or another provider).
	ClassificationTransient
	// ClassificationPermanent means retrying the identical input will not help.
	ClassificationPermanent
)

// String returns the classification name.
func (c Classification) String() string {
	switch c {
	case ClassificationTransient:
		return "transient"
	case ClassificationPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// ProviderError wraps a vendor failure with normalization metadata.
type ProviderError struct {
	// ProviderID is the routing identity of the provider that failed.
	ProviderID string
	// Kind is the normalized semantic category.
	Kind Kind
	// StatusCode is the upstream HTTP status when known, 0 otherwise.
	StatusCode int
	// Err is the underlying vendor error.
	Err error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s: %s (HTTP %d): %v", e.ProviderID, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s: %s: %v", e.ProviderID, e.Kind, e.Err)
}

// Unwrap returns the underlying error for errors.Is and errors.As compatibility.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// New creates a normalized provider error.
func New(providerID string, kind Kind, statusCode int, err error) *ProviderError {
	return &ProviderError{
		ProviderID: providerID,
		Kind:       kind,
		StatusCode: statusCode,
		Err:        err,
	}
}

// Classify maps a semantic kind to its retry classification.
//
// Rate limits, timeouts and upstream unavailability are transient: a retry
// against the same (later) or another (now) provider can succeed. Auth,
// permission and request-shape failures are permanent for the given input.
// Cancellation is permanent too: it says nothing about provider health, and
// permanent classifications never move a breaker. Anything unrecognized is
// unknown and handled like transient downstream.
func Classify(kind Kind) Classification {
	switch kind {
	case KindRateLimited, KindTimeout, KindOverloaded, KindUnavailable:
		return ClassificationTransient
	case KindAuth, KindPermissionDenied, KindBadRequest, KindContextLength, KindCanceled:
		return ClassificationPermanent
	default:
		return ClassificationUnknown
	}
}

// ClassifyError classifies any error. Non-ProviderError values fall through
// to ClassificationUnknown, except context cancellation which is permanent
// from the breaker's point of view (it says nothing about provider health,
// and the router surfaces it before recording anyway).
func ClassifyError(err error) Classification {
	if err == nil {
		return ClassificationUnknown
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return Classify(pe.Kind)
	}
	if errors.Is(err, context.Canceled) {
		return ClassificationPermanent
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassificationTransient
	}
	return ClassificationUnknown
}

// KindFromStatus maps an HTTP status code to a semantic kind. Shared by the
// adapters whose SDKs surface raw status codes.
func KindFromStatus(status int) Kind {
	switch {
	case status == 429:
		return KindRateLimited
	case status == 401:
		return KindAuth
	case status == 403:
		return KindPermissionDenied
	case status == 400 || status == 404 || status == 422:
		return KindBadRequest
	case status == 408 || status == 504:
		return KindTimeout
	case status == 529:
		return KindOverloaded
	case status >= 500:
		return KindUnavailable
	default:
		return KindUnknown
	}
}

// IsCanceled reports whether the error stems from caller-side cancellation.
func IsCanceled(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == KindCanceled
}
