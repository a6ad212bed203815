package apperrors

import (
	"errors"
	"fmt"
)

// DispatchKind is the machine-readable classification of an outbound send
// failure. Exactly one kind is attached to every failed provider call.
type DispatchKind string

const (
	// DispatchNotConnected: no live provider session for the tenant.
	DispatchNotConnected DispatchKind = "NOT_CONNECTED"
	// DispatchInvalidRecipient: the recipient JID is not deliverable.
	DispatchInvalidRecipient DispatchKind = "INVALID_RECIPIENT"
	// DispatchProviderRejected: the provider refused the message.
	DispatchProviderRejected DispatchKind = "PROVIDER_REJECTED"
	// DispatchTimeout: the provider call exceeded its deadline.
	DispatchTimeout DispatchKind = "TIMEOUT"
)

// DispatchError is the typed failure of a single outbound send attempt.
// Sends are never retried implicitly, so the kind reflects exactly one
// provider interaction.
type DispatchError struct {
	Kind DispatchKind
	Err  error
}

func (e *DispatchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("dispatch failed: %s", e.Kind)
	}
	return fmt.Sprintf("dispatch failed: %s: %v", e.Kind, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// NewDispatchError builds a DispatchError of the given kind wrapping cause.
// cause may be nil.
func NewDispatchError(kind DispatchKind, cause error) error {
	return &DispatchError{Kind: kind, Err: cause}
}

// AsDispatchError extracts a DispatchError from err's chain.
func AsDispatchError(err error) (*DispatchError, bool) {
	var target *DispatchError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// DispatchKindOf returns the kind of the DispatchError in err's chain, or
// "" when err is not a dispatch failure.
func DispatchKindOf(err error) DispatchKind {
	if de, ok := AsDispatchError(err); ok {
		return de.Kind
	}
	return ""
}
