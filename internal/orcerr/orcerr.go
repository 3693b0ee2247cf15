// Package orcerr defines the closed error taxonomy shared by every service
// in the engine: ValidationError, NotFound, Conflict, UpstreamFailure,
// StoreFailure and Cancelled. Handlers switch on Kind rather than sniffing
// error strings, and callers detect a case with the Is* helpers, which work
// through arbitrary wrapping via errors.As.
package orcerr

import (
	"errors"
	"fmt"
)

// Kind discriminates the error taxonomy.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindUpstream   Kind = "upstream_failure"
	KindStore      Kind = "store_failure"
	KindCancelled  Kind = "cancelled"
)

// Error is the engine-wide error type. Component is the package/service that
// raised it (e.g. "conversation", "approval"); Subject identifies the entity
// involved (a conversation id, approval id, ...) when applicable.
type Error struct {
	Kind      Kind
	Component string
	Subject   string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	var sb string
	if e.Component != "" {
		sb = e.Component + ": "
	}
	sb += string(e.Kind)
	if e.Subject != "" {
		sb += fmt.Sprintf(" [%s]", e.Subject)
	}
	if e.Message != "" {
		sb += ": " + e.Message
	}
	if e.Err != nil {
		sb += ": " + e.Err.Error()
	}
	return sb
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target has the same Kind, so errors.Is(err, &Error{Kind: KindNotFound}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == "" {
		return false
	}
	return e.Kind == t.Kind
}

func build(kind Kind, component, subject, message string, err error) *Error {
	return &Error{Kind: kind, Component: component, Subject: subject, Message: message, Err: err}
}

// Validation builds a KindValidation error: the caller supplied data that
// fails an invariant (e.g. an empty message, an oversized title).
func Validation(component, message string) *Error {
	return build(KindValidation, component, "", message, nil)
}

// NotFound builds a KindNotFound error for a missing entity.
func NotFound(component, subject string) *Error {
	return build(KindNotFound, component, subject, "not found", nil)
}

// Conflict builds a KindConflict error: the requested transition is illegal
// given current state (e.g. deciding an already-terminal approval).
func Conflict(component, subject, message string) *Error {
	return build(KindConflict, component, subject, message, nil)
}

// Upstream wraps a failure from an external collaborator (the language model
// stream, an external approval webhook, ...).
func Upstream(component string, err error) *Error {
	return build(KindUpstream, component, "", "", err)
}

// Store wraps a failure from the persistence layer.
func Store(component string, err error) *Error {
	return build(KindStore, component, "", "", err)
}

// Cancelled builds a KindCancelled error for a context cancellation or
// deadline that aborted an in-flight operation.
func Cancelled(component string, err error) *Error {
	return build(KindCancelled, component, "", "", err)
}

func is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// IsValidation reports whether err (or anything it wraps) is a KindValidation error.
func IsValidation(err error) bool { return is(err, KindValidation) }

// IsNotFound reports whether err (or anything it wraps) is a KindNotFound error.
func IsNotFound(err error) bool { return is(err, KindNotFound) }

// IsConflict reports whether err (or anything it wraps) is a KindConflict error.
func IsConflict(err error) bool { return is(err, KindConflict) }

// IsUpstream reports whether err (or anything it wraps) is a KindUpstream error.
func IsUpstream(err error) bool { return is(err, KindUpstream) }

// IsStore reports whether err (or anything it wraps) is a KindStore error.
func IsStore(err error) bool { return is(err, KindStore) }

// IsCancelled reports whether err (or anything it wraps) is a KindCancelled error.
func IsCancelled(err error) bool { return is(err, KindCancelled) }
