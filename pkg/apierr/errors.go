// Package apierr defines the error taxonomy every SDK call reports through.
//
// Callers only ever see *Error values with a display-ready Message; transport
// errors and HTTP status codes are folded into the Kind.
package apierr

import (
	"errors"
	"strings"
)

type Kind int

const (
	// KindValidation is a local precondition failure; no request was sent.
	KindValidation Kind = iota + 1
	// KindAuthRequired means an authenticated call was attempted without a token.
	KindAuthRequired
	// KindRemoteRejection is a non-2xx backend response carrying a message.
	KindRemoteRejection
	// KindNetworkFailure covers transport-level failures.
	KindNetworkFailure
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthRequired:
		return "auth_required"
	case KindRemoteRejection:
		return "remote_rejection"
	case KindNetworkFailure:
		return "network_failure"
	default:
		return "unknown"
	}
}

// NetworkMessage is shown for every transport failure.
const NetworkMessage = "Network error. Please check your connection and try again."

// Sentinels for errors.Is; they match any *Error of the same kind.
var (
	ErrValidation      = &Error{Kind: KindValidation}
	ErrAuthRequired    = &Error{Kind: KindAuthRequired}
	ErrRemoteRejection = &Error{Kind: KindRemoteRejection}
	ErrNetworkFailure  = &Error{Kind: KindNetworkFailure}
)

// Error is the single error type returned by the SDK.
type Error struct {
	Kind    Kind
	Message string
	Status  int
	Code    string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so callers can write errors.Is(err, apierr.ErrAuthRequired).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Code == "" || t.Code == e.Code)
}

// Validation builds a local precondition failure.
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// AuthRequired builds a missing-token failure.
func AuthRequired(msg string) *Error {
	if msg == "" {
		msg = "Please login to continue"
	}
	return &Error{Kind: KindAuthRequired, Message: msg}
}

// Remote builds a backend rejection. fallback is used when the body had no message.
func Remote(status int, msg, code, fallback string) *Error {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		msg = fallback
	}
	return &Error{Kind: KindRemoteRejection, Status: status, Message: msg, Code: strings.TrimSpace(code)}
}

// Network wraps a transport failure.
func Network(err error) *Error {
	return &Error{Kind: KindNetworkFailure, Message: NetworkMessage, Err: err}
}

// KindOf returns the kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// StatusOf returns the HTTP status carried by a remote rejection, or 0.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// IsExpired reports whether a remote rejection refers to an expired link or token.
// The backend signals this with a 410 status or an "expired" message.
func IsExpired(err error) bool {
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindRemoteRejection {
		return false
	}
	if e.Status == 410 || strings.EqualFold(e.Code, "expired") {
		return true
	}
	return strings.Contains(strings.ToLower(e.Message), "expired")
}
