// Package apperr holds the error kinds that cross the boundary between the
// remote HR API and the pages that render its results.
package apperr

import (
	"errors"
	"net/http"
	"strings"
)

type Kind int

const (
	KindAPI Kind = iota
	KindValidation
	KindAuth
	KindNetwork
	KindConflict
	KindGeolocation
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindNetwork:
		return "network"
	case KindConflict:
		return "conflict"
	case KindGeolocation:
		return "geolocation"
	default:
		return "api"
	}
}

var (
	ErrValidation  = &Error{Kind: KindValidation}
	ErrAuth        = &Error{Kind: KindAuth}
	ErrNetwork     = &Error{Kind: KindNetwork}
	ErrConflict    = &Error{Kind: KindConflict}
	ErrGeolocation = &Error{Kind: KindGeolocation}
)

// Error is a classified failure. Message is safe to show to the user as is.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = e.Kind.String() + " error"
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrAuth) works
// for every auth failure regardless of status or message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func Validation(msg string) error {
	return &Error{Kind: KindValidation, Message: msg}
}

func Conflict(msg string) error {
	return &Error{Kind: KindConflict, Message: msg}
}

func Geolocation(msg string) error {
	return &Error{Kind: KindGeolocation, Message: msg}
}

func Network(err error) error {
	return &Error{Kind: KindNetwork, Message: "Unable to reach the HR service", Err: err}
}

// FromStatus classifies a non-2xx API response.
func FromStatus(status int, message string) error {
	message = strings.TrimSpace(message)
	kind := KindAPI
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		kind = KindValidation
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = KindAuth
	case http.StatusConflict:
		kind = KindConflict
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return &Error{Kind: kind, Status: status, Message: message}
}

// CredentialRejected reports whether the API refused the bearer credential
// itself, as opposed to refusing the action (403).
func CredentialRejected(err error) bool {
	var appErr *Error
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Kind == KindAuth && appErr.Status == http.StatusUnauthorized
}

// UserMessage returns the message to render inline for err. Unclassified
// errors never leak their text; the fallback is shown instead.
func UserMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) && strings.TrimSpace(appErr.Message) != "" {
		return appErr.Message
	}
	return fallback
}
