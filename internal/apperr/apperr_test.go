package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestFromStatusClassifiesByStatus(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusBadRequest, ErrValidation},
		{http.StatusUnprocessableEntity, ErrValidation},
		{http.StatusUnauthorized, ErrAuth},
		{http.StatusForbidden, ErrAuth},
		{http.StatusConflict, ErrConflict},
	}
	for _, tc := range cases {
		err := FromStatus(tc.status, "boom")
		if !errors.Is(err, tc.want) {
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.want, err)
		}
	}

	err := FromStatus(http.StatusInternalServerError, "")
	for _, sentinel := range []error{ErrValidation, ErrAuth, ErrNetwork, ErrConflict, ErrGeolocation} {
		if errors.Is(err, sentinel) {
			t.Fatalf("500 should not match %v", sentinel)
		}
	}
	if err.Error() != http.StatusText(http.StatusInternalServerError) {
		t.Fatalf("expected status text fallback, got %q", err.Error())
	}
}

func TestCredentialRejectedOnlyFor401(t *testing.T) {
	if !CredentialRejected(FromStatus(http.StatusUnauthorized, "expired")) {
		t.Fatalf("expected 401 to reject the credential")
	}
	if CredentialRejected(FromStatus(http.StatusForbidden, "admins only")) {
		t.Fatalf("403 must not end the session")
	}
	wrapped := fmt.Errorf("load page: %w", FromStatus(http.StatusUnauthorized, ""))
	if !CredentialRejected(wrapped) {
		t.Fatalf("expected wrapped 401 to be detected")
	}
	if CredentialRejected(errors.New("plain")) {
		t.Fatalf("plain errors are not auth failures")
	}
}

func TestUserMessage(t *testing.T) {
	if got := UserMessage(Validation("Email is required"), "fallback"); got != "Email is required" {
		t.Fatalf("unexpected message %q", got)
	}
	if got := UserMessage(errors.New("dial tcp: secret detail"), "Something went wrong"); got != "Something went wrong" {
		t.Fatalf("expected fallback for unclassified error, got %q", got)
	}
	if got := UserMessage(nil, "fallback"); got != "" {
		t.Fatalf("expected empty message for nil, got %q", got)
	}
}

func TestNetworkWrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Network(cause)
	if !errors.Is(err, ErrNetwork) || !errors.Is(err, cause) {
		t.Fatalf("expected network error wrapping cause, got %v", err)
	}
	if UserMessage(err, "x") != "Unable to reach the HR service" {
		t.Fatalf("unexpected user message %q", UserMessage(err, "x"))
	}
}
