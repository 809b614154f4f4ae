package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf(t *testing.T) {
	if got := KindOf(New(NotFound, "gone")); got != NotFound {
		t.Errorf("expected NotFound, got %d", got)
	}
	if got := KindOf(errors.New("plain")); got != Unexpected {
		t.Errorf("expected Unexpected for plain error, got %d", got)
	}
	if got := KindOf(fmt.Errorf("wrapped: %w", New(DuplicateKey, "dup"))); got != DuplicateKey {
		t.Errorf("expected DuplicateKey through wrapping, got %d", got)
	}
}

func TestValidationFields(t *testing.T) {
	err := Validation(map[string]string{"file": "file is required", "patient": "unknown patient"})
	if !Is(err, ValidationFailed) {
		t.Fatal("expected ValidationFailed kind")
	}
	fields := FieldsOf(err)
	if fields["file"] != "file is required" {
		t.Errorf("unexpected field message: %q", fields["file"])
	}
	msg := err.Error()
	if msg != "validation failed: file: file is required; patient: unknown patient" {
		t.Errorf("unexpected message: %q", msg)
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{New(AccessDenied, "nope"), http.StatusForbidden},
		{Field("scope", "invalid scope"), http.StatusBadRequest},
		{New(NotFound, "missing"), http.StatusNotFound},
		{New(DuplicateKey, "duplicate active consent"), http.StatusConflict},
		{New(ExtractionFailed, "unreadable file"), http.StatusUnprocessableEntity},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestPublicMessage_NeverLeaksDenialReason(t *testing.T) {
	err := Wrap(AccessDenied, errors.New("no active consent for doctor 42"), "doctor lacks consent")
	if got := PublicMessage(err); got != "access denied" {
		t.Errorf("denial reason leaked: %q", got)
	}
	if got := PublicMessage(errors.New("pgx: connection refused")); got != "internal server error" {
		t.Errorf("internal detail leaked: %q", got)
	}
}
