package ap

import (
	"errors"
	"net/http"
	"testing"
)

func TestKindHTTPStatus(t *testing.T) {
	cases := []struct {
		k    Kind
		want int
	}{
		{InvalidActivity, http.StatusBadRequest},
		{UnknownActor, http.StatusNotFound},
		{OwnershipViolation, http.StatusForbidden},
		{MissingTarget, http.StatusBadRequest},
		{UnsupportedMediaType, http.StatusNotFound},
		{StoreFailure, http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := c.k.HTTPStatus(); got != c.want {
			t.Errorf("%s.HTTPStatus() = %d, want %d", c.k, got, c.want)
		}
	}
}

func TestAsErrorUnwrapsTypedError(t *testing.T) {
	base := errors.New("underlying failure")
	wrapped := wrapError(StoreFailure, "failed to persist activity", base)

	e, ok := AsError(wrapped)
	if !ok {
		t.Fatalf("expected AsError to recognize *Error")
	}
	if e.Kind != StoreFailure || e.Msg != "failed to persist activity" {
		t.Fatalf("unexpected error fields: %+v", e)
	}
	if !errors.Is(wrapped, base) {
		t.Fatalf("expected Unwrap to expose the underlying error")
	}
}

func TestAsErrorRejectsPlainError(t *testing.T) {
	if _, ok := AsError(errors.New("plain")); ok {
		t.Fatalf("expected AsError to reject a non-pipeline error")
	}
}
