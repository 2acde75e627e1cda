package paths

import (
	"net/url"
	"testing"
)

func mustParse(t *testing.T, s string) *url.URL {
	t.Helper()
	u, err := url.Parse(s)
	if err != nil {
		t.Fatalf("url.Parse(%q) returned error: %s", s, err)
	}
	return u
}

func TestAddPageParamsFirstPage(t *testing.T) {
	base := mustParse(t, "https://example.com/outbox/alice")
	got := AddPageParams(base, "", 10)
	if !IsGetCollectionPage(got) {
		t.Fatalf("expected page query param to be set")
	}
	if GetCursor(got) != "" {
		t.Fatalf("expected empty cursor for first page, got %q", GetCursor(got))
	}
	if GetNumOrDefault(got, 5, 200) != 10 {
		t.Fatalf("expected n=10 to round-trip, got %d", GetNumOrDefault(got, 5, 200))
	}
}

func TestAddPageParamsWithCursor(t *testing.T) {
	base := mustParse(t, "https://example.com/outbox/alice")
	got := AddPageParams(base, "42", 10)
	if GetCursor(got) != "42" {
		t.Fatalf("expected cursor 42, got %q", GetCursor(got))
	}
}

func TestGetNumOrDefaultClampsToMax(t *testing.T) {
	u := mustParse(t, "https://example.com/outbox/alice?page=true&n=500")
	if got := GetNumOrDefault(u, 10, 200); got != 200 {
		t.Fatalf("expected clamp to max 200, got %d", got)
	}
}

func TestGetNumOrDefaultFallsBackOnInvalidValue(t *testing.T) {
	u := mustParse(t, "https://example.com/outbox/alice?page=true&n=notanumber")
	if got := GetNumOrDefault(u, 10, 200); got != 10 {
		t.Fatalf("expected fallback to default 10, got %d", got)
	}
}

func TestNormalizeStripsQueryAndFragment(t *testing.T) {
	u := mustParse(t, "https://example.com/outbox/alice?page=true&cursor=5#frag")
	got := Normalize(u)
	if got.RawQuery != "" || got.Fragment != "" {
		t.Fatalf("expected query and fragment stripped, got %q", got.String())
	}
	if got.Path != "/outbox/alice" {
		t.Fatalf("expected path preserved, got %q", got.Path)
	}
}
