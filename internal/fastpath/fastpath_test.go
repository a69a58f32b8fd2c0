package fastpath

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestVerifyParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("API-Key") != "secret" {
			t.Errorf("missing API-Key header")
		}
		if !strings.Contains(r.URL.RawQuery, "email=") {
			t.Errorf("missing email query param: %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"is_valid":true,"status":"deliverable","catch_all":false,"is_free_email":false,"score":95}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret")
	res, err := c.Verify(t.Context(), "person@example.com")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.IsValid == nil || !*res.IsValid {
		t.Errorf("expected IsValid true, got %+v", res)
	}
	if res.Score != 95 {
		t.Errorf("Score = %d, want 95", res.Score)
	}
}

func TestVerifyCatchAllDetectedFromStatusSubstring(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"catch_all_detected"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret")
	res, err := c.Verify(t.Context(), "person@example.com")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !res.CatchAll {
		t.Errorf("expected CatchAll true from status substring, got %+v", res)
	}
}

func TestVerifyNonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret")
	if _, err := c.Verify(t.Context(), "person@example.com"); err == nil {
		t.Error("expected error on non-200 response")
	}
}
