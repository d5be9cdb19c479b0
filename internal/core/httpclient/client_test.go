package httpclient

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewOutbound_DefaultsAndUserAgent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	c := NewOutbound(Options{})
	if c.Timeout != 2*time.Minute {
		t.Fatalf("Timeout=%v want 2m", c.Timeout)
	}
	resp, err := c.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = resp.Body.Close()
	if got != DefaultUserAgent {
		t.Fatalf("User-Agent=%q want %q", got, DefaultUserAgent)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.Header.Set("User-Agent", "custom")
	resp, err = NewOutbound(Options{Timeout: time.Second}).Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	_ = resp.Body.Close()
	if got != "custom" {
		t.Fatalf("explicit User-Agent overwritten: %q", got)
	}
}
