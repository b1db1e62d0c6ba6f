package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSlack_OK(t *testing.T) {
	var got string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		_ = json.NewDecoder(r.Body).Decode(&payload)
		got = payload["text"]
		w.WriteHeader(200)
	}))
	defer ts.Close()

	s := NewSlack(0)
	err := s.Send(context.Background(), ts.URL, Message{Title: "Title", Text: "Hello"})
	if err != nil {
		t.Fatalf("send err: %v", err)
	}
	if got != "*Title*\nHello" {
		t.Fatalf("payload not as expected: %q", got)
	}
}

func TestSlack_Non2xx(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer ts.Close()

	err := NewSlack(0).Send(context.Background(), ts.URL, Message{Title: "X", Text: "Y"})
	if err == nil {
		t.Fatalf("expected error on non-2xx")
	}
}

func TestSlack_ValidateDestination(t *testing.T) {
	s := NewSlack(0)
	if err := s.ValidateDestination(context.Background(), "https://hooks.slack.com/services/T/B/X"); err != nil {
		t.Fatalf("valid webhook rejected: %v", err)
	}
	if err := s.ValidateDestination(context.Background(), "12345"); err == nil {
		t.Fatalf("chat id accepted as webhook")
	}
}
