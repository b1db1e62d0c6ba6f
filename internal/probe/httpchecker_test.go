package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hamed0406/sitewatch/internal/domain"
)

func target(url, word string, timeoutSec int) *domain.Target {
	return &domain.Target{ID: "T1", URL: url, ValidWord: word, TimeoutSec: timeoutSec}
}

func TestHTTPChecker_WordFound(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte("Service OK, v2"))
	}))
	defer s.Close()

	out := NewHTTPChecker().Check(context.Background(), target(s.URL, "OK", 2))
	if out.Status != domain.StatusOnline {
		t.Fatalf("want online, got %+v", out)
	}
	if out.StatusCode == nil || *out.StatusCode != 200 {
		t.Fatalf("want status 200, got %v", out.StatusCode)
	}
	if out.ResponseTimeMS == nil || *out.ResponseTimeMS < 0 {
		t.Fatalf("latency should be >= 0, got %v", out.ResponseTimeMS)
	}
	if out.Error != "" {
		t.Fatalf("want no error, got %q", out.Error)
	}
}

func TestHTTPChecker_WordMatchIsCaseSensitive(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("service ok"))
	}))
	defer s.Close()

	out := NewHTTPChecker().Check(context.Background(), target(s.URL, "OK", 2))
	if out.Status != domain.StatusOffline {
		t.Fatalf("want offline, got %+v", out)
	}
	if !strings.Contains(out.Error, "not found") {
		t.Fatalf("want valid word not found message, got %q", out.Error)
	}
	if out.StatusCode == nil || out.ResponseTimeMS == nil {
		t.Fatalf("a received response keeps status code and latency: %+v", out)
	}
}

func TestHTTPChecker_ErrorStatusWithWordIsOnline(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance OK", 503)
	}))
	defer s.Close()

	out := NewHTTPChecker().Check(context.Background(), target(s.URL, "OK", 2))
	if out.Status != domain.StatusOnline {
		t.Fatalf("classification is by body content only, got %+v", out)
	}
	if *out.StatusCode != 503 {
		t.Fatalf("want status 503, got %d", *out.StatusCode)
	}
}

func TestHTTPChecker_FollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("welcome home"))
	})
	s := httptest.NewServer(mux)
	defer s.Close()

	out := NewHTTPChecker().Check(context.Background(), target(s.URL, "home", 2))
	if out.Status != domain.StatusOnline || *out.StatusCode != 200 {
		t.Fatalf("want online after redirect, got %+v", out)
	}
}

func TestHTTPChecker_Timeout(t *testing.T) {
	release := make(chan struct{})
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-time.After(3 * time.Second):
		}
		w.Write([]byte("OK"))
	}))
	defer s.Close()
	defer close(release)

	out := NewHTTPChecker().Check(context.Background(), target(s.URL, "OK", 1))
	if out.Status != domain.StatusOffline {
		t.Fatalf("want offline due to timeout, got %+v", out)
	}
	if out.Error != "Timeout after 1s" {
		t.Fatalf("unexpected timeout message %q", out.Error)
	}
	if out.StatusCode != nil || out.ResponseTimeMS != nil {
		t.Fatalf("no response means nil status and latency: %+v", out)
	}
}

func TestHTTPChecker_TransportError(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := s.URL
	s.Close()

	out := NewHTTPChecker().Check(context.Background(), target(url, "OK", 2))
	if out.Status != domain.StatusOffline {
		t.Fatalf("want offline, got %+v", out)
	}
	if !strings.HasPrefix(out.Error, "Request error: ") {
		t.Fatalf("want request error message, got %q", out.Error)
	}
	if strings.Contains(out.Error, "Get \"") {
		t.Fatalf("url.Error prefix should be stripped: %q", out.Error)
	}
}
