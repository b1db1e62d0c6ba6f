package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hamed0406/sitewatch/internal/domain"
)

// MaxBodyBytes caps how much of a response body is searched for the valid word.
const MaxBodyBytes = 10 << 20

const userAgent = "sitewatch/1.0"

type HTTPChecker struct {
	// NewTransport builds the transport for one check. Each check gets its
	// own so that no connection outlives the unit of work.
	NewTransport func() http.RoundTripper
	MaxBody      int64
}

func NewHTTPChecker() *HTTPChecker {
	return &HTTPChecker{
		NewTransport: func() http.RoundTripper {
			return http.DefaultTransport.(*http.Transport).Clone()
		},
		MaxBody: MaxBodyBytes,
	}
}

func (h *HTTPChecker) Check(ctx context.Context, t *domain.Target) domain.Outcome {
	timeout := t.Timeout()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rt := h.NewTransport()
	if ct, ok := rt.(interface{ CloseIdleConnections() }); ok {
		defer ct.CloseIdleConnections()
	}
	client := &http.Client{Transport: rt}

	req, err := http.NewRequestWithContext(cctx, http.MethodGet, t.URL, nil)
	if err != nil {
		return offline(nil, nil, "Request error: "+err.Error())
	}
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return h.transportFailure(cctx, err, timeout)
	}
	defer resp.Body.Close()

	limit := h.MaxBody
	if limit <= 0 {
		limit = MaxBodyBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	latency := float64(time.Since(start).Microseconds()) / 1000 // ms
	code := resp.StatusCode
	if err != nil {
		return h.transportFailure(cctx, err, timeout)
	}

	if !strings.Contains(string(body), t.ValidWord) {
		return offline(&latency, &code, fmt.Sprintf("Valid word %q not found", t.ValidWord))
	}
	return domain.Outcome{
		Status:         domain.StatusOnline,
		ResponseTimeMS: &latency,
		StatusCode:     &code,
	}
}

func (h *HTTPChecker) transportFailure(ctx context.Context, err error, timeout time.Duration) domain.Outcome {
	if isTimeout(ctx, err) {
		return offline(nil, nil, fmt.Sprintf("Timeout after %ds", int(timeout/time.Second)))
	}
	return offline(nil, nil, "Request error: "+cause(err))
}

func offline(latency *float64, code *int, msg string) domain.Outcome {
	return domain.Outcome{
		Status:         domain.StatusOffline,
		ResponseTimeMS: latency,
		StatusCode:     code,
		Error:          msg,
	}
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// cause strips the "Get \"url\":" prefix added by *url.Error.
func cause(err error) string {
	var ue *url.Error
	if errors.As(err, &ue) && ue.Err != nil {
		return ue.Err.Error()
	}
	return err.Error()
}
