package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T) string {
	t.Helper()
	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	if rr.Code != 200 {
		t.Fatalf("want 200, got %d", rr.Code)
	}
	return rr.Body.String()
}

func TestHandler_ExposesCollectors(t *testing.T) {
	RecordCheck("online", 150*time.Millisecond)
	RecordNotification("alert", errors.New("boom"))
	RecordNotification("recovery", nil)

	body := scrape(t)
	for _, want := range []string{
		`sitewatch_checks_total{status="online"}`,
		`sitewatch_check_duration_seconds_bucket{status="online"`,
		`sitewatch_notifications_total{kind="alert",result="failed"}`,
		`sitewatch_notifications_total{kind="recovery",result="delivered"}`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("exposition missing %s", want)
		}
	}
}
