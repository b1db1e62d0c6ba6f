package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hamed0406/sitewatch/internal/domain"
)

// AlertMessage describes a target that has crossed its failure threshold.
func AlertMessage(t *domain.Target, now time.Time) Message {
	errText := t.LastError
	if errText == "" {
		errText = "Unknown"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "*Website:* %s\n", t.DisplayName())
	fmt.Fprintf(&b, "*URL:* %s\n", t.URL)
	fmt.Fprintf(&b, "*Status:* %s\n", t.Status)
	fmt.Fprintf(&b, "*Consecutive Failures:* %d\n", t.ConsecutiveFailures)
	fmt.Fprintf(&b, "*Error:* %s\n", errText)
	fmt.Fprintf(&b, "*Time:* %s UTC", now.UTC().Format("2006-01-02 15:04:05"))
	return Message{Title: "🚨 Website Down Alert", Text: b.String()}
}

// RecoveryMessage describes a target that answered correctly again.
func RecoveryMessage(t *domain.Target, now time.Time) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "*Website:* %s\n", t.DisplayName())
	fmt.Fprintf(&b, "*URL:* %s\n", t.URL)
	if t.ResponseTimeMS != nil {
		fmt.Fprintf(&b, "*Response Time:* %s ms\n", humanize.CommafWithDigits(*t.ResponseTimeMS, 0))
	}
	fmt.Fprintf(&b, "*Checks:* %s total, %s failed\n", humanize.Comma(t.TotalChecks), humanize.Comma(t.FailedChecks))
	fmt.Fprintf(&b, "*Time:* %s UTC", now.UTC().Format("2006-01-02 15:04:05"))
	return Message{Title: "✅ Website Recovered", Text: b.String()}
}
