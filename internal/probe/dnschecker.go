package probe

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/domain"
)

// DNSAnnotator wraps a Checker and, when a probe failed without any
// response, appends the DNS class of the host to the error text so that
// "site down" and "name does not resolve" can be told apart in history.
type DNSAnnotator struct {
	Inner    Checker
	Resolver Resolver
	Logger   *zap.Logger
}

func NewDNSAnnotator(inner Checker, logger *zap.Logger) *DNSAnnotator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DNSAnnotator{Inner: inner, Logger: logger}
}

func (d *DNSAnnotator) Check(ctx context.Context, t *domain.Target) domain.Outcome {
	out := d.Inner.Check(ctx, t)
	if out.Online() || out.StatusCode != nil || !strings.HasPrefix(out.Error, "Request error:") {
		return out
	}
	if ctx.Err() != nil {
		return out
	}

	dns := CheckDNS(ctx, d.Resolver, extractHost(t.URL))
	d.Logger.Debug("dns_check",
		zap.String("target_id", string(t.ID)),
		zap.String("domain", dns.Domain),
		zap.String("class", dns.Class),
		zap.Bool("has_a_or_aaaa", dns.HasAOrAAAA),
		zap.Strings("nameservers", dns.Nameservers),
		zap.String("cname", dns.CNAME),
		zap.String("resolver_error", dns.ResolverError),
	)
	if dns.Class != DNSResolves {
		out.Error = out.Error + " (dns=" + dns.Class + ")"
	}
	return out
}

func extractHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return u.Hostname()
}
