package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

var (
	ErrNoDestination      = errors.New("no alert destination")
	ErrInvalidDestination = errors.New("invalid alert destination")
)

// PartialDeliveryError is returned by a fan-out send where some
// destinations confirmed delivery and others failed. Err holds the failures.
type PartialDeliveryError struct {
	Delivered int
	Err       error
}

func (e *PartialDeliveryError) Error() string {
	return fmt.Sprintf("delivered to %d destination(s), failed: %v", e.Delivered, e.Err)
}

func (e *PartialDeliveryError) Unwrap() error { return e.Err }

// Delivered reports whether at least one destination received the message.
func Delivered(err error) bool {
	var p *PartialDeliveryError
	return err == nil || errors.As(err, &p)
}

type Message struct {
	Title string
	Text  string
}

// Notifier delivers a message to a destination. A nil error means delivery
// was confirmed by the remote side.
type Notifier interface {
	Send(ctx context.Context, destination string, msg Message) error
	// ValidateDestination is used by the configuration API before a
	// destination is accepted, never at check time.
	ValidateDestination(ctx context.Context, destination string) error
}

// Router picks a channel from the shape of the destination: https webhook
// URLs go to Slack, anything else is treated as a Telegram chat id.
type Router struct {
	Slack    Notifier
	Telegram Notifier
}

func (r *Router) pick(destination string) (Notifier, error) {
	d := strings.TrimSpace(destination)
	if d == "" {
		return nil, ErrNoDestination
	}
	if strings.HasPrefix(d, "https://") {
		if r.Slack == nil {
			return nil, errors.New("slack channel not configured")
		}
		return r.Slack, nil
	}
	if r.Telegram == nil {
		return nil, errors.New("telegram channel not configured")
	}
	return r.Telegram, nil
}

// Send delivers to every comma-separated destination and reports all
// failures together. One failing destination does not stop the others; when
// at least one succeeded the failures come back as *PartialDeliveryError.
func (r *Router) Send(ctx context.Context, destination string, msg Message) error {
	ok, errs := r.each(destination, func(n Notifier, d string) error {
		return n.Send(ctx, d, msg)
	})
	if errs != nil && ok > 0 {
		return &PartialDeliveryError{Delivered: ok, Err: errs}
	}
	return errs
}

// ValidateDestination requires every listed destination to be valid.
func (r *Router) ValidateDestination(ctx context.Context, destination string) error {
	_, errs := r.each(destination, func(n Notifier, d string) error {
		return n.ValidateDestination(ctx, d)
	})
	return errs
}

func (r *Router) each(destination string, fn func(n Notifier, d string) error) (int, error) {
	parts := strings.Split(destination, ",")
	var (
		ok   int
		errs error
	)
	for _, d := range parts {
		d = strings.TrimSpace(d)
		if d == "" && len(parts) > 1 {
			continue
		}
		n, err := r.pick(d)
		if err == nil {
			err = fn(n, d)
		}
		if err == nil {
			ok++
		}
		errs = multierr.Append(errs, err)
	}
	return ok, errs
}
