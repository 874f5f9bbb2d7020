package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// WithTimeout bounds every Generate call on g to d. Expiry is reported as
// an *UpstreamError wrapping context.DeadlineExceeded, so callers treat
// a slow service the same as a failing one.
func WithTimeout(g Generator, d time.Duration) Generator {
	return &timeoutGenerator{next: g, timeout: d}
}

type timeoutGenerator struct {
	next    Generator
	timeout time.Duration
}

func (t *timeoutGenerator) Name() string { return t.next.Name() }

func (t *timeoutGenerator) Generate(ctx context.Context, req *Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	text, err := t.next.Generate(ctx, req)
	if err == nil {
		return text, nil
	}

	// Adapters already wrap transport failures; only add a wrapper when
	// the deadline fired and the error came back bare.
	var upErr *UpstreamError
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.As(err, &upErr) {
		return "", upstreamErr(t.next.Name(), 0, fmt.Errorf("no response within %s: %w", t.timeout, context.DeadlineExceeded))
	}
	return "", err
}
