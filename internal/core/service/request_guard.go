package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rl1809/armory-atlas/internal/port"
)

var ErrDuplicateRequest = errors.New("duplicate request")

// RequestGuard makes client-retried write requests run at most once per request ID.
// A guard without a store lets every request through.
type RequestGuard struct {
	store  port.IdempotencyStore
	logger *zap.Logger
}

func NewRequestGuard(store port.IdempotencyStore, logger *zap.Logger) *RequestGuard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestGuard{store: store, logger: logger}
}

// Run claims op/requestID and calls fn. The claim is released when fn fails so the
// client can retry with the same ID.
func (g *RequestGuard) Run(ctx context.Context, op, requestID string, fn func() error) error {
	if g == nil || g.store == nil || requestID == "" {
		return fn()
	}

	key := fmt.Sprintf("request:%s:%s", op, requestID)

	ok, err := g.store.SetIdempotency(ctx, key)
	if err != nil {
		return fmt.Errorf("idempotency check failed: %w", err)
	}
	if !ok {
		return ErrDuplicateRequest
	}

	if err := fn(); err != nil {
		// a cancelled request must still free its key
		if releaseErr := g.store.ReleaseIdempotency(context.WithoutCancel(ctx), key); releaseErr != nil {
			g.logger.Error("failed to release request key", zap.String("key", key), zap.Error(releaseErr))
		}
		return err
	}
	return nil
}
