package port

import (
	"context"

	"github.com/rl1809/armory-atlas/internal/core/domain"
)

type LoanEventPublisher interface {
	Publish(ctx context.Context, event domain.LoanEvent) error
}
