package port

import (
	"context"

	"adekit/internal/domain"
)

// Notifier tells the submitter that a job reached a terminal state.
type Notifier interface {
	NotifyJobFinished(ctx context.Context, job *domain.Job) error
}
