package noop

import (
	"context"

	"go.uber.org/zap"

	"adekit/internal/domain"
	"adekit/internal/logger"
	"adekit/internal/notify"
	"adekit/internal/port"
)

type noopNotifier struct {
	baseURL string
}

// NewNoopNotifier creates a Notifier that only logs the job link.
func NewNoopNotifier(baseURL string) port.Notifier {
	return &noopNotifier{baseURL: baseURL}
}

func (n *noopNotifier) NotifyJobFinished(ctx context.Context, job *domain.Job) error {
	logger.FromContext(ctx).Info("[NOOP NOTIFY] job finished",
		zap.String("to", job.NotifyEmail),
		zap.String("status", string(job.Status)),
		zap.String("url", notify.JobURL(n.baseURL, job)))
	return nil
}
