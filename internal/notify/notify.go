// Package notify delivers fire-and-forget transition notices (work started,
// draft saved, submitted) to whoever is listening.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"benchline/internal/domain"
)

type Kind string

const (
	KindWorkStarted    Kind = "work.started"
	KindDraftSaved     Kind = "work.saved"
	KindAutosaved      Kind = "work.autosaved"
	KindSaveFailed     Kind = "work.save_failed"
	KindSubmitted      Kind = "work.submitted"
	KindSubmitRejected Kind = "work.submit_rejected"
)

type Notification struct {
	Kind       Kind              `json:"kind"`
	OrderID    string            `json:"order_id"`
	Department domain.Department `json:"department"`
	ActorID    string            `json:"actor_id,omitempty"`
	Message    string            `json:"message"`
	At         time.Time         `json:"at"`
	Data       map[string]any    `json:"data,omitempty"`
}

// Notifier must not block the caller for long; delivery errors are the notifier's problem.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

type Nop struct{}

func (Nop) Notify(context.Context, Notification) {}

// Multi fans a notification out to every notifier in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) {
	for _, x := range m {
		if x != nil {
			x.Notify(ctx, n)
		}
	}
}

// Log writes notifications to a zap logger.
type Log struct {
	Logger *zap.Logger
}

func (l Log) Notify(_ context.Context, n Notification) {
	if l.Logger == nil {
		return
	}
	fields := []zap.Field{
		zap.String("kind", string(n.Kind)),
		zap.String("order_id", n.OrderID),
		zap.String("department", string(n.Department)),
		zap.String("actor_id", n.ActorID),
	}
	if len(n.Data) > 0 {
		fields = append(fields, zap.Any("data", n.Data))
	}
	if n.Kind == KindSaveFailed {
		l.Logger.Warn(n.Message, fields...)
		return
	}
	l.Logger.Info(n.Message, fields...)
}
