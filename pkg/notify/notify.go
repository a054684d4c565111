// Package notify pushes the new local tip to downstream subscribers after each advance.
// Delivery is best effort: failures are logged and counted, never retried.
package notify

import (
	"context"

	"go.uber.org/zap"
)

// Notifier delivers one tip height.
type Notifier interface {
	Name() string
	NotifyHeight(ctx context.Context, height uint64) error
	Close() error
}

// Observer is told the outcome of every delivery.
type Observer interface {
	RecordNotification(notifier string, err error)
}

// Multi fans a height out to every notifier.
type Multi struct {
	notifiers []Notifier
	observer  Observer
	logger    *zap.Logger
}

func NewMulti(logger *zap.Logger, observer Observer, notifiers ...Notifier) *Multi {
	return &Multi{
		notifiers: notifiers,
		observer:  observer,
		logger:    logger.With(zap.String("component", "notify")),
	}
}

// Notify delivers height to each notifier in turn.
func (m *Multi) Notify(ctx context.Context, height uint64) {
	for _, n := range m.notifiers {
		err := n.NotifyHeight(ctx, height)
		if m.observer != nil {
			m.observer.RecordNotification(n.Name(), err)
		}
		if err != nil {
			m.logger.Warn("Failed to send tip notification",
				zap.String("notifier", n.Name()),
				zap.Uint64("height", height),
				zap.Error(err))
		}
	}
}

// Len is the number of configured notifiers.
func (m *Multi) Len() int {
	return len(m.notifiers)
}

func (m *Multi) Close() error {
	for _, n := range m.notifiers {
		if err := n.Close(); err != nil {
			m.logger.Warn("Failed to close notifier", zap.String("notifier", n.Name()), zap.Error(err))
		}
	}
	return nil
}
