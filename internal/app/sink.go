package app

import (
	"context"

	"asanagram/internal/engine"
	kit "asanagram/internal/transport"
)

// Notifier is the delivery side the engine and digests share.
type Notifier interface {
	Notify(ctx context.Context, n kit.Notification) error
}

// notifierSink hands rendered engine messages to the notifier queue. The
// notifier addresses the default chat.
type notifierSink struct{ n Notifier }

func (s notifierSink) Deliver(ctx context.Context, m engine.Message) error {
	return s.n.Notify(ctx, kit.Notification{Kind: m.Kind, EntityID: m.EntityID, Text: m.Text})
}
