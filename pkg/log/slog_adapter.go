package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes protocol events to an slog.Logger at Debug level.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("session_id", event.SessionID),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}
	if event.Device != "" {
		attrs = append(attrs, slog.String("device", event.Device))
	}

	switch {
	case event.Message != nil:
		m := event.Message
		attrs = append(attrs, slog.String("msg_type", m.Type.String()))
		if m.RequestID != 0 {
			attrs = append(attrs, slog.Uint64("request_id", uint64(m.RequestID)))
		}
		if m.Operation != nil {
			attrs = append(attrs, slog.String("operation", m.Operation.String()))
		}
		if m.Name != "" {
			attrs = append(attrs, slog.String("name", m.Name))
		}
		if m.Kind != nil {
			attrs = append(attrs, slog.String("kind", m.Kind.String()))
		}
		if m.Status != nil {
			attrs = append(attrs, slog.String("status", m.Status.String()))
		}
		if m.Callback {
			attrs = append(attrs, slog.Bool("callback", true))
		}
		if m.ProcessingTime != nil {
			attrs = append(attrs, slog.Duration("processing_time", *m.ProcessingTime))
		}
	case event.Subscription != nil:
		s := event.Subscription
		attrs = append(attrs,
			slog.String("action", s.Action.String()),
			slog.Uint64("subscription_id", uint64(s.SubscriptionID)),
			slog.String("name", s.Name),
			slog.String("kind", s.Kind.String()),
		)
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
		if event.Error.Reason != "" {
			attrs = append(attrs, slog.String("error_reason", event.Error.Reason))
		}
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "protocol", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
