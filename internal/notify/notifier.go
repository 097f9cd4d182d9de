// Package notify delivers operator alerts about market activity to chat
// channels. Notifications go to every registered sender (Telegram, Discord)
// and can be filtered by event kind so operators only see what they ask for.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/binarymarket/internal/domain"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// kindSender is implemented by senders that style market events by kind.
type kindSender interface {
	SendKind(ctx context.Context, kind domain.EventKind, title, message string) error
}

// Notifier dispatches notifications to one or more Senders. Notify and
// NotifyEvent honour the configured event filter; NotifyAll bypasses it.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that delivers to the given senders. Only
// event kinds listed in events are forwarded; an empty list allows all.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is registered.
func (n *Notifier) Enabled() bool {
	return len(n.senders) > 0
}

// Notify sends a notification to all senders if event passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.allowed(ctx, event) {
		return nil
	}
	return n.dispatch(ctx, "", title, message)
}

// NotifyEvent renders a committed market event and sends it to every sender
// if its kind passes the filter.
func (n *Notifier) NotifyEvent(ctx context.Context, ev domain.Event) error {
	if !n.allowed(ctx, string(ev.Kind)) {
		return nil
	}
	title, message, err := FormatEvent(ev)
	if err != nil {
		return err
	}
	return n.dispatch(ctx, ev.Kind, title, message)
}

func (n *Notifier) allowed(ctx context.Context, event string) bool {
	if len(n.events) == 0 || n.events[event] {
		return true
	}
	n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
	return false
}

// NotifyAll sends a notification to all senders regardless of event type.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, "", title, message)
}

// dispatch sends to every sender. A failing sender does not stop delivery
// to the rest; failures are combined into one error. kind is empty for
// messages that are not market events.
func (n *Notifier) dispatch(ctx context.Context, kind domain.EventKind, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		var err error
		if ks, ok := s.(kindSender); ok && kind != "" {
			err = ks.SendKind(ctx, kind, title, message)
		} else {
			err = s.Send(ctx, title, message)
		}
		if err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("title", title),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
