// Package notify provides a multi-channel notification system. Notifications
// are dispatched to all registered senders (Telegram, Discord, etc.) and can be
// filtered by event type so operators receive only the alerts they care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mkravets/crossarb/internal/domain"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches notifications to one or more Senders. It maintains a set
// of allowed event types; NotifyTrade only forwards events whose type is in
// the allowed set, while NotifyAll bypasses the filter.
type Notifier struct {
	senders []Sender
	events  map[string]bool // allowed event types
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders. Only
// events whose type appears in the events slice will be forwarded. If events
// is empty, all event types are allowed.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// NotifyTrade formats and delivers a position open/close event, subject to
// the event type filter.
func (n *Notifier) NotifyTrade(ctx context.Context, ev domain.TradeEvent) error {
	if len(n.events) > 0 && !n.events[string(ev.Type)] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", string(ev.Type)),
		)
		return nil
	}
	title, message := renderTradeEvent(ev)
	return n.dispatch(ctx, title, message)
}

// NotifyAll sends a notification to all senders regardless of event type.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// renderTradeEvent builds the human-readable title and body for an event.
func renderTradeEvent(ev domain.TradeEvent) (title, message string) {
	switch ev.Type {
	case domain.TradeEventOpen:
		title = fmt.Sprintf("Opened %s %s", ev.Side, ev.Symbol)
		message = fmt.Sprintf("size %.6g @ %.6g, spread %.2f%%",
			ev.Size, ev.Price, ev.SpreadPercent)
	case domain.TradeEventClose:
		title = fmt.Sprintf("Closed %s %s (%s)", ev.Side, ev.Symbol, ev.Reason)
		message = fmt.Sprintf("size %.6g @ %.6g, pnl %+.2f USDT (fee %.4f)",
			ev.Size, ev.Price, ev.PnL, ev.Fee)
	default:
		title = string(ev.Type)
		message = ev.Symbol
	}
	return title, message
}

// dispatch iterates over all senders and sends the notification. Errors from
// individual senders are collected and returned as a combined error; a single
// sender failure does not prevent delivery to the remaining senders.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
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
