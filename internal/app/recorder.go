package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mkravets/crossarb/internal/domain"
	"github.com/mkravets/crossarb/internal/notify"
)

// Recorder fans position lifecycle events out to the optional event store and
// the notifier. Persistence failures surface to the caller (which logs and
// carries on); notification failures are logged here and never propagate,
// since an operator alert is strictly best-effort.
type Recorder struct {
	store    domain.TradeEventStore // may be nil
	notifier *notify.Notifier       // may be nil
	logger   *slog.Logger
}

var _ domain.TradeRecorder = (*Recorder)(nil)

// NewRecorder creates a Recorder. Both sinks are optional.
func NewRecorder(store domain.TradeEventStore, notifier *notify.Notifier, logger *slog.Logger) *Recorder {
	return &Recorder{
		store:    store,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "trade_recorder")),
	}
}

// Record delivers one trade event to every configured sink.
func (r *Recorder) Record(ctx context.Context, ev domain.TradeEvent) error {
	if r.notifier != nil {
		if err := r.notifier.NotifyTrade(ctx, ev); err != nil {
			r.logger.WarnContext(ctx, "trade notification failed",
				slog.String("event_id", ev.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if r.store != nil {
		if err := r.store.Insert(ctx, ev); err != nil {
			return fmt.Errorf("app: record trade event: %w", err)
		}
	}
	return nil
}
