// Package notify sends operator alerts to chat webhooks. Alerts are filtered
// by event type so operators receive only what they asked for.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/rfqmaker/internal/domain"
)

// Event types.
const (
	EventSettlementFailed    = "settlement_failed"
	EventSettlementSucceeded = "settlement_succeeded"
	EventFeedReconnected     = "feed_reconnected"
	EventQuoteError          = "quote_error"
)

// DefaultEvents is the filter used when none is configured.
var DefaultEvents = []string{EventSettlementFailed}

// Sender delivers one notification.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans an alert out to every sender. A nil *Notifier drops all
// alerts.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. Only events listed in events are forwarded;
// an empty list forwards everything.
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

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.senders) > 0
}

// Notify sends title and message if event passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Enabled() {
		return nil
	}
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
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
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// SettlementMessage renders a settlement outcome for chat.
func SettlementMessage(rec domain.SettlementRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "order: %s\n", rec.OrderHash.Hex())
	fmt.Fprintf(&b, "taker: %s\n", rec.TakerOrderHash.Hex())
	fmt.Fprintf(&b, "chain: %d, calls: %d, vault: %t\n", rec.ChainID, rec.Calls, rec.ViaVault)
	if rec.TxHash != "" {
		fmt.Fprintf(&b, "tx: %s\n", rec.TxHash)
	}
	if rec.Error != "" {
		fmt.Fprintf(&b, "error: %s\n", rec.Error)
	}
	return strings.TrimRight(b.String(), "\n")
}
