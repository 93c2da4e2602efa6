package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/sealedmarkets/batchpool/internal/domain"
)

// NotifyRoundEvent formats a round lifecycle event and dispatches it through
// the notifier's configured senders, subject to the event-type filter.
func (n *Notifier) NotifyRoundEvent(ctx context.Context, ev domain.RoundEvent) error {
	title, message := formatRoundEvent(ev)
	return n.Notify(ctx, string(ev.Type), title, message)
}

// formatRoundEvent renders a round event as a short title and a detail body.
func formatRoundEvent(ev domain.RoundEvent) (title, message string) {
	switch ev.Type {
	case domain.EventRoundStarted:
		title = fmt.Sprintf("Round %d started", ev.RoundID)
	case domain.EventSettled:
		title = fmt.Sprintf("Round %d settled", ev.RoundID)
	case domain.EventEmergency:
		title = fmt.Sprintf("EMERGENCY: round %d", ev.RoundID)
	case domain.EventFinalized:
		title = fmt.Sprintf("Round %d finalized", ev.RoundID)
	case domain.EventPaused, domain.EventUnpaused, domain.EventForceUnpause:
		title = fmt.Sprintf("Pause state changed (%s)", ev.Type)
	default:
		title = fmt.Sprintf("%s: round %d", ev.Type, ev.RoundID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "market: %s\nround: %d\ntick: %d", ev.MarketID, ev.RoundID, ev.Tick)
	for k, v := range ev.Detail {
		fmt.Fprintf(&b, "\n%s: %v", k, v)
	}
	return title, b.String()
}
