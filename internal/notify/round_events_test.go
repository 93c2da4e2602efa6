package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/sealedmarkets/batchpool/internal/domain"
)

type recordingSender struct {
	name   string
	titles []string
	bodies []string
	err    error
}

func (s *recordingSender) Send(_ context.Context, title, message string) error {
	s.titles = append(s.titles, title)
	s.bodies = append(s.bodies, message)
	return s.err
}

func (s *recordingSender) Name() string { return s.name }

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestFormatRoundEvent(t *testing.T) {
	ev := domain.RoundEvent{
		Type:     domain.EventSettled,
		MarketID: "pool-main",
		RoundID:  7,
		Tick:     912,
		Detail:   map[string]any{"clearing_price": int64(250_000)},
	}

	title, body := formatRoundEvent(ev)
	if title != "Round 7 settled" {
		t.Fatalf("title = %q", title)
	}
	for _, want := range []string{"market: pool-main", "round: 7", "tick: 912", "clearing_price: 250000"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
}

func TestFormatRoundEventEmergency(t *testing.T) {
	title, _ := formatRoundEvent(domain.RoundEvent{Type: domain.EventEmergency, RoundID: 3})
	if !strings.Contains(title, "EMERGENCY") {
		t.Fatalf("emergency title = %q", title)
	}
}

func TestNotifyRoundEventFiltered(t *testing.T) {
	s := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{s}, []string{"settled"}, testLogger())

	if err := n.NotifyRoundEvent(context.Background(), domain.RoundEvent{Type: domain.EventRoundStarted, RoundID: 1}); err != nil {
		t.Fatalf("NotifyRoundEvent: %v", err)
	}
	if len(s.titles) != 0 {
		t.Fatalf("filtered event delivered: %v", s.titles)
	}

	if err := n.NotifyRoundEvent(context.Background(), domain.RoundEvent{Type: domain.EventSettled, RoundID: 1}); err != nil {
		t.Fatalf("NotifyRoundEvent: %v", err)
	}
	if len(s.titles) != 1 {
		t.Fatalf("allowed event not delivered")
	}
}

func TestNotifyRoundEventAllWhenUnfiltered(t *testing.T) {
	s := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{s}, nil, testLogger())

	for _, typ := range []domain.RoundEventType{domain.EventRoundStarted, domain.EventSettled, domain.EventFinalized} {
		if err := n.NotifyRoundEvent(context.Background(), domain.RoundEvent{Type: typ}); err != nil {
			t.Fatalf("NotifyRoundEvent(%s): %v", typ, err)
		}
	}
	if len(s.titles) != 3 {
		t.Fatalf("delivered %d events, want 3", len(s.titles))
	}
}

func TestDispatchContinuesPastFailedSender(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("down")}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, testLogger())

	err := n.NotifyRoundEvent(context.Background(), domain.RoundEvent{Type: domain.EventSettled, RoundID: 2})
	if err == nil {
		t.Fatal("expected combined error from failing sender")
	}
	if len(good.titles) != 1 {
		t.Fatal("healthy sender skipped after failure")
	}
	if !strings.Contains(err.Error(), "bad") {
		t.Fatalf("error does not name the failed sender: %v", err)
	}
}
