package domain

import "time"

// RoundEventType enumerates the lifecycle events published on the signal bus
// and fanned out to notifiers and websocket subscribers.
type RoundEventType string

const (
	EventRoundStarted  RoundEventType = "round_started"
	EventCommitted     RoundEventType = "committed"
	EventRevealed      RoundEventType = "revealed"
	EventSettled       RoundEventType = "settled"
	EventClaimed       RoundEventType = "claimed"
	EventRefunded      RoundEventType = "refunded"
	EventEmergency     RoundEventType = "emergency_activated"
	EventFinalized     RoundEventType = "round_finalized"
	EventPaused        RoundEventType = "gate_paused"
	EventUnpaused      RoundEventType = "gate_unpaused"
	EventForceUnpause  RoundEventType = "force_unpause"
)

// RoundEvent is a single lifecycle event for a market round.
type RoundEvent struct {
	ID       string         `json:"id"` // UUID
	Type     RoundEventType `json:"type"`
	MarketID string         `json:"market_id"`
	RoundID  uint64         `json:"round_id"`
	Tick     uint64         `json:"tick"`
	Detail   map[string]any `json:"detail,omitempty"`
	At       time.Time      `json:"at"`
}
