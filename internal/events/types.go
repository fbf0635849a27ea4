// Package events defines the coaching event model shared by the engine
// and the push transport.
package events

import "time"

// EventType names a coaching event on the wire. The values double as the
// SSE event names the dashboard client listens for.
type EventType string

const (
	EventLevelApproach EventType = "level_approach"
	EventVWAPCross     EventType = "vwap_cross"
	EventGammaFlip     EventType = "gamma_flip"
	EventRMilestone    EventType = "r_milestone"

	// Transport-level frames, never produced by the detector.
	EventConnected EventType = "connected"
	EventHeartbeat EventType = "heartbeat"
)

// Priority ranks how urgently the client should surface an event.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Direction is the market read attached to an event.
type Direction string

const (
	DirectionBullish Direction = "bullish"
	DirectionBearish Direction = "bearish"
)

// Message is the human-facing payload of a coaching event.
type Message struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji string `json:"emoji"`
}

// EventContext is the market snapshot attached to a coaching event.
type EventContext struct {
	CurrentPrice  float64   `json:"currentPrice"`
	RelevantLevel float64   `json:"relevantLevel,omitempty"`
	Direction     Direction `json:"direction"`
}

// CoachingEvent is a single detected market event for one user. Events are
// transient: they exist only long enough to be pushed to open connections.
type CoachingEvent struct {
	Symbol    string       `json:"symbol"`
	EventType EventType    `json:"eventType"`
	Priority  Priority     `json:"priority"`
	Message   Message      `json:"message"`
	Context   EventContext `json:"context"`
	Timestamp time.Time    `json:"timestamp"`
}
