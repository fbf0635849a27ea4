package coach

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"kcu-coach-engine/internal/events"
)

// Broadcaster delivers an accepted event to every open push connection a
// user has. Implementations must not block the caller; delivery failures
// are theirs to isolate.
type Broadcaster interface {
	BroadcastToUser(userID string, event events.CoachingEvent)
}

// Engine is the coaching engine service object. One instance is
// constructed at startup and injected wherever ticks or context changes
// originate; tests construct their own isolated instances.
type Engine struct {
	store       *Store
	broadcaster Broadcaster
	cooldown    time.Duration
	logger      zerolog.Logger

	// now is swappable so throttle behavior is testable.
	now func() time.Time

	emitted   atomic.Int64
	throttled atomic.Int64
}

// NewEngine creates a coaching engine over the given store and broadcaster.
func NewEngine(store *Store, broadcaster Broadcaster, cooldown time.Duration, logger zerolog.Logger) *Engine {
	return &Engine{
		store:       store,
		broadcaster: broadcaster,
		cooldown:    cooldown,
		logger:      logger.With().Str("component", "CoachEngine").Logger(),
		now:         time.Now,
	}
}

// SetUserContext registers or replaces the coaching context for a user.
func (e *Engine) SetUserContext(userID string, ctx *Context) {
	e.store.SetContext(userID, ctx)
	e.logger.Debug().Str("user_id", userID).Str("symbol", ctx.Symbol).Msg("coaching context set")
}

// SetActiveTrade attaches or detaches the open-position record for a user.
func (e *Engine) SetActiveTrade(userID string, trade *ActiveTrade) {
	e.store.SetActiveTrade(userID, trade)
}

// RemoveUser drops all coaching state for a user.
func (e *Engine) RemoveUser(userID string) {
	e.store.RemoveUser(userID)
	e.logger.Debug().Str("user_id", userID).Msg("coaching context removed")
}

// WatchedSymbols returns the symbols a user is currently coached on.
func (e *Engine) WatchedSymbols(userID string) []string {
	return e.store.WatchedSymbols(userID)
}

// ActiveSymbols returns every symbol with at least one coached user.
func (e *Engine) ActiveSymbols() []string {
	return e.store.Symbols()
}

// UpdateLevels replaces the level snapshot in every context tracking the
// symbol, leaving hysteresis and trade state alone.
func (e *Engine) UpdateLevels(symbol string, levels KeyLevels) {
	e.store.UpdateLevels(symbol, levels)
}

// ProcessPrice evaluates one tick for a user. Detection and throttling run
// under the store lock and never block; fan-out happens after the lock is
// released so a slow connection cannot stall tick processing. Unknown
// users and symbol mismatches are silent no-ops.
func (e *Engine) ProcessPrice(userID, symbol string, price float64) {
	accepted := e.evaluate(userID, symbol, price)
	if len(accepted) == 0 {
		return
	}

	for _, ev := range accepted {
		e.broadcaster.BroadcastToUser(userID, ev)
	}
	e.emitted.Add(int64(len(accepted)))
}

// evaluate runs the detectors and the throttle gate, returning the events
// accepted for broadcast.
func (e *Engine) evaluate(userID, symbol string, price float64) []events.CoachingEvent {
	now := e.now()

	e.store.mu.Lock()
	defer e.store.mu.Unlock()

	ctx, ok := e.store.contexts[userID]
	if !ok || ctx.Symbol != symbol {
		return nil
	}

	candidates := evaluateTick(ctx, price, now)
	if len(candidates) == 0 {
		return nil
	}

	accepted := make([]events.CoachingEvent, 0, len(candidates))
	for _, cand := range candidates {
		if !ctx.allow(cand.key, now, e.cooldown) {
			e.throttled.Add(1)
			continue
		}
		accepted = append(accepted, cand.event)
	}
	return accepted
}

// Stats is a point-in-time snapshot of engine counters.
type Stats struct {
	ActiveUsers     int   `json:"activeUsers"`
	EventsEmitted   int64 `json:"eventsEmitted"`
	EventsThrottled int64 `json:"eventsThrottled"`
}

// Status returns current engine counters for the status endpoint.
func (e *Engine) Status() Stats {
	return Stats{
		ActiveUsers:     e.store.UserCount(),
		EventsEmitted:   e.emitted.Load(),
		EventsThrottled: e.throttled.Load(),
	}
}
