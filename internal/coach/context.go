// Package coach implements the real-time market-event coaching engine:
// per-user hysteresis state, tick evaluation, event throttling, and the
// fan-out hook to the push transport.
package coach

import (
	"sync"
	"time"
)

// TradeDirection is the side of an open position being coached.
type TradeDirection string

const (
	TradeLong  TradeDirection = "long"
	TradeShort TradeDirection = "short"
)

// Valid reports whether d is a recognized trade direction.
func (d TradeDirection) Valid() bool {
	return d == TradeLong || d == TradeShort
}

// ActiveTrade is the open-position sub-record attached to a context while
// the user has a live trade. LastRMultiple carries the crossing state for
// milestone detection.
type ActiveTrade struct {
	Direction     TradeDirection `json:"direction"`
	EntryPrice    float64        `json:"entryPrice"`
	StopLoss      float64        `json:"stopLoss"`
	LastRMultiple float64        `json:"lastRMultiple"`
}

// KeyLevels is the named price-level snapshot for a symbol. A level with
// value <= 0 is treated as not set and skipped by every detector.
type KeyLevels struct {
	VWAP      float64 `json:"vwap"`
	PutWall   float64 `json:"putWall"`
	CallWall  float64 `json:"callWall"`
	ZeroGamma float64 `json:"zeroGamma"`
	PDH       float64 `json:"pdh,omitempty"`
	PDL       float64 `json:"pdl,omitempty"`
	ORBHigh   float64 `json:"orbHigh,omitempty"`
	ORBLow    float64 `json:"orbLow,omitempty"`
}

type namedLevel struct {
	key   string
	value float64
}

// named returns the configured levels in a stable evaluation order.
// Unset levels (<= 0) are included; callers filter them.
func (l KeyLevels) named() []namedLevel {
	return []namedLevel{
		{"vwap", l.VWAP},
		{"putWall", l.PutWall},
		{"callWall", l.CallWall},
		{"zeroGamma", l.ZeroGamma},
		{"pdh", l.PDH},
		{"pdl", l.PDL},
		{"orbHigh", l.ORBHigh},
		{"orbLow", l.ORBLow},
	}
}

// Context is the per-user coaching state for one watched symbol.
// LastPrice == 0 means no tick has been observed yet; the first tick
// initializes the hysteresis flags without emitting events.
type Context struct {
	Symbol           string       `json:"symbol"`
	Levels           KeyLevels    `json:"levels"`
	LastPrice        float64      `json:"lastPrice"`
	WasAboveVWAP     bool         `json:"wasAboveVwap"`
	WasPositiveGamma bool         `json:"wasPositiveGamma"`
	ActiveTrade      *ActiveTrade `json:"activeTrade,omitempty"`

	// Throttle history: throttle key -> last emission time. Owned by the
	// context so RemoveUser reclaims it with everything else.
	lastEventTime map[string]time.Time
}

// allow reports whether an event with the given throttle key may fire now,
// stamping the emission time when it may.
func (c *Context) allow(key string, now time.Time, cooldown time.Duration) bool {
	if last, ok := c.lastEventTime[key]; ok && now.Sub(last) < cooldown {
		return false
	}
	c.lastEventTime[key] = now
	return true
}

// Store holds one coaching context per user. All mutation goes through the
// store lock, which also serializes tick evaluation per user: ticks arrive
// from a single feed dispatcher, and the lock protects contexts from
// concurrent REST mutation.
type Store struct {
	mu       sync.RWMutex
	contexts map[string]*Context
}

// NewStore creates an empty context store.
func NewStore() *Store {
	return &Store{contexts: make(map[string]*Context)}
}

// SetContext upserts the context for a user. Re-registering a context for
// an already-watched user preserves the existing throttle history so
// cooldowns survive symbol re-registration.
func (s *Store) SetContext(userID string, ctx *Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.contexts[userID]; ok {
		ctx.lastEventTime = prev.lastEventTime
	}
	if ctx.lastEventTime == nil {
		ctx.lastEventTime = make(map[string]time.Time)
	}
	s.contexts[userID] = ctx
}

// SetActiveTrade attaches or detaches the open-position sub-record.
// Unknown users are a silent no-op.
func (s *Store) SetActiveTrade(userID string, trade *ActiveTrade) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, ok := s.contexts[userID]
	if !ok {
		return
	}
	ctx.ActiveTrade = trade
}

// RemoveUser deletes all state for a user, throttle history included.
// Must be called on disconnect to bound memory.
func (s *Store) RemoveUser(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.contexts, userID)
}

// UpdateLevels pushes a refreshed level snapshot into every context
// tracking the symbol. Hysteresis and trade state are untouched.
func (s *Store) UpdateLevels(symbol string, levels KeyLevels) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ctx := range s.contexts {
		if ctx.Symbol == symbol {
			ctx.Levels = levels
		}
	}
}

// WatchedSymbols returns the symbols a user is being coached on
// (at most one per user today, returned as a slice for the wire format).
func (s *Store) WatchedSymbols(userID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if ctx, ok := s.contexts[userID]; ok {
		return []string{ctx.Symbol}
	}
	return nil
}

// Symbols returns the distinct symbols with at least one active context.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	symbols := make([]string, 0, len(s.contexts))
	for _, ctx := range s.contexts {
		if !seen[ctx.Symbol] {
			seen[ctx.Symbol] = true
			symbols = append(symbols, ctx.Symbol)
		}
	}
	return symbols
}

// UserCount returns the number of active contexts.
func (s *Store) UserCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.contexts)
}
