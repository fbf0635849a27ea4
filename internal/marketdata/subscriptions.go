// Package marketdata connects the coaching engine to the upstream tick
// feed: a reconnecting WebSocket client plus a ref-counted subscription
// manager that maps watched symbols to the users coached on them.
package marketdata

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// SymbolSubscriber manages upstream symbol subscriptions. Satisfied by
// Feed; tests supply fakes.
type SymbolSubscriber interface {
	SubscribeSymbol(symbol string) error
	UnsubscribeSymbol(symbol string) error
}

// Subscriptions tracks which users watch which symbols. The upstream feed
// is subscribed on the first watcher of a symbol and unsubscribed when the
// last watcher leaves.
type Subscriptions struct {
	mu       sync.RWMutex
	watchers map[string]map[string]bool // symbol -> set of userIDs
	byUser   map[string]string          // userID -> watched symbol
	feed     SymbolSubscriber
	logger   zerolog.Logger
}

// NewSubscriptions creates an empty subscription manager. BindFeed must be
// called before Watch so first-watcher subscriptions reach the upstream.
func NewSubscriptions(logger zerolog.Logger) *Subscriptions {
	return &Subscriptions{
		watchers: make(map[string]map[string]bool),
		byUser:   make(map[string]string),
		logger:   logger.With().Str("component", "Subscriptions").Logger(),
	}
}

// BindFeed attaches the upstream feed. Separate from construction because
// the feed needs the subscription manager for tick fan-out.
func (s *Subscriptions) BindFeed(feed SymbolSubscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feed = feed
}

// Watch registers a user as watching a symbol. A user watches one symbol
// at a time, so any previous watch is released first.
func (s *Subscriptions) Watch(userID, symbol string) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	s.mu.Lock()

	var released string
	if prev, ok := s.byUser[userID]; ok {
		if prev == symbol {
			s.mu.Unlock()
			return nil
		}
		if s.dropWatcherLocked(userID, prev) {
			released = prev
		}
	}

	first := len(s.watchers[symbol]) == 0
	if s.watchers[symbol] == nil {
		s.watchers[symbol] = make(map[string]bool)
	}
	s.watchers[symbol][userID] = true
	s.byUser[userID] = symbol
	feed := s.feed
	s.mu.Unlock()

	if feed == nil {
		return nil
	}
	if released != "" {
		if err := feed.UnsubscribeSymbol(released); err != nil {
			s.logger.Warn().Err(err).Str("symbol", released).Msg("Upstream unsubscribe failed")
		}
	}
	if first {
		if err := feed.SubscribeSymbol(symbol); err != nil {
			return err
		}
		s.logger.Info().Str("symbol", symbol).Msg("Subscribed to upstream feed")
	}
	return nil
}

// UnwatchAll releases every watch held by a user.
func (s *Subscriptions) UnwatchAll(userID string) {
	s.mu.Lock()
	symbol, ok := s.byUser[userID]
	if !ok {
		s.mu.Unlock()
		return
	}
	last := s.dropWatcherLocked(userID, symbol)
	feed := s.feed
	s.mu.Unlock()

	if last && feed != nil {
		if err := feed.UnsubscribeSymbol(symbol); err != nil {
			s.logger.Warn().Err(err).Str("symbol", symbol).Msg("Upstream unsubscribe failed")
			return
		}
		s.logger.Info().Str("symbol", symbol).Msg("Unsubscribed from upstream feed")
	}
}

// dropWatcherLocked removes a watcher and reports whether it was the last
// one for the symbol. Caller holds the lock.
func (s *Subscriptions) dropWatcherLocked(userID, symbol string) bool {
	delete(s.byUser, userID)
	set, ok := s.watchers[symbol]
	if !ok {
		return false
	}
	delete(set, userID)
	if len(set) == 0 {
		delete(s.watchers, symbol)
		return true
	}
	return false
}

// UsersFor returns the users currently watching a symbol.
func (s *Subscriptions) UsersFor(symbol string) []string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	s.mu.RLock()
	defer s.mu.RUnlock()

	set := s.watchers[symbol]
	if len(set) == 0 {
		return nil
	}
	users := make([]string, 0, len(set))
	for userID := range set {
		users = append(users, userID)
	}
	return users
}

// Symbols returns every symbol with at least one watcher. Used on
// reconnect to replay subscriptions.
func (s *Subscriptions) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	symbols := make([]string, 0, len(s.watchers))
	for symbol := range s.watchers {
		symbols = append(symbols, symbol)
	}
	return symbols
}
