package marketdata

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"kcu-coach-engine/config"
)

// TickHandler receives one price tick per watching user. Satisfied by
// coach.Engine.
type TickHandler interface {
	ProcessPrice(userID, symbol string, price float64)
}

type subscribeMessage struct {
	Action string `json:"action"`
	Symbol string `json:"symbol"`
}

type feedMessage struct {
	Type   string  `json:"type"`
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

// Feed is the reconnecting WebSocket client for the upstream tick stream.
// Incoming trades are fanned out to every user watching the symbol.
type Feed struct {
	config  config.MarketDataConfig
	subs    *Subscriptions
	handler TickHandler
	logger  zerolog.Logger

	mu         sync.RWMutex
	conn       *websocket.Conn
	isRunning  bool
	reconnects int
	lastTick   time.Time

	// Serializes socket writes: gorilla/websocket allows one writer at a
	// time, and subscribe frames come from concurrent HTTP handlers.
	writeMu sync.Mutex
}

func (f *Feed) writeJSON(conn *websocket.Conn, v interface{}) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	return conn.WriteJSON(v)
}

// NewFeed creates the tick feed client. Start launches the connection loop.
func NewFeed(cfg config.MarketDataConfig, subs *Subscriptions, handler TickHandler, logger zerolog.Logger) *Feed {
	return &Feed{
		config:  cfg,
		subs:    subs,
		handler: handler,
		logger:  logger.With().Str("component", "MarketDataFeed").Logger(),
	}
}

// Start launches the connection loop in the background.
func (f *Feed) Start() {
	f.mu.Lock()
	if f.isRunning {
		f.mu.Unlock()
		return
	}
	f.isRunning = true
	f.mu.Unlock()

	go f.connectLoop()
}

// Stop terminates the connection loop and closes the socket.
func (f *Feed) Stop() {
	f.mu.Lock()
	f.isRunning = false
	conn := f.conn
	f.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// connectLoop dials the upstream and rereads until Stop. Reconnect delay
// doubles per consecutive failure up to MaxReconnectWait.
func (f *Feed) connectLoop() {
	delay := f.config.ReconnectDelay

	for {
		f.mu.RLock()
		running := f.isRunning
		f.mu.RUnlock()
		if !running {
			return
		}

		conn, err := f.dial()
		if err != nil {
			f.mu.Lock()
			f.reconnects++
			f.mu.Unlock()

			f.logger.Warn().Err(err).Dur("retry_in", delay).Msg("Feed connection failed")
			time.Sleep(delay)
			delay *= 2
			if delay > f.config.MaxReconnectWait {
				delay = f.config.MaxReconnectWait
			}
			continue
		}

		f.mu.Lock()
		f.conn = conn
		f.mu.Unlock()
		delay = f.config.ReconnectDelay

		f.logger.Info().Str("url", f.config.StreamURL).Msg("Feed connected")
		f.resubscribe(conn)
		f.readLoop(conn)

		f.mu.RLock()
		running = f.isRunning
		f.mu.RUnlock()
		if !running {
			return
		}
		f.logger.Warn().Dur("retry_in", delay).Msg("Feed connection lost, reconnecting")
		time.Sleep(delay)
	}
}

func (f *Feed) dial() (*websocket.Conn, error) {
	header := http.Header{}
	if f.config.APIKey != "" {
		header.Set("X-API-Key", f.config.APIKey)
	}

	conn, _, err := websocket.DefaultDialer.Dial(f.config.StreamURL, header)
	if err != nil {
		return nil, fmt.Errorf("failed to dial feed: %w", err)
	}
	return conn, nil
}

// resubscribe replays active symbol subscriptions after a reconnect. A
// failed replay is logged and skipped; the remaining symbols still get
// their subscribe frames, and a dead socket surfaces in the read loop.
func (f *Feed) resubscribe(conn *websocket.Conn) {
	for _, symbol := range f.subs.Symbols() {
		if err := f.writeJSON(conn, subscribeMessage{Action: "subscribe", Symbol: symbol}); err != nil {
			f.logger.Error().Err(err).Str("symbol", symbol).Msg("Failed to replay subscription")
		}
	}
}

func (f *Feed) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				f.logger.Info().Msg("Feed connection closed normally")
			} else {
				f.logger.Warn().Err(err).Msg("Feed read error")
			}
			return
		}
		f.handleMessage(message)
	}
}

// handleMessage parses one feed frame and dispatches trade ticks to every
// watcher of the symbol. Non-trade frames and malformed payloads are
// dropped.
func (f *Feed) handleMessage(message []byte) {
	var msg feedMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		f.logger.Debug().Err(err).Msg("Unparseable feed frame dropped")
		return
	}
	if msg.Type != "trade" || msg.Symbol == "" || msg.Price <= 0 {
		return
	}

	f.mu.Lock()
	f.lastTick = time.Now()
	f.mu.Unlock()

	for _, userID := range f.subs.UsersFor(msg.Symbol) {
		f.handler.ProcessPrice(userID, msg.Symbol, msg.Price)
	}
}

// SubscribeSymbol sends a subscribe frame for a symbol. Safe to call while
// disconnected: the reconnect path replays active subscriptions.
func (f *Feed) SubscribeSymbol(symbol string) error {
	f.mu.RLock()
	conn := f.conn
	f.mu.RUnlock()

	if conn == nil {
		return nil
	}
	return f.writeJSON(conn, subscribeMessage{Action: "subscribe", Symbol: symbol})
}

// UnsubscribeSymbol sends an unsubscribe frame for a symbol.
func (f *Feed) UnsubscribeSymbol(symbol string) error {
	f.mu.RLock()
	conn := f.conn
	f.mu.RUnlock()

	if conn == nil {
		return nil
	}
	return f.writeJSON(conn, subscribeMessage{Action: "unsubscribe", Symbol: symbol})
}

// FeedStats reports connection health for the status endpoint.
type FeedStats struct {
	Connected  bool      `json:"connected"`
	Reconnects int       `json:"reconnects"`
	LastTick   time.Time `json:"lastTick"`
}

// Stats returns a snapshot of feed health.
func (f *Feed) Stats() FeedStats {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return FeedStats{
		Connected:  f.conn != nil && f.isRunning,
		Reconnects: f.reconnects,
		LastTick:   f.lastTick,
	}
}
