package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"kcu-coach-engine/internal/coach"
	"kcu-coach-engine/internal/events"
)

type contextRequest struct {
	Symbol      string             `json:"symbol" binding:"required"`
	Levels      *coach.KeyLevels   `json:"levels"`
	ActiveTrade *coach.ActiveTrade `json:"activeTrade"`
}

type tradeRequest struct {
	Direction  coach.TradeDirection `json:"direction" binding:"required"`
	EntryPrice float64              `json:"entryPrice" binding:"required"`
	StopLoss   float64              `json:"stopLoss"`
}

// handleSetContext registers or replaces the caller's coaching context.
// When the request carries no levels, the level cache fills them in.
func (s *Server) handleSetContext(c *gin.Context) {
	userID := s.userID(c)
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "MISSING_USER", "message": "user identity required"})
		return
	}

	var req contextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST", "message": err.Error()})
		return
	}

	// Normalize once here so the context, the cache lookup and the feed
	// subscription all agree on the symbol; ticks arrive uppercase.
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST", "message": "symbol is required"})
		return
	}

	levels := coach.KeyLevels{}
	if req.Levels != nil {
		levels = *req.Levels
	} else if s.levels != nil {
		if cached, ok := s.levels.Levels(c.Request.Context(), symbol); ok {
			levels = cached
		}
	}

	if req.ActiveTrade != nil && !req.ActiveTrade.Direction.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST", "message": "trade direction must be long or short"})
		return
	}

	s.engine.SetUserContext(userID, &coach.Context{
		Symbol:      symbol,
		Levels:      levels,
		ActiveTrade: req.ActiveTrade,
	})

	if s.watcher != nil {
		if err := s.watcher.Watch(userID, symbol); err != nil {
			s.logger.Error().Err(err).Str("symbol", symbol).Msg("Failed to subscribe to tick feed")
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "watching",
		"symbol": symbol,
		"userId": userID,
	})
}

// handleRemoveContext drops the caller's context, throttle history and
// feed subscriptions.
func (s *Server) handleRemoveContext(c *gin.Context) {
	userID := s.userID(c)
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "MISSING_USER", "message": "user identity required"})
		return
	}

	s.engine.RemoveUser(userID)
	if s.watcher != nil {
		s.watcher.UnwatchAll(userID)
	}

	c.JSON(http.StatusOK, gin.H{"status": "removed", "userId": userID})
}

// handleSetTrade attaches an active trade to the caller's context.
func (s *Server) handleSetTrade(c *gin.Context) {
	userID := s.userID(c)
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "MISSING_USER", "message": "user identity required"})
		return
	}

	var req tradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST", "message": err.Error()})
		return
	}
	if !req.Direction.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST", "message": "trade direction must be long or short"})
		return
	}

	s.engine.SetActiveTrade(userID, &coach.ActiveTrade{
		Direction:  req.Direction,
		EntryPrice: req.EntryPrice,
		StopLoss:   req.StopLoss,
	})

	c.JSON(http.StatusOK, gin.H{"status": "tracking", "userId": userID})
}

// handleClearTrade detaches the caller's active trade, leaving the rest
// of the context in place.
func (s *Server) handleClearTrade(c *gin.Context) {
	userID := s.userID(c)
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "MISSING_USER", "message": "user identity required"})
		return
	}

	s.engine.SetActiveTrade(userID, nil)
	c.JSON(http.StatusOK, gin.H{"status": "cleared", "userId": userID})
}

// handleStatus reports engine, connection and feed counters.
func (s *Server) handleStatus(c *gin.Context) {
	status := gin.H{
		"engine":      s.engine.Status(),
		"connections": s.hub.TotalConnectionCount(),
		"users":       len(s.hub.ConnectedUsers()),
	}
	if s.feed != nil {
		status["feed"] = s.feed.Stats()
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

// handleStream serves the per-user SSE event stream. Events detected by
// the engine are fanned out through the hub; this handler owns the
// heartbeat cadence for its connection.
func (s *Server) handleStream(c *gin.Context) {
	userID := s.userID(c)
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "MISSING_USER", "message": "user identity required"})
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "STREAMING_UNSUPPORTED", "message": "response writer does not support streaming"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)

	conn := s.hub.Register(userID)
	defer s.hub.Unregister(conn)

	frame, err := frameEvent(string(events.EventConnected), connectedPayload{
		UserID:    userID,
		Timestamp: time.Now().UTC(),
		Symbols:   s.engine.WatchedSymbols(userID),
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode connected frame")
		return
	}
	if _, err := c.Writer.Write(frame); err != nil {
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(s.config.HeartbeatInterval)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Done():
			return
		case frame := <-conn.send:
			if _, err := c.Writer.Write(frame); err != nil {
				return
			}
			flusher.Flush()
		case t := <-heartbeat.C:
			frame, err := frameEvent(string(events.EventHeartbeat), heartbeatPayload{Timestamp: t.UTC()})
			if err != nil {
				continue
			}
			if _, err := c.Writer.Write(frame); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
