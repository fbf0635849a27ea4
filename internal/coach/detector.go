package coach

import (
	"math"
	"strconv"
	"time"

	"kcu-coach-engine/internal/events"
)

// Detection thresholds, in percent of current price.
const (
	approachPercent  = 0.5  // Outer bound for a level approach
	veryClosePercent = 0.2  // Escalated "very close" bound
	noisePercent     = 0.05 // Below this the price is sitting on the level; stay quiet
)

// rMilestones are checked in order on every tick while a trade is active.
// Positive values fire on upward crossings, -0.5 on the downward crossing.
var rMilestones = []float64{1, 2, 3, -0.5}

// candidate pairs a detected event with its throttle key. Keys are
// per-level for approaches and per-type (with the milestone suffix) for
// everything else; the asymmetry is deliberate.
type candidate struct {
	event events.CoachingEvent
	key   string
}

// evaluateTick runs every detector against a single tick and mutates the
// context's hysteresis state. It performs no I/O and no throttling; the
// caller owns both. The tick's price becomes LastPrice on return.
func evaluateTick(c *Context, price float64, now time.Time) []candidate {
	var out []candidate

	out = append(out, detectLevelApproaches(c, price, now)...)

	if ev, ok := detectVWAPCross(c, price, now); ok {
		out = append(out, ev)
	}
	if ev, ok := detectGammaFlip(c, price, now); ok {
		out = append(out, ev)
	}
	out = append(out, detectRMilestones(c, price, now)...)

	c.LastPrice = price
	return out
}

// detectLevelApproaches fires when price comes within approachPercent of a
// configured level, escalating inside veryClosePercent. The noisePercent
// floor keeps a price parked on a level from firing tick after tick.
func detectLevelApproaches(c *Context, price float64, now time.Time) []candidate {
	var out []candidate

	for _, lvl := range c.Levels.named() {
		if lvl.value <= 0 {
			continue
		}

		distance := math.Abs(price-lvl.value) / price * 100
		if distance <= noisePercent || distance > approachPercent {
			continue
		}

		priority := events.PriorityMedium
		veryClose := distance <= veryClosePercent
		if veryClose {
			priority = events.PriorityHigh
		}

		direction := events.DirectionBearish
		if price > lvl.value {
			direction = events.DirectionBullish
		}

		out = append(out, candidate{
			key: "level_approach:" + lvl.key,
			event: events.CoachingEvent{
				Symbol:    c.Symbol,
				EventType: events.EventLevelApproach,
				Priority:  priority,
				Message:   events.LevelApproachMessage(lvl.key, lvl.value, veryClose),
				Context: events.EventContext{
					CurrentPrice:  price,
					RelevantLevel: lvl.value,
					Direction:     direction,
				},
				Timestamp: now,
			},
		})
	}

	return out
}

// detectVWAPCross edge-detects the price crossing VWAP. The first observed
// tick (LastPrice == 0) initializes the hysteresis flag silently.
func detectVWAPCross(c *Context, price float64, now time.Time) (candidate, bool) {
	vwap := c.Levels.VWAP
	if vwap <= 0 {
		return candidate{}, false
	}

	isAbove := price > vwap
	crossed := isAbove != c.WasAboveVWAP && c.LastPrice > 0
	c.WasAboveVWAP = isAbove
	if !crossed {
		return candidate{}, false
	}

	direction := events.DirectionBearish
	if isAbove {
		direction = events.DirectionBullish
	}

	return candidate{
		key: "vwap_cross",
		event: events.CoachingEvent{
			Symbol:    c.Symbol,
			EventType: events.EventVWAPCross,
			Priority:  events.PriorityHigh,
			Message:   events.VWAPCrossMessage(isAbove),
			Context: events.EventContext{
				CurrentPrice:  price,
				RelevantLevel: vwap,
				Direction:     direction,
			},
			Timestamp: now,
		},
	}, true
}

// detectGammaFlip edge-detects the price crossing the zero-gamma level,
// gated the same way as the VWAP cross.
func detectGammaFlip(c *Context, price float64, now time.Time) (candidate, bool) {
	zeroGamma := c.Levels.ZeroGamma
	if zeroGamma <= 0 {
		return candidate{}, false
	}

	isPositive := price > zeroGamma
	flipped := isPositive != c.WasPositiveGamma && c.LastPrice > 0
	c.WasPositiveGamma = isPositive
	if !flipped {
		return candidate{}, false
	}

	direction := events.DirectionBearish
	if isPositive {
		direction = events.DirectionBullish
	}

	return candidate{
		key: "gamma_flip",
		event: events.CoachingEvent{
			Symbol:    c.Symbol,
			EventType: events.EventGammaFlip,
			Priority:  events.PriorityCritical,
			Message:   events.GammaFlipMessage(isPositive),
			Context: events.EventContext{
				CurrentPrice:  price,
				RelevantLevel: zeroGamma,
				Direction:     direction,
			},
			Timestamp: now,
		},
	}, true
}

// detectRMilestones fires once per milestone crossing while a trade is
// open. LastRMultiple is updated to the fresh R after evaluation whether
// or not anything fired, so the next check compares against the true
// previous value. entry == stop means zero risk: R is 0 and milestone
// logic is disabled until the stop is corrected.
func detectRMilestones(c *Context, price float64, now time.Time) []candidate {
	trade := c.ActiveTrade
	if trade == nil {
		return nil
	}

	risk := math.Abs(trade.EntryPrice - trade.StopLoss)
	if risk == 0 {
		trade.LastRMultiple = 0
		return nil
	}

	pnl := price - trade.EntryPrice
	if trade.Direction == TradeShort {
		pnl = trade.EntryPrice - price
	}
	r := pnl / risk

	var out []candidate
	for _, m := range rMilestones {
		crossed := false
		if m > 0 {
			crossed = r >= m && trade.LastRMultiple < m
		} else {
			crossed = r <= m && trade.LastRMultiple > m
		}
		if !crossed {
			continue
		}

		priority := events.PriorityHigh
		direction := events.DirectionBullish
		if m < 0 {
			priority = events.PriorityCritical
			direction = events.DirectionBearish
		}

		out = append(out, candidate{
			key: "r_milestone:" + strconv.FormatFloat(m, 'f', -1, 64),
			event: events.CoachingEvent{
				Symbol:    c.Symbol,
				EventType: events.EventRMilestone,
				Priority:  priority,
				Message:   events.RMilestoneMessage(m),
				Context: events.EventContext{
					CurrentPrice: price,
					Direction:    direction,
				},
				Timestamp: now,
			},
		})
	}

	trade.LastRMultiple = r
	return out
}
