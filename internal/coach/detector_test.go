package coach

import (
	"testing"
	"time"

	"kcu-coach-engine/internal/events"
)

func newTestContext(symbol string, levels KeyLevels) *Context {
	return &Context{
		Symbol:        symbol,
		Levels:        levels,
		lastEventTime: make(map[string]time.Time),
	}
}

func eventsOfType(cands []candidate, t events.EventType) []candidate {
	var out []candidate
	for _, c := range cands {
		if c.event.EventType == t {
			out = append(out, c)
		}
	}
	return out
}

// TestFirstTickEmitsNoCrossEvents verifies a fresh context never emits
// vwap_cross or gamma_flip on its initializing tick.
func TestFirstTickEmitsNoCrossEvents(t *testing.T) {
	now := time.Now()
	prices := []float64{50.0, 200.0, 184.80}

	for _, price := range prices {
		ctx := newTestContext("SPY", KeyLevels{VWAP: 184.80, ZeroGamma: 183.00})
		cands := evaluateTick(ctx, price, now)

		if got := eventsOfType(cands, events.EventVWAPCross); len(got) != 0 {
			t.Errorf("price %.2f: first tick emitted %d vwap_cross events", price, len(got))
		}
		if got := eventsOfType(cands, events.EventGammaFlip); len(got) != 0 {
			t.Errorf("price %.2f: first tick emitted %d gamma_flip events", price, len(got))
		}
		if ctx.LastPrice != price {
			t.Errorf("price %.2f: LastPrice not updated, got %.2f", price, ctx.LastPrice)
		}
	}
}

// TestVWAPCrossEmitsExactlyOncePerEdge walks a canonical cross sequence:
// 185.00 initializes, 184.70 crosses down, 184.60 stays below,
// 185.10 crosses back up.
func TestVWAPCrossEmitsExactlyOncePerEdge(t *testing.T) {
	now := time.Now()
	ctx := newTestContext("SPY", KeyLevels{VWAP: 184.80})

	steps := []struct {
		price         float64
		wantCrosses   int
		wantDirection events.Direction
	}{
		{185.00, 0, ""},
		{184.70, 1, events.DirectionBearish},
		{184.60, 0, ""},
		{185.10, 1, events.DirectionBullish},
	}

	for i, step := range steps {
		cands := evaluateTick(ctx, step.price, now)
		crosses := eventsOfType(cands, events.EventVWAPCross)

		if len(crosses) != step.wantCrosses {
			t.Fatalf("step %d (price %.2f): got %d crosses, want %d", i, step.price, len(crosses), step.wantCrosses)
		}
		if step.wantCrosses == 1 {
			ev := crosses[0].event
			if ev.Context.Direction != step.wantDirection {
				t.Errorf("step %d: direction %s, want %s", i, ev.Context.Direction, step.wantDirection)
			}
			if ev.Priority != events.PriorityHigh {
				t.Errorf("step %d: priority %s, want high", i, ev.Priority)
			}
			if ev.Context.RelevantLevel != 184.80 {
				t.Errorf("step %d: relevant level %.2f, want 184.80", i, ev.Context.RelevantLevel)
			}
		}
	}
}

// TestGammaFlipEdgeDetection mirrors the VWAP cross logic against the
// zero-gamma level at critical priority.
func TestGammaFlipEdgeDetection(t *testing.T) {
	now := time.Now()
	ctx := newTestContext("SPX", KeyLevels{ZeroGamma: 5000})

	evaluateTick(ctx, 5010, now) // initialize above

	cands := evaluateTick(ctx, 4990, now)
	flips := eventsOfType(cands, events.EventGammaFlip)
	if len(flips) != 1 {
		t.Fatalf("got %d gamma flips, want 1", len(flips))
	}
	if flips[0].event.Priority != events.PriorityCritical {
		t.Errorf("priority %s, want critical", flips[0].event.Priority)
	}
	if flips[0].event.Context.Direction != events.DirectionBearish {
		t.Errorf("direction %s, want bearish", flips[0].event.Context.Direction)
	}

	// Staying below must not re-fire.
	cands = evaluateTick(ctx, 4985, now)
	if got := eventsOfType(cands, events.EventGammaFlip); len(got) != 0 {
		t.Errorf("steady state emitted %d gamma flips", len(got))
	}
}

// TestLevelApproachBoundaries checks the distance bands: 0.3% fires
// medium, 0.15% fires the escalated high-priority variant, 0.04% is
// inside the noise floor, 0.6% is out of range.
func TestLevelApproachBoundaries(t *testing.T) {
	now := time.Now()

	cases := []struct {
		name         string
		price        float64
		wantEvents   int
		wantPriority events.Priority
	}{
		{"medium band", 100.3, 1, events.PriorityMedium},
		{"very close band", 100.15, 1, events.PriorityHigh},
		{"noise floor", 100.04, 0, ""},
		{"out of range", 100.6, 0, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := newTestContext("AAPL", KeyLevels{PDH: 100})
			cands := evaluateTick(ctx, tc.price, now)
			approaches := eventsOfType(cands, events.EventLevelApproach)

			if len(approaches) != tc.wantEvents {
				t.Fatalf("price %.2f: got %d approaches, want %d", tc.price, len(approaches), tc.wantEvents)
			}
			if tc.wantEvents == 1 {
				ev := approaches[0].event
				if ev.Priority != tc.wantPriority {
					t.Errorf("priority %s, want %s", ev.Priority, tc.wantPriority)
				}
				if ev.Context.Direction != events.DirectionBullish {
					t.Errorf("direction %s, want bullish (price above level)", ev.Context.Direction)
				}
				if approaches[0].key != "level_approach:pdh" {
					t.Errorf("throttle key %q, want level_approach:pdh", approaches[0].key)
				}
			}
		})
	}
}

// TestLevelApproachSkipsUnsetLevels verifies non-positive levels never
// divide or fire.
func TestLevelApproachSkipsUnsetLevels(t *testing.T) {
	now := time.Now()
	ctx := newTestContext("SPY", KeyLevels{VWAP: -1, PutWall: 0})

	cands := evaluateTick(ctx, 100, now)
	if len(cands) != 0 {
		t.Errorf("unset levels produced %d events", len(cands))
	}
}

// TestRMilestoneLongTrade tracks a long trade: entry 100, stop 95,
// price 105 hits 1R once, holding at 105 does not re-fire, 97.5 fires the
// halfway-to-stop warning.
func TestRMilestoneLongTrade(t *testing.T) {
	now := time.Now()
	ctx := newTestContext("TSLA", KeyLevels{})
	ctx.ActiveTrade = &ActiveTrade{Direction: TradeLong, EntryPrice: 100, StopLoss: 95}

	cands := evaluateTick(ctx, 105, now)
	milestones := eventsOfType(cands, events.EventRMilestone)
	if len(milestones) != 1 {
		t.Fatalf("at 1R: got %d milestone events, want 1", len(milestones))
	}
	if milestones[0].key != "r_milestone:1" {
		t.Errorf("throttle key %q, want r_milestone:1", milestones[0].key)
	}
	if milestones[0].event.Priority != events.PriorityHigh {
		t.Errorf("1R priority %s, want high", milestones[0].event.Priority)
	}
	if ctx.ActiveTrade.LastRMultiple != 1.0 {
		t.Errorf("LastRMultiple = %.2f, want 1.0", ctx.ActiveTrade.LastRMultiple)
	}

	// Same price again: no new crossing.
	cands = evaluateTick(ctx, 105, now)
	if got := eventsOfType(cands, events.EventRMilestone); len(got) != 0 {
		t.Errorf("flat price re-fired %d milestone events", len(got))
	}

	// Drop to -0.5R.
	cands = evaluateTick(ctx, 97.5, now)
	milestones = eventsOfType(cands, events.EventRMilestone)
	if len(milestones) != 1 {
		t.Fatalf("at -0.5R: got %d milestone events, want 1", len(milestones))
	}
	if milestones[0].key != "r_milestone:-0.5" {
		t.Errorf("throttle key %q, want r_milestone:-0.5", milestones[0].key)
	}
	if milestones[0].event.Priority != events.PriorityCritical {
		t.Errorf("-0.5R priority %s, want critical", milestones[0].event.Priority)
	}
	if ctx.ActiveTrade.LastRMultiple != -0.5 {
		t.Errorf("LastRMultiple = %.2f, want -0.5", ctx.ActiveTrade.LastRMultiple)
	}
}

// TestRMilestoneShortTrade checks pnl sign handling for shorts.
func TestRMilestoneShortTrade(t *testing.T) {
	now := time.Now()
	ctx := newTestContext("QQQ", KeyLevels{})
	ctx.ActiveTrade = &ActiveTrade{Direction: TradeShort, EntryPrice: 400, StopLoss: 404}

	// Price falls 8 points: R = 8/4 = 2, crossing 1R and 2R together.
	cands := evaluateTick(ctx, 392, now)
	milestones := eventsOfType(cands, events.EventRMilestone)
	if len(milestones) != 2 {
		t.Fatalf("got %d milestone events, want 2 (1R and 2R crossed)", len(milestones))
	}
	if ctx.ActiveTrade.LastRMultiple != 2.0 {
		t.Errorf("LastRMultiple = %.2f, want 2.0", ctx.ActiveTrade.LastRMultiple)
	}
}

// TestRMilestoneZeroRisk: entry == stop disables milestone logic and pins
// R at zero.
func TestRMilestoneZeroRisk(t *testing.T) {
	now := time.Now()
	ctx := newTestContext("SPY", KeyLevels{})
	ctx.ActiveTrade = &ActiveTrade{Direction: TradeLong, EntryPrice: 100, StopLoss: 100, LastRMultiple: 1.5}

	cands := evaluateTick(ctx, 150, now)
	if got := eventsOfType(cands, events.EventRMilestone); len(got) != 0 {
		t.Errorf("zero-risk trade emitted %d milestone events", len(got))
	}
	if ctx.ActiveTrade.LastRMultiple != 0 {
		t.Errorf("LastRMultiple = %.2f, want 0 for zero risk", ctx.ActiveTrade.LastRMultiple)
	}
}

// TestNoTradeNoMilestones: without an active trade nothing R-related runs.
func TestNoTradeNoMilestones(t *testing.T) {
	ctx := newTestContext("SPY", KeyLevels{})
	cands := evaluateTick(ctx, 123.45, time.Now())
	if len(cands) != 0 {
		t.Errorf("tradeless context produced %d events", len(cands))
	}
}
