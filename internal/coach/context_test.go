package coach

import (
	"sort"
	"testing"
	"time"
)

func TestStoreSetContextPreservesThrottleHistory(t *testing.T) {
	store := NewStore()

	first := &Context{Symbol: "SPY"}
	store.SetContext("u1", first)
	first.lastEventTime["vwap_cross"] = time.Now()

	replacement := &Context{Symbol: "QQQ"}
	store.SetContext("u1", replacement)

	if _, ok := replacement.lastEventTime["vwap_cross"]; !ok {
		t.Error("throttle history lost on context replacement")
	}
	if got := store.WatchedSymbols("u1"); len(got) != 1 || got[0] != "QQQ" {
		t.Errorf("WatchedSymbols = %v, want [QQQ]", got)
	}
}

func TestStoreRemoveUserDropsEverything(t *testing.T) {
	store := NewStore()
	store.SetContext("u1", &Context{Symbol: "SPY"})
	store.RemoveUser("u1")

	if store.UserCount() != 0 {
		t.Errorf("UserCount = %d after removal, want 0", store.UserCount())
	}
	if got := store.WatchedSymbols("u1"); got != nil {
		t.Errorf("WatchedSymbols = %v for removed user, want nil", got)
	}

	// Removing again must not panic.
	store.RemoveUser("u1")
}

func TestStoreSetActiveTradeUnknownUser(t *testing.T) {
	store := NewStore()
	store.SetActiveTrade("ghost", &ActiveTrade{Direction: TradeLong, EntryPrice: 100, StopLoss: 95})

	if store.UserCount() != 0 {
		t.Error("SetActiveTrade for unknown user created state")
	}
}

func TestStoreUpdateLevels(t *testing.T) {
	store := NewStore()
	store.SetContext("u1", &Context{Symbol: "SPY", Levels: KeyLevels{VWAP: 100}, WasAboveVWAP: true, LastPrice: 101})
	store.SetContext("u2", &Context{Symbol: "SPY", Levels: KeyLevels{VWAP: 100}})
	store.SetContext("u3", &Context{Symbol: "QQQ", Levels: KeyLevels{VWAP: 400}})

	store.UpdateLevels("SPY", KeyLevels{VWAP: 102, PutWall: 99})

	for _, userID := range []string{"u1", "u2"} {
		ctx := store.contexts[userID]
		if ctx.Levels.VWAP != 102 || ctx.Levels.PutWall != 99 {
			t.Errorf("%s: levels not updated, got %+v", userID, ctx.Levels)
		}
	}
	if store.contexts["u3"].Levels.VWAP != 400 {
		t.Error("unrelated symbol's levels were overwritten")
	}

	// Hysteresis and last price must survive a level refresh.
	if !store.contexts["u1"].WasAboveVWAP || store.contexts["u1"].LastPrice != 101 {
		t.Error("level refresh disturbed hysteresis state")
	}
}

func TestStoreSymbolsDeduplicates(t *testing.T) {
	store := NewStore()
	store.SetContext("u1", &Context{Symbol: "SPY"})
	store.SetContext("u2", &Context{Symbol: "SPY"})
	store.SetContext("u3", &Context{Symbol: "QQQ"})

	symbols := store.Symbols()
	sort.Strings(symbols)

	if len(symbols) != 2 || symbols[0] != "QQQ" || symbols[1] != "SPY" {
		t.Errorf("Symbols = %v, want [QQQ SPY]", symbols)
	}
}
