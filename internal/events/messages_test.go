package events

import (
	"strings"
	"testing"
)

func TestLevelDisplayName(t *testing.T) {
	if got := LevelDisplayName("putWall"); got != "Put Wall" {
		t.Errorf("expected Put Wall, got %q", got)
	}
	// Unknown keys pass through so new levels degrade gracefully.
	if got := LevelDisplayName("weeklyOpen"); got != "weeklyOpen" {
		t.Errorf("expected passthrough, got %q", got)
	}
}

func TestLevelApproachMessageEscalation(t *testing.T) {
	normal := LevelApproachMessage("pdh", 186.50, false)
	if !strings.Contains(normal.Text, "Approaching Prior Day High at 186.50") {
		t.Errorf("unexpected text: %q", normal.Text)
	}

	escalated := LevelApproachMessage("pdh", 186.50, true)
	if !strings.Contains(escalated.Text, "Very close to Prior Day High") {
		t.Errorf("escalated variant missing: %q", escalated.Text)
	}
	if normal.Emoji == escalated.Emoji {
		t.Error("escalated variant should carry a distinct emoji")
	}
}

func TestDirectionalMessages(t *testing.T) {
	if msg := VWAPCrossMessage(true); !strings.Contains(msg.Text, "Reclaimed VWAP") {
		t.Errorf("bullish cross text: %q", msg.Text)
	}
	if msg := VWAPCrossMessage(false); !strings.Contains(msg.Text, "Lost VWAP") {
		t.Errorf("bearish cross text: %q", msg.Text)
	}
	if msg := GammaFlipMessage(true); !strings.Contains(msg.Text, "positive gamma") {
		t.Errorf("positive flip text: %q", msg.Text)
	}
	if msg := GammaFlipMessage(false); !strings.Contains(msg.Text, "negative gamma") {
		t.Errorf("negative flip text: %q", msg.Text)
	}
}

func TestRMilestoneMessages(t *testing.T) {
	if msg := RMilestoneMessage(-0.5); !strings.Contains(msg.Text, "stop") {
		t.Errorf("drawdown milestone text: %q", msg.Text)
	}
	if msg := RMilestoneMessage(1); !strings.Contains(msg.Text, "1R") {
		t.Errorf("1R milestone text: %q", msg.Text)
	}
	if msg := RMilestoneMessage(2); !strings.Contains(msg.Text, "2R") {
		t.Errorf("2R milestone text: %q", msg.Text)
	}
	if msg := RMilestoneMessage(3); !strings.Contains(msg.Text, "3R") {
		t.Errorf("3R milestone text: %q", msg.Text)
	}
}
