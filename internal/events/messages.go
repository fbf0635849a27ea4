package events

import "fmt"

// levelDisplayNames maps internal level keys to trader-facing names.
var levelDisplayNames = map[string]string{
	"vwap":      "VWAP",
	"putWall":   "Put Wall",
	"callWall":  "Call Wall",
	"zeroGamma": "Zero Gamma",
	"pdh":       "Prior Day High",
	"pdl":       "Prior Day Low",
	"orbHigh":   "Opening Range High",
	"orbLow":    "Opening Range Low",
}

// LevelDisplayName returns the trader-facing name for a level key.
func LevelDisplayName(key string) string {
	if name, ok := levelDisplayNames[key]; ok {
		return name
	}
	return key
}

// LevelApproachMessage builds the guidance text for a level approach.
// veryClose selects the escalated variant.
func LevelApproachMessage(levelKey string, level float64, veryClose bool) Message {
	name := LevelDisplayName(levelKey)
	if veryClose {
		return Message{
			Type:  "level_approach",
			Text:  fmt.Sprintf("Very close to %s at %.2f — watch for the reaction", name, level),
			Emoji: "🎯",
		}
	}
	return Message{
		Type:  "level_approach",
		Text:  fmt.Sprintf("Approaching %s at %.2f", name, level),
		Emoji: "📍",
	}
}

// VWAPCrossMessage builds the guidance text for a VWAP regime cross.
func VWAPCrossMessage(bullish bool) Message {
	if bullish {
		return Message{
			Type:  "vwap_cross",
			Text:  "Reclaimed VWAP — buyers back in control",
			Emoji: "📈",
		}
	}
	return Message{
		Type:  "vwap_cross",
		Text:  "Lost VWAP — sellers in control",
		Emoji: "📉",
	}
}

// GammaFlipMessage builds the guidance text for a gamma regime flip.
func GammaFlipMessage(positive bool) Message {
	if positive {
		return Message{
			Type:  "gamma_flip",
			Text:  "Crossed into positive gamma — expect mean reversion, fade extremes",
			Emoji: "🟢",
		}
	}
	return Message{
		Type:  "gamma_flip",
		Text:  "Crossed into negative gamma — volatility expansion risk, size down",
		Emoji: "⚠️",
	}
}

// RMilestoneMessage builds the guidance text for a risk-multiple milestone.
func RMilestoneMessage(milestone float64) Message {
	switch {
	case milestone <= -0.5:
		return Message{
			Type:  "r_milestone",
			Text:  "Halfway to your stop — reduce size or honor your level",
			Emoji: "🛑",
		}
	case milestone >= 3:
		return Message{
			Type:  "r_milestone",
			Text:  "3R — exceptional trade, consider closing into strength",
			Emoji: "🚀",
		}
	case milestone >= 2:
		return Message{
			Type:  "r_milestone",
			Text:  "2R — trail your stop and protect the win",
			Emoji: "🏆",
		}
	default:
		return Message{
			Type:  "r_milestone",
			Text:  "1R hit — consider taking partials",
			Emoji: "💰",
		}
	}
}
