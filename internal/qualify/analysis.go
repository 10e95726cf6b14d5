// Package qualify turns a raw chat message into a structured purchase-intent
// analysis. Two interchangeable strategies exist: a rule-based one that is
// always available, and a model-backed one that is optional and falls back
// to the rules on any failure.
package qualify

import "context"

// Level is an urgency/priority bucket.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Analysis is the structured result of qualifying one message. It is
// produced fresh per message and only ever folded into a lead record.
type Analysis struct {
	Name         string `json:"name,omitempty"`
	PropertyType string `json:"propertyType,omitempty"`
	Location     string `json:"location,omitempty"`
	Bedrooms     int    `json:"bedrooms,omitempty"`
	Budget       int64  `json:"budget,omitempty"`
	Urgency      Level  `json:"urgency"`
	Priority     Level  `json:"priority"`
	Score        int    `json:"score"`
	Summary      string `json:"summary"`
}

// Analyzer is one qualification strategy.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, text, senderName string) (Analysis, error)
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// alignRouting couples the two routing signals: high urgency floors priority
// so a terse but urgent message is not buried by its low score, and a
// high-priority lead is always treated as urgent.
func alignRouting(a *Analysis) {
	if a.Urgency == LevelHigh {
		a.Priority = LevelHigh
	}
	if a.Priority == LevelHigh {
		a.Urgency = LevelHigh
	}
}

func parseLevel(raw string, fallback Level) Level {
	switch raw {
	case "low", "Low", "baixa", "Baixa":
		return LevelLow
	case "medium", "Medium", "média", "media", "Média", "Media":
		return LevelMedium
	case "high", "High", "urgent", "Urgent", "alta", "Alta", "urgente", "Urgente":
		return LevelHigh
	default:
		return fallback
	}
}
