package qualify

import (
	"context"
	"testing"
)

func TestRuleAnalyzerFullSignalMessage(t *testing.T) {
	analyzer := NewRuleAnalyzer()

	analysis, err := analyzer.Analyze(context.Background(),
		"Quero um apartamento de 2 quartos na Zona Sul, orçamento 500k", "Ana")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if analysis.PropertyType != "apartamento" {
		t.Fatalf("property type: got %q, want apartamento", analysis.PropertyType)
	}
	if analysis.Bedrooms != 2 {
		t.Fatalf("bedrooms: got %d, want 2", analysis.Bedrooms)
	}
	if analysis.Location != "Zona Sul" {
		t.Fatalf("location: got %q, want Zona Sul", analysis.Location)
	}
	if analysis.Budget != 500_000 {
		t.Fatalf("budget: got %d, want 500000", analysis.Budget)
	}
	if analysis.Score < 80 {
		t.Fatalf("score: got %d, want >= 80", analysis.Score)
	}
	if analysis.Priority != LevelHigh {
		t.Fatalf("priority: got %q, want high", analysis.Priority)
	}
	if analysis.Name != "Ana" {
		t.Fatalf("name: got %q, want Ana", analysis.Name)
	}
}

func TestRuleAnalyzerGreetingScoresLow(t *testing.T) {
	analyzer := NewRuleAnalyzer()

	analysis, err := analyzer.Analyze(context.Background(), "Oi, tudo bem?", "")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if analysis.Score != 30 {
		t.Fatalf("greeting score: got %d, want base 30", analysis.Score)
	}
	if analysis.Priority != LevelLow {
		t.Fatalf("greeting priority: got %q, want low", analysis.Priority)
	}
	if analysis.PropertyType != "" || analysis.Budget != 0 {
		t.Fatalf("greeting must extract nothing, got %+v", analysis)
	}
}

func TestRuleAnalyzerNeverErrors(t *testing.T) {
	analyzer := NewRuleAnalyzer()

	for _, text := range []string{"", "   ", "???", "12345"} {
		if _, err := analyzer.Analyze(context.Background(), text, ""); err != nil {
			t.Fatalf("Analyze(%q): %v", text, err)
		}
	}
}

func TestMatchBudget(t *testing.T) {
	tests := []struct {
		text string
		want int64
		ok   bool
	}{
		{"orçamento 500k", 500_000, true},
		{"tenho 500 mil para investir", 500_000, true},
		{"posso pagar até 1.2mi", 1_200_000, true},
		{"algo em torno de 1 milhão", 1_000_000, true},
		{"dois milhões", 0, false}, // spelled-out quantity, no digits
		{"R$ 450.000 à vista", 450_000, true},
		{"R$ 2.500", 2_500, true}, // currency mark overrides the small-number cut
		{"apartamento de 2 quartos", 0, false},
		{"tenho 800", 0, false}, // bare small number without currency
		{"valor de 350000", 350_000, true},
		{"entre 300k e 400k", 400_000, true}, // largest candidate wins
	}

	for _, tt := range tests {
		got, ok := matchBudget(tt.text)
		if ok != tt.ok || got != tt.want {
			t.Fatalf("matchBudget(%q): got (%d, %v), want (%d, %v)", tt.text, got, ok, tt.want, tt.ok)
		}
	}
}

func TestMatchPropertyTypeVariants(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"procuro um apto na planta", "apartamento"},
		{"quero uma cobertura", "apartamento"},
		{"sobrado com quintal", "casa"},
		{"um lote para construir", "terreno"},
		{"sala comercial no centro", "comercial"},
	}

	for _, tt := range tests {
		got, ok := matchPropertyType(tt.text)
		if !ok || got != tt.want {
			t.Fatalf("matchPropertyType(%q): got (%q, %v), want %q", tt.text, got, ok, tt.want)
		}
	}

	if _, ok := matchPropertyType("bom dia"); ok {
		t.Fatalf("matchPropertyType matched a greeting")
	}
}

func TestMatchLocation(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"casa na zona sul", "Zona Sul"},
		{"apartamento na Zona Norte da cidade", "Zona Norte"},
		{"quero morar em Copacabana", "Copacabana"},
		{"procuro no bairro Jardim Botânico", "Jardim Botânico"},
	}

	for _, tt := range tests {
		got, ok := matchLocation(tt.text)
		if !ok || got != tt.want {
			t.Fatalf("matchLocation(%q): got (%q, %v), want %q", tt.text, got, ok, tt.want)
		}
	}
}

func TestEscalationKeywordForcesHighPriority(t *testing.T) {
	analyzer := NewRuleAnalyzer()

	// Terse and signal-free: score stays at base, priority would be low.
	analysis, err := analyzer.Analyze(context.Background(), "Preciso urgente!", "")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if analysis.Urgency != LevelHigh {
		t.Fatalf("urgency: got %q, want high", analysis.Urgency)
	}
	if analysis.Priority != LevelHigh {
		t.Fatalf("high urgency must floor priority to high, got %q", analysis.Priority)
	}
	if analysis.Score > 45 {
		t.Fatalf("escalation must not inflate the score, got %d", analysis.Score)
	}
}

func TestHighPriorityImpliesHighUrgency(t *testing.T) {
	analyzer := NewRuleAnalyzer()

	analysis, err := analyzer.Analyze(context.Background(),
		"Quero comprar um apartamento de 3 quartos na Zona Oeste, orçamento R$ 900.000, posso visitar", "")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if analysis.Priority != LevelHigh {
		t.Fatalf("priority: got %q, want high", analysis.Priority)
	}
	if analysis.Urgency != LevelHigh {
		t.Fatalf("high priority must imply high urgency, got %q", analysis.Urgency)
	}
}

func TestPriorityForScoreBoundaries(t *testing.T) {
	tests := []struct {
		score int
		want  Level
	}{
		{100, LevelHigh},
		{81, LevelHigh},
		{80, LevelMedium}, // boundary falls to the lower bucket
		{46, LevelMedium},
		{45, LevelLow},
		{0, LevelLow},
	}

	for _, tt := range tests {
		if got := priorityForScore(tt.score); got != tt.want {
			t.Fatalf("priorityForScore(%d): got %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestClampScore(t *testing.T) {
	if got := clampScore(110); got != 100 {
		t.Fatalf("clampScore(110): got %d, want 100", got)
	}
	if got := clampScore(-5); got != 0 {
		t.Fatalf("clampScore(-5): got %d, want 0", got)
	}
	if got := clampScore(55); got != 55 {
		t.Fatalf("clampScore(55): got %d, want 55", got)
	}
}
