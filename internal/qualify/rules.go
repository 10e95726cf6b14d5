package qualify

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Scoring weights. Presence of a concrete budget is the strongest buying
// signal, followed by a specific locality and a property type.
const (
	scoreBase         = 30
	scoreBudget       = 25
	scoreLocation     = 20
	scorePropertyType = 15
	scoreBedrooms     = 10
	scoreLength       = 10

	// minSubstantiveLength is the rune count above which a message stops
	// looking like a bare greeting.
	minSubstantiveLength = 40
)

var (
	bedroomsRe = regexp.MustCompile(`(?i)(\d+)\s*(?:quartos?|dormit[óo]rios?|dorms?|su[íi]tes?|qts?)\b`)
	zoneRe     = regexp.MustCompile(`(?i)\bzona\s+(sul|norte|leste|oeste)\b`)
	placeRe    = regexp.MustCompile(`(?:\bno\b|\bna\b|\bem\b)\s+(?:bairro\s+)?([A-ZÀ-Ö][a-zà-öø-ÿ]+(?:\s+(?:d[aeo]s?\s+)?[A-ZÀ-Ö][a-zà-öø-ÿ]+)*)`)
	moneyRe    = regexp.MustCompile(`(?i)(r\$\s*)?(\d+(?:[.,]\d+)*)\s*(milh(?:ão|ões|oes)|mil|mi|k|m)?\b`)
)

// propertyTypes maps vocabulary variants to the canonical type.
var propertyTypes = []struct {
	canonical string
	variants  []string
}{
	{"apartamento", []string{"apartamento", "apto", "apê", "ape ", "kitnet", "cobertura", "flat"}},
	{"casa", []string{"casa", "sobrado"}},
	{"terreno", []string{"terreno", "lote", "chácara", "chacara", "sítio", "sitio"}},
	{"comercial", []string{"comercial", "sala comercial", "loja", "galpão", "galpao"}},
}

// escalationKeywords raise urgency to high when present.
var escalationKeywords = []string{
	"urgente", "urgência", "urgencia", "hoje", "agora",
	"imediato", "imediata", "quanto antes", "essa semana", "este fim de semana",
}

// RuleAnalyzer is the deterministic qualification strategy. It pattern
// matches known pt-BR real-estate vocabulary and never fails, which makes it
// the guaranteed last link of the engine's fallback chain.
type RuleAnalyzer struct{}

func NewRuleAnalyzer() *RuleAnalyzer {
	return &RuleAnalyzer{}
}

func (a *RuleAnalyzer) Name() string { return "rules" }

func (a *RuleAnalyzer) Analyze(_ context.Context, text, senderName string) (Analysis, error) {
	analysis := Analysis{
		Name:     strings.TrimSpace(senderName),
		Urgency:  LevelMedium,
		Priority: LevelMedium,
	}

	lower := strings.ToLower(text)
	score := scoreBase

	if propertyType, ok := matchPropertyType(lower); ok {
		analysis.PropertyType = propertyType
		score += scorePropertyType
	}

	if bedrooms, ok := matchBedrooms(text); ok {
		analysis.Bedrooms = bedrooms
		score += scoreBedrooms
	}

	if location, ok := matchLocation(text); ok {
		analysis.Location = location
		score += scoreLocation
	}

	if budget, ok := matchBudget(text); ok {
		analysis.Budget = budget
		score += scoreBudget
	}

	if len([]rune(strings.TrimSpace(text))) >= minSubstantiveLength {
		score += scoreLength
	}

	analysis.Score = clampScore(score)
	analysis.Priority = priorityForScore(analysis.Score)

	if hasEscalationKeyword(lower) {
		analysis.Urgency = LevelHigh
	}
	alignRouting(&analysis)

	analysis.Summary = buildSummary(analysis)
	return analysis, nil
}

// priorityForScore buckets the score. Boundary values fall into the lower
// bucket, keeping the routing conservative on ties.
func priorityForScore(score int) Level {
	switch {
	case score > 80:
		return LevelHigh
	case score > 45:
		return LevelMedium
	default:
		return LevelLow
	}
}

func matchPropertyType(lower string) (string, bool) {
	for _, pt := range propertyTypes {
		for _, variant := range pt.variants {
			if strings.Contains(lower, variant) {
				return pt.canonical, true
			}
		}
	}
	return "", false
}

func matchBedrooms(text string) (int, bool) {
	m := bedroomsRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func matchLocation(text string) (string, bool) {
	if m := zoneRe.FindStringSubmatch(text); m != nil {
		zone := strings.ToLower(m[1])
		return "Zona " + strings.ToUpper(zone[:1]) + zone[1:], true
	}
	if m := placeRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	return "", false
}

// matchBudget extracts a monetary amount, normalizing informal shorthand:
// "500k" and "500 mil" mean 500000, "1.2mi" and "1 milhão" mean 1200000 and
// 1000000, "R$ 450.000" reads the separators as thousands. Bare small
// numbers ("2 quartos") are not budgets; without a currency mark or a
// multiplier suffix a value below 10000 is ignored.
func matchBudget(text string) (int64, bool) {
	var best int64
	for _, m := range moneyRe.FindAllStringSubmatch(text, -1) {
		hasCurrency := m[1] != ""
		value, ok := normalizeAmount(m[2], m[3], hasCurrency)
		if ok && value > best {
			best = value
		}
	}
	return best, best > 0
}

func normalizeAmount(numStr, suffix string, hasCurrency bool) (int64, bool) {
	multiplier := 0.0
	switch s := strings.ToLower(suffix); {
	case s == "k" || s == "mil":
		multiplier = 1_000
	case s == "m" || s == "mi" || strings.HasPrefix(s, "milh"):
		multiplier = 1_000_000
	}

	if multiplier > 0 {
		value, err := strconv.ParseFloat(strings.ReplaceAll(numStr, ",", "."), 64)
		if err != nil || value <= 0 {
			return 0, false
		}
		return int64(value*multiplier + 0.5), true
	}

	// No suffix: separators are thousands marks.
	digits := strings.NewReplacer(".", "", ",", "").Replace(numStr)
	value, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || value <= 0 {
		return 0, false
	}
	if !hasCurrency && value < 10_000 {
		return 0, false
	}
	return value, true
}

func hasEscalationKeyword(lower string) bool {
	for _, kw := range escalationKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func buildSummary(a Analysis) string {
	parts := make([]string, 0, 4)
	if a.PropertyType != "" {
		parts = append(parts, "interesse em "+a.PropertyType)
	} else {
		parts = append(parts, "interesse de compra")
	}
	if a.Bedrooms > 0 {
		parts = append(parts, fmt.Sprintf("%d quartos", a.Bedrooms))
	}
	if a.Location != "" {
		parts = append(parts, a.Location)
	}
	if a.Budget > 0 {
		parts = append(parts, fmt.Sprintf("orçamento R$ %d", a.Budget))
	}
	return strings.Join(parts, ", ")
}
