package qualify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"google.golang.org/genai"
)

const (
	defaultModelTimeout = 12 * time.Second

	// historyDepth limits how much prior conversation the extraction prompt
	// carries per sender.
	historyDepth = 5
)

const extractionInstruction = `Você é um assistente de qualificação de leads imobiliários.
Analise a mensagem do cliente e responda APENAS com um objeto JSON estrito, sem texto adicional, no formato:
{"name": string, "propertyType": string, "location": string, "bedrooms": int, "budget": int, "urgency": "low"|"medium"|"high", "priority": "low"|"medium"|"high", "score": int de 0 a 100, "summary": string}
Campos desconhecidos ficam vazios ou zero. O budget é em reais, número inteiro.`

// ModelAnalyzer is the model-backed qualification strategy. Every failure
// mode (absent credential, transport error, timeout, non-success status,
// unparseable JSON) surfaces as an error so the engine can fall back to the
// rule-based strategy.
type ModelAnalyzer struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	history *historyBuffer
	log     *logger.Logger
}

// NewModelAnalyzer builds the strategy, or returns nil when no credential is
// configured (the engine then runs rule-only).
func NewModelAnalyzer(ctx context.Context, cfg config.AIConfig, log *logger.Logger) (*ModelAnalyzer, error) {
	if !cfg.IsAIEnabled() {
		return nil, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GetGeminiAPIKey(),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	timeout := cfg.GetAITimeout()
	if timeout <= 0 {
		timeout = defaultModelTimeout
	}

	return &ModelAnalyzer{
		client:  client,
		model:   cfg.GetAIModel(),
		timeout: timeout,
		history: newHistoryBuffer(historyDepth),
		log:     log,
	}, nil
}

func (m *ModelAnalyzer) Name() string { return "model" }

func (m *ModelAnalyzer) Analyze(ctx context.Context, text, senderName string) (Analysis, error) {
	cctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	prompt := m.buildPrompt(text, senderName)

	resp, err := m.client.Models.GenerateContent(cctx, m.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0.1),
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return Analysis{}, fmt.Errorf("model qualification call: %w", err)
	}

	analysis, err := ParseModelPayload(resp.Text())
	if err != nil {
		return Analysis{}, err
	}

	if analysis.Name == "" {
		analysis.Name = strings.TrimSpace(senderName)
	}
	m.history.add(senderName, text)
	return analysis, nil
}

func (m *ModelAnalyzer) buildPrompt(text, senderName string) string {
	var sb strings.Builder
	sb.WriteString(extractionInstruction)
	sb.WriteString("\n\nCliente: ")
	sb.WriteString(senderName)

	if recent := m.history.recent(senderName); len(recent) > 0 {
		sb.WriteString("\nMensagens anteriores:\n")
		for _, msg := range recent {
			sb.WriteString("- ")
			sb.WriteString(msg)
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\nMensagem atual:\n")
	sb.WriteString(text)
	return sb.String()
}

type modelPayload struct {
	Name         string `json:"name"`
	PropertyType string `json:"propertyType"`
	Location     string `json:"location"`
	Bedrooms     int    `json:"bedrooms"`
	Budget       int64  `json:"budget"`
	Urgency      string `json:"urgency"`
	Priority     string `json:"priority"`
	Score        int    `json:"score"`
	Summary      string `json:"summary"`
}

// ParseModelPayload decodes the model's JSON response into an Analysis,
// stripping any code-fence wrapping first. Models wrap JSON in fences often
// enough that parsing the raw body would fail on otherwise valid output.
func ParseModelPayload(raw string) (Analysis, error) {
	cleaned := StripCodeFence(raw)
	if cleaned == "" {
		return Analysis{}, fmt.Errorf("empty model response")
	}

	var payload modelPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return Analysis{}, fmt.Errorf("parse model response: %w", err)
	}

	analysis := Analysis{
		Name:         strings.TrimSpace(payload.Name),
		PropertyType: strings.TrimSpace(payload.PropertyType),
		Location:     strings.TrimSpace(payload.Location),
		Bedrooms:     payload.Bedrooms,
		Budget:       payload.Budget,
		Urgency:      parseLevel(payload.Urgency, LevelMedium),
		Priority:     parseLevel(payload.Priority, LevelMedium),
		Score:        clampScore(payload.Score),
		Summary:      strings.TrimSpace(payload.Summary),
	}
	// Model output follows the same routing contract as the rules.
	alignRouting(&analysis)
	return analysis, nil
}

// StripCodeFence removes markdown code-fence wrapping (``` or ```json) from
// a model response, returning the inner text trimmed.
func StripCodeFence(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		// Drop the language tag line ("json", "JSON", ...).
		firstLine := strings.TrimSpace(trimmed[:idx])
		if firstLine == "" || !strings.ContainsAny(firstLine, "{}[]") {
			trimmed = trimmed[idx+1:]
		}
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// historyBuffer keeps the last few messages per sender so the extraction
// prompt can carry limited conversation context.
type historyBuffer struct {
	mu    sync.Mutex
	depth int
	items map[string][]string
}

func newHistoryBuffer(depth int) *historyBuffer {
	return &historyBuffer{
		depth: depth,
		items: make(map[string][]string),
	}
}

func (h *historyBuffer) add(sender, text string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	msgs := append(h.items[sender], text)
	if len(msgs) > h.depth {
		msgs = msgs[len(msgs)-h.depth:]
	}
	h.items[sender] = msgs
}

func (h *historyBuffer) recent(sender string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.items[sender]...)
}
