package qualify

import (
	"context"

	"leadflow_backend/platform/logger"
)

// Engine runs the qualification strategies in order and returns the first
// successful analysis. The rule-based strategy is always appended last, so
// qualification can never fail: a model outage degrades scoring quality,
// never availability.
type Engine struct {
	chain []Analyzer
	rules *RuleAnalyzer
	log   *logger.Logger
}

// NewEngine builds the strategy chain. primary may be nil (rule-only mode).
func NewEngine(primary Analyzer, rules *RuleAnalyzer, log *logger.Logger) *Engine {
	if rules == nil {
		rules = NewRuleAnalyzer()
	}

	chain := make([]Analyzer, 0, 2)
	if primary != nil {
		chain = append(chain, primary)
	}
	chain = append(chain, rules)

	return &Engine{
		chain: chain,
		rules: rules,
		log:   log,
	}
}

// Analyze qualifies one message. It never returns an error: each strategy is
// tried in order and the deterministic rule analyzer closes the chain.
func (e *Engine) Analyze(ctx context.Context, text, senderName string) Analysis {
	for i, analyzer := range e.chain {
		analysis, err := analyzer.Analyze(ctx, text, senderName)
		if err == nil {
			if i > 0 {
				e.log.Info("qualification used fallback strategy",
					"strategy", analyzer.Name(),
					"attempt", i+1,
				)
			}
			return analysis
		}
		e.log.Warn("qualification strategy failed, trying next",
			"strategy", analyzer.Name(),
			"attempt", i+1,
			"error", err,
		)
	}

	// Unreachable in practice: the rule analyzer never errors. Kept so the
	// contract holds even if the chain is misassembled.
	analysis, _ := e.rules.Analyze(ctx, text, senderName)
	return analysis
}
