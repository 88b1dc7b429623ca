package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/briangreenhill/coachrag/internal/llm"
	"github.com/briangreenhill/coachrag/internal/model"
)

const selectionSystemPrompt = `You are an elite running coach strategy selector.

Your task is to select and adapt the BEST coaching strategy for the current situation.
Output must be SHORT and ACTIONABLE (max 40 words).

PRIORITIZE:
1. Safety first (injury risk)
2. Immediate impact (what helps NOW)
3. Personalization (what works for THIS runner)
4. Self-learning (strategies with high success rates)

OUTPUT FORMAT (JSON):
{
    "strategy_text": "The adapted coaching strategy (max 40 words)",
    "strategy_name": "Name of strategy type",
    "situation_summary": "Brief situation description (10 words)",
    "selection_reason": "Why this strategy (15 words)",
    "confidence_score": 0.0-1.0,
    "expected_outcome": "What we expect if strategy works"
}`

const (
	maxDirectiveWords = 40
	maxRawDirective   = 200 // chars, when the response isn't JSON
)

// selectionResponse is the structured directive the LLM must return.
type selectionResponse struct {
	StrategyText     string  `json:"strategy_text"`
	StrategyName     string  `json:"strategy_name"`
	SituationSummary string  `json:"situation_summary"`
	SelectionReason  string  `json:"selection_reason"`
	ConfidenceScore  float64 `json:"confidence_score"`
	ExpectedOutcome  string  `json:"expected_outcome"`
}

// selectStrategy combines candidates, memories, and user history into the
// final directive. LLM path when available; deterministic weighted scoring
// otherwise. Always produces an output.
func (e *Engine) selectStrategy(ctx context.Context, sctx model.SituationContext, snap *model.PerformanceSnapshot, candidates []model.CoachingStrategy, memories []model.PersonalizationMemory, topStats []model.UserStrategyStat) *model.AdaptiveStrategyOutput {
	if e.chat == nil {
		return e.selectBestSimple(sctx, candidates, memories)
	}

	prompt := buildSelectionPrompt(sctx, snap, candidates, memories, topStats)

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	content, err := e.chat.ChatCompletion(callCtx, []llm.Message{
		{Role: "system", Content: selectionSystemPrompt},
		{Role: "user", Content: prompt},
	}, llm.ChatOptions{Temperature: 0.3, MaxTokens: 300})
	if err != nil {
		e.log.Warn().Err(err).Msg("strategy selection unavailable, using weighted fallback")
		return e.selectBestSimple(sctx, candidates, memories)
	}

	out := &model.AdaptiveStrategyOutput{
		SourceStrategies:     firstN(candidates, 3),
		MemoryInsights:       memoryTexts(memories, 3),
		PriorityTags:         firstN(sctx.SituationTags, 3),
		RequiresOutcomeCheck: true,
	}

	var parsed selectionResponse
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &parsed); err != nil {
		// Not JSON; the text itself is still usable as a directive.
		e.log.Warn().Err(err).Msg("selection response not structured, using raw text")
		out.StrategyText = truncateRunes(content, maxRawDirective)
		out.StrategyName = "Adaptive Strategy"
		out.SituationSummary = summarizeSituation(sctx)
		out.SelectionReason = "LLM-generated response"
		out.ConfidenceScore = 0.6
		return out
	}

	out.StrategyText = truncateWords(orDefault(parsed.StrategyText, "Maintain current effort."), maxDirectiveWords)
	out.StrategyName = orDefault(parsed.StrategyName, "Adaptive Strategy")
	out.SituationSummary = orDefault(parsed.SituationSummary, summarizeSituation(sctx))
	out.SelectionReason = orDefault(parsed.SelectionReason, "Best match for current state")
	out.ExpectedOutcome = orDefault(parsed.ExpectedOutcome, "Improved performance")
	out.ConfidenceScore = parsed.ConfidenceScore
	if out.ConfidenceScore <= 0 || out.ConfidenceScore > 1 {
		out.ConfidenceScore = 0.7
	}
	return out
}

// selectBestSimple is the deterministic selection fallback: pick the
// candidate with the best weighted score, or a default directive when there
// are no candidates at all.
//
// The provenance bonus prefers KB-retrieved strategies (0.2) over the
// static table (0.1); retrieved strategies carry real usage statistics.
func (e *Engine) selectBestSimple(sctx model.SituationContext, candidates []model.CoachingStrategy, memories []model.PersonalizationMemory) *model.AdaptiveStrategyOutput {
	if len(candidates) == 0 {
		return &model.AdaptiveStrategyOutput{
			StrategyText:         "Maintain current pace. Stay focused. You're doing well.",
			StrategyName:         "Default Strategy",
			SituationSummary:     summarizeSituation(sctx),
			SelectionReason:      "No matching strategies found",
			ConfidenceScore:      0.5,
			PriorityTags:         firstN(sctx.SituationTags, 3),
			RequiresOutcomeCheck: true,
		}
	}

	best := candidates[0]
	bestScore := fallbackScore(best, sctx)
	for _, c := range candidates[1:] {
		if s := fallbackScore(c, sctx); s > bestScore {
			best, bestScore = c, s
		}
	}

	return &model.AdaptiveStrategyOutput{
		StrategyText:         best.Text,
		StrategyName:         best.Name,
		SituationSummary:     summarizeSituation(sctx),
		SelectionReason:      fmt.Sprintf("Best match: %.0f%% success rate", best.SuccessRate*100),
		SourceStrategies:     []model.CoachingStrategy{best},
		MemoryInsights:       memoryTexts(memories, 2),
		ConfidenceScore:      0.6,
		PriorityTags:         firstN(sctx.SituationTags, 3),
		RequiresOutcomeCheck: true,
	}
}

func fallbackScore(c model.CoachingStrategy, sctx model.SituationContext) float64 {
	overlap := 0
	situationTags := make(map[string]bool, len(sctx.SituationTags))
	for _, t := range sctx.SituationTags {
		situationTags[t] = true
	}
	for _, t := range c.Tags {
		if situationTags[t] {
			overlap++
		}
	}

	sourceBonus := 0.1
	if c.Source != model.SourceFallback {
		sourceBonus = 0.2
	}

	return c.SuccessRate*0.4 + c.SimilarityScore*0.3 + float64(overlap)*0.1 + sourceBonus
}

func buildSelectionPrompt(sctx model.SituationContext, snap *model.PerformanceSnapshot, candidates []model.CoachingStrategy, memories []model.PersonalizationMemory, topStats []model.UserStrategyStat) string {
	var strategies strings.Builder
	for _, c := range firstN(candidates, 6) {
		fmt.Fprintf(&strategies, "- [%s] (success: %.0f%%, used: %dx, sim: %.0f%%): %s\n",
			c.Name, c.SuccessRate*100, c.TimesUsed, c.SimilarityScore*100, c.Text)
	}
	strategiesText := strategies.String()
	if strategiesText == "" {
		strategiesText = "No matching strategies found."
	}

	memoriesText := "No personalization data yet."
	if len(memories) > 0 {
		var b strings.Builder
		for _, m := range firstN(memories, 5) {
			fmt.Fprintf(&b, "- %s\n", m.Text)
		}
		memoriesText = b.String()
	}

	topText := "No user history yet."
	if len(topStats) > 0 {
		var b strings.Builder
		for _, s := range firstN(topStats, 3) {
			fmt.Fprintf(&b, "- %s (user success: %.0f%%)\n", s.StrategyName, s.UserSuccessRate*100)
		}
		topText = b.String()
	}

	hr := "N/A"
	if snap.CurrentHR != nil {
		hr = fmt.Sprintf("%d", *snap.CurrentHR)
	}
	zone := "N/A"
	if snap.CurrentZone != nil {
		zone = fmt.Sprintf("%d", *snap.CurrentZone)
	}

	return fmt.Sprintf(`SITUATION ANALYSIS:
- Pace trend: %s
- HR trend: %s
- Fatigue: %s
- Target status: %s
- Cardiac drift: %s
- Zone too high: %s
- Injury risk: %s
- Form breakdown: %s
- Can push: %s
- Recovery needed: %s

COACH SETTINGS:
- Personality: %s
- Energy: %s

PERFORMANCE DATA:
Current pace: %.2f min/km (target: %.2f)
HR: %s BPM, Zone: %s
Distance: %.2fkm of %.1fkm
Pace deviation: %+.1f%%

AVAILABLE STRATEGIES (from RAG):
%s
USER'S TOP STRATEGIES (self-learning):
%s
PERSONALIZATION (what works for this runner):
%s
TASK:
Select the BEST strategy for this EXACT situation and adapt it.
Combine insights from strategies, user history, and personalization.
Output must be SHORT (max 40 words), SPECIFIC, and ACTIONABLE.

If injury risk or recovery needed, prioritize safety.
If user has successful strategies, prefer those.
Match the coach personality (%s) and energy (%s).

OUTPUT JSON:`,
		sctx.PaceTrend, sctx.HRTrend, sctx.FatigueLevel, sctx.TargetStatus,
		yesNo(sctx.CardiacDrift), yesNo(sctx.ZoneTooHigh), yesNo(sctx.InjuryRisk),
		yesNo(sctx.FormBreakdown), yesNo(sctx.PushPossible), yesNo(sctx.RecoveryNeeded),
		strings.ToUpper(string(sctx.Personality)), strings.ToUpper(string(sctx.EnergyLevel)),
		snap.CurrentPace, snap.TargetPace, hr, zone,
		snap.CurrentDistance/1000, snap.TargetDistance/1000, snap.PaceDeviation,
		strategiesText, topText, memoriesText,
		sctx.Personality, sctx.EnergyLevel)
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "No"
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func memoryTexts(memories []model.PersonalizationMemory, n int) []string {
	var out []string
	for _, m := range firstN(memories, n) {
		out = append(out, m.Text)
	}
	return out
}

func firstN[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func truncateWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) <= n {
		return s
	}
	return strings.Join(words[:n], " ")
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
