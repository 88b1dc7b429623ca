package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/briangreenhill/coachrag/internal/llm"
	"github.com/briangreenhill/coachrag/internal/model"
)

const rerankSystemPrompt = "You are a running coach strategy matcher. Match strategies to situations based on their conditions_to_use and when_not_to_use criteria. Return only valid JSON."

// matchResult is one entry of the condition-match response.
type matchResult struct {
	ID         string  `json:"id"`
	Match      bool    `json:"match"`
	MatchScore float64 `json:"match_score"`
	Reason     string  `json:"reason"`
}

// rerankConditions asks the LLM which candidates' usage conditions match the
// situation, annotates the matches, and returns the top results. Without an
// LLM, or on unparseable output, it falls back to ranking by track record.
// Never returns a candidate that was not in the input, never more than 8.
func (e *Engine) rerankConditions(ctx context.Context, candidates []model.CoachingStrategy, situation string) []model.CoachingStrategy {
	if e.chat == nil || len(candidates) == 0 {
		return rankByTrackRecord(candidates)
	}

	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	content, err := e.chat.ChatCompletion(callCtx, []llm.Message{
		{Role: "system", Content: rerankSystemPrompt},
		{Role: "user", Content: buildRerankPrompt(candidates, situation)},
	}, llm.ChatOptions{Temperature: 0.2, MaxTokens: 2000, JSONObject: true})
	if err != nil {
		e.log.Warn().Err(err).Msg("condition matching unavailable, ranking by track record")
		return rankByTrackRecord(candidates)
	}

	matches, err := parseMatches(content)
	if err != nil {
		e.log.Warn().Err(err).Msg("condition match response unparseable, ranking by track record")
		return rankByTrackRecord(candidates)
	}

	byID := make(map[string]matchResult, len(matches))
	for _, m := range matches {
		if m.Match {
			byID[m.ID] = m
		}
	}

	// A candidate absent from the response is dropped, never defaulted in.
	var matched []model.CoachingStrategy
	for _, c := range candidates {
		m, ok := byID[c.ID]
		if !ok {
			continue
		}
		c.SimilarityScore = m.MatchScore
		c.MatchReason = m.Reason
		matched = append(matched, c)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].SimilarityScore != matched[j].SimilarityScore {
			return matched[i].SimilarityScore > matched[j].SimilarityScore
		}
		if matched[i].SuccessRate != matched[j].SuccessRate {
			return matched[i].SuccessRate > matched[j].SuccessRate
		}
		return matched[i].TimesUsed > matched[j].TimesUsed
	})

	e.log.Debug().Int("matched", len(matched)).Int("candidates", len(candidates)).Msg("condition matching done")
	if len(matched) > maxReranked {
		matched = matched[:maxReranked]
	}
	return matched
}

// rankByTrackRecord is the deterministic fallback ranking: success rate,
// then usage count, top 8. Candidates are returned unmodified.
func rankByTrackRecord(candidates []model.CoachingStrategy) []model.CoachingStrategy {
	out := make([]model.CoachingStrategy, len(candidates))
	copy(out, candidates)

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SuccessRate != out[j].SuccessRate {
			return out[i].SuccessRate > out[j].SuccessRate
		}
		return out[i].TimesUsed > out[j].TimesUsed
	})

	if len(out) > maxReranked {
		out = out[:maxReranked]
	}
	return out
}

func buildRerankPrompt(candidates []model.CoachingStrategy, situation string) string {
	var b strings.Builder
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, c.ID, c.Name)
		fmt.Fprintf(&b, "   Use when: %s\n", c.Trigger.ConditionsToUse)
		fmt.Fprintf(&b, "   Avoid when: %s\n", c.Trigger.WhenNotToUse)
		fmt.Fprintf(&b, "   Strategy: %s\n", c.Text)
		fmt.Fprintf(&b, "   Success rate: %.0f%% (%d uses)\n", c.SuccessRate*100, c.TimesUsed)
	}

	return fmt.Sprintf(`CURRENT RUNNING SITUATION:
%s

AVAILABLE STRATEGIES FROM KNOWLEDGE BASE:
%s
TASK:
For each strategy, determine if its "conditions_to_use" MATCH the current situation
AND if its "when_not_to_use" does NOT match.

Return JSON with:
{
  "matches": [
    {"id": "strategy_id", "match": true, "match_score": 0.0, "reason": "brief explanation"}
  ]
}

Prioritize strategies where:
1. conditions_to_use clearly matches current situation
2. when_not_to_use does NOT match current situation
3. Higher success_rate (self-learning)
4. More times_used (proven strategies)

Be strict: only match if conditions clearly apply.`, situation, b.String())
}

// parseMatches decodes the condition-match response, tolerating fenced code
// blocks, a {"matches": [...]} wrapper, or a bare array. Anything else is a
// parse error; we never guess at malformed shapes beyond the fence strip.
func parseMatches(content string) ([]matchResult, error) {
	content = stripCodeFence(content)

	var wrapped struct {
		Matches []matchResult `json:"matches"`
	}
	if err := json.Unmarshal([]byte(content), &wrapped); err == nil && wrapped.Matches != nil {
		return wrapped.Matches, nil
	}

	var bare []matchResult
	if err := json.Unmarshal([]byte(content), &bare); err == nil {
		return bare, nil
	}

	return nil, fmt.Errorf("match response is neither a matches object nor an array")
}

// stripCodeFence removes a surrounding ```json / ``` fence if present.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "```json"); idx >= 0 {
		s = s[idx+len("```json"):]
	} else if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
	} else {
		return s
	}
	if end := strings.Index(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}
