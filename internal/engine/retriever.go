package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/briangreenhill/coachrag/internal/kb"
	"github.com/briangreenhill/coachrag/internal/model"
)

// distanceCategory maps a target distance in meters to a KB distance bucket.
// Inclusive upper bounds, checked in ascending order.
func distanceCategory(targetMeters float64) string {
	km := targetMeters / 1000.0
	switch {
	case km < 3.0:
		return "casual"
	case km <= 5.5:
		return "5k"
	case km <= 11.0:
		return "10k"
	case km <= 22.0:
		return "half"
	default:
		return "full"
	}
}

// runnerLevel estimates the runner's level from pace consistency and HR
// management. The advanced check runs first and takes precedence.
func runnerLevel(snap *model.PerformanceSnapshot) string {
	dev := snap.PaceDeviation
	if dev < 0 {
		dev = -dev
	}

	if snap.PaceTrend == model.PaceStable && snap.HRTrend == model.HRStable && dev < 3.0 {
		return "advanced"
	}
	if snap.PaceTrend == model.PaceErratic || snap.HRTrend == model.HRSpiking || dev > 15.0 {
		return "beginner"
	}
	return "intermediate"
}

// retrieveStrategies runs the retrieval chain: cache, vector search,
// non-vector query, static table. Every failure falls through to the next
// stage; this never errors and never returns an empty list.
func (e *Engine) retrieveStrategies(ctx context.Context, sctx model.SituationContext, snap *model.PerformanceSnapshot, situation string) []model.CoachingStrategy {
	distance := distanceCategory(snap.TargetDistance)
	level := runnerLevel(snap)
	cacheKey := fmt.Sprintf("strategies:%s:%s", distance, level)

	if cached, ok := e.cache.Get(ctx, cacheKey); ok {
		var strategies []model.CoachingStrategy
		if err := json.Unmarshal(cached, &strategies); err == nil && len(strategies) > 0 {
			e.log.Debug().Str("key", cacheKey).Int("count", len(strategies)).Msg("strategy cache hit")
			return strategies
		}
	}

	rows, source := e.queryKB(ctx, distance, level, situation)
	if len(rows) == 0 {
		e.log.Warn().Str("distance", distance).Str("level", level).Msg("no KB strategies, using static fallback")
		return fallbackStrategies(sctx)
	}

	strategies := make([]model.CoachingStrategy, 0, len(rows))
	for _, r := range rows {
		strategies = append(strategies, fromKBRow(r, source))
	}

	// Don't cache from an abandoned request; a canceled context can leave a
	// partially fetched result behind.
	if ctx.Err() == nil {
		if payload, err := json.Marshal(strategies); err == nil {
			e.cache.Set(ctx, cacheKey, payload, cacheTTL)
		}
	}

	return strategies
}

// queryKB attempts vector search first, then the non-vector query.
func (e *Engine) queryKB(ctx context.Context, distance, level, situation string) ([]kb.Strategy, model.StrategySource) {
	if e.embed != nil {
		embCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
		embedding, err := e.embed.Embed(embCtx, situation)
		cancel()
		if err != nil {
			e.log.Warn().Err(err).Msg("situation embedding failed, using KB query fallback")
		} else {
			searchCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
			rows, err := e.kb.SemanticSearch(searchCtx, kb.SemanticSearchParams{
				Embedding:      embedding,
				Distance:       distance,
				RunnerLevel:    level,
				MatchThreshold: similarityFloor,
				MatchCount:     maxCandidates,
			})
			cancel()
			switch {
			case err != nil:
				e.log.Warn().Err(err).Msg("vector search failed, using KB query fallback")
			case len(rows) == 0:
				e.log.Debug().Msg("no vector matches above threshold, using KB query fallback")
			default:
				return rows, model.SourceKBVector
			}
		}
	}

	queryCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()
	rows, err := e.kb.Query(queryCtx, kb.QueryParams{
		Distance:    distance,
		RunnerLevel: level,
		MatchCount:  maxCandidates,
	})
	if err != nil {
		e.log.Warn().Err(err).Msg("KB query failed")
		return nil, model.SourceKB
	}
	return rows, model.SourceKB
}

// fromKBRow converts a KB row into a candidate strategy.
func fromKBRow(r kb.Strategy, source model.StrategySource) model.CoachingStrategy {
	similarity := 0.7 // default for unscored rows
	if r.Similarity != nil {
		similarity = *r.Similarity
	}

	return model.CoachingStrategy{
		ID:      r.ID,
		Name:    r.Title,
		Text:    r.StrategyText,
		Context: fmt.Sprintf("Use when: %s. Avoid when: %s", r.ConditionsToUse, r.WhenNotToUse),
		Tags:    r.Tags,
		Trigger: model.TriggerConditions{
			ConditionsToUse: r.ConditionsToUse,
			WhenNotToUse:    r.WhenNotToUse,
		},
		TimesUsed:             r.TimesUsed,
		SuccessRate:           r.SuccessRate,
		AvgEffectivenessScore: r.AvgEffectivenessScore,
		SimilarityScore:       similarity,
		Source:                source,
	}
}

// embeddingText is the composite text a KB strategy is embedded under.
func embeddingText(c kb.EmbeddingCandidate) string {
	return fmt.Sprintf(
		"Strategy: %s\nUse when: %s\nAvoid when: %s\nStrategy text: %s\nDistance: %s\nType: %s\nRunner level: %s",
		c.Title, c.ConditionsToUse, c.WhenNotToUse, c.StrategyText,
		c.Distance, c.Type, c.RunnerLevel)
}
