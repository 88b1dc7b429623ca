package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/briangreenhill/coachrag/internal/model"
)

// fetchMemories queries the personalization store with situation-derived
// queries, deduplicates and ranks the hits, and extracts insights. Returns
// nil (never an error) when the store is unconfigured or failing.
func (e *Engine) fetchMemories(ctx context.Context, userID string, sctx model.SituationContext) []model.PersonalizationMemory {
	if e.mem == nil {
		return nil
	}

	queries := []string{
		"coaching strategies that worked well",
		fmt.Sprintf("%s pace coaching", sctx.PaceTrend),
		fmt.Sprintf("%s fatigue running advice", sctx.FatigueLevel),
	}

	var memories []model.PersonalizationMemory
	for _, query := range queries {
		callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
		results, err := e.mem.Search(callCtx, query, userID, 3)
		cancel()
		if err != nil {
			e.log.Warn().Err(err).Str("query", query).Msg("memory search failed")
			continue
		}

		for _, r := range results {
			m := model.PersonalizationMemory{
				ID:             r.ID,
				Text:           r.Memory,
				Category:       "general",
				RelevanceScore: r.Score,
				Metadata:       r.Metadata,
			}
			if cat, ok := r.Metadata["category"].(string); ok && cat != "" {
				m.Category = cat
			}
			extractInsights(&m)
			memories = append(memories, m)
		}
	}

	// Highest relevance first, then dedupe by exact text (first wins).
	sort.SliceStable(memories, func(i, j int) bool {
		return memories[i].RelevanceScore > memories[j].RelevanceScore
	})

	seen := make(map[string]bool, len(memories))
	unique := memories[:0]
	for _, m := range memories {
		if seen[m.Text] {
			continue
		}
		seen[m.Text] = true
		unique = append(unique, m)
	}

	if len(unique) > 5 {
		unique = unique[:5]
	}
	return unique
}

// extractInsights tags a memory by keyword inspection of its text.
func extractInsights(m *model.PersonalizationMemory) {
	text := strings.ToLower(m.Text)

	if strings.Contains(text, "worked") || strings.Contains(text, "effective") || strings.Contains(text, "helped") {
		m.WhatWorked = m.Text
	}
	if strings.Contains(text, "didn't work") || strings.Contains(text, "ineffective") || strings.Contains(text, "failed") {
		m.WhatDidntWork = m.Text
	}
	if strings.Contains(text, "prefers") || strings.Contains(text, "likes") || strings.Contains(text, "responds to") {
		m.RunnerPreference = m.Text
	}
}
