package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/briangreenhill/coachrag/internal/kb"
	"github.com/briangreenhill/coachrag/internal/model"
)

func TestDistanceCategory(t *testing.T) {
	tests := []struct {
		meters float64
		want   string
	}{
		{0, "casual"},
		{2999, "casual"},
		{3000, "5k"},
		{5000, "5k"},
		{5500, "5k"},
		{5501, "10k"},
		{10000, "10k"},
		{11000, "10k"},
		{11001, "half"},
		{21097, "half"},
		{22000, "half"},
		{22001, "full"},
		{42195, "full"},
	}

	for _, tt := range tests {
		if got := distanceCategory(tt.meters); got != tt.want {
			t.Errorf("distanceCategory(%v) = %q, want %q", tt.meters, got, tt.want)
		}
	}
}

func TestRunnerLevel(t *testing.T) {
	tests := []struct {
		name string
		snap model.PerformanceSnapshot
		want string
	}{
		{
			name: "steady with tight deviation",
			snap: model.PerformanceSnapshot{PaceTrend: model.PaceStable, HRTrend: model.HRStable, PaceDeviation: 2.5},
			want: "advanced",
		},
		{
			name: "negative deviation counts by magnitude",
			snap: model.PerformanceSnapshot{PaceTrend: model.PaceStable, HRTrend: model.HRStable, PaceDeviation: -2.5},
			want: "advanced",
		},
		{
			name: "erratic pace",
			snap: model.PerformanceSnapshot{PaceTrend: model.PaceErratic, HRTrend: model.HRStable, PaceDeviation: 1},
			want: "beginner",
		},
		{
			name: "spiking HR",
			snap: model.PerformanceSnapshot{PaceTrend: model.PaceImproving, HRTrend: model.HRSpiking},
			want: "beginner",
		},
		{
			name: "large deviation",
			snap: model.PerformanceSnapshot{PaceTrend: model.PaceImproving, HRTrend: model.HRRising, PaceDeviation: 20},
			want: "beginner",
		},
		{
			name: "everything else",
			snap: model.PerformanceSnapshot{PaceTrend: model.PaceImproving, HRTrend: model.HRRising, PaceDeviation: 8},
			want: "intermediate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := runnerLevel(&tt.snap); got != tt.want {
				t.Errorf("runnerLevel = %q, want %q", got, tt.want)
			}
		})
	}
}

func kbRow(id string, success float64, sim *float64) kb.Strategy {
	return kb.Strategy{
		ID:              id,
		Title:           "Strategy " + id,
		StrategyText:    "Do the thing for " + id,
		ConditionsToUse: "when pace drops",
		WhenNotToUse:    "when injured",
		Tags:            []string{"pace_decline"},
		TimesUsed:       4,
		SuccessRate:     success,
		Similarity:      sim,
	}
}

func floatPtr(v float64) *float64 { return &v }

func TestRetrieveStrategiesVectorPath(t *testing.T) {
	var gotParams kb.SemanticSearchParams
	store := &fakeStore{
		semanticSearch: func(p kb.SemanticSearchParams) ([]kb.Strategy, error) {
			gotParams = p
			return []kb.Strategy{kbRow("s1", 0.8, floatPtr(0.91))}, nil
		},
	}
	e := newTestEngine(t, store)
	e.embed = &fakeEmbedder{vec: []float64{0.1, 0.2}}

	snap := baseSnapshot()
	sctx := BuildSituationContext(&snap, "", "")
	got := e.retrieveStrategies(context.Background(), sctx, &snap, "situation text")

	require.Len(t, got, 1)
	require.Equal(t, model.SourceKBVector, got[0].Source)
	require.Equal(t, 0.91, got[0].SimilarityScore)
	require.Equal(t, "Use when: when pace drops. Avoid when: when injured", got[0].Context)

	require.Equal(t, []float64{0.1, 0.2}, gotParams.Embedding)
	require.Equal(t, "10k", gotParams.Distance)
	require.Equal(t, 0.65, gotParams.MatchThreshold)
	require.Equal(t, 15, gotParams.MatchCount)
}

func TestRetrieveStrategiesFallsBackToQuery(t *testing.T) {
	store := &fakeStore{
		semanticSearch: func(kb.SemanticSearchParams) ([]kb.Strategy, error) {
			return nil, nil // nothing above the similarity floor
		},
		query: func(p kb.QueryParams) ([]kb.Strategy, error) {
			require.Equal(t, "10k", p.Distance)
			return []kb.Strategy{kbRow("s2", 0.6, nil)}, nil
		},
	}
	e := newTestEngine(t, store)
	e.embed = &fakeEmbedder{vec: []float64{0.1}}

	snap := baseSnapshot()
	sctx := BuildSituationContext(&snap, "", "")
	got := e.retrieveStrategies(context.Background(), sctx, &snap, "situation")

	require.Len(t, got, 1)
	require.Equal(t, model.SourceKB, got[0].Source)
	require.Equal(t, 0.7, got[0].SimilarityScore) // default for unscored rows
}

func TestRetrieveStrategiesEmbeddingFailureFallsBackToQuery(t *testing.T) {
	store := &fakeStore{
		query: func(kb.QueryParams) ([]kb.Strategy, error) {
			return []kb.Strategy{kbRow("s3", 0.5, nil)}, nil
		},
	}
	e := newTestEngine(t, store)
	e.embed = &fakeEmbedder{err: errors.New("embeddings down")}

	snap := baseSnapshot()
	sctx := BuildSituationContext(&snap, "", "")
	got := e.retrieveStrategies(context.Background(), sctx, &snap, "situation")

	require.Len(t, got, 1)
	require.Equal(t, model.SourceKB, got[0].Source)
}

func TestRetrieveStrategiesStaticFallback(t *testing.T) {
	e := newTestEngine(t, &fakeStore{}) // every KB call fails

	t.Run("cardiac drift gets the drift directive", func(t *testing.T) {
		snap := baseSnapshot()
		snap.PaceTrend = model.PaceDeclining
		snap.HRTrend = model.HRRising
		sctx := BuildSituationContext(&snap, "", "")

		got := e.retrieveStrategies(context.Background(), sctx, &snap, "situation")
		require.NotEmpty(t, got)

		names := make([]string, 0, len(got))
		for _, s := range got {
			require.Equal(t, model.SourceFallback, s.Source)
			names = append(names, s.Name)
		}
		require.Contains(t, names, "Cardiac Drift Management")
		require.Contains(t, names, "Cadence Reset")
	})

	t.Run("injury with high fatigue gets both safety directives", func(t *testing.T) {
		snap := baseSnapshot()
		snap.FatigueLevel = model.FatigueHigh
		snap.InjuryRiskSignals = []string{"knee pain"}
		sctx := BuildSituationContext(&snap, "", "")

		got := e.retrieveStrategies(context.Background(), sctx, &snap, "situation")

		names := make([]string, 0, len(got))
		for _, s := range got {
			names = append(names, s.Name)
		}
		require.Contains(t, names, "Active Recovery")
		require.Contains(t, names, "Injury Prevention")
	})

	t.Run("quiet situation still gets a directive", func(t *testing.T) {
		snap := baseSnapshot()
		sctx := BuildSituationContext(&snap, "", "")

		got := e.retrieveStrategies(context.Background(), sctx, &snap, "situation")
		require.Len(t, got, 1)
		require.Equal(t, "Maintain Pace", got[0].Name)
	})
}

func TestRetrieveStrategiesCachesKBResults(t *testing.T) {
	calls := 0
	store := &fakeStore{
		query: func(kb.QueryParams) ([]kb.Strategy, error) {
			calls++
			if calls > 1 {
				return nil, errors.New("db down")
			}
			return []kb.Strategy{kbRow("s1", 0.8, nil)}, nil
		},
	}
	e := newTestEngine(t, store)

	snap := baseSnapshot()
	sctx := BuildSituationContext(&snap, "", "")

	first := e.retrieveStrategies(context.Background(), sctx, &snap, "situation")
	second := e.retrieveStrategies(context.Background(), sctx, &snap, "situation")

	require.Equal(t, 1, calls)
	require.Equal(t, first, second)
}

func TestStaticFallbackNotCached(t *testing.T) {
	calls := 0
	store := &fakeStore{
		query: func(kb.QueryParams) ([]kb.Strategy, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("db down")
			}
			return []kb.Strategy{kbRow("s1", 0.8, nil)}, nil
		},
	}
	e := newTestEngine(t, store)

	snap := baseSnapshot()
	sctx := BuildSituationContext(&snap, "", "")

	first := e.retrieveStrategies(context.Background(), sctx, &snap, "situation")
	require.Equal(t, model.SourceFallback, first[0].Source)

	// The KB recovers; the static result must not mask it.
	second := e.retrieveStrategies(context.Background(), sctx, &snap, "situation")
	require.Equal(t, model.SourceKB, second[0].Source)
}
