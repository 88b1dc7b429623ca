package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/briangreenhill/coachrag/internal/model"
)

func situationFor(snap *model.PerformanceSnapshot) model.SituationContext {
	return BuildSituationContext(snap, model.PersonalityStrategist, model.EnergyMedium)
}

func TestSelectBestSimpleNoCandidates(t *testing.T) {
	e := newTestEngine(t, &fakeStore{})
	snap := baseSnapshot()
	sctx := situationFor(&snap)

	out := e.selectBestSimple(sctx, nil, nil)

	require.Equal(t, "Maintain current pace. Stay focused. You're doing well.", out.StrategyText)
	require.Equal(t, "Default Strategy", out.StrategyName)
	require.Equal(t, 0.5, out.ConfidenceScore)
	require.True(t, out.RequiresOutcomeCheck)
}

func TestSelectBestSimpleWeightedScoring(t *testing.T) {
	e := newTestEngine(t, &fakeStore{})
	snap := baseSnapshot()
	snap.PaceTrend = model.PaceDeclining
	sctx := situationFor(&snap)

	weak := model.CoachingStrategy{
		ID: "weak", Name: "Weak", Text: "weak directive",
		SuccessRate: 0.2, SimilarityScore: 0.5, Source: model.SourceKB,
	}
	strong := model.CoachingStrategy{
		ID: "strong", Name: "Strong", Text: "strong directive",
		SuccessRate: 0.9, SimilarityScore: 0.8,
		Tags:   []string{"pace_decline"},
		Source: model.SourceKBVector,
	}

	out := e.selectBestSimple(sctx, []model.CoachingStrategy{weak, strong}, nil)

	require.Equal(t, "strong directive", out.StrategyText)
	require.Equal(t, 0.6, out.ConfidenceScore)
	require.Equal(t, "Best match: 90% success rate", out.SelectionReason)
	require.Len(t, out.SourceStrategies, 1)
	require.Equal(t, "strong", out.SourceStrategies[0].ID)
}

func TestFallbackScorePrefersKBProvenance(t *testing.T) {
	snap := baseSnapshot()
	sctx := situationFor(&snap)

	kbStrategy := model.CoachingStrategy{SuccessRate: 0.5, SimilarityScore: 0.5, Source: model.SourceKB}
	static := model.CoachingStrategy{SuccessRate: 0.5, SimilarityScore: 0.5, Source: model.SourceFallback}

	require.Greater(t, fallbackScore(kbStrategy, sctx), fallbackScore(static, sctx))
}

func TestSelectStrategyParsesStructuredResponse(t *testing.T) {
	e := newTestEngine(t, &fakeStore{})
	e.chat = &fakeChat{reply: `{
		"strategy_text": "Ease off 10 sec/km for the next 500m, then reassess.",
		"strategy_name": "Controlled Ease",
		"situation_summary": "HR climbing at km 4",
		"selection_reason": "Drift pattern calls for early correction",
		"confidence_score": 0.85,
		"expected_outcome": "HR settles within 2 minutes"
	}`}

	snap := baseSnapshot()
	sctx := situationFor(&snap)
	out := e.selectStrategy(context.Background(), sctx, &snap, []model.CoachingStrategy{candidate("a", 0.8, 5)}, nil, nil)

	require.Equal(t, "Ease off 10 sec/km for the next 500m, then reassess.", out.StrategyText)
	require.Equal(t, "Controlled Ease", out.StrategyName)
	require.Equal(t, 0.85, out.ConfidenceScore)
	require.Equal(t, "HR settles within 2 minutes", out.ExpectedOutcome)
	require.True(t, out.RequiresOutcomeCheck)
}

func TestSelectStrategyCapsDirectiveLength(t *testing.T) {
	long := strings.Repeat("push ", 60)
	e := newTestEngine(t, &fakeStore{})
	e.chat = &fakeChat{reply: `{"strategy_text": "` + strings.TrimSpace(long) + `", "confidence_score": 0.8}`}

	snap := baseSnapshot()
	sctx := situationFor(&snap)
	out := e.selectStrategy(context.Background(), sctx, &snap, nil, nil, nil)

	require.Len(t, strings.Fields(out.StrategyText), maxDirectiveWords)
}

func TestSelectStrategyRawTextResponse(t *testing.T) {
	reply := "Shorten your stride and ease the pace until your heart rate settles, then build back gradually."
	e := newTestEngine(t, &fakeStore{})
	e.chat = &fakeChat{reply: reply}

	snap := baseSnapshot()
	sctx := situationFor(&snap)
	out := e.selectStrategy(context.Background(), sctx, &snap, nil, nil, nil)

	require.Equal(t, reply, out.StrategyText)
	require.Equal(t, "Adaptive Strategy", out.StrategyName)
	require.Equal(t, 0.6, out.ConfidenceScore)
}

func TestSelectStrategyRawTextTruncated(t *testing.T) {
	e := newTestEngine(t, &fakeStore{})
	e.chat = &fakeChat{reply: strings.Repeat("x", 500)}

	snap := baseSnapshot()
	sctx := situationFor(&snap)
	out := e.selectStrategy(context.Background(), sctx, &snap, nil, nil, nil)

	require.Len(t, []rune(out.StrategyText), maxRawDirective)
}

func TestSelectStrategyDefaultsMissingFields(t *testing.T) {
	e := newTestEngine(t, &fakeStore{})
	e.chat = &fakeChat{reply: `{"strategy_text": "Hold steady.", "confidence_score": 1.5}`}

	snap := baseSnapshot()
	sctx := situationFor(&snap)
	out := e.selectStrategy(context.Background(), sctx, &snap, nil, nil, nil)

	require.Equal(t, "Hold steady.", out.StrategyText)
	require.Equal(t, "Adaptive Strategy", out.StrategyName)
	require.Equal(t, summarizeSituation(sctx), out.SituationSummary)
	require.Equal(t, "Improved performance", out.ExpectedOutcome)
	require.Equal(t, 0.7, out.ConfidenceScore) // out-of-range scores are replaced
}
