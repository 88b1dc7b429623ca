package engine

import "github.com/briangreenhill/coachrag/internal/model"

// The static strategy table keeps the engine useful when every collaborator
// is down. Read-only reference data; fallbackStrategies hands out copies.
var staticStrategies = struct {
	cardiacDrift model.CoachingStrategy
	cadenceReset model.CoachingStrategy
	recovery     model.CoachingStrategy
	injury       model.CoachingStrategy
	maintain     model.CoachingStrategy
}{
	cardiacDrift: model.CoachingStrategy{
		ID:     "fallback-1",
		Name:   "Cardiac Drift Management",
		Text:   "Classic drift pattern. Ease 15 sec/km for next 500m. Focus on efficiency, not speed.",
		Tags:   []string{"cardiac_drift", "hr_rising", "pace_decline"},
		Source: model.SourceFallback,
	},
	cadenceReset: model.CoachingStrategy{
		ID:     "fallback-2",
		Name:   "Cadence Reset",
		Text:   "Quick feet, light steps. Count to 180. Shorten stride, find your rhythm.",
		Tags:   []string{"pace_decline", "form_breakdown"},
		Source: model.SourceFallback,
	},
	recovery: model.CoachingStrategy{
		ID:     "fallback-3",
		Name:   "Active Recovery",
		Text:   "Next 500m: easy pace, Zone 2. Shake out arms, breathe deep. Recharge.",
		Tags:   []string{"fatigue_high", "recovery_needed"},
		Source: model.SourceFallback,
	},
	injury: model.CoachingStrategy{
		ID:     "fallback-4",
		Name:   "Injury Prevention",
		Text:   "Warning signs detected. Ease pace immediately. Shorter strides, land softly.",
		Tags:   []string{"injury_risk"},
		Source: model.SourceFallback,
	},
	maintain: model.CoachingStrategy{
		ID:     "fallback-default",
		Name:   "Maintain Pace",
		Text:   "Hold current pace. Stay in Zone 3. Steady breathing. You're doing well.",
		Tags:   []string{"pace_stable"},
		Source: model.SourceFallback,
	},
}

// fallbackStrategies selects static strategies from the situation flags.
// Always returns at least one strategy.
func fallbackStrategies(ctx model.SituationContext) []model.CoachingStrategy {
	var out []model.CoachingStrategy

	if ctx.CardiacDrift {
		out = append(out, staticStrategies.cardiacDrift)
	}
	if ctx.PaceTrend == model.PaceDeclining {
		out = append(out, staticStrategies.cadenceReset)
	}
	if ctx.FatigueLevel == model.FatigueHigh || ctx.FatigueLevel == model.FatigueSevere {
		out = append(out, staticStrategies.recovery)
	}
	if ctx.InjuryRisk {
		out = append(out, staticStrategies.injury)
	}
	if len(out) == 0 {
		out = append(out, staticStrategies.maintain)
	}
	return out
}
