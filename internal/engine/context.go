package engine

import (
	"fmt"
	"strings"

	"github.com/briangreenhill/coachrag/internal/model"
)

// BuildSituationContext derives the situation model from a performance
// snapshot and the coach settings. Pure function: identical input yields
// identical flags and tag order.
func BuildSituationContext(snap *model.PerformanceSnapshot, personality model.CoachPersonality, energy model.CoachEnergy) model.SituationContext {
	// Cardiac drift: pace declining while HR climbs.
	cardiacDrift := snap.PaceTrend == model.PaceDeclining &&
		(snap.HRTrend == model.HRRising || snap.HRTrend == model.HRSpiking)

	// Zone too high: more than 25% of time in zones 4-5 (strict inequality).
	zone45 := snap.ZonePercentages[4] + snap.ZonePercentages[5]
	zoneTooHigh := zone45 > 25

	injuryRisk := len(snap.InjuryRiskSignals) > 0

	// Form breakdown: pace declining with flat HR points at mechanics, not
	// the cardiovascular system.
	formBreakdown := snap.PaceTrend == model.PaceDeclining && snap.HRTrend == model.HRStable

	pushPossible := (snap.FatigueLevel == model.FatigueNone || snap.FatigueLevel == model.FatigueLow) &&
		snap.HRTrend == model.HRStable &&
		(snap.CurrentHR == nil || snap.MaxHR == nil ||
			float64(*snap.CurrentHR)/float64(*snap.MaxHR) < 0.85)

	recoveryNeeded := snap.FatigueLevel == model.FatigueHigh ||
		snap.FatigueLevel == model.FatigueSevere ||
		zoneTooHigh || cardiacDrift

	ctx := model.SituationContext{
		PaceTrend:      snap.PaceTrend,
		HRTrend:        snap.HRTrend,
		FatigueLevel:   snap.FatigueLevel,
		TargetStatus:   snap.TargetStatus,
		CardiacDrift:   cardiacDrift,
		ZoneTooHigh:    zoneTooHigh,
		InjuryRisk:     injuryRisk,
		FormBreakdown:  formBreakdown,
		PushPossible:   pushPossible,
		RecoveryNeeded: recoveryNeeded,
		Personality:    personality,
		EnergyLevel:    energy,
	}
	ctx.SituationTags = buildTags(ctx)
	return ctx
}

// buildTags produces the ordered situation tag list: pace trend, HR trend,
// target status, fatigue, then one tag per true derived flag.
func buildTags(ctx model.SituationContext) []string {
	var tags []string

	switch ctx.PaceTrend {
	case model.PaceDeclining:
		tags = append(tags, "pace_decline")
	case model.PaceStable:
		tags = append(tags, "pace_stable")
	case model.PaceImproving:
		tags = append(tags, "pace_improving")
	}

	switch ctx.HRTrend {
	case model.HRRising:
		tags = append(tags, "hr_rising")
	case model.HRStable:
		tags = append(tags, "hr_stable")
	case model.HRSpiking:
		tags = append(tags, "hr_spiking")
	}

	switch ctx.TargetStatus {
	case model.TargetAhead:
		tags = append(tags, "target_ahead")
	case model.TargetOnTrack:
		tags = append(tags, "target_on_track")
	case model.TargetSlightlyBehind, model.TargetWayBehind:
		tags = append(tags, "target_behind")
	}

	switch ctx.FatigueLevel {
	case model.FatigueLow:
		tags = append(tags, "fatigue_low")
	case model.FatigueModerate:
		tags = append(tags, "fatigue_moderate")
	case model.FatigueHigh, model.FatigueSevere:
		tags = append(tags, "fatigue_high")
	}

	if ctx.CardiacDrift {
		tags = append(tags, "cardiac_drift")
	}
	if ctx.ZoneTooHigh {
		tags = append(tags, "zone_too_high")
	}
	if ctx.InjuryRisk {
		tags = append(tags, "injury_risk")
	}
	if ctx.FormBreakdown {
		tags = append(tags, "form_breakdown")
	}
	if ctx.PushPossible {
		tags = append(tags, "push_possible")
	}
	if ctx.RecoveryNeeded {
		tags = append(tags, "recovery_needed")
	}

	return tags
}

// describeSituation builds the detailed natural-language description used
// for embedding the situation and for condition matching.
func describeSituation(ctx model.SituationContext, snap *model.PerformanceSnapshot) string {
	currentKM := snap.CurrentDistance / 1000.0
	targetKM := snap.TargetDistance / 1000.0

	paceDesc := fmt.Sprintf("Current pace: %.2f min/km", snap.CurrentPace)
	if snap.TargetPace > 0 {
		diff := snap.CurrentPace - snap.TargetPace
		switch {
		case diff > 0.1:
			paceDesc += fmt.Sprintf(" (slower by %.2f min/km)", diff)
		case diff < -0.1:
			paceDesc += fmt.Sprintf(" (faster by %.2f min/km)", -diff)
		default:
			paceDesc += " (on target)"
		}
	}

	var hrDesc string
	if snap.CurrentHR != nil {
		hrDesc = fmt.Sprintf("HR: %d BPM", *snap.CurrentHR)
		if snap.CurrentZone != nil {
			hrDesc += fmt.Sprintf(", Zone %d", *snap.CurrentZone)
		}
		switch snap.HRTrend {
		case model.HRRising:
			hrDesc += " (rising)"
		case model.HRSpiking:
			hrDesc += " (spiking)"
		case model.HRStable:
			hrDesc += " (stable)"
		}
	}

	// Cadence trend estimated from pace trend once we have interval history.
	var cadenceDesc string
	if snap.CompletedIntervals >= 2 {
		switch snap.PaceTrend {
		case model.PaceDeclining:
			cadenceDesc = "cadence dropping"
		case model.PaceStable:
			cadenceDesc = "cadence stable"
		}
	}

	lines := []string{
		fmt.Sprintf("At km %.1f of %.1fkm target.", currentKM, targetKM),
		paceDesc,
	}
	if hrDesc != "" {
		lines = append(lines, hrDesc)
	}
	if cadenceDesc != "" {
		lines = append(lines, cadenceDesc)
	}
	lines = append(lines,
		fmt.Sprintf("Pace trend: %s", ctx.PaceTrend),
		fmt.Sprintf("HR trend: %s", ctx.HRTrend),
		fmt.Sprintf("Fatigue: %s", ctx.FatigueLevel),
		fmt.Sprintf("Target status: %s", ctx.TargetStatus),
	)
	if ctx.CardiacDrift {
		lines = append(lines, "Cardiac drift detected (pace down, HR up).")
	}
	if ctx.ZoneTooHigh {
		lines = append(lines, "Zone too high (>25% Zone 4-5).")
	}
	if ctx.InjuryRisk {
		lines = append(lines, "Injury risk signals present.")
	}
	if ctx.FormBreakdown {
		lines = append(lines, "Form breakdown detected.")
	}
	if ctx.PushPossible {
		lines = append(lines, "Runner has capacity to push.")
	}

	return strings.Join(lines, "\n")
}

// summarizeSituation is the one-line form used in outputs.
func summarizeSituation(ctx model.SituationContext) string {
	return fmt.Sprintf("%s pace, %s fatigue", ctx.PaceTrend, ctx.FatigueLevel)
}
