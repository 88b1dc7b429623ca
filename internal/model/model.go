// Package model defines the data types shared across the coaching strategy
// engine: the performance snapshot we receive per coaching tick, the derived
// situation context, retrieved strategies, and the adaptive output.
package model

import "time"

// CoachPersonality selects the coaching voice.
type CoachPersonality string

const (
	PersonalityStrategist CoachPersonality = "strategist"
	PersonalityPacer      CoachPersonality = "pacer"
	PersonalityFinisher   CoachPersonality = "finisher"
)

// CoachEnergy selects how intense the coaching delivery should be.
type CoachEnergy string

const (
	EnergyLow    CoachEnergy = "low"
	EnergyMedium CoachEnergy = "medium"
	EnergyHigh   CoachEnergy = "high"
)

// PaceTrend classifies recent pace movement.
type PaceTrend string

const (
	PaceImproving PaceTrend = "improving"
	PaceStable    PaceTrend = "stable"
	PaceDeclining PaceTrend = "declining"
	PaceErratic   PaceTrend = "erratic"
)

// HRTrend classifies recent heart rate movement.
type HRTrend string

const (
	HRStable     HRTrend = "stable"
	HRRising     HRTrend = "rising"
	HRSpiking    HRTrend = "spiking"
	HRRecovering HRTrend = "recovering"
)

// FatigueLevel classifies accumulated fatigue.
type FatigueLevel string

const (
	FatigueNone     FatigueLevel = "none"
	FatigueLow      FatigueLevel = "low"
	FatigueModerate FatigueLevel = "moderate"
	FatigueHigh     FatigueLevel = "high"
	FatigueSevere   FatigueLevel = "severe"
)

// TargetStatus classifies progress against the run target.
type TargetStatus string

const (
	TargetAhead          TargetStatus = "ahead"
	TargetOnTrack        TargetStatus = "on_track"
	TargetSlightlyBehind TargetStatus = "slightly_behind"
	TargetWayBehind      TargetStatus = "way_behind"
)

// PerformanceSnapshot is the structured analysis of the current run,
// produced upstream once per coaching tick. Read-only here.
type PerformanceSnapshot struct {
	CurrentPace     float64 `json:"current_pace"` // min/km
	TargetPace      float64 `json:"target_pace"`  // min/km
	CurrentDistance float64 `json:"current_distance"` // meters
	TargetDistance  float64 `json:"target_distance"`  // meters
	ElapsedTime     float64 `json:"elapsed_time"`     // seconds

	CurrentHR       *int            `json:"current_hr,omitempty"`
	AverageHR       *int            `json:"average_hr,omitempty"`
	MaxHR           *int            `json:"max_hr,omitempty"`
	CurrentZone     *int            `json:"current_zone,omitempty"`
	ZonePercentages map[int]float64 `json:"zone_percentages,omitempty"` // zone 1-5 -> % of time

	PaceTrend    PaceTrend    `json:"pace_trend"`
	HRTrend      HRTrend      `json:"hr_trend"`
	FatigueLevel FatigueLevel `json:"fatigue_level"`
	TargetStatus TargetStatus `json:"target_status"`

	PerformanceSummary    string   `json:"performance_summary,omitempty"`
	HeartZoneAnalysis     string   `json:"heart_zone_analysis,omitempty"`
	IntervalTrends        string   `json:"interval_trends,omitempty"`
	HRVariationAnalysis   string   `json:"hr_variation_analysis,omitempty"`
	InjuryRiskSignals     []string `json:"injury_risk_signals,omitempty"`
	AdaptiveMicrostrategy string   `json:"adaptive_microstrategy,omitempty"`

	PaceDeviation      float64   `json:"pace_deviation"` // percent
	CompletedIntervals int       `json:"completed_intervals"`
	IntervalPaces      []float64 `json:"interval_paces,omitempty"`
}

// SituationContext is derived from a snapshot plus coach settings.
// Immutable once built; tags are a pure function of the fields above them.
type SituationContext struct {
	PaceTrend    PaceTrend    `json:"pace_trend"`
	HRTrend      HRTrend      `json:"hr_trend"`
	FatigueLevel FatigueLevel `json:"fatigue_level"`
	TargetStatus TargetStatus `json:"target_status"`

	CardiacDrift   bool `json:"cardiac_drift"`   // pace declining + HR rising
	ZoneTooHigh    bool `json:"zone_too_high"`   // >25% in zone 4-5
	InjuryRisk     bool `json:"injury_risk"`
	FormBreakdown  bool `json:"form_breakdown"`  // pace down, HR flat
	PushPossible   bool `json:"push_possible"`   // HR headroom + low fatigue
	RecoveryNeeded bool `json:"recovery_needed"`

	Personality CoachPersonality `json:"personality"`
	EnergyLevel CoachEnergy      `json:"energy_level"`

	SituationTags []string `json:"situation_tags"`
}

// StrategySource records which retrieval path produced a candidate.
type StrategySource string

const (
	SourceKBVector StrategySource = "kb_vector" // vector similarity search
	SourceKB       StrategySource = "kb"        // non-vector KB query
	SourceFallback StrategySource = "fallback"  // static in-process table
)

// TriggerConditions holds the natural-language usage conditions attached to
// a knowledge-base strategy.
type TriggerConditions struct {
	ConditionsToUse string `json:"conditions_to_use"`
	WhenNotToUse    string `json:"when_not_to_use"`
}

// CoachingStrategy is one candidate directive. SuccessRate and
// AvgEffectivenessScore are only meaningful when TimesUsed > 0.
// Never mutated after construction; the reranker annotates a copy.
type CoachingStrategy struct {
	ID      string `json:"id"`
	Name    string `json:"strategy_name"`
	Text    string `json:"strategy_text"`
	Context string `json:"strategy_context,omitempty"`

	Tags    []string          `json:"tags,omitempty"`
	Trigger TriggerConditions `json:"trigger_conditions"`

	TimesUsed             int     `json:"times_used"`
	SuccessRate           float64 `json:"success_rate"`
	AvgEffectivenessScore float64 `json:"avg_effectiveness_score"`

	SimilarityScore float64        `json:"similarity_score"` // vector similarity or rerank match score, 0-1
	Source          StrategySource `json:"source"`
	MatchReason     string         `json:"match_reason,omitempty"` // set by the reranker
}

// AdaptiveStrategyOutput is the externally visible result of one pipeline run.
type AdaptiveStrategyOutput struct {
	StrategyText string `json:"strategy_text"`
	StrategyName string `json:"strategy_name"`

	SituationSummary string `json:"situation_summary"`
	SelectionReason  string `json:"selection_reason"`

	SourceStrategies []CoachingStrategy `json:"source_strategies,omitempty"` // up to 3
	MemoryInsights   []string           `json:"memory_insights,omitempty"`   // up to 3

	ExecutionID string `json:"execution_id,omitempty"` // absent until recorded

	ConfidenceScore float64  `json:"confidence_score"` // 0-1
	PriorityTags    []string `json:"priority_tags,omitempty"` // up to 3

	RequiresOutcomeCheck bool   `json:"requires_outcome_check"`
	ExpectedOutcome      string `json:"expected_outcome,omitempty"`
}

// Metrics is a flat bag of numeric run metrics (pace, hr, zone, ...).
type Metrics map[string]float64

// ExecutionContext snapshots the situation at delivery time. The
// effectiveness assessor reads it back when the outcome arrives.
type ExecutionContext struct {
	Pace          float64      `json:"pace"`
	HR            *int         `json:"hr,omitempty"`
	Zone          *int         `json:"zone,omitempty"`
	Fatigue       FatigueLevel `json:"fatigue"`
	TargetStatus  TargetStatus `json:"target_status"`
	PaceTrend     PaceTrend    `json:"pace_trend"`
	HRTrend       HRTrend      `json:"hr_trend"`
	SituationTags []string     `json:"situation_tags"`
}

// StrategyExecution is a delivered directive awaiting outcome measurement.
type StrategyExecution struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	RunID      string `json:"run_id,omitempty"`
	StrategyID string `json:"strategy_id,omitempty"` // empty for static-fallback strategies

	ExecutionContext  ExecutionContext `json:"execution_context"`
	StrategyDelivered string           `json:"strategy_delivered"`

	OutcomeMeasured     bool     `json:"outcome_measured"`
	OutcomeMetrics      Metrics  `json:"outcome_metrics,omitempty"`
	WasEffective        *bool    `json:"was_effective,omitempty"`
	EffectivenessScore  *float64 `json:"effectiveness_score,omitempty"`
	EffectivenessReason string   `json:"effectiveness_reason,omitempty"`

	ExecutedAt        time.Time  `json:"executed_at"`
	OutcomeMeasuredAt *time.Time `json:"outcome_measured_at,omitempty"`
}

// PersonalizationMemory is one memory returned by the personalization store,
// with insights extracted by keyword inspection of the text.
type PersonalizationMemory struct {
	ID             string         `json:"memory_id"`
	Text           string         `json:"memory_text"`
	Category       string         `json:"category"`
	RelevanceScore float64        `json:"relevance_score"`
	Metadata       map[string]any `json:"metadata,omitempty"`

	WhatWorked       string `json:"what_worked,omitempty"`
	WhatDidntWork    string `json:"what_didnt_work,omitempty"`
	RunnerPreference string `json:"runner_preference,omitempty"`
}

// UserStrategyStat is a per-user historical best strategy from the KB.
type UserStrategyStat struct {
	StrategyName    string  `json:"strategy_name"`
	UserSuccessRate float64 `json:"user_success_rate"`
	TimesUsed       int     `json:"times_used"`
}

// EffectivenessResult is the assessor's verdict on one execution.
type EffectivenessResult struct {
	WasEffective bool    `json:"was_effective"`
	Score        float64 `json:"score"`
	Reason       string  `json:"reason"`
}
