package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/briangreenhill/coachrag/internal/kb"
	"github.com/briangreenhill/coachrag/internal/model"
)

// pendingStore holds delivered-but-unassessed executions. The claim step
// makes delete-on-success atomic: concurrent assessors for the same id race
// on the claim, and exactly one wins.
type pendingStore struct {
	mu      sync.Mutex
	entries map[string]*pendingEntry
}

type pendingEntry struct {
	exec    model.StrategyExecution
	claimed bool
}

func newPendingStore() *pendingStore {
	return &pendingStore{entries: make(map[string]*pendingEntry)}
}

func (p *pendingStore) insert(exec model.StrategyExecution) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[exec.ID] = &pendingEntry{exec: exec}
}

// claim reserves an execution for one assessor. Returns false if the id is
// unknown or already claimed.
func (p *pendingStore) claim(id string) (model.StrategyExecution, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[id]
	if !ok || e.claimed {
		return model.StrategyExecution{}, false
	}
	e.claimed = true
	return e.exec, true
}

// unclaim releases a claim after a failed persist so a retry can succeed.
func (p *pendingStore) unclaim(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[id]; ok {
		e.claimed = false
	}
}

func (p *pendingStore) remove(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, id)
}

func (p *pendingStore) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// recordExecution submits the delivered directive to the KB and tracks it
// locally for outcome assessment. Failure is silent: the directive is still
// returned to the caller, just without an execution id.
func (e *Engine) recordExecution(ctx context.Context, userID, runID string, out *model.AdaptiveStrategyOutput, sctx model.SituationContext, snap *model.PerformanceSnapshot) {
	strategyID := ""
	if len(out.SourceStrategies) > 0 && out.SourceStrategies[0].Source != model.SourceFallback {
		strategyID = out.SourceStrategies[0].ID
	}

	execCtx := model.ExecutionContext{
		Pace:          snap.CurrentPace,
		HR:            snap.CurrentHR,
		Zone:          snap.CurrentZone,
		Fatigue:       sctx.FatigueLevel,
		TargetStatus:  sctx.TargetStatus,
		PaceTrend:     sctx.PaceTrend,
		HRTrend:       sctx.HRTrend,
		SituationTags: sctx.SituationTags,
	}

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	executionID, err := e.kb.RecordExecution(callCtx, kb.ExecutionParams{
		UserID:            userID,
		RunID:             runID,
		StrategyID:        strategyID,
		ExecutionContext:  execCtx,
		StrategyDelivered: out.StrategyText,
	})
	if err != nil {
		e.log.Warn().Err(err).Str("user_id", userID).Msg("execution recording failed")
		return
	}
	if ctx.Err() != nil {
		// Abandoned request: don't leave a pending entry nobody will assess.
		return
	}

	out.ExecutionID = executionID
	e.pending.insert(model.StrategyExecution{
		ID:                executionID,
		UserID:            userID,
		RunID:             runID,
		StrategyID:        strategyID,
		ExecutionContext:  execCtx,
		StrategyDelivered: out.StrategyText,
		ExecutedAt:        time.Now().UTC(),
	})
}

// AssessEffectiveness scores a recorded execution from before/after metrics,
// persists the outcome, and removes the pending entry. Returns
// ErrExecutionNotFound for an unknown or already-assessed execution id.
func (e *Engine) AssessEffectiveness(ctx context.Context, executionID string, before, after model.Metrics) (*model.EffectivenessResult, error) {
	exec, ok := e.pending.claim(executionID)
	if !ok {
		return nil, ErrExecutionNotFound
	}

	result, outcome := scoreEffectiveness(exec.ExecutionContext, before, after)

	if err := e.persistOutcome(ctx, executionID, kb.OutcomeParams{
		ExecutionID:         executionID,
		OutcomeMetrics:      outcome,
		WasEffective:        result.WasEffective,
		EffectivenessScore:  result.Score,
		EffectivenessReason: result.Reason,
	}); err != nil {
		// Persist failed; the assessment itself is still valid and the
		// execution stays pending for a retry.
		e.log.Warn().Err(err).Str("execution_id", executionID).Msg("outcome persistence failed")
	}

	return &result, nil
}

// RecordOutcome persists an externally assessed outcome for a pending
// execution. Returns ErrExecutionNotFound for unknown ids and the
// collaborator error on persistence failure.
func (e *Engine) RecordOutcome(ctx context.Context, executionID string, metrics model.Metrics, wasEffective bool, score float64, reason string) error {
	if _, ok := e.pending.claim(executionID); !ok {
		return ErrExecutionNotFound
	}

	return e.persistOutcome(ctx, executionID, kb.OutcomeParams{
		ExecutionID:         executionID,
		OutcomeMetrics:      metrics,
		WasEffective:        wasEffective,
		EffectivenessScore:  score,
		EffectivenessReason: reason,
	})
}

// persistOutcome writes the outcome through the KB and resolves the claim:
// removal on success, release on failure.
func (e *Engine) persistOutcome(ctx context.Context, executionID string, p kb.OutcomeParams) error {
	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	if err := e.kb.RecordOutcome(callCtx, p); err != nil {
		e.pending.unclaim(executionID)
		return err
	}

	e.pending.remove(executionID)
	e.log.Info().
		Str("execution_id", executionID).
		Bool("was_effective", p.WasEffective).
		Msg("strategy outcome recorded")
	return nil
}

// scoreEffectiveness applies the rule-based scorer: start at 0.5, add credit
// for each improvement the delivered context called for, clamp to [0,1].
func scoreEffectiveness(execCtx model.ExecutionContext, before, after model.Metrics) (model.EffectivenessResult, model.Metrics) {
	score := 0.5
	effective := false
	var reasons []string

	outcome := model.Metrics{}

	paceBefore, paceAfter := before["pace"], after["pace"]
	if paceBefore > 0 && paceAfter > 0 {
		change := paceAfter - paceBefore
		outcome["pace_change"] = change

		behind := execCtx.TargetStatus == model.TargetSlightlyBehind ||
			execCtx.TargetStatus == model.TargetWayBehind
		fatigued := execCtx.Fatigue == model.FatigueHigh || execCtx.Fatigue == model.FatigueSevere

		switch {
		case behind && change < -0.05: // got faster
			score += 0.3
			effective = true
			reasons = append(reasons, "Pace improved")
		case fatigued && change > -0.1 && change < 0.1: // held steady under fatigue
			score += 0.2
			effective = true
			reasons = append(reasons, "Pace stabilized during recovery")
		}
	}

	hrBefore, hrAfter := before["hr"], after["hr"]
	if hrBefore > 0 && hrAfter > 0 {
		change := hrAfter - hrBefore
		outcome["hr_change"] = change

		rising := execCtx.HRTrend == model.HRRising || execCtx.HRTrend == model.HRSpiking
		if rising && change < 3 {
			score += 0.2
			effective = true
			reasons = append(reasons, "HR stabilized")
		}
	}

	zoneBefore, zoneAfter := before["zone"], after["zone"]
	if zoneBefore > 0 && zoneAfter > 0 {
		outcome["zone_change"] = zoneAfter - zoneBefore
	}
	if hasTag(execCtx.SituationTags, "zone_too_high") && zoneAfter < zoneBefore {
		score += 0.2
		effective = true
		reasons = append(reasons, "Moved to lower zone")
	}

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}

	reason := "No significant improvement detected"
	if len(reasons) > 0 {
		reason = strings.Join(reasons, "; ")
	}

	return model.EffectivenessResult{WasEffective: effective, Score: score, Reason: reason}, outcome
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}
