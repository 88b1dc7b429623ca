// Package kb is the client for the coaching knowledge base: strategy
// retrieval (vector and non-vector), per-user strategy history, and the
// execution/outcome log. The schema and SQL functions are owned by the KB;
// this package only calls them.
package kb

import (
	"context"

	"github.com/briangreenhill/coachrag/internal/model"
)

// Strategy is one knowledge-base row as returned by the retrieval functions.
// Similarity is nil on the non-vector path.
type Strategy struct {
	ID                    string
	Title                 string
	StrategyText          string
	ConditionsToUse       string
	WhenNotToUse          string
	Tags                  []string
	TimesUsed             int
	SuccessRate           float64
	AvgEffectivenessScore float64
	Similarity            *float64
}

// SemanticSearchParams scope a vector similarity search.
type SemanticSearchParams struct {
	Embedding      []float64
	Distance       string  // "casual", "5k", "10k", "half", "full"
	RunnerLevel    string  // "beginner", "intermediate", "advanced"
	StrategyType   *string // nil = both core and micro
	MatchThreshold float64
	MatchCount     int
}

// QueryParams scope a non-vector retrieval query.
type QueryParams struct {
	Distance     string
	RunnerLevel  string
	StrategyType *string
	MatchCount   int
}

// ExecutionParams record a delivered strategy.
type ExecutionParams struct {
	UserID            string
	RunID             string // optional
	StrategyID        string // empty for static-fallback strategies
	ExecutionContext  model.ExecutionContext
	StrategyDelivered string
}

// OutcomeParams close the loop on a recorded execution.
type OutcomeParams struct {
	ExecutionID         string
	OutcomeMetrics      model.Metrics
	WasEffective        bool
	EffectivenessScore  float64
	EffectivenessReason string
}

// EmbeddingCandidate is a KB strategy still missing its embedding.
type EmbeddingCandidate struct {
	ID              string
	Title           string
	StrategyText    string
	ConditionsToUse string
	WhenNotToUse    string
	Distance        string
	Type            string
	RunnerLevel     string
}

// Store is the knowledge-base boundary consumed by the engine.
type Store interface {
	SemanticSearch(ctx context.Context, p SemanticSearchParams) ([]Strategy, error)
	Query(ctx context.Context, p QueryParams) ([]Strategy, error)
	UserTopStrategies(ctx context.Context, userID string, limit int) ([]model.UserStrategyStat, error)
	RecordExecution(ctx context.Context, p ExecutionParams) (string, error)
	RecordOutcome(ctx context.Context, p OutcomeParams) error
	OutcomePending(ctx context.Context, executionID string) (bool, error)
	StrategiesMissingEmbedding(ctx context.Context, strategyID string) ([]EmbeddingCandidate, error)
	UpdateStrategyEmbedding(ctx context.Context, strategyID string, embedding []float64) error
}
