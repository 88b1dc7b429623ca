package kb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/briangreenhill/coachrag/internal/model"
)

// Postgres implements Store against the KB's Postgres instance. Retrieval
// goes through SQL functions so index and embedding details stay on the KB
// side.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// vectorLiteral renders an embedding in pgvector's text format: [1,2,3].
func vectorLiteral(embedding []float64) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range embedding {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
	}
	b.WriteByte(']')
	return b.String()
}

func (s *Postgres) SemanticSearch(ctx context.Context, p SemanticSearchParams) ([]Strategy, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, strategy_text, conditions_to_use, when_not_to_use,
		       tags, times_used, success_rate, avg_effectiveness_score, similarity
		FROM semantic_search_strategies_kb($1::vector, $2, $3, $4, $5, $6)`,
		vectorLiteral(p.Embedding), p.Distance, p.RunnerLevel, p.StrategyType,
		p.MatchThreshold, p.MatchCount)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	defer rows.Close()
	return scanStrategies(rows, true)
}

func (s *Postgres) Query(ctx context.Context, p QueryParams) ([]Strategy, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, strategy_text, conditions_to_use, when_not_to_use,
		       tags, times_used, success_rate, avg_effectiveness_score
		FROM query_coaching_strategies_kb($1, $2, $3, NULL, $4)`,
		p.Distance, p.RunnerLevel, p.StrategyType, p.MatchCount)
	if err != nil {
		return nil, fmt.Errorf("query strategies: %w", err)
	}
	defer rows.Close()
	return scanStrategies(rows, false)
}

func scanStrategies(rows pgx.Rows, withSimilarity bool) ([]Strategy, error) {
	var out []Strategy
	for rows.Next() {
		var st Strategy
		dest := []any{
			&st.ID, &st.Title, &st.StrategyText, &st.ConditionsToUse,
			&st.WhenNotToUse, &st.Tags, &st.TimesUsed, &st.SuccessRate,
			&st.AvgEffectivenessScore,
		}
		if withSimilarity {
			dest = append(dest, &st.Similarity)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan strategy: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Postgres) UserTopStrategies(ctx context.Context, userID string, limit int) ([]model.UserStrategyStat, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT strategy_name, user_success_rate, times_used
		FROM get_user_top_strategies($1, $2)`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("user top strategies: %w", err)
	}
	defer rows.Close()

	var out []model.UserStrategyStat
	for rows.Next() {
		var st model.UserStrategyStat
		if err := rows.Scan(&st.StrategyName, &st.UserSuccessRate, &st.TimesUsed); err != nil {
			return nil, fmt.Errorf("scan user strategy: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Postgres) RecordExecution(ctx context.Context, p ExecutionParams) (string, error) {
	execCtx, err := json.Marshal(p.ExecutionContext)
	if err != nil {
		return "", fmt.Errorf("marshal execution context: %w", err)
	}

	var runID, strategyID *string
	if p.RunID != "" {
		runID = &p.RunID
	}
	if p.StrategyID != "" {
		strategyID = &p.StrategyID
	}

	var executionID string
	err = s.pool.QueryRow(ctx, `
		SELECT record_strategy_execution($1, $2, $3, $4::jsonb, $5)`,
		p.UserID, runID, strategyID, execCtx, p.StrategyDelivered).Scan(&executionID)
	if err != nil {
		return "", fmt.Errorf("record execution: %w", err)
	}
	return executionID, nil
}

func (s *Postgres) RecordOutcome(ctx context.Context, p OutcomeParams) error {
	metrics, err := json.Marshal(p.OutcomeMetrics)
	if err != nil {
		return fmt.Errorf("marshal outcome metrics: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		SELECT record_strategy_outcome($1, $2::jsonb, $3, $4, $5)`,
		p.ExecutionID, metrics, p.WasEffective, p.EffectivenessScore, p.EffectivenessReason)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	return nil
}

func (s *Postgres) OutcomePending(ctx context.Context, executionID string) (bool, error) {
	var pending bool
	err := s.pool.QueryRow(ctx, `
		SELECT NOT outcome_measured FROM strategy_executions WHERE id = $1`,
		executionID).Scan(&pending)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("outcome pending: %w", err)
	}
	return pending, nil
}

func (s *Postgres) StrategiesMissingEmbedding(ctx context.Context, strategyID string) ([]EmbeddingCandidate, error) {
	query := `
		SELECT id, title, strategy_text, conditions_to_use, when_not_to_use,
		       distance, type, runner_level
		FROM coaching_strategies_kb
		WHERE strategy_embedding IS NULL AND is_active`
	args := []any{}
	if strategyID != "" {
		query = `
		SELECT id, title, strategy_text, conditions_to_use, when_not_to_use,
		       distance, type, runner_level
		FROM coaching_strategies_kb
		WHERE id = $1`
		args = append(args, strategyID)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("strategies missing embedding: %w", err)
	}
	defer rows.Close()

	var out []EmbeddingCandidate
	for rows.Next() {
		var c EmbeddingCandidate
		if err := rows.Scan(&c.ID, &c.Title, &c.StrategyText, &c.ConditionsToUse,
			&c.WhenNotToUse, &c.Distance, &c.Type, &c.RunnerLevel); err != nil {
			return nil, fmt.Errorf("scan embedding candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Postgres) UpdateStrategyEmbedding(ctx context.Context, strategyID string, embedding []float64) error {
	_, err := s.pool.Exec(ctx, `
		SELECT update_strategy_embedding_kb($1, $2::vector)`,
		strategyID, vectorLiteral(embedding))
	if err != nil {
		return fmt.Errorf("update strategy embedding: %w", err)
	}
	return nil
}
