// Package engine implements the adaptive coaching strategy pipeline:
// situation classification, multi-stage strategy retrieval, LLM condition
// reranking, personalization, selection, and the execution/outcome loop
// that feeds effectiveness back into the knowledge base.
//
// Every collaborator except the knowledge base is optional. A missing or
// failing collaborator never surfaces to the caller; each stage degrades to
// its deterministic fallback so a request always produces a directive.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/briangreenhill/coachrag/internal/cache"
	"github.com/briangreenhill/coachrag/internal/kb"
	"github.com/briangreenhill/coachrag/internal/llm"
	"github.com/briangreenhill/coachrag/internal/mem0"
	"github.com/briangreenhill/coachrag/internal/model"
)

var (
	// ErrNotConfigured means the engine is missing its required
	// knowledge-base store. Fatal at startup, never mid-pipeline.
	ErrNotConfigured = errors.New("engine: knowledge-base store not configured")

	// ErrExecutionNotFound means an outcome call referenced an execution id
	// that is not pending (unknown, or already assessed).
	ErrExecutionNotFound = errors.New("engine: execution not found")
)

const (
	defaultCallTimeout = 30 * time.Second
	cacheTTL           = 5 * time.Minute
	maxCandidates      = 15 // retrieval fan-in, before reranking
	maxReranked        = 8  // reranker fan-out
	similarityFloor    = 0.65
)

// ChatCompleter is the text-generation collaborator surface the engine uses.
type ChatCompleter interface {
	ChatCompletion(ctx context.Context, messages []llm.Message, opts llm.ChatOptions) (string, error)
}

// Embedder turns a situation description into a vector for semantic search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// MemorySearcher is the personalization store surface.
type MemorySearcher interface {
	Search(ctx context.Context, query, userID string, limit int) ([]mem0.SearchResult, error)
}

// Engine runs the strategy pipeline. Safe for concurrent use; the strategy
// cache and the pending-execution store are the only shared state.
type Engine struct {
	kb    kb.Store
	chat  ChatCompleter
	embed Embedder
	mem   MemorySearcher
	cache cache.Cache

	pending     *pendingStore
	callTimeout time.Duration
	log         zerolog.Logger
}

type Option func(*Engine)

// WithLLM wires the text-generation collaborator, used for condition
// reranking, strategy selection, and situation embeddings.
func WithLLM(client *llm.Client) Option {
	return func(e *Engine) {
		if client != nil {
			e.chat = client
			e.embed = client
		}
	}
}

// WithMemory wires the personalization store.
func WithMemory(m MemorySearcher) Option {
	return func(e *Engine) { e.mem = m }
}

// WithCache overrides the retrieval cache backend.
func WithCache(c cache.Cache) Option {
	return func(e *Engine) {
		if c != nil {
			e.cache = c
		}
	}
}

// WithCallTimeout bounds each outbound collaborator call.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.callTimeout = d
		}
	}
}

// WithLogger attaches a logger; the default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// New creates an Engine. The knowledge-base store is required; everything
// else is optional and enables a richer path when present.
func New(store kb.Store, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, ErrNotConfigured
	}

	e := &Engine{
		kb:          store,
		cache:       cache.NewMemory(),
		pending:     newPendingStore(),
		callTimeout: defaultCallTimeout,
		log:         zerolog.Nop(),
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// AdaptiveStrategyRequest is one coaching tick.
type AdaptiveStrategyRequest struct {
	Snapshot    model.PerformanceSnapshot `json:"performance_analysis"`
	Personality model.CoachPersonality    `json:"personality"`
	Energy      model.CoachEnergy         `json:"energy_level"`
	UserID      string                    `json:"user_id"`
	RunID       string                    `json:"run_id,omitempty"`
}

// AdaptiveStrategy is the main entry point: derive the situation, retrieve
// and rerank candidate strategies, blend in personalization, select and
// adapt a final directive, and record the execution for outcome tracking.
//
// The only error it returns is context cancellation; collaborator failures
// degrade to fallbacks instead.
func (e *Engine) AdaptiveStrategy(ctx context.Context, req AdaptiveStrategyRequest) (*model.AdaptiveStrategyOutput, error) {
	snap := &req.Snapshot

	sctx := BuildSituationContext(snap, req.Personality, req.Energy)
	e.log.Debug().
		Str("user_id", req.UserID).
		Str("pace_trend", string(sctx.PaceTrend)).
		Str("hr_trend", string(sctx.HRTrend)).
		Str("fatigue", string(sctx.FatigueLevel)).
		Strs("tags", sctx.SituationTags).
		Msg("situation context built")

	situation := describeSituation(sctx, snap)

	candidates := e.retrieveStrategies(ctx, sctx, snap, situation)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ranked := e.rerankConditions(ctx, candidates, situation)
	memories := e.fetchMemories(ctx, req.UserID, sctx)
	topStats := e.userTopStrategies(ctx, req.UserID)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := e.selectStrategy(ctx, sctx, snap, ranked, memories, topStats)

	e.recordExecution(ctx, req.UserID, req.RunID, out, sctx, snap)

	e.log.Info().
		Str("user_id", req.UserID).
		Str("strategy", out.StrategyName).
		Float64("confidence", out.ConfidenceScore).
		Str("execution_id", out.ExecutionID).
		Msg("adaptive strategy delivered")
	return out, nil
}

// userTopStrategies fetches the user's historically best strategies.
// Failures just mean an emptier prompt.
func (e *Engine) userTopStrategies(ctx context.Context, userID string) []model.UserStrategyStat {
	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	stats, err := e.kb.UserTopStrategies(callCtx, userID, 5)
	if err != nil {
		e.log.Warn().Err(err).Str("user_id", userID).Msg("user top strategies unavailable")
		return nil
	}
	return stats
}

// BackfillEmbeddings embeds KB strategies missing vectors and stores them.
// strategyID narrows the backfill to one strategy; empty means all missing.
// Returns the number of embeddings stored.
func (e *Engine) BackfillEmbeddings(ctx context.Context, strategyID string) (int, error) {
	if e.embed == nil {
		return 0, errors.New("embedding collaborator not configured")
	}

	candidates, err := e.kb.StrategiesMissingEmbedding(ctx, strategyID)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, c := range candidates {
		text := embeddingText(c)

		callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
		emb, err := e.embed.Embed(callCtx, text)
		cancel()
		if err != nil {
			e.log.Warn().Err(err).Str("strategy_id", c.ID).Msg("embedding generation failed")
			continue
		}

		if err := e.kb.UpdateStrategyEmbedding(ctx, c.ID, emb); err != nil {
			e.log.Warn().Err(err).Str("strategy_id", c.ID).Msg("embedding store failed")
			continue
		}
		count++
	}

	e.log.Info().Int("count", count).Int("candidates", len(candidates)).Msg("embedding backfill done")
	return count, nil
}
