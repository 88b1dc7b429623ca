// cmd/worker/main.go
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/coachrag/internal/config"
	"github.com/briangreenhill/coachrag/internal/engine"
	"github.com/briangreenhill/coachrag/internal/jobs"
	"github.com/briangreenhill/coachrag/internal/kb"
	"github.com/briangreenhill/coachrag/internal/llm"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config error: %v", err)
	}
	if !cfg.HasRedis() {
		log.Fatal("REDIS_ADDR is required for the worker")
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "worker").Logger()

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db error: %v", err)
	}
	defer pool.Close()
	store := kb.NewPostgres(pool)

	opts := []engine.Option{engine.WithLogger(logger)}
	if cfg.HasLLM() {
		opts = append(opts, engine.WithLLM(llm.New(cfg.LLMAPIKey, cfg.LLMModel,
			llm.WithEndpoint(cfg.LLMEndpoint),
			llm.WithEmbeddingModel(cfg.LLMEmbeddingModel))))
	}
	eng, err := engine.New(store, opts...)
	if err != nil {
		log.Fatalf("engine error: %v", err)
	}

	srv := asynq.NewServer(asynq.RedisClientOpt{Addr: cfg.RedisAddr}, asynq.Config{
		Concurrency: 8,
		Queues: map[string]int{
			"default": 5,
		},
	})
	mux := asynq.NewServeMux()

	mux.HandleFunc(jobs.TaskOutcomeCheck, func(ctx context.Context, t *asynq.Task) error {
		var p jobs.OutcomeCheckPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			logger.Error().Err(err).Msg("bad outcome-check payload")
			return nil // malformed payloads never become valid
		}
		if _, err := uuid.Parse(p.ExecutionID); err != nil {
			logger.Error().Str("execution_id", p.ExecutionID).Msg("bad execution id in payload")
			return nil
		}

		pending, err := store.OutcomePending(ctx, p.ExecutionID)
		if err != nil {
			return err // transient DB failure, retry
		}
		if pending {
			// The self-learning loop starves quietly when outcomes never
			// arrive; make it visible.
			logger.Warn().
				Str("execution_id", p.ExecutionID).
				Str("user_id", p.UserID).
				Msg("strategy execution still awaiting outcome")
		}
		return nil
	})

	mux.HandleFunc(jobs.TaskEmbedBackfill, func(ctx context.Context, t *asynq.Task) error {
		var p jobs.EmbedBackfillPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			logger.Error().Err(err).Msg("bad embed-backfill payload")
			return nil
		}

		count, err := eng.BackfillEmbeddings(ctx, p.StrategyID)
		if err != nil {
			if !cfg.HasLLM() {
				logger.Error().Msg("embed backfill requires LLM configuration (dropping job)")
				return nil
			}
			return err
		}
		logger.Info().Int("count", count).Msg("embed backfill complete")
		return nil
	})

	logger.Info().Msg("worker running")
	log.Fatal(srv.Run(mux))
}
