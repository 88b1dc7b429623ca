// cmd/api/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/briangreenhill/coachrag/internal/cache"
	"github.com/briangreenhill/coachrag/internal/config"
	"github.com/briangreenhill/coachrag/internal/engine"
	"github.com/briangreenhill/coachrag/internal/http/routes"
	"github.com/briangreenhill/coachrag/internal/kb"
	"github.com/briangreenhill/coachrag/internal/llm"
	"github.com/briangreenhill/coachrag/internal/mem0"
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

	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// DB (knowledge base)
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
	} else {
		logger.Warn().Msg("LLM not configured; running on deterministic fallbacks")
	}

	if cfg.HasMem0() {
		mc, err := mem0.New(cfg.Mem0APIKey, mem0.WithBaseURL(cfg.Mem0BaseURL))
		if err != nil {
			log.Fatalf("mem0 error: %v", err)
		}
		opts = append(opts, engine.WithMemory(mc))
	}

	var tasks *asynq.Client
	if cfg.HasRedis() {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		opts = append(opts, engine.WithCache(cache.NewRedis(rdb, "coachrag:")))
		tasks = asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer tasks.Close()
	}

	eng, err := engine.New(store, opts...)
	if err != nil {
		log.Fatalf("engine error: %v", err)
	}

	s := routes.New(routes.ServerOptions{Engine: eng, Tasks: tasks, Log: logger})
	h := hlog.NewHandler(logger)(s.Router)

	logger.Info().Str("port", cfg.Port).Msg("starting api")
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: h}
	log.Fatal(srv.ListenAndServe())
}
