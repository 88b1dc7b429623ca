// Package config handles application configuration from environment variables
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration.
//
// The knowledge base (DATABASE_URL) is the only hard requirement: without
// it the engine has no retrieval or execution log at all. LLM, Mem0 and
// Redis are optional collaborators; when absent the engine runs on its
// deterministic fallbacks.
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisAddr   string `env:"REDIS_ADDR"`

	LLMAPIKey         string `env:"LLM_API_KEY"`
	LLMEndpoint       string `env:"LLM_ENDPOINT" envDefault:"https://api.openai.com/v1"`
	LLMModel          string `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	LLMEmbeddingModel string `env:"LLM_EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`

	Mem0APIKey  string `env:"MEM0_API_KEY"`
	Mem0BaseURL string `env:"MEM0_BASE_URL" envDefault:"https://api.mem0.ai/v1"`
}

// Load reads configuration from environment variables.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// HasLLM returns true if the text-generation collaborator is configured.
func (c Config) HasLLM() bool {
	return c.LLMAPIKey != ""
}

// HasMem0 returns true if the personalization store is configured.
func (c Config) HasMem0() bool {
	return c.Mem0APIKey != ""
}

// HasRedis returns true if Redis is configured (shared cache + task queue).
func (c Config) HasRedis() bool {
	return c.RedisAddr != ""
}

// Validate ensures required configuration is present.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required - the engine cannot start without the knowledge base")
	}
	return nil
}
