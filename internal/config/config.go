package config

import (
	"time"

	"github.com/caarlos0/env/v6"
)

type Config struct {
	Addr   string `env:"ADDR" envDefault:":8100"`
	DBPath string `env:"DB_PATH" envDefault:"finker.db"`

	// LLM settings
	OpenAIAPIKey   string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL  string        `env:"OPENAI_BASE_URL"`
	OpenAIModel    string        `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	LLMTimeout     time.Duration `env:"LLM_TIMEOUT" envDefault:"60s"`
	LLMMaxTokens   int           `env:"LLM_MAX_TOKENS" envDefault:"1024"`
	LLMTemperature float64       `env:"LLM_TEMPERATURE" envDefault:"0.7"`

	// Sessions
	SessionSecret string        `env:"SESSION_SECRET,required"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"24h"`
}

func New() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
