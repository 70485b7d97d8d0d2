// Package config loads server settings from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr string `env:"ADDR" envDefault:":8080"`

	// GameDuration is the countdown per session.
	GameDuration time.Duration `env:"GAME_DURATION" envDefault:"5m"`
	// TickInterval drives the authority's expiry checks.
	TickInterval time.Duration `env:"TICK_INTERVAL" envDefault:"250ms"`
	// WriteTimeout bounds a single websocket write to a peer.
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"3s"`

	// DatabaseURL enables the session-history archive when set.
	DatabaseURL string `env:"DATABASE_URL"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

func Load() (Config, error) {
	// Missing .env is fine; the environment may carry everything.
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.GameDuration <= 0 {
		return Config{}, fmt.Errorf("GAME_DURATION must be positive, got %v", cfg.GameDuration)
	}
	if cfg.TickInterval <= 0 {
		return Config{}, fmt.Errorf("TICK_INTERVAL must be positive, got %v", cfg.TickInterval)
	}
	return cfg, nil
}
