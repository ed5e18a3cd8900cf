// Package config resolves Hadron's runtime configuration from environment
// variables, with an optional YAML file layered beneath for tuning knobs the
// environment does not cover.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Equities websocket endpoints by feed mode. EQUITIES_WS_URL overrides both.
const (
	equitiesRealtimeURL = "wss://socket.massive.com/stocks"
	equitiesDelayedURL  = "wss://delayed.massive.com/stocks"

	defaultPredictionWSURL = "wss://api.elections.kalshi.com/trade-api/ws/v2"
)

// defaultEquitiesTickers is the subscription set used when EQUITIES_TICKERS
// is not configured.
var defaultEquitiesTickers = []string{"AAPL", "MSFT", "GOOGL", "AMZN", "TSLA"}

// Config is the fully resolved runtime configuration for a Hadron process.
type Config struct {
	DatabaseURL string
	Port        string

	EquitiesWSMode  string
	EquitiesWSURL   string
	EquitiesTickers []string

	PredictionMarketWSURL string

	SimulationMode bool
	ShardCount     int

	Tuning Tuning
}

// Tuning holds performance knobs that may be overridden by an optional YAML
// file but are never required for correct operation. FanoutBufferSize,
// RecorderBatchSize and RecorderFlushTick are applied by cmd/hadron;
// EngineQueueDepth and ReconnectBackoff are parsed but not applied (shard
// queues use the router's default capacities and the ingest reconnect floor
// is a fixed 5 seconds).
type Tuning struct {
	FanoutBufferSize  int           `yaml:"fanoutBufferSize"`
	EngineQueueDepth  int           `yaml:"engineQueueDepth"`
	ReconnectBackoff  time.Duration `yaml:"reconnectBackoff"`
	RecorderBatchSize int           `yaml:"recorderBatchSize"`
	RecorderFlushTick time.Duration `yaml:"recorderFlushTick"`
}

func defaultTuning() Tuning {
	return Tuning{
		FanoutBufferSize:  1024,
		EngineQueueDepth:  256,
		ReconnectBackoff:  5 * time.Second,
		RecorderBatchSize: 100,
		RecorderFlushTick: 5 * time.Second,
	}
}

// Load resolves configuration from the environment, optionally layering a
// YAML tuning file underneath. Environment variables always take precedence.
func Load(tuningPath string) (Config, error) {
	cfg := Config{
		Tuning: defaultTuning(),
	}

	if tuningPath != "" {
		if err := loadTuningFile(tuningPath, &cfg.Tuning); err != nil {
			return Config{}, err
		}
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return Config{}, fmt.Errorf("config: DATABASE_URL is required")
	}

	cfg.Port = envOrDefault("PORT", "8080")

	cfg.EquitiesWSMode = envOrDefault("EQUITIES_WS_MODE", "delayed")
	switch cfg.EquitiesWSMode {
	case "realtime":
		cfg.EquitiesWSURL = equitiesRealtimeURL
	case "delayed":
		cfg.EquitiesWSURL = equitiesDelayedURL
	default:
		return Config{}, fmt.Errorf("config: EQUITIES_WS_MODE must be realtime or delayed, got %q", cfg.EquitiesWSMode)
	}
	if override := strings.TrimSpace(os.Getenv("EQUITIES_WS_URL")); override != "" {
		cfg.EquitiesWSURL = override
	}
	cfg.EquitiesTickers = defaultEquitiesTickers
	if tickers := strings.TrimSpace(os.Getenv("EQUITIES_TICKERS")); tickers != "" {
		cfg.EquitiesTickers = strings.Split(tickers, ",")
	}

	cfg.PredictionMarketWSURL = envOrDefault("PREDICTION_WS_URL", defaultPredictionWSURL)

	simMode, err := boolEnv("SIMULATION_MODE", true)
	if err != nil {
		return Config{}, err
	}
	cfg.SimulationMode = simMode

	shards, err := intEnv("SHARD_COUNT", 1)
	if err != nil {
		return Config{}, err
	}
	if shards < 1 {
		return Config{}, fmt.Errorf("config: SHARD_COUNT must be >= 1, got %d", shards)
	}
	cfg.ShardCount = shards

	return cfg, nil
}

func loadTuningFile(path string, out *Tuning) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read tuning file: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config: parse tuning file: %w", err)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func boolEnv(key string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("config: %s must be a boolean: %w", key, err)
	}
	return v, nil
}

func intEnv(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer: %w", key, err)
	}
	return v, nil
}
