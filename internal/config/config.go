package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

type Config struct {
	DBPath         string
	ServerPort     string
	LogLevel       string
	PushGatewayURL string
	PushAPIKey     string

	// BattleRunHour is the local (JST) hour at which the daily battle
	// aggregation fires. The original product runs at midnight.
	BattleRunHour int
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		DBPath:         getEnv("DB_PATH", "miniquest.db"),
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		PushGatewayURL: getEnv("PUSH_GATEWAY_URL", ""),
		PushAPIKey:     getEnv("PUSH_API_KEY", ""),
		BattleRunHour:  0,
	}

	if raw := os.Getenv("BATTLE_RUN_HOUR"); raw != "" {
		hour, err := strconv.Atoi(raw)
		if err != nil || hour < 0 || hour > 23 {
			return nil, fmt.Errorf("invalid BATTLE_RUN_HOUR %q", raw)
		}
		cfg.BattleRunHour = hour
	}

	if cfg.PushGatewayURL == "" {
		return nil, fmt.Errorf("PUSH_GATEWAY_URL is required")
	}

	logger.Info().
		Str("db_path", cfg.DBPath).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Str("push_gateway_url", cfg.PushGatewayURL).
		Int("battle_run_hour", cfg.BattleRunHour).
		Msg("configuration loaded")

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
