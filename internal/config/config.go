// Package config collects every environment knob in one struct. godotenv is
// loaded by main before this runs; here we only read the environment.
package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr        string // listen address
	DatabaseURL string // empty switches to the in-memory store
	JWTSecret   string
	TokenTTL    time.Duration

	QuestionsPerGame int
	QuestionTimerSec int
	ChallengeTTL     time.Duration
}

func Load() Config {
	return Config{
		Addr:             getString("ADDR", ":8080"),
		DatabaseURL:      getString("DATABASE_URL", ""),
		JWTSecret:        getString("JWT_SECRET", "dev-secret-do-not-ship"),
		TokenTTL:         getDuration("TOKEN_TTL", 24*time.Hour),
		QuestionsPerGame: getInt("QUESTIONS_PER_GAME", 5),
		QuestionTimerSec: getInt("QUESTION_TIMER_SEC", 10),
		ChallengeTTL:     getDuration("CHALLENGE_TTL", time.Minute),
	}
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
