package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	TelegramToken string
	DataFile      string
	SupabaseURL   string
	SupabaseKey   string
	ReminderTick  time.Duration
}

func LoadConfig() (*Config, error) {
	// .env необязателен: в облачной функции переменные приходят из окружения.
	_ = godotenv.Load()

	cfg := &Config{
		TelegramToken: os.Getenv("TELEGRAM_TOKEN"),
		DataFile:      os.Getenv("DATA_FILE"),
		SupabaseURL:   os.Getenv("SUPABASE_URL"),
		SupabaseKey:   os.Getenv("SUPABASE_KEY"),
		ReminderTick:  30 * time.Second,
	}

	if cfg.TelegramToken == "" {
		return nil, errors.New("TELEGRAM_TOKEN is not set")
	}
	if cfg.DataFile == "" {
		cfg.DataFile = "data.json"
	}
	if raw := os.Getenv("REMINDER_TICK"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			return nil, errors.New("REMINDER_TICK must be a positive number of seconds")
		}
		cfg.ReminderTick = time.Duration(seconds) * time.Second
	}

	return cfg, nil
}

// UseSupabase сообщает, настроено ли облачное хранилище.
func (c *Config) UseSupabase() bool {
	return c.SupabaseURL != "" && c.SupabaseKey != ""
}
