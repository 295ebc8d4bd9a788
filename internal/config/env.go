package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override the file.
const (
	EnvBotToken = "BOT_TOKEN"
	EnvAPIID    = "API_ID"
	EnvAPIHash  = "API_HASH"
	EnvDB       = "POSTBOT_DB"
)

// LoadDotEnv loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays the environment on cfg. POSTBOT_DB is a file path for
// sqlite and a DSN for postgres.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	if v := strings.TrimSpace(getenv(EnvBotToken)); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(getenv(EnvAPIID)); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvAPIID, err)
		}
		cfg.MTProto.APIID = id
	}
	if v := strings.TrimSpace(getenv(EnvAPIHash)); v != "" {
		cfg.MTProto.APIHash = v
	}
	if v := strings.TrimSpace(getenv(EnvDB)); v != "" {
		switch strings.ToLower(cfg.Storage.Driver) {
		case "postgres", "postgresql", "pg":
			cfg.Storage.DSN = v
		default:
			cfg.Storage.Path = v
		}
	}
	return nil
}
