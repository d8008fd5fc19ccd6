package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"

	"crossbot/pkg/logx"
)

const (
	EnvConfigPath    = "CROSSBOT_CONFIG"
	EnvTelegramToken = "CROSSBOT_TELEGRAM_TOKEN"
	EnvSourceToken   = "CROSSBOT_SOURCE_TOKEN"
	EnvUserToken     = "CROSSBOT_SOURCE_USER_TOKEN"
)

// LoadEnv loads .env files from the working directory, if present. Values
// already in the process environment win.
func LoadEnv(log logx.Logger, files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var loaded []string
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			log.Warn("failed to load env file", logx.String("file", file), logx.Err(err))
			continue
		}
		loaded = append(loaded, file)
	}
	if len(loaded) > 0 {
		log.Debug("loaded env files", logx.String("files", strings.Join(loaded, ", ")))
	}
}

// ApplyEnv fills secrets from the environment. Non-empty variables override
// the file.
func ApplyEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	if v := strings.TrimSpace(os.Getenv(EnvTelegramToken)); v != "" {
		cfg.Announce.Telegram.Token = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvSourceToken)); v != "" {
		cfg.Source.BearerToken = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvUserToken)); v != "" {
		cfg.Source.UserToken = v
	}
}

// PathFromEnv returns def unless CROSSBOT_CONFIG is set.
func PathFromEnv(def string) string {
	if v := strings.TrimSpace(os.Getenv(EnvConfigPath)); v != "" {
		return v
	}
	return def
}
