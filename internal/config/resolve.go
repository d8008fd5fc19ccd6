package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"crossbot/internal/announce"
	"crossbot/internal/catchup"
	"crossbot/internal/roster"
	"crossbot/internal/schedule"
	"crossbot/internal/source/httpapi"
	"crossbot/internal/storage"
	"crossbot/pkg/logx"
)

const (
	DriverTelegram = "telegram"
	DriverLog      = "log"

	DefaultErrorLog    = "error_catchup.txt"
	DefaultStoragePath = "data/queue.txt"
)

func (c *Config) ResolveLogging() logx.Config {
	l := c.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console || !l.File.Enabled,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Telegram: logx.TelegramConfig{
			Enabled:    l.Telegram.Enabled,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

func (c *Config) ResolveStorage() (storage.Config, error) {
	s := c.Storage
	busy, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	path := strings.TrimSpace(s.Path)
	if path == "" {
		path = DefaultStoragePath
	}
	return storage.Config{Driver: strings.ToLower(strings.TrimSpace(s.Driver)), Path: path, BusyTimeout: busy}, nil
}

func (c *Config) ResolveSource() (httpapi.Config, error) {
	s := c.Source
	base, err := ParseDurationField("source.retry_base", s.RetryBase)
	if err != nil {
		return httpapi.Config{}, err
	}
	maxDelay, err := ParseDurationField("source.retry_max_delay", s.RetryMaxDelay)
	if err != nil {
		return httpapi.Config{}, err
	}
	timeout, err := ParseDurationField("source.timeout", s.Timeout)
	if err != nil {
		return httpapi.Config{}, err
	}
	retries := s.RetryMax
	if retries == 0 {
		retries = 3
	}
	return httpapi.Config{
		BaseURL:       s.BaseURL,
		BearerToken:   s.BearerToken,
		UserToken:     s.UserToken,
		PageSize:      s.PageSize,
		RatePerSec:    s.RatePerSec,
		RetryMax:      retries,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
		Timeout:       timeout,
	}, nil
}

func (c *Config) ResolveCatchup() (catchup.Settings, error) {
	def := catchup.DefaultSettings()
	k := c.Catchup
	rl, err := ParseDurationOrDefault("catchup.rate_limit", k.RateLimit, def.RateLimit)
	if err != nil {
		return catchup.Settings{}, err
	}
	warn, err := ParseDurationOrDefault("catchup.warning", k.Warning, def.Warning)
	if err != nil {
		return catchup.Settings{}, err
	}
	if warn > rl {
		return catchup.Settings{}, fmt.Errorf("catchup.warning (%s) exceeds catchup.rate_limit (%s)", warn, rl)
	}
	cool, err := ParseDurationOrDefault("catchup.post_cooldown", k.PostCooldown, def.PostCooldown)
	if err != nil {
		return catchup.Settings{}, err
	}
	return catchup.Settings{RateLimit: rl, Warning: warn, PostCooldown: cool}, nil
}

func (c *Config) ErrorLogPath() string {
	if p := strings.TrimSpace(c.Catchup.ErrorLog); p != "" {
		return p
	}
	return DefaultErrorLog
}

func (c *Config) ResolveRoster() (*roster.Roster, error) {
	accounts := make([]roster.Account, 0, len(c.Roster.Accounts))
	for _, a := range c.Roster.Accounts {
		accounts = append(accounts, roster.Account{ID: a.ID, Handle: a.Handle, Tag: a.Tag, Private: a.Private})
	}
	var pairs []roster.Pair
	for _, x := range c.Roster.Cross {
		pairs = append(pairs, roster.Pair{From: x.From, To: x.To})
		if x.Both && x.From != x.To {
			pairs = append(pairs, roster.Pair{From: x.To, To: x.From})
		}
	}
	return roster.New(accounts, pairs)
}

func (c *Config) AnnounceDriver() string {
	return strings.ToLower(strings.TrimSpace(c.Announce.Driver))
}

func (c *Config) ResolveTelegram() (announce.TelegramConfig, error) {
	t := c.Announce.Telegram
	timeout, err := ParseDurationField("announce.telegram.timeout", t.Timeout)
	if err != nil {
		return announce.TelegramConfig{}, err
	}
	return announce.TelegramConfig{
		Token:     t.Token,
		ChatID:    t.ChatID,
		ThreadID:  t.ThreadID,
		LogChatID: c.Logging.Telegram.ChatID,
		Timeout:   timeout,
	}, nil
}

// ResolveSchedule parses schedule.spec. ok is false when watch mode has
// no schedule configured.
func (c *Config) ResolveSchedule() (spec schedule.Spec, loc *time.Location, ok bool, err error) {
	raw := strings.TrimSpace(c.Schedule.Spec)
	if raw == "" {
		return schedule.Spec{}, nil, false, nil
	}
	spec, err = schedule.Parse(raw)
	if err != nil {
		return schedule.Spec{}, nil, false, fmt.Errorf("schedule.spec: %w", err)
	}
	loc = time.Local
	if tz := strings.TrimSpace(c.Schedule.Timezone); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return schedule.Spec{}, nil, false, fmt.Errorf("schedule.timezone: %w", err)
		}
	}
	return spec, loc, true, nil
}

// Validate checks everything a run needs. All problems are reported at once.
func Validate(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	st, err := c.ResolveStorage()
	add(err)
	switch st.Driver {
	case "", "file", "sqlite", "sqlite3":
	default:
		add(fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}

	src, err := c.ResolveSource()
	add(err)
	if strings.TrimSpace(src.BaseURL) == "" {
		add(errors.New("source.base_url is required"))
	}
	if strings.TrimSpace(src.BearerToken) == "" {
		add(fmt.Errorf("source.bearer_token is required (or set %s)", EnvSourceToken))
	}

	switch c.AnnounceDriver() {
	case DriverTelegram:
		tg, err := c.ResolveTelegram()
		add(err)
		if strings.TrimSpace(tg.Token) == "" {
			add(fmt.Errorf("announce.telegram.token is required (or set %s)", EnvTelegramToken))
		}
		if tg.ChatID == 0 {
			add(errors.New("announce.telegram.chat_id is required"))
		}
	case DriverLog:
	case "":
		add(errors.New("announce.driver is required (telegram or log)"))
	default:
		add(fmt.Errorf("announce.driver: unknown driver %q", c.Announce.Driver))
	}
	if c.Logging.Telegram.Enabled && c.AnnounceDriver() != DriverTelegram {
		add(errors.New("logging.telegram requires announce.driver telegram"))
	}

	_, err = c.ResolveCatchup()
	add(err)
	_, err = c.ResolveRoster()
	add(err)
	_, _, _, err = c.ResolveSchedule()
	add(err)

	return errors.Join(errs...)
}
