package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type settings struct {
	Port           int
	LogLevel       string
	LogFormat      string
	RedisAddr      string
	LockTTL        time.Duration
	HubCommitURL   string
	HubCommitToken string
	ActionsToken   string
	RecordRequests bool
}

func loadSettings() (settings, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("mailjet_relay_port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("redis_addr", "")
	v.SetDefault("lock_ttl", "30s")
	v.SetDefault("hub_commit_url", "")
	v.SetDefault("hub_commit_token", "")
	v.SetDefault("actions_token", "")
	v.SetDefault("record_requests", false)

	s := settings{
		Port:           v.GetInt("mailjet_relay_port"),
		LogLevel:       strings.ToLower(strings.TrimSpace(v.GetString("log_level"))),
		LogFormat:      strings.ToLower(strings.TrimSpace(v.GetString("log_format"))),
		RedisAddr:      strings.TrimSpace(v.GetString("redis_addr")),
		LockTTL:        v.GetDuration("lock_ttl"),
		HubCommitURL:   strings.TrimSpace(v.GetString("hub_commit_url")),
		HubCommitToken: strings.TrimSpace(v.GetString("hub_commit_token")),
		ActionsToken:   strings.TrimSpace(v.GetString("actions_token")),
		RecordRequests: v.GetBool("record_requests"),
	}

	if s.Port <= 0 || s.Port > 65535 {
		return settings{}, fmt.Errorf("invalid MAILJET_RELAY_PORT: %d", s.Port)
	}
	if s.HubCommitURL == "" {
		return settings{}, fmt.Errorf("HUB_COMMIT_URL is required")
	}
	if s.LockTTL <= 0 {
		return settings{}, fmt.Errorf("invalid LOCK_TTL: %s", s.LockTTL)
	}
	switch s.LogFormat {
	case "json", "console":
	default:
		return settings{}, fmt.Errorf("invalid LOG_FORMAT: %q expected json or console", s.LogFormat)
	}

	return s, nil
}
