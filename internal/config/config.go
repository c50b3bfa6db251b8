package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Addr          string
	APIBaseURL    string
	StoragePath   string
	LogLevel      string
	LogColor      bool
	APITimeout    time.Duration
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	SecureCookies bool
	Location      *time.Location
}

// Defaults are the values written by `hrsuite setup`.
var Defaults = map[string]string{
	"CLIENT_ADDR":    ":3000",
	"API_BASE_URL":   "http://localhost:5000",
	"STORAGE_PATH":   "data/hrsuite.db",
	"LOG_LEVEL":      "info",
	"LOG_COLOR":      "true",
	"API_TIMEOUT":    "8s",
	"SECURE_COOKIES": "false",
	"TIMEZONE":       "Local",
}

// FromEnv reads the configuration from the process environment, falling
// back to Defaults.
func FromEnv() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	for key, value := range Defaults {
		v.SetDefault(key, value)
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Addr:          strings.TrimSpace(v.GetString("CLIENT_ADDR")),
		APIBaseURL:    strings.TrimRight(strings.TrimSpace(v.GetString("API_BASE_URL")), "/"),
		StoragePath:   strings.TrimSpace(v.GetString("STORAGE_PATH")),
		LogLevel:      v.GetString("LOG_LEVEL"),
		LogColor:      v.GetBool("LOG_COLOR"),
		APITimeout:    v.GetDuration("API_TIMEOUT"),
		ReadTimeout:   5 * time.Second,
		WriteTimeout:  30 * time.Second,
		SecureCookies: v.GetBool("SECURE_COOKIES"),
	}

	if u, err := url.Parse(cfg.APIBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return Config{}, fmt.Errorf("API_BASE_URL %q must be an absolute URL", cfg.APIBaseURL)
	}
	if cfg.Addr == "" {
		return Config{}, fmt.Errorf("CLIENT_ADDR must not be empty")
	}
	if cfg.StoragePath == "" {
		return Config{}, fmt.Errorf("STORAGE_PATH must not be empty")
	}
	if cfg.APITimeout <= 0 {
		cfg.APITimeout = 8 * time.Second
	}

	loc, err := time.LoadLocation(strings.TrimSpace(v.GetString("TIMEZONE")))
	if err != nil {
		return Config{}, fmt.Errorf("TIMEZONE: %w", err)
	}
	cfg.Location = loc
	return cfg, nil
}
