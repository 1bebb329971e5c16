package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/timnaher/ds8r/internal/stimulator"
)

var (
	validLogLevels  = []string{"trace", "debug", "info", "warn", "error"}
	validLogFormats = []string{"console", "json"}
	validAuthAlgs   = []string{"", "HS256", "RS256"}
)

// Validate checks the merged configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if cfg.Device.ID == "" {
		return fmt.Errorf("device id must not be empty")
	}
	if cfg.Proxy.Command == "" {
		return fmt.Errorf("proxy command must not be empty")
	}

	if err := validateTiming(cfg.Timing); err != nil {
		return fmt.Errorf("timing validation failed: %w", err)
	}

	if cfg.Safety.SafeDemand < stimulator.MinDemand || cfg.Safety.SafeDemand > stimulator.MaxDemand {
		return fmt.Errorf("safeDemand %d outside [%d, %d]", cfg.Safety.SafeDemand, stimulator.MinDemand, stimulator.MaxDemand)
	}

	if err := cfg.Defaults.Validate(); err != nil {
		return fmt.Errorf("defaults: %w", err)
	}

	if cfg.Audit.Dir == "" {
		return fmt.Errorf("audit dir must not be empty")
	}
	if cfg.Audit.MaxSizeMB < 0 || cfg.Audit.MaxBackups < 0 || cfg.Audit.MaxAgeDays < 0 {
		return fmt.Errorf("audit rotation settings must be non-negative")
	}

	if !slices.Contains(validLogLevels, cfg.Log.Level) {
		return fmt.Errorf("invalid log level %q, must be one of: %v", cfg.Log.Level, validLogLevels)
	}
	if !slices.Contains(validLogFormats, cfg.Log.Format) {
		return fmt.Errorf("invalid log format %q, must be one of: %v", cfg.Log.Format, validLogFormats)
	}

	if cfg.Server.ReadTimeout <= 0 || cfg.Server.WriteTimeout <= 0 || cfg.Server.IdleTimeout <= 0 {
		return fmt.Errorf("server timeouts must be positive")
	}

	return validateAuth(cfg.Auth)
}

func validateTiming(t TimingConfig) error {
	for name, d := range map[string]time.Duration{
		"upload":   t.Upload,
		"trigger":  t.Trigger,
		"getState": t.GetState,
	} {
		if d <= 0 {
			return fmt.Errorf("%s timeout must be positive, got %v", name, d)
		}
	}
	return nil
}

func validateAuth(a AuthConfig) error {
	if !slices.Contains(validAuthAlgs, a.Algorithm) {
		return fmt.Errorf("invalid auth algorithm %q, must be HS256 or RS256", a.Algorithm)
	}
	switch a.Algorithm {
	case "HS256":
		if a.Secret == "" {
			return fmt.Errorf("HS256 auth requires a secret")
		}
	case "RS256":
		if a.PublicKeyPEM == "" && a.JWKSURL == "" {
			return fmt.Errorf("RS256 auth requires publicKeyPEM or jwksURL")
		}
	}
	return nil
}
