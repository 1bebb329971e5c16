package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// DefaultFile is read from the working directory when present.
const DefaultFile = "ds8r.yaml"

// Load merges defaults, ds8r.yaml, the explicit file (or DS8R_CONFIG) and DS8R_* env overrides.
// An explicit file must exist; the working directory file is optional.
func Load(path string) (*Config, error) {
	cfg := Default()

	if err := loadFromFile(cfg, DefaultFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", DefaultFile, err)
	}

	if path == "" {
		path = os.Getenv("DS8R_CONFIG")
	}
	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays a YAML file onto cfg. Unknown keys are rejected.
func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return yaml.UnmarshalStrict(data, cfg)
}

// applyEnvOverrides applies DS8R_* environment variables to the config.
func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"DS8R_DEVICE_ID":      &cfg.Device.ID,
		"DS8R_PROXY_COMMAND":  &cfg.Proxy.Command,
		"DS8R_DLL_PATH":       &cfg.Proxy.DLLPath,
		"DS8R_AUDIT_DIR":      &cfg.Audit.Dir,
		"DS8R_LOG_LEVEL":      &cfg.Log.Level,
		"DS8R_LOG_FORMAT":     &cfg.Log.Format,
		"DS8R_SERVER_ADDR":    &cfg.Server.Addr,
		"DS8R_AUTH_ALGORITHM": &cfg.Auth.Algorithm,
		"DS8R_AUTH_SECRET":    &cfg.Auth.Secret,
		"DS8R_AUTH_JWKS_URL":  &cfg.Auth.JWKSURL,
	}
	for key, dst := range strs {
		if val, ok := os.LookupEnv(key); ok {
			*dst = val
		}
	}

	durations := map[string]*time.Duration{
		"DS8R_TIMEOUT_UPLOAD":    &cfg.Timing.Upload,
		"DS8R_TIMEOUT_TRIGGER":   &cfg.Timing.Trigger,
		"DS8R_TIMEOUT_GET_STATE": &cfg.Timing.GetState,
	}
	for key, dst := range durations {
		if val := os.Getenv(key); val != "" {
			d, err := time.ParseDuration(val)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}

	if val := os.Getenv("DS8R_SAFE_DEMAND"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("DS8R_SAFE_DEMAND: %w", err)
		}
		cfg.Safety.SafeDemand = n
	}

	if val := os.Getenv("DS8R_STRICT_RETURN_CODES"); val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("DS8R_STRICT_RETURN_CODES: %w", err)
		}
		cfg.Proxy.StrictReturnCodes = b
	}

	return nil
}
