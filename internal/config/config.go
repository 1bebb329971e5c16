package config

import (
	"time"

	"github.com/timnaher/ds8r/internal/stimulator"
)

// Config represents the complete controller configuration.
type Config struct {
	Device   DeviceConfig          `yaml:"device"`
	Proxy    ProxyConfig           `yaml:"proxy"`
	Timing   TimingConfig          `yaml:"timing"`
	Safety   SafetyConfig          `yaml:"safety"`
	Defaults stimulator.Parameters `yaml:"defaults"`
	Audit    AuditConfig           `yaml:"audit"`
	Log      LogConfig             `yaml:"log"`
	Server   ServerConfig          `yaml:"server"`
	Auth     AuthConfig            `yaml:"auth"`
}

// DeviceConfig identifies the controlled stimulator.
type DeviceConfig struct {
	ID string `yaml:"id"`
}

// ProxyConfig holds vendor proxy settings.
type ProxyConfig struct {
	// Command is split with shell quoting rules, e.g. "wine D128RProxy.exe".
	Command           string `yaml:"command"`
	DLLPath           string `yaml:"dllPath"`
	StrictReturnCodes bool   `yaml:"strictReturnCodes"`
}

// TimingConfig holds the per-call proxy deadlines.
type TimingConfig struct {
	Upload   time.Duration `yaml:"upload"`
	Trigger  time.Duration `yaml:"trigger"`
	GetState time.Duration `yaml:"getState"`
}

// SafetyConfig holds the software current limit.
type SafetyConfig struct {
	// SafeDemand is the largest demand (0.1 mA units) run without force.
	SafeDemand int `yaml:"safeDemand"`
}

// AuditConfig holds audit log location and rotation.
type AuditConfig struct {
	Dir        string `yaml:"dir"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	Compress   bool   `yaml:"compress"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // trace, debug, info, warn, error
	Format string `yaml:"format"` // console or json
}

// ServerConfig holds HTTP server settings for serve mode.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// AuthConfig holds bearer token verification settings. An empty Algorithm disables auth.
type AuthConfig struct {
	Algorithm    string `yaml:"algorithm"` // HS256 or RS256
	Secret       string `yaml:"secret"`
	PublicKeyPEM string `yaml:"publicKeyPEM"`
	JWKSURL      string `yaml:"jwksURL"`
}

// Enabled reports whether bearer tokens are required.
func (a AuthConfig) Enabled() bool {
	return a.Algorithm != ""
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{ID: "ds8r"},
		Proxy: ProxyConfig{
			Command: "D128RProxy.exe",
		},
		Timing: TimingConfig{
			Upload:   5 * time.Second,
			Trigger:  5 * time.Second,
			GetState: 5 * time.Second,
		},
		Safety: SafetyConfig{
			SafeDemand: 100, // 10.0 mA
		},
		Defaults: stimulator.DefaultParameters(),
		Audit: AuditConfig{
			Dir:        "audit",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 90,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Server: ServerConfig{
			Addr:         "127.0.0.1:8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}
