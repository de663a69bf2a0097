package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values can be written as "15s".
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalYAML renders the duration in time.Duration string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML accepts either a duration string or integer nanoseconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var ns int64
	if err := value.Decode(&ns); err != nil {
		return fmt.Errorf("invalid duration value: %w", err)
	}
	*d = Duration(ns)
	return nil
}

// Config is the full container configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Tasks     TasksConfig     `yaml:"tasks"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Mounts    MountsConfig    `yaml:"mounts"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Audit     AuditConfig     `yaml:"audit"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	ListenAddr      string   `yaml:"listenAddr"`
	ReadTimeout     Duration `yaml:"readTimeout"`
	WriteTimeout    Duration `yaml:"writeTimeout"`
	IdleTimeout     Duration `yaml:"idleTimeout"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout"`
}

// TasksConfig holds executor queue sizing and per-operation wait timeouts
// applied by the API layer above the dispatcher.
type TasksConfig struct {
	QueueCapacity     int      `yaml:"queueCapacity"`
	TimeoutInitSpawn  Duration `yaml:"timeoutInitSpawn"`
	TimeoutListMounts Duration `yaml:"timeoutListMounts"`
}

// TelemetryConfig holds event hub settings.
type TelemetryConfig struct {
	HeartbeatInterval Duration `yaml:"heartbeatInterval"`
	HeartbeatJitter   Duration `yaml:"heartbeatJitter"`
	EventBufferSize   int      `yaml:"eventBufferSize"`
}

// MountsConfig holds volume tracking settings.
type MountsConfig struct {
	TablePath  string   `yaml:"tablePath"`
	WatchRoots []string `yaml:"watchRoots"`
}

// AuthConfig holds JWT verification settings.
type AuthConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Algorithm    string `yaml:"algorithm"`
	SecretKey    string `yaml:"secretKey"`
	PublicKeyPEM string `yaml:"publicKeyPem"`
}

// RateLimitConfig holds the per-client submission limiter settings. A zero
// TasksPerSecond disables limiting.
type RateLimitConfig struct {
	TasksPerSecond float64 `yaml:"tasksPerSecond"`
	Burst          int     `yaml:"burst"`
}

// AuditConfig holds audit log location and rotation settings.
type AuditConfig struct {
	Dir        string `yaml:"dir"`
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      ":8000",
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			IdleTimeout:     Duration(120 * time.Second),
			ShutdownTimeout: Duration(30 * time.Second),
		},
		Tasks: TasksConfig{
			QueueCapacity:     64,
			TimeoutInitSpawn:  Duration(30 * time.Second),
			TimeoutListMounts: Duration(10 * time.Second),
		},
		Telemetry: TelemetryConfig{
			HeartbeatInterval: Duration(15 * time.Second),
			HeartbeatJitter:   Duration(2 * time.Second),
			EventBufferSize:   50,
		},
		Mounts: MountsConfig{
			TablePath:  "/proc/self/mounts",
			WatchRoots: []string{"/media", "/run/media"},
		},
		Auth: AuthConfig{
			Enabled:   false,
			Algorithm: "HS256",
		},
		RateLimit: RateLimitConfig{
			TasksPerSecond: 5,
			Burst:          10,
		},
		Audit: AuditConfig{
			Dir:        "logs",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}
