package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file loaded when VSC_CONFIG is unset and the
// file exists in the working directory.
const DefaultFile = "config.yaml"

// Load merges Default() + optional YAML file + VSC_* env overrides, then
// validates the result.
func Load() (*Config, error) {
	cfg := Default()

	path := os.Getenv("VSC_CONFIG")
	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
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

// loadFile decodes a YAML config file over cfg. Fields absent from the file
// keep their current values.
func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return nil
}

// applyEnvOverrides applies VSC_* environment variables to the config.
func applyEnvOverrides(cfg *Config) error {
	if val := os.Getenv("VSC_LISTEN_ADDR"); val != "" {
		cfg.Server.ListenAddr = val
	}

	durationVars := []struct {
		name   string
		target *Duration
	}{
		{"VSC_SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout},
		{"VSC_SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout},
		{"VSC_SERVER_IDLE_TIMEOUT", &cfg.Server.IdleTimeout},
		{"VSC_SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout},
		{"VSC_TASK_TIMEOUT_INIT_SPAWN", &cfg.Tasks.TimeoutInitSpawn},
		{"VSC_TASK_TIMEOUT_LIST_MOUNTS", &cfg.Tasks.TimeoutListMounts},
		{"VSC_HEARTBEAT_INTERVAL", &cfg.Telemetry.HeartbeatInterval},
		{"VSC_HEARTBEAT_JITTER", &cfg.Telemetry.HeartbeatJitter},
	}
	for _, v := range durationVars {
		val := os.Getenv(v.name)
		if val == "" {
			continue
		}
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("%s: invalid duration %q: %w", v.name, val, err)
		}
		*v.target = Duration(parsed)
	}

	intVars := []struct {
		name   string
		target *int
	}{
		{"VSC_TASK_QUEUE_CAPACITY", &cfg.Tasks.QueueCapacity},
		{"VSC_EVENT_BUFFER_SIZE", &cfg.Telemetry.EventBufferSize},
		{"VSC_RATE_LIMIT_BURST", &cfg.RateLimit.Burst},
		{"VSC_AUDIT_MAX_SIZE_MB", &cfg.Audit.MaxSizeMB},
		{"VSC_AUDIT_MAX_BACKUPS", &cfg.Audit.MaxBackups},
		{"VSC_AUDIT_MAX_AGE_DAYS", &cfg.Audit.MaxAgeDays},
	}
	for _, v := range intVars {
		val := os.Getenv(v.name)
		if val == "" {
			continue
		}
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%s: invalid integer %q: %w", v.name, val, err)
		}
		*v.target = parsed
	}

	if val := os.Getenv("VSC_RATE_LIMIT_TASKS_PER_SECOND"); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("VSC_RATE_LIMIT_TASKS_PER_SECOND: invalid value %q: %w", val, err)
		}
		cfg.RateLimit.TasksPerSecond = parsed
	}

	if val := os.Getenv("VSC_MOUNT_TABLE"); val != "" {
		cfg.Mounts.TablePath = val
	}
	if val := os.Getenv("VSC_WATCH_ROOTS"); val != "" {
		roots := strings.Split(val, ",")
		cfg.Mounts.WatchRoots = cfg.Mounts.WatchRoots[:0]
		for _, root := range roots {
			if root = strings.TrimSpace(root); root != "" {
				cfg.Mounts.WatchRoots = append(cfg.Mounts.WatchRoots, root)
			}
		}
	}

	if val := os.Getenv("VSC_AUTH_ENABLED"); val != "" {
		parsed, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("VSC_AUTH_ENABLED: invalid boolean %q: %w", val, err)
		}
		cfg.Auth.Enabled = parsed
	}
	if val := os.Getenv("VSC_AUTH_ALGORITHM"); val != "" {
		cfg.Auth.Algorithm = val
	}
	if val := os.Getenv("VSC_AUTH_SECRET"); val != "" {
		cfg.Auth.SecretKey = val
	}
	if val := os.Getenv("VSC_AUTH_PUBLIC_KEY_PEM"); val != "" {
		cfg.Auth.PublicKeyPEM = val
	}

	if val := os.Getenv("VSC_AUDIT_DIR"); val != "" {
		cfg.Audit.Dir = val
	}

	return nil
}
