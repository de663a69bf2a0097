package config

import "fmt"

// Validate enforces configuration invariants.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := validateServer(&cfg.Server); err != nil {
		return fmt.Errorf("server validation failed: %w", err)
	}
	if err := validateTasks(&cfg.Tasks); err != nil {
		return fmt.Errorf("tasks validation failed: %w", err)
	}
	if err := validateTelemetry(&cfg.Telemetry); err != nil {
		return fmt.Errorf("telemetry validation failed: %w", err)
	}
	if err := validateAuth(&cfg.Auth); err != nil {
		return fmt.Errorf("auth validation failed: %w", err)
	}
	if err := validateRateLimit(&cfg.RateLimit); err != nil {
		return fmt.Errorf("rate limit validation failed: %w", err)
	}

	return nil
}

func validateServer(s *ServerConfig) error {
	if s.ListenAddr == "" {
		return fmt.Errorf("listen address cannot be empty")
	}
	if s.ReadTimeout <= 0 || s.WriteTimeout <= 0 || s.IdleTimeout <= 0 {
		return fmt.Errorf("server timeouts must be positive")
	}
	if s.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive, got %v", s.ShutdownTimeout.Std())
	}
	return nil
}

func validateTasks(t *TasksConfig) error {
	if t.QueueCapacity <= 0 {
		return fmt.Errorf("queue capacity must be positive, got %d", t.QueueCapacity)
	}
	if t.TimeoutInitSpawn <= 0 {
		return fmt.Errorf("initSpawn timeout must be positive, got %v", t.TimeoutInitSpawn.Std())
	}
	if t.TimeoutListMounts <= 0 {
		return fmt.Errorf("listMounts timeout must be positive, got %v", t.TimeoutListMounts.Std())
	}
	return nil
}

func validateTelemetry(t *TelemetryConfig) error {
	if t.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive, got %v", t.HeartbeatInterval.Std())
	}

	// Jitter must stay within half the interval.
	maxJitter := t.HeartbeatInterval / 2
	if t.HeartbeatJitter < 0 {
		return fmt.Errorf("heartbeat jitter must be non-negative, got %v", t.HeartbeatJitter.Std())
	}
	if t.HeartbeatJitter > maxJitter {
		return fmt.Errorf("heartbeat jitter %v exceeds 50%% of interval %v",
			t.HeartbeatJitter.Std(), t.HeartbeatInterval.Std())
	}

	if t.EventBufferSize <= 0 {
		return fmt.Errorf("event buffer size must be positive, got %d", t.EventBufferSize)
	}
	return nil
}

func validateAuth(a *AuthConfig) error {
	if !a.Enabled {
		return nil
	}
	switch a.Algorithm {
	case "HS256":
		if a.SecretKey == "" {
			return fmt.Errorf("HS256 requires a secret key")
		}
	case "RS256":
		if a.PublicKeyPEM == "" {
			return fmt.Errorf("RS256 requires a public key")
		}
	default:
		return fmt.Errorf("unsupported algorithm: %s", a.Algorithm)
	}
	return nil
}

func validateRateLimit(r *RateLimitConfig) error {
	if r.TasksPerSecond < 0 {
		return fmt.Errorf("tasks per second must be non-negative, got %f", r.TasksPerSecond)
	}
	if r.TasksPerSecond > 0 && r.Burst <= 0 {
		return fmt.Errorf("burst must be positive when rate limiting is enabled, got %d", r.Burst)
	}
	return nil
}
