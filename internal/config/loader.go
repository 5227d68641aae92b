package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "overseer.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "OVERSEER_PORT")
	setString(&cfg.Server.CORSOrigin, "OVERSEER_CORS_ORIGIN")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.KVBucket, "OVERSEER_KV_BUCKET")
	setString(&cfg.Logging.Level, "OVERSEER_LOG_LEVEL")
	setString(&cfg.Logging.Service, "OVERSEER_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "OVERSEER_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "OVERSEER_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "OVERSEER_BREAKER_TIMEOUT")
	setBool(&cfg.Telemetry.Enabled, "OVERSEER_TELEMETRY_ENABLED")
	setString(&cfg.Telemetry.Endpoint, "OVERSEER_OTLP_ENDPOINT")

	setFloat64(&cfg.Orchestrator.AutoApprovalThreshold, "OVERSEER_AUTO_APPROVAL_THRESHOLD")
	setFloat64(&cfg.Orchestrator.EscalationThreshold, "OVERSEER_ESCALATION_THRESHOLD")
	setDuration(&cfg.Orchestrator.ReviewTimeout, "OVERSEER_REVIEW_TIMEOUT")
	setFloat64(&cfg.Orchestrator.FinancialImpactThreshold, "OVERSEER_FINANCIAL_IMPACT_THRESHOLD")
	setBool(&cfg.Orchestrator.CriticalRequiresApproval, "OVERSEER_CRITICAL_REQUIRES_APPROVAL")
	setInt(&cfg.Orchestrator.HistoryLimit, "OVERSEER_DECISION_HISTORY_LIMIT")

	setFloat64(&cfg.Swarm.Confidence.AutoApprove, "OVERSEER_CONFIDENCE_AUTO_APPROVE")
	setFloat64(&cfg.Swarm.Confidence.RequireHuman, "OVERSEER_CONFIDENCE_REQUIRE_HUMAN")
	setFloat64(&cfg.Swarm.Confidence.Escalate, "OVERSEER_CONFIDENCE_ESCALATE")
	setStringSlice(&cfg.Swarm.EmergencyOverrideRoles, "OVERSEER_EMERGENCY_OVERRIDE_ROLES")
	setDuration(&cfg.Swarm.MaxOverrideWindow, "OVERSEER_MAX_OVERRIDE_WINDOW")
	setDuration(&cfg.Swarm.ReviewStageTimeout, "OVERSEER_REVIEW_STAGE_TIMEOUT")
	setDuration(&cfg.Swarm.ApprovalStageTimeout, "OVERSEER_APPROVAL_STAGE_TIMEOUT")
	setInt(&cfg.Swarm.RetrainThreshold, "OVERSEER_RETRAIN_THRESHOLD")
	setInt(&cfg.Swarm.MaxPatterns, "OVERSEER_MAX_PATTERNS")

	setFloat64(&cfg.Delegation.CompletionRateWeight, "OVERSEER_WEIGHT_COMPLETION_RATE")
	setFloat64(&cfg.Delegation.QualityWeight, "OVERSEER_WEIGHT_QUALITY")
	setFloat64(&cfg.Delegation.IdleWeight, "OVERSEER_WEIGHT_IDLE")
	setFloat64(&cfg.Delegation.PerformanceAlpha, "OVERSEER_PERFORMANCE_ALPHA")
	setDuration(&cfg.Delegation.SweepInterval, "OVERSEER_SWEEP_INTERVAL")

	setDuration(&cfg.Tracker.SnapshotInterval, "OVERSEER_SNAPSHOT_INTERVAL")
	setFloat64(&cfg.Tracker.Thresholds.TimeOverrunPct, "OVERSEER_ALERT_TIME_OVERRUN_PCT")
	setFloat64(&cfg.Tracker.Thresholds.QualityBelow, "OVERSEER_ALERT_QUALITY_BELOW")
	setFloat64(&cfg.Tracker.Thresholds.RiskAbove, "OVERSEER_ALERT_RISK_ABOVE")
	setFloat64(&cfg.Tracker.Thresholds.SatisfactionBelow, "OVERSEER_ALERT_SATISFACTION_BELOW")
	setInt64(&cfg.Tracker.DedupCacheMB, "OVERSEER_DEDUP_CACHE_MB")

	setDuration(&cfg.Supervisor.HealthCheckInterval, "OVERSEER_HEALTH_CHECK_INTERVAL")
	setDuration(&cfg.Supervisor.TimeoutScanInterval, "OVERSEER_TIMEOUT_SCAN_INTERVAL")
	setDuration(&cfg.Supervisor.AlertRetention, "OVERSEER_ALERT_RETENTION")
	setInt(&cfg.Supervisor.MaxAlerts, "OVERSEER_MAX_ALERTS")
}

// validate rejects configurations the core cannot safely run with.
// Invalid thresholds are fatal at startup, never clamped.
func validate(cfg *Config) error {
	probs := []struct {
		name string
		val  float64
	}{
		{"orchestrator.auto_approval_threshold", cfg.Orchestrator.AutoApprovalThreshold},
		{"orchestrator.escalation_threshold", cfg.Orchestrator.EscalationThreshold},
		{"swarm.confidence.auto_approve", cfg.Swarm.Confidence.AutoApprove},
		{"swarm.confidence.require_human", cfg.Swarm.Confidence.RequireHuman},
		{"swarm.confidence.escalate", cfg.Swarm.Confidence.Escalate},
		{"delegation.performance_alpha", cfg.Delegation.PerformanceAlpha},
		{"tracker.thresholds.risk_above", cfg.Tracker.Thresholds.RiskAbove},
		{"tracker.thresholds.satisfaction_below", cfg.Tracker.Thresholds.SatisfactionBelow},
	}
	for _, p := range probs {
		if p.val < 0 || p.val > 1 {
			return fmt.Errorf("%s must be in [0,1], got %v", p.name, p.val)
		}
	}

	if cfg.Orchestrator.EscalationThreshold >= cfg.Orchestrator.AutoApprovalThreshold {
		return fmt.Errorf("orchestrator.escalation_threshold (%v) must be below auto_approval_threshold (%v)",
			cfg.Orchestrator.EscalationThreshold, cfg.Orchestrator.AutoApprovalThreshold)
	}
	c := cfg.Swarm.Confidence
	if !(c.Escalate <= c.RequireHuman && c.RequireHuman <= c.AutoApprove) {
		return fmt.Errorf("swarm.confidence bands must be ordered escalate <= require_human <= auto_approve, got %v/%v/%v",
			c.Escalate, c.RequireHuman, c.AutoApprove)
	}

	weightSum := cfg.Delegation.CompletionRateWeight + cfg.Delegation.QualityWeight + cfg.Delegation.IdleWeight
	if math.Abs(weightSum-1.0) > 1e-9 {
		return fmt.Errorf("delegation weights must sum to 1.0, got %v", weightSum)
	}

	durations := []struct {
		name string
		val  time.Duration
	}{
		{"orchestrator.review_timeout", cfg.Orchestrator.ReviewTimeout},
		{"swarm.max_override_window", cfg.Swarm.MaxOverrideWindow},
		{"swarm.review_stage_timeout", cfg.Swarm.ReviewStageTimeout},
		{"swarm.approval_stage_timeout", cfg.Swarm.ApprovalStageTimeout},
		{"delegation.sweep_interval", cfg.Delegation.SweepInterval},
		{"tracker.snapshot_interval", cfg.Tracker.SnapshotInterval},
		{"supervisor.health_check_interval", cfg.Supervisor.HealthCheckInterval},
		{"supervisor.timeout_scan_interval", cfg.Supervisor.TimeoutScanInterval},
		{"supervisor.alert_retention", cfg.Supervisor.AlertRetention},
	}
	for _, d := range durations {
		if d.val <= 0 {
			return fmt.Errorf("%s must be positive, got %v", d.name, d.val)
		}
	}

	if cfg.Orchestrator.HistoryLimit <= 0 {
		return fmt.Errorf("orchestrator.history_limit must be positive, got %d", cfg.Orchestrator.HistoryLimit)
	}
	if cfg.Swarm.RetrainThreshold <= 0 {
		return fmt.Errorf("swarm.retrain_threshold must be positive, got %d", cfg.Swarm.RetrainThreshold)
	}
	if cfg.Swarm.MaxPatterns < cfg.Swarm.RetrainThreshold {
		return fmt.Errorf("swarm.max_patterns (%d) must be at least retrain_threshold (%d)",
			cfg.Swarm.MaxPatterns, cfg.Swarm.RetrainThreshold)
	}
	if cfg.Supervisor.MaxAlerts <= 0 {
		return fmt.Errorf("supervisor.max_alerts must be positive, got %d", cfg.Supervisor.MaxAlerts)
	}
	if cfg.Tracker.Thresholds.TimeOverrunPct < 0 {
		return fmt.Errorf("tracker.thresholds.time_overrun_pct must be non-negative, got %v", cfg.Tracker.Thresholds.TimeOverrunPct)
	}
	if cfg.Tracker.Thresholds.QualityBelow < 0 || cfg.Tracker.Thresholds.QualityBelow > 5 {
		return fmt.Errorf("tracker.thresholds.quality_below must be in [0,5], got %v", cfg.Tracker.Thresholds.QualityBelow)
	}

	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
