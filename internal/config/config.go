// Package config provides hierarchical configuration loading for overseer.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the overseer core service.
type Config struct {
	Server       Server       `yaml:"server"`
	NATS         NATS         `yaml:"nats"`
	Logging      Logging      `yaml:"logging"`
	Breaker      Breaker      `yaml:"breaker"`
	Telemetry    Telemetry    `yaml:"telemetry"`
	Orchestrator Orchestrator `yaml:"orchestrator"`
	Swarm        Swarm        `yaml:"swarm"`
	Delegation   Delegation   `yaml:"delegation"`
	Tracker      Tracker      `yaml:"tracker"`
	Supervisor   Supervisor   `yaml:"supervisor"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// NATS holds NATS JetStream configuration. The same connection backs the
// event bus, the swarm command channel, and the KV memory store.
type NATS struct {
	URL      string `yaml:"url"`
	KVBucket string `yaml:"kv_bucket"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Breaker holds circuit breaker configuration for external collaborator calls.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Telemetry holds OpenTelemetry exporter configuration.
type Telemetry struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Orchestrator holds decision routing configuration.
type Orchestrator struct {
	AutoApprovalThreshold    float64       `yaml:"auto_approval_threshold"`    // confidence at or above auto-approves (default: 0.9)
	EscalationThreshold      float64       `yaml:"escalation_threshold"`       // confidence at or below escalates (default: 0.5)
	ReviewTimeout            time.Duration `yaml:"review_timeout"`             // how long a pending review may sit (default: 30m)
	FinancialImpactThreshold float64       `yaml:"financial_impact_threshold"` // impact at or above forces human review (default: 10000)
	CriticalRequiresApproval bool          `yaml:"critical_requires_approval"` // critical-flagged decisions always need a human (default: true)
	HistoryLimit             int           `yaml:"history_limit"`              // resolved decisions kept in memory (default: 500)
}

// Confidence holds the swarm integration's routing bands.
type Confidence struct {
	AutoApprove  float64 `yaml:"auto_approve"`  // >= auto-approves (default: 0.9)
	RequireHuman float64 `yaml:"require_human"` // >= requires standard review (default: 0.7)
	Escalate     float64 `yaml:"escalate"`      // <= goes to the expert path (default: 0.5)
}

// Swarm holds swarm integration configuration. The stage timeouts drive the
// supervisor's workflow timeout scan and should stay short relative to the
// orchestrator's review timeout.
type Swarm struct {
	Confidence             Confidence    `yaml:"confidence"`
	EmergencyOverrideRoles []string      `yaml:"emergency_override_roles"`
	MaxOverrideWindow      time.Duration `yaml:"max_override_window"`    // age limit on override requests (default: 5m)
	ReviewStageTimeout     time.Duration `yaml:"review_stage_timeout"`   // strategic-review first stage (default: 30m)
	ApprovalStageTimeout   time.Duration `yaml:"approval_stage_timeout"` // strategic-review final stage (default: 1h)
	RetrainThreshold       int           `yaml:"retrain_threshold"`      // patterns before retrain is suggested (default: 100)
	MaxPatterns            int           `yaml:"max_patterns"`           // in-memory pattern cap (default: 1000)
}

// Delegation holds task assignment configuration. The scoring weights are a
// tunable policy and must sum to 1.0.
type Delegation struct {
	CompletionRateWeight float64       `yaml:"completion_rate_weight"` // default: 0.4
	QualityWeight        float64       `yaml:"quality_weight"`         // default: 0.4
	IdleWeight           float64       `yaml:"idle_weight"`            // default: 0.2
	PerformanceAlpha     float64       `yaml:"performance_alpha"`      // EMA smoothing for operator metrics (default: 0.3)
	SweepInterval        time.Duration `yaml:"sweep_interval"`         // pending-task retry period (default: 1m)
}

// AlertThresholds holds the progress tracker's breach thresholds.
type AlertThresholds struct {
	TimeOverrunPct    float64 `yaml:"time_overrun_pct"`   // % over estimate that raises a warning (default: 25)
	QualityBelow      float64 `yaml:"quality_below"`      // quality under this raises an error (default: 3.0)
	RiskAbove         float64 `yaml:"risk_above"`         // risk over this raises a warning (default: 0.7)
	SatisfactionBelow float64 `yaml:"satisfaction_below"` // stakeholder satisfaction under this raises a warning (default: 0.6)
}

// Tracker holds progress tracker configuration.
type Tracker struct {
	SnapshotInterval time.Duration   `yaml:"snapshot_interval"` // default: 5m
	Thresholds       AlertThresholds `yaml:"thresholds"`
	DedupCacheMB     int64           `yaml:"dedup_cache_mb"` // breach dedup cache size (default: 4)
}

// Supervisor holds system supervisor configuration.
type Supervisor struct {
	HealthCheckInterval time.Duration `yaml:"health_check_interval"` // default: 30s
	TimeoutScanInterval time.Duration `yaml:"timeout_scan_interval"` // workflow stage timeout scan (default: 15s)
	AlertRetention      time.Duration `yaml:"alert_retention"`       // acknowledged alert retention (default: 24h)
	MaxAlerts           int           `yaml:"max_alerts"`            // alert registry cap (default: 1000)
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:       "8080",
			CORSOrigin: "http://localhost:3000",
		},
		NATS: NATS{
			URL:      "nats://localhost:4222",
			KVBucket: "overseer-memory",
		},
		Logging: Logging{
			Level:   "info",
			Service: "overseer-core",
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Telemetry: Telemetry{
			Enabled:  false,
			Endpoint: "localhost:4317",
		},
		Orchestrator: Orchestrator{
			AutoApprovalThreshold:    0.9,
			EscalationThreshold:      0.5,
			ReviewTimeout:            30 * time.Minute,
			FinancialImpactThreshold: 10000,
			CriticalRequiresApproval: true,
			HistoryLimit:             500,
		},
		Swarm: Swarm{
			Confidence: Confidence{
				AutoApprove:  0.9,
				RequireHuman: 0.7,
				Escalate:     0.5,
			},
			EmergencyOverrideRoles: []string{"incident-commander", "vp-operations"},
			MaxOverrideWindow:      5 * time.Minute,
			ReviewStageTimeout:     30 * time.Minute,
			ApprovalStageTimeout:   time.Hour,
			RetrainThreshold:       100,
			MaxPatterns:            1000,
		},
		Delegation: Delegation{
			CompletionRateWeight: 0.4,
			QualityWeight:        0.4,
			IdleWeight:           0.2,
			PerformanceAlpha:     0.3,
			SweepInterval:        time.Minute,
		},
		Tracker: Tracker{
			SnapshotInterval: 5 * time.Minute,
			Thresholds: AlertThresholds{
				TimeOverrunPct:    25,
				QualityBelow:      3.0,
				RiskAbove:         0.7,
				SatisfactionBelow: 0.6,
			},
			DedupCacheMB: 4,
		},
		Supervisor: Supervisor{
			HealthCheckInterval: 30 * time.Second,
			TimeoutScanInterval: 15 * time.Second,
			AlertRetention:      24 * time.Hour,
			MaxAlerts:           1000,
		},
	}
}
