package domain

import (
	"fmt"
	"time"
)

// Config holds the complete risk engine configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Pipeline configuration
	Scoring   ScoringConfig   `json:"scoring"`
	Engine    EngineConfig    `json:"engine"`
	Portfolio PortfolioConfig `json:"portfolio"`

	// External collaborators
	Advisory       IntegrationConfig `json:"advisory"`
	CaseManagement IntegrationConfig `json:"caseManagement"`
	RiskRegister   IntegrationConfig `json:"riskRegister"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// ScoringConfig holds the tier thresholds.
// HighThreshold must be >= MediumThreshold.
type ScoringConfig struct {
	HighThreshold   float64 `json:"highThreshold"`
	MediumThreshold float64 `json:"mediumThreshold"`
}

// Validate checks the threshold ordering precondition.
func (c ScoringConfig) Validate() error {
	if c.HighThreshold < c.MediumThreshold {
		return fmt.Errorf("high threshold %.2f below medium threshold %.2f", c.HighThreshold, c.MediumThreshold)
	}
	return nil
}

// EngineConfig holds the scheduling and batching settings.
type EngineConfig struct {
	PollInterval      time.Duration `json:"pollInterval"`
	BatchSize         int           `json:"batchSize"`
	RetrainInterval   time.Duration `json:"retrainInterval"`
	AggregateInterval time.Duration `json:"aggregateInterval"`
	TrainingWindow    time.Duration `json:"trainingWindow"`
	TrainingLimit     int           `json:"trainingLimit"`
	ModelSeed         int64         `json:"modelSeed"`
}

// PortfolioConfig holds the simplified liquidity model parameters.
type PortfolioConfig struct {
	Window         time.Duration `json:"window"`
	UnitAssetValue float64       `json:"unitAssetValue"`
	LiquidFraction float64       `json:"liquidFraction"`
	OutflowFactor  float64       `json:"outflowFactor"`
}

// IntegrationConfig selects a collaborator variant once at construction.
// Mode "stub" uses the deterministic in-process variant; "live" calls the
// configured endpoint.
type IntegrationConfig struct {
	Mode     string        `json:"mode"` // "stub" or "live"
	Endpoint string        `json:"endpoint"`
	APIKey   string        `json:"-"`
	Timeout  time.Duration `json:"timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
}

// DefaultConfig returns the default single-node configuration: SQLite
// storage, in-memory cache, channel bus, stub collaborators.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./riskengine.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			AdvisoryTTL:  10 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Scoring: ScoringConfig{
			HighThreshold:   0.8,
			MediumThreshold: 0.5,
		},
		Engine: EngineConfig{
			PollInterval:      30 * time.Second,
			BatchSize:         100,
			RetrainInterval:   24 * time.Hour,
			AggregateInterval: time.Hour,
			TrainingWindow:    30 * 24 * time.Hour,
			TrainingLimit:     1000,
			ModelSeed:         42,
		},
		Portfolio: PortfolioConfig{
			Window:         24 * time.Hour,
			UnitAssetValue: 1_000_000,
			LiquidFraction: 0.3,
			OutflowFactor:  0.1,
		},
		Advisory: IntegrationConfig{
			Mode:    "stub",
			Timeout: 30 * time.Second,
		},
		CaseManagement: IntegrationConfig{
			Mode:    "stub",
			Timeout: 30 * time.Second,
		},
		RiskRegister: IntegrationConfig{
			Mode:    "stub",
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "riskengine",
		},
	}
}
