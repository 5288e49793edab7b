package configuration

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"docrank/internal/claims"
	"docrank/internal/estimator"
	"docrank/internal/ranking"

	"github.com/spf13/viper"
)

const (
	SourcePostgres = "postgres"
	SourceParquet  = "parquet"
)

// EnvPrefix prefixes environment overrides, e.g. DOCRANK_SOURCE_DSN.
const EnvPrefix = "DOCRANK"

// AppConfig represents the complete application configuration.
type AppConfig struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Estimator EstimatorConfig `mapstructure:"estimator"`
	Ranking   RankingConfig   `mapstructure:"ranking"`
	Cohort    CohortConfig    `mapstructure:"cohort"`
	Source    SourceConfig    `mapstructure:"source"`
	Report    ReportConfig    `mapstructure:"report"`
	Server    ServerConfig    `mapstructure:"server"`
}

// LoggerConfig defines logging settings.
type LoggerConfig struct {
	// Level is one of debug, info, warn, warning, error (case-insensitive).
	Level string `mapstructure:"level"`
}

type PriorConfig struct {
	// Type is uniform or beta.
	Type string `mapstructure:"type"`
	// Alpha and Beta are the beta shapes, ignored for uniform.
	Alpha float64 `mapstructure:"alpha"`
	Beta  float64 `mapstructure:"beta"`
}

// EstimatorConfig defines the posterior grid and fitting parameters.
type EstimatorConfig struct {
	// GridPoints is the number of support points covering [0, 1].
	GridPoints int         `mapstructure:"grid_points"`
	Prior      PriorConfig `mapstructure:"prior"`
	// Alpha is the credible-interval alpha, 0.05 compares 95% intervals.
	Alpha float64 `mapstructure:"alpha"`
	// Workers bounds concurrent fits; 0 means unbounded.
	Workers int `mapstructure:"workers"`
}

type RankingConfig struct {
	Metric   string `mapstructure:"metric"`
	Ordering string `mapstructure:"ordering"`
}

type CohortConfig struct {
	// Rules is a YAML file with exclusion rules (optional).
	Rules string `mapstructure:"rules"`
}

// SourceConfig selects where per-doctor counts come from.
type SourceConfig struct {
	// Type is postgres or parquet. Empty is allowed for serve-only setups.
	Type              string   `mapstructure:"type"`
	DSN               string   `mapstructure:"dsn"`
	Parquet           string   `mapstructure:"parquet"`
	DiagnosisCodes    []string `mapstructure:"diagnosis_codes"`
	ProcedureCodes    []string `mapstructure:"procedure_codes"`
	ExcludedDiagnoses string   `mapstructure:"excluded_diagnoses"`
}

// ReportConfig defines the ranking report file.
type ReportConfig struct {
	// File path (optional); no report is written when empty.
	File string `mapstructure:"file"`
	// Maximal report file size in megabytes (default 100)
	Size int `mapstructure:"size"`
	// Number of rotated report files (default 20)
	Amount int `mapstructure:"amount"`
}

// ServerConfig contains HTTP server parameters.
type ServerConfig struct {
	Address string `mapstructure:"address"`
	// HistoryLength is the number of recent ranking runs kept in memory.
	HistoryLength int `mapstructure:"history_length"`
}

// Validate checks every section and returns the first error.
func (c *AppConfig) Validate() error {
	if err := c.Logger.Validate(); err != nil {
		return err
	}
	if err := c.Estimator.Validate(); err != nil {
		return err
	}
	if err := c.Ranking.Validate(); err != nil {
		return err
	}
	if err := c.Source.Validate(); err != nil {
		return err
	}
	if err := c.Report.Validate(); err != nil {
		return err
	}
	return c.Server.Validate()
}

func (l *LoggerConfig) Validate() error {
	if l.Level == "" {
		return errors.New("logger.level: must be specified")
	}

	valid := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !valid[strings.ToLower(l.Level)] {
		return fmt.Errorf("logger.level: unsupported level '%s'", l.Level)
	}
	return nil
}

func (e *EstimatorConfig) Validate() error {
	if e.GridPoints < 2 {
		return fmt.Errorf("estimator.grid_points: need at least 2, got %d", e.GridPoints)
	}
	switch strings.ToLower(e.Prior.Type) {
	case estimator.PriorUniform:
	case estimator.PriorBeta:
		if !(e.Prior.Alpha > 0) || !(e.Prior.Beta > 0) {
			return errors.New("estimator.prior: beta shapes must be positive")
		}
	default:
		return fmt.Errorf("estimator.prior.type: unsupported prior '%s'", e.Prior.Type)
	}
	if math.IsNaN(e.Alpha) || e.Alpha < 0 || e.Alpha >= 1 {
		return fmt.Errorf("estimator.alpha: must be in [0, 1), got %v", e.Alpha)
	}
	if e.Workers < 0 {
		return errors.New("estimator.workers: must not be negative")
	}
	return nil
}

// Grid builds the support grid and the prior evaluated on it.
func (e *EstimatorConfig) Grid() (prior, support []float64, err error) {
	support, err = estimator.UniformGrid(e.GridPoints)
	if err != nil {
		return nil, nil, err
	}
	prior, err = estimator.NewPrior(e.Prior.Type, support, e.Prior.Alpha, e.Prior.Beta)
	if err != nil {
		return nil, nil, err
	}
	return prior, support, nil
}

func (r *RankingConfig) Validate() error {
	if _, err := r.Criteria(); err != nil {
		return fmt.Errorf("ranking: %w", err)
	}
	return nil
}

func (r *RankingConfig) Criteria() (ranking.RankCriteria, error) {
	return ranking.ParseRankCriteria(r.Metric, r.Ordering)
}

func (s *SourceConfig) Validate() error {
	switch s.Type {
	case "":
		return nil
	case SourcePostgres:
		if s.DSN == "" {
			return errors.New("source.dsn: must be specified for postgres")
		}
		if err := s.Query().Validate(); err != nil {
			return fmt.Errorf("source.diagnosis_codes: %w", err)
		}
	case SourceParquet:
		if s.Parquet == "" {
			return errors.New("source.parquet: must be specified for parquet")
		}
	default:
		return fmt.Errorf("source.type: unsupported source '%s'", s.Type)
	}
	return nil
}

// Query returns the claims selection of a postgres source.
func (s *SourceConfig) Query() claims.Query {
	return claims.Query{
		DiagnosisCodes:    s.DiagnosisCodes,
		ProcedureCodes:    s.ProcedureCodes,
		ExcludedDiagnoses: s.ExcludedDiagnoses,
	}
}

func (r *ReportConfig) Validate() error {
	if r.Amount == 0 {
		r.Amount = 20
	}
	if r.Size == 0 {
		r.Size = 100
	}
	if r.Size < 0 || r.Amount < 0 {
		return errors.New("report: size and amount must not be negative")
	}
	return nil
}

func (n *ServerConfig) Validate() error {
	if n.Address == "" {
		return errors.New("server.address: must be specified")
	}
	if n.HistoryLength <= 0 {
		return errors.New("server.history_length: must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("estimator.grid_points", 1001)
	v.SetDefault("estimator.prior.type", estimator.PriorUniform)
	v.SetDefault("estimator.prior.alpha", 1.0)
	v.SetDefault("estimator.prior.beta", 1.0)
	v.SetDefault("estimator.alpha", ranking.DefaultAlpha)
	v.SetDefault("estimator.workers", 0)
	v.SetDefault("ranking.metric", string(ranking.MetricCredibleInterval))
	v.SetDefault("ranking.ordering", string(ranking.OrderingAscending))
	v.SetDefault("cohort.rules", "")
	v.SetDefault("source.type", "")
	v.SetDefault("source.dsn", "")
	v.SetDefault("source.parquet", "")
	v.SetDefault("source.excluded_diagnoses", "")
	v.SetDefault("report.file", "")
	v.SetDefault("report.size", 100)
	v.SetDefault("report.amount", 20)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.history_length", 16)
}

// LoadConfig reads the YAML file at configPath. Environment variables
// prefixed with DOCRANK_ override file values (DOCRANK_SOURCE_DSN for
// source.dsn); missing optional keys take their defaults.
func LoadConfig(configPath string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config AppConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}
