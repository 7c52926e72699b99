// Package config loads PolyBot's configuration from an optional JSON
// file plus environment variable overrides, exactly as the teacher's
// config/config.go does, trimmed to the single-tenant directional
// trading bot this spec describes.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the full configuration tree.
type Config struct {
	Assets     []string `json:"assets"`
	Timeframes []string `json:"timeframes"`

	Logging     LoggingConfig     `json:"logging"`
	Persistence PersistenceConfig `json:"persistence"`
	Secrets     SecretsConfig     `json:"secrets"`
	Snapshot    SnapshotConfig    `json:"snapshot"`
	Market      MarketConfig      `json:"market"`
	Predictor   PredictorConfig   `json:"predictor"`
	Filters     FiltersConfig     `json:"filters"`
	Positions   PositionsConfig   `json:"positions"`
	Calibration CalibrationConfig `json:"calibration"`
}

// LoggingConfig mirrors internal/logging.Config's JSON-tagged fields.
type LoggingConfig struct {
	Level            string `json:"level"`
	Output           string `json:"output"`
	JSONFormat       bool   `json:"json_format"`
	IncludeFile      bool   `json:"include_file"`
	RotateMaxSizeMB  int    `json:"rotate_max_size_mb"`
	RotateMaxAgeDays int    `json:"rotate_max_age_days"`
	RotateMaxBackups int    `json:"rotate_max_backups"`
}

// PersistenceConfig wires internal/persistence's Postgres store and
// Redis hot cache.
type PersistenceConfig struct {
	Enabled  bool             `json:"enabled"`
	Postgres PostgresConfig   `json:"postgres"`
	Redis    RedisConfig      `json:"redis"`
}

// PostgresConfig mirrors internal/persistence.Config.
type PostgresConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig mirrors internal/persistence.RedisConfig.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// SecretsConfig mirrors internal/secrets.Config.
type SecretsConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// SnapshotConfig wires internal/snapshot's HTTP+WebSocket server and its
// operator auth gate.
type SnapshotConfig struct {
	Host                 string        `json:"host"`
	Port                 int           `json:"port"`
	ProductionMode       bool          `json:"production_mode"`
	AllowedOrigins       []string      `json:"allowed_origins"`
	AuthEnabled          bool          `json:"auth_enabled"`
	JWTSecret            string        `json:"jwt_secret"`
	OperatorPasswordHash string        `json:"operator_password_hash"`
	TokenDuration        time.Duration `json:"token_duration"`
}

// MarketConfig wires internal/market.Registry's polling cadence.
type MarketConfig struct {
	RefreshInterval time.Duration `json:"refresh_interval"`
	StaleAfter      time.Duration `json:"stale_after"`
}

// PredictorConfig holds gating thresholds for internal/predictor.Ensemble.
// NewEnsemble takes no parameters and uses its package defaults, so these
// values are validated but not passed to the ensemble.
type PredictorConfig struct {
	MinConfidence    float64 `json:"min_confidence"`
	MinReadyFeatures int     `json:"min_ready_features"`
	ZScoreThreshold  float64 `json:"z_score_threshold"`
}

// FiltersConfig wires internal/filters.Thresholds.
type FiltersConfig struct {
	MaxSpreadBpsMin15 float64 `json:"max_spread_bps_min15"`
	MaxSpreadBpsHour1 float64 `json:"max_spread_bps_hour1"`
	MinDepthUsdc      float64 `json:"min_depth_usdc"`
	MaxVolatility5m   float64 `json:"max_volatility_5m"`
	MinTTLSecs        float64 `json:"min_ttl_secs"`
	MinConfidence     float64 `json:"min_confidence"`
	MaxDailyLossUsdc  float64 `json:"max_daily_loss_usdc"`
}

// PositionsConfig wires internal/positions.Limits and the daily loss
// guard it shares with FiltersConfig.MaxDailyLossUsdc.
type PositionsConfig struct {
	BaseSizeUsdc     float64 `json:"base_size_usdc"`
	PerTradeCapUsdc  float64 `json:"per_trade_cap_usdc"`
	TotalExposureCap float64 `json:"total_exposure_cap"`
	HardStopPct      float64 `json:"hard_stop_pct"`
	TakeProfitPct    float64 `json:"take_profit_pct"`
	TrailArmPct      float64 `json:"trail_arm_pct"`
	TrailPct         float64 `json:"trail_pct"`
	MaxHoldSecs      int64   `json:"max_hold_secs"`
	FeeRateBps       float64 `json:"fee_rate_bps"`
	DailyLossLimit   float64 `json:"daily_loss_limit"`
}

// CalibrationConfig wires internal/calibration's Calibrator and Trainer.
type CalibrationConfig struct {
	WarmupTarget    int     `json:"warmup_target"`
	RetrainInterval int     `json:"retrain_interval"`
	TrainingWindow  int     `json:"training_window"`
	Hysteresis      float64 `json:"hysteresis"`
}

// Load reads an optional config.json, then applies environment
// overrides on top, mirroring the teacher's Load().
func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = defaults()
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Assets:     []string{"BTC", "ETH", "SOL", "XRP"},
		Timeframes: []string{"15m", "1h"},
		Logging: LoggingConfig{
			Level:      "INFO",
			Output:     "stdout",
			JSONFormat: true,
		},
		Market: MarketConfig{
			RefreshInterval: 60 * time.Second,
			StaleAfter:      180 * time.Second,
		},
		Predictor: PredictorConfig{
			MinConfidence:    0.55,
			MinReadyFeatures: 8,
			ZScoreThreshold:  1.5,
		},
		Filters: FiltersConfig{
			MaxSpreadBpsMin15: 100,
			MaxSpreadBpsHour1: 150,
			MinDepthUsdc:      5000,
			MaxVolatility5m:   0.02,
			MinTTLSecs:        30,
			MinConfidence:     0.55,
			MaxDailyLossUsdc:  500,
		},
		Positions: PositionsConfig{
			BaseSizeUsdc:     100,
			PerTradeCapUsdc:  500,
			TotalExposureCap: 2000,
			HardStopPct:      0.03,
			TakeProfitPct:    0.02,
			TrailArmPct:      0.003,
			TrailPct:         0.005,
			MaxHoldSecs:      3600,
			FeeRateBps:       10,
			DailyLossLimit:   500,
		},
		Calibration: CalibrationConfig{
			WarmupTarget:    30,
			RetrainInterval: 50,
			TrainingWindow:  2000,
			Hysteresis:      0.02,
		},
		Snapshot: SnapshotConfig{
			Host:          "0.0.0.0",
			Port:          8080,
			TokenDuration: 15 * time.Minute,
		},
	}
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", filename, err)
	}
	cfg := defaults()
	if err := json.Unmarshal(file, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", filename, err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Logging.Level = getEnvOrDefault("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Output = getEnvOrDefault("LOG_OUTPUT", cfg.Logging.Output)
	cfg.Logging.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.Logging.JSONFormat)

	cfg.Persistence.Enabled = getEnvBoolOrDefault("PERSISTENCE_ENABLED", cfg.Persistence.Enabled)
	cfg.Persistence.Postgres.Host = getEnvOrDefault("POSTGRES_HOST", cfg.Persistence.Postgres.Host)
	cfg.Persistence.Postgres.Port = getEnvIntOrDefault("POSTGRES_PORT", cfg.Persistence.Postgres.Port)
	cfg.Persistence.Postgres.User = getEnvOrDefault("POSTGRES_USER", cfg.Persistence.Postgres.User)
	cfg.Persistence.Postgres.Password = getEnvOrDefault("POSTGRES_PASSWORD", cfg.Persistence.Postgres.Password)
	cfg.Persistence.Postgres.Database = getEnvOrDefault("POSTGRES_DB", cfg.Persistence.Postgres.Database)
	cfg.Persistence.Postgres.SSLMode = getEnvOrDefault("POSTGRES_SSLMODE", "disable")
	cfg.Persistence.Redis.Addr = getEnvOrDefault("REDIS_ADDR", cfg.Persistence.Redis.Addr)
	cfg.Persistence.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.Persistence.Redis.Password)

	cfg.Secrets.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", cfg.Secrets.Enabled)
	cfg.Secrets.Address = getEnvOrDefault("VAULT_ADDR", cfg.Secrets.Address)
	cfg.Secrets.Token = getEnvOrDefault("VAULT_TOKEN", cfg.Secrets.Token)
	cfg.Secrets.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", "secret")
	cfg.Secrets.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", "polybot/sources")

	cfg.Snapshot.Host = getEnvOrDefault("SNAPSHOT_HOST", cfg.Snapshot.Host)
	cfg.Snapshot.Port = getEnvIntOrDefault("SNAPSHOT_PORT", cfg.Snapshot.Port)
	cfg.Snapshot.ProductionMode = getEnvBoolOrDefault("SNAPSHOT_PRODUCTION_MODE", cfg.Snapshot.ProductionMode)
	cfg.Snapshot.AuthEnabled = getEnvBoolOrDefault("SNAPSHOT_AUTH_ENABLED", cfg.Snapshot.AuthEnabled)
	cfg.Snapshot.JWTSecret = getEnvOrDefault("SNAPSHOT_JWT_SECRET", cfg.Snapshot.JWTSecret)
	cfg.Snapshot.OperatorPasswordHash = getEnvOrDefault("SNAPSHOT_OPERATOR_PASSWORD_HASH", cfg.Snapshot.OperatorPasswordHash)

	cfg.Predictor.MinConfidence = getEnvFloatOrDefault("PREDICTOR_MIN_CONFIDENCE", cfg.Predictor.MinConfidence)
	cfg.Filters.MaxDailyLossUsdc = getEnvFloatOrDefault("FILTERS_MAX_DAILY_LOSS_USDC", cfg.Filters.MaxDailyLossUsdc)
	cfg.Positions.BaseSizeUsdc = getEnvFloatOrDefault("POSITIONS_BASE_SIZE_USDC", cfg.Positions.BaseSizeUsdc)
	cfg.Positions.DailyLossLimit = getEnvFloatOrDefault("POSITIONS_DAILY_LOSS_LIMIT", cfg.Positions.DailyLossLimit)
	cfg.Calibration.WarmupTarget = getEnvIntOrDefault("CALIBRATION_WARMUP_TARGET", cfg.Calibration.WarmupTarget)
}

// Validate enforces the fatal-at-startup invariants spec.md §7.2 names:
// known asset/timeframe enums and positive sizes/limits. Ensemble weights
// are not checked here; internal/predictor sets them at construction and
// renormalizes them on every adjustment.
// main.go exits with code 2 on a non-nil return.
func (c *Config) Validate() error {
	validAssets := map[string]bool{"BTC": true, "ETH": true, "SOL": true, "XRP": true}
	if len(c.Assets) == 0 {
		return fmt.Errorf("config: at least one asset must be configured")
	}
	for _, a := range c.Assets {
		if !validAssets[a] {
			return fmt.Errorf("config: unknown asset %q", a)
		}
	}

	validTimeframes := map[string]bool{"15m": true, "1h": true}
	if len(c.Timeframes) == 0 {
		return fmt.Errorf("config: at least one timeframe must be configured")
	}
	for _, tf := range c.Timeframes {
		if !validTimeframes[tf] {
			return fmt.Errorf("config: unknown timeframe %q", tf)
		}
	}

	if c.Positions.BaseSizeUsdc <= 0 {
		return fmt.Errorf("config: positions.base_size_usdc must be positive")
	}
	if c.Positions.PerTradeCapUsdc <= 0 {
		return fmt.Errorf("config: positions.per_trade_cap_usdc must be positive")
	}
	if c.Positions.TotalExposureCap < c.Positions.PerTradeCapUsdc {
		return fmt.Errorf("config: positions.total_exposure_cap must be >= per_trade_cap_usdc")
	}
	if c.Positions.DailyLossLimit <= 0 {
		return fmt.Errorf("config: positions.daily_loss_limit must be positive")
	}
	if c.Predictor.MinConfidence <= 0 || c.Predictor.MinConfidence >= 1 {
		return fmt.Errorf("config: predictor.min_confidence must be in (0, 1)")
	}
	if c.Calibration.WarmupTarget <= 0 {
		return fmt.Errorf("config: calibration.warmup_target must be positive")
	}
	if c.Snapshot.AuthEnabled && c.Snapshot.JWTSecret == "" {
		return fmt.Errorf("config: snapshot.jwt_secret is required when snapshot.auth_enabled is true")
	}
	if c.Snapshot.AuthEnabled && c.Snapshot.OperatorPasswordHash == "" {
		return fmt.Errorf("config: snapshot.operator_password_hash is required when snapshot.auth_enabled is true")
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
