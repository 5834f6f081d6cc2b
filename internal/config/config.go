package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Ceezar89/ezbot-sub000/internal/optimizer"
	"github.com/Ceezar89/ezbot-sub000/pkg/backtest"
)

// Data sources and checkpoint stores.
const (
	SourceCSV      = "csv"
	SourcePostgres = "postgres"

	StoreFile  = "file"
	StoreRedis = "redis"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Data       DataConfig       `mapstructure:"data"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Backtest   BacktestConfig   `mapstructure:"backtest"`
	Search     SearchConfig     `mapstructure:"search"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // json or console
}

// DataConfig selects where bars are loaded from
type DataConfig struct {
	Source   string `mapstructure:"source"` // csv or postgres
	Path     string `mapstructure:"path"`   // CSV file
	Symbol   string `mapstructure:"symbol"`
	Interval string `mapstructure:"interval"` // candle interval stored in the database
	Limit    int    `mapstructure:"limit"`    // most recent bars, 0 loads all
}

// DatabaseConfig contains PostgreSQL/TimescaleDB settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	PoolSize int    `mapstructure:"pool_size"`
}

// RedisConfig contains Redis settings
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// BacktestConfig contains the simulation settings
type BacktestConfig struct {
	InitialBalance      float64 `mapstructure:"initial_balance"`
	FeePercent          float64 `mapstructure:"fee_percent"`
	Leverage            float64 `mapstructure:"leverage"`
	RiskFraction        float64 `mapstructure:"risk_fraction"`
	MaxConcurrentTrades int     `mapstructure:"max_concurrent_trades"`
	MaxDrawdown         float64 `mapstructure:"max_drawdown"`
	MaxInactivityDays   float64 `mapstructure:"max_inactivity_days"`
	WarmupBars          int     `mapstructure:"warmup_bars"`
	Timeframe           string  `mapstructure:"timeframe"`
}

// SearchConfig contains the optimizer settings
type SearchConfig struct {
	Mode                 string          `mapstructure:"mode"`
	Strategy             string          `mapstructure:"strategy"`
	SpaceFile            string          `mapstructure:"space_file"` // YAML search space, empty uses the strategy defaults
	Threads              int             `mapstructure:"threads"`
	Seed                 int64           `mapstructure:"seed"`
	MinTrades            int             `mapstructure:"min_trades"`
	MaxDrawdown          float64         `mapstructure:"max_drawdown"`
	SimilarityTolerance  float64         `mapstructure:"similarity_tolerance"`
	BatchSize            int             `mapstructure:"batch_size"`
	RetentionCap         int             `mapstructure:"retention_cap"`
	RetentionTopFraction float64         `mapstructure:"retention_top_fraction"`
	Annealing            AnnealingConfig `mapstructure:"annealing"`
	Fitness              FitnessConfig   `mapstructure:"fitness"`
}

// AnnealingConfig contains the simulated annealing controls
type AnnealingConfig struct {
	InitialTemperature     float64 `mapstructure:"initial_temperature"`
	MinTemperature         float64 `mapstructure:"min_temperature"`
	CoolingRate            float64 `mapstructure:"cooling_rate"`
	Chains                 int     `mapstructure:"chains"`
	MaxStagnantSteps       int     `mapstructure:"max_stagnant_steps"`
	InjectionBudget        int     `mapstructure:"injection_budget"`
	ExplorationRate        float64 `mapstructure:"exploration_rate"`
	ExplorationDecay       float64 `mapstructure:"exploration_decay"`
	ExplorationFloor       float64 `mapstructure:"exploration_floor"`
	StallIterations        int     `mapstructure:"stall_iterations"`
	ConvergenceWindow      int     `mapstructure:"convergence_window"`
	ConvergenceDelta       float64 `mapstructure:"convergence_delta"`
	ConvergenceTemperature float64 `mapstructure:"convergence_temperature"`
	MaxEvaluations         int     `mapstructure:"max_evaluations"`
	SeedProbes             int     `mapstructure:"seed_probes"`
	ProbeSteps             int     `mapstructure:"probe_steps"`
	MinWinRate             float64 `mapstructure:"min_win_rate"`
	EarlyLeniency          float64 `mapstructure:"early_leniency"`
}

// FitnessConfig contains the fitness weights
type FitnessConfig struct {
	Profit             float64 `mapstructure:"profit"`
	Frequency          float64 `mapstructure:"frequency"`
	TargetTrades       int     `mapstructure:"target_trades"`
	Drawdown           float64 `mapstructure:"drawdown"`
	Inactivity         float64 `mapstructure:"inactivity"`
	InsufficientTrades float64 `mapstructure:"insufficient_trades"`
	EarlyTermination   float64 `mapstructure:"early_termination"`
}

// CheckpointConfig contains snapshot persistence settings
type CheckpointConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Store       string        `mapstructure:"store"` // file or redis
	Dir         string        `mapstructure:"dir"`
	Interval    time.Duration `mapstructure:"interval"`
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
	Prefix      string        `mapstructure:"prefix"`
	TTL         time.Duration `mapstructure:"ttl"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// MonitoringConfig contains metrics server settings
type MonitoringConfig struct {
	EnableMetrics bool `mapstructure:"enable_metrics"`
	MetricsPort   int  `mapstructure:"metrics_port"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Environment overrides, e.g. EZBOT_SEARCH_MODE=exhaustive
	v.SetEnvPrefix("EZBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "ezbot")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "console")

	// Data defaults
	v.SetDefault("data.source", SourceCSV)
	v.SetDefault("data.path", "data/bars.csv")
	v.SetDefault("data.symbol", "BTCUSDT")
	v.SetDefault("data.interval", "1h")
	v.SetDefault("data.limit", 0)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "ezbot")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 4)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Backtest defaults
	bt := backtest.DefaultOptions()
	v.SetDefault("backtest.initial_balance", bt.InitialBalance)
	v.SetDefault("backtest.fee_percent", bt.FeePercent)
	v.SetDefault("backtest.leverage", bt.Leverage)
	v.SetDefault("backtest.risk_fraction", bt.RiskFraction)
	v.SetDefault("backtest.max_concurrent_trades", bt.MaxConcurrentTrades)
	v.SetDefault("backtest.max_drawdown", bt.MaxDrawdown)
	v.SetDefault("backtest.max_inactivity_days", bt.MaxInactivityDays)
	v.SetDefault("backtest.warmup_bars", bt.WarmupBars)
	v.SetDefault("backtest.timeframe", "1h")

	// Search defaults
	sc := optimizer.DefaultConfig()
	v.SetDefault("search.mode", string(sc.Mode))
	v.SetDefault("search.strategy", sc.StrategyType)
	v.SetDefault("search.space_file", "")
	v.SetDefault("search.threads", 0)
	v.SetDefault("search.seed", 0)
	v.SetDefault("search.min_trades", sc.MinTrades)
	v.SetDefault("search.max_drawdown", sc.MaxDrawdown)
	v.SetDefault("search.similarity_tolerance", sc.SimilarityTolerance)
	v.SetDefault("search.batch_size", sc.BatchSize)
	v.SetDefault("search.retention_cap", sc.RetentionCap)
	v.SetDefault("search.retention_top_fraction", sc.RetentionTopFraction)

	a := sc.Annealing
	v.SetDefault("search.annealing.initial_temperature", a.InitialTemperature)
	v.SetDefault("search.annealing.min_temperature", a.MinTemperature)
	v.SetDefault("search.annealing.cooling_rate", a.CoolingRate)
	v.SetDefault("search.annealing.chains", a.Chains)
	v.SetDefault("search.annealing.max_stagnant_steps", a.MaxStagnantSteps)
	v.SetDefault("search.annealing.injection_budget", a.InjectionBudget)
	v.SetDefault("search.annealing.exploration_rate", a.ExplorationRate)
	v.SetDefault("search.annealing.exploration_decay", a.ExplorationDecay)
	v.SetDefault("search.annealing.exploration_floor", a.ExplorationFloor)
	v.SetDefault("search.annealing.stall_iterations", a.StallIterations)
	v.SetDefault("search.annealing.convergence_window", a.ConvergenceWindow)
	v.SetDefault("search.annealing.convergence_delta", a.ConvergenceDelta)
	v.SetDefault("search.annealing.convergence_temperature", a.ConvergenceTemperature)
	v.SetDefault("search.annealing.max_evaluations", a.MaxEvaluations)
	v.SetDefault("search.annealing.seed_probes", a.SeedProbes)
	v.SetDefault("search.annealing.probe_steps", a.ProbeSteps)
	v.SetDefault("search.annealing.min_win_rate", a.MinWinRate)
	v.SetDefault("search.annealing.early_leniency", a.EarlyLeniency)

	w := sc.Fitness
	v.SetDefault("search.fitness.profit", w.Profit)
	v.SetDefault("search.fitness.frequency", w.Frequency)
	v.SetDefault("search.fitness.target_trades", w.TargetTrades)
	v.SetDefault("search.fitness.drawdown", w.Drawdown)
	v.SetDefault("search.fitness.inactivity", w.Inactivity)
	v.SetDefault("search.fitness.insufficient_trades", w.InsufficientTrades)
	v.SetDefault("search.fitness.early_termination", w.EarlyTermination)

	// Checkpoint defaults
	v.SetDefault("checkpoint.enabled", true)
	v.SetDefault("checkpoint.store", StoreFile)
	v.SetDefault("checkpoint.dir", "checkpoints")
	v.SetDefault("checkpoint.interval", "1m")
	v.SetDefault("checkpoint.lock_timeout", "250ms")
	v.SetDefault("checkpoint.prefix", "ezbot:checkpoint:")
	v.SetDefault("checkpoint.ttl", "0s")
	v.SetDefault("checkpoint.timeout", "500ms")

	// Monitoring defaults
	v.SetDefault("monitoring.enable_metrics", true)
	v.SetDefault("monitoring.metrics_port", 9100)
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&pool_max_conns=%d",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode, c.PoolSize)
}

// GetRedisAddr returns the Redis address
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Options converts the backtest section into simulator options.
func (c *BacktestConfig) Options() (backtest.Options, error) {
	timeframe, err := backtest.ParseTimeframe(c.Timeframe)
	if err != nil {
		return backtest.Options{}, err
	}
	opts := backtest.Options{
		InitialBalance:      c.InitialBalance,
		FeePercent:          c.FeePercent,
		Leverage:            c.Leverage,
		RiskFraction:        c.RiskFraction,
		MaxConcurrentTrades: c.MaxConcurrentTrades,
		MaxDrawdown:         c.MaxDrawdown,
		MaxInactivityDays:   c.MaxInactivityDays,
		WarmupBars:          c.WarmupBars,
		Timeframe:           timeframe,
	}
	return opts, opts.Validate()
}

// OptimizerConfig converts the search section into optimizer settings.
func (c *SearchConfig) OptimizerConfig() (optimizer.Config, error) {
	mode, err := optimizer.ParseMode(c.Mode)
	if err != nil {
		return optimizer.Config{}, err
	}
	a := c.Annealing
	w := c.Fitness
	cfg := optimizer.Config{
		Mode:                 mode,
		StrategyType:         c.Strategy,
		Threads:              c.Threads,
		Seed:                 c.Seed,
		MinTrades:            c.MinTrades,
		MaxDrawdown:          c.MaxDrawdown,
		SimilarityTolerance:  c.SimilarityTolerance,
		BatchSize:            c.BatchSize,
		RetentionCap:         c.RetentionCap,
		RetentionTopFraction: c.RetentionTopFraction,
		Fitness: optimizer.FitnessWeights{
			Profit:             w.Profit,
			Frequency:          w.Frequency,
			TargetTrades:       w.TargetTrades,
			Drawdown:           w.Drawdown,
			Inactivity:         w.Inactivity,
			InsufficientTrades: w.InsufficientTrades,
			EarlyTermination:   w.EarlyTermination,
		},
		Annealing: optimizer.AnnealingConfig{
			InitialTemperature:     a.InitialTemperature,
			MinTemperature:         a.MinTemperature,
			CoolingRate:            a.CoolingRate,
			Chains:                 a.Chains,
			MaxStagnantSteps:       a.MaxStagnantSteps,
			InjectionBudget:        a.InjectionBudget,
			ExplorationRate:        a.ExplorationRate,
			ExplorationDecay:       a.ExplorationDecay,
			ExplorationFloor:       a.ExplorationFloor,
			StallIterations:        a.StallIterations,
			ConvergenceWindow:      a.ConvergenceWindow,
			ConvergenceDelta:       a.ConvergenceDelta,
			ConvergenceTemperature: a.ConvergenceTemperature,
			MaxEvaluations:         a.MaxEvaluations,
			SeedProbes:             a.SeedProbes,
			ProbeSteps:             a.ProbeSteps,
			MinWinRate:             a.MinWinRate,
			EarlyLeniency:          a.EarlyLeniency,
		},
	}
	return cfg, cfg.Validate()
}
