package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ceezar89/ezbot-sub000/internal/optimizer"
)

// defaultConfig returns the configuration built from defaults alone.
func defaultConfig(t *testing.T) *Config {
	t.Helper()
	v := viper.New()
	setDefaults(v)
	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))
	return &cfg
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := defaultConfig(t)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "ezbot", cfg.App.Name)
	assert.Equal(t, SourceCSV, cfg.Data.Source)
	assert.Equal(t, time.Minute, cfg.Checkpoint.Interval)
	assert.Equal(t, 250*time.Millisecond, cfg.Checkpoint.LockTimeout)
	assert.Equal(t, 9100, cfg.Monitoring.MetricsPort)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
app:
  log_level: debug
  log_format: json
search:
  mode: grid
  strategy: breakout
  threads: 2
  annealing:
    cooling_rate: 0.9
checkpoint:
  store: redis
  interval: 30s
backtest:
  timeframe: 4h
  warmup_bars: 20
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, "breakout", cfg.Search.Strategy)
	assert.Equal(t, 0.9, cfg.Search.Annealing.CoolingRate)
	assert.Equal(t, StoreRedis, cfg.Checkpoint.Store)
	assert.Equal(t, 30*time.Second, cfg.Checkpoint.Interval)

	oc, err := cfg.Search.OptimizerConfig()
	require.NoError(t, err)
	assert.Equal(t, optimizer.ModeExhaustive, oc.Mode)
	assert.Equal(t, 2, oc.Threads)

	opts, err := cfg.Backtest.Options()
	require.NoError(t, err)
	assert.Equal(t, 4*time.Hour, opts.Timeframe)
	assert.Equal(t, 20, opts.WarmupBars)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("EZBOT_SEARCH_MODE", "exhaustive")
	t.Setenv("EZBOT_BACKTEST_LEVERAGE", "3")

	cfg, err := Load(writeConfig(t, "app:\n  name: env-test\n"))
	require.NoError(t, err)
	assert.Equal(t, "exhaustive", cfg.Search.Mode)
	assert.Equal(t, 3.0, cfg.Backtest.Leverage)
	assert.Equal(t, "env-test", cfg.App.Name)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err, "an explicit path must exist")

	_, err = Load(writeConfig(t, "search: [unclosed\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "search:\n  mode: genetic\n"))
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "search", verrs[0].Field)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"bad environment", func(c *Config) { c.App.Environment = "qa" }, "app.environment"},
		{"bad log level", func(c *Config) { c.App.LogLevel = "loud" }, "app.log_level"},
		{"bad log format", func(c *Config) { c.App.LogFormat = "xml" }, "app.log_format"},
		{"unknown source", func(c *Config) { c.Data.Source = "s3" }, "data.source"},
		{"csv without path", func(c *Config) { c.Data.Path = "" }, "data.path"},
		{"postgres without symbol", func(c *Config) {
			c.Data.Source = SourcePostgres
			c.Data.Symbol = ""
		}, "data.symbol"},
		{"postgres bad port", func(c *Config) {
			c.Data.Source = SourcePostgres
			c.Database.Port = 70000
		}, "database.port"},
		{"bad timeframe", func(c *Config) { c.Backtest.Timeframe = "fortnight" }, "backtest"},
		{"bad leverage", func(c *Config) { c.Backtest.Leverage = 0 }, "backtest"},
		{"unknown strategy", func(c *Config) { c.Search.Strategy = "martingale" }, "search.strategy"},
		{"bad cooling rate", func(c *Config) { c.Search.Annealing.CoolingRate = 1.5 }, "search"},
		{"unknown store", func(c *Config) { c.Checkpoint.Store = "s3" }, "checkpoint.store"},
		{"redis without host", func(c *Config) {
			c.Checkpoint.Store = StoreRedis
			c.Redis.Host = ""
		}, "redis.host"},
		{"zero interval", func(c *Config) { c.Checkpoint.Interval = 0 }, "checkpoint.interval"},
		{"bad metrics port", func(c *Config) { c.Monitoring.MetricsPort = -1 }, "monitoring.metrics_port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig(t)
			tt.modify(cfg)

			err := cfg.Validate()
			var verrs ValidationErrors
			require.ErrorAs(t, err, &verrs)

			fields := make([]string, len(verrs))
			for i, e := range verrs {
				fields[i] = e.Field
			}
			assert.Contains(t, fields, tt.field)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestValidate_DisabledSectionsAreSkipped(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Checkpoint.Enabled = false
	cfg.Checkpoint.Store = "unused"
	cfg.Monitoring.EnableMetrics = false
	cfg.Monitoring.MetricsPort = -1
	assert.NoError(t, cfg.Validate())
}

func TestDatabaseURL(t *testing.T) {
	cfg := defaultConfig(t)
	t.Setenv("DATABASE_URL", "")
	assert.Equal(t, "postgres://postgres:@localhost:5432/ezbot?sslmode=disable&pool_max_conns=4", cfg.DatabaseURL())

	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/x")
	assert.Equal(t, "postgres://u:p@db:5432/x", cfg.DatabaseURL())
}

func TestValidator_Redis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := defaultConfig(t)
	cfg.Checkpoint.Store = StoreRedis
	cfg.Redis.Host = mr.Host()
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	cfg.Redis.Port = port

	opts := ValidatorOptions{VerifyConnectivity: true, Timeout: time.Second}
	assert.NoError(t, NewValidator(cfg, opts).ValidateStartup(context.Background()))

	mr.Close()
	assert.Error(t, NewValidator(cfg, opts).ValidateStartup(context.Background()))

	opts.VerifyConnectivity = false
	assert.NoError(t, NewValidator(cfg, opts).ValidateStartup(context.Background()))
}

func TestInitLogger(t *testing.T) {
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	var buf bytes.Buffer
	initLogger("debug", "json", &buf)
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
	assert.Contains(t, buf.String(), `"message":"Logger initialized"`)

	buf.Reset()
	logger := NewLogger("optimizer")
	logger.Info().Msg("hello")
	assert.Contains(t, buf.String(), `"component":"optimizer"`)

	initLogger("nonsense", "json", &buf)
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
