// Strategy Optimizer CLI
// Searches a strategy's parameter space for the best simulated configuration
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Ceezar89/ezbot-sub000/internal/cache"
	"github.com/Ceezar89/ezbot-sub000/internal/checkpoint"
	"github.com/Ceezar89/ezbot-sub000/internal/config"
	"github.com/Ceezar89/ezbot-sub000/internal/data"
	"github.com/Ceezar89/ezbot-sub000/internal/metrics"
	"github.com/Ceezar89/ezbot-sub000/internal/optimizer"
	"github.com/Ceezar89/ezbot-sub000/pkg/backtest"
	"github.com/Ceezar89/ezbot-sub000/pkg/params"
	"github.com/Ceezar89/ezbot-sub000/pkg/strategy"
)

// ============================================================================
// CLI FLAGS
// ============================================================================

var (
	configPath = flag.String("config", "", "Path to config file (default ./configs/config.yaml)")

	// Overrides of the loaded configuration; unset flags keep the config values
	mode         = flag.String("mode", "", "Search mode (exhaustive, annealing)")
	strategyType = flag.String("strategy", "", "Strategy type (see -list)")
	spaceFile    = flag.String("space", "", "YAML search space (default: the strategy's built-in space)")
	dataPath     = flag.String("data", "", "CSV file with timestamp,open,high,low,close,volume")
	threads      = flag.Int("threads", 0, "Worker threads (default NumCPU-1)")
	seed         = flag.Int64("seed", 0, "Random seed (default: clock)")
	noCheckpoint = flag.Bool("no-checkpoint", false, "Disable checkpoint restore and saves")

	// Output
	outputFile = flag.String("output", "", "Write the JSON report to this file")
	topN       = flag.Int("top", 5, "Number of retained results to print")
	list       = flag.Bool("list", false, "List strategy types and exit")
	version    = flag.Bool("version", false, "Print version and exit")
)

// ============================================================================
// MAIN
// ============================================================================

func main() {
	flag.Parse()

	if *version {
		fmt.Println(config.GetVersion())
		return
	}
	if *list {
		printStrategies(os.Stdout)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := applyFlags(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("Optimizer failed")
		stop()
		os.Exit(1)
	}
}

// applyFlags copies explicitly set flags over the loaded configuration and
// revalidates it.
func applyFlags(cfg *config.Config) error {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "mode":
			cfg.Search.Mode = *mode
		case "strategy":
			cfg.Search.Strategy = *strategyType
		case "space":
			cfg.Search.SpaceFile = *spaceFile
		case "data":
			cfg.Data.Source = config.SourceCSV
			cfg.Data.Path = *dataPath
		case "threads":
			cfg.Search.Threads = *threads
		case "seed":
			cfg.Search.Seed = *seed
		case "no-checkpoint":
			cfg.Checkpoint.Enabled = !*noCheckpoint
		}
	})
	return cfg.Validate()
}

// ============================================================================
// SEARCH EXECUTION
// ============================================================================

func run(ctx context.Context, cfg *config.Config) error {
	validator := config.NewValidator(cfg, config.DefaultValidatorOptions())
	if err := validator.ValidateStartup(ctx); err != nil {
		return err
	}

	searchCfg, err := cfg.Search.OptimizerConfig()
	if err != nil {
		return err
	}
	opts, err := cfg.Backtest.Options()
	if err != nil {
		return err
	}

	bars, err := loadBars(ctx, cfg)
	if err != nil {
		return err
	}
	space, err := loadSpace(cfg.Search)
	if err != nil {
		return err
	}

	log.Info().
		Str("strategy", searchCfg.StrategyType).
		Str("mode", string(searchCfg.Mode)).
		Int("bars", len(bars)).
		Time("from", bars[0].Timestamp).
		Time("to", bars[len(bars)-1].Timestamp).
		Uint64("space", space.PermutationCount()).
		Msg("Starting optimizer")

	results := cache.New()
	var cp *checkpoint.Checkpointer
	if cfg.Checkpoint.Enabled {
		var closeStore func()
		cp, closeStore, err = openCheckpoint(ctx, cfg, searchCfg.StrategyType, results)
		if err != nil {
			return err
		}
		defer closeStore()
	}

	o, err := optimizer.New(searchCfg, bars, opts, results, nil)
	if err != nil {
		return err
	}
	if cp != nil {
		if best, ok := cp.LoadBest(ctx); ok {
			if err := o.RestoreBest(best); err != nil {
				log.Warn().Err(err).Msg("Ignoring checkpointed best result")
			} else {
				log.Info().Float64("fitness", best.Fitness).Str("run_id", best.RunID).Msg("Previous best restored")
			}
		}
	}

	if cfg.Monitoring.EnableMetrics {
		server := metrics.NewServer(cfg.Monitoring.MetricsPort, config.NewLogger("metrics"))
		server.SetStatus(o.Status)
		if err := server.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("Metrics server shutdown failed")
			}
		}()
	}

	// The checkpoint loop outlives the search by one final save.
	var wg sync.WaitGroup
	cpCtx, stopCheckpoints := context.WithCancel(context.Background())
	if cp != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cp.Run(cpCtx, cfg.Checkpoint.Interval, o)
		}()
	}

	report, err := o.Run(ctx, space)
	stopCheckpoints()
	wg.Wait()
	if err != nil {
		return err
	}

	printReport(os.Stdout, report, *topN)
	if *outputFile != "" {
		if err := writeReportFile(*outputFile, report); err != nil {
			return err
		}
		log.Info().Str("file", *outputFile).Msg("Report written")
	}
	return nil
}

func loadBars(ctx context.Context, cfg *config.Config) ([]backtest.Bar, error) {
	switch cfg.Data.Source {
	case config.SourcePostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pool.Close()
		return data.NewPostgresLoader(pool).Load(ctx, cfg.Data.Symbol, cfg.Data.Interval, cfg.Data.Limit)
	default:
		bars, err := data.LoadCSV(cfg.Data.Path)
		if err != nil {
			return nil, err
		}
		if limit := cfg.Data.Limit; limit > 0 && len(bars) > limit {
			bars = bars[len(bars)-limit:]
		}
		return bars, nil
	}
}

func loadSpace(sc config.SearchConfig) (*params.Vector, error) {
	if sc.SpaceFile == "" {
		return strategy.DefaultVector(sc.Strategy)
	}
	f, err := os.Open(sc.SpaceFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open search space: %w", err)
	}
	defer f.Close()

	space, err := params.LoadSpace(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", sc.SpaceFile, err)
	}
	// The space must build the selected strategy.
	if _, err := strategy.New(sc.Strategy, space.Clone()); err != nil {
		return nil, fmt.Errorf("%s does not fit strategy %s: %w", sc.SpaceFile, sc.Strategy, err)
	}
	return space, nil
}

// openCheckpoint opens the configured store and warms results from the last
// cache snapshot. The returned func closes the store.
func openCheckpoint(ctx context.Context, cfg *config.Config, strategyType string, results *cache.ResultCache) (*checkpoint.Checkpointer, func(), error) {
	store, closeStore, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	cp := checkpoint.New(store, strategyType, cfg.Checkpoint.LockTimeout)
	results.Restore(cp.LoadCache(ctx))
	return cp, closeStore, nil
}

func openStore(cfg *config.Config) (checkpoint.Store, func(), error) {
	if cfg.Checkpoint.Store != config.StoreRedis {
		store, err := checkpoint.NewFileStore(cfg.Checkpoint.Dir)
		return store, func() {}, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.GetRedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	store, err := checkpoint.NewRedisStore(client, checkpoint.RedisOptions{
		Prefix:  cfg.Checkpoint.Prefix,
		TTL:     cfg.Checkpoint.TTL,
		Timeout: cfg.Checkpoint.Timeout,
	})
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return store, func() {
		if err := client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			log.Warn().Err(err).Msg("Failed to close Redis client")
		}
	}, nil
}
