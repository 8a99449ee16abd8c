package cli

import (
	"context"
	"fmt"

	"github.com/lazypower/tether/internal/cache"
	"github.com/lazypower/tether/internal/classify"
	"github.com/lazypower/tether/internal/config"
	"github.com/lazypower/tether/internal/engine"
	"github.com/lazypower/tether/internal/llm"
	"github.com/lazypower/tether/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configPath string
	verbose    bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "tether",
	Short: "Behavioral drift detection and relationship health",
	Long: `Tether watches logged interactions for drift away from declared values and
goals, raises a small daily set of accountability alerts, and scores the
health of each relationship.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to tether.yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(driftCmd)
	rootCmd.AddCommand(relationshipsCmd)
}

// app is everything a command needs, torn down by close.
type app struct {
	cfg     config.Config
	db      *store.DB
	engine  *engine.Engine
	closers []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
	}
}

// openApp loads config, opens the database and wires the engine.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a := &app{cfg: cfg, db: db, closers: []func() error{db.Close}}

	c := buildCache(ctx, cfg.Cache)
	if closer, ok := c.(interface{ Close() error }); ok {
		a.closers = append(a.closers, closer.Close)
	}

	a.engine = engine.New(db, cfg, engine.Deps{
		Cache:      c,
		Classifier: buildClassifier(cfg.LLM),
		Log:        logger,
	})
	logger.Debug("runtime ready",
		zap.String("db", dbPath),
		zap.String("cache", cfg.Cache.Backend),
		zap.String("llm", cfg.LLM.Provider))
	return a, nil
}

// buildCache never fails: an unreachable Redis is kept, since every cache
// error already reads as a miss and the client reconnects on its own.
func buildCache(ctx context.Context, cfg config.CacheConfig) cache.Cache {
	switch cfg.Backend {
	case "redis":
		r := cache.NewRedis(cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := r.Ping(ctx); err != nil {
			logger.Warn("redis unreachable, computing uncached until it recovers",
				zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		return r
	case "none":
		return cache.Nop{}
	default:
		return cache.NewMemory()
	}
}

// buildClassifier prefers the configured LLM and falls back to the keyword
// heuristic when it fails or is not configured.
func buildClassifier(cfg config.LLMConfig) classify.Classifier {
	heuristic := classify.NewHeuristic()
	client, err := llm.NewClient(cfg)
	if err != nil {
		if cfg.Provider != "" {
			logger.Warn("llm classifier disabled", zap.Error(err))
		}
		return heuristic
	}
	return &classify.Fallback{
		Primary:   classify.NewLLM(client),
		Secondary: heuristic,
		Log:       logger.Named("classify"),
	}
}
