package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/vessel/internal/capture"
	"github.com/vessel/internal/config"
	"github.com/vessel/internal/database"
	"github.com/vessel/internal/logging"
	"github.com/vessel/internal/prompts"
	"github.com/vessel/internal/screening"
)

// memoryDB selects the in-memory store for --db.
const memoryDB = "memory"

// engine is everything a command needs to work with prompt chains.
type engine struct {
	cfg      *config.Config
	logger   zerolog.Logger
	manager  prompts.Manager
	registry *prompts.Registry
	db       *database.DB
}

func (e *engine) Close() {
	if e.db != nil {
		e.db.Close()
	}
}

// loadTree merges the configuration named by the global --config flag and
// applies the --log-level and --db overrides.
func loadTree(c *cli.Context) (*koanf.Koanf, error) {
	k, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	overrides := map[string]string{"general.log_level": c.String("log-level")}
	if db := c.String("db"); db != memoryDB {
		overrides["database.dsn"] = db
	}
	for key, val := range overrides {
		if val == "" {
			continue
		}
		if err := k.Set(key, val); err != nil {
			return nil, fmt.Errorf("override %s: %w", key, err)
		}
	}
	return k, nil
}

// loadConfig decodes and validates the merged configuration.
func loadConfig(c *cli.Context) (*config.Config, error) {
	k, err := loadTree(c)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Decode(k)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openEngine wires config, logging, storage, the template registry and the
// manager.
func openEngine(c *cli.Context) (*engine, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	logger, err := logging.Setup(cfg.General.LogLevel, cfg.General.LogFormat, os.Stderr)
	if err != nil {
		return nil, err
	}

	ctx := background(c)
	e := &engine{cfg: cfg, logger: logger}

	var store prompts.Store
	if c.String("db") == memoryDB {
		store = prompts.NewInMemoryStore()
	} else {
		db, err := database.NewDB(ctx, database.Options{
			Driver:         cfg.Database.Driver,
			DSN:            cfg.Database.DSN,
			ConnectRetries: cfg.Database.ConnectRetries,
		}, logger)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		e.db = db
		store = prompts.NewSQLStore(db)
	}

	reg, err := prompts.LoadBuiltinRegistry()
	if err != nil {
		e.Close()
		return nil, err
	}
	e.registry = reg

	opts := []prompts.ManagerOption{
		prompts.WithLogger(logger),
		prompts.WithAssemblerConfig(prompts.AssemblerConfig{
			CharsPerToken:      cfg.Assembly.CharsPerToken,
			DeviationThreshold: cfg.Assembly.DeviationThreshold,
		}),
	}
	if cfg.Screening.Enabled {
		s, err := screening.New(screening.Options{
			InjectionThreshold: cfg.Screening.InjectionThreshold,
			Secrets:            cfg.Screening.Secrets,
		}, logger)
		if err != nil {
			e.Close()
			return nil, err
		}
		opts = append(opts, prompts.WithScreener(s))
	}
	if cfg.Capture.Enabled {
		rec := capture.NewRecorder(cfg.Capture.Dir, logger)
		log.Info().Str("dir", rec.SessionDir()).Msg("capturing assembled prompts")
		opts = append(opts, prompts.WithRecorder(rec))
	}
	e.manager = prompts.NewManager(reg, store, opts...)

	if _, err := e.manager.LoadCustomTemplates(ctx); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func background(c *cli.Context) context.Context {
	if c.Context != nil {
		return c.Context
	}
	return context.Background()
}
