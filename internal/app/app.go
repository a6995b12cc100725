// Package app provides application-level wiring and dependency injection for
// the migration coordinator. There are no ambient globals: every component
// receives its collaborators and logger explicitly.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"

	"cutover/internal/config"
	"cutover/internal/domain"
	"cutover/internal/flagcache"
	"cutover/internal/history"
	"cutover/internal/metrics"
	"cutover/internal/monitor"
	"cutover/internal/orchestrator"
	"cutover/internal/provider"
	"cutover/internal/rollout"
	"cutover/internal/router"
	"cutover/internal/storequery"
	"cutover/internal/validator"
	"cutover/internal/worker"
)

// Deps holds the external dependencies that main() must provide.
type Deps struct {
	Cfg    *config.Config
	Logger *slog.Logger
}

// App holds the fully-wired coordinator. Conditional components are nil when
// their configuration is absent: Validator without backend DSNs, Orchestrator
// without a worker URL, Manifest without a manifest file.
type App struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Provider domain.ConfigProvider
	Flags    *flagcache.Cache
	Router   *router.Router
	Monitor  *monitor.Monitor

	Publisher    *monitor.Publisher
	History      *history.Store
	Controller   *rollout.Controller
	Manifest     *config.TableManifest
	Validator    *validator.Validator
	Orchestrator *orchestrator.Orchestrator

	sourceDB *sql.DB
	targetDB *sql.DB
}

// New wires all components from the provided deps.
func New(ctx context.Context, deps Deps) (*App, error) {
	cfg := deps.Cfg
	logger := deps.Logger

	a := &App{Cfg: cfg, Logger: logger}

	a.Provider = provider.NewFileProvider(cfg.FlagFilePath, logger.With("component", "provider"))
	a.Flags = flagcache.New(a.Provider, cfg.ConfigTTL, logger.With("component", "flagcache"))
	a.Router = router.New(a.Flags, logger.With("component", "router"))

	sink, err := buildSink(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Monitor = monitor.New(sink, logger.With("component", "monitor"))
	a.Publisher, err = monitor.NewPublisher(a.Monitor, cfg.PublishEvery)
	if err != nil {
		return nil, fmt.Errorf("configure summary publisher: %w", err)
	}

	a.History, err = history.Open(cfg.HistoryDBPath)
	if err != nil {
		return nil, err
	}

	a.Controller = rollout.New(a.Provider, a.Flags, a.Monitor, a.History,
		cfg.Rollout, logger.With("component", "rollout"))

	if err := a.loadManifest(); err != nil {
		a.closeAll()
		return nil, err
	}
	if err := a.wireValidator(); err != nil {
		a.closeAll()
		return nil, err
	}

	var w domain.MigrationWorker
	if cfg.WorkerURL != "" {
		w = worker.NewHTTPClient(cfg.WorkerURL, cfg.WorkerToken)
	}
	if w != nil {
		a.Orchestrator = orchestrator.New(w, a.Validator, a.History,
			cfg.Jobs, logger.With("component", "orchestrator"))
	}

	return a, nil
}

// Close releases database handles and stops background publishing.
func (a *App) Close() error {
	a.closeAll()
	return nil
}

// loadManifest reads the table manifest when the file exists. A missing
// manifest only disables the commands that need one.
func (a *App) loadManifest() error {
	if _, err := os.Stat(a.Cfg.TableManifest); errors.Is(err, os.ErrNotExist) {
		a.Logger.Debug("table manifest not found", "path", a.Cfg.TableManifest)
		return nil
	}
	m, err := config.LoadTableManifest(a.Cfg.TableManifest)
	if err != nil {
		return err
	}
	a.Manifest = m
	return nil
}

// wireValidator opens both backend handles and builds the validator. Skipped
// unless both DSNs are configured.
func (a *App) wireValidator() error {
	cfg := a.Cfg
	if !cfg.HasSourceStore() || !cfg.HasTargetStore() {
		return nil
	}

	var err error
	a.sourceDB, err = sql.Open(cfg.SourceDriver, cfg.SourceDSN)
	if err != nil {
		return fmt.Errorf("open source backend: %w", err)
	}
	a.targetDB, err = sql.Open(cfg.TargetDriver, cfg.TargetDSN)
	if err != nil {
		return fmt.Errorf("open target backend: %w", err)
	}

	metas := a.tableMetas()
	source := storequery.New(a.sourceDB, cfg.SourceDriver, metas, a.Logger.With("store", "source"))
	target := storequery.New(a.targetDB, cfg.TargetDriver, metas, a.Logger.With("store", "target"))

	a.Validator = validator.New(source, target, validator.Options{
		SampleSize:        cfg.Validation.SampleSize,
		AccuracyThreshold: cfg.Validation.AccuracyThreshold,
		TimeRangeSlack:    cfg.Validation.TimeRangeSlack,
	}, a.Logger.With("component", "validator"))
	return nil
}

// tableMetas maps manifest entries to store column metadata. Target locations
// are keyed too, since the target store is queried by location.
func (a *App) tableMetas() map[string]storequery.TableMeta {
	metas := make(map[string]storequery.TableMeta)
	if a.Manifest == nil {
		return metas
	}
	for _, t := range a.Manifest.Tables {
		meta := storequery.TableMeta{TimeColumn: t.TimeColumn, KeyColumn: t.KeyColumn}
		metas[t.Table] = meta
		if t.TargetLocation != "" {
			metas[t.TargetLocation] = meta
		}
	}
	return metas
}

func (a *App) closeAll() {
	if a.sourceDB != nil {
		_ = a.sourceDB.Close()
	}
	if a.targetDB != nil {
		_ = a.targetDB.Close()
	}
	if a.History != nil {
		_ = a.History.Close()
	}
}

func buildSink(cfg *config.Config, logger *slog.Logger) (domain.MetricsSink, error) {
	switch cfg.MetricsSink {
	case "prometheus":
		sink, err := metrics.NewPrometheusSink(prometheus.DefaultRegisterer)
		if err != nil {
			return nil, fmt.Errorf("register prometheus metrics: %w", err)
		}
		return sink, nil
	default:
		return metrics.NewLogSink(logger.With("component", "metrics")), nil
	}
}
