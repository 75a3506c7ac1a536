package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"taskgate/internal/blob"
	"taskgate/internal/config"
	"taskgate/internal/db"
	"taskgate/internal/domain"
	"taskgate/internal/engine"
	"taskgate/internal/metrics"
	"taskgate/internal/migrate"
	"taskgate/internal/repo"
)

// Runtime is the wired workflow shared by the CLI and the HTTP server.
type Runtime struct {
	Workspace string
	Config    *config.Config
	Store     repo.Store
	Engine    engine.Engine
	Log       *zap.Logger
	Metrics   *metrics.Metrics
	Registry  *prometheus.Registry
	// BlobDir is the local directory icon uploads are written to.
	BlobDir string
}

// OpenStore opens the document store named by cfg.Store.Driver.
func OpenStore(ctx context.Context, workspace string, cfg *config.Config) (repo.Store, error) {
	switch cfg.Store.Driver {
	case "", "sqlite":
		conn, err := db.Open(db.Config{Workspace: workspace, DSN: cfg.Store.DSN})
		if err != nil {
			return nil, err
		}
		if err := migrate.MigrateContext(ctx, conn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return repo.NewSQLStore(conn), nil
	case "postgres":
		if cfg.Store.DSN == "" {
			return nil, errors.New("store.dsn is required for the postgres driver")
		}
		return repo.OpenGorm(repo.GormConfig{DSN: cfg.Store.DSN, LogLevel: cfg.Store.LogLevel})
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// Open wires store, metrics, icon storage and engine for workspace, seeding
// the default configuration when the store has none.
func Open(ctx context.Context, workspace string, cfg *config.Config, log *zap.Logger) (*Runtime, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = zap.NewNop()
	}
	store, err := OpenStore(ctx, workspace, cfg)
	if err != nil {
		return nil, err
	}
	reg := prometheus.NewRegistry()
	m := metrics.New(cfg.Metrics.Prefix, reg)
	store = repo.Instrument(store, m.StoreHook)

	eng := engine.New(store, cfg)
	eng.Log = log
	eng.Metrics = m
	blobDir := blobRoot(workspace, cfg.Blob.Dir)
	eng.Blobs = blob.Dir{Root: blobDir, BaseURL: cfg.Blob.PublicBaseURL}

	seeded, err := SeedDefault(ctx, eng.Repo, cfg, time.Now())
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("seed default config: %w", err)
	}
	if seeded {
		log.Info("default config seeded", zap.String("provider_id", cfg.DefaultProvider.ID))
	}
	return &Runtime{
		Workspace: workspace,
		Config:    cfg,
		Store:     store,
		Engine:    eng,
		Log:       log,
		Metrics:   m,
		Registry:  reg,
		BlobDir:   blobDir,
	}, nil
}

func (rt *Runtime) Close() error {
	if rt == nil || rt.Store == nil {
		return nil
	}
	return rt.Store.Close()
}

func blobRoot(workspace, dir string) string {
	if dir == "" {
		dir = filepath.Join(".taskgate", "blobs")
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, dir)
}

// SeedDefault writes the configured default provider with no tasks when the
// store holds no default configuration. It reports whether it wrote.
func SeedDefault(ctx context.Context, r repo.Repo, cfg *config.Config, now time.Time) (bool, error) {
	if _, err := r.GetDefault(ctx); err == nil {
		return false, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return false, err
	}
	dp := cfg.DefaultProvider
	b := domain.ConfigBundle{
		Provider: domain.Provider{
			ID:                 dp.ID,
			Name:               dp.Name,
			Domain:             dp.Domain,
			PackageNameIOS:     dp.PackageIOS,
			PackageNameAndroid: dp.PackageAndroid,
			IconPathLight:      dp.IconPathLight,
		},
		UpdatedAt: now.UTC().Format(time.RFC3339),
	}
	b.Normalize()
	if err := r.PutDefault(ctx, b); err != nil {
		return false, err
	}
	return true, nil
}
