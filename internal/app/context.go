// Package app assembles a workspace into a running engine: config, logger,
// database, feature flag store, attachment store and notification fan-out.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"benchline/internal/config"
	"benchline/internal/db"
	"benchline/internal/engine"
	"benchline/internal/flags"
	"benchline/internal/logging"
	"benchline/internal/migrate"
	"benchline/internal/notify"
	"benchline/internal/repo"
	"benchline/internal/storage"
	"benchline/internal/submission"
)

type Options struct {
	// Logger overrides the logger built from the config's logging section.
	Logger *zap.Logger
	// Config overrides benchline.yml.
	Config *config.Config
}

// App is an opened workspace. Close it to flush open sessions.
type App struct {
	Workspace string
	Config    *config.Config
	DB        *sql.DB
	Engine    *engine.Engine
	Hub       *notify.Hub
	// Disk is set when attachments are stored on the local filesystem.
	Disk *storage.Disk
	Log  *zap.Logger

	closers []func() error
}

// Open loads the workspace config, migrates the database and wires the engine.
func Open(ctx context.Context, workspace string, opts Options) (*App, error) {
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return nil, err
	}
	cfg := opts.Config
	if cfg == nil {
		loaded, err := config.Load(workspace)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	log := opts.Logger
	if log == nil {
		l, err := logging.New(cfg.Logging)
		if err != nil {
			return nil, err
		}
		log = l
	}
	a := &App{Workspace: workspace, Config: cfg, Log: log}
	ok := false
	defer func() {
		if !ok {
			a.closeAll()
		}
	}()

	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	a.DB = conn
	a.closers = append(a.closers, conn.Close)
	applied, err := migrate.MigrateContext(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if len(applied) > 0 {
		log.Info("applied migrations", zap.Strings("versions", applied))
	}

	store, err := a.flagStore()
	if err != nil {
		return nil, err
	}
	files, err := a.attachmentStore(ctx)
	if err != nil {
		return nil, err
	}
	a.Hub = notify.NewHub(log)
	e, err := engine.New(conn, cfg, engine.Options{
		Flags:    flags.NewService(store, engine.FlagDefaults(cfg)),
		Files:    files,
		Notifier: notify.Multi{notify.Log{Logger: log}, a.Hub},
		Logger:   log,
	})
	if err != nil {
		return nil, err
	}
	if err := e.Flags.LoadFlags(ctx); err != nil {
		return nil, fmt.Errorf("load feature flags: %w", err)
	}
	a.Engine = e
	ok = true
	return a, nil
}

func (a *App) flagStore() (flags.Store, error) {
	switch a.Config.Flags.Store {
	case "", config.FlagStoreSQLite:
		return flags.SQLStore{Repo: repo.Repo{DB: a.DB}}, nil
	case config.FlagStoreRedis:
		rc := a.Config.Flags.Redis
		s := flags.NewRedisStore(rc.Addr, rc.Password, rc.DB)
		if rc.Key != "" {
			s.Key = rc.Key
		}
		a.closers = append(a.closers, s.Close)
		a.Log.Info("feature flags in redis", zap.String("addr", rc.Addr), zap.String("key", s.Key))
		return s, nil
	default:
		return nil, fmt.Errorf("unknown flag store %q", a.Config.Flags.Store)
	}
}

func (a *App) attachmentStore(ctx context.Context) (submission.AttachmentStore, error) {
	sc := a.Config.Storage
	switch sc.Driver {
	case "", config.StorageDisk:
		dir := sc.Disk.Dir
		if dir == "" {
			dir = filepath.Join(".benchline", "uploads")
		}
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(a.Workspace, dir)
		}
		d, err := storage.NewDisk(dir, sc.Disk.BaseURL)
		if err != nil {
			return nil, err
		}
		a.Disk = d
		return d, nil
	case config.StorageMinio:
		m, err := storage.NewMinio(storage.MinioConfig{
			Endpoint:   sc.Minio.Endpoint,
			AccessKey:  sc.Minio.AccessKey,
			SecretKey:  sc.Minio.SecretKey,
			Bucket:     sc.Minio.Bucket,
			UseSSL:     sc.Minio.UseSSL,
			PresignTTL: time.Duration(sc.Minio.PresignMinutes) * time.Minute,
		})
		if err != nil {
			return nil, err
		}
		if err := m.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("minio bucket: %w", err)
		}
		a.Log.Info("attachments in minio", zap.String("endpoint", sc.Minio.Endpoint), zap.String("bucket", sc.Minio.Bucket))
		return m, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", sc.Driver)
	}
}

// Close flushes dirty drafts, then releases stores and the database.
func (a *App) Close(ctx context.Context) error {
	if a.Engine != nil {
		a.Engine.CloseAll(ctx)
	}
	err := a.closeAll()
	_ = a.Log.Sync()
	return err
}

func (a *App) closeAll() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
