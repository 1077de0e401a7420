package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"benchline/internal/activity"
	"benchline/internal/config"
	"benchline/internal/domain"
	"benchline/internal/flags"
	"benchline/internal/notify"
	"benchline/internal/pipeline"
	"benchline/internal/repo"
	"benchline/internal/requirements"
	"benchline/internal/submission"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotReached means the order has no tracking record for the department yet.
	ErrNotReached = errors.New("department not reached")
)

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Activity activity.Writer
	Config   *config.Config
	Registry *requirements.Registry
	Pipeline pipeline.Pipeline
	Flags    *flags.Service
	Files    submission.AttachmentStore
	Notifier notify.Notifier
	Log      *zap.Logger
	Now      func() time.Time

	mu       sync.Mutex
	sessions map[sessionKey]*submission.Session
}

// Options carries the collaborators that differ between the CLI, the server and tests.
type Options struct {
	Flags    *flags.Service
	Files    submission.AttachmentStore
	Notifier notify.Notifier
	Logger   *zap.Logger
	Now      func() time.Time
}

func New(db *sql.DB, cfg *config.Config, opts Options) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("config not loaded")
	}
	e := &Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Config:   cfg,
		Pipeline: pipeline.Default(),
		Flags:    opts.Flags,
		Files:    opts.Files,
		Notifier: opts.Notifier,
		Log:      opts.Logger,
		Now:      opts.Now,
		sessions: map[sessionKey]*submission.Session{},
	}
	if e.Log == nil {
		e.Log = zap.NewNop()
	}
	if e.Now == nil {
		e.Now = time.Now
	}
	if e.Flags == nil {
		e.Flags = flags.NewService(flags.SQLStore{Repo: e.Repo}, FlagDefaults(cfg))
	}
	if e.Notifier == nil {
		e.Notifier = notify.Log{Logger: e.Log}
	}
	e.Activity = activity.Writer{Now: e.now}
	reg, err := requirements.NewRegistry(e.Flags)
	if err != nil {
		return nil, fmt.Errorf("build requirement registry: %w", err)
	}
	e.Registry = reg
	return e, nil
}

// FlagDefaults turns the departments disabled in config into flag defaults.
func FlagDefaults(cfg *config.Config) map[string]bool {
	out := map[string]bool{}
	for _, d := range cfg.DisabledDepartments() {
		out[flags.DepartmentKey(d)] = false
	}
	return out
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// withTx runs fn in one transaction; any error rolls everything back.
func (e *Engine) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// DepartmentStatus is one row of the department overview.
type DepartmentStatus struct {
	domain.DepartmentInfo
	Enabled bool `json:"enabled"`
	Orders  int  `json:"orders"`
}

func (e *Engine) Departments(ctx context.Context) ([]DepartmentStatus, error) {
	counts, err := e.Repo.CountOrdersByDepartment(ctx)
	if err != nil {
		return nil, err
	}
	var out []DepartmentStatus
	for _, info := range domain.Departments() {
		out = append(out, DepartmentStatus{
			DepartmentInfo: info,
			Enabled:        e.Flags.IsDepartmentEnabled(info.Key),
			Orders:         counts[info.Key],
		})
	}
	return out, nil
}

// Schema returns the requirement schema currently presented for d.
func (e *Engine) Schema(d domain.Department) (requirements.Schema, error) {
	return e.Registry.Get(d)
}

// SetDepartmentEnabled flips a department flag. Open sessions keep the schema
// they were opened with.
func (e *Engine) SetDepartmentEnabled(ctx context.Context, d domain.Department, enabled bool) (domain.FeatureFlag, error) {
	if _, ok := d.Info(); !ok {
		return domain.FeatureFlag{}, fmt.Errorf("%w: unknown department %s", ErrInvalidInput, d)
	}
	f, err := e.Flags.SetDepartmentEnabled(ctx, d, enabled)
	if err != nil {
		return domain.FeatureFlag{}, err
	}
	e.Log.Info("department flag changed", zap.String("department", string(d)), zap.Bool("enabled", enabled))
	return f, nil
}
