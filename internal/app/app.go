// Package app assembles the runtime graph from a loaded config.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"urbanmobility/internal/auth"
	"urbanmobility/internal/backup"
	"urbanmobility/internal/config"
	"urbanmobility/internal/cryptobox"
	"urbanmobility/internal/db"
	"urbanmobility/internal/ledger"
	"urbanmobility/internal/models"
	"urbanmobility/internal/policy"
	"urbanmobility/internal/rate"
	"urbanmobility/internal/recovery"
	"urbanmobility/internal/seclog"
	"urbanmobility/internal/service"
	"urbanmobility/internal/store"
)

type App struct {
	Config  config.Config
	Log     *zap.Logger
	DB      *db.Handle
	Store   *store.Store
	Audit   *seclog.Logger
	Backups *backup.Engine
	Service *service.Service
}

// Option overrides a collaborator, mostly for tests.
type Option func(*options)

type options struct {
	hasher auth.Hasher
}

func WithHasher(h auth.Hasher) Option {
	return func(o *options) { o.hasher = h }
}

// New opens the store, seeds the top-role account and wires every service.
// The caller owns the returned App and must Close it.
func New(ctx context.Context, cfg config.Config, log *zap.Logger, opts ...Option) (*App, error) {
	o := options{hasher: auth.Argon2{}}
	for _, opt := range opts {
		opt(&o)
	}
	if log == nil {
		log = zap.NewNop()
	}

	for _, dir := range []string{cfg.DataDir, cfg.BackupDir, filepath.Dir(cfg.AuditLogPath)} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	key, err := cryptobox.LoadOrCreateKey(cfg.KeyFile)
	if err != nil {
		return nil, err
	}
	box, err := cryptobox.New(key)
	if err != nil {
		return nil, err
	}

	h, err := db.Open(ctx, cfg.DBPath, cfg.DBMaxOpenConns, cfg.DBBusyTimeout)
	if err != nil {
		return nil, err
	}
	st := store.New(h, box)
	if err := seedSuperAdmin(ctx, st, o.hasher, cfg.SuperAdminPassword); err != nil {
		_ = h.Close()
		return nil, err
	}

	audit := seclog.New(cfg.AuditLogPath, box, log)
	pol := policy.New(policy.Options{AllowDirectRestore: cfg.AllowDirectRestore})
	throttle := rate.NewThrottle(
		rate.WithWindow(cfg.LoginWindow),
		rate.WithThreshold(cfg.LoginThreshold),
		rate.WithCooldown(cfg.LoginCooldown),
	)
	engine := backup.NewEngine(cfg.BackupDir, h, audit, log)
	orch := recovery.New(pol, ledger.New(st, o.hasher), engine, st, audit, log)

	svc := service.New(service.Deps{
		Store:    st,
		Policy:   pol,
		Throttle: throttle,
		Audit:    audit,
		Recovery: orch,
		Hasher:   o.hasher,
		Log:      log,
	})

	log.Info("app ready",
		zap.String("db", cfg.DBPath),
		zap.String("backups", cfg.BackupDir),
		zap.Bool("direct_restore", cfg.AllowDirectRestore))

	return &App{
		Config:  cfg,
		Log:     log,
		DB:      h,
		Store:   st,
		Audit:   audit,
		Backups: engine,
		Service: svc,
	}, nil
}

// seedSuperAdmin creates the top-role account on first run. An existing
// account keeps its hash.
func seedSuperAdmin(ctx context.Context, st *store.Store, hasher auth.Hasher, password string) error {
	if _, err := st.GetUserByUsername(ctx, models.SuperAdminUsername); err == nil {
		return nil
	}
	var hash string
	if password != "" {
		var err error
		if hash, err = hasher.Hash(password); err != nil {
			return fmt.Errorf("hash super admin password: %w", err)
		}
	}
	if err := st.EnsureSuperAdmin(ctx, hash); err != nil {
		return fmt.Errorf("seed super admin: %w", err)
	}
	return nil
}

func (a *App) Close() error {
	if a == nil || a.DB == nil {
		return nil
	}
	return a.DB.Close()
}
