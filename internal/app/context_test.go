package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"

	"benchline/internal/config"
	"benchline/internal/domain"
	"benchline/internal/engine"
)

func TestOpenDefaultWorkspace(t *testing.T) {
	workspace := t.TempDir()
	if err := os.WriteFile(config.Path(workspace), []byte(config.GenerateDefault("shop-1")), 0o644); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	a, err := Open(ctx, workspace, Options{Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer a.Close(ctx)

	if a.Disk == nil || !strings.HasPrefix(a.Disk.Dir, workspace) {
		t.Fatalf("disk store = %+v", a.Disk)
	}
	o, err := a.Engine.CreateOrder(ctx, engine.OrderCreateOptions{Reference: "JOB-1", ActorID: "manager"})
	if err != nil {
		t.Fatal(err)
	}
	if o.CurrentDepartment != domain.DepartmentCAD {
		t.Fatalf("current = %s", o.CurrentDepartment)
	}
}

func TestOpenMissingConfig(t *testing.T) {
	_, err := Open(context.Background(), t.TempDir(), Options{Logger: zap.NewNop()})
	if err == nil || !strings.Contains(err.Error(), "bl init") {
		t.Fatalf("expected missing config error, got %v", err)
	}
}

func TestOpenRedisFlags(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default("shop-1")
	cfg.Flags.Store = config.FlagStoreRedis
	cfg.Flags.Redis.Addr = mr.Addr()
	cfg.Flags.Redis.Key = "shop-1:flags"
	cfg.Storage.Disk.Dir = filepath.Join(t.TempDir(), "uploads")

	ctx := context.Background()
	a, err := Open(ctx, t.TempDir(), Options{Logger: zap.NewNop(), Config: cfg})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer a.Close(ctx)

	if _, err := a.Engine.SetDepartmentEnabled(ctx, domain.DepartmentPolishing, false); err != nil {
		t.Fatal(err)
	}
	if !mr.Exists("shop-1:flags") {
		t.Fatal("flag not written to redis")
	}
	if v := mr.HGet("shop-1:flags", "department.POLISHING"); !strings.Contains(v, `"enabled":false`) {
		t.Fatalf("stored flag = %q", v)
	}
}

func TestOpenUnknownStorage(t *testing.T) {
	cfg := config.Default("shop-1")
	cfg.Storage.Driver = "tape"
	_, err := Open(context.Background(), t.TempDir(), Options{Logger: zap.NewNop(), Config: cfg})
	if err == nil || !strings.Contains(err.Error(), "tape") {
		t.Fatalf("expected storage error, got %v", err)
	}
}
