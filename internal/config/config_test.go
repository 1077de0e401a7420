package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"benchline/internal/domain"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default("atelier")
	if cfg.Shop.ID != "atelier" {
		t.Fatalf("shop id = %q", cfg.Shop.ID)
	}
	if cfg.AutosaveInterval() != 2*time.Minute {
		t.Fatalf("autosave interval = %v", cfg.AutosaveInterval())
	}
	if cfg.Storage.Driver != StorageDisk || cfg.Flags.Store != FlagStoreSQLite {
		t.Fatalf("unexpected drivers: %+v", cfg)
	}
}

func TestFromYAMLParsesSections(t *testing.T) {
	cfg, err := FromYAML([]byte(`shop:
  id: atelier
autosave:
  interval_seconds: 30
departments:
  disabled: [enameling, "stone-setting"]
flags:
  store: redis
  redis:
    addr: localhost:6379
storage:
  driver: minio
  minio:
    endpoint: localhost:9000
    bucket: bench
webhooks:
  - url: https://hooks.example.com/bench
    events: [work.completed]
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.AutosaveInterval() != 30*time.Second {
		t.Fatalf("interval = %v", cfg.AutosaveInterval())
	}
	got := cfg.DisabledDepartments()
	if len(got) != 2 || got[0] != domain.DepartmentEnameling || got[1] != domain.DepartmentStoneSetting {
		t.Fatalf("disabled = %v", got)
	}
	if len(cfg.Webhooks) != 1 || cfg.Webhooks[0].Events[0] != "work.completed" {
		t.Fatalf("webhooks = %+v", cfg.Webhooks)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"missing shop":      "autosave:\n  interval_seconds: 10\n",
		"bad department":    "shop:\n  id: a\ndepartments:\n  disabled: [MOLDING]\n",
		"redis no addr":     "shop:\n  id: a\nflags:\n  store: redis\n",
		"unknown store":     "shop:\n  id: a\nflags:\n  store: etcd\n",
		"minio no bucket":   "shop:\n  id: a\nstorage:\n  driver: minio\n  minio:\n    endpoint: x:9000\n",
		"bad webhook":       "shop:\n  id: a\nwebhooks:\n  - url: ftp://x\n",
		"bad log level":     "shop:\n  id: a\nlogging:\n  level: loud\n",
		"negative autosave": "shop:\n  id: a\nautosave:\n  interval_seconds: -1\n",
	}
	for name, doc := range cases {
		if _, err := FromYAML([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil || cfg != nil {
		t.Fatalf("missing file = %v, %v", cfg, err)
	}
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("Load on missing file = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "benchline.yml"), []byte(GenerateDefault("shop-9")), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadOptional(dir)
	if err != nil || cfg.Shop.ID != "shop-9" {
		t.Fatalf("loaded = %+v, %v", cfg, err)
	}
}
