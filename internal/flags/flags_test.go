package flags

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"benchline/internal/db"
	"benchline/internal/domain"
	"benchline/internal/migrate"
	"benchline/internal/repo"
)

type memStore struct {
	flags   map[string]domain.FeatureFlag
	saveErr error
}

func (m *memStore) Load(context.Context) ([]domain.FeatureFlag, error) {
	var out []domain.FeatureFlag
	for _, f := range m.flags {
		out = append(out, f)
	}
	return out, nil
}

func (m *memStore) Save(_ context.Context, f domain.FeatureFlag) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	if m.flags == nil {
		m.flags = map[string]domain.FeatureFlag{}
	}
	m.flags[f.Key] = f
	return nil
}

func TestDepartmentDefaults(t *testing.T) {
	svc := NewService(&memStore{}, map[string]bool{DepartmentKey(domain.DepartmentEnameling): false})
	if err := svc.LoadFlags(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !svc.IsDepartmentEnabled(domain.DepartmentCasting) {
		t.Fatalf("department flags default to enabled")
	}
	if svc.IsDepartmentEnabled(domain.DepartmentEnameling) {
		t.Fatalf("configured default ignored")
	}
	if svc.Enabled("reports.beta") {
		t.Fatalf("unknown non-department flag should be off")
	}
	if got := len(svc.Flags()); got != len(domain.Departments()) {
		t.Fatalf("expected one flag per department, got %d", got)
	}
}

func TestSetFlagPersistsBeforeCaching(t *testing.T) {
	store := &memStore{}
	svc := NewService(store, nil)
	svc.Now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	ctx := context.Background()

	f, err := svc.SetDepartmentEnabled(ctx, domain.DepartmentCasting, false)
	if err != nil {
		t.Fatal(err)
	}
	if f.UpdatedAt != "2024-01-02T03:04:05Z" || store.flags["department.CASTING"].Enabled {
		t.Fatalf("stored flag = %+v", store.flags)
	}
	if svc.IsDepartmentEnabled(domain.DepartmentCasting) {
		t.Fatalf("cache not updated")
	}

	store.saveErr = errors.New("disk full")
	if _, err := svc.SetDepartmentEnabled(ctx, domain.DepartmentCasting, true); err == nil {
		t.Fatalf("expected save error")
	}
	if svc.IsDepartmentEnabled(domain.DepartmentCasting) {
		t.Fatalf("failed save must not change cached value")
	}
}

func TestSetFlagRejectsBadDepartmentKeys(t *testing.T) {
	svc := NewService(&memStore{}, nil)
	ctx := context.Background()
	for _, key := range []string{"", "department.MOLDING", "department.casting"} {
		if _, err := svc.SetFlag(ctx, key, true); err == nil {
			t.Fatalf("expected error for %q", key)
		}
	}
	if _, err := svc.SetFlag(ctx, "reports.beta", true); err != nil {
		t.Fatalf("free-form key rejected: %v", err)
	}
}

func TestSQLStoreRoundTrip(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if _, err := migrate.Migrate(conn); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	store := SQLStore{Repo: repo.Repo{DB: conn}}
	svc := NewService(store, nil)
	if _, err := svc.SetDepartmentEnabled(ctx, domain.DepartmentFilling, false); err != nil {
		t.Fatal(err)
	}

	reloaded := NewService(store, nil)
	if err := reloaded.LoadFlags(ctx); err != nil {
		t.Fatal(err)
	}
	if reloaded.IsDepartmentEnabled(domain.DepartmentFilling) {
		t.Fatalf("flag not persisted")
	}
}

func TestRedisStoreSharesFlags(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	a := NewRedisStore(mr.Addr(), "", 0)
	defer a.Close()
	b := NewRedisStore(mr.Addr(), "", 0)
	defer b.Close()

	writer := NewService(a, nil)
	if _, err := writer.SetDepartmentEnabled(ctx, domain.DepartmentPolishing, false); err != nil {
		t.Fatal(err)
	}
	reader := NewService(b, nil)
	if reader.Loaded() {
		t.Fatalf("service should start unloaded")
	}
	if err := reader.LoadFlags(ctx); err != nil {
		t.Fatal(err)
	}
	if reader.IsDepartmentEnabled(domain.DepartmentPolishing) {
		t.Fatalf("flag not visible through shared store")
	}
	if !mr.Exists(DefaultRedisKey) {
		t.Fatalf("expected hash %s", DefaultRedisKey)
	}
}
