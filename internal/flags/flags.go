// Package flags holds feature flags behind an injected service. Department
// flags decide whether a department presents its full requirement schema.
package flags

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"benchline/internal/domain"
)

const departmentPrefix = "department."

// DepartmentKey is the flag key that switches a department's full schema.
func DepartmentKey(d domain.Department) string {
	return departmentPrefix + string(d)
}

// Store persists flag values. Load returns every stored flag.
type Store interface {
	Load(ctx context.Context) ([]domain.FeatureFlag, error)
	Save(ctx context.Context, flag domain.FeatureFlag) error
}

type Service struct {
	mu       sync.RWMutex
	store    Store
	defaults map[string]bool
	values   map[string]domain.FeatureFlag
	loaded   bool
	Now      func() time.Time
}

// NewService builds a service over store. defaults apply to keys the store
// has never seen; department keys missing from both are enabled.
func NewService(store Store, defaults map[string]bool) *Service {
	d := make(map[string]bool, len(defaults))
	for k, v := range defaults {
		d[k] = v
	}
	return &Service{store: store, defaults: d, values: map[string]domain.FeatureFlag{}}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// LoadFlags replaces the cached values with what the store holds.
func (s *Service) LoadFlags(ctx context.Context) error {
	stored, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load flags: %w", err)
	}
	values := make(map[string]domain.FeatureFlag, len(stored))
	for _, f := range stored {
		values[f.Key] = f
	}
	s.mu.Lock()
	s.values = values
	s.loaded = true
	s.mu.Unlock()
	return nil
}

// Loaded reports whether LoadFlags has succeeded at least once.
func (s *Service) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// SetFlag persists the value first and only then updates the cache.
func (s *Service) SetFlag(ctx context.Context, key string, enabled bool) (domain.FeatureFlag, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.FeatureFlag{}, fmt.Errorf("flag key is required")
	}
	if err := validateKey(key); err != nil {
		return domain.FeatureFlag{}, err
	}
	f := domain.FeatureFlag{Key: key, Enabled: enabled, UpdatedAt: s.now().UTC().Format(time.RFC3339)}
	if err := s.store.Save(ctx, f); err != nil {
		return domain.FeatureFlag{}, fmt.Errorf("save flag %s: %w", key, err)
	}
	s.mu.Lock()
	s.values[key] = f
	s.mu.Unlock()
	return f, nil
}

func (s *Service) SetDepartmentEnabled(ctx context.Context, d domain.Department, enabled bool) (domain.FeatureFlag, error) {
	return s.SetFlag(ctx, DepartmentKey(d), enabled)
}

func (s *Service) Enabled(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabledLocked(key)
}

func (s *Service) enabledLocked(key string) bool {
	if f, ok := s.values[key]; ok {
		return f.Enabled
	}
	if v, ok := s.defaults[key]; ok {
		return v
	}
	return strings.HasPrefix(key, departmentPrefix)
}

// IsDepartmentEnabled satisfies requirements.FlagSource.
func (s *Service) IsDepartmentEnabled(d domain.Department) bool {
	return s.Enabled(DepartmentKey(d))
}

// Flags returns every known flag sorted by key: one per department plus any
// stored or defaulted key.
func (s *Service) Flags() []domain.FeatureFlag {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := map[string]struct{}{}
	for _, d := range domain.Departments() {
		keys[DepartmentKey(d.Key)] = struct{}{}
	}
	for k := range s.defaults {
		keys[k] = struct{}{}
	}
	for k := range s.values {
		keys[k] = struct{}{}
	}
	out := make([]domain.FeatureFlag, 0, len(keys))
	for k := range keys {
		f, ok := s.values[k]
		if !ok {
			f = domain.FeatureFlag{Key: k, Enabled: s.enabledLocked(k)}
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func validateKey(key string) error {
	if !strings.HasPrefix(key, departmentPrefix) {
		return nil
	}
	if _, err := domain.ParseDepartment(strings.TrimPrefix(key, departmentPrefix)); err != nil {
		return fmt.Errorf("flag %s: %w", key, err)
	}
	if strings.TrimPrefix(key, departmentPrefix) != strings.ToUpper(strings.TrimPrefix(key, departmentPrefix)) {
		return fmt.Errorf("flag %s: department keys are upper case", key)
	}
	return nil
}
