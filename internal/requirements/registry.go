package requirements

import (
	"errors"
	"fmt"

	"benchline/internal/domain"
)

// ErrSchemaNotFound means no work instructions are available for a department.
var ErrSchemaNotFound = errors.New("instructions unavailable")

// FlagSource decides whether a department gets its full or reduced schema.
type FlagSource interface {
	IsDepartmentEnabled(d domain.Department) bool
}

type Registry struct {
	schemas map[domain.Department]Schema
	flags   FlagSource
}

// NewRegistry builds the registry from the built-in catalog. A nil flag source
// treats every department as enabled.
func NewRegistry(flags FlagSource) (*Registry, error) {
	return newRegistry(catalog, flags)
}

func newRegistry(table map[domain.Department]Schema, flags FlagSource) (*Registry, error) {
	r := &Registry{schemas: make(map[domain.Department]Schema, len(table)), flags: flags}
	for _, info := range domain.Departments() {
		s, ok := table[info.Key]
		if !ok {
			return nil, fmt.Errorf("department %s has no requirement schema", info.Key)
		}
		s.Department = info.Key
		if s.Title == "" {
			s.Title = info.Name
		}
		s = s.clone()
		if err := s.Validate(); err != nil {
			return nil, err
		}
		r.schemas[info.Key] = s
	}
	for d := range table {
		if _, ok := d.Info(); !ok {
			return nil, fmt.Errorf("schema registered for unknown department %s", d)
		}
	}
	return r, nil
}

// Get returns the schema that applies to the department right now.
func (r *Registry) Get(d domain.Department) (Schema, error) {
	s, ok := r.schemas[d]
	if !ok {
		return Schema{}, fmt.Errorf("%w: %s", ErrSchemaNotFound, d)
	}
	if r.flags != nil && !r.flags.IsDepartmentEnabled(d) {
		return s.ReducedSchema(), nil
	}
	return s.clone(), nil
}

// Full returns the schema regardless of feature flags.
func (r *Registry) Full(d domain.Department) (Schema, error) {
	s, ok := r.schemas[d]
	if !ok {
		return Schema{}, fmt.Errorf("%w: %s", ErrSchemaNotFound, d)
	}
	return s.clone(), nil
}
