package pipeline

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"benchline/internal/domain"
)

var (
	ErrNotCompleted  = errors.New("current department is not completed")
	ErrOrderFinished = errors.New("order already finished")
)

// Pipeline is the canonical department order. Feature flags never change it.
type Pipeline struct {
	order []domain.Department
}

func Default() Pipeline {
	infos := domain.Departments()
	order := make([]domain.Department, 0, len(infos))
	for _, info := range infos {
		order = append(order, info.Key)
	}
	return Pipeline{order: order}
}

func (p Pipeline) Departments() []domain.Department {
	return append([]domain.Department{}, p.order...)
}

func (p Pipeline) First() domain.Department {
	return p.order[0]
}

// Index returns the 0-based position of d, or -1.
func (p Pipeline) Index(d domain.Department) int {
	for i, x := range p.order {
		if x == d {
			return i
		}
	}
	return -1
}

// Next returns the department after d, or DepartmentFinished after the last one.
func (p Pipeline) Next(d domain.Department) (domain.Department, error) {
	i := p.Index(d)
	if i < 0 {
		return "", fmt.Errorf("unknown department %s", d)
	}
	if i == len(p.order)-1 {
		return domain.DepartmentFinished, nil
	}
	return p.order[i+1], nil
}

// Advance is what changed on an order when its current department completed.
type Advance struct {
	From     domain.Department
	To       domain.Department
	Created  *domain.DepartmentTracking
	Finished bool
}

// NewTracking returns a NOT_STARTED tracking record for d.
func NewTracking(orderID string, d domain.Department) domain.DepartmentTracking {
	return domain.DepartmentTracking{
		ID:         uuid.NewString(),
		OrderID:    orderID,
		Department: d,
		Status:     domain.StatusNotStarted,
	}
}

// Advance moves the order past its completed current department. It mutates the
// order in memory; persisting the result is up to the caller.
func (p Pipeline) Advance(o *domain.Order) (Advance, error) {
	if o.Finished() {
		return Advance{}, ErrOrderFinished
	}
	cur, ok := o.TrackingFor(o.CurrentDepartment)
	if !ok {
		return Advance{}, fmt.Errorf("order %s has no tracking for %s", o.ID, o.CurrentDepartment)
	}
	if cur.Status != domain.StatusCompleted {
		return Advance{}, fmt.Errorf("%w: %s is %s", ErrNotCompleted, cur.Department, cur.Status)
	}
	next, err := p.Next(o.CurrentDepartment)
	if err != nil {
		return Advance{}, err
	}
	adv := Advance{From: o.CurrentDepartment, To: next}
	o.CurrentDepartment = next
	if next == domain.DepartmentFinished {
		adv.Finished = true
		return adv, nil
	}
	if _, exists := o.TrackingFor(next); !exists {
		t := NewTracking(o.ID, next)
		o.Tracking = append(o.Tracking, t)
		created := t
		adv.Created = &created
	}
	return adv, nil
}
