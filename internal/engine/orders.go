package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"benchline/internal/activity"
	"benchline/internal/domain"
	"benchline/internal/pipeline"
	"benchline/internal/repo"
)

// OrderCreateOptions are parameters for creating an order.
type OrderCreateOptions struct {
	ID          string
	Reference   string
	Customer    string
	Description string
	Priority    string
	DueDate     string
	AssigneeID  string
	ActorID     string
}

// CreateOrder registers an order and opens tracking for the first department.
func (e *Engine) CreateOrder(ctx context.Context, opts OrderCreateOptions) (domain.Order, error) {
	ref := strings.TrimSpace(opts.Reference)
	if ref == "" {
		return domain.Order{}, fmt.Errorf("%w: reference is required", ErrInvalidInput)
	}
	prio, err := domain.ParsePriority(opts.Priority)
	if err != nil {
		return domain.Order{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	due, err := normalizeDueDate(opts.DueDate)
	if err != nil {
		return domain.Order{}, err
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := e.timestamp()
	o := domain.Order{
		ID:                id,
		Reference:         ref,
		Customer:          strings.TrimSpace(opts.Customer),
		Description:       opts.Description,
		Priority:          prio,
		DueDate:           due,
		CurrentDepartment: e.Pipeline.First(),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	first := pipeline.NewTracking(o.ID, o.CurrentDepartment)
	if opts.AssigneeID != "" {
		worker := opts.AssigneeID
		first.AssignedWorkerID = &worker
	}
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertOrderTx(ctx, tx, o); err != nil {
			return err
		}
		if err := e.Repo.InsertTrackingTx(ctx, tx, first); err != nil {
			return fmt.Errorf("insert tracking: %w", err)
		}
		if err := e.Activity.Record(ctx, tx, o.ID, "", domain.ActionOrderCreated, opts.ActorID, activity.Metadata{
			"reference": o.Reference,
			"priority":  string(o.Priority),
		}); err != nil {
			return err
		}
		if err := e.Activity.Record(ctx, tx, o.ID, first.Department, domain.ActionStageEntered, opts.ActorID, nil); err != nil {
			return err
		}
		if first.AssignedWorkerID != nil {
			return e.Activity.Record(ctx, tx, o.ID, first.Department, domain.ActionWorkerAssigned, opts.ActorID, activity.Metadata{
				"from": nil,
				"to":   *first.AssignedWorkerID,
			})
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	e.Log.Info("order created", zap.String("order_id", o.ID), zap.String("reference", o.Reference))
	return e.Repo.GetOrder(ctx, o.ID)
}

func normalizeDueDate(v string) (*string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	if _, err := time.Parse("2006-01-02", v); err == nil {
		return &v, nil
	}
	ts, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("%w: due date must be YYYY-MM-DD or RFC3339", ErrInvalidInput)
	}
	day := ts.UTC().Format("2006-01-02")
	return &day, nil
}

// GetOrder resolves an order by id, falling back to its shop reference.
func (e *Engine) GetOrder(ctx context.Context, idOrRef string) (domain.Order, error) {
	o, err := e.Repo.GetOrder(ctx, idOrRef)
	if errors.Is(err, repo.ErrNotFound) {
		return e.Repo.GetOrderByReference(ctx, idOrRef)
	}
	return o, err
}

func (e *Engine) ListOrders(ctx context.Context, f repo.OrderFilters) ([]domain.Order, error) {
	if f.Department != "" {
		d, err := parseStage(f.Department)
		if err != nil {
			return nil, err
		}
		f.Department = string(d)
	}
	if f.Priority != "" {
		p, err := domain.ParsePriority(f.Priority)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		f.Priority = string(p)
	}
	return e.Repo.ListOrders(ctx, f)
}

// parseStage accepts any department key plus FINISHED.
func parseStage(v string) (domain.Department, error) {
	if strings.EqualFold(strings.TrimSpace(v), string(domain.DepartmentFinished)) {
		return domain.DepartmentFinished, nil
	}
	d, err := domain.ParseDepartment(v)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return d, nil
}

// AssignWorker sets or clears the worker of a department's tracking record. An
// empty dept means the order's current department.
func (e *Engine) AssignWorker(ctx context.Context, orderID string, dept domain.Department, workerID, actorID string) (domain.DepartmentTracking, error) {
	o, err := e.GetOrder(ctx, orderID)
	if err != nil {
		return domain.DepartmentTracking{}, err
	}
	if dept == "" {
		if o.Finished() {
			return domain.DepartmentTracking{}, fmt.Errorf("%w: order %s is finished", ErrInvalidInput, o.Reference)
		}
		dept = o.CurrentDepartment
	}
	t, ok := o.TrackingFor(dept)
	if !ok {
		return domain.DepartmentTracking{}, fmt.Errorf("%w: %s for order %s", ErrNotReached, dept, o.Reference)
	}
	if t.Status == domain.StatusCompleted {
		return domain.DepartmentTracking{}, fmt.Errorf("%w: %s is already completed", ErrInvalidInput, dept)
	}
	var from any
	if t.AssignedWorkerID != nil {
		from = *t.AssignedWorkerID
	}
	var to *string
	if w := strings.TrimSpace(workerID); w != "" {
		to = &w
	}
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.AssignWorkerTx(ctx, tx, t.ID, to); err != nil {
			return err
		}
		if err := e.Repo.TouchOrderTx(ctx, tx, o.ID, e.timestamp()); err != nil {
			return err
		}
		var toVal any
		if to != nil {
			toVal = *to
		}
		return e.Activity.Record(ctx, tx, o.ID, dept, domain.ActionWorkerAssigned, actorID, activity.Metadata{"from": from, "to": toVal})
	})
	if err != nil {
		return domain.DepartmentTracking{}, err
	}
	if s := e.lookup(sessionKey{orderID: o.ID, dept: dept}); s != nil {
		s.SetAssignee(to)
	}
	return e.Repo.GetTracking(ctx, o.ID, dept)
}

// OrderActivity lists the order's log in timestamp order.
func (e *Engine) OrderActivity(ctx context.Context, orderID string) ([]domain.ActivityEntry, error) {
	o, err := e.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return e.Repo.ListActivity(ctx, repo.ActivityFilters{OrderID: o.ID})
}
