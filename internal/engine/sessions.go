package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"benchline/internal/domain"
	"benchline/internal/submission"
	"benchline/internal/validation"
)

type sessionKey struct {
	orderID string
	dept    domain.Department
}

// resolve maps an order id or reference plus an optional department onto a
// tracking key. An empty dept means the current department.
func (e *Engine) resolve(ctx context.Context, orderID string, dept domain.Department) (domain.Order, domain.DepartmentTracking, error) {
	o, err := e.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, domain.DepartmentTracking{}, err
	}
	if dept == "" {
		if o.Finished() {
			return o, domain.DepartmentTracking{}, fmt.Errorf("%w: order %s is finished", ErrInvalidInput, o.Reference)
		}
		dept = o.CurrentDepartment
	}
	t, ok := o.TrackingFor(dept)
	if !ok {
		return o, domain.DepartmentTracking{}, fmt.Errorf("%w: %s for order %s", ErrNotReached, dept, o.Reference)
	}
	return o, *t, nil
}

// OpenSession returns the live session for the order and department, creating
// it from stored state when none is open. The actor becomes the session's actor.
func (e *Engine) OpenSession(ctx context.Context, orderID string, dept domain.Department, actorID string) (*submission.Session, error) {
	o, t, err := e.resolve(ctx, orderID, dept)
	if err != nil {
		return nil, err
	}
	key := sessionKey{orderID: o.ID, dept: t.Department}
	if s := e.lookup(key); s != nil {
		s.SetActor(actorID)
		return s, nil
	}
	schema, err := e.Registry.Get(t.Department)
	if err != nil {
		return nil, err
	}
	s, err := submission.New(submission.Options{
		Ref:         submission.Ref{OrderID: o.ID, Department: t.Department, ActorID: actorID},
		Tracking:    t,
		Schema:      schema,
		Persistence: workStore{e: e},
		Attachments: e.Files,
		Notifier:    e.Notifier,
		Interval:    e.Config.AutosaveInterval(),
		Now:         e.now,
		Logger:      e.Log,
	})
	if err != nil {
		return nil, err
	}
	if t.Status == domain.StatusCompleted {
		// read-only; nothing to keep alive
		return s, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.sessions[key]; ok && !existing.Closed() {
		s.Close()
		existing.SetActor(actorID)
		return existing, nil
	}
	e.sessions[key] = s
	return s, nil
}

func (e *Engine) lookup(key sessionKey) *submission.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[key]
	if !ok {
		return nil
	}
	if s.Closed() {
		delete(e.sessions, key)
		return nil
	}
	return s
}

// CloseSession tears down the open session, if any. Unsaved edits are dropped.
func (e *Engine) CloseSession(ctx context.Context, orderID string, dept domain.Department) (bool, error) {
	o, t, err := e.resolve(ctx, orderID, dept)
	if err != nil {
		return false, err
	}
	key := sessionKey{orderID: o.ID, dept: t.Department}
	e.mu.Lock()
	s, ok := e.sessions[key]
	delete(e.sessions, key)
	e.mu.Unlock()
	if !ok {
		return false, nil
	}
	s.Close()
	return true, nil
}

// OpenSessions returns how many sessions are live.
func (e *Engine) OpenSessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

// CloseAll flushes dirty drafts where possible and closes every session.
func (e *Engine) CloseAll(ctx context.Context) {
	e.mu.Lock()
	sessions := e.sessions
	e.sessions = map[sessionKey]*submission.Session{}
	e.mu.Unlock()
	for key, s := range sessions {
		if s.Dirty() {
			if err := s.SaveDraft(ctx); err != nil {
				e.Log.Warn("flush draft on shutdown failed",
					zap.String("order_id", key.orderID),
					zap.String("department", string(key.dept)),
					zap.Error(err))
			}
		}
		s.Close()
	}
}

// StartWork begins work on a department and returns the tracking snapshot.
func (e *Engine) StartWork(ctx context.Context, orderID string, dept domain.Department, actorID string) (domain.DepartmentTracking, error) {
	s, err := e.OpenSession(ctx, orderID, dept, actorID)
	if err != nil {
		return domain.DepartmentTracking{}, err
	}
	if err := s.Start(ctx); err != nil {
		return domain.DepartmentTracking{}, err
	}
	return s.Snapshot(), nil
}

// EditWork applies field edits. They stay in the session until saved.
func (e *Engine) EditWork(ctx context.Context, orderID string, dept domain.Department, actorID string, fields map[string]any) (domain.DepartmentTracking, validation.Report, error) {
	s, err := e.OpenSession(ctx, orderID, dept, actorID)
	if err != nil {
		return domain.DepartmentTracking{}, validation.Report{}, err
	}
	if err := s.EditFields(fields); err != nil {
		return domain.DepartmentTracking{}, validation.Report{}, err
	}
	return s.Snapshot(), s.Report(), nil
}

// AttachmentKind selects the photo or file collection.
type AttachmentKind string

const (
	AttachmentPhoto AttachmentKind = "photo"
	AttachmentFile  AttachmentKind = "file"
)

func (e *Engine) AddAttachment(ctx context.Context, orderID string, dept domain.Department, actorID string, kind AttachmentKind, category string, up domain.Upload) (domain.Attachment, error) {
	s, err := e.OpenSession(ctx, orderID, dept, actorID)
	if err != nil {
		return domain.Attachment{}, err
	}
	switch kind {
	case AttachmentPhoto:
		return s.AddPhoto(ctx, category, up)
	case AttachmentFile:
		return s.AddFile(ctx, category, up)
	default:
		return domain.Attachment{}, fmt.Errorf("%w: attachment kind must be photo or file", ErrInvalidInput)
	}
}

func (e *Engine) RemoveAttachment(ctx context.Context, orderID string, dept domain.Department, actorID, attachmentID string) error {
	s, err := e.OpenSession(ctx, orderID, dept, actorID)
	if err != nil {
		return err
	}
	return s.RemoveAttachment(ctx, attachmentID)
}

func (e *Engine) SaveWork(ctx context.Context, orderID string, dept domain.Department, actorID string) (domain.DepartmentTracking, error) {
	s, err := e.OpenSession(ctx, orderID, dept, actorID)
	if err != nil {
		return domain.DepartmentTracking{}, err
	}
	if err := s.SaveDraft(ctx); err != nil {
		return domain.DepartmentTracking{}, err
	}
	return s.Snapshot(), nil
}

// SubmitWork completes the department when the submission is complete. The
// session is closed on success; on a validation failure it stays open.
func (e *Engine) SubmitWork(ctx context.Context, orderID string, dept domain.Department, actorID string) (validation.Report, error) {
	s, err := e.OpenSession(ctx, orderID, dept, actorID)
	if err != nil {
		return validation.Report{}, err
	}
	rep, err := s.Submit(ctx)
	if err != nil {
		return rep, err
	}
	ref := s.Ref()
	e.mu.Lock()
	if cur, ok := e.sessions[sessionKey{orderID: ref.OrderID, dept: ref.Department}]; ok && cur == s {
		delete(e.sessions, sessionKey{orderID: ref.OrderID, dept: ref.Department})
	}
	e.mu.Unlock()
	s.Close()
	return rep, nil
}

// WorkState returns the tracking record as the worker sees it: the open
// session's unsaved state when there is one, the stored state otherwise.
func (e *Engine) WorkState(ctx context.Context, orderID string, dept domain.Department) (domain.DepartmentTracking, error) {
	o, t, err := e.resolve(ctx, orderID, dept)
	if err != nil {
		return domain.DepartmentTracking{}, err
	}
	if s := e.lookup(sessionKey{orderID: o.ID, dept: t.Department}); s != nil {
		return s.Snapshot(), nil
	}
	return t, nil
}

// Report evaluates completion for the department without changing anything.
func (e *Engine) Report(ctx context.Context, orderID string, dept domain.Department) (validation.Report, error) {
	o, t, err := e.resolve(ctx, orderID, dept)
	if err != nil {
		return validation.Report{}, err
	}
	if s := e.lookup(sessionKey{orderID: o.ID, dept: t.Department}); s != nil {
		return s.Report(), nil
	}
	schema, err := e.Registry.Get(t.Department)
	if err != nil {
		return validation.Report{}, err
	}
	return validation.Evaluate(schema, t.Submission), nil
}
