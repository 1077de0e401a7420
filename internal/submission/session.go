// Package submission holds the work-submission state machine for one
// (order, department) tracking record.
package submission

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"go.uber.org/zap"

	"benchline/internal/autosave"
	"benchline/internal/domain"
	"benchline/internal/notify"
	"benchline/internal/requirements"
	"benchline/internal/validation"
)

const autosaveTimeout = 30 * time.Second

// Ref identifies the tracking record a session works on and who is working.
type Ref struct {
	OrderID    string
	Department domain.Department
	ActorID    string
}

type Trigger string

const (
	TriggerManual   Trigger = "manual"
	TriggerAutosave Trigger = "autosave"
)

// Persistence applies session transitions to durable storage. Any error means
// the change was not applied.
type Persistence interface {
	Start(ctx context.Context, ref Ref, startedAt string) error
	Save(ctx context.Context, ref Ref, sub *domain.WorkSubmission, trigger Trigger) error
	Complete(ctx context.Context, ref Ref, sub *domain.WorkSubmission, completedAt string) error
}

// AttachmentStore keeps attachment bytes; the session only holds references.
type AttachmentStore interface {
	Upload(ctx context.Context, prefix, category string, up domain.Upload) (domain.Attachment, error)
	Delete(ctx context.Context, att domain.Attachment) error
}

type Options struct {
	Ref         Ref
	Tracking    domain.DepartmentTracking
	Schema      requirements.Schema
	Persistence Persistence
	Attachments AttachmentStore
	Notifier    notify.Notifier
	Interval    time.Duration
	Now         func() time.Time
	Logger      *zap.Logger
}

type Session struct {
	mu       sync.Mutex
	ref      Ref
	tracking domain.DepartmentTracking
	sub      *domain.WorkSubmission
	schema   requirements.Schema
	store    Persistence
	files    AttachmentStore
	notifier notify.Notifier
	now      func() time.Time
	log      *zap.Logger
	autosave *autosave.Task
	dirty    bool
	closed   bool
}

func New(opts Options) (*Session, error) {
	if opts.Persistence == nil {
		return nil, fmt.Errorf("persistence is required")
	}
	if opts.Tracking.Department != opts.Ref.Department {
		return nil, fmt.Errorf("tracking is for %s, not %s", opts.Tracking.Department, opts.Ref.Department)
	}
	s := &Session{
		ref:      opts.Ref,
		tracking: opts.Tracking,
		schema:   opts.Schema,
		store:    opts.Persistence,
		files:    opts.Attachments,
		notifier: opts.Notifier,
		now:      opts.Now,
		log:      opts.Logger,
	}
	if s.tracking.Status == "" {
		s.tracking.Status = domain.StatusNotStarted
	}
	if s.notifier == nil {
		s.notifier = notify.Nop{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	s.log = s.log.With(zap.String("order_id", opts.Ref.OrderID), zap.String("department", string(opts.Ref.Department)))
	if opts.Tracking.Submission != nil {
		s.sub = opts.Tracking.Submission.Clone()
		s.sub.Normalize()
	} else if s.tracking.Status != domain.StatusNotStarted {
		s.sub = domain.NewWorkSubmission()
	}
	s.tracking.Submission = nil
	s.autosave = autosave.New(opts.Interval, s.autosaveTick)
	if s.tracking.Status == domain.StatusCompleted {
		s.autosave.Stop()
	}
	return s, nil
}

func (s *Session) Ref() Ref {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ref
}

// SetActor records who performs the next operations.
func (s *Session) SetActor(actorID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ref.ActorID = actorID
}

// SetAssignee replaces the assigned worker after an out-of-session reassignment.
func (s *Session) SetAssignee(workerID *string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if workerID == nil {
		s.tracking.AssignedWorkerID = nil
		return
	}
	w := *workerID
	s.tracking.AssignedWorkerID = &w
}

func (s *Session) Schema() requirements.Schema {
	return s.schema
}

func (s *Session) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

// guard checks that op is allowed. Mutations need IN_PROGRESS.
func (s *Session) guard(op string, want domain.Status) error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.tracking.Status != want {
		return &IllegalTransitionError{Op: op, Status: s.tracking.Status}
	}
	return nil
}

// Start moves NOT_STARTED work to IN_PROGRESS with an empty submission.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard("start", domain.StatusNotStarted); err != nil {
		return err
	}
	ts := s.timestamp()
	if err := s.store.Start(ctx, s.ref, ts); err != nil {
		return &PersistenceError{Op: "start", Err: err}
	}
	s.tracking.Status = domain.StatusInProgress
	s.tracking.StartedAt = &ts
	// Persistence claims unassigned work for the actor; mirror it.
	if s.tracking.AssignedWorkerID == nil && s.ref.ActorID != "" {
		actor := s.ref.ActorID
		s.tracking.AssignedWorkerID = &actor
	}
	if s.sub == nil {
		s.sub = domain.NewWorkSubmission()
	}
	s.notify(ctx, notify.KindWorkStarted, "work started", nil)
	return nil
}

// Edit sets one form field. A nil value clears it.
func (s *Session) Edit(field string, value any) error {
	return s.EditFields(map[string]any{field: value})
}

// EditFields applies several field edits at once; unknown names reject the whole batch.
func (s *Session) EditFields(values map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard("edit", domain.StatusInProgress); err != nil {
		return err
	}
	for name := range values {
		if _, ok := s.schema.Field(name); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownField, name)
		}
	}
	if len(values) == 0 {
		return nil
	}
	for name, v := range values {
		if v == nil {
			delete(s.sub.FormData, name)
			continue
		}
		s.sub.FormData[name] = v
	}
	s.markDirty()
	return nil
}

func (s *Session) AddPhoto(ctx context.Context, category string, up domain.Upload) (domain.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard("add photo", domain.StatusInProgress); err != nil {
		return domain.Attachment{}, err
	}
	req, ok := s.schema.Photo(category)
	if !ok {
		return domain.Attachment{}, fmt.Errorf("%w: photo %s", ErrUnknownCategory, category)
	}
	if req.MaxCount > 0 && countCategory(s.sub.UploadedPhotos, category) >= req.MaxCount {
		return domain.Attachment{}, &AttachmentRejectedError{Category: category, Reason: fmt.Sprintf("at most %d photos allowed", req.MaxCount)}
	}
	att, err := s.upload(ctx, category, up)
	if err != nil {
		return domain.Attachment{}, err
	}
	s.sub.UploadedPhotos = append(s.sub.UploadedPhotos, att)
	s.markDirty()
	return att, nil
}

func (s *Session) AddFile(ctx context.Context, category string, up domain.Upload) (domain.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard("add file", domain.StatusInProgress); err != nil {
		return domain.Attachment{}, err
	}
	req, ok := s.schema.File(category)
	if !ok {
		return domain.Attachment{}, fmt.Errorf("%w: file %s", ErrUnknownCategory, category)
	}
	if !req.Accepts(up.Filename, up.ContentType) {
		return domain.Attachment{}, &AttachmentRejectedError{Category: category, Reason: fmt.Sprintf("format not accepted, expected one of %v", req.AcceptedFormats)}
	}
	if req.MaxSizeMB > 0 && float64(up.Size) > req.MaxSizeMB*1024*1024 {
		return domain.Attachment{}, &AttachmentRejectedError{Category: category, Reason: fmt.Sprintf("larger than %gMB", req.MaxSizeMB)}
	}
	att, err := s.upload(ctx, category, up)
	if err != nil {
		return domain.Attachment{}, err
	}
	// streamed uploads only know their size once stored
	if req.MaxSizeMB > 0 && float64(att.SizeBytes) > req.MaxSizeMB*1024*1024 {
		if derr := s.files.Delete(ctx, att); derr != nil {
			s.log.Warn("remove oversized upload failed", zap.String("url", att.URL), zap.Error(derr))
		}
		return domain.Attachment{}, &AttachmentRejectedError{Category: category, Reason: fmt.Sprintf("larger than %gMB", req.MaxSizeMB)}
	}
	s.sub.UploadedFiles = append(s.sub.UploadedFiles, att)
	s.markDirty()
	return att, nil
}

func (s *Session) upload(ctx context.Context, category string, up domain.Upload) (domain.Attachment, error) {
	if s.files == nil {
		return domain.Attachment{}, &PersistenceError{Op: "upload", Err: fmt.Errorf("no attachment store configured")}
	}
	prefix := path.Join(s.ref.OrderID, string(s.ref.Department))
	att, err := s.files.Upload(ctx, prefix, category, up)
	if err != nil {
		return domain.Attachment{}, &PersistenceError{Op: "upload", Err: err}
	}
	att.Category = category
	if att.UploadedAt == "" {
		att.UploadedAt = s.timestamp()
	}
	return att, nil
}

// RemoveAttachment deletes a photo or file by id.
func (s *Session) RemoveAttachment(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard("remove attachment", domain.StatusInProgress); err != nil {
		return err
	}
	photos, att, inPhotos := without(s.sub.UploadedPhotos, id)
	files, fileAtt, inFiles := without(s.sub.UploadedFiles, id)
	if !inPhotos && !inFiles {
		return fmt.Errorf("%w: %s", ErrNoAttachment, id)
	}
	if inFiles {
		att = fileAtt
	}
	if s.files != nil {
		if err := s.files.Delete(ctx, att); err != nil {
			return &PersistenceError{Op: "remove attachment", Err: err}
		}
	}
	s.sub.UploadedPhotos = photos
	s.sub.UploadedFiles = files
	s.markDirty()
	return nil
}

// SaveDraft persists the current submission and supersedes any pending autosave.
func (s *Session) SaveDraft(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard("save draft", domain.StatusInProgress); err != nil {
		return err
	}
	s.autosave.Cancel()
	return s.saveLocked(ctx, TriggerManual)
}

func (s *Session) saveLocked(ctx context.Context, trigger Trigger) error {
	ts := s.timestamp()
	draft := s.sub.Clone()
	draft.IsDraft = true
	draft.LastSavedAt = &ts
	if err := s.store.Save(ctx, s.ref, draft, trigger); err != nil {
		if s.dirty {
			s.autosave.Schedule()
		}
		s.notify(ctx, notify.KindSaveFailed, "draft not saved", map[string]any{"trigger": string(trigger), "error": err.Error()})
		return &PersistenceError{Op: "save draft", Err: err}
	}
	s.sub = draft
	s.dirty = false
	kind := notify.KindDraftSaved
	if trigger == TriggerAutosave {
		kind = notify.KindAutosaved
	}
	s.notify(ctx, kind, "draft saved", map[string]any{"last_saved_at": ts})
	return nil
}

func (s *Session) autosaveTick(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// superseded while waiting for the lock
	if !s.autosave.Current(gen) {
		return
	}
	if s.closed || s.tracking.Status != domain.StatusInProgress || !s.dirty {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), autosaveTimeout)
	defer cancel()
	if err := s.saveLocked(ctx, TriggerAutosave); err != nil {
		s.log.Warn("autosave failed", zap.Error(err))
		return
	}
	s.log.Debug("autosaved draft")
}

// Submit completes the work when nothing required is outstanding. On a
// ValidationFailedError the report is returned and nothing changes.
func (s *Session) Submit(ctx context.Context) (validation.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard("submit", domain.StatusInProgress); err != nil {
		return validation.Report{}, err
	}
	rep := validation.Evaluate(s.schema, s.sub)
	if !rep.CanSubmit() {
		s.notify(ctx, notify.KindSubmitRejected, "submission incomplete", map[string]any{"percent_complete": rep.PercentComplete})
		return rep, &ValidationFailedError{Report: rep}
	}
	s.autosave.Cancel()
	ts := s.timestamp()
	final := s.sub.Clone()
	final.IsComplete = true
	final.IsDraft = false
	final.LastSavedAt = &ts
	if err := s.store.Complete(ctx, s.ref, final, ts); err != nil {
		if s.dirty {
			s.autosave.Schedule()
		}
		return rep, &PersistenceError{Op: "submit", Err: err}
	}
	s.sub = final
	s.dirty = false
	s.tracking.Status = domain.StatusCompleted
	s.tracking.CompletedAt = &ts
	s.autosave.Stop()
	s.notify(ctx, notify.KindSubmitted, "work submitted", nil)
	return rep, nil
}

// Report evaluates the current submission without changing anything.
func (s *Session) Report() validation.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return validation.Evaluate(s.schema, s.sub)
}

// Close tears the session down. Unsaved edits are dropped and no autosave runs afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.autosave.Stop()
	if s.dirty {
		s.log.Warn("session closed with unsaved changes")
	}
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

func (s *Session) AutosavePending() bool {
	return s.autosave.Pending()
}

// Snapshot returns a copy of the tracking record with its submission.
func (s *Session) Snapshot() domain.DepartmentTracking {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.tracking
	out.Submission = s.sub.Clone()
	return out
}

func (s *Session) markDirty() {
	s.dirty = true
	s.autosave.Schedule()
}

func (s *Session) notify(ctx context.Context, kind notify.Kind, msg string, data map[string]any) {
	s.notifier.Notify(ctx, notify.Notification{
		Kind:       kind,
		OrderID:    s.ref.OrderID,
		Department: s.ref.Department,
		ActorID:    s.ref.ActorID,
		Message:    msg,
		At:         s.now().UTC(),
		Data:       data,
	})
}

func countCategory(items []domain.Attachment, category string) int {
	n := 0
	for _, a := range items {
		if a.Category == category {
			n++
		}
	}
	return n
}

func without(items []domain.Attachment, id string) ([]domain.Attachment, domain.Attachment, bool) {
	for i, a := range items {
		if a.ID == id {
			out := append(append([]domain.Attachment{}, items[:i]...), items[i+1:]...)
			return out, a, true
		}
	}
	return items, domain.Attachment{}, false
}
