package engine_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"benchline/internal/config"
	"benchline/internal/db"
	"benchline/internal/domain"
	"benchline/internal/engine"
	"benchline/internal/migrate"
	"benchline/internal/repo"
	"benchline/internal/requirements"
	"benchline/internal/submission"
)

type memFiles struct {
	mu      sync.Mutex
	n       int
	deleted []string
}

func (m *memFiles) Upload(_ context.Context, prefix, category string, up domain.Upload) (domain.Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.n++
	id := fmt.Sprintf("att-%d", m.n)
	return domain.Attachment{ID: id, Category: category, URL: "mem://" + prefix + "/" + id, Filename: up.Filename}, nil
}

func (m *memFiles) Delete(_ context.Context, att domain.Attachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, att.ID)
	return nil
}

type testEnv struct {
	Engine *engine.Engine
	Files  *memFiles
	Ctx    context.Context
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if _, err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("shop-1")
	for _, m := range mutate {
		m(cfg)
	}
	files := &memFiles{}
	var mu sync.Mutex
	clock := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	eng, err := engine.New(conn, cfg, engine.Options{
		Files: files,
		Now: func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			clock = clock.Add(time.Second)
			return clock
		},
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	ctx := context.Background()
	if err := eng.Flags.LoadFlags(ctx); err != nil {
		t.Fatalf("load flags: %v", err)
	}
	t.Cleanup(func() { eng.CloseAll(context.Background()) })
	return testEnv{Engine: eng, Files: files, Ctx: ctx}
}

func (env testEnv) createOrder(t *testing.T, ref string) domain.Order {
	t.Helper()
	o, err := env.Engine.CreateOrder(env.Ctx, engine.OrderCreateOptions{Reference: ref, Customer: "Ada", ActorID: "manager"})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return o
}

func satisfyingValue(f requirements.FormField) any {
	switch f.Type {
	case requirements.FieldCheckbox:
		return true
	case requirements.FieldNumber:
		if f.Min != nil {
			return *f.Min
		}
		return 1.0
	case requirements.FieldSelect:
		return f.Options[0]
	case requirements.FieldDate:
		return "2024-01-01"
	}
	n := 1
	if f.MinLength != nil {
		n = *f.MinLength
	}
	return strings.Repeat("x", n)
}

// completeDepartment fills every requirement of the order's current department and submits.
func (env testEnv) completeDepartment(t *testing.T, orderID string, worker string) domain.Department {
	t.Helper()
	o, err := env.Engine.GetOrder(env.Ctx, orderID)
	if err != nil {
		t.Fatal(err)
	}
	dept := o.CurrentDepartment
	if _, err := env.Engine.StartWork(env.Ctx, orderID, "", worker); err != nil {
		t.Fatalf("%s start: %v", dept, err)
	}
	schema, err := env.Engine.Schema(dept)
	if err != nil {
		t.Fatal(err)
	}
	fields := map[string]any{}
	for _, f := range schema.Fields {
		if f.Required {
			fields[f.Name] = satisfyingValue(f)
		}
	}
	if _, _, err := env.Engine.EditWork(env.Ctx, orderID, dept, worker, fields); err != nil {
		t.Fatalf("%s edit: %v", dept, err)
	}
	for _, p := range schema.Photos {
		if !p.Required {
			continue
		}
		for i := 0; i < p.EffectiveMinCount(); i++ {
			up := domain.Upload{Filename: fmt.Sprintf("%d.jpg", i), ContentType: "image/jpeg", Body: strings.NewReader("x")}
			if _, err := env.Engine.AddAttachment(env.Ctx, orderID, dept, worker, engine.AttachmentPhoto, p.Name, up); err != nil {
				t.Fatalf("%s photo: %v", dept, err)
			}
		}
	}
	for _, f := range schema.Files {
		if !f.Required {
			continue
		}
		up := domain.Upload{Filename: "doc" + f.AcceptedFormats[0], Size: 10, Body: strings.NewReader("x")}
		if _, err := env.Engine.AddAttachment(env.Ctx, orderID, dept, worker, engine.AttachmentFile, f.Name, up); err != nil {
			t.Fatalf("%s file: %v", dept, err)
		}
	}
	rep, err := env.Engine.SubmitWork(env.Ctx, orderID, dept, worker)
	if err != nil {
		t.Fatalf("%s submit: %v (%+v)", dept, err, rep)
	}
	return dept
}

func actions(entries []domain.ActivityEntry) []domain.Action {
	out := make([]domain.Action, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Action)
	}
	return out
}

func countAction(entries []domain.ActivityEntry, a domain.Action) int {
	n := 0
	for _, e := range entries {
		if e.Action == a {
			n++
		}
	}
	return n
}

func TestCreateOrderOpensFirstDepartment(t *testing.T) {
	env := newTestEnv(t)
	o, err := env.Engine.CreateOrder(env.Ctx, engine.OrderCreateOptions{
		Reference:  "JOB-100",
		Priority:   "HIGH",
		DueDate:    "2024-02-14",
		AssigneeID: "designer-1",
		ActorID:    "manager",
	})
	if err != nil {
		t.Fatal(err)
	}
	if o.CurrentDepartment != domain.DepartmentCAD || o.Priority != domain.PriorityHigh || *o.DueDate != "2024-02-14" {
		t.Fatalf("order = %+v", o)
	}
	if len(o.Tracking) != 1 || o.Tracking[0].Status != domain.StatusNotStarted || *o.Tracking[0].AssignedWorkerID != "designer-1" {
		t.Fatalf("tracking = %+v", o.Tracking)
	}
	log, err := env.Engine.OrderActivity(env.Ctx, "JOB-100")
	if err != nil {
		t.Fatal(err)
	}
	got := actions(log)
	want := []domain.Action{domain.ActionOrderCreated, domain.ActionStageEntered, domain.ActionWorkerAssigned}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("activity = %v, want %v", got, want)
	}

	if _, err := env.Engine.CreateOrder(env.Ctx, engine.OrderCreateOptions{Reference: "JOB-100"}); !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("duplicate reference: %v", err)
	}
	for _, opts := range []engine.OrderCreateOptions{
		{Reference: " "},
		{Reference: "JOB-101", Priority: "asap"},
		{Reference: "JOB-102", DueDate: "next week"},
	} {
		if _, err := env.Engine.CreateOrder(env.Ctx, opts); !errors.Is(err, engine.ErrInvalidInput) {
			t.Fatalf("create %+v: %v", opts, err)
		}
	}
}

func TestOrderRunsThroughEveryDepartment(t *testing.T) {
	env := newTestEnv(t)
	o := env.createOrder(t, "JOB-200")

	var visited []domain.Department
	for i := 0; i < len(domain.Departments()); i++ {
		visited = append(visited, env.completeDepartment(t, o.ID, "worker-7"))
	}
	if fmt.Sprint(visited) != fmt.Sprint(env.Engine.Pipeline.Departments()) {
		t.Fatalf("visited %v", visited)
	}

	final, err := env.Engine.GetOrder(env.Ctx, o.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !final.Finished() || len(final.Tracking) != len(visited) {
		t.Fatalf("final order = %s with %d tracking", final.CurrentDepartment, len(final.Tracking))
	}
	for _, tr := range final.Tracking {
		if tr.Status != domain.StatusCompleted || tr.Submission == nil || !tr.Submission.IsComplete || tr.CompletedAt == nil {
			t.Fatalf("tracking %s = %+v", tr.Department, tr)
		}
	}

	log, err := env.Engine.OrderActivity(env.Ctx, o.ID)
	if err != nil {
		t.Fatal(err)
	}
	if countAction(log, domain.ActionWorkCompleted) != len(visited) ||
		countAction(log, domain.ActionDepartmentAdvanced) != len(visited) ||
		countAction(log, domain.ActionStageEntered) != len(visited) ||
		countAction(log, domain.ActionOrderFinished) != 1 {
		t.Fatalf("activity = %v", actions(log))
	}
	if log[len(log)-1].Action != domain.ActionOrderFinished {
		t.Fatalf("last entry = %s", log[len(log)-1].Action)
	}
	if env.Engine.OpenSessions() != 0 {
		t.Fatalf("submitted sessions should be closed, %d open", env.Engine.OpenSessions())
	}

	if _, err := env.Engine.StartWork(env.Ctx, o.ID, "", "worker-7"); !errors.Is(err, engine.ErrInvalidInput) {
		t.Fatalf("start on finished order: %v", err)
	}
	var ite *submission.IllegalTransitionError
	if _, err := env.Engine.StartWork(env.Ctx, o.ID, domain.DepartmentCasting, "worker-7"); !errors.As(err, &ite) {
		t.Fatalf("restart completed department: %v", err)
	}
}

func TestIncompleteSubmitChangesNothing(t *testing.T) {
	env := newTestEnv(t)
	o := env.createOrder(t, "JOB-300")
	if _, err := env.Engine.StartWork(env.Ctx, o.ID, "", "designer"); err != nil {
		t.Fatal(err)
	}
	before, _ := env.Engine.OrderActivity(env.Ctx, o.ID)

	rep, err := env.Engine.SubmitWork(env.Ctx, o.ID, "", "designer")
	var vfe *submission.ValidationFailedError
	if !errors.As(err, &vfe) {
		t.Fatalf("expected validation failure, got %v", err)
	}
	if rep.CanSubmit() || len(rep.MissingFields) == 0 || vfe.Report.PercentComplete != rep.PercentComplete {
		t.Fatalf("report = %+v", rep)
	}
	again, err := env.Engine.SubmitWork(env.Ctx, o.ID, "", "designer")
	if !errors.As(err, &vfe) || fmt.Sprint(again) != fmt.Sprint(rep) {
		t.Fatalf("second submit = %+v, %v", again, err)
	}

	after, _ := env.Engine.OrderActivity(env.Ctx, o.ID)
	if len(after) != len(before) {
		t.Fatalf("rejected submit wrote activity: %v", actions(after[len(before):]))
	}
	cur, _ := env.Engine.GetOrder(env.Ctx, o.ID)
	if cur.CurrentDepartment != domain.DepartmentCAD || cur.Tracking[0].Status != domain.StatusInProgress {
		t.Fatalf("order moved: %+v", cur)
	}
}

func TestStartClaimsUnassignedWorkAndRejectsRestart(t *testing.T) {
	env := newTestEnv(t)
	o := env.createOrder(t, "JOB-400")
	tr, err := env.Engine.StartWork(env.Ctx, o.ID, "", "designer")
	if err != nil {
		t.Fatal(err)
	}
	if tr.Status != domain.StatusInProgress || tr.StartedAt == nil {
		t.Fatalf("tracking = %+v", tr)
	}
	started := *tr.StartedAt

	var ite *submission.IllegalTransitionError
	if _, err := env.Engine.StartWork(env.Ctx, o.ID, "", "designer"); !errors.As(err, &ite) {
		t.Fatalf("second start: %v", err)
	}
	stored, err := env.Engine.Repo.GetTracking(env.Ctx, o.ID, domain.DepartmentCAD)
	if err != nil {
		t.Fatal(err)
	}
	if *stored.StartedAt != started || stored.AssignedWorkerID == nil || *stored.AssignedWorkerID != "designer" {
		t.Fatalf("stored tracking = %+v", stored)
	}
	if stored.Submission == nil || stored.Submission.IsComplete {
		t.Fatalf("start should create an empty submission: %+v", stored.Submission)
	}
}

func TestSavedDraftSurvivesSessionClose(t *testing.T) {
	env := newTestEnv(t)
	o := env.createOrder(t, "JOB-500")
	if _, err := env.Engine.StartWork(env.Ctx, o.ID, "", "designer"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.Engine.EditWork(env.Ctx, o.ID, "", "designer", map[string]any{"designNotes": "kept"}); err != nil {
		t.Fatal(err)
	}
	saved, err := env.Engine.SaveWork(env.Ctx, o.ID, "", "designer")
	if err != nil {
		t.Fatal(err)
	}
	if !saved.Submission.IsDraft || saved.Submission.LastSavedAt == nil {
		t.Fatalf("saved submission = %+v", saved.Submission)
	}
	if _, _, err := env.Engine.EditWork(env.Ctx, o.ID, "", "designer", map[string]any{"designNotes": "dropped"}); err != nil {
		t.Fatal(err)
	}
	closed, err := env.Engine.CloseSession(env.Ctx, o.ID, "")
	if err != nil || !closed {
		t.Fatalf("close = %v, %v", closed, err)
	}

	state, err := env.Engine.WorkState(env.Ctx, o.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if state.Submission.FormData["designNotes"] != "kept" {
		t.Fatalf("resumed form data = %v", state.Submission.FormData)
	}
	log, _ := env.Engine.OrderActivity(env.Ctx, o.ID)
	last := log[len(log)-1]
	if last.Action != domain.ActionDraftSaved || last.Metadata["trigger"] != string(submission.TriggerManual) {
		t.Fatalf("last activity = %+v", last)
	}
}

func TestUnknownFieldIsRejected(t *testing.T) {
	env := newTestEnv(t)
	o := env.createOrder(t, "JOB-550")
	if _, err := env.Engine.StartWork(env.Ctx, o.ID, "", "designer"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.Engine.EditWork(env.Ctx, o.ID, "", "designer", map[string]any{"glitter": 1}); !errors.Is(err, submission.ErrUnknownField) {
		t.Fatalf("unknown field: %v", err)
	}
}

func TestAutosavePersistsDirtyDraft(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Autosave.IntervalSeconds = 1 })
	o := env.createOrder(t, "JOB-600")
	if _, err := env.Engine.StartWork(env.Ctx, o.ID, "", "designer"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.Engine.EditWork(env.Ctx, o.ID, "", "designer", map[string]any{"designNotes": "auto"}); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		stored, err := env.Engine.Repo.GetTracking(env.Ctx, o.ID, domain.DepartmentCAD)
		if err != nil {
			t.Fatal(err)
		}
		if stored.Submission != nil && stored.Submission.FormData["designNotes"] == "auto" {
			log, _ := env.Engine.OrderActivity(env.Ctx, o.ID)
			last := log[len(log)-1]
			if last.Metadata["trigger"] != string(submission.TriggerAutosave) {
				t.Fatalf("last activity = %+v", last)
			}
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("autosave never persisted the draft")
}

func TestAssignWorkerLogsFromAndTo(t *testing.T) {
	env := newTestEnv(t)
	o := env.createOrder(t, "JOB-700")
	tr, err := env.Engine.AssignWorker(env.Ctx, o.Reference, "", "designer-2", "manager")
	if err != nil {
		t.Fatal(err)
	}
	if tr.AssignedWorkerID == nil || *tr.AssignedWorkerID != "designer-2" {
		t.Fatalf("tracking = %+v", tr)
	}
	if _, err := env.Engine.AssignWorker(env.Ctx, o.ID, "", "designer-3", "manager"); err != nil {
		t.Fatal(err)
	}
	log, _ := env.Engine.OrderActivity(env.Ctx, o.ID)
	last := log[len(log)-1]
	if last.Action != domain.ActionWorkerAssigned || last.Metadata["from"] != "designer-2" || last.Metadata["to"] != "designer-3" {
		t.Fatalf("last activity = %+v", last)
	}
	if _, err := env.Engine.AssignWorker(env.Ctx, o.ID, domain.DepartmentCasting, "caster", "manager"); !errors.Is(err, engine.ErrNotReached) {
		t.Fatalf("assign unreached department: %v", err)
	}

	mine, err := env.Engine.ListOrders(env.Ctx, repo.OrderFilters{AssigneeID: "designer-3"})
	if err != nil || len(mine) != 1 {
		t.Fatalf("orders for designer-3 = %v, %v", mine, err)
	}
}

func TestOpenSessionReflectsAssignee(t *testing.T) {
	env := newTestEnv(t)
	o := env.createOrder(t, "JOB-710")
	tr, err := env.Engine.StartWork(env.Ctx, o.ID, "", "designer")
	if err != nil {
		t.Fatal(err)
	}
	if tr.AssignedWorkerID == nil || *tr.AssignedWorkerID != "designer" {
		t.Fatalf("start tracking = %+v", tr)
	}
	live, err := env.Engine.WorkState(env.Ctx, o.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if live.AssignedWorkerID == nil || *live.AssignedWorkerID != "designer" {
		t.Fatalf("work state after start = %+v", live)
	}

	if _, err := env.Engine.AssignWorker(env.Ctx, o.ID, "", "designer-2", "manager"); err != nil {
		t.Fatal(err)
	}
	live, err = env.Engine.WorkState(env.Ctx, o.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if live.AssignedWorkerID == nil || *live.AssignedWorkerID != "designer-2" {
		t.Fatalf("work state after reassign = %+v", live)
	}

	if _, err := env.Engine.AssignWorker(env.Ctx, o.ID, "", "", "manager"); err != nil {
		t.Fatal(err)
	}
	live, err = env.Engine.WorkState(env.Ctx, o.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if live.AssignedWorkerID != nil {
		t.Fatalf("work state after unassign = %+v", live)
	}
}

func TestDisabledDepartmentUsesReducedSchema(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Departments.Disabled = []string{"CAD"} })
	s, err := env.Engine.Schema(domain.DepartmentCAD)
	if err != nil {
		t.Fatal(err)
	}
	if !s.Reduced || len(s.Photos) != 0 || len(s.Files) != 0 {
		t.Fatalf("schema = %+v", s)
	}
	o := env.createOrder(t, "JOB-800")
	if dept := env.completeDepartment(t, o.ID, "designer"); dept != domain.DepartmentCAD {
		t.Fatalf("completed %s", dept)
	}

	if _, err := env.Engine.SetDepartmentEnabled(env.Ctx, domain.DepartmentCAD, true); err != nil {
		t.Fatal(err)
	}
	full, _ := env.Engine.Schema(domain.DepartmentCAD)
	if full.Reduced {
		t.Fatalf("expected full schema after enabling")
	}
	depts, err := env.Engine.Departments(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !depts[0].Enabled || depts[1].Orders != 1 {
		t.Fatalf("departments = %+v", depts[:2])
	}
}

func TestReportReadsStoredStateWithoutSession(t *testing.T) {
	env := newTestEnv(t)
	o := env.createOrder(t, "JOB-900")
	rep, err := env.Engine.Report(env.Ctx, o.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if rep.CanSubmit() || rep.PercentComplete != 0 {
		t.Fatalf("report = %+v", rep)
	}
	if env.Engine.OpenSessions() != 0 {
		t.Fatalf("report must not open sessions")
	}
	if _, err := env.Engine.Report(env.Ctx, "missing", ""); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("missing order: %v", err)
	}
}

func TestCloseAllFlushesDirtyDrafts(t *testing.T) {
	env := newTestEnv(t)
	o := env.createOrder(t, "JOB-950")
	if _, err := env.Engine.StartWork(env.Ctx, o.ID, "", "designer"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.Engine.EditWork(env.Ctx, o.ID, "", "designer", map[string]any{"designNotes": "flushed"}); err != nil {
		t.Fatal(err)
	}
	env.Engine.CloseAll(env.Ctx)
	if env.Engine.OpenSessions() != 0 {
		t.Fatalf("sessions left open")
	}
	stored, err := env.Engine.Repo.GetTracking(env.Ctx, o.ID, domain.DepartmentCAD)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Submission.FormData["designNotes"] != "flushed" {
		t.Fatalf("stored form data = %v", stored.Submission.FormData)
	}
}
