package domain

import (
	"fmt"
	"io"
	"strings"
)

// Department is the stable key of one manufacturing stage.
type Department string

const (
	DepartmentCAD          Department = "CAD"
	DepartmentPrinting     Department = "PRINTING"
	DepartmentCasting      Department = "CASTING"
	DepartmentFilling      Department = "FILLING"
	DepartmentEnameling    Department = "ENAMELING"
	DepartmentPrePolishing Department = "PRE_POLISHING"
	DepartmentPolishing    Department = "POLISHING"
	DepartmentStoneSetting Department = "STONE_SETTING"
	DepartmentFinishing    Department = "FINISHING"

	// DepartmentFinished marks an order that has left the last department.
	DepartmentFinished Department = "FINISHED"
)

type DepartmentInfo struct {
	Key      Department `json:"key"`
	Name     string     `json:"name"`
	Sequence int        `json:"sequence"`
}

var departments = []DepartmentInfo{
	{Key: DepartmentCAD, Name: "Design / CAD", Sequence: 1},
	{Key: DepartmentPrinting, Name: "3D Printing", Sequence: 2},
	{Key: DepartmentCasting, Name: "Casting", Sequence: 3},
	{Key: DepartmentFilling, Name: "Filling", Sequence: 4},
	{Key: DepartmentEnameling, Name: "Enameling", Sequence: 5},
	{Key: DepartmentPrePolishing, Name: "Pre-Polishing", Sequence: 6},
	{Key: DepartmentPolishing, Name: "Polishing", Sequence: 7},
	{Key: DepartmentStoneSetting, Name: "Stone Setting", Sequence: 8},
	{Key: DepartmentFinishing, Name: "Finishing", Sequence: 9},
}

// Departments returns every department in sequence order.
func Departments() []DepartmentInfo {
	out := make([]DepartmentInfo, len(departments))
	copy(out, departments)
	return out
}

// ParseDepartment accepts a department key in any case; dashes and spaces map to underscores.
func ParseDepartment(v string) (Department, error) {
	key := strings.ToUpper(strings.TrimSpace(v))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	for _, d := range departments {
		if string(d.Key) == key {
			return d.Key, nil
		}
	}
	return "", fmt.Errorf("unknown department %q", v)
}

func (d Department) Info() (DepartmentInfo, bool) {
	for _, info := range departments {
		if info.Key == d {
			return info, true
		}
	}
	return DepartmentInfo{}, false
}

func (d Department) Name() string {
	if info, ok := d.Info(); ok {
		return info.Name
	}
	if d == DepartmentFinished {
		return "Finished"
	}
	return string(d)
}

type Status string

const (
	StatusNotStarted Status = "NOT_STARTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func ParsePriority(v string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(v))); p {
	case "":
		return PriorityNormal, nil
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return p, nil
	default:
		return "", fmt.Errorf("invalid priority %q", v)
	}
}

type Order struct {
	ID                string               `json:"id"`
	Reference         string               `json:"reference"`
	Customer          string               `json:"customer,omitempty"`
	Description       string               `json:"description,omitempty"`
	Priority          Priority             `json:"priority" enum:"low,normal,high,urgent"`
	DueDate           *string              `json:"due_date,omitempty" format:"date"`
	CurrentDepartment Department           `json:"current_department"`
	Tracking          []DepartmentTracking `json:"tracking"`
	CreatedAt         string               `json:"created_at" format:"date-time"`
	UpdatedAt         string               `json:"updated_at" format:"date-time"`
}

// TrackingFor returns the tracking record of the given department, if the order has reached it.
func (o *Order) TrackingFor(d Department) (*DepartmentTracking, bool) {
	for i := range o.Tracking {
		if o.Tracking[i].Department == d {
			return &o.Tracking[i], true
		}
	}
	return nil, false
}

// Finished reports whether the order has left the last department.
func (o Order) Finished() bool {
	return o.CurrentDepartment == DepartmentFinished
}

type DepartmentTracking struct {
	ID               string          `json:"id"`
	OrderID          string          `json:"order_id"`
	Department       Department      `json:"department"`
	Status           Status          `json:"status" enum:"NOT_STARTED,IN_PROGRESS,COMPLETED"`
	StartedAt        *string         `json:"started_at,omitempty" format:"date-time"`
	CompletedAt      *string         `json:"completed_at,omitempty" format:"date-time"`
	AssignedWorkerID *string         `json:"assigned_worker_id,omitempty"`
	Submission       *WorkSubmission `json:"submission,omitempty"`
}

// Attachment is a reference to a stored photo or file; bytes live in the attachment store.
type Attachment struct {
	ID          string `json:"id"`
	Category    string `json:"category"`
	URL         string `json:"url"`
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
	UploadedAt  string `json:"uploaded_at,omitempty" format:"date-time"`
}

// Upload is an incoming attachment before it reaches the attachment store.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type WorkSubmission struct {
	FormData       map[string]any `json:"formData"`
	UploadedPhotos []Attachment   `json:"uploadedPhotos"`
	UploadedFiles  []Attachment   `json:"uploadedFiles"`
	IsDraft        bool           `json:"isDraft"`
	IsComplete     bool           `json:"isComplete"`
	LastSavedAt    *string        `json:"lastSavedAt"`
}

// NewWorkSubmission returns an empty submission with non-nil collections.
func NewWorkSubmission() *WorkSubmission {
	return &WorkSubmission{
		FormData:       map[string]any{},
		UploadedPhotos: []Attachment{},
		UploadedFiles:  []Attachment{},
	}
}

// Clone returns a deep enough copy for callers to mutate independently.
func (s *WorkSubmission) Clone() *WorkSubmission {
	if s == nil {
		return nil
	}
	out := &WorkSubmission{
		FormData:       make(map[string]any, len(s.FormData)),
		UploadedPhotos: append([]Attachment{}, s.UploadedPhotos...),
		UploadedFiles:  append([]Attachment{}, s.UploadedFiles...),
		IsDraft:        s.IsDraft,
		IsComplete:     s.IsComplete,
	}
	for k, v := range s.FormData {
		out.FormData[k] = v
	}
	if s.LastSavedAt != nil {
		ts := *s.LastSavedAt
		out.LastSavedAt = &ts
	}
	return out
}

// Normalize replaces nil collections with empty ones.
func (s *WorkSubmission) Normalize() {
	if s.FormData == nil {
		s.FormData = map[string]any{}
	}
	if s.UploadedPhotos == nil {
		s.UploadedPhotos = []Attachment{}
	}
	if s.UploadedFiles == nil {
		s.UploadedFiles = []Attachment{}
	}
}

type Action string

const (
	ActionOrderCreated       Action = "order.created"
	ActionStageEntered       Action = "stage.entered"
	ActionStageExited        Action = "stage.exited"
	ActionWorkStarted        Action = "work.started"
	ActionDraftSaved         Action = "work.draft_saved"
	ActionWorkCompleted      Action = "work.completed"
	ActionWorkerAssigned     Action = "worker.assigned"
	ActionDepartmentAdvanced Action = "department.advanced"
	ActionOrderFinished      Action = "order.finished"
)

type ActivityEntry struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	OrderID    string         `json:"order_id"`
	Department Department     `json:"department,omitempty"`
	Action     Action         `json:"action"`
	ActorID    string         `json:"actor_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type FeatureFlag struct {
	Key       string `json:"key"`
	Enabled   bool   `json:"enabled"`
	UpdatedAt string `json:"updated_at,omitempty" format:"date-time"`
}
