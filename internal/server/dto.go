package server

import (
	"benchline/internal/activity"
	"benchline/internal/domain"
	"benchline/internal/engine"
	"benchline/internal/validation"
)

// Request payloads

type CreateOrderRequest struct {
	ID          string `json:"id,omitempty"`
	Reference   string `json:"reference"`
	Customer    string `json:"customer,omitempty"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty" enum:"low,normal,high,urgent"`
	DueDate     string `json:"due_date,omitempty"`
	AssigneeID  string `json:"assignee_id,omitempty"`
}

type AssignWorkerRequest struct {
	WorkerID *string `json:"worker_id"`
}

type EditFieldsRequest struct {
	Fields map[string]any `json:"fields"`
}

type SetFlagRequest struct {
	Enabled bool `json:"enabled"`
}

type DevLoginRequest struct {
	ActorID string   `json:"actor_id"`
	Roles   []string `json:"roles,omitempty"`
}

// Responses

type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}

type DevLoginResponse struct {
	Token     string `json:"token"`
	ActorID   string `json:"actor_id"`
	ExpiresAt string `json:"expires_at" format:"date-time"`
}

type DepartmentListResponse struct {
	Items []engine.DepartmentStatus `json:"items"`
}

type FlagListResponse struct {
	Items []domain.FeatureFlag `json:"items"`
}

type OrderListResponse struct {
	Items      []domain.Order `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type ActivityListResponse struct {
	Items      []domain.ActivityEntry `json:"items"`
	NextCursor string                 `json:"next_cursor,omitempty"`
}

type TimelineResponse struct {
	Days []activity.Day `json:"days"`
}

// WorkResponse is the worker's view of one department: the tracking record with
// its submission and the completion report.
type WorkResponse struct {
	Tracking domain.DepartmentTracking `json:"tracking"`
	Report   validation.Report         `json:"report"`
}

type SubmitResponse struct {
	Report validation.Report `json:"report"`
	Order  domain.Order      `json:"order"`
}

type AttachmentResponse struct {
	Attachment domain.Attachment `json:"attachment"`
	Report     validation.Report `json:"report"`
}

type CloseSessionResponse struct {
	Closed bool `json:"closed"`
}
