package benchlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Benchline HTTP API client. BaseURL includes the API
// base path, e.g. http://127.0.0.1:8080/v1.
type Client struct {
	BaseURL     string
	BearerToken string
	// ActorID is sent as X-Actor-Id when no bearer token is set.
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 30 * time.Second,
	}
}

// Order represents the API order model.
type Order struct {
	ID                string     `json:"id"`
	Reference         string     `json:"reference"`
	Customer          string     `json:"customer,omitempty"`
	Description       string     `json:"description,omitempty"`
	Priority          string     `json:"priority"`
	DueDate           *string    `json:"due_date,omitempty"`
	CurrentDepartment string     `json:"current_department"`
	Tracking          []Tracking `json:"tracking"`
	CreatedAt         string     `json:"created_at"`
	UpdatedAt         string     `json:"updated_at"`
}

// Tracking is one department's progress on an order.
type Tracking struct {
	ID               string      `json:"id"`
	OrderID          string      `json:"order_id"`
	Department       string      `json:"department"`
	Status           string      `json:"status"`
	StartedAt        *string     `json:"started_at,omitempty"`
	CompletedAt      *string     `json:"completed_at,omitempty"`
	AssignedWorkerID *string     `json:"assigned_worker_id,omitempty"`
	Submission       *Submission `json:"submission,omitempty"`
}

type Submission struct {
	FormData       map[string]any `json:"formData"`
	UploadedPhotos []Attachment   `json:"uploadedPhotos"`
	UploadedFiles  []Attachment   `json:"uploadedFiles"`
	IsDraft        bool           `json:"isDraft"`
	IsComplete     bool           `json:"isComplete"`
	LastSavedAt    *string        `json:"lastSavedAt"`
}

type Attachment struct {
	ID          string `json:"id"`
	Category    string `json:"category"`
	URL         string `json:"url"`
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
	UploadedAt  string `json:"uploaded_at,omitempty"`
}

// Report lists what is still missing before work can be submitted.
type Report struct {
	MissingFields          []string `json:"missingFields"`
	MissingPhotoCategories []string `json:"missingPhotoCategories"`
	MissingFileCategories  []string `json:"missingFileCategories"`
	PercentComplete        int      `json:"percentComplete"`
}

func (r Report) CanSubmit() bool {
	return len(r.MissingFields) == 0 && len(r.MissingPhotoCategories) == 0 && len(r.MissingFileCategories) == 0
}

// Work is the worker's view of one department.
type Work struct {
	Tracking Tracking `json:"tracking"`
	Report   Report   `json:"report"`
}

type Department struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Sequence int    `json:"sequence"`
	Enabled  bool   `json:"enabled"`
	Orders   int    `json:"orders"`
}

// ActivityEntry represents an activity log entry.
type ActivityEntry struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	OrderID    string         `json:"order_id"`
	Department string         `json:"department,omitempty"`
	Action     string         `json:"action"`
	ActorID    string         `json:"actor_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// CreateOrderInput mirrors the create order request body.
type CreateOrderInput struct {
	Reference   string `json:"reference"`
	Customer    string `json:"customer,omitempty"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
	AssigneeID  string `json:"assignee_id,omitempty"`
}

type OrderQuery struct {
	Department string
	Priority   string
	AssigneeID string
	Limit      int
	Cursor     string
}

type ActivityQuery struct {
	OrderID    string
	Department string
	Action     string
	ActorID    string
	Limit      int
	Cursor     string
}

// OrderPage wraps list responses with cursors.
type OrderPage struct {
	Items      []Order `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

type ActivityPage struct {
	Items      []ActivityEntry `json:"items"`
	NextCursor string          `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// DevLogin fetches a development token and uses it for later calls.
func (c *Client) DevLogin(ctx context.Context, actorID string, roles ...string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	body := map[string]any{"actor_id": actorID, "roles": roles}
	if err := c.do(ctx, http.MethodPost, "auth/dev/login", body, &resp); err != nil {
		return "", err
	}
	c.BearerToken = resp.Token
	return resp.Token, nil
}

func (c *Client) CreateOrder(ctx context.Context, in CreateOrderInput) (Order, error) {
	var resp Order
	err := c.do(ctx, http.MethodPost, "orders", in, &resp)
	return resp, err
}

// GetOrder accepts an order id or reference.
func (c *Client) GetOrder(ctx context.Context, idOrRef string) (Order, error) {
	var resp Order
	err := c.do(ctx, http.MethodGet, "orders/"+url.PathEscape(idOrRef), nil, &resp)
	return resp, err
}

func (c *Client) ListOrders(ctx context.Context, q OrderQuery) (OrderPage, error) {
	v := url.Values{}
	setQuery(v, "department", q.Department)
	setQuery(v, "priority", q.Priority)
	setQuery(v, "assignee_id", q.AssigneeID)
	setQuery(v, "cursor", q.Cursor)
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	var resp OrderPage
	err := c.do(ctx, http.MethodGet, withQuery("orders", v), nil, &resp)
	return resp, err
}

// AssignWorker sets the worker for a department; an empty workerID clears it.
func (c *Client) AssignWorker(ctx context.Context, orderID, department, workerID string) (Tracking, error) {
	body := map[string]any{"worker_id": nil}
	if workerID != "" {
		body["worker_id"] = workerID
	}
	var resp Tracking
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("orders/%s/departments/%s/assignee", url.PathEscape(orderID), dept(department)), body, &resp)
	return resp, err
}

func (c *Client) Departments(ctx context.Context) ([]Department, error) {
	var resp struct {
		Items []Department `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "departments", nil, &resp)
	return resp.Items, err
}

// Schema returns the raw work instructions for a department.
func (c *Client) Schema(ctx context.Context, department string) (map[string]any, error) {
	var resp map[string]any
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("departments/%s/schema", dept(department)), nil, &resp)
	return resp, err
}

func (c *Client) SetDepartmentEnabled(ctx context.Context, department string, enabled bool) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("departments/%s/enabled", dept(department)), map[string]any{"enabled": enabled}, nil)
}

// Work returns the tracking record and report for a department. An empty
// department means the order's current one.
func (c *Client) Work(ctx context.Context, orderID, department string) (Work, error) {
	var resp Work
	err := c.do(ctx, http.MethodGet, workPath(orderID, department, ""), nil, &resp)
	return resp, err
}

func (c *Client) StartWork(ctx context.Context, orderID, department string) (Work, error) {
	var resp Work
	err := c.do(ctx, http.MethodPost, workPath(orderID, department, "start"), nil, &resp)
	return resp, err
}

func (c *Client) EditFields(ctx context.Context, orderID, department string, fields map[string]any) (Work, error) {
	var resp Work
	err := c.do(ctx, http.MethodPatch, workPath(orderID, department, "fields"), map[string]any{"fields": fields}, &resp)
	return resp, err
}

func (c *Client) SaveWork(ctx context.Context, orderID, department string) (Work, error) {
	var resp Work
	err := c.do(ctx, http.MethodPost, workPath(orderID, department, "save"), nil, &resp)
	return resp, err
}

// SubmitWork submits the department's work and returns the advanced order.
func (c *Client) SubmitWork(ctx context.Context, orderID, department string) (Order, Report, error) {
	var resp struct {
		Report Report `json:"report"`
		Order  Order  `json:"order"`
	}
	err := c.do(ctx, http.MethodPost, workPath(orderID, department, "submit"), nil, &resp)
	return resp.Order, resp.Report, err
}

// UploadAttachment streams a photo or file into a requirement category.
func (c *Client) UploadAttachment(ctx context.Context, orderID, department, kind, category, filename string, r io.Reader) (Attachment, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("kind", kind); err != nil {
		return Attachment{}, err
	}
	if err := mw.WriteField("category", category); err != nil {
		return Attachment{}, err
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return Attachment{}, err
	}
	if _, err := io.Copy(fw, r); err != nil {
		return Attachment{}, err
	}
	if err := mw.Close(); err != nil {
		return Attachment{}, err
	}
	var resp struct {
		Attachment Attachment `json:"attachment"`
	}
	err = c.send(ctx, http.MethodPost, workPath(orderID, department, "attachments"), mw.FormDataContentType(), &buf, &resp)
	return resp.Attachment, err
}

func (c *Client) RemoveAttachment(ctx context.Context, orderID, department, attachmentID string) error {
	return c.do(ctx, http.MethodDelete, workPath(orderID, department, "attachments/"+url.PathEscape(attachmentID)), nil, nil)
}

// CloseSession drops the server-side work session; unsaved edits are lost.
func (c *Client) CloseSession(ctx context.Context, orderID, department string) error {
	return c.do(ctx, http.MethodDelete, workPath(orderID, department, "session"), nil, nil)
}

// Activity returns a page of the activity log, oldest first.
func (c *Client) Activity(ctx context.Context, q ActivityQuery) (ActivityPage, error) {
	v := url.Values{}
	setQuery(v, "order_id", q.OrderID)
	setQuery(v, "department", q.Department)
	setQuery(v, "action", q.Action)
	setQuery(v, "actor_id", q.ActorID)
	setQuery(v, "cursor", q.Cursor)
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	var resp ActivityPage
	err := c.do(ctx, http.MethodGet, withQuery("activity", v), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	return c.send(ctx, method, endpoint, "application/json", &buf, out)
}

func (c *Client) send(ctx context.Context, method, endpoint, contentType string, body io.Reader, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	u := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

func workPath(orderID, department, suffix string) string {
	p := fmt.Sprintf("orders/%s/work/%s", url.PathEscape(orderID), dept(department))
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}

func dept(d string) string {
	if d == "" {
		return "current"
	}
	return url.PathEscape(d)
}

func setQuery(v url.Values, key, value string) {
	if value != "" {
		v.Set(key, value)
	}
}

func withQuery(endpoint string, v url.Values) string {
	if len(v) == 0 {
		return endpoint
	}
	return endpoint + "?" + v.Encode()
}
