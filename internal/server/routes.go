package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"benchline/internal/activity"
	"benchline/internal/domain"
	"benchline/internal/engine"
	"benchline/internal/repo"
)

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body HealthResponse `json:"body"`
	}, error) {
		return &struct {
			Body HealthResponse `json:"body"`
		}{Body: HealthResponse{Status: "ok"}}, nil
	})
}

func registerDepartments(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-departments",
		Method:      http.MethodGet,
		Path:        "/departments",
		Summary:     "List departments with their enabled state and order counts",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body DepartmentListResponse `json:"body"`
	}, error) {
		items, err := e.Departments(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DepartmentListResponse `json:"body"`
		}{Body: DepartmentListResponse{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-department-schema",
		Method:      http.MethodGet,
		Path:        "/departments/{department}/schema",
		Summary:     "Get the work instructions and requirements of a department",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Department string `path:"department"`
	}) (*struct {
		Body any `json:"body"`
	}, error) {
		d, err := domain.ParseDepartment(input.Department)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"department": input.Department})
		}
		schema, err := e.Schema(d)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body any `json:"body"`
		}{Body: schema}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-department-enabled",
		Method:      http.MethodPut,
		Path:        "/departments/{department}/enabled",
		Summary:     "Enable or disable the full requirements of a department",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Department string         `path:"department"`
		Body       SetFlagRequest `json:"body"`
	}) (*struct {
		Body domain.FeatureFlag `json:"body"`
	}, error) {
		if _, err := actorIDFromContext(ctx); err != nil {
			return nil, err
		}
		d, err := domain.ParseDepartment(input.Department)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"department": input.Department})
		}
		f, err := e.SetDepartmentEnabled(ctx, d, input.Body.Enabled)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.FeatureFlag `json:"body"`
		}{Body: f}, nil
	})
}

func registerFlags(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-flags",
		Method:      http.MethodGet,
		Path:        "/flags",
		Summary:     "List feature flags",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body FlagListResponse `json:"body"`
	}, error) {
		return &struct {
			Body FlagListResponse `json:"body"`
		}{Body: FlagListResponse{Items: e.Flags.Flags()}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-flag",
		Method:      http.MethodPut,
		Path:        "/flags/{key}",
		Summary:     "Set a feature flag",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Key  string         `path:"key"`
		Body SetFlagRequest `json:"body"`
	}) (*struct {
		Body domain.FeatureFlag `json:"body"`
	}, error) {
		if _, err := actorIDFromContext(ctx); err != nil {
			return nil, err
		}
		f, err := e.Flags.SetFlag(ctx, input.Key, input.Body.Enabled)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"key": input.Key})
		}
		return &struct {
			Body domain.FeatureFlag `json:"body"`
		}{Body: f}, nil
	})
}

func registerOrders(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-order",
		Method:        http.MethodPost,
		Path:          "/orders",
		Summary:       "Create an order; it enters the first department",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateOrderRequest `json:"body"`
	}) (*struct {
		Body domain.Order `json:"body"`
	}, error) {
		actorID, aerr := actorIDFromContext(ctx)
		if aerr != nil {
			return nil, aerr
		}
		o, err := e.CreateOrder(ctx, engine.OrderCreateOptions{
			ID:          input.Body.ID,
			Reference:   input.Body.Reference,
			Customer:    input.Body.Customer,
			Description: input.Body.Description,
			Priority:    input.Body.Priority,
			DueDate:     input.Body.DueDate,
			AssigneeID:  input.Body.AssigneeID,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Order `json:"body"`
		}{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-orders",
		Method:      http.MethodGet,
		Path:        "/orders",
		Summary:     "List orders, newest first",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Department string `query:"department"`
		Priority   string `query:"priority"`
		AssigneeID string `query:"assignee_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body OrderListResponse `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		cursorCreated, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		orders, err := e.ListOrders(ctx, repo.OrderFilters{
			Department:      input.Department,
			Priority:        input.Priority,
			AssigneeID:      input.AssigneeID,
			Limit:           limit + 1,
			CursorCreatedAt: cursorCreated,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := OrderListResponse{Items: []domain.Order{}}
		if len(orders) > limit {
			orders = orders[:limit]
			last := orders[limit-1]
			resp.NextCursor = composeCursor(last.CreatedAt, last.ID)
		}
		resp.Items = append(resp.Items, orders...)
		return &struct {
			Body OrderListResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-order",
		Method:      http.MethodGet,
		Path:        "/orders/{order_id}",
		Summary:     "Get an order by id or reference",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrderID string `path:"order_id"`
	}) (*struct {
		Body domain.Order `json:"body"`
	}, error) {
		o, err := e.GetOrder(ctx, input.OrderID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Order `json:"body"`
		}{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-worker",
		Method:      http.MethodPut,
		Path:        "/orders/{order_id}/departments/{department}/assignee",
		Summary:     "Assign or clear the worker of a department",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		OrderID    string              `path:"order_id"`
		Department string              `path:"department"`
		Body       AssignWorkerRequest `json:"body"`
	}) (*struct {
		Body domain.DepartmentTracking `json:"body"`
	}, error) {
		actorID, aerr := actorIDFromContext(ctx)
		if aerr != nil {
			return nil, aerr
		}
		dept, derr := parseDepartmentParam(input.Department)
		if derr != nil {
			return nil, derr
		}
		worker := ""
		if input.Body.WorkerID != nil {
			worker = *input.Body.WorkerID
		}
		t, err := e.AssignWorker(ctx, input.OrderID, dept, worker, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.DepartmentTracking `json:"body"`
		}{Body: t}, nil
	})
}

func registerActivity(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-activity",
		Method:      http.MethodGet,
		Path:        "/activity",
		Summary:     "List activity across orders, oldest first",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		OrderID    string `query:"order_id"`
		Department string `query:"department"`
		Action     string `query:"action"`
		ActorID    string `query:"actor_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body ActivityListResponse `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		var afterID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			afterID = parsed
		}
		items, err := e.Repo.ListActivity(ctx, repo.ActivityFilters{
			OrderID:    input.OrderID,
			Department: strings.ToUpper(input.Department),
			Action:     input.Action,
			ActorID:    input.ActorID,
			AfterID:    afterID,
			Limit:      limit + 1,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := ActivityListResponse{Items: []domain.ActivityEntry{}}
		if len(items) > limit {
			items = items[:limit]
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
		}
		resp.Items = append(resp.Items, items...)
		return &struct {
			Body ActivityListResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "order-timeline",
		Method:      http.MethodGet,
		Path:        "/orders/{order_id}/timeline",
		Summary:     "Order activity grouped by calendar day",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrderID  string `path:"order_id"`
		Timezone string `query:"tz" doc:"IANA zone used to split days; UTC when empty"`
	}) (*struct {
		Body TimelineResponse `json:"body"`
	}, error) {
		loc := time.UTC
		if input.Timezone != "" {
			l, err := time.LoadLocation(input.Timezone)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown time zone", map[string]any{"tz": input.Timezone})
			}
			loc = l
		}
		entries, err := e.OrderActivity(ctx, input.OrderID)
		if err != nil {
			return nil, handleError(err)
		}
		days := activity.GroupByDay(entries, loc)
		if days == nil {
			days = []activity.Day{}
		}
		return &struct {
			Body TimelineResponse `json:"body"`
		}{Body: TimelineResponse{Days: days}}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

func parseCompositeCursor(cursor string) (string, string, error) {
	if cursor == "" {
		return "", "", nil
	}
	parts := strings.SplitN(cursor, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid cursor")
	}
	return parts[0], parts[1], nil
}

func composeCursor(ts, id string) string {
	if ts == "" || id == "" {
		return ""
	}
	return ts + "|" + id
}
