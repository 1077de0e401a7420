package server

import (
	"context"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"benchline/internal/domain"
	"benchline/internal/engine"
)

// maxUploadBytes caps a single multipart upload; schemas set tighter limits per category.
const maxUploadBytes = 64 << 20

type workPath struct {
	OrderID    string `path:"order_id"`
	Department string `path:"department" doc:"department key or current"`
}

func workResponse(ctx context.Context, e *engine.Engine, orderID string, dept domain.Department) (WorkResponse, error) {
	t, err := e.WorkState(ctx, orderID, dept)
	if err != nil {
		return WorkResponse{}, err
	}
	rep, err := e.Report(ctx, orderID, t.Department)
	if err != nil {
		return WorkResponse{}, err
	}
	return WorkResponse{Tracking: t, Report: rep}, nil
}

func registerWork(api huma.API, e *engine.Engine) {
	const base = "/orders/{order_id}/work/{department}"
	workErrors := []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusUnauthorized}

	huma.Register(api, huma.Operation{
		OperationID: "get-work",
		Method:      http.MethodGet,
		Path:        base,
		Summary:     "Get the department's tracking record and completion report",
		Errors:      workErrors,
	}, func(ctx context.Context, input *workPath) (*struct {
		Body WorkResponse `json:"body"`
	}, error) {
		dept, derr := parseDepartmentParam(input.Department)
		if derr != nil {
			return nil, derr
		}
		resp, err := workResponse(ctx, e, input.OrderID, dept)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WorkResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "start-work",
		Method:      http.MethodPost,
		Path:        base + "/start",
		Summary:     "Start work on a department",
		Errors:      append(workErrors, http.StatusBadGateway),
	}, func(ctx context.Context, input *workPath) (*struct {
		Body WorkResponse `json:"body"`
	}, error) {
		actorID, aerr := actorIDFromContext(ctx)
		if aerr != nil {
			return nil, aerr
		}
		dept, derr := parseDepartmentParam(input.Department)
		if derr != nil {
			return nil, derr
		}
		t, err := e.StartWork(ctx, input.OrderID, dept, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		resp, err := workResponse(ctx, e, input.OrderID, t.Department)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WorkResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "edit-work-fields",
		Method:      http.MethodPatch,
		Path:        base + "/fields",
		Summary:     "Edit form fields; a null value clears the field",
		Errors:      workErrors,
	}, func(ctx context.Context, input *struct {
		OrderID    string            `path:"order_id"`
		Department string            `path:"department"`
		Body       EditFieldsRequest `json:"body"`
	}) (*struct {
		Body WorkResponse `json:"body"`
	}, error) {
		actorID, aerr := actorIDFromContext(ctx)
		if aerr != nil {
			return nil, aerr
		}
		dept, derr := parseDepartmentParam(input.Department)
		if derr != nil {
			return nil, derr
		}
		t, rep, err := e.EditWork(ctx, input.OrderID, dept, actorID, input.Body.Fields)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WorkResponse `json:"body"`
		}{Body: WorkResponse{Tracking: t, Report: rep}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "save-work",
		Method:      http.MethodPost,
		Path:        base + "/save",
		Summary:     "Save the draft",
		Errors:      append(workErrors, http.StatusBadGateway),
	}, func(ctx context.Context, input *workPath) (*struct {
		Body WorkResponse `json:"body"`
	}, error) {
		actorID, aerr := actorIDFromContext(ctx)
		if aerr != nil {
			return nil, aerr
		}
		dept, derr := parseDepartmentParam(input.Department)
		if derr != nil {
			return nil, derr
		}
		t, err := e.SaveWork(ctx, input.OrderID, dept, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		resp, err := workResponse(ctx, e, input.OrderID, t.Department)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WorkResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit-work",
		Method:      http.MethodPost,
		Path:        base + "/submit",
		Summary:     "Submit the department's work and advance the order",
		Errors:      append(workErrors, http.StatusUnprocessableEntity, http.StatusBadGateway),
	}, func(ctx context.Context, input *workPath) (*struct {
		Body SubmitResponse `json:"body"`
	}, error) {
		actorID, aerr := actorIDFromContext(ctx)
		if aerr != nil {
			return nil, aerr
		}
		dept, derr := parseDepartmentParam(input.Department)
		if derr != nil {
			return nil, derr
		}
		rep, err := e.SubmitWork(ctx, input.OrderID, dept, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		o, err := e.GetOrder(ctx, input.OrderID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SubmitResponse `json:"body"`
		}{Body: SubmitResponse{Report: rep, Order: o}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-attachment",
		Method:      http.MethodDelete,
		Path:        base + "/attachments/{attachment_id}",
		Summary:     "Remove a photo or file",
		Errors:      workErrors,
	}, func(ctx context.Context, input *struct {
		OrderID      string `path:"order_id"`
		Department   string `path:"department"`
		AttachmentID string `path:"attachment_id"`
	}) (*struct {
		Body WorkResponse `json:"body"`
	}, error) {
		actorID, aerr := actorIDFromContext(ctx)
		if aerr != nil {
			return nil, aerr
		}
		dept, derr := parseDepartmentParam(input.Department)
		if derr != nil {
			return nil, derr
		}
		if err := e.RemoveAttachment(ctx, input.OrderID, dept, actorID, input.AttachmentID); err != nil {
			return nil, handleError(err)
		}
		resp, err := workResponse(ctx, e, input.OrderID, dept)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WorkResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "close-work-session",
		Method:      http.MethodDelete,
		Path:        base + "/session",
		Summary:     "Close the open session; unsaved edits are dropped",
		Errors:      workErrors,
	}, func(ctx context.Context, input *workPath) (*struct {
		Body CloseSessionResponse `json:"body"`
	}, error) {
		if _, aerr := actorIDFromContext(ctx); aerr != nil {
			return nil, aerr
		}
		dept, derr := parseDepartmentParam(input.Department)
		if derr != nil {
			return nil, derr
		}
		closed, err := e.CloseSession(ctx, input.OrderID, dept)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CloseSessionResponse `json:"body"`
		}{Body: CloseSessionResponse{Closed: closed}}, nil
	})
}

// registerUploads mounts the multipart attachment endpoint outside huma so the
// body streams straight into the attachment store.
//
//	POST {base}/orders/{order_id}/work/{department}/attachments
//	form fields: kind (photo|file), category, file
func registerUploads(r chi.Router, basePath string, e *engine.Engine) {
	route := path.Join(basePath, "orders/{order_id}/work/{department}/attachments")
	r.Post(route, func(w http.ResponseWriter, req *http.Request) {
		ctx := req.Context()
		actorID, aerr := actorIDFromContext(ctx)
		if aerr != nil {
			respondStatusError(w, aerr)
			return
		}
		dept, derr := parseDepartmentParam(chi.URLParam(req, "department"))
		if derr != nil {
			respondStatusError(w, derr)
			return
		}
		req.Body = http.MaxBytesReader(w, req.Body, maxUploadBytes)
		mr, err := req.MultipartReader()
		if err != nil {
			respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "multipart body required", nil))
			return
		}
		var kind engine.AttachmentKind
		var category string
		for {
			part, err := mr.NextPart()
			if err != nil {
				respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "file part required", nil))
				return
			}
			switch part.FormName() {
			case "kind":
				kind = engine.AttachmentKind(strings.ToLower(strings.TrimSpace(readFormValue(part))))
				continue
			case "category":
				category = strings.TrimSpace(readFormValue(part))
				continue
			case "file":
			default:
				part.Close()
				continue
			}
			if kind == "" {
				kind = engine.AttachmentPhoto
			}
			if category == "" {
				part.Close()
				respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "category must precede the file part", nil))
				return
			}
			att, err := e.AddAttachment(ctx, chi.URLParam(req, "order_id"), dept, actorID, kind, category, domain.Upload{
				Filename:    part.FileName(),
				ContentType: part.Header.Get("Content-Type"),
				Size:        -1,
				Body:        part,
			})
			part.Close()
			if err != nil {
				respondStatusError(w, handleError(err))
				return
			}
			rep, err := e.Report(ctx, chi.URLParam(req, "order_id"), dept)
			if err != nil {
				respondStatusError(w, handleError(err))
				return
			}
			writeJSON(w, http.StatusCreated, AttachmentResponse{Attachment: att, Report: rep})
			return
		}
	})
}
