package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"benchline/internal/domain"
)

const trackingSelect = `SELECT t.id,t.order_id,t.department,t.status,t.started_at,t.completed_at,t.assigned_worker_id,
s.tracking_id,s.form_data_json,s.photos_json,s.files_json,s.is_draft,s.is_complete,s.last_saved_at
FROM department_tracking t LEFT JOIN work_submissions s ON s.tracking_id=t.id`

func scanTracking(scan func(dest ...any) error) (domain.DepartmentTracking, error) {
	var t domain.DepartmentTracking
	var started, completed, worker, subID, formJSON, photosJSON, filesJSON, lastSaved sql.NullString
	var isDraft, isComplete sql.NullInt64
	if err := scan(&t.ID, &t.OrderID, &t.Department, &t.Status, &started, &completed, &worker,
		&subID, &formJSON, &photosJSON, &filesJSON, &isDraft, &isComplete, &lastSaved); err != nil {
		return t, err
	}
	t.StartedAt = stringPtr(started)
	t.CompletedAt = stringPtr(completed)
	t.AssignedWorkerID = stringPtr(worker)
	if subID.Valid {
		sub := domain.NewWorkSubmission()
		if err := decodeJSON(formJSON, &sub.FormData); err != nil {
			return t, fmt.Errorf("decode form data of %s: %w", t.ID, err)
		}
		if err := decodeJSON(photosJSON, &sub.UploadedPhotos); err != nil {
			return t, fmt.Errorf("decode photos of %s: %w", t.ID, err)
		}
		if err := decodeJSON(filesJSON, &sub.UploadedFiles); err != nil {
			return t, fmt.Errorf("decode files of %s: %w", t.ID, err)
		}
		sub.IsDraft = isDraft.Int64 == 1
		sub.IsComplete = isComplete.Int64 == 1
		sub.LastSavedAt = stringPtr(lastSaved)
		sub.Normalize()
		t.Submission = sub
	}
	return t, nil
}

func decodeJSON(v sql.NullString, dest any) error {
	if !v.Valid || v.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(v.String), dest)
}

func listTracking(ctx context.Context, q querier, orderID string) ([]domain.DepartmentTracking, error) {
	rows, err := q.QueryContext(ctx, trackingSelect+` WHERE t.order_id=? ORDER BY t.sequence ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.DepartmentTracking{}
	for rows.Next() {
		t, err := scanTracking(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) ListTracking(ctx context.Context, orderID string) ([]domain.DepartmentTracking, error) {
	return listTracking(ctx, r.DB, orderID)
}

func (r Repo) GetTracking(ctx context.Context, orderID string, d domain.Department) (domain.DepartmentTracking, error) {
	return getTracking(ctx, r.DB, orderID, d)
}

func (r Repo) GetTrackingTx(ctx context.Context, tx *sql.Tx, orderID string, d domain.Department) (domain.DepartmentTracking, error) {
	return getTracking(ctx, tx, orderID, d)
}

func getTracking(ctx context.Context, q querier, orderID string, d domain.Department) (domain.DepartmentTracking, error) {
	t, err := scanTracking(q.QueryRowContext(ctx, trackingSelect+` WHERE t.order_id=? AND t.department=?`, orderID, d).Scan)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) InsertTrackingTx(ctx context.Context, tx *sql.Tx, t domain.DepartmentTracking) error {
	info, ok := t.Department.Info()
	if !ok {
		return fmt.Errorf("unknown department %s", t.Department)
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO department_tracking(id,order_id,department,sequence,status,started_at,completed_at,assigned_worker_id) VALUES (?,?,?,?,?,?,?,?)`,
		t.ID, t.OrderID, t.Department, info.Sequence, t.Status, nullableStringPtr(t.StartedAt), nullableStringPtr(t.CompletedAt), nullableStringPtr(t.AssignedWorkerID))
	return err
}

// StartTrackingTx moves a NOT_STARTED tracking to IN_PROGRESS.
func (r Repo) StartTrackingTx(ctx context.Context, tx *sql.Tx, trackingID, startedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE department_tracking SET status=?, started_at=? WHERE id=? AND status=?`,
		domain.StatusInProgress, startedAt, trackingID, domain.StatusNotStarted)
	return expectOne(res, err, ErrConflict)
}

// CompleteTrackingTx moves an IN_PROGRESS tracking to COMPLETED.
func (r Repo) CompleteTrackingTx(ctx context.Context, tx *sql.Tx, trackingID, completedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE department_tracking SET status=?, completed_at=? WHERE id=? AND status=?`,
		domain.StatusCompleted, completedAt, trackingID, domain.StatusInProgress)
	return expectOne(res, err, ErrConflict)
}

func (r Repo) AssignWorkerTx(ctx context.Context, tx *sql.Tx, trackingID string, workerID *string) error {
	res, err := tx.ExecContext(ctx, `UPDATE department_tracking SET assigned_worker_id=? WHERE id=?`, nullableStringPtr(workerID), trackingID)
	return expectOne(res, err, ErrNotFound)
}

// UpsertSubmissionTx stores the submission of a tracking record. Later writes win.
func (r Repo) UpsertSubmissionTx(ctx context.Context, tx *sql.Tx, trackingID string, sub *domain.WorkSubmission, updatedAt string) error {
	if sub == nil {
		sub = domain.NewWorkSubmission()
	}
	sub.Normalize()
	form, err := json.Marshal(sub.FormData)
	if err != nil {
		return fmt.Errorf("encode form data: %w", err)
	}
	photos, err := json.Marshal(sub.UploadedPhotos)
	if err != nil {
		return fmt.Errorf("encode photos: %w", err)
	}
	files, err := json.Marshal(sub.UploadedFiles)
	if err != nil {
		return fmt.Errorf("encode files: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO work_submissions(tracking_id,form_data_json,photos_json,files_json,is_draft,is_complete,last_saved_at,updated_at) VALUES (?,?,?,?,?,?,?,?)
ON CONFLICT(tracking_id) DO UPDATE SET form_data_json=excluded.form_data_json, photos_json=excluded.photos_json, files_json=excluded.files_json,
is_draft=excluded.is_draft, is_complete=excluded.is_complete, last_saved_at=excluded.last_saved_at, updated_at=excluded.updated_at`,
		trackingID, string(form), string(photos), string(files), boolInt(sub.IsDraft), boolInt(sub.IsComplete), nullableStringPtr(sub.LastSavedAt), updatedAt)
	return err
}
