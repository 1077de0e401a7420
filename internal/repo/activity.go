package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"benchline/internal/domain"
)

type ActivityFilters struct {
	OrderID    string
	Department string
	Action     string
	ActorID    string
	AfterID    int64
	Limit      int
}

// ListActivity returns entries in ascending id order, which is also timestamp order.
func (r Repo) ListActivity(ctx context.Context, f ActivityFilters) ([]domain.ActivityEntry, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.OrderID != "" {
		clauses = append(clauses, "order_id=?")
		args = append(args, f.OrderID)
	}
	if f.Department != "" {
		clauses = append(clauses, "department=?")
		args = append(args, f.Department)
	}
	if f.Action != "" {
		clauses = append(clauses, "action=?")
		args = append(args, f.Action)
	}
	if f.ActorID != "" {
		clauses = append(clauses, "actor_id=?")
		args = append(args, f.ActorID)
	}
	if f.AfterID > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, f.AfterID)
	}
	query := fmt.Sprintf(`SELECT id,ts,order_id,department,action,actor_id,metadata_json FROM activity_log WHERE %s ORDER BY id ASC`, strings.Join(clauses, " AND "))
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.ActivityEntry{}
	for rows.Next() {
		var e domain.ActivityEntry
		var dept, meta sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.OrderID, &dept, &e.Action, &e.ActorID, &meta); err != nil {
			return nil, err
		}
		e.Department = domain.Department(dept.String)
		if meta.Valid && meta.String != "" && meta.String != "{}" {
			if err := json.Unmarshal([]byte(meta.String), &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode activity %d metadata: %w", e.ID, err)
			}
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestActivity returns the newest limit entries, still in ascending order.
func (r Repo) LatestActivity(ctx context.Context, limit int) ([]domain.ActivityEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var after int64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MIN(id),1)-1 FROM (SELECT id FROM activity_log ORDER BY id DESC LIMIT ?)`, limit).Scan(&after)
	if err != nil {
		return nil, err
	}
	return r.ListActivity(ctx, ActivityFilters{AfterID: after, Limit: limit})
}

// LatestActivityID returns the highest activity id, 0 when the log is empty.
func (r Repo) LatestActivityID(ctx context.Context) (int64, error) {
	var id int64
	if err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM activity_log`).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}
