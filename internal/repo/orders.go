package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"benchline/internal/domain"
)

const orderColumns = `id,reference,customer,description,priority,due_date,current_department,created_at,updated_at`

type OrderFilters struct {
	Department      string
	Priority        string
	AssigneeID      string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func scanOrder(scan func(dest ...any) error) (domain.Order, error) {
	var o domain.Order
	var customer, description, due sql.NullString
	err := scan(&o.ID, &o.Reference, &customer, &description, &o.Priority, &due, &o.CurrentDepartment, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return o, err
	}
	o.Customer = customer.String
	o.Description = description.String
	o.DueDate = stringPtr(due)
	return o, nil
}

func (r Repo) InsertOrderTx(ctx context.Context, tx *sql.Tx, o domain.Order) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO orders(`+orderColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		o.ID, o.Reference, nullable(o.Customer), nullable(o.Description), o.Priority, nullableStringPtr(o.DueDate),
		o.CurrentDepartment, o.CreatedAt, o.UpdatedAt)
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return fmt.Errorf("order reference %s already exists: %w", o.Reference, ErrConflict)
	}
	return err
}

func (r Repo) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return getOrder(ctx, r.DB, id)
}

func (r Repo) GetOrderTx(ctx context.Context, tx *sql.Tx, id string) (domain.Order, error) {
	return getOrder(ctx, tx, id)
}

// GetOrderByReference resolves the shop reference printed on the job card.
func (r Repo) GetOrderByReference(ctx context.Context, reference string) (domain.Order, error) {
	var id string
	err := r.DB.QueryRowContext(ctx, `SELECT id FROM orders WHERE reference=?`, reference).Scan(&id)
	if err == sql.ErrNoRows {
		return domain.Order{}, ErrNotFound
	}
	if err != nil {
		return domain.Order{}, err
	}
	return r.GetOrder(ctx, id)
}

func getOrder(ctx context.Context, q querier, id string) (domain.Order, error) {
	o, err := scanOrder(q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=?`, id).Scan)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	if err != nil {
		return o, err
	}
	o.Tracking, err = listTracking(ctx, q, o.ID)
	if err != nil {
		return o, err
	}
	return o, nil
}

func (r Repo) ListOrders(ctx context.Context, f OrderFilters) ([]domain.Order, error) {
	var clauses []string
	var args []any
	if f.Department != "" {
		clauses = append(clauses, "current_department=?")
		args = append(args, f.Department)
	}
	if f.Priority != "" {
		clauses = append(clauses, "priority=?")
		args = append(args, f.Priority)
	}
	if f.AssigneeID != "" {
		clauses = append(clauses, `EXISTS (SELECT 1 FROM department_tracking t WHERE t.order_id=orders.id AND t.department=orders.current_department AND t.assigned_worker_id=?)`)
		args = append(args, f.AssigneeID)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + orderColumns + ` FROM orders ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var res []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows.Scan)
		if err != nil {
			rows.Close()
			return nil, err
		}
		res = append(res, o)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		res[i].Tracking, err = listTracking(ctx, r.DB, res[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (r Repo) UpdateOrderProgressTx(ctx context.Context, tx *sql.Tx, id string, current domain.Department, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE orders SET current_department=?, updated_at=? WHERE id=?`, current, updatedAt, id)
	return expectOne(res, err, ErrNotFound)
}

func (r Repo) TouchOrderTx(ctx context.Context, tx *sql.Tx, id, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE orders SET updated_at=? WHERE id=?`, updatedAt, id)
	return expectOne(res, err, ErrNotFound)
}

// CountOrdersByDepartment returns how many orders currently sit in each department.
func (r Repo) CountOrdersByDepartment(ctx context.Context) (map[domain.Department]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT current_department, COUNT(*) FROM orders GROUP BY current_department`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[domain.Department]int{}
	for rows.Next() {
		var d domain.Department
		var n int
		if err := rows.Scan(&d, &n); err != nil {
			return nil, err
		}
		res[d] = n
	}
	return res, rows.Err()
}
