// Package activity is the append-only audit trail of order transitions.
package activity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"benchline/internal/domain"
)

// Writer appends entries inside the caller's transaction so an entry exists
// exactly when the transition it describes was committed. There is no update
// or delete; the table rejects both.
type Writer struct {
	Now func() time.Time
}

type Metadata map[string]any

func (w Writer) Record(ctx context.Context, tx *sql.Tx, orderID string, dept domain.Department, action domain.Action, actorID string, meta Metadata) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	if meta == nil {
		meta = Metadata{}
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal activity metadata: %w", err)
	}
	if actorID == "" {
		actorID = "system"
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO activity_log(ts,order_id,department,action,actor_id,metadata_json) VALUES (?,?,?,?,?,?)`,
		ts, orderID, nullable(string(dept)), action, actorID, string(data))
	if err != nil {
		return fmt.Errorf("record %s: %w", action, err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
