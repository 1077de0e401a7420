package repo

import (
	"context"

	"benchline/internal/domain"
)

func (r Repo) ListFlags(ctx context.Context) ([]domain.FeatureFlag, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT key,enabled,updated_at FROM feature_flags ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.FeatureFlag
	for rows.Next() {
		var f domain.FeatureFlag
		var enabled int
		if err := rows.Scan(&f.Key, &enabled, &f.UpdatedAt); err != nil {
			return nil, err
		}
		f.Enabled = enabled == 1
		res = append(res, f)
	}
	return res, rows.Err()
}

func (r Repo) UpsertFlag(ctx context.Context, key string, enabled bool, updatedAt string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO feature_flags(key,enabled,updated_at) VALUES (?,?,?)
ON CONFLICT(key) DO UPDATE SET enabled=excluded.enabled, updated_at=excluded.updated_at`, key, boolInt(enabled), updatedAt)
	return err
}
