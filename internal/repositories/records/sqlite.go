package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bookfeed/internal/common"
	"bookfeed/internal/dbx"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const recordColumns = `local_id, group_id, trx_id, publisher, type_url, timestamp, object_id, name, content, status`

func (r *SQLiteRepository) Add(ctx context.Context, rec *ContentRecord) error {
	query := `INSERT INTO content_records
			(group_id, trx_id, publisher, type_url, timestamp, object_id, name, content, status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query,
		rec.GroupID, rec.TrxID, rec.Publisher, rec.TypeURL, rec.Timestamp,
		rec.ObjectID, rec.Name, rec.Content, rec.Status)
	if err != nil {
		return fmt.Errorf("failed to insert content record: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		rec.LocalID = id
	}
	return nil
}

func (r *SQLiteRepository) GetByTrxID(ctx context.Context, groupID, trxID string) (*ContentRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM content_records WHERE group_id=? AND trx_id=?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, groupID, trxID))
}

func (r *SQLiteRepository) GetByObjectID(ctx context.Context, groupID, objectID string) (*ContentRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM content_records WHERE group_id=? AND object_id=?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, groupID, objectID))
}

func (r *SQLiteRepository) ListByGroup(ctx context.Context, groupID string) ([]ContentRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM content_records WHERE group_id=? ORDER BY local_id`
	return r.list(ctx, query, groupID)
}

func (r *SQLiteRepository) ListByName(ctx context.Context, groupID, name string) ([]ContentRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM content_records WHERE group_id=? AND name=? ORDER BY local_id`
	return r.list(ctx, query, groupID, name)
}

func (r *SQLiteRepository) DeleteByObjectID(ctx context.Context, groupID, objectID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM content_records WHERE group_id=? AND object_id=?`, groupID, objectID)
	if err != nil {
		return fmt.Errorf("failed to delete content record: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteByGroup(ctx context.Context, groupID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM content_records WHERE group_id=?`, groupID)
	if err != nil {
		return fmt.Errorf("failed to delete group records: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) UpdateStatus(ctx context.Context, groupID, trxID string, status Status) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE content_records SET status=? WHERE group_id=? AND trx_id=?`, status, groupID, trxID)
	if err != nil {
		return fmt.Errorf("failed to update record status: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) scanOne(row *sql.Row) (*ContentRecord, error) {
	rec := &ContentRecord{}
	err := row.Scan(&rec.LocalID, &rec.GroupID, &rec.TrxID, &rec.Publisher, &rec.TypeURL,
		&rec.Timestamp, &rec.ObjectID, &rec.Name, &rec.Content, &rec.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan content record: %w", err)
	}
	return rec, nil
}

func (r *SQLiteRepository) list(ctx context.Context, query string, args ...any) ([]ContentRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select content records: %w", err)
	}
	defer rows.Close()

	var result []ContentRecord
	for rows.Next() {
		var rec ContentRecord
		if err := rows.Scan(&rec.LocalID, &rec.GroupID, &rec.TrxID, &rec.Publisher, &rec.TypeURL,
			&rec.Timestamp, &rec.ObjectID, &rec.Name, &rec.Content, &rec.Status); err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
