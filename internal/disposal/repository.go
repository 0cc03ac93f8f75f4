package disposal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDefectiveNotFound indicates a missing defective record.
var ErrDefectiveNotFound = errors.New("defective record not found")

// Repository persists disposal, defective and restore records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertDisposal writes one disposal record.
func (r *Repository) InsertDisposal(ctx context.Context, rec Record) error {
	batches, err := json.Marshal(rec.Batches)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO disposals (id, product_id, product_name, disposal_type, quantity, batch_numbers, batches, reason, disposed_by, disposed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		rec.ID, rec.ProductID, rec.ProductName, string(rec.Type), rec.Quantity, rec.BatchNumbers, batches, rec.Reason, rec.DisposedBy, rec.DisposedAt)
	return err
}

// ListDisposals returns records matching the filter, newest first.
func (r *Repository) ListDisposals(ctx context.Context, filter ListFilter) ([]Record, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, product_name, disposal_type, quantity, batch_numbers, batches, reason, disposed_by, disposed_at
FROM disposals
WHERE ($1 = '' OR disposal_type = $1)
  AND ($2 = 0 OR product_id = $2)
  AND disposed_at BETWEEN COALESCE(NULLIF($3, '0001-01-01'::timestamptz), '-infinity') AND COALESCE(NULLIF($4, '0001-01-01'::timestamptz), 'infinity')
ORDER BY disposed_at DESC
LIMIT $5`, string(filter.Type), filter.ProductID, filter.From, filter.To, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	records := []Record{}
	for rows.Next() {
		var rec Record
		var typ string
		var batches []byte
		if err := rows.Scan(&rec.ID, &rec.ProductID, &rec.ProductName, &typ, &rec.Quantity, &rec.BatchNumbers, &batches, &rec.Reason, &rec.DisposedBy, &rec.DisposedAt); err != nil {
			return nil, err
		}
		if len(batches) > 0 {
			if err := json.Unmarshal(batches, &rec.Batches); err != nil {
				return nil, err
			}
		}
		rec.Type = Type(typ)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Summarize aggregates disposal counts and quantities per type.
func (r *Repository) Summarize(ctx context.Context) (Summary, error) {
	var s Summary
	err := r.pool.QueryRow(ctx, `SELECT
  COUNT(*),
  COUNT(*) FILTER (WHERE disposal_type='defective'),
  COUNT(*) FILTER (WHERE disposal_type='expired'),
  COALESCE(SUM(quantity) FILTER (WHERE disposal_type='defective'), 0),
  COALESCE(SUM(quantity) FILTER (WHERE disposal_type='expired'), 0)
FROM disposals`).Scan(&s.TotalRecords, &s.DefectiveRecords, &s.ExpiredRecords, &s.DefectiveQuantity, &s.ExpiredQuantity)
	return s, err
}

// InsertDefective writes a defective record and returns its id.
func (r *Repository) InsertDefective(ctx context.Context, rec DefectiveRecord) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO defective_records (document_number, item_id, quantity, restored_qty, reason, reported_by, created_at)
VALUES ($1,$2,$3,0,$4,$5,NOW()) RETURNING id`,
		rec.DocumentNumber, rec.ItemID, rec.Quantity, rec.Reason, rec.ReportedBy).Scan(&id)
	return id, err
}

// GetDefective loads one defective record.
func (r *Repository) GetDefective(ctx context.Context, id int64) (DefectiveRecord, error) {
	var rec DefectiveRecord
	err := r.pool.QueryRow(ctx, `SELECT id, document_number, item_id, quantity, restored_qty, reason, reported_by, created_at
FROM defective_records WHERE id=$1`, id).
		Scan(&rec.ID, &rec.DocumentNumber, &rec.ItemID, &rec.Quantity, &rec.RestoredQty, &rec.Reason, &rec.ReportedBy, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DefectiveRecord{}, ErrDefectiveNotFound
		}
		return DefectiveRecord{}, err
	}
	return rec, nil
}

// ListDefectives returns every defective record, newest first.
func (r *Repository) ListDefectives(ctx context.Context) ([]DefectiveRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, document_number, item_id, quantity, restored_qty, reason, reported_by, created_at
FROM defective_records ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	records := []DefectiveRecord{}
	for rows.Next() {
		var rec DefectiveRecord
		if err := rows.Scan(&rec.ID, &rec.DocumentNumber, &rec.ItemID, &rec.Quantity, &rec.RestoredQty, &rec.Reason, &rec.ReportedBy, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// AddRestoredQty bumps the restored tally on a defective record.
func (r *Repository) AddRestoredQty(ctx context.Context, id, qty int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE defective_records SET restored_qty = restored_qty + $2 WHERE id=$1 AND restored_qty + $2 <= quantity`, id, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDefectiveNotFound
	}
	return nil
}

// DeleteDefective removes a defective record.
func (r *Repository) DeleteDefective(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM defective_records WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDefectiveNotFound
	}
	return nil
}

// InsertRestore writes a restore record and returns its id.
func (r *Repository) InsertRestore(ctx context.Context, rec RestoreRecord) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO restore_records (document_number, defective_id, item_id, quantity, restored_by, created_at)
VALUES ($1,$2,$3,$4,$5,NOW()) RETURNING id`,
		rec.DocumentNumber, rec.DefectiveID, rec.ItemID, rec.Quantity, rec.RestoredBy).Scan(&id)
	return id, err
}

// ListRestores returns restore records for one defective record.
func (r *Repository) ListRestores(ctx context.Context, defectiveID int64) ([]RestoreRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, document_number, defective_id, item_id, quantity, restored_by, created_at
FROM restore_records WHERE defective_id=$1 ORDER BY created_at ASC`, defectiveID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	records := []RestoreRecord{}
	for rows.Next() {
		var rec RestoreRecord
		if err := rows.Scan(&rec.ID, &rec.DocumentNumber, &rec.DefectiveID, &rec.ItemID, &rec.Quantity, &rec.RestoredBy, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
