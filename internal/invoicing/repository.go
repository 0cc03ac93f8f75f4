package invoicing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockline-erp/stockline/internal/shared"
)

// ErrInvoiceNotFound indicates a missing invoice document.
var ErrInvoiceNotFound = errors.New("invoice not found")

// Repository persists invoices, archives and update history.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert writes a new invoice with its items.
func (r *Repository) Insert(ctx context.Context, inv Invoice) (int64, error) {
	items, err := json.Marshal(inv.Items)
	if err != nil {
		return 0, err
	}
	var id int64
	err = r.pool.QueryRow(ctx, `INSERT INTO invoices (number, customer_name, customer_phone, items, subtotal, item_discount, promo_code, promo_pct, promo_discount, loyalty_coins_used, loyalty_discount, loyalty_coins_earned, base_value, total, notes, payment_method, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,NOW(),NOW()) RETURNING id`,
		inv.Number, inv.CustomerName, inv.CustomerPhone, items, inv.Subtotal, inv.ItemDiscount, inv.PromoCode, inv.PromoPct, inv.PromoDiscount,
		inv.LoyaltyCoinsUsed, inv.LoyaltyDiscount, inv.LoyaltyCoinsEarned, inv.BaseValue, inv.Total, inv.Notes, inv.PaymentMethod, inv.CreatedBy).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, fmt.Errorf("%w: invoice %s already exists", shared.ErrConflict, inv.Number)
		}
		return 0, err
	}
	return id, nil
}

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	var items []byte
	err := row.Scan(&inv.ID, &inv.Number, &inv.CustomerName, &inv.CustomerPhone, &items, &inv.Subtotal, &inv.ItemDiscount,
		&inv.PromoCode, &inv.PromoPct, &inv.PromoDiscount, &inv.LoyaltyCoinsUsed, &inv.LoyaltyDiscount, &inv.LoyaltyCoinsEarned,
		&inv.BaseValue, &inv.Total, &inv.Notes, &inv.PaymentMethod, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return Invoice{}, err
	}
	if err := json.Unmarshal(items, &inv.Items); err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

const invoiceColumns = `id, number, customer_name, customer_phone, items, subtotal, item_discount, promo_code, promo_pct, promo_discount, loyalty_coins_used, loyalty_discount, loyalty_coins_earned, base_value, total, notes, payment_method, created_by, created_at, updated_at`

// GetByNumber loads one invoice.
func (r *Repository) GetByNumber(ctx context.Context, number string) (Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE number=$1`, number))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, ErrInvoiceNotFound
		}
		return Invoice{}, err
	}
	return inv, nil
}

// List returns invoices newest first.
func (r *Repository) List(ctx context.Context, limit int) ([]Invoice, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	invoices := []Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// UpdateHeader writes the bounded header fields.
func (r *Repository) UpdateHeader(ctx context.Context, inv Invoice) error {
	tag, err := r.pool.Exec(ctx, `UPDATE invoices SET customer_name=$2, customer_phone=$3, notes=$4, payment_method=$5, updated_at=NOW() WHERE number=$1`,
		inv.Number, inv.CustomerName, inv.CustomerPhone, inv.Notes, inv.PaymentMethod)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

// UpdateItems rewrites the item set and every derived amount.
func (r *Repository) UpdateItems(ctx context.Context, inv Invoice) error {
	items, err := json.Marshal(inv.Items)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `UPDATE invoices SET items=$2, subtotal=$3, item_discount=$4, promo_discount=$5, loyalty_coins_used=$6, loyalty_discount=$7, loyalty_coins_earned=$8, base_value=$9, total=$10, updated_at=NOW() WHERE number=$1`,
		inv.Number, items, inv.Subtotal, inv.ItemDiscount, inv.PromoDiscount, inv.LoyaltyCoinsUsed, inv.LoyaltyDiscount, inv.LoyaltyCoinsEarned, inv.BaseValue, inv.Total)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

// DeleteByNumber removes an invoice document.
func (r *Repository) DeleteByNumber(ctx context.Context, number string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM invoices WHERE number=$1`, number)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

// InsertArchive writes the deleted-invoice copy.
func (r *Repository) InsertArchive(ctx context.Context, arch ArchivedInvoice) error {
	items, err := json.Marshal(arch.Items)
	if err != nil {
		return err
	}
	details, err := json.Marshal(arch.StockDetails)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO archived_invoices (number, customer_name, customer_phone, items, subtotal, item_discount, promo_code, promo_pct, promo_discount, loyalty_coins_used, loyalty_discount, loyalty_coins_earned, base_value, total, notes, payment_method, created_by, created_at, deleted_by, deleted_at, stock_details)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,NOW(),$20)`,
		arch.Number, arch.CustomerName, arch.CustomerPhone, items, arch.Subtotal, arch.ItemDiscount, arch.PromoCode, arch.PromoPct, arch.PromoDiscount,
		arch.LoyaltyCoinsUsed, arch.LoyaltyDiscount, arch.LoyaltyCoinsEarned, arch.BaseValue, arch.Total, arch.Notes, arch.PaymentMethod, arch.CreatedBy, arch.CreatedAt, arch.DeletedBy, details)
	return err
}

// UpdateArchiveStockDetails backfills the restoration detail once the
// stock has actually moved.
func (r *Repository) UpdateArchiveStockDetails(ctx context.Context, number string, details []StockRestoreDetail) error {
	payload, err := json.Marshal(details)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `UPDATE archived_invoices SET stock_details=$2 WHERE number=$1`, number, payload)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

// DeleteArchive removes an archived copy, used to unwind a failed
// deletion workflow.
func (r *Repository) DeleteArchive(ctx context.Context, number string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM archived_invoices WHERE number=$1`, number)
	return err
}

// ListArchived returns archived invoices newest first.
func (r *Repository) ListArchived(ctx context.Context, limit int) ([]ArchivedInvoice, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT number, customer_name, customer_phone, items, subtotal, item_discount, promo_code, promo_pct, promo_discount, loyalty_coins_used, loyalty_discount, loyalty_coins_earned, base_value, total, notes, payment_method, created_by, created_at, deleted_by, deleted_at, stock_details
FROM archived_invoices ORDER BY deleted_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	archives := []ArchivedInvoice{}
	for rows.Next() {
		var arch ArchivedInvoice
		var items, details []byte
		if err := rows.Scan(&arch.Number, &arch.CustomerName, &arch.CustomerPhone, &items, &arch.Subtotal, &arch.ItemDiscount,
			&arch.PromoCode, &arch.PromoPct, &arch.PromoDiscount, &arch.LoyaltyCoinsUsed, &arch.LoyaltyDiscount, &arch.LoyaltyCoinsEarned,
			&arch.BaseValue, &arch.Total, &arch.Notes, &arch.PaymentMethod, &arch.CreatedBy, &arch.CreatedAt, &arch.DeletedBy, &arch.DeletedAt, &details); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(items, &arch.Items); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(details, &arch.StockDetails); err != nil {
			return nil, err
		}
		archives = append(archives, arch)
	}
	return archives, rows.Err()
}

// InsertHistory writes one header edit record.
func (r *Repository) InsertHistory(ctx context.Context, entry HistoryEntry) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO invoice_update_history (invoice_number, field, old_value, new_value, updated_by, updated_at)
VALUES ($1,$2,$3,$4,$5,NOW())`, entry.InvoiceNumber, entry.Field, entry.OldValue, entry.NewValue, entry.UpdatedBy)
	return err
}

// ListHistory returns the edit trail for one invoice.
func (r *Repository) ListHistory(ctx context.Context, number string) ([]HistoryEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, invoice_number, field, old_value, new_value, updated_by, updated_at
FROM invoice_update_history WHERE invoice_number=$1 ORDER BY updated_at ASC`, number)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []HistoryEntry{}
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.InvoiceNumber, &e.Field, &e.OldValue, &e.NewValue, &e.UpdatedBy, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// InsertItemUpdate writes one item-set edit record, diff and ledger
// movements as JSON.
func (r *Repository) InsertItemUpdate(ctx context.Context, rec ItemUpdateRecord) error {
	added, err := json.Marshal(rec.ItemsAdded)
	if err != nil {
		return err
	}
	removed, err := json.Marshal(rec.ItemsRemoved)
	if err != nil {
		return err
	}
	updated, err := json.Marshal(rec.ItemsUpdated)
	if err != nil {
		return err
	}
	movements, err := json.Marshal(rec.InventoryUpdates)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO invoice_item_updates (invoice_number, items_added, items_removed, items_updated, inventory_updates, old_total, new_total, difference, status, error_details, updated_by, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW())`,
		rec.InvoiceNumber, added, removed, updated, movements, rec.OldTotal, rec.NewTotal, rec.Difference, rec.Status, rec.ErrorDetails, rec.UpdatedBy)
	return err
}

// ListItemUpdates returns the item edit trail for one invoice.
func (r *Repository) ListItemUpdates(ctx context.Context, number string) ([]ItemUpdateRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, invoice_number, items_added, items_removed, items_updated, inventory_updates, old_total, new_total, difference, status, error_details, updated_by, updated_at
FROM invoice_item_updates WHERE invoice_number=$1 ORDER BY updated_at ASC`, number)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	records := []ItemUpdateRecord{}
	for rows.Next() {
		var rec ItemUpdateRecord
		var added, removed, updated, movements []byte
		if err := rows.Scan(&rec.ID, &rec.InvoiceNumber, &added, &removed, &updated, &movements,
			&rec.OldTotal, &rec.NewTotal, &rec.Difference, &rec.Status, &rec.ErrorDetails, &rec.UpdatedBy, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(added, &rec.ItemsAdded); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(removed, &rec.ItemsRemoved); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(updated, &rec.ItemsUpdated); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(movements, &rec.InventoryUpdates); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
