package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockline-erp/stockline/internal/shared"
)

// ErrPromoNotFound indicates a missing promo code.
var ErrPromoNotFound = errors.New("promo code not found")

// ErrCustomerNotFound indicates a missing customer.
var ErrCustomerNotFound = errors.New("customer not found")

// Repository persists promo codes and customers in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertPromo writes a promo code.
func (r *Repository) InsertPromo(ctx context.Context, p PromoCode) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO promo_codes (code, discount, end_date, is_active, is_expired, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,NOW(),NOW()) RETURNING id`,
		p.Code, p.Discount, p.EndDate, p.IsActive, p.IsExpired).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, fmt.Errorf("%w: promo code %s already exists", shared.ErrConflict, p.Code)
		}
		return 0, err
	}
	return id, nil
}

// GetPromo loads one promo code.
func (r *Repository) GetPromo(ctx context.Context, code string) (PromoCode, error) {
	var p PromoCode
	err := r.pool.QueryRow(ctx, `SELECT id, code, discount, end_date, is_active, is_expired, created_at, updated_at
FROM promo_codes WHERE code=$1`, code).
		Scan(&p.ID, &p.Code, &p.Discount, &p.EndDate, &p.IsActive, &p.IsExpired, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PromoCode{}, ErrPromoNotFound
		}
		return PromoCode{}, err
	}
	return p, nil
}

// ListPromos returns every promo code.
func (r *Repository) ListPromos(ctx context.Context) ([]PromoCode, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, discount, end_date, is_active, is_expired, created_at, updated_at
FROM promo_codes ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	promos := []PromoCode{}
	for rows.Next() {
		var p PromoCode
		if err := rows.Scan(&p.ID, &p.Code, &p.Discount, &p.EndDate, &p.IsActive, &p.IsExpired, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		promos = append(promos, p)
	}
	return promos, rows.Err()
}

// UpdatePromo rewrites a promo code's mutable fields.
func (r *Repository) UpdatePromo(ctx context.Context, p PromoCode) error {
	tag, err := r.pool.Exec(ctx, `UPDATE promo_codes SET discount=$2, end_date=$3, is_active=$4, is_expired=$5, updated_at=NOW() WHERE code=$1`,
		p.Code, p.Discount, p.EndDate, p.IsActive, p.IsExpired)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPromoNotFound
	}
	return nil
}

// DeletePromo removes a promo code.
func (r *Repository) DeletePromo(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM promo_codes WHERE code=$1`, code)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPromoNotFound
	}
	return nil
}

// MarkExpiredPromos flags every active code whose end date has passed.
// Returns the number of codes flagged.
func (r *Repository) MarkExpiredPromos(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE promo_codes SET is_expired=TRUE, is_active=FALSE, updated_at=NOW()
WHERE end_date < $1 AND is_expired=FALSE`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// UpsertCustomer inserts a customer or refreshes the name on conflict.
func (r *Repository) UpsertCustomer(ctx context.Context, c Customer) (Customer, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO customers (name, phone, coins, created_at, updated_at)
VALUES ($1,$2,$3,NOW(),NOW())
ON CONFLICT (phone) DO UPDATE SET name=EXCLUDED.name, updated_at=NOW()
RETURNING id, name, phone, coins, created_at, updated_at`,
		c.Name, c.Phone, c.Coins).
		Scan(&c.ID, &c.Name, &c.Phone, &c.Coins, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Customer{}, err
	}
	return c, nil
}

// GetCustomer loads one customer by phone.
func (r *Repository) GetCustomer(ctx context.Context, phone string) (Customer, error) {
	var c Customer
	err := r.pool.QueryRow(ctx, `SELECT id, name, phone, coins, created_at, updated_at FROM customers WHERE phone=$1`, phone).
		Scan(&c.ID, &c.Name, &c.Phone, &c.Coins, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, ErrCustomerNotFound
		}
		return Customer{}, err
	}
	return c, nil
}

// ListCustomers returns every customer.
func (r *Repository) ListCustomers(ctx context.Context) ([]Customer, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, phone, coins, created_at, updated_at FROM customers ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	customers := []Customer{}
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Coins, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

// SetCustomerCoins writes the balance after an earn or apply.
func (r *Repository) SetCustomerCoins(ctx context.Context, phone string, coins int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE customers SET coins=$2, updated_at=NOW() WHERE phone=$1`, phone, coins)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCustomerNotFound
	}
	return nil
}
