package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/stockline-erp/stockline/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	InsertPromo(ctx context.Context, p PromoCode) (int64, error)
	GetPromo(ctx context.Context, code string) (PromoCode, error)
	ListPromos(ctx context.Context) ([]PromoCode, error)
	UpdatePromo(ctx context.Context, p PromoCode) error
	DeletePromo(ctx context.Context, code string) error
	MarkExpiredPromos(ctx context.Context, now time.Time) (int64, error)
	UpsertCustomer(ctx context.Context, c Customer) (Customer, error)
	GetCustomer(ctx context.Context, phone string) (Customer, error)
	ListCustomers(ctx context.Context) ([]Customer, error)
	SetCustomerCoins(ctx context.Context, phone string, coins int64) error
}

// ServiceConfig carries the tunable loyalty knobs.
type ServiceConfig struct {
	// SalesEarnCap bounds a single sales-channel earn. Invoice-channel
	// earns are never capped.
	SalesEarnCap int64
}

// Service manages promo codes and customer loyalty coins.
type Service struct {
	repo   RepositoryPort
	cfg    ServiceConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, cfg ServiceConfig, logger *slog.Logger) *Service {
	if cfg.SalesEarnCap <= 0 {
		cfg.SalesEarnCap = 50
	}
	return &Service{repo: repo, cfg: cfg, logger: logger, now: time.Now}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

func (s *Service) loadPromo(ctx context.Context, code string) (PromoCode, error) {
	p, err := s.repo.GetPromo(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		if errors.Is(err, ErrPromoNotFound) {
			return PromoCode{}, fmt.Errorf("%w: promo code %s", shared.ErrNotFound, code)
		}
		return PromoCode{}, err
	}
	return p, nil
}

func (s *Service) loadCustomer(ctx context.Context, phone string) (Customer, error) {
	c, err := s.repo.GetCustomer(ctx, phone)
	if err != nil {
		if errors.Is(err, ErrCustomerNotFound) {
			return Customer{}, fmt.Errorf("%w: customer %s", shared.ErrNotFound, phone)
		}
		return Customer{}, err
	}
	return c, nil
}

// CreatePromo validates, normalizes and persists a promo code.
func (s *Service) CreatePromo(ctx context.Context, code string, discount int64, endDate time.Time) (PromoCode, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return PromoCode{}, fmt.Errorf("%w: code required", shared.ErrValidation)
	}
	if discount < 1 || discount > 100 {
		return PromoCode{}, fmt.Errorf("%w: discount must be between 1 and 100", shared.ErrValidation)
	}
	p := PromoCode{
		Code:     code,
		Discount: discount,
		EndDate:  normalizeEndDate(endDate),
	}
	p.IsExpired = p.Expired(s.now())
	p.IsActive = !p.IsExpired
	id, err := s.repo.InsertPromo(ctx, p)
	if err != nil {
		return PromoCode{}, err
	}
	p.ID = id
	s.logger.Info("promo code created", "code", p.Code, "discount", p.Discount, "endDate", p.EndDate)
	return p, nil
}

// UpdatePromo rewrites discount and end date, re-deriving the flags.
func (s *Service) UpdatePromo(ctx context.Context, code string, discount int64, endDate time.Time) (PromoCode, error) {
	if discount < 1 || discount > 100 {
		return PromoCode{}, fmt.Errorf("%w: discount must be between 1 and 100", shared.ErrValidation)
	}
	p, err := s.loadPromo(ctx, code)
	if err != nil {
		return PromoCode{}, err
	}
	p.Discount = discount
	p.EndDate = normalizeEndDate(endDate)
	p.IsExpired = p.Expired(s.now())
	p.IsActive = !p.IsExpired
	if err := s.repo.UpdatePromo(ctx, p); err != nil {
		return PromoCode{}, err
	}
	return p, nil
}

// DeactivatePromo turns a code off without deleting it.
func (s *Service) DeactivatePromo(ctx context.Context, code string) (PromoCode, error) {
	p, err := s.loadPromo(ctx, code)
	if err != nil {
		return PromoCode{}, err
	}
	p.IsActive = false
	if err := s.repo.UpdatePromo(ctx, p); err != nil {
		return PromoCode{}, err
	}
	return p, nil
}

// DeletePromo removes a code.
func (s *Service) DeletePromo(ctx context.Context, code string) error {
	err := s.repo.DeletePromo(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if errors.Is(err, ErrPromoNotFound) {
		return fmt.Errorf("%w: promo code %s", shared.ErrNotFound, code)
	}
	return err
}

// ListPromos returns every promo code.
func (s *Service) ListPromos(ctx context.Context) ([]PromoCode, error) {
	return s.repo.ListPromos(ctx)
}

// ValidateCode resolves a code to its discount percent. Unknown codes
// map to not-found, past end dates to expired, switched-off codes to a
// validation error.
func (s *Service) ValidateCode(ctx context.Context, code string) (int64, error) {
	p, err := s.loadPromo(ctx, code)
	if err != nil {
		return 0, err
	}
	if p.IsExpired || p.Expired(s.now()) {
		return 0, fmt.Errorf("%w: promo code %s", shared.ErrExpired, p.Code)
	}
	if !p.IsActive {
		return 0, fmt.Errorf("%w: promo code %s is inactive", shared.ErrValidation, p.Code)
	}
	return p.Discount, nil
}

// SweepExpiredPromos flags every overdue code. Run hourly by the
// worker.
func (s *Service) SweepExpiredPromos(ctx context.Context) (int64, error) {
	flagged, err := s.repo.MarkExpiredPromos(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if flagged > 0 {
		s.logger.Info("promo sweep flagged expired codes", "count", flagged)
	}
	return flagged, nil
}

// coinsFor converts a monetary base value to coins.
func coinsFor(baseValue int64) int64 {
	if baseValue <= 0 {
		return 0
	}
	return baseValue / 100
}

// Earn credits coins for a purchase. Sales-channel earns are capped,
// invoice-channel earns are not.
func (s *Service) Earn(ctx context.Context, phone string, baseValue int64, channel string) (int64, error) {
	if phone == "" {
		return 0, fmt.Errorf("%w: customer phone required", shared.ErrValidation)
	}
	coins := coinsFor(baseValue)
	if channel == ChannelSales && coins > s.cfg.SalesEarnCap {
		coins = s.cfg.SalesEarnCap
	}
	c, err := s.loadCustomer(ctx, phone)
	if err != nil {
		return 0, err
	}
	if coins == 0 {
		return c.Coins, nil
	}
	balance := c.Coins + coins
	if err := s.repo.SetCustomerCoins(ctx, phone, balance); err != nil {
		return 0, err
	}
	return balance, nil
}

// EarnOnInvoice awards uncapped coins for an invoice base value.
func (s *Service) EarnOnInvoice(ctx context.Context, customerPhone string, baseValue int64) (int64, error) {
	return s.SettleInvoiceCoins(ctx, customerPhone, 0, baseValue)
}

// SettleInvoiceCoins settles an invoice's loyalty movement in one call:
// the coins redeemed against the bill come off first, flooring at zero,
// then the uncapped invoice earn lands. Unknown customers are created
// on the fly so a first purchase still earns.
func (s *Service) SettleInvoiceCoins(ctx context.Context, customerPhone string, coinsUsed, baseValue int64) (int64, error) {
	if customerPhone == "" {
		return 0, nil
	}
	if coinsUsed < 0 {
		return 0, fmt.Errorf("%w: coins used must not be negative", shared.ErrValidation)
	}
	if _, err := s.repo.GetCustomer(ctx, customerPhone); err != nil {
		if !errors.Is(err, ErrCustomerNotFound) {
			return 0, err
		}
		if _, uerr := s.repo.UpsertCustomer(ctx, Customer{Phone: customerPhone}); uerr != nil {
			return 0, uerr
		}
	}
	return s.Apply(ctx, customerPhone, coinsUsed, coinsFor(baseValue))
}

// Apply settles coins on a purchase: the deduction lands first and
// floors at zero, then the new earn is added.
func (s *Service) Apply(ctx context.Context, phone string, deduct, add int64) (int64, error) {
	if deduct < 0 || add < 0 {
		return 0, fmt.Errorf("%w: coin amounts must not be negative", shared.ErrValidation)
	}
	c, err := s.loadCustomer(ctx, phone)
	if err != nil {
		return 0, err
	}
	balance := c.Coins - deduct
	if balance < 0 {
		balance = 0
	}
	balance += add
	if err := s.repo.SetCustomerCoins(ctx, phone, balance); err != nil {
		return 0, err
	}
	return balance, nil
}

// Balance returns a customer's coin balance.
func (s *Service) Balance(ctx context.Context, phone string) (int64, error) {
	c, err := s.loadCustomer(ctx, phone)
	if err != nil {
		return 0, err
	}
	return c.Coins, nil
}

// SaveCustomer creates or renames a customer keyed by phone.
func (s *Service) SaveCustomer(ctx context.Context, name, phone string) (Customer, error) {
	if phone == "" {
		return Customer{}, fmt.Errorf("%w: phone required", shared.ErrValidation)
	}
	return s.repo.UpsertCustomer(ctx, Customer{Name: name, Phone: phone})
}

// GetCustomer returns one customer.
func (s *Service) GetCustomer(ctx context.Context, phone string) (Customer, error) {
	return s.loadCustomer(ctx, phone)
}

// ListCustomers returns every customer.
func (s *Service) ListCustomers(ctx context.Context) ([]Customer, error) {
	return s.repo.ListCustomers(ctx)
}
