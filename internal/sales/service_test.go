package sales

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stockline-erp/stockline/internal/shared"
)

type memorySalesRepo struct {
	promos    map[string]PromoCode
	customers map[string]Customer
	nextID    int64
}

func newMemorySalesRepo() *memorySalesRepo {
	return &memorySalesRepo{promos: map[string]PromoCode{}, customers: map[string]Customer{}}
}

func (m *memorySalesRepo) InsertPromo(_ context.Context, p PromoCode) (int64, error) {
	if _, ok := m.promos[p.Code]; ok {
		return 0, shared.ErrConflict
	}
	m.nextID++
	p.ID = m.nextID
	m.promos[p.Code] = p
	return p.ID, nil
}

func (m *memorySalesRepo) GetPromo(_ context.Context, code string) (PromoCode, error) {
	p, ok := m.promos[code]
	if !ok {
		return PromoCode{}, ErrPromoNotFound
	}
	return p, nil
}

func (m *memorySalesRepo) ListPromos(_ context.Context) ([]PromoCode, error) {
	out := []PromoCode{}
	for _, p := range m.promos {
		out = append(out, p)
	}
	return out, nil
}

func (m *memorySalesRepo) UpdatePromo(_ context.Context, p PromoCode) error {
	if _, ok := m.promos[p.Code]; !ok {
		return ErrPromoNotFound
	}
	m.promos[p.Code] = p
	return nil
}

func (m *memorySalesRepo) DeletePromo(_ context.Context, code string) error {
	if _, ok := m.promos[code]; !ok {
		return ErrPromoNotFound
	}
	delete(m.promos, code)
	return nil
}

func (m *memorySalesRepo) MarkExpiredPromos(_ context.Context, now time.Time) (int64, error) {
	var flagged int64
	for code, p := range m.promos {
		if p.EndDate.Before(now) && !p.IsExpired {
			p.IsExpired = true
			p.IsActive = false
			m.promos[code] = p
			flagged++
		}
	}
	return flagged, nil
}

func (m *memorySalesRepo) UpsertCustomer(_ context.Context, c Customer) (Customer, error) {
	if existing, ok := m.customers[c.Phone]; ok {
		existing.Name = c.Name
		m.customers[c.Phone] = existing
		return existing, nil
	}
	m.nextID++
	c.ID = m.nextID
	m.customers[c.Phone] = c
	return c, nil
}

func (m *memorySalesRepo) GetCustomer(_ context.Context, phone string) (Customer, error) {
	c, ok := m.customers[phone]
	if !ok {
		return Customer{}, ErrCustomerNotFound
	}
	return c, nil
}

func (m *memorySalesRepo) ListCustomers(_ context.Context) ([]Customer, error) {
	out := []Customer{}
	for _, c := range m.customers {
		out = append(out, c)
	}
	return out, nil
}

func (m *memorySalesRepo) SetCustomerCoins(_ context.Context, phone string, coins int64) error {
	c, ok := m.customers[phone]
	if !ok {
		return ErrCustomerNotFound
	}
	c.Coins = coins
	m.customers[phone] = c
	return nil
}

func newSalesService(t *testing.T) (*Service, *memorySalesRepo) {
	t.Helper()
	repo := newMemorySalesRepo()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	svc := NewService(repo, ServiceConfig{SalesEarnCap: 50}, logger)
	svc.WithNow(func() time.Time {
		return time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)
	})
	return svc, repo
}

func TestCreatePromoNormalizesCodeAndEndDate(t *testing.T) {
	svc, _ := newSalesService(t)

	p, err := svc.CreatePromo(context.Background(), " summer10 ", 10, time.Date(2025, time.July, 1, 9, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, "SUMMER10", p.Code)
	require.Equal(t, 23, p.EndDate.Hour())
	require.Equal(t, 59, p.EndDate.Minute())
	require.Equal(t, 59, p.EndDate.Second())
	require.Equal(t, 999*int(time.Millisecond), p.EndDate.Nanosecond())
	require.True(t, p.IsActive)
	require.False(t, p.IsExpired)
}

func TestCreatePromoDiscountBounds(t *testing.T) {
	svc, _ := newSalesService(t)

	_, err := svc.CreatePromo(context.Background(), "ZERO", 0, time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.CreatePromo(context.Background(), "BIG", 101, time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreatePromoPastEndDateStartsExpired(t *testing.T) {
	svc, _ := newSalesService(t)

	p, err := svc.CreatePromo(context.Background(), "OLD", 5, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.True(t, p.IsExpired)
	require.False(t, p.IsActive)
}

func TestValidateCode(t *testing.T) {
	svc, _ := newSalesService(t)

	_, err := svc.CreatePromo(context.Background(), "SUMMER10", 10, time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	discount, err := svc.ValidateCode(context.Background(), "summer10")
	require.NoError(t, err)
	require.Equal(t, int64(10), discount)

	_, err = svc.ValidateCode(context.Background(), "NOPE")
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.CreatePromo(context.Background(), "OLD", 5, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	_, err = svc.ValidateCode(context.Background(), "OLD")
	require.ErrorIs(t, err, shared.ErrExpired)

	_, err = svc.DeactivatePromo(context.Background(), "SUMMER10")
	require.NoError(t, err)
	_, err = svc.ValidateCode(context.Background(), "SUMMER10")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestSweepExpiredPromos(t *testing.T) {
	svc, repo := newSalesService(t)

	_, err := svc.CreatePromo(context.Background(), "LIVE", 10, time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	// seeded directly so the saved flags predate the sweep
	repo.promos["STALE"] = PromoCode{
		Code:     "STALE",
		Discount: 15,
		EndDate:  time.Date(2025, time.June, 1, 23, 59, 59, 0, time.UTC),
		IsActive: true,
	}

	flagged, err := svc.SweepExpiredPromos(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), flagged)
	require.True(t, repo.promos["STALE"].IsExpired)
	require.False(t, repo.promos["STALE"].IsActive)
	require.False(t, repo.promos["LIVE"].IsExpired)
}

func TestEarnCapsSalesChannelOnly(t *testing.T) {
	svc, _ := newSalesService(t)
	_, err := svc.SaveCustomer(context.Background(), "Asha", "555-0100")
	require.NoError(t, err)

	balance, err := svc.Earn(context.Background(), "555-0100", 9999, ChannelSales)
	require.NoError(t, err)
	require.Equal(t, int64(50), balance)

	balance, err = svc.Earn(context.Background(), "555-0100", 9999, ChannelInvoice)
	require.NoError(t, err)
	require.Equal(t, int64(149), balance)
}

func TestEarnFloorsDivision(t *testing.T) {
	svc, _ := newSalesService(t)
	_, err := svc.SaveCustomer(context.Background(), "Asha", "555-0100")
	require.NoError(t, err)

	balance, err := svc.Earn(context.Background(), "555-0100", 199, ChannelSales)
	require.NoError(t, err)
	require.Equal(t, int64(1), balance)

	balance, err = svc.Earn(context.Background(), "555-0100", 99, ChannelSales)
	require.NoError(t, err)
	require.Equal(t, int64(1), balance)
}

func TestEarnOnInvoiceCreatesCustomer(t *testing.T) {
	svc, repo := newSalesService(t)

	balance, err := svc.EarnOnInvoice(context.Background(), "555-0199", 2500)
	require.NoError(t, err)
	require.Equal(t, int64(25), balance)
	require.Contains(t, repo.customers, "555-0199")
}

func TestEarnOnInvoiceWithoutPhoneIsNoop(t *testing.T) {
	svc, repo := newSalesService(t)

	balance, err := svc.EarnOnInvoice(context.Background(), "", 2500)
	require.NoError(t, err)
	require.Zero(t, balance)
	require.Empty(t, repo.customers)
}

func TestSettleInvoiceCoinsRedeemsThenEarns(t *testing.T) {
	svc, _ := newSalesService(t)
	_, err := svc.SaveCustomer(context.Background(), "Asha", "555-0100")
	require.NoError(t, err)
	_, err = svc.Earn(context.Background(), "555-0100", 1000, ChannelSales)
	require.NoError(t, err)

	// 10 coins on hand, 810 redeemed floors to 0, then the invoice earn
	// of floor(2500/100) lands uncapped.
	balance, err := svc.SettleInvoiceCoins(context.Background(), "555-0100", 810, 2500)
	require.NoError(t, err)
	require.Equal(t, int64(25), balance)

	_, err = svc.SettleInvoiceCoins(context.Background(), "555-0100", -1, 100)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestApplyDeductsBeforeAddingAndFloorsAtZero(t *testing.T) {
	svc, _ := newSalesService(t)
	_, err := svc.SaveCustomer(context.Background(), "Asha", "555-0100")
	require.NoError(t, err)
	_, err = svc.Earn(context.Background(), "555-0100", 1000, ChannelSales)
	require.NoError(t, err)

	// deduct 30 from 10 floors to 0, then add 7
	balance, err := svc.Apply(context.Background(), "555-0100", 30, 7)
	require.NoError(t, err)
	require.Equal(t, int64(7), balance)

	balance, err = svc.Apply(context.Background(), "555-0100", 2, 0)
	require.NoError(t, err)
	require.Equal(t, int64(5), balance)
}

func TestApplyUnknownCustomer(t *testing.T) {
	svc, _ := newSalesService(t)

	_, err := svc.Apply(context.Background(), "555-0404", 1, 1)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
