package service

import (
	"context"
	"testing"
	"time"

	"coin-ledger/internal/adapter/storage/memory"
	redisStore "coin-ledger/internal/adapter/storage/redis"
	"coin-ledger/internal/core/domain"
	"coin-ledger/internal/core/ports"
	"coin-ledger/pkg/apperror"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ledgerHarness wires every ledger service over the memory store and a
// miniredis-backed idempotency cache.
type ledgerHarness struct {
	store      *memory.Store
	mr         *miniredis.Miniredis
	engine     *BalanceEngine
	calc       *Calculator
	transfer   *TransferServiceImpl
	payment    *PaymentServiceImpl
	settlement *SettlementServiceImpl
	recon      *ReconciliationServiceImpl
	accounts   ports.AccountService
	rates      ports.MerchantRateService
}

func newLedgerHarness(t *testing.T, policy domain.RewardPolicy) *ledgerHarness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := memory.NewStore()
	log := newTestLogger()
	cache := redisStore.NewIdempotencyCache(client)
	engine := NewBalanceEngine(store.Accounts(), log)
	calc := NewCalculator(policy)

	return &ledgerHarness{
		store:      store,
		mr:         mr,
		engine:     engine,
		calc:       calc,
		transfer:   NewTransferService(engine, policy, store.Transactions(), store.Idempotency(), cache, store, log),
		payment:    NewPaymentService(calc, engine, store.Transactions(), store.MerchantRates(), store.Idempotency(), cache, store, log),
		settlement: NewSettlementService(engine, store.Transactions(), store.Settlements(), store, time.UTC, log),
		recon:      NewReconciliationService(store.Ledger(), log),
		accounts:   NewAccountService(engine, store.Accounts(), store.Transactions(), store, log),
		rates:      NewMerchantRateService(store.MerchantRates(), log),
	}
}

// fund grants coins through a sender-less SUCCESS mint so the ledger
// history stays consistent with the balance.
func (h *ledgerHarness) fund(t *testing.T, id uuid.UUID, amount int64) {
	t.Helper()
	ctx := context.Background()
	tx, err := h.store.Begin(ctx)
	require.NoError(t, err)
	_, err = h.engine.Credit(ctx, tx, id, amount)
	require.NoError(t, err)
	now := time.Now().UTC()
	require.NoError(t, h.store.Transactions().Create(ctx, tx, &domain.Transaction{
		ID:                uuid.New(),
		ReferenceID:       "grant-" + uuid.NewString(),
		TransactionType:   domain.TransactionTypeMint,
		ReceiverAccountID: id,
		AmountGross:       amount,
		AmountNet:         amount,
		Status:            domain.TransactionStatusSuccess,
		CreatedAt:         now,
		ProcessedAt:       &now,
	}))
	require.NoError(t, tx.Commit(ctx))
}

func (h *ledgerHarness) openMerchant(t *testing.T, commission, reward string, maxCap int64) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	id := uuid.New()
	_, err := h.accounts.OpenAccount(ctx, id, domain.AccountKindMerchant)
	require.NoError(t, err)
	_, err = h.rates.UpdateRates(ctx, &domain.MerchantRate{
		MerchantID:     id,
		CommissionRate: decimal.RequireFromString(commission),
		RewardRate:     decimal.RequireFromString(reward),
		MaxRewardCap:   maxCap,
	})
	require.NoError(t, err)
	return id
}

func (h *ledgerHarness) balance(t *testing.T, id uuid.UUID) int64 {
	t.Helper()
	b, err := h.engine.GetBalance(context.Background(), id)
	require.NoError(t, err)
	return b
}

func (h *ledgerHarness) assertReconciled(t *testing.T) {
	t.Helper()
	report, err := h.recon.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Mismatches, "stored balances should match ledger history")
}

// mockTx implements pgx.Tx for gomock-driven tests. Commit returns commitErr.
type mockTx struct {
	pgx.Tx
	commitErr   error
	rollbackErr error
	committed   bool
	rolledBack  bool
}

func (m *mockTx) Rollback(_ context.Context) error {
	if m.committed || m.rolledBack {
		return pgx.ErrTxClosed
	}
	m.rolledBack = true
	return m.rollbackErr
}

func (m *mockTx) Commit(_ context.Context) error {
	if m.commitErr != nil {
		return m.commitErr
	}
	m.committed = true
	return nil
}

func assertAppError(t *testing.T, err error, expectedCode string) {
	t.Helper()
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, expectedCode, appErr.Code)
}
