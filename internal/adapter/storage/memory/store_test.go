package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"coin-ledger/internal/core/domain"
	"coin-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func begin(t *testing.T, s *Store) pgx.Tx {
	t.Helper()
	tx, err := s.Begin(context.Background())
	require.NoError(t, err)
	return tx
}

func balanceOf(t *testing.T, s *Store, id uuid.UUID) int64 {
	t.Helper()
	a, err := s.Accounts().GetByID(context.Background(), id)
	require.NoError(t, err)
	if a == nil {
		return 0
	}
	return a.Balance
}

func TestStore_Repositories(t *testing.T) {
	s := NewStore()
	var _ ports.AccountRepository = s.Accounts()
	var _ ports.TransactionRepository = s.Transactions()
	var _ ports.MerchantRateRepository = s.MerchantRates()
	var _ ports.SettlementRepository = s.Settlements()
	var _ ports.IdempotencyRepository = s.Idempotency()
	var _ ports.AuditRepository = s.Audit()
	var _ ports.LedgerRepository = s.Ledger()
	var _ ports.DBTransactor = s
	var _ ports.HealthChecker = HealthCheck{}
}

func TestCredit_CreatesAccountLazily(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	id := uuid.New()

	tx := begin(t, s)
	bal, err := s.Accounts().Credit(ctx, tx, id, 40)
	require.NoError(t, err)
	assert.Equal(t, int64(40), bal)
	require.NoError(t, tx.Commit(ctx))

	a, err := s.Accounts().GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.AccountKindCustomer, a.Kind)
	assert.Equal(t, int64(40), a.Balance)
}

func TestDebitIfSufficient(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	id := uuid.New()

	tx := begin(t, s)
	_, err := s.Accounts().Credit(ctx, tx, id, 100)
	require.NoError(t, err)

	_, applied, err := s.Accounts().DebitIfSufficient(ctx, tx, id, 101)
	require.NoError(t, err)
	assert.False(t, applied)

	bal, applied, err := s.Accounts().DebitIfSufficient(ctx, tx, id, 100)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, int64(0), bal)

	_, applied, err = s.Accounts().DebitIfSufficient(ctx, tx, uuid.New(), 1)
	require.NoError(t, err)
	assert.False(t, applied, "missing account cannot be debited")
	require.NoError(t, tx.Commit(ctx))
}

func TestRollback_UndoesEveryWrite(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	sender, receiver, merchant := uuid.New(), uuid.New(), uuid.New()

	seed := begin(t, s)
	_, err := s.Accounts().Credit(ctx, seed, sender, 100)
	require.NoError(t, err)
	require.NoError(t, seed.Commit(ctx))

	tx := begin(t, s)
	_, applied, err := s.Accounts().DebitIfSufficient(ctx, tx, sender, 60)
	require.NoError(t, err)
	require.True(t, applied)
	_, err = s.Accounts().Credit(ctx, tx, receiver, 60)
	require.NoError(t, err)
	require.NoError(t, s.Transactions().Create(ctx, tx, &domain.Transaction{
		ID: uuid.New(), ReferenceID: "ORD-1", TransactionType: domain.TransactionTypeMint,
		ReceiverAccountID: merchant, AmountGross: 10, Status: domain.TransactionStatusCreated, CreatedAt: time.Now(),
	}))
	require.NoError(t, s.Settlements().Create(ctx, tx, &domain.Settlement{ID: uuid.New(), MerchantID: merchant, Amount: 1, Reference: "P-1"}))
	require.NoError(t, s.Idempotency().Create(ctx, tx, &domain.IdempotencyLog{Key: "k"}))

	require.NoError(t, tx.Rollback(ctx))

	assert.Equal(t, int64(100), balanceOf(t, s, sender))
	r, err := s.Accounts().GetByID(ctx, receiver)
	require.NoError(t, err)
	assert.Nil(t, r, "account created inside a rolled back tx disappears")

	got, err := s.Transactions().GetByReference(ctx, merchant, "ORD-1")
	require.NoError(t, err)
	assert.Nil(t, got)
	st, err := s.Settlements().GetByReference(ctx, merchant, "P-1")
	require.NoError(t, err)
	assert.Nil(t, st)
	l, err := s.Idempotency().Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, l)

	assert.ErrorIs(t, tx.Commit(ctx), pgx.ErrTxClosed)
}

func TestRowLock_SerializesWriters(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	id := uuid.New()

	holder := begin(t, s)
	_, err := s.Accounts().GetByIDForUpdate(ctx, holder, id)
	require.NoError(t, err)

	var acquired atomic.Bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		waiter, _ := s.Begin(ctx)
		_, _ = s.Accounts().Credit(ctx, waiter, id, 5)
		acquired.Store(true)
		_ = waiter.Commit(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	assert.False(t, acquired.Load(), "second writer must wait for the row lock")

	require.NoError(t, holder.Commit(ctx))
	<-done
	assert.True(t, acquired.Load())
	assert.Equal(t, int64(5), balanceOf(t, s, id))
}

func TestRowLock_ReentrantWithinTx(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	id := uuid.New()

	tx := begin(t, s)
	_, err := s.Accounts().GetByIDForUpdate(ctx, tx, id)
	require.NoError(t, err)
	_, err = s.Accounts().Credit(ctx, tx, id, 1)
	require.NoError(t, err)
	_, err = s.Accounts().GetByIDForUpdate(ctx, tx, id)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))
}

func TestConcurrentDebits_NeverNegative(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	id := uuid.New()

	seed := begin(t, s)
	_, err := s.Accounts().Credit(ctx, seed, id, 100)
	require.NoError(t, err)
	require.NoError(t, seed.Commit(ctx))

	var wg sync.WaitGroup
	var applied atomic.Int64
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx, _ := s.Begin(ctx)
			_, ok, _ := s.Accounts().DebitIfSufficient(ctx, tx, id, 7)
			if ok {
				applied.Add(1)
			}
			_ = tx.Commit(ctx)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(14), applied.Load())
	assert.Equal(t, int64(2), balanceOf(t, s, id))
}

func TestTransactions_MintReferenceUnique(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	merchant := uuid.New()
	mint := func() *domain.Transaction {
		return &domain.Transaction{
			ID: uuid.New(), ReferenceID: "ORD-9", TransactionType: domain.TransactionTypeMint,
			ReceiverAccountID: merchant, AmountGross: 10, Status: domain.TransactionStatusCreated, CreatedAt: time.Now(),
		}
	}

	tx := begin(t, s)
	require.NoError(t, s.Transactions().Create(ctx, tx, mint()))
	assert.ErrorIs(t, s.Transactions().Create(ctx, tx, mint()), ports.ErrDuplicateKey)
	require.NoError(t, tx.Commit(ctx))
}

func TestTransactions_UpdateStatusOnlyFromCreated(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	txn := &domain.Transaction{
		ID: uuid.New(), ReferenceID: "ORD-2", TransactionType: domain.TransactionTypeMint,
		ReceiverAccountID: uuid.New(), AmountGross: 10, Status: domain.TransactionStatusCreated, CreatedAt: time.Now(),
	}

	tx := begin(t, s)
	require.NoError(t, s.Transactions().Create(ctx, tx, txn))
	require.NoError(t, s.Transactions().UpdateStatus(ctx, tx, txn.ID, domain.TransactionStatusSuccess))
	assert.Error(t, s.Transactions().UpdateStatus(ctx, tx, txn.ID, domain.TransactionStatusFailed))
	require.NoError(t, tx.Commit(ctx))

	got, err := s.Transactions().GetByID(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusSuccess, got.Status)
	assert.NotNil(t, got.ProcessedAt)
}

func TestTransactions_ListByAccountPaginates(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	acct, other := uuid.New(), uuid.New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tx := begin(t, s)
	for i := 0; i < 5; i++ {
		sender := acct
		require.NoError(t, s.Transactions().Create(ctx, tx, &domain.Transaction{
			ID: uuid.New(), ReferenceID: uuid.NewString(), TransactionType: domain.TransactionTypeTransfer,
			SenderAccountID: &sender, ReceiverAccountID: other, AmountGross: int64(i + 1),
			Status: domain.TransactionStatusSuccess, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, tx.Commit(ctx))

	page, total, err := s.Transactions().ListByAccount(ctx, ports.TransactionListParams{AccountID: acct, Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, page, 2)
	assert.Equal(t, int64(5), page[0].AmountGross, "newest first")

	page, _, err = s.Transactions().ListByAccount(ctx, ports.TransactionListParams{AccountID: acct, Page: 3, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, int64(1), page[0].AmountGross)

	page, _, err = s.Transactions().ListByAccount(ctx, ports.TransactionListParams{AccountID: acct, Page: 9, PageSize: 2})
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestLedger_ExpectedBalances(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	payer, merchant := uuid.New(), uuid.New()

	tx := begin(t, s)
	require.NoError(t, s.Transactions().Create(ctx, tx, &domain.Transaction{
		ID: uuid.New(), ReferenceID: "ORD-1", TransactionType: domain.TransactionTypeMint,
		SenderAccountID: &payer, ReceiverAccountID: merchant, AmountGross: 200, AmountNet: 170,
		CoinsEarned: 20, Status: domain.TransactionStatusSuccess, CreatedAt: time.Now(),
	}))
	require.NoError(t, s.Settlements().Create(ctx, tx, &domain.Settlement{ID: uuid.New(), MerchantID: merchant, Amount: 70, Reference: "P-1"}))
	require.NoError(t, tx.Commit(ctx))

	got, err := s.Ledger().ExpectedBalances(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(20), got[payer])
	assert.Equal(t, int64(100), got[merchant])
}

func TestLock_HonorsContextDeadline(t *testing.T) {
	s := NewStore()
	id := uuid.New()

	holder := begin(t, s)
	_, err := s.Accounts().GetByIDForUpdate(context.Background(), holder, id)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	waiter, err := s.Begin(ctx)
	require.NoError(t, err)

	start := time.Now()
	_, _, err = s.Accounts().DebitIfSufficient(ctx, waiter, id, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second, "waiter must give up at its deadline")

	require.NoError(t, waiter.Rollback(context.Background()))
	require.NoError(t, holder.Rollback(context.Background()))

	// The row is free again once the holder is gone.
	tx := begin(t, s)
	_, err = s.Accounts().GetByIDForUpdate(context.Background(), tx, id)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(context.Background()))
}

func TestLedger_SnapshotSeesOnlyCommittedState(t *testing.T) {
	s := NewStore()
	bg := context.Background()
	id := uuid.New()

	tx := begin(t, s)
	_, err := s.Accounts().Credit(bg, tx, id, 50)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(bg, 50*time.Millisecond)
	defer cancel()
	_, err = s.Ledger().Snapshot(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "snapshot must not read an open transaction's writes")

	done := make(chan *domain.LedgerSnapshot)
	go func() {
		snap, err := s.Ledger().Snapshot(bg)
		assert.NoError(t, err)
		done <- snap
	}()
	require.NoError(t, tx.Rollback(bg))

	select {
	case snap := <-done:
		assert.Empty(t, snap.Accounts, "rolled back credit must not appear")
		assert.Empty(t, snap.Expected)
	case <-time.After(2 * time.Second):
		t.Fatal("snapshot still waiting after the transaction finished")
	}
}

func TestLedger_SnapshotHoldsBackNewTransactions(t *testing.T) {
	s := NewStore()
	bg := context.Background()

	open := begin(t, s)
	snapDone := make(chan struct{})
	go func() {
		_, err := s.Ledger().Snapshot(bg)
		assert.NoError(t, err)
		close(snapDone)
	}()

	// Wait until the snapshot is queued behind the open transaction.
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.snapshots == 1
	}, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(bg, 50*time.Millisecond)
	defer cancel()
	_, err := s.Begin(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "new transactions wait for a queued snapshot")

	require.NoError(t, open.Commit(bg))
	<-snapDone

	tx := begin(t, s)
	require.NoError(t, tx.Commit(bg))
}

func TestSettlements_ListNewestFirst(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	merchant := uuid.New()

	tx := begin(t, s)
	require.NoError(t, s.Settlements().Create(ctx, tx, &domain.Settlement{ID: uuid.New(), MerchantID: merchant, Amount: 1, Reference: "P-1"}))
	require.NoError(t, s.Settlements().Create(ctx, tx, &domain.Settlement{ID: uuid.New(), MerchantID: merchant, Amount: 2, Reference: "P-2"}))
	assert.ErrorIs(t, s.Settlements().Create(ctx, tx, &domain.Settlement{ID: uuid.New(), MerchantID: merchant, Amount: 3, Reference: "P-1"}), ports.ErrDuplicateKey)
	require.NoError(t, tx.Commit(ctx))

	list, err := s.Settlements().ListByMerchant(ctx, merchant)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "P-2", list[0].Reference)
}

func TestMerchantRates_UpsertKeepsCreatedAt(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	merchant := uuid.New()
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.MerchantRates().Upsert(ctx, &domain.MerchantRate{MerchantID: merchant, CreatedAt: first, UpdatedAt: first}))
	require.NoError(t, s.MerchantRates().Upsert(ctx, &domain.MerchantRate{MerchantID: merchant, MaxRewardCap: 9, CreatedAt: first.Add(time.Hour), UpdatedAt: first.Add(time.Hour)}))

	got, err := s.MerchantRates().Get(ctx, merchant)
	require.NoError(t, err)
	assert.Equal(t, first, got.CreatedAt)
	assert.Equal(t, int64(9), got.MaxRewardCap)
}

func TestForeignTransactionRejected(t *testing.T) {
	s := NewStore()
	_, err := s.Accounts().Credit(context.Background(), nil, uuid.New(), 1)
	assert.Error(t, err)
}
