package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"coin-ledger/internal/core/domain"
	"coin-ledger/internal/core/ports"
	"coin-ledger/internal/core/ports/mocks"
	"coin-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestTransfer_RetentionLimit(t *testing.T) {
	h := newLedgerHarness(t, domain.DefaultRewardPolicy())
	sender, receiver := uuid.New(), uuid.New()
	h.fund(t, sender, 1000)
	h.fund(t, receiver, 1)

	_, err := h.transfer.Transfer(context.Background(), ports.TransferRequest{
		SenderID: sender, ReceiverID: receiver, Amount: 900,
	})
	assertAppError(t, err, "LED_003")
	assert.Equal(t, apperror.OutcomeNone, apperror.OutcomeOf(err))
	assert.Contains(t, err.Error(), "800")

	assert.Equal(t, int64(1000), h.balance(t, sender))
	assert.Equal(t, int64(1), h.balance(t, receiver))
}

func TestTransfer_Success(t *testing.T) {
	h := newLedgerHarness(t, domain.DefaultRewardPolicy())
	ctx := context.Background()
	sender, receiver := uuid.New(), uuid.New()
	h.fund(t, sender, 1000)
	h.fund(t, receiver, 50)

	txn, err := h.transfer.Transfer(ctx, ports.TransferRequest{
		SenderID: sender, ReceiverID: receiver, Amount: 800,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionTypeTransfer, txn.TransactionType)
	assert.Equal(t, domain.TransactionStatusSuccess, txn.Status)
	require.NotNil(t, txn.SenderAccountID)
	assert.Equal(t, sender, *txn.SenderAccountID)
	assert.Equal(t, int64(800), txn.AmountGross)

	assert.Equal(t, int64(200), h.balance(t, sender))
	assert.Equal(t, int64(850), h.balance(t, receiver))

	stored, err := h.store.Transactions().GetByID(ctx, txn.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	h.assertReconciled(t)
}

func TestTransfer_InvalidRequests(t *testing.T) {
	h := newLedgerHarness(t, domain.DefaultRewardPolicy())
	a, b := uuid.New(), uuid.New()
	h.fund(t, a, 100)

	tests := []struct {
		name string
		req  ports.TransferRequest
	}{
		{"zero amount", ports.TransferRequest{SenderID: a, ReceiverID: b, Amount: 0}},
		{"negative amount", ports.TransferRequest{SenderID: a, ReceiverID: b, Amount: -5}},
		{"self transfer", ports.TransferRequest{SenderID: a, ReceiverID: a, Amount: 10}},
		{"missing receiver id", ports.TransferRequest{SenderID: a, Amount: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.transfer.Transfer(context.Background(), tt.req)
			assertAppError(t, err, "LED_002")
			assert.Equal(t, int64(100), h.balance(t, a))
		})
	}
}

func TestTransfer_UnknownSenderHitsRetentionLimit(t *testing.T) {
	h := newLedgerHarness(t, domain.DefaultRewardPolicy())
	receiver := uuid.New()
	h.fund(t, receiver, 10)

	_, err := h.transfer.Transfer(context.Background(), ports.TransferRequest{
		SenderID: uuid.New(), ReceiverID: receiver, Amount: 1,
	})
	assertAppError(t, err, "LED_003")
}

func TestTransfer_ReceiverNotFound_Compensated(t *testing.T) {
	h := newLedgerHarness(t, domain.DefaultRewardPolicy())
	sender := uuid.New()
	h.fund(t, sender, 1000)

	_, err := h.transfer.Transfer(context.Background(), ports.TransferRequest{
		SenderID: sender, ReceiverID: uuid.New(), Amount: 100,
	})
	assertAppError(t, err, "LED_004")
	assert.Equal(t, apperror.OutcomeCompensated, apperror.OutcomeOf(err))

	assert.Equal(t, int64(1000), h.balance(t, sender), "debit must be rolled back")
	h.assertReconciled(t)
}

func TestTransfer_IdempotentReplay(t *testing.T) {
	h := newLedgerHarness(t, domain.DefaultRewardPolicy())
	ctx := context.Background()
	sender, receiver := uuid.New(), uuid.New()
	h.fund(t, sender, 1000)
	h.fund(t, receiver, 1)

	req := ports.TransferRequest{SenderID: sender, ReceiverID: receiver, Amount: 100, IdempotencyKey: "k-1"}
	first, err := h.transfer.Transfer(ctx, req)
	require.NoError(t, err)

	second, err := h.transfer.Transfer(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(900), h.balance(t, sender), "replay must not debit again")

	// Redis lost the key: the DB log still answers.
	h.mr.FlushAll()
	third, err := h.transfer.Transfer(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, third.ID)
	assert.Equal(t, int64(900), h.balance(t, sender))
	assert.Equal(t, int64(101), h.balance(t, receiver))
}

func TestTransfer_ConcurrentNeverNegativeAndConserved(t *testing.T) {
	h := newLedgerHarness(t, domain.DefaultRewardPolicy())
	ctx := context.Background()

	ids := make([]uuid.UUID, 5)
	for i := range ids {
		ids[i] = uuid.New()
		h.fund(t, ids[i], 1000)
	}
	total := int64(len(ids) * 1000)

	var wg sync.WaitGroup
	for w := 0; w < 20; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				from := ids[(w+i)%len(ids)]
				to := ids[(w+2*i+1)%len(ids)]
				if from == to {
					continue
				}
				_, err := h.transfer.Transfer(ctx, ports.TransferRequest{
					SenderID: from, ReceiverID: to, Amount: int64(50 + (w*7+i)%300),
				})
				if err != nil {
					code := apperror.CodeOf(err)
					assert.Contains(t, []string{"LED_001", "LED_003"}, code)
				}
			}
		}(w)
	}
	wg.Wait()

	var sum int64
	for _, id := range ids {
		b := h.balance(t, id)
		assert.GreaterOrEqual(t, b, int64(0))
		sum += b
	}
	assert.Equal(t, total, sum, "transfers conserve total balance")
	h.assertReconciled(t)
}

func TestTransfer_IdempotencyKeyLength(t *testing.T) {
	h := newLedgerHarness(t, domain.DefaultRewardPolicy())
	ctx := context.Background()
	sender, receiver := uuid.New(), uuid.New()
	h.fund(t, sender, 1000)

	_, err := h.transfer.Transfer(ctx, ports.TransferRequest{SenderID: sender, ReceiverID: receiver, Amount: 10,
		IdempotencyKey: strings.Repeat("k", domain.MaxReferenceLength+1)})
	assertAppError(t, err, "LED_002")
	assert.Equal(t, apperror.OutcomeNone, apperror.OutcomeOf(err))
	assert.False(t, apperror.IsRetryable(err))
	assert.Equal(t, int64(1000), h.balance(t, sender))

	txn, err := h.transfer.Transfer(ctx, ports.TransferRequest{SenderID: sender, ReceiverID: receiver, Amount: 10,
		IdempotencyKey: strings.Repeat("k", domain.MaxReferenceLength)})
	require.NoError(t, err)
	assert.Len(t, txn.ReferenceID, domain.MaxReferenceLength)
}

func TestTransfer_LockWaitHonorsDeadline(t *testing.T) {
	h := newLedgerHarness(t, domain.DefaultRewardPolicy())
	sender, receiver := uuid.New(), uuid.New()
	h.fund(t, sender, 1000)

	holder, err := h.store.Begin(context.Background())
	require.NoError(t, err)
	_, err = h.store.Accounts().GetByIDForUpdate(context.Background(), holder, sender)
	require.NoError(t, err)
	defer holder.Rollback(context.Background()) //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = h.transfer.Transfer(ctx, ports.TransferRequest{SenderID: sender, ReceiverID: receiver, Amount: 10})
	assertAppError(t, err, "SYS_002")
	assert.Equal(t, apperror.OutcomeNone, apperror.OutcomeOf(err))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int64(1000), h.balance(t, sender))
}

func TestLedger_MixedConcurrentOperations(t *testing.T) {
	h := newLedgerHarness(t, domain.DefaultRewardPolicy())
	ctx := context.Background()
	merchant := h.openMerchant(t, "10", "5", 0)
	customers := make([]uuid.UUID, 3)
	for i := range customers {
		customers[i] = uuid.New()
		h.fund(t, customers[i], 1000)
	}
	h.fund(t, merchant, 500)

	typed := []string{"LED_001", "LED_003"}
	var wg sync.WaitGroup
	for w := 0; w < 12; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				payer := customers[(w+i)%len(customers)]
				var err error
				switch (w + i) % 3 {
				case 0:
					_, err = h.transfer.Transfer(ctx, ports.TransferRequest{
						SenderID: payer, ReceiverID: customers[(w+i+1)%len(customers)], Amount: int64(40 + (w*11+i)%200),
					})
				case 1:
					_, err = h.payment.MintReward(ctx, ports.PaymentRequest{
						PayerID:             payer,
						MerchantID:          merchant,
						GrossAmount:         int64(100 + (w*13+i)%300),
						RequestedRedemption: int64(30 + (w*5+i)%150),
						ReferenceID:         fmt.Sprintf("ORD-%d-%d", w, i),
					})
				default:
					_, err = h.settlement.Settle(ctx, merchant, int64(25+(w*3+i)%120), fmt.Sprintf("PAYOUT-%d-%d", w, i))
				}
				if err != nil {
					assert.Contains(t, typed, apperror.CodeOf(err), "unexpected error: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()

	for _, id := range append(customers, merchant) {
		assert.GreaterOrEqual(t, h.balance(t, id), int64(0))
	}
	h.assertReconciled(t)
}

// ==================== Failure paths (gomock) ====================

type transferMocks struct {
	svc        *TransferServiceImpl
	accounts   *mocks.MockAccountRepository
	txRepo     *mocks.MockTransactionRepository
	idempRepo  *mocks.MockIdempotencyRepository
	idempCache *mocks.MockIdempotencyCache
	transactor *mocks.MockDBTransactor
}

func setupTransferMocks(t *testing.T) *transferMocks {
	ctrl := gomock.NewController(t)
	m := &transferMocks{
		accounts:   mocks.NewMockAccountRepository(ctrl),
		txRepo:     mocks.NewMockTransactionRepository(ctrl),
		idempRepo:  mocks.NewMockIdempotencyRepository(ctrl),
		idempCache: mocks.NewMockIdempotencyCache(ctrl),
		transactor: mocks.NewMockDBTransactor(ctrl),
	}
	log := newTestLogger()
	m.svc = NewTransferService(
		NewBalanceEngine(m.accounts, log), domain.DefaultRewardPolicy(),
		m.txRepo, m.idempRepo, m.idempCache, m.transactor, log,
	)
	return m
}

// expectDebit sets up the lock and debit of a 1000-coin sender.
func (m *transferMocks) expectDebit(ctx context.Context, tx *mockTx, sender, receiver uuid.UUID, amount int64) {
	m.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	m.accounts.EXPECT().GetByIDForUpdate(ctx, tx, sender).
		Return(&domain.Account{ID: sender, Balance: 1000}, nil).Times(2)
	m.accounts.EXPECT().GetByIDForUpdate(ctx, tx, receiver).
		Return(&domain.Account{ID: receiver}, nil)
	m.accounts.EXPECT().DebitIfSufficient(ctx, tx, sender, amount).Return(1000-amount, true, nil)
}

func TestTransfer_CreditFails_Compensated(t *testing.T) {
	m := setupTransferMocks(t)
	ctx := context.Background()
	tx := &mockTx{}
	sender, receiver := uuid.New(), uuid.New()

	m.expectDebit(ctx, tx, sender, receiver, 100)
	m.accounts.EXPECT().Credit(ctx, tx, receiver, int64(100)).Return(int64(0), errors.New("write timeout"))

	_, err := m.svc.Transfer(ctx, ports.TransferRequest{SenderID: sender, ReceiverID: receiver, Amount: 100})
	assertAppError(t, err, "LED_005")
	assert.Equal(t, apperror.OutcomeCompensated, apperror.OutcomeOf(err))
	assert.True(t, apperror.IsRetryable(err))
	assert.True(t, tx.rolledBack)
}

func TestTransfer_CompensationFails_Unresolved(t *testing.T) {
	m := setupTransferMocks(t)
	ctx := context.Background()
	tx := &mockTx{rollbackErr: errors.New("connection reset")}
	sender, receiver := uuid.New(), uuid.New()

	m.expectDebit(ctx, tx, sender, receiver, 100)
	m.accounts.EXPECT().Credit(ctx, tx, receiver, int64(100)).Return(int64(0), errors.New("write timeout"))

	_, err := m.svc.Transfer(ctx, ports.TransferRequest{SenderID: sender, ReceiverID: receiver, Amount: 100})
	assertAppError(t, err, "LED_005")
	assert.Equal(t, apperror.OutcomeUnresolved, apperror.OutcomeOf(err))
}

func TestTransfer_ReceiverMissing_RollbackFails_Unresolved(t *testing.T) {
	m := setupTransferMocks(t)
	ctx := context.Background()
	tx := &mockTx{rollbackErr: errors.New("connection reset")}
	sender, receiver := uuid.New(), uuid.New()

	m.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	m.accounts.EXPECT().GetByIDForUpdate(ctx, tx, sender).
		Return(&domain.Account{ID: sender, Balance: 1000}, nil).Times(2)
	m.accounts.EXPECT().GetByIDForUpdate(ctx, tx, receiver).Return(nil, nil)
	m.accounts.EXPECT().DebitIfSufficient(ctx, tx, sender, int64(100)).Return(int64(900), true, nil)

	_, err := m.svc.Transfer(ctx, ports.TransferRequest{SenderID: sender, ReceiverID: receiver, Amount: 100})
	assertAppError(t, err, "LED_005")
	assert.Equal(t, apperror.OutcomeUnresolved, apperror.OutcomeOf(err))
}

func TestTransfer_CommitFails_Unresolved(t *testing.T) {
	m := setupTransferMocks(t)
	ctx := context.Background()
	tx := &mockTx{commitErr: errors.New("commit lost")}
	sender, receiver := uuid.New(), uuid.New()

	m.expectDebit(ctx, tx, sender, receiver, 100)
	m.accounts.EXPECT().Credit(ctx, tx, receiver, int64(100)).Return(int64(100), nil)
	m.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)

	_, err := m.svc.Transfer(ctx, ports.TransferRequest{SenderID: sender, ReceiverID: receiver, Amount: 100})
	assertAppError(t, err, "LED_005")
	assert.Equal(t, apperror.OutcomeUnresolved, apperror.OutcomeOf(err))
}

func TestTransfer_BeginFails_StorageUnavailable(t *testing.T) {
	m := setupTransferMocks(t)
	ctx := context.Background()

	m.transactor.EXPECT().Begin(ctx).Return(nil, errors.New("pool exhausted"))

	_, err := m.svc.Transfer(ctx, ports.TransferRequest{SenderID: uuid.New(), ReceiverID: uuid.New(), Amount: 1})
	assertAppError(t, err, "SYS_002")
	assert.Equal(t, apperror.OutcomeNone, apperror.OutcomeOf(err))
	assert.True(t, apperror.IsRetryable(err))
}

func TestTransfer_CachedReplaySkipsStorage(t *testing.T) {
	m := setupTransferMocks(t)
	ctx := context.Background()
	sender := uuid.New()
	cached := []byte(`{"id":"7f0c5b1e-8a43-4a55-9a61-2c8a4f3c9e10","transaction_type":"TRANSFER","status":"SUCCESS","amount_gross":5}`)

	key := domain.BuildTransferIdempotencyKey(sender, "abc")
	m.idempCache.EXPECT().Get(ctx, key).Return(cached, nil)

	txn, err := m.svc.Transfer(ctx, ports.TransferRequest{
		SenderID: sender, ReceiverID: uuid.New(), Amount: 5, IdempotencyKey: "abc",
	})
	require.NoError(t, err)
	assert.Equal(t, "7f0c5b1e-8a43-4a55-9a61-2c8a4f3c9e10", txn.ID.String())
}

func TestTransfer_ConcurrentSameKey_Duplicate(t *testing.T) {
	m := setupTransferMocks(t)
	ctx := context.Background()
	tx := &mockTx{}
	sender, receiver := uuid.New(), uuid.New()
	key := domain.BuildTransferIdempotencyKey(sender, "dup")

	m.idempCache.EXPECT().Get(ctx, key).Return(nil, nil)
	m.idempRepo.EXPECT().Get(ctx, key).Return(nil, nil)
	m.expectDebit(ctx, tx, sender, receiver, 10)
	m.accounts.EXPECT().Credit(ctx, tx, receiver, int64(10)).Return(int64(10), nil)
	m.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	m.idempRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(ports.ErrDuplicateKey)

	_, err := m.svc.Transfer(ctx, ports.TransferRequest{
		SenderID: sender, ReceiverID: receiver, Amount: 10, IdempotencyKey: "dup",
	})
	assertAppError(t, err, "PAY_003")
	assert.True(t, tx.rolledBack)
}
