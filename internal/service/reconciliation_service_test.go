package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
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

func TestReconcile_CleanAfterMixedActivity(t *testing.T) {
	h := newLedgerHarness(t, domain.DefaultRewardPolicy())
	ctx := context.Background()
	merchant := h.openMerchant(t, "12", "8", 0)
	alice, bob := uuid.New(), uuid.New()
	h.fund(t, alice, 1000)
	h.fund(t, bob, 10)

	_, err := h.transfer.Transfer(ctx, ports.TransferRequest{SenderID: alice, ReceiverID: bob, Amount: 300})
	require.NoError(t, err)
	_, err = h.payment.MintReward(ctx, ports.PaymentRequest{
		PayerID: bob, MerchantID: merchant, GrossAmount: 400, RequestedRedemption: 150, ReferenceID: "R-1",
	})
	require.NoError(t, err)
	_, err = h.settlement.Settle(ctx, merchant, 100, "P-1")
	require.NoError(t, err)

	report, err := h.recon.Reconcile(ctx)
	require.NoError(t, err)
	assert.True(t, report.Clean())
	assert.Equal(t, 3, report.AccountsChecked)
}

func TestReconcile_NoFalseDriftUnderLoad(t *testing.T) {
	h := newLedgerHarness(t, domain.DefaultRewardPolicy())
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	h.fund(t, a, 10_000)
	h.fund(t, b, 10_000)

	var stop atomic.Bool
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			from, to := a, b
			if w%2 == 1 {
				from, to = b, a
			}
			for !stop.Load() {
				_, err := h.transfer.Transfer(ctx, ports.TransferRequest{SenderID: from, ReceiverID: to, Amount: 10})
				if err != nil {
					assert.Contains(t, []string{"LED_001", "LED_003"}, apperror.CodeOf(err))
				}
			}
		}(w)
	}

	for i := 0; i < 200; i++ {
		report, err := h.recon.Reconcile(ctx)
		require.NoError(t, err)
		assert.Empty(t, report.Mismatches, "run %d reported drift while transfers were committing", i)
	}
	stop.Store(true)
	wg.Wait()

	assert.Equal(t, int64(20_000), h.balance(t, a)+h.balance(t, b))
	h.assertReconciled(t)
}

func TestReconcile_SnapshotHonorsDeadline(t *testing.T) {
	h := newLedgerHarness(t, domain.DefaultRewardPolicy())
	tx, err := h.store.Begin(context.Background())
	require.NoError(t, err)
	defer tx.Rollback(context.Background()) //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = h.recon.Reconcile(ctx)
	assertAppError(t, err, "SYS_002")
}

func TestReconcile_DetectsDrift(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ledger := mocks.NewMockLedgerRepository(ctrl)
	svc := NewReconciliationService(ledger, newTestLogger())
	ctx := context.Background()

	ok, drifted, orphan := uuid.New(), uuid.New(), uuid.New()
	ledger.EXPECT().Snapshot(ctx).Return(&domain.LedgerSnapshot{
		Accounts: []domain.Account{
			{ID: ok, Balance: 100},
			{ID: drifted, Balance: 250},
		},
		Expected: map[uuid.UUID]int64{
			ok:      100,
			drifted: 200,
			orphan:  40,
		},
	}, nil)

	report, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.False(t, report.Clean())
	assert.Equal(t, 2, report.AccountsChecked)
	require.Len(t, report.Mismatches, 2)

	byID := map[uuid.UUID]domain.BalanceMismatch{}
	for _, m := range report.Mismatches {
		byID[m.AccountID] = m
	}
	assert.Equal(t, int64(50), byID[drifted].Drift())
	assert.Equal(t, int64(-40), byID[orphan].Drift())
}

func TestReconcile_StorageError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ledger := mocks.NewMockLedgerRepository(ctrl)
	svc := NewReconciliationService(ledger, newTestLogger())
	ctx := context.Background()

	ledger.EXPECT().Snapshot(ctx).Return(nil, errors.New("query canceled"))

	_, err := svc.Reconcile(ctx)
	assertAppError(t, err, "SYS_002")
}
