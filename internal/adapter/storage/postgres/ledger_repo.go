package postgres

import (
	"context"
	"fmt"

	"coin-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// LedgerRepo implements ports.LedgerRepository by folding the ledger in SQL.
type LedgerRepo struct {
	pool Pool
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(pool Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

// expectedBalancesQuery mirrors domain.Transaction.BalanceDeltas: transfers
// move gross, mints net the payer's earned and redeemed coins and credit the
// merchant net, and settlements debit the merchant.
const expectedBalancesQuery = `
SELECT account_id, SUM(delta)::BIGINT FROM (
	SELECT sender_account_id AS account_id, -amount_gross AS delta
	  FROM transactions WHERE status = 'SUCCESS' AND transaction_type = 'TRANSFER'
	UNION ALL
	SELECT receiver_account_id, amount_gross
	  FROM transactions WHERE status = 'SUCCESS' AND transaction_type = 'TRANSFER'
	UNION ALL
	SELECT sender_account_id, coins_earned - coins_redeemed
	  FROM transactions WHERE status = 'SUCCESS' AND transaction_type = 'MINT' AND sender_account_id IS NOT NULL
	UNION ALL
	SELECT receiver_account_id, amount_net
	  FROM transactions WHERE status = 'SUCCESS' AND transaction_type = 'MINT'
	UNION ALL
	SELECT merchant_id, -amount FROM settlements
) ledger
GROUP BY account_id`

// ExpectedBalances returns the balance every account should hold according
// to its history.
func (r *LedgerRepo) ExpectedBalances(ctx context.Context) (map[uuid.UUID]int64, error) {
	return foldLedger(ctx, r.pool)
}

// Snapshot reads accounts and folds the ledger inside one REPEATABLE READ
// transaction, so a commit landing between the two queries is invisible to
// both.
func (r *LedgerRepo) Snapshot(ctx context.Context) (snap *domain.LedgerSnapshot, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin snapshot: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	accounts, err := listAccounts(ctx, tx)
	if err != nil {
		return nil, err
	}
	expected, err := foldLedger(ctx, tx)
	if err != nil {
		return nil, err
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("end snapshot: %w", err)
	}
	return &domain.LedgerSnapshot{Accounts: accounts, Expected: expected}, nil
}

func foldLedger(ctx context.Context, q querier) (map[uuid.UUID]int64, error) {
	rows, err := q.Query(ctx, expectedBalancesQuery)
	if err != nil {
		return nil, fmt.Errorf("fold ledger: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]int64)
	for rows.Next() {
		var id uuid.UUID
		var balance int64
		if err := rows.Scan(&id, &balance); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		out[id] = balance
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger rows: %w", err)
	}
	return out, nil
}
