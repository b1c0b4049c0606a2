package domain

import (
	"time"

	"github.com/google/uuid"
)

// BalanceMismatch is an account whose stored balance disagrees with the
// balance implied by its ledger history.
type BalanceMismatch struct {
	AccountID uuid.UUID `json:"account_id"`
	Stored    int64     `json:"stored"`
	Expected  int64     `json:"expected"`
}

// Drift returns stored minus expected.
func (m BalanceMismatch) Drift() int64 {
	return m.Stored - m.Expected
}

// ReconciliationReport is the result of one reconciliation pass.
type ReconciliationReport struct {
	CheckedAt       time.Time         `json:"checked_at"`
	AccountsChecked int               `json:"accounts_checked"`
	Mismatches      []BalanceMismatch `json:"mismatches"`
}

// Clean returns true if no account drifted.
func (r *ReconciliationReport) Clean() bool {
	return len(r.Mismatches) == 0
}

// LedgerSnapshot is a consistent read of stored balances and the balances
// implied by ledger history, taken at one point in time.
type LedgerSnapshot struct {
	Accounts []Account
	Expected map[uuid.UUID]int64
}
