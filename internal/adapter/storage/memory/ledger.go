package memory

import (
	"context"
	"sort"

	"coin-ledger/internal/core/domain"
	"coin-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// MerchantRateRepo implements ports.MerchantRateRepository.
type MerchantRateRepo struct{ s *Store }

// MerchantRates returns the rate profile view of the store.
func (s *Store) MerchantRates() *MerchantRateRepo { return &MerchantRateRepo{s: s} }

func (r *MerchantRateRepo) Get(ctx context.Context, merchantID uuid.UUID) (*domain.MerchantRate, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if m, ok := r.s.rates[merchantID]; ok {
		c := *m
		return &c, nil
	}
	return nil, nil
}

func (r *MerchantRateRepo) Upsert(ctx context.Context, m *domain.MerchantRate) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *m
	if prev, ok := r.s.rates[m.MerchantID]; ok {
		c.CreatedAt = prev.CreatedAt
	}
	r.s.rates[m.MerchantID] = &c
	return nil
}

// SettlementRepo implements ports.SettlementRepository.
type SettlementRepo struct{ s *Store }

// Settlements returns the payout view of the store.
func (s *Store) Settlements() *SettlementRepo { return &SettlementRepo{s: s} }

func settlementKey(merchantID uuid.UUID, ref string) string {
	return "settlement:" + merchantID.String() + ":" + ref
}

func (r *SettlementRepo) Create(ctx context.Context, tx pgx.Tx, st *domain.Settlement) error {
	mt, err := asTx(tx)
	if err != nil {
		return err
	}
	key := settlementKey(st.MerchantID, st.Reference)
	if err := mt.lock(ctx, key); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, dup := r.s.settlementRefs[key]; dup {
		return ports.ErrDuplicateKey
	}
	c := *st
	r.s.settlements = append(r.s.settlements, &c)
	r.s.settlementRefs[key] = len(r.s.settlements) - 1
	mt.journal(func() {
		delete(r.s.settlementRefs, key)
		for i := len(r.s.settlements) - 1; i >= 0; i-- {
			if r.s.settlements[i].ID == st.ID {
				r.s.settlements = append(r.s.settlements[:i], r.s.settlements[i+1:]...)
				break
			}
		}
		r.reindex()
	})
	return nil
}

// reindex rebuilds reference positions after a removal. Caller holds mu.
func (r *SettlementRepo) reindex() {
	for i, st := range r.s.settlements {
		r.s.settlementRefs[settlementKey(st.MerchantID, st.Reference)] = i
	}
}

func (r *SettlementRepo) GetByReference(ctx context.Context, merchantID uuid.UUID, reference string) (*domain.Settlement, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if i, ok := r.s.settlementRefs[settlementKey(merchantID, reference)]; ok {
		c := *r.s.settlements[i]
		return &c, nil
	}
	return nil, nil
}

func (r *SettlementRepo) ListByMerchant(ctx context.Context, merchantID uuid.UUID) ([]domain.Settlement, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Settlement
	for i := len(r.s.settlements) - 1; i >= 0; i-- {
		if st := r.s.settlements[i]; st.MerchantID == merchantID {
			out = append(out, *st)
		}
	}
	return out, nil
}

// IdempotencyRepo implements ports.IdempotencyRepository.
type IdempotencyRepo struct{ s *Store }

// Idempotency returns the idempotency log view of the store.
func (s *Store) Idempotency() *IdempotencyRepo { return &IdempotencyRepo{s: s} }

func (r *IdempotencyRepo) Create(ctx context.Context, tx pgx.Tx, log *domain.IdempotencyLog) error {
	mt, err := asTx(tx)
	if err != nil {
		return err
	}
	if err := mt.lock(ctx, "idem:" + log.Key); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, dup := r.s.idempotency[log.Key]; dup {
		return ports.ErrDuplicateKey
	}
	c := *log
	r.s.idempotency[log.Key] = &c
	mt.journal(func() { delete(r.s.idempotency, log.Key) })
	return nil
}

func (r *IdempotencyRepo) Get(ctx context.Context, key string) (*domain.IdempotencyLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if l, ok := r.s.idempotency[key]; ok {
		c := *l
		return &c, nil
	}
	return nil, nil
}

// AuditRepo implements ports.AuditRepository.
type AuditRepo struct{ s *Store }

// Audit returns the audit log view of the store.
func (s *Store) Audit() *AuditRepo { return &AuditRepo{s: s} }

func (r *AuditRepo) Create(ctx context.Context, log *domain.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.audit = append(r.s.audit, *log)
	return nil
}

// Entries returns audit rows in insertion order.
func (r *AuditRepo) Entries() []domain.AuditLog {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]domain.AuditLog(nil), r.s.audit...)
}

// LedgerRepo implements ports.LedgerRepository.
type LedgerRepo struct{ s *Store }

// Ledger returns the reconciliation view of the store.
func (s *Store) Ledger() *LedgerRepo { return &LedgerRepo{s: s} }

// ExpectedBalances folds the ledger as it stands, including writes of open
// transactions.
func (r *LedgerRepo) ExpectedBalances(ctx context.Context) (map[uuid.UUID]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.expected(), nil
}

// Snapshot waits for open transactions to finish, then reads balances and
// history under a single hold of the store mutex.
func (r *LedgerRepo) Snapshot(ctx context.Context) (*domain.LedgerSnapshot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.quiesce(ctx); err != nil {
		return nil, err
	}

	accounts := make([]domain.Account, 0, len(r.s.accounts))
	for _, a := range r.s.accounts {
		accounts = append(accounts, *a)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID.String() < accounts[j].ID.String() })
	return &domain.LedgerSnapshot{Accounts: accounts, Expected: r.expected()}, nil
}

// expected folds SUCCESS records and settlements. Caller holds mu.
func (r *LedgerRepo) expected() map[uuid.UUID]int64 {
	out := make(map[uuid.UUID]int64)
	for _, id := range r.s.txnOrder {
		for acct, delta := range r.s.transactions[id].BalanceDeltas() {
			out[acct] += delta
		}
	}
	for _, st := range r.s.settlements {
		out[st.MerchantID] -= st.Amount
	}
	return out
}
