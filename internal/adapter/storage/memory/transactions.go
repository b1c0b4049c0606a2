package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"coin-ledger/internal/core/domain"
	"coin-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct{ s *Store }

// Transactions returns the transaction log view of the store.
func (s *Store) Transactions() *TransactionRepo { return &TransactionRepo{s: s} }

func mintRefKey(merchantID uuid.UUID, ref string) string {
	return "mint:" + merchantID.String() + ":" + ref
}

func copyTransaction(t *domain.Transaction) domain.Transaction {
	c := *t
	if t.SenderAccountID != nil {
		id := *t.SenderAccountID
		c.SenderAccountID = &id
	}
	if t.ProcessedAt != nil {
		at := *t.ProcessedAt
		c.ProcessedAt = &at
	}
	return c
}

func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	mt, err := asTx(tx)
	if err != nil {
		return err
	}
	refKey := ""
	if t.TransactionType == domain.TransactionTypeMint {
		refKey = mintRefKey(t.ReceiverAccountID, t.ReferenceID)
		if err := mt.lock(ctx, refKey); err != nil {
			return err
		}
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if refKey != "" {
		if _, dup := r.s.mintRefs[refKey]; dup {
			return ports.ErrDuplicateKey
		}
		r.s.mintRefs[refKey] = t.ID
	}
	c := copyTransaction(t)
	r.s.transactions[t.ID] = &c
	r.s.txnOrder = append(r.s.txnOrder, t.ID)

	mt.journal(func() {
		delete(r.s.transactions, t.ID)
		if refKey != "" {
			delete(r.s.mintRefs, refKey)
		}
		for i := len(r.s.txnOrder) - 1; i >= 0; i-- {
			if r.s.txnOrder[i] == t.ID {
				r.s.txnOrder = append(r.s.txnOrder[:i], r.s.txnOrder[i+1:]...)
				break
			}
		}
	})
	return nil
}

func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if t, ok := r.s.transactions[id]; ok {
		c := copyTransaction(t)
		return &c, nil
	}
	return nil, nil
}

func (r *TransactionRepo) GetByReference(ctx context.Context, merchantID uuid.UUID, referenceID string) (*domain.Transaction, error) {
	r.s.mu.Lock()
	id, ok := r.s.mintRefs[mintRefKey(merchantID, referenceID)]
	r.s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return r.GetByID(ctx, id)
}

func (r *TransactionRepo) GetByReferenceForUpdate(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID, referenceID string) (*domain.Transaction, error) {
	mt, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	if err := mt.lock(ctx, mintRefKey(merchantID, referenceID)); err != nil {
		return nil, err
	}
	return r.GetByReference(ctx, merchantID, referenceID)
}

func (r *TransactionRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus) error {
	mt, err := asTx(tx)
	if err != nil {
		return err
	}
	if err := mt.lock(ctx, "txn:" + id.String()); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.transactions[id]
	if !ok || t.Status != domain.TransactionStatusCreated {
		return fmt.Errorf("transaction %s not found or not CREATED", id)
	}
	prevStatus, prevAt := t.Status, t.ProcessedAt
	now := time.Now().UTC()
	t.Status = status
	t.ProcessedAt = &now
	mt.journal(func() {
		t.Status = prevStatus
		t.ProcessedAt = prevAt
	})
	return nil
}

func (r *TransactionRepo) ListByAccount(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	matches := r.filter(func(t *domain.Transaction) bool {
		involved := t.ReceiverAccountID == params.AccountID ||
			(t.SenderAccountID != nil && *t.SenderAccountID == params.AccountID)
		if !involved {
			return false
		}
		if params.Status != nil && t.Status != *params.Status {
			return false
		}
		return params.Type == nil || t.TransactionType == *params.Type
	})
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})

	total := int64(len(matches))
	start := (params.Page - 1) * params.PageSize
	if start < 0 || start >= len(matches) {
		return []domain.Transaction{}, total, nil
	}
	end := start + params.PageSize
	if end > len(matches) {
		end = len(matches)
	}
	return matches[start:end], total, nil
}

func (r *TransactionRepo) ListByMerchantAndStatus(ctx context.Context, merchantID uuid.UUID, status domain.TransactionStatus) ([]domain.Transaction, error) {
	matches := r.filter(func(t *domain.Transaction) bool {
		return t.ReceiverAccountID == merchantID && t.Status == status
	})
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].CreatedAt.Before(matches[j].CreatedAt)
	})
	return matches, nil
}

// filter walks records in insertion order.
func (r *TransactionRepo) filter(keep func(*domain.Transaction) bool) []domain.Transaction {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Transaction
	for _, id := range r.s.txnOrder {
		if t := r.s.transactions[id]; keep(t) {
			out = append(out, copyTransaction(t))
		}
	}
	return out
}
