package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Hoang7604119/mmostore-sub003/internal/domain"
	"github.com/Hoang7604119/mmostore-sub003/internal/models"
	"github.com/google/uuid"
)

// MemoryStore is a map-backed Store with the same transactional contract as
// the Postgres store. RunInTx runs the callback against a snapshot of the
// state and swaps it in only on success, so a failing callback leaves no
// partial effect. Used by tests and local development.
type MemoryStore struct {
	mu    sync.Mutex
	state *memoryState
}

type auditEntry struct {
	InsertAuditLogParams
	CreatedAt time.Time
}

type memoryState struct {
	accounts    map[uuid.UUID]models.Account
	holds       map[uuid.UUID]models.Hold
	intents     map[uuid.UUID]models.PaymentIntent
	externalTxs map[string]models.ExternalTransaction
	withdrawals map[uuid.UUID]models.WithdrawalRequest
	idemKeys    map[string]IdempotencyKeyRow
	auditLog    []auditEntry
}

func newMemoryState() *memoryState {
	return &memoryState{
		accounts:    map[uuid.UUID]models.Account{},
		holds:       map[uuid.UUID]models.Hold{},
		intents:     map[uuid.UUID]models.PaymentIntent{},
		externalTxs: map[string]models.ExternalTransaction{},
		withdrawals: map[uuid.UUID]models.WithdrawalRequest{},
		idemKeys:    map[string]IdempotencyKeyRow{},
	}
}

func (s *memoryState) clone() *memoryState {
	c := newMemoryState()
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.holds {
		c.holds[k] = v
	}
	for k, v := range s.intents {
		c.intents[k] = v
	}
	for k, v := range s.externalTxs {
		c.externalTxs[k] = v
	}
	for k, v := range s.withdrawals {
		c.withdrawals[k] = v
	}
	for k, v := range s.idemKeys {
		c.idemKeys[k] = v
	}
	c.auditLog = append(c.auditLog, s.auditLog...)
	return c
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemoryState()}
}

// Queries returns the non-transactional query set.
func (s *MemoryStore) Queries() Querier {
	return &memoryQueries{store: s}
}

// RunInTx clones the state, runs fn against the clone, and commits by
// swapping the clone in. The store lock is held for the whole callback, so
// transactions are serialized.
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(q Querier) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := s.state.clone()
	if err := fn(&memoryQueries{store: s, tx: snapshot}); err != nil {
		return err
	}
	s.state = snapshot
	return nil
}

// memoryQueries operates on the live state under the store lock, or on a
// transaction snapshot with the lock already held.
type memoryQueries struct {
	store *MemoryStore
	tx    *memoryState
}

func (q *memoryQueries) begin() (*memoryState, func()) {
	if q.tx != nil {
		return q.tx, func() {}
	}
	q.store.mu.Lock()
	return q.store.state, q.store.mu.Unlock
}

func (q *memoryQueries) EnsureAccount(ctx context.Context, id uuid.UUID) error {
	st, unlock := q.begin()
	defer unlock()

	if _, ok := st.accounts[id]; ok {
		return nil
	}
	now := time.Now().UTC()
	st.accounts[id] = models.Account{ID: id, CreatedAt: now, UpdatedAt: now}
	return nil
}

func (q *memoryQueries) GetAccount(ctx context.Context, id uuid.UUID) (models.Account, error) {
	st, unlock := q.begin()
	defer unlock()

	a, ok := st.accounts[id]
	if !ok {
		return models.Account{}, domain.ErrNotFound
	}
	return a, nil
}

func (q *memoryQueries) ApplyBalanceDelta(ctx context.Context, arg ApplyBalanceDeltaParams) error {
	st, unlock := q.begin()
	defer unlock()

	a, ok := st.accounts[arg.AccountID]
	if !ok {
		return domain.ErrNotFound
	}
	if a.Available+arg.AvailableDelta < 0 || a.Pending+arg.PendingDelta < 0 {
		return domain.ErrInsufficientFunds
	}
	a.Available += arg.AvailableDelta
	a.Pending += arg.PendingDelta
	a.UpdatedAt = time.Now().UTC()
	st.accounts[arg.AccountID] = a
	return nil
}

func (q *memoryQueries) ListAccountIDs(ctx context.Context, limit, offset int32) ([]uuid.UUID, error) {
	st, unlock := q.begin()
	defer unlock()

	accounts := make([]models.Account, 0, len(st.accounts))
	for _, a := range st.accounts {
		accounts = append(accounts, a)
	}
	sort.Slice(accounts, func(i, j int) bool {
		if !accounts[i].CreatedAt.Equal(accounts[j].CreatedAt) {
			return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
		}
		return accounts[i].ID.String() < accounts[j].ID.String()
	})

	var ids []uuid.UUID
	for _, a := range paginate(accounts, limit, offset) {
		ids = append(ids, a.ID)
	}
	return ids, nil
}

func (q *memoryQueries) BalanceTotals(ctx context.Context) (BalanceTotalsRow, error) {
	st, unlock := q.begin()
	defer unlock()

	var row BalanceTotalsRow
	for _, a := range st.accounts {
		row.Accounts++
		row.TotalAvailable += a.Available
		row.TotalPending += a.Pending
	}
	return row, nil
}

func (q *memoryQueries) CreateHold(ctx context.Context, arg CreateHoldParams) (models.Hold, error) {
	st, unlock := q.begin()
	defer unlock()

	h := models.Hold{
		ID:               arg.ID,
		OwnerID:          arg.OwnerID,
		Amount:           arg.Amount,
		Reason:           arg.Reason,
		Status:           domain.HoldStatusOpen,
		ScheduledRelease: arg.ScheduledRelease,
		OrderID:          arg.OrderID,
		Note:             arg.Note,
		CreatedAt:        time.Now().UTC(),
	}
	st.holds[h.ID] = h
	return h, nil
}

func (q *memoryQueries) GetHold(ctx context.Context, id uuid.UUID) (models.Hold, error) {
	st, unlock := q.begin()
	defer unlock()

	h, ok := st.holds[id]
	if !ok {
		return models.Hold{}, domain.ErrNotFound
	}
	return h, nil
}

func (q *memoryQueries) GetHoldForUpdate(ctx context.Context, id uuid.UUID) (models.Hold, error) {
	return q.GetHold(ctx, id)
}

func (q *memoryQueries) FinalizeHold(ctx context.Context, arg FinalizeHoldParams) (int64, error) {
	st, unlock := q.begin()
	defer unlock()

	h, ok := st.holds[arg.ID]
	if !ok || h.Status != domain.HoldStatusOpen {
		return 0, nil
	}
	releasedAt := arg.ReleasedAt
	h.Status = arg.Status
	h.ReleasedAt = &releasedAt
	if arg.Note != nil {
		note := *arg.Note
		h.Note = &note
	}
	st.holds[arg.ID] = h
	return 1, nil
}

func (q *memoryQueries) listHolds(filter func(models.Hold) bool, less func(a, b models.Hold) bool, limit, offset int32) []models.Hold {
	st, unlock := q.begin()
	defer unlock()

	var holds []models.Hold
	for _, h := range st.holds {
		if filter(h) {
			holds = append(holds, h)
		}
	}
	sort.Slice(holds, func(i, j int) bool { return less(holds[i], holds[j]) })
	return paginate(holds, limit, offset)
}

func newestHoldFirst(a, b models.Hold) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}

func (q *memoryQueries) ListDueHolds(ctx context.Context, before time.Time, limit int32) ([]models.Hold, error) {
	return q.listHolds(
		func(h models.Hold) bool {
			return h.Status == domain.HoldStatusOpen && !h.ScheduledRelease.After(before)
		},
		func(a, b models.Hold) bool { return a.ScheduledRelease.Before(b.ScheduledRelease) },
		limit, 0,
	), nil
}

func (q *memoryQueries) ListHoldsByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int32) ([]models.Hold, error) {
	return q.listHolds(
		func(h models.Hold) bool { return h.OwnerID == ownerID },
		newestHoldFirst,
		limit, offset,
	), nil
}

func (q *memoryQueries) ListHoldsByStatus(ctx context.Context, status string, limit, offset int32) ([]models.Hold, error) {
	return q.listHolds(
		func(h models.Hold) bool { return h.Status == status },
		newestHoldFirst,
		limit, offset,
	), nil
}

func (q *memoryQueries) CountOverdueHolds(ctx context.Context, now time.Time) (int64, error) {
	st, unlock := q.begin()
	defer unlock()

	var count int64
	for _, h := range st.holds {
		if h.Status == domain.HoldStatusOpen && !h.ScheduledRelease.After(now) {
			count++
		}
	}
	return count, nil
}

func (q *memoryQueries) CountHoldsMaturingWithin(ctx context.Context, from, to time.Time) (int64, error) {
	st, unlock := q.begin()
	defer unlock()

	var count int64
	for _, h := range st.holds {
		if h.Status == domain.HoldStatusOpen && h.ScheduledRelease.After(from) && !h.ScheduledRelease.After(to) {
			count++
		}
	}
	return count, nil
}

func (q *memoryQueries) SumOpenHoldsByOwner(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	st, unlock := q.begin()
	defer unlock()

	var sum int64
	for _, h := range st.holds {
		if h.OwnerID == ownerID && h.Status == domain.HoldStatusOpen {
			sum += h.Amount
		}
	}
	return sum, nil
}

func (q *memoryQueries) CreatePaymentIntent(ctx context.Context, arg CreatePaymentIntentParams) (models.PaymentIntent, error) {
	st, unlock := q.begin()
	defer unlock()

	for _, p := range st.intents {
		if p.OrderCode == arg.OrderCode {
			return models.PaymentIntent{}, fmt.Errorf("order code %s: %w", arg.OrderCode, domain.ErrConflictingRequest)
		}
	}
	now := time.Now().UTC()
	p := models.PaymentIntent{
		ID:        arg.ID,
		OwnerID:   arg.OwnerID,
		OrderCode: arg.OrderCode,
		Amount:    arg.Amount,
		Status:    domain.IntentStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	st.intents[p.ID] = p
	return p, nil
}

func (q *memoryQueries) GetPaymentIntent(ctx context.Context, id uuid.UUID) (models.PaymentIntent, error) {
	st, unlock := q.begin()
	defer unlock()

	p, ok := st.intents[id]
	if !ok {
		return models.PaymentIntent{}, domain.ErrNotFound
	}
	return p, nil
}

func (q *memoryQueries) GetPaymentIntentForUpdate(ctx context.Context, id uuid.UUID) (models.PaymentIntent, error) {
	return q.GetPaymentIntent(ctx, id)
}

func (q *memoryQueries) FindPendingIntentsBySuffix(ctx context.Context, suffix string, amount int64) ([]models.PaymentIntent, error) {
	st, unlock := q.begin()
	defer unlock()

	var intents []models.PaymentIntent
	for _, p := range st.intents {
		if p.Status == domain.IntentStatusPending && p.Amount == amount && strings.HasSuffix(p.OrderCode, suffix) {
			intents = append(intents, p)
		}
	}
	sort.Slice(intents, func(i, j int) bool { return intents[i].CreatedAt.Before(intents[j].CreatedAt) })
	return intents, nil
}

func (q *memoryQueries) FinalizePaymentIntent(ctx context.Context, arg FinalizePaymentIntentParams) (int64, error) {
	st, unlock := q.begin()
	defer unlock()

	p, ok := st.intents[arg.ID]
	if !ok || p.Status != domain.IntentStatusPending {
		return 0, nil
	}
	p.Status = arg.Status
	p.UpdatedAt = time.Now().UTC()
	st.intents[arg.ID] = p
	return 1, nil
}

func (q *memoryQueries) SetPaymentIntentCheckoutRef(ctx context.Context, id uuid.UUID, checkoutRef string) error {
	st, unlock := q.begin()
	defer unlock()

	p, ok := st.intents[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.CheckoutRef = checkoutRef
	p.UpdatedAt = time.Now().UTC()
	st.intents[id] = p
	return nil
}

func (q *memoryQueries) ListPaymentIntentsByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int32) ([]models.PaymentIntent, error) {
	st, unlock := q.begin()
	defer unlock()

	var intents []models.PaymentIntent
	for _, p := range st.intents {
		if p.OwnerID == ownerID {
			intents = append(intents, p)
		}
	}
	sort.Slice(intents, func(i, j int) bool { return intents[i].CreatedAt.After(intents[j].CreatedAt) })
	return paginate(intents, limit, offset), nil
}

func (q *memoryQueries) InsertExternalTransaction(ctx context.Context, arg InsertExternalTransactionParams) (models.ExternalTransaction, error) {
	st, unlock := q.begin()
	defer unlock()

	if _, ok := st.externalTxs[arg.ExternalID]; ok {
		return models.ExternalTransaction{}, domain.ErrDuplicateExternalTransaction
	}
	t := models.ExternalTransaction{
		ExternalID:  arg.ExternalID,
		Description: arg.Description,
		Amount:      arg.Amount,
		ObservedAt:  arg.ObservedAt,
		CreatedAt:   time.Now().UTC(),
	}
	st.externalTxs[t.ExternalID] = t
	return t, nil
}

func (q *memoryQueries) GetExternalTransaction(ctx context.Context, externalID string) (models.ExternalTransaction, error) {
	st, unlock := q.begin()
	defer unlock()

	t, ok := st.externalTxs[externalID]
	if !ok {
		return models.ExternalTransaction{}, domain.ErrNotFound
	}
	return t, nil
}

func (q *memoryQueries) MarkExternalTransactionProcessed(ctx context.Context, arg MarkExternalTransactionProcessedParams) error {
	st, unlock := q.begin()
	defer unlock()

	t, ok := st.externalTxs[arg.ExternalID]
	if !ok || t.Processed {
		return domain.ErrAlreadyTerminal
	}
	t.Processed = true
	t.IntentID = arg.IntentID
	if arg.ErrorNote != nil {
		note := *arg.ErrorNote
		t.ErrorNote = &note
	} else {
		t.ErrorNote = nil
	}
	st.externalTxs[arg.ExternalID] = t
	return nil
}

func (q *memoryQueries) ListUnmatchedExternalTransactions(ctx context.Context, limit, offset int32) ([]models.ExternalTransaction, error) {
	st, unlock := q.begin()
	defer unlock()

	var txs []models.ExternalTransaction
	for _, t := range st.externalTxs {
		if t.ErrorNote != nil || !t.Processed {
			txs = append(txs, t)
		}
	}
	sort.Slice(txs, func(i, j int) bool { return txs[i].ObservedAt.After(txs[j].ObservedAt) })
	return paginate(txs, limit, offset), nil
}

func (q *memoryQueries) CreateWithdrawal(ctx context.Context, arg CreateWithdrawalParams) (models.WithdrawalRequest, error) {
	st, unlock := q.begin()
	defer unlock()

	w := models.WithdrawalRequest{
		ID:        arg.ID,
		OwnerID:   arg.OwnerID,
		Amount:    arg.Amount,
		Bank:      arg.Bank,
		Status:    domain.WithdrawalStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	st.withdrawals[w.ID] = w
	return w, nil
}

func (q *memoryQueries) GetWithdrawal(ctx context.Context, id uuid.UUID) (models.WithdrawalRequest, error) {
	st, unlock := q.begin()
	defer unlock()

	w, ok := st.withdrawals[id]
	if !ok {
		return models.WithdrawalRequest{}, domain.ErrNotFound
	}
	return w, nil
}

func (q *memoryQueries) GetWithdrawalForUpdate(ctx context.Context, id uuid.UUID) (models.WithdrawalRequest, error) {
	return q.GetWithdrawal(ctx, id)
}

func (q *memoryQueries) HasOpenWithdrawal(ctx context.Context, ownerID uuid.UUID) (bool, error) {
	st, unlock := q.begin()
	defer unlock()

	for _, w := range st.withdrawals {
		if w.OwnerID == ownerID && !domain.WithdrawalTerminal(w.Status) {
			return true, nil
		}
	}
	return false, nil
}

func (q *memoryQueries) UpdateWithdrawalStatus(ctx context.Context, arg UpdateWithdrawalStatusParams) (int64, error) {
	st, unlock := q.begin()
	defer unlock()

	w, ok := st.withdrawals[arg.ID]
	if !ok {
		return 0, nil
	}
	matched := false
	for _, from := range arg.FromStatus {
		if w.Status == from {
			matched = true
			break
		}
	}
	if !matched {
		return 0, nil
	}
	w.Status = arg.Status
	if arg.Note != nil {
		note := *arg.Note
		w.Note = &note
	}
	if arg.OperatorID != nil {
		op := *arg.OperatorID
		w.OperatorID = &op
	}
	if arg.ProcessedAt != nil {
		at := *arg.ProcessedAt
		w.ProcessedAt = &at
	}
	st.withdrawals[arg.ID] = w
	return 1, nil
}

func (q *memoryQueries) listWithdrawals(filter func(models.WithdrawalRequest) bool, limit, offset int32) []models.WithdrawalRequest {
	st, unlock := q.begin()
	defer unlock()

	var out []models.WithdrawalRequest
	for _, w := range st.withdrawals {
		if filter(w) {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return paginate(out, limit, offset)
}

func (q *memoryQueries) ListWithdrawalsByStatus(ctx context.Context, status string, limit, offset int32) ([]models.WithdrawalRequest, error) {
	return q.listWithdrawals(func(w models.WithdrawalRequest) bool { return w.Status == status }, limit, offset), nil
}

func (q *memoryQueries) ListWithdrawalsByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int32) ([]models.WithdrawalRequest, error) {
	return q.listWithdrawals(func(w models.WithdrawalRequest) bool { return w.OwnerID == ownerID }, limit, offset), nil
}

func (q *memoryQueries) InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) error {
	st, unlock := q.begin()
	defer unlock()

	st.auditLog = append(st.auditLog, auditEntry{InsertAuditLogParams: arg, CreatedAt: time.Now().UTC()})
	return nil
}

func (q *memoryQueries) GetIdempotencyKey(ctx context.Context, key string) (IdempotencyKeyRow, error) {
	st, unlock := q.begin()
	defer unlock()

	row, ok := st.idemKeys[key]
	if !ok {
		return IdempotencyKeyRow{}, domain.ErrNotFound
	}
	return row, nil
}

func (q *memoryQueries) ReserveIdempotencyKey(ctx context.Context, arg ReserveIdempotencyKeyParams) (bool, error) {
	st, unlock := q.begin()
	defer unlock()

	if _, ok := st.idemKeys[arg.IdempotencyKey]; ok {
		return false, nil
	}
	st.idemKeys[arg.IdempotencyKey] = IdempotencyKeyRow{
		IdempotencyKey: arg.IdempotencyKey,
		RequestHash:    arg.RequestHash,
		Method:         arg.Method,
		Path:           arg.Path,
		InProgress:     true,
		CreatedAt:      time.Now().UTC(),
	}
	return true, nil
}

func (q *memoryQueries) FinalizeIdempotencyKey(ctx context.Context, arg FinalizeIdempotencyKeyParams) (IdempotencyKeyRow, error) {
	st, unlock := q.begin()
	defer unlock()

	row, ok := st.idemKeys[arg.IdempotencyKey]
	if !ok || row.RequestHash != arg.RequestHash {
		return IdempotencyKeyRow{}, domain.ErrNotFound
	}
	row.InProgress = false
	row.ResponseStatus = arg.ResponseStatus
	row.ResponseBody = arg.ResponseBody
	row.ContentType = arg.ContentType
	st.idemKeys[arg.IdempotencyKey] = row
	return row, nil
}

func paginate[T any](items []T, limit, offset int32) []T {
	if offset < 0 {
		offset = 0
	}
	if int(offset) >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && int(limit) < len(items) {
		items = items[:limit]
	}
	return items
}
