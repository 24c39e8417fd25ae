package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Hoang7604119/mmostore-sub003/internal/domain"
	"github.com/Hoang7604119/mmostore-sub003/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	db      *pgxpool.Pool
	queries *postgresQueries
}

// NewPostgresStore creates a store wrapper around a pgx connection pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		db:      db,
		queries: &postgresQueries{db: db},
	}
}

// Queries returns the non-transactional query set.
func (s *PostgresStore) Queries() Querier {
	return s.queries
}

// RunInTx executes fn within a database transaction.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&postgresQueries{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type postgresQueries struct {
	db dbtx
}

func (q *postgresQueries) EnsureAccount(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO accounts (id, available, pending, created_at, updated_at)
		VALUES ($1, 0, 0, NOW(), NOW())
		ON CONFLICT (id) DO NOTHING
	`, id)
	if err != nil {
		return fmt.Errorf("ensure account: %w", err)
	}
	return nil
}

func (q *postgresQueries) GetAccount(ctx context.Context, id uuid.UUID) (models.Account, error) {
	var a models.Account
	err := q.db.QueryRow(ctx, `
		SELECT id, available, pending, created_at, updated_at
		FROM accounts WHERE id = $1
	`, id).Scan(&a.ID, &a.Available, &a.Pending, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Account{}, domain.ErrNotFound
		}
		return models.Account{}, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (q *postgresQueries) ApplyBalanceDelta(ctx context.Context, arg ApplyBalanceDeltaParams) error {
	// Single guarded statement: per-row atomicity is what serializes
	// concurrent mutations of the same account.
	tag, err := q.db.Exec(ctx, `
		UPDATE accounts
		SET available = available + $2,
		    pending   = pending + $3,
		    updated_at = NOW()
		WHERE id = $1
		  AND available + $2 >= 0
		  AND pending + $3 >= 0
	`, arg.AccountID, arg.AvailableDelta, arg.PendingDelta)
	if err != nil {
		return fmt.Errorf("apply balance delta: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	err = q.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, arg.AccountID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("apply balance delta: check account: %w", err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrInsufficientFunds
}

func (q *postgresQueries) ListAccountIDs(ctx context.Context, limit, offset int32) ([]uuid.UUID, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id FROM accounts ORDER BY created_at LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list account ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan account id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (q *postgresQueries) BalanceTotals(ctx context.Context) (BalanceTotalsRow, error) {
	var row BalanceTotalsRow
	err := q.db.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(available), 0), COALESCE(SUM(pending), 0)
		FROM accounts
	`).Scan(&row.Accounts, &row.TotalAvailable, &row.TotalPending)
	if err != nil {
		return BalanceTotalsRow{}, fmt.Errorf("balance totals: %w", err)
	}
	return row, nil
}

func (q *postgresQueries) CreateHold(ctx context.Context, arg CreateHoldParams) (models.Hold, error) {
	var h models.Hold
	err := q.db.QueryRow(ctx, `
		INSERT INTO holds (id, owner_id, amount, reason, status, scheduled_release, order_id, note, created_at)
		VALUES ($1, $2, $3, $4, 'OPEN', $5, $6, $7, NOW())
		RETURNING id, owner_id, amount, reason, status, scheduled_release, released_at, order_id, note, created_at
	`, arg.ID, arg.OwnerID, arg.Amount, arg.Reason, arg.ScheduledRelease, arg.OrderID, arg.Note).
		Scan(&h.ID, &h.OwnerID, &h.Amount, &h.Reason, &h.Status, &h.ScheduledRelease, &h.ReleasedAt, &h.OrderID, &h.Note, &h.CreatedAt)
	if err != nil {
		return models.Hold{}, fmt.Errorf("create hold: %w", err)
	}
	return h, nil
}

const holdColumns = `id, owner_id, amount, reason, status, scheduled_release, released_at, order_id, note, created_at`

func scanHold(row pgx.Row) (models.Hold, error) {
	var h models.Hold
	err := row.Scan(&h.ID, &h.OwnerID, &h.Amount, &h.Reason, &h.Status, &h.ScheduledRelease, &h.ReleasedAt, &h.OrderID, &h.Note, &h.CreatedAt)
	return h, err
}

func (q *postgresQueries) GetHold(ctx context.Context, id uuid.UUID) (models.Hold, error) {
	h, err := scanHold(q.db.QueryRow(ctx, `SELECT `+holdColumns+` FROM holds WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Hold{}, domain.ErrNotFound
		}
		return models.Hold{}, fmt.Errorf("get hold: %w", err)
	}
	return h, nil
}

func (q *postgresQueries) GetHoldForUpdate(ctx context.Context, id uuid.UUID) (models.Hold, error) {
	h, err := scanHold(q.db.QueryRow(ctx, `SELECT `+holdColumns+` FROM holds WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Hold{}, domain.ErrNotFound
		}
		return models.Hold{}, fmt.Errorf("get hold for update: %w", err)
	}
	return h, nil
}

func (q *postgresQueries) FinalizeHold(ctx context.Context, arg FinalizeHoldParams) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE holds
		SET status = $2, released_at = $3, note = COALESCE($4, note)
		WHERE id = $1 AND status = 'OPEN'
	`, arg.ID, arg.Status, arg.ReleasedAt, arg.Note)
	if err != nil {
		return 0, fmt.Errorf("finalize hold: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *postgresQueries) holdRows(ctx context.Context, sql string, args ...any) ([]models.Hold, error) {
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holds []models.Hold
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, err
		}
		holds = append(holds, h)
	}
	return holds, rows.Err()
}

func (q *postgresQueries) ListDueHolds(ctx context.Context, before time.Time, limit int32) ([]models.Hold, error) {
	holds, err := q.holdRows(ctx, `
		SELECT `+holdColumns+` FROM holds
		WHERE status = 'OPEN' AND scheduled_release <= $1
		ORDER BY scheduled_release
		LIMIT $2
	`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list due holds: %w", err)
	}
	return holds, nil
}

func (q *postgresQueries) ListHoldsByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int32) ([]models.Hold, error) {
	holds, err := q.holdRows(ctx, `
		SELECT `+holdColumns+` FROM holds
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list holds by owner: %w", err)
	}
	return holds, nil
}

func (q *postgresQueries) ListHoldsByStatus(ctx context.Context, status string, limit, offset int32) ([]models.Hold, error) {
	holds, err := q.holdRows(ctx, `
		SELECT `+holdColumns+` FROM holds
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list holds by status: %w", err)
	}
	return holds, nil
}

func (q *postgresQueries) CountOverdueHolds(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM holds WHERE status = 'OPEN' AND scheduled_release <= $1
	`, now).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count overdue holds: %w", err)
	}
	return count, nil
}

func (q *postgresQueries) CountHoldsMaturingWithin(ctx context.Context, from, to time.Time) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM holds
		WHERE status = 'OPEN' AND scheduled_release > $1 AND scheduled_release <= $2
	`, from, to).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count maturing holds: %w", err)
	}
	return count, nil
}

func (q *postgresQueries) SumOpenHoldsByOwner(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	var sum int64
	err := q.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM holds WHERE owner_id = $1 AND status = 'OPEN'
	`, ownerID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum open holds: %w", err)
	}
	return sum, nil
}

const intentColumns = `id, owner_id, order_code, amount, status, COALESCE(checkout_ref, ''), created_at, updated_at`

func scanIntent(row pgx.Row) (models.PaymentIntent, error) {
	var p models.PaymentIntent
	err := row.Scan(&p.ID, &p.OwnerID, &p.OrderCode, &p.Amount, &p.Status, &p.CheckoutRef, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (q *postgresQueries) CreatePaymentIntent(ctx context.Context, arg CreatePaymentIntentParams) (models.PaymentIntent, error) {
	p, err := scanIntent(q.db.QueryRow(ctx, `
		INSERT INTO payment_intents (id, owner_id, order_code, amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'PENDING', NOW(), NOW())
		RETURNING `+intentColumns+`
	`, arg.ID, arg.OwnerID, arg.OrderCode, arg.Amount))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return models.PaymentIntent{}, fmt.Errorf("order code %s: %w", arg.OrderCode, domain.ErrConflictingRequest)
		}
		return models.PaymentIntent{}, fmt.Errorf("create payment intent: %w", err)
	}
	return p, nil
}

func (q *postgresQueries) GetPaymentIntent(ctx context.Context, id uuid.UUID) (models.PaymentIntent, error) {
	p, err := scanIntent(q.db.QueryRow(ctx, `SELECT `+intentColumns+` FROM payment_intents WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.PaymentIntent{}, domain.ErrNotFound
		}
		return models.PaymentIntent{}, fmt.Errorf("get payment intent: %w", err)
	}
	return p, nil
}

func (q *postgresQueries) GetPaymentIntentForUpdate(ctx context.Context, id uuid.UUID) (models.PaymentIntent, error) {
	p, err := scanIntent(q.db.QueryRow(ctx, `SELECT `+intentColumns+` FROM payment_intents WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.PaymentIntent{}, domain.ErrNotFound
		}
		return models.PaymentIntent{}, fmt.Errorf("get payment intent for update: %w", err)
	}
	return p, nil
}

func (q *postgresQueries) FindPendingIntentsBySuffix(ctx context.Context, suffix string, amount int64) ([]models.PaymentIntent, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+intentColumns+` FROM payment_intents
		WHERE status = 'PENDING'
		  AND amount = $2
		  AND right(order_code, char_length($1)) = $1
		ORDER BY created_at
	`, suffix, amount)
	if err != nil {
		return nil, fmt.Errorf("find pending intents: %w", err)
	}
	defer rows.Close()

	var intents []models.PaymentIntent
	for rows.Next() {
		p, err := scanIntent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment intent: %w", err)
		}
		intents = append(intents, p)
	}
	return intents, rows.Err()
}

func (q *postgresQueries) FinalizePaymentIntent(ctx context.Context, arg FinalizePaymentIntentParams) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE payment_intents
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'
	`, arg.ID, arg.Status)
	if err != nil {
		return 0, fmt.Errorf("finalize payment intent: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *postgresQueries) SetPaymentIntentCheckoutRef(ctx context.Context, id uuid.UUID, checkoutRef string) error {
	_, err := q.db.Exec(ctx, `
		UPDATE payment_intents SET checkout_ref = $2, updated_at = NOW() WHERE id = $1
	`, id, checkoutRef)
	if err != nil {
		return fmt.Errorf("set checkout ref: %w", err)
	}
	return nil
}

func (q *postgresQueries) ListPaymentIntentsByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int32) ([]models.PaymentIntent, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+intentColumns+` FROM payment_intents
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list payment intents: %w", err)
	}
	defer rows.Close()

	var intents []models.PaymentIntent
	for rows.Next() {
		p, err := scanIntent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment intent: %w", err)
		}
		intents = append(intents, p)
	}
	return intents, rows.Err()
}

const extTxColumns = `external_id, description, amount, observed_at, processed, intent_id, error_note, created_at`

func scanExternalTransaction(row pgx.Row) (models.ExternalTransaction, error) {
	var t models.ExternalTransaction
	err := row.Scan(&t.ExternalID, &t.Description, &t.Amount, &t.ObservedAt, &t.Processed, &t.IntentID, &t.ErrorNote, &t.CreatedAt)
	return t, err
}

func (q *postgresQueries) InsertExternalTransaction(ctx context.Context, arg InsertExternalTransactionParams) (models.ExternalTransaction, error) {
	t, err := scanExternalTransaction(q.db.QueryRow(ctx, `
		INSERT INTO external_transactions (external_id, description, amount, observed_at, processed, created_at)
		VALUES ($1, $2, $3, $4, FALSE, NOW())
		RETURNING `+extTxColumns+`
	`, arg.ExternalID, arg.Description, arg.Amount, arg.ObservedAt))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return models.ExternalTransaction{}, domain.ErrDuplicateExternalTransaction
		}
		return models.ExternalTransaction{}, fmt.Errorf("insert external transaction: %w", err)
	}
	return t, nil
}

func (q *postgresQueries) GetExternalTransaction(ctx context.Context, externalID string) (models.ExternalTransaction, error) {
	t, err := scanExternalTransaction(q.db.QueryRow(ctx, `
		SELECT `+extTxColumns+` FROM external_transactions WHERE external_id = $1
	`, externalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ExternalTransaction{}, domain.ErrNotFound
		}
		return models.ExternalTransaction{}, fmt.Errorf("get external transaction: %w", err)
	}
	return t, nil
}

func (q *postgresQueries) MarkExternalTransactionProcessed(ctx context.Context, arg MarkExternalTransactionProcessedParams) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE external_transactions
		SET processed = TRUE, intent_id = $2, error_note = $3
		WHERE external_id = $1 AND processed = FALSE
	`, arg.ExternalID, arg.IntentID, arg.ErrorNote)
	if err != nil {
		return fmt.Errorf("mark external transaction processed: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return domain.ErrAlreadyTerminal
	}
	return nil
}

func (q *postgresQueries) ListUnmatchedExternalTransactions(ctx context.Context, limit, offset int32) ([]models.ExternalTransaction, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+extTxColumns+` FROM external_transactions
		WHERE error_note IS NOT NULL OR processed = FALSE
		ORDER BY observed_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list unmatched external transactions: %w", err)
	}
	defer rows.Close()

	var txs []models.ExternalTransaction
	for rows.Next() {
		t, err := scanExternalTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan external transaction: %w", err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

const withdrawalColumns = `id, owner_id, amount, bank_name, bank_account_number, bank_account_name, status, note, operator_id, processed_at, created_at`

func scanWithdrawal(row pgx.Row) (models.WithdrawalRequest, error) {
	var w models.WithdrawalRequest
	err := row.Scan(&w.ID, &w.OwnerID, &w.Amount, &w.Bank.BankName, &w.Bank.AccountNumber, &w.Bank.AccountName, &w.Status, &w.Note, &w.OperatorID, &w.ProcessedAt, &w.CreatedAt)
	return w, err
}

func (q *postgresQueries) CreateWithdrawal(ctx context.Context, arg CreateWithdrawalParams) (models.WithdrawalRequest, error) {
	w, err := scanWithdrawal(q.db.QueryRow(ctx, `
		INSERT INTO withdrawal_requests (id, owner_id, amount, bank_name, bank_account_number, bank_account_name, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'PENDING', NOW())
		RETURNING `+withdrawalColumns+`
	`, arg.ID, arg.OwnerID, arg.Amount, arg.Bank.BankName, arg.Bank.AccountNumber, arg.Bank.AccountName))
	if err != nil {
		return models.WithdrawalRequest{}, fmt.Errorf("create withdrawal: %w", err)
	}
	return w, nil
}

func (q *postgresQueries) GetWithdrawal(ctx context.Context, id uuid.UUID) (models.WithdrawalRequest, error) {
	w, err := scanWithdrawal(q.db.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.WithdrawalRequest{}, domain.ErrNotFound
		}
		return models.WithdrawalRequest{}, fmt.Errorf("get withdrawal: %w", err)
	}
	return w, nil
}

func (q *postgresQueries) GetWithdrawalForUpdate(ctx context.Context, id uuid.UUID) (models.WithdrawalRequest, error) {
	w, err := scanWithdrawal(q.db.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.WithdrawalRequest{}, domain.ErrNotFound
		}
		return models.WithdrawalRequest{}, fmt.Errorf("get withdrawal for update: %w", err)
	}
	return w, nil
}

func (q *postgresQueries) HasOpenWithdrawal(ctx context.Context, ownerID uuid.UUID) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM withdrawal_requests
			WHERE owner_id = $1 AND status IN ('PENDING', 'PROCESSING')
		)
	`, ownerID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check open withdrawal: %w", err)
	}
	return exists, nil
}

func (q *postgresQueries) UpdateWithdrawalStatus(ctx context.Context, arg UpdateWithdrawalStatusParams) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE withdrawal_requests
		SET status = $2,
		    note = COALESCE($3, note),
		    operator_id = COALESCE($4, operator_id),
		    processed_at = COALESCE($5, processed_at)
		WHERE id = $1 AND status = ANY($6)
	`, arg.ID, arg.Status, arg.Note, arg.OperatorID, arg.ProcessedAt, arg.FromStatus)
	if err != nil {
		return 0, fmt.Errorf("update withdrawal status: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *postgresQueries) ListWithdrawalsByStatus(ctx context.Context, status string, limit, offset int32) ([]models.WithdrawalRequest, error) {
	return q.withdrawalRows(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawal_requests
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, status, limit, offset)
}

func (q *postgresQueries) ListWithdrawalsByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int32) ([]models.WithdrawalRequest, error) {
	return q.withdrawalRows(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawal_requests
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, ownerID, limit, offset)
}

func (q *postgresQueries) withdrawalRows(ctx context.Context, sql string, args ...any) ([]models.WithdrawalRequest, error) {
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list withdrawals: %w", err)
	}
	defer rows.Close()

	var out []models.WithdrawalRequest
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan withdrawal: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (q *postgresQueries) InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO audit_log (entity_type, entity_id, actor_id, action, prev_state, next_state, metadata, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, NOW())
	`, arg.EntityType, arg.EntityID, arg.ActorID, arg.Action, arg.PrevState, arg.NextState, arg.Metadata)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func (q *postgresQueries) GetIdempotencyKey(ctx context.Context, key string) (IdempotencyKeyRow, error) {
	var row IdempotencyKeyRow
	err := q.db.QueryRow(ctx, `
		SELECT idempotency_key, request_hash, method, path, in_progress,
		       COALESCE(response_status, 0), COALESCE(response_body, ''::bytea), COALESCE(content_type, ''), created_at
		FROM idempotency_keys WHERE idempotency_key = $1
	`, key).Scan(&row.IdempotencyKey, &row.RequestHash, &row.Method, &row.Path, &row.InProgress,
		&row.ResponseStatus, &row.ResponseBody, &row.ContentType, &row.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return IdempotencyKeyRow{}, domain.ErrNotFound
		}
		return IdempotencyKeyRow{}, fmt.Errorf("get idempotency key: %w", err)
	}
	return row, nil
}

func (q *postgresQueries) ReserveIdempotencyKey(ctx context.Context, arg ReserveIdempotencyKeyParams) (bool, error) {
	tag, err := q.db.Exec(ctx, `
		INSERT INTO idempotency_keys (idempotency_key, request_hash, method, path, in_progress, created_at)
		VALUES ($1, $2, $3, $4, TRUE, NOW())
		ON CONFLICT (idempotency_key) DO NOTHING
	`, arg.IdempotencyKey, arg.RequestHash, arg.Method, arg.Path)
	if err != nil {
		return false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (q *postgresQueries) FinalizeIdempotencyKey(ctx context.Context, arg FinalizeIdempotencyKeyParams) (IdempotencyKeyRow, error) {
	var row IdempotencyKeyRow
	err := q.db.QueryRow(ctx, `
		UPDATE idempotency_keys
		SET in_progress = FALSE, response_status = $3, response_body = $4, content_type = $5
		WHERE idempotency_key = $1 AND request_hash = $2
		RETURNING idempotency_key, request_hash, method, path, in_progress,
		          response_status, response_body, content_type, created_at
	`, arg.IdempotencyKey, arg.RequestHash, arg.ResponseStatus, arg.ResponseBody, arg.ContentType).
		Scan(&row.IdempotencyKey, &row.RequestHash, &row.Method, &row.Path, &row.InProgress,
			&row.ResponseStatus, &row.ResponseBody, &row.ContentType, &row.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return IdempotencyKeyRow{}, domain.ErrNotFound
		}
		return IdempotencyKeyRow{}, fmt.Errorf("finalize idempotency key: %w", err)
	}
	return row, nil
}
