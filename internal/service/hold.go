package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Hoang7604119/mmostore-sub003/internal/domain"
	"github.com/Hoang7604119/mmostore-sub003/internal/models"
	"github.com/Hoang7604119/mmostore-sub003/internal/notify"
	"github.com/Hoang7604119/mmostore-sub003/internal/observability"
	"github.com/Hoang7604119/mmostore-sub003/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HoldService manages the escrow ledger: creating holds against seller
// proceeds, maturing them into spendable balance, and cancelling them when a
// refund or dispute claws the proceeds back.
type HoldService struct {
	store        QueryStore
	events       notify.Publisher
	audit        *AuditService
	holdDuration time.Duration
	now          func() time.Time
}

// NewHoldService creates a hold service with the given default escrow
// window.
func NewHoldService(store QueryStore, events notify.Publisher, holdDurationDays int) *HoldService {
	if holdDurationDays <= 0 {
		holdDurationDays = 3
	}
	return &HoldService{
		store:        store,
		events:       events,
		audit:        NewAuditService(store),
		holdDuration: time.Duration(holdDurationDays) * 24 * time.Hour,
		now:          time.Now,
	}
}

// CreateHoldRequest holds the parameters for placing a new escrow hold.
type CreateHoldRequest struct {
	OwnerID uuid.UUID
	Amount  int64
	Reason  string
	OrderID *uuid.UUID
	Note    string
}

// Create places a hold and increments the owner's pending balance as one
// atomic unit.
func (s *HoldService) Create(ctx context.Context, req CreateHoldRequest) (models.Hold, error) {
	var hold models.Hold
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		created, err := s.createInTx(ctx, q, req)
		if err != nil {
			return err
		}
		hold = created
		return nil
	})
	if err != nil {
		return models.Hold{}, err
	}

	s.publishCreated(ctx, hold)
	return hold, nil
}

// createInTx validates and inserts a hold plus its pending-balance increment
// inside the caller's transaction. Order settlement shares this path so the
// buyer debit and the seller hold commit together.
func (s *HoldService) createInTx(ctx context.Context, q repository.Querier, req CreateHoldRequest) (models.Hold, error) {
	if req.Amount <= 0 {
		return models.Hold{}, fmt.Errorf("hold amount %d: %w", req.Amount, domain.ErrInvalidAmount)
	}
	if !domain.ValidHoldReason(req.Reason) {
		return models.Hold{}, fmt.Errorf("hold reason %q: %w", req.Reason, domain.ErrInvalidAmount)
	}

	if err := q.EnsureAccount(ctx, req.OwnerID); err != nil {
		return models.Hold{}, err
	}

	hold, err := q.CreateHold(ctx, repository.CreateHoldParams{
		ID:               uuid.New(),
		OwnerID:          req.OwnerID,
		Amount:           req.Amount,
		Reason:           req.Reason,
		ScheduledRelease: s.now().Add(s.holdDuration),
		OrderID:          req.OrderID,
		Note:             textParam(req.Note),
	})
	if err != nil {
		return models.Hold{}, err
	}

	if err := q.ApplyBalanceDelta(ctx, repository.ApplyBalanceDeltaParams{
		AccountID:    req.OwnerID,
		PendingDelta: req.Amount,
	}); err != nil {
		return models.Hold{}, err
	}

	if err := s.audit.Write(ctx, q, "hold", hold.ID, nil, "create", "", domain.HoldStatusOpen, nil); err != nil {
		return models.Hold{}, err
	}
	return hold, nil
}

func (s *HoldService) publishCreated(ctx context.Context, hold models.Hold) {
	s.events.Publish(ctx, notify.HoldCreated{
		HoldID:           hold.ID,
		AccountID:        hold.OwnerID,
		Amount:           hold.Amount,
		Reason:           hold.Reason,
		ScheduledRelease: hold.ScheduledRelease,
		OrderID:          hold.OrderID,
	})
}

// Release matures an open hold: the amount moves from pending to available
// and the hold becomes terminal. Releasing an already-released hold is a
// no-op returning the prior state, so retries and overlapping sweeps are
// harmless. Releasing a cancelled hold is an error.
func (s *HoldService) Release(ctx context.Context, holdID uuid.UUID, trigger string) (models.Hold, error) {
	var (
		hold   models.Hold
		replay bool
	)
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		current, err := q.GetHoldForUpdate(ctx, holdID)
		if err != nil {
			return err
		}
		switch current.Status {
		case domain.HoldStatusReleased:
			hold, replay = current, true
			return nil
		case domain.HoldStatusCancelled:
			return fmt.Errorf("hold %s is cancelled: %w", holdID, domain.ErrAlreadyTerminal)
		}

		releasedAt := s.now()
		rows, err := q.FinalizeHold(ctx, repository.FinalizeHoldParams{
			ID:         holdID,
			Status:     domain.HoldStatusReleased,
			ReleasedAt: releasedAt,
		})
		if err != nil {
			return err
		}
		if err := requireExactlyOne(rows, "release hold"); err != nil {
			return err
		}

		if err := q.ApplyBalanceDelta(ctx, repository.ApplyBalanceDeltaParams{
			AccountID:      current.OwnerID,
			AvailableDelta: current.Amount,
			PendingDelta:   -current.Amount,
		}); err != nil {
			return err
		}

		if err := s.audit.Write(ctx, q, "hold", holdID, nil, "release", domain.HoldStatusOpen, domain.HoldStatusReleased, nil); err != nil {
			return err
		}

		current.Status = domain.HoldStatusReleased
		current.ReleasedAt = &releasedAt
		hold = current
		return nil
	})
	if err != nil {
		return models.Hold{}, err
	}

	if !replay {
		observability.IncrementHoldFinalized(domain.HoldStatusReleased, trigger)
		s.events.Publish(ctx, notify.HoldReleased{
			HoldID:    hold.ID,
			AccountID: hold.OwnerID,
			Amount:    hold.Amount,
		})
	}
	return hold, nil
}

// Cancel voids an open hold: pending is decremented but nothing reaches
// available. Used when a refund or dispute claws back held proceeds.
func (s *HoldService) Cancel(ctx context.Context, holdID uuid.UUID, note string, actorID *uuid.UUID) (models.Hold, error) {
	var hold models.Hold
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		current, err := q.GetHoldForUpdate(ctx, holdID)
		if err != nil {
			return err
		}
		if current.Status != domain.HoldStatusOpen {
			return fmt.Errorf("hold %s is %s: %w", holdID, current.Status, domain.ErrAlreadyTerminal)
		}

		releasedAt := s.now()
		rows, err := q.FinalizeHold(ctx, repository.FinalizeHoldParams{
			ID:         holdID,
			Status:     domain.HoldStatusCancelled,
			ReleasedAt: releasedAt,
			Note:       textParam(note),
		})
		if err != nil {
			return err
		}
		if err := requireExactlyOne(rows, "cancel hold"); err != nil {
			return err
		}

		if err := q.ApplyBalanceDelta(ctx, repository.ApplyBalanceDeltaParams{
			AccountID:    current.OwnerID,
			PendingDelta: -current.Amount,
		}); err != nil {
			return err
		}

		if err := s.audit.Write(ctx, q, "hold", holdID, actorID, "cancel", domain.HoldStatusOpen, domain.HoldStatusCancelled, nil); err != nil {
			return err
		}

		current.Status = domain.HoldStatusCancelled
		current.ReleasedAt = &releasedAt
		if note != "" {
			current.Note = textParam(note)
		}
		hold = current
		return nil
	})
	if err != nil {
		return models.Hold{}, err
	}

	observability.IncrementHoldFinalized(domain.HoldStatusCancelled, "manual")
	s.events.Publish(ctx, notify.HoldCancelled{
		HoldID:    hold.ID,
		AccountID: hold.OwnerID,
		Amount:    hold.Amount,
		Note:      note,
	})
	return hold, nil
}

// SweepDue releases every hold whose scheduled release has passed. Each hold
// is released in its own transaction; a failure leaves that hold open for
// the next sweep and never aborts the batch. Returns released and attempted
// counts.
func (s *HoldService) SweepDue(ctx context.Context, batchSize int32) (released, attempted int, err error) {
	due, err := s.store.Queries().ListDueHolds(ctx, s.now(), batchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("list due holds: %w", err)
	}

	for _, hold := range due {
		attempted++
		if _, releaseErr := s.Release(ctx, hold.ID, "sweep"); releaseErr != nil {
			if errors.Is(releaseErr, domain.ErrAlreadyTerminal) {
				continue
			}
			zap.L().Error("sweep release failed",
				zap.String("hold_id", hold.ID.String()),
				zap.Error(releaseErr),
			)
			continue
		}
		released++
	}
	return released, attempted, nil
}

// Get returns a single hold.
func (s *HoldService) Get(ctx context.Context, holdID uuid.UUID) (models.Hold, error) {
	return s.store.Queries().GetHold(ctx, holdID)
}

// ListByOwner returns the owner's holds, newest first.
func (s *HoldService) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int32) ([]models.Hold, error) {
	return s.store.Queries().ListHoldsByOwner(ctx, ownerID, limit, offset)
}

// ListByStatus returns holds filtered by status, newest first.
func (s *HoldService) ListByStatus(ctx context.Context, status string, limit, offset int32) ([]models.Hold, error) {
	return s.store.Queries().ListHoldsByStatus(ctx, status, limit, offset)
}

// MaturityStats is the operational view over the hold backlog.
type MaturityStats struct {
	Overdue      int64 `json:"overdue"`
	MaturingSoon int64 `json:"maturing_soon"`
}

// Maturity reports how many open holds are past due and how many mature
// within the lookahead window.
func (s *HoldService) Maturity(ctx context.Context, lookahead time.Duration) (MaturityStats, error) {
	now := s.now()
	queries := s.store.Queries()

	overdue, err := queries.CountOverdueHolds(ctx, now)
	if err != nil {
		return MaturityStats{}, err
	}
	maturing, err := queries.CountHoldsMaturingWithin(ctx, now, now.Add(lookahead))
	if err != nil {
		return MaturityStats{}, err
	}
	return MaturityStats{Overdue: overdue, MaturingSoon: maturing}, nil
}
