package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/rfl-designer/e-tupan-sub007/pkg/db"
	"github.com/rfl-designer/e-tupan-sub007/pkg/db/models"
	"github.com/rfl-designer/e-tupan-sub007/pkg/enums"
	pkgerrors "github.com/rfl-designer/e-tupan-sub007/pkg/errors"
)

const (
	lockRetryAttempts = 2
	lockRetryBase     = 50 * time.Millisecond
)

// Service is the stock ledger plus the availability calculations layered on
// top of it. It is the only writer of the on-hand counter; every write pairs
// the counter update with a movement row in one transaction.
type Service interface {
	RecordMovement(ctx context.Context, input RecordMovementInput) (*models.StockMovement, error)
	Adjust(ctx context.Context, ref models.StockableRef, quantity int, movementType enums.StockMovementType, notes string, actor *uuid.UUID) (*models.StockMovement, error)
	Available(ctx context.Context, ref models.StockableRef) (int, error)
	IsAvailable(ctx context.Context, ref models.StockableRef, quantity int) (bool, error)
	ValidateBatch(ctx context.Context, requests []BatchRequest) (*BatchValidation, error)
	LowStock(ctx context.Context, ref models.StockableRef) (bool, error)
	Movements(ctx context.Context, ref models.StockableRef, limit int) ([]models.StockMovement, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// RecordMovementInput captures the immutable data a stock movement requires.
type RecordMovementInput struct {
	Stockable     models.StockableRef
	Type          enums.StockMovementType
	QuantityDelta int
	ReferenceType *enums.StockReferenceType
	ReferenceID   *uuid.UUID
	Notes         *string
	CreatedBy     *uuid.UUID
}

// BatchRequest asks whether a quantity of one stockable can be promised.
type BatchRequest struct {
	Stockable models.StockableRef
	Quantity  int
}

// BatchLine reports availability for a single request in a batch.
type BatchLine struct {
	Stockable   models.StockableRef
	Requested   int
	Available   int
	Shortage    int
	Fulfillable int
	CanFulfill  bool
	CanPartial  bool
}

// BatchValidation aggregates per-line availability; Valid means every line is
// fully coverable.
type BatchValidation struct {
	Valid bool
	Lines []BatchLine
}

type service struct {
	repo              Repository
	tx                txRunner
	now               func() time.Time
	lowStockThreshold int
}

// ServiceParams configure the stock service.
type ServiceParams struct {
	Repo Repository
	Tx   txRunner

	// DefaultLowStockThreshold applies when an item carries no threshold of
	// its own.
	DefaultLowStockThreshold int
}

// NewService wires the stock ledger service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("stock repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	return &service{
		repo:              params.Repo,
		tx:                params.Tx,
		now:               time.Now,
		lowStockThreshold: params.DefaultLowStockThreshold,
	}, nil
}

func (s *service) RecordMovement(ctx context.Context, input RecordMovementInput) (*models.StockMovement, error) {
	if err := validateMovementInput(input); err != nil {
		return nil, err
	}

	var movement *models.StockMovement
	err := withLockRetry(ctx, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			created, err := RecordMovementInTx(ctx, tx, s.now().UTC(), input)
			if err != nil {
				return err
			}
			movement = created
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return movement, nil
}

// RecordMovementInTx appends a movement inside an existing transaction,
// locking the counter row so concurrent writers for the same stockable
// serialize. Callers that already hold the row lock re-acquire it for free.
func RecordMovementInTx(ctx context.Context, tx *gorm.DB, at time.Time, input RecordMovementInput) (*models.StockMovement, error) {
	if err := validateMovementInput(input); err != nil {
		return nil, err
	}

	repo := NewRepository(tx)
	item, err := repo.FindItemForUpdate(ctx, input.Stockable)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("load stock item: %w", err)
		}
		if !input.Type.AffectsStock() || input.QuantityDelta < 0 {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "stock item not found")
		}
		// First inbound movement for an untracked item seeds the counter row.
		item = &models.StockItem{
			StockableType: input.Stockable.Type,
			StockableID:   input.Stockable.ID,
			ManagesStock:  true,
		}
		if err := repo.CreateItem(ctx, item); err != nil {
			return nil, fmt.Errorf("create stock item: %w", err)
		}
	}

	before := item.OnHandQty
	after := before
	if input.Type.AffectsStock() {
		after = before + input.QuantityDelta
		if after < 0 && input.QuantityDelta < 0 && !item.AllowsBackorder {
			return nil, NewInsufficientStock(-input.QuantityDelta, before)
		}
		if err := repo.UpdateItemQuantity(ctx, input.Stockable, after); err != nil {
			return nil, fmt.Errorf("update on-hand quantity: %w", err)
		}
	}

	movement := &models.StockMovement{
		ID:             uuid.New(),
		StockableType:  input.Stockable.Type,
		StockableID:    input.Stockable.ID,
		Type:           input.Type,
		QuantityDelta:  input.QuantityDelta,
		QuantityBefore: before,
		QuantityAfter:  after,
		ReferenceType:  input.ReferenceType,
		ReferenceID:    input.ReferenceID,
		Notes:          input.Notes,
		CreatedBy:      input.CreatedBy,
		CreatedAt:      at,
	}
	if err := repo.CreateMovement(ctx, movement); err != nil {
		return nil, fmt.Errorf("create stock movement: %w", err)
	}
	return movement, nil
}

func (s *service) Adjust(ctx context.Context, ref models.StockableRef, quantity int, movementType enums.StockMovementType, notes string, actor *uuid.UUID) (*models.StockMovement, error) {
	if quantity == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "adjustment quantity cannot be zero")
	}
	delta, err := normalizeDelta(quantity, movementType)
	if err != nil {
		return nil, err
	}

	input := RecordMovementInput{
		Stockable:     ref,
		Type:          movementType,
		QuantityDelta: delta,
		CreatedBy:     actor,
	}
	if notes != "" {
		input.Notes = &notes
	}
	return s.RecordMovement(ctx, input)
}

// normalizeDelta enforces the sign convention each movement type carries.
func normalizeDelta(quantity int, movementType enums.StockMovementType) (int, error) {
	magnitude := quantity
	if magnitude < 0 {
		magnitude = -magnitude
	}
	switch movementType {
	case enums.StockMovementTypeManualEntry, enums.StockMovementTypeRefund:
		return magnitude, nil
	case enums.StockMovementTypeManualExit, enums.StockMovementTypeSale:
		return -magnitude, nil
	case enums.StockMovementTypeAdjustment:
		return quantity, nil
	default:
		return 0, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("movement type %q cannot be issued as an adjustment", movementType))
	}
}

func (s *service) Available(ctx context.Context, ref models.StockableRef) (int, error) {
	if err := ref.Validate(); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid stockable ref")
	}
	item, err := s.repo.FindItem(ctx, ref)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "stock item not found")
		}
		return 0, fmt.Errorf("load stock item: %w", err)
	}
	return s.availableForItem(ctx, item)
}

func (s *service) availableForItem(ctx context.Context, item *models.StockItem) (int, error) {
	reserved, err := s.repo.ActiveReservedQty(ctx, item.Ref(), s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("sum active reservations: %w", err)
	}
	available := item.OnHandQty - reserved
	if available < 0 {
		available = 0
	}
	return available, nil
}

func (s *service) IsAvailable(ctx context.Context, ref models.StockableRef, quantity int) (bool, error) {
	if quantity <= 0 {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	item, err := s.repo.FindItem(ctx, ref)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "stock item not found")
		}
		return false, fmt.Errorf("load stock item: %w", err)
	}
	if !item.ManagesStock || item.AllowsBackorder {
		return true, nil
	}
	available, err := s.availableForItem(ctx, item)
	if err != nil {
		return false, err
	}
	return quantity <= available, nil
}

// ValidateBatch classifies each request independently; there is no cross-item
// interaction and no locking beyond the plain reads.
func (s *service) ValidateBatch(ctx context.Context, requests []BatchRequest) (*BatchValidation, error) {
	result := &BatchValidation{Valid: true, Lines: make([]BatchLine, 0, len(requests))}
	for _, req := range requests {
		if req.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}
		line := BatchLine{Stockable: req.Stockable, Requested: req.Quantity}

		item, err := s.repo.FindItem(ctx, req.Stockable)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("load stock item: %w", err)
			}
			// Unknown items cannot be promised; the line reads as fully short.
			line.Shortage = req.Quantity
			result.Valid = false
			result.Lines = append(result.Lines, line)
			continue
		}

		if !item.ManagesStock || item.AllowsBackorder {
			line.Available = req.Quantity
			line.Fulfillable = req.Quantity
			line.CanFulfill = true
			result.Lines = append(result.Lines, line)
			continue
		}

		available, err := s.availableForItem(ctx, item)
		if err != nil {
			return nil, err
		}
		line.Available = available
		line.Fulfillable = min(req.Quantity, available)
		line.Shortage = max(0, req.Quantity-available)
		line.CanFulfill = req.Quantity <= available
		line.CanPartial = available > 0 && available < req.Quantity
		if !line.CanFulfill {
			result.Valid = false
		}
		result.Lines = append(result.Lines, line)
	}
	return result, nil
}

func (s *service) LowStock(ctx context.Context, ref models.StockableRef) (bool, error) {
	item, err := s.repo.FindItem(ctx, ref)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "stock item not found")
		}
		return false, fmt.Errorf("load stock item: %w", err)
	}
	if !item.ManagesStock {
		return false, nil
	}
	threshold := item.LowStockThreshold
	if threshold == 0 {
		threshold = s.lowStockThreshold
	}
	return item.OnHandQty <= threshold, nil
}

func (s *service) Movements(ctx context.Context, ref models.StockableRef, limit int) ([]models.StockMovement, error) {
	if err := ref.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid stockable ref")
	}
	return s.repo.ListMovements(ctx, ref, limit)
}

func validateMovementInput(input RecordMovementInput) error {
	if err := input.Stockable.Validate(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid stockable ref")
	}
	if !input.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid stock movement type %q", input.Type))
	}
	if input.Type.AffectsStock() && input.QuantityDelta == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity delta cannot be zero")
	}
	if !input.Type.AffectsStock() && input.QuantityDelta != 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "reservation markers must carry a zero delta")
	}
	if input.ReferenceType != nil && !input.ReferenceType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid reference type %q", *input.ReferenceType))
	}
	return nil
}

// withLockRetry retries transient lock/serialization contention once or twice
// with a short backoff; domain errors pass through untouched.
func withLockRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(lockRetryAttempts, retry.NewExponential(lockRetryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if db.IsLockContention(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}
