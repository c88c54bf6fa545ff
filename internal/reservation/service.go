package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/rfl-designer/e-tupan-sub007/internal/inventory"
	"github.com/rfl-designer/e-tupan-sub007/pkg/db"
	"github.com/rfl-designer/e-tupan-sub007/pkg/db/models"
	"github.com/rfl-designer/e-tupan-sub007/pkg/enums"
	pkgerrors "github.com/rfl-designer/e-tupan-sub007/pkg/errors"
)

const (
	lockRetryAttempts = 2
	lockRetryBase     = 50 * time.Millisecond
)

// Service manages time-bounded holds on available stock. Holds never mutate
// the on-hand counter; they count against availability until converted,
// released, or reclaimed by the expiry sweep.
type Service interface {
	Reserve(ctx context.Context, ref models.StockableRef, quantity int, cartID uuid.UUID, ttl time.Duration) (*models.StockReservation, error)
	Release(ctx context.Context, reservationID uuid.UUID) error
	Convert(ctx context.Context, reservationID uuid.UUID) error
	ReleaseAllForCart(ctx context.Context, cartID uuid.UUID) (int, error)
	ReleaseExpired(ctx context.Context, batchSize int) (int, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo       Repository
	tx         txRunner
	now        func() time.Time
	defaultTTL time.Duration
}

// ServiceParams configure the reservation service.
type ServiceParams struct {
	Repo Repository
	Tx   txRunner

	// DefaultTTL applies when Reserve is called with a non-positive ttl. A
	// negative value disables expiry for those holds.
	DefaultTTL time.Duration
}

// NewService wires the reservation service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("reservation repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	return &service{
		repo:       params.Repo,
		tx:         params.Tx,
		now:        time.Now,
		defaultTTL: params.DefaultTTL,
	}, nil
}

// Reserve checks availability and inserts the hold while the stock item row
// stays locked, so two racing reserves for the last unit serialize and only
// one passes the check.
func (s *service) Reserve(ctx context.Context, ref models.StockableRef, quantity int, cartID uuid.UUID, ttl time.Duration) (*models.StockReservation, error) {
	if err := ref.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid stockable ref")
	}
	if quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if cartID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart id is required")
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	var reservation *models.StockReservation
	err := withLockRetry(ctx, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			now := s.now().UTC()
			invRepo := inventory.NewRepository(tx)

			item, err := invRepo.FindItemForUpdate(ctx, ref)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "stock item not found")
				}
				return fmt.Errorf("load stock item: %w", err)
			}

			if item.ManagesStock && !item.AllowsBackorder {
				reserved, err := invRepo.ActiveReservedQty(ctx, ref, now)
				if err != nil {
					return fmt.Errorf("sum active reservations: %w", err)
				}
				available := item.OnHandQty - reserved
				if available < 0 {
					available = 0
				}
				if quantity > available {
					return inventory.NewInsufficientStock(quantity, available)
				}
			}

			hold := &models.StockReservation{
				ID:            uuid.New(),
				StockableType: ref.Type,
				StockableID:   ref.ID,
				Quantity:      quantity,
				CartID:        cartID,
				CreatedAt:     now,
			}
			if ttl > 0 {
				expiresAt := now.Add(ttl)
				hold.ExpiresAt = &expiresAt
			}
			if err := s.repo.WithTx(tx).Create(ctx, hold); err != nil {
				return fmt.Errorf("create reservation: %w", err)
			}

			if _, err := inventory.RecordMovementInTx(ctx, tx, now, reservationMarker(enums.StockMovementTypeReservation, hold)); err != nil {
				return fmt.Errorf("record reservation movement: %w", err)
			}

			reservation = hold
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return reservation, nil
}

// Release frees a hold. Unknown ids and already-converted holds are no-ops so
// callers can retry safely.
func (s *service) Release(ctx context.Context, reservationID uuid.UUID) error {
	_, err := s.releaseOne(ctx, reservationID)
	return err
}

func (s *service) releaseOne(ctx context.Context, reservationID uuid.UUID) (bool, error) {
	released := false
	err := withLockRetry(ctx, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			hold, err := repo.FindByIDForUpdate(ctx, reservationID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return nil
				}
				return fmt.Errorf("load reservation: %w", err)
			}
			if hold.ConvertedAt != nil {
				return nil
			}

			now := s.now().UTC()
			if _, err := inventory.RecordMovementInTx(ctx, tx, now, reservationMarker(enums.StockMovementTypeReservationRelease, hold)); err != nil {
				// The stockable vanished: drop the orphaned hold without a
				// ledger write, there is nothing left to audit against.
				if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
					return fmt.Errorf("record release movement: %w", err)
				}
			}
			if err := repo.Delete(ctx, hold.ID); err != nil {
				return fmt.Errorf("delete reservation: %w", err)
			}
			released = true
			return nil
		})
	})
	return released, err
}

// Convert stamps the hold as consumed by checkout. The row stays for audit
// and order linkage; the paired sale movement is recorded by the checkout
// workflow through the stock ledger.
func (s *service) Convert(ctx context.Context, reservationID uuid.UUID) error {
	return withLockRetry(ctx, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			hold, err := repo.FindByIDForUpdate(ctx, reservationID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "reservation not found")
				}
				return fmt.Errorf("load reservation: %w", err)
			}
			if hold.ConvertedAt != nil {
				return nil
			}
			return repo.MarkConverted(ctx, hold.ID, s.now().UTC())
		})
	})
}

// ReleaseAllForCart frees every active hold a cart owns, returning how many
// were actually released. Used by cart-abandonment cleanup.
func (s *service) ReleaseAllForCart(ctx context.Context, cartID uuid.UUID) (int, error) {
	if cartID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "cart id is required")
	}
	holds, err := s.repo.ListActiveByCart(ctx, cartID, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("list cart reservations: %w", err)
	}
	count := 0
	for _, hold := range holds {
		released, err := s.releaseOne(ctx, hold.ID)
		if err != nil {
			return count, err
		}
		if released {
			count++
		}
	}
	return count, nil
}

// ReleaseExpired reclaims lapsed holds in batches until a short batch signals
// exhaustion. A failing row is skipped so one bad hold cannot stall the
// sweep; accumulated row errors surface to the caller alongside the count.
func (s *service) ReleaseExpired(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "batch size must be positive")
	}

	total := 0
	var rowErrs error
	for {
		expired, err := s.repo.ListExpired(ctx, s.now().UTC(), batchSize)
		if err != nil {
			return total, fmt.Errorf("list expired reservations: %w", err)
		}

		releasedThisBatch := 0
		for _, hold := range expired {
			released, err := s.releaseOne(ctx, hold.ID)
			if err != nil {
				rowErrs = multierr.Append(rowErrs, fmt.Errorf("release %s: %w", hold.ID, err))
				continue
			}
			if released {
				releasedThisBatch++
			}
		}
		total += releasedThisBatch

		if len(expired) < batchSize {
			break
		}
		// No progress on a full batch means the same rows would be refetched
		// forever; bail out with whatever errors accumulated.
		if releasedThisBatch == 0 {
			break
		}
	}
	return total, rowErrs
}

func reservationMarker(movementType enums.StockMovementType, hold *models.StockReservation) inventory.RecordMovementInput {
	refType := enums.StockReferenceTypeReservation
	refID := hold.ID
	return inventory.RecordMovementInput{
		Stockable:     hold.Stockable(),
		Type:          movementType,
		ReferenceType: &refType,
		ReferenceID:   &refID,
	}
}

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
