package reservation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rfl-designer/e-tupan-sub007/pkg/db/models"
)

// Repository defines persistence operations for stock reservations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, reservation *models.StockReservation) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.StockReservation, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.StockReservation, error)
	Delete(ctx context.Context, id uuid.UUID) error
	MarkConverted(ctx context.Context, id uuid.UUID, at time.Time) error
	ListActiveByCart(ctx context.Context, cartID uuid.UUID, now time.Time) ([]models.StockReservation, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]models.StockReservation, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a reservation repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, reservation *models.StockReservation) error {
	return r.db.WithContext(ctx).Create(reservation).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.StockReservation, error) {
	var reservation models.StockReservation
	if err := r.db.WithContext(ctx).First(&reservation, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &reservation, nil
}

// FindByIDForUpdate locks the reservation row; postgres only, same reasoning
// as the stock item lock.
func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.StockReservation, error) {
	query := r.db.WithContext(ctx)
	if r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var reservation models.StockReservation
	if err := query.First(&reservation, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &reservation, nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.StockReservation{}, "id = ?", id).Error
}

func (r *repository) MarkConverted(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.StockReservation{}).
		Where("id = ?", id).
		Update("converted_at", at).Error
}

func (r *repository) ListActiveByCart(ctx context.Context, cartID uuid.UUID, now time.Time) ([]models.StockReservation, error) {
	var reservations []models.StockReservation
	err := r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Where("converted_at IS NULL").
		Where("expires_at IS NULL OR expires_at > ?", now).
		Order("created_at ASC").
		Find(&reservations).Error
	if err != nil {
		return nil, err
	}
	return reservations, nil
}

func (r *repository) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.StockReservation, error) {
	var reservations []models.StockReservation
	err := r.db.WithContext(ctx).
		Where("converted_at IS NULL").
		Where("expires_at IS NOT NULL AND expires_at <= ?", now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&reservations).Error
	if err != nil {
		return nil, err
	}
	return reservations, nil
}
