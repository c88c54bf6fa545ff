package inventory

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rfl-designer/e-tupan-sub007/pkg/db/models"
)

// Repository defines persistence operations for stock items, movements and
// the reserved-quantity aggregate the availability math needs.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindItem(ctx context.Context, ref models.StockableRef) (*models.StockItem, error)
	FindItemForUpdate(ctx context.Context, ref models.StockableRef) (*models.StockItem, error)
	CreateItem(ctx context.Context, item *models.StockItem) error
	UpdateItemQuantity(ctx context.Context, ref models.StockableRef, qty int) error
	CreateMovement(ctx context.Context, movement *models.StockMovement) error
	ListMovements(ctx context.Context, ref models.StockableRef, limit int) ([]models.StockMovement, error)
	ActiveReservedQty(ctx context.Context, ref models.StockableRef, now time.Time) (int, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a stock repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindItem(ctx context.Context, ref models.StockableRef) (*models.StockItem, error) {
	var item models.StockItem
	err := r.db.WithContext(ctx).
		Where("stockable_type = ? AND stockable_id = ?", ref.Type, ref.ID).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// FindItemForUpdate locks the counter row for the duration of the surrounding
// transaction. sqlite (used in tests) rejects FOR UPDATE and serializes
// writers on its own, so the clause is applied on postgres only.
func (r *repository) FindItemForUpdate(ctx context.Context, ref models.StockableRef) (*models.StockItem, error) {
	query := r.db.WithContext(ctx)
	if r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var item models.StockItem
	err := query.
		Where("stockable_type = ? AND stockable_id = ?", ref.Type, ref.ID).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) CreateItem(ctx context.Context, item *models.StockItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *repository) UpdateItemQuantity(ctx context.Context, ref models.StockableRef, qty int) error {
	return r.db.WithContext(ctx).
		Model(&models.StockItem{}).
		Where("stockable_type = ? AND stockable_id = ?", ref.Type, ref.ID).
		Update("on_hand_qty", qty).Error
}

func (r *repository) CreateMovement(ctx context.Context, movement *models.StockMovement) error {
	return r.db.WithContext(ctx).Create(movement).Error
}

func (r *repository) ListMovements(ctx context.Context, ref models.StockableRef, limit int) ([]models.StockMovement, error) {
	query := r.db.WithContext(ctx).
		Where("stockable_type = ? AND stockable_id = ?", ref.Type, ref.ID).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var movements []models.StockMovement
	if err := query.Find(&movements).Error; err != nil {
		return nil, err
	}
	return movements, nil
}

func (r *repository) ActiveReservedQty(ctx context.Context, ref models.StockableRef, now time.Time) (int, error) {
	var total int
	err := r.db.WithContext(ctx).
		Model(&models.StockReservation{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("stockable_type = ? AND stockable_id = ?", ref.Type, ref.ID).
		Where("converted_at IS NULL").
		Where("expires_at IS NULL OR expires_at > ?", now).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}
