package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/rfl-designer/e-tupan-sub007/pkg/enums"
)

// StockReservation is a time-bounded hold on available stock owned by a cart.
// It never mutates the on-hand counter; availability math subtracts active
// holds at read time.
type StockReservation struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StockableType enums.StockableType `gorm:"column:stockable_type;type:stockable_type_enum;not null"`
	StockableID   uuid.UUID           `gorm:"column:stockable_id;type:uuid;not null"`
	Quantity      int                 `gorm:"column:quantity;not null"`
	CartID        uuid.UUID           `gorm:"column:cart_id;type:uuid;not null"`
	ExpiresAt     *time.Time          `gorm:"column:expires_at"`
	ConvertedAt   *time.Time          `gorm:"column:converted_at"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
}

// Stockable returns the reservation's polymorphic key.
func (r StockReservation) Stockable() StockableRef {
	return StockableRef{Type: r.StockableType, ID: r.StockableID}
}

// IsActive reports whether the hold still counts against availability at now.
func (r StockReservation) IsActive(now time.Time) bool {
	if r.ConvertedAt != nil {
		return false
	}
	return r.ExpiresAt == nil || r.ExpiresAt.After(now)
}

// IsExpired reports whether the hold lapsed without converting.
func (r StockReservation) IsExpired(now time.Time) bool {
	return r.ConvertedAt == nil && r.ExpiresAt != nil && !r.ExpiresAt.After(now)
}

// IsConverted reports whether the owning cart checked out.
func (r StockReservation) IsConverted() bool {
	return r.ConvertedAt != nil
}
