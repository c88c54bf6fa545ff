package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/rfl-designer/e-tupan-sub007/pkg/enums"
)

// StockMovement records an immutable stock event. Stock-affecting types carry
// the delta applied to the on-hand counter; reservation markers record a zero
// delta and leave the counter untouched. Rows are never updated or deleted.
type StockMovement struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StockableType enums.StockableType       `gorm:"column:stockable_type;type:stockable_type_enum;not null"`
	StockableID   uuid.UUID                 `gorm:"column:stockable_id;type:uuid;not null"`
	Type          enums.StockMovementType   `gorm:"column:type;type:stock_movement_type_enum;not null"`
	QuantityDelta int                       `gorm:"column:quantity_delta;not null"`
	QuantityBefore int                      `gorm:"column:quantity_before;not null"`
	QuantityAfter int                       `gorm:"column:quantity_after;not null"`
	ReferenceType *enums.StockReferenceType `gorm:"column:reference_type;type:stock_reference_type_enum"`
	ReferenceID   *uuid.UUID                `gorm:"column:reference_id;type:uuid"`
	Notes         *string                   `gorm:"column:notes"`
	CreatedBy     *uuid.UUID                `gorm:"column:created_by;type:uuid"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime"`
}

// Stockable returns the movement's polymorphic key.
func (m StockMovement) Stockable() StockableRef {
	return StockableRef{Type: m.StockableType, ID: m.StockableID}
}
