package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rfl-designer/e-tupan-sub007/pkg/enums"
)

// StockableRef is the polymorphic key identifying a stockable catalog entity.
type StockableRef struct {
	Type enums.StockableType
	ID   uuid.UUID
}

// Validate checks both halves of the polymorphic key.
func (r StockableRef) Validate() error {
	if !r.Type.IsValid() {
		return fmt.Errorf("invalid stockable type %q", r.Type)
	}
	if r.ID == uuid.Nil {
		return fmt.Errorf("stockable id is required")
	}
	return nil
}

// String renders the ref as type:id for logs.
func (r StockableRef) String() string {
	return fmt.Sprintf("%s:%s", r.Type, r.ID)
}

// StockItem caches the on-hand counter per stockable entity. The movement log
// is the source of truth; this row is the projection every write keeps in sync.
type StockItem struct {
	StockableType     enums.StockableType `gorm:"column:stockable_type;type:stockable_type_enum;primaryKey"`
	StockableID       uuid.UUID           `gorm:"column:stockable_id;type:uuid;primaryKey"`
	OnHandQty         int                 `gorm:"column:on_hand_qty;not null;default:0"`
	LowStockThreshold int                 `gorm:"column:low_stock_threshold;not null;default:0"`
	ManagesStock      bool                `gorm:"column:manages_stock;not null;default:true"`
	AllowsBackorder   bool                `gorm:"column:allows_backorder;not null;default:false"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// Ref returns the item's polymorphic key.
func (i StockItem) Ref() StockableRef {
	return StockableRef{Type: i.StockableType, ID: i.StockableID}
}
