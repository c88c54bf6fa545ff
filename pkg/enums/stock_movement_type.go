package enums

import "fmt"

// StockMovementType maps to the stock_movement_type_enum enum in Postgres.
type StockMovementType string

const (
	StockMovementTypeManualEntry        StockMovementType = "manual_entry"
	StockMovementTypeManualExit         StockMovementType = "manual_exit"
	StockMovementTypeAdjustment         StockMovementType = "adjustment"
	StockMovementTypeSale               StockMovementType = "sale"
	StockMovementTypeRefund             StockMovementType = "refund"
	StockMovementTypeReservation        StockMovementType = "reservation"
	StockMovementTypeReservationRelease StockMovementType = "reservation_release"
)

var validStockMovementTypes = []StockMovementType{
	StockMovementTypeManualEntry,
	StockMovementTypeManualExit,
	StockMovementTypeAdjustment,
	StockMovementTypeSale,
	StockMovementTypeRefund,
	StockMovementTypeReservation,
	StockMovementTypeReservationRelease,
}

// String implements fmt.Stringer.
func (t StockMovementType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known StockMovementType.
func (t StockMovementType) IsValid() bool {
	for _, candidate := range validStockMovementTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// AffectsStock reports whether movements of this type change the on-hand
// counter. Reservation markers are audit-only.
func (t StockMovementType) AffectsStock() bool {
	switch t {
	case StockMovementTypeReservation, StockMovementTypeReservationRelease:
		return false
	default:
		return true
	}
}

// ParseStockMovementType converts raw input into a StockMovementType.
func ParseStockMovementType(value string) (StockMovementType, error) {
	for _, candidate := range validStockMovementTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stock movement type %q", value)
}
