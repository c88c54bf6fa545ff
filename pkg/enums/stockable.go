package enums

import "fmt"

// StockableType identifies which catalog entity a stock row belongs to.
type StockableType string

const (
	StockableTypeProduct        StockableType = "product"
	StockableTypeProductVariant StockableType = "product_variant"
)

var validStockableTypes = []StockableType{
	StockableTypeProduct,
	StockableTypeProductVariant,
}

// String implements fmt.Stringer.
func (t StockableType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known StockableType.
func (t StockableType) IsValid() bool {
	for _, candidate := range validStockableTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseStockableType converts raw input into a StockableType.
func ParseStockableType(value string) (StockableType, error) {
	for _, candidate := range validStockableTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stockable type %q", value)
}

// StockReferenceType names the entity that caused a stock movement.
type StockReferenceType string

const (
	StockReferenceTypeOrder       StockReferenceType = "order"
	StockReferenceTypeCart        StockReferenceType = "cart"
	StockReferenceTypeReservation StockReferenceType = "reservation"
)

var validStockReferenceTypes = []StockReferenceType{
	StockReferenceTypeOrder,
	StockReferenceTypeCart,
	StockReferenceTypeReservation,
}

// IsValid reports whether the value is a known StockReferenceType.
func (t StockReferenceType) IsValid() bool {
	for _, candidate := range validStockReferenceTypes {
		if candidate == t {
			return true
		}
	}
	return false
}
