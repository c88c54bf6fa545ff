package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/rfl-designer/e-tupan-sub007/pkg/db/models"
	"github.com/rfl-designer/e-tupan-sub007/pkg/enums"
	pkgerrors "github.com/rfl-designer/e-tupan-sub007/pkg/errors"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func setupStockTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:stock_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	for _, ddl := range []string{
		`CREATE TABLE IF NOT EXISTS stock_items (
  stockable_type TEXT NOT NULL,
  stockable_id TEXT NOT NULL,
  on_hand_qty INTEGER NOT NULL DEFAULT 0,
  low_stock_threshold INTEGER NOT NULL DEFAULT 0,
  manages_stock INTEGER NOT NULL DEFAULT 1,
  allows_backorder INTEGER NOT NULL DEFAULT 0,
  updated_at DATETIME,
  PRIMARY KEY (stockable_type, stockable_id)
);`,
		`CREATE TABLE IF NOT EXISTS stock_movements (
  id TEXT PRIMARY KEY,
  stockable_type TEXT NOT NULL,
  stockable_id TEXT NOT NULL,
  type TEXT NOT NULL,
  quantity_delta INTEGER NOT NULL,
  quantity_before INTEGER NOT NULL,
  quantity_after INTEGER NOT NULL,
  reference_type TEXT,
  reference_id TEXT,
  notes TEXT,
  created_by TEXT,
  created_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS stock_reservations (
  id TEXT PRIMARY KEY,
  stockable_type TEXT NOT NULL,
  stockable_id TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  cart_id TEXT NOT NULL,
  expires_at DATETIME,
  converted_at DATETIME,
  created_at DATETIME
);`,
	} {
		if err := db.Exec(ddl).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB) (Service, *service) {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:                     NewRepository(db),
		Tx:                       gormTxRunner{db: db},
		DefaultLowStockThreshold: 5,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, svc.(*service)
}

// tickingClock returns a clock advancing one second per call so created_at
// ordering is deterministic.
func tickingClock(base time.Time) func() time.Time {
	current := base
	return func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}

func seedStockItem(t *testing.T, db *gorm.DB, item models.StockItem) models.StockableRef {
	t.Helper()
	if item.StockableType == "" {
		item.StockableType = enums.StockableTypeProduct
	}
	if item.StockableID == uuid.Nil {
		item.StockableID = uuid.New()
	}
	if err := db.Create(&item).Error; err != nil {
		t.Fatalf("seed stock item: %v", err)
	}
	return item.Ref()
}

func seedReservation(t *testing.T, db *gorm.DB, ref models.StockableRef, qty int, expiresAt, convertedAt *time.Time) {
	t.Helper()
	hold := models.StockReservation{
		ID:            uuid.New(),
		StockableType: ref.Type,
		StockableID:   ref.ID,
		Quantity:      qty,
		CartID:        uuid.New(),
		ExpiresAt:     expiresAt,
		ConvertedAt:   convertedAt,
	}
	if err := db.Create(&hold).Error; err != nil {
		t.Fatalf("seed reservation: %v", err)
	}
}

func loadItem(t *testing.T, db *gorm.DB, ref models.StockableRef) models.StockItem {
	t.Helper()
	var item models.StockItem
	err := db.First(&item, "stockable_type = ? AND stockable_id = ?", ref.Type, ref.ID).Error
	if err != nil {
		t.Fatalf("load item: %v", err)
	}
	return item
}

func TestLedgerChainReplays(t *testing.T) {
	t.Parallel()

	db := setupStockTestDB(t)
	ctx := context.Background()
	svc, impl := newTestService(t, db)
	impl.now = tickingClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	ref := seedStockItem(t, db, models.StockItem{OnHandQty: 0, ManagesStock: true})

	steps := []struct {
		movementType enums.StockMovementType
		quantity     int
	}{
		{enums.StockMovementTypeManualEntry, 10},
		{enums.StockMovementTypeSale, 3},
		{enums.StockMovementTypeRefund, 1},
		{enums.StockMovementTypeAdjustment, -2},
	}
	for _, step := range steps {
		if _, err := svc.Adjust(ctx, ref, step.quantity, step.movementType, "", nil); err != nil {
			t.Fatalf("adjust %s: %v", step.movementType, err)
		}
	}

	movements, err := svc.Movements(ctx, ref, 0)
	if err != nil {
		t.Fatalf("movements: %v", err)
	}
	if len(movements) != len(steps) {
		t.Fatalf("expected %d movements, got %d", len(steps), len(movements))
	}
	for i, movement := range movements {
		if movement.QuantityAfter != movement.QuantityBefore+movement.QuantityDelta {
			t.Fatalf("movement %d breaks delta math: %+v", i, movement)
		}
		if i > 0 && movement.QuantityBefore != movements[i-1].QuantityAfter {
			t.Fatalf("movement %d breaks the chain: before=%d prev after=%d",
				i, movement.QuantityBefore, movements[i-1].QuantityAfter)
		}
	}

	item := loadItem(t, db, ref)
	if item.OnHandQty != 6 {
		t.Fatalf("expected on-hand 6, got %d", item.OnHandQty)
	}
	if movements[len(movements)-1].QuantityAfter != item.OnHandQty {
		t.Fatalf("ledger tail %d disagrees with counter %d",
			movements[len(movements)-1].QuantityAfter, item.OnHandQty)
	}
}

func TestAdjustSignConventions(t *testing.T) {
	t.Parallel()

	db := setupStockTestDB(t)
	ctx := context.Background()
	svc, _ := newTestService(t, db)
	ref := seedStockItem(t, db, models.StockItem{OnHandQty: 10, ManagesStock: true})

	// manual_exit always decrements no matter the sign the caller passes.
	movement, err := svc.Adjust(ctx, ref, 5, enums.StockMovementTypeManualExit, "damaged units", nil)
	if err != nil {
		t.Fatalf("manual exit: %v", err)
	}
	if movement.QuantityDelta != -5 || movement.QuantityBefore != 10 || movement.QuantityAfter != 5 {
		t.Fatalf("unexpected manual exit movement: %+v", movement)
	}
	if movement.Notes == nil || *movement.Notes != "damaged units" {
		t.Fatalf("notes lost: %+v", movement.Notes)
	}

	// manual_entry always increments.
	movement, err = svc.Adjust(ctx, ref, -4, enums.StockMovementTypeManualEntry, "", nil)
	if err != nil {
		t.Fatalf("manual entry: %v", err)
	}
	if movement.QuantityDelta != 4 || movement.QuantityAfter != 9 {
		t.Fatalf("unexpected manual entry movement: %+v", movement)
	}

	// adjustment passes the signed quantity through.
	movement, err = svc.Adjust(ctx, ref, -3, enums.StockMovementTypeAdjustment, "", nil)
	if err != nil {
		t.Fatalf("adjustment: %v", err)
	}
	if movement.QuantityDelta != -3 || movement.QuantityAfter != 6 {
		t.Fatalf("unexpected adjustment movement: %+v", movement)
	}

	// Reservation markers cannot be issued through Adjust.
	_, err = svc.Adjust(ctx, ref, 1, enums.StockMovementTypeReservation, "", nil)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	_, err = svc.Adjust(ctx, ref, 0, enums.StockMovementTypeAdjustment, "", nil)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for zero qty, got %v", err)
	}
}

func TestAdjustInsufficientStock(t *testing.T) {
	t.Parallel()

	db := setupStockTestDB(t)
	ctx := context.Background()
	svc, _ := newTestService(t, db)
	ref := seedStockItem(t, db, models.StockItem{OnHandQty: 10, ManagesStock: true})

	_, err := svc.Adjust(ctx, ref, 20, enums.StockMovementTypeManualExit, "", nil)
	if err == nil {
		t.Fatal("expected insufficient stock error")
	}
	detail := AsInsufficientStock(err)
	if detail == nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if detail.Requested != 20 || detail.Available != 10 {
		t.Fatalf("unexpected shortage detail: %+v", detail)
	}

	// Counter untouched, nothing written to the ledger.
	if item := loadItem(t, db, ref); item.OnHandQty != 10 {
		t.Fatalf("failed adjust changed the counter: %d", item.OnHandQty)
	}
	movements, err := svc.Movements(ctx, ref, 0)
	if err != nil {
		t.Fatalf("movements: %v", err)
	}
	if len(movements) != 0 {
		t.Fatalf("failed adjust wrote %d movements", len(movements))
	}
}

func TestBackorderAllowsNegativeOnHand(t *testing.T) {
	t.Parallel()

	db := setupStockTestDB(t)
	ctx := context.Background()
	svc, _ := newTestService(t, db)
	ref := seedStockItem(t, db, models.StockItem{OnHandQty: 2, ManagesStock: true, AllowsBackorder: true})

	movement, err := svc.Adjust(ctx, ref, 5, enums.StockMovementTypeSale, "", nil)
	if err != nil {
		t.Fatalf("backorder sale: %v", err)
	}
	if movement.QuantityAfter != -3 {
		t.Fatalf("expected on-hand -3, got %d", movement.QuantityAfter)
	}
	if item := loadItem(t, db, ref); item.OnHandQty != -3 {
		t.Fatalf("counter not updated: %d", item.OnHandQty)
	}
}

func TestRecordMovementSeedsUnknownItems(t *testing.T) {
	t.Parallel()

	db := setupStockTestDB(t)
	ctx := context.Background()
	svc, _ := newTestService(t, db)

	ref := models.StockableRef{Type: enums.StockableTypeProductVariant, ID: uuid.New()}

	// First inbound movement creates the counter row.
	movement, err := svc.RecordMovement(ctx, RecordMovementInput{
		Stockable:     ref,
		Type:          enums.StockMovementTypeManualEntry,
		QuantityDelta: 7,
	})
	if err != nil {
		t.Fatalf("record entry: %v", err)
	}
	if movement.QuantityBefore != 0 || movement.QuantityAfter != 7 {
		t.Fatalf("unexpected seeded movement: %+v", movement)
	}
	if item := loadItem(t, db, ref); item.OnHandQty != 7 || !item.ManagesStock {
		t.Fatalf("unexpected seeded item: %+v", item)
	}

	// Decreases and markers on unknown stockables are refused.
	missing := models.StockableRef{Type: enums.StockableTypeProduct, ID: uuid.New()}
	_, err = svc.RecordMovement(ctx, RecordMovementInput{
		Stockable:     missing,
		Type:          enums.StockMovementTypeSale,
		QuantityDelta: -1,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found for decrease, got %v", err)
	}
	_, err = svc.RecordMovement(ctx, RecordMovementInput{
		Stockable: missing,
		Type:      enums.StockMovementTypeReservation,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found for marker, got %v", err)
	}
}

func TestRecordMovementValidation(t *testing.T) {
	t.Parallel()

	db := setupStockTestDB(t)
	ctx := context.Background()
	svc, _ := newTestService(t, db)
	ref := seedStockItem(t, db, models.StockItem{OnHandQty: 10, ManagesStock: true})

	cases := []struct {
		name  string
		input RecordMovementInput
	}{
		{"zero delta on affecting type", RecordMovementInput{Stockable: ref, Type: enums.StockMovementTypeSale}},
		{"nonzero delta on marker", RecordMovementInput{Stockable: ref, Type: enums.StockMovementTypeReservation, QuantityDelta: 2}},
		{"unknown movement type", RecordMovementInput{Stockable: ref, Type: "restock", QuantityDelta: 1}},
		{"missing stockable id", RecordMovementInput{Stockable: models.StockableRef{Type: enums.StockableTypeProduct}, Type: enums.StockMovementTypeSale, QuantityDelta: -1}},
	}
	for _, tc := range cases {
		if _, err := svc.RecordMovement(ctx, tc.input); pkgerrors.As(err) == nil || pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
	}
}

func TestAvailable(t *testing.T) {
	t.Parallel()

	db := setupStockTestDB(t)
	ctx := context.Background()
	svc, impl := newTestService(t, db)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	impl.now = func() time.Time { return now }

	ref := seedStockItem(t, db, models.StockItem{OnHandQty: 10, ManagesStock: true})

	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)
	converted := now.Add(-30 * time.Minute)

	seedReservation(t, db, ref, 3, &future, nil)       // active
	seedReservation(t, db, ref, 4, &past, nil)         // expired
	seedReservation(t, db, ref, 2, &future, &converted) // converted

	available, err := svc.Available(ctx, ref)
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	if available != 7 {
		t.Fatalf("expected available 7, got %d", available)
	}

	_, err = svc.Available(ctx, models.StockableRef{Type: enums.StockableTypeProduct, ID: uuid.New()})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAvailableNeverNegative(t *testing.T) {
	t.Parallel()

	db := setupStockTestDB(t)
	ctx := context.Background()
	svc, impl := newTestService(t, db)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	impl.now = func() time.Time { return now }

	ref := seedStockItem(t, db, models.StockItem{OnHandQty: 10, ManagesStock: true})
	future := now.Add(time.Hour)
	seedReservation(t, db, ref, 15, &future, nil)

	available, err := svc.Available(ctx, ref)
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	if available != 0 {
		t.Fatalf("expected available clamped to 0, got %d", available)
	}
}

func TestIsAvailable(t *testing.T) {
	t.Parallel()

	db := setupStockTestDB(t)
	ctx := context.Background()
	svc, impl := newTestService(t, db)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	impl.now = func() time.Time { return now }

	managed := seedStockItem(t, db, models.StockItem{OnHandQty: 5, ManagesStock: true})
	unmanaged := seedStockItem(t, db, models.StockItem{OnHandQty: 0, ManagesStock: false})
	backorder := seedStockItem(t, db, models.StockItem{OnHandQty: 0, ManagesStock: true, AllowsBackorder: true})

	future := now.Add(time.Hour)
	seedReservation(t, db, managed, 2, &future, nil)

	for _, tc := range []struct {
		name string
		ref  models.StockableRef
		qty  int
		want bool
	}{
		{"within availability", managed, 3, true},
		{"exceeds availability", managed, 4, false},
		{"unmanaged always available", unmanaged, 100, true},
		{"backorder always available", backorder, 100, true},
	} {
		got, err := svc.IsAvailable(ctx, tc.ref, tc.qty)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: expected %v", tc.name, tc.want)
		}
	}

	if _, err := svc.IsAvailable(ctx, managed, 0); pkgerrors.As(err) == nil || pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestValidateBatch(t *testing.T) {
	t.Parallel()

	db := setupStockTestDB(t)
	ctx := context.Background()
	svc, impl := newTestService(t, db)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	impl.now = func() time.Time { return now }

	full := seedStockItem(t, db, models.StockItem{OnHandQty: 10, ManagesStock: true})
	partial := seedStockItem(t, db, models.StockItem{OnHandQty: 2, ManagesStock: true})
	empty := seedStockItem(t, db, models.StockItem{OnHandQty: 0, ManagesStock: true})
	unknown := models.StockableRef{Type: enums.StockableTypeProduct, ID: uuid.New()}

	result, err := svc.ValidateBatch(ctx, []BatchRequest{
		{Stockable: full, Quantity: 4},
		{Stockable: partial, Quantity: 5},
		{Stockable: empty, Quantity: 1},
		{Stockable: unknown, Quantity: 2},
	})
	if err != nil {
		t.Fatalf("validate batch: %v", err)
	}
	if result.Valid {
		t.Fatal("expected batch invalid")
	}
	if len(result.Lines) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(result.Lines))
	}

	if line := result.Lines[0]; !line.CanFulfill || line.Shortage != 0 || line.Fulfillable != 4 {
		t.Fatalf("unexpected full line: %+v", line)
	}
	if line := result.Lines[1]; line.CanFulfill || !line.CanPartial || line.Shortage != 3 || line.Fulfillable != 2 {
		t.Fatalf("unexpected partial line: %+v", line)
	}
	if line := result.Lines[2]; line.CanFulfill || line.CanPartial || line.Shortage != 1 {
		t.Fatalf("unexpected empty line: %+v", line)
	}
	if line := result.Lines[3]; line.CanFulfill || line.Shortage != 2 {
		t.Fatalf("unexpected unknown line: %+v", line)
	}

	ok, err := svc.ValidateBatch(ctx, []BatchRequest{{Stockable: full, Quantity: 10}})
	if err != nil {
		t.Fatalf("validate batch: %v", err)
	}
	if !ok.Valid {
		t.Fatalf("expected batch valid: %+v", ok.Lines)
	}

	if _, err := svc.ValidateBatch(ctx, []BatchRequest{{Stockable: full, Quantity: 0}}); pkgerrors.As(err) == nil || pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLowStock(t *testing.T) {
	t.Parallel()

	db := setupStockTestDB(t)
	ctx := context.Background()
	svc, _ := newTestService(t, db)

	withThreshold := seedStockItem(t, db, models.StockItem{OnHandQty: 3, LowStockThreshold: 3, ManagesStock: true})
	defaultThreshold := seedStockItem(t, db, models.StockItem{OnHandQty: 5, ManagesStock: true})
	healthy := seedStockItem(t, db, models.StockItem{OnHandQty: 50, LowStockThreshold: 10, ManagesStock: true})
	unmanaged := seedStockItem(t, db, models.StockItem{OnHandQty: 0, ManagesStock: false})

	for _, tc := range []struct {
		name string
		ref  models.StockableRef
		want bool
	}{
		{"at own threshold", withThreshold, true},
		{"at default threshold", defaultThreshold, true},
		{"healthy", healthy, false},
		{"unmanaged never low", unmanaged, false},
	} {
		got, err := svc.LowStock(ctx, tc.ref)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: expected %v", tc.name, tc.want)
		}
	}
}

func TestMovementsLimit(t *testing.T) {
	t.Parallel()

	db := setupStockTestDB(t)
	ctx := context.Background()
	svc, impl := newTestService(t, db)
	impl.now = tickingClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	ref := seedStockItem(t, db, models.StockItem{OnHandQty: 0, ManagesStock: true})
	for i := 0; i < 5; i++ {
		if _, err := svc.Adjust(ctx, ref, 1, enums.StockMovementTypeManualEntry, "", nil); err != nil {
			t.Fatalf("adjust %d: %v", i, err)
		}
	}

	movements, err := svc.Movements(ctx, ref, 2)
	if err != nil {
		t.Fatalf("movements: %v", err)
	}
	if len(movements) != 2 {
		t.Fatalf("expected 2 movements, got %d", len(movements))
	}
	if movements[0].QuantityBefore != 0 || movements[1].QuantityBefore != 1 {
		t.Fatalf("limit did not keep creation order: %+v", movements)
	}
}
