package stock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/hospitalms/backoffice/internal/domain/drug"
)

// -- Mock Stores --

type mockDrugStore struct {
	drugs map[uuid.UUID]*drug.Drug
}

func newMockDrugStore() *mockDrugStore {
	return &mockDrugStore{drugs: make(map[uuid.UUID]*drug.Drug)}
}

func (m *mockDrugStore) add(name string, qty int64) uuid.UUID {
	d := &drug.Drug{ID: uuid.New(), Name: name, Quantity: qty}
	m.drugs[d.ID] = d
	return d.ID
}

func (m *mockDrugStore) GetByID(_ context.Context, id uuid.UUID) (*drug.Drug, error) {
	d, ok := m.drugs[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return d, nil
}

func (m *mockDrugStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*drug.Drug, error) {
	return m.GetByID(ctx, id)
}

func (m *mockDrugStore) AdjustQuantity(_ context.Context, id uuid.UUID, delta int64) (bool, error) {
	d, ok := m.drugs[id]
	if !ok {
		return false, fmt.Errorf("not found")
	}
	if d.Quantity+delta < 0 {
		return false, nil
	}
	d.Quantity += delta
	return true, nil
}

type mockLotStore struct {
	lots map[uuid.UUID]*drug.DrugLot
}

func newMockLotStore() *mockLotStore {
	return &mockLotStore{lots: make(map[uuid.UUID]*drug.DrugLot)}
}

func (m *mockLotStore) add(drugID uuid.UUID, qty int64, expiry time.Time) uuid.UUID {
	l := &drug.DrugLot{
		ID: uuid.New(), DrugID: drugID, LotNumber: fmt.Sprintf("LOT-%d", len(m.lots)+1),
		Quantity: qty, ExpiryDate: expiry, IsActive: qty > 0,
	}
	m.lots[l.ID] = l
	return l.ID
}

func (m *mockLotStore) Create(_ context.Context, lot *drug.DrugLot) error {
	lot.ID = uuid.New()
	m.lots[lot.ID] = lot
	return nil
}

func (m *mockLotStore) GetForUpdate(_ context.Context, id uuid.UUID) (*drug.DrugLot, error) {
	l, ok := m.lots[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return l, nil
}

func (m *mockLotStore) GetBySourceItem(_ context.Context, itemID uuid.UUID) (*drug.DrugLot, error) {
	for _, l := range m.lots {
		if l.MaDrugItemID != nil && *l.MaDrugItemID == itemID {
			return l, nil
		}
	}
	return nil, fmt.Errorf("not found")
}

func (m *mockLotStore) ListActiveByDrug(_ context.Context, drugID uuid.UUID) ([]*drug.DrugLot, error) {
	var lots []*drug.DrugLot
	for _, l := range m.lots {
		if l.DrugID == drugID && l.Quantity > 0 && l.IsActive {
			lots = append(lots, l)
		}
	}
	sort.Slice(lots, func(i, j int) bool {
		if !lots[i].ExpiryDate.Equal(lots[j].ExpiryDate) {
			return lots[i].ExpiryDate.Before(lots[j].ExpiryDate)
		}
		return lots[i].ID.String() < lots[j].ID.String()
	})
	return lots, nil
}

func (m *mockLotStore) Adjust(_ context.Context, id uuid.UUID, delta int64) (bool, error) {
	l, ok := m.lots[id]
	if !ok {
		return false, fmt.Errorf("not found")
	}
	if l.Quantity+delta < 0 {
		return false, nil
	}
	l.Quantity += delta
	l.IsActive = l.Quantity > 0
	return true, nil
}

func newTestEngine() (*Engine, *mockDrugStore, *mockLotStore) {
	drugs := newMockDrugStore()
	lots := newMockLotStore()
	return NewEngine(drugs, lots, zerolog.Nop()), drugs, lots
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// -- Allocate --

func TestAllocateDrainsEarliestExpiryFirst(t *testing.T) {
	eng, drugs, lots := newTestEngine()
	ctx := context.Background()

	drugID := drugs.add("Paracetamol", 10)
	lateID := lots.add(drugID, 5, day(2026, 3, 1))
	earlyID := lots.add(drugID, 5, day(2026, 1, 1))

	deds, err := eng.Allocate(ctx, drugID, 7)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if len(deds) != 2 {
		t.Fatalf("got %d deductions, want 2", len(deds))
	}
	if deds[0].LotID != earlyID || deds[0].Quantity != 5 {
		t.Errorf("first deduction = %+v, want 5 from earliest lot", deds[0])
	}
	if deds[1].LotID != lateID || deds[1].Quantity != 2 {
		t.Errorf("second deduction = %+v, want 2 from later lot", deds[1])
	}

	if q := lots.lots[earlyID].Quantity; q != 0 {
		t.Errorf("earliest lot quantity = %d, want 0", q)
	}
	if lots.lots[earlyID].IsActive {
		t.Error("drained lot should be inactive")
	}
	if q := lots.lots[lateID].Quantity; q != 3 {
		t.Errorf("later lot quantity = %d, want 3", q)
	}
	if q := drugs.drugs[drugID].Quantity; q != 3 {
		t.Errorf("aggregate quantity = %d, want 3", q)
	}
}

func TestAllocateExactlyDrainsStock(t *testing.T) {
	eng, drugs, lots := newTestEngine()
	ctx := context.Background()

	drugID := drugs.add("Ibuprofen", 5)
	lotID := lots.add(drugID, 5, day(2026, 6, 1))

	deds, err := eng.Allocate(ctx, drugID, 5)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if len(deds) != 1 || deds[0].Quantity != 5 {
		t.Fatalf("unexpected deductions: %+v", deds)
	}
	if q := drugs.drugs[drugID].Quantity; q != 0 {
		t.Errorf("aggregate quantity = %d, want 0", q)
	}
	if lots.lots[lotID].IsActive {
		t.Error("fully drained lot should be inactive")
	}
}

func TestAllocateInsufficientStockLeavesStateUntouched(t *testing.T) {
	eng, drugs, lots := newTestEngine()
	ctx := context.Background()

	drugID := drugs.add("Amoxicillin", 4)
	lotID := lots.add(drugID, 4, day(2026, 2, 1))

	_, err := eng.Allocate(ctx, drugID, 9)
	var insErr *InsufficientStockError
	if !errors.As(err, &insErr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if insErr.DrugName != "Amoxicillin" || insErr.Available != 4 || insErr.Requested != 9 {
		t.Errorf("error detail = %+v, want name/available/requested populated", insErr)
	}
	if q := drugs.drugs[drugID].Quantity; q != 4 {
		t.Errorf("aggregate changed to %d on refused allocation", q)
	}
	if q := lots.lots[lotID].Quantity; q != 4 {
		t.Errorf("lot changed to %d on refused allocation", q)
	}
}

func TestAllocateZeroQuantityIsNoop(t *testing.T) {
	eng, drugs, _ := newTestEngine()
	ctx := context.Background()

	drugID := drugs.add("Cefalexin", 3)
	deds, err := eng.Allocate(ctx, drugID, 0)
	if err != nil {
		t.Fatalf("Allocate(0) failed: %v", err)
	}
	if deds != nil {
		t.Errorf("expected no deductions, got %+v", deds)
	}
	if q := drugs.drugs[drugID].Quantity; q != 3 {
		t.Errorf("aggregate changed to %d on zero allocation", q)
	}
}

func TestAllocateNegativeQuantityRejected(t *testing.T) {
	eng, drugs, _ := newTestEngine()
	drugID := drugs.add("Cefalexin", 3)
	if _, err := eng.Allocate(context.Background(), drugID, -1); err == nil {
		t.Error("expected error for negative quantity")
	}
}

func TestAllocateDetectsLotShortfall(t *testing.T) {
	eng, drugs, lots := newTestEngine()
	ctx := context.Background()

	// Aggregate says 10 but lots only hold 6.
	drugID := drugs.add("Metformin", 10)
	lots.add(drugID, 6, day(2026, 4, 1))

	_, err := eng.Allocate(ctx, drugID, 8)
	var lotErr *LotInconsistencyError
	if !errors.As(err, &lotErr) {
		t.Fatalf("expected LotInconsistencyError, got %v", err)
	}
	if lotErr.Missing != 2 {
		t.Errorf("missing = %d, want 2", lotErr.Missing)
	}
}

// -- Release --

func TestReleaseReversesAllocation(t *testing.T) {
	eng, drugs, lots := newTestEngine()
	ctx := context.Background()

	drugID := drugs.add("Paracetamol", 10)
	earlyID := lots.add(drugID, 5, day(2026, 1, 1))
	lateID := lots.add(drugID, 5, day(2026, 3, 1))

	deds, err := eng.Allocate(ctx, drugID, 7)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if err := eng.Release(ctx, drugID, deds); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	if q := drugs.drugs[drugID].Quantity; q != 10 {
		t.Errorf("aggregate quantity = %d, want 10 after release", q)
	}
	if q := lots.lots[earlyID].Quantity; q != 5 {
		t.Errorf("earliest lot = %d, want 5 after release", q)
	}
	if !lots.lots[earlyID].IsActive {
		t.Error("released lot should be active again")
	}
	if q := lots.lots[lateID].Quantity; q != 5 {
		t.Errorf("later lot = %d, want 5 after release", q)
	}
}

func TestReleaseEmptyDeductionsIsNoop(t *testing.T) {
	eng, drugs, _ := newTestEngine()
	drugID := drugs.add("Paracetamol", 5)
	if err := eng.Release(context.Background(), drugID, nil); err != nil {
		t.Fatalf("Release(nil) failed: %v", err)
	}
	if q := drugs.drugs[drugID].Quantity; q != 5 {
		t.Errorf("aggregate changed to %d on empty release", q)
	}
}

// -- Receive --

func TestReceiveCreatesLotAndRaisesAggregate(t *testing.T) {
	eng, drugs, lots := newTestEngine()
	ctx := context.Background()

	drugID := drugs.add("Omeprazole", 0)
	itemID := uuid.New()
	expiry := day(2027, 5, 1)

	lot, err := eng.Receive(ctx, drugID, 12, expiry, decimal.NewFromInt(3), &itemID)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if lot == nil {
		t.Fatal("expected a lot")
	}
	if lot.Quantity != 12 || !lot.ExpiryDate.Equal(expiry) || !lot.IsActive {
		t.Errorf("unexpected lot: %+v", lot)
	}
	if !strings.HasPrefix(lot.LotNumber, "LOT-") {
		t.Errorf("lot number %q missing LOT- prefix", lot.LotNumber)
	}
	if lot.MaDrugItemID == nil || *lot.MaDrugItemID != itemID {
		t.Error("lot not tied to its source line")
	}
	if q := drugs.drugs[drugID].Quantity; q != 12 {
		t.Errorf("aggregate quantity = %d, want 12", q)
	}

	got, err := lots.GetBySourceItem(ctx, itemID)
	if err != nil || got.ID != lot.ID {
		t.Errorf("GetBySourceItem = %v, %v; want the created lot", got, err)
	}
}

func TestReceiveZeroQuantityIsNoop(t *testing.T) {
	eng, drugs, lots := newTestEngine()
	ctx := context.Background()

	drugID := drugs.add("Omeprazole", 2)
	lot, err := eng.Receive(ctx, drugID, 0, day(2027, 1, 1), decimal.Zero, nil)
	if err != nil {
		t.Fatalf("Receive(0) failed: %v", err)
	}
	if lot != nil {
		t.Error("expected no lot for zero receipt")
	}
	if len(lots.lots) != 0 {
		t.Error("zero receipt must not create a lot")
	}
	if q := drugs.drugs[drugID].Quantity; q != 2 {
		t.Errorf("aggregate changed to %d on zero receipt", q)
	}
}

// -- ReconcileLot --

func TestReconcileLotAppliesDelta(t *testing.T) {
	eng, drugs, _ := newTestEngine()
	ctx := context.Background()

	drugID := drugs.add("Losartan", 0)
	lot, err := eng.Receive(ctx, drugID, 10, day(2027, 2, 1), decimal.Zero, nil)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}

	if err := eng.ReconcileLot(ctx, lot.ID, 10, 6); err != nil {
		t.Fatalf("ReconcileLot down failed: %v", err)
	}
	if lot.Quantity != 6 {
		t.Errorf("lot quantity = %d, want 6", lot.Quantity)
	}
	if q := drugs.drugs[drugID].Quantity; q != 6 {
		t.Errorf("aggregate quantity = %d, want 6", q)
	}

	if err := eng.ReconcileLot(ctx, lot.ID, 6, 9); err != nil {
		t.Fatalf("ReconcileLot up failed: %v", err)
	}
	if lot.Quantity != 9 {
		t.Errorf("lot quantity = %d, want 9", lot.Quantity)
	}
	if q := drugs.drugs[drugID].Quantity; q != 9 {
		t.Errorf("aggregate quantity = %d, want 9", q)
	}
}

func TestReconcileLotNoChangeIsNoop(t *testing.T) {
	eng, drugs, _ := newTestEngine()
	ctx := context.Background()

	drugID := drugs.add("Losartan", 0)
	lot, err := eng.Receive(ctx, drugID, 4, day(2027, 2, 1), decimal.Zero, nil)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if err := eng.ReconcileLot(ctx, lot.ID, 4, 4); err != nil {
		t.Fatalf("ReconcileLot failed: %v", err)
	}
	if q := drugs.drugs[drugID].Quantity; q != 4 {
		t.Errorf("aggregate changed to %d with zero delta", q)
	}
}

func TestReconcileLotRefusesNegativeResult(t *testing.T) {
	eng, drugs, _ := newTestEngine()
	ctx := context.Background()

	drugID := drugs.add("Losartan", 0)
	lot, err := eng.Receive(ctx, drugID, 3, day(2027, 2, 1), decimal.Zero, nil)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}

	// The lot has already been drained to 3 elsewhere; shrinking from a
	// remembered 10 to 2 would push it below zero.
	err = eng.ReconcileLot(ctx, lot.ID, 10, 2)
	var lotErr *InsufficientLotError
	if !errors.As(err, &lotErr) {
		t.Fatalf("expected InsufficientLotError, got %v", err)
	}
	if lot.Quantity != 3 {
		t.Errorf("lot changed to %d on refused reconcile", lot.Quantity)
	}
	if q := drugs.drugs[drugID].Quantity; q != 3 {
		t.Errorf("aggregate changed to %d on refused reconcile", q)
	}
}

// -- Round trip --

func TestReceiveThenDispenseRoundTrip(t *testing.T) {
	eng, drugs, lots := newTestEngine()
	ctx := context.Background()

	drugID := drugs.add("Enalapril", 3)
	lots.add(drugID, 3, day(2026, 1, 1))

	lot, err := eng.Receive(ctx, drugID, 7, day(2026, 2, 1), decimal.NewFromInt(1), nil)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if q := drugs.drugs[drugID].Quantity; q != 10 {
		t.Fatalf("aggregate = %d after receive, want 10", q)
	}

	// Dispensing 10 drains the pre-existing lot and the received one.
	if _, err := eng.Allocate(ctx, drugID, 10); err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if q := drugs.drugs[drugID].Quantity; q != 0 {
		t.Errorf("aggregate = %d, want back at 0", q)
	}
	if lots.lots[lot.ID].IsActive {
		t.Error("received lot should be drained and inactive")
	}

	var active int64
	for _, l := range lots.lots {
		if l.IsActive {
			active += l.Quantity
		}
	}
	if active != drugs.drugs[drugID].Quantity {
		t.Errorf("active lot total %d diverges from aggregate %d", active, drugs.drugs[drugID].Quantity)
	}
}

// -- CheckSufficient --

func TestCheckSufficient(t *testing.T) {
	eng, drugs, _ := newTestEngine()
	ctx := context.Background()

	drugID := drugs.add("Simvastatin", 5)
	if err := eng.CheckSufficient(ctx, drugID, 5); err != nil {
		t.Errorf("expected 5 of 5 to pass: %v", err)
	}
	err := eng.CheckSufficient(ctx, drugID, 6)
	var insErr *InsufficientStockError
	if !errors.As(err, &insErr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
}
