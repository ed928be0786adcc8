package stock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/hospitalms/backoffice/internal/domain/drug"
)

// DrugStore is the slice of the drug repository the engine needs. The
// production implementation is drug.Repository.
type DrugStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*drug.Drug, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*drug.Drug, error)
	AdjustQuantity(ctx context.Context, id uuid.UUID, delta int64) (bool, error)
}

// LotStore is the slice of the lot repository the engine needs.
type LotStore interface {
	Create(ctx context.Context, lot *drug.DrugLot) error
	GetForUpdate(ctx context.Context, id uuid.UUID) (*drug.DrugLot, error)
	GetBySourceItem(ctx context.Context, maDrugItemID uuid.UUID) (*drug.DrugLot, error)
	ListActiveByDrug(ctx context.Context, drugID uuid.UUID) ([]*drug.DrugLot, error)
	Adjust(ctx context.Context, id uuid.UUID, delta int64) (bool, error)
}

// LotDeduction records how much a single allocation took from one lot. The
// set of deductions for a dispense line is persisted so a later edit can put
// the stock back exactly where it came from.
type LotDeduction struct {
	LotID    uuid.UUID
	Quantity int64
}

// Engine owns every stock movement. All mutating methods must run inside a
// transaction (db.TxRunner); they lock the drug row first, so concurrent
// movements against the same drug serialize.
type Engine struct {
	drugs DrugStore
	lots  LotStore
	log   zerolog.Logger
}

func NewEngine(drugs DrugStore, lots LotStore, log zerolog.Logger) *Engine {
	return &Engine{drugs: drugs, lots: lots, log: log}
}

// CheckSufficient reports whether the drug can cover the requested quantity.
// It takes no lock; it is a pre-flight check only and the answer can go stale.
func (e *Engine) CheckSufficient(ctx context.Context, drugID uuid.UUID, qty int64) error {
	d, err := e.drugs.GetByID(ctx, drugID)
	if err != nil {
		return err
	}
	if d.Quantity < qty {
		return &InsufficientStockError{DrugName: d.Name, Available: d.Quantity, Requested: qty}
	}
	return nil
}

// Allocate deducts qty from the drug's stock, draining lots in FEFO order
// (earliest expiry first), and returns the per-lot deductions. A zero
// quantity allocates nothing. The whole allocation is atomic with respect to
// other movements on the same drug via the drug row lock.
func (e *Engine) Allocate(ctx context.Context, drugID uuid.UUID, qty int64) ([]LotDeduction, error) {
	if qty < 0 {
		return nil, fmt.Errorf("negative allocation quantity %d", qty)
	}
	if qty == 0 {
		return nil, nil
	}

	d, err := e.drugs.GetForUpdate(ctx, drugID)
	if err != nil {
		return nil, err
	}
	if d.Quantity < qty {
		return nil, &InsufficientStockError{DrugName: d.Name, Available: d.Quantity, Requested: qty}
	}

	lots, err := e.lots.ListActiveByDrug(ctx, drugID)
	if err != nil {
		return nil, err
	}

	remaining := qty
	var deds []LotDeduction
	for _, l := range lots {
		if remaining == 0 {
			break
		}
		take := l.Quantity
		if take > remaining {
			take = remaining
		}
		applied, err := e.lots.Adjust(ctx, l.ID, -take)
		if err != nil {
			return nil, err
		}
		if !applied {
			return nil, &InsufficientLotError{LotID: l.ID, Delta: -take}
		}
		deds = append(deds, LotDeduction{LotID: l.ID, Quantity: take})
		remaining -= take
	}
	if remaining > 0 {
		e.log.Error().
			Str("drug_id", drugID.String()).
			Int64("missing", remaining).
			Msg("lot totals diverged from aggregate quantity")
		return nil, &LotInconsistencyError{DrugID: drugID, Missing: remaining}
	}

	applied, err := e.drugs.AdjustQuantity(ctx, drugID, -qty)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, &NegativeStockError{DrugID: drugID, Delta: -qty}
	}
	return deds, nil
}

// Release reverses a prior allocation: each deduction is credited back to its
// lot and the aggregate is restored. Lots drained to zero by the allocation
// become active again.
func (e *Engine) Release(ctx context.Context, drugID uuid.UUID, deds []LotDeduction) error {
	if len(deds) == 0 {
		return nil
	}
	if _, err := e.drugs.GetForUpdate(ctx, drugID); err != nil {
		return err
	}
	var total int64
	for _, ded := range deds {
		applied, err := e.lots.Adjust(ctx, ded.LotID, ded.Quantity)
		if err != nil {
			return err
		}
		if !applied {
			return &InsufficientLotError{LotID: ded.LotID, Delta: ded.Quantity}
		}
		total += ded.Quantity
	}
	applied, err := e.drugs.AdjustQuantity(ctx, drugID, total)
	if err != nil {
		return err
	}
	if !applied {
		return &NegativeStockError{DrugID: drugID, Delta: total}
	}
	return nil
}

// Receive books received stock in: it creates a new lot for the batch and
// raises the aggregate by the same amount. sourceItemID ties the lot back to
// the requisition line it came from so a later edit can find it.
func (e *Engine) Receive(ctx context.Context, drugID uuid.UUID, qty int64, expiry time.Time, price decimal.Decimal, sourceItemID *uuid.UUID) (*drug.DrugLot, error) {
	if qty < 0 {
		return nil, fmt.Errorf("negative receipt quantity %d", qty)
	}
	if qty == 0 {
		return nil, nil
	}

	if _, err := e.drugs.GetForUpdate(ctx, drugID); err != nil {
		return nil, err
	}

	lot := &drug.DrugLot{
		DrugID:       drugID,
		LotNumber:    newLotNumber(sourceItemID),
		Quantity:     qty,
		ExpiryDate:   expiry,
		Price:        price,
		IsActive:     true,
		MaDrugItemID: sourceItemID,
	}
	if err := e.lots.Create(ctx, lot); err != nil {
		return nil, err
	}
	applied, err := e.drugs.AdjustQuantity(ctx, drugID, qty)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, &NegativeStockError{DrugID: drugID, Delta: qty}
	}
	return lot, nil
}

// ReconcileLot moves a lot from a previously booked quantity to a new one and
// applies the same delta to the aggregate, keeping the two in lockstep. Used
// when an already-received requisition line is edited.
func (e *Engine) ReconcileLot(ctx context.Context, lotID uuid.UUID, previous, next int64) error {
	delta := next - previous
	if delta == 0 {
		return nil
	}
	lot, err := e.lots.GetForUpdate(ctx, lotID)
	if err != nil {
		return err
	}
	if _, err := e.drugs.GetForUpdate(ctx, lot.DrugID); err != nil {
		return err
	}
	applied, err := e.lots.Adjust(ctx, lotID, delta)
	if err != nil {
		return err
	}
	if !applied {
		return &InsufficientLotError{LotID: lotID, Delta: delta}
	}
	applied, err = e.drugs.AdjustQuantity(ctx, lot.DrugID, delta)
	if err != nil {
		return err
	}
	if !applied {
		return &NegativeStockError{DrugID: lot.DrugID, Delta: delta}
	}
	return nil
}

// LotBySource resolves the lot created for a given requisition line.
func (e *Engine) LotBySource(ctx context.Context, sourceItemID uuid.UUID) (*drug.DrugLot, error) {
	return e.lots.GetBySourceItem(ctx, sourceItemID)
}

// newLotNumber builds a unique lot number. The millisecond timestamp plus the
// source line suffix matches the numbers operators already know from the
// receiving screen.
func newLotNumber(sourceItemID *uuid.UUID) string {
	suffix := uuid.New().String()[:8]
	if sourceItemID != nil {
		suffix = sourceItemID.String()[:8]
	}
	return fmt.Sprintf("LOT-%d-%s", time.Now().UnixMilli(), suffix)
}
