package stock

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrAlreadyCompleted is returned when a completion is attempted on a
	// document that has already been completed.
	ErrAlreadyCompleted = errors.New("document already completed")

	// ErrInvalidTransition is returned for a status change the workflow does
	// not allow.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNotFound is returned when a referenced document or line is missing.
	ErrNotFound = errors.New("not found")
)

// InsufficientStockError reports a dispense that asks for more than the drug
// has on hand. Callers surface it to the requesting clinician verbatim.
type InsufficientStockError struct {
	DrugName  string
	Available int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: %d available, %d requested",
		e.DrugName, e.Available, e.Requested)
}

// NegativeStockError reports that a guarded aggregate update was refused
// because it would have driven the drug quantity below zero. With the drug
// row locked this indicates a caller bug, not a race.
type NegativeStockError struct {
	DrugID uuid.UUID
	Delta  int64
}

func (e *NegativeStockError) Error() string {
	return fmt.Sprintf("adjustment of %d would drive drug %s below zero", e.Delta, e.DrugID)
}

// InsufficientLotError reports that a single lot could not absorb the
// requested deduction.
type InsufficientLotError struct {
	LotID uuid.UUID
	Delta int64
}

func (e *InsufficientLotError) Error() string {
	return fmt.Sprintf("adjustment of %d would drive lot %s below zero", e.Delta, e.LotID)
}

// LotInconsistencyError reports that the aggregate quantity covered a request
// but the drug's active lots did not. The two are kept in lockstep, so this
// means the ledger is corrupt and needs operator attention.
type LotInconsistencyError struct {
	DrugID  uuid.UUID
	Missing int64
}

func (e *LotInconsistencyError) Error() string {
	return fmt.Sprintf("lot totals for drug %s fall %d short of the aggregate quantity", e.DrugID, e.Missing)
}
