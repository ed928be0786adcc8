package dispense

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusCompleted Status = "completed"
	StatusCanceled  Status = "canceled"
)

// Dispense maps to the dispense table. Stock only moves when the dispense is
// completed; until then the document is just a request.
type Dispense struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	Status      Status          `db:"status" json:"status"`
	Note        *string         `db:"note" json:"note,omitempty"`
	TotalPrice  decimal.Decimal `db:"total_price" json:"total_price"`
	CompletedAt *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`

	Items []*DispenseItem `db:"-" json:"items,omitempty"`
}

// DispenseItem maps to the dispense_item table (one drug line).
type DispenseItem struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	DispenseID uuid.UUID       `db:"dispense_id" json:"dispense_id"`
	DrugID     uuid.UUID       `db:"drug_id" json:"drug_id"`
	Quantity   int64           `db:"quantity" json:"quantity"`
	Price      decimal.Decimal `db:"price" json:"price"`
}

// Allocation maps to the dispense_allocation table. One row per lot a
// completed line drew from; the set is what an edit reverses.
type Allocation struct {
	ID             uuid.UUID `db:"id" json:"id"`
	DispenseItemID uuid.UUID `db:"dispense_item_id" json:"dispense_item_id"`
	LotID          uuid.UUID `db:"lot_id" json:"lot_id"`
	Quantity       int64     `db:"quantity" json:"quantity"`
}
