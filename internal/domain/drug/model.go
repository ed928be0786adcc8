package drug

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Drug maps to the drug table (master catalog row). Quantity is the aggregate
// on-hand stock and must always equal the sum of the drug's active lot
// quantities; it is only ever written through the stock ledger.
type Drug struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	WorkingCode string          `db:"working_code" json:"working_code"`
	Name        string          `db:"name" json:"name"`
	Unit        *string         `db:"unit" json:"unit,omitempty"`
	Quantity    int64           `db:"quantity" json:"quantity"`
	Price       decimal.Decimal `db:"price" json:"price"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`

	// NearestExpiry is the soonest expiry date among the drug's active lots.
	// Populated by ListWithNearestExpiry only.
	NearestExpiry *time.Time `db:"-" json:"expiry_date,omitempty"`
}

// DrugLot maps to the drug_lot table (one received batch). A lot is never
// deleted; it is deactivated when its quantity reaches zero and reactivated
// if a reversal restores stock to it.
type DrugLot struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	DrugID       uuid.UUID       `db:"drug_id" json:"drug_id"`
	LotNumber    string          `db:"lot_number" json:"lot_number"`
	Quantity     int64           `db:"quantity" json:"quantity"`
	ExpiryDate   time.Time       `db:"expiry_date" json:"expiry_date"`
	Price        decimal.Decimal `db:"price" json:"price"`
	IsActive     bool            `db:"is_active" json:"is_active"`
	MaDrugItemID *uuid.UUID      `db:"ma_drug_item_id" json:"ma_drug_item_id,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}
