package madrug

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

// MaDrug maps to the ma_drug table: a requisition for stock from the central
// pharmacy. Completing it books the received quantities in as new lots.
type MaDrug struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	RequestNumber string          `db:"request_number" json:"request_number"`
	Status        Status          `db:"status" json:"status"`
	Note          *string         `db:"note" json:"note,omitempty"`
	TotalPrice    decimal.Decimal `db:"total_price" json:"total_price"`
	CompletedAt   *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`

	Items []*MaDrugItem `db:"-" json:"items,omitempty"`
}

// MaDrugItem maps to the ma_drug_item table. Quantity is what was requested;
// ReceivedQuantity and ExpiryDate are filled in at receipt time. The lot
// created for the line carries this item's id as its source.
type MaDrugItem struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	MaDrugID         uuid.UUID       `db:"ma_drug_id" json:"ma_drug_id"`
	DrugID           uuid.UUID       `db:"drug_id" json:"drug_id"`
	Quantity         int64           `db:"quantity" json:"quantity"`
	ReceivedQuantity *int64          `db:"received_quantity" json:"received_quantity,omitempty"`
	ExpiryDate       *time.Time      `db:"expiry_date" json:"expiry_date,omitempty"`
	Price            decimal.Decimal `db:"price" json:"price"`
}
