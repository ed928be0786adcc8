package drug

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is CRUD access to the drug catalog plus the two guarded stock
// primitives the ledger is built on. AdjustQuantity reports applied=false
// instead of writing a negative aggregate.
type Repository interface {
	Create(ctx context.Context, d *Drug) error
	GetByID(ctx context.Context, id uuid.UUID) (*Drug, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Drug, error)
	Update(ctx context.Context, d *Drug) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Drug, int, error)
	ListWithNearestExpiry(ctx context.Context, limit, offset int) ([]*Drug, int, error)
	AdjustQuantity(ctx context.Context, id uuid.UUID, delta int64) (applied bool, err error)
}

// LotRepository is the lot store. ListActiveByDrug ordering (expiry ascending,
// id ascending on ties) is load-bearing for FEFO allocation. Adjust toggles
// is_active as the quantity crosses zero and reports applied=false instead of
// writing a negative quantity.
type LotRepository interface {
	Create(ctx context.Context, lot *DrugLot) error
	GetByID(ctx context.Context, id uuid.UUID) (*DrugLot, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*DrugLot, error)
	GetBySourceItem(ctx context.Context, maDrugItemID uuid.UUID) (*DrugLot, error)
	ListActiveByDrug(ctx context.Context, drugID uuid.UUID) ([]*DrugLot, error)
	ListExpiringWithin(ctx context.Context, cutoff time.Time) ([]*DrugLot, error)
	Adjust(ctx context.Context, id uuid.UUID, delta int64) (applied bool, err error)
}
