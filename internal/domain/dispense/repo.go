package dispense

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists dispense documents, their lines, and the per-lot
// allocations recorded at completion. GetByID loads lines eagerly.
type Repository interface {
	Create(ctx context.Context, d *Dispense) error
	GetByID(ctx context.Context, id uuid.UUID) (*Dispense, error)
	List(ctx context.Context, status Status, limit, offset int) ([]*Dispense, int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
	UpdateTotals(ctx context.Context, d *Dispense) error
	ReplaceItems(ctx context.Context, dispenseID uuid.UUID, items []*DispenseItem) error

	SaveAllocations(ctx context.Context, itemID uuid.UUID, allocs []*Allocation) error
	ListAllocations(ctx context.Context, itemID uuid.UUID) ([]*Allocation, error)
	DeleteAllocations(ctx context.Context, itemID uuid.UUID) error
}
