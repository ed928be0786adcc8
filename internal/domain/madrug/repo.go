package madrug

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists requisitions and their lines. GetByID loads lines
// eagerly. CountCreatedOn feeds the daily request number sequence and must be
// called inside the creating transaction.
type Repository interface {
	Create(ctx context.Context, m *MaDrug) error
	GetByID(ctx context.Context, id uuid.UUID) (*MaDrug, error)
	List(ctx context.Context, status Status, limit, offset int) ([]*MaDrug, int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
	UpdateTotals(ctx context.Context, m *MaDrug) error
	ReplaceItems(ctx context.Context, maDrugID uuid.UUID, items []*MaDrugItem) error
	UpdateItem(ctx context.Context, it *MaDrugItem) error
	CountCreatedOn(ctx context.Context, day time.Time) (int, error)
}
