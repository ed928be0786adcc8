package drug

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type Service struct {
	drugs Repository
	lots  LotRepository
}

func NewService(drugs Repository, lots LotRepository) *Service {
	return &Service{drugs: drugs, lots: lots}
}

func (s *Service) CreateDrug(ctx context.Context, d *Drug) error {
	if d.Name == "" {
		return fmt.Errorf("name is required")
	}
	if d.Quantity != 0 {
		// Stock enters only through a completed requisition, so a new catalog
		// row always starts empty.
		return fmt.Errorf("quantity must be 0 on creation, got %d", d.Quantity)
	}
	return s.drugs.Create(ctx, d)
}

func (s *Service) GetDrug(ctx context.Context, id uuid.UUID) (*Drug, error) {
	return s.drugs.GetByID(ctx, id)
}

// UpdateDrug updates catalog fields. The aggregate quantity is not editable
// here; it moves only through the stock engine.
func (s *Service) UpdateDrug(ctx context.Context, d *Drug) error {
	if d.Name == "" {
		return fmt.Errorf("name is required")
	}
	return s.drugs.Update(ctx, d)
}

func (s *Service) DeleteDrug(ctx context.Context, id uuid.UUID) error {
	d, err := s.drugs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if d.Quantity > 0 {
		return fmt.Errorf("drug %q still has %d units on hand", d.Name, d.Quantity)
	}
	return s.drugs.Delete(ctx, id)
}

func (s *Service) ListDrugs(ctx context.Context, limit, offset int) ([]*Drug, int, error) {
	return s.drugs.ListWithNearestExpiry(ctx, limit, offset)
}

func (s *Service) ListLots(ctx context.Context, drugID uuid.UUID) ([]*DrugLot, error) {
	return s.lots.ListActiveByDrug(ctx, drugID)
}
