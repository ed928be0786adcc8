package dispense

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/hospitalms/backoffice/internal/domain/drug"
	"github.com/hospitalms/backoffice/internal/domain/stock"
	"github.com/hospitalms/backoffice/internal/platform/db"
)

// Notifier receives workflow events after they commit. Delivery is best
// effort; failures are logged and never fail the workflow.
type Notifier interface {
	Notify(ctx context.Context, category, title, message string, meta map[string]interface{})
}

// Catalog is the slice of the drug repository needed for line validation.
type Catalog interface {
	GetByID(ctx context.Context, id uuid.UUID) (*drug.Drug, error)
}

type Service struct {
	repo     Repository
	drugs    Catalog
	engine   *stock.Engine
	tx       db.TxRunner
	notifier Notifier
	log      zerolog.Logger
}

func NewService(repo Repository, drugs Catalog, engine *stock.Engine, tx db.TxRunner, notifier Notifier, log zerolog.Logger) *Service {
	return &Service{repo: repo, drugs: drugs, engine: engine, tx: tx, notifier: notifier, log: log}
}

// Create records a new dispense request in pending status. No stock moves.
// Line prices default to the catalog price when the caller leaves them zero.
func (s *Service) Create(ctx context.Context, d *Dispense) error {
	if len(d.Items) == 0 {
		return fmt.Errorf("dispense requires at least one line")
	}
	total := decimal.Zero
	for _, it := range d.Items {
		if it.Quantity < 0 {
			return fmt.Errorf("negative quantity %d", it.Quantity)
		}
		master, err := s.drugs.GetByID(ctx, it.DrugID)
		if err != nil {
			return fmt.Errorf("drug %s: %w", it.DrugID, stock.ErrNotFound)
		}
		if it.Price.IsZero() {
			it.Price = master.Price
		}
		total = total.Add(it.Price.Mul(decimal.NewFromInt(it.Quantity)))
	}
	d.Status = StatusPending
	d.TotalPrice = total
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		return s.repo.Create(ctx, d)
	})
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Dispense, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, status Status, limit, offset int) ([]*Dispense, int, error) {
	return s.repo.List(ctx, status, limit, offset)
}

// Approve moves a pending dispense to approved. Still no stock movement.
func (s *Service) Approve(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, StatusApproved, StatusPending)
}

// Cancel abandons a dispense that has not been completed.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, StatusCanceled, StatusPending, StatusApproved)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to Status, from ...Status) error {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if d.Status == StatusCompleted {
		return stock.ErrAlreadyCompleted
	}
	allowed := false
	for _, f := range from {
		if d.Status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%s to %s: %w", d.Status, to, stock.ErrInvalidTransition)
	}
	return s.repo.UpdateStatus(ctx, id, to)
}

// Complete executes the dispense: every line is allocated from stock in FEFO
// order and the per-lot deductions are recorded. The whole dispense succeeds
// or fails as one transaction, so a line that cannot be covered leaves stock
// untouched.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) error {
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		d, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if d.Status == StatusCompleted {
			return stock.ErrAlreadyCompleted
		}
		if d.Status == StatusCanceled {
			return fmt.Errorf("canceled to completed: %w", stock.ErrInvalidTransition)
		}
		for _, it := range d.Items {
			if err := s.allocateLine(ctx, it); err != nil {
				return err
			}
		}
		return s.repo.UpdateStatus(ctx, id, StatusCompleted)
	})
	if err != nil {
		return err
	}

	s.notifier.Notify(ctx, "manageDispense", "Dispense completed",
		fmt.Sprintf("Dispense %s has been completed", id),
		map[string]interface{}{"dispense_id": id.String()})
	return nil
}

func (s *Service) allocateLine(ctx context.Context, it *DispenseItem) error {
	deds, err := s.engine.Allocate(ctx, it.DrugID, it.Quantity)
	if err != nil {
		return err
	}
	allocs := make([]*Allocation, 0, len(deds))
	for _, ded := range deds {
		allocs = append(allocs, &Allocation{LotID: ded.LotID, Quantity: ded.Quantity})
	}
	return s.repo.SaveAllocations(ctx, it.ID, allocs)
}

// Edit replaces the dispense's lines. Before completion only the document
// changes. Editing a completed dispense reverses every recorded allocation,
// swaps the lines, and re-allocates at current stock; the dispense stays
// completed throughout.
func (s *Service) Edit(ctx context.Context, id uuid.UUID, note *string, items []*DispenseItem) error {
	if len(items) == 0 {
		return fmt.Errorf("dispense requires at least one line")
	}
	total := decimal.Zero
	for _, it := range items {
		if it.Quantity < 0 {
			return fmt.Errorf("negative quantity %d", it.Quantity)
		}
		master, err := s.drugs.GetByID(ctx, it.DrugID)
		if err != nil {
			return fmt.Errorf("drug %s: %w", it.DrugID, stock.ErrNotFound)
		}
		if it.Price.IsZero() {
			it.Price = master.Price
		}
		total = total.Add(it.Price.Mul(decimal.NewFromInt(it.Quantity)))
	}

	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		d, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		switch d.Status {
		case StatusPending, StatusApproved:
			// Document-only edit.
		case StatusCompleted:
			if err := s.reverseAllocations(ctx, d); err != nil {
				return err
			}
		default:
			return fmt.Errorf("edit of %s dispense: %w", d.Status, stock.ErrInvalidTransition)
		}

		if err := s.repo.ReplaceItems(ctx, id, items); err != nil {
			return err
		}
		d.Note = note
		d.TotalPrice = total
		if err := s.repo.UpdateTotals(ctx, d); err != nil {
			return err
		}

		if d.Status == StatusCompleted {
			for _, it := range items {
				if err := s.allocateLine(ctx, it); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (s *Service) reverseAllocations(ctx context.Context, d *Dispense) error {
	for _, it := range d.Items {
		allocs, err := s.repo.ListAllocations(ctx, it.ID)
		if err != nil {
			return err
		}
		deds := make([]stock.LotDeduction, 0, len(allocs))
		for _, a := range allocs {
			deds = append(deds, stock.LotDeduction{LotID: a.LotID, Quantity: a.Quantity})
		}
		if err := s.engine.Release(ctx, it.DrugID, deds); err != nil {
			return err
		}
		if err := s.repo.DeleteAllocations(ctx, it.ID); err != nil {
			return err
		}
	}
	return nil
}
