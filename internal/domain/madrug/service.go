package madrug

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/hospitalms/backoffice/internal/domain/drug"
	"github.com/hospitalms/backoffice/internal/domain/stock"
	"github.com/hospitalms/backoffice/internal/platform/db"
)

// Notifier receives workflow events after they commit. Delivery is best
// effort and never fails the workflow.
type Notifier interface {
	Notify(ctx context.Context, category, title, message string, meta map[string]interface{})
}

// Catalog is the slice of the drug repository needed for line validation.
type Catalog interface {
	GetByID(ctx context.Context, id uuid.UUID) (*drug.Drug, error)
}

// Receipt carries what actually arrived for one requisition line. A nil
// ReceivedQuantity means the full requested quantity arrived.
type Receipt struct {
	ItemID           uuid.UUID  `json:"item_id"`
	ReceivedQuantity *int64     `json:"received_quantity,omitempty"`
	ExpiryDate       *time.Time `json:"expiry_date,omitempty"`
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

// Create records a new requisition in pending status and assigns it the next
// request number for the day.
func (s *Service) Create(ctx context.Context, m *MaDrug) error {
	if len(m.Items) == 0 {
		return fmt.Errorf("requisition requires at least one line")
	}
	total, err := s.priceLines(ctx, m.Items)
	if err != nil {
		return err
	}
	m.Status = StatusPending
	m.TotalPrice = total
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		now := time.Now()
		seq, err := s.repo.CountCreatedOn(ctx, now)
		if err != nil {
			return err
		}
		m.RequestNumber = fmt.Sprintf("REQ-%s-%04d", now.Format("20060102"), seq+1)
		return s.repo.Create(ctx, m)
	})
}

func (s *Service) priceLines(ctx context.Context, items []*MaDrugItem) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, it := range items {
		if it.Quantity < 0 {
			return decimal.Zero, fmt.Errorf("negative quantity %d", it.Quantity)
		}
		master, err := s.drugs.GetByID(ctx, it.DrugID)
		if err != nil {
			return decimal.Zero, fmt.Errorf("drug %s: %w", it.DrugID, stock.ErrNotFound)
		}
		if it.Price.IsZero() {
			it.Price = master.Price
		}
		total = total.Add(it.Price.Mul(decimal.NewFromInt(it.Quantity)))
	}
	return total, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*MaDrug, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, status Status, limit, offset int) ([]*MaDrug, int, error) {
	return s.repo.List(ctx, status, limit, offset)
}

func (s *Service) Approve(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, StatusApproved, StatusPending)
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, StatusCanceled, StatusPending, StatusApproved)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to Status, from ...Status) error {
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if m.Status == StatusCompleted {
		return stock.ErrAlreadyCompleted
	}
	for _, f := range from {
		if m.Status == f {
			return s.repo.UpdateStatus(ctx, id, to)
		}
	}
	return fmt.Errorf("%s to %s: %w", m.Status, to, stock.ErrInvalidTransition)
}

// Receive completes the requisition: every line is booked in as a new lot and
// the drug aggregates rise by the received amounts. Lines the caller reports
// nothing for fall back to their requested quantity. A line received as zero
// creates no lot. Each received line needs an expiry date, from the receipt
// or already on the line.
func (s *Service) Receive(ctx context.Context, id uuid.UUID, receipts []Receipt) error {
	byItem := make(map[uuid.UUID]Receipt, len(receipts))
	for _, rc := range receipts {
		byItem[rc.ItemID] = rc
	}

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		m, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if m.Status == StatusCompleted {
			return stock.ErrAlreadyCompleted
		}
		if m.Status == StatusCanceled {
			return fmt.Errorf("canceled to completed: %w", stock.ErrInvalidTransition)
		}

		for _, it := range m.Items {
			rc := byItem[it.ID]
			received := it.Quantity
			if rc.ReceivedQuantity != nil {
				received = *rc.ReceivedQuantity
			}
			if received < 0 {
				return fmt.Errorf("negative received quantity %d", received)
			}
			expiry := it.ExpiryDate
			if rc.ExpiryDate != nil {
				expiry = rc.ExpiryDate
			}
			if received > 0 && expiry == nil {
				return fmt.Errorf("line %s: expiry date required", it.ID)
			}

			if received > 0 {
				if _, err := s.engine.Receive(ctx, it.DrugID, received, *expiry, it.Price, &it.ID); err != nil {
					return err
				}
			}
			it.ReceivedQuantity = &received
			it.ExpiryDate = expiry
			if err := s.repo.UpdateItem(ctx, it); err != nil {
				return err
			}
		}
		return s.repo.UpdateStatus(ctx, id, StatusCompleted)
	})
	if err != nil {
		return err
	}

	s.notifier.Notify(ctx, "maDrug", "Requisition received",
		fmt.Sprintf("Requisition %s has been received into stock", id),
		map[string]interface{}{"ma_drug_id": id.String()})
	return nil
}

// Edit updates the requisition's lines. Before completion only the document
// changes. On a completed requisition the lines keep their identity and each
// changed received quantity is reconciled against the lot it created, moving
// the drug aggregate by the same delta.
func (s *Service) Edit(ctx context.Context, id uuid.UUID, note *string, items []*MaDrugItem) error {
	if len(items) == 0 {
		return fmt.Errorf("requisition requires at least one line")
	}

	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		m, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		switch m.Status {
		case StatusPending, StatusApproved:
			total, err := s.priceLines(ctx, items)
			if err != nil {
				return err
			}
			if err := s.repo.ReplaceItems(ctx, id, items); err != nil {
				return err
			}
			m.Note = note
			m.TotalPrice = total
			return s.repo.UpdateTotals(ctx, m)
		case StatusCompleted:
			return s.editCompleted(ctx, m, note, items)
		default:
			return fmt.Errorf("edit of %s requisition: %w", m.Status, stock.ErrInvalidTransition)
		}
	})
}

func (s *Service) editCompleted(ctx context.Context, m *MaDrug, note *string, items []*MaDrugItem) error {
	current := make(map[uuid.UUID]*MaDrugItem, len(m.Items))
	for _, it := range m.Items {
		current[it.ID] = it
	}

	total := decimal.Zero
	for _, upd := range items {
		it, ok := current[upd.ID]
		if !ok {
			return fmt.Errorf("line %s: %w", upd.ID, stock.ErrNotFound)
		}
		if upd.ReceivedQuantity == nil {
			return fmt.Errorf("line %s: received quantity required", upd.ID)
		}
		next := *upd.ReceivedQuantity
		if next < 0 {
			return fmt.Errorf("negative received quantity %d", next)
		}

		previous := int64(0)
		if it.ReceivedQuantity != nil {
			previous = *it.ReceivedQuantity
		}
		if next != previous {
			lot, err := s.engine.LotBySource(ctx, it.ID)
			switch {
			case err == nil:
				if err := s.engine.ReconcileLot(ctx, lot.ID, previous, next); err != nil {
					return err
				}
			case previous == 0:
				// The line was received as zero, so no lot exists yet.
				expiry := it.ExpiryDate
				if upd.ExpiryDate != nil {
					expiry = upd.ExpiryDate
				}
				if expiry == nil {
					return fmt.Errorf("line %s: expiry date required", it.ID)
				}
				if _, err := s.engine.Receive(ctx, it.DrugID, next, *expiry, it.Price, &it.ID); err != nil {
					return err
				}
			default:
				return fmt.Errorf("lot for line %s: %w", it.ID, stock.ErrNotFound)
			}
		}

		it.ReceivedQuantity = &next
		if !upd.Price.IsZero() {
			it.Price = upd.Price
		}
		if upd.ExpiryDate != nil {
			it.ExpiryDate = upd.ExpiryDate
		}
		if err := s.repo.UpdateItem(ctx, it); err != nil {
			return err
		}
		total = total.Add(it.Price.Mul(decimal.NewFromInt(next)))
	}

	m.Note = note
	m.TotalPrice = total
	return s.repo.UpdateTotals(ctx, m)
}
