// Package scheduler runs the recurring back-office jobs. Today that is the
// near-expiry report: a daily scan for active lots approaching their expiry
// date, surfaced to operators through the notification store.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"github.com/hospitalms/backoffice/internal/domain/drug"
)

// LotSource lists lots nearing expiry. Implemented by drug.LotRepository.
type LotSource interface {
	ListExpiringWithin(ctx context.Context, cutoff time.Time) ([]*drug.DrugLot, error)
}

// Notifier receives the report. Implemented by notification.Service.
type Notifier interface {
	Notify(ctx context.Context, category, title, message string, meta map[string]interface{})
}

type Scheduler struct {
	lots       LotSource
	notifier   Notifier
	cronExpr   string
	windowDays int
	log        zerolog.Logger
	scheduler  *gocron.Scheduler
}

func New(lots LotSource, notifier Notifier, cronExpr string, windowDays int, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		lots:       lots,
		notifier:   notifier,
		cronExpr:   cronExpr,
		windowDays: windowDays,
		log:        log,
		scheduler:  gocron.NewScheduler(time.UTC),
	}
}

// Start schedules the expiry report and returns immediately. The job is
// read-only with respect to stock.
func (s *Scheduler) Start() error {
	_, err := s.scheduler.Cron(s.cronExpr).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := s.RunExpiryReport(ctx); err != nil {
			s.log.Error().Err(err).Msg("expiry report failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule expiry report: %w", err)
	}
	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// RunExpiryReport scans for active lots expiring within the configured window
// and raises one notification summarizing them. No lots means no noise.
func (s *Scheduler) RunExpiryReport(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, s.windowDays)
	lots, err := s.lots.ListExpiringWithin(ctx, cutoff)
	if err != nil {
		return err
	}
	if len(lots) == 0 {
		s.log.Debug().Msg("no lots nearing expiry")
		return nil
	}

	lotNumbers := make([]string, 0, len(lots))
	for _, l := range lots {
		lotNumbers = append(lotNumbers, l.LotNumber)
		s.log.Warn().
			Str("lot_number", l.LotNumber).
			Str("drug_id", l.DrugID.String()).
			Int64("quantity", l.Quantity).
			Time("expiry_date", l.ExpiryDate).
			Msg("lot nearing expiry")
	}

	s.notifier.Notify(ctx, "expiryReport", "Lots nearing expiry",
		fmt.Sprintf("%d lot(s) expire within %d days", len(lots), s.windowDays),
		map[string]interface{}{"lot_numbers": lotNumbers})
	return nil
}
