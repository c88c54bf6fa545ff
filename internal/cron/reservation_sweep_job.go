package cron

import (
	"context"
	"fmt"

	"github.com/rfl-designer/e-tupan-sub007/pkg/logger"
	"github.com/rfl-designer/e-tupan-sub007/pkg/metrics"
)

const defaultSweepBatchSize = 100

type expiredReleaser interface {
	ReleaseExpired(ctx context.Context, batchSize int) (int, error)
}

// ReservationSweepJobParams configure the expired-reservation sweep.
type ReservationSweepJobParams struct {
	Logger       *logger.Logger
	Reservations expiredReleaser
	Metrics      *metrics.CronJobMetrics
	BatchSize    int
}

// NewReservationSweepJob builds the job that reclaims expired stock holds.
func NewReservationSweepJob(params ReservationSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reservations == nil {
		return nil, fmt.Errorf("reservation service required")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultSweepBatchSize
	}
	return &reservationSweepJob{
		logg:         params.Logger,
		reservations: params.Reservations,
		metrics:      params.Metrics,
		batchSize:    batchSize,
	}, nil
}

type reservationSweepJob struct {
	logg         *logger.Logger
	reservations expiredReleaser
	metrics      *metrics.CronJobMetrics
	batchSize    int
}

func (j *reservationSweepJob) Name() string { return "reservation-sweep" }

// Run reclaims expired holds. A partial sweep still reports what it released
// before surfacing the error to the runner.
func (j *reservationSweepJob) Run(ctx context.Context) error {
	released, err := j.reservations.ReleaseExpired(ctx, j.batchSize)
	j.metrics.AddReleased(j.Name(), released)
	logCtx := j.logg.WithField(ctx, "released", released)
	if err != nil {
		return fmt.Errorf("release expired reservations (released %d): %w", released, err)
	}
	j.logg.Info(logCtx, "reservation sweep complete")
	return nil
}
