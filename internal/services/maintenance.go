package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/robfig/cron/v3"
)

// Maintenance runs the periodic jobs: metric sampling and the purge of
// pending registrations whose activation window has closed.
type Maintenance struct {
	DB            *sqlx.DB
	Hub           *MetricsHub
	DiskPath      string
	SampleEvery   time.Duration
	SweepSchedule string
	PendingMaxAge time.Duration
	Now           func() time.Time
}

func (m *Maintenance) now() time.Time {
	if m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

// SweepPendingUsers deletes pending users that joined more than
// PendingMaxAge ago.
func (m *Maintenance) SweepPendingUsers(ctx context.Context) (int64, error) {
	maxAge := m.PendingMaxAge
	if maxAge <= 0 {
		maxAge = DefaultConfirmationMaxAge
	}
	return PurgeExpiredPendingUsers(ctx, m.DB, m.now().Add(-maxAge))
}

func (m *Maintenance) SampleMetrics(ctx context.Context) error {
	sample, err := CaptureMetrics(ctx, m.DB, m.DiskPath, m.now())
	if err != nil {
		return err
	}
	if m.Hub != nil {
		m.Hub.Broadcast(sample)
	}
	return nil
}

// Run schedules the jobs and blocks until ctx is done.
func (m *Maintenance) Run(ctx context.Context) error {
	c := cron.New()
	if m.SampleEvery > 0 {
		every := fmt.Sprintf("@every %s", m.SampleEvery)
		if _, err := c.AddFunc(every, func() {
			if err := m.SampleMetrics(ctx); err != nil {
				log.Printf("metrics capture: %v", err)
			}
		}); err != nil {
			return fmt.Errorf("schedule metrics: %w", err)
		}
	}
	if m.SweepSchedule != "" {
		if _, err := c.AddFunc(m.SweepSchedule, func() {
			n, err := m.SweepPendingUsers(ctx)
			if err != nil {
				log.Printf("pending sweep: %v", err)
				return
			}
			if n > 0 {
				log.Printf("pending sweep removed %d users", n)
			}
		}); err != nil {
			return fmt.Errorf("schedule pending sweep: %w", err)
		}
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
