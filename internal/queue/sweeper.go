package queue

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ak125/contentgate/internal/content"
	"github.com/ak125/contentgate/internal/store"
)

// ItemLister lists the items a sweep refreshes.
type ItemLister interface {
	ListItems(ctx context.Context) ([]store.ItemRecord, error)
}

// #region sweeper
// Sweeper enqueues one job per known item and role on a cron schedule.
type Sweeper struct {
	spec  string
	items ItemLister
	roles []content.Role
	log   *zap.Logger
}

// NewSweeper validates spec (standard five-field cron syntax).
func NewSweeper(spec string, items ItemLister, log *zap.Logger) (*Sweeper, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{spec: spec, items: items, roles: content.Roles, log: log}, nil
}

// Run schedules sweeps until ctx is done and waits for a running sweep to end.
func (s *Sweeper) Run(ctx context.Context, enqueue EnqueueFunc) error {
	c := cron.New()
	if _, err := c.AddFunc(s.spec, func() {
		n, err := s.Sweep(ctx, enqueue)
		if err != nil {
			s.log.Warn("sweep failed", zap.Int("enqueued", n), zap.Error(err))
			return
		}
		s.log.Info("sweep enqueued jobs", zap.Int("enqueued", n))
	}); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// Sweep enqueues every item × role once and returns how many jobs went in.
func (s *Sweeper) Sweep(ctx context.Context, enqueue EnqueueFunc) (int, error) {
	items, err := s.items.ListItems(ctx)
	if err != nil {
		return 0, fmt.Errorf("list items: %w", err)
	}
	n := 0
	for _, item := range items {
		for _, role := range s.roles {
			if err := enqueue(ctx, Job{ItemID: item.ID, Role: role}); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

// #endregion sweeper
