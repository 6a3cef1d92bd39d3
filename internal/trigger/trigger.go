// Package trigger drives the season lifecycle from cron schedules.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/derekprior/ladder/internal/league"
)

// Lifecycle is the part of the season orchestrator the triggers call.
type Lifecycle interface {
	Tick(ctx context.Context, season league.SeasonID) error
	Rollover(ctx context.Context, season league.SeasonID, startAfter time.Time) (league.SeasonID, error)
}

// Runner tracks the active season and runs lifecycle steps against it. A
// successful rollover makes the new season active.
type Runner struct {
	life    Lifecycle
	log     *logrus.Logger
	season  atomic.Int64
	Timeout time.Duration
	Now     func() time.Time
}

func New(life Lifecycle, log *logrus.Logger, active league.SeasonID) *Runner {
	r := &Runner{life: life, log: log, Timeout: 5 * time.Minute, Now: time.Now}
	r.season.Store(int64(active))
	return r
}

// Season returns the active season.
func (r *Runner) Season() league.SeasonID {
	return league.SeasonID(r.season.Load())
}

func (r *Runner) Tick(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	s := r.Season()
	if err := r.life.Tick(ctx, s); err != nil {
		r.log.WithError(err).WithField("season", s).Error("scheduled tick failed")
		return err
	}
	return nil
}

// Rollover opens the next season. A season that is still being played is
// left alone.
func (r *Runner) Rollover(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	s := r.Season()
	next, err := r.life.Rollover(ctx, s, r.Now())
	switch {
	case errors.Is(err, league.ErrStageConflict):
		r.log.WithField("season", s).Info("season still in progress, rollover skipped")
		return nil
	case err != nil:
		r.log.WithError(err).WithField("season", s).Error("scheduled rollover failed")
		return err
	}
	r.season.CompareAndSwap(int64(s), int64(next))
	r.log.WithFields(logrus.Fields{"from": s, "to": next}).Info("active season advanced")
	return nil
}

// Schedule registers the tick and rollover jobs on a new cron scheduler
// running in loc. An empty expression disables that job. The caller starts
// and stops the returned scheduler.
func (r *Runner) Schedule(ctx context.Context, loc *time.Location, tick, rollover string) (*cron.Cron, error) {
	if loc == nil {
		loc = time.UTC
	}
	c := cron.New(cron.WithLocation(loc))
	if tick != "" {
		if _, err := c.AddFunc(tick, func() { _ = r.Tick(ctx) }); err != nil {
			return nil, fmt.Errorf("tick schedule %q: %w", tick, err)
		}
	}
	if rollover != "" {
		if _, err := c.AddFunc(rollover, func() { _ = r.Rollover(ctx) }); err != nil {
			return nil, fmt.Errorf("rollover schedule %q: %w", rollover, err)
		}
	}
	return c, nil
}
