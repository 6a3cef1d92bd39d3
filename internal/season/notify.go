package season

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/derekprior/ladder/internal/bracket"
	"github.com/derekprior/ladder/internal/league"
	"github.com/derekprior/ladder/internal/membership"
)

// LogNotifier writes lifecycle events to a structured logger.
type LogNotifier struct {
	Log *logrus.Logger
}

func (n LogNotifier) ScheduleGenerated(_ context.Context, d *membership.Division, fixtures []league.Fixture) {
	fields := logrus.Fields{
		"season":   d.Season,
		"division": d.ID,
		"fixtures": len(fixtures),
	}
	if len(fixtures) > 0 {
		fields["first"] = fixtures[0].ScheduledAt
		fields["last"] = fixtures[len(fixtures)-1].ScheduledAt
	}
	n.Log.WithFields(fields).Info("schedule generated")
}

func (n LogNotifier) BracketUpdated(_ context.Context, b *bracket.Bracket) {
	entry := n.Log.WithFields(logrus.Fields{
		"season":  b.Season,
		"bracket": b.ID,
		"kind":    b.Kind,
		"status":  b.Status,
	})
	if b.Status == bracket.Completed {
		entry.WithField("champion", b.Champion()).Info("bracket completed")
		return
	}
	entry.WithField("round", b.CurrentRound()).Info("bracket round generated")
}

func (n LogNotifier) SeasonRolledOver(_ context.Context, from, to league.SeasonID, region string, moves []membership.Move) {
	for _, mv := range moves {
		n.Log.WithFields(logrus.Fields{
			"season":   to,
			"team":     mv.Team,
			"from":     mv.From,
			"to":       mv.To,
			"promoted": mv.Promoted,
		}).Debug("team moved")
	}
	n.Log.WithFields(logrus.Fields{
		"from":   from,
		"to":     to,
		"region": region,
		"moves":  len(moves),
	}).Info("region rolled over")
}

// Notifiers fans events out to several notifiers in order.
type Notifiers []Notifier

func (ns Notifiers) ScheduleGenerated(ctx context.Context, d *membership.Division, fixtures []league.Fixture) {
	for _, n := range ns {
		n.ScheduleGenerated(ctx, d, fixtures)
	}
}

func (ns Notifiers) BracketUpdated(ctx context.Context, b *bracket.Bracket) {
	for _, n := range ns {
		n.BracketUpdated(ctx, b)
	}
}

func (ns Notifiers) SeasonRolledOver(ctx context.Context, from, to league.SeasonID, region string, moves []membership.Move) {
	for _, n := range ns {
		n.SeasonRolledOver(ctx, from, to, region, moves)
	}
}

// LogLedger records payouts in the log. It stands in for a real ledger
// service, which owns the money movement.
type LogLedger struct {
	Log *logrus.Logger
}

func (l LogLedger) Pay(_ context.Context, p Payout) error {
	l.Log.WithFields(logrus.Fields{
		"key":     p.Key,
		"season":  p.Season,
		"bracket": p.BracketID,
		"kind":    p.Kind,
		"team":    p.Team,
		"amount":  p.Amount,
	}).Info("prize payout")
	return nil
}
