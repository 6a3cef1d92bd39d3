package excel

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/derekprior/ladder/internal/bracket"
	"github.com/derekprior/ladder/internal/league"
	"github.com/derekprior/ladder/internal/membership"
)

// Notifier writes a workbook to Dir for every generated schedule, bracket
// round and rollover. Export failures are logged; they never fail the
// lifecycle step that triggered them.
type Notifier struct {
	Dir      string
	Location *time.Location
	Log      *logrus.Logger
}

func (n Notifier) save(f *excelize.File, name string, fields logrus.Fields) {
	path := filepath.Join(n.Dir, name)
	entry := n.Log.WithFields(fields).WithField("path", path)
	if err := f.SaveAs(path); err != nil {
		entry.WithError(err).Error("saving workbook")
		return
	}
	entry.Debug("workbook saved")
}

func (n Notifier) ScheduleGenerated(_ context.Context, d *membership.Division, fixtures []league.Fixture) {
	fields := logrus.Fields{"season": d.Season, "division": d.ID}
	f, err := Schedule([]*membership.Division{d}, map[string][]league.Fixture{d.ID: fixtures}, n.Location)
	if err != nil {
		n.Log.WithFields(fields).WithError(err).Error("exporting schedule")
		return
	}
	n.save(f, ScheduleFile(d.Season, d.ID), fields)
}

func (n Notifier) BracketUpdated(_ context.Context, b *bracket.Bracket) {
	fields := logrus.Fields{"season": b.Season, "bracket": b.ID}
	f, err := Brackets([]*bracket.Bracket{b}, n.Location)
	if err != nil {
		n.Log.WithFields(fields).WithError(err).Error("exporting bracket")
		return
	}
	n.save(f, BracketFile(b), fields)
}

func (n Notifier) SeasonRolledOver(_ context.Context, from, to league.SeasonID, region string, moves []membership.Move) {
	fields := logrus.Fields{"season": to, "region": region}
	f, err := Moves(from, to, region, moves)
	if err != nil {
		n.Log.WithFields(fields).WithError(err).Error("exporting moves")
		return
	}
	n.save(f, fmt.Sprintf("season-%d-%s-moves.xlsx", to, region), fields)
}

func ScheduleFile(season league.SeasonID, division string) string {
	return fmt.Sprintf("season-%d-%s.xlsx", season, division)
}

func BracketFile(b *bracket.Bracket) string {
	scope := b.Division
	if scope == "" {
		scope = "all"
	}
	return fmt.Sprintf("season-%d-%s-%s.xlsx", b.Season, scope, b.Kind)
}
