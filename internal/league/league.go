// Package league holds the values shared by every part of the season engine:
// teams, standings, fixtures and the error taxonomy.
package league

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidInput             = errors.New("invalid input")
	ErrSchedulingDeadlock       = errors.New("scheduling deadlock")
	ErrRoundIncomplete          = errors.New("round incomplete")
	ErrInsufficientParticipants = errors.New("insufficient participants")
	ErrDuplicateGeneration      = errors.New("duplicate generation attempt")
	ErrCapacityMismatch         = errors.New("division capacity mismatch")
	ErrNoVacancy                = errors.New("no synthetic occupant to replace")
	ErrAlreadyFinished          = errors.New("already finished")
	ErrStageConflict            = errors.New("stage conflict")
	ErrNotFound                 = errors.New("not found")
)

// TeamID identifies a team. The empty TeamID marks an undetermined slot.
type TeamID string

// SeasonID is the integer-ordered season epoch.
type SeasonID int

func (s SeasonID) Next() SeasonID { return s + 1 }

// Team is a division occupant. Synthetic teams are placeholders created to
// keep a division at capacity.
type Team struct {
	ID        TeamID
	Name      string
	Synthetic bool
}

// Standing is a team's running record for one season.
type Standing struct {
	Played       int
	Wins         int
	Losses       int
	Draws        int
	Points       int
	GoalsFor     int
	GoalsAgainst int
}

func (s Standing) GoalDifference() int {
	return s.GoalsFor - s.GoalsAgainst
}

// Add applies an additive delta. Deltas commute, so results of different
// fixtures can be applied in any order.
func (s Standing) Add(d Standing) Standing {
	return Standing{
		Played:       s.Played + d.Played,
		Wins:         s.Wins + d.Wins,
		Losses:       s.Losses + d.Losses,
		Draws:        s.Draws + d.Draws,
		Points:       s.Points + d.Points,
		GoalsFor:     s.GoalsFor + d.GoalsFor,
		GoalsAgainst: s.GoalsAgainst + d.GoalsAgainst,
	}
}

// PointsRule awards table points per result.
type PointsRule struct {
	Win  int
	Draw int
	Loss int
}

func DefaultPoints() PointsRule {
	return PointsRule{Win: 3, Draw: 1, Loss: 0}
}

// FixtureStatus is the lifecycle of a single match.
type FixtureStatus string

const (
	Scheduled FixtureStatus = "SCHEDULED"
	Live      FixtureStatus = "LIVE"
	Finished  FixtureStatus = "FINISHED"
)

// Open reports whether a result can still be recorded.
func (s FixtureStatus) Open() bool {
	return s == Scheduled || s == Live
}

// Fixture is one regular-season match. Only ScheduledAt and Status (and the
// score once finished) change after creation.
type Fixture struct {
	ID          string
	Season      SeasonID
	Division    string
	Home        TeamID
	Away        TeamID
	ScheduledAt time.Time
	Status      FixtureStatus
	RoundLabel  string
	HomeScore   int
	AwayScore   int
	CompletedAt time.Time
}

// Result is a concluded match as supplied by the match-result feed.
type Result struct {
	HomeScore   int
	AwayScore   int
	CompletedAt time.Time
}

func (r Result) Validate() error {
	if r.HomeScore < 0 || r.AwayScore < 0 {
		return fmt.Errorf("%w: negative score %d-%d", ErrInvalidInput, r.HomeScore, r.AwayScore)
	}
	return nil
}

// Deltas returns the standing increments for the home and away team.
func (r Result) Deltas(rule PointsRule) (home, away Standing) {
	home = Standing{Played: 1, GoalsFor: r.HomeScore, GoalsAgainst: r.AwayScore}
	away = Standing{Played: 1, GoalsFor: r.AwayScore, GoalsAgainst: r.HomeScore}
	switch {
	case r.HomeScore > r.AwayScore:
		home.Wins, home.Points = 1, rule.Win
		away.Losses, away.Points = 1, rule.Loss
	case r.HomeScore < r.AwayScore:
		home.Losses, home.Points = 1, rule.Loss
		away.Wins, away.Points = 1, rule.Win
	default:
		home.Draws, home.Points = 1, rule.Draw
		away.Draws, away.Points = 1, rule.Draw
	}
	return home, away
}
