package api

import (
	"time"

	"github.com/derekprior/ladder/internal/bracket"
	"github.com/derekprior/ladder/internal/league"
)

type trackView struct {
	Season    int    `json:"season"`
	Division  string `json:"division"`
	Stage     string `json:"stage"`
	BracketID string `json:"bracket_id,omitempty"`
}

type fixtureView struct {
	ID          string     `json:"id"`
	Season      int        `json:"season"`
	Division    string     `json:"division"`
	Round       string     `json:"round"`
	Home        string     `json:"home"`
	Away        string     `json:"away"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	Status      string     `json:"status"`
	HomeScore   *int       `json:"home_score,omitempty"`
	AwayScore   *int       `json:"away_score,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func newFixtureView(f league.Fixture) fixtureView {
	v := fixtureView{
		ID:          f.ID,
		Season:      int(f.Season),
		Division:    f.Division,
		Round:       f.RoundLabel,
		Home:        string(f.Home),
		Away:        string(f.Away),
		ScheduledAt: f.ScheduledAt,
		Status:      string(f.Status),
	}
	if f.Status == league.Finished {
		home, away, at := f.HomeScore, f.AwayScore, f.CompletedAt
		v.HomeScore, v.AwayScore, v.CompletedAt = &home, &away, &at
	}
	return v
}

type standingView struct {
	Position       int    `json:"position"`
	Team           string `json:"team"`
	Name           string `json:"name"`
	Synthetic      bool   `json:"synthetic"`
	Played         int    `json:"played"`
	Wins           int    `json:"wins"`
	Draws          int    `json:"draws"`
	Losses         int    `json:"losses"`
	GoalsFor       int    `json:"goals_for"`
	GoalsAgainst   int    `json:"goals_against"`
	GoalDifference int    `json:"goal_difference"`
	Points         int    `json:"points"`
}

type matchView struct {
	Round       string    `json:"round"`
	Number      int       `json:"number"`
	Home        string    `json:"home"`
	Away        string    `json:"away"`
	Winner      string    `json:"winner,omitempty"`
	HomeScore   int       `json:"home_score"`
	AwayScore   int       `json:"away_score"`
	Status      string    `json:"status"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

func newMatchView(m bracket.Match) matchView {
	return matchView{
		Round:       string(m.Round),
		Number:      m.Number,
		Home:        string(m.Home),
		Away:        string(m.Away),
		Winner:      string(m.Winner),
		HomeScore:   m.HomeScore,
		AwayScore:   m.AwayScore,
		Status:      string(m.Status),
		ScheduledAt: m.ScheduledAt,
	}
}

type placementView struct {
	Team  string `json:"team"`
	Place int    `json:"place"`
}

type bracketView struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Season     int             `json:"season"`
	Division   string          `json:"division,omitempty"`
	Status     string          `json:"status"`
	Round      string          `json:"round,omitempty"`
	Rounds     []string        `json:"rounds"`
	Matches    []matchView     `json:"matches"`
	Champion   string          `json:"champion,omitempty"`
	Placements []placementView `json:"placements,omitempty"`
}

func newBracketView(b *bracket.Bracket) bracketView {
	v := bracketView{
		ID:       b.ID,
		Kind:     string(b.Kind),
		Season:   int(b.Season),
		Division: b.Division,
		Status:   string(b.Status),
		Round:    string(b.CurrentRound()),
		Champion: string(b.Champion()),
	}
	for _, r := range b.Rounds {
		v.Rounds = append(v.Rounds, string(r))
		for _, m := range b.RoundMatches(r) {
			v.Matches = append(v.Matches, newMatchView(m))
		}
	}
	for _, p := range b.Placements() {
		v.Placements = append(v.Placements, placementView{Team: string(p.Team), Place: p.Place})
	}
	return v
}
