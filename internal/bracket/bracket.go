// Package bracket drives knockout competitions: the post-season playoff and
// the cup. A Bracket is plain data; the Engine seeds it, schedules its rounds
// and advances it once every match of the current round has a winner.
package bracket

import (
	"fmt"
	"sort"
	"time"

	"github.com/derekprior/ladder/internal/league"
)

type Kind string

const (
	Playoff Kind = "PLAYOFF"
	Cup     Kind = "CUP"
)

type Round string

const (
	Wildcard Round = "WILDCARD"
	Round32  Round = "ROUND_32"
	Round16  Round = "ROUND_16"
	Quarter  Round = "QUARTER"
	Semi     Round = "SEMI"
	Final    Round = "FINAL"
)

func PlayoffRounds() []Round { return []Round{Wildcard, Semi, Final} }

func CupRounds() []Round { return []Round{Round32, Round16, Quarter, Semi, Final} }

type Status string

const (
	InProgress Status = "IN_PROGRESS"
	Completed  Status = "COMPLETED"
)

// Entrant is a team qualified for a bracket. Rank 1 is the best seed. Tier
// and Amateur only matter to the cup's first-round rule.
type Entrant struct {
	Team    league.TeamID
	Rank    int
	Tier    int
	Amateur bool
}

// Seed records a team that skips the first round and enters at Round.
type Seed struct {
	Team  league.TeamID
	Rank  int
	Round Round
}

// Match is one knockout game. Home or Away is empty until the match that
// feeds it resolves.
type Match struct {
	Round       Round
	Number      int
	Home        league.TeamID
	Away        league.TeamID
	Winner      league.TeamID
	HomeScore   int
	AwayScore   int
	Status      league.FixtureStatus
	ScheduledAt time.Time
}

func (m Match) Determined() bool {
	return m.Home != "" && m.Away != ""
}

func (m Match) Loser() league.TeamID {
	switch m.Winner {
	case "":
		return ""
	case m.Home:
		return m.Away
	default:
		return m.Home
	}
}

// Bracket is the state of one knockout competition. Current indexes Rounds
// and only moves forward; it equals len(Rounds) once the bracket completes.
type Bracket struct {
	ID       string
	Kind     Kind
	Season   league.SeasonID
	Division string
	Rounds   []Round
	Current  int
	Status   Status
	Entrants []Entrant
	Seeds    []Seed
	Matches  []Match
}

// Placement is a team's finishing position.
type Placement struct {
	Team  league.TeamID
	Place int
}

// Qualification marks a team that earned entry into a downstream competition.
type Qualification struct {
	Season    league.SeasonID
	Division  string
	BracketID string
	Kind      Kind
	Team      league.TeamID
	Place     int
}

func (b *Bracket) CurrentRound() Round {
	if b.Current < 0 || b.Current >= len(b.Rounds) {
		return ""
	}
	return b.Rounds[b.Current]
}

func (b *Bracket) RoundIndex(r Round) int {
	for i, round := range b.Rounds {
		if round == r {
			return i
		}
	}
	return -1
}

// RoundMatches returns the matches of r ordered by match number.
func (b *Bracket) RoundMatches(r Round) []Match {
	var matches []Match
	for _, m := range b.Matches {
		if m.Round == r {
			matches = append(matches, m)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Number < matches[j].Number })
	return matches
}

// RoundComplete reports whether every match of the current round has a
// recorded winner.
func (b *Bracket) RoundComplete() bool {
	if b.Status == Completed {
		return false
	}
	matches := b.RoundMatches(b.CurrentRound())
	if len(matches) == 0 {
		return false
	}
	for _, m := range matches {
		if m.Status != league.Finished || m.Winner == "" {
			return false
		}
	}
	return true
}

// SeedsFor returns the bye recipients entering at r, best rank first.
func (b *Bracket) SeedsFor(r Round) []Seed {
	var seeds []Seed
	for _, s := range b.Seeds {
		if s.Round == r {
			seeds = append(seeds, s)
		}
	}
	sort.Slice(seeds, func(i, j int) bool { return seeds[i].Rank < seeds[j].Rank })
	return seeds
}

// Record stores the result of a current-round match. Knockout matches need a
// winner, so a level score is rejected.
func (b *Bracket) Record(r Round, number int, res league.Result) error {
	if err := res.Validate(); err != nil {
		return err
	}
	if b.Status == Completed {
		return fmt.Errorf("bracket %s: %w", b.ID, league.ErrAlreadyFinished)
	}
	if r != b.CurrentRound() {
		return fmt.Errorf("%w: bracket %s is in round %s, not %s", league.ErrInvalidInput, b.ID, b.CurrentRound(), r)
	}
	if res.HomeScore == res.AwayScore {
		return fmt.Errorf("%w: knockout match %s/%d cannot end level", league.ErrInvalidInput, r, number)
	}

	for i := range b.Matches {
		m := &b.Matches[i]
		if m.Round != r || m.Number != number {
			continue
		}
		if !m.Status.Open() {
			return fmt.Errorf("match %s/%d: %w", r, number, league.ErrAlreadyFinished)
		}
		if !m.Determined() {
			return fmt.Errorf("%w: match %s/%d has an undetermined participant", league.ErrInvalidInput, r, number)
		}
		m.HomeScore, m.AwayScore = res.HomeScore, res.AwayScore
		m.Winner = m.Home
		if res.AwayScore > res.HomeScore {
			m.Winner = m.Away
		}
		m.Status = league.Finished
		return nil
	}
	return fmt.Errorf("match %s/%d: %w", r, number, league.ErrNotFound)
}

// Champion returns the winner of the final, or "" before completion.
func (b *Bracket) Champion() league.TeamID {
	if b.Status != Completed || len(b.Rounds) == 0 {
		return ""
	}
	finals := b.RoundMatches(b.Rounds[len(b.Rounds)-1])
	if len(finals) != 1 {
		return ""
	}
	return finals[0].Winner
}

// Placements ranks every eliminated team by the round it went out in: the
// final's loser is 2nd, the previous round's losers share 3rd, the round
// before that 5th, and so on.
func (b *Bracket) Placements() []Placement {
	champion := b.Champion()
	if champion == "" {
		return nil
	}
	placements := []Placement{{Team: champion, Place: 1}}
	for d := 0; d < len(b.Rounds); d++ {
		round := b.Rounds[len(b.Rounds)-1-d]
		place := (1 << d) + 1
		for _, m := range b.RoundMatches(round) {
			if loser := m.Loser(); loser != "" {
				placements = append(placements, Placement{Team: loser, Place: place})
			}
		}
	}
	return placements
}

// Qualifications returns the first slots placements as qualification
// records. Teams sharing the place at the cut all qualify, so the result can
// exceed slots. It is empty until the bracket completes.
func (b *Bracket) Qualifications(slots int) []Qualification {
	placements := b.Placements()
	if slots > len(placements) {
		slots = len(placements)
	}
	for slots > 0 && slots < len(placements) && placements[slots].Place == placements[slots-1].Place {
		slots++
	}
	quals := make([]Qualification, 0, slots)
	for _, p := range placements[:slots] {
		quals = append(quals, Qualification{
			Season:    b.Season,
			Division:  b.Division,
			BracketID: b.ID,
			Kind:      b.Kind,
			Team:      p.Team,
			Place:     p.Place,
		})
	}
	return quals
}

// Clone returns a deep copy.
func (b *Bracket) Clone() *Bracket {
	c := *b
	c.Rounds = append([]Round(nil), b.Rounds...)
	c.Entrants = append([]Entrant(nil), b.Entrants...)
	c.Seeds = append([]Seed(nil), b.Seeds...)
	c.Matches = append([]Match(nil), b.Matches...)
	return &c
}
