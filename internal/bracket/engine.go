package bracket

import (
	"fmt"
	"time"

	"github.com/derekprior/ladder/internal/league"
	"github.com/derekprior/ladder/internal/schedule"
	"github.com/derekprior/ladder/internal/strategy"
)

// Config describes one kind of knockout competition.
type Config struct {
	Kind   Kind
	Rounds []Round
	Policy SeedingPolicy
	// Offsets is the number of days between the first match of a round and
	// the earliest start of the round after it, keyed by that later round.
	Offsets       map[Round]int
	DefaultOffset int
	// Qualifiers is how many placements earn qualification on completion.
	Qualifiers int
	Calendar   schedule.Calendar
}

// Engine seeds and advances brackets of a single kind. Its methods are pure
// with respect to their inputs: a rejected call leaves the bracket untouched.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

func (e *Engine) Kind() Kind { return e.cfg.Kind }

func (e *Engine) Qualifiers() int { return e.cfg.Qualifiers }

// Outcome reports what Advance did.
type Outcome struct {
	// Skipped is set when the bracket had already moved past the requested
	// round. Nothing was changed.
	Skipped bool
	Round   Round
	Matches []Match

	Completed  bool
	Champion   league.TeamID
	Placements []Placement
}

// ActiveRounds returns the trailing rounds of the configured sequence needed
// to reduce a field of size entrants to a single champion.
func (e *Engine) ActiveRounds(entrants int) ([]Round, error) {
	if entrants < 2 {
		return nil, fmt.Errorf("%w: %s needs at least 2 entrants, got %d", league.ErrInsufficientParticipants, e.cfg.Kind, entrants)
	}
	need := 0
	for 1<<need < entrants {
		need++
	}
	if need > len(e.cfg.Rounds) {
		return nil, fmt.Errorf("%w: %d entrants need %d rounds, %s has %d", league.ErrInvalidInput,
			entrants, need, e.cfg.Kind, len(e.cfg.Rounds))
	}
	return append([]Round(nil), e.cfg.Rounds[len(e.cfg.Rounds)-need:]...), nil
}

// Start seeds a new bracket and schedules its first round no earlier than
// startAfter. Teams granted a bye are recorded as seeds of the second round.
func (e *Engine) Start(id string, season league.SeasonID, division string, entrants []Entrant, startAfter time.Time) (*Bracket, error) {
	if e.cfg.Policy == nil {
		return nil, fmt.Errorf("%w: %s has no seeding policy", league.ErrInvalidInput, e.cfg.Kind)
	}
	rounds, err := e.ActiveRounds(len(entrants))
	if err != nil {
		return nil, err
	}
	seen := make(map[league.TeamID]bool, len(entrants))
	for _, en := range entrants {
		if en.Team == "" || seen[en.Team] {
			return nil, fmt.Errorf("%w: bad or duplicate entrant %q", league.ErrInvalidInput, en.Team)
		}
		seen[en.Team] = true
	}

	byes := (1 << len(rounds)) - len(entrants)
	seeded, first, err := e.cfg.Policy.Open(entrants, byes)
	if err != nil {
		return nil, fmt.Errorf("seeding %s: %w", e.cfg.Kind, err)
	}
	matches, err := e.schedule(rounds[0], first, startAfter)
	if err != nil {
		return nil, err
	}

	b := &Bracket{
		ID:       id,
		Kind:     e.cfg.Kind,
		Season:   season,
		Division: division,
		Rounds:   rounds,
		Status:   InProgress,
		Entrants: append([]Entrant(nil), entrants...),
		Matches:  matches,
	}
	for _, s := range seeded {
		b.Seeds = append(b.Seeds, Seed{Team: s.Team, Rank: s.Rank, Round: rounds[1]})
	}

	if p, ok := e.cfg.Policy.(placeholderPolicy); ok && len(seeded) > 0 {
		pending, err := p.Placeholders(seeded, len(first))
		if err != nil {
			return nil, err
		}
		for i, pr := range pending {
			b.Matches = append(b.Matches, Match{
				Round:  rounds[1],
				Number: i + 1,
				Home:   pr.Home,
				Away:   pr.Away,
				Status: league.Scheduled,
			})
		}
	}
	return b, nil
}

// Advance closes round from and generates the next one, or completes the
// bracket after the final. Calling it for a round the bracket has already
// left is a no-op reported through Outcome.Skipped.
func (e *Engine) Advance(b *Bracket, from Round) (Outcome, error) {
	idx := b.RoundIndex(from)
	if idx < 0 {
		return Outcome{}, fmt.Errorf("%w: round %s is not part of bracket %s", league.ErrInvalidInput, from, b.ID)
	}
	if b.Status == Completed || idx < b.Current {
		return Outcome{Skipped: true}, nil
	}
	if idx > b.Current {
		return Outcome{}, fmt.Errorf("%w: bracket %s is still in round %s", league.ErrRoundIncomplete, b.ID, b.CurrentRound())
	}

	current := b.RoundMatches(from)
	if len(current) == 0 {
		return Outcome{}, fmt.Errorf("%w: round %s has no matches", league.ErrRoundIncomplete, from)
	}
	winners := make([]league.TeamID, 0, len(current))
	for _, m := range current {
		if m.Status != league.Finished || m.Winner == "" {
			return Outcome{}, fmt.Errorf("%w: %s match %d has no result", league.ErrRoundIncomplete, from, m.Number)
		}
		winners = append(winners, m.Winner)
	}

	if idx == len(b.Rounds)-1 {
		b.Status = Completed
		b.Current = len(b.Rounds)
		return Outcome{
			Completed:  true,
			Champion:   b.Champion(),
			Placements: b.Placements(),
		}, nil
	}

	next := b.Rounds[idx+1]
	var advancing []league.TeamID
	for _, s := range b.SeedsFor(next) {
		advancing = append(advancing, s.Team)
	}
	advancing = append(advancing, winners...)

	pairings, err := e.cfg.Policy.Next(advancing, idx+2)
	if err != nil {
		return Outcome{}, fmt.Errorf("drawing %s: %w", next, err)
	}
	anchor := current[0].ScheduledAt.AddDate(0, 0, e.offset(next))
	matches, err := e.schedule(next, pairings, anchor)
	if err != nil {
		return Outcome{}, err
	}

	// Placeholder rows for next are superseded by the real draw.
	kept := b.Matches[:0:0]
	for _, m := range b.Matches {
		if m.Round != next {
			kept = append(kept, m)
		}
	}
	b.Matches = append(kept, matches...)
	b.Current = idx + 1
	return Outcome{Round: next, Matches: matches}, nil
}

func (e *Engine) offset(r Round) int {
	if days, ok := e.cfg.Offsets[r]; ok {
		return days
	}
	return e.cfg.DefaultOffset
}

func (e *Engine) schedule(r Round, pairings []strategy.Pairing, startAfter time.Time) ([]Match, error) {
	assignments, err := schedule.Allocate(pairings, startAfter, e.cfg.Calendar)
	if err != nil {
		return nil, fmt.Errorf("scheduling %s: %w", r, err)
	}
	matches := make([]Match, len(assignments))
	for i, a := range assignments {
		matches[i] = Match{
			Round:       r,
			Number:      i + 1,
			Home:        a.Pairing.Home,
			Away:        a.Pairing.Away,
			Status:      league.Scheduled,
			ScheduledAt: a.At,
		}
	}
	return matches, nil
}
