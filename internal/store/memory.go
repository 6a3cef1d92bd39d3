// Package store persists season state: an in-memory store for tests and
// single-process runs, and a PostgreSQL store for everything else.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/derekprior/ladder/internal/bracket"
	"github.com/derekprior/ladder/internal/league"
	"github.com/derekprior/ladder/internal/membership"
	"github.com/derekprior/ladder/internal/season"
)

type trackKey struct {
	season   league.SeasonID
	division string
}

// Memory is a mutex-guarded season.Store. Values are copied on the way in
// and out so callers never share state with the store.
type Memory struct {
	mu             sync.Mutex
	claims         map[season.GenerationKey]bool
	tracks         map[trackKey]season.Track
	divisions      map[trackKey]*membership.Division
	fixtures       map[string]league.Fixture
	fixtureOrder   []string
	brackets       map[string]*bracket.Bracket
	qualifications []bracket.Qualification
	sequences      map[string]int
	payouts        map[string]season.Payout
	payoutOrder    []string
	settled        map[string]bool
}

var _ season.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		claims:    make(map[season.GenerationKey]bool),
		tracks:    make(map[trackKey]season.Track),
		divisions: make(map[trackKey]*membership.Division),
		fixtures:  make(map[string]league.Fixture),
		brackets:  make(map[string]*bracket.Bracket),
		sequences: make(map[string]int),
		payouts:   make(map[string]season.Payout),
		settled:   make(map[string]bool),
	}
}

func (m *Memory) Commit(_ context.Context, c season.Commit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.claims[c.Key] {
		return fmt.Errorf("%s: %w", c.Key, league.ErrDuplicateGeneration)
	}
	if t := c.Transition; t != nil {
		current, exists := m.tracks[trackKey{t.To.Season, t.To.Division}]
		switch {
		case t.From == "" && exists:
			return fmt.Errorf("%w: division %s already has a %d track", league.ErrStageConflict, t.To.Division, t.To.Season)
		case t.From != "" && (!exists || current.Stage != t.From):
			return fmt.Errorf("%w: division %s is in %q, expected %s", league.ErrStageConflict, t.To.Division, current.Stage, t.From)
		}
	}
	for _, f := range c.Fixtures {
		if _, dup := m.fixtures[f.ID]; dup {
			return fmt.Errorf("%w: fixture %s already exists", league.ErrInvalidInput, f.ID)
		}
	}

	m.claims[c.Key] = true
	if t := c.Transition; t != nil {
		m.tracks[trackKey{t.To.Season, t.To.Division}] = t.To
	}
	for _, d := range c.Divisions {
		m.divisions[trackKey{d.Season, d.ID}] = d.Clone()
	}
	for _, f := range c.Fixtures {
		m.fixtures[f.ID] = f
		m.fixtureOrder = append(m.fixtureOrder, f.ID)
	}
	if c.Bracket != nil {
		m.brackets[c.Bracket.ID] = c.Bracket.Clone()
	}
	m.qualifications = append(m.qualifications, c.Qualifications...)
	for _, p := range c.Payouts {
		if _, dup := m.payouts[p.Key]; !dup {
			m.payouts[p.Key] = p
			m.payoutOrder = append(m.payoutOrder, p.Key)
		}
	}
	if s := c.Sequence; s != nil && s.Next > m.sequences[s.Prefix] {
		m.sequences[s.Prefix] = s.Next
	}
	return nil
}

func (m *Memory) Track(_ context.Context, s league.SeasonID, division string) (season.Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tracks[trackKey{s, division}]
	if !ok {
		return season.Track{}, fmt.Errorf("track %d/%s: %w", s, division, league.ErrNotFound)
	}
	return t, nil
}

func (m *Memory) Tracks(_ context.Context, s league.SeasonID) ([]season.Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var tracks []season.Track
	for k, t := range m.tracks {
		if k.season == s {
			tracks = append(tracks, t)
		}
	}
	sort.Slice(tracks, func(i, j int) bool { return tracks[i].Division < tracks[j].Division })
	return tracks, nil
}

func (m *Memory) Division(_ context.Context, s league.SeasonID, id string) (*membership.Division, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.divisions[trackKey{s, id}]
	if !ok {
		return nil, fmt.Errorf("division %d/%s: %w", s, id, league.ErrNotFound)
	}
	return d.Clone(), nil
}

func (m *Memory) Divisions(_ context.Context, s league.SeasonID) ([]*membership.Division, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var divisions []*membership.Division
	for k, d := range m.divisions {
		if k.season == s {
			divisions = append(divisions, d.Clone())
		}
	}
	sort.Slice(divisions, func(i, j int) bool { return divisions[i].ID < divisions[j].ID })
	return divisions, nil
}

func (m *Memory) ReplaceMember(_ context.Context, s league.SeasonID, division string, replaced league.TeamID, team league.Team) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.divisions[trackKey{s, division}]
	if !ok {
		return fmt.Errorf("division %d/%s: %w", s, division, league.ErrNotFound)
	}
	if d.Has(team.ID) {
		return fmt.Errorf("%w: team %s already in %s", league.ErrInvalidInput, team.ID, division)
	}

	if replaced == "" {
		if len(d.Members) >= d.Capacity {
			return fmt.Errorf("%w: division %s is full", league.ErrNoVacancy, division)
		}
		d.Members = append(d.Members, membership.Membership{Team: team})
		return nil
	}

	for i, mem := range d.Members {
		if mem.Team.ID != replaced {
			continue
		}
		if !mem.Team.Synthetic {
			return fmt.Errorf("%w: %s is not a synthetic team", league.ErrInvalidInput, replaced)
		}
		d.Members[i] = membership.Membership{Team: team, Standing: mem.Standing}
		for _, id := range m.fixtureOrder {
			f := m.fixtures[id]
			if f.Season != s || f.Division != division || !f.Status.Open() {
				continue
			}
			if f.Home == replaced {
				f.Home = team.ID
			}
			if f.Away == replaced {
				f.Away = team.ID
			}
			m.fixtures[id] = f
		}
		return nil
	}
	return fmt.Errorf("team %s in %s: %w", replaced, division, league.ErrNotFound)
}

func (m *Memory) Fixture(_ context.Context, id string) (league.Fixture, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.fixtures[id]
	if !ok {
		return league.Fixture{}, fmt.Errorf("fixture %s: %w", id, league.ErrNotFound)
	}
	return f, nil
}

// Fixtures returns a division's fixtures in scheduled order.
func (m *Memory) Fixtures(_ context.Context, s league.SeasonID, division string) ([]league.Fixture, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var fixtures []league.Fixture
	for _, id := range m.fixtureOrder {
		if f := m.fixtures[id]; f.Season == s && f.Division == division {
			fixtures = append(fixtures, f)
		}
	}
	sort.SliceStable(fixtures, func(i, j int) bool { return fixtures[i].ScheduledAt.Before(fixtures[j].ScheduledAt) })
	return fixtures, nil
}

func (m *Memory) StartFixture(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.fixtures[id]
	if !ok {
		return fmt.Errorf("fixture %s: %w", id, league.ErrNotFound)
	}
	if f.Status != league.Scheduled {
		return fmt.Errorf("fixture %s is %s: %w", id, f.Status, league.ErrAlreadyFinished)
	}
	f.Status = league.Live
	m.fixtures[id] = f
	return nil
}

func (m *Memory) FinishFixture(_ context.Context, id string, res league.Result, home, away league.Standing) (league.Fixture, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.fixtures[id]
	if !ok {
		return league.Fixture{}, fmt.Errorf("fixture %s: %w", id, league.ErrNotFound)
	}
	if !f.Status.Open() {
		return league.Fixture{}, fmt.Errorf("fixture %s: %w", id, league.ErrAlreadyFinished)
	}
	d, ok := m.divisions[trackKey{f.Season, f.Division}]
	if !ok {
		return league.Fixture{}, fmt.Errorf("division %s: %w", f.Division, league.ErrNotFound)
	}
	// Check both teams before touching either standing.
	if !d.Has(f.Home) || !d.Has(f.Away) {
		return league.Fixture{}, fmt.Errorf("%w: fixture %s teams are not members of %s", league.ErrInvalidInput, id, f.Division)
	}
	_ = d.Apply(f.Home, home)
	_ = d.Apply(f.Away, away)

	f.Status = league.Finished
	f.HomeScore, f.AwayScore, f.CompletedAt = res.HomeScore, res.AwayScore, res.CompletedAt
	m.fixtures[id] = f
	return f, nil
}

func (m *Memory) Bracket(_ context.Context, id string) (*bracket.Bracket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.brackets[id]
	if !ok {
		return nil, fmt.Errorf("bracket %s: %w", id, league.ErrNotFound)
	}
	return b.Clone(), nil
}

func (m *Memory) Brackets(_ context.Context, s league.SeasonID) ([]*bracket.Bracket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var brackets []*bracket.Bracket
	for _, b := range m.brackets {
		if b.Season == s {
			brackets = append(brackets, b.Clone())
		}
	}
	sort.Slice(brackets, func(i, j int) bool { return brackets[i].ID < brackets[j].ID })
	return brackets, nil
}

func (m *Memory) FinishBracketMatch(_ context.Context, id string, match bracket.Match) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.brackets[id]
	if !ok {
		return fmt.Errorf("bracket %s: %w", id, league.ErrNotFound)
	}
	if b.CurrentRound() != match.Round {
		return fmt.Errorf("bracket %s left round %s: %w", id, match.Round, league.ErrAlreadyFinished)
	}
	for i := range b.Matches {
		cur := &b.Matches[i]
		if cur.Round != match.Round || cur.Number != match.Number {
			continue
		}
		if !cur.Status.Open() || cur.Home != match.Home || cur.Away != match.Away {
			return fmt.Errorf("match %s/%d: %w", match.Round, match.Number, league.ErrAlreadyFinished)
		}
		*cur = match
		return nil
	}
	return fmt.Errorf("match %s/%d: %w", match.Round, match.Number, league.ErrNotFound)
}

func (m *Memory) Qualifications(_ context.Context, s league.SeasonID) ([]bracket.Qualification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var quals []bracket.Qualification
	for _, q := range m.qualifications {
		if q.Season == s {
			quals = append(quals, q)
		}
	}
	return quals, nil
}

func (m *Memory) Sequence(_ context.Context, prefix string) (membership.Sequence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return membership.Sequence{Prefix: prefix, Next: m.sequences[prefix]}, nil
}

func (m *Memory) PendingPayouts(_ context.Context, s league.SeasonID) ([]season.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pending []season.Payout
	for _, key := range m.payoutOrder {
		if p := m.payouts[key]; p.Season == s && !m.settled[key] {
			pending = append(pending, p)
		}
	}
	return pending, nil
}

func (m *Memory) SettlePayout(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payouts[key]; !ok {
		return fmt.Errorf("payout %s: %w", key, league.ErrNotFound)
	}
	m.settled[key] = true
	return nil
}
