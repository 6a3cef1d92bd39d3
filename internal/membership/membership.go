// Package membership keeps divisions full and moves teams between tiers at
// season boundaries.
package membership

import (
	"fmt"
	"sort"

	"github.com/derekprior/ladder/internal/league"
)

// Membership is a team's place in a division for one season.
type Membership struct {
	Team     league.Team
	Standing league.Standing
}

// Division is a fixed-capacity group of teams for one (region, tier) in a
// season. Once initialized it always holds exactly Capacity members.
type Division struct {
	ID       string
	Season   league.SeasonID
	Region   string
	Tier     int
	Capacity int
	Members  []Membership
}

// Better reports whether a finishes above b: points, then goal difference,
// then wins, then team id so the order is total.
func Better(a, b Membership) bool {
	if a.Standing.Points != b.Standing.Points {
		return a.Standing.Points > b.Standing.Points
	}
	if gd, other := a.Standing.GoalDifference(), b.Standing.GoalDifference(); gd != other {
		return gd > other
	}
	if a.Standing.Wins != b.Standing.Wins {
		return a.Standing.Wins > b.Standing.Wins
	}
	return a.Team.ID < b.Team.ID
}

// Ranked returns the members in standings order.
func (d *Division) Ranked() []Membership {
	ranked := append([]Membership(nil), d.Members...)
	sort.SliceStable(ranked, func(i, j int) bool { return Better(ranked[i], ranked[j]) })
	return ranked
}

// Contenders returns the real teams in standings order.
func (d *Division) Contenders() []Membership {
	var contenders []Membership
	for _, m := range d.Ranked() {
		if !m.Team.Synthetic {
			contenders = append(contenders, m)
		}
	}
	return contenders
}

func (d *Division) TeamIDs() []league.TeamID {
	ids := make([]league.TeamID, len(d.Members))
	for i, m := range d.Members {
		ids[i] = m.Team.ID
	}
	return ids
}

func (d *Division) Has(team league.TeamID) bool {
	return d.indexOf(team) >= 0
}

func (d *Division) indexOf(team league.TeamID) int {
	for i, m := range d.Members {
		if m.Team.ID == team {
			return i
		}
	}
	return -1
}

// Apply adds a standing delta to one member.
func (d *Division) Apply(team league.TeamID, delta league.Standing) error {
	i := d.indexOf(team)
	if i < 0 {
		return fmt.Errorf("team %s in division %s: %w", team, d.ID, league.ErrNotFound)
	}
	d.Members[i].Standing = d.Members[i].Standing.Add(delta)
	return nil
}

// Validate checks the capacity invariant and member uniqueness.
func (d *Division) Validate() error {
	if d.Capacity < 2 {
		return fmt.Errorf("%w: division %s capacity %d", league.ErrInvalidInput, d.ID, d.Capacity)
	}
	if len(d.Members) != d.Capacity {
		return fmt.Errorf("%w: division %s has %d members, capacity %d", league.ErrCapacityMismatch,
			d.ID, len(d.Members), d.Capacity)
	}
	seen := make(map[league.TeamID]bool, len(d.Members))
	for _, m := range d.Members {
		if m.Team.ID == "" || seen[m.Team.ID] {
			return fmt.Errorf("%w: division %s has empty or duplicate team %q", league.ErrInvalidInput, d.ID, m.Team.ID)
		}
		seen[m.Team.ID] = true
	}
	return nil
}

func (d *Division) Clone() *Division {
	c := *d
	c.Members = append([]Membership(nil), d.Members...)
	return &c
}

// Sequence hands out synthetic team identities. Its position is explicit
// state owned by the caller so that generation is reproducible.
type Sequence struct {
	Prefix string
	Next   int
}

// Synthetic returns the next placeholder team.
func (s *Sequence) Synthetic() league.Team {
	s.Next++
	prefix := s.Prefix
	if prefix == "" {
		prefix = "ai"
	}
	return league.Team{
		ID:        league.TeamID(fmt.Sprintf("%s-%d", prefix, s.Next)),
		Name:      fmt.Sprintf("Reserve %d", s.Next),
		Synthetic: true,
	}
}

// Backfill tops the division up to capacity with synthetic teams and returns
// the teams it created.
func Backfill(d *Division, seq *Sequence) ([]league.Team, error) {
	if len(d.Members) > d.Capacity {
		return nil, fmt.Errorf("%w: division %s has %d members, capacity %d", league.ErrCapacityMismatch,
			d.ID, len(d.Members), d.Capacity)
	}
	var created []league.Team
	for len(d.Members) < d.Capacity {
		team := seq.Synthetic()
		for d.Has(team.ID) {
			team = seq.Synthetic()
		}
		d.Members = append(d.Members, Membership{Team: team})
		created = append(created, team)
	}
	return created, nil
}

// Link is a promotion/relegation relationship between two tiers: Count
// teams swap places every season.
type Link struct {
	Upper int
	Lower int
	Count int
}

// Move is one team changing division at rollover.
type Move struct {
	Team     league.TeamID
	From     string
	To       string
	Promoted bool
}

// Rollover closes a region's season. Moves are decided from the final
// standings of every division before any of them is applied, so a team is
// only ever moved once. The returned divisions belong to next: every member
// starts from a zero standing, surplus synthetic teams are evicted lowest
// first and vacancies are backfilled. A division that would end up with more
// real teams than its capacity fails with ErrCapacityMismatch.
func Rollover(region []*Division, links []Link, next league.SeasonID, seq *Sequence) ([]*Division, []Move, error) {
	byTier := make(map[int]*Division, len(region))
	for _, d := range region {
		if _, dup := byTier[d.Tier]; dup {
			return nil, nil, fmt.Errorf("%w: region %s has two tier %d divisions", league.ErrInvalidInput, d.Region, d.Tier)
		}
		if d.Region != region[0].Region {
			return nil, nil, fmt.Errorf("%w: rollover mixes regions %s and %s", league.ErrInvalidInput, region[0].Region, d.Region)
		}
		byTier[d.Tier] = d
	}

	moving := make(map[league.TeamID]bool)
	var moves []Move
	for _, link := range links {
		if link.Count <= 0 {
			continue
		}
		upper, lower := byTier[link.Upper], byTier[link.Lower]
		if upper == nil || lower == nil {
			continue
		}

		ranked := upper.Ranked()
		relegated := 0
		for i := len(ranked) - 1; i >= 0 && relegated < link.Count; i-- {
			if moving[ranked[i].Team.ID] {
				continue
			}
			moving[ranked[i].Team.ID] = true
			moves = append(moves, Move{Team: ranked[i].Team.ID, From: upper.ID, To: lower.ID})
			relegated++
		}

		promoted := 0
		for _, m := range lower.Contenders() {
			if promoted == link.Count {
				break
			}
			if moving[m.Team.ID] {
				continue
			}
			moving[m.Team.ID] = true
			moves = append(moves, Move{Team: m.Team.ID, From: lower.ID, To: upper.ID, Promoted: true})
			promoted++
		}
	}

	// Final standings order decides eviction, so keep it alongside the
	// reset memberships.
	type entry struct {
		team  league.Team
		final Membership
	}
	incoming := make(map[string][]entry, len(region))
	origin := make(map[league.TeamID]Membership)
	for _, d := range region {
		for _, m := range d.Members {
			origin[m.Team.ID] = m
			if !moving[m.Team.ID] {
				incoming[d.ID] = append(incoming[d.ID], entry{team: m.Team, final: m})
			}
		}
	}
	for _, mv := range moves {
		incoming[mv.To] = append(incoming[mv.To], entry{team: origin[mv.Team].Team, final: origin[mv.Team]})
	}

	out := make([]*Division, 0, len(region))
	for _, d := range region {
		entries := incoming[d.ID]
		sort.SliceStable(entries, func(i, j int) bool { return Better(entries[i].final, entries[j].final) })
		for len(entries) > d.Capacity {
			victim := -1
			for i := len(entries) - 1; i >= 0; i-- {
				if entries[i].team.Synthetic {
					victim = i
					break
				}
			}
			if victim < 0 {
				return nil, nil, fmt.Errorf("%w: division %s would hold %d real teams, capacity %d",
					league.ErrCapacityMismatch, d.ID, len(entries), d.Capacity)
			}
			entries = append(entries[:victim], entries[victim+1:]...)
		}

		nd := &Division{
			ID:       d.ID,
			Season:   next,
			Region:   d.Region,
			Tier:     d.Tier,
			Capacity: d.Capacity,
		}
		for _, e := range entries {
			nd.Members = append(nd.Members, Membership{Team: e.team})
		}
		if _, err := Backfill(nd, seq); err != nil {
			return nil, nil, err
		}
		out = append(out, nd)
	}
	return out, moves, nil
}

// Admission describes where a new real team was placed.
type Admission struct {
	Division string
	Replaced league.TeamID
	Standing league.Standing
}

// Admit places a real team into target by replacing its lowest-standing
// synthetic occupant. The new team takes over that occupant's season-to-date
// standing. When target holds only real teams the adjacent tiers of the same
// region are tried, lower tier first. The chosen division is modified in
// place.
func Admit(divisions []*Division, target string, team league.Team) (Admission, error) {
	if team.ID == "" || team.Synthetic {
		return Admission{}, fmt.Errorf("%w: only real teams can be admitted", league.ErrInvalidInput)
	}
	var home *Division
	for _, d := range divisions {
		if d.Has(team.ID) {
			return Admission{}, fmt.Errorf("%w: team %s already plays in %s", league.ErrInvalidInput, team.ID, d.ID)
		}
		if d.ID == target {
			home = d
		}
	}
	if home == nil {
		return Admission{}, fmt.Errorf("division %s: %w", target, league.ErrNotFound)
	}

	candidates := []*Division{home}
	for _, tier := range []int{home.Tier + 1, home.Tier - 1} {
		for _, d := range divisions {
			if d.Region == home.Region && d.Tier == tier {
				candidates = append(candidates, d)
			}
		}
	}

	for _, d := range candidates {
		if len(d.Members) < d.Capacity {
			d.Members = append(d.Members, Membership{Team: team})
			return Admission{Division: d.ID}, nil
		}
		ranked := d.Ranked()
		for i := len(ranked) - 1; i >= 0; i-- {
			if !ranked[i].Team.Synthetic {
				continue
			}
			idx := d.indexOf(ranked[i].Team.ID)
			replaced := d.Members[idx]
			d.Members[idx] = Membership{Team: team, Standing: replaced.Standing}
			return Admission{Division: d.ID, Replaced: replaced.Team.ID, Standing: replaced.Standing}, nil
		}
	}
	return Admission{}, fmt.Errorf("%w: %s and its neighbours hold only real teams", league.ErrNoVacancy, target)
}
