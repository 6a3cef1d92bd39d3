package strategy

import (
	"fmt"

	"github.com/derekprior/ladder/internal/league"
)

// Pairing is a single home/away matchup. Round is 1-based within the
// generated sequence.
type Pairing struct {
	Home  league.TeamID
	Away  league.TeamID
	Round int
}

// Strategy generates the ordered pairings for one division.
type Strategy interface {
	Pairings(teams []league.TeamID) ([]Pairing, error)
}

// Get returns a Strategy by name.
func Get(name string) (Strategy, error) {
	switch name {
	case "", "double_round_robin":
		return DoubleRoundRobin{}, nil
	default:
		return nil, fmt.Errorf("unknown strategy: %q", name)
	}
}

// bye pads odd-sized divisions. Pairings against it are dropped.
const bye league.TeamID = ""

// DoubleRoundRobin pairs every team with every other team twice, once at
// home and once away, using the circle method: the first team stays fixed
// while the rest rotate one position per round.
type DoubleRoundRobin struct{}

func (DoubleRoundRobin) Pairings(teams []league.TeamID) ([]Pairing, error) {
	if err := checkDistinct(teams); err != nil {
		return nil, err
	}
	if len(teams) < 2 {
		return nil, nil
	}

	ring := make([]league.TeamID, len(teams), len(teams)+1)
	copy(ring, teams)
	if len(ring)%2 == 1 {
		ring = append(ring, bye)
	}
	n := len(ring)
	rounds := n - 1

	firstLeg := make([]Pairing, 0, len(teams)*(len(teams)-1)/2)
	for r := 0; r < rounds; r++ {
		for i := 0; i < n/2; i++ {
			a, b := ring[i], ring[n-1-i]
			if a == bye || b == bye {
				continue
			}
			// Alternate venue by round parity so the fixed team and each
			// rotating slot swap home/away from one round to the next.
			if (r+i)%2 == 1 {
				a, b = b, a
			}
			firstLeg = append(firstLeg, Pairing{Home: a, Away: b, Round: r + 1})
		}
		rotate(ring)
	}

	pairings := make([]Pairing, 0, 2*len(firstLeg))
	pairings = append(pairings, firstLeg...)
	for _, p := range firstLeg {
		pairings = append(pairings, Pairing{Home: p.Away, Away: p.Home, Round: p.Round + rounds})
	}
	return pairings, nil
}

// rotate keeps ring[0] fixed and moves every other entry one slot clockwise.
func rotate(ring []league.TeamID) {
	if len(ring) < 3 {
		return
	}
	last := ring[len(ring)-1]
	copy(ring[2:], ring[1:len(ring)-1])
	ring[1] = last
}

func checkDistinct(teams []league.TeamID) error {
	seen := make(map[league.TeamID]bool, len(teams))
	for _, t := range teams {
		if t == "" {
			return fmt.Errorf("%w: empty team id", league.ErrInvalidInput)
		}
		if seen[t] {
			return fmt.Errorf("%w: duplicate team id %q", league.ErrInvalidInput, t)
		}
		seen[t] = true
	}
	return nil
}

// Fold pairs the list outside-in: first vs last, second vs second-to-last.
// The earlier entry is the home side. Empty ids are allowed and mark
// undetermined slots.
func Fold(teams []league.TeamID, round int) ([]Pairing, error) {
	if len(teams)%2 != 0 {
		return nil, fmt.Errorf("%w: cannot fold %d teams", league.ErrInvalidInput, len(teams))
	}
	pairings := make([]Pairing, 0, len(teams)/2)
	for i := 0; i < len(teams)/2; i++ {
		pairings = append(pairings, Pairing{Home: teams[i], Away: teams[len(teams)-1-i], Round: round})
	}
	return pairings, nil
}

// Adjacent pairs neighbours: 0 vs 1, 2 vs 3, ...
func Adjacent(teams []league.TeamID, round int) ([]Pairing, error) {
	if len(teams)%2 != 0 {
		return nil, fmt.Errorf("%w: cannot pair %d teams", league.ErrInvalidInput, len(teams))
	}
	pairings := make([]Pairing, 0, len(teams)/2)
	for i := 0; i+1 < len(teams); i += 2 {
		pairings = append(pairings, Pairing{Home: teams[i], Away: teams[i+1], Round: round})
	}
	return pairings, nil
}
