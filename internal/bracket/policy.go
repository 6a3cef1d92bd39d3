package bracket

import (
	"fmt"
	"sort"

	"github.com/derekprior/ladder/internal/league"
	"github.com/derekprior/ladder/internal/strategy"
)

// SeedingPolicy decides who meets whom.
type SeedingPolicy interface {
	// Open splits a field into the byes best-ranked teams and the pairings
	// of the first active round.
	Open(entrants []Entrant, byes int) (seeded []Entrant, first []strategy.Pairing, err error)
	// Next pairs the teams entering a later round: bye recipients in rank
	// order followed by the previous round's winners in match order.
	Next(advancing []league.TeamID, round int) ([]strategy.Pairing, error)
}

// placeholderPolicy is implemented by policies whose second round is known,
// up to undetermined opponents, before the first round is played.
type placeholderPolicy interface {
	Placeholders(seeded []Entrant, firstRoundMatches int) ([]strategy.Pairing, error)
}

func byRank(entrants []Entrant) []Entrant {
	sorted := append([]Entrant(nil), entrants...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Rank < sorted[j].Rank })
	return sorted
}

func teamsOf(entrants []Entrant) []league.TeamID {
	ids := make([]league.TeamID, len(entrants))
	for i, e := range entrants {
		ids[i] = e.Team
	}
	return ids
}

// ByeSeeded gives byes to the best ranks and folds everyone else by rank,
// so the best remaining seed meets the worst. Bye recipients enter the next
// round against the winners of the folded matches, best seed against the
// weakest surviving path.
type ByeSeeded struct{}

func (ByeSeeded) Open(entrants []Entrant, byes int) ([]Entrant, []strategy.Pairing, error) {
	if byes < 0 || byes > len(entrants) {
		return nil, nil, fmt.Errorf("%w: %d byes for %d entrants", league.ErrInvalidInput, byes, len(entrants))
	}
	sorted := byRank(entrants)
	first, err := strategy.Fold(teamsOf(sorted[byes:]), 1)
	if err != nil {
		return nil, nil, err
	}
	return sorted[:byes], first, nil
}

func (ByeSeeded) Next(advancing []league.TeamID, round int) ([]strategy.Pairing, error) {
	return strategy.Fold(advancing, round)
}

func (ByeSeeded) Placeholders(seeded []Entrant, firstRoundMatches int) ([]strategy.Pairing, error) {
	slots := teamsOf(seeded)
	for i := 0; i < firstRoundMatches; i++ {
		slots = append(slots, "")
	}
	return strategy.Fold(slots, 2)
}

// Shuffler is the randomness the cup draws from. *math/rand.Rand satisfies
// it; tests inject a seeded source to make draws reproducible.
type Shuffler interface {
	Shuffle(n int, swap func(i, j int))
}

// CupReseed draws the cup. The first round is deterministic: amateur clubs
// meet the professional teams from the lowest tier upward, and the
// remaining professionals are folded by rank inside their tier. Every later
// round is a fresh random draw.
type CupReseed struct {
	Rand Shuffler
}

func (c CupReseed) Open(entrants []Entrant, byes int) ([]Entrant, []strategy.Pairing, error) {
	if byes < 0 || byes > len(entrants) {
		return nil, nil, fmt.Errorf("%w: %d byes for %d entrants", league.ErrInvalidInput, byes, len(entrants))
	}

	var pros, amateurs []Entrant
	for _, e := range entrants {
		if e.Amateur {
			amateurs = append(amateurs, e)
		} else {
			pros = append(pros, e)
		}
	}
	sort.SliceStable(pros, func(i, j int) bool {
		if pros[i].Tier != pros[j].Tier {
			return pros[i].Tier < pros[j].Tier
		}
		return pros[i].Rank < pros[j].Rank
	})
	amateurs = byRank(amateurs)

	// Byes go to the top of the pyramid, then to the best amateurs if the
	// professional field is too small.
	var seeded []Entrant
	for len(seeded) < byes && len(pros) > 0 {
		seeded = append(seeded, pros[0])
		pros = pros[1:]
	}
	for len(seeded) < byes {
		seeded = append(seeded, amateurs[0])
		amateurs = amateurs[1:]
	}

	var first []strategy.Pairing
	// Lowest tier first, best rank first within it.
	hosts := append([]Entrant(nil), pros...)
	sort.SliceStable(hosts, func(i, j int) bool {
		if hosts[i].Tier != hosts[j].Tier {
			return hosts[i].Tier > hosts[j].Tier
		}
		return hosts[i].Rank < hosts[j].Rank
	})
	matched := make(map[league.TeamID]bool)
	n := 0
	for ; n < len(amateurs) && n < len(hosts); n++ {
		first = append(first, strategy.Pairing{Home: hosts[n].Team, Away: amateurs[n].Team, Round: 1})
		matched[hosts[n].Team] = true
	}
	if n < len(amateurs) {
		rest, err := strategy.Fold(teamsOf(amateurs[n:]), 1)
		if err != nil {
			return nil, nil, err
		}
		first = append(first, rest...)
	}

	var carry []league.TeamID
	for _, tier := range groupByTier(pros, matched) {
		if len(tier)%2 == 1 {
			middle := len(tier) / 2
			carry = append(carry, tier[middle].Team)
			tier = append(tier[:middle:middle], tier[middle+1:]...)
		}
		folded, err := strategy.Fold(teamsOf(tier), 1)
		if err != nil {
			return nil, nil, err
		}
		first = append(first, folded...)
	}
	// Odd tiers leave one team each; they meet across neighbouring tiers.
	crossTier, err := strategy.Adjacent(carry, 1)
	if err != nil {
		return nil, nil, err
	}
	first = append(first, crossTier...)
	return seeded, first, nil
}

func (c CupReseed) Next(advancing []league.TeamID, round int) ([]strategy.Pairing, error) {
	if c.Rand == nil {
		return nil, fmt.Errorf("%w: cup draw has no random source", league.ErrInvalidInput)
	}
	drawn := append([]league.TeamID(nil), advancing...)
	c.Rand.Shuffle(len(drawn), func(i, j int) { drawn[i], drawn[j] = drawn[j], drawn[i] })
	return strategy.Adjacent(drawn, round)
}

// groupByTier splits the unmatched teams of pros (already ordered by tier
// then rank) into per-tier runs.
func groupByTier(pros []Entrant, matched map[league.TeamID]bool) [][]Entrant {
	var groups [][]Entrant
	for _, e := range pros {
		if matched[e.Team] {
			continue
		}
		if n := len(groups); n > 0 && groups[n-1][0].Tier == e.Tier {
			groups[n-1] = append(groups[n-1], e)
			continue
		}
		groups = append(groups, []Entrant{e})
	}
	return groups
}
