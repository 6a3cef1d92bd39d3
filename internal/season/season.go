// Package season drives each division through its yearly lifecycle:
// REGULAR → PLAYOFF → OFFSEASON → REGULAR of the next season. Every step that
// generates fixtures or bracket rounds is committed under a generation key so
// that a repeated trigger is a no-op.
package season

import (
	"context"
	"fmt"

	"github.com/derekprior/ladder/internal/bracket"
	"github.com/derekprior/ladder/internal/league"
	"github.com/derekprior/ladder/internal/membership"
)

type Stage string

const (
	Regular   Stage = "REGULAR"
	Playoff   Stage = "PLAYOFF"
	Offseason Stage = "OFFSEASON"
)

// CupScope stands in for the division of season-wide competitions.
const CupScope = "CUP"

// Track is the lifecycle state of one division in one season.
type Track struct {
	Season    league.SeasonID
	Division  string
	Stage     Stage
	BracketID string
}

// GenerationKey identifies a generation step. A store accepts each key once.
type GenerationKey struct {
	Season   league.SeasonID
	Division string
	Stage    string
}

func (k GenerationKey) String() string {
	return fmt.Sprintf("%d/%s/%s", k.Season, k.Division, k.Stage)
}

// Transition moves a track from one stage to another. An empty From means
// the track must not exist yet.
type Transition struct {
	From Stage
	To   Track
}

// Commit is everything one generation step produces. Stores apply it
// atomically: either the key is claimed and every row is written, or
// nothing is.
type Commit struct {
	Key            GenerationKey
	Transition     *Transition
	Divisions      []*membership.Division
	Fixtures       []league.Fixture
	Bracket        *bracket.Bracket
	Qualifications []bracket.Qualification
	Sequence       *membership.Sequence

	// Payouts are recorded as pending and settled once the ledger accepts
	// them.
	Payouts []Payout
}

// Store persists season state.
//
// Commit returns league.ErrDuplicateGeneration when the key was already
// claimed and league.ErrStageConflict when the track is not in the expected
// stage. StartFixture, FinishFixture and FinishBracketMatch are
// compare-and-set operations that return league.ErrAlreadyFinished when the
// row has moved on.
type Store interface {
	Commit(ctx context.Context, c Commit) error

	Track(ctx context.Context, season league.SeasonID, division string) (Track, error)
	Tracks(ctx context.Context, season league.SeasonID) ([]Track, error)

	Division(ctx context.Context, season league.SeasonID, id string) (*membership.Division, error)
	Divisions(ctx context.Context, season league.SeasonID) ([]*membership.Division, error)
	// ReplaceMember swaps a synthetic occupant for a real team, which takes
	// over the occupant's standing and its unplayed fixtures. An empty
	// replaced appends team to a division with a vacancy.
	ReplaceMember(ctx context.Context, season league.SeasonID, division string, replaced league.TeamID, team league.Team) error

	Fixture(ctx context.Context, id string) (league.Fixture, error)
	Fixtures(ctx context.Context, season league.SeasonID, division string) ([]league.Fixture, error)
	StartFixture(ctx context.Context, id string) error
	// FinishFixture records a result and applies both standing deltas in a
	// single step.
	FinishFixture(ctx context.Context, id string, res league.Result, home, away league.Standing) (league.Fixture, error)

	Bracket(ctx context.Context, id string) (*bracket.Bracket, error)
	Brackets(ctx context.Context, season league.SeasonID) ([]*bracket.Bracket, error)
	FinishBracketMatch(ctx context.Context, id string, m bracket.Match) error
	Qualifications(ctx context.Context, season league.SeasonID) ([]bracket.Qualification, error)

	Sequence(ctx context.Context, prefix string) (membership.Sequence, error)

	// PendingPayouts returns the season's payouts the ledger has not yet
	// accepted. SettlePayout marks one accepted; settling twice is a no-op.
	PendingPayouts(ctx context.Context, season league.SeasonID) ([]Payout, error)
	SettlePayout(ctx context.Context, key string) error
}

// Payout is a prize owed to a team. Key is stable per bracket so a ledger
// can reject a repeated posting.
type Payout struct {
	Key       string
	Season    league.SeasonID
	BracketID string
	Kind      bracket.Kind
	Team      league.TeamID
	Amount    int64
}

// Ledger posts prize money. A payout is retried until the ledger accepts it,
// and concurrent ticks may post the same payout twice, so implementations
// must treat Payout.Key as an idempotency key.
type Ledger interface {
	Pay(ctx context.Context, p Payout) error
}

// Notifier is handed generated schedules and brackets for display.
type Notifier interface {
	ScheduleGenerated(ctx context.Context, d *membership.Division, fixtures []league.Fixture)
	BracketUpdated(ctx context.Context, b *bracket.Bracket)
	SeasonRolledOver(ctx context.Context, from, to league.SeasonID, region string, moves []membership.Move)
}

// PrizeTable maps a competition and final placement to an amount.
type PrizeTable map[bracket.Kind]map[int]int64

func (p PrizeTable) Amount(kind bracket.Kind, place int) int64 {
	return p[kind][place]
}
