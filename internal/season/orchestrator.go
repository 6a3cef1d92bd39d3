package season

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/derekprior/ladder/internal/bracket"
	"github.com/derekprior/ladder/internal/league"
	"github.com/derekprior/ladder/internal/membership"
	"github.com/derekprior/ladder/internal/schedule"
	"github.com/derekprior/ladder/internal/strategy"
)

// Config wires the engine components together.
type Config struct {
	Calendar schedule.Calendar
	Strategy strategy.Strategy
	Points   league.PointsRule

	Playoff *bracket.Engine
	// PlayoffEntrants is how many of a division's real teams qualify.
	PlayoffEntrants int
	// PlayoffMinParticipants is the smallest real field that still gets a
	// playoff; below it the division goes straight to the offseason.
	PlayoffMinParticipants int

	Cup     *bracket.Engine
	CupSize int

	Links  []membership.Link
	Prizes PrizeTable

	// Workers bounds the per-division fan-out of Tick and Rollover.
	Workers int
	NewID   func() string
}

// Orchestrator is the season state machine. It owns every lifecycle
// transition; components below it compute values and the Store commits them.
type Orchestrator struct {
	store    Store
	ledger   Ledger
	notifier Notifier
	log      *logrus.Logger
	cfg      Config
}

func New(store Store, ledger Ledger, notifier Notifier, log *logrus.Logger, cfg Config) *Orchestrator {
	if cfg.Strategy == nil {
		cfg.Strategy = strategy.DoubleRoundRobin{}
	}
	if cfg.Points == (league.PointsRule{}) {
		cfg.Points = league.DefaultPoints()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.PlayoffMinParticipants < 2 {
		cfg.PlayoffMinParticipants = 2
	}
	return &Orchestrator{store: store, ledger: ledger, notifier: notifier, log: log, cfg: cfg}
}

// SequencePrefix names the synthetic team sequence of a region.
func SequencePrefix(region string) string {
	return "ai-" + strings.ToLower(region)
}

// commit applies c and reports whether this call claimed the key. A
// duplicate is a successful no-op.
func (o *Orchestrator) commit(ctx context.Context, c Commit) (bool, error) {
	err := o.store.Commit(ctx, c)
	if errors.Is(err, league.ErrDuplicateGeneration) {
		o.log.WithField("key", c.Key.String()).Info("generation already committed, skipping")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("committing %s: %w", c.Key, err)
	}
	return true, nil
}

// EnterRegular opens a division's season: it backfills the division to
// capacity, generates its double round-robin and places every fixture on the
// calendar no earlier than startAfter.
func (o *Orchestrator) EnterRegular(ctx context.Context, d *membership.Division, startAfter time.Time) error {
	seq, err := o.store.Sequence(ctx, SequencePrefix(d.Region))
	if err != nil {
		return fmt.Errorf("loading synthetic sequence: %w", err)
	}
	d = d.Clone()
	if _, err := membership.Backfill(d, &seq); err != nil {
		return err
	}
	_, err = o.enterRegular(ctx, d, startAfter, &seq)
	return err
}

func (o *Orchestrator) enterRegular(ctx context.Context, d *membership.Division, startAfter time.Time, seq *membership.Sequence) (bool, error) {
	log := o.log.WithFields(logrus.Fields{"season": d.Season, "division": d.ID})
	if err := d.Validate(); err != nil {
		return false, err
	}

	pairings, err := o.cfg.Strategy.Pairings(d.TeamIDs())
	if err != nil {
		return false, fmt.Errorf("pairing division %s: %w", d.ID, err)
	}
	assignments, err := schedule.Allocate(pairings, startAfter, o.cfg.Calendar)
	if err != nil {
		return false, fmt.Errorf("scheduling division %s: %w", d.ID, err)
	}

	fixtures := make([]league.Fixture, len(assignments))
	for i, a := range assignments {
		fixtures[i] = league.Fixture{
			ID:          o.cfg.NewID(),
			Season:      d.Season,
			Division:    d.ID,
			Home:        a.Pairing.Home,
			Away:        a.Pairing.Away,
			ScheduledAt: a.At,
			Status:      league.Scheduled,
			RoundLabel:  fmt.Sprintf("R%d", a.Pairing.Round),
		}
	}

	claimed, err := o.commit(ctx, Commit{
		Key:        GenerationKey{Season: d.Season, Division: d.ID, Stage: string(Regular)},
		Transition: &Transition{To: Track{Season: d.Season, Division: d.ID, Stage: Regular}},
		Divisions:  []*membership.Division{d},
		Fixtures:   fixtures,
		Sequence:   seq,
	})
	if err != nil || !claimed {
		return false, err
	}
	log.WithField("fixtures", len(fixtures)).Info("regular season entered")
	o.notifier.ScheduleGenerated(ctx, d, fixtures)
	return true, nil
}

func (o *Orchestrator) StartFixture(ctx context.Context, id string) error {
	return o.store.StartFixture(ctx, id)
}

// RecordFixtureResult finishes a fixture and updates both teams' standings.
// A fixture's result is applied exactly once; a repeat returns
// league.ErrAlreadyFinished.
func (o *Orchestrator) RecordFixtureResult(ctx context.Context, id string, res league.Result) (league.Fixture, error) {
	if err := res.Validate(); err != nil {
		return league.Fixture{}, err
	}
	home, away := res.Deltas(o.cfg.Points)
	f, err := o.store.FinishFixture(ctx, id, res, home, away)
	if err != nil {
		return league.Fixture{}, fmt.Errorf("fixture %s: %w", id, err)
	}
	o.log.WithFields(logrus.Fields{
		"fixture":  id,
		"division": f.Division,
		"score":    fmt.Sprintf("%d-%d", res.HomeScore, res.AwayScore),
	}).Debug("fixture result recorded")
	return f, nil
}

// CheckRegular moves a finished regular season on. Once no fixture is open
// the division enters the playoff if enough real teams contest it, and the
// offseason otherwise. It returns the track's stage after the check.
func (o *Orchestrator) CheckRegular(ctx context.Context, season league.SeasonID, division string) (Stage, error) {
	track, err := o.store.Track(ctx, season, division)
	if err != nil {
		return "", err
	}
	if track.Stage != Regular {
		return track.Stage, nil
	}

	fixtures, err := o.store.Fixtures(ctx, season, division)
	if err != nil {
		return "", err
	}
	var last time.Time
	for _, f := range fixtures {
		if f.Status.Open() {
			return Regular, nil
		}
		if f.ScheduledAt.After(last) {
			last = f.ScheduledAt
		}
	}

	d, err := o.store.Division(ctx, season, division)
	if err != nil {
		return "", err
	}
	contenders := d.Contenders()
	log := o.log.WithFields(logrus.Fields{"season": season, "division": division, "contenders": len(contenders)})

	if o.cfg.Playoff == nil || len(contenders) < o.cfg.PlayoffMinParticipants || o.cfg.PlayoffEntrants < 2 {
		claimed, err := o.commit(ctx, Commit{
			Key:        GenerationKey{Season: season, Division: division, Stage: string(Offseason)},
			Transition: &Transition{From: Regular, To: Track{Season: season, Division: division, Stage: Offseason}},
		})
		if err != nil {
			return "", err
		}
		if claimed {
			log.Info("no playoff, division enters offseason")
		}
		return Offseason, nil
	}

	if len(contenders) > o.cfg.PlayoffEntrants {
		contenders = contenders[:o.cfg.PlayoffEntrants]
	}
	entrants := make([]bracket.Entrant, len(contenders))
	for i, m := range contenders {
		entrants[i] = bracket.Entrant{Team: m.Team.ID, Rank: i + 1, Tier: d.Tier}
	}
	b, err := o.cfg.Playoff.Start(o.cfg.NewID(), season, division, entrants, o.cfg.Calendar.DayAfter(last))
	if err != nil {
		return "", fmt.Errorf("starting playoff for %s: %w", division, err)
	}

	claimed, err := o.commit(ctx, Commit{
		Key:        GenerationKey{Season: season, Division: division, Stage: fmt.Sprintf("%s:%s", bracket.Playoff, b.CurrentRound())},
		Transition: &Transition{From: Regular, To: Track{Season: season, Division: division, Stage: Playoff, BracketID: b.ID}},
		Bracket:    b,
	})
	if err != nil {
		return "", err
	}
	if claimed {
		log.WithFields(logrus.Fields{"bracket": b.ID, "round": b.CurrentRound()}).Info("division enters playoff")
		o.notifier.BracketUpdated(ctx, b)
	}
	return Playoff, nil
}

// RecordBracketResult records the result of a match in a bracket's current
// round.
func (o *Orchestrator) RecordBracketResult(ctx context.Context, id string, round bracket.Round, number int, res league.Result) (bracket.Match, error) {
	b, err := o.store.Bracket(ctx, id)
	if err != nil {
		return bracket.Match{}, err
	}
	if err := b.Record(round, number, res); err != nil {
		return bracket.Match{}, err
	}
	var recorded bracket.Match
	for _, m := range b.RoundMatches(round) {
		if m.Number == number {
			recorded = m
		}
	}
	if err := o.store.FinishBracketMatch(ctx, id, recorded); err != nil {
		return bracket.Match{}, fmt.Errorf("bracket %s match %s/%d: %w", id, round, number, err)
	}
	return recorded, nil
}

func (o *Orchestrator) engine(kind bracket.Kind) (*bracket.Engine, error) {
	switch {
	case kind == bracket.Playoff && o.cfg.Playoff != nil:
		return o.cfg.Playoff, nil
	case kind == bracket.Cup && o.cfg.Cup != nil:
		return o.cfg.Cup, nil
	}
	return nil, fmt.Errorf("%w: no engine configured for %s", league.ErrInvalidInput, kind)
}

// AdvanceBracket closes the bracket's current round and commits the next one.
// On completion it records qualifications, pays the champion's prize and,
// for a playoff, moves the division into the offseason. A bracket that has
// already moved on reports Outcome.Skipped; if it is completed, any prize
// still pending is paid again.
func (o *Orchestrator) AdvanceBracket(ctx context.Context, id string) (bracket.Outcome, error) {
	b, err := o.store.Bracket(ctx, id)
	if err != nil {
		return bracket.Outcome{}, err
	}
	if b.Status == bracket.Completed {
		return bracket.Outcome{Skipped: true}, o.settlePayouts(ctx, b.Season, b.ID)
	}
	engine, err := o.engine(b.Kind)
	if err != nil {
		return bracket.Outcome{}, err
	}

	out, err := engine.Advance(b, b.CurrentRound())
	if err != nil || out.Skipped {
		return out, err
	}

	scope := b.Division
	if b.Kind == bracket.Cup {
		scope = CupScope
	}
	c := Commit{Bracket: b}
	if out.Completed {
		c.Key = GenerationKey{Season: b.Season, Division: scope, Stage: fmt.Sprintf("%s:%s", b.Kind, bracket.Completed)}
		c.Qualifications = b.Qualifications(engine.Qualifiers())
		if b.Kind == bracket.Playoff {
			c.Transition = &Transition{
				From: Playoff,
				To:   Track{Season: b.Season, Division: b.Division, Stage: Offseason, BracketID: b.ID},
			}
		}
		if amount := o.cfg.Prizes.Amount(b.Kind, 1); amount > 0 {
			c.Payouts = []Payout{{
				Key:       b.ID + ":champion",
				Season:    b.Season,
				BracketID: b.ID,
				Kind:      b.Kind,
				Team:      out.Champion,
				Amount:    amount,
			}}
		}
	} else {
		c.Key = GenerationKey{Season: b.Season, Division: scope, Stage: fmt.Sprintf("%s:%s", b.Kind, out.Round)}
	}

	claimed, err := o.commit(ctx, c)
	if err != nil {
		return bracket.Outcome{}, err
	}
	if !claimed {
		return bracket.Outcome{Skipped: true}, nil
	}

	log := o.log.WithFields(logrus.Fields{"season": b.Season, "bracket": b.ID, "kind": b.Kind})
	o.notifier.BracketUpdated(ctx, b)
	if !out.Completed {
		log.WithFields(logrus.Fields{"round": out.Round, "matches": len(out.Matches)}).Info("bracket advanced")
		return out, nil
	}

	log.WithField("champion", out.Champion).Info("bracket completed")
	if err := o.settlePayouts(ctx, b.Season, b.ID); err != nil {
		return out, fmt.Errorf("paying %s champion %s: %w", b.Kind, out.Champion, err)
	}
	return out, nil
}

// settlePayouts hands the season's pending payouts to the ledger, limited to
// one bracket when bracketID is set. A payout stays pending until the ledger
// accepts it, so a failed payment is retried by the next call.
func (o *Orchestrator) settlePayouts(ctx context.Context, season league.SeasonID, bracketID string) error {
	pending, err := o.store.PendingPayouts(ctx, season)
	if err != nil {
		return fmt.Errorf("loading pending payouts: %w", err)
	}
	var errs []error
	for _, p := range pending {
		if bracketID != "" && p.BracketID != bracketID {
			continue
		}
		if err := o.ledger.Pay(ctx, p); err != nil {
			errs = append(errs, fmt.Errorf("payout %s: %w", p.Key, err))
			continue
		}
		if err := o.store.SettlePayout(ctx, p.Key); err != nil {
			errs = append(errs, fmt.Errorf("settling payout %s: %w", p.Key, err))
			continue
		}
		o.log.WithField("key", p.Key).Debug("payout settled")
	}
	return errors.Join(errs...)
}

// CupField builds the cup entry list: real teams from the top tier down,
// best rank first within each division, followed by the amateur clubs, cut
// to size.
func CupField(divisions []*membership.Division, amateurs []league.TeamID, size int) []bracket.Entrant {
	sorted := append([]*membership.Division(nil), divisions...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Tier != sorted[j].Tier {
			return sorted[i].Tier < sorted[j].Tier
		}
		return sorted[i].ID < sorted[j].ID
	})

	proSlots := size - len(amateurs)
	if proSlots < 0 {
		proSlots = 0
	}
	var field []bracket.Entrant
	for _, d := range sorted {
		for i, m := range d.Contenders() {
			if len(field) == proSlots {
				break
			}
			field = append(field, bracket.Entrant{Team: m.Team.ID, Rank: i + 1, Tier: d.Tier})
		}
	}
	for i, id := range amateurs {
		if len(field) == size {
			break
		}
		field = append(field, bracket.Entrant{Team: id, Rank: i + 1, Amateur: true})
	}
	return field
}

// StartCup draws the season's cup. Calling it again for the same season
// returns the cup already drawn.
func (o *Orchestrator) StartCup(ctx context.Context, season league.SeasonID, amateurs []league.TeamID, startAfter time.Time) (*bracket.Bracket, error) {
	engine, err := o.engine(bracket.Cup)
	if err != nil {
		return nil, err
	}
	divisions, err := o.store.Divisions(ctx, season)
	if err != nil {
		return nil, err
	}
	size := o.cfg.CupSize
	if size <= 0 {
		size = 1 << len(bracket.CupRounds())
	}

	b, err := engine.Start(o.cfg.NewID(), season, "", CupField(divisions, amateurs, size), startAfter)
	if err != nil {
		return nil, fmt.Errorf("drawing cup: %w", err)
	}
	claimed, err := o.commit(ctx, Commit{
		Key:     GenerationKey{Season: season, Division: CupScope, Stage: fmt.Sprintf("%s:%s", bracket.Cup, b.CurrentRound())},
		Bracket: b,
	})
	if err != nil {
		return nil, err
	}
	if !claimed {
		return o.cup(ctx, season)
	}
	o.log.WithFields(logrus.Fields{"season": season, "bracket": b.ID, "entrants": len(b.Entrants)}).Info("cup drawn")
	o.notifier.BracketUpdated(ctx, b)
	return b, nil
}

func (o *Orchestrator) cup(ctx context.Context, season league.SeasonID) (*bracket.Bracket, error) {
	brackets, err := o.store.Brackets(ctx, season)
	if err != nil {
		return nil, err
	}
	for _, b := range brackets {
		if b.Kind == bracket.Cup {
			return b, nil
		}
	}
	return nil, fmt.Errorf("cup for season %d: %w", season, league.ErrNotFound)
}

// AdmitTeam places a new real team mid-season in place of a synthetic
// occupant of division or a neighbouring tier.
func (o *Orchestrator) AdmitTeam(ctx context.Context, season league.SeasonID, division string, team league.Team) (membership.Admission, error) {
	divisions, err := o.store.Divisions(ctx, season)
	if err != nil {
		return membership.Admission{}, err
	}
	adm, err := membership.Admit(divisions, division, team)
	if err != nil {
		return membership.Admission{}, err
	}
	if err := o.store.ReplaceMember(ctx, season, adm.Division, adm.Replaced, team); err != nil {
		return membership.Admission{}, fmt.Errorf("admitting %s to %s: %w", team.ID, adm.Division, err)
	}
	o.log.WithFields(logrus.Fields{
		"season":   season,
		"division": adm.Division,
		"team":     team.ID,
		"replaced": adm.Replaced,
	}).Info("team admitted")
	return adm, nil
}

// fanOut runs fn for every key with at most Workers in flight. Every key is
// processed even when others fail; the failures are joined.
func (o *Orchestrator) fanOut(ctx context.Context, keys []string, fn func(ctx context.Context, key string) error) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(o.cfg.Workers)
	for _, key := range keys {
		g.Go(func() error {
			if err := fn(ctx, key); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Tick checks every track and bracket of a season and performs whatever
// transition is due, then retries any prize the ledger has not yet accepted.
// It is safe to call repeatedly and concurrently.
func (o *Orchestrator) Tick(ctx context.Context, season league.SeasonID) error {
	tracks, err := o.store.Tracks(ctx, season)
	if err != nil {
		return err
	}
	brackets, err := o.store.Brackets(ctx, season)
	if err != nil {
		return err
	}

	bracketByID := make(map[string]*bracket.Bracket, len(brackets))
	var keys []string
	for _, t := range tracks {
		if t.Stage == Regular {
			keys = append(keys, "division:"+t.Division)
		}
	}
	for _, b := range brackets {
		if b.Status == bracket.InProgress && b.RoundComplete() {
			bracketByID[b.ID] = b
			keys = append(keys, "bracket:"+b.ID)
		}
	}

	err = o.fanOut(ctx, keys, func(ctx context.Context, key string) error {
		kind, id, _ := strings.Cut(key, ":")
		if kind == "division" {
			_, err := o.CheckRegular(ctx, season, id)
			return err
		}
		_, err := o.AdvanceBracket(ctx, id)
		return err
	})
	err = errors.Join(err, o.settlePayouts(ctx, season, ""))
	if err != nil {
		o.log.WithError(err).WithField("season", season).Error("tick finished with errors")
	}
	return err
}

// Rollover closes season and opens the next one. Every track must be in the
// offseason and every bracket of the season, the cup included, completed.
// Each region is processed independently: promotion and relegation are
// applied, divisions are refilled and the next regular season is generated
// from startAfter. A region that fails does not stop the others. A region is
// announced only by the call that opened one of its divisions.
func (o *Orchestrator) Rollover(ctx context.Context, season league.SeasonID, startAfter time.Time) (league.SeasonID, error) {
	tracks, err := o.store.Tracks(ctx, season)
	if err != nil {
		return 0, err
	}
	if len(tracks) == 0 {
		return 0, fmt.Errorf("season %d has no divisions: %w", season, league.ErrNotFound)
	}
	for _, t := range tracks {
		if t.Stage != Offseason {
			return 0, fmt.Errorf("%w: division %s is in %s", league.ErrStageConflict, t.Division, t.Stage)
		}
	}
	brackets, err := o.store.Brackets(ctx, season)
	if err != nil {
		return 0, err
	}
	for _, b := range brackets {
		if b.Status == bracket.InProgress {
			return 0, fmt.Errorf("%w: %s bracket %s is in round %s", league.ErrStageConflict, b.Kind, b.ID, b.CurrentRound())
		}
	}

	divisions, err := o.store.Divisions(ctx, season)
	if err != nil {
		return 0, err
	}
	regions := make(map[string][]*membership.Division)
	for _, d := range divisions {
		regions[d.Region] = append(regions[d.Region], d)
	}
	names := make([]string, 0, len(regions))
	for name := range regions {
		names = append(names, name)
	}
	sort.Strings(names)

	next := season.Next()
	err = o.fanOut(ctx, names, func(ctx context.Context, region string) error {
		seq, err := o.store.Sequence(ctx, SequencePrefix(region))
		if err != nil {
			return err
		}
		opened, moves, err := membership.Rollover(regions[region], o.cfg.Links, next, &seq)
		if err != nil {
			return err
		}
		var errs []error
		entered := false
		for _, d := range opened {
			claimed, err := o.enterRegular(ctx, d, startAfter, &seq)
			if err != nil {
				errs = append(errs, fmt.Errorf("division %s: %w", d.ID, err))
			}
			entered = entered || claimed
		}
		if entered {
			o.notifier.SeasonRolledOver(ctx, season, next, region, moves)
		}
		return errors.Join(errs...)
	})
	if err != nil {
		o.log.WithError(err).WithField("season", season).Error("rollover finished with errors")
		return next, err
	}
	o.log.WithFields(logrus.Fields{"from": season, "to": next, "regions": len(names)}).Info("season rolled over")
	return next, nil
}

// Standings returns a division's table in standings order.
func (o *Orchestrator) Standings(ctx context.Context, season league.SeasonID, division string) ([]membership.Membership, error) {
	d, err := o.store.Division(ctx, season, division)
	if err != nil {
		return nil, err
	}
	return d.Ranked(), nil
}
