package season_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/derekprior/ladder/internal/bracket"
	"github.com/derekprior/ladder/internal/league"
	"github.com/derekprior/ladder/internal/membership"
	"github.com/derekprior/ladder/internal/schedule"
	"github.com/derekprior/ladder/internal/season"
	"github.com/derekprior/ladder/internal/store"
)

var (
	calendar = schedule.Calendar{
		RestDay:  time.Monday,
		Open:     17 * time.Hour,
		Close:    23*time.Hour + 30*time.Minute,
		Interval: 30 * time.Minute,
		Location: time.UTC,
	}
	opening = time.Date(2026, 4, 25, 17, 0, 0, 0, time.UTC)
)

// ledger rejects the first failures payments it is asked to make.
type ledger struct {
	mu       sync.Mutex
	payouts  []season.Payout
	failures int
	calls    int
}

func (l *ledger) Pay(_ context.Context, p season.Payout) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.failures > 0 {
		l.failures--
		return errors.New("ledger unavailable")
	}
	l.payouts = append(l.payouts, p)
	return nil
}

type harness struct {
	o      *season.Orchestrator
	store  season.Store
	ledger *ledger
	hook   *test.Hook
}

func newHarness(t *testing.T, st season.Store) harness {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	l := &ledger{}
	cfg := season.Config{
		Calendar: calendar,
		Playoff: bracket.NewEngine(bracket.Config{
			Kind:          bracket.Playoff,
			Rounds:        bracket.PlayoffRounds(),
			Policy:        bracket.ByeSeeded{},
			Offsets:       map[bracket.Round]int{bracket.Semi: 3, bracket.Final: 4},
			DefaultOffset: 7,
			Qualifiers:    2,
			Calendar:      calendar,
		}),
		PlayoffEntrants:        6,
		PlayoffMinParticipants: 4,
		Cup: bracket.NewEngine(bracket.Config{
			Kind:          bracket.Cup,
			Rounds:        bracket.CupRounds(),
			Policy:        bracket.CupReseed{Rand: rand.New(rand.NewSource(7))},
			DefaultOffset: 7,
			Qualifiers:    1,
			Calendar:      calendar,
		}),
		CupSize: 32,
		Links:   []membership.Link{{Upper: 1, Lower: 2, Count: 2}},
		Prizes:  season.PrizeTable{bracket.Playoff: {1: 5000}},
		Workers: 2,
	}
	return harness{
		o:      season.New(st, l, season.LogNotifier{Log: logger}, logger, cfg),
		store:  st,
		ledger: l,
		hook:   hook,
	}
}

func division(id string, tier, capacity, realTeams int) *membership.Division {
	d := &membership.Division{ID: id, Season: 1, Region: "EU", Tier: tier, Capacity: capacity}
	for i := 0; i < realTeams; i++ {
		tid := league.TeamID(fmt.Sprintf("%s-T%d", id, i+1))
		d.Members = append(d.Members, membership.Membership{Team: league.Team{ID: tid, Name: string(tid)}})
	}
	return d
}

func playRegular(t *testing.T, h harness, s league.SeasonID, div string) {
	t.Helper()
	ctx := context.Background()
	fixtures, err := h.store.Fixtures(ctx, s, div)
	if err != nil {
		t.Fatalf("Fixtures() error: %v", err)
	}
	for _, f := range fixtures {
		res := league.Result{HomeScore: 2, AwayScore: 1, CompletedAt: f.ScheduledAt.Add(time.Hour)}
		if _, err := h.o.RecordFixtureResult(ctx, f.ID, res); err != nil {
			t.Fatalf("RecordFixtureResult(%s) error: %v", f.ID, err)
		}
	}
}

func playBracketRound(t *testing.T, h harness, id string) {
	t.Helper()
	ctx := context.Background()
	b, err := h.store.Bracket(ctx, id)
	if err != nil {
		t.Fatalf("Bracket() error: %v", err)
	}
	round := b.CurrentRound()
	for _, m := range b.RoundMatches(round) {
		if _, err := h.o.RecordBracketResult(ctx, id, round, m.Number, league.Result{HomeScore: 1}); err != nil {
			t.Fatalf("RecordBracketResult(%s/%d) error: %v", round, m.Number, err)
		}
	}
}

func TestSeasonLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, store.NewMemory())

	upper, lower := division("EU-1", 1, 8, 6), division("EU-2", 2, 8, 3)
	for _, d := range []*membership.Division{upper, lower} {
		if err := h.o.EnterRegular(ctx, d, opening); err != nil {
			t.Fatalf("EnterRegular(%s) error: %v", d.ID, err)
		}
	}

	t.Run("regular season is backfilled and generated once", func(t *testing.T) {
		if err := h.o.EnterRegular(ctx, upper, opening); err != nil {
			t.Fatalf("repeated EnterRegular error: %v", err)
		}
		fixtures, _ := h.store.Fixtures(ctx, 1, "EU-1")
		if len(fixtures) != 56 {
			t.Errorf("fixtures = %d, want 56", len(fixtures))
		}
		d, _ := h.store.Division(ctx, 1, "EU-1")
		if err := d.Validate(); err != nil {
			t.Errorf("stored division invalid: %v", err)
		}
		if got := len(d.Contenders()); got != 6 {
			t.Errorf("real teams = %d, want 6", got)
		}
		seen := make(map[time.Time]bool)
		for _, f := range fixtures {
			if !calendar.Allows(f.ScheduledAt) || seen[f.ScheduledAt] {
				t.Errorf("fixture %s at bad or duplicate instant %s", f.ID, f.ScheduledAt)
			}
			seen[f.ScheduledAt] = true
		}
	})

	t.Run("regular season stays open while fixtures remain", func(t *testing.T) {
		stage, err := h.o.CheckRegular(ctx, 1, "EU-1")
		if err != nil || stage != season.Regular {
			t.Errorf("CheckRegular() = %s, %v; want REGULAR", stage, err)
		}
	})

	playRegular(t, h, 1, "EU-1")
	playRegular(t, h, 1, "EU-2")

	t.Run("results are applied exactly once", func(t *testing.T) {
		fixtures, _ := h.store.Fixtures(ctx, 1, "EU-1")
		_, err := h.o.RecordFixtureResult(ctx, fixtures[0].ID, league.Result{HomeScore: 5})
		if !errors.Is(err, league.ErrAlreadyFinished) {
			t.Errorf("err = %v, want ErrAlreadyFinished", err)
		}
		table, _ := h.o.Standings(ctx, 1, "EU-1")
		played := 0
		for _, m := range table {
			played += m.Standing.Played
		}
		if played != 2*56 {
			t.Errorf("total played = %d, want %d", played, 2*56)
		}
	})

	if err := h.o.Tick(ctx, 1); err != nil {
		t.Fatalf("Tick() error: %v", err)
	}

	t.Run("division with a full field enters the playoff", func(t *testing.T) {
		track, _ := h.store.Track(ctx, 1, "EU-1")
		if track.Stage != season.Playoff || track.BracketID == "" {
			t.Fatalf("track = %+v, want PLAYOFF with a bracket", track)
		}
		b, _ := h.store.Bracket(ctx, track.BracketID)
		if b.CurrentRound() != bracket.Wildcard || len(b.Seeds) != 2 {
			t.Errorf("bracket round = %s seeds = %d", b.CurrentRound(), len(b.Seeds))
		}

		fixtures, _ := h.store.Fixtures(ctx, 1, "EU-1")
		var last time.Time
		for _, f := range fixtures {
			if f.ScheduledAt.After(last) {
				last = f.ScheduledAt
			}
		}
		want := time.Date(last.Year(), last.Month(), last.Day()+1, 17, 0, 0, 0, time.UTC)
		if first := b.RoundMatches(bracket.Wildcard)[0].ScheduledAt; !first.Equal(want) {
			t.Errorf("first playoff match at %s, want window open %s after last fixture %s",
				first.Format(time.RFC3339), want.Format(time.RFC3339), last.Format(time.RFC3339))
		}
		for _, e := range b.Entrants {
			if e.Team[:4] == "ai-e" {
				t.Errorf("synthetic team %s in playoff", e.Team)
			}
		}
	})

	t.Run("division below the playoff minimum goes to offseason", func(t *testing.T) {
		track, _ := h.store.Track(ctx, 1, "EU-2")
		if track.Stage != season.Offseason {
			t.Errorf("EU-2 stage = %s, want OFFSEASON", track.Stage)
		}
	})

	t.Run("repeated checks do not regenerate", func(t *testing.T) {
		stage, err := h.o.CheckRegular(ctx, 1, "EU-1")
		if err != nil || stage != season.Playoff {
			t.Errorf("CheckRegular() = %s, %v", stage, err)
		}
		brackets, _ := h.store.Brackets(ctx, 1)
		if len(brackets) != 1 {
			t.Errorf("brackets = %d, want 1", len(brackets))
		}
	})

	track, _ := h.store.Track(ctx, 1, "EU-1")
	id := track.BracketID

	t.Run("incomplete round is not advanced", func(t *testing.T) {
		_, err := h.o.AdvanceBracket(ctx, id)
		if !errors.Is(err, league.ErrRoundIncomplete) {
			t.Errorf("err = %v, want ErrRoundIncomplete", err)
		}
	})

	t.Run("rollover waits for every division", func(t *testing.T) {
		_, err := h.o.Rollover(ctx, 1, opening.AddDate(0, 3, 0))
		if !errors.Is(err, league.ErrStageConflict) {
			t.Errorf("err = %v, want ErrStageConflict", err)
		}
	})

	for round := 0; round < 3; round++ {
		playBracketRound(t, h, id)
		if err := h.o.Tick(ctx, 1); err != nil {
			t.Fatalf("Tick() error: %v", err)
		}
		if err := h.o.Tick(ctx, 1); err != nil {
			t.Fatalf("repeated Tick() error: %v", err)
		}
	}

	t.Run("completed playoff pays and qualifies once", func(t *testing.T) {
		b, _ := h.store.Bracket(ctx, id)
		if b.Status != bracket.Completed {
			t.Fatalf("bracket status = %s, want COMPLETED", b.Status)
		}
		out, err := h.o.AdvanceBracket(ctx, id)
		if err != nil || !out.Skipped {
			t.Errorf("AdvanceBracket after completion = %+v, %v", out, err)
		}

		if len(h.ledger.payouts) != 1 {
			t.Fatalf("payouts = %d, want 1", len(h.ledger.payouts))
		}
		if p := h.ledger.payouts[0]; p.Team != b.Champion() || p.Amount != 5000 {
			t.Errorf("payout = %+v, want 5000 to %s", p, b.Champion())
		}

		quals, _ := h.store.Qualifications(ctx, 1)
		if len(quals) != 2 || quals[0].Team != b.Champion() {
			t.Errorf("qualifications = %+v", quals)
		}
		track, _ := h.store.Track(ctx, 1, "EU-1")
		if track.Stage != season.Offseason {
			t.Errorf("stage = %s, want OFFSEASON", track.Stage)
		}
	})

	t.Run("rollover opens the next season", func(t *testing.T) {
		final1, _ := h.o.Standings(ctx, 1, "EU-1")
		next, err := h.o.Rollover(ctx, 1, opening.AddDate(0, 6, 0))
		if err != nil {
			t.Fatalf("Rollover() error: %v", err)
		}
		if next != 2 {
			t.Errorf("next season = %d, want 2", next)
		}

		divisions, _ := h.store.Divisions(ctx, 2)
		if len(divisions) != 2 {
			t.Fatalf("divisions = %d, want 2", len(divisions))
		}
		for _, d := range divisions {
			if err := d.Validate(); err != nil {
				t.Errorf("%s invalid: %v", d.ID, err)
			}
			track, err := h.store.Track(ctx, 2, d.ID)
			if err != nil || track.Stage != season.Regular {
				t.Errorf("%s track = %+v, %v", d.ID, track, err)
			}
			fixtures, _ := h.store.Fixtures(ctx, 2, d.ID)
			if len(fixtures) != 56 {
				t.Errorf("%s fixtures = %d, want 56", d.ID, len(fixtures))
			}
		}

		if got := countLogs(h.hook, "region rolled over"); got != 1 {
			t.Errorf("region rolled over logged %d times, want 1", got)
		}

		relegated := final1[len(final1)-1].Team.ID
		upper, _ := h.store.Division(ctx, 2, "EU-1")
		if upper.Has(relegated) {
			t.Errorf("bottom team %s was not relegated", relegated)
		}

		again, err := h.o.Rollover(ctx, 1, opening.AddDate(0, 6, 0))
		if err != nil || again != 2 {
			t.Errorf("repeated Rollover() = %d, %v", again, err)
		}
		fixtures, _ := h.store.Fixtures(ctx, 2, "EU-1")
		if len(fixtures) != 56 {
			t.Errorf("repeated rollover duplicated fixtures: %d", len(fixtures))
		}
		if got := countLogs(h.hook, "region rolled over"); got != 1 {
			t.Errorf("repeated rollover announced the region again: %d announcements", got)
		}
	})

	t.Run("duplicate triggers are logged as skipped", func(t *testing.T) {
		if countLogs(h.hook, "generation already committed, skipping") == 0 {
			t.Error("no skipped generation logged")
		}
	})
}

func countLogs(hook *test.Hook, message string) int {
	n := 0
	for _, e := range hook.AllEntries() {
		if e.Message == message {
			n++
		}
	}
	return n
}

func TestPrizeRetriedAfterLedgerFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, store.NewMemory())
	h.ledger.failures = 1

	if err := h.o.EnterRegular(ctx, division("EU-1", 1, 4, 4), opening); err != nil {
		t.Fatalf("EnterRegular() error: %v", err)
	}
	playRegular(t, h, 1, "EU-1")
	if err := h.o.Tick(ctx, 1); err != nil {
		t.Fatalf("Tick() error: %v", err)
	}
	track, _ := h.store.Track(ctx, 1, "EU-1")
	id := track.BracketID

	playBracketRound(t, h, id)
	if _, err := h.o.AdvanceBracket(ctx, id); err != nil {
		t.Fatalf("AdvanceBracket(semi) error: %v", err)
	}
	playBracketRound(t, h, id)

	out, err := h.o.AdvanceBracket(ctx, id)
	if err == nil {
		t.Fatal("expected the ledger failure to be returned")
	}
	if !out.Completed {
		t.Errorf("outcome = %+v, want completed", out)
	}
	b, _ := h.store.Bracket(ctx, id)
	if b.Status != bracket.Completed {
		t.Fatalf("bracket status = %s, want COMPLETED", b.Status)
	}
	if len(h.ledger.payouts) != 0 {
		t.Fatalf("payouts = %d before retry, want 0", len(h.ledger.payouts))
	}
	pending, _ := h.store.PendingPayouts(ctx, 1)
	if len(pending) != 1 || pending[0].Team != b.Champion() {
		t.Fatalf("pending = %+v, want the champion's prize", pending)
	}

	t.Run("next tick pays the pending prize", func(t *testing.T) {
		if err := h.o.Tick(ctx, 1); err != nil {
			t.Fatalf("Tick() error: %v", err)
		}
		if len(h.ledger.payouts) != 1 {
			t.Fatalf("payouts = %d, want 1", len(h.ledger.payouts))
		}
		if p := h.ledger.payouts[0]; p.Team != b.Champion() || p.Amount != 5000 || p.BracketID != id {
			t.Errorf("payout = %+v, want 5000 to %s", p, b.Champion())
		}
	})

	t.Run("settled prize is not paid again", func(t *testing.T) {
		calls := h.ledger.calls
		if _, err := h.o.AdvanceBracket(ctx, id); err != nil {
			t.Errorf("AdvanceBracket() error: %v", err)
		}
		if err := h.o.Tick(ctx, 1); err != nil {
			t.Errorf("Tick() error: %v", err)
		}
		if h.ledger.calls != calls || len(h.ledger.payouts) != 1 {
			t.Errorf("ledger calls %d -> %d, payouts = %d", calls, h.ledger.calls, len(h.ledger.payouts))
		}
		if pending, _ := h.store.PendingPayouts(ctx, 1); len(pending) != 0 {
			t.Errorf("pending = %+v, want none", pending)
		}
	})
}

func TestRolloverWaitsForCup(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, store.NewMemory())
	for _, d := range []*membership.Division{division("EU-1", 1, 4, 3), division("EU-2", 2, 4, 3)} {
		if err := h.o.EnterRegular(ctx, d, opening); err != nil {
			t.Fatalf("EnterRegular(%s) error: %v", d.ID, err)
		}
	}
	var amateurs []league.TeamID
	for i := 1; i <= 26; i++ {
		amateurs = append(amateurs, league.TeamID(fmt.Sprintf("AM-%d", i)))
	}
	cup, err := h.o.StartCup(ctx, 1, amateurs, opening)
	if err != nil {
		t.Fatalf("StartCup() error: %v", err)
	}

	playRegular(t, h, 1, "EU-1")
	playRegular(t, h, 1, "EU-2")
	if err := h.o.Tick(ctx, 1); err != nil {
		t.Fatalf("Tick() error: %v", err)
	}
	for _, div := range []string{"EU-1", "EU-2"} {
		if track, _ := h.store.Track(ctx, 1, div); track.Stage != season.Offseason {
			t.Fatalf("%s stage = %s, want OFFSEASON", div, track.Stage)
		}
	}

	t.Run("cup in progress blocks the rollover", func(t *testing.T) {
		_, err := h.o.Rollover(ctx, 1, opening.AddDate(0, 6, 0))
		if !errors.Is(err, league.ErrStageConflict) {
			t.Errorf("err = %v, want ErrStageConflict", err)
		}
		if divisions, _ := h.store.Divisions(ctx, 2); len(divisions) != 0 {
			t.Errorf("season 2 opened with %d divisions", len(divisions))
		}
	})

	for round := 0; round < len(cup.Rounds); round++ {
		playBracketRound(t, h, cup.ID)
		if err := h.o.Tick(ctx, 1); err != nil {
			t.Fatalf("Tick() error: %v", err)
		}
	}

	t.Run("completed cup lets the season close", func(t *testing.T) {
		b, _ := h.store.Bracket(ctx, cup.ID)
		if b.Status != bracket.Completed {
			t.Fatalf("cup status = %s, want COMPLETED", b.Status)
		}
		next, err := h.o.Rollover(ctx, 1, opening.AddDate(0, 6, 0))
		if err != nil || next != 2 {
			t.Fatalf("Rollover() = %d, %v", next, err)
		}
		quals, _ := h.store.Qualifications(ctx, 1)
		if len(quals) != 1 || quals[0].Kind != bracket.Cup || quals[0].Team != b.Champion() {
			t.Errorf("qualifications = %+v, want the cup champion", quals)
		}
	})
}

func TestConcurrentTicksGenerateOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, store.NewMemory())
	if err := h.o.EnterRegular(ctx, division("EU-1", 1, 6, 6), opening); err != nil {
		t.Fatalf("EnterRegular() error: %v", err)
	}
	playRegular(t, h, 1, "EU-1")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := h.o.Tick(ctx, 1); err != nil {
				t.Errorf("Tick() error: %v", err)
			}
		}()
	}
	wg.Wait()

	brackets, _ := h.store.Brackets(ctx, 1)
	if len(brackets) != 1 {
		t.Errorf("brackets = %d, want 1", len(brackets))
	}
}

// flakyStore fails every read of one division's fixtures.
type flakyStore struct {
	*store.Memory
	broken string
}

func (f flakyStore) Fixtures(ctx context.Context, s league.SeasonID, div string) ([]league.Fixture, error) {
	if div == f.broken {
		return nil, errors.New("connection reset")
	}
	return f.Memory.Fixtures(ctx, s, div)
}

func TestTickIsolatesDivisionFailures(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	h := newHarness(t, flakyStore{Memory: mem, broken: "EU-2"})

	for _, d := range []*membership.Division{division("EU-1", 1, 4, 4), division("EU-2", 2, 4, 4)} {
		if err := h.o.EnterRegular(ctx, d, opening); err != nil {
			t.Fatalf("EnterRegular(%s) error: %v", d.ID, err)
		}
	}
	fixtures, _ := mem.Fixtures(ctx, 1, "EU-1")
	for _, f := range fixtures {
		if _, err := h.o.RecordFixtureResult(ctx, f.ID, league.Result{HomeScore: 1}); err != nil {
			t.Fatalf("RecordFixtureResult() error: %v", err)
		}
	}

	err := h.o.Tick(ctx, 1)
	if err == nil {
		t.Fatal("expected the broken division to report an error")
	}
	track, _ := mem.Track(ctx, 1, "EU-1")
	if track.Stage != season.Playoff {
		t.Errorf("EU-1 stage = %s, want PLAYOFF despite EU-2 failing", track.Stage)
	}
}

func TestAdmitTeam(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, store.NewMemory())
	if err := h.o.EnterRegular(ctx, division("EU-1", 1, 6, 4), opening); err != nil {
		t.Fatalf("EnterRegular() error: %v", err)
	}

	adm, err := h.o.AdmitTeam(ctx, 1, "EU-1", league.Team{ID: "NEW", Name: "Newcomers"})
	if err != nil {
		t.Fatalf("AdmitTeam() error: %v", err)
	}
	if adm.Division != "EU-1" || adm.Replaced == "" {
		t.Fatalf("admission = %+v", adm)
	}

	fixtures, _ := h.store.Fixtures(ctx, 1, "EU-1")
	for _, f := range fixtures {
		if f.Home == adm.Replaced || f.Away == adm.Replaced {
			t.Fatalf("open fixture %s still lists %s", f.ID, adm.Replaced)
		}
	}
	newFixtures := 0
	for _, f := range fixtures {
		if f.Home == "NEW" || f.Away == "NEW" {
			newFixtures++
		}
	}
	if newFixtures != 10 {
		t.Errorf("NEW fixtures = %d, want 10", newFixtures)
	}

	if _, err := h.o.AdmitTeam(ctx, 1, "EU-1", league.Team{ID: "NEW"}); !errors.Is(err, league.ErrInvalidInput) {
		t.Errorf("second admission err = %v, want ErrInvalidInput", err)
	}
}

func TestStartCup(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, store.NewMemory())
	for _, d := range []*membership.Division{division("EU-1", 1, 8, 8), division("EU-2", 2, 8, 8), division("EU-3", 3, 8, 8)} {
		if err := h.o.EnterRegular(ctx, d, opening); err != nil {
			t.Fatalf("EnterRegular(%s) error: %v", d.ID, err)
		}
	}
	var amateurs []league.TeamID
	for i := 1; i <= 8; i++ {
		amateurs = append(amateurs, league.TeamID(fmt.Sprintf("AM-%d", i)))
	}

	b, err := h.o.StartCup(ctx, 1, amateurs, opening.AddDate(0, 1, 0))
	if err != nil {
		t.Fatalf("StartCup() error: %v", err)
	}
	if len(b.Entrants) != 32 || len(b.RoundMatches(bracket.Round32)) != 16 {
		t.Errorf("entrants = %d, first round = %d", len(b.Entrants), len(b.RoundMatches(bracket.Round32)))
	}

	again, err := h.o.StartCup(ctx, 1, amateurs, opening.AddDate(0, 1, 0))
	if err != nil {
		t.Fatalf("repeated StartCup() error: %v", err)
	}
	if again.ID != b.ID {
		t.Errorf("repeated StartCup returned %s, want existing %s", again.ID, b.ID)
	}

	playBracketRound(t, h, b.ID)
	out, err := h.o.AdvanceBracket(ctx, b.ID)
	if err != nil {
		t.Fatalf("AdvanceBracket() error: %v", err)
	}
	if out.Round != bracket.Round16 || len(out.Matches) != 8 {
		t.Errorf("outcome = %s with %d matches, want ROUND_16 with 8", out.Round, len(out.Matches))
	}
}

func TestCupField(t *testing.T) {
	divisions := []*membership.Division{division("EU-2", 2, 4, 3), division("EU-1", 1, 4, 4)}
	divisions[0].Members = append(divisions[0].Members, membership.Membership{Team: league.Team{ID: "ai-eu-1", Synthetic: true}})

	field := season.CupField(divisions, []league.TeamID{"AM-1", "AM-2"}, 8)
	if len(field) != 8 {
		t.Fatalf("field = %d, want 8", len(field))
	}
	if field[0].Tier != 1 || field[4].Tier != 2 || !field[7].Amateur {
		t.Errorf("field order = %+v", field)
	}
	for _, e := range field {
		if e.Team == "ai-eu-1" {
			t.Error("synthetic team entered the cup")
		}
	}
}
