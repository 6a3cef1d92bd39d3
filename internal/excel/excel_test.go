package excel

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/xuri/excelize/v2"

	"github.com/derekprior/ladder/internal/bracket"
	"github.com/derekprior/ladder/internal/league"
	"github.com/derekprior/ladder/internal/membership"
)

var kickoff = time.Date(2026, 4, 25, 17, 0, 0, 0, time.UTC)

func testData() ([]*membership.Division, map[string][]league.Fixture) {
	d := &membership.Division{
		ID: "EU-1", Season: 1, Region: "EU", Tier: 1, Capacity: 4,
		Members: []membership.Membership{
			{Team: league.Team{ID: "ANG", Name: "Angels"}, Standing: league.Standing{Played: 1, Wins: 1, Points: 3, GoalsFor: 2, GoalsAgainst: 1}},
			{Team: league.Team{ID: "CUB", Name: "Cubs"}, Standing: league.Standing{Played: 1, Losses: 1, GoalsFor: 1, GoalsAgainst: 2}},
			{Team: league.Team{ID: "AST", Name: "Astros"}},
			{Team: league.Team{ID: "ai-eu-1", Name: "Reserve 1", Synthetic: true}},
		},
	}
	fixtures := []league.Fixture{
		{ID: "f2", Division: "EU-1", Home: "AST", Away: "ai-eu-1", ScheduledAt: kickoff.Add(30 * time.Minute), Status: league.Scheduled, RoundLabel: "R1"},
		{ID: "f1", Division: "EU-1", Home: "ANG", Away: "CUB", ScheduledAt: kickoff, Status: league.Finished, RoundLabel: "R1", HomeScore: 2, AwayScore: 1},
	}
	return []*membership.Division{d}, map[string][]league.Fixture{"EU-1": fixtures}
}

func TestScheduleWorkbook(t *testing.T) {
	divisions, fixtures := testData()
	f, err := Schedule(divisions, fixtures, time.UTC)
	if err != nil {
		t.Fatalf("Schedule() error: %v", err)
	}

	t.Run("fixture sheet has headers", func(t *testing.T) {
		val, _ := f.GetCellValue("Fixtures EU-1", "A1")
		if val != "Date" {
			t.Errorf("A1 = %q, want Date", val)
		}
		val, _ = f.GetCellValue("Fixtures EU-1", "E1")
		if val != "Home" {
			t.Errorf("E1 = %q, want Home", val)
		}
	})

	t.Run("fixtures are in scheduled order", func(t *testing.T) {
		rows, _ := f.GetRows("Fixtures EU-1")
		if len(rows) != 3 {
			t.Fatalf("rows = %d, want 3", len(rows))
		}
		want := []string{"2026-04-25", "Sat", "17:00", "R1", "ANG", "CUB", "2-1", "FINISHED"}
		for i, w := range want {
			if rows[1][i] != w {
				t.Errorf("row 2 col %d = %q, want %q", i+1, rows[1][i], w)
			}
		}
		if rows[2][2] != "17:30" || rows[2][6] != "" {
			t.Errorf("unplayed fixture row = %v", rows[2])
		}
	})

	t.Run("standings sheet is ranked", func(t *testing.T) {
		rows, _ := f.GetRows("Standings EU-1")
		if len(rows) != 5 {
			t.Fatalf("rows = %d, want 5", len(rows))
		}
		if rows[1][1] != "Angels" || rows[1][9] != "3" {
			t.Errorf("leader row = %v", rows[1])
		}
		if rows[len(rows)-1][1] != "Cubs" || rows[len(rows)-1][8] != "-1" {
			t.Errorf("last row = %v", rows[len(rows)-1])
		}
	})

	t.Run("sheets for real teams only", func(t *testing.T) {
		for _, team := range []string{"Angels", "Cubs", "Astros"} {
			if idx, _ := f.GetSheetIndex(team); idx < 0 {
				t.Errorf("sheet for %s not found", team)
			}
		}
		if idx, _ := f.GetSheetIndex("Reserve 1"); idx >= 0 {
			t.Error("synthetic team has a sheet")
		}
		rows, _ := f.GetRows("Cubs")
		if len(rows) != 2 || rows[1][3] != "ANG" || rows[1][4] != "Away" {
			t.Errorf("Cubs rows = %v", rows)
		}
	})

	t.Run("default Sheet1 removed", func(t *testing.T) {
		idx, _ := f.GetSheetIndex("Sheet1")
		if idx >= 0 {
			t.Error("Sheet1 should be removed")
		}
	})
}

func TestScheduleUsesLocation(t *testing.T) {
	divisions, fixtures := testData()
	tokyo := time.FixedZone("JST", 9*3600)
	f, err := Schedule(divisions, fixtures, tokyo)
	if err != nil {
		t.Fatalf("Schedule() error: %v", err)
	}
	val, _ := f.GetCellValue("Fixtures EU-1", "C2")
	if val != "02:00" {
		t.Errorf("C2 = %q, want 02:00", val)
	}
}

func testBracket() *bracket.Bracket {
	return &bracket.Bracket{
		ID: "b1", Kind: bracket.Playoff, Season: 1, Division: "EU-1",
		Rounds: []bracket.Round{bracket.Semi, bracket.Final}, Current: 2, Status: bracket.Completed,
		Matches: []bracket.Match{
			{Round: bracket.Semi, Number: 1, Home: "A", Away: "D", Winner: "A", HomeScore: 2, Status: league.Finished, ScheduledAt: kickoff},
			{Round: bracket.Semi, Number: 2, Home: "B", Away: "C", Winner: "C", AwayScore: 1, Status: league.Finished, ScheduledAt: kickoff.Add(30 * time.Minute)},
			{Round: bracket.Final, Number: 1, Home: "A", Away: "C", Winner: "A", HomeScore: 3, AwayScore: 1, Status: league.Finished, ScheduledAt: kickoff.AddDate(0, 0, 4)},
		},
	}
}

func TestBracketWorkbook(t *testing.T) {
	f, err := Brackets([]*bracket.Bracket{testBracket()}, time.UTC)
	if err != nil {
		t.Fatalf("Brackets() error: %v", err)
	}
	rows, err := f.GetRows("PLAYOFF EU-1")
	if err != nil {
		t.Fatalf("GetRows() error: %v", err)
	}
	if rows[3][0] != "FINAL" || rows[3][4] != "3-1" || rows[3][5] != "A" {
		t.Errorf("final row = %v", rows[3])
	}
	// header, 3 matches, blank, placement header, 4 placements
	if len(rows) != 10 {
		t.Fatalf("rows = %d, want 10", len(rows))
	}
	if rows[6][0] != "1" || rows[6][1] != "A" {
		t.Errorf("champion row = %v", rows[6])
	}
}

func TestNotifierWritesWorkbooks(t *testing.T) {
	dir := t.TempDir()
	logger, hook := test.NewNullLogger()
	n := Notifier{Dir: dir, Location: time.UTC, Log: logger}
	ctx := context.Background()

	divisions, fixtures := testData()
	n.ScheduleGenerated(ctx, divisions[0], fixtures["EU-1"])
	n.BracketUpdated(ctx, testBracket())
	n.SeasonRolledOver(ctx, 1, 2, "EU", []membership.Move{{Team: "A", From: "EU-1", To: "EU-2"}})

	for _, name := range []string{"season-1-EU-1.xlsx", "season-1-EU-1-PLAYOFF.xlsx", "season-2-EU-moves.xlsx"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s not written: %v", name, err)
		}
	}
	for _, e := range hook.AllEntries() {
		if e.Level <= logrus.ErrorLevel {
			t.Errorf("unexpected error log: %s", e.Message)
		}
	}

	f, err := excelize.OpenFile(filepath.Join(dir, "season-2-EU-moves.xlsx"))
	if err != nil {
		t.Fatalf("OpenFile error: %v", err)
	}
	defer f.Close()
	val, _ := f.GetCellValue("Moves EU 1-2", "D2")
	if val != "Relegated" {
		t.Errorf("D2 = %q, want Relegated", val)
	}
}

func TestNotifierLogsFailures(t *testing.T) {
	logger, hook := test.NewNullLogger()
	n := Notifier{Dir: filepath.Join(t.TempDir(), "missing"), Log: logger}
	divisions, fixtures := testData()
	n.ScheduleGenerated(context.Background(), divisions[0], fixtures["EU-1"])

	if hook.LastEntry() == nil || hook.LastEntry().Message != "saving workbook" {
		t.Errorf("expected a save failure to be logged, got %+v", hook.LastEntry())
	}
}

func TestSheetName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Fixtures EU-1", "Fixtures EU-1"},
		{"A/B:C", "A-B-C"},
		{"An extremely long team name for a sheet", "An extremely long team name for"},
	}
	for _, tt := range tests {
		if got := sheetName(tt.in); got != tt.want {
			t.Errorf("sheetName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
