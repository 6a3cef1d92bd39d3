package validator

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/derekprior/ladder/internal/excel"
	"github.com/derekprior/ladder/internal/schedule"
)

// Violation represents a rule violation found during validation.
type Violation struct {
	Sheet   string
	Row     int
	Type    string // "error" or "warning"
	Message string
}

// Validate reads an exported schedule workbook and checks every fixture
// sheet against the calendar and the double round-robin shape.
func Validate(cal schedule.Calendar, path string) ([]Violation, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	loc := cal.Location
	if loc == nil {
		loc = time.UTC
	}

	var violations []Violation
	sheets := 0
	for _, sheet := range f.GetSheetList() {
		if !strings.HasPrefix(sheet, excel.FixtureSheetPrefix) {
			continue
		}
		sheets++
		fixtures, err := readFixtures(f, sheet, loc)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", sheet, err)
		}

		// Check calendar rules
		violations = append(violations, checkRestDay(cal, fixtures)...)
		violations = append(violations, checkWindow(cal, fixtures)...)
		violations = append(violations, checkDuplicateInstants(fixtures)...)
		violations = append(violations, checkSpacing(cal, fixtures)...)

		// Check round-robin shape
		violations = append(violations, checkRoundRobin(sheet, fixtures)...)
	}
	if sheets == 0 {
		return nil, fmt.Errorf("no %q sheets in %s", strings.TrimSpace(excel.FixtureSheetPrefix), path)
	}
	return violations, nil
}

type parsedFixture struct {
	Sheet string
	Row   int
	At    time.Time
	Home  string
	Away  string
}

func readFixtures(f *excelize.File, sheet string, loc *time.Location) ([]parsedFixture, error) {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s is empty", sheet)
	}

	var fixtures []parsedFixture
	for i, row := range rows {
		if i == 0 {
			continue
		}
		if len(row) < 6 || row[0] == "" {
			continue
		}
		at, err := time.ParseInLocation(excel.DateLayout+" "+excel.TimeLayout, row[0]+" "+row[2], loc)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		fixtures = append(fixtures, parsedFixture{
			Sheet: sheet,
			Row:   i + 1,
			At:    at,
			Home:  row[4],
			Away:  row[5],
		})
	}
	return fixtures, nil
}

func checkRestDay(cal schedule.Calendar, fixtures []parsedFixture) []Violation {
	var violations []Violation
	for _, fx := range fixtures {
		if fx.At.Weekday() == cal.RestDay {
			violations = append(violations, Violation{
				Sheet:   fx.Sheet,
				Row:     fx.Row,
				Type:    "error",
				Message: fmt.Sprintf("%s vs %s is on the rest day (%s %s)", fx.Home, fx.Away, fx.At.Format("Mon"), fx.At.Format("01/02")),
			})
		}
	}
	return violations
}

func checkWindow(cal schedule.Calendar, fixtures []parsedFixture) []Violation {
	var violations []Violation
	for _, fx := range fixtures {
		if fx.At.Weekday() == cal.RestDay || cal.Allows(fx.At) {
			continue
		}
		violations = append(violations, Violation{
			Sheet:   fx.Sheet,
			Row:     fx.Row,
			Type:    "error",
			Message: fmt.Sprintf("%s vs %s starts at %s, outside the daily window", fx.Home, fx.Away, fx.At.Format("15:04")),
		})
	}
	return violations
}

func checkDuplicateInstants(fixtures []parsedFixture) []Violation {
	seen := make(map[time.Time]int)
	var violations []Violation
	for _, fx := range fixtures {
		if first, ok := seen[fx.At]; ok {
			violations = append(violations, Violation{
				Sheet:   fx.Sheet,
				Row:     fx.Row,
				Type:    "error",
				Message: fmt.Sprintf("%s vs %s shares %s with row %d", fx.Home, fx.Away, fx.At.Format("01/02 15:04"), first),
			})
			continue
		}
		seen[fx.At] = fx.Row
	}
	return violations
}

func checkSpacing(cal schedule.Calendar, fixtures []parsedFixture) []Violation {
	if cal.Interval <= 0 {
		return nil
	}
	sorted := append([]parsedFixture(nil), fixtures...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].At.Before(sorted[j].At) })

	var violations []Violation
	for i := 1; i < len(sorted); i++ {
		gap := sorted[i].At.Sub(sorted[i-1].At)
		if gap > 0 && gap < cal.Interval {
			violations = append(violations, Violation{
				Sheet: sorted[i].Sheet,
				Row:   sorted[i].Row,
				Type:  "error",
				Message: fmt.Sprintf("%s vs %s starts %s after the previous fixture (min %s)",
					sorted[i].Home, sorted[i].Away, gap, cal.Interval),
			})
		}
	}
	return violations
}

// checkRoundRobin verifies that every ordered pair of the sheet's teams
// meets exactly once.
func checkRoundRobin(sheet string, fixtures []parsedFixture) []Violation {
	type pairing struct{ home, away string }
	counts := make(map[pairing]int)
	teamSet := make(map[string]bool)
	var violations []Violation
	for _, fx := range fixtures {
		if fx.Home == fx.Away {
			violations = append(violations, Violation{
				Sheet:   sheet,
				Row:     fx.Row,
				Type:    "error",
				Message: fmt.Sprintf("%s is scheduled against itself", fx.Home),
			})
			continue
		}
		teamSet[fx.Home] = true
		teamSet[fx.Away] = true
		counts[pairing{fx.Home, fx.Away}]++
	}

	teams := make([]string, 0, len(teamSet))
	for team := range teamSet {
		teams = append(teams, team)
	}
	sort.Strings(teams)

	for _, home := range teams {
		for _, away := range teams {
			if home == away {
				continue
			}
			switch n := counts[pairing{home, away}]; {
			case n == 0:
				violations = append(violations, Violation{
					Sheet:   sheet,
					Type:    "error",
					Message: fmt.Sprintf("%s never hosts %s", home, away),
				})
			case n > 1:
				violations = append(violations, Violation{
					Sheet:   sheet,
					Type:    "error",
					Message: fmt.Sprintf("%s hosts %s %d times", home, away, n),
				})
			}
		}
	}

	// Home balance is a guideline
	home := make(map[string]int)
	for _, fx := range fixtures {
		home[fx.Home]++
	}
	for _, team := range teams {
		if want := len(teams) - 1; home[team] != want {
			violations = append(violations, Violation{
				Sheet:   sheet,
				Type:    "warning",
				Message: fmt.Sprintf("%s has %d home fixtures, expected %d", team, home[team], want),
			})
		}
	}
	return violations
}
