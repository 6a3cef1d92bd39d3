package excel

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/derekprior/ladder/internal/bracket"
	"github.com/derekprior/ladder/internal/league"
	"github.com/derekprior/ladder/internal/membership"
)

// Layout shared with the validator, which reads exported schedules back.
const (
	FixtureSheetPrefix = "Fixtures "
	DateLayout         = "2006-01-02"
	TimeLayout         = "15:04"
)

// FixtureHeaders are the columns of every fixture sheet.
var FixtureHeaders = []string{"Date", "Day", "Time", "Round", "Home", "Away", "Score", "Status"}

// Schedule creates a workbook with a fixture sheet and a standings sheet for
// each division, and a sheet per real team.
func Schedule(divisions []*membership.Division, fixtures map[string][]league.Fixture, loc *time.Location) (*excelize.File, error) {
	if loc == nil {
		loc = time.UTC
	}
	f := excelize.NewFile()

	// Set default font for the workbook
	f.SetDefaultFont("Arial")

	sorted := append([]*membership.Division(nil), divisions...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for _, d := range sorted {
		if err := writeFixtureSheet(f, d, fixtures[d.ID], loc); err != nil {
			return nil, fmt.Errorf("writing fixtures for %s: %w", d.ID, err)
		}
		if err := writeStandingsSheet(f, d); err != nil {
			return nil, fmt.Errorf("writing standings for %s: %w", d.ID, err)
		}
	}
	for _, d := range sorted {
		if err := writeTeamSheets(f, d, fixtures[d.ID], loc); err != nil {
			return nil, fmt.Errorf("writing team sheets for %s: %w", d.ID, err)
		}
	}

	f.DeleteSheet("Sheet1")
	return f, nil
}

func newStyles(f *excelize.File) (header, cell, muted int) {
	header, _ = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF", Size: 14, Family: "Arial"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#4472C4"}},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	cell, _ = f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Size: 14, Family: "Arial"},
	})
	muted, _ = f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Size: 14, Family: "Arial", Italic: true, Color: "#808080"},
	})
	return header, cell, muted
}

func writeHeader(f *excelize.File, sheet string, headers []string, style int) {
	for i, h := range headers {
		f.SetCellValue(sheet, cellRef(i+1, 1), h)
	}
	if style != 0 {
		f.SetCellStyle(sheet, cellRef(1, 1), cellRef(len(headers), 1), style)
	}
}

func writeRow(f *excelize.File, sheet string, row int, values []any, style int) {
	for i, v := range values {
		f.SetCellValue(sheet, cellRef(i+1, row), v)
	}
	if style != 0 {
		f.SetCellStyle(sheet, cellRef(1, row), cellRef(len(values), row), style)
	}
}

func score(status league.FixtureStatus, home, away int) string {
	if status != league.Finished {
		return ""
	}
	return fmt.Sprintf("%d-%d", home, away)
}

func writeFixtureSheet(f *excelize.File, d *membership.Division, fixtures []league.Fixture, loc *time.Location) error {
	sheet := sheetName(FixtureSheetPrefix + d.ID)
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	headerStyle, cellStyle, mutedStyle := newStyles(f)
	writeHeader(f, sheet, FixtureHeaders, headerStyle)

	synthetic := make(map[league.TeamID]bool)
	for _, m := range d.Members {
		synthetic[m.Team.ID] = m.Team.Synthetic
	}

	sorted := append([]league.Fixture(nil), fixtures...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ScheduledAt.Before(sorted[j].ScheduledAt) })
	for i, fx := range sorted {
		at := fx.ScheduledAt.In(loc)
		style := cellStyle
		if synthetic[fx.Home] && synthetic[fx.Away] {
			style = mutedStyle
		}
		writeRow(f, sheet, i+2, []any{
			at.Format(DateLayout),
			at.Format("Mon"),
			at.Format(TimeLayout),
			fx.RoundLabel,
			string(fx.Home),
			string(fx.Away),
			score(fx.Status, fx.HomeScore, fx.AwayScore),
			string(fx.Status),
		}, style)
	}

	widths := map[string]float64{"A": 14, "B": 8, "C": 8, "D": 8, "E": 24, "F": 24, "G": 10, "H": 14}
	for col, w := range widths {
		f.SetColWidth(sheet, col, col, w)
	}
	return nil
}

func writeStandingsSheet(f *excelize.File, d *membership.Division) error {
	sheet := sheetName("Standings " + d.ID)
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	headerStyle, cellStyle, mutedStyle := newStyles(f)
	writeHeader(f, sheet, []string{"Pos", "Team", "P", "W", "D", "L", "GF", "GA", "GD", "Pts"}, headerStyle)

	for i, m := range d.Ranked() {
		style := cellStyle
		if m.Team.Synthetic {
			style = mutedStyle
		}
		s := m.Standing
		writeRow(f, sheet, i+2, []any{
			i + 1, teamName(m.Team), s.Played, s.Wins, s.Draws, s.Losses,
			s.GoalsFor, s.GoalsAgainst, s.GoalDifference(), s.Points,
		}, style)
	}

	f.SetColWidth(sheet, "A", "A", 6)
	f.SetColWidth(sheet, "B", "B", 24)
	f.SetColWidth(sheet, "C", "J", 6)
	return nil
}

func writeTeamSheets(f *excelize.File, d *membership.Division, fixtures []league.Fixture, loc *time.Location) error {
	for _, m := range d.Contenders() {
		team := m.Team.ID
		sheet := sheetName(teamName(m.Team))
		if idx, _ := f.GetSheetIndex(sheet); idx >= 0 {
			sheet = sheetName(string(team))
		}
		if _, err := f.NewSheet(sheet); err != nil {
			return err
		}
		headerStyle, cellStyle, _ := newStyles(f)
		writeHeader(f, sheet, []string{"Date", "Day", "Time", "Opponent", "Home/Away", "Round", "Score"}, headerStyle)

		// Collect and sort this team's fixtures
		var games []league.Fixture
		for _, fx := range fixtures {
			if fx.Home == team || fx.Away == team {
				games = append(games, fx)
			}
		}
		sort.SliceStable(games, func(i, j int) bool { return games[i].ScheduledAt.Before(games[j].ScheduledAt) })

		for i, g := range games {
			at := g.ScheduledAt.In(loc)
			opponent, homeAway := g.Away, "Home"
			if g.Away == team {
				opponent, homeAway = g.Home, "Away"
			}
			writeRow(f, sheet, i+2, []any{
				at.Format(DateLayout), at.Format("Mon"), at.Format(TimeLayout),
				string(opponent), homeAway, g.RoundLabel, score(g.Status, g.HomeScore, g.AwayScore),
			}, cellStyle)
		}

		widths := map[string]float64{"A": 14, "B": 8, "C": 8, "D": 24, "E": 12, "F": 8, "G": 10}
		for col, w := range widths {
			f.SetColWidth(sheet, col, col, w)
		}
	}
	return nil
}

// Brackets creates a workbook with one sheet per bracket and one row per
// match, followed by the final placements of completed brackets.
func Brackets(brackets []*bracket.Bracket, loc *time.Location) (*excelize.File, error) {
	if loc == nil {
		loc = time.UTC
	}
	f := excelize.NewFile()
	f.SetDefaultFont("Arial")

	for _, b := range brackets {
		if err := writeBracketSheet(f, b, loc); err != nil {
			return nil, fmt.Errorf("writing bracket %s: %w", b.ID, err)
		}
	}

	f.DeleteSheet("Sheet1")
	return f, nil
}

// BracketSheet names the sheet a bracket is exported to.
func BracketSheet(b *bracket.Bracket) string {
	if b.Division == "" {
		return sheetName(fmt.Sprintf("%s %d", b.Kind, b.Season))
	}
	return sheetName(fmt.Sprintf("%s %s", b.Kind, b.Division))
}

func writeBracketSheet(f *excelize.File, b *bracket.Bracket, loc *time.Location) error {
	sheet := BracketSheet(b)
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	headerStyle, cellStyle, mutedStyle := newStyles(f)
	writeHeader(f, sheet, []string{"Round", "Match", "Home", "Away", "Score", "Winner", "Date", "Time"}, headerStyle)

	row := 2
	for _, r := range b.Rounds {
		for _, m := range b.RoundMatches(r) {
			date, clock := "", ""
			if !m.ScheduledAt.IsZero() {
				at := m.ScheduledAt.In(loc)
				date, clock = at.Format(DateLayout), at.Format(TimeLayout)
			}
			style := cellStyle
			if !m.Determined() {
				style = mutedStyle
			}
			writeRow(f, sheet, row, []any{
				string(r), m.Number, slotName(m.Home), slotName(m.Away),
				score(m.Status, m.HomeScore, m.AwayScore), string(m.Winner), date, clock,
			}, style)
			row++
		}
	}

	if b.Status == bracket.Completed {
		row++
		writeRow(f, sheet, row, []any{"Place", "Team"}, headerStyle)
		for _, p := range b.Placements() {
			row++
			writeRow(f, sheet, row, []any{p.Place, string(p.Team)}, cellStyle)
		}
	}

	widths := map[string]float64{"A": 12, "B": 8, "C": 24, "D": 24, "E": 10, "F": 24, "G": 14, "H": 8}
	for col, w := range widths {
		f.SetColWidth(sheet, col, col, w)
	}
	return nil
}

// Moves creates a workbook listing a region's promotions and relegations.
func Moves(from, to league.SeasonID, region string, moves []membership.Move) (*excelize.File, error) {
	f := excelize.NewFile()
	f.SetDefaultFont("Arial")

	sheet := sheetName(fmt.Sprintf("Moves %s %d-%d", region, from, to))
	if _, err := f.NewSheet(sheet); err != nil {
		return nil, err
	}
	headerStyle, cellStyle, _ := newStyles(f)
	writeHeader(f, sheet, []string{"Team", "From", "To", "Move"}, headerStyle)
	for i, mv := range moves {
		kind := "Relegated"
		if mv.Promoted {
			kind = "Promoted"
		}
		writeRow(f, sheet, i+2, []any{string(mv.Team), mv.From, mv.To, kind}, cellStyle)
	}
	f.SetColWidth(sheet, "A", "A", 24)
	f.SetColWidth(sheet, "B", "D", 12)

	f.DeleteSheet("Sheet1")
	return f, nil
}

func teamName(t league.Team) string {
	if t.Name != "" {
		return t.Name
	}
	return string(t.ID)
}

func slotName(id league.TeamID) string {
	if id == "" {
		return "TBD"
	}
	return string(id)
}

// sheetName strips the characters Excel rejects and keeps the 31 character
// limit.
func sheetName(name string) string {
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`:\/?*[]`, r) {
			return '-'
		}
		return r
	}, name)
	if len(name) > 31 {
		name = name[:31]
	}
	return name
}

func cellRef(col, row int) string {
	return fmt.Sprintf("%s%d", colLetter(col), row)
}

func colLetter(col int) string {
	result := ""
	for col > 0 {
		col--
		result = string(rune('A'+col%26)) + result
		col /= 26
	}
	return result
}
