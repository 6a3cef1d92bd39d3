package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/derekprior/ladder/internal/bracket"
	"github.com/derekprior/ladder/internal/league"
	"github.com/derekprior/ladder/internal/membership"
	"github.com/derekprior/ladder/internal/season"
)

// Connect opens a connection pool and checks that the database answers.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 10 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}

// Postgres is a season.Store backed by PostgreSQL.
type Postgres struct {
	db *pgxpool.Pool
}

var _ season.Store = (*Postgres)(nil)

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

var schema = []string{
	`CREATE SCHEMA IF NOT EXISTS ladder`,
	`CREATE TABLE IF NOT EXISTS ladder.generation_keys (
		season     INTEGER NOT NULL,
		division   TEXT NOT NULL,
		stage      TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (season, division, stage)
	)`,
	`CREATE TABLE IF NOT EXISTS ladder.tracks (
		season     INTEGER NOT NULL,
		division   TEXT NOT NULL,
		stage      TEXT NOT NULL,
		bracket_id TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (season, division)
	)`,
	`CREATE TABLE IF NOT EXISTS ladder.divisions (
		season   INTEGER NOT NULL,
		id       TEXT NOT NULL,
		region   TEXT NOT NULL,
		tier     INTEGER NOT NULL,
		capacity INTEGER NOT NULL,
		PRIMARY KEY (season, id)
	)`,
	`CREATE TABLE IF NOT EXISTS ladder.memberships (
		season        INTEGER NOT NULL,
		division      TEXT NOT NULL,
		position      INTEGER NOT NULL,
		team_id       TEXT NOT NULL,
		team_name     TEXT NOT NULL,
		synthetic     BOOLEAN NOT NULL,
		played        INTEGER NOT NULL DEFAULT 0,
		wins          INTEGER NOT NULL DEFAULT 0,
		losses        INTEGER NOT NULL DEFAULT 0,
		draws         INTEGER NOT NULL DEFAULT 0,
		points        INTEGER NOT NULL DEFAULT 0,
		goals_for     INTEGER NOT NULL DEFAULT 0,
		goals_against INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (season, division, team_id),
		FOREIGN KEY (season, division) REFERENCES ladder.divisions (season, id)
	)`,
	`CREATE TABLE IF NOT EXISTS ladder.fixtures (
		id           TEXT PRIMARY KEY,
		season       INTEGER NOT NULL,
		division     TEXT NOT NULL,
		home         TEXT NOT NULL,
		away         TEXT NOT NULL,
		scheduled_at TIMESTAMPTZ NOT NULL,
		status       TEXT NOT NULL,
		round_label  TEXT NOT NULL,
		home_score   INTEGER NOT NULL DEFAULT 0,
		away_score   INTEGER NOT NULL DEFAULT 0,
		completed_at TIMESTAMPTZ,
		UNIQUE (season, division, scheduled_at)
	)`,
	`CREATE TABLE IF NOT EXISTS ladder.brackets (
		id       TEXT PRIMARY KEY,
		kind     TEXT NOT NULL,
		season   INTEGER NOT NULL,
		division TEXT NOT NULL,
		rounds   TEXT[] NOT NULL,
		current  INTEGER NOT NULL,
		status   TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ladder.bracket_entrants (
		bracket_id TEXT NOT NULL REFERENCES ladder.brackets (id),
		team_id    TEXT NOT NULL,
		rank       INTEGER NOT NULL,
		tier       INTEGER NOT NULL,
		amateur    BOOLEAN NOT NULL,
		seed_round TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (bracket_id, team_id)
	)`,
	`CREATE TABLE IF NOT EXISTS ladder.bracket_matches (
		bracket_id   TEXT NOT NULL REFERENCES ladder.brackets (id),
		round        TEXT NOT NULL,
		number       INTEGER NOT NULL,
		home         TEXT NOT NULL,
		away         TEXT NOT NULL,
		winner       TEXT NOT NULL DEFAULT '',
		home_score   INTEGER NOT NULL DEFAULT 0,
		away_score   INTEGER NOT NULL DEFAULT 0,
		status       TEXT NOT NULL,
		scheduled_at TIMESTAMPTZ,
		PRIMARY KEY (bracket_id, round, number)
	)`,
	`CREATE TABLE IF NOT EXISTS ladder.qualifications (
		season     INTEGER NOT NULL,
		division   TEXT NOT NULL,
		bracket_id TEXT NOT NULL REFERENCES ladder.brackets (id),
		kind       TEXT NOT NULL,
		team_id    TEXT NOT NULL,
		place      INTEGER NOT NULL,
		PRIMARY KEY (bracket_id, team_id)
	)`,
	`CREATE TABLE IF NOT EXISTS ladder.payouts (
		key        TEXT PRIMARY KEY,
		season     INTEGER NOT NULL,
		bracket_id TEXT NOT NULL REFERENCES ladder.brackets (id),
		kind       TEXT NOT NULL,
		team_id    TEXT NOT NULL,
		amount     BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		settled_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS ladder.sequences (
		prefix TEXT PRIMARY KEY,
		next   INTEGER NOT NULL
	)`,
}

// Migrate creates any missing tables.
func (p *Postgres) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (p *Postgres) Commit(ctx context.Context, c season.Commit) error {
	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := claimGeneration(ctx, tx, c.Key); err != nil {
		return err
	}
	if c.Transition != nil {
		if err := moveTrack(ctx, tx, *c.Transition); err != nil {
			return err
		}
	}
	for _, d := range c.Divisions {
		if err := saveDivision(ctx, tx, d); err != nil {
			return fmt.Errorf("saving division %s: %w", d.ID, err)
		}
	}
	if len(c.Fixtures) > 0 {
		if err := insertFixtures(ctx, tx, c.Fixtures); err != nil {
			return fmt.Errorf("inserting fixtures: %w", err)
		}
	}
	if c.Bracket != nil {
		if err := saveBracket(ctx, tx, c.Bracket); err != nil {
			return fmt.Errorf("saving bracket %s: %w", c.Bracket.ID, err)
		}
	}
	for _, q := range c.Qualifications {
		if _, err := tx.Exec(ctx, `
			INSERT INTO ladder.qualifications (season, division, bracket_id, kind, team_id, place)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, int(q.Season), q.Division, q.BracketID, string(q.Kind), string(q.Team), q.Place); err != nil {
			return fmt.Errorf("inserting qualification: %w", err)
		}
	}
	for _, po := range c.Payouts {
		if _, err := tx.Exec(ctx, `
			INSERT INTO ladder.payouts (key, season, bracket_id, kind, team_id, amount)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (key) DO NOTHING
		`, po.Key, int(po.Season), po.BracketID, string(po.Kind), string(po.Team), po.Amount); err != nil {
			return fmt.Errorf("recording payout %s: %w", po.Key, err)
		}
	}
	if s := c.Sequence; s != nil {
		if _, err := tx.Exec(ctx, `
			INSERT INTO ladder.sequences (prefix, next) VALUES ($1, $2)
			ON CONFLICT (prefix) DO UPDATE SET next = GREATEST(ladder.sequences.next, EXCLUDED.next)
		`, s.Prefix, s.Next); err != nil {
			return fmt.Errorf("saving sequence: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func claimGeneration(ctx context.Context, tx pgx.Tx, key season.GenerationKey) error {
	cmd, err := tx.Exec(ctx, `
		INSERT INTO ladder.generation_keys (season, division, stage)
		VALUES ($1, $2, $3)
		ON CONFLICT (season, division, stage) DO NOTHING
	`, int(key.Season), key.Division, key.Stage)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", key, league.ErrDuplicateGeneration)
	}
	return nil
}

func moveTrack(ctx context.Context, tx pgx.Tx, t season.Transition) error {
	if t.From == "" {
		cmd, err := tx.Exec(ctx, `
			INSERT INTO ladder.tracks (season, division, stage, bracket_id)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (season, division) DO NOTHING
		`, int(t.To.Season), t.To.Division, string(t.To.Stage), t.To.BracketID)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return fmt.Errorf("%w: division %s already has a %d track", league.ErrStageConflict, t.To.Division, t.To.Season)
		}
		return nil
	}

	cmd, err := tx.Exec(ctx, `
		UPDATE ladder.tracks SET stage = $3, bracket_id = $4
		WHERE season = $1 AND division = $2 AND stage = $5
	`, int(t.To.Season), t.To.Division, string(t.To.Stage), t.To.BracketID, string(t.From))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: division %s is not in %s", league.ErrStageConflict, t.To.Division, t.From)
	}
	return nil
}

func saveDivision(ctx context.Context, tx pgx.Tx, d *membership.Division) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO ladder.divisions (season, id, region, tier, capacity)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (season, id) DO UPDATE SET region = EXCLUDED.region, tier = EXCLUDED.tier, capacity = EXCLUDED.capacity
	`, int(d.Season), d.ID, d.Region, d.Tier, d.Capacity); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM ladder.memberships WHERE season = $1 AND division = $2`, int(d.Season), d.ID); err != nil {
		return err
	}
	rows := make([][]any, len(d.Members))
	for i, m := range d.Members {
		s := m.Standing
		rows[i] = []any{int(d.Season), d.ID, i, string(m.Team.ID), m.Team.Name, m.Team.Synthetic,
			s.Played, s.Wins, s.Losses, s.Draws, s.Points, s.GoalsFor, s.GoalsAgainst}
	}
	_, err := tx.CopyFrom(ctx, pgx.Identifier{"ladder", "memberships"},
		[]string{"season", "division", "position", "team_id", "team_name", "synthetic",
			"played", "wins", "losses", "draws", "points", "goals_for", "goals_against"},
		pgx.CopyFromRows(rows))
	return err
}

func insertFixtures(ctx context.Context, tx pgx.Tx, fixtures []league.Fixture) error {
	rows := make([][]any, len(fixtures))
	for i, f := range fixtures {
		rows[i] = []any{f.ID, int(f.Season), f.Division, string(f.Home), string(f.Away),
			f.ScheduledAt, string(f.Status), f.RoundLabel}
	}
	_, err := tx.CopyFrom(ctx, pgx.Identifier{"ladder", "fixtures"},
		[]string{"id", "season", "division", "home", "away", "scheduled_at", "status", "round_label"},
		pgx.CopyFromRows(rows))
	return err
}

func saveBracket(ctx context.Context, tx pgx.Tx, b *bracket.Bracket) error {
	rounds := make([]string, len(b.Rounds))
	for i, r := range b.Rounds {
		rounds[i] = string(r)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO ladder.brackets (id, kind, season, division, rounds, current, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET current = EXCLUDED.current, status = EXCLUDED.status
	`, b.ID, string(b.Kind), int(b.Season), b.Division, rounds, b.Current, string(b.Status)); err != nil {
		return err
	}

	seedRound := make(map[league.TeamID]bracket.Round, len(b.Seeds))
	for _, s := range b.Seeds {
		seedRound[s.Team] = s.Round
	}
	if _, err := tx.Exec(ctx, `DELETE FROM ladder.bracket_entrants WHERE bracket_id = $1`, b.ID); err != nil {
		return err
	}
	for _, e := range b.Entrants {
		if _, err := tx.Exec(ctx, `
			INSERT INTO ladder.bracket_entrants (bracket_id, team_id, rank, tier, amateur, seed_round)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, b.ID, string(e.Team), e.Rank, e.Tier, e.Amateur, string(seedRound[e.Team])); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM ladder.bracket_matches WHERE bracket_id = $1`, b.ID); err != nil {
		return err
	}
	for _, m := range b.Matches {
		if _, err := tx.Exec(ctx, `
			INSERT INTO ladder.bracket_matches (bracket_id, round, number, home, away, winner, home_score, away_score, status, scheduled_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, b.ID, string(m.Round), m.Number, string(m.Home), string(m.Away), string(m.Winner),
			m.HomeScore, m.AwayScore, string(m.Status), nullTime(m.ScheduledAt)); err != nil {
			return err
		}
	}
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, league.ErrNotFound)
	}
	return err
}

func (p *Postgres) Track(ctx context.Context, s league.SeasonID, division string) (season.Track, error) {
	t := season.Track{Season: s, Division: division}
	var stage string
	err := p.db.QueryRow(ctx, `
		SELECT stage, bracket_id FROM ladder.tracks WHERE season = $1 AND division = $2
	`, int(s), division).Scan(&stage, &t.BracketID)
	if err != nil {
		return season.Track{}, notFound(err, fmt.Sprintf("track %d/%s", s, division))
	}
	t.Stage = season.Stage(stage)
	return t, nil
}

func (p *Postgres) Tracks(ctx context.Context, s league.SeasonID) ([]season.Track, error) {
	rows, err := p.db.Query(ctx, `
		SELECT division, stage, bracket_id FROM ladder.tracks WHERE season = $1 ORDER BY division
	`, int(s))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tracks []season.Track
	for rows.Next() {
		t := season.Track{Season: s}
		var stage string
		if err := rows.Scan(&t.Division, &stage, &t.BracketID); err != nil {
			return nil, err
		}
		t.Stage = season.Stage(stage)
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

func (p *Postgres) Division(ctx context.Context, s league.SeasonID, id string) (*membership.Division, error) {
	divisions, err := p.loadDivisions(ctx, p.db, s, id)
	if err != nil {
		return nil, err
	}
	if len(divisions) == 0 {
		return nil, fmt.Errorf("division %d/%s: %w", s, id, league.ErrNotFound)
	}
	return divisions[0], nil
}

func (p *Postgres) Divisions(ctx context.Context, s league.SeasonID) ([]*membership.Division, error) {
	return p.loadDivisions(ctx, p.db, s, "")
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// loadDivisions loads one division, or all of a season's when id is empty.
func (p *Postgres) loadDivisions(ctx context.Context, q querier, s league.SeasonID, id string) ([]*membership.Division, error) {
	rows, err := q.Query(ctx, `
		SELECT d.id, d.region, d.tier, d.capacity,
		       m.team_id, m.team_name, m.synthetic,
		       m.played, m.wins, m.losses, m.draws, m.points, m.goals_for, m.goals_against
		FROM ladder.divisions d
		JOIN ladder.memberships m ON m.season = d.season AND m.division = d.id
		WHERE d.season = $1 AND ($2 = '' OR d.id = $2)
		ORDER BY d.id, m.position
	`, int(s), id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var divisions []*membership.Division
	for rows.Next() {
		var (
			d   membership.Division
			m   membership.Membership
			tid string
		)
		st := &m.Standing
		if err := rows.Scan(&d.ID, &d.Region, &d.Tier, &d.Capacity, &tid, &m.Team.Name, &m.Team.Synthetic,
			&st.Played, &st.Wins, &st.Losses, &st.Draws, &st.Points, &st.GoalsFor, &st.GoalsAgainst); err != nil {
			return nil, err
		}
		m.Team.ID = league.TeamID(tid)
		if n := len(divisions); n == 0 || divisions[n-1].ID != d.ID {
			d.Season = s
			divisions = append(divisions, &d)
		}
		last := divisions[len(divisions)-1]
		last.Members = append(last.Members, m)
	}
	return divisions, rows.Err()
}

func (p *Postgres) ReplaceMember(ctx context.Context, s league.SeasonID, division string, replaced league.TeamID, team league.Team) error {
	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var capacity, members int
	if err := tx.QueryRow(ctx, `
		SELECT capacity FROM ladder.divisions WHERE season = $1 AND id = $2 FOR UPDATE
	`, int(s), division).Scan(&capacity); err != nil {
		return notFound(err, fmt.Sprintf("division %d/%s", s, division))
	}
	if err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM ladder.memberships WHERE season = $1 AND division = $2
	`, int(s), division).Scan(&members); err != nil {
		return err
	}

	if replaced == "" {
		if members >= capacity {
			return fmt.Errorf("%w: division %s is full", league.ErrNoVacancy, division)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO ladder.memberships (season, division, position, team_id, team_name, synthetic)
			VALUES ($1, $2, $3, $4, $5, false)
		`, int(s), division, members, string(team.ID), team.Name); err != nil {
			return err
		}
		return tx.Commit(ctx)
	}

	cmd, err := tx.Exec(ctx, `
		UPDATE ladder.memberships SET team_id = $4, team_name = $5, synthetic = false
		WHERE season = $1 AND division = $2 AND team_id = $3 AND synthetic
	`, int(s), division, string(replaced), string(team.ID), team.Name)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("synthetic team %s in %s: %w", replaced, division, league.ErrNotFound)
	}
	for _, side := range []string{"home", "away"} {
		if _, err := tx.Exec(ctx, fmt.Sprintf(`
			UPDATE ladder.fixtures SET %[1]s = $4
			WHERE season = $1 AND division = $2 AND %[1]s = $3 AND status IN ('SCHEDULED', 'LIVE')
		`, side), int(s), division, string(replaced), string(team.ID)); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

const fixtureColumns = `id, season, division, home, away, scheduled_at, status, round_label, home_score, away_score, completed_at`

func scanFixture(row pgx.Row) (league.Fixture, error) {
	var (
		f                  league.Fixture
		seasonID           int
		home, away, status string
		completedAt        *time.Time
	)
	if err := row.Scan(&f.ID, &seasonID, &f.Division, &home, &away, &f.ScheduledAt, &status, &f.RoundLabel,
		&f.HomeScore, &f.AwayScore, &completedAt); err != nil {
		return league.Fixture{}, err
	}
	f.Season = league.SeasonID(seasonID)
	f.Home, f.Away = league.TeamID(home), league.TeamID(away)
	f.Status = league.FixtureStatus(status)
	if completedAt != nil {
		f.CompletedAt = *completedAt
	}
	return f, nil
}

func (p *Postgres) Fixture(ctx context.Context, id string) (league.Fixture, error) {
	f, err := scanFixture(p.db.QueryRow(ctx, `SELECT `+fixtureColumns+` FROM ladder.fixtures WHERE id = $1`, id))
	if err != nil {
		return league.Fixture{}, notFound(err, "fixture "+id)
	}
	return f, nil
}

func (p *Postgres) Fixtures(ctx context.Context, s league.SeasonID, division string) ([]league.Fixture, error) {
	rows, err := p.db.Query(ctx, `
		SELECT `+fixtureColumns+` FROM ladder.fixtures
		WHERE season = $1 AND division = $2
		ORDER BY scheduled_at
	`, int(s), division)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var fixtures []league.Fixture
	for rows.Next() {
		f, err := scanFixture(rows)
		if err != nil {
			return nil, err
		}
		fixtures = append(fixtures, f)
	}
	return fixtures, rows.Err()
}

func (p *Postgres) StartFixture(ctx context.Context, id string) error {
	cmd, err := p.db.Exec(ctx, `
		UPDATE ladder.fixtures SET status = 'LIVE' WHERE id = $1 AND status = 'SCHEDULED'
	`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		if _, err := p.Fixture(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("fixture %s: %w", id, league.ErrAlreadyFinished)
	}
	return nil
}

func (p *Postgres) FinishFixture(ctx context.Context, id string, res league.Result, home, away league.Standing) (league.Fixture, error) {
	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return league.Fixture{}, err
	}
	defer tx.Rollback(ctx)

	f, err := scanFixture(tx.QueryRow(ctx, `
		UPDATE ladder.fixtures
		SET status = 'FINISHED', home_score = $2, away_score = $3, completed_at = $4
		WHERE id = $1 AND status IN ('SCHEDULED', 'LIVE')
		RETURNING `+fixtureColumns, id, res.HomeScore, res.AwayScore, nullTime(res.CompletedAt)))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, lookupErr := p.Fixture(ctx, id); lookupErr != nil {
			return league.Fixture{}, lookupErr
		}
		return league.Fixture{}, fmt.Errorf("fixture %s: %w", id, league.ErrAlreadyFinished)
	}
	if err != nil {
		return league.Fixture{}, err
	}

	for _, side := range []struct {
		team  league.TeamID
		delta league.Standing
	}{{f.Home, home}, {f.Away, away}} {
		d := side.delta
		cmd, err := tx.Exec(ctx, `
			UPDATE ladder.memberships SET
				played = played + $4, wins = wins + $5, losses = losses + $6, draws = draws + $7,
				points = points + $8, goals_for = goals_for + $9, goals_against = goals_against + $10
			WHERE season = $1 AND division = $2 AND team_id = $3
		`, int(f.Season), f.Division, string(side.team),
			d.Played, d.Wins, d.Losses, d.Draws, d.Points, d.GoalsFor, d.GoalsAgainst)
		if err != nil {
			return league.Fixture{}, err
		}
		if cmd.RowsAffected() == 0 {
			return league.Fixture{}, fmt.Errorf("%w: team %s is not a member of %s", league.ErrInvalidInput, side.team, f.Division)
		}
	}
	return f, tx.Commit(ctx)
}

func (p *Postgres) Bracket(ctx context.Context, id string) (*bracket.Bracket, error) {
	brackets, err := p.loadBrackets(ctx, `b.id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(brackets) == 0 {
		return nil, fmt.Errorf("bracket %s: %w", id, league.ErrNotFound)
	}
	return brackets[0], nil
}

func (p *Postgres) Brackets(ctx context.Context, s league.SeasonID) ([]*bracket.Bracket, error) {
	return p.loadBrackets(ctx, `b.season = $1`, int(s))
}

func (p *Postgres) loadBrackets(ctx context.Context, where string, arg any) ([]*bracket.Bracket, error) {
	rows, err := p.db.Query(ctx, `
		SELECT b.id, b.kind, b.season, b.division, b.rounds, b.current, b.status
		FROM ladder.brackets b WHERE `+where+` ORDER BY b.id
	`, arg)
	if err != nil {
		return nil, err
	}
	var brackets []*bracket.Bracket
	for rows.Next() {
		var (
			b            bracket.Bracket
			kind, status string
			seasonID     int
			rounds       []string
		)
		if err := rows.Scan(&b.ID, &kind, &seasonID, &b.Division, &rounds, &b.Current, &status); err != nil {
			rows.Close()
			return nil, err
		}
		b.Kind, b.Status, b.Season = bracket.Kind(kind), bracket.Status(status), league.SeasonID(seasonID)
		for _, r := range rounds {
			b.Rounds = append(b.Rounds, bracket.Round(r))
		}
		brackets = append(brackets, &b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, b := range brackets {
		if err := p.loadBracketRows(ctx, b); err != nil {
			return nil, fmt.Errorf("loading bracket %s: %w", b.ID, err)
		}
	}
	return brackets, nil
}

func (p *Postgres) loadBracketRows(ctx context.Context, b *bracket.Bracket) error {
	rows, err := p.db.Query(ctx, `
		SELECT team_id, rank, tier, amateur, seed_round
		FROM ladder.bracket_entrants WHERE bracket_id = $1 ORDER BY rank, team_id
	`, b.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var (
			e        bracket.Entrant
			team, sr string
		)
		if err := rows.Scan(&team, &e.Rank, &e.Tier, &e.Amateur, &sr); err != nil {
			rows.Close()
			return err
		}
		e.Team = league.TeamID(team)
		b.Entrants = append(b.Entrants, e)
		if sr != "" {
			b.Seeds = append(b.Seeds, bracket.Seed{Team: e.Team, Rank: e.Rank, Round: bracket.Round(sr)})
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = p.db.Query(ctx, `
		SELECT round, number, home, away, winner, home_score, away_score, status, scheduled_at
		FROM ladder.bracket_matches WHERE bracket_id = $1 ORDER BY round, number
	`, b.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			m                                 bracket.Match
			round, home, away, winner, status string
			at                                *time.Time
		)
		if err := rows.Scan(&round, &m.Number, &home, &away, &winner, &m.HomeScore, &m.AwayScore, &status, &at); err != nil {
			return err
		}
		m.Round = bracket.Round(round)
		m.Home, m.Away, m.Winner = league.TeamID(home), league.TeamID(away), league.TeamID(winner)
		m.Status = league.FixtureStatus(status)
		if at != nil {
			m.ScheduledAt = *at
		}
		b.Matches = append(b.Matches, m)
	}
	return rows.Err()
}

func (p *Postgres) FinishBracketMatch(ctx context.Context, id string, m bracket.Match) error {
	cmd, err := p.db.Exec(ctx, `
		UPDATE ladder.bracket_matches bm
		SET winner = $6, home_score = $7, away_score = $8, status = $9
		FROM ladder.brackets b
		WHERE bm.bracket_id = $1 AND bm.round = $2 AND bm.number = $3
		  AND bm.home = $4 AND bm.away = $5
		  AND bm.status IN ('SCHEDULED', 'LIVE')
		  AND b.id = bm.bracket_id AND b.status = 'IN_PROGRESS' AND b.rounds[b.current + 1] = bm.round
	`, id, string(m.Round), m.Number, string(m.Home), string(m.Away),
		string(m.Winner), m.HomeScore, m.AwayScore, string(m.Status))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("match %s/%d: %w", m.Round, m.Number, league.ErrAlreadyFinished)
	}
	return nil
}

func (p *Postgres) Qualifications(ctx context.Context, s league.SeasonID) ([]bracket.Qualification, error) {
	rows, err := p.db.Query(ctx, `
		SELECT division, bracket_id, kind, team_id, place
		FROM ladder.qualifications WHERE season = $1
		ORDER BY bracket_id, place, team_id
	`, int(s))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var quals []bracket.Qualification
	for rows.Next() {
		q := bracket.Qualification{Season: s}
		var kind, team string
		if err := rows.Scan(&q.Division, &q.BracketID, &kind, &team, &q.Place); err != nil {
			return nil, err
		}
		q.Kind, q.Team = bracket.Kind(kind), league.TeamID(team)
		quals = append(quals, q)
	}
	return quals, rows.Err()
}

func (p *Postgres) PendingPayouts(ctx context.Context, s league.SeasonID) ([]season.Payout, error) {
	rows, err := p.db.Query(ctx, `
		SELECT key, bracket_id, kind, team_id, amount
		FROM ladder.payouts WHERE season = $1 AND settled_at IS NULL
		ORDER BY created_at, key
	`, int(s))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var pending []season.Payout
	for rows.Next() {
		po := season.Payout{Season: s}
		var kind, team string
		if err := rows.Scan(&po.Key, &po.BracketID, &kind, &team, &po.Amount); err != nil {
			return nil, err
		}
		po.Kind, po.Team = bracket.Kind(kind), league.TeamID(team)
		pending = append(pending, po)
	}
	return pending, rows.Err()
}

func (p *Postgres) SettlePayout(ctx context.Context, key string) error {
	cmd, err := p.db.Exec(ctx, `
		UPDATE ladder.payouts SET settled_at = COALESCE(settled_at, now()) WHERE key = $1
	`, key)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("payout %s: %w", key, league.ErrNotFound)
	}
	return nil
}

func (p *Postgres) Sequence(ctx context.Context, prefix string) (membership.Sequence, error) {
	seq := membership.Sequence{Prefix: prefix}
	err := p.db.QueryRow(ctx, `SELECT next FROM ladder.sequences WHERE prefix = $1`, prefix).Scan(&seq.Next)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return membership.Sequence{}, err
	}
	return seq, nil
}
