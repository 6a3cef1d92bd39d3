package config

import (
	"fmt"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/derekprior/ladder/internal/bracket"
	"github.com/derekprior/ladder/internal/league"
	"github.com/derekprior/ladder/internal/membership"
	"github.com/derekprior/ladder/internal/schedule"
	"github.com/derekprior/ladder/internal/season"
	"github.com/derekprior/ladder/internal/strategy"
)

// Date is a wrapper around time.Time for YAML date parsing.
type Date struct {
	Time time.Time
}

func (d *Date) UnmarshalYAML(value *yaml.Node) error {
	t, err := time.Parse("2006-01-02", value.Value)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", value.Value, err)
	}
	d.Time = t
	return nil
}

// Clock is a wall-clock time of day written as "HH:MM".
type Clock time.Duration

func (c *Clock) UnmarshalYAML(value *yaml.Node) error {
	t, err := time.Parse("15:04", value.Value)
	if err != nil {
		return fmt.Errorf("invalid time %q: %w", value.Value, err)
	}
	*c = Clock(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute)
	return nil
}

func (c Clock) String() string {
	d := time.Duration(c)
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}

// Weekday is a day name such as "monday".
type Weekday time.Weekday

func (w *Weekday) UnmarshalYAML(value *yaml.Node) error {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(value.Value, d.String()) {
			*w = Weekday(d)
			return nil
		}
	}
	return fmt.Errorf("invalid weekday %q", value.Value)
}

// Duration is a Go duration string such as "30m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	v, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(v)
	return nil
}

type Season struct {
	ID        int  `yaml:"id"`
	StartDate Date `yaml:"start_date"`
}

type Window struct {
	Open  Clock `yaml:"open"`
	Close Clock `yaml:"close"`
}

type Calendar struct {
	Timezone string   `yaml:"timezone"`
	RestDay  Weekday  `yaml:"rest_day"`
	Window   Window   `yaml:"window"`
	Interval Duration `yaml:"interval"`
}

type Tier struct {
	Tier     int `yaml:"tier"`
	Capacity int `yaml:"capacity"`
}

type Division struct {
	ID     string   `yaml:"id"`
	Region string   `yaml:"region"`
	Tier   int      `yaml:"tier"`
	Teams  []string `yaml:"teams"`
}

type Link struct {
	Upper int `yaml:"upper"`
	Lower int `yaml:"lower"`
	Count int `yaml:"count"`
}

type Points struct {
	Win  int `yaml:"win"`
	Draw int `yaml:"draw"`
	Loss int `yaml:"loss"`
}

// Bracket holds the settings shared by every knockout competition.
type Bracket struct {
	Rounds            []string       `yaml:"rounds"`
	OffsetsDays       map[string]int `yaml:"offsets_days"`
	DefaultOffsetDays int            `yaml:"default_offset_days"`
	Qualifiers        int            `yaml:"qualifiers"`
}

type Playoff struct {
	Bracket         `yaml:",inline"`
	Entrants        int `yaml:"entrants"`
	MinParticipants int `yaml:"min_participants"`
}

type Cup struct {
	Bracket  `yaml:",inline"`
	Size     int      `yaml:"size"`
	Amateurs []string `yaml:"amateurs"`
	// Seed fixes the re-draw order; zero seeds from the clock.
	Seed int64 `yaml:"seed"`
}

type Brackets struct {
	Playoff *Playoff `yaml:"playoff"`
	Cup     *Cup     `yaml:"cup"`
}

type Prize struct {
	Kind   string `yaml:"kind"`
	Rank   int    `yaml:"rank"`
	Amount int64  `yaml:"amount"`
}

type Triggers struct {
	Tick     string `yaml:"tick"`
	Rollover string `yaml:"rollover"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	Season              Season     `yaml:"season"`
	Calendar            Calendar   `yaml:"calendar"`
	Tiers               []Tier     `yaml:"tiers"`
	Divisions           []Division `yaml:"divisions"`
	PromotionRelegation []Link     `yaml:"promotion_relegation"`
	Strategy            string     `yaml:"strategy"`
	Points              *Points    `yaml:"points"`
	Brackets            Brackets   `yaml:"brackets"`
	Prizes              []Prize    `yaml:"prizes"`
	Triggers            Triggers   `yaml:"triggers"`
	Workers             int        `yaml:"workers"`
	DatabaseURL         string     `yaml:"database_url"`
	HTTPAddr            string     `yaml:"http_addr"`
	Log                 Log        `yaml:"log"`
}

// AllTeams returns all team names across all divisions.
func (c *Config) AllTeams() []string {
	var teams []string
	for _, d := range c.Divisions {
		teams = append(teams, d.Teams...)
	}
	return teams
}

// LoadFromBytes parses YAML bytes into a Config, applies environment
// overrides and defaults, and validates it.
func LoadFromBytes(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromFile reads and parses a YAML config file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromBytes(data)
}

func (c *Config) applyEnv() {
	if v := os.Getenv("LADDER_DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("LADDER_HTTP_ADDR"); v != "" {
		c.HTTPAddr = v
	}
	if v := os.Getenv("LADDER_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

func (c *Config) applyDefaults() {
	if c.Calendar.Timezone == "" {
		c.Calendar.Timezone = "UTC"
	}
	if c.Points == nil {
		p := league.DefaultPoints()
		c.Points = &Points{Win: p.Win, Draw: p.Draw, Loss: p.Loss}
	}
	if p := c.Brackets.Playoff; p != nil {
		if len(p.Rounds) == 0 {
			p.Rounds = roundNames(bracket.PlayoffRounds())
		}
		if p.DefaultOffsetDays == 0 {
			p.DefaultOffsetDays = 7
		}
		if p.MinParticipants == 0 {
			p.MinParticipants = 2
		}
		if p.Entrants == 0 {
			p.Entrants = 1 << len(p.Rounds)
		}
	}
	if cup := c.Brackets.Cup; cup != nil {
		if len(cup.Rounds) == 0 {
			cup.Rounds = roundNames(bracket.CupRounds())
		}
		if cup.DefaultOffsetDays == 0 {
			cup.DefaultOffsetDays = 7
		}
		if cup.Size == 0 {
			cup.Size = 1 << len(cup.Rounds)
		}
	}
	if c.Workers == 0 {
		c.Workers = 4
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func roundNames(rounds []bracket.Round) []string {
	names := make([]string, len(rounds))
	for i, r := range rounds {
		names[i] = string(r)
	}
	return names
}

var knownRounds = map[string]bool{
	string(bracket.Wildcard): true,
	string(bracket.Round32):  true,
	string(bracket.Round16):  true,
	string(bracket.Quarter):  true,
	string(bracket.Semi):     true,
	string(bracket.Final):    true,
}

func (c *Config) validate() error {
	if c.Season.ID < 1 {
		return fmt.Errorf("season id must be at least 1, got %d", c.Season.ID)
	}
	if c.Season.StartDate.Time.IsZero() {
		return fmt.Errorf("season start_date is required")
	}

	if _, err := time.LoadLocation(c.Calendar.Timezone); err != nil {
		return fmt.Errorf("calendar timezone %q: %w", c.Calendar.Timezone, err)
	}
	if c.Calendar.Window.Close < c.Calendar.Window.Open {
		return fmt.Errorf("calendar window closes at %s before it opens at %s",
			c.Calendar.Window.Close, c.Calendar.Window.Open)
	}
	if c.Calendar.Interval <= 0 {
		return fmt.Errorf("calendar interval must be positive")
	}

	if _, err := strategy.Get(c.Strategy); err != nil {
		return err
	}

	capacity := make(map[int]int)
	for _, t := range c.Tiers {
		if t.Capacity < 2 {
			return fmt.Errorf("tier %d: capacity must be at least 2, got %d", t.Tier, t.Capacity)
		}
		if _, dup := capacity[t.Tier]; dup {
			return fmt.Errorf("tier %d is defined twice", t.Tier)
		}
		capacity[t.Tier] = t.Capacity
	}

	if len(c.Divisions) == 0 {
		return fmt.Errorf("at least one division is required")
	}

	// Check for duplicate division ids, tiers and team names
	ids := make(map[string]bool)
	tiers := make(map[string]bool)
	seen := make(map[string]string)
	for _, div := range c.Divisions {
		if div.ID == "" || div.Region == "" {
			return fmt.Errorf("every division needs an id and a region")
		}
		if ids[div.ID] {
			return fmt.Errorf("division %q is defined twice", div.ID)
		}
		ids[div.ID] = true
		regionTier := fmt.Sprintf("%s/%d", div.Region, div.Tier)
		if tiers[regionTier] {
			return fmt.Errorf("region %q has two tier %d divisions", div.Region, div.Tier)
		}
		tiers[regionTier] = true

		limit, ok := capacity[div.Tier]
		if !ok {
			return fmt.Errorf("division %q: tier %d has no capacity", div.ID, div.Tier)
		}
		if len(div.Teams) > limit {
			return fmt.Errorf("division %q has %d teams, capacity is %d", div.ID, len(div.Teams), limit)
		}
		for _, team := range div.Teams {
			if prevDiv, ok := seen[team]; ok {
				return fmt.Errorf("team %q appears in both %q and %q divisions", team, prevDiv, div.ID)
			}
			seen[team] = div.ID
		}
	}

	for _, l := range c.PromotionRelegation {
		if _, ok := capacity[l.Upper]; !ok {
			return fmt.Errorf("promotion_relegation: unknown tier %d", l.Upper)
		}
		if _, ok := capacity[l.Lower]; !ok {
			return fmt.Errorf("promotion_relegation: unknown tier %d", l.Lower)
		}
		if l.Upper >= l.Lower {
			return fmt.Errorf("promotion_relegation: upper tier %d must rank above lower tier %d", l.Upper, l.Lower)
		}
		if l.Count < 0 {
			return fmt.Errorf("promotion_relegation: count must not be negative")
		}
	}

	if p := c.Brackets.Playoff; p != nil {
		if err := p.validate("playoff"); err != nil {
			return err
		}
		if p.Entrants < 2 {
			return fmt.Errorf("playoff: entrants must be at least 2")
		}
		if p.Entrants > 1<<len(p.Rounds) {
			return fmt.Errorf("playoff: %d entrants do not fit %d rounds", p.Entrants, len(p.Rounds))
		}
	}
	if cup := c.Brackets.Cup; cup != nil {
		if err := cup.validate("cup"); err != nil {
			return err
		}
		if cup.Size < 2 || cup.Size > 1<<len(cup.Rounds) {
			return fmt.Errorf("cup: size %d does not fit %d rounds", cup.Size, len(cup.Rounds))
		}
	}

	for _, p := range c.Prizes {
		if p.Kind != string(bracket.Playoff) && p.Kind != string(bracket.Cup) {
			return fmt.Errorf("prize: unknown kind %q", p.Kind)
		}
		if p.Rank < 1 || p.Amount < 0 {
			return fmt.Errorf("prize: %s rank %d amount %d is invalid", p.Kind, p.Rank, p.Amount)
		}
	}

	for name, expr := range map[string]string{"tick": c.Triggers.Tick, "rollover": c.Triggers.Rollover} {
		if expr == "" {
			continue
		}
		if _, err := cron.ParseStandard(expr); err != nil {
			return fmt.Errorf("triggers.%s: %w", name, err)
		}
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

func (b *Bracket) validate(name string) error {
	for _, r := range b.Rounds {
		if !knownRounds[r] {
			return fmt.Errorf("%s: unknown round %q", name, r)
		}
	}
	for r, days := range b.OffsetsDays {
		if !knownRounds[r] {
			return fmt.Errorf("%s: offset for unknown round %q", name, r)
		}
		if days < 0 {
			return fmt.Errorf("%s: offset for %s must not be negative", name, r)
		}
	}
	if b.Qualifiers < 0 {
		return fmt.Errorf("%s: qualifiers must not be negative", name)
	}
	return nil
}

// Location returns the calendar's time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Calendar.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// StartTime is midnight of the season start date in the calendar's zone.
func (c *Config) StartTime() time.Time {
	y, m, d := c.Season.StartDate.Time.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.Location())
}

func (c *Config) ScheduleCalendar() schedule.Calendar {
	return schedule.Calendar{
		RestDay:  time.Weekday(c.Calendar.RestDay),
		Open:     time.Duration(c.Calendar.Window.Open),
		Close:    time.Duration(c.Calendar.Window.Close),
		Interval: time.Duration(c.Calendar.Interval),
		Location: c.Location(),
	}
}

func (c *Config) Capacity(tier int) int {
	for _, t := range c.Tiers {
		if t.Tier == tier {
			return t.Capacity
		}
	}
	return 0
}

// SeasonDivisions returns the configured divisions for the opening season,
// holding only their real teams. Team names double as team ids.
func (c *Config) SeasonDivisions() []*membership.Division {
	divisions := make([]*membership.Division, 0, len(c.Divisions))
	for _, div := range c.Divisions {
		d := &membership.Division{
			ID:       div.ID,
			Season:   league.SeasonID(c.Season.ID),
			Region:   div.Region,
			Tier:     div.Tier,
			Capacity: c.Capacity(div.Tier),
		}
		for _, team := range div.Teams {
			d.Members = append(d.Members, membership.Membership{
				Team: league.Team{ID: league.TeamID(team), Name: team},
			})
		}
		divisions = append(divisions, d)
	}
	return divisions
}

func (c *Config) Links() []membership.Link {
	links := make([]membership.Link, len(c.PromotionRelegation))
	for i, l := range c.PromotionRelegation {
		links[i] = membership.Link{Upper: l.Upper, Lower: l.Lower, Count: l.Count}
	}
	return links
}

func (c *Config) PrizeTable() season.PrizeTable {
	table := make(season.PrizeTable)
	for _, p := range c.Prizes {
		kind := bracket.Kind(p.Kind)
		if table[kind] == nil {
			table[kind] = make(map[int]int64)
		}
		table[kind][p.Rank] = p.Amount
	}
	return table
}

func (c *Config) Amateurs() []league.TeamID {
	if c.Brackets.Cup == nil {
		return nil
	}
	ids := make([]league.TeamID, len(c.Brackets.Cup.Amateurs))
	for i, a := range c.Brackets.Cup.Amateurs {
		ids[i] = league.TeamID(a)
	}
	return ids
}

func (b *Bracket) engineConfig(kind bracket.Kind, policy bracket.SeedingPolicy, cal schedule.Calendar) bracket.Config {
	rounds := make([]bracket.Round, len(b.Rounds))
	for i, r := range b.Rounds {
		rounds[i] = bracket.Round(r)
	}
	offsets := make(map[bracket.Round]int, len(b.OffsetsDays))
	for r, days := range b.OffsetsDays {
		offsets[bracket.Round(r)] = days
	}
	return bracket.Config{
		Kind:          kind,
		Rounds:        rounds,
		Policy:        policy,
		Offsets:       offsets,
		DefaultOffset: b.DefaultOffsetDays,
		Qualifiers:    b.Qualifiers,
		Calendar:      cal,
	}
}

// Orchestrator converts the configuration into the season engine's settings.
func (c *Config) Orchestrator() season.Config {
	cal := c.ScheduleCalendar()
	strat, _ := strategy.Get(c.Strategy)
	cfg := season.Config{
		Calendar: cal,
		Strategy: strat,
		Points:   league.PointsRule{Win: c.Points.Win, Draw: c.Points.Draw, Loss: c.Points.Loss},
		Links:    c.Links(),
		Prizes:   c.PrizeTable(),
		Workers:  c.Workers,
	}
	if p := c.Brackets.Playoff; p != nil {
		cfg.Playoff = bracket.NewEngine(p.engineConfig(bracket.Playoff, bracket.ByeSeeded{}, cal))
		cfg.PlayoffEntrants = p.Entrants
		cfg.PlayoffMinParticipants = p.MinParticipants
	}
	if cup := c.Brackets.Cup; cup != nil {
		seed := cup.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		policy := bracket.CupReseed{Rand: &lockedRand{r: rand.New(rand.NewSource(seed))}}
		cfg.Cup = bracket.NewEngine(cup.engineConfig(bracket.Cup, policy, cal))
		cfg.CupSize = cup.Size
	}
	return cfg
}

// lockedRand serializes cup re-draws from concurrent ticks.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) Shuffle(n int, swap func(i, j int)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.r.Shuffle(n, swap)
}

// Logger builds the configured logger.
func (c *Config) Logger() *logrus.Logger {
	log := logrus.New()
	if level, err := logrus.ParseLevel(c.Log.Level); err == nil {
		log.SetLevel(level)
	}
	if c.Log.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log
}
