package config

// Template is the starter configuration written by `ladder init`.
const Template = `# Ladder League Configuration
# ===========================
# This file defines the divisions, calendar and competitions of a league.

# Season is the first season to generate and the earliest date a fixture may
# be played.
season:
  id: 1
  start_date: "2026-04-25"

# The calendar decides when fixtures may start. No fixture is placed on the
# rest day. Fixtures start inside the daily window, both ends included, and
# consecutive fixtures of a division are at least one interval apart.
calendar:
  timezone: UTC
  rest_day: monday
  window:
    open: "17:00"
    close: "23:30"
  interval: 30m

# Every division of a tier holds exactly this many teams. Divisions with fewer
# real teams are filled with reserve teams.
tiers:
  - tier: 1
    capacity: 8
  - tier: 2
    capacity: 8

# Divisions and their teams. Team names must be unique across all divisions.
# Each region has at most one division per tier.
divisions:
  - id: EU-1
    region: EU
    tier: 1
    teams: [Albion, Borough, Castle, Dynamo, Empire, Forest]
  - id: EU-2
    region: EU
    tier: 2
    teams: [Harriers, Invicta, Jubilee]

# At the end of every season the bottom 'count' teams of the upper tier swap
# with the top 'count' real teams of the lower tier.
promotion_relegation:
  - upper: 1
    lower: 2
    count: 2

# Strategy determines how fixtures are generated.
# "double_round_robin" plays every opponent twice, once at home.
strategy: double_round_robin

points:
  win: 3
  draw: 1
  loss: 0

# Knockout competitions. Rounds are listed first to last; a smaller field
# plays only the last rounds. offsets_days is the gap in days between the
# first match of a round and the earliest start of the named round.
brackets:
  playoff:
    rounds: [WILDCARD, SEMI, FINAL]
    entrants: 6
    min_participants: 4
    qualifiers: 2
    offsets_days:
      SEMI: 3
      FINAL: 4
    default_offset_days: 7
  cup:
    rounds: [ROUND_32, ROUND_16, QUARTER, SEMI, FINAL]
    size: 32
    qualifiers: 1
    default_offset_days: 7
    amateurs: [Athletic, Rovers, Wanderers]

# Prize money paid on completion, by competition and final placement.
prizes:
  - kind: PLAYOFF
    rank: 1
    amount: 50000
  - kind: CUP
    rank: 1
    amount: 100000

# Cron expressions for the background triggers of 'ladder serve'.
triggers:
  tick: "*/5 * * * *"
  rollover: "0 6 * * 1"

# Overridden by LADDER_DATABASE_URL, LADDER_HTTP_ADDR and LADDER_LOG_LEVEL.
database_url: postgres://localhost:5432/ladder
http_addr: ":8080"
log:
  level: info
  format: text
`
