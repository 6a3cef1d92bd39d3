package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/derekprior/ladder/internal/bracket"
	"github.com/derekprior/ladder/internal/league"
	"github.com/derekprior/ladder/internal/membership"
	"github.com/derekprior/ladder/internal/schedule"
	"github.com/derekprior/ladder/internal/season"
	"github.com/derekprior/ladder/internal/store"
)

var calendar = schedule.Calendar{
	RestDay:  time.Monday,
	Open:     17 * time.Hour,
	Close:    23*time.Hour + 30*time.Minute,
	Interval: 30 * time.Minute,
	Location: time.UTC,
}

type fixture struct {
	server *httptest.Server
	orch   *season.Orchestrator
	store  *store.Memory
}

func setup(t *testing.T) fixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	st := store.NewMemory()
	orch := season.New(st, season.LogLedger{Log: logger}, season.LogNotifier{Log: logger}, logger, season.Config{
		Calendar: calendar,
		Playoff: bracket.NewEngine(bracket.Config{
			Kind:          bracket.Playoff,
			Rounds:        bracket.PlayoffRounds(),
			Policy:        bracket.ByeSeeded{},
			DefaultOffset: 3,
			Qualifiers:    1,
			Calendar:      calendar,
		}),
		PlayoffEntrants:        4,
		PlayoffMinParticipants: 4,
	})

	d := &membership.Division{ID: "EU-1", Season: 1, Region: "EU", Tier: 1, Capacity: 4}
	for _, id := range []league.TeamID{"ANG", "AST", "CUB", "DOD"} {
		d.Members = append(d.Members, membership.Membership{Team: league.Team{ID: id, Name: string(id)}})
	}
	if err := orch.EnterRegular(context.Background(), d, time.Date(2026, 4, 25, 12, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("EnterRegular() error: %v", err)
	}

	srv := httptest.NewServer(New(logger, orch, st).Handler())
	t.Cleanup(srv.Close)
	return fixture{server: srv, orch: orch, store: st}
}

func (f fixture) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req, err := http.NewRequest(method, f.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("NewRequest error: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error: %v", method, path, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decoding %s %s: %v", method, path, err)
	}
	return resp.StatusCode, out
}

func (f fixture) fixtureIDs(t *testing.T) []string {
	t.Helper()
	fixtures, err := f.store.Fixtures(context.Background(), 1, "EU-1")
	if err != nil {
		t.Fatalf("Fixtures() error: %v", err)
	}
	ids := make([]string, len(fixtures))
	for i, fx := range fixtures {
		ids[i] = fx.ID
	}
	return ids
}

func TestHealthz(t *testing.T) {
	f := setup(t)
	status, body := f.do(t, http.MethodGet, "/healthz", nil)
	if status != http.StatusOK || body["ok"] != true {
		t.Errorf("healthz = %d %v", status, body)
	}
}

func TestReadRoutes(t *testing.T) {
	f := setup(t)

	t.Run("fixtures", func(t *testing.T) {
		status, body := f.do(t, http.MethodGet, "/v1/seasons/1/divisions/EU-1/fixtures", nil)
		if status != http.StatusOK {
			t.Fatalf("status = %d, body %v", status, body)
		}
		fixtures := body["fixtures"].([]any)
		if len(fixtures) != 12 {
			t.Errorf("fixtures = %d, want 12", len(fixtures))
		}
		first := fixtures[0].(map[string]any)
		if first["status"] != "SCHEDULED" || first["home_score"] != nil {
			t.Errorf("first fixture = %v", first)
		}
	})

	t.Run("standings", func(t *testing.T) {
		status, body := f.do(t, http.MethodGet, "/v1/seasons/1/divisions/EU-1/standings", nil)
		if status != http.StatusOK {
			t.Fatalf("status = %d, body %v", status, body)
		}
		if rows := body["standings"].([]any); len(rows) != 4 {
			t.Errorf("standings = %d rows, want 4", len(rows))
		}
	})

	t.Run("tracks", func(t *testing.T) {
		status, body := f.do(t, http.MethodGet, "/v1/seasons/1/tracks", nil)
		if status != http.StatusOK {
			t.Fatalf("status = %d, body %v", status, body)
		}
		tracks := body["tracks"].([]any)
		if len(tracks) != 1 || tracks[0].(map[string]any)["stage"] != string(season.Regular) {
			t.Errorf("tracks = %v", tracks)
		}
	})

	tests := []struct {
		name string
		path string
		want int
	}{
		{"bad season", "/v1/seasons/zero/divisions/EU-1/standings", http.StatusBadRequest},
		{"unknown division", "/v1/seasons/1/divisions/EU-9/standings", http.StatusNotFound},
		{"unknown bracket", "/v1/brackets/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := f.do(t, http.MethodGet, tt.path, nil)
			if status != tt.want {
				t.Errorf("status = %d, want %d", status, tt.want)
			}
			if body["error"] == nil {
				t.Errorf("body = %v, want an error message", body)
			}
		})
	}
}

func TestFixtureResult(t *testing.T) {
	f := setup(t)
	id := f.fixtureIDs(t)[0]
	path := fmt.Sprintf("/v1/fixtures/%s/result", id)

	status, _ := f.do(t, http.MethodPost, fmt.Sprintf("/v1/fixtures/%s/start", id), nil)
	if status != http.StatusOK {
		t.Fatalf("start status = %d", status)
	}

	status, body := f.do(t, http.MethodPost, path, map[string]any{"home_score": 3, "away_score": 1})
	if status != http.StatusOK {
		t.Fatalf("status = %d, body %v", status, body)
	}
	if body["status"] != "FINISHED" || body["home_score"] != float64(3) {
		t.Errorf("fixture = %v", body)
	}

	t.Run("repeat is a conflict", func(t *testing.T) {
		status, _ := f.do(t, http.MethodPost, path, map[string]any{"home_score": 0, "away_score": 0})
		if status != http.StatusConflict {
			t.Errorf("status = %d, want 409", status)
		}
	})

	t.Run("negative score", func(t *testing.T) {
		other := fmt.Sprintf("/v1/fixtures/%s/result", f.fixtureIDs(t)[1])
		status, _ := f.do(t, http.MethodPost, other, map[string]any{"home_score": -1, "away_score": 0})
		if status != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", status)
		}
	})

	t.Run("unknown field", func(t *testing.T) {
		other := fmt.Sprintf("/v1/fixtures/%s/result", f.fixtureIDs(t)[1])
		status, _ := f.do(t, http.MethodPost, other, map[string]any{"home": 1})
		if status != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", status)
		}
	})

	t.Run("standings reflect the result", func(t *testing.T) {
		_, body := f.do(t, http.MethodGet, "/v1/seasons/1/divisions/EU-1/standings", nil)
		leader := body["standings"].([]any)[0].(map[string]any)
		if leader["points"] != float64(3) || leader["goal_difference"] != float64(2) {
			t.Errorf("leader = %v", leader)
		}
	})
}

func TestPlayoffOverHTTP(t *testing.T) {
	f := setup(t)
	for _, id := range f.fixtureIDs(t) {
		path := fmt.Sprintf("/v1/fixtures/%s/result", id)
		if status, body := f.do(t, http.MethodPost, path, map[string]any{"home_score": 1, "away_score": 0}); status != http.StatusOK {
			t.Fatalf("result %s: %d %v", id, status, body)
		}
	}

	if status, body := f.do(t, http.MethodPost, "/v1/seasons/1/tick", nil); status != http.StatusOK {
		t.Fatalf("tick: %d %v", status, body)
	}
	_, body := f.do(t, http.MethodGet, "/v1/seasons/1/tracks", nil)
	track := body["tracks"].([]any)[0].(map[string]any)
	if track["stage"] != string(season.Playoff) {
		t.Fatalf("track = %v, want PLAYOFF", track)
	}
	id := track["bracket_id"].(string)

	status, body := f.do(t, http.MethodGet, "/v1/brackets/"+id, nil)
	if status != http.StatusOK || body["round"] != "SEMI" {
		t.Fatalf("bracket = %d %v", status, body)
	}
	if matches := body["matches"].([]any); len(matches) != 2 {
		t.Fatalf("matches = %d, want 2", len(matches))
	}

	t.Run("advance before the round is played", func(t *testing.T) {
		status, _ := f.do(t, http.MethodPost, "/v1/brackets/"+id+"/advance", nil)
		if status != http.StatusConflict {
			t.Errorf("status = %d, want 409", status)
		}
	})

	for n := 1; n <= 2; n++ {
		path := fmt.Sprintf("/v1/brackets/%s/matches/semi/%d/result", id, n)
		status, body := f.do(t, http.MethodPost, path, map[string]any{"home_score": 2, "away_score": 0})
		if status != http.StatusOK || body["winner"] != body["home"] {
			t.Fatalf("semi %d = %d %v", n, status, body)
		}
	}

	status, body = f.do(t, http.MethodPost, "/v1/brackets/"+id+"/advance", nil)
	if status != http.StatusOK || body["round"] != "FINAL" {
		t.Fatalf("advance = %d %v", status, body)
	}
	if matches := body["matches"].([]any); len(matches) != 1 {
		t.Errorf("final matches = %d, want 1", len(matches))
	}

	t.Run("result for a closed round", func(t *testing.T) {
		path := fmt.Sprintf("/v1/brackets/%s/matches/SEMI/1/result", id)
		status, _ := f.do(t, http.MethodPost, path, map[string]any{"home_score": 1, "away_score": 0})
		if status < 400 || status >= 500 {
			t.Errorf("status = %d, want a client error", status)
		}
	})
}
