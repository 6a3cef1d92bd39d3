// Package api exposes season reads, result ingestion and manual lifecycle
// triggers over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/derekprior/ladder/internal/bracket"
	"github.com/derekprior/ladder/internal/league"
	"github.com/derekprior/ladder/internal/membership"
	"github.com/derekprior/ladder/internal/season"
)

// Engine is the part of the season orchestrator the API drives.
type Engine interface {
	Standings(ctx context.Context, s league.SeasonID, division string) ([]membership.Membership, error)
	StartFixture(ctx context.Context, id string) error
	RecordFixtureResult(ctx context.Context, id string, res league.Result) (league.Fixture, error)
	RecordBracketResult(ctx context.Context, id string, round bracket.Round, number int, res league.Result) (bracket.Match, error)
	AdvanceBracket(ctx context.Context, id string) (bracket.Outcome, error)
	Tick(ctx context.Context, s league.SeasonID) error
}

// Reader serves the read-only routes.
type Reader interface {
	Tracks(ctx context.Context, s league.SeasonID) ([]season.Track, error)
	Fixtures(ctx context.Context, s league.SeasonID, division string) ([]league.Fixture, error)
	Bracket(ctx context.Context, id string) (*bracket.Bracket, error)
}

type Server struct {
	log    *logrus.Logger
	engine Engine
	reader Reader
	mux    *chi.Mux
}

func New(logger *logrus.Logger, engine Engine, reader Reader) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{
		log:    logger,
		engine: engine,
		reader: reader,
		mux:    chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Route("/seasons/{season}", func(r chi.Router) {
			r.Get("/tracks", s.handleTracks)
			r.Get("/divisions/{division}/fixtures", s.handleFixtures)
			r.Get("/divisions/{division}/standings", s.handleStandings)
			r.Post("/tick", s.handleTick)
		})

		r.Post("/fixtures/{fixture}/start", s.handleStartFixture)
		r.Post("/fixtures/{fixture}/result", s.handleFixtureResult)

		r.Get("/brackets/{bracket}", s.handleBracket)
		r.Post("/brackets/{bracket}/matches/{round}/{number}/result", s.handleBracketResult)
		r.Post("/brackets/{bracket}/advance", s.handleAdvance)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("request")
	})
}

func seasonParam(r *http.Request) (league.SeasonID, error) {
	n, err := strconv.Atoi(chi.URLParam(r, "season"))
	if err != nil || n < 1 {
		return 0, errors.New("season must be a positive integer")
	}
	return league.SeasonID(n), nil
}

func (s *Server) handleTracks(w http.ResponseWriter, r *http.Request) {
	id, err := seasonParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tracks, err := s.reader.Tracks(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	out := make([]trackView, len(tracks))
	for i, t := range tracks {
		out[i] = trackView{Season: int(t.Season), Division: t.Division, Stage: string(t.Stage), BracketID: t.BracketID}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tracks": out})
}

func (s *Server) handleFixtures(w http.ResponseWriter, r *http.Request) {
	id, err := seasonParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	fixtures, err := s.reader.Fixtures(r.Context(), id, chi.URLParam(r, "division"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	out := make([]fixtureView, len(fixtures))
	for i, f := range fixtures {
		out[i] = newFixtureView(f)
	}
	writeJSON(w, http.StatusOK, map[string]any{"fixtures": out})
}

func (s *Server) handleStandings(w http.ResponseWriter, r *http.Request) {
	id, err := seasonParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	table, err := s.engine.Standings(r.Context(), id, chi.URLParam(r, "division"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	out := make([]standingView, len(table))
	for i, m := range table {
		out[i] = standingView{
			Position:       i + 1,
			Team:           string(m.Team.ID),
			Name:           m.Team.Name,
			Synthetic:      m.Team.Synthetic,
			Played:         m.Standing.Played,
			Wins:           m.Standing.Wins,
			Draws:          m.Standing.Draws,
			Losses:         m.Standing.Losses,
			GoalsFor:       m.Standing.GoalsFor,
			GoalsAgainst:   m.Standing.GoalsAgainst,
			GoalDifference: m.Standing.GoalDifference(),
			Points:         m.Standing.Points,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"standings": out})
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	id, err := seasonParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.engine.Tick(r.Context(), id); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleStartFixture(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.StartFixture(r.Context(), chi.URLParam(r, "fixture")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type resultInput struct {
	HomeScore   int       `json:"home_score"`
	AwayScore   int       `json:"away_score"`
	CompletedAt time.Time `json:"completed_at"`
}

func (in resultInput) result() league.Result {
	completed := in.CompletedAt
	if completed.IsZero() {
		completed = time.Now().UTC()
	}
	return league.Result{HomeScore: in.HomeScore, AwayScore: in.AwayScore, CompletedAt: completed}
}

func (s *Server) handleFixtureResult(w http.ResponseWriter, r *http.Request) {
	var in resultInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f, err := s.engine.RecordFixtureResult(r.Context(), chi.URLParam(r, "fixture"), in.result())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newFixtureView(f))
}

func (s *Server) handleBracket(w http.ResponseWriter, r *http.Request) {
	b, err := s.reader.Bracket(r.Context(), chi.URLParam(r, "bracket"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newBracketView(b))
}

func (s *Server) handleBracketResult(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "match number must be an integer")
		return
	}
	var in resultInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	round := bracket.Round(strings.ToUpper(chi.URLParam(r, "round")))
	m, err := s.engine.RecordBracketResult(r.Context(), chi.URLParam(r, "bracket"), round, number, in.result())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newMatchView(m))
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	out, err := s.engine.AdvanceBracket(r.Context(), chi.URLParam(r, "bracket"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	matches := make([]matchView, len(out.Matches))
	for i, m := range out.Matches {
		matches[i] = newMatchView(m)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"skipped":   out.Skipped,
		"round":     out.Round,
		"matches":   matches,
		"completed": out.Completed,
		"champion":  out.Champion,
	})
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, league.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, league.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, league.ErrAlreadyFinished),
		errors.Is(err, league.ErrStageConflict),
		errors.Is(err, league.ErrRoundIncomplete),
		errors.Is(err, league.ErrDuplicateGeneration):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, league.ErrInsufficientParticipants),
		errors.Is(err, league.ErrCapacityMismatch),
		errors.Is(err, league.ErrNoVacancy):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.log.WithError(err).Error("request failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}
