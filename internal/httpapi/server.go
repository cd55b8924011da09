// Package httpapi is the hub's HTTP/SSE edge (spec.md §4.9): a small
// router over /api/*, CORS, and one drain-loop handler per SSE stream.
// No router library appears anywhere in the example pack, so this layer
// is built on net/http's ServeMux directly (see DESIGN.md's stdlib
// justification). The SSE drain loop itself is grounded on the
// longregen-alicia SSE handler from the reference pack: set headers,
// grab the http.Flusher, subscribe, then select over the client's Send
// channel, the client's Done channel, and request cancellation. Heartbeat
// comments arrive through Send from the group's broadcaster.
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sporthub/internal/broadcast"
	"sporthub/internal/config"
	"sporthub/internal/groups"
	"sporthub/internal/livetracker"
	"sporthub/internal/metrics"
	"sporthub/internal/results"
)

// Server is the HTTP/SSE edge.
type Server struct {
	cfg     config.ServerConfig
	logger  *zap.Logger
	groups  *groups.Manager
	tracker *livetracker.Hub
	agg     *metrics.Aggregator
	results *results.Client

	mux *http.ServeMux
}

// New builds the router. Handlers are registered eagerly; the caller binds
// the listener, using Handler and ListenAddr.
func New(cfg config.ServerConfig, gm *groups.Manager, tracker *livetracker.Hub, agg *metrics.Aggregator, resultsClient *results.Client, logger *zap.Logger) *Server {
	s := &Server{cfg: cfg, logger: logger, groups: gm, tracker: tracker, agg: agg, results: resultsClient, mux: http.NewServeMux()}
	s.routes()
	return s
}

// Handler returns the CORS-wrapped router, suitable for http.Server.Handler.
func (s *Server) Handler() http.Handler {
	return s.withCORS(s.mux)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/hierarchy", s.handleHierarchy)
	s.mux.HandleFunc("/api/counts-stream", s.handleCountsStream)
	s.mux.HandleFunc("/api/live-stream", s.handleLiveStream)
	s.mux.HandleFunc("/api/prematch-stream", s.handlePrematchStream)
	s.mux.HandleFunc("/api/live-game-stream", s.handleLiveGameStream)
	s.mux.HandleFunc("/api/competition-odds-stream", s.handleCompetitionOddsStream)
	s.mux.HandleFunc("/api/live-tracker", s.handleLiveTracker)
	s.mux.HandleFunc("/api/results/competitions", s.handleResultsCompetitions)
	s.mux.HandleFunc("/api/results/games/", s.handleResultsGames)
	s.mux.HandleFunc("/api/results/game/", s.handleResultsGame)
}

// withCORS permits the configured dob-edge*.pages.dev origin, per spec.md
// §6 "CORS".
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		w.Header().Set("Vary", "Origin")
		if matchesOrigin(origin, s.cfg.CORSOrigin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Access-Control-Max-Age", "86400")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// matchesOrigin supports a single '*' wildcard in pattern, e.g.
// "dob-edge*.pages.dev". A pattern without a scheme is matched against the
// origin's host part, so "https://dob-edge-x.pages.dev" matches it.
func matchesOrigin(origin, pattern string) bool {
	if origin == "" {
		return false
	}
	if !strings.Contains(pattern, "://") {
		if i := strings.Index(origin, "://"); i >= 0 {
			origin = origin[i+3:]
		}
	}
	star := strings.IndexByte(pattern, '*')
	if star < 0 {
		return origin == pattern
	}
	prefix, suffix := pattern[:star], pattern[star+1:]
	return strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin, suffix)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"live_tracker": true,
		"swarm_ws":     s.groups.Session().Connected(),
	})
}

func (s *Server) handleHierarchy(w http.ResponseWriter, r *http.Request) {
	hier := s.groups.Hierarchy()
	var (
		doc    any
		cached bool
		err    error
	)
	if r.URL.Query().Get("refresh") == "true" {
		doc, err = hier.Refresh(r.Context())
	} else {
		doc, cached, err = hier.Get(r.Context())
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": doc, "cached": cached})
}

// sseHeaders sets the frame-level headers named in spec.md §4.9 and
// returns the response's Flusher, or false if streaming isn't supported.
func sseHeaders(w http.ResponseWriter) (http.Flusher, bool) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	flusher, ok := w.(http.Flusher)
	if ok {
		w.WriteHeader(http.StatusOK)
		flusher.Flush()
	}
	return flusher, ok
}

// drain streams client.Send to w until the client is torn down or the
// request is cancelled, the way the longregen-alicia SSE handler drains
// its event channel.
func drain(w http.ResponseWriter, r *http.Request, flusher http.Flusher, client *broadcast.Client, detach func()) {
	defer detach()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-client.Done():
			return
		case frame, ok := <-client.Send:
			if !ok {
				return
			}
			if _, err := w.Write(frame); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func newClientID() string {
	return uuid.NewString()
}

func (s *Server) handleCountsStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := sseHeaders(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	client := broadcast.NewClient(newClientID(), 32)
	detach, err := s.groups.AttachCounts(r.Context(), client)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	drain(w, r, flusher, client, detach)
}

func (s *Server) handleLiveStream(w http.ResponseWriter, r *http.Request) {
	sportID := r.URL.Query().Get("sportId")
	if sportID == "" {
		writeError(w, http.StatusBadRequest, "missing required query parameter: sportId")
		return
	}
	sportName := r.URL.Query().Get("sportName")
	flusher, ok := sseHeaders(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	client := broadcast.NewClient(newClientID(), 32)
	detach, err := s.groups.AttachSportGames(r.Context(), groups.ModeLive, sportID, sportName, client)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	drain(w, r, flusher, client, detach)
}

func (s *Server) handlePrematchStream(w http.ResponseWriter, r *http.Request) {
	sportID := r.URL.Query().Get("sportId")
	if sportID == "" {
		writeError(w, http.StatusBadRequest, "missing required query parameter: sportId")
		return
	}
	sportName := r.URL.Query().Get("sportName")
	flusher, ok := sseHeaders(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	client := broadcast.NewClient(newClientID(), 32)
	detach, err := s.groups.AttachSportGames(r.Context(), groups.ModePrematch, sportID, sportName, client)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	drain(w, r, flusher, client, detach)
}

func (s *Server) handleLiveGameStream(w http.ResponseWriter, r *http.Request) {
	gameID := r.URL.Query().Get("gameId")
	if gameID == "" {
		writeError(w, http.StatusBadRequest, "missing required query parameter: gameId")
		return
	}
	flusher, ok := sseHeaders(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	client := broadcast.NewClient(newClientID(), 32)
	detach, err := s.groups.AttachPerGame(r.Context(), gameID, client)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	drain(w, r, flusher, client, detach)
}

func (s *Server) handleCompetitionOddsStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	competitionID, sportID, mode := q.Get("competitionId"), q.Get("sportId"), q.Get("mode")
	if competitionID == "" || sportID == "" || mode == "" {
		writeError(w, http.StatusBadRequest, "missing required query parameter: competitionId, sportId or mode")
		return
	}
	sportName := q.Get("sportName")
	flusher, ok := sseHeaders(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	client := broadcast.NewClient(newClientID(), 32)
	detach, err := s.groups.AttachCompetitionOdds(r.Context(), competitionID, sportID, sportName, groups.Mode(mode), client)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	drain(w, r, flusher, client, detach)
}

func (s *Server) handleLiveTracker(w http.ResponseWriter, r *http.Request) {
	gameID := r.URL.Query().Get("gameId")
	if gameID == "" {
		writeError(w, http.StatusBadRequest, "missing required query parameter: gameId")
		return
	}
	flusher, ok := sseHeaders(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	client := broadcast.NewClient(newClientID(), 32)
	detach := s.tracker.Attach(gameID, client)
	drain(w, r, flusher, client, detach)
}

func (s *Server) handleResultsCompetitions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data, err := s.results.Competitions(r.Context(), q.Get("from"), q.Get("to"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": data, "timestamp": time.Now().UnixMilli()})
}

func (s *Server) handleResultsGames(w http.ResponseWriter, r *http.Request) {
	sportID := strings.TrimPrefix(r.URL.Path, "/api/results/games/")
	if sportID == "" {
		writeError(w, http.StatusBadRequest, "missing required path parameter: sportId")
		return
	}
	q := r.URL.Query()
	games, err := s.results.Games(r.Context(), sportID, q.Get("from"), q.Get("to"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true, "sportId": sportID, "count": len(games), "games": games, "timestamp": time.Now().UnixMilli(),
	})
}

func (s *Server) handleResultsGame(w http.ResponseWriter, r *http.Request) {
	gameID := strings.TrimPrefix(r.URL.Path, "/api/results/game/")
	if gameID == "" {
		writeError(w, http.StatusBadRequest, "missing required path parameter: gameId")
		return
	}
	settlements, raw, err := s.results.Game(r.Context(), gameID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true, "gameId": gameID, "settlements": settlements, "raw": raw, "timestamp": time.Now().UnixMilli(),
	})
}

// ListenAddr formats the configured host:port for http.Server.Addr.
func (s *Server) ListenAddr() string {
	return fmt.Sprintf("%s:%s", s.cfg.Host, strconv.Itoa(s.cfg.Port))
}
