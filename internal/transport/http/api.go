package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"trivia-live-service/internal/app"
	"trivia-live-service/internal/domain"
)

// GameAPI is the set of game operations the transport exposes.
type GameAPI interface {
	SubscribePlayer(ctx context.Context, matchID, playerID, locale string, info domain.DisplayInfo) (app.Result, error)
	UnsubscribePlayer(ctx context.Context, matchID, playerID, locale string) (app.Result, error)
	SubmitAnswer(ctx context.Context, req app.AnswerRequest) (app.AnswerOutcome, error)
	GetMatch(ctx context.Context, matchID string) (domain.Match, error)
	GetLeaderboard(ctx context.Context, scope domain.Scope, playerID string) (domain.Leaderboard, error)
	GetReward(ctx context.Context, matchID, playerID, locale string) (*domain.ResolvedReward, error)
	QuestionStatistics(ctx context.Context, matchID, questionKey, locale string) (domain.QuestionAnswerStatistics, error)
	GetQuestion(ctx context.Context, questionKey, locale string) (app.QuestionView, error)
	SubmitRating(ctx context.Context, matchID, playerID, locale string, score int, comment string) (app.Result, error)
	RegisterPlayer(ctx context.Context, locale string, profile domain.PlayerProfile) (app.Result, error)
	GetPlayer(ctx context.Context, locale, playerID string) (domain.PlayerProfile, error)
	ScheduleMatch(ctx context.Context, match domain.Match) (app.Result, error)
	RecomputeMatchScores(ctx context.Context, matchID, locale string) (int, error)
	StartDueMatches(ctx context.Context) (app.SweepResult, error)
	StartAllMatches(ctx context.Context) (app.SweepResult, error)
}

// Response is the envelope of every API reply.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

type Handler struct {
	service GameAPI
	ws      *WSHandler
	health  *HealthHandler
	logger  *slog.Logger
}

func NewHandler(service GameAPI, hub *Hub, health *HealthHandler, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if health == nil {
		health = NewHealthHandler(logger, nil)
	}
	return &Handler{
		service: service,
		ws:      NewWSHandler(service, hub, logger),
		health:  health,
		logger:  logger,
	}
}

// WithSnapshots lets websocket clients catch up from a shared snapshot store.
func (h *Handler) WithSnapshots(src SnapshotSource) *Handler {
	h.ws.snapshots = src
	return h
}

// Router wires every route onto a chi mux.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health.ServeHTTP)
	r.Get("/ws", h.ws.ServeWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/players", h.registerPlayer)
		r.Get("/players/{playerID}", h.player)
		r.Get("/leaderboard", h.globalLeaderboard)
		r.Get("/questions/{questionKey}", h.question)

		r.Route("/matches/{matchID}", func(r chi.Router) {
			r.Get("/", h.match)
			r.Post("/players", h.subscribe)
			r.Delete("/players/{playerID}", h.unsubscribe)
			r.Post("/answers", h.submitAnswer)
			r.Get("/leaderboard", h.matchLeaderboard)
			r.Get("/reward", h.reward)
			r.Get("/questions/{questionKey}/statistics", h.statistics)
			r.Post("/rating", h.rating)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/matches", h.scheduleMatch)
			r.Post("/matches/{matchID}/recompute", h.recompute)
			r.Post("/sweep", h.sweep)
		})
	})
	return r
}

type subscribeRequest struct {
	PlayerID string `json:"playerId"`
	Locale   string `json:"locale"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar"`
}

func (h *Handler) subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.SubscribePlayer(r.Context(), chi.URLParam(r, "matchID"), req.PlayerID, req.Locale,
		domain.DisplayInfo{Nickname: req.Nickname, Avatar: req.Avatar})
	h.reply(w, r, res, err)
}

func (h *Handler) unsubscribe(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.UnsubscribePlayer(r.Context(), chi.URLParam(r, "matchID"), chi.URLParam(r, "playerID"), r.URL.Query().Get("locale"))
	h.reply(w, r, res, err)
}

func (h *Handler) submitAnswer(w http.ResponseWriter, r *http.Request) {
	var req app.AnswerRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.MatchID = chi.URLParam(r, "matchID")
	out, err := h.service.SubmitAnswer(r.Context(), req)
	h.reply(w, r, out, err)
}

func (h *Handler) match(w http.ResponseWriter, r *http.Request) {
	m, err := h.service.GetMatch(r.Context(), chi.URLParam(r, "matchID"))
	h.reply(w, r, m, err)
}

func (h *Handler) matchLeaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lb, err := h.service.GetLeaderboard(r.Context(), domain.MatchScope(chi.URLParam(r, "matchID"), q.Get("locale")), q.Get("playerId"))
	h.reply(w, r, lb, err)
}

func (h *Handler) globalLeaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lb, err := h.service.GetLeaderboard(r.Context(), domain.GlobalScope(q.Get("locale")), q.Get("playerId"))
	h.reply(w, r, lb, err)
}

func (h *Handler) reward(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	reward, err := h.service.GetReward(r.Context(), chi.URLParam(r, "matchID"), q.Get("playerId"), q.Get("locale"))
	h.reply(w, r, reward, err)
}

func (h *Handler) statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.QuestionStatistics(r.Context(), chi.URLParam(r, "matchID"), chi.URLParam(r, "questionKey"), r.URL.Query().Get("locale"))
	h.reply(w, r, stats, err)
}

func (h *Handler) question(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.GetQuestion(r.Context(), chi.URLParam(r, "questionKey"), r.URL.Query().Get("locale"))
	h.reply(w, r, view, err)
}

type ratingRequest struct {
	PlayerID string `json:"playerId"`
	Locale   string `json:"locale"`
	Score    int    `json:"score"`
	Comment  string `json:"comment"`
}

func (h *Handler) rating(w http.ResponseWriter, r *http.Request) {
	var req ratingRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.SubmitRating(r.Context(), chi.URLParam(r, "matchID"), req.PlayerID, req.Locale, req.Score, req.Comment)
	h.reply(w, r, res, err)
}

type registerRequest struct {
	PlayerID string `json:"playerId"`
	Locale   string `json:"locale"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar"`
}

func (h *Handler) registerPlayer(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.RegisterPlayer(r.Context(), req.Locale, domain.PlayerProfile{
		PlayerID: req.PlayerID,
		Nickname: req.Nickname,
		Avatar:   req.Avatar,
	})
	h.reply(w, r, res, err)
}

func (h *Handler) player(w http.ResponseWriter, r *http.Request) {
	profile, err := h.service.GetPlayer(r.Context(), r.URL.Query().Get("locale"), chi.URLParam(r, "playerID"))
	h.reply(w, r, profile, err)
}

// ScheduleRequest describes a match to schedule. Durations are in seconds.
type ScheduleRequest struct {
	ID                string    `json:"id" yaml:"id"`
	Questions         []string  `json:"questions" yaml:"questions"`
	StartingAt        time.Time `json:"startingAt" yaml:"startingAt"`
	LobbySeconds      int       `json:"lobbySeconds" yaml:"lobbySeconds"`
	QuestionTimeLimit int       `json:"questionTimeLimit" yaml:"questionTimeLimit"`
	ResultTimeLimit   int       `json:"resultTimeLimit" yaml:"resultTimeLimit"`
}

// Match converts the request to a scheduled match.
func (s ScheduleRequest) Match() domain.Match {
	return domain.Match{
		ID:                s.ID,
		QuestionKeys:      s.Questions,
		StartingAt:        s.StartingAt,
		LobbyDuration:     time.Duration(s.LobbySeconds) * time.Second,
		QuestionTimeLimit: time.Duration(s.QuestionTimeLimit) * time.Second,
		ResultTimeLimit:   time.Duration(s.ResultTimeLimit) * time.Second,
		Status:            domain.MatchScheduled,
	}
}

func (h *Handler) scheduleMatch(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.ScheduleMatch(r.Context(), req.Match())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, Response{Success: true, Data: res})
}

func (h *Handler) recompute(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.RecomputeMatchScores(r.Context(), chi.URLParam(r, "matchID"), r.URL.Query().Get("locale"))
	h.reply(w, r, map[string]int{"players": n}, err)
}

// sweep claims matches and replies once the claims are made; the runs continue in the background.
func (h *Handler) sweep(w http.ResponseWriter, r *http.Request) {
	run := h.service.StartDueMatches
	if r.URL.Query().Get("all") == "true" {
		run = h.service.StartAllMatches
	}
	res, err := run(r.Context())
	h.reply(w, r, res, err)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Error: "invalid request body", Code: string(domain.KindFailedPrecondition)})
		return false
	}
	return true
}

func (h *Handler) reply(w http.ResponseWriter, r *http.Request, data any, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status := statusFor(kind)
	msg := err.Error()
	if kind == domain.KindInternal {
		if errors.Is(err, context.Canceled) {
			return
		}
		h.logger.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
		msg = "internal error"
	}
	writeJSON(w, status, Response{Error: msg, Code: string(kind)})
}

func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindAlreadyExists:
		return http.StatusConflict
	case domain.KindFailedPrecondition:
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func requestLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info("http request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"duration_ms", time.Since(start).Milliseconds(),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
