// Package httpapi exposes the session service over HTTP and websockets.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/park285/codenames-server/internal/apperr"
	"github.com/park285/codenames-server/internal/boardimg"
	"github.com/park285/codenames-server/internal/domain"
	"github.com/park285/codenames-server/internal/notify"
	"github.com/park285/codenames-server/internal/session"
	"github.com/park285/codenames-server/pkg/sessiondto"
)

const maxBodyBytes = 64 << 10

type Handler struct {
	svc      *session.Service
	hub      *notify.Hub
	renderer *boardimg.Renderer
	timeout  time.Duration
	logger   *zap.Logger
}

type Option func(*Handler)

// WithHub enables the websocket endpoint.
func WithHub(h *notify.Hub) Option { return func(x *Handler) { x.hub = h } }

func WithRenderer(r *boardimg.Renderer) Option { return func(x *Handler) { x.renderer = r } }

func WithTimeout(d time.Duration) Option { return func(x *Handler) { x.timeout = d } }

func WithLogger(l *zap.Logger) Option { return func(x *Handler) { x.logger = l } }

func NewHandler(svc *session.Service, opts ...Option) *Handler {
	h := &Handler{svc: svc, timeout: 10 * time.Second, logger: zap.NewNop()}
	for _, o := range opts {
		o(h)
	}
	if h.renderer == nil {
		h.renderer = boardimg.NewRenderer()
	}
	return h
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)

	r.Route("/v1/sessions", func(r chi.Router) {
		// websocket connections outlive the request timeout
		r.Get("/{id}/ws", h.subscribe)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(h.timeout))

			r.Post("/", h.createSession)
			r.Get("/", h.listSessions)
			r.Get("/{id}", h.getSession)
			r.Delete("/{id}", h.deleteSession)
			r.Post("/{id}/auth", h.authenticate)

			r.Post("/{id}/players", h.addPlayer)
			r.Delete("/{id}/players/{playerID}", h.removePlayer)

			r.Post("/{id}/leader-selection", h.beginLeaderSelection)
			r.Post("/{id}/leader-votes", h.leaderVote)
			r.Post("/{id}/leaders", h.assignLeaders)

			r.Post("/{id}/start", h.startGame)
			r.Post("/{id}/finish", h.finishGame)
			r.Post("/{id}/hint", h.submitHint)
			r.Post("/{id}/card-votes", h.cardVote)
			r.Post("/{id}/reveal", h.reveal)
			r.Post("/{id}/turn", h.changeTurn)
			r.Get("/{id}/votes", h.votes)
			r.Get("/{id}/board.png", h.boardImage)
		})
	})
	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req sessiondto.CreateSessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	id, err := h.svc.CreateSession(r.Context(), session.CreateParams{
		Name:       req.Name,
		MaxPlayers: req.MaxPlayers,
		Password:   req.Password,
		Language:   req.Language,
		Timing: domain.Timing{
			HintDuration:  time.Duration(req.HintSeconds) * time.Second,
			GuessDuration: time.Duration(req.GuessSeconds) * time.Second,
			MaxRounds:     req.MaxRounds,
		},
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/sessions/"+id)
	h.respondJSON(w, http.StatusCreated, sessiondto.CreateSessionResponse{ID: id})
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListSessions(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	out := make([]sessiondto.SessionSummary, 0, len(list))
	for _, s := range list {
		out = append(out, sessiondto.SessionSummary{
			ID:          s.ID,
			Name:        s.Name,
			Status:      string(s.Status),
			Players:     s.PlayerCount(),
			MaxPlayers:  s.MaxPlayers,
			HasPassword: s.PasswordHash != "",
			Language:    s.Language,
		})
	}
	h.respondJSON(w, http.StatusOK, out)
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	view, err := viewFor(r, sess)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, sessiondto.FromSession(sess, view))
}

func (h *Handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteSession(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) {
	var req sessiondto.AuthRequest
	if !h.decode(w, r, &req) {
		return
	}
	ok, err := h.svc.AuthenticatePassword(r.Context(), chi.URLParam(r, "id"), req.Password)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, sessiondto.AuthResponse{OK: ok})
}

func (h *Handler) addPlayer(w http.ResponseWriter, r *http.Request) {
	var req sessiondto.JoinRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	ok, err := h.svc.AuthenticatePassword(r.Context(), id, req.Password)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if !ok {
		h.respondError(w, r, errWrongPassword)
		return
	}
	joined, err := h.svc.AddPlayer(r.Context(), id, req.PlayerID, req.Team)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, sessiondto.JoinResponse{Joined: joined})
}

func (h *Handler) removePlayer(w http.ResponseWriter, r *http.Request) {
	removed, err := h.svc.RemovePlayer(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "playerID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, sessiondto.LeaveResponse{Removed: removed})
}

func (h *Handler) beginLeaderSelection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.BeginLeaderSelection(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondSnapshot(w, r, id)
}

func (h *Handler) leaderVote(w http.ResponseWriter, r *http.Request) {
	var req sessiondto.LeaderVoteRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.svc.SubmitLeaderVote(r.Context(), id, req.VoterID, req.TargetID); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondSnapshot(w, r, id)
}

func (h *Handler) assignLeaders(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.AssignLeaders(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, sessiondto.FromSession(sess, sessiondto.PublicView))
}

func (h *Handler) startGame(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.StartGame(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondSnapshot(w, r, id)
}

func (h *Handler) finishGame(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.FinishGame(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondSnapshot(w, r, id)
}

func (h *Handler) submitHint(w http.ResponseWriter, r *http.Request) {
	var req sessiondto.HintRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.svc.SubmitHint(r.Context(), id, req.PlayerID, req.Hint, req.Count); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondSnapshot(w, r, id)
}

func (h *Handler) cardVote(w http.ResponseWriter, r *http.Request) {
	var req sessiondto.CardVoteRequest
	if !h.decode(w, r, &req) {
		return
	}
	add := true
	if req.Add != nil {
		add = *req.Add
	}
	id := chi.URLParam(r, "id")
	if err := h.svc.SubmitCardVote(r.Context(), id, req.VoterID, req.CardIndex, add); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondSnapshot(w, r, id)
}

func (h *Handler) reveal(w http.ResponseWriter, r *http.Request) {
	var req sessiondto.RevealRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.RevealCard(r.Context(), chi.URLParam(r, "id"), req.CardIndex)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, sessiondto.RevealResponse{
		CardIndex:    res.CardIndex,
		Color:        int(res.Color),
		AlreadyShown: res.AlreadyRevealed,
		TurnPassed:   res.TurnPassed,
		Finished:     res.Finished,
		Snapshot:     sessiondto.FromSession(res.Session, sessiondto.PublicView),
	})
}

func (h *Handler) changeTurn(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req sessiondto.TurnRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.ExpectedSeq < 0 {
		h.respondError(w, r, apperr.New(apperr.InvalidArgument, "expected_seq must not be negative"))
		return
	}
	if _, err := h.svc.ChangeTurn(r.Context(), id, req.ExpectedSeq); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondSnapshot(w, r, id)
}

func (h *Handler) votes(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.GetVotes(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, sessiondto.VotesResponse{Leaders: t.Leaders, Cards: t.Cards})
}

func (h *Handler) boardImage(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	view, err := viewFor(r, sess)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	png, err := h.renderer.RenderPNG(r.Context(), sessiondto.FromSession(sess, view))
	if err != nil {
		h.respondError(w, r, apperr.Wrap(apperr.Internal, "render board", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (h *Handler) subscribe(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		h.respondError(w, r, apperr.New(apperr.NotFound, "live updates are disabled"))
		return
	}
	id := chi.URLParam(r, "id")
	sess, err := h.svc.GetSession(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	view, err := viewFor(r, sess)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.hub.Serve(w, r, id, view, sessiondto.FromSession(sess, view)); err != nil {
		h.logger.Debug("ws_closed", zap.String("session_id", id), zap.Error(err))
	}
}

// respondSnapshot answers a successful mutation with the current public view.
func (h *Handler) respondSnapshot(w http.ResponseWriter, r *http.Request, id string) {
	sess, err := h.svc.GetSession(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, sessiondto.FromSession(sess, sessiondto.PublicView))
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		h.respondError(w, r, apperr.Wrap(apperr.InvalidArgument, "invalid request body", err))
		return false
	}
	return true
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Debug("http_write_error", zap.Error(err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	msg := err.Error()
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Message != "" {
		msg = ae.Message
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("http_error",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		if kind == apperr.Internal {
			msg = "internal error"
		}
	}
	retry := ae != nil && ae.Retryable()
	if retry {
		w.Header().Set("Retry-After", "1")
	}
	h.respondJSON(w, status, sessiondto.ErrorResponse{
		Code:      string(kind),
		Message:   msg,
		Retryable: retry,
	})
}
