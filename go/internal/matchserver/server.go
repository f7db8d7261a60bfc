package matchserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/wordduel/go/internal/wire"
)

// Options configures the HTTP surface
type Options struct {
	DevLogin       bool
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// Server exposes the match API and the push endpoint
type Server struct {
	r    chi.Router
	svc  *Service
	hub  *Hub
	auth *Authenticator
	opts Options
}

func NewServer(svc *Service, hub *Hub, auth *Authenticator, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	s := &Server{r: chi.NewRouter(), svc: svc, hub: hub, auth: auth, opts: opts}

	s.r.Use(chimw.RequestID)
	s.r.Use(chimw.RealIP)
	s.r.Use(chimw.Recoverer)
	s.r.Use(accessLog)

	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "push": hub.Stats()})
	})
	if opts.DevLogin {
		s.r.With(chimw.Timeout(opts.RequestTimeout)).Post("/auth/token", s.handleToken)
	}

	s.r.Group(func(r chi.Router) {
		r.Use(auth.requireAuth)

		r.Get("/ws/session/{id}", s.handlePush)

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(opts.RequestTimeout))

			r.Post("/new-session", s.handleNewSession)
			r.Get("/pending-sessions", s.handlePending)
			r.Get("/paused-sessions", s.handlePaused)
			r.Post("/join-session/{id}", s.handleJoin)

			r.Route("/session/{id}", func(r chi.Router) {
				r.Get("/state", s.handleState)
				r.Post("/guess-letter", s.handleGuessLetter)
				r.Post("/guess-word", s.handleGuessWord)
				r.Post("/hint", s.action(s.svc.Hint))
				r.Post("/reveal-letter", s.action(s.svc.RevealLetter))
				r.Post("/pause", s.action(s.svc.Pause))
				r.Post("/resume", s.action(s.svc.Resume))
				r.Post("/timeout-check", s.action(s.svc.TimeoutCheck))
			})
		})
	})

	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, wire.ErrorBody{Error: wire.ReasonNotFound, Detail: r.URL.Path})
	})

	return s
}

func (s *Server) Router() chi.Router { return s.r }

// Handler wraps the router with CORS
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(s.r)
}

// NewHTTPServer serves h over HTTP/1.1 and cleartext HTTP/2
func NewHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h2c.NewHandler(h, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", chimw.GetReqID(r.Context())).
			Msg("http request")
	})
}

// decode reads an optional JSON body into v
func decode(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return ruleErr(wire.ReasonInvalidInput, "malformed body: %v", err)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req wire.TokenRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	player := strings.TrimSpace(req.Player)
	if player == "" || strings.ContainsAny(player, ". *>") {
		writeError(w, ruleErr(wire.ReasonInvalidInput, "player must be a non-empty name without spaces, dots or wildcards"))
		return
	}
	token, exp, err := s.auth.Issue(player)
	if err != nil {
		writeError(w, err)
		return
	}
	log.Info().Str("player_id", player).Msg("issued development token")
	writeJSON(w, http.StatusOK, wire.TokenResponse{Token: token, ExpiresAt: exp})
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	player := currentPlayer(r)
	id := chi.URLParam(r, "id")
	if err := s.hub.ServeSession(w, r, player, id); err != nil {
		writeError(w, err)
	}
}

func (s *Server) handleNewSession(w http.ResponseWriter, r *http.Request) {
	var req wire.NewSessionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	sum, err := s.svc.NewSession(currentPlayer(r), req.Difficulty)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sum)
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Pending(currentPlayer(r)))
}

func (s *Server) handlePaused(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Paused(currentPlayer(r)))
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	sum, err := s.svc.Join(currentPlayer(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	doc, err := s.svc.State(currentPlayer(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleGuessLetter(w http.ResponseWriter, r *http.Request) {
	var req wire.GuessLetterRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	resp, err := s.svc.GuessLetter(currentPlayer(r), chi.URLParam(r, "id"), req.Letter, req.Position)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGuessWord(w http.ResponseWriter, r *http.Request) {
	var req wire.GuessWordRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	resp, err := s.svc.GuessWord(currentPlayer(r), chi.URLParam(r, "id"), req.Word)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// action adapts a body-less session action
func (s *Server) action(fn func(player, sessionID string) (*wire.ActionResponse, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := fn(currentPlayer(r), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
