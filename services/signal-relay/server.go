package main

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"licensegate/observability"
)

const (
	headerAPIKey   = "X-API-Key"
	maxRequestBody = 64 << 10 // 64 KiB

	defaultPageSize = 10
	maxPageSize     = 100
)

// Server is the HTTP front-end for the signal relay.
type Server struct {
	store   *SQLiteStore
	cfg     *Config
	metrics *observability.RelayMetrics
	log     *slog.Logger

	mu       sync.Mutex
	visitors map[string]*rate.Limiter

	router http.Handler
}

func NewServer(store *SQLiteStore, cfg *Config, log *slog.Logger) *Server {
	srv := &Server{
		store:    store,
		cfg:      cfg,
		metrics:  observability.Relay(),
		log:      log,
		visitors: make(map[string]*rate.Limiter),
	}
	srv.router = srv.buildRouter()
	return srv
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(s.rateLimit)
		api.Use(s.authenticate)
		api.Post("/signals", s.handlePostSignal)
		api.Get("/signals", s.handleGetSignals)
	})
	return r
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		provided := strings.TrimSpace(r.Header.Get(headerAPIKey))
		if subtle.ConstantTimeCompare([]byte(provided), []byte(s.cfg.APIKey)) != 1 {
			s.metrics.RecordRejected("auth")
			s.writeError(w, http.StatusUnauthorized, errors.New("unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimit bounds request rates per client address.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiterFor(r.RemoteAddr).Allow() {
			s.metrics.RecordRejected("rate")
			s.writeError(w, http.StatusTooManyRequests, errors.New("rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) limiterFor(addr string) *rate.Limiter {
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		addr = host
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	limiter, ok := s.visitors[addr]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.RatePerMinute/60.0), s.cfg.RateBurst)
		s.visitors[addr] = limiter
	}
	return limiter
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, errors.New("store unavailable"))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type postSignalRequest struct {
	Symbol     string   `json:"symbol"`
	Side       string   `json:"side"`
	Volume     float64  `json:"volume"`
	StopLoss   *float64 `json:"stop_loss"`
	TakeProfit *float64 `json:"take_profit"`
}

func (s *Server) handlePostSignal(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req postSignalRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := decoder.Decode(&req); err != nil {
		s.metrics.RecordRejected("body")
		s.writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	if err := req.validate(); err != nil {
		s.metrics.RecordRejected("validation")
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	signal := &Signal{
		Symbol:     strings.ToUpper(strings.TrimSpace(req.Symbol)),
		Side:       strings.ToLower(strings.TrimSpace(req.Side)),
		Volume:     req.Volume,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
	}
	if err := s.store.InsertSignal(r.Context(), signal); err != nil {
		s.log.Error("store signal", "error", err)
		s.writeError(w, http.StatusInternalServerError, errors.New("store signal"))
		return
	}
	s.metrics.RecordStored()
	s.log.Info("signal stored", "id", signal.ID, "symbol", signal.Symbol, "side", signal.Side)
	s.writeJSON(w, http.StatusCreated, map[string]any{"id": signal.ID, "uid": signal.UID})
}

func (req *postSignalRequest) validate() error {
	if strings.TrimSpace(req.Symbol) == "" {
		return errors.New("symbol is required")
	}
	switch strings.ToLower(strings.TrimSpace(req.Side)) {
	case "buy", "sell":
	default:
		return errors.New("side must be buy or sell")
	}
	if req.Volume <= 0 {
		return errors.New("volume must be positive")
	}
	return nil
}

func (s *Server) handleGetSignals(w http.ResponseWriter, r *http.Request) {
	after := int64(0)
	if raw := strings.TrimSpace(r.URL.Query().Get("after")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			s.writeError(w, http.StatusBadRequest, errors.New("invalid after parameter"))
			return
		}
		after = parsed
	}
	limit := defaultPageSize
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, errors.New("invalid limit parameter"))
			return
		}
		if parsed > maxPageSize {
			parsed = maxPageSize
		}
		limit = parsed
	}

	signals, err := s.store.SignalsAfter(r.Context(), after, limit)
	if err != nil {
		s.log.Error("list signals", "error", err)
		s.writeError(w, http.StatusInternalServerError, errors.New("list signals"))
		return
	}
	s.metrics.RecordServed(len(signals))
	s.writeJSON(w, http.StatusOK, signals)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
