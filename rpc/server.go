package rpc

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"isolend/core/events"
	"isolend/core/ledger"
	nativecommon "isolend/native/common"
	"isolend/native/lending"
	"isolend/observability/metrics"
	"isolend/storage/archive"
)

const defaultMaxBodyBytes = 1 << 20

// EventLister serves archived events.
type EventLister interface {
	List(ctx context.Context, filter archive.Filter) ([]archive.EventRecord, error)
}

// Config tunes the HTTP surface.
type Config struct {
	Auth               AuthConfig
	RateLimitPerSecond float64
	RateLimitBurst     int
	// OriginPatterns restricts websocket origins; empty allows same origin only.
	OriginPatterns []string
	MaxBodyBytes   int64
	// CallerQuota bounds batches and operations per caller and window.
	CallerQuota nativecommon.Quota
}

// Server exposes the ledger over HTTP.
type Server struct {
	ledger         *ledger.Ledger
	hub            *Hub
	events         EventLister
	auth           *Authenticator
	limiter        *RateLimiter
	quotas         *callerQuotas
	logger         *slog.Logger
	metrics        *metrics.HTTPMetrics
	originPatterns []string
	maxBody        int64
}

// NewServer wires the handlers. hub and events may be nil, in which case the
// stream and history endpoints answer 503.
func NewServer(l *ledger.Ledger, hub *Hub, lister EventLister, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	return &Server{
		ledger:         l,
		hub:            hub,
		events:         lister,
		auth:           NewAuthenticator(cfg.Auth, logger),
		limiter:        NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst),
		quotas:         newCallerQuotas(cfg.CallerQuota),
		logger:         logger,
		metrics:        metrics.HTTP(),
		originPatterns: cfg.OriginPatterns,
		maxBody:        maxBody,
	}
}

// Handler returns the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.observe)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v chi.Router) {
		v.Get("/protocol", s.handleProtocol)
		v.Get("/markets", s.handleMarkets)
		v.Get("/markets/{id}", s.handleMarket)
		v.Get("/markets/{id}/positions/{owner}", s.handlePosition)
		v.Get("/authorizations/{authorizer}/{authorized}", s.handleAuthorization)
		v.Get("/balances/{mint}/{owner}", s.handleBalance)
		v.Get("/events", s.handleEvents)
		v.Get("/events/ws", s.handleEventStreamGuarded)
		v.With(s.limiter.Middleware, s.auth.Middleware).Post("/batch", s.handleBatch)
	})
	return otelhttp.NewHandler(r, "lendingd")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets websocket upgrades through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("rpc: response writer cannot hijack")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		s.metrics.Observe(route, recorder.status, time.Since(start))
	})
}

func (s *Server) handleProtocol(w http.ResponseWriter, r *http.Request) {
	var view ProtocolView
	err := s.ledger.View(r.Context(), func(e *lending.Engine) error {
		p, err := e.Protocol()
		if err != nil {
			return err
		}
		view = protocolView(p)
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleMarkets(w http.ResponseWriter, r *http.Request) {
	views := []MarketView{}
	err := s.ledger.View(r.Context(), func(e *lending.Engine) error {
		ids, err := e.Markets()
		if err != nil {
			return err
		}
		for _, id := range ids {
			view, err := expectedMarket(e, id)
			if err != nil {
				return err
			}
			views = append(views, view)
		}
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// expectedMarket values a market at the engine clock. A failing rate model
// leaves the rate fields empty.
func expectedMarket(e *lending.Engine, id common.Hash) (MarketView, error) {
	m, err := e.ExpectedMarket(id)
	if err != nil {
		if lending.KindOf(err) != lending.KindRateModel {
			return MarketView{}, err
		}
		if m, err = e.Market(id); err != nil {
			return MarketView{}, err
		}
		return marketView(m, nil), nil
	}
	rate, err := e.BorrowRate(id)
	if err != nil {
		rate = nil
	}
	return marketView(m, rate), nil
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	id, err := parseHash(chi.URLParam(r, "id"), "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var view MarketView
	err = s.ledger.View(r.Context(), func(e *lending.Engine) error {
		view, err = expectedMarket(e, id)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	id, err := parseHash(chi.URLParam(r, "id"), "id")
	if err != nil {
		writeError(w, err)
		return
	}
	owner, err := parseAddress(chi.URLParam(r, "owner"), common.Address{}, "owner")
	if err != nil {
		writeError(w, err)
		return
	}
	var view PositionView
	err = s.ledger.View(r.Context(), func(e *lending.Engine) error {
		snap, err := e.PositionSnapshot(id, owner)
		if err != nil {
			return err
		}
		view = positionView(snap)
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleAuthorization(w http.ResponseWriter, r *http.Request) {
	authorizer, err := parseAddress(chi.URLParam(r, "authorizer"), common.Address{}, "authorizer")
	if err != nil {
		writeError(w, err)
		return
	}
	authorized, err := parseAddress(chi.URLParam(r, "authorized"), common.Address{}, "authorized")
	if err != nil {
		writeError(w, err)
		return
	}
	var view AuthorizationView
	err = s.ledger.View(r.Context(), func(e *lending.Engine) error {
		auth, err := e.Authorization(authorizer, authorized)
		if err != nil {
			return err
		}
		view = authorizationView(auth, e.BlockTime())
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	mint, err := parseAddress(chi.URLParam(r, "mint"), common.Address{}, "mint")
	if err != nil {
		writeError(w, err)
		return
	}
	owner, err := parseAddress(chi.URLParam(r, "owner"), common.Address{}, "owner")
	if err != nil {
		writeError(w, err)
		return
	}
	balance, err := s.ledger.Balance(mint, owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceView{Mint: mint.Hex(), Owner: owner.Hex(), Balance: balance.Dec()})
}

// ArchivedEvent is one row of GET /v1/events.
type ArchivedEvent struct {
	ID        uint           `json:"id"`
	Batch     string         `json:"batch"`
	Seq       int            `json:"seq"`
	BatchTime uint64         `json:"batchTime"`
	Digest    string         `json:"digest"`
	Event     *events.Record `json:"event"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "event archive disabled"})
		return
	}
	query := r.URL.Query()
	filter := archive.Filter{
		Market: strings.TrimSpace(query.Get("market")),
		Type:   strings.TrimSpace(query.Get("type")),
	}
	if raw := strings.TrimSpace(query.Get("batch")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, badRequest("batch: %v", err))
			return
		}
		filter.BatchID = id
	}
	if raw := strings.TrimSpace(query.Get("after")); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, badRequest("after: %v", err))
			return
		}
		filter.AfterID = uint(after)
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, badRequest("limit: invalid value %q", raw))
			return
		}
		filter.Limit = limit
	}
	rows, err := s.events.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("rpc: list events", slog.Any("error", err))
		writeError(w, err)
		return
	}
	out := make([]ArchivedEvent, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].Record()
		if err != nil {
			writeError(w, err)
			return
		}
		out = append(out, ArchivedEvent{
			ID:        rows[i].ID,
			Batch:     rows[i].BatchID.String(),
			Seq:       rows[i].Seq,
			BatchTime: rows[i].BatchTime,
			Digest:    rows[i].Digest,
			Event:     rec,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEventStreamGuarded(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "event stream disabled"})
		return
	}
	s.handleEventStream(w, r)
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing caller"})
		return
	}
	req, err := s.decodeBatch(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.quotas.charge(caller, countOps(req.Ops)); err != nil {
		s.metrics.RecordThrottle("caller_quota")
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: err.Error()})
		return
	}
	var results []OpResult
	receipt, err := s.ledger.Execute(r.Context(), func(tx *ledger.Tx) error {
		out, err := runOps(tx.Engine, caller, req.Ops, 0)
		results = out
		return err
	})
	if err != nil {
		s.logger.Info("rpc: batch rejected",
			slog.String("caller", caller.Hex()),
			slog.Int("ops", len(req.Ops)),
			slog.String("kind", lending.KindOf(err).String()),
			slog.Any("error", err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BatchResponse{
		Batch:   receipt.ID.String(),
		Digest:  hex.EncodeToString(receipt.Digest[:]),
		Time:    receipt.Time,
		Results: results,
		Events:  receipt.Records(),
	})
}

func (s *Server) decodeBatch(w http.ResponseWriter, r *http.Request) (*BatchRequest, error) {
	body := http.MaxBytesReader(w, r.Body, s.maxBody)
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	var req BatchRequest
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, badRequest("body exceeds %d bytes", s.maxBody)
		}
		return nil, badRequest("decode: %v", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, badRequest("trailing data after batch")
	}
	if len(req.Ops) == 0 {
		return nil, badRequest("batch has no ops")
	}
	if n := countOps(req.Ops); n > maxBatchOps {
		return nil, badRequest("batch has %d ops, limit %d", n, maxBatchOps)
	}
	return &req, nil
}

func countOps(ops []Op) int {
	n := len(ops)
	for i := range ops {
		n += countOps(ops[i].Ops)
	}
	return n
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// requests for up to shutdownTimeout.
func ListenAndServe(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("rpc: serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("rpc: shutdown: %w", err)
	}
	return <-errCh
}
