// Package httpapi exposes a types.Backend over HTTP so that orchestrators
// in other processes can share one backend service.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/hera/internal/ctxutil"
	"github.com/mesh-intelligence/hera/pkg/types"
)

// Headers carrying the caller's identity.
const (
	HeaderRole  = "X-Hera-Role"
	HeaderActor = "X-Hera-Actor"
)

// maxBody bounds request bodies.
const maxBody = 4 << 20

// Handler serves the backend routes.
type Handler struct {
	backend  types.Backend
	logger   *zap.Logger
	registry *prometheus.Registry
	requests *prometheus.CounterVec
}

// Option configures the router.
type Option func(*Handler)

// WithLogger sets the request logger.
func WithLogger(l *zap.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithMetrics counts requests in reg and serves reg at /metrics.
func WithMetrics(reg *prometheus.Registry) Option {
	return func(h *Handler) { h.registry = reg }
}

// NewRouter returns the HTTP handler for backend.
func NewRouter(backend types.Backend, opts ...Option) http.Handler {
	h := &Handler{backend: backend, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}

	r := chi.NewRouter()
	r.Use(h.identity, h.logRequests)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if h.registry != nil {
		h.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hera",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Backend API requests by method, route and status.",
		}, []string{"method", "route", "status"})
		h.registry.MustRegister(h.requests)
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{}))
	}
	r.Route("/v1", func(api chi.Router) {
		api.Post("/entities", h.handleEntityCreate)
		api.Get("/entities", h.handleEntityQuery)
		api.Get("/entities/{id}", h.handleEntityGet)
		api.Patch("/entities/{id}", h.handleEntityUpdate)
		api.Delete("/entities/{id}", h.handleEntityDelete)

		api.Post("/transactions", h.handleTransactionCreate)
		api.Get("/transactions", h.handleTransactionQuery)
		api.Get("/transactions/{id}", h.handleTransactionGet)
		api.Patch("/transactions/{id}", h.handleTransactionUpdate)
		api.Post("/transactions/{id}/corrections", h.handleTransactionCorrect)
	})
	return r
}

// identity copies the role and actor headers into the request context.
func (h *Handler) identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if role := strings.TrimSpace(r.Header.Get(HeaderRole)); role != "" {
			ctx = ctxutil.WithRole(ctx, role)
		}
		if actor := strings.TrimSpace(r.Header.Get(HeaderActor)); actor != "" {
			ctx = ctxutil.WithActorID(ctx, actor)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if h.requests != nil {
			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			h.requests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		}
		h.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)))
	})
}

func (h *Handler) handleEntityCreate(w http.ResponseWriter, r *http.Request) {
	var in types.NewEntity
	if !h.decode(w, r, &in) {
		return
	}
	e, err := h.backend.EntityCreate(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (h *Handler) handleEntityGet(w http.ResponseWriter, r *http.Request) {
	e, err := h.backend.EntityGet(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) handleEntityUpdate(w http.ResponseWriter, r *http.Request) {
	var patch types.EntityPatch
	if !h.decode(w, r, &patch) {
		return
	}
	e, err := h.backend.EntityUpdate(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) handleEntityDelete(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := types.DeleteOptions{
		HardDelete: q.Get("hard_delete") == "true",
		Cascade:    q.Get("cascade") == "true",
		Reason:     q.Get("reason"),
	}
	if err := h.backend.EntityDelete(r.Context(), chi.URLParam(r, "id"), opts); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleEntityQuery(w http.ResponseWriter, r *http.Request) {
	q, err := ParseEntityQuery(r.URL.Query())
	if err != nil {
		h.writeError(w, err)
		return
	}
	list, err := h.backend.EntityQuery(r.Context(), q)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if list == nil {
		list = []*types.Entity{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleTransactionCreate(w http.ResponseWriter, r *http.Request) {
	var in types.NewTransaction
	if !h.decode(w, r, &in) {
		return
	}
	t, err := h.backend.TransactionCreate(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handler) handleTransactionGet(w http.ResponseWriter, r *http.Request) {
	t, err := h.backend.TransactionGet(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) handleTransactionUpdate(w http.ResponseWriter, r *http.Request) {
	var patch types.TransactionPatch
	if !h.decode(w, r, &patch) {
		return
	}
	t, err := h.backend.TransactionUpdate(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// CorrectionRequest is the body of POST /v1/transactions/{id}/corrections.
type CorrectionRequest struct {
	Status     string               `json:"status"`
	Correction types.NewTransaction `json:"correction"`
}

func (h *Handler) handleTransactionCorrect(w http.ResponseWriter, r *http.Request) {
	var req CorrectionRequest
	if !h.decode(w, r, &req) {
		return
	}
	t, err := h.backend.TransactionCorrect(r.Context(), chi.URLParam(r, "id"), req.Status, req.Correction)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handler) handleTransactionQuery(w http.ResponseWriter, r *http.Request) {
	q, err := ParseTransactionQuery(r.URL.Query())
	if err != nil {
		h.writeError(w, err)
		return
	}
	list, err := h.backend.TransactionQuery(r.Context(), q)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if list == nil {
		list = []*types.Transaction{}
	}
	writeJSON(w, http.StatusOK, list)
}

// decode reads a JSON body into v. On failure it writes a validation error
// and returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		h.writeError(w, &types.FieldError{Code: types.ErrTypeMismatch, Field: "body", Msg: err.Error()})
		return false
	}
	return true
}

// ParseEntityQuery reads entity filters from URL parameters. Relationship
// filters use filter_rel[TYPE]=target_id.
func ParseEntityQuery(v url.Values) (types.EntityQuery, error) {
	q := types.EntityQuery{
		EntityType: v.Get("entity_type"),
		Search:     v.Get("search"),
	}
	for _, s := range v["status"] {
		q.Status = append(q.Status, types.Status(s))
	}
	var err error
	if q.Limit, err = intParam(v, "limit"); err != nil {
		return q, err
	}
	if q.Offset, err = intParam(v, "offset"); err != nil {
		return q, err
	}
	for key, vals := range v {
		if !strings.HasPrefix(key, "filter_rel[") || !strings.HasSuffix(key, "]") || len(vals) == 0 {
			continue
		}
		if q.RelFilters == nil {
			q.RelFilters = map[string]string{}
		}
		q.RelFilters[key[len("filter_rel["):len(key)-1]] = vals[0]
	}
	return q, nil
}

// EncodeEntityQuery is the inverse of ParseEntityQuery.
func EncodeEntityQuery(q types.EntityQuery) url.Values {
	v := url.Values{}
	if q.EntityType != "" {
		v.Set("entity_type", q.EntityType)
	}
	for _, s := range q.Status {
		v.Add("status", string(s))
	}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Limit != 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset != 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}
	for relType, id := range q.RelFilters {
		v.Set("filter_rel["+relType+"]", id)
	}
	return v
}

// ParseTransactionQuery reads transaction filters from URL parameters.
func ParseTransactionQuery(v url.Values) (types.TransactionQuery, error) {
	q := types.TransactionQuery{
		TransactionType: v.Get("transaction_type"),
		Status:          v["status"],
		EntityID:        v.Get("entity_id"),
	}
	var err error
	if q.Limit, err = intParam(v, "limit"); err != nil {
		return q, err
	}
	q.Offset, err = intParam(v, "offset")
	return q, err
}

// EncodeTransactionQuery is the inverse of ParseTransactionQuery.
func EncodeTransactionQuery(q types.TransactionQuery) url.Values {
	v := url.Values{}
	if q.TransactionType != "" {
		v.Set("transaction_type", q.TransactionType)
	}
	for _, s := range q.Status {
		v.Add("status", s)
	}
	if q.EntityID != "" {
		v.Set("entity_id", q.EntityID)
	}
	if q.Limit != 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset != 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}
	return v
}

func intParam(v url.Values, name string) (int, error) {
	raw := v.Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &types.FieldError{Code: types.ErrInvalidFilter, Field: name, Msg: "must be a non-negative integer"}
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

var errInternal = errors.New("internal error")
