// Package handler provides HTTP request handlers for the facet API.
package handler

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/devrev/facet/internal/errors"
	"github.com/devrev/facet/internal/health"
	"github.com/devrev/facet/internal/model"
	"github.com/devrev/facet/internal/service"
	"github.com/devrev/facet/internal/store"
	"github.com/devrev/facet/internal/validation"
)

const (
	// maxCacheKeySize bounds caller-supplied cache keys
	maxCacheKeySize = 512
	// maxBodySize bounds request bodies on the write and query paths
	maxBodySize = 10 * 1024 * 1024
)

// Handlers contains all HTTP handlers and their dependencies
type Handlers struct {
	optimizer          *service.WriteOptimizer
	router             *service.QueryRouter
	hot                store.HotStore
	checker            *health.HealthChecker
	validator          *validation.Validator
	errs               *errors.HTTPWriter
	logger             *zap.Logger
	defaultConsistency model.ConsistencyLevel
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	optimizer *service.WriteOptimizer,
	router *service.QueryRouter,
	hot store.HotStore,
	checker *health.HealthChecker,
	validator *validation.Validator,
	errs *errors.HTTPWriter,
	logger *zap.Logger,
	defaultConsistency model.ConsistencyLevel,
) *Handlers {
	return &Handlers{
		optimizer:          optimizer,
		router:             router,
		hot:                hot,
		checker:            checker,
		validator:          validator,
		errs:               errs,
		logger:             logger,
		defaultConsistency: defaultConsistency,
	}
}

// ingestRequest is the body of POST /v1/events
type ingestRequest struct {
	Events []model.Event `json:"events"`
}

// ingestResponse acknowledges buffered events
type ingestResponse struct {
	Status      string `json:"status"`
	Buffered    int    `json:"buffered"`
	BufferDepth int    `json:"buffer_depth"`
}

// IngestEvents handles POST /v1/events. Events are buffered, not yet
// durable, when the 202 goes out.
func (h *Handlers) IngestEvents(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errs.WriteValidationError(w, "invalid request body: "+err.Error(), requestID)
		return
	}

	if err := h.validator.ValidateEvents(req.Events); err != nil {
		h.errs.WriteValidationError(w, err.Error(), requestID)
		return
	}

	depth, err := h.optimizer.Ingest(r.Context(), req.Events)
	if err != nil {
		h.errs.WriteError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusAccepted, ingestResponse{
		Status:      "accepted",
		Buffered:    len(req.Events),
		BufferDepth: depth,
	})
}

// upsertHotRequest is the body of PUT /v1/entities/{tenant_id}/{entity_id}/hot
type upsertHotRequest struct {
	Attrs map[string]interface{} `json:"attrs"`
}

// UpsertHotEntity handles PUT /v1/entities/{tenant_id}/{entity_id}/hot.
// The merge is synchronous; a 200 means the write is durable.
func (h *Handlers) UpsertHotEntity(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	tenantID, entityID, ok := h.entityPath(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	var req upsertHotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errs.WriteValidationError(w, "invalid request body: "+err.Error(), requestID)
		return
	}
	if err := h.validator.ValidateAttrs(req.Attrs); err != nil {
		h.errs.WriteValidationError(w, err.Error(), requestID)
		return
	}

	if err := h.optimizer.UpsertHot(r.Context(), tenantID, entityID, req.Attrs); err != nil {
		h.errs.WriteError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "merged",
		"tenant_id": tenantID,
		"entity_id": entityID,
	})
}

// GetHotEntity handles GET /v1/entities/{tenant_id}/{entity_id}/hot.
// Hot reads go straight to the primary-side store and reflect every
// acknowledged merge.
func (h *Handlers) GetHotEntity(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	tenantID, entityID, ok := h.entityPath(w, r)
	if !ok {
		return
	}

	entry, err := h.hot.GetEntry(r.Context(), tenantID, entityID)
	if err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			h.errs.Write(w, http.StatusNotFound, errors.CodeNotFound,
				fmt.Sprintf("entity %s/%s has no hot entry", tenantID, entityID), requestID)
			return
		}
		h.errs.WriteError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, entry)
}

// entityQueryResponse is the body of GET /v1/entities/{tenant_id}/{entity_id}
type entityQueryResponse struct {
	TenantID   string      `json:"tenant_id"`
	EntityID   string      `json:"entity_id"`
	Attributes []model.Row `json:"attributes"`
	Source     string      `json:"source"`
	LagMs      int64       `json:"lag_ms"`
	CacheHit   bool        `json:"cache_hit"`
}

// entitySnapshotQuery returns the latest value per attribute
const entitySnapshotQuery = `
	SELECT DISTINCT ON (attribute_id) attribute_id, value, occurred_at
	FROM events
	WHERE tenant_id = $1 AND entity_id = $2
	ORDER BY attribute_id, occurred_at DESC
`

// GetEntity handles GET /v1/entities/{tenant_id}/{entity_id}. The
// read routes by the requested consistency level; eventual reads with
// a positive cache_ttl_ms are served from and stored in the response
// cache.
func (h *Handlers) GetEntity(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	tenantID, entityID, ok := h.entityPath(w, r)
	if !ok {
		return
	}

	consistency, err := model.ParseConsistencyLevel(r.URL.Query().Get("consistency"), h.defaultConsistency)
	if err != nil {
		h.errs.WriteValidationError(w, err.Error(), requestID)
		return
	}

	cacheTTL, err := parseCacheTTL(r.URL.Query().Get("cache_ttl_ms"))
	if err != nil {
		h.errs.WriteValidationError(w, err.Error(), requestID)
		return
	}

	req := service.QueryRequest{
		Query:       entitySnapshotQuery,
		Params:      []interface{}{tenantID, entityID},
		Consistency: consistency,
		CacheTTL:    cacheTTL,
	}
	if cacheTTL > 0 {
		req.CacheKey = fmt.Sprintf("entity:%s:%s", tenantID, entityID)
	}

	outcome, err := h.router.Execute(r.Context(), req)
	if err != nil {
		h.errs.WriteError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, entityQueryResponse{
		TenantID:   tenantID,
		EntityID:   entityID,
		Attributes: outcome.Rows,
		Source:     outcome.Source,
		LagMs:      outcome.LagMs,
		CacheHit:   outcome.CacheHit,
	})
}

// queryRequest is the body of POST /v1/query
type queryRequest struct {
	Query       string        `json:"query"`
	Params      []interface{} `json:"params"`
	Consistency string        `json:"consistency"`
	CacheKey    string        `json:"cache_key"`
	CacheTTLMs  int64         `json:"cache_ttl_ms"`
}

// Query handles POST /v1/query, routing an ad hoc read query
func (h *Handlers) Query(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errs.WriteValidationError(w, "invalid request body: "+err.Error(), requestID)
		return
	}

	if strings.TrimSpace(req.Query) == "" {
		h.errs.WriteValidationError(w, "query is required", requestID)
		return
	}
	if !isReadQuery(req.Query) {
		h.errs.WriteValidationError(w, "only read queries can be routed", requestID)
		return
	}
	if len(req.CacheKey) > maxCacheKeySize {
		h.errs.WriteValidationError(w,
			fmt.Sprintf("cache_key exceeds %d bytes", maxCacheKeySize), requestID)
		return
	}

	consistency, err := model.ParseConsistencyLevel(req.Consistency, h.defaultConsistency)
	if err != nil {
		h.errs.WriteValidationError(w, err.Error(), requestID)
		return
	}

	outcome, err := h.router.Execute(r.Context(), service.QueryRequest{
		Query:       req.Query,
		Params:      req.Params,
		Consistency: consistency,
		CacheKey:    req.CacheKey,
		CacheTTL:    time.Duration(req.CacheTTLMs) * time.Millisecond,
	})
	if err != nil {
		h.errs.WriteError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, outcome)
}

// Stats handles GET /v1/stats
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, h.checker.Snapshot())
}

// entityPath extracts and validates the tenant and entity path vars
func (h *Handlers) entityPath(w http.ResponseWriter, r *http.Request) (tenantID, entityID string, ok bool) {
	requestID := r.Header.Get("X-Request-ID")
	vars := mux.Vars(r)
	tenantID = vars["tenant_id"]
	entityID = vars["entity_id"]

	if err := h.validator.ValidateID("tenant_id", tenantID); err != nil {
		h.errs.WriteValidationError(w, err.Error(), requestID)
		return "", "", false
	}
	if err := h.validator.ValidateID("entity_id", entityID); err != nil {
		h.errs.WriteValidationError(w, err.Error(), requestID)
		return "", "", false
	}
	return tenantID, entityID, true
}

// parseCacheTTL parses the cache_ttl_ms query parameter
func parseCacheTTL(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms < 0 {
		return 0, fmt.Errorf("cache_ttl_ms must be a non-negative integer")
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// isReadQuery accepts SELECT and WITH statements only
func isReadQuery(query string) bool {
	head := strings.ToUpper(strings.TrimSpace(query))
	return strings.HasPrefix(head, "SELECT") || strings.HasPrefix(head, "WITH")
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}
