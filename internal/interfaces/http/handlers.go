package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/sawpanic/fxrates/internal/domain"
	"github.com/sawpanic/fxrates/internal/query"
)

// CatalogService is the catalog capability the API exposes.
type CatalogService interface {
	Create(ctx context.Context, code, providerSeriesID string, enabled bool) (*domain.CurrencySeries, error)
	Update(ctx context.Context, id int64, enabled bool) (*domain.CurrencySeries, error)
	GetByID(ctx context.Context, id int64) (*domain.CurrencySeries, error)
	GetAll(ctx context.Context, enabledOnly bool) ([]domain.CurrencySeries, error)
}

// ImportService is the manual-import capability the admin API exposes.
type ImportService interface {
	ImportLatestExchangeRates(ctx context.Context) ([]domain.ImportResult, error)
	ImportForCurrency(ctx context.Context, code string) (domain.ImportResult, error)
}

// Pinger reports database liveness for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CacheChecker reports cache liveness for the health endpoint.
type CacheChecker interface {
	Healthy(ctx context.Context) bool
}

// Handlers binds route handlers to the application services.
type Handlers struct {
	catalog  CatalogService
	rates    query.RatesReader
	importer ImportService
	db       Pinger
	cache    CacheChecker
}

// NewHandlers wires the handler set.
func NewHandlers(catalog CatalogService, rates query.RatesReader, importer ImportService, db Pinger, cache CacheChecker) *Handlers {
	return &Handlers{catalog: catalog, rates: rates, importer: importer, db: db, cache: cache}
}

type createCurrencyRequest struct {
	CurrencyCode     string `json:"currencyCode"`
	ProviderSeriesID string `json:"providerSeriesId"`
	Enabled          bool   `json:"enabled"`
}

type updateCurrencyRequest struct {
	Enabled *bool `json:"enabled"`
}

type importRequest struct {
	CurrencyCode string `json:"currencyCode"`
}

// ListCurrencies serves GET /v1/currencies.
func (h *Handlers) ListCurrencies(w http.ResponseWriter, r *http.Request) {
	enabledOnly := false
	if v := r.URL.Query().Get("enabledOnly"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, r, domain.NewInvalidRequest("enabledOnly must be a boolean, got %q", v))
			return
		}
		enabledOnly = parsed
	}

	series, err := h.catalog.GetAll(r.Context(), enabledOnly)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if series == nil {
		series = []domain.CurrencySeries{}
	}
	writeJSON(w, http.StatusOK, series)
}

// CreateCurrency serves POST /v1/admin/currencies.
func (h *Handlers) CreateCurrency(w http.ResponseWriter, r *http.Request) {
	var req createCurrencyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	series, err := h.catalog.Create(r.Context(), req.CurrencyCode, req.ProviderSeriesID, req.Enabled)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/v1/admin/currencies/%d", series.ID))
	writeJSON(w, http.StatusCreated, series)
}

// GetCurrency serves GET /v1/admin/currencies/{id}.
func (h *Handlers) GetCurrency(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	series, err := h.catalog.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

// UpdateCurrency serves PUT /v1/admin/currencies/{id}. Only the enabled flag
// is mutable.
func (h *Handlers) UpdateCurrency(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req updateCurrencyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Enabled == nil {
		writeError(w, r, domain.NewInvalidRequest("enabled is required"))
		return
	}

	series, err := h.catalog.Update(r.Context(), id, *req.Enabled)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

// GetExchangeRates serves GET /v1/exchange-rates.
func (h *Handlers) GetExchangeRates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	target := strings.ToUpper(strings.TrimSpace(q.Get("targetCurrency")))
	if target == "" {
		writeError(w, r, domain.NewInvalidRequest("targetCurrency is required"))
		return
	}

	start, err := dateParam(q.Get("startDate"), "startDate")
	if err != nil {
		writeError(w, r, err)
		return
	}
	end, err := dateParam(q.Get("endDate"), "endDate")
	if err != nil {
		writeError(w, r, err)
		return
	}

	rates, err := h.rates.GetExchangeRates(r.Context(), target, start, end)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rates)
}

// TriggerImport serves POST /v1/admin/exchange-rates/import. Without a body
// (or with an empty currencyCode) it imports every enabled series; with a
// currencyCode it imports just that series.
func (h *Handlers) TriggerImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}

	if code := strings.ToUpper(strings.TrimSpace(req.CurrencyCode)); code != "" {
		result, err := h.importer.ImportForCurrency(r.Context(), code)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, []domain.ImportResult{result})
		return
	}

	results, err := h.importer.ImportLatestExchangeRates(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Health serves GET /health. The database is load-bearing; the cache degrades
// to pass-through, so a cache outage reports degraded rather than down.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Checks: map[string]string{"database": "ok", "cache": "ok"}}
	status := http.StatusOK

	if err := h.db.Ping(ctx); err != nil {
		resp.Status = "down"
		resp.Checks["database"] = "down"
		status = http.StatusServiceUnavailable
	}
	if !h.cache.Healthy(ctx) {
		resp.Checks["cache"] = "down"
		if resp.Status == "ok" {
			resp.Status = "degraded"
		}
	}

	writeJSON(w, status, resp)
}

// NotFound renders unknown paths in the standard envelope.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, errorResponse{
		Type:    errorType,
		Message: fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path),
	})
}

// MethodNotAllowed renders method mismatches in the standard envelope.
func (h *Handlers) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, errorResponse{
		Type:    errorType,
		Message: fmt.Sprintf("method %s not allowed for %s", r.Method, r.URL.Path),
	})
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.NewInvalidRequest("invalid request body: %v", err)
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, domain.NewInvalidRequest("invalid id %q", raw)
	}
	return id, nil
}

func dateParam(raw, name string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := domain.ParseDate(raw)
	if err != nil {
		return nil, domain.NewInvalidRequest("%s must be formatted as %s, got %q", name, domain.DateLayout, raw)
	}
	return &t, nil
}
