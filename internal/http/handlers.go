package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/huanchen1107/TawinCWA/internal/catalog"
	"github.com/huanchen1107/TawinCWA/internal/client"
	"github.com/huanchen1107/TawinCWA/internal/export"
	"github.com/huanchen1107/TawinCWA/internal/health"
	"github.com/huanchen1107/TawinCWA/internal/models"
	"github.com/huanchen1107/TawinCWA/internal/service"
	"github.com/huanchen1107/TawinCWA/internal/validation"
)

const maxDatasetLen = 100

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	dataService *service.DataService
	checker     *health.Checker
	tracker     *health.Tracker
	logger      *zap.Logger
}

// NewHandler returns a new Handler.
func NewHandler(dataService *service.DataService, checker *health.Checker, tracker *health.Tracker, logger *zap.Logger) *Handler {
	return &Handler{
		dataService: dataService,
		checker:     checker,
		tracker:     tracker,
		logger:      logger,
	}
}

// parseTarget validates the {provider}/{dataset} path segments.
func parseTarget(r *http.Request) (models.Provider, string, error) {
	vars := mux.Vars(r)
	provider, err := models.ParseProvider(vars["provider"])
	if err != nil {
		return "", "", err
	}
	dataset, err := validation.ValidateDataset(vars["dataset"], maxDatasetLen)
	if err != nil {
		return "", "", err
	}
	return provider, dataset, nil
}

// queryParams flattens the request query into upstream fetch parameters.
// Reserved service parameters never reach upstream.
func queryParams(r *http.Request) map[string]string {
	params := make(map[string]string)
	for key, values := range r.URL.Query() {
		switch key {
		case "format", "kind", "limit", "location":
			continue
		}
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	if len(params) == 0 {
		return nil
	}
	return params
}

// GetData handles GET /v1/data/{provider}/{dataset}.
func (h *Handler) GetData(w http.ResponseWriter, r *http.Request) {
	provider, dataset, err := parseTarget(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_DATASET", err.Error())
		return
	}

	result, err := h.dataService.GetDataset(r.Context(), provider, dataset, queryParams(r))
	if err != nil {
		h.tracker.RecordError()
		writeServiceError(w, r, err)
		return
	}
	h.tracker.RecordSuccess()
	if result.Stale {
		w.Header().Set("Warning", `110 - "Response is Stale"`)
	}
	writeJSON(w, http.StatusOK, result)
}

// GetDatasetAlerts handles GET /v1/alerts/{provider}/{dataset}: a live fetch
// returning only the threshold breaches.
func (h *Handler) GetDatasetAlerts(w http.ResponseWriter, r *http.Request) {
	provider, dataset, err := parseTarget(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_DATASET", err.Error())
		return
	}

	result, err := h.dataService.GetDataset(r.Context(), provider, dataset, queryParams(r))
	if err != nil {
		h.tracker.RecordError()
		writeServiceError(w, r, err)
		return
	}
	h.tracker.RecordSuccess()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"provider":  result.Provider,
		"dataset":   result.Dataset,
		"fetchedAt": result.FetchedAt,
		"stale":     result.Stale,
		"alerts":    result.Alerts,
	})
}

// GetRecentAlerts handles GET /v1/alerts: archived alert events, optionally
// filtered with ?location= and bounded with ?limit=.
func (h *Handler) GetRecentAlerts(w http.ResponseWriter, r *http.Request) {
	location := r.URL.Query().Get("location")
	if location != "" {
		validated, err := validation.ValidateLocation(location, 100)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", err.Error())
			return
		}
		location = validated
	}

	events, err := h.dataService.RecentAlerts(r.Context(), location, parseLimit(r, 50))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "ARCHIVE_ERROR", "unable to read alert history")
		return
	}
	if events == nil {
		events = []models.AlertEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"alerts": events})
}

// GetExport handles GET /v1/export/{provider}/{dataset}?format=csv|tsv|json&kind=records|alerts.
func (h *Handler) GetExport(w http.ResponseWriter, r *http.Request) {
	provider, dataset, err := parseTarget(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_DATASET", err.Error())
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_FORMAT", err.Error())
		return
	}
	kind := r.URL.Query().Get("kind")
	if kind == "" {
		kind = "records"
	}
	if kind != "records" && kind != "alerts" {
		writeError(w, r, http.StatusBadRequest, "INVALID_KIND", "kind must be records or alerts")
		return
	}

	result, err := h.dataService.GetDataset(r.Context(), provider, dataset, queryParams(r))
	if err != nil {
		h.tracker.RecordError()
		writeServiceError(w, r, err)
		return
	}
	h.tracker.RecordSuccess()

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", "attachment; filename="+exportFilename(dataset, kind, format))
	if kind == "alerts" {
		err = export.WriteAlerts(w, format, result.Alerts)
	} else {
		err = export.WriteRecords(w, format, result.Records)
	}
	if err != nil {
		if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
			logger.Warn("export write failed", zap.Error(err))
		}
	}
}

func exportFilename(dataset, kind string, format export.Format) string {
	safe := make([]rune, 0, len(dataset))
	for _, c := range dataset {
		if c == '/' {
			c = '-'
		}
		safe = append(safe, c)
	}
	return string(safe) + "-" + kind + "." + string(format)
}

// GetCatalog handles GET /v1/catalog?provider=&category=&q=.
func (h *Handler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	datasets := catalog.Filter(
		r.URL.Query().Get("provider"),
		r.URL.Query().Get("category"),
		r.URL.Query().Get("q"),
	)
	writeJSON(w, http.StatusOK, map[string]interface{}{"datasets": datasets})
}

// GetHistory handles GET /v1/history/{provider}/{dataset}?limit=&since=.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	provider, dataset, err := parseTarget(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_DATASET", err.Error())
		return
	}

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_SINCE", "since must be an RFC3339 timestamp")
			return
		}
	}

	entries, err := h.dataService.History(r.Context(), provider, dataset, parseLimit(r, 20))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "ARCHIVE_ERROR", "unable to read fetch history")
		return
	}
	if !since.IsZero() {
		filtered := entries[:0]
		for _, e := range entries {
			if !e.FetchedAt.Before(since) {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"provider": provider,
		"dataset":  dataset,
		"history":  entries,
	})
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := h.checker.Check(r.Context())
	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status":    status.Status,
		"service":   "tawincwa",
		"requests":  status.Requests,
		"errorPct":  status.ErrorPct,
		"providers": status.Providers,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func parseLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > 1000 {
		return def
	}
	return n
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code,
// message, and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID = v.(string)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

// writeServiceError maps pipeline failures to HTTP: malformed upstream
// payloads are a 502, everything else upstream-related is a 503.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		logger.Debug("upstream error", zap.Error(err))
	}
	if errors.Is(err, client.ErrSchema) {
		writeError(w, r, http.StatusBadGateway, "UPSTREAM_SCHEMA", "Upstream payload could not be interpreted")
		return
	}
	writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to fetch upstream data")
}
