package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/veridata/quality-engine/internal/framework"
	"github.com/veridata/quality-engine/internal/models"
)

// Handler exposes the quality framework over HTTP
type Handler struct {
	framework *framework.DataQualityFramework
	monitor   *framework.ContinuousMonitor
	logger    *zap.Logger
}

// NewHandler creates the HTTP handler set. The monitor may be nil when the
// continuous loop is not deployed.
func NewHandler(f *framework.DataQualityFramework, monitor *framework.ContinuousMonitor, logger *zap.Logger) *Handler {
	return &Handler{framework: f, monitor: monitor, logger: logger}
}

// SetupRoutes registers all routes on the router
func (h *Handler) SetupRoutes(router *mux.Router, metricsEnabled bool) {
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
	if metricsEnabled {
		router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	}

	api := router.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/quality/validate", h.ValidateQuality).Methods("POST")
	api.HandleFunc("/quality/dashboard", h.GetDashboard).Methods("GET")
	api.HandleFunc("/quality/alerts", h.ListAlerts).Methods("GET")
	api.HandleFunc("/quality/alerts/{id}/resolve", h.ResolveAlert).Methods("POST")

	api.HandleFunc("/lineage/nodes", h.AddLineageNode).Methods("POST")
	api.HandleFunc("/lineage/edges", h.AddLineageEdge).Methods("POST")
	api.HandleFunc("/lineage/nodes/{id}/upstream", h.TraceUpstream).Methods("GET")
	api.HandleFunc("/lineage/nodes/{id}/downstream", h.TraceDownstream).Methods("GET")
	api.HandleFunc("/lineage/nodes/{id}/impact", h.AnalyzeImpact).Methods("GET")
}

type validateRequest struct {
	Data    interface{}                  `json:"data"`
	Scopes  []framework.Scope            `json:"scopes,omitempty"`
	Context *framework.ValidationContext `json:"context,omitempty"`
}

type validateResponse struct {
	*models.DataQualityReport
	Summaries map[string]models.ValidationSummary `json:"summaries"`
}

// ValidateQuality runs a validation across the requested scopes
func (h *Handler) ValidateQuality(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Data == nil {
		h.writeErrorResponse(w, http.StatusBadRequest, "Request must include data")
		return
	}

	report := h.framework.ValidateDataQuality(r.Context(), req.Data, req.Context, req.Scopes)

	h.writeJSONResponse(w, http.StatusOK, validateResponse{
		DataQualityReport: report,
		Summaries:         report.Summaries(),
	})
}

// GetDashboard exports the dashboard snapshot as json or csv
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}

	payload, err := h.framework.Dashboard().Export(format)
	if err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename=quality-dashboard.csv")
	default:
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(http.StatusOK)
	w.Write(payload)
}

// ListAlerts returns the unresolved alerts
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := h.framework.Calculator().ActiveAlerts()
	h.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// ResolveAlert marks an alert as resolved
func (h *Handler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !h.framework.Calculator().ResolveAlert(id) {
		h.writeErrorResponse(w, http.StatusNotFound, "Alert not found")
		return
	}
	h.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "resolved", "id": id})
}

// AddLineageNode registers a lineage node
func (h *Handler) AddLineageNode(w http.ResponseWriter, r *http.Request) {
	var node models.LineageNode
	if err := json.NewDecoder(r.Body).Decode(&node); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.framework.Lineage().AddNode(&node); err != nil {
		h.writeErrorResponse(w, http.StatusConflict, err.Error())
		return
	}
	h.writeJSONResponse(w, http.StatusCreated, node)
}

// AddLineageEdge connects two lineage nodes
func (h *Handler) AddLineageEdge(w http.ResponseWriter, r *http.Request) {
	var edge models.LineageEdge
	if err := json.NewDecoder(r.Body).Decode(&edge); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.framework.Lineage().AddEdge(edge); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSONResponse(w, http.StatusCreated, edge)
}

// TraceUpstream returns every transitive ancestor of a node
func (h *Handler) TraceUpstream(w http.ResponseWriter, r *http.Request) {
	h.trace(w, r, h.framework.Lineage().TraceUpstream)
}

// TraceDownstream returns every transitive descendant of a node
func (h *Handler) TraceDownstream(w http.ResponseWriter, r *http.Request) {
	h.trace(w, r, h.framework.Lineage().TraceDownstream)
}

func (h *Handler) trace(w http.ResponseWriter, r *http.Request, traceFn func(string) ([]*models.LineageNode, error)) {
	id := mux.Vars(r)["id"]
	nodes, err := traceFn(id)
	if err != nil {
		h.writeErrorResponse(w, http.StatusNotFound, err.Error())
		return
	}
	h.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"node_id": id,
		"nodes":   nodes,
		"count":   len(nodes),
	})
}

// AnalyzeImpact propagates quality issues through the lineage graph. The
// metric_type parameter may repeat or carry a comma-separated list.
func (h *Handler) AnalyzeImpact(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var metricTypes []models.MetricType
	for _, raw := range r.URL.Query()["metric_type"] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				metricTypes = append(metricTypes, models.MetricType(part))
			}
		}
	}
	if len(metricTypes) == 0 {
		h.writeErrorResponse(w, http.StatusBadRequest, "metric_type query parameter is required")
		return
	}

	analysis, err := h.framework.Lineage().AnalyzeQualityImpact(id, metricTypes)
	if err != nil {
		h.writeErrorResponse(w, http.StatusNotFound, err.Error())
		return
	}
	h.writeJSONResponse(w, http.StatusOK, analysis)
}

// HealthCheck reports process liveness and monitor state
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":    "healthy",
		"service":   "quality-engine",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.monitor != nil {
		status["monitoring"] = h.monitor.Running()
	}
	h.writeJSONResponse(w, http.StatusOK, status)
}

func (h *Handler) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *Handler) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	h.writeJSONResponse(w, statusCode, map[string]string{"error": message})
}
