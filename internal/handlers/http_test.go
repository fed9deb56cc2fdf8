package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/veridata/quality-engine/internal/config"
	"github.com/veridata/quality-engine/internal/framework"
	"github.com/veridata/quality-engine/internal/models"
)

func setupRouter(t *testing.T) (*mux.Router, *framework.DataQualityFramework) {
	t.Helper()

	cfg := config.Config{
		Environment: "test",
		Quality: config.QualityConfig{
			CompletenessTarget: 95,
			ValidityTarget:     95,
			UniquenessTarget:   90,
			TimelinessTarget:   90,
			MaxRecordAge:       24 * time.Hour,
		},
		Privacy:     config.PrivacyConfig{HighConfidence: 0.8, ExpirationWarnRate: 0.8},
		Consistency: config.ConsistencyConfig{DefaultTimeout: time.Second, WeakNumericDelta: 0.1},
		Anomaly:     config.AnomalyConfig{ZScoreThreshold: 2.0, MinBaselineSamples: 10},
		Monitoring:  config.MonitoringConfig{Interval: time.Minute, TrendWindow: time.Hour},
	}

	f := framework.New(cfg, nil, zap.NewNop())
	h := NewHandler(f, nil, zap.NewNop())
	router := mux.NewRouter()
	h.SetupRoutes(router, false)
	return router, f
}

func TestValidateQualityEndpoint(t *testing.T) {
	router, _ := setupRouter(t)

	t.Run("valid request returns a report", func(t *testing.T) {
		body, _ := json.Marshal(map[string]interface{}{
			"data": []map[string]interface{}{
				{"name": "a", "calories": 450.0},
			},
			"scopes": []string{"monitoring"},
			"context": map[string]interface{}{
				"required_fields": []string{"name", "calories"},
			},
		})

		req := httptest.NewRequest(http.MethodPost, "/v1/quality/validate", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			ID           string             `json:"id"`
			OverallScore float64            `json:"overall_score"`
			Metrics      map[string]float64 `json:"metrics"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.ID)
		assert.InDelta(t, 100.0, resp.Metrics["completeness"], 0.001)
	})

	t.Run("malformed body is a 400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/quality/validate", strings.NewReader("{"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing data is a 400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/quality/validate", strings.NewReader("{}"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestDashboardEndpoint(t *testing.T) {
	router, _ := setupRouter(t)

	t.Run("defaults to json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/quality/dashboard", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	})

	t.Run("csv export", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/quality/dashboard?format=csv", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
		assert.True(t, strings.HasPrefix(rec.Body.String(), "Metric,Current Value,Trend,Within Threshold"))
	})

	t.Run("unknown format is a 400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/quality/dashboard?format=xml", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLineageEndpoints(t *testing.T) {
	router, _ := setupRouter(t)

	post := func(t *testing.T, path string, payload interface{}) *httptest.ResponseRecorder {
		t.Helper()
		body, _ := json.Marshal(payload)
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	for _, node := range []models.LineageNode{
		{ID: "src", Name: "source", Type: models.LineageSource},
		{ID: "dst", Name: "sink", Type: models.LineageDestination},
	} {
		rec := post(t, "/v1/lineage/nodes", node)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	t.Run("duplicate node conflicts", func(t *testing.T) {
		rec := post(t, "/v1/lineage/nodes", models.LineageNode{ID: "src"})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	rec := post(t, "/v1/lineage/edges", models.LineageEdge{SourceID: "src", TargetID: "dst"})
	require.Equal(t, http.StatusCreated, rec.Code)

	t.Run("downstream trace", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/lineage/nodes/src/downstream", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Count int `json:"count"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Count)
	})

	t.Run("impact analysis needs a metric type", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/lineage/nodes/src/impact", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("impact analysis", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/lineage/nodes/src/impact?metric_type=accuracy", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "accuracy")
	})

	t.Run("impact analysis over a comma-separated issue set", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/lineage/nodes/src/impact?metric_type=uniqueness,accuracy", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var analysis struct {
			MetricTypes   []string `json:"metric_types"`
			AffectedNodes []struct {
				Severity string `json:"severity"`
			} `json:"affected_nodes"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &analysis))
		assert.Equal(t, []string{"uniqueness", "accuracy"}, analysis.MetricTypes)
		require.NotEmpty(t, analysis.AffectedNodes)
		assert.Equal(t, "high", analysis.AffectedNodes[0].Severity)
	})

	t.Run("unknown node is a 404", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/lineage/nodes/ghost/upstream", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestAlertEndpoints(t *testing.T) {
	router, f := setupRouter(t)

	// Force a breach so an alert exists.
	metric := f.Calculator().CalculateCompleteness("completeness",
		[]map[string]interface{}{{"a": nil}}, []string{"a"})
	alert := f.Calculator().Record(metric)
	require.NotNil(t, alert)

	t.Run("list returns the active alert", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/quality/alerts", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Count int `json:"count"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Count)
	})

	t.Run("resolve then list empty", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/quality/alerts/"+alert.ID+"/resolve", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		req = httptest.NewRequest(http.MethodGet, "/v1/quality/alerts", nil)
		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		var resp struct {
			Count int `json:"count"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 0, resp.Count)
	})

	t.Run("resolving an unknown alert is a 404", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/quality/alerts/nope/resolve", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHealthCheck(t *testing.T) {
	router, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}
