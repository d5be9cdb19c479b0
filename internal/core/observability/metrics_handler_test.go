package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestMetricsHandler_Smoke(t *testing.T) {
	ExposeBuildInfo("test")
	ObserveHTTP("POST", "/v1/documents", 200, 0.001)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "app_build_info") && !strings.Contains(body, "http_requests_total") {
		t.Fatalf("metrics payload did not contain expected metric names; got:\n%s", body)
	}
}

func TestExtractionMetrics_Labels(t *testing.T) {
	ObserveDocument(true, 0.01)
	ObserveDocument(false, 0.02)
	AddBuildings(3, 1)
	IncDefaulted("height")
	IncReprojectionFailure("unknown_system")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rr, req)
	body := rr.Body.String()

	for _, want := range []string{
		`citygml_documents_total{outcome="success"}`,
		`citygml_documents_total{outcome="failure"}`,
		`citygml_buildings_total{outcome="extracted"}`,
		`citygml_buildings_total{outcome="skipped"}`,
		`citygml_defaulted_fields_total{field="height"}`,
		`citygml_reprojection_failures_total{reason="unknown_system"}`,
		`citygml_document_duration_seconds_bucket`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %s in payload:\n%s", want, body)
		}
	}
}

func TestInit_IsIdempotentPerRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	Init(reg)
	Init(reg)

	AddSinkRecords("kafka", 2, nil)
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "sink_records_total" {
			found = true
		}
	}
	if !found {
		t.Fatalf("sink_records_total not registered in custom registry")
	}
}
