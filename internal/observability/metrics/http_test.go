package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"/api/applications":                       "/api/applications",
		"/api/applications/submit":                "/api/applications/submit",
		"/api/applications/abc-123":               "/api/applications/{id}",
		"/api/applications/abc-123/update-status": "/api/applications/{id}/update-status",
		"/api/applications/abc-123/accept":        "/api/applications/{id}/accept",
		"/api/upload-multiple-documents":          "/api/upload-multiple-documents",
		"/api/admin/applications/export":          "/api/admin/applications/export",
	}
	for in, want := range cases {
		if got := normalizePath(in); got != want {
			t.Fatalf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMiddlewareExposesRequestAndWorkflowCounters(t *testing.T) {
	m := NewHTTPServerMetrics("visa-api")
	handler := m.Middleware("visa-api", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/applications/app-9/accept", nil))
	m.RecordTransition("visa-api", "Visa Approved", false)
	m.RecordDocumentUpload("visa-api", "applicant", 2)
	m.ResilienceObserver("visa-api").BreakerStateChanged("postgres.mutate", "open")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	for _, want := range []string{
		`visa_http_requests_total{method="POST",path="/api/applications/{id}/accept",service="visa-api",status="201"} 1`,
		`visa_workflow_status_transitions_total{service="visa-api",status="Visa Approved",trigger="manual"} 1`,
		`visa_workflow_documents_uploaded_total{kind="applicant",service="visa-api"} 2`,
		`visa_resilience_circuit_open{operation="postgres.mutate",service="visa-api"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
