package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Record(t *testing.T) {
	m := New("test")

	m.RecordRequest(http.MethodGet, http.StatusOK, 10*time.Millisecond)
	m.RecordRequest(http.MethodGet, http.StatusOK, 20*time.Millisecond)
	m.RecordUpload(1024)
	m.RecordUploadRejected("not_image")
	m.RecordLogin("success")
	m.RecordLogin("failure")
	m.RecordSessionStoreError()

	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "200")); got != 2 {
		t.Errorf("requests = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.uploads.WithLabelValues("stored")); got != 1 {
		t.Errorf("stored uploads = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.uploadBytes); got != 1024 {
		t.Errorf("upload bytes = %v, want 1024", got)
	}
	if got := testutil.ToFloat64(m.uploads.WithLabelValues("not_image")); got != 1 {
		t.Errorf("rejected uploads = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.logins.WithLabelValues("failure")); got != 1 {
		t.Errorf("login failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.sessionStoreErrors); got != 1 {
		t.Errorf("session store errors = %v, want 1", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordRequest(http.MethodGet, http.StatusOK, time.Millisecond)
	m.RecordUpload(1)
	m.RecordUploadRejected("x")
	m.RecordLogin("success")
	m.RecordSessionStoreError()
}

func TestMetrics_Handler(t *testing.T) {
	m := New("1.2.3")
	m.RecordLogin("success")

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	for _, want := range []string{`moard_info{version="1.2.3"} 1`, `moard_logins_total{result="success"} 1`} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
