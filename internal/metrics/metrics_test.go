package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersRecord(t *testing.T) {
	m := New()
	m.ObserveUpload(UploadStored, 2048)
	m.ObserveUpload(UploadDuplicate, 0)
	m.ObserveUpload(UploadDuplicate, 0)
	m.ObserveDecision("document", "approved")
	m.IncrementContractOverlap()
	m.ObserveBlobDelete(DeleteBlocked)
	m.AddGCRemoved("rows", 3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BlobUploads.WithLabelValues(UploadStored)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BlobUploads.WithLabelValues(UploadDuplicate)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Decisions.WithLabelValues("document", "approved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ContractOverlaps))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BlobDeletes.WithLabelValues(DeleteBlocked)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.BlobGCRemoved.WithLabelValues("rows")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveUpload(UploadStored, 1)
	m.ObserveDecision("title", "rejected")
	m.IncrementContractCreated()
	m.ObserveRequest("GET /health", 200, time.Now())
	assert.Nil(t, m.Registry())
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.IncrementContractCreated()
	m.ObserveRequest("POST /v1/contracts", 201, time.Now())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "credvault_contracts_created_total 1"))
	assert.True(t, strings.Contains(string(body), `credvault_http_request_duration_seconds_count{route="POST /v1/contracts",status="2xx"} 1`))
}

func TestIndependentRegistries(t *testing.T) {
	// Two instances must not collide on registration.
	a := New()
	b := New()
	a.IncrementContractCreated()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.ContractsCreated))
}
