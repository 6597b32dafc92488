package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unify/internal/metrics"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	require.NotNil(t, m.GetCounter())
	return m.GetCounter().GetValue()
}

func summaryCount(t *testing.T, v *prometheus.SummaryVec, labels ...string) (uint64, float64) {
	t.Helper()
	metric, ok := v.WithLabelValues(labels...).(prometheus.Metric)
	require.True(t, ok)
	m := &dto.Metric{}
	require.NoError(t, metric.Write(m))
	require.NotNil(t, m.GetSummary())
	return m.GetSummary().GetSampleCount(), m.GetSummary().GetSampleSum()
}

func TestNewBackend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		job, url string
		wantErr  bool
		wantJob  string
	}{
		{name: "missing url", job: "x", wantErr: true},
		{name: "default job", url: "http://pushgateway:9091", wantJob: metrics.DefaultJobLabel},
		{name: "explicit job", job: "nightly", url: "http://pushgateway:9091", wantJob: "nightly"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b, err := NewBackend(tt.job, tt.url)
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, b)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantJob, b.jobName)
			assert.Equal(t, tt.url, b.gatewayURL)
		})
	}
}

func TestIncCounter(t *testing.T) {
	t.Parallel()
	b, err := NewBackend("unify", "http://example.com")
	require.NoError(t, err)

	b.IncCounter(metrics.StepTotal, 3, metrics.Labels{"step": "parse", "status": "success"})
	b.IncCounter(metrics.RecordsTotal, 5, metrics.Labels{"kind": metrics.KindRead})
	b.IncCounter(metrics.BatchesTotal, 2, nil)
	b.IncCounter(metrics.BatchesTotal, 0.5, nil)
	b.IncCounter("unknown_metric", 10, metrics.Labels{"foo": "bar"})

	assert.Equal(t, 3.0, counterValue(t, b.stepCounter.WithLabelValues("parse", "success")))
	assert.Equal(t, 5.0, counterValue(t, b.recordCounter.WithLabelValues(metrics.KindRead)))
	assert.Equal(t, 2.5, counterValue(t, b.batchCounter))
	assert.Equal(t, 0.0, counterValue(t, b.stepCounter.WithLabelValues("x", "y")))
}

func TestIncCounter_ZeroBackend(t *testing.T) {
	t.Parallel()
	b := &Backend{}

	assert.NotPanics(t, func() {
		b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "s", "status": "success"})
		b.IncCounter(metrics.RecordsTotal, 1, metrics.Labels{"kind": metrics.KindRead})
		b.IncCounter(metrics.BatchesTotal, 1, nil)
		b.ObserveHistogram(metrics.StepDuration, 1, nil)
	})
}

func TestObserveHistogram(t *testing.T) {
	t.Parallel()
	b, err := NewBackend("unify", "http://example.com")
	require.NoError(t, err)

	b.ObserveHistogram(metrics.StepDuration, 1.5, metrics.Labels{"step": "load", "status": "success"})
	b.ObserveHistogram("other_metric", 2.0, metrics.Labels{"step": "load", "status": "success"})

	n, sum := summaryCount(t, b.stepDuration, "load", "success")
	assert.Equal(t, uint64(1), n)
	assert.Equal(t, 1.5, sum)
}

func TestFlush(t *testing.T) {
	t.Parallel()

	type request struct {
		method, path string
		body         int
	}
	reqs := make(chan request, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		body, _ := io.ReadAll(r.Body)
		reqs <- request{r.Method, r.URL.Path, len(body)}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	b, err := NewBackend("nightly", server.URL)
	require.NoError(t, err)
	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "scan", "status": "success"})
	require.NoError(t, b.Flush())

	select {
	case got := <-reqs:
		assert.Equal(t, http.MethodPut, got.method)
		assert.Contains(t, got.path, "/job/nightly")
		assert.Positive(t, got.body)
	default:
		t.Fatal("Flush did not reach the gateway")
	}
}

func BenchmarkIncCounterRecord(b *testing.B) {
	backend, err := NewBackend("unify", "http://example.com")
	if err != nil {
		b.Fatal(err)
	}
	labels := metrics.Labels{"kind": metrics.KindRead}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		backend.IncCounter(metrics.RecordsTotal, 1, labels)
	}
}
