package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthz(t *testing.T) {
	m := New(func() int { return 0 })
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestMetricsEndpoint(t *testing.T) {
	users := 3
	m := New(func() int { return users })
	m.MessagesReceived.Inc()
	m.Commands.WithLabelValues("clear").Inc()
	m.Inference.WithLabelValues("timeout").Inc()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Contains(t, string(body), "lmrelay_messages_received_total 1")
	assert.Contains(t, string(body), `lmrelay_commands_total{command="clear"} 1`)
	assert.Contains(t, string(body), `lmrelay_inference_requests_total{class="timeout"} 1`)
	assert.Contains(t, string(body), "lmrelay_tracked_users 3")
}

func TestCounters(t *testing.T) {
	m := New(func() int { return 0 })
	m.RepliesSent.Add(2)

	assert.InDelta(t, 2, testutil.ToFloat64(m.RepliesSent), 1e-9)
	assert.InDelta(t, 0, testutil.ToFloat64(m.HandlerFailures), 1e-9)
}
