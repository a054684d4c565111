package metrics

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)
	require.NotNil(t, m)

	_, err = New(reg)
	require.Error(t, err, "registering twice collides")
}

func TestRecorders(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	m.SetHeights(90, 100)
	m.AddBlocksWritten(3)
	m.RecordReorg(2)
	m.RecordTick(StatusSuccess, 0.2, nil)
	m.RecordTick(StatusError, 0.1, errors.New("node down"))
	m.RecordMempool(4, 5, 1)
	m.RecordNotification("redis", nil)
	m.RecordNotification("redis", errors.New("refused"))
	m.RecordRPCCall("CurrentHeight", nil, 0.01)

	assert.Equal(t, float64(90), testutil.ToFloat64(m.localTip))
	assert.Equal(t, float64(100), testutil.ToFloat64(m.liveHeight))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.blocksWritten))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.reorgs))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ticks.WithLabelValues(StatusError)))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.mempoolSize))
	assert.Equal(t, float64(5), testutil.ToFloat64(m.mempoolChanges.WithLabelValues("added")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.notifications.WithLabelValues("redis", StatusError)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.rpcCalls.WithLabelValues("CurrentHeight", StatusSuccess)))

	view := m.Status().View()
	assert.Equal(t, uint64(10), view.Lag)
	assert.Equal(t, 4, view.Mempool)
	assert.Equal(t, "node down", view.LastError)
	require.NotNil(t, view.LastTick)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SetHeights(1, 2)
		m.SetState("steady")
		m.RecordTick(StatusIdle, 0, nil)
		m.RecordReorg(1)
		m.RecordMempool(1, 1, 0)
		m.RecordNotification("ws", nil)
		m.RecordRPCCall("Account", nil, 0)
		m.AddBlocksWritten(1)
	})
	assert.Nil(t, m.Status())
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestRouter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)
	m.SetState("steady")
	m.SetHeights(5, 7)
	m.AddBlocksWritten(2)

	srv := httptest.NewServer(NewRouter(reg, m.Status()))
	defer srv.Close()

	code, body := get(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)

	code, body = get(t, srv.URL+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, strings.Contains(body, "nimiqx_sync_blocks_written_total 2"))

	code, body = get(t, srv.URL+"/status")
	assert.Equal(t, http.StatusOK, code)
	var view StatusView
	require.NoError(t, json.Unmarshal([]byte(body), &view))
	assert.Equal(t, "steady", view.State)
	assert.Equal(t, uint64(2), view.Lag)

	bare := httptest.NewServer(NewRouter(reg, nil))
	defer bare.Close()
	code, _ = get(t, bare.URL+"/status")
	assert.Equal(t, http.StatusNotFound, code)
}
