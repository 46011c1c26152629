// SPDX-License-Identifier: GPL-3.0-or-later

package metrics_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rbmk-project/pacesim/metrics"
	"github.com/rbmk-project/pacesim/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	coll := metrics.New(reg)
	var hub trace.Hub
	unsubscribe := coll.Observe("n2-n4", &hub)

	hub.State.Emit(trace.StateEvent{State: "running"})
	hub.Tx.Emit(trace.TxEvent{Bytes: 1040, Seq: 1})
	hub.Tx.Emit(trace.TxEvent{Bytes: 960, Seq: 2})
	hub.Cwnd.Emit(trace.CwndEvent{Old: 536, New: 1072})
	hub.Drop.Emit(trace.DropEvent{Time: time.Second})
	hub.State.Emit(trace.StateEvent{State: "completed"})

	assert.Equal(t, 2.0, testutil.ToFloat64(coll.PacketsSent.WithLabelValues("n2-n4")))
	assert.Equal(t, 2000.0, testutil.ToFloat64(coll.BytesSent.WithLabelValues("n2-n4")))
	assert.Equal(t, 1.0, testutil.ToFloat64(coll.RxDrops.WithLabelValues("n2-n4")))
	assert.Equal(t, 1072.0, testutil.ToFloat64(coll.CongestionWindow.WithLabelValues("n2-n4")))
	assert.Equal(t, 3.0, testutil.ToFloat64(coll.State.WithLabelValues("n2-n4")))
	assert.Equal(t, 1.0, testutil.ToFloat64(coll.Transitions.WithLabelValues("n2-n4", "running")))

	unsubscribe()
	hub.Tx.Emit(trace.TxEvent{Bytes: 1040, Seq: 3})
	assert.Equal(t, 2.0, testutil.ToFloat64(coll.PacketsSent.WithLabelValues("n2-n4")))
	assert.Equal(t, 0, hub.Tx.Len())

	count, err := testutil.GatherAndCount(reg, "pacesim_packets_sent_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCollectorSessionsAreSeparate(t *testing.T) {
	coll := metrics.New(nil)
	var first, second trace.Hub
	coll.Observe("first", &first)
	coll.Observe("second", &second)

	first.Tx.Emit(trace.TxEvent{Bytes: 100})
	second.Tx.Emit(trace.TxEvent{Bytes: 200})
	second.Tx.Emit(trace.TxEvent{Bytes: 200})

	assert.Equal(t, 100.0, testutil.ToFloat64(coll.BytesSent.WithLabelValues("first")))
	assert.Equal(t, 400.0, testutil.ToFloat64(coll.BytesSent.WithLabelValues("second")))
}

func TestServerHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	coll := metrics.New(reg)
	coll.PacketsSent.WithLabelValues("n1-n0").Add(10)
	srv := metrics.NewServer("127.0.0.1:0", reg)

	t.Run("metrics", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `pacesim_packets_sent_total{session="n1-n0"} 10`)
	})

	t.Run("health", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "OK", rec.Body.String())
	})
}

func TestServerLifecycle(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := metrics.NewServer(listener.Addr().String(), prometheus.NewRegistry())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(listener) }()

	url := "http://" + listener.Addr().String() + "/health"
	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		body = string(data)
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "OK", body)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.NoError(t, <-done)
}

func TestServerInvalidAddress(t *testing.T) {
	srv := metrics.NewServer("not-an-address", nil)
	err := srv.Start()
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "metrics: invalid address"))
}
