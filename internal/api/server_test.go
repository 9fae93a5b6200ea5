package api

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/fxcast/pkg/config"
	"github.com/wonny/fxcast/pkg/logger"
)

func TestServer_ServeUntilCancelled(t *testing.T) {
	cfg := &config.Config{Env: "test", API: config.APIConfig{Port: "0", RateLimit: 10, Burst: 20}}
	srv := New(cfg, logger.Nop(), newTestRouter(stubEvaluator{}, nil))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","service":"fxcast-api"}`, string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServer_ListenError(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()
	_, port, err := net.SplitHostPort(busy.Addr().String())
	require.NoError(t, err)

	srv := New(&config.Config{API: config.APIConfig{Port: port}}, logger.Nop(), http.NotFoundHandler())
	srv.httpServer.Addr = "127.0.0.1:" + port
	assert.Error(t, srv.Serve(context.Background()))
}
