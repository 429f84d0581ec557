package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHubServer(t *testing.T, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	srv := newTestServer(t, opts)

	ctx, cancel := context.WithCancel(context.Background())
	go srv.Hub().Run(ctx)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		cancel()
		ts.Close()
	})
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + ReloadPath
	return websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: header})
}

func TestReloadReachesClients(t *testing.T) {
	srv, ts := startHubServer(t, Options{})

	var conns []*websocket.Conn
	for range 2 {
		conn, _, err := dial(t, ts, ts.URL)
		require.NoError(t, err)
		defer conn.Close(websocket.StatusNormalClosure, "")
		conns = append(conns, conn)
	}

	require.Eventually(t, func() bool { return srv.Hub().ClientCount() == 2 },
		2*time.Second, 10*time.Millisecond)

	srv.Reload("docs/index.rst")

	for _, conn := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		typ, data, err := conn.Read(ctx)
		cancel()
		require.NoError(t, err)
		assert.Equal(t, websocket.MessageText, typ)

		var msg ReloadMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, "reload", msg.Type)
		assert.Equal(t, "docs/index.rst", msg.Path)
		assert.False(t, msg.Timestamp.IsZero())
	}
}

func TestClientDisconnectUnregisters(t *testing.T) {
	srv, ts := startHubServer(t, Options{})

	conn, _, err := dial(t, ts, "")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return srv.Hub().ClientCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	conn.Close(websocket.StatusNormalClosure, "")
	require.Eventually(t, func() bool { return srv.Hub().ClientCount() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestRejectsForeignOrigin(t *testing.T) {
	srv, ts := startHubServer(t, Options{})

	_, resp, err := dial(t, ts, "http://evil.example.com")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Zero(t, srv.Hub().ClientCount())
}

func TestCheckOrigin(t *testing.T) {
	srv := newTestServer(t, Options{
		Host:           "0.0.0.0",
		Port:           8000,
		AllowedOrigins: []string{"https://docs.example.com", "preview.internal:9000"},
	})

	tests := []struct {
		name   string
		origin string
		host   string
		want   bool
	}{
		{"no origin", "", "127.0.0.1:8000", true},
		{"same origin", "http://192.168.1.5:8000", "192.168.1.5:8000", true},
		{"localhost alias", "http://localhost:8000", "127.0.0.1:8000", true},
		{"loopback alias", "http://127.0.0.1:8000", "localhost:8000", true},
		{"ipv6 loopback", "http://[::1]:8000", "localhost:8000", true},
		{"configured origin", "https://docs.example.com", "127.0.0.1:8000", true},
		{"configured host", "http://preview.internal:9000", "127.0.0.1:8000", true},
		{"other port", "http://localhost:9999", "127.0.0.1:8000", false},
		{"foreign host", "http://evil.example.com", "127.0.0.1:8000", false},
		{"bad scheme", "file://localhost:8000", "127.0.0.1:8000", false},
		{"garbage", "://", "127.0.0.1:8000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, ReloadPath, nil)
			req.Host = tt.host
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			_, ok := srv.checkOrigin(req)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestHubCloseReleasesBroadcast(t *testing.T) {
	hub := NewHub(nil)
	hub.Close()
	hub.Close()

	done := make(chan struct{})
	go func() {
		for range sendBuffer + 1 {
			hub.Broadcast(ReloadMessage{Type: "reload"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked after Close")
	}
}

func TestHubShutdownClosesClients(t *testing.T) {
	srv, ts := startHubServer(t, Options{})

	conn, _, err := dial(t, ts, ts.URL)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return srv.Hub().ClientCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	srv.Hub().Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err = conn.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
}
