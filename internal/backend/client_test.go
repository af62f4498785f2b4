package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"navconsole/internal/reconcile"
)

func newTestClient(t *testing.T, handler http.Handler, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	opts = append([]Option{WithRetry(2, time.Millisecond)}, opts...)
	client, err := NewClient(server.URL, opts...)
	require.NoError(t, err)
	return client
}

func TestNewClientValidatesURL(t *testing.T) {
	for _, raw := range []string{"", "localhost:23008", "ftp://host", "http://"} {
		_, err := NewClient(raw)
		assert.Errorf(t, err, "expected error for %q", raw)
	}
	c, err := NewClient("http://localhost:23008/")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:23008", c.BaseURL())
}

func TestCreateServerSendsRequestID(t *testing.T) {
	var got CreateServerRequest
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/servers", r.URL.Path)
		assert.Equal(t, "CLI", r.Header.Get(ClientHeader))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"status":"creating","id":"abc"}`))
	}), WithToken("tok"))

	accepted, err := client.CreateServer(context.Background(), CreateServerRequest{
		Name: "survival", Version: "1.21.1", Loader: "paper", RAM: 4096, RequestID: "abc",
	})
	require.NoError(t, err)
	assert.Equal(t, "creating", accepted.Status)
	assert.Equal(t, "abc", accepted.ID)
	assert.Equal(t, "abc", got.RequestID)
	assert.Equal(t, 4096, got.RAM)
}

func TestCreateIsNotRetried(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "disk full", http.StatusInternalServerError)
	}))

	_, err := client.CreateBackup(context.Background(), "srv-1", CreateBackupRequest{RequestID: "bk"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "error: disk full", apiErr.Error())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestListServersRetriesServerErrors(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[{"id":"s1","name":"lobby","version":"1.20.4","loader":"vanilla","port":25565,"ram":2048,"status":"RUNNING"}]`))
	}))

	servers, err := client.ListServers(context.Background())
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, "lobby", servers[0].Name)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestAPIErrorWithoutBody(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := client.ListBackups(context.Background())
	require.Error(t, err)
	assert.Equal(t, "API error (403)", err.Error())
}

func TestCancelEndpoints(t *testing.T) {
	var paths []string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		paths = append(paths, r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"cancelled"}`))
	}))
	gw := NewGateway(client)

	require.NoError(t, gw.CancelCreation(context.Background(), reconcile.KindBackup, "bk1"))
	require.NoError(t, gw.CancelCreation(context.Background(), reconcile.KindServer, "abc"))
	assert.Equal(t, []string{"/backups/progress/bk1", "/servers/progress/abc"}, paths)
}

func TestServerCancelWithoutRouteIsIgnored(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	gw := NewGateway(client)

	require.NoError(t, gw.CancelCreation(context.Background(), reconcile.KindServer, "abc"))

	err := gw.CancelCreation(context.Background(), reconcile.KindBackup, "bk1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestProgressURLs(t *testing.T) {
	c, err := NewClient("https://panel.example.com/api", WithToken("t k"))
	require.NoError(t, err)

	ws, err := c.ProgressURL("abc")
	require.NoError(t, err)
	assert.Equal(t, "wss://panel.example.com/api/ws/progress/abc?token=t+k", ws)

	sse, err := c.ProgressStreamURL("abc")
	require.NoError(t, err)
	assert.Equal(t, "https://panel.example.com/api/events/progress/abc", sse)

	plain, err := NewClient("http://localhost:23008")
	require.NoError(t, err)
	ws, err = plain.ProgressURL("x1")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:23008/ws/progress/x1", ws)
}

func TestGatewayCreate(t *testing.T) {
	var bodies []map[string]interface{}
	var paths []string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		bodies = append(bodies, body)
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusAccepted)
	}))
	gw := NewGateway(client)
	ctx := context.Background()

	require.NoError(t, gw.Create(ctx, reconcile.KindServer, "abc", "survival",
		map[string]string{AttrLoader: "paper", AttrVersion: "1.21.1", AttrRAM: "4096"}))
	require.NoError(t, gw.Create(ctx, reconcile.KindBackup, "bk1", "nightly",
		map[string]string{AttrServerID: "srv-1"}))

	assert.Equal(t, []string{"/servers", "/servers/srv-1/backup"}, paths)
	assert.Equal(t, "abc", bodies[0]["requestId"])
	assert.Equal(t, float64(4096), bodies[0]["ram"])
	assert.Equal(t, "bk1", bodies[1]["requestId"])
	assert.Equal(t, "nightly", bodies[1]["name"])

	assert.Error(t, gw.Create(ctx, reconcile.KindServer, "x", "bad", map[string]string{AttrRAM: "lots"}))
	assert.Error(t, gw.Create(ctx, reconcile.KindBackup, "x", "bad", nil))
	assert.Len(t, paths, 2, "invalid intents never reach the daemon")
}

func TestGatewaySnapshot(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/servers":
			_, _ = w.Write([]byte(`[{"id":"s1","name":"lobby","loader":"paper","version":"1.21.1","ram":1024,"port":25565,"status":"STOPPED"}]`))
		case "/backups":
			_, _ = w.Write([]byte(`[{"name":"lobby-20240501-100000.zip","size":42},{"name":"x.zip","size":1,"requestId":"bk1"}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	gw := NewGateway(client)

	servers, err := gw.Snapshot(context.Background(), reconcile.KindServer)
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, "s1", servers[0].ID)
	assert.Equal(t, "STOPPED", servers[0].Status)
	assert.Equal(t, "paper", servers[0].Attributes[AttrLoader])

	backups, err := gw.Snapshot(context.Background(), reconcile.KindBackup)
	require.NoError(t, err)
	require.Len(t, backups, 2)
	assert.Equal(t, "lobby-20240501-100000.zip", backups[0].ID)
	assert.Equal(t, "bk1", backups[1].ID)
	assert.Equal(t, "42", backups[0].Attributes[AttrSize])
}
