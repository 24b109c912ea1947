package eventpush

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokmz/eventpush/pkg/auth"
	"github.com/tokmz/eventpush/pkg/config"
	"github.com/tokmz/eventpush/pkg/etag"
	"github.com/tokmz/eventpush/pkg/logger"
	"github.com/tokmz/eventpush/pkg/ws"
)

const testSecret = "test-secret"

type testApp struct {
	app    *App
	server *httptest.Server
	issuer *auth.Issuer
}

func testSettings(t *testing.T) *config.Settings {
	t.Helper()
	s := config.DefaultSettings()
	s.Server.Mode = "test"
	s.Server.RateLimit.Enabled = false
	s.WebSocket.HeartbeatInterval = time.Hour
	s.Auth.Token.Secret = testSecret
	s.Auth.Resources.Databases = []string{"db1"}
	s.Log.Console = false
	s.Log.File = filepath.Join(t.TempDir(), "eventpush.log")
	return s
}

func newTestApp(t *testing.T, s *config.Settings) *testApp {
	t.Helper()
	app, err := NewApp(context.Background(), s)
	require.NoError(t, err)

	issuer, err := auth.NewIssuer(s.Auth.Token)
	require.NoError(t, err)

	srv := httptest.NewServer(app.Engine().Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = app.Engine().Shutdown(ctx)
		srv.Close()
		_ = app.Close(ctx)
	})
	return &testApp{app: app, server: srv, issuer: issuer}
}

func (a *testApp) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(a.server.URL, "http") + path
}

func (a *testApp) token(t *testing.T, admin bool, resources ...string) string {
	t.Helper()
	tok, _, err := a.issuer.Issue("tester", resources, admin)
	require.NoError(t, err)
	return tok
}

func (a *testApp) get(t *testing.T, path string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(a.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(body, &out))
	return resp.StatusCode, out
}

func TestAppHealthz(t *testing.T) {
	a := newTestApp(t, testSettings(t))

	status, body := a.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, status)
	data := body["data"].(map[string]any)
	assert.Equal(t, "ok", data["status"])
	assert.EqualValues(t, 0, data["connections"])
}

func TestAppStats(t *testing.T) {
	a := newTestApp(t, testSettings(t))

	_, resp, err := websocket.DefaultDialer.Dial(a.wsURL("/databases/db1/changes/websocket"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	status, body := a.get(t, "/stats")
	assert.Equal(t, http.StatusOK, status)
	data := body["data"].(map[string]any)
	assert.EqualValues(t, 1, data["rejected"].(map[string]any)["401"])
}

func TestAppUnknownEndpoint(t *testing.T) {
	a := newTestApp(t, testSettings(t))

	status, body := a.get(t, "/databases/db1/nothing/here")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "unknown endpoint", body["Error"])
}

func TestAppRoutes(t *testing.T) {
	a := newTestApp(t, testSettings(t))

	paths := make(map[string]bool)
	for _, r := range a.app.Engine().Routes() {
		paths[r.Path] = true
	}
	assert.True(t, paths["/healthz"])
	assert.True(t, paths["/stats"])
	assert.True(t, paths["/changes/websocket"])
	assert.True(t, paths["/databases/:name/changes/websocket"])
	assert.True(t, paths["/fs/:name/traffic-watch/websocket"])
	assert.True(t, paths["/counters/:name/websocket/validate"])
	assert.True(t, paths["/admin/logs/events"])
}

func TestAppChangesWithSingleUseToken(t *testing.T) {
	a := newTestApp(t, testSettings(t))
	tok := a.token(t, false, "db1")
	url := a.wsURL("/databases/db1/changes/websocket?id=sub-1&singleUseAuthToken=" + tok)

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	require.Eventually(t, func() bool {
		return a.app.registry.Count(ws.GroupChanges("db1")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	n := a.app.Publisher().PublishChange("db1", ws.ChangeNotification{
		Type: ws.ChangePut,
		ID:   "users/1",
		Etag: etag.New(1, 7),
	})
	assert.Equal(t, 1, n)

	var got map[string]any
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, ws.TypeChangeNotification, got["Type"])
	value := got["Value"].(map[string]any)
	assert.Equal(t, "users/1", value["Id"])
	assert.Equal(t, "Put", value["Type"])

	// 同一令牌不能再次使用
	_, resp, err = websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAppRejections(t *testing.T) {
	a := newTestApp(t, testSettings(t))

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"missing token", "/databases/db1/changes/websocket", http.StatusUnauthorized},
		{"bad token", "/databases/db1/changes/websocket?singleUseAuthToken=garbage", http.StatusForbidden},
		{"not granted", "/databases/db1/changes/websocket?singleUseAuthToken=" + a.token(t, false, "other"), http.StatusForbidden},
		{"unknown resource", "/databases/nope/changes/websocket?singleUseAuthToken=" + a.token(t, false, "*"), http.StatusServiceUnavailable},
		{"traffic needs admin", "/traffic-watch/websocket?singleUseAuthToken=" + a.token(t, false, "*"), http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(a.wsURL(tt.path), nil)
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestAppValidateEndpoint(t *testing.T) {
	a := newTestApp(t, testSettings(t))

	conn, _, err := websocket.DefaultDialer.Dial(a.wsURL("/websocket/validate?singleUseAuthToken="+a.token(t, false, "*")), nil)
	require.NoError(t, err)
	defer conn.Close()

	var got map[string]any
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&got))
	assert.EqualValues(t, http.StatusOK, got["StatusCode"])
}

func TestAppAdminLogs(t *testing.T) {
	a := newTestApp(t, testSettings(t))

	conn, _, err := websocket.DefaultDialer.Dial(a.wsURL("/admin/logs/events?singleUseAuthToken="+a.token(t, true)), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return a.app.registry.Count(ws.GroupAdminLogs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	a.app.Logger().Info("hello admin")

	// 连接本身也会产生日志，读到目标记录为止
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var got map[string]any
		require.NoError(t, conn.ReadJSON(&got))
		if got["Message"] == "hello admin" {
			assert.Equal(t, "Info", got["Level"])
			assert.Contains(t, got, "TimeStamp")
			return
		}
	}
}

func TestAppShutdown(t *testing.T) {
	a := newTestApp(t, testSettings(t))

	conn, _, err := websocket.DefaultDialer.Dial(a.wsURL("/databases/db1/changes/websocket?singleUseAuthToken="+a.token(t, false, "db1")), nil)
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, a.app.Engine().Shutdown(ctx))

	status, body := a.get(t, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "shutting_down", body["data"].(map[string]any)["status"])

	// 传输被取消后连接关闭
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			var netErr interface{ Timeout() bool }
			if errors.As(err, &netErr) {
				assert.False(t, netErr.Timeout(), "connection was not closed")
			}
			break
		}
	}
	assert.Equal(t, 0, a.app.manager.ConnectionCount())
}

func TestAppAnonymous(t *testing.T) {
	s := testSettings(t)
	s.Auth.AllowAnonymous = true
	s.Auth.Token.Secret = ""
	a := newTestApp(t, s)

	conn, _, err := websocket.DefaultDialer.Dial(a.wsURL("/databases/db1/changes/websocket"), nil)
	require.NoError(t, err)
	conn.Close()

	// 管理端点不允许匿名
	_, resp, err := websocket.DefaultDialer.Dial(a.wsURL("/admin/logs/events"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAppRateLimit(t *testing.T) {
	s := testSettings(t)
	s.Server.RateLimit.Enabled = true
	s.Server.RateLimit.RequestsPerSecond = 0.001
	s.Server.RateLimit.Burst = 1
	a := newTestApp(t, s)

	_, resp, _ := websocket.DefaultDialer.Dial(a.wsURL("/changes/websocket"), nil)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, _ = websocket.DefaultDialer.Dial(a.wsURL("/changes/websocket"), nil)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// 健康检查不限流
	status, _ := a.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, status)
}

func TestNewAppInvalidSettings(t *testing.T) {
	s := testSettings(t)
	s.Auth.Token.Secret = ""
	_, err := NewApp(context.Background(), s)
	require.Error(t, err)
}

func TestNewAppRedisStoreUnavailable(t *testing.T) {
	s := testSettings(t)
	s.Auth.Store.Type = "redis"
	s.Auth.Store.Redis.Addr = "127.0.0.1:1"
	s.Auth.Store.Redis.MaxRetries = -1
	_, err := NewApp(context.Background(), s)
	require.Error(t, err)
}

func TestAppReload(t *testing.T) {
	a := newTestApp(t, testSettings(t))
	assert.Equal(t, logger.InfoLevel, a.app.Logger().Level())

	s := testSettings(t)
	s.Log.Level = "debug"
	a.app.Reload(s)
	assert.Equal(t, logger.DebugLevel, a.app.Logger().Level())

	s.Log.Level = "loud"
	a.app.Reload(s)
	assert.Equal(t, logger.DebugLevel, a.app.Logger().Level())
}

func TestCatalogFromSettings(t *testing.T) {
	c := CatalogFromSettings(config.ResourceSettings{
		Databases:   []string{"db1", "db2"},
		FileSystems: []string{"files"},
		Counters:    []string{"hits"},
	})
	assert.Equal(t, 4, c.Len())

	r, err := c.Resolve(context.Background(), ws.KindFileSystem, "FILES")
	require.NoError(t, err)
	assert.Equal(t, "files", r.Name())

	_, err = c.Resolve(context.Background(), ws.KindDatabase, "files")
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	s := config.DefaultSettings().Log
	s.Console = false
	s.File = filepath.Join(t.TempDir(), "x.log")

	log, err := NewLogger(s, nil)
	require.NoError(t, err)
	log.Info("ok")

	s.Format = "xml"
	_, err = NewLogger(s, nil)
	assert.Error(t, err)

	s.Format = "json"
	s.Level = "loud"
	_, err = NewLogger(s, nil)
	assert.Error(t, err)
}

func TestWSBase(t *testing.T) {
	assert.Equal(t, "ws://127.0.0.1:8080", wsBase(":8080"))
	assert.Equal(t, "ws://127.0.0.1:9000", wsBase("0.0.0.0:9000"))
	assert.Equal(t, "ws://push.local:80", wsBase("push.local:80"))
	assert.Equal(t, "ws://[::1]:8080", wsBase("[::1]:8080"))
}
