package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	cfgpkg "github.com/rzbill/coedit/internal/config"
	"github.com/rzbill/coedit/internal/metrics"
	"github.com/rzbill/coedit/internal/runtime"
	pebblestore "github.com/rzbill/coedit/internal/storage/pebble"
	logpkg "github.com/rzbill/coedit/pkg/log"
)

type testServer struct {
	*httptest.Server
	rt *runtime.Runtime
}

func newTestServer(t *testing.T, mutate func(*cfgpkg.Config)) *testServer {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.StreamBlock = cfgpkg.Duration(20 * time.Millisecond)
	if mutate != nil {
		mutate(&cfg)
	}
	reg := prometheus.NewRegistry()
	rt, err := runtime.Open(context.Background(), runtime.Options{
		DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeNever, Config: cfg, Metrics: metrics.New(reg),
	})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	svc, err := rt.Collab()
	if err != nil {
		t.Fatalf("collab: %v", err)
	}
	pool, err := rt.Workers(nil)
	if err != nil {
		t.Fatalf("workers: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = pool.Run(ctx)
	}()
	s := New(rt, svc, logpkg.NewNopLogger(), Options{Gatherer: reg})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
		<-done
		_ = rt.Close()
	})
	return &testServer{Server: ts, rt: rt}
}

func (s *testServer) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	out := map[string]any{}
	_ = json.Unmarshal(raw, &out)
	return resp.StatusCode, out
}

func (s *testServer) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev map[string]any
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return ev
}

func TestHealthHandler(t *testing.T) {
	s := newTestServer(t, nil)
	code, body := s.do(t, http.MethodGet, "/v1/healthz", "")
	if code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("status: %d %v", code, body)
	}
}

func TestSubmitAndRead(t *testing.T) {
	s := newTestServer(t, nil)
	code, body := s.do(t, http.MethodGet, "/v1/docs/1/a.txt", "")
	if code != http.StatusOK || body["str"] != "" || body["revision"] != 0.0 {
		t.Fatalf("get: %d %v", code, body)
	}
	code, body = s.do(t, http.MethodPost, "/v1/docs/1/a.txt", `{"client_id":"c1","revision":0,"operation":["hello"]}`)
	if code != http.StatusAccepted || body["id"] == "" {
		t.Fatalf("submit: %d %v", code, body)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		_, body = s.do(t, http.MethodGet, "/v1/docs/1/a.txt", "")
		if body["str"] == "hello" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("edit never applied: %v", body)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if body["revision"] != 1.0 {
		t.Fatalf("revision: %v", body["revision"])
	}

	code, body = s.do(t, http.MethodGet, "/v1/rooms/1/files", "")
	if code != http.StatusOK {
		t.Fatalf("files: %d", code)
	}
	files, _ := body["files"].([]any)
	if len(files) != 1 {
		t.Fatalf("files: %v", body)
	}
}

func TestSubmitErrors(t *testing.T) {
	s := newTestServer(t, func(c *cfgpkg.Config) { c.EditFilter = `!inserted.contains("x")` })
	cases := []struct {
		path, body string
		want       int
	}{
		{"/v1/global", `not json`, http.StatusBadRequest},
		{"/v1/global", `{"client_id":"c1","operation":["x"]}`, http.StatusUnprocessableEntity},
		{"/v1/global", `{"client_id":"c1","operation":[0]}`, http.StatusUnprocessableEntity},
		{"/v1/global", `{"operation":["ok"]}`, http.StatusUnprocessableEntity},
		{"/v1/docs/0/a.txt", `{"client_id":"c1","operation":["ok"]}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		if code, body := s.do(t, http.MethodPost, tc.path, tc.body); code != tc.want {
			t.Fatalf("POST %s %s: got %d want %d (%v)", tc.path, tc.body, code, tc.want, body)
		}
	}
}

func TestShardsAndMetrics(t *testing.T) {
	s := newTestServer(t, func(c *cfgpkg.Config) { c.Shards = 4 })
	code, body := s.do(t, http.MethodGet, "/v1/shards", "")
	shards, _ := body["shards"].([]any)
	if code != http.StatusOK || len(shards) != 4 {
		t.Fatalf("shards: %d %v", code, body)
	}

	s.dial(t, "/v1/ws/global")
	resp, err := http.Get(s.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(raw), "coedit_http_websocket_connections") {
		t.Fatalf("metrics: %d %s", resp.StatusCode, raw)
	}
}

func TestWebSocketSession(t *testing.T) {
	s := newTestServer(t, nil)
	alice := s.dial(t, "/v1/ws/7/notes.md?client_id=alice")
	doc := readEvent(t, alice)
	if doc["type"] != "doc" || doc["client_id"] != "alice" || doc["revision"] != 0.0 {
		t.Fatalf("alice doc: %v", doc)
	}
	bob := s.dial(t, "/v1/ws/7/notes.md?client_id=bob")
	doc = readEvent(t, bob)
	clients, _ := doc["clients"].(map[string]any)
	if _, ok := clients["alice"]; !ok {
		t.Fatalf("bob does not see alice: %v", doc)
	}

	if err := alice.WriteJSON(map[string]any{"action": "operation", "revision": 0, "operation": []any{"hi"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ev := readEvent(t, alice); ev["type"] != "ack" {
		t.Fatalf("alice expected ack, got %v", ev)
	}
	ev := readEvent(t, bob)
	if ev["type"] != "operation" || ev["client_id"] != "alice" {
		t.Fatalf("bob expected operation, got %v", ev)
	}

	if err := bob.WriteJSON(map[string]any{"action": "set_name", "name": " Bob "}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ev := readEvent(t, alice); ev["type"] != "set_name" || ev["name"] != "Bob" {
		t.Fatalf("alice expected set_name, got %v", ev)
	}
	if ev := readEvent(t, bob); ev["type"] != "set_name" {
		t.Fatalf("bob expected set_name, got %v", ev)
	}

	if err := bob.WriteJSON(map[string]any{"action": "resync"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ev := readEvent(t, bob); ev["type"] != "doc" || ev["str"] != "hi" || ev["revision"] != 1.0 {
		t.Fatalf("bob expected doc, got %v", ev)
	}

	if err := bob.WriteJSON(map[string]any{"action": "dance"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ev := readEvent(t, bob); ev["type"] != "error" {
		t.Fatalf("bob expected error, got %v", ev)
	}

	_ = bob.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if ev := readEvent(t, alice); ev["type"] != "client_left" || ev["client_id"] != "bob" {
		t.Fatalf("alice expected client_left, got %v", ev)
	}
}

func TestWebSocketRejectedOperationResyncs(t *testing.T) {
	s := newTestServer(t, nil)
	conn := s.dial(t, "/v1/ws/global?client_id=c")
	readEvent(t, conn)
	if err := conn.WriteJSON(map[string]any{"action": "operation", "revision": -3, "operation": []any{"x"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ev := readEvent(t, conn); ev["type"] != "error" {
		t.Fatalf("expected error, got %v", ev)
	}
	if ev := readEvent(t, conn); ev["type"] != "doc" {
		t.Fatalf("expected doc, got %v", ev)
	}
}
