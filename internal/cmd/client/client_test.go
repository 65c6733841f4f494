package client

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// fakeAPI is a minimal stand-in for the coedit HTTP API.
type fakeAPI struct {
	doc       string
	rev       int
	submitted []submitRequest
	paths     []string
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	serveDoc := func(w http.ResponseWriter, r *http.Request) {
		f.paths = append(f.paths, r.URL.EscapedPath())
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]any{
				"str": f.doc, "revision": f.rev, "base_revision": 0, "clients": map[string]any{},
			})
		case http.MethodPost:
			var req submitRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode submit: %v", err)
			}
			if req.Revision > f.rev {
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "revision ahead"})
				return
			}
			f.submitted = append(f.submitted, req)
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "1-0", "shard": 2})
		}
	}
	mux.HandleFunc("/v1/global", serveDoc)
	mux.HandleFunc("/v1/docs/", serveDoc)
	mux.HandleFunc("/v1/rooms/7/files", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"files": []map[string]any{{"path": "a.md", "size": 3}}})
	})
	mux.HandleFunc("/v1/shards", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"shards": []shardStatus{{Shard: 0, Checkpoint: "0"}, {Shard: 1, Checkpoint: "5-0"}}})
	})
	mux.HandleFunc("/v1/healthz", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	return mux
}

func startAPI(t *testing.T, f *fakeAPI) BaseURLFunc {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	return func() string { return srv.URL }
}

func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestDocURL(t *testing.T) {
	cases := []struct {
		room int
		path string
		want string
	}{
		{0, "", "http://h/v1/global"},
		{3, "a.md", "http://h/v1/docs/3/a.md"},
		{3, "/dir/my file.md", "http://h/v1/docs/3/dir/my%20file.md"},
	}
	for _, c := range cases {
		if got := docURL("http://h/", c.room, c.path); got != c.want {
			t.Fatalf("docURL(%d, %q) = %q, want %q", c.room, c.path, got, c.want)
		}
	}
}

func TestDocShow(t *testing.T) {
	f := &fakeAPI{doc: "hello", rev: 4}
	base := startAPI(t, f)

	out, err := run(t, NewRoot(base), "doc", "show", "--room", "7", "--path", "notes/a.md")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	var doc document
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if doc.Str != "hello" || doc.Revision != 4 {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if len(f.paths) != 1 || f.paths[0] != "/v1/docs/7/notes/a.md" {
		t.Fatalf("unexpected request paths: %v", f.paths)
	}

	out, err = run(t, NewRoot(base), "doc", "show", "--raw")
	if err != nil {
		t.Fatalf("execute raw: %v", err)
	}
	if out != "hello" {
		t.Fatalf("raw output = %q", out)
	}
	if f.paths[1] != "/v1/global" {
		t.Fatalf("expected global document, got %s", f.paths[1])
	}
}

func TestDocSubmit(t *testing.T) {
	f := &fakeAPI{doc: "hello", rev: 2}
	base := startAPI(t, f)

	out, err := run(t, NewRoot(base), "doc", "submit", "--revision", "1", "--op", `[5,"!"]`, "--client-id", "c1")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out, "queued id=1-0 shard=2") {
		t.Fatalf("unexpected output: %s", out)
	}
	if len(f.submitted) != 1 {
		t.Fatalf("expected one submission, got %d", len(f.submitted))
	}
	got := f.submitted[0]
	if got.ClientID != "c1" || got.Revision != 1 || string(got.Operation) != `[5,"!"]` || got.Selection != nil {
		t.Fatalf("unexpected submission: %+v", got)
	}
}

func TestDocSubmitGeneratesClientID(t *testing.T) {
	f := &fakeAPI{doc: "", rev: 0}
	base := startAPI(t, f)

	if _, err := run(t, NewRoot(base), "doc", "submit", "--op", `["x"]`); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if id := f.submitted[0].ClientID; !strings.HasPrefix(id, "cli-") {
		t.Fatalf("expected generated client id, got %q", id)
	}
}

func TestDocSubmitErrors(t *testing.T) {
	f := &fakeAPI{doc: "hello", rev: 0}
	base := startAPI(t, f)

	if _, err := run(t, NewRoot(base), "doc", "submit"); err == nil {
		t.Fatalf("expected error without --op")
	}
	if _, err := run(t, NewRoot(base), "doc", "submit", "--op", `[0]`); err == nil {
		t.Fatalf("expected error for an invalid operation")
	}
	if len(f.submitted) != 0 {
		t.Fatalf("invalid operations must not be sent")
	}
	_, err := run(t, NewRoot(base), "doc", "submit", "--revision", "9", "--op", `[5]`)
	if err == nil || !strings.Contains(err.Error(), "revision ahead") {
		t.Fatalf("expected server error message, got %v", err)
	}
}

func TestDocInsert(t *testing.T) {
	f := &fakeAPI{doc: "hello", rev: 3}
	base := startAPI(t, f)

	if _, err := run(t, NewRoot(base), "doc", "insert", "--text", "X", "--at", "2"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	got := f.submitted[0]
	if got.Revision != 3 {
		t.Fatalf("expected current revision 3, got %d", got.Revision)
	}
	if string(got.Operation) != `[2,"X",3]` {
		t.Fatalf("unexpected operation: %s", got.Operation)
	}
	if string(got.Selection) != `{"ranges":[{"anchor":3,"head":3}]}` {
		t.Fatalf("unexpected selection: %s", got.Selection)
	}

	if _, err := run(t, NewRoot(base), "doc", "insert", "--text", "!"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if string(f.submitted[1].Operation) != `[5,"!"]` {
		t.Fatalf("append should retain the whole document, got %s", f.submitted[1].Operation)
	}

	if _, err := run(t, NewRoot(base), "doc", "insert", "--text", "X", "--at", "6"); err == nil {
		t.Fatalf("expected error for an offset past the end")
	}
}

func TestDocFiles(t *testing.T) {
	base := startAPI(t, &fakeAPI{})
	out, err := run(t, NewRoot(base), "doc", "files", "--room", "7")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out, `"a.md"`) {
		t.Fatalf("expected file listing, got: %s", out)
	}
}

func TestShardStatus(t *testing.T) {
	base := startAPI(t, &fakeAPI{})
	out, err := run(t, NewRoot(base), "shard", "status")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out, "SHARD") || !strings.Contains(out, "5-0") {
		t.Fatalf("unexpected table: %s", out)
	}

	out, err = run(t, NewRoot(base), "shard", "status", "--json")
	if err != nil {
		t.Fatalf("execute json: %v", err)
	}
	var data struct {
		Shards []shardStatus `json:"shards"`
	}
	if err := json.Unmarshal([]byte(out), &data); err != nil || len(data.Shards) != 2 {
		t.Fatalf("unexpected json output %q: %v", out, err)
	}
}

func TestHealthHTTP(t *testing.T) {
	base := startAPI(t, &fakeAPI{})
	out, err := run(t, NewRoot(base), "health")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if strings.TrimSpace(out) != "http: ok" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestHealthGRPC(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := grpc.NewServer()
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	go func() { _ = srv.Serve(lis) }()
	defer srv.Stop()
	t.Setenv("COEDIT_GRPC", lis.Addr().String())

	out, err := run(t, NewRoot(func() string { return "http://unused" }), "health", "--grpc")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if strings.TrimSpace(out) != "grpc: SERVING" {
		t.Fatalf("unexpected output: %q", out)
	}
}
