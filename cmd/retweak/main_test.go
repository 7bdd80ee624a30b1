package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/fatih/color"
	"github.com/gorilla/mux"
	"github.com/spf13/afero"
	"github.com/tidwall/gjson"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

type testServer struct {
	*httptest.Server
	hits int32
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{}

	r := mux.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			atomic.AddInt32(&ts.hits, 1)
			next.ServeHTTP(w, req)
		})
	})
	r.HandleFunc("/item", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("X-Backend", "test")
		switch id := req.URL.Query().Get("id"); id {
		case "1", "2":
			w.Write([]byte("found"))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte("missing " + id))
		}
	})
	r.HandleFunc("/only-get", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet && req.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Write([]byte("ok"))
	})
	r.HandleFunc("/host", func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte("host=" + req.Host + " foo=" + req.Header.Get("X-Foo")))
	})
	r.HandleFunc("/echo", func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		w.Write([]byte(req.Method + " " + string(body)))
	})

	ts.Server = httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts
}

func execute(t *testing.T, fs afero.Fs, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr, fs)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestTweakURL(t *testing.T) {
	srv := newTestServer(t)

	stdout, stderr, err := execute(t, afero.NewMemMapFs(), srv.URL+"/item?id=*", "-l", "1,2,3,4")
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, stderr)
	}

	for _, want := range []string{"Tweaking request url", "Sending 4 requests", "Done: 4 sent, 4 succeeded, 0 failed"} {
		if !strings.Contains(stderr, want) {
			t.Errorf("stderr missing %q:\n%s", want, stderr)
		}
	}

	entries := []string{
		`[REQUEST] "1"`,
		`  CODE   - 200`,
		`  HEADER > "x-backend: test"`,
		`  DATA   ~ found (SIZE:5B)`,
		`[REQUEST] "3"`,
		`  CODE   - 404`,
		`  DATA   ~ missing 3 (SIZE:9B)`,
		`[REQUEST] "4"`,
		`  DATA   ~ missing 4 (SIZE:9B)`,
	}
	for _, want := range entries {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, stdout)
		}
	}
	if strings.Contains(stdout, `[REQUEST] "2"`) {
		t.Errorf("request 2 adds nothing new and must not be reported:\n%s", stdout)
	}
	if strings.Count(stdout, "x-backend") != 1 {
		t.Errorf("repeated header reported twice:\n%s", stdout)
	}
	if srv.hits != 4 {
		t.Errorf("expected 4 requests, got %d", srv.hits)
	}
}

func TestQuietParallelWithOutput(t *testing.T) {
	srv := newTestServer(t)
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/lists/ids.txt", []byte("1\n\n 2 \n3\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	stdout, stderr, err := execute(t, fs, srv.URL+"/item?id=*", "-l", "@/lists/ids.txt", "-q", "-p", "-j", "-o", "/out/results.jsonl")
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, stderr)
	}
	if stderr != "" {
		t.Errorf("quiet run should not write to stderr:\n%s", stderr)
	}
	if !strings.Contains(stdout, "CODE   - 200") || !strings.Contains(stdout, "CODE   - 404") {
		t.Errorf("unexpected report:\n%s", stdout)
	}

	data, err := afero.ReadFile(fs, "/out/results.jsonl")
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected every response recorded, got %d lines:\n%s", len(lines), data)
	}
	statuses := map[string]int64{}
	for _, line := range lines {
		statuses[gjson.Get(line, "value").String()] = gjson.Get(line, "status_code").Int()
		if gjson.Get(line, "run_id").String() == "" {
			t.Errorf("record without run id: %s", line)
		}
	}
	if statuses["1"] != 200 || statuses["2"] != 200 || statuses["3"] != 404 {
		t.Errorf("unexpected recorded statuses %v", statuses)
	}
}

func TestTextOutputFile(t *testing.T) {
	srv := newTestServer(t)
	fs := afero.NewMemMapFs()

	_, stderr, err := execute(t, fs, srv.URL+"/item?id=*", "-l", "1,1", "-q", "-o", "/out.txt")
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, stderr)
	}

	data, err := afero.ReadFile(fs, "/out.txt")
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	if strings.Count(content, `[REQUEST] "1"`) != 2 || strings.Count(content, strings.Repeat("=", 60)) != 2 {
		t.Fatalf("expected two full text blocks:\n%s", content)
	}
	if !strings.Contains(content, "CODE - 200\n\n") || !strings.Contains(content, "x-backend: test") {
		t.Fatalf("unexpected text block:\n%s", content)
	}
}

func TestMethodsCommand(t *testing.T) {
	srv := newTestServer(t)

	stdout, stderr, err := execute(t, afero.NewMemMapFs(), "methods", srv.URL+"/only-get", "-l", "get,post,put", "-q")
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, stderr)
	}
	for _, want := range []string{`[REQUEST] "GET"`, `[REQUEST] "POST"`, "CODE   - 405", `HEADER > "allow: GET, HEAD"`} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, stdout)
		}
	}
	if strings.Contains(stdout, `[REQUEST] "PUT"`) {
		t.Errorf("PUT adds nothing new:\n%s", stdout)
	}
}

func TestMethodsBuiltinList(t *testing.T) {
	srv := newTestServer(t)

	_, stderr, err := execute(t, afero.NewMemMapFs(), "methods", srv.URL+"/only-get")
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, stderr)
	}
	if !strings.Contains(stderr, "Tweaking request method") {
		t.Errorf("unexpected preamble:\n%s", stderr)
	}
	if srv.hits < 10 {
		t.Errorf("expected the bundled method list to be sent, got %d requests", srv.hits)
	}
}

func TestHostsCommand(t *testing.T) {
	srv := newTestServer(t)

	stdout, stderr, err := execute(t, afero.NewMemMapFs(), "hosts", srv.URL+"/host", "-H", "x-foo: bar", "-l", "a.test,b.test", "-q")
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, stderr)
	}
	for _, want := range []string{"host=a.test foo=bar", "host=b.test foo=bar"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, stdout)
		}
	}
}

func TestHostsCommandWithMarkerInOtherHeader(t *testing.T) {
	srv := newTestServer(t)

	stdout, stderr, err := execute(t, afero.NewMemMapFs(), "hosts", srv.URL+"/host", "-H", "accept: */*", "-l", "a.test,b.test", "-q")
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, stderr)
	}
	for _, want := range []string{"host=a.test", "host=b.test"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, stdout)
		}
	}
}

func TestTweakData(t *testing.T) {
	srv := newTestServer(t)

	stdout, stderr, err := execute(t, afero.NewMemMapFs(), srv.URL+"/echo", "-d", `{"id":*}`, "-l", "7,8", "-q")
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, stderr)
	}
	for _, want := range []string{`DATA   ~ POST {"id":7}`, `DATA   ~ POST {"id":8}`} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, stdout)
		}
	}
}

func TestUnknownMethodInListFailsUpfront(t *testing.T) {
	srv := newTestServer(t)

	_, _, err := execute(t, afero.NewMemMapFs(), srv.URL+"/only-get", "-t", "method", "-l", "post,put,pop,delete", "-q")
	if err == nil || !strings.Contains(err.Error(), "POP") {
		t.Fatalf("expected unrecognized method error naming POP, got %v", err)
	}
	if srv.hits != 0 {
		t.Fatalf("no request may be sent, got %d", srv.hits)
	}
}

func TestFatalErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "missing marker", args: []string{"http://example.test/", "-l", "1"}, want: "specify * where you would like to tweak the URL"},
		{name: "missing list", args: []string{"http://example.test/?id=*"}, want: "no list of values"},
		{name: "bad tweak", args: []string{"http://example.test/?id=*", "-l", "1", "-t", "body"}, want: "expected tweak target"},
		{name: "bad method", args: []string{"http://example.test/?id=*", "-l", "1", "-X", "fetch"}, want: "unrecognized HTTP method: FETCH"},
		{name: "bad max data", args: []string{"http://example.test/?id=*", "-l", "1", "-m", "0.5B"}, want: ">= 1B"},
		{name: "no headers", args: []string{"http://example.test/", "-l", "1", "-t", "header"}, want: "no headers provided"},
		{name: "missing file", args: []string{"http://example.test/?id=*", "-l", "@/nope.txt"}, want: "read failed"},
		{name: "no url", args: []string{}, want: "accepts 1 arg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, afero.NewMemMapFs(), tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestConnectionErrorsAreIsolated(t *testing.T) {
	srv := newTestServer(t)
	dead := httptest.NewServer(http.NotFoundHandler())
	deadHost := strings.TrimPrefix(dead.URL, "http://")
	dead.Close()

	liveHost := strings.TrimPrefix(srv.URL, "http://")
	stdout, stderr, err := execute(t, afero.NewMemMapFs(), "http://*/item?id=1", "-l", liveHost+","+deadHost+","+liveHost)
	if err != nil {
		t.Fatalf("run should complete, got %v", err)
	}
	if strings.Count(stderr, "[!] ERROR:") != 1 {
		t.Errorf("expected one isolated error line:\n%s", stderr)
	}
	if !strings.Contains(stderr, "2 succeeded, 1 failed") {
		t.Errorf("unexpected summary:\n%s", stderr)
	}
	if !strings.Contains(stdout, "CODE   - 200") {
		t.Errorf("successful responses must still be reported:\n%s", stdout)
	}
}

func TestStoreAndHistory(t *testing.T) {
	srv := newTestServer(t)
	dbPath := filepath.Join(t.TempDir(), "results.db")

	if _, stderr, err := execute(t, afero.NewMemMapFs(), srv.URL+"/item?id=*", "-l", "1,3", "-q", "--store", dbPath); err != nil {
		t.Fatalf("run failed: %v\n%s", err, stderr)
	}

	stdout, stderr, err := execute(t, afero.NewMemMapFs(), "history", "--store", dbPath, "--status", "404", "-j")
	if err != nil {
		t.Fatalf("history failed: %v\n%s", err, stderr)
	}
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one 404 result, got:\n%s", stdout)
	}
	if gjson.Get(lines[0], "value").String() != "3" || gjson.Get(lines[0], "response.body").String() != "missing 3" {
		t.Fatalf("unexpected stored result %s", lines[0])
	}

	stdout, _, err = execute(t, afero.NewMemMapFs(), "history", "--store", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "2 of 2 result(s)") || !strings.Contains(stdout, `"3"`) {
		t.Fatalf("unexpected history listing:\n%s", stdout)
	}

	stdout, _, err = execute(t, afero.NewMemMapFs(), "history", "--store", dbPath, "--runs")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "2 request(s), 0 failed") {
		t.Fatalf("unexpected runs listing:\n%s", stdout)
	}
}

func TestHistoryRequiresStore(t *testing.T) {
	if _, _, err := execute(t, afero.NewMemMapFs(), "history"); err == nil {
		t.Fatal("expected error without --store")
	}
}

func TestConfigCommand(t *testing.T) {
	stdout, _, err := execute(t, afero.NewMemMapFs(), "config", "-p", "-m", "2KB", "-X", "put")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"mode: concurrent", "max_data: 2KB", "method: put"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("config dump missing %q:\n%s", want, stdout)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := execute(t, afero.NewMemMapFs(), "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "retweak version dev") {
		t.Fatalf("unexpected version output %q", stdout)
	}
}

func TestBannerLines(t *testing.T) {
	lines := bannerLines(0)
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(lines))
	}
	width := len([]rune(lines[0]))
	for _, line := range lines {
		if len([]rune(line)) != width {
			t.Fatalf("banner lines have uneven width:\n%s", strings.Join(lines, "\n"))
		}
	}

	narrow := bannerLines(20)
	if got := len([]rune(narrow[1])); got != 20 {
		t.Fatalf("expected banner clipped to 20 columns, got %d", got)
	}
}
