package report

import (
	"bytes"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/funnyzak/retweak/internal/dispatch"
	"github.com/funnyzak/retweak/pkg/request"
)

type recordingSink struct {
	logs   []string
	warns  []string
	errors []string
}

func (s *recordingSink) Log(line string)   { s.logs = append(s.logs, line) }
func (s *recordingSink) Warn(line string)  { s.warns = append(s.warns, line) }
func (s *recordingSink) Error(line string) { s.errors = append(s.errors, line) }

func outcome(index int, value, method string, resp *request.Response) *dispatch.Outcome {
	u, _ := url.Parse("http://foobar.test/?id=" + value)
	return &dispatch.Outcome{
		Index:    index,
		Value:    value,
		Request:  &request.Request{URL: u, Method: method},
		Response: resp,
	}
}

func response(status int, body string, hdrs map[string][]string) *request.Response {
	return request.NewResponse(status, hdrs, []byte(body), "text/plain")
}

func TestReporterFirstResponse(t *testing.T) {
	sink := &recordingSink{}
	r := NewReporter(sink, Options{MaxData: 1000})

	r.Handle(outcome(1, "1", "GET", response(200, "hello\nworld", map[string][]string{
		"Content-Type": {"text/plain"},
		"X-Foo":        {"bar"},
	})))

	if len(sink.logs) != 1 {
		t.Fatalf("expected one entry, got %d", len(sink.logs))
	}
	want := strings.Join([]string{
		`[REQUEST] "1"`,
		`  CODE   - 200`,
		`  HEADER > "content-type: text/plain"`,
		`  HEADER > "x-foo: bar"`,
		`  DATA   ~ helloworld (SIZE:11B)`,
	}, "\n")
	if sink.logs[0] != want {
		t.Fatalf("unexpected entry:\n%s\nwant:\n%s", sink.logs[0], want)
	}
}

func TestReporterRepeatedBody(t *testing.T) {
	sink := &recordingSink{}
	r := NewReporter(sink, Options{MaxData: 1000})

	r.Handle(outcome(1, "a", "GET", response(200, "same body", nil)))
	r.Handle(outcome(2, "b", "GET", response(200, "same body", nil)))

	if len(sink.logs) != 1 {
		t.Fatalf("expected the repeated response to be suppressed, got %v", sink.logs)
	}
	if got := strings.Count(strings.Join(sink.logs, "\n"), "DATA   ~"); got != 1 {
		t.Fatalf("expected one body preview, got %d", got)
	}
}

func TestReporterIsMonotonic(t *testing.T) {
	sink := &recordingSink{}
	r := NewReporter(sink, Options{MaxData: 1000})

	responses := []*request.Response{
		response(200, "a", map[string][]string{"Server": {"nginx"}}),
		response(404, "a", map[string][]string{"Server": {"nginx"}}),
		response(200, "b", map[string][]string{"Server": {"apache"}}),
		response(404, "b", map[string][]string{"Server": {"nginx"}}),
		response(200, "a", map[string][]string{"Server": {"apache"}}),
	}
	for i, resp := range responses {
		r.Handle(outcome(i+1, string(rune('1'+i)), "GET", resp))
	}

	all := strings.Join(sink.logs, "\n")
	for line, want := range map[string]int{
		"CODE   - 200":              1,
		"CODE   - 404":              1,
		`HEADER > "server: nginx"`:  1,
		`HEADER > "server: apache"`: 1,
		"DATA   ~ a (SIZE:1B)":      1,
		"DATA   ~ b (SIZE:1B)":      1,
		`[REQUEST] "4"`:             0,
		`[REQUEST] "5"`:             0,
	} {
		if got := strings.Count(all, line); got != want {
			t.Errorf("expected %q %d time(s), got %d\n%s", line, want, got, all)
		}
	}
	if got := r.State().HeaderValues("server"); len(got) != 2 || got[0] != "nginx" || got[1] != "apache" {
		t.Errorf("unexpected tracked header values %v", got)
	}
}

func TestReporterIgnoreHeaders(t *testing.T) {
	sink := &recordingSink{}
	r := NewReporter(sink, Options{MaxData: 1000, IgnoreHeaders: []string{"Date", " x-request-id "}})

	r.Handle(outcome(1, "1", "GET", response(200, "", map[string][]string{
		"Date":         {"Mon, 19 Oct 2026 10:00:00 GMT"},
		"X-Request-Id": {"abc"},
		"X-Powered-By": {"Express"},
	})))
	r.Handle(outcome(2, "2", "GET", response(200, "", map[string][]string{
		"Date":         {"Mon, 19 Oct 2026 10:00:01 GMT"},
		"X-Request-Id": {"def"},
		"X-Powered-By": {"Express"},
	})))

	if len(sink.logs) != 1 {
		t.Fatalf("expected ignored headers to produce nothing new, got %v", sink.logs)
	}
	if strings.Contains(sink.logs[0], "date") || strings.Contains(sink.logs[0], "x-request-id") {
		t.Fatalf("ignored headers reported: %s", sink.logs[0])
	}
	if r.State().HeaderValues("date") != nil {
		t.Fatalf("ignored headers must not be tracked")
	}
}

func TestReporterMaxData(t *testing.T) {
	sink := &recordingSink{}
	r := NewReporter(sink, Options{MaxData: 5})

	r.Handle(outcome(1, "1", "GET", response(200, "12345", nil)))
	r.Handle(outcome(2, "2", "GET", response(200, "1234", nil)))

	all := strings.Join(sink.logs, "\n")
	if strings.Contains(all, "12345") {
		t.Fatalf("bodies of max-data bytes must not be previewed: %s", all)
	}
	if !strings.Contains(all, "DATA   ~ 1234 (SIZE:4B)") {
		t.Fatalf("expected preview of short body: %s", all)
	}
}

func TestReporterHeadSkipsBody(t *testing.T) {
	sink := &recordingSink{}
	r := NewReporter(sink, Options{MaxData: 1000})

	r.Handle(outcome(1, "HEAD", "HEAD", response(200, "ignored", nil)))

	if strings.Contains(strings.Join(sink.logs, "\n"), "DATA") {
		t.Fatalf("HEAD responses must skip body reporting: %v", sink.logs)
	}
}

func TestReporterErrors(t *testing.T) {
	sink := &recordingSink{}
	r := NewReporter(sink, Options{MaxData: 1000})

	r.Handle(&dispatch.Outcome{Index: 2, Value: "2", Err: errors.New("connect ECONNREFUSED 127.0.0.1:1")})
	if len(sink.errors) != 1 || sink.errors[0] != "[!] ERROR: connect ECONNREFUSED 127.0.0.1:1" {
		t.Fatalf("unexpected error lines %v", sink.errors)
	}

	quiet := &recordingSink{}
	NewReporter(quiet, Options{Quiet: true}).Handle(&dispatch.Outcome{Index: 1, Value: "1", Err: errors.New("boom")})
	if len(quiet.errors) != 0 {
		t.Fatalf("quiet reporter should not log errors")
	}
}

func TestReporterMixedOutcomes(t *testing.T) {
	sink := &recordingSink{}
	r := NewReporter(sink, Options{MaxData: 1000})

	r.Handle(outcome(1, "1", "GET", response(200, "ok", nil)))
	r.Handle(&dispatch.Outcome{Index: 2, Value: "2", Err: errors.New("socket hang up")})
	r.Handle(outcome(3, "3", "GET", response(500, "ok", nil)))

	if len(sink.logs) != 2 || len(sink.errors) != 1 {
		t.Fatalf("expected 2 entries and 1 error, got %v / %v", sink.logs, sink.errors)
	}
}

func TestConsoleSink(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	var out, errOut bytes.Buffer
	sink := NewWriterSink(&out, &errOut)
	sink.Log("logged")
	sink.Warn("warned")
	sink.Error("failed")

	if out.String() != "logged\n" {
		t.Errorf("unexpected stdout %q", out.String())
	}
	if errOut.String() != "warned\nfailed\n" {
		t.Errorf("unexpected stderr %q", errOut.String())
	}
}

func TestFormatSize(t *testing.T) {
	tests := map[int]string{
		0:     "0B",
		12:    "12B",
		999:   "999B",
		1000:  "1.0KB",
		1049:  "1.0KB",
		1050:  "1.1KB",
		12345: "12.3KB",
	}
	for n, want := range tests {
		if got := FormatSize(n); got != want {
			t.Errorf("FormatSize(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestPreview(t *testing.T) {
	long := strings.Repeat("a", 100)
	if got := Preview(long); got != strings.Repeat("a", 80) {
		t.Errorf("expected 80 characters, got %d", len(got))
	}
	if got := Preview("line1\r\nline2\nline3"); got != "line1line2line3" {
		t.Errorf("line breaks not stripped: %q", got)
	}
	if got := Preview(strings.Repeat("é", 90)); got != strings.Repeat("é", 80) {
		t.Errorf("preview should count characters, got %q", got)
	}
	if got := Preview(strings.Repeat("\n", 10) + "x"); got != "x" {
		t.Errorf("unexpected preview %q", got)
	}
}
