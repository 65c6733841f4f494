package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func newBufferLogger(buf *bytes.Buffer, level Level, f Formatter) Logger {
	return NewLogger(WithLevel(level), WithFormatter(f), WithOutput(NewWriterOutput(buf)))
}

func TestJSONFormatterFields(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, InfoLevel, &JSONFormatter{})
	l.With(Component("worker"), Int("shard", 3)).Info("applied", Str("doc", "room:1:a.go"), Err(errors.New("boom")))

	var got map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid json %q: %v", buf.String(), err)
	}
	if got["msg"] != "applied" || got["level"] != "INFO" {
		t.Fatalf("unexpected entry %v", got)
	}
	if got["component"] != "worker" || got["doc"] != "room:1:a.go" || got["error"] != "boom" {
		t.Fatalf("missing fields %v", got)
	}
	if got["shard"] != float64(3) {
		t.Fatalf("shard = %v", got["shard"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, WarnLevel, &TextFormatter{DisableTimestamp: true})
	l.Info("hidden")
	l.Debugf("hidden too", "k", 1)
	l.Warn("shown", Bool("ok", true))
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info leaked: %q", out)
	}
	if out != "WARN  shown ok=true\n" {
		t.Fatalf("unexpected text %q", out)
	}
}

func TestTextFormatterQuotes(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, DebugLevel, &TextFormatter{DisableTimestamp: true})
	l.Debugf("resync", "path", "my file.go", "empty", "")
	if got := buf.String(); got != "DEBUG resync empty=\"\" path=\"my file.go\"\n" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{"": InfoLevel, "debug": DebugLevel, "warn": WarnLevel, "ERROR": ErrorLevel}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestApplyConfig(t *testing.T) {
	l, err := ApplyConfig(Config{Level: "debug", Format: "json", Outputs: []OutputConfig{{Type: "null"}}})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if l.GetLevel() != DebugLevel {
		t.Fatalf("level = %v", l.GetLevel())
	}
	if _, err := ApplyConfig(Config{Format: "xml"}); err == nil {
		t.Fatalf("expected format error")
	}
	if _, err := ApplyConfig(Config{Outputs: []OutputConfig{{Type: "file"}}}); err == nil {
		t.Fatalf("expected missing path error")
	}
}

func TestRedactionAndSampling(t *testing.T) {
	l, err := ApplyConfig(Config{Format: "text", Outputs: []OutputConfig{{Type: "null"}}, RedactKeys: []string{"token"}, SampleThereafter: 100})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	var buf bytes.Buffer
	bl := l.(*BaseLogger)
	bl.outputs = []Output{NewWriterOutput(&buf)}
	bl.formatter = &TextFormatter{DisableTimestamp: true}
	l.Info("login", Str("token", "secret"))
	l.Info("login", Str("token", "secret"))
	if got := buf.String(); got != "INFO  login token=[REDACTED]\n" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestToStdLogger(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, InfoLevel, &TextFormatter{DisableTimestamp: true})
	ToStdLogger(l, WarnLevel).Print("pebble says hi")
	if got := buf.String(); got != "WARN  pebble says hi\n" {
		t.Fatalf("unexpected output %q", got)
	}
}
