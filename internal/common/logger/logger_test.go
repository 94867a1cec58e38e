package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	return out
}

func TestKeyValueFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf)

	log.Info("query finished", "trains", 3, "from", "BJP")

	line := decodeLine(t, &buf)
	if line["message"] != "query finished" {
		t.Errorf("unexpected message: %v", line["message"])
	}
	if line["from"] != "BJP" {
		t.Errorf("expected from=BJP, got %v", line["from"])
	}
	if line["trains"] != float64(3) {
		t.Errorf("expected trains=3, got %v", line["trains"])
	}
}

func TestErrorFieldUsesErr(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf)

	log.Error("lookup failed", "error", errors.New("timeout"))

	line := decodeLine(t, &buf)
	if line["error"] != "timeout" {
		t.Errorf("expected error=timeout, got %v", line["error"])
	}
}

func TestWithAddsContext(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf).With("component", "enricher")

	log.Warn("slow")

	line := decodeLine(t, &buf)
	if line["component"] != "enricher" {
		t.Errorf("expected component field, got %v", line["component"])
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"WARN":    zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"unknown": zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestErrorEventsReachAlertWebhook(t *testing.T) {
	bodies := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies <- string(b)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	log := FromConfig(Config{Level: zerolog.InfoLevel, AlertURL: srv.URL})
	log.Info("not alerted")
	log.With("component", "query").Error("schedule query failed")

	if !log.Flush(5 * time.Second) {
		t.Fatal("alert was not delivered in time")
	}
	select {
	case body := <-bodies:
		if !strings.Contains(body, "schedule query failed") || !strings.Contains(body, "ERROR") {
			t.Errorf("unexpected webhook body %q", body)
		}
	default:
		t.Fatal("expected the error event to be posted")
	}
	if len(bodies) != 0 {
		t.Error("info events must not be forwarded")
	}
}

func TestFatalAlertIsSentBeforeReturning(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	h := newAlertHook(srv.URL)
	h.Run(nil, zerolog.FatalLevel, "giving up")
	if calls.Load() != 1 {
		t.Errorf("expected a synchronous delivery, got %d calls", calls.Load())
	}
}

func TestAlertDeliveryFailureIsReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	var errOut bytes.Buffer
	h := newAlertHook(srv.URL)
	h.errOut = &errOut
	h.Run(nil, zerolog.ErrorLevel, "boom")

	if !h.wait(5 * time.Second) {
		t.Fatal("delivery did not finish")
	}
	if !strings.Contains(errOut.String(), "alert delivery failed") {
		t.Errorf("expected the failure to be reported, got %q", errOut.String())
	}
}

func TestFlushWithoutAlertsReturnsImmediately(t *testing.T) {
	if !New(io.Discard).Flush(0) {
		t.Error("expected flush to succeed without an alert webhook")
	}
}

func TestFromConfigWritesRotatingFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Console = false
	cfg.File = true
	cfg.FilePath = filepath.Join(t.TempDir(), "railquery.log")

	FromConfig(cfg).Info("written to file", "trains", 2)

	data, err := os.ReadFile(cfg.FilePath)
	if err != nil {
		t.Fatalf("expected log file: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("unexpected file contents %q", data)
	}
}
