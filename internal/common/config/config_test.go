package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Upstream.QueryPaths) != 4 {
		t.Errorf("expected 4 default query paths, got %d", len(cfg.Upstream.QueryPaths))
	}
	if cfg.Retry.MaxAttempts != 3 || cfg.Retry.InitialDelay != time.Second {
		t.Errorf("unexpected retry defaults: %+v", cfg.Retry)
	}
	if cfg.Enrich.MaxInFlight != 10 {
		t.Errorf("expected in-flight ceiling 10, got %d", cfg.Enrich.MaxInFlight)
	}
	if cfg.Upstream.Timeout != 10*time.Second {
		t.Errorf("expected 10s timeout, got %v", cfg.Upstream.Timeout)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("UPSTREAM_QUERY_PATHS", "/a, /b")
	t.Setenv("ENRICH_MAX_IN_FLIGHT", "4")
	t.Setenv("DB_ENABLED", "true")
	t.Setenv("RETRY_INITIAL_DELAY", "250ms")
	t.Setenv("DB_RETENTION", "72h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg.Upstream.QueryPaths; len(got) != 2 || got[1] != "/b" {
		t.Errorf("unexpected query paths: %v", got)
	}
	if cfg.Enrich.MaxInFlight != 4 {
		t.Errorf("expected 4, got %d", cfg.Enrich.MaxInFlight)
	}
	if !cfg.Database.Enabled {
		t.Error("expected database to be enabled")
	}
	if cfg.Database.Retention != 72*time.Hour {
		t.Errorf("expected 72h retention, got %v", cfg.Database.Retention)
	}
	if cfg.Retry.InitialDelay != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %v", cfg.Retry.InitialDelay)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("ENRICH_MAX_IN_FLIGHT", "0")
	if _, err := Load(); err == nil {
		t.Error("expected error for zero in-flight ceiling")
	}
}

func TestUpstreamURLs(t *testing.T) {
	u := UpstreamConfig{
		BaseURL:    "https://example.test/",
		InitPath:   "/otn/leftTicket/init",
		StopsPath:  "otn/czxx/queryByTrainNo",
		QueryPaths: []string{"/otn/leftTicket/query", "https://mirror.test/q"},
	}

	if got := u.InitURL(); got != "https://example.test/otn/leftTicket/init" {
		t.Errorf("InitURL() = %q", got)
	}
	if got := u.StopsURL(); got != "https://example.test/otn/czxx/queryByTrainNo" {
		t.Errorf("StopsURL() = %q", got)
	}
	urls := u.QueryURLs()
	if urls[0] != "https://example.test/otn/leftTicket/query" || urls[1] != "https://mirror.test/q" {
		t.Errorf("QueryURLs() = %v", urls)
	}
}
