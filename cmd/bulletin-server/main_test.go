package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bulletin/internal/board"
	"bulletin/internal/config"
	"bulletin/internal/events"
	"bulletin/internal/middleware"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestSetupLogging_JSON(t *testing.T) {
	originalLogger := log.Logger
	originalLevel := zerolog.GlobalLevel()
	defer func() {
		log.Logger = originalLogger
		zerolog.SetGlobalLevel(originalLevel)
	}()

	var buf bytes.Buffer
	setupLogging("warn", "json", &buf)

	log.Info().Msg("hidden")
	log.Warn().Uint64("evicted", 3).Msg("Capacity overflow")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected 1 log line at warn level, got %d: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("Failed to parse log line as JSON: %v", err)
	}
	if entry["level"] != "warn" {
		t.Errorf("Expected level warn, got %v", entry["level"])
	}
	if entry["evicted"] != float64(3) {
		t.Errorf("Expected evicted=3, got %v", entry["evicted"])
	}
	if _, ok := entry["time"]; !ok {
		t.Error("Expected a timestamp field")
	}
}

func TestSetupLogging_Levels(t *testing.T) {
	originalLogger := log.Logger
	originalLevel := zerolog.GlobalLevel()
	defer func() {
		log.Logger = originalLogger
		zerolog.SetGlobalLevel(originalLevel)
	}()

	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"info":    zerolog.InfoLevel,
		"":        zerolog.InfoLevel,
		"warn":    zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"verbose": zerolog.InfoLevel,
	}
	for level, want := range tests {
		var buf bytes.Buffer
		setupLogging(level, "console", &buf)
		if got := zerolog.GlobalLevel(); got != want {
			t.Errorf("LOG_LEVEL=%q: expected %s, got %s", level, want, got)
		}
	}
}

func TestRun_ServesAndShutsDown(t *testing.T) {
	originalLogger := log.Logger
	defer func() { log.Logger = originalLogger }()
	var logs bytes.Buffer
	log.Logger = zerolog.New(&logs)

	cfg := &config.Config{
		DBPath:          filepath.Join(t.TempDir(), "board.db"),
		Settings:        board.DefaultSettings(),
		MetricsInterval: time.Hour,
	}
	cfg.Settings.Cooldown = 0

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	base := "http://" + ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, ln) }()

	do := func(method, path, body string) *http.Response {
		req, _ := http.NewRequest(method, base+path, strings.NewReader(body))
		req.Header.Set(middleware.IdentityHeader, "did:plc:alice")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", method, path, err)
		}
		return resp
	}

	resp := do(http.MethodPut, "/api/profile", `{"handle":"alice"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 claiming a handle, got %d", resp.StatusCode)
	}
	resp = do(http.MethodPost, "/api/records", `{"body":"hello"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201 posting, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run did not return after cancel")
	}

	// The ledger was closed cleanly and kept the post.
	store, err := board.Open(board.Options{Path: cfg.DBPath, ReadOnly: true, Timeout: time.Second})
	if err != nil {
		t.Fatalf("Failed to reopen ledger: %v", err)
	}
	defer store.Close()
	rec, err := store.GetRecord(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if rec.Body != "hello" {
		t.Errorf("Expected body hello, got %q", rec.Body)
	}

	if !strings.Contains(logs.String(), "Database opened") {
		t.Error("Expected startup log line")
	}
}

func TestCollectorSource(t *testing.T) {
	settings := board.DefaultSettings()
	settings.Cooldown = 0
	settings.Capacity = 2
	store, err := board.Open(board.Options{
		Path:     filepath.Join(t.TempDir(), "board.db"),
		Settings: settings,
	})
	if err != nil {
		t.Fatalf("Failed to open ledger: %v", err)
	}

	ctx := context.Background()
	if _, err := store.ClaimHandle(ctx, "did:plc:alice", "alice", ""); err != nil {
		t.Fatalf("ClaimHandle: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := store.Post(ctx, "did:plc:alice", "hello"); err != nil {
			t.Fatalf("Post: %v", err)
		}
	}

	src := collectorSource(store, events.NewHub(0))
	snap, ok := src.Board()
	if !ok {
		t.Fatal("Expected a snapshot from an open ledger")
	}
	if snap.ActiveTotal != 2 || snap.Capacity != 2 || snap.NextID != 4 {
		t.Errorf("Unexpected snapshot %+v", snap)
	}
	if snap.Step == 0 {
		t.Error("Expected a non-zero step")
	}
	if n := src.Subscribers(); n != 0 {
		t.Errorf("Expected 0 subscribers, got %d", n)
	}

	originalLogger := log.Logger
	defer func() { log.Logger = originalLogger }()
	log.Logger = zerolog.Nop()

	store.Close()
	if _, ok := src.Board(); ok {
		t.Error("Expected a closed ledger to report no snapshot")
	}
}
