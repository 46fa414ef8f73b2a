package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestResolveLevel(t *testing.T) {
	cases := []struct {
		env, explicit string
		want          slog.Level
	}{
		{"dev", "", slog.LevelDebug},
		{"prod", "", slog.LevelInfo},
		{"test", "", slog.LevelError},
		{"prod", "warn", slog.LevelWarn},
		{"prod", "DEBUG", slog.LevelDebug},
		{"dev", "nonsense", slog.LevelDebug},
	}

	for _, tc := range cases {
		if got := resolveLevel(tc.env, tc.explicit); got != tc.want {
			t.Errorf("resolveLevel(%q, %q) = %v, want %v", tc.env, tc.explicit, got, tc.want)
		}
	}
}

func TestProdWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Env: "prod", Output: &buf})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	log.With("rides").Info("ride created", "ride_id", "r1")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected a JSON line, got %q", buf.String())
	}
	if line["component"] != "rides" || line["ride_id"] != "r1" {
		t.Fatalf("unexpected attributes %v", line)
	}
}

func TestUnknownEnv(t *testing.T) {
	if _, err := New(Config{Env: "staging"}); err == nil {
		t.Fatal("expected an error for an unknown environment")
	}
}

func TestShortenPath(t *testing.T) {
	if got := shortenPath("/home/ci/ridepool/internal/ride/coordinator.go", 2); got != "ride/coordinator.go" {
		t.Fatalf("unexpected %q", got)
	}
	if got := shortenPath("main.go", 3); got != "main.go" {
		t.Fatalf("short paths stay intact, got %q", got)
	}
	if !strings.HasSuffix(shortenPath("/a/b/c.go", 0), "/a/b/c.go") {
		t.Fatal("zero segments keeps the full path")
	}
}
