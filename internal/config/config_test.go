package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewConfigDefaultsWhenMissing(t *testing.T) {
	projectDir := t.TempDir()
	c, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}
	if c.Project.Version != 1 {
		t.Fatalf("expected default version == 1, got %d", c.Project.Version)
	}
	if got := c.Transport().Mode; got != TransportSimulated {
		t.Fatalf("transport mode = %s, want %s", got, TransportSimulated)
	}
	if got := c.Transport().SimulatedDelay; got != 2*time.Second {
		t.Fatalf("simulated delay = %s, want 2s", got)
	}
	if got := c.MaxConcurrentDecodes(); got != defaultMaxConcurrentDecodes {
		t.Fatalf("max decodes = %d", got)
	}
	if !strings.HasPrefix(c.InboxDir(), projectDir) {
		t.Fatalf("inbox dir %s not under project", c.InboxDir())
	}
}

func TestInitFeedbackDirWritesParsableDefaults(t *testing.T) {
	projectDir := t.TempDir()
	if err := InitFeedbackDir(projectDir); err != nil {
		t.Fatalf("init: %v", err)
	}
	for _, dir := range []string{"logs", "inbox", "intake"} {
		if info, err := os.Stat(filepath.Join(projectDir, FeedbackDir, dir)); err != nil || !info.IsDir() {
			t.Fatalf("expected %s directory: %v", dir, err)
		}
	}
	c, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if got := c.Organization().Name; got != "Butwal Multiple Campus" {
		t.Fatalf("organization = %q", got)
	}
	wantDB := filepath.Join(projectDir, ".feedback", "intake", "submissions.db")
	if got := c.IntakeDatabasePath(); got != wantDB {
		t.Fatalf("intake db = %s, want %s", got, wantDB)
	}
}

func TestLoadProjectConfigParsesYaml(t *testing.T) {
	projectDir := t.TempDir()
	feedbackDir := filepath.Join(projectDir, FeedbackDir)
	if err := os.MkdirAll(feedbackDir, 0o755); err != nil {
		t.Fatal(err)
	}
	configYAML := strings.TrimSpace(`
version: 1
organization:
  name: Tansen Municipality
transport:
  mode: http
  endpoint: https://feedback.example.org/api/submissions
  timeout: 30s
media:
  max_concurrent_decodes: 2
  inbox: drop
`)
	if err := os.WriteFile(filepath.Join(feedbackDir, "config.yaml"), []byte(configYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}
	if c.Transport().Mode != TransportHTTP {
		t.Fatalf("mode = %s", c.Transport().Mode)
	}
	if c.Transport().Timeout != 30*time.Second {
		t.Fatalf("timeout = %s", c.Transport().Timeout)
	}
	if c.MaxConcurrentDecodes() != 2 {
		t.Fatalf("max decodes = %d", c.MaxConcurrentDecodes())
	}
	if got := c.InboxDir(); got != filepath.Join(projectDir, "drop") {
		t.Fatalf("inbox = %s", got)
	}
	if c.Intake().Port != defaultIntakePort {
		t.Fatalf("intake port default lost: %d", c.Intake().Port)
	}
}

func TestLoadProjectConfigValidation(t *testing.T) {
	projectDir := t.TempDir()
	feedbackDir := filepath.Join(projectDir, FeedbackDir)
	if err := os.MkdirAll(feedbackDir, 0o755); err != nil {
		t.Fatal(err)
	}
	configYAML := strings.TrimSpace(`
version: 1
transport:
  mode: http
  endpoint: not a url
`)
	if err := os.WriteFile(filepath.Join(feedbackDir, "config.yaml"), []byte(configYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewConfig(projectDir); err == nil {
		t.Fatalf("expected validation error but got none")
	}
}

func TestEnvOverridesWin(t *testing.T) {
	t.Setenv("FEEDBACK_TRANSPORT", "HTTP")
	t.Setenv("FEEDBACK_ENDPOINT", "http://10.0.0.5:9000/submissions")
	t.Setenv("FEEDBACK_INTAKE_PORT", "9001")
	t.Setenv("FEEDBACK_MAX_DECODES", "1")
	c, err := NewConfig(t.TempDir())
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if c.Transport().Mode != TransportHTTP {
		t.Fatalf("expected env transport override, got %s", c.Transport().Mode)
	}
	if c.Transport().Endpoint != "http://10.0.0.5:9000/submissions" {
		t.Fatalf("endpoint = %s", c.Transport().Endpoint)
	}
	if c.Intake().Port != 9001 {
		t.Fatalf("intake port = %d", c.Intake().Port)
	}
	if c.MaxConcurrentDecodes() != 1 {
		t.Fatalf("max decodes = %d", c.MaxConcurrentDecodes())
	}
}

func TestEnvOverrideRejectsMalformedPort(t *testing.T) {
	t.Setenv("FEEDBACK_INTAKE_PORT", "eighty")
	if _, err := NewConfig(t.TempDir()); err == nil {
		t.Fatalf("expected env parse error")
	}
}
