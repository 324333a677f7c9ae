package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// memBackend is an in-memory ConfigBackend.
type memBackend struct {
	strs map[string]string
	ints map[string]int
}

func newMemBackend() *memBackend {
	return &memBackend{strs: map[string]string{}, ints: map[string]int{}}
}

func (m *memBackend) GetString(key string) (string, bool, error) {
	v, ok := m.strs[key]
	return v, ok, nil
}

func (m *memBackend) GetInt(key string) (int, bool, error) {
	v, ok := m.ints[key]
	return v, ok, nil
}

func (m *memBackend) SetString(key, val string) error { m.strs[key] = val; return nil }
func (m *memBackend) SetInt(key string, val int) error { m.ints[key] = val; return nil }
func (m *memBackend) Delete(key string) error {
	delete(m.strs, key)
	delete(m.ints, key)
	return nil
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
		os.Unsetenv(s.env)
	}
}

// TestDefaults verifies default values when only the required key is present.
func TestDefaults(t *testing.T) {
	clearEnv(t)
	b := newMemBackend()
	b.strs["server.base_url"] = "http://10.0.0.2:8000"

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.View.Port != 4100 {
		t.Errorf("View.Port = %d, want 4100", cfg.View.Port)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Upload.Timeout != "" {
		t.Errorf("Upload.Timeout = %q, want empty", cfg.Upload.Timeout)
	}
	if cfg.Storage.DataDir == "" || cfg.Storage.CacheDir == "" {
		t.Errorf("storage dirs should default to non-empty paths, got %+v", cfg.Storage)
	}
	if cfg.Capture.Dir != filepath.Join(cfg.Storage.DataDir, "movies") {
		t.Errorf("Capture.Dir = %q, want movies dir under data dir", cfg.Capture.Dir)
	}
}

// TestEnvOverride verifies that environment variables override backend values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	b := newMemBackend()
	b.strs["server.base_url"] = "http://file-host:8000"
	b.ints["view.port"] = 5000

	t.Setenv("SIGNCHAT_SERVER_BASE_URL", "http://env-host:9000")
	t.Setenv("SIGNCHAT_LOG_LEVEL", "debug")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.BaseURL != "http://env-host:9000" {
		t.Errorf("BaseURL = %q, want env value", cfg.Server.BaseURL)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.View.Port != 5000 {
		t.Errorf("View.Port = %d, want backend value 5000", cfg.View.Port)
	}
}

func TestEnvOverride_InvalidInt(t *testing.T) {
	clearEnv(t)
	b := newMemBackend()
	b.strs["server.base_url"] = "http://host:8000"
	t.Setenv("SIGNCHAT_VIEW_PORT", "not-a-number")

	if _, err := loadWith(b); err == nil {
		t.Fatal("expected error for invalid SIGNCHAT_VIEW_PORT")
	}
}

// TestMissingRequiredField verifies a clear error when the base URL is missing everywhere.
func TestMissingRequiredField(t *testing.T) {
	clearEnv(t)

	_, err := loadWith(newMemBackend())
	if err == nil {
		t.Fatal("expected error for missing base URL, got nil")
	}
	if !strings.Contains(err.Error(), "missing required config") {
		t.Errorf("error = %q, want it to mention missing required config", err.Error())
	}
}

func TestInvalidBaseURL(t *testing.T) {
	clearEnv(t)
	for _, raw := range []string{"10.0.0.2:8000", "ftp://host", "http://"} {
		b := newMemBackend()
		b.strs["server.base_url"] = raw
		if _, err := loadWith(b); err == nil {
			t.Errorf("base_url %q: expected error", raw)
		}
	}
}

func TestUploadTimeout(t *testing.T) {
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"30s", 30 * time.Second, false},
		{"2m", 2 * time.Minute, false},
		{"soon", 0, true},
		{"-1s", 0, true},
	}
	for _, tt := range tests {
		cfg := Config{Upload: UploadConfig{Timeout: tt.raw}}
		got, err := cfg.UploadTimeout()
		if (err != nil) != tt.wantErr {
			t.Errorf("UploadTimeout(%q) err = %v, wantErr %v", tt.raw, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("UploadTimeout(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

// TestFileBackendRoundTrip verifies SetKey persists to the JSON file and Load reads it back.
func TestFileBackendRoundTrip(t *testing.T) {
	clearEnv(t)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if err := SetKey("server.base_url", "http://192.168.1.20:8000"); err != nil {
		t.Fatalf("SetKey: %v", err)
	}
	if err := SetKey("view.port", "4200"); err != nil {
		t.Fatalf("SetKey: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.BaseURL != "http://192.168.1.20:8000" {
		t.Errorf("BaseURL = %q", cfg.Server.BaseURL)
	}
	if cfg.View.Port != 4200 {
		t.Errorf("View.Port = %d, want 4200", cfg.View.Port)
	}

	if err := UnsetKey("view.port"); err != nil {
		t.Fatalf("UnsetKey: %v", err)
	}
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load after unset: %v", err)
	}
	if cfg.View.Port != 4100 {
		t.Errorf("View.Port = %d after unset, want default 4100", cfg.View.Port)
	}
}

func TestSetKey_Errors(t *testing.T) {
	b := newMemBackend()
	if err := setKey(b, "nope.key", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
	if err := setKey(b, "view.port", "abc"); err == nil {
		t.Error("expected error for non-integer port")
	}
}

func TestUnsetKey(t *testing.T) {
	b := newMemBackend()
	if err := setKey(b, "view.port", "4200"); err != nil {
		t.Fatal(err)
	}
	if err := unsetKey(b, "view.port"); err != nil {
		t.Fatalf("unsetKey: %v", err)
	}
	if _, ok, _ := b.GetInt("view.port"); ok {
		t.Error("view.port still set after unset")
	}
	if err := unsetKey(b, "nope.key"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestShowAll(t *testing.T) {
	cfg := defaults()
	cfg.Server.BaseURL = "http://host:8000"

	keys := ShowAll(cfg)
	if len(keys) != len(ValidKeys()) {
		t.Fatalf("ShowAll returned %d keys, want %d", len(keys), len(ValidKeys()))
	}
	found := false
	for _, k := range keys {
		if k.Key == "server.base_url" {
			found = true
			if k.Value != "http://host:8000" {
				t.Errorf("server.base_url value = %q", k.Value)
			}
			if k.EnvVar != "SIGNCHAT_SERVER_BASE_URL" {
				t.Errorf("server.base_url env = %q", k.EnvVar)
			}
		}
	}
	if !found {
		t.Error("server.base_url missing from ShowAll")
	}
}
