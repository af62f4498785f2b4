package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "navconsole.toml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	os.Clearenv()
	t.Setenv("NAVCONSOLE_HOME", "/tmp/navconsole-home")

	cfg := defaultConfig()

	if cfg.BackendURL != DefaultBackendURL {
		t.Errorf("BackendURL = %v, want %v", cfg.BackendURL, DefaultBackendURL)
	}
	if cfg.Transport != TransportWebSocket {
		t.Errorf("Transport = %v, want %v", cfg.Transport, TransportWebSocket)
	}
	if cfg.StoreDriver != StoreSQLite {
		t.Errorf("StoreDriver = %v, want %v", cfg.StoreDriver, StoreSQLite)
	}
	if want := filepath.Join("/tmp/navconsole-home", DefaultDatabaseFile); cfg.DatabasePath != want {
		t.Errorf("DatabasePath = %v, want %v", cfg.DatabasePath, want)
	}
	if cfg.RefreshInterval.Duration != DefaultRefreshInterval {
		t.Errorf("RefreshInterval = %v, want %v", cfg.RefreshInterval.Duration, DefaultRefreshInterval)
	}
	if cfg.StallTimeout.Duration != 0 {
		t.Errorf("StallTimeout = %v, want disabled", cfg.StallTimeout.Duration)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		file        string
		envVars     map[string]string
		wantErr     string
		wantURL     string
		wantStore   string
		wantRefresh time.Duration
		wantStall   time.Duration
	}{
		{
			name:        "defaults without file",
			wantURL:     DefaultBackendURL,
			wantStore:   StoreSQLite,
			wantRefresh: DefaultRefreshInterval,
		},
		{
			name: "file values",
			file: `
backend_url = "http://nas.local:23008"
store_driver = "file"
refresh_interval = "10s"
stall_timeout = "5m"
`,
			wantURL:     "http://nas.local:23008",
			wantStore:   StoreFile,
			wantRefresh: 10 * time.Second,
			wantStall:   5 * time.Minute,
		},
		{
			name: "environment overrides file",
			file: `backend_url = "http://nas.local:23008"`,
			envVars: map[string]string{
				"NAVCONSOLE_BACKEND_URL":      "http://other:1",
				"NAVCONSOLE_REFRESH_INTERVAL": "2s",
			},
			wantURL:     "http://other:1",
			wantStore:   StoreSQLite,
			wantRefresh: 2 * time.Second,
		},
		{
			name:    "bad duration in environment",
			envVars: map[string]string{"NAVCONSOLE_STALL_TIMEOUT": "soon"},
			wantErr: "NAVCONSOLE_STALL_TIMEOUT",
		},
		{
			name:    "unknown transport",
			file:    `transport = "carrier-pigeon"`,
			wantErr: "unknown transport",
		},
		{
			name:    "refresh too fast",
			file:    `refresh_interval = "100ms"`,
			wantErr: "refresh_interval",
		},
		{
			name:    "malformed file",
			file:    `backend_url = `,
			wantErr: "failed to decode config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			t.Setenv("NAVCONSOLE_HOME", t.TempDir())
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			path := ""
			if tt.file != "" {
				path = writeConfig(t, tt.file)
			}

			cfg, err := Load(path)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Load() error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.BackendURL != tt.wantURL {
				t.Errorf("BackendURL = %v, want %v", cfg.BackendURL, tt.wantURL)
			}
			if cfg.StoreDriver != tt.wantStore {
				t.Errorf("StoreDriver = %v, want %v", cfg.StoreDriver, tt.wantStore)
			}
			if cfg.RefreshInterval.Duration != tt.wantRefresh {
				t.Errorf("RefreshInterval = %v, want %v", cfg.RefreshInterval.Duration, tt.wantRefresh)
			}
			if cfg.StallTimeout.Duration != tt.wantStall {
				t.Errorf("StallTimeout = %v, want %v", cfg.StallTimeout.Duration, tt.wantStall)
			}
			if !filepath.IsAbs(cfg.DatabasePath) {
				t.Errorf("DatabasePath %q should be absolute", cfg.DatabasePath)
			}
		})
	}
}

func TestLoadExplicitMissingFile(t *testing.T) {
	os.Clearenv()
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected error for a missing explicit config file")
	}

	t.Setenv("NAVCONSOLE_CONFIG", filepath.Join(t.TempDir(), "also-missing.toml"))
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for a missing NAVCONSOLE_CONFIG file")
	}
}

func TestStringHidesToken(t *testing.T) {
	cfg := defaultConfig()
	cfg.Token = "secret-token"
	s := cfg.String()
	if strings.Contains(s, "secret-token") {
		t.Errorf("String() leaked the token: %s", s)
	}
	if !strings.Contains(s, "Token: ****") {
		t.Errorf("String() = %s, want masked token", s)
	}
}
