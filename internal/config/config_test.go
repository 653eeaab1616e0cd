package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const token1 = "00112233445566778899aabbccddeeff"

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`
devices:
  - address: 10.0.0.5
    token: ` + token1 + `
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if got := cfg.Schedule.Duration.Duration(); got != 600*time.Second {
		t.Errorf("schedule.duration = %v, want 10m", got)
	}
	if cfg.Schedule.Steps != 100 {
		t.Errorf("schedule.steps = %d, want 100", cfg.Schedule.Steps)
	}
	if got := cfg.Device.Timeout.Duration(); got != 5*time.Second {
		t.Errorf("device.timeout = %v, want 5s", got)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("log.level = %q, want info", cfg.Log.Level)
	}
	if cfg.Database.Path != "" {
		t.Errorf("database.path = %q, want empty (ledger disabled)", cfg.Database.Path)
	}
	if got := cfg.Status.Addr(); got != "127.0.0.1:9090" {
		t.Errorf("status addr = %q", got)
	}
	if got := cfg.Ledger.GetRetention(); got != 30*24*time.Hour {
		t.Errorf("retention = %v", got)
	}
}

func TestParse_Full(t *testing.T) {
	cfg, err := Parse([]byte(`
devices:
  - name: bedroom
    address: 10.0.0.5
    token: ` + token1 + `
  - ip: 10.0.0.6:54321
    token: ffeeddccbbaa99887766554433221100
schedule:
  duration: 30m
  steps: 60
  curve_script: curves/ease.lua
device:
  timeout: 2s
  rate_limit_rps: 4
database:
  path: /var/lib/sunrise.sqlite
log:
  level: debug
  use_json: true
status:
  enabled: true
  port: 8088
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	devices := cfg.BulbDevices()
	if len(devices) != 2 {
		t.Fatalf("got %d devices, want 2", len(devices))
	}
	if devices[0].Name != "bedroom" || devices[0].Address != "10.0.0.5" || devices[0].Token != token1 {
		t.Errorf("devices[0] = %+v", devices[0])
	}
	if devices[1].Address != "10.0.0.6:54321" {
		t.Errorf("ip alias not applied: %+v", devices[1])
	}
	if cfg.Schedule.Duration.Duration() != 30*time.Minute || cfg.Schedule.Steps != 60 {
		t.Errorf("schedule = %+v", cfg.Schedule)
	}
	if cfg.Schedule.CurveScript != "curves/ease.lua" {
		t.Errorf("curve_script = %q", cfg.Schedule.CurveScript)
	}
	if cfg.Device.RateLimitRPS != 4 || cfg.Device.Timeout.Duration() != 2*time.Second {
		t.Errorf("device = %+v", cfg.Device)
	}
	if !cfg.Log.UseJSON || cfg.Log.Level != "debug" {
		t.Errorf("log = %+v", cfg.Log)
	}
	if !cfg.Status.Enabled || cfg.Status.Addr() != "127.0.0.1:8088" {
		t.Errorf("status = %+v", cfg.Status)
	}
}

func TestParse_EnvExpansion(t *testing.T) {
	t.Setenv("SUNRISE_TEST_TOKEN", token1)

	cfg, err := Parse([]byte(`
devices:
  - address: ${SUNRISE_TEST_ADDR:10.0.0.9}
    token: ${SUNRISE_TEST_TOKEN}
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Devices[0].Address != "10.0.0.9" {
		t.Errorf("default not applied: %q", cfg.Devices[0].Address)
	}
	if cfg.Devices[0].Token != token1 {
		t.Errorf("env var not expanded: %q", cfg.Devices[0].Token)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "no_devices",
			yaml:    `schedule: {steps: 10}`,
			wantErr: "at least one device",
		},
		{
			name:    "missing_address",
			yaml:    "devices:\n  - token: " + token1,
			wantErr: "address is required",
		},
		{
			name:    "bad_token",
			yaml:    "devices:\n  - address: 10.0.0.5\n    token: insert_token1",
			wantErr: "invalid token",
		},
		{
			name:    "negative_steps",
			yaml:    "devices:\n  - address: 10.0.0.5\n    token: " + token1 + "\nschedule:\n  steps: -1",
			wantErr: "schedule.steps",
		},
		{
			name:    "negative_duration",
			yaml:    "devices:\n  - address: 10.0.0.5\n    token: " + token1 + "\nschedule:\n  duration: -5m",
			wantErr: "schedule.duration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestParse_DuplicateAddressIsAllowed(t *testing.T) {
	_, err := Parse([]byte(`
devices:
  - address: 10.0.0.5
    token: ` + token1 + `
  - address: 10.0.0.5
    token: ` + token1 + `
`))
	if err != nil {
		t.Errorf("duplicate addresses should only warn, got %v", err)
	}
}

func TestParse_ExplicitZeroDurationIsKept(t *testing.T) {
	cfg, err := Parse([]byte(`
devices:
  - address: 10.0.0.5
    token: ` + token1 + `
schedule:
  duration: 0s
  steps: 5
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := cfg.Schedule.Duration.Duration(); got != 0 {
		t.Errorf("schedule.duration = %v, want 0s", got)
	}
}

func TestParse_BadDuration(t *testing.T) {
	_, err := Parse([]byte("schedule:\n  duration: soon\n"))
	if err == nil {
		t.Error("expected error for unparseable duration")
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "devices:\n  - address: 10.0.0.5\n    token: " + token1 + "\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Devices) != 1 {
		t.Errorf("got %d devices", len(cfg.Devices))
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
