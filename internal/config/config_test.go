package config

import (
	"strings"
	"testing"
	"time"
)

func TestRequireEnv(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		value     string
		wantPanic bool
	}{
		{
			name:  "variable set",
			key:   "SLEUTH_TEST_VAR",
			value: "platforms.json",
		},
		{
			name:      "variable not set",
			key:       "SLEUTH_TEST_VAR_MISSING",
			wantPanic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv(tt.key, tt.value)
			}

			if tt.wantPanic {
				defer func() {
					if r := recover(); r == nil {
						t.Errorf("requireEnv() should have panicked")
					}
				}()
			}

			result := requireEnv(tt.key)
			if !tt.wantPanic && result != tt.value {
				t.Errorf("requireEnv() = %v, want %v", result, tt.value)
			}
		})
	}
}

func TestMustDuration(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		def      time.Duration
		expected time.Duration
	}{
		{name: "go duration", value: "750ms", def: time.Second, expected: 750 * time.Millisecond},
		{name: "bare seconds", value: "120", def: time.Second, expected: 120 * time.Second},
		{name: "fractional seconds", value: "0.5", def: time.Second, expected: 500 * time.Millisecond},
		{name: "invalid uses default", value: "soon", def: 10 * time.Second, expected: 10 * time.Second},
		{name: "missing uses default", value: "", def: 15 * time.Second, expected: 15 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "SLEUTH_TEST_DURATION"
			t.Setenv(key, tt.value)

			result := mustDuration(key, tt.def)
			if result != tt.expected {
				t.Errorf("mustDuration() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestMustBool(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		def      bool
		expected bool
	}{
		{name: "true value", value: "true", def: false, expected: true},
		{name: "numeric false", value: "0", def: true, expected: false},
		{name: "invalid uses default", value: "maybe", def: true, expected: true},
		{name: "missing uses default", value: "", def: false, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "SLEUTH_TEST_BOOL"
			t.Setenv(key, tt.value)

			result := mustBool(key, tt.def)
			if result != tt.expected {
				t.Errorf("mustBool() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := splitAndTrim(` http://1.2.3.4:80 ,"socks5://5.6.7.8:1080", ,`)
	want := []string{"http://1.2.3.4:80", "socks5://5.6.7.8:1080"}
	if len(got) != len(want) {
		t.Fatalf("splitAndTrim() length = %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("splitAndTrim()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SLEUTH_CATALOG_FILE", "/tmp/platforms.json")

	cfg := Load()

	if cfg.MaxConcurrency != 8 {
		t.Errorf("MaxConcurrency = %d, want 8", cfg.MaxConcurrency)
	}
	if cfg.MaxRetries != 2 {
		t.Errorf("MaxRetries = %d, want 2", cfg.MaxRetries)
	}
	if cfg.ProxyCooldown != 120*time.Second {
		t.Errorf("ProxyCooldown = %v, want 120s", cfg.ProxyCooldown)
	}
	if cfg.ProxyRotation != "round_robin" {
		t.Errorf("ProxyRotation = %q, want round_robin", cfg.ProxyRotation)
	}
	if !cfg.ProxyDirectFallback {
		t.Error("ProxyDirectFallback should default to true")
	}
	if cfg.RedisEnabled() {
		t.Error("redis should be disabled without SLEUTH_REDIS_ADDR")
	}
}

func TestLoadRejectsInvalidRotation(t *testing.T) {
	t.Setenv("SLEUTH_CATALOG_FILE", "/tmp/platforms.json")
	t.Setenv("SLEUTH_PROXY_ROTATION_MODE", "sticky")

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("Load() should have panicked on an unknown rotation mode")
		}
		if msg, ok := r.(string); !ok || !strings.Contains(msg, "ROTATION_MODE") {
			t.Errorf("unexpected panic value: %v", r)
		}
	}()

	Load()
}
