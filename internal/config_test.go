package internal

import (
	"strings"
	"testing"
	"time"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.App.Location() != time.Local {
		t.Error("empty time zone should mean the local zone")
	}
}

func TestAudioConfig_Invalid(t *testing.T) {
	cases := map[string]func(*AudioConfig){
		"no dir":          func(c *AudioConfig) { c.Dir = "" },
		"low sample rate": func(c *AudioConfig) { c.SampleRate = 100 },
		"no input":        func(c *AudioConfig) { c.InputFormat = "" },
		"fast meter":      func(c *AudioConfig) { c.AmplitudeInterval = time.Millisecond },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			mutate(&cfg.Audio)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestAudioConfig_CaptureConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Audio.SampleRate = 48000
	cfg.Audio.BitRate = 96000
	cc := cfg.Audio.CaptureConfig("/tmp/a.m4a")
	if cc.SampleRate != 48000 || cc.BitRate != 96000 || cc.OutputPath != "/tmp/a.m4a" {
		t.Errorf("capture config = %+v", cc)
	}
	if err := cc.Validate(); err != nil {
		t.Errorf("capture config invalid: %v", err)
	}
}

func TestApplicationConfig_TimeZone(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.App.TimeZone = "Asia/Tokyo"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid zone rejected: %v", err)
	}
	if cfg.App.Location().String() != "Asia/Tokyo" {
		t.Errorf("location = %s", cfg.App.Location())
	}

	cfg.App.TimeZone = "Mars/Olympus"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown zone should fail validation")
	}
}
