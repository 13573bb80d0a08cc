package hub

import (
	"testing"
	"time"
)

func TestDefaultClientConfig(t *testing.T) {
	cfg := DefaultClientConfig()
	if cfg.RateLimit != 10 {
		t.Errorf("RateLimit = %d", cfg.RateLimit)
	}
	if cfg.RateWindow != 5500*time.Millisecond {
		t.Errorf("RateWindow = %v", cfg.RateWindow)
	}
	if cfg.ServerTimeout != 60*time.Second {
		t.Errorf("ServerTimeout = %v", cfg.ServerTimeout)
	}
	want := []time.Duration{0, 5 * time.Second, 10 * time.Second, 20 * time.Second, 30 * time.Second}
	if len(cfg.ReconnectSchedule) != len(want) {
		t.Fatalf("ReconnectSchedule = %v", cfg.ReconnectSchedule)
	}
	for i := range want {
		if cfg.ReconnectSchedule[i] != want[i] {
			t.Fatalf("ReconnectSchedule = %v, want %v", cfg.ReconnectSchedule, want)
		}
	}
}

func TestConfigCloneIsIndependent(t *testing.T) {
	cfg := DefaultClientConfig().WithEndpoint("ws://a")
	clone := cfg.Clone()
	clone.Endpoint = "ws://b"
	clone.ReconnectSchedule[0] = time.Hour

	if cfg.Endpoint != "ws://a" {
		t.Error("clone shared the endpoint")
	}
	if cfg.ReconnectSchedule[0] != 0 {
		t.Error("clone shared the schedule slice")
	}
}

func TestConfigNormalizeFillsZeroes(t *testing.T) {
	cfg := &ClientConfig{Endpoint: "ws://hub"}
	cfg.normalize()

	if cfg.RateLimit != 10 || cfg.RateWindow != 5500*time.Millisecond {
		t.Errorf("rate defaults not applied: %d/%v", cfg.RateLimit, cfg.RateWindow)
	}
	if cfg.InvokeTimeout != 30*time.Second || cfg.HandshakeTimeout != 30*time.Second {
		t.Errorf("timeout defaults not applied")
	}
	if cfg.Dialer == nil {
		t.Error("default dialer not installed")
	}
	if len(cfg.ReconnectSchedule) == 0 {
		t.Error("default schedule not installed")
	}
}

func TestConfigNormalizeKeepsExplicitValues(t *testing.T) {
	cfg := DefaultClientConfig().
		WithRateLimit(3, time.Second).
		WithReconnectSchedule([]time.Duration{time.Minute})
	cfg.normalize()

	if cfg.RateLimit != 3 || cfg.RateWindow != time.Second {
		t.Errorf("explicit rate overwritten: %d/%v", cfg.RateLimit, cfg.RateWindow)
	}
	if len(cfg.ReconnectSchedule) != 1 || cfg.ReconnectSchedule[0] != time.Minute {
		t.Errorf("explicit schedule overwritten: %v", cfg.ReconnectSchedule)
	}
}
