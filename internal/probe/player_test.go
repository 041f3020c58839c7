package probe

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/renkel/ytgrab/internal/config"
)

func TestBestQualityDisabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Probe.Disabled = true

	p := New(cfg, zerolog.Nop())
	if _, err := p.BestQuality(context.Background(), "dQw4w9WgXcQ"); !errors.Is(err, ErrDisabled) {
		t.Errorf("want ErrDisabled, got %v", err)
	}
}

func TestPlayerErrorMessage(t *testing.T) {
	err := &PlayerError{Code: 150}
	if err.Error() != "player error 150" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestNewAppliesConfigDefaults(t *testing.T) {
	p := New(config.DefaultConfig(), zerolog.Nop())
	if p.timeout.Seconds() != 20 {
		t.Errorf("timeout = %v, want 20s", p.timeout)
	}
	if p.settle.Milliseconds() != 1500 {
		t.Errorf("settle = %v, want 1.5s", p.settle)
	}
}
