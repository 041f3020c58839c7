// Package probe obtains a best-effort maximum-quality signal by actually
// starting muted playback in an invisible embedded player and reading the
// quality tiers the player itself reports. Failures here are never fatal;
// the quality resolver falls back to the extraction engine's signal.
package probe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog"

	"github.com/renkel/ytgrab/internal/config"
)

// ErrTimeout means the player never reached the playing state (and never
// reported an error) within the hard wall-clock limit.
var ErrTimeout = errors.New("player probe timed out")

// ErrDisabled is returned when the probe is switched off by configuration.
var ErrDisabled = errors.New("player probe disabled")

// PlayerError is an explicit error event from the embedded player
// (e.g. 101/150 for embedding disallowed, 100 for removed videos).
type PlayerError struct {
	Code int
}

func (e *PlayerError) Error() string {
	return fmt.Sprintf("player error %d", e.Code)
}

// Prober runs the instrumentation probe. Exactly one probe is active at a
// time: the mutex serializes runs, and each run fully tears down its
// browser before the next one can start, so playback sessions never leak.
type Prober struct {
	mu       sync.Mutex
	disabled bool
	timeout  time.Duration
	settle   time.Duration
	proxy    string
	log      zerolog.Logger
}

func New(cfg *config.Config, log zerolog.Logger) *Prober {
	return &Prober{
		disabled: cfg.Probe.Disabled,
		timeout:  time.Duration(cfg.ProbeTimeoutSeconds()) * time.Second,
		settle:   time.Duration(cfg.ProbeSettleMillis()) * time.Millisecond,
		proxy:    cfg.Proxy,
		log:      log,
	}
}

// BestQuality loads the embed player for videoID, waits for playback to
// start and returns the highest reported quality level (e.g. "hd1080").
func (p *Prober) BestQuality(ctx context.Context, videoID string) (string, error) {
	if p.disabled {
		return "", ErrDisabled
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	level, err := p.run(ctx, videoID)
	if errors.Is(err, context.DeadlineExceeded) {
		return "", ErrTimeout
	}
	return level, err
}

func (p *Prober) run(ctx context.Context, videoID string) (string, error) {
	userDataDir, err := os.MkdirTemp("", "ytgrab-probe-*")
	if err != nil {
		return "", fmt.Errorf("failed to create browser profile dir: %w", err)
	}
	defer os.RemoveAll(userDataDir)

	l := launcher.New().
		Headless(true).
		UserDataDir(userDataDir).
		Set("no-sandbox").
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("mute-audio").
		Set("autoplay-policy", "no-user-gesture-required")
	if p.proxy != "" {
		l = l.Proxy(p.proxy)
	}
	defer l.Cleanup()

	u, err := l.Launch()
	if err != nil {
		return "", fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(u).Context(ctx)
	if err := browser.Connect(); err != nil {
		return "", fmt.Errorf("failed to connect to browser: %w", err)
	}
	defer browser.Close()

	page, err := stealth.Page(browser)
	if err != nil {
		return "", fmt.Errorf("failed to open page: %w", err)
	}
	defer page.Close()
	page = page.Context(ctx)

	// Playback-suppressing flags: muted, autoplay, no controls, no
	// keyboard, no fullscreen affordance.
	embedURL := fmt.Sprintf(
		"https://www.youtube.com/embed/%s?autoplay=1&mute=1&controls=0&disablekb=1&fs=0&playsinline=1",
		videoID,
	)
	p.log.Debug().Str("video_id", videoID).Msg("loading embed player")
	if err := page.Navigate(embedURL); err != nil {
		return "", fmt.Errorf("failed to navigate to embed player: %w", err)
	}

	// The embed page exposes the player API on the #movie_player element.
	if _, err := page.Element("#movie_player"); err != nil {
		return "", fmt.Errorf("player element never appeared: %w", err)
	}

	_, err = page.Eval(`() => {
		const player = document.getElementById('movie_player');
		window.__probeError = null;
		if (player.addEventListener) {
			player.addEventListener('onError', (code) => { window.__probeError = code; });
		}
		if (player.playVideo) {
			player.playVideo();
		}
	}`)
	if err != nil {
		return "", fmt.Errorf("failed to start playback: %w", err)
	}

	if err := p.waitForPlaying(ctx, page); err != nil {
		return "", err
	}

	// The tier list is unreliable immediately at playback start; give the
	// player a moment to settle before reading it.
	select {
	case <-time.After(p.settle):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	res, err := page.Eval(`() => {
		const player = document.getElementById('movie_player');
		if (!player.getAvailableQualityLevels) return [];
		return player.getAvailableQualityLevels();
	}`)
	if err != nil {
		return "", fmt.Errorf("failed to read quality levels: %w", err)
	}

	for _, v := range res.Value.Arr() {
		level := v.String()
		// "auto" carries no resolution information.
		if level != "" && level != "auto" {
			p.log.Debug().Str("video_id", videoID).Str("level", level).Msg("player reported quality")
			return level, nil
		}
	}
	return "", errors.New("player reported no quality levels")
}

// waitForPlaying polls the player state until it reaches playing (1),
// surfacing explicit player errors as they arrive. The context deadline
// is the hard stop.
func (p *Prober) waitForPlaying(ctx context.Context, page *rod.Page) error {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		res, err := page.Eval(`() => {
			const player = document.getElementById('movie_player');
			return {
				state: player.getPlayerState ? player.getPlayerState() : -1,
				error: window.__probeError,
			};
		}`)
		if err != nil {
			return fmt.Errorf("failed to read player state: %w", err)
		}

		if code := res.Value.Get("error"); !code.Nil() {
			return &PlayerError{Code: code.Int()}
		}
		if res.Value.Get("state").Int() == 1 {
			return nil
		}
	}
}
