package pipeline

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"

	"codeberg.org/gruf/go-ffmpreg/ffmpreg"
	"codeberg.org/gruf/go-ffmpreg/wasm"
	"github.com/rs/zerolog"
	"github.com/tetratelabs/wazero"
)

// FFmpeg converts media with a system ffmpeg binary when one is
// available, falling back to the embedded WebAssembly build so
// conversion works on hosts with no ffmpeg installed.
type FFmpeg struct {
	binary string
	log    zerolog.Logger
}

// NewFFmpeg resolves the binary to use. An explicit path wins; otherwise
// PATH is consulted, and an empty result selects the embedded build.
func NewFFmpeg(explicit string, log zerolog.Logger) *FFmpeg {
	binary := explicit
	if binary == "" {
		if found, err := exec.LookPath("ffmpeg"); err == nil {
			binary = found
		}
	}
	return &FFmpeg{binary: binary, log: log.With().Str("component", "ffmpeg").Logger()}
}

// Location reports the resolved binary path, "" when only the embedded
// build is available.
func (f *FFmpeg) Location() string {
	return f.binary
}

// ConvertToPNG transcodes an image file to PNG at output.
func (f *FFmpeg) ConvertToPNG(ctx context.Context, input, output string) error {
	args := []string{"-i", input, "-y", output}
	if f.binary != "" {
		cmd := exec.CommandContext(ctx, f.binary, args...)
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("ffmpeg: %w: %s", err, firstErrorLine(string(out)))
		}
		return nil
	}
	return f.runEmbedded(ctx, args, filepath.Dir(input), filepath.Dir(output))
}

func (f *FFmpeg) runEmbedded(ctx context.Context, argv []string, dirs ...string) error {
	f.log.Debug().Strs("args", argv).Msg("using embedded ffmpeg")
	args := wasm.Args{
		Stderr: io.Discard,
		Stdout: io.Discard,
		Args:   argv,
		Config: func(cfg wazero.ModuleConfig) wazero.ModuleConfig {
			fsCfg := wazero.NewFSConfig()
			seen := map[string]bool{}
			for _, d := range dirs {
				if !seen[d] {
					fsCfg = fsCfg.WithDirMount(d, d)
					seen[d] = true
				}
			}
			return cfg.WithFSConfig(fsCfg)
		},
	}
	rc, err := ffmpreg.Ffmpeg(ctx, args)
	if err != nil {
		return fmt.Errorf("embedded ffmpeg: %w", err)
	}
	if rc != 0 {
		return fmt.Errorf("embedded ffmpeg exited with code %d", rc)
	}
	return nil
}
