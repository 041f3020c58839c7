package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/renkel/ytgrab/internal/config"
	"github.com/renkel/ytgrab/internal/jobs"
	"github.com/renkel/ytgrab/internal/metadata"
	"github.com/renkel/ytgrab/internal/pipeline"
	"github.com/renkel/ytgrab/internal/probe"
	"github.com/renkel/ytgrab/internal/server"
)

var (
	servePort      int
	serveOutputDir string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP download server",
	Long: `Start an HTTP server that resolves video metadata and runs
download jobs in the background.

Examples:
  ytgrab serve              # Start server on port 8080
  ytgrab serve -p 9000      # Start server on port 9000
  ytgrab serve -o ~/dl      # Use custom output directory

API Endpoints:
  GET  /health              # Health check
  POST /metadata            # Resolve metadata and quality for a URL
  POST /download            # Create a download job
  GET  /progress/:job_id    # Poll job progress
  POST /cancel/:job_id      # Cancel a job
  GET  /file/:job_id        # Fetch the finished artifact`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runServe(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "HTTP listen port (default: 8080)")
	serveCmd.Flags().StringVarP(&serveOutputDir, "output", "o", "", "output directory for downloads")

	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg := config.LoadOrDefault()
	if servePort > 0 {
		cfg.Server.Port = servePort
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if serveOutputDir != "" {
		cfg.OutputDir = serveOutputDir
	}
	cfg.OutputDir = expandHome(cfg.OutputDir)

	workRoot := filepath.Join(cfg.OutputDir, "jobs")
	if err := os.MkdirAll(workRoot, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	log := newLogger(false)

	api := metadata.NewAPIClient(cfg.YouTubeAPIKey, log)
	engine := metadata.NewEngine(cfg.YtDlpPath, cfg.Proxy, cfg.CookiesContent, log)
	svc := metadata.NewService(api, engine, log)
	prober := probe.New(cfg, log)

	ffmpeg := pipeline.NewFFmpeg(cfg.FFmpegPath, log)
	pl := pipeline.NewYtDlp(cfg.YtDlpPath, cfg.Proxy, cfg.CookiesContent, ffmpeg, engine, log)

	retention := time.Duration(cfg.RetentionMinutes()) * time.Minute
	queue := jobs.NewQueue(pl, workRoot, retention, log)

	srv := server.New(cfg, svc, prober, queue, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Stop(ctx)
	}()

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func expandHome(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
