package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/renkel/ytgrab/internal/config"
	"github.com/renkel/ytgrab/internal/media"
	"github.com/renkel/ytgrab/internal/metadata"
	"github.com/renkel/ytgrab/internal/probe"
	"github.com/renkel/ytgrab/internal/quality"
	"github.com/renkel/ytgrab/internal/videoid"
)

var probeNoPlayer bool

var probeCmd = &cobra.Command{
	Use:   "probe <url>",
	Short: "Resolve metadata and best quality for a URL without downloading",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runProbe(args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	probeCmd.Flags().BoolVar(&probeNoPlayer, "no-player", false, "skip the headless-browser player probe")

	rootCmd.AddCommand(probeCmd)
}

func runProbe(url string) error {
	videoID, err := videoid.Extract(url)
	if err != nil {
		return err
	}

	cfg := config.LoadOrDefault()
	if probeNoPlayer {
		cfg.Probe.Disabled = true
	}
	log := newLogger(true)

	api := metadata.NewAPIClient(cfg.YouTubeAPIKey, log)
	engine := metadata.NewEngine(cfg.YtDlpPath, cfg.Proxy, cfg.CookiesContent, log)
	svc := metadata.NewService(api, engine, log)
	prober := probe.New(cfg, log)

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	playerLevel := make(chan string, 1)
	go func() {
		level, perr := prober.BestQuality(ctx, videoID)
		if perr != nil {
			log.Debug().Err(perr).Msg("player probe unavailable")
			level = ""
		}
		playerLevel <- level
	}()

	meta, err := svc.Fetch(ctx, videoID)
	if err != nil {
		return err
	}
	res := quality.Resolve(<-playerLevel, meta.Formats, media.KindVideo)

	bold := color.New(color.Bold)
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)

	bold.Println(meta.Title)
	fmt.Printf("  uploader:  %s\n", meta.Uploader)
	if meta.DurationSeconds > 0 {
		fmt.Printf("  duration:  %s\n", time.Duration(meta.DurationSeconds)*time.Second)
	}
	if meta.ViewCount > 0 {
		fmt.Printf("  views:     %d\n", meta.ViewCount)
	}
	fmt.Printf("  source:    %s\n", meta.Source)

	fmt.Print("  quality:   ")
	green.Printf("%s", res.Label)
	fmt.Printf(" (%s)\n", res.Source)

	if len(res.Options) > 0 {
		fmt.Println()
		bold.Println("Formats:")
		for _, opt := range res.Options {
			cyan.Printf("  %-8s", opt.FormatID)
			fmt.Printf(" %-10s", opt.Label)
			if opt.Ext != "" {
				fmt.Printf(" %-5s", opt.Ext)
			}
			if opt.Note != "" {
				fmt.Printf(" (%s)", opt.Note)
			}
			fmt.Println()
		}
	}
	return nil
}
