package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/klippa-app/go-pdfium"
	"github.com/klippa-app/go-pdfium/webassembly"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"

	"github.com/paperlens/figbundle"
)

func main() {
	// Local development convenience; environment variables win.
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:  "figbundle",
		Usage: "Extract figures from academic PDFs and build context bundles",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Extract, deduplicate and assemble context bundles",
				Flags:  pipelineFlags(),
				Action: runAction(false),
			},
			{
				Name:   "extract",
				Usage:  "Extract and deduplicate figures only (no bundles)",
				Flags:  pipelineFlags(),
				Action: runAction(true),
			},
			{
				Name:   "bundle",
				Usage:  "Assemble context bundles from an existing raw extraction directory",
				Flags:  pipelineFlags(),
				Action: bundleAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func pipelineFlags() []cli.Flag {
	defaults := figbundle.DefaultConfig()
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "input",
			Aliases: []string{"i"},
			Usage:   "Directory of source PDF files",
			Value:   defaults.InputDir,
			Sources: cli.EnvVars("FIGBUNDLE_INPUT"),
		},
		&cli.StringFlag{
			Name:    "raw-dir",
			Usage:   "Output directory for extracted figure images",
			Value:   defaults.RawDir,
			Sources: cli.EnvVars("FIGBUNDLE_RAW_DIR"),
		},
		&cli.StringFlag{
			Name:    "bundle-dir",
			Usage:   "Output directory for context bundles",
			Value:   defaults.BundleDir,
			Sources: cli.EnvVars("FIGBUNDLE_BUNDLE_DIR"),
		},
		&cli.IntFlag{
			Name:  "min-width",
			Usage: "Minimum figure width in pixels",
			Value: defaults.MinWidth,
		},
		&cli.IntFlag{
			Name:  "min-height",
			Usage: "Minimum figure height in pixels",
			Value: defaults.MinHeight,
		},
		&cli.IntFlag{
			Name:  "hash-threshold",
			Usage: "Duplicate fingerprint distance (inclusive)",
			Value: defaults.HashThreshold,
		},
		&cli.StringFlag{
			Name:  "hash",
			Usage: "Perceptual hash algorithm: ahash, dhash or phash",
			Value: string(defaults.HashAlgorithm),
		},
		&cli.IntFlag{
			Name:  "extract-dpi",
			Usage: "Resolution figures are cropped at",
			Value: defaults.ExtractDPI,
		},
		&cli.IntFlag{
			Name:  "render-dpi",
			Usage: "Resolution context pages are rendered at",
			Value: defaults.RenderDPI,
		},
		&cli.IntFlag{
			Name:  "window",
			Usage: "Context pages on each side of a figure's page",
			Value: defaults.ContextWindow,
		},
		&cli.BoolFlag{
			Name:  "skip-existing",
			Usage: "Treat complete outputs as final and skip them",
			Value: defaults.SkipIfExists,
		},
		&cli.BoolFlag{
			Name:  "global-dedup",
			Usage: "Deduplicate across all documents instead of per document",
		},
		&cli.IntFlag{
			Name:    "parallelism",
			Aliases: []string{"j"},
			Usage:   "Documents processed concurrently",
			Value:   defaults.Parallelism,
			Sources: cli.EnvVars("FIGBUNDLE_PARALLELISM"),
		},
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "Enable debug logging",
		},
	}
}

func configFromFlags(cmd *cli.Command) (figbundle.Config, error) {
	algorithm, err := figbundle.ParseAlgorithm(cmd.String("hash"))
	if err != nil {
		return figbundle.Config{}, err
	}
	return figbundle.Config{
		InputDir:      cmd.String("input"),
		RawDir:        cmd.String("raw-dir"),
		BundleDir:     cmd.String("bundle-dir"),
		MinWidth:      cmd.Int("min-width"),
		MinHeight:     cmd.Int("min-height"),
		HashThreshold: cmd.Int("hash-threshold"),
		HashAlgorithm: algorithm,
		ExtractDPI:    cmd.Int("extract-dpi"),
		RenderDPI:     cmd.Int("render-dpi"),
		ContextWindow: cmd.Int("window"),
		SkipIfExists:  cmd.Bool("skip-existing"),
		GlobalDedup:   cmd.Bool("global-dedup"),
		Parallelism:   cmd.Int("parallelism"),
	}, nil
}

func setupLogging(cmd *cli.Command) {
	level := slog.LevelInfo
	if cmd.Bool("verbose") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

func initPool(parallelism int) (pdfium.Pool, error) {
	if parallelism < 1 {
		parallelism = 1
	}
	pool, err := webassembly.Init(webassembly.Config{
		MinIdle:  1,
		MaxIdle:  parallelism,
		MaxTotal: parallelism,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialise pdfium: %w", err)
	}
	return pool, nil
}

func runAction(extractOnly bool) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		setupLogging(cmd)
		cfg, err := configFromFlags(cmd)
		if err != nil {
			return err
		}

		pool, err := initPool(cfg.Parallelism)
		if err != nil {
			return err
		}
		defer pool.Close()

		pipeline := figbundle.New(pool, cfg)
		pipeline.ExtractOnly = extractOnly

		bar := progressbar.Default(int64(countPDFs(cfg.InputDir)), "documents")
		pipeline.OnDocument = func(string) {
			_ = bar.Add(1)
		}

		start := time.Now()
		tally, err := pipeline.Run(ctx)
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "%d documents (%d failed), %d figures accepted, %d duplicates, %d undersized in %v\n",
			tally.Documents, tally.FailedDocuments, tally.Accepted, tally.Duplicates, tally.Undersized,
			time.Since(start).Round(time.Millisecond))
		if !extractOnly {
			fmt.Fprintf(os.Stderr, "%d bundles built, %d skipped, %d failed\n",
				tally.Bundles, tally.SkippedBundles, tally.FailedBundles)
		}
		return nil
	}
}

func bundleAction(ctx context.Context, cmd *cli.Command) error {
	setupLogging(cmd)
	cfg, err := configFromFlags(cmd)
	if err != nil {
		return err
	}

	pool, err := initPool(1)
	if err != nil {
		return err
	}
	defer pool.Close()

	pipeline := figbundle.New(pool, cfg)

	tally, err := pipeline.RunBundles(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "%d bundles built, %d skipped, %d failed\n",
		tally.Bundles, tally.SkippedBundles, tally.FailedBundles)
	return nil
}

func countPDFs(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	count := 0
	for _, entry := range entries {
		if !entry.IsDir() && strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			count++
		}
	}
	return count
}
