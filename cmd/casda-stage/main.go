package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joseph-ayodele/casda-stager/internal/casda"
	"github.com/joseph-ayodele/casda-stager/internal/common"
	"github.com/joseph-ayodele/casda-stager/internal/export"
	"github.com/joseph-ayodele/casda-stager/internal/manifest"
	"github.com/joseph-ayodele/casda-stager/internal/uws"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		in       = flag.String("in", "", "JSON manifest of files to stage, '-' for stdin (required)")
		out      = flag.String("out", "", "write staged urls to this file (.xlsx for a workbook, anything else for plain text)")
		download = flag.String("download", "", "download the staged files into this directory")
		noChk    = flag.Bool("skip-checksums", false, "do not download .checksum companions")
		poll     = flag.Duration("poll", 0, "override CASDA_POLL_INTERVAL")
		maxWait  = flag.Duration("max-wait", 0, "override CASDA_MAX_WAIT (0 keeps the configured value)")
	)
	flag.Parse()

	if *in == "" {
		printError("Error: --in is required\n")
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	if !cfg.Archive.HasCredentials() {
		printError("Error: %v (set CASDA_USER and CASDA_PASSWORD)\n", common.ErrAuthenticationRequired)
		os.Exit(1)
	}

	rows, err := readManifest(*in)
	if err != nil {
		logger.Error("failed to read manifest", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []uws.Option
	if *poll > 0 {
		opts = append(opts, uws.WithPollInterval(*poll))
	}
	if *maxWait > 0 {
		opts = append(opts, uws.WithMaxWait(*maxWait))
	}
	client := casda.NewFromConfig(cfg.Archive, nil, logger, opts...)

	logger.Info("staging files", "files", len(rows), "service", cfg.Archive.Service)
	res, err := client.Stage(ctx, manifest.AccessURLs(rows))
	if err != nil {
		logger.Error("staging failed", "error", err)
		os.Exit(1)
	}
	if !res.Phase.IsSuccessful() {
		logger.Error("staging job did not complete", "phase", res.Phase, "location", res.JobLocation)
		os.Exit(2)
	}

	if *out != "" {
		if err := writeURLs(*out, res.URLs); err != nil {
			logger.Error("failed to write output file", "error", err)
			os.Exit(1)
		}
	} else {
		for _, u := range res.URLs {
			fmt.Println(u)
		}
	}

	if *download != "" {
		urls := res.URLs
		if *noChk {
			urls, _ = casda.SplitChecksums(urls)
		}
		paths, err := client.DownloadFiles(ctx, urls, *download)
		if err != nil {
			logger.Error("download failed", "error", err, "downloaded", len(paths))
			os.Exit(1)
		}
		logger.Info("download complete", "files", len(paths), "dir", *download)
	}

	files, checksums := casda.SplitChecksums(res.URLs)
	logger.Info("staging complete",
		"job", res.JobLocation,
		"phase", res.Phase,
		"files", len(files),
		"checksums", len(checksums),
	)
}

func readManifest(path string) ([]manifest.Row, error) {
	if path == "-" {
		return manifest.Load(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return manifest.Load(f)
}

func writeURLs(path string, urls []string) error {
	if strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		b, err := export.StagedURLsXLSX(urls, nil)
		if err != nil {
			return err
		}
		return os.WriteFile(path, b, 0o644)
	}
	return os.WriteFile(path, []byte(strings.Join(urls, "\n")+"\n"), 0o644)
}
