package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joseph-ayodele/casda-stager/internal/casda"
	"github.com/joseph-ayodele/casda-stager/internal/common"
	"github.com/joseph-ayodele/casda-stager/internal/manifest"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		ra         = flag.Float64("ra", 0, "right ascension in degrees (FK5)")
		dec        = flag.Float64("dec", 0, "declination in degrees (FK5)")
		radius     = flag.Float64("radius", 0, "cone radius in degrees")
		width      = flag.Float64("width", 0, "box width in degrees")
		height     = flag.Float64("height", 0, "box height in degrees")
		released   = flag.Bool("released-only", true, "drop rows that are not yet public")
		payload    = flag.Bool("payload", false, "print the request parameters and exit")
		asManifest = flag.Bool("manifest", false, "print a staging manifest instead of full rows")
	)
	flag.Parse()

	region := casda.Region{RA: *ra, Dec: *dec, Radius: *radius, Width: *width, Height: *height}
	if *payload {
		params, err := casda.RegionPayload(region)
		if err != nil {
			printError("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(params.Encode())
		return
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	client := casda.NewFromConfig(cfg.Archive, nil, logger)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Archive.Timeout+5*time.Second)
	defer cancel()

	table, err := client.QueryRegion(ctx, region)
	if err != nil {
		logger.Error("query failed", "error", err)
		os.Exit(1)
	}
	if *released {
		table, err = casda.FilterOutUnreleased(table, time.Now())
		if err != nil {
			logger.Error("filter failed", "error", err)
			os.Exit(1)
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	var out any = table.Records()
	if *asManifest {
		out = manifest.FromTable(table)
	}
	if err := enc.Encode(out); err != nil {
		logger.Error("encode failed", "error", err)
		os.Exit(1)
	}
}
