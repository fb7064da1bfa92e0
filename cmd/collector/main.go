// Command collector polls a GBFS station_status feed and appends one CSV row
// per station to a local log, optionally mirroring the log to R2 or GCS.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bikeshare-logger/internal/collector"
	"bikeshare-logger/internal/config"
	"bikeshare-logger/internal/gbfs"
	"bikeshare-logger/internal/gcs"
	"bikeshare-logger/internal/storage"
)

func main() {
	config.LoadEnvFile()

	opts, err := parseAndValidateCLI(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := gbfs.NewClientWithEndpoint(opts.discoveryURL, opts.language, opts.timeout)
	store, err := storage.NewCSVStorage(opts.csvOptions())
	if err != nil {
		log.Fatalf("Failed to initialize CSV storage: %v", err)
	}

	collectorOpts, closeArchive, err := archiveOption(ctx, opts.archive)
	if err != nil {
		log.Fatalf("Failed to initialize %s archive: %v", opts.archive, err)
	}
	defer closeArchive()

	c := collector.New(client, store, opts.types, collectorOpts...)

	// Perform initial fetch
	if _, err := c.Run(ctx); err != nil {
		stop()
		closeArchive()
		log.Fatalf("Fetch failed: %v", err)
	}

	// If one-shot mode, exit after first fetch
	if opts.once || opts.interval == 0 {
		return
	}

	ticker := time.NewTicker(opts.interval)
	defer ticker.Stop()

	log.Printf("Collector running with %v interval. Press Ctrl+C to stop.", opts.interval)

	for {
		select {
		case <-ticker.C:
			if _, err := c.Run(ctx); err != nil {
				log.Printf("Fetch failed: %v", err)
			}
		case <-ctx.Done():
			log.Printf("Received signal, shutting down")
			return
		}
	}
}

// archiveOption builds the collector option for the requested archive and
// a cleanup func that is always safe to call.
func archiveOption(ctx context.Context, archive string) ([]collector.Option, func(), error) {
	noop := func() {}

	switch archive {
	case archiveR2:
		cfg, err := config.LoadR2Config()
		if err != nil {
			return nil, noop, err
		}
		log.Printf("Archiving to R2 bucket %s under %s", cfg.BucketName, cfg.ArchivePrefix)
		store, err := storage.NewR2Storage(cfg.Options())
		if err != nil {
			return nil, noop, err
		}
		return []collector.Option{collector.WithArchiver(store)}, noop, nil

	case archiveGCS:
		cfg, err := config.LoadGCSConfig()
		if err != nil {
			return nil, noop, err
		}
		log.Printf("Archiving to GCS bucket %s under %s", cfg.Bucket, cfg.Prefix)
		client, err := gcs.NewClient(ctx, cfg.Bucket, cfg.Prefix)
		if err != nil {
			return nil, noop, err
		}
		closeClient := func() {
			if err := client.Close(); err != nil {
				log.Printf("Failed to close GCS client: %v", err)
			}
		}
		return []collector.Option{collector.WithArchiver(client)}, closeClient, nil
	}

	return nil, noop, nil
}
