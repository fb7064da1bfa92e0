// Command collector-r2 polls a GBFS station_status feed and uploads every
// poll to R2 as its own CSV snapshot object.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-lab/go/flagx"

	"bikeshare-logger/internal/collector"
	"bikeshare-logger/internal/config"
	"bikeshare-logger/internal/gbfs"
	"bikeshare-logger/internal/snapshot"
	"bikeshare-logger/internal/storage"
)

func main() {
	var (
		discoveryURL = flag.String("discovery-url", gbfs.DefaultDiscoveryURL, "GBFS discovery (gbfs.json) URL")
		language     = flag.String("feed-language", gbfs.DefaultLanguage, "discovery document language searched first")
		timeout      = flag.Duration("timeout", gbfs.DefaultTimeout, "HTTP request timeout")
		interval     = flag.Duration("interval", 5*time.Minute, "Fetch interval (set to 0 for one-shot mode)")
		oneShot      = flag.Bool("once", false, "Run once and exit")
		classicTypes flagx.StringArray
		ebikeTypes   flagx.StringArray
	)
	flag.Var(&classicTypes, "classic-types", "vehicle_type_id counted as classic bikes (repeatable, default 1)")
	flag.Var(&ebikeTypes, "ebike-types", "vehicle_type_id counted as electric bikes (repeatable, default 2)")
	flag.Parse()
	if err := flagx.ArgsFromEnv(flag.CommandLine); err != nil {
		log.Fatalf("Failed to get args from the environment: %v", err)
	}

	// Load R2 configuration from .env or environment variables
	cfg, err := config.LoadR2Config()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	// Log configuration (without secrets)
	log.Printf("R2 Configuration:")
	log.Printf("  Endpoint: %s", cfg.Endpoint)
	log.Printf("  Bucket: %s", cfg.BucketName)
	log.Printf("  Region: %s", cfg.Region)
	log.Printf("  Prefix: %s", cfg.Prefix)

	client := gbfs.NewClientWithEndpoint(*discoveryURL, *language, *timeout)
	store, err := storage.NewR2Storage(cfg.Options())
	if err != nil {
		log.Fatalf("Failed to initialize R2 storage: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Verify bucket exists - this helps catch configuration issues early
	log.Println("Verifying R2 bucket access...")
	exists, err := store.BucketExists(ctx)
	if err != nil {
		log.Fatalf("Bucket verification failed: %v", err)
	}
	if !exists {
		log.Fatalf("Bucket '%s' does not exist or is not accessible", cfg.BucketName)
	}
	log.Println("Bucket verified successfully")

	types := snapshot.DefaultVehicleTypes()
	if len(classicTypes) > 0 {
		types.Classic = []string(classicTypes)
	}
	if len(ebikeTypes) > 0 {
		types.EBike = []string(ebikeTypes)
	}

	c := collector.New(client, store, types)

	// Perform initial fetch
	if _, err := c.Run(ctx); err != nil {
		log.Fatalf("Initial fetch failed: %v", err)
	}

	// If one-shot mode, exit after first fetch
	if *oneShot || *interval == 0 {
		log.Println("One-shot mode: exiting after single fetch")
		return
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	log.Printf("Collector running with %v interval. Press Ctrl+C to stop.", *interval)

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
