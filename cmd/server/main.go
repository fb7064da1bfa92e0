// Command server exposes the logged station rows as a JSON API.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"

	"bikeshare-logger/internal/collector"
	"bikeshare-logger/internal/config"
	"bikeshare-logger/internal/gbfs"
	"bikeshare-logger/internal/snapshot"
	"bikeshare-logger/internal/storage"
	"bikeshare-logger/internal/web"
)

func main() {
	var (
		port         = flag.Int("port", 8080, "HTTP server port")
		layout       = flag.String("layout", string(storage.LayoutSingle), "local log layout: single or daily")
		logFile      = flag.String("log-file", storage.DefaultHistoryFile, "log file for the single layout")
		dataDir      = flag.String("data-dir", storage.DefaultDataDir, "directory for the daily layout")
		useR2        = flag.Bool("r2", false, "Read snapshot objects from Cloudflare R2 instead of local files")
		live         = flag.Bool("live", true, "Fall back to the live feed when no data is stored")
		discoveryURL = flag.String("discovery-url", gbfs.DefaultDiscoveryURL, "GBFS discovery URL for the live fallback")
	)
	flag.Parse()

	config.LoadEnvFile()

	// Allow overriding via environment variable
	if os.Getenv("USE_R2") != "" {
		*useR2 = true
	}
	// Allow overriding port via environment variable
	if portEnv := os.Getenv("PORT"); portEnv != "" {
		if _, err := fmt.Sscanf(portEnv, "%d", port); err != nil {
			log.Fatalf("Invalid PORT %q: %v", portEnv, err)
		}
	}

	var dataStore storage.DataStore

	if *useR2 {
		log.Println("Using Cloudflare R2 for data storage")
		cfg, err := config.LoadR2Config()
		if err != nil {
			log.Fatalf("Failed to load R2 config: %v", err)
		}

		dataStore, err = storage.NewR2Storage(cfg.Options())
		if err != nil {
			log.Fatalf("Failed to initialize R2 storage: %v", err)
		}

		log.Printf("R2 Bucket: %s", cfg.BucketName)
	} else {
		l, err := storage.ParseLayout(*layout)
		if err != nil {
			log.Fatalf("Configuration error: %v", err)
		}
		log.Println("Using local file storage")
		dataStore, err = storage.NewCSVStorage(storage.CSVOptions{
			Layout: l,
			File:   *logFile,
			Dir:    *dataDir,
		})
		if err != nil {
			log.Fatalf("Failed to initialize CSV storage: %v", err)
		}
	}

	var source collector.Source
	if *live {
		source = gbfs.NewClientWithEndpoint(*discoveryURL, gbfs.DefaultLanguage, gbfs.DefaultTimeout)
	}

	handler := web.NewHandler(dataStore, source, snapshot.DefaultVehicleTypes())

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("Starting server on http://localhost%s", addr)

	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
