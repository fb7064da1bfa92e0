package main

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/m-lab/go/flagx"

	"bikeshare-logger/internal/gbfs"
	"bikeshare-logger/internal/snapshot"
	"bikeshare-logger/internal/storage"
)

const (
	archiveNone = "none"
	archiveR2   = "r2"
	archiveGCS  = "gcs"
)

var (
	errExtraArgs      = errors.New("extra arguments on the command line")
	errNoDiscoveryURL = errors.New("must specify discovery-url")
	errArchive        = errors.New("archive must be one of none, r2, gcs")
	errNegative       = errors.New("must not be negative")
	errTypeOverlap    = errors.New("vehicle type id listed as both classic and ebike")
)

// options holds the parsed command line.
type options struct {
	discoveryURL string
	language     string
	layout       storage.Layout
	file         string
	dataDir      string
	withClassics bool
	types        snapshot.VehicleTypes
	timeout      time.Duration
	interval     time.Duration
	once         bool
	archive      string
}

// parseAndValidateCLI parses args into options. Flags not given on the
// command line are also read from the environment, e.g. -data-dir from
// DATA_DIR.
func parseAndValidateCLI(fs *flag.FlagSet, args []string) (*options, error) {
	var (
		opts         options
		layout       string
		classicTypes flagx.StringArray
		ebikeTypes   flagx.StringArray
	)

	fs.StringVar(&opts.discoveryURL, "discovery-url", gbfs.DefaultDiscoveryURL, "GBFS discovery (gbfs.json) URL")
	fs.StringVar(&opts.language, "feed-language", gbfs.DefaultLanguage, "discovery document language searched first")
	fs.StringVar(&layout, "layout", string(storage.LayoutSingle), "log layout: single (one growing file) or daily (one file per date)")
	fs.StringVar(&opts.file, "log-file", storage.DefaultHistoryFile, "log file for the single layout")
	fs.StringVar(&opts.dataDir, "data-dir", storage.DefaultDataDir, "directory for the daily layout")
	fs.BoolVar(&opts.withClassics, "classics", false, "add the num_classics column to new log files")
	fs.Var(&classicTypes, "classic-types", "vehicle_type_id counted as classic bikes (repeatable, default 1)")
	fs.Var(&ebikeTypes, "ebike-types", "vehicle_type_id counted as electric bikes (repeatable, default 2)")
	fs.DurationVar(&opts.timeout, "timeout", gbfs.DefaultTimeout, "HTTP request timeout")
	fs.DurationVar(&opts.interval, "interval", 0, "fetch interval (0 for one-shot mode)")
	fs.BoolVar(&opts.once, "once", false, "run once and exit")
	fs.StringVar(&opts.archive, "archive", archiveNone, "mirror the log file after each poll: none, r2 or gcs")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 0 {
		return nil, errExtraArgs
	}
	if err := flagx.ArgsFromEnv(fs); err != nil {
		return nil, fmt.Errorf("failed to get args from the environment: %w", err)
	}

	var err error
	if opts.layout, err = storage.ParseLayout(layout); err != nil {
		return nil, err
	}
	if opts.discoveryURL == "" {
		return nil, errNoDiscoveryURL
	}
	if opts.timeout < 0 {
		return nil, fmt.Errorf("timeout %w", errNegative)
	}
	if opts.interval < 0 {
		return nil, fmt.Errorf("interval %w", errNegative)
	}
	switch opts.archive {
	case archiveNone, archiveR2, archiveGCS:
	default:
		return nil, fmt.Errorf("%w: %q", errArchive, opts.archive)
	}

	opts.types = snapshot.DefaultVehicleTypes()
	if len(classicTypes) > 0 {
		opts.types.Classic = []string(classicTypes)
	}
	if len(ebikeTypes) > 0 {
		opts.types.EBike = []string(ebikeTypes)
	}
	for _, id := range opts.types.Classic {
		for _, other := range opts.types.EBike {
			if id == other {
				return nil, fmt.Errorf("%w: %q", errTypeOverlap, id)
			}
		}
	}

	return &opts, nil
}

func (o *options) csvOptions() storage.CSVOptions {
	return storage.CSVOptions{
		Layout:       o.layout,
		File:         o.file,
		Dir:          o.dataDir,
		WithClassics: o.withClassics,
	}
}
