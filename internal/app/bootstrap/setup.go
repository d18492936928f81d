package bootstrap

import (
	"context"

	"github.com/charmbracelet/log"

	"kestrel/internal/blocklist"
	"kestrel/internal/config"
	"kestrel/internal/database"
	"kestrel/internal/geo"
	jobruntime "kestrel/internal/jobs/runtime"
	"kestrel/internal/tracking"
)

// Setup wires the pipeline: configuration, storage, the block-list snapshot,
// the resolver/ingestor pair, and the detection routine.
func Setup(ctx context.Context) *tracking.Ingestor {
	config.ReadSettings()

	if _, err := database.SetupDB(); err != nil {
		log.Fatalf("failed to set up database: %v", err)
	}
	config.SetIntervals()

	if err := blocklist.Initialize(ctx); err != nil {
		// An empty snapshot fails open; enforcement resumes on the next reload.
		log.Error("Failed to hydrate block list cache", "error", err)
	}

	ingestor := tracking.NewIngestor(buildResolver())

	// Routines

	go jobruntime.StartDetectionRoutine(ctx)

	return ingestor
}

func buildResolver() *geo.Resolver {
	cfg := config.GetConfig()

	var lookup geo.Lookup
	if path := cfg.Geolocation.MaxMindDBPath; path != "" {
		maxmind, err := geo.NewMaxMindLookup(path)
		if err != nil {
			log.Warn("MaxMind database unavailable, falling back to remote lookup", "path", path, "error", err)
		} else {
			lookup = maxmind
		}
	}
	if lookup == nil && cfg.Geolocation.LookupURL != "" {
		lookup = geo.NewHTTPLookup(cfg.Geolocation.LookupURL, config.GetLookupTimeout())
	}
	if lookup == nil {
		log.Warn("No geolocation lookup configured; requests will be recorded without location")
	}

	return geo.NewResolver(lookup, geo.ResolverOptions{
		MemoryTTL:     config.GetMemoryCacheTTL(),
		DurableTTL:    config.GetDurableCacheTTL(),
		LookupTimeout: config.GetLookupTimeout(),
	})
}
