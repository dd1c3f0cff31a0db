package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/berlin-traffic-map/roadkpi/internal/config"
	"github.com/berlin-traffic-map/roadkpi/internal/detector"
	"github.com/berlin-traffic-map/roadkpi/internal/geo"
	"github.com/berlin-traffic-map/roadkpi/internal/kpi"
	"github.com/berlin-traffic-map/roadkpi/internal/matcher"
	"github.com/berlin-traffic-map/roadkpi/internal/pipeline"
	"github.com/berlin-traffic-map/roadkpi/internal/queue"
	"github.com/berlin-traffic-map/roadkpi/internal/roadnet"
	"github.com/berlin-traffic-map/roadkpi/internal/snapshot"
	"github.com/berlin-traffic-map/roadkpi/internal/store"
)

// runRecorder is implemented by stores that audit generator runs
type runRecorder interface {
	StartRun(ctx context.Context, runID string, startedAt time.Time) error
	FinishRun(ctx context.Context, runID string, written, skipped, failed int) error
}

func main() {
	cfg := config.Load()

	reset := flag.Bool("reset", false, "Delete all stored snapshots before generating")
	kpiPath := flag.String("kpi", cfg.KPIPath, "Path to the hourly detector KPI CSV (optionally gzipped)")
	metadataPath := flag.String("metadata", cfg.MetadataPath, "Path to the detector metadata (xlsx or csv)")
	workers := flag.Int("workers", cfg.Workers, "Number of time slices processed concurrently")
	backend := flag.String("store", cfg.StoreBackend, "Snapshot store: file, sqlite, postgres or mongo")
	flag.Parse()
	cfg.StoreBackend = *backend

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runID := uuid.New().String()
	started := time.Now()
	log.Printf("Starting snapshot generation run %s", runID)

	// ═══════════════════════════════════════════════════════
	// PHASE 1: Load and filter KPI data
	// ═══════════════════════════════════════════════════════
	log.Printf("Loading KPI data from %s (quality >= %.2f)...", *kpiPath, cfg.QualityThreshold)
	dataset, err := kpi.Load(*kpiPath, cfg.QualityThreshold)
	if err != nil {
		log.Fatalf("Failed to load KPI data: %v", err)
	}
	log.Printf("KPI rows: %d read, %d kept, %d below quality, %d malformed",
		dataset.Stats.Rows, dataset.Stats.Kept, dataset.Stats.BelowQuality, dataset.Stats.Malformed)

	// ═══════════════════════════════════════════════════════
	// PHASE 2: Join detector metadata
	// ═══════════════════════════════════════════════════════
	catalog, err := detector.LoadCatalog(*metadataPath, cfg.MetadataSheet)
	if err != nil {
		log.Fatalf("Failed to load detector metadata: %v", err)
	}
	log.Printf("Detector metadata: %d detectors (%d without coordinates, %d duplicate ids)",
		catalog.Len(), catalog.Dropped, catalog.Duplicates)

	rows, stats := detector.Enrich(dataset.Readings, catalog)
	if stats.MissingMetadata > 0 {
		log.Printf("Warning: %d readings have no detector location and were dropped", stats.MissingMetadata)
	}
	slices := detector.SplitByTimestamp(rows)
	log.Printf("Enriched %d readings into %d time slices", stats.Joined, len(slices))

	// ═══════════════════════════════════════════════════════
	// PHASE 3: Road network and spatial index
	// ═══════════════════════════════════════════════════════
	network, err := roadnet.NewProvider(cfg).Load(ctx)
	if err != nil {
		log.Fatalf("Failed to load road network: %v", err)
	}
	log.Printf("Road network: %d segments from %s", len(network.Segments), network.Source)

	crs := geo.UTM(cfg.UTMZone, true)
	m, err := matcher.New(network, crs)
	if err != nil {
		log.Fatalf("Failed to build spatial index: %v", err)
	}
	log.Printf("Spatial index ready (%s)", crs)

	// ═══════════════════════════════════════════════════════
	// PHASE 4: Snapshot store and events
	// ═══════════════════════════════════════════════════════
	st, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.StoreBackend, err)
	}
	defer st.Close()
	log.Printf("Using %s snapshot store", cfg.StoreBackend)

	events := queue.NewPublisher(cfg.KafkaBrokers, cfg.KafkaSnapshotTopic)
	defer events.Close()
	if len(cfg.KafkaBrokers) > 0 {
		log.Printf("Publishing snapshot events to %s", cfg.KafkaSnapshotTopic)
	}

	if *reset {
		log.Println("Resetting snapshot store...")
		if err := st.Reset(ctx); err != nil {
			log.Fatalf("Failed to reset store: %v", err)
		}
		if n := pipeline.AnnounceReset(ctx, events, runID, nil); n > 0 {
			log.Printf("Warning: %d reset events not published, cached responses expire after %s", n, cfg.CacheTTL)
		}
	}

	recorder, recordsRuns := st.(runRecorder)
	if recordsRuns {
		if err := recorder.StartRun(ctx, runID, started); err != nil {
			log.Printf("Warning: %v", err)
		}
	}

	// ═══════════════════════════════════════════════════════
	// PHASE 5: Generate snapshots
	// ═══════════════════════════════════════════════════════
	p := &pipeline.Pipeline{
		Matcher:  m,
		Columns:  dataset,
		Packager: &snapshot.Packager{Tolerance: cfg.SimplifyTolerance, RunID: runID},
		Store:    st,
		Events:   events,
		Workers:  *workers,
	}
	summary, runErr := p.Run(ctx, slices)

	if recordsRuns {
		// the run context may be cancelled already
		finishCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := recorder.FinishRun(finishCtx, runID, summary.Written, summary.Skipped, summary.Failed); err != nil {
			log.Printf("Warning: %v", err)
		}
		cancel()
	}

	log.Printf("Run %s finished in %v: %s", runID, time.Since(started).Round(time.Millisecond), summary)
	if runErr != nil {
		log.Printf("Run interrupted: %v", runErr)
		events.Close()
		st.Close()
		os.Exit(1)
	}
}
