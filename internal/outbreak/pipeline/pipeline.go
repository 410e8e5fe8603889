// Package pipeline wires FeatureBuilder, Clusterer, TemporalSplitter,
// IdentityManager, SnapshotBuilder, and Forecaster into the three RPC
// operations of spec.md §6, the way
// internal/lidar/analysis_run_manager.go's AnalysisRunManager
// sequences a single analysis run end to end.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/outbreak-cluster/internal/monitoring"
	"github.com/banshee-data/outbreak-cluster/internal/outbreak"
	"github.com/banshee-data/outbreak-cluster/internal/outbreak/cluster"
	"github.com/banshee-data/outbreak-cluster/internal/outbreak/feature"
	"github.com/banshee-data/outbreak-cluster/internal/outbreak/forecast"
	"github.com/banshee-data/outbreak-cluster/internal/outbreak/geo"
	"github.com/banshee-data/outbreak-cluster/internal/outbreak/geojson"
	"github.com/banshee-data/outbreak-cluster/internal/outbreak/identity"
	"github.com/banshee-data/outbreak-cluster/internal/outbreak/infer"
	"github.com/banshee-data/outbreak-cluster/internal/outbreak/snapshot"
	"github.com/banshee-data/outbreak-cluster/internal/outbreak/store"
	"github.com/banshee-data/outbreak-cluster/internal/timeutil"
)

// ReportReader reads every report currently stored, the input to
// ProcessClusters. The report store itself is out of scope (spec.md
// §1); this is the abstracted "reader producing reports" boundary.
type ReportReader interface {
	AllReports(ctx context.Context) ([]outbreak.Report, error)
}

// ReportWriter persists a newly generated report and returns its id.
type ReportWriter interface {
	PutReport(ctx context.Context, r outbreak.Report) (int64, error)
}

// Engine is the pipeline.Engine of SPEC_FULL.md: it holds every
// collaborator the three RPC operations need and no other state.
type Engine struct {
	Reports  ReportReader
	Writer   ReportWriter
	Inferer  infer.SymptomInferer
	Embedder infer.Embedder
	Runs     store.RunStore
	History  store.History
	Config   outbreak.Config
	Clock    timeutil.Clock

	identity *identity.Manager
}

// NewEngine builds an Engine, wiring the identity manager to Runs
// (which satisfies both identity.CounterSource and
// identity.MappingSource).
func NewEngine(reports ReportReader, writer ReportWriter, inferer infer.SymptomInferer, embedder infer.Embedder, runs store.RunStore, history store.History, cfg outbreak.Config) *Engine {
	return &Engine{
		Reports:  reports,
		Writer:   writer,
		Inferer:  inferer,
		Embedder: embedder,
		Runs:     runs,
		History:  history,
		Config:   cfg,
		Clock:    timeutil.RealClock{},
		identity: identity.NewManager(runs, runs),
	}
}

// GenerateSymptomReport implements spec.md §6 operation 1: infers
// symptoms and cause from text, embeds the resulting summary, projects
// the coordinate, and persists the completed report.
func (e *Engine) GenerateSymptomReport(ctx context.Context, text string, lat, lon float64) (outbreak.Report, bool, error) {
	symptoms, cause, success, err := e.Inferer.Infer(ctx, text)
	if err != nil {
		return outbreak.Report{}, false, outbreak.NewPipelineError(outbreak.ErrKindModel, fmt.Errorf("infer symptoms: %w", err))
	}
	if !success {
		return outbreak.Report{}, false, nil
	}

	summary := infer.GenerateSummary(symptoms, cause)
	embedding, err := e.Embedder.Embed(ctx, summary)
	if err != nil {
		return outbreak.Report{}, false, outbreak.NewPipelineError(outbreak.ErrKindModel, fmt.Errorf("embed summary: %w", err))
	}
	if !feature.ValidEmbedding(embedding, infer.EmbeddingDimension) {
		return outbreak.Report{}, false, outbreak.NewPipelineError(outbreak.ErrKindModel, fmt.Errorf("embedder returned invalid embedding"))
	}

	utmX, utmY := geo.ProjectEquirectangular(lat, lon)
	report := outbreak.Report{
		Timestamp: e.Clock.Now().UTC(),
		Lat:       lat,
		Lon:       lon,
		UTMX:      utmX,
		UTMY:      utmY,
		Symptoms:  symptoms,
		Embedding: embedding,
	}

	id, err := e.Writer.PutReport(ctx, report)
	if err != nil {
		return outbreak.Report{}, false, outbreak.NewPipelineError(outbreak.ErrKindTransientStore, fmt.Errorf("persist report: %w", err))
	}
	report.ID = id
	return report, true, nil
}

// ProcessClusters implements spec.md §6 operation 2: runs the full
// pipeline across every current report and persists one versioned run.
func (e *Engine) ProcessClusters(ctx context.Context) (bool, error) {
	reports, err := e.Reports.AllReports(ctx)
	if err != nil {
		return false, outbreak.NewPipelineError(outbreak.ErrKindTransientStore, fmt.Errorf("read reports: %w", err))
	}

	valid := make([]outbreak.Report, 0, len(reports))
	for _, r := range reports {
		if feature.ValidEmbedding(r.Embedding, infer.EmbeddingDimension) {
			valid = append(valid, r)
			continue
		}
		monitoring.Logf("pipeline: skipping report %d with invalid embedding", r.ID)
	}

	matrix, err := feature.BuildFeatures(valid)
	if err != nil {
		return false, outbreak.NewPipelineError(outbreak.ErrKindInput, fmt.Errorf("build features: %w", err))
	}

	labels := cluster.DBSCAN(matrix, cluster.Params{
		EpsMeters:  e.Config.EpsMeters,
		MinSamples: e.Config.MinSamples,
	})
	labels = cluster.SplitByTimeGap(labels, valid, e.Config.MaxTimeGapDays)

	identityMap, reportsMap, nextCounter, err := e.identity.Assign(ctx, labels, valid, nil, nil)
	if err != nil {
		return false, outbreak.NewPipelineError(outbreak.ErrKindTransientStore, fmt.Errorf("assign cluster identity: %w", err))
	}

	timedeltas := snapshot.Build(labels, valid, identityMap, e.Config.TimedeltaDays)

	history, err := e.gatherHistory(ctx, timedeltas)
	if err != nil {
		return false, err
	}

	predictions := forecast.ForecastAll(history, forecast.Params{
		Steps:           e.Config.ForecastSteps,
		MinObservations: e.Config.MinObservations,
	})

	in := store.PutRunInput{
		Parameters:     e.Config,
		TotalReports:   len(valid),
		TotalClusters:  countClusters(identityMap),
		Timedeltas:     timedeltas,
		Predictions:    predictions,
		IdentityMap:    identityMap,
		ClusterReports: reportsMap,
		NextCounter:    nextCounter,
	}

	if _, err := e.Runs.PutRun(ctx, in); err != nil {
		return false, outbreak.NewPipelineError(outbreak.ErrKindTransientStore, fmt.Errorf("persist run: %w", err))
	}
	return true, nil
}

// gatherHistory merges this run's freshly built snapshots with the
// Forecaster's lookback window of prior completed runs, per cluster,
// so a cluster's VAR fit sees today's observation too.
func (e *Engine) gatherHistory(ctx context.Context, timedeltas []outbreak.TimedeltaSnapshot) (map[outbreak.ClusterID][]outbreak.ClusterSnapshot, error) {
	history := make(map[outbreak.ClusterID][]outbreak.ClusterSnapshot)
	if e.History != nil {
		past, err := e.History.ClusterHistory(ctx, e.Config.RetentionRuns)
		if err != nil {
			return nil, outbreak.NewPipelineError(outbreak.ErrKindTransientStore, fmt.Errorf("read cluster history: %w", err))
		}
		for id, snapshots := range past {
			history[id] = append(history[id], snapshots...)
		}
	}
	for _, td := range timedeltas {
		for _, cs := range td.Snapshots {
			history[cs.ClusterID] = append(history[cs.ClusterID], cs)
		}
	}
	return history, nil
}

func countClusters(identityMap outbreak.IdentityMap) int {
	seen := make(map[outbreak.ClusterID]bool, len(identityMap))
	for _, id := range identityMap {
		seen[id] = true
	}
	return len(seen)
}

// FetchResult is FetchLatestData's return value.
type FetchResult struct {
	TimeWindowStart time.Time
	TimeWindowEnd   time.Time
	GeoJSON         geojson.FeatureCollection
}

// FetchLatestData implements spec.md §6 operation 3: serializes the
// latest completed run's snapshots as a GeoJSON FeatureCollection.
func (e *Engine) FetchLatestData(ctx context.Context) (FetchResult, error) {
	timedeltas, err := e.Runs.GetLatest(ctx)
	if err != nil {
		return FetchResult{}, outbreak.NewPipelineError(outbreak.ErrKindTransientStore, fmt.Errorf("read latest run: %w", err))
	}

	start, end := geojson.WindowBounds(timedeltas)
	fc := geojson.BuildFeatureCollection(timedeltas, e.Clock.Now().UTC())

	return FetchResult{
		TimeWindowStart: start,
		TimeWindowEnd:   end,
		GeoJSON:         fc,
	}, nil
}
