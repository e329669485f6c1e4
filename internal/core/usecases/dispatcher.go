package usecases

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/osmfj/MapComplete/internal/core/domain"
	"github.com/osmfj/MapComplete/internal/core/ports"
	"github.com/osmfj/MapComplete/internal/core/tags"
	"github.com/osmfj/MapComplete/internal/pkg/geospatial"
	"github.com/osmfj/MapComplete/internal/pkg/metrics"
	"github.com/osmfj/MapComplete/internal/pkg/observable"
	"github.com/osmfj/MapComplete/internal/pkg/telemetry"
)

var tracer = telemetry.Tracer("loader")

// Reasons a trigger did not dispatch, as reported in metrics.
const (
	SkipNoViewport = "no_viewport"
	SkipCovered    = "covered"
	SkipInFlight   = "in_flight"
	SkipStopped    = "stopped"
)

// DispatcherDeps are the collaborators of a QueryDispatcher. Query, Viewport
// and Layout are required; the rest may be nil.
type DispatcherDeps struct {
	Query     ports.QueryService
	Viewport  ports.ViewportProvider
	Layout    ports.LayoutProvider
	FetchLog  ports.FetchLogRepository
	Events    ports.EventPublisher
	Snapshots ports.SnapshotStore
}

// DispatcherOptions tune the failure policy and the initial state.
type DispatcherOptions struct {
	// RetryBase is the linear backoff unit; zero means DefaultRetryBase.
	RetryBase time.Duration
	// DisableImmediateRetry keeps only the delayed re-trigger after a failure.
	DisableImmediateRetry bool
	// Scheduler runs delayed re-triggers; nil means TimerScheduler.
	Scheduler Scheduler
	// InitialFeatures is served until the first commit, e.g. a snapshot
	// shared by another replica. Freshness stays unknown and coverage empty.
	InitialFeatures *geojson.FeatureCollection
}

type dispatch struct {
	id       string
	bucket   int
	bounds   domain.Bounds
	filter   tags.Filter
	layerIDs []string
	started  time.Time
}

// QueryDispatcher keeps the loaded map data in step with the viewport.
//
// Every trigger fuses the filters of the layers that are not yet covered and,
// if anything is left and no query is in flight, issues exactly one query for
// the widened viewport. Triggers that arrive while a query runs are dropped,
// not queued. A successful query is recorded in the coverage cache; a failed
// one clears the cache and is retried with linear backoff, forever.
type QueryDispatcher struct {
	query     ports.QueryService
	viewport  ports.ViewportProvider
	layout    ports.LayoutProvider
	fetchLog  ports.FetchLogRepository
	events    ports.EventPublisher
	snapshots ports.SnapshotStore

	cache          *ZoomBoundsCache
	retry          *RetryController
	immediateRetry bool

	features           *observable.Value[*geojson.FeatureCollection]
	freshness          *observable.Value[time.Time]
	runningQuery       *observable.Value[bool]
	retries            *observable.Value[int]
	sufficientlyZoomed *observable.Value[bool]

	// mu serializes trigger evaluation and completion handling. The
	// observables are stored under mu and notified after it is released.
	mu      sync.Mutex
	running bool
	stopped bool
	baseCtx context.Context
	unsubs  []func()

	inflight sync.WaitGroup
}

// NewQueryDispatcher creates an idle dispatcher with an empty cache. Call
// Start to subscribe it to viewport and layout changes.
func NewQueryDispatcher(deps DispatcherDeps, opts DispatcherOptions) *QueryDispatcher {
	features := &observable.Value[*geojson.FeatureCollection]{}
	if opts.InitialFeatures != nil {
		features = observable.New(opts.InitialFeatures)
	}
	return &QueryDispatcher{
		query:     deps.Query,
		viewport:  deps.Viewport,
		layout:    deps.Layout,
		fetchLog:  deps.FetchLog,
		events:    deps.Events,
		snapshots: deps.Snapshots,

		cache:          NewZoomBoundsCache(),
		retry:          NewRetryController(opts.RetryBase, opts.Scheduler),
		immediateRetry: !opts.DisableImmediateRetry,

		features:           features,
		freshness:          &observable.Value[time.Time]{},
		runningQuery:       observable.New(false),
		retries:            observable.New(0),
		sufficientlyZoomed: observable.New(false),

		baseCtx: context.Background(),
	}
}

// Features is the most recently committed collection. It is replaced, never merged.
func (d *QueryDispatcher) Features() observable.View[*geojson.FeatureCollection] {
	return d.features.View()
}

// Freshness is the server-reported data time of the last successful query.
func (d *QueryDispatcher) Freshness() observable.View[time.Time] { return d.freshness.View() }

// RunningQuery is true while a query is in flight.
func (d *QueryDispatcher) RunningQuery() observable.View[bool] { return d.runningQuery.View() }

// Retries is the number of consecutive failed queries.
func (d *QueryDispatcher) Retries() observable.View[int] { return d.retries.View() }

// SufficientlyZoomed is true when the viewport zoom reaches the lowest layer minzoom.
func (d *QueryDispatcher) SufficientlyZoomed() observable.View[bool] {
	return d.sufficientlyZoomed.View()
}

// Start subscribes to viewport and layout changes and evaluates the current
// state once. ctx is used for triggers that do not carry their own.
func (d *QueryDispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	d.baseCtx = ctx
	d.unsubs = append(d.unsubs,
		d.viewport.SubscribeViewport(func(domain.Viewport) { d.onChange() }),
		d.layout.SubscribeLayout(func(domain.Layout) { d.onChange() }),
	)
	d.mu.Unlock()

	d.onChange()
}

func (d *QueryDispatcher) onChange() {
	d.updateSufficientlyZoomed()
	d.Trigger(d.context())
}

func (d *QueryDispatcher) context() context.Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.baseCtx
}

func (d *QueryDispatcher) updateSufficientlyZoomed() {
	d.mu.Lock()
	zoomed := false
	if vp, ok := d.viewport.Viewport(); ok {
		minZoom, ok := d.layout.Layout().MinZoom()
		zoomed = ok && vp.Zoom >= float64(minZoom)
	}
	notify := d.sufficientlyZoomed.Store(zoomed)
	d.mu.Unlock()
	notify()
}

// Stop unsubscribes, cancels pending retries and waits for the in-flight
// query to complete. An in-flight query is never cancelled.
func (d *QueryDispatcher) Stop() {
	d.mu.Lock()
	d.stopped = true
	unsubs := d.unsubs
	d.unsubs = nil
	d.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	d.retry.Stop()
	d.inflight.Wait()
}

// Wait blocks until no query is in flight, including any re-dispatched by a
// failure while waiting.
func (d *QueryDispatcher) Wait() {
	d.inflight.Wait()
}

// ForceRefresh clears the coverage cache and triggers a dispatch. A query
// already in flight still commits its own bounds when it completes.
func (d *QueryDispatcher) ForceRefresh(ctx context.Context) bool {
	d.mu.Lock()
	d.cache.InvalidateAll()
	d.mu.Unlock()
	metrics.CachedBounds.Set(0)
	slog.Info("coverage cache invalidated", "reason", "force_refresh")
	return d.Trigger(ctx)
}

// Trigger evaluates whether a query is needed and starts it. It returns true
// if a query was dispatched.
func (d *QueryDispatcher) Trigger(ctx context.Context) bool {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		metrics.TriggersSkipped.WithLabelValues(SkipStopped).Inc()
		return false
	}
	vp, ok := d.viewport.Viewport()
	if !ok {
		d.mu.Unlock()
		metrics.TriggersSkipped.WithLabelValues(SkipNoViewport).Inc()
		return false
	}
	layout := d.layout.Layout()

	filter, layerIDs, ok := FuseFilter(layout.Layers, vp.Zoom, vp.Bounds, d.cache)
	if !ok {
		d.mu.Unlock()
		metrics.TriggersSkipped.WithLabelValues(SkipCovered).Inc()
		return false
	}
	if d.running {
		d.mu.Unlock()
		metrics.TriggersSkipped.WithLabelValues(SkipInFlight).Inc()
		slog.Debug("still running a query, skip", "layers", layerIDs)
		return false
	}

	req := dispatch{
		id:       uuid.NewString(),
		bucket:   clampBucket(vp.ZoomBucket()),
		bounds:   vp.Bounds.Widen(layout.WidenFactor),
		filter:   filter,
		layerIDs: layerIDs,
		started:  time.Now(),
	}
	d.running = true
	d.inflight.Add(1)
	notify := d.runningQuery.Store(true)
	metrics.QueryRunning.Set(1)
	d.mu.Unlock()

	notify()

	b := req.bounds
	slog.Info("dispatching query",
		"id", req.id,
		"zoom", vp.Zoom,
		"bounds", b.String(),
		"diagonal_m", int(geospatial.Haversine(b.South, b.West, b.North, b.East)),
		"layers", layerIDs,
	)

	go d.run(context.WithoutCancel(ctx), req)
	return true
}

func (d *QueryDispatcher) run(ctx context.Context, req dispatch) {
	defer d.inflight.Done()

	ctx, span := tracer.Start(ctx, "loader.query", trace.WithAttributes(
		telemetry.QueryID.String(req.id),
		telemetry.QueryZoomBucket.Int(req.bucket),
		telemetry.QueryBBox.String(req.bounds.OverpassBBox()),
		telemetry.QueryLayers.StringSlice(req.layerIDs),
	))
	defer span.End()

	res, err := d.query.Query(ctx, req.bounds, req.filter)
	if err == nil && res == nil {
		err = errors.New("query service returned no result")
	}
	elapsed := time.Since(req.started)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.fail(ctx, req, elapsed, err)
		return
	}
	span.SetAttributes(telemetry.QueryFeatures.Int(featureCount(res.Features)))
	d.commit(ctx, req, elapsed, res)
}

func (d *QueryDispatcher) commit(ctx context.Context, req dispatch, elapsed time.Duration, res *domain.QueryResult) {
	d.mu.Lock()
	d.cache.RecordFetch(req.bucket, req.bounds)
	d.retry.Reset()
	d.running = false
	cached := d.cache.Len()
	notify := []func(){
		d.retries.Store(0),
		d.freshness.Store(res.Timestamp),
		d.features.Store(res.Features),
		d.runningQuery.Store(false),
	}
	metrics.QueryRunning.Set(0)
	d.mu.Unlock()

	for _, n := range notify {
		n()
	}

	n := featureCount(res.Features)
	metrics.QueriesTotal.WithLabelValues(string(domain.FetchSucceeded)).Inc()
	metrics.QueryDuration.WithLabelValues(string(domain.FetchSucceeded)).Observe(elapsed.Seconds())
	metrics.RetryCount.Set(0)
	metrics.CachedBounds.Set(float64(cached))
	metrics.FeaturesCommitted.Set(float64(n))
	metrics.DataTimestamp.Set(float64(res.Timestamp.Unix()))

	slog.Info("query committed",
		"id", req.id,
		"features", n,
		"data_time", res.Timestamp,
		"duration_ms", elapsed.Milliseconds(),
	)

	ts := res.Timestamp
	rec := d.record(req, elapsed, domain.FetchSucceeded, 0)
	rec.FeatureCount = n
	rec.DataTime = &ts

	if d.snapshots != nil && res.Features != nil {
		if err := d.snapshots.SaveFeatures(ctx, res.Features); err != nil {
			slog.Warn("save feature snapshot", "error", err)
		}
	}
	d.report(ctx, rec)
}

func (d *QueryDispatcher) fail(ctx context.Context, req dispatch, elapsed time.Duration, cause error) {
	d.mu.Lock()
	count, delay := d.retry.Fail()
	d.cache.InvalidateAll()
	d.running = false
	notify := []func(){
		d.retries.Store(count),
		d.runningQuery.Store(false),
	}
	metrics.QueryRunning.Set(0)
	d.mu.Unlock()

	for _, n := range notify {
		n()
	}

	metrics.QueriesTotal.WithLabelValues(string(domain.FetchFailed)).Inc()
	metrics.QueryDuration.WithLabelValues(string(domain.FetchFailed)).Observe(elapsed.Seconds())
	metrics.RetryCount.Set(float64(count))
	metrics.CachedBounds.Set(0)

	slog.Warn("query failed, retrying",
		"id", req.id,
		"error", cause,
		"retries", count,
		"retry_in_s", delay.Seconds(),
	)

	if d.immediateRetry {
		d.Trigger(ctx)
	}
	d.retry.Schedule(delay, func() { d.Trigger(d.context()) })

	rec := d.record(req, elapsed, domain.FetchFailed, count)
	rec.Error = cause.Error()
	d.report(ctx, rec)
}

func (d *QueryDispatcher) record(req dispatch, elapsed time.Duration, outcome domain.FetchOutcome, retries int) *domain.FetchRecord {
	return &domain.FetchRecord{
		ID:         req.id,
		StartedAt:  req.started,
		Duration:   elapsed,
		ZoomBucket: req.bucket,
		Bounds:     req.bounds,
		Filter:     req.filter.String(),
		Layers:     req.layerIDs,
		Outcome:    outcome,
		RetryCount: retries,
	}
}

// report writes the audit row and broadcasts the outcome. Errors are logged
// only; they never affect the loader state.
func (d *QueryDispatcher) report(ctx context.Context, rec *domain.FetchRecord) {
	if d.fetchLog != nil {
		if err := d.fetchLog.Insert(ctx, rec); err != nil {
			slog.Warn("insert fetch record", "id", rec.ID, "error", err)
		}
	}
	if d.events == nil {
		return
	}
	var err error
	if rec.Outcome == domain.FetchSucceeded {
		err = d.events.PublishFeaturesCommitted(ctx, rec)
	} else {
		err = d.events.PublishQueryFailed(ctx, rec)
	}
	if err != nil {
		slog.Warn("publish fetch event", "id", rec.ID, "error", err)
	}
	if err := d.events.PublishState(ctx, d.State()); err != nil {
		slog.Warn("publish loader state", "error", err)
	}
}

// State returns a point-in-time view of the loader.
func (d *QueryDispatcher) State() domain.LoaderState {
	st := domain.LoaderState{
		RunningQuery:       d.runningQuery.Get(),
		RetryCount:         d.retries.Get(),
		SufficientlyZoomed: d.sufficientlyZoomed.Get(),
		FeatureCount:       featureCount(d.features.Get()),
		CachedBounds:       d.cache.Len(),
	}
	if ts, ok := d.freshness.Lookup(); ok {
		st.Freshness = &ts
	}
	if vp, ok := d.viewport.Viewport(); ok {
		st.Viewport = &vp
	}
	return st
}

// Coverage returns a copy of the coverage cache, keyed by zoom bucket.
func (d *QueryDispatcher) Coverage() map[int][]domain.Bounds {
	return d.cache.Snapshot()
}

func featureCount(fc *geojson.FeatureCollection) int {
	if fc == nil {
		return 0
	}
	return len(fc.Features)
}
