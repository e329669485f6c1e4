package usecases_test

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/osmfj/MapComplete/internal/core/domain"
	"github.com/osmfj/MapComplete/internal/core/tags"
)

// --- Scripted QueryService ---

type queryReply struct {
	res *domain.QueryResult
	err error
}

type queryCall struct {
	bounds domain.Bounds
	filter tags.Filter
	reply  chan queryReply
}

func (c queryCall) succeed(res *domain.QueryResult) { c.reply <- queryReply{res: res} }
func (c queryCall) fail(err error)                  { c.reply <- queryReply{err: err} }

// scriptedQuery hands every call to the test and blocks until it is answered.
type scriptedQuery struct {
	calls chan queryCall
}

func newScriptedQuery() *scriptedQuery {
	return &scriptedQuery{calls: make(chan queryCall, 16)}
}

func (q *scriptedQuery) Query(ctx context.Context, bounds domain.Bounds, filter tags.Filter) (*domain.QueryResult, error) {
	c := queryCall{bounds: bounds, filter: filter, reply: make(chan queryReply, 1)}
	q.calls <- c
	r := <-c.reply
	return r.res, r.err
}

func (q *scriptedQuery) next(t *testing.T) queryCall {
	t.Helper()
	select {
	case c := <-q.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("expected a query to be issued")
		return queryCall{}
	}
}

func (q *scriptedQuery) expectNone(t *testing.T) {
	t.Helper()
	select {
	case c := <-q.calls:
		t.Fatalf("unexpected query for %s", c.filter)
	case <-time.After(50 * time.Millisecond):
	}
}

// --- Mock FetchLogRepository ---

type mockFetchLog struct {
	mu      sync.Mutex
	records []domain.FetchRecord
}

func (m *mockFetchLog) Insert(ctx context.Context, rec *domain.FetchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, *rec)
	return nil
}

func (m *mockFetchLog) ListRecent(ctx context.Context, limit int) ([]domain.FetchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.FetchRecord(nil), m.records...), nil
}

// --- Mock EventPublisher ---

type mockPublisher struct {
	mu        sync.Mutex
	committed []string
	failed    []string
	states    []domain.LoaderState
}

func (m *mockPublisher) PublishFeaturesCommitted(ctx context.Context, rec *domain.FetchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.committed = append(m.committed, rec.ID)
	return nil
}

func (m *mockPublisher) PublishQueryFailed(ctx context.Context, rec *domain.FetchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, rec.ID)
	return nil
}

func (m *mockPublisher) PublishState(ctx context.Context, state domain.LoaderState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, state)
	return nil
}

// --- Mock SnapshotStore ---

type mockSnapshots struct {
	mu    sync.Mutex
	saved []*geojson.FeatureCollection
}

func (m *mockSnapshots) SaveFeatures(ctx context.Context, fc *geojson.FeatureCollection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, fc)
	return nil
}

func (m *mockSnapshots) LoadFeatures(ctx context.Context) (*geojson.FeatureCollection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saved) == 0 {
		return nil, nil
	}
	return m.saved[len(m.saved)-1], nil
}

// --- helpers ---

func featuresAt(points ...orb.Point) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, p := range points {
		fc.Append(geojson.NewFeature(p))
	}
	return fc
}

func approxBounds(a, b domain.Bounds) bool {
	const eps = 1e-9
	return math.Abs(a.North-b.North) < eps && math.Abs(a.South-b.South) < eps &&
		math.Abs(a.East-b.East) < eps && math.Abs(a.West-b.West) < eps
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}
