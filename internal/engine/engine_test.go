package engine

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/phylomerge/internal/model"
	"github.com/tonimelisma/phylomerge/internal/store"
	"github.com/tonimelisma/phylomerge/internal/version"
)

// testLogger returns a debug-level logger that writes to t.Log,
// so all activity appears in CI output.
func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(&testLogWriter{t: t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// testLogWriter adapts testing.T to io.Writer for slog. Engine tests log from
// worker goroutines, so writes are serialized.
type testLogWriter struct {
	mu sync.Mutex
	t  *testing.T
}

func (w *testLogWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.t.Log(string(p))

	return len(p), nil
}

type testEnv struct {
	engine  *Engine
	store   *store.Store
	metrics *Metrics
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	logger := testLogger(t)

	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			t.Errorf("Close(): %v", err)
		}
	})

	m := NewMetrics(prometheus.NewRegistry())
	opts = append([]Option{WithMetrics(m)}, opts...)

	return &testEnv{engine: New(st, logger, opts...), store: st, metrics: m}
}

// newDoc returns an unpersisted study: two bees scored for two characters.
func newDoc(label string) *model.Study {
	study := model.NewStudy(label)

	os := model.NewOtuSet("taxa")
	study.AddOtuSet(os)

	m := model.NewMatrix(model.MatrixStandard, "morphology")
	os.AddMatrix(m)

	for _, l := range []string{"wings", "legs"} {
		m.AddCharacter(model.NewCharacter(l, map[int]string{0: "absent", 1: "present"}))
	}

	for _, l := range []string{"Apis", "Bombus"} {
		otu := model.NewOtu(l)
		os.AddOtu(otu)

		row := model.NewRow()
		row.AddCell(model.RestoreCell(model.CellSingle, []int{0}))
		row.AddCell(model.RestoreCell(model.CellSingle, []int{1}))
		m.PutRow(otu, row)
	}

	return study
}

// docEntities counts what newDoc creates: study, OTU set, 2 OTUs, matrix,
// 2 characters, 2 rows and 4 cells.
const docEntities = 13

// reload returns a fresh copy of a stored study, usable as incoming.
func (env *testEnv) reload(t *testing.T, id string) *model.Study {
	t.Helper()

	study, err := env.store.LoadStudy(context.Background(), id)
	require.NoError(t, err)

	return study
}

func (env *testEnv) maxVersion(t *testing.T) int64 {
	t.Helper()

	v, err := env.store.MaxVersion(context.Background())
	require.NoError(t, err)

	return v
}

func TestReconcileStudy_CreatesNewStudy(t *testing.T) {
	env := newTestEnv(t)

	report, err := env.engine.ReconcileStudy(context.Background(), newDoc("bees"))
	require.NoError(t, err)

	assert.NotEmpty(t, report.StudyExternalID)
	assert.Equal(t, 1, report.Created[model.KindStudy])
	assert.Equal(t, 4, report.Created[model.KindCell])
	assert.Equal(t, docEntities, report.Stamped)

	stored := env.reload(t, report.StudyExternalID)
	assert.Equal(t, "bees", stored.Label)
	assert.Equal(t, int64(docEntities), stored.Version)
	assert.Equal(t, int64(docEntities), env.maxVersion(t))
}

func TestReconcileStudy_UnchangedDocumentWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.engine.ReconcileStudy(ctx, newDoc("bees"))
	require.NoError(t, err)

	before := env.maxVersion(t)

	report, err := env.engine.ReconcileStudy(ctx, env.reload(t, first.StudyExternalID))
	require.NoError(t, err)

	assert.False(t, report.Changed())
	assert.Zero(t, report.Stamped)
	assert.Equal(t, before, env.maxVersion(t))
}

func TestReconcileStudy_CellChangeStampsOwnerChain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.engine.ReconcileStudy(ctx, newDoc("bees"))
	require.NoError(t, err)

	incoming := env.reload(t, first.StudyExternalID)
	baseline := incoming.Version
	m := incoming.OtuSets[0].Matrices[0]
	_, err = m.Row(incoming.OtuSets[0].Otus[1]).Cells[0].SetSingleWithState(1)
	require.NoError(t, err)

	report, err := env.engine.ReconcileStudy(ctx, incoming)
	require.NoError(t, err)

	assert.Equal(t, 5, report.Stamped)
	assert.Equal(t, 1, report.Updated[model.KindCell])

	cs, err := env.engine.ChangedSince(ctx, first.StudyExternalID, baseline)
	require.NoError(t, err)

	mc := cs.Matrix(m.ExternalID)
	require.NotNil(t, mc)
	require.Len(t, mc.Cells, 1)
	assert.Empty(t, cs.Otus)
}

func TestReconcileStudy_FailuresLeaveStoreUntouched(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*model.Study)
		want    error
		outcome string
	}{
		{
			name: "undefined state",
			mutate: func(s *model.Study) {
				m := s.OtuSets[0].Matrices[0]
				m.Row(s.OtuSets[0].Otus[0]).Cells[0] = model.RestoreCell(model.CellSingle, []int{7})
			},
			want:    model.ErrValidation,
			outcome: OutcomeValidation,
		},
		{
			name:    "unknown study",
			mutate:  func(s *model.Study) { s.ExternalID = "ghost" },
			want:    model.ErrNotFound,
			outcome: OutcomeNotFound,
		},
		{
			name:    "unknown otu",
			mutate:  func(s *model.Study) { s.OtuSets[0].Otus[0].ExternalID = "ghost" },
			want:    model.ErrNotFound,
			outcome: OutcomeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()

			first, err := env.engine.ReconcileStudy(ctx, newDoc("bees"))
			require.NoError(t, err)

			before := env.maxVersion(t)

			incoming := env.reload(t, first.StudyExternalID)
			incoming.SetLabel("renamed")
			tt.mutate(incoming)

			_, err = env.engine.ReconcileStudy(ctx, incoming)
			require.ErrorIs(t, err, tt.want)

			assert.Equal(t, before, env.maxVersion(t))
			assert.Equal(t, "bees", env.reload(t, first.StudyExternalID).Label)
			assert.InDelta(t, 1, testutil.ToFloat64(env.metrics.merges.WithLabelValues(tt.outcome)), 0)
		})
	}
}

func TestReconcileStudy_ExternalVersionSource(t *testing.T) {
	env := newTestEnv(t, WithVersionSource(version.NewCounter(1000)))

	report, err := env.engine.ReconcileStudy(context.Background(), newDoc("bees"))
	require.NoError(t, err)

	stored := env.reload(t, report.StudyExternalID)
	assert.Equal(t, int64(1000+docEntities), stored.Version)
	assert.Equal(t, int64(1000+docEntities), env.maxVersion(t), "store counter follows external stamps")
}

func TestReconcileOtuSet(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.engine.ReconcileStudy(ctx, newDoc("bees"))
	require.NoError(t, err)

	incoming := env.reload(t, first.StudyExternalID).OtuSets[0]
	incoming.Otus[0].SetLabel("Apis mellifera")

	report, err := env.engine.ReconcileOtuSet(ctx, incoming)
	require.NoError(t, err)

	assert.Equal(t, first.StudyExternalID, report.StudyExternalID)
	assert.Equal(t, 3, report.Stamped, "otu, otu set and study")

	stored := env.reload(t, first.StudyExternalID)
	assert.Equal(t, "Apis mellifera", stored.OtuSets[0].Otus[0].Label)

	incoming.ExternalID = "ghost"
	_, err = env.engine.ReconcileOtuSet(ctx, incoming)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestReconcileAll(t *testing.T) {
	env := newTestEnv(t, WithWorkers(3))
	ctx := context.Background()

	first, err := env.engine.ReconcileStudy(ctx, newDoc("bees"))
	require.NoError(t, err)

	v1 := env.reload(t, first.StudyExternalID)
	v1.SetLabel("bees v1")

	v2 := env.reload(t, first.StudyExternalID)
	v2.SetLabel("bees v2")

	invalid := newDoc("broken")
	invalid.OtuSets[0].Matrices[0].Characters[0].ExternalID = "ghost"

	results, err := env.engine.ReconcileAll(ctx, []*model.Study{v1, newDoc("wasps"), v2, invalid})
	require.NoError(t, err)
	require.Len(t, results, 4)

	for i, r := range results[:3] {
		require.NoError(t, r.Err, "document %d", i)
		assert.Equal(t, i, r.Index)
	}

	assert.ErrorIs(t, results[3].Err, model.ErrNotFound)
	assert.Nil(t, results[3].Report)

	assert.Equal(t, "bees v2", env.reload(t, first.StudyExternalID).Label, "same-study documents apply in order")

	studies, err := env.engine.Studies(ctx)
	require.NoError(t, err)
	assert.Len(t, studies, 2)
}

func TestGroupByStudy(t *testing.T) {
	doc := func(id string) *model.Study {
		s := model.NewStudy("x")
		s.ExternalID = id

		return s
	}

	got := groupByStudy([]*model.Study{doc("a"), doc(""), doc("b"), doc("a"), doc("")})

	assert.Equal(t, [][]int{{0, 3}, {1}, {2}, {4}}, got)
}

func TestMetrics_RecordReportCounts(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.ReconcileStudy(context.Background(), newDoc("bees"))
	require.NoError(t, err)

	m := env.metrics
	assert.InDelta(t, 1, testutil.ToFloat64(m.merges.WithLabelValues(OutcomeOK)), 0)
	assert.InDelta(t, docEntities, testutil.ToFloat64(m.stamps), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(m.entities.WithLabelValues("cell", "created")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, OutcomeOK},
		{model.Validationf(model.KindCell, "", "bad"), OutcomeValidation},
		{model.NotFound(model.KindOtu, "x"), OutcomeNotFound},
		{model.Consistencyf(model.KindRow, "", "broken"), OutcomeConsistency},
		{context.Canceled, OutcomeError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Outcome(tt.err), "%v", tt.err)
	}
}
