package ingest

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/sentinel/internal/analysis"
	"github.com/technosupport/sentinel/internal/capture"
	"github.com/technosupport/sentinel/internal/clip"
	"github.com/technosupport/sentinel/internal/decision"
	"github.com/technosupport/sentinel/internal/housekeeping"
	"github.com/technosupport/sentinel/internal/platform/paths"
)

var _ capture.Sink = (*Gateway)(nil)
var _ capture.Sink = (*Uploader)(nil)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testClip(id string, audio []byte) *clip.Clip {
	c := &clip.Clip{ID: id, TriggerAt: t0.Add(time.Second), Location: "Loading dock", Audio: audio}
	for i := 0; i < 5; i++ {
		pix := bytes.Repeat([]byte{byte(i * 40)}, 4*4)
		c.Frames = append(c.Frames, clip.GrayFrame(uint64(i), t0.Add(time.Duration(i)*500*time.Millisecond), 4, 4, pix))
	}
	return c
}

type gatewayHarness struct {
	gw      *Gateway
	sched   *analysis.Scheduler
	store   clip.Store
	tracker *clip.Tracker
}

// newGateway wires a gateway to a scheduler whose workers are never started,
// so accepted jobs stay queued.
func newGateway(t *testing.T, queueSize int, minFree uint64) *gatewayHarness {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, paths.EnsureDirs(root))
	store := clip.NewStore(root)
	tracker := clip.NewTracker(64)

	sched := analysis.NewScheduler(analysis.SchedulerConfig{QueueSize: queueSize}, analysis.Deps{
		Claims:  analysis.NewMemoryClaims(100, time.Hour),
		Tracker: tracker,
		Store:   store,
	})
	gw := NewGateway(sched, store, tracker, minFree, nil)
	return &gatewayHarness{gw: gw, sched: sched, store: store, tracker: tracker}
}

func (h *gatewayHarness) evidence(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(h.store.EvidenceDir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestGateway_Accepts(t *testing.T) {
	h := newGateway(t, 4, 0)

	rec, err := h.gw.Ingest(context.Background(), testClip("c1", []byte("RIFF")))
	require.NoError(t, err)
	assert.Equal(t, "c1", rec.ClipID)
	assert.True(t, rec.AudioFound)

	expected, _ := h.store.ArtifactPath("c1")
	assert.Equal(t, expected, rec.EvidencePath)

	persisted, err := clip.ReadFile(rec.EvidencePath)
	require.NoError(t, err)
	assert.Len(t, persisted.Frames, 5)
	assert.Equal(t, "Loading dock", persisted.Location)

	status, ok := h.tracker.Status("c1")
	require.True(t, ok)
	assert.Equal(t, clip.StatusSubmitted, status)
	assert.Equal(t, 1, h.sched.QueueDepth())
	assert.True(t, h.sched.IsActive("c1"))
}

func TestGateway_Duplicate(t *testing.T) {
	h := newGateway(t, 4, 0)
	ctx := context.Background()

	require.NoError(t, h.gw.Submit(ctx, testClip("dup", nil)))
	_, err := h.gw.Ingest(ctx, testClip("dup", nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateClip)

	var ie *IngestionError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "claim", ie.Op)
	assert.Equal(t, "dup", ie.ClipID)

	// The first submission is untouched.
	assert.Equal(t, []string{"dup" + clip.Ext}, h.evidence(t))
	assert.Equal(t, 1, h.sched.QueueDepth())
}

func TestGateway_QueueFullRollsBack(t *testing.T) {
	h := newGateway(t, 1, 0)
	ctx := context.Background()

	require.NoError(t, h.gw.Submit(ctx, testClip("first", nil)))
	_, err := h.gw.Ingest(ctx, testClip("second", nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQueueFull)

	assert.Equal(t, []string{"first" + clip.Ext}, h.evidence(t))
	assert.False(t, h.sched.IsActive("second"))
	_, tracked := h.tracker.Status("second")
	assert.False(t, tracked)

	// The claim was released, so the clip can be offered again later.
	require.NoError(t, h.sched.Reserve(ctx, "second"))
}

func TestGateway_InsufficientSpace(t *testing.T) {
	h := newGateway(t, 4, 1<<20)
	h.gw.freeBytes = func(string) (uint64, error) { return 1024, nil }
	ctx := context.Background()

	_, err := h.gw.Ingest(ctx, testClip("big", nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientSpace)
	assert.Empty(t, h.evidence(t))
	assert.False(t, h.sched.IsActive("big"))

	h.gw.freeBytes = func(string) (uint64, error) { return 1 << 30, nil }
	_, err = h.gw.Ingest(ctx, testClip("big", nil))
	assert.NoError(t, err)
}

func TestGateway_FreeSpaceUnsupportedSkipsCheck(t *testing.T) {
	h := newGateway(t, 4, 1<<20)
	h.gw.freeBytes = func(string) (uint64, error) { return 0, paths.ErrFreeSpaceUnsupported }

	_, err := h.gw.Ingest(context.Background(), testClip("ok", nil))
	assert.NoError(t, err)
}

func TestGateway_InvalidClips(t *testing.T) {
	h := newGateway(t, 4, 0)
	ctx := context.Background()

	tests := []struct {
		name string
		clip *clip.Clip
	}{
		{"nil", nil},
		{"no frames", &clip.Clip{ID: "empty"}},
		{"traversal id", testClip("../escape", nil)},
		{"dot id", testClip(".", nil)},
		{"dot dot id", testClip("..", nil)},
		{"aliasing id", testClip("x/../b", nil)},
		{"spaces", testClip("a b", nil)},
		{"too long", testClip(strings.Repeat("a", 65), nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.gw.Ingest(ctx, tt.clip)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidClip)
		})
	}
	assert.Empty(t, h.evidence(t))
	assert.Equal(t, 0, h.sched.QueueDepth())
	assert.DirExists(t, h.store.TempDir)
}

type calmClassifier struct{}

func (calmClassifier) Classify(context.Context, [][]byte, string) (decision.AnalysisResult, error) {
	return decision.AnalysisResult{ThreatLevel: 1, Description: "empty yard"}, nil
}

func TestGateway_AnalyzedClipRefusedAfterClaimExpiry(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, paths.EnsureDirs(root))
	store := clip.NewStore(root)
	hk := housekeeping.New(store, nil)

	sched := analysis.NewScheduler(analysis.SchedulerConfig{Workers: 1, QueueSize: 4, Timeout: 2 * time.Second}, analysis.Deps{
		Claims:     analysis.NewMemoryClaims(100, time.Millisecond),
		Classifier: calmClassifier{},
		Engine:     decision.NewEngine(decision.Config{ThreatThreshold: 7}),
		Cleaner:    hk,
		History:    hk,
		Store:      store,
	})
	done := make(chan analysis.Outcome, 1)
	sched.OnDone(func(o analysis.Outcome) { done <- o })
	sched.Start()
	defer sched.Stop(context.Background())

	gw := NewGateway(sched, store, nil, 0, nil)
	_, err := gw.Ingest(context.Background(), testClip("c1", nil))
	require.NoError(t, err)

	select {
	case o := <-done:
		require.NoError(t, o.Err)
		require.True(t, o.Cleaned)
	case <-time.After(5 * time.Second):
		t.Fatal("analysis did not finish")
	}
	time.Sleep(5 * time.Millisecond)

	_, err = gw.Ingest(context.Background(), testClip("c1", nil))
	assert.ErrorIs(t, err, ErrDuplicateClip)
	entries, err := os.ReadDir(store.EvidenceDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGateway_StoppedScheduler(t *testing.T) {
	h := newGateway(t, 4, 0)
	require.NoError(t, h.sched.Stop(context.Background()))

	_, err := h.gw.Ingest(context.Background(), testClip("late", nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, analysis.ErrStopped)
	assert.Empty(t, h.evidence(t))
}
