package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"geonames-sync/internal/geonames"
	"geonames-sync/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	full    []geonames.PlaceRecord
	mods    []geonames.PlaceRecord
	dels    []geonames.DeletionRecord
	fullErr error
	modsErr error
	delsErr error
	calls   atomic.Int64
}

func (s *fakeSource) FetchFullSnapshot(ctx context.Context) ([]geonames.PlaceRecord, error) {
	s.calls.Add(1)
	return s.full, s.fullErr
}

func (s *fakeSource) FetchModifications(ctx context.Context) ([]geonames.PlaceRecord, error) {
	s.calls.Add(1)
	return s.mods, s.modsErr
}

func (s *fakeSource) FetchDeletions(ctx context.Context) ([]geonames.DeletionRecord, error) {
	s.calls.Add(1)
	return s.dels, s.delsErr
}

func (s *fakeSource) ReferenceDate() string    { return "2024-03-05" }
func (s *fakeSource) SnapshotURL() string      { return "http://dump/cities500.zip" }
func (s *fakeSource) ModificationsURL() string { return "http://dump/modifications-2024-03-05.txt" }
func (s *fakeSource) DeletionsURL() string     { return "http://dump/deletes-2024-03-05.txt" }

type fakeJournal struct {
	mu   sync.Mutex
	runs []store.Run
	err  error
}

func (j *fakeJournal) RecordRun(ctx context.Context, r store.Run) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.runs = append(j.runs, r)
	return j.err
}

func (j *fakeJournal) byOp() map[string]store.Run {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make(map[string]store.Run, len(j.runs))
	for _, r := range j.runs {
		out[r.Op] = r
	}
	return out
}

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]time.Duration
	released []string
	err      error
}

func newFakeLocker() *fakeLocker { return &fakeLocker{held: map[string]time.Duration{}} }

func (l *fakeLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	if _, ok := l.held[key]; ok {
		return false, nil
	}
	l.held[key] = ttl
	return true, nil
}

func (l *fakeLocker) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	l.released = append(l.released, key)
	return nil
}

type countingConsumer struct {
	snapshot, mods, dels atomic.Int64
	refDates             sync.Map
}

func (c *countingConsumer) Snapshot(ctx context.Context, recs []geonames.PlaceRecord) error {
	c.snapshot.Add(int64(len(recs)))
	return nil
}

func (c *countingConsumer) Modifications(ctx context.Context, refDate string, recs []geonames.PlaceRecord) error {
	c.refDates.Store("modifications", refDate)
	c.mods.Add(int64(len(recs)))
	return nil
}

func (c *countingConsumer) Deletions(ctx context.Context, refDate string, recs []geonames.DeletionRecord) error {
	c.refDates.Store("deletions", refDate)
	c.dels.Add(int64(len(recs)))
	return nil
}

var runnerNow = time.Date(2024, 3, 6, 3, 0, 0, 0, time.UTC)

func newRunner(src Source) (*Runner, *fakeJournal, *fakeLocker, *countingConsumer) {
	j := &fakeJournal{}
	lk := newFakeLocker()
	c := &countingConsumer{}
	return &Runner{
		Source:   src,
		Journal:  j,
		Locker:   lk,
		Consumer: c,
		Now:      func() time.Time { return runnerNow },
	}, j, lk, c
}

func TestRunDaily(t *testing.T) {
	src := &fakeSource{
		mods: []geonames.PlaceRecord{{ID: 1}, {ID: 2}},
		dels: []geonames.DeletionRecord{{ID: 3}},
	}
	r, j, lk, c := newRunner(src)

	mods, dels := r.RunDaily(context.Background())

	assert.Equal(t, Result{Op: geonames.OpModifications, RefDate: "2024-03-05", Status: store.StatusOK, Records: 2}, mods)
	assert.Equal(t, Result{Op: geonames.OpDeletions, RefDate: "2024-03-05", Status: store.StatusOK, Records: 1}, dels)
	assert.EqualValues(t, 2, c.mods.Load())
	assert.EqualValues(t, 1, c.dels.Load())
	ref, _ := c.refDates.Load("deletions")
	assert.Equal(t, "2024-03-05", ref)

	runs := j.byOp()
	require.Len(t, runs, 2)
	assert.Equal(t, "http://dump/modifications-2024-03-05.txt", runs[geonames.OpModifications].URL)
	assert.Equal(t, "2024-03-05", runs[geonames.OpDeletions].RefDate)
	assert.Equal(t, store.StatusOK, runs[geonames.OpDeletions].Status)
	assert.Empty(t, runs[geonames.OpDeletions].Err)

	// 成功后租约保留到 TTL，阻止同一参考日重复执行
	assert.Contains(t, lk.held, "geonames:sync:modifications:2024-03-05")
	assert.Equal(t, defaultLockTTL, lk.held["geonames:sync:deletions:2024-03-05"])
	assert.Empty(t, lk.released)
}

func TestRunDailySkippedWhenLocked(t *testing.T) {
	src := &fakeSource{}
	r, j, lk, _ := newRunner(src)
	lk.held["geonames:sync:modifications:2024-03-05"] = time.Hour
	lk.held["geonames:sync:deletions:2024-03-05"] = time.Hour

	mods, dels := r.RunDaily(context.Background())

	for _, res := range []Result{mods, dels} {
		assert.Equal(t, store.StatusSkipped, res.Status)
		assert.ErrorIs(t, res.Err, ErrLocked)
	}
	assert.EqualValues(t, 0, src.calls.Load())
	assert.Empty(t, j.byOp())
}

func TestRunDailyPartialFailure(t *testing.T) {
	cause := &geonames.Error{Op: geonames.OpDeletions, Stage: geonames.StageDownload, Err: errors.New("404")}
	src := &fakeSource{
		mods:    []geonames.PlaceRecord{{ID: 1}},
		delsErr: cause,
	}
	r, j, lk, c := newRunner(src)

	mods, dels := r.RunDaily(context.Background())

	assert.Equal(t, store.StatusOK, mods.Status)
	assert.Equal(t, store.StatusError, dels.Status)
	assert.ErrorIs(t, dels.Err, geonames.ErrSyncFailed)
	assert.EqualValues(t, 1, c.mods.Load())
	assert.Zero(t, c.dels.Load())

	runs := j.byOp()
	assert.Equal(t, store.StatusError, runs[geonames.OpDeletions].Status)
	assert.Contains(t, runs[geonames.OpDeletions].Err, "failed to get deletes from geonames.org")

	assert.Equal(t, []string{"geonames:sync:deletions:2024-03-05"}, lk.released)
	assert.NotContains(t, lk.held, "geonames:sync:deletions:2024-03-05")
}

func TestRunFull(t *testing.T) {
	src := &fakeSource{full: []geonames.PlaceRecord{{ID: 1}, {ID: 2}, {ID: 3}}}
	r, j, lk, c := newRunner(src)
	r.LockTTL = 2 * time.Hour

	res := r.RunFull(context.Background())
	assert.Equal(t, store.StatusOK, res.Status)
	assert.Equal(t, 3, res.Records)
	assert.Empty(t, res.RefDate)
	assert.EqualValues(t, 3, c.snapshot.Load())
	assert.Equal(t, 2*time.Hour, lk.held["geonames:sync:full:2024-03-06"])

	run := j.byOp()[geonames.OpFull]
	assert.Equal(t, "http://dump/cities500.zip", run.URL)
	assert.Equal(t, runnerNow, run.StartedAt)

	again := r.RunFull(context.Background())
	assert.Equal(t, store.StatusSkipped, again.Status)
	assert.EqualValues(t, 1, src.calls.Load())
}

func TestRunLockErrorFallsThrough(t *testing.T) {
	src := &fakeSource{full: []geonames.PlaceRecord{{ID: 1}}}
	r, _, lk, _ := newRunner(src)
	lk.err = errors.New("redis: connection refused")

	res := r.RunFull(context.Background())
	assert.Equal(t, store.StatusOK, res.Status)
	assert.EqualValues(t, 1, src.calls.Load())
}

func TestRunCanceledStillJournaled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &fakeSource{modsErr: &geonames.Error{Op: geonames.OpModifications, Kind: geonames.KindCanceled, Err: context.Canceled}}
	r, j, _, _ := newRunner(src)
	r.Locker = nil

	mods, _ := r.RunDaily(ctx)
	assert.True(t, geonames.IsCanceled(mods.Err))
	assert.Equal(t, store.StatusError, j.byOp()[geonames.OpModifications].Status)
}

func TestRunWithoutOptionalDeps(t *testing.T) {
	src := &fakeSource{dels: []geonames.DeletionRecord{{ID: 9}}}
	r := &Runner{Source: src}

	_, dels := r.RunDaily(context.Background())
	assert.Equal(t, store.StatusOK, dels.Status)
	assert.Equal(t, 1, dels.Records)
}
