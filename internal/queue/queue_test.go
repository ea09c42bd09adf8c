package queue

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ak125/contentgate/internal/content"
	"github.com/ak125/contentgate/internal/store"
)

// #region helpers
type collector struct {
	mu   sync.Mutex
	jobs []Job
}

func (c *collector) enqueue(_ context.Context, job Job) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobs = append(c.jobs, job)
	return nil
}

func (c *collector) snapshot() []Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Job(nil), c.jobs...)
}

func runSource(t *testing.T, src Source, enqueue EnqueueFunc) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, src.Run(ctx, enqueue))
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func writeJSON(t *testing.T, path string, v interface{}) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, data, 0o644))
	require.NoError(t, os.Rename(tmp, path))
}

// #endregion helpers

// #region worker-tests
func TestWorker_RunsJobsInOrderOneAtATime(t *testing.T) {
	var (
		mu       sync.Mutex
		seen     []string
		inFlight atomic.Int32
		maxSeen  atomic.Int32
	)
	w := NewWorker(func(_ context.Context, job Job) error {
		n := inFlight.Add(1)
		if n > maxSeen.Load() {
			maxSeen.Store(n)
		}
		defer inFlight.Add(-1)
		time.Sleep(time.Millisecond)
		mu.Lock()
		seen = append(seen, job.ItemID)
		mu.Unlock()
		if job.ItemID == "b" {
			return errors.New("enrichment down")
		}
		return nil
	}, 8, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, w.Enqueue(ctx, Job{ItemID: id, Role: content.RoleAdvice}))
	}
	require.Eventually(t, func() bool {
		p, _ := w.Stats()
		return p == 3
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	processed, failed := w.Stats()
	assert.Equal(t, int64(3), processed)
	assert.Equal(t, int64(1), failed)
	assert.Equal(t, []string{"a", "b", "c"}, seen)
	assert.Equal(t, int32(1), maxSeen.Load())
}

func TestWorker_SurvivesPanic(t *testing.T) {
	w := NewWorker(func(_ context.Context, job Job) error {
		if job.ItemID == "boom" {
			panic("bad item")
		}
		return nil
	}, 2, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	require.NoError(t, w.Enqueue(ctx, Job{ItemID: "boom", Role: content.RoleRouter}))
	require.NoError(t, w.Enqueue(ctx, Job{ItemID: "ok", Role: content.RoleRouter}))
	require.Eventually(t, func() bool {
		p, f := w.Stats()
		return p == 2 && f == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestWorker_EnqueueValidatesAndAssignsID(t *testing.T) {
	var got Job
	w := NewWorker(func(_ context.Context, job Job) error { got = job; return nil }, 1, nil)

	assert.Error(t, w.Enqueue(context.Background(), Job{Role: content.RoleAdvice}))
	assert.Error(t, w.Enqueue(context.Background(), Job{ItemID: "pads", Role: "blog"}))

	require.NoError(t, w.Enqueue(context.Background(), Job{ItemID: "pads", Role: content.RoleAdvice}))
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Run(ctx) }()
	require.Eventually(t, func() bool { p, _ := w.Stats(); return p == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.NotEmpty(t, got.ID)
}

func TestWorker_EnqueueAfterStop(t *testing.T) {
	w := NewWorker(func(context.Context, Job) error { return nil }, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, w.Run(ctx))

	err := w.Enqueue(context.Background(), Job{ItemID: "pads", Role: content.RoleAdvice})
	assert.ErrorIs(t, err, ErrStopped)
}

// #endregion worker-tests

// #region dir-source-tests
func TestDirSource_DrainsAndWatches(t *testing.T) {
	dir := t.TempDir()
	writeJSON(t, filepath.Join(dir, "first.json"), Job{ItemID: "pads", Role: content.RoleAdvice})

	c := &collector{}
	runSource(t, NewDirSource(dir, nil), c.enqueue)

	require.Eventually(t, func() bool { return len(c.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.FileExists(t, filepath.Join(dir, "done", "first.json"))

	writeJSON(t, filepath.Join(dir, "batch.json"), []Job{
		{ItemID: "discs", Role: content.RoleRouter},
		{ItemID: "discs", Role: content.RoleReference},
	})
	require.Eventually(t, func() bool { return len(c.snapshot()) == 3 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, "done", "batch.json"))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	jobs := c.snapshot()
	assert.Equal(t, "pads", jobs[0].ItemID)
	assert.Equal(t, content.RoleReference, jobs[2].Role)
}

func TestDirSource_RejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o644))

	c := &collector{}
	runSource(t, NewDirSource(dir, nil), c.enqueue)

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, "failed", "bad.json"))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, c.snapshot())
}

// #endregion dir-source-tests

// #region sweeper-tests
type fakeLister struct{ ids []string }

func (f fakeLister) ListItems(context.Context) ([]store.ItemRecord, error) {
	out := make([]store.ItemRecord, 0, len(f.ids))
	for _, id := range f.ids {
		out = append(out, store.ItemRecord{Item: content.Item{ID: id}})
	}
	return out, nil
}

func TestSweeper_EnqueuesEveryItemAndRole(t *testing.T) {
	s, err := NewSweeper("@every 1h", fakeLister{ids: []string{"pads", "discs"}}, nil)
	require.NoError(t, err)

	c := &collector{}
	n, err := s.Sweep(context.Background(), c.enqueue)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	jobs := c.snapshot()
	require.Len(t, jobs, 6)
	assert.Equal(t, Job{ItemID: "pads", Role: content.RoleRouter}, jobs[0])
	assert.Equal(t, Job{ItemID: "discs", Role: content.RoleReference}, jobs[5])
}

func TestSweeper_StopsOnEnqueueError(t *testing.T) {
	s, err := NewSweeper("*/5 * * * *", fakeLister{ids: []string{"pads"}}, nil)
	require.NoError(t, err)

	calls := 0
	n, err := s.Sweep(context.Background(), func(context.Context, Job) error {
		calls++
		if calls == 2 {
			return ErrStopped
		}
		return nil
	})
	assert.ErrorIs(t, err, ErrStopped)
	assert.Equal(t, 1, n)
}

func TestNewSweeper_RejectsBadSpec(t *testing.T) {
	_, err := NewSweeper("every tuesday", fakeLister{}, nil)
	assert.Error(t, err)
}

// #endregion sweeper-tests

// #region redis-source-tests
type fakeList struct {
	mu     sync.Mutex
	values []string
}

func (f *fakeList) BRPop(ctx context.Context, _ time.Duration, keys ...string) *redis.StringSliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.values) == 0 {
		select {
		case <-ctx.Done():
			return redis.NewStringSliceResult(nil, ctx.Err())
		case <-time.After(5 * time.Millisecond):
		}
		return redis.NewStringSliceResult(nil, redis.Nil)
	}
	last := f.values[len(f.values)-1]
	f.values = f.values[:len(f.values)-1]
	return redis.NewStringSliceResult([]string{keys[0], last}, nil)
}

func (f *fakeList) LPush(_ context.Context, _ string, values ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range values {
		f.values = append([]string{string(v.([]byte))}, f.values...)
	}
	return redis.NewIntResult(int64(len(f.values)), nil)
}

func TestRedisSource_PopsPushedJobsInOrder(t *testing.T) {
	list := &fakeList{}
	ctx := context.Background()
	require.NoError(t, Push(ctx, list, "contentgate:jobs", Job{ItemID: "pads", Role: content.RoleAdvice}))
	require.NoError(t, Push(ctx, list, "contentgate:jobs", Job{ItemID: "discs", Role: content.RoleRouter}))
	list.mu.Lock()
	list.values = append([]string{"not json"}, list.values...)
	list.mu.Unlock()

	c := &collector{}
	runSource(t, NewRedisSource(list, "contentgate:jobs", nil), c.enqueue)

	require.Eventually(t, func() bool { return len(c.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)
	jobs := c.snapshot()
	assert.Equal(t, "pads", jobs[0].ItemID)
	assert.Equal(t, "discs", jobs[1].ItemID)
}

func TestPush_RejectsInvalidJob(t *testing.T) {
	assert.Error(t, Push(context.Background(), &fakeList{}, "k", Job{ItemID: "pads"}))
}

// #endregion redis-source-tests
