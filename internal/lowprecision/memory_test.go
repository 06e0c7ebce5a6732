package lowprecision

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/delayq/internal/domain"
	"github.com/cuongbtq/delayq/internal/metrics"
)

var (
	fixedNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	lateDay  = time.Date(2025, 3, 10, 23, 30, 0, 0, time.UTC)
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMemoryStore(opts ...Option) *MemoryStore {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewMemoryStore(4, discardLogger(), opts...)
}

func lpParams(eventID string, target time.Time) domain.LowPrecisionParams {
	return domain.LowPrecisionParams{
		EventID:             eventID,
		CallbackPayload:     json.RawMessage(`{"k":"v"}`),
		CallbackType:        domain.CallbackQueue,
		CallbackURL:         "https://example.com/queue",
		TargetExecutionTime: target,
	}
}

func statusPtr(s domain.Status) *domain.Status { return &s }

func TestMemoryStore_CreateDerivesExpiryAndDay(t *testing.T) {
	store := newTestMemoryStore()
	ctx := context.Background()

	job, err := store.Create(ctx, lpParams("E1", lateDay))
	require.NoError(t, err)

	assert.Equal(t, "2025-03-10", job.PartitionKey)
	assert.Equal(t, int64(1741649400), job.TTLExpiry)
	assert.Equal(t, "E1", job.SortKey)
	assert.Equal(t, domain.StatusPending, job.Status)
	assert.Nil(t, job.ExecutedAt)

	got, err := store.Get(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, job, got)

	jobs, err := store.ListByDate(ctx, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "E1", jobs[0].EventID)

	next, err := store.ListByDate(ctx, time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, next)
}

func TestMemoryStore_SameTargetSameDerivedFields(t *testing.T) {
	store := newTestMemoryStore()
	ctx := context.Background()

	a, err := store.Create(ctx, lpParams("A", lateDay))
	require.NoError(t, err)
	b, err := store.Create(ctx, lpParams("B", lateDay.In(time.FixedZone("UTC+7", 7*3600))))
	require.NoError(t, err)

	assert.Equal(t, a.TTLExpiry, b.TTLExpiry)
	assert.Equal(t, a.PartitionKey, b.PartitionKey)
}

func TestMemoryStore_CreateOverwritesAndMovesDay(t *testing.T) {
	store := newTestMemoryStore()
	ctx := context.Background()

	_, err := store.Create(ctx, lpParams("E1", lateDay))
	require.NoError(t, err)
	moved := lateDay.Add(2 * time.Hour)
	_, err = store.Create(ctx, lpParams("E1", moved))
	require.NoError(t, err)

	assert.Equal(t, 1, store.Len())

	old, err := store.ListByDate(ctx, lateDay)
	require.NoError(t, err)
	assert.Empty(t, old)

	now, err := store.ListByDate(ctx, moved)
	require.NoError(t, err)
	require.Len(t, now, 1)
	assert.Equal(t, "2025-03-11", now[0].PartitionKey)
}

func TestMemoryStore_GetNotFound(t *testing.T) {
	store := newTestMemoryStore()

	_, err := store.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := newTestMemoryStore()
	ctx := context.Background()

	job, err := store.Create(ctx, lpParams("E1", lateDay))
	require.NoError(t, err)
	job.Status = domain.StatusCompleted
	job.CallbackPayload[0] = '['

	got, err := store.Get(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.JSONEq(t, `{"k":"v"}`, string(got.CallbackPayload))
}

func TestMemoryStore_Update(t *testing.T) {
	tests := []struct {
		name       string
		status     *domain.Status
		target     time.Time
		wantStatus domain.Status
		wantDay    string
		wantStamp  bool
	}{
		{
			name:       "reschedule keeps pending and re-derives day",
			target:     lateDay.Add(time.Hour),
			wantStatus: domain.StatusPending,
			wantDay:    "2025-03-11",
		},
		{
			name:       "executed stamps executed at",
			status:     statusPtr(domain.StatusExecuted),
			target:     lateDay,
			wantStatus: domain.StatusExecuted,
			wantDay:    "2025-03-10",
			wantStamp:  true,
		},
		{
			name:       "completed stamps executed at",
			status:     statusPtr(domain.StatusCompleted),
			target:     lateDay,
			wantStatus: domain.StatusCompleted,
			wantDay:    "2025-03-10",
			wantStamp:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestMemoryStore()
			ctx := context.Background()

			created, err := store.Create(ctx, lpParams("E1", lateDay))
			require.NoError(t, err)

			params := lpParams("E1", tt.target)
			params.Status = tt.status
			params.CallbackURL = "https://example.com/other"

			job, err := store.Update(ctx, params)
			require.NoError(t, err)

			assert.Equal(t, tt.wantStatus, job.Status)
			assert.Equal(t, tt.wantDay, job.PartitionKey)
			assert.Equal(t, tt.target.Unix(), job.TTLExpiry)
			assert.Equal(t, "https://example.com/other", job.CallbackURL)
			if tt.wantStamp {
				require.NotNil(t, job.ExecutedAt)
				assert.False(t, job.ExecutedAt.Before(created.CreatedAt))
			} else {
				assert.Nil(t, job.ExecutedAt)
			}

			listed, err := store.ListByDate(ctx, tt.target)
			require.NoError(t, err)
			require.Len(t, listed, 1)
		})
	}
}

func TestMemoryStore_UpdateRefusals(t *testing.T) {
	store := newTestMemoryStore()
	ctx := context.Background()

	_, err := store.Update(ctx, lpParams("missing", lateDay))
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = store.Create(ctx, lpParams("E1", lateDay))
	require.NoError(t, err)
	done := lpParams("E1", lateDay)
	done.Status = statusPtr(domain.StatusCompleted)
	_, err = store.Update(ctx, done)
	require.NoError(t, err)

	_, err = store.Update(ctx, lpParams("E1", lateDay.Add(48*time.Hour)))
	assert.True(t, errors.Is(err, domain.ErrInvalidState))

	got, err := store.Get(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-10", got.PartitionKey)
	assert.Equal(t, domain.StatusCompleted, got.Status)
}

func TestMemoryStore_Cancel(t *testing.T) {
	store := newTestMemoryStore()
	ctx := context.Background()

	_, err := store.Create(ctx, lpParams("E1", lateDay))
	require.NoError(t, err)

	ok, err := store.Cancel(ctx, "E1")
	require.NoError(t, err)
	assert.True(t, ok)

	first, err := store.Get(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, first.Status)
	require.NotNil(t, first.ExecutedAt)

	ok, err = store.Cancel(ctx, "E1")
	require.NoError(t, err)
	assert.False(t, ok)

	second, err := store.Get(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	ok, err = store.Cancel(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_CancelCompletedJob(t *testing.T) {
	store := newTestMemoryStore()
	ctx := context.Background()

	_, err := store.Create(ctx, lpParams("E1", lateDay))
	require.NoError(t, err)
	done := lpParams("E1", lateDay)
	done.Status = statusPtr(domain.StatusCompleted)
	_, err = store.Update(ctx, done)
	require.NoError(t, err)

	ok, err := store.Cancel(ctx, "E1")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := store.Get(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
}

func TestMemoryStore_ConcurrentCancelSucceedsOnce(t *testing.T) {
	store := newTestMemoryStore()
	ctx := context.Background()

	_, err := store.Create(ctx, lpParams("E1", lateDay))
	require.NoError(t, err)

	const callers = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.Cancel(ctx, "E1")
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
}

func TestMemoryStore_ConcurrentWritersAcrossDays(t *testing.T) {
	store := newTestMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("E%02d", i)
			_, err := store.Create(ctx, lpParams(id, lateDay))
			assert.NoError(t, err)
			if i%2 == 0 {
				_, err = store.Update(ctx, lpParams(id, lateDay.Add(time.Hour)))
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	day1, err := store.ListByDate(ctx, lateDay)
	require.NoError(t, err)
	day2, err := store.ListByDate(ctx, lateDay.Add(time.Hour))
	require.NoError(t, err)

	assert.Len(t, day1, 25)
	assert.Len(t, day2, 25)
	assert.Equal(t, 50, store.Len())
}

func TestMemoryStore_ListByDateOrdered(t *testing.T) {
	store := newTestMemoryStore()
	ctx := context.Background()

	_, _ = store.Create(ctx, lpParams("C", lateDay))
	_, _ = store.Create(ctx, lpParams("B", lateDay.Add(-time.Hour)))
	_, _ = store.Create(ctx, lpParams("A", lateDay))

	jobs, err := store.ListByDate(ctx, lateDay)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, []string{"B", "A", "C"}, []string{jobs[0].EventID, jobs[1].EventID, jobs[2].EventID})
}

func TestMemoryStore_PurgeExpired(t *testing.T) {
	now := lateDay.Add(3 * time.Hour)
	store := NewMemoryStore(4, discardLogger(), WithClock(func() time.Time { return now }))
	ctx := context.Background()

	_, _ = store.Create(ctx, lpParams("old", lateDay))
	_, _ = store.Create(ctx, lpParams("recent", now.Add(-30*time.Minute)))
	_, _ = store.Create(ctx, lpParams("future", now.Add(time.Hour)))

	removed, err := store.PurgeExpired(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.Get(ctx, "old")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	jobs, err := store.ListByDate(ctx, lateDay)
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.Equal(t, 2, store.Len())
}

type recordingSink struct {
	metrics.NoopSink

	mu          sync.Mutex
	transitions map[string]int
}

func (r *recordingSink) JobTransition(tier, transition string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.transitions == nil {
		r.transitions = make(map[string]int)
	}
	r.transitions[tier+"/"+transition]++
}

func TestMemoryStore_RecordsTransitions(t *testing.T) {
	sink := &recordingSink{}
	store := newTestMemoryStore(WithMetrics(sink))
	ctx := context.Background()

	_, _ = store.Create(ctx, lpParams("E1", lateDay))
	_, _ = store.Cancel(ctx, "E1")
	_, _ = store.Cancel(ctx, "E1")

	assert.Equal(t, map[string]int{
		"approximate/created":   1,
		"approximate/cancelled": 1,
		"approximate/refused":   1,
	}, sink.transitions)
}
