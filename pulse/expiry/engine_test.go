package expiry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/linkpulse/linkpulse/db"
	"github.com/linkpulse/linkpulse/errors"
	lptest "github.com/linkpulse/linkpulse/internal/testing"
	"github.com/linkpulse/linkpulse/links"
	"github.com/linkpulse/linkpulse/pulse/job"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// memStore is an in-memory Store with hooks for injecting failures
type memStore struct {
	mu       sync.Mutex
	rows     []memRow
	fetches  []int // offsets requested
	marks    int   // MarkExpired calls
	fetchErr error
	// markErr, when set, decides the error for a MarkExpired call number (1-based)
	markErr func(call int, ids []string) error
	// beforeMark runs between fetch and update, simulating a concurrent writer
	beforeMark func(s *memStore, ids []string)
}

type memRow struct {
	id, user   string
	expiresAt  time.Time
	status     links.Status
	expiredRun string
}

func newMemStore(n int, users int) *memStore {
	s := &memStore{}
	for i := 0; i < n; i++ {
		s.rows = append(s.rows, memRow{
			id:        fmt.Sprintf("url-%05d", i),
			user:      fmt.Sprintf("user-%d", i%users),
			expiresAt: t0.Add(-time.Duration(n-i) * time.Second),
			status:    links.StatusActive,
		})
	}
	return s
}

func (s *memStore) FetchExpiredCandidates(_ context.Context, run links.Run, limit, offset int) ([]links.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches = append(s.fetches, offset)
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}

	var matching []memRow
	for _, r := range s.rows {
		if r.expiresAt.After(run.AsOf) {
			continue
		}
		if r.status == links.StatusActive || (r.status == links.StatusExpired && r.expiredRun == run.ID) {
			matching = append(matching, r)
		}
	}
	sort.Slice(matching, func(i, j int) bool {
		if matching[i].expiresAt.Equal(matching[j].expiresAt) {
			return matching[i].id < matching[j].id
		}
		return matching[i].expiresAt.Before(matching[j].expiresAt)
	})

	if offset >= len(matching) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matching) {
		end = len(matching)
	}
	out := make([]links.Candidate, 0, end-offset)
	for _, r := range matching[offset:end] {
		out = append(out, links.Candidate{ID: r.id, ShortCode: "c" + r.id, UserID: r.user, ExpiresAt: r.expiresAt})
	}
	return out, nil
}

func (s *memStore) MarkExpired(_ context.Context, run links.Run, ids []string, _ time.Time) ([]string, error) {
	s.mu.Lock()
	s.marks++
	call := s.marks
	hook := s.beforeMark
	s.mu.Unlock()

	if hook != nil && call == 1 {
		hook(s, ids)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		if err := s.markErr(call, ids); err != nil {
			return nil, err
		}
	}

	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var updated []string
	for i := range s.rows {
		r := &s.rows[i]
		if want[r.id] && r.status == links.StatusActive {
			r.status = links.StatusExpired
			r.expiredRun = run.ID
			updated = append(updated, r.id)
		}
	}
	return updated, nil
}

func (s *memStore) setStatus(id string, status links.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].id == id {
			s.rows[i].status = status
		}
	}
}

func (s *memStore) active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.rows {
		if r.status == links.StatusActive {
			n++
		}
	}
	return n
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestEngine(store Store, cfg Config, opts ...Option) *Engine {
	opts = append([]Option{WithClock(func() time.Time { return t0 }), WithSleep(noSleep)}, opts...)
	return NewEngine(store, cfg, nil, opts...)
}

func TestEngine_ThreePagesScenario(t *testing.T) {
	store := newMemStore(2500, 7)
	engine := newTestEngine(store, Config{BatchSize: 1000, MaxRetries: 3})

	result := engine.Run(context.Background())

	assert.True(t, result.Success)
	assert.Equal(t, 2500, result.ProcessedCount)
	assert.Equal(t, 2500, result.ExpiredCount)
	assert.Empty(t, result.Errors)
	assert.Equal(t, []int{0, 1000, 2000}, store.fetches, "exactly three pages")
	assert.Equal(t, 0, store.active())
	assert.NotEmpty(t, result.RunID)
}

func TestEngine_Idempotent(t *testing.T) {
	store := newMemStore(120, 3)
	engine := newTestEngine(store, Config{BatchSize: 50, MaxRetries: 3})

	first := engine.Run(context.Background())
	require.True(t, first.Success)
	require.Equal(t, 120, first.ExpiredCount)

	second := engine.Run(context.Background())
	assert.True(t, second.Success)
	assert.Equal(t, 0, second.ProcessedCount)
	assert.Equal(t, 0, second.ExpiredCount)
	assert.Empty(t, second.Errors)
}

func TestEngine_TerminatesForAnyBatchSize(t *testing.T) {
	for _, batch := range []int{1, 2, 3, 7, 64, 99, 100, 101, 1000} {
		t.Run(fmt.Sprintf("batch=%d", batch), func(t *testing.T) {
			store := newMemStore(100, 4)
			engine := newTestEngine(store, Config{BatchSize: batch, MaxRetries: 1})

			result := engine.Run(context.Background())

			assert.True(t, result.Success)
			assert.Equal(t, 100, result.ExpiredCount)
			assert.Equal(t, 0, store.active())
		})
	}
}

func TestEngine_FirstPageAlwaysFails(t *testing.T) {
	store := newMemStore(2500, 3)
	store.markErr = func(int, []string) error { return errors.New("database is locked") }

	var waits []time.Duration
	sleep := func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	engine := newTestEngine(store, Config{BatchSize: 1000, MaxRetries: 3, RetryDelay: 5 * time.Second}, WithSleep(sleep))

	result := engine.Run(context.Background())

	assert.False(t, result.Success)
	assert.Equal(t, 0, result.ProcessedCount)
	assert.Equal(t, 0, result.ExpiredCount)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "offset 0")
	assert.Contains(t, result.Errors[0], "database is locked")
	assert.Equal(t, 3, store.marks, "three attempts on the first page")
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, waits)
	assert.Equal(t, []int{0}, store.fetches, "no further pages without progress")
}

func TestEngine_SkipsFailingPageAfterProgress(t *testing.T) {
	store := newMemStore(30, 2)
	// calls 2..4 are the three attempts on the second page
	store.markErr = func(call int, _ []string) error {
		if call >= 2 && call <= 4 {
			return errors.New("disk I/O error")
		}
		return nil
	}
	engine := newTestEngine(store, Config{BatchSize: 10, MaxRetries: 3})

	result := engine.Run(context.Background())

	assert.True(t, result.Success, "progress was made, so the run still counts as a success")
	assert.Equal(t, 20, result.ProcessedCount)
	assert.Equal(t, 20, result.ExpiredCount)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "offset 10")
	assert.Equal(t, []int{0, 10, 20, 30}, store.fetches, "skipped page is never re-read")
	assert.Equal(t, 10, store.active())

	// the next run picks up the skipped rows
	again := engine.Run(context.Background())
	assert.Equal(t, 10, again.ExpiredCount)
	assert.Equal(t, 0, store.active())
}

func TestEngine_RaceBetweenFetchAndUpdate(t *testing.T) {
	store := newMemStore(10, 2)
	store.beforeMark = func(s *memStore, ids []string) {
		s.setStatus(ids[0], links.StatusDisabled)
		s.setStatus(ids[1], links.StatusDisabled)
	}
	engine := newTestEngine(store, Config{BatchSize: 10, MaxRetries: 3})

	result := engine.Run(context.Background())

	assert.True(t, result.Success)
	assert.Equal(t, 10, result.ProcessedCount)
	assert.Equal(t, 8, result.ExpiredCount, "only rows still active at update time count")
}

func TestEngine_FetchErrorEndsRun(t *testing.T) {
	store := newMemStore(10, 1)
	store.fetchErr = errors.New("no such table: short_urls")
	engine := newTestEngine(store, Config{BatchSize: 5, MaxRetries: 3})

	result := engine.Run(context.Background())

	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "fetch candidates")
	assert.Equal(t, 0, store.marks)
}

func TestEngine_CancelledContext(t *testing.T) {
	store := newMemStore(10, 1)
	engine := newTestEngine(store, Config{BatchSize: 5, MaxRetries: 3})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := engine.Run(ctx)

	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "interrupted")
	assert.Empty(t, store.fetches)
}

func TestEngine_AuditRecords(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	store := newMemStore(5, 2)
	store.beforeMark = func(s *memStore, ids []string) {
		s.setStatus(ids[0], links.StatusDisabled)
	}
	engine := newTestEngine(store, Config{BatchSize: 10, MaxRetries: 1}, WithAuditLogger(zap.New(core).Sugar()))

	result := engine.Run(context.Background())
	require.Equal(t, 4, result.ExpiredCount)

	perURL := logs.FilterMessage("Short URL expired").All()
	assert.Len(t, perURL, 4, "one record per expired URL")
	for _, entry := range perURL {
		assert.Equal(t, result.RunID, entry.ContextMap()["run_id"])
		assert.NotEqual(t, "url-00000", entry.ContextMap()["url_id"], "the raced row is not audited")
	}

	summaries := logs.FilterMessage("Short URLs expired for user").All()
	require.Len(t, summaries, 2)
	total := int64(0)
	for _, entry := range summaries {
		total += entry.ContextMap()["count"].(int64)
	}
	assert.Equal(t, int64(4), total)
}

func TestEngine_ClosedDatabaseIsNotRetried(t *testing.T) {
	store := newMemStore(30, 2)
	store.markErr = func(int, []string) error { return errors.Wrap(db.ErrDatabaseClosed, "mark expired") }

	var waits []time.Duration
	sleep := func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	engine := newTestEngine(store, Config{BatchSize: 10, MaxRetries: 3, RetryDelay: time.Second}, WithSleep(sleep))

	result := engine.Run(context.Background())

	assert.False(t, result.Success)
	assert.Equal(t, 1, store.marks, "a closed database gets a single attempt")
	assert.Empty(t, waits)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "database is closed")
}

func TestEngine_BusyDatabaseIsRetried(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	store := newMemStore(5, 1)
	store.markErr = func(call int, _ []string) error {
		if call == 1 {
			return sqlite3.Error{Code: sqlite3.ErrBusy}
		}
		return nil
	}
	engine := newTestEngine(store, Config{BatchSize: 10, MaxRetries: 3}, func(e *Engine) { e.log = zap.New(core).Sugar() })

	result := engine.Run(context.Background())

	assert.True(t, result.Success)
	assert.Equal(t, 5, result.ExpiredCount)
	assert.Equal(t, 2, store.marks)
	retries := logs.FilterMessage("Page update failed, retrying").All()
	require.Len(t, retries, 1)
	assert.Equal(t, true, retries[0].ContextMap()["transient"])
}

func TestEngine_LogsCarryRunContext(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	engine := newTestEngine(newMemStore(3, 1), Config{BatchSize: 10, MaxRetries: 1}, func(e *Engine) { e.log = zap.New(core).Sugar() })

	result := engine.Run(context.Background())

	finished := logs.FilterMessage("URL expiration run finished").All()
	require.Len(t, finished, 1)
	fields := finished[0].ContextMap()
	assert.Equal(t, result.RunID, fields["run_id"])
	assert.Equal(t, "pulse.expiry", fields["component"])
	assert.Equal(t, string(job.URLExpiration), fields["job"])
}

func TestEngine_CleanRunEncodesEmptyErrors(t *testing.T) {
	engine := newTestEngine(newMemStore(0, 1), Config{BatchSize: 10, MaxRetries: 1})

	result := engine.Run(context.Background())

	require.NotNil(t, result.Errors)
	raw, err := json.Marshal(result)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"errors":[]`)
}

func TestEngine_DefaultsForInvalidConfig(t *testing.T) {
	engine := NewEngine(newMemStore(0, 1), Config{BatchSize: 0, MaxRetries: -1, RetryDelay: -time.Second}, nil)

	cfg := engine.Config()
	assert.Equal(t, 1000, cfg.BatchSize)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.Duration(0), cfg.RetryDelay)
}

func TestEngine_WithSQLiteStore(t *testing.T) {
	store := links.NewStore(lptest.CreateTestDB(t))
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		expires := t0.Add(-time.Duration(i+1) * time.Minute)
		_, err := store.Create(ctx, links.NewShortURL{
			OriginalURL: fmt.Sprintf("https://example.com/%d", i),
			UserID:      fmt.Sprintf("user-%d", i%3),
			ExpiresAt:   &expires,
		}, t0.Add(-time.Hour))
		require.NoError(t, err)
	}
	future := t0.Add(time.Hour)
	_, err := store.Create(ctx, links.NewShortURL{OriginalURL: "https://example.com/later", UserID: "user-9", ExpiresAt: &future}, t0)
	require.NoError(t, err)

	engine := newTestEngine(store, Config{BatchSize: 10, MaxRetries: 3})

	result := engine.Run(ctx)
	assert.True(t, result.Success)
	assert.Equal(t, 25, result.ProcessedCount)
	assert.Equal(t, 25, result.ExpiredCount)

	second := engine.Run(ctx)
	assert.Equal(t, 0, second.ProcessedCount)
	assert.Equal(t, 0, second.ExpiredCount)

	stats, err := store.Statistics(ctx, t0)
	require.NoError(t, err)
	assert.Equal(t, int64(25), stats.Expired)
	assert.Equal(t, int64(1), stats.Active)
	assert.Equal(t, int64(0), stats.PendingExpiration)
}
