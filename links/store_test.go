package links

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkpulse/linkpulse/errors"
	lptest "github.com/linkpulse/linkpulse/internal/testing"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seedURL(t *testing.T, store *Store, userID string, expiresAt *time.Time) *ShortURL {
	t.Helper()
	u, err := store.Create(context.Background(), NewShortURL{
		OriginalURL: "https://example.com/" + userID,
		UserID:      userID,
		ExpiresAt:   expiresAt,
	}, baseTime.Add(-48*time.Hour))
	require.NoError(t, err)
	return u
}

func at(d time.Duration) *time.Time {
	t := baseTime.Add(d)
	return &t
}

func TestNewShortCode(t *testing.T) {
	a, err := NewShortCode()
	require.NoError(t, err)
	b, err := NewShortCode()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.GreaterOrEqual(t, len(a), 8)
	assert.NotContains(t, a, "0", "base58 excludes 0")
}

func TestStore_CreateAndGet(t *testing.T) {
	store := NewStore(lptest.CreateTestDB(t))
	ctx := context.Background()

	created := seedURL(t, store, "user-1", at(time.Hour))

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ShortCode, got.ShortCode)
	assert.Equal(t, StatusActive, got.Status)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, got.ExpiresAt.Equal(baseTime.Add(time.Hour)))
	assert.Nil(t, got.ExpiredAt)

	_, err = store.Get(ctx, "missing")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestStore_CreateValidation(t *testing.T) {
	store := NewStore(lptest.CreateTestDB(t))
	ctx := context.Background()

	_, err := store.Create(ctx, NewShortURL{UserID: "u"}, baseTime)
	assert.True(t, errors.IsInvalidRequestError(err))

	_, err = store.Create(ctx, NewShortURL{OriginalURL: "https://x.test"}, baseTime)
	assert.True(t, errors.IsInvalidRequestError(err))

	_, err = store.Create(ctx, NewShortURL{ShortCode: "dup", OriginalURL: "https://x.test", UserID: "u"}, baseTime)
	require.NoError(t, err)
	_, err = store.Create(ctx, NewShortURL{ShortCode: "dup", OriginalURL: "https://y.test", UserID: "u"}, baseTime)
	assert.True(t, errors.Is(err, errors.ErrConflict))
}

func TestStore_FetchExpiredCandidates(t *testing.T) {
	store := NewStore(lptest.CreateTestDB(t))
	ctx := context.Background()

	newest := seedURL(t, store, "user-1", at(-time.Minute))
	oldest := seedURL(t, store, "user-2", at(-time.Hour))
	seedURL(t, store, "user-1", at(time.Hour)) // not yet expired
	seedURL(t, store, "user-3", nil)           // never expires
	disabled := seedURL(t, store, "user-3", at(-2*time.Hour))
	require.NoError(t, store.SetStatus(ctx, disabled.ID, StatusDisabled, baseTime))

	run := Run{ID: "run-1", AsOf: baseTime}
	candidates, err := store.FetchExpiredCandidates(ctx, run, 10, 0)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, oldest.ID, candidates[0].ID, "oldest expiration first")
	assert.Equal(t, newest.ID, candidates[1].ID)
	assert.Equal(t, "user-2", candidates[0].UserID)

	page, err := store.FetchExpiredCandidates(ctx, run, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, newest.ID, page[0].ID)
}

func TestStore_MarkExpired_OnlyActiveRows(t *testing.T) {
	store := NewStore(lptest.CreateTestDB(t))
	ctx := context.Background()

	a := seedURL(t, store, "user-1", at(-time.Hour))
	b := seedURL(t, store, "user-1", at(-time.Hour))
	c := seedURL(t, store, "user-2", at(-time.Hour))

	// c is disabled between fetch and update
	require.NoError(t, store.SetStatus(ctx, c.ID, StatusDisabled, baseTime))

	run := Run{ID: "run-1", AsOf: baseTime}
	updated, err := store.MarkExpired(ctx, run, []string{a.ID, b.ID, c.ID}, baseTime)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, updated)

	got, err := store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, got.Status)
	require.NotNil(t, got.ExpiredAt)
	assert.True(t, got.ExpiredAt.Equal(baseTime))

	got, err = store.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDisabled, got.Status)

	// a second update is a no-op
	updated, err = store.MarkExpired(ctx, run, []string{a.ID, b.ID}, baseTime)
	require.NoError(t, err)
	assert.Empty(t, updated)

	updated, err = store.MarkExpired(ctx, run, nil, baseTime)
	require.NoError(t, err)
	assert.Empty(t, updated)
}

func TestStore_PagingStableWithinRun(t *testing.T) {
	store := NewStore(lptest.CreateTestDB(t))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		seedURL(t, store, fmt.Sprintf("user-%d", i), at(-time.Duration(10-i)*time.Minute))
	}

	run := Run{ID: "run-1", AsOf: baseTime}
	first, err := store.FetchExpiredCandidates(ctx, run, 2, 0)
	require.NoError(t, err)
	require.Len(t, first, 2)
	_, err = store.MarkExpired(ctx, run, []string{first[0].ID, first[1].ID}, baseTime)
	require.NoError(t, err)

	// offset 2 still lands on the third oldest row
	second, err := store.FetchExpiredCandidates(ctx, run, 2, 2)
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, "user-2", second[0].UserID)

	// a different run no longer sees the rows expired by run-1
	fresh, err := store.FetchExpiredCandidates(ctx, Run{ID: "run-2", AsOf: baseTime}, 10, 0)
	require.NoError(t, err)
	assert.Len(t, fresh, 3)
}

func TestStore_Statistics(t *testing.T) {
	store := NewStore(lptest.CreateTestDB(t))
	ctx := context.Background()

	expired := seedURL(t, store, "u", at(-3*time.Hour))
	seedURL(t, store, "u", at(-time.Hour))    // pending
	seedURL(t, store, "u", at(2*time.Hour))   // within 24h
	seedURL(t, store, "u", at(48*time.Hour))  // later
	disabled := seedURL(t, store, "u", nil)
	seedURL(t, store, "u", nil)

	_, err := store.MarkExpired(ctx, Run{ID: "r", AsOf: baseTime}, []string{expired.ID}, baseTime)
	require.NoError(t, err)
	require.NoError(t, store.SetStatus(ctx, disabled.ID, StatusDisabled, baseTime))

	stats, err := store.Statistics(ctx, baseTime)
	require.NoError(t, err)

	assert.Equal(t, int64(6), stats.Total)
	assert.Equal(t, int64(4), stats.Active)
	assert.Equal(t, int64(1), stats.Expired)
	assert.Equal(t, int64(1), stats.Disabled)
	assert.Equal(t, int64(1), stats.PendingExpiration)
	assert.Equal(t, int64(1), stats.ExpiringWithin24h)
	assert.True(t, stats.GeneratedAt.Equal(baseTime))
}

func TestStore_SetStatusMissing(t *testing.T) {
	store := NewStore(lptest.CreateTestDB(t))
	err := store.SetStatus(context.Background(), "missing", StatusDisabled, baseTime)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestStore_MarkExpired_SQL(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	run := Run{ID: "run-9", AsOf: baseTime}

	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = 'active' AND id IN (?,?,?)")).
		WithArgs(baseTime.UnixMilli(), "run-9", baseTime.UnixMilli(), "a", "b", "c").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a").AddRow("c"))

	updated, err := store.MarkExpired(context.Background(), run, []string{"a", "b", "c"}, baseTime)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_FetchExpiredCandidates_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY expires_at ASC, id ASC")).
		WithArgs(baseTime.UnixMilli(), "run-1", 1000, 2000).
		WillReturnError(fmt.Errorf("disk I/O error"))

	_, err = NewStore(db).FetchExpiredCandidates(context.Background(), Run{ID: "run-1", AsOf: baseTime}, 1000, 2000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to query expired candidates")
	assert.NoError(t, mock.ExpectationsWereMet())
}
