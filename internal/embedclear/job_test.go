package embedclear

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-engine/internal/model"
	"github.com/sells-group/lead-engine/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// seed inserts withEmbedding leads embedded via SetEmbedding (several
// sharing a timestamp), legacy leads with an embedding but no timestamp,
// and plain leads without embeddings. It returns the ids of each group.
func seed(t *testing.T, st *store.SQLiteStore, withEmbedding, legacy, plain int) (embedded, legacyIDs, plainIDs []string) {
	t.Helper()
	ctx := context.Background()
	gen := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	insert := func(title string, mutate func(*model.Lead)) string {
		l := &model.Lead{Title: title, Location: model.Location{Region: "TX"}, IsActive: true}
		if mutate != nil {
			mutate(l)
		}
		id, err := st.InsertLead(ctx, l)
		require.NoError(t, err)
		return id
	}

	for i := 0; i < withEmbedding; i++ {
		id := insert(fmt.Sprintf("embedded %d", i), nil)
		at := gen.Add(time.Duration(i/3) * time.Second)
		require.NoError(t, st.SetEmbedding(ctx, id, []float32{float32(i), 1}, "text-embed-3", at))
		embedded = append(embedded, id)
	}
	for i := 0; i < legacy; i++ {
		legacyIDs = append(legacyIDs, insert(fmt.Sprintf("legacy %d", i), func(l *model.Lead) {
			l.EmbeddingModel = "old-model"
			if i%2 == 0 {
				l.Embedding = []float32{0.5}
			}
		}))
	}
	for i := 0; i < plain; i++ {
		plainIDs = append(plainIDs, insert(fmt.Sprintf("plain %d", i), nil))
	}
	return embedded, legacyIDs, plainIDs
}

func assertCleared(t *testing.T, st *store.SQLiteStore, ids []string) {
	t.Helper()
	for _, id := range ids {
		l, err := st.GetLead(context.Background(), id)
		require.NoError(t, err)
		assertNoEmbedding(t, l)
	}
}

func TestClearAll_RepeatedUntilDone(t *testing.T) {
	st := newTestStore(t)
	embedded, legacy, plain := seed(t, st, 11, 5, 4)
	job := New(st)

	var (
		cursor      *Cursor
		cleared     int
		invocations int
	)
	for {
		res, err := job.ClearAll(context.Background(), 3, 2, cursor)
		require.NoError(t, err)
		invocations++
		cleared += res.ClearedCount
		assert.Zero(t, res.ErrorCount)
		if !res.HasMore {
			assert.Nil(t, res.Cursor)
			break
		}
		require.NotNil(t, res.Cursor)
		require.Less(t, invocations, 50, "clear did not terminate")

		// The cursor survives the opaque token round trip.
		token, err := res.Cursor.Encode()
		require.NoError(t, err)
		cursor, err = DecodeCursor(token)
		require.NoError(t, err)
	}

	assert.Equal(t, len(embedded)+len(legacy), cleared)
	assert.Greater(t, invocations, 1)
	assertCleared(t, st, embedded)
	assertCleared(t, st, legacy)

	for _, id := range plain {
		l, err := st.GetLead(context.Background(), id)
		require.NoError(t, err)
		assertNoEmbedding(t, l)
		assert.Contains(t, l.Title, "plain")
	}

	// Nothing left: a fresh run is a no-op.
	res, err := job.ClearAll(context.Background(), 3, 2, nil)
	require.NoError(t, err)
	assert.Zero(t, res.ProcessedCount)
	assert.False(t, res.HasMore)
}

func TestClearAll_SingleInvocation(t *testing.T) {
	st := newTestStore(t)
	seed(t, st, 4, 2, 1)

	res, err := New(st).ClearAll(context.Background(), 100, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, 6, res.ClearedCount)
	assert.Equal(t, 6, res.ProcessedCount)
	assert.False(t, res.HasMore)
}

func TestClearAll_MaxBatchesStopsWithCursor(t *testing.T) {
	st := newTestStore(t)
	seed(t, st, 10, 0, 0)

	res, err := New(st).ClearAll(context.Background(), 2, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, 6, res.ClearedCount)
	assert.True(t, res.HasMore)
	require.NotNil(t, res.Cursor)
	assert.Equal(t, store.EmbeddingIndexPrimary, res.Cursor.Index)
	assert.NotNil(t, res.Cursor.AfterGeneratedAt)
}

func TestClearAll_TimeBudget(t *testing.T) {
	st := newTestStore(t)
	seed(t, st, 10, 0, 0)

	// Each clock read advances 20s; the budget allows a few reads.
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		now = now.Add(20 * time.Second)
		return now
	}

	res, err := New(st, WithClock(clock), WithBudget(90*time.Second, 30*time.Second)).
		ClearAll(context.Background(), 2, 100, nil)
	require.NoError(t, err)
	assert.True(t, res.HasMore)
	assert.Less(t, res.ClearedCount, 10)
	assert.Greater(t, res.ClearedCount, 0)
	require.NotNil(t, res.Cursor)
}

// failingStore fails ClearEmbedding for chosen ids.
type failingStore struct {
	Store
	fail map[string]bool
}

func (f *failingStore) ClearEmbedding(ctx context.Context, id string) error {
	if f.fail[id] {
		return fmt.Errorf("write conflict")
	}
	return f.Store.ClearEmbedding(ctx, id)
}

func TestClearAll_FailedRecordIsSkippedNotRetried(t *testing.T) {
	st := newTestStore(t)
	embedded, _, _ := seed(t, st, 5, 0, 0)
	fs := &failingStore{Store: st, fail: map[string]bool{embedded[1]: true}}
	job := New(fs)

	first, err := job.ClearAll(context.Background(), 2, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, first.ErrorCount)
	assert.Equal(t, 1, first.ClearedCount)
	require.Len(t, first.Errors, 1)
	assert.Contains(t, first.Errors[0], embedded[1])

	var processed int
	cursor := first.Cursor
	for cursor != nil {
		res, err := job.ClearAll(context.Background(), 2, 1, cursor)
		require.NoError(t, err)
		processed += res.ProcessedCount
		assert.Zero(t, res.ErrorCount)
		cursor = res.Cursor
	}
	assert.Equal(t, 3, processed)

	l, err := st.GetLead(context.Background(), embedded[1])
	require.NoError(t, err)
	assert.NotEmpty(t, l.Embedding)
	assert.NotNil(t, l.EmbeddingGeneratedAt)
}

// brokenIndexStore fails reads.
type brokenIndexStore struct{ Store }

func (brokenIndexStore) LeadsWithEmbedding(context.Context, store.EmbeddingIndex, store.EmbeddingPosition, int) ([]store.EmbeddingRef, error) {
	return nil, fmt.Errorf("index unavailable")
}

func TestClearAll_IndexReadFailure(t *testing.T) {
	res, err := New(brokenIndexStore{}).ClearAll(context.Background(), 10, 1, nil)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.True(t, res.HasMore)
	require.NotNil(t, res.Cursor)
	assert.Equal(t, store.EmbeddingIndexPrimary, res.Cursor.Index)
}

func TestDecodeCursor(t *testing.T) {
	c, err := DecodeCursor("")
	require.NoError(t, err)
	assert.Nil(t, c)

	_, err = DecodeCursor("%%%")
	assert.Error(t, err)

	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	token, err := (&Cursor{Index: store.EmbeddingIndexLegacy, AfterGeneratedAt: &at, AfterID: "x"}).Encode()
	require.NoError(t, err)
	c, err = DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, store.EmbeddingIndexLegacy, c.Index)
	assert.Equal(t, "x", c.AfterID)
	assert.True(t, at.Equal(*c.AfterGeneratedAt))

	bad, err := (&Cursor{Index: "nope"}).Encode()
	require.NoError(t, err)
	_, err = DecodeCursor(bad)
	assert.Error(t, err)
}

// assertNoEmbedding checks every embedding field is cleared.
func assertNoEmbedding(t *testing.T, l *model.Lead) {
	t.Helper()
	assert.Empty(t, l.Embedding, l.ID)
	assert.Empty(t, l.EmbeddingModel, l.ID)
	assert.Nil(t, l.EmbeddingGeneratedAt, l.ID)
}
