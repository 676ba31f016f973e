package ledger

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"urbanmobility/internal/auth"
	"urbanmobility/internal/cryptobox"
	"urbanmobility/internal/db"
	"urbanmobility/internal/store"
)

func newTestLedger(t *testing.T) (*Ledger, *db.Handle) {
	t.Helper()
	h, err := db.Open(context.Background(), filepath.Join(t.TempDir(), "app.db"), 4, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	box, err := cryptobox.New(make([]byte, 32))
	require.NoError(t, err)
	return New(store.New(h, box), auth.Argon2{}), h
}

func TestIssueStoresOnlyHash(t *testing.T) {
	ctx := context.Background()
	l, h := newTestLedger(t)

	token, err := l.Issue(ctx, "20240101_000000_um.zip", 2)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	sqdb, err := h.DB()
	require.NoError(t, err)
	rows, err := sqdb.Query(`SELECT * FROM restore_codes`)
	require.NoError(t, err)
	defer rows.Close()
	cols, err := rows.Columns()
	require.NoError(t, err)
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		require.NoError(t, rows.Scan(ptrs...))
		for _, v := range vals {
			if s, ok := v.(string); ok {
				assert.NotContains(t, s, token)
			}
		}
	}
	require.NoError(t, rows.Err())

	codes, err := l.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, codes, 1)
	assert.Empty(t, codes[0].CodeHash)
	assert.False(t, codes[0].Used)
}

func TestConsumeSucceedsExactlyOnce(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	token, err := l.Issue(ctx, "b.zip", 2)
	require.NoError(t, err)

	ok, err := l.Consume(ctx, 2, "b.zip", "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = l.Consume(ctx, 3, "b.zip", token)
	require.NoError(t, err)
	assert.False(t, ok, "code is bound to its grantee")

	ok, err = l.Consume(ctx, 2, "b.zip", token)
	require.NoError(t, err)
	assert.True(t, ok)

	for i := 0; i < 3; i++ {
		ok, err = l.Consume(ctx, 2, "b.zip", token)
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestConcurrentConsumeHasOneWinner(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)
	token, err := l.Issue(ctx, "b.zip", 2)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := l.Consume(ctx, 2, "b.zip", token)
			if err == nil && ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestConsumeRejectsEmptyCandidate(t *testing.T) {
	l, _ := newTestLedger(t)
	ok, err := l.Consume(context.Background(), 2, "b.zip", "")
	require.NoError(t, err)
	assert.False(t, ok)
}
