package backup

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"urbanmobility/internal/apperr"
	"urbanmobility/internal/cryptobox"
	"urbanmobility/internal/db"
	"urbanmobility/internal/models"
	"urbanmobility/internal/seclog"
	"urbanmobility/internal/store"
)

type fixture struct {
	h      *db.Handle
	st     *store.Store
	audit  *seclog.Logger
	engine *Engine
	dir    string
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	root := t.TempDir()
	h, err := db.Open(context.Background(), filepath.Join(root, "data", "app.db"), 1, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	box, err := cryptobox.New(make([]byte, 32))
	require.NoError(t, err)
	audit := seclog.New(filepath.Join(root, "logs.enc"), box, nil)
	dir := filepath.Join(root, "backups")
	return &fixture{
		h:      h,
		st:     store.New(h, box),
		audit:  audit,
		engine: NewEngine(dir, h, audit, nil, opts...),
		dir:    dir,
	}
}

func (f *fixture) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := f.st.CreateUser(ctx, models.User{Username: "sysadmin1", PasswordHash: "h1", Role: models.RoleSysAdmin, FirstName: "Sam"})
	require.NoError(t, err)
	_, err = f.st.CreateTraveller(ctx, models.Traveller{
		FirstName: "Jan", LastName: "Jansen", Birthday: "1990-04-01", Gender: "male", Street: "Coolsingel",
		HouseNumber: "40", ZipCode: "3011AD", City: "Rotterdam", Email: "jan@example.nl", Phone: "12345678", License: "AB1234567",
	})
	require.NoError(t, err)
	_, err = f.st.CreateScooter(ctx, models.Scooter{
		Brand: "Segway", Model: "Ninebot", SerialNumber: "SN-0001", TopSpeed: 25, BatteryCapacity: 500,
		SOC: 80, TargetSOCMin: 20, TargetSOCMax: 90, Latitude: 51.9, Longitude: 4.4,
		InServiceDate: "2024-01-01", Status: models.ScooterActive,
	})
	require.NoError(t, err)
}

// digest hashes every business row, including each value's storage type.
func (f *fixture) digest(t *testing.T) string {
	t.Helper()
	sqdb, err := f.h.DB()
	require.NoError(t, err)
	hash := sha256.New()
	for _, table := range BusinessTables {
		rows, err := sqdb.Query(fmt.Sprintf(`SELECT * FROM %q ORDER BY rowid`, table))
		require.NoError(t, err)
		cols, err := rows.Columns()
		require.NoError(t, err)
		for rows.Next() {
			vals := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range vals {
				ptrs[i] = &vals[i]
			}
			require.NoError(t, rows.Scan(ptrs...))
			fmt.Fprintf(hash, "%s|%#v\n", table, vals)
		}
		require.NoError(t, rows.Err())
		rows.Close()
	}
	return hex.EncodeToString(hash.Sum(nil))
}

func (f *fixture) events(t *testing.T) []models.SecurityLogEntry {
	t.Helper()
	entries, err := f.audit.ReadAll(context.Background())
	require.NoError(t, err)
	return entries
}

func lastEvent(entries []models.SecurityLogEntry) models.SecurityLogEntry {
	if len(entries) == 0 {
		return models.SecurityLogEntry{}
	}
	return entries[len(entries)-1]
}

func hasEvent(entries []models.SecurityLogEntry, event string) bool {
	for _, e := range entries {
		if e.Event == event {
			return true
		}
	}
	return false
}

func listCodes(t *testing.T, st *store.Store) []models.RestoreCode {
	t.Helper()
	codes, err := st.ListRestoreCodes(context.Background(), 0)
	require.NoError(t, err)
	return codes
}

func TestRoundTripRestoresBusinessRowsExactly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)
	before := f.digest(t)

	name, err := f.engine.CreateBackup(ctx, "super_admin")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(name, "_um.zip"))
	assert.Equal(t, seclog.EventBackupCreated, lastEvent(f.events(t)).Event)

	_, err = f.st.CreateUser(ctx, models.User{Username: "engineer9", PasswordHash: "x", Role: models.RoleEngineer})
	require.NoError(t, err)
	require.NoError(t, f.st.DeleteScooter(ctx, 1))
	require.NotEqual(t, before, f.digest(t))

	require.NoError(t, f.engine.RestoreFromBackup(ctx, name, "sysadmin1"))
	assert.Equal(t, before, f.digest(t))

	events := f.events(t)
	assert.True(t, hasEvent(events, seclog.EventRestoreStarted))
	assert.Equal(t, seclog.EventRestoreCompleted, lastEvent(events).Event)

	_, err = f.st.GetUserByUsername(ctx, "sysadmin1")
	assert.NoError(t, err, "store is usable after resume")
}

func TestSnapshotExcludesSessionTables(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)
	_, err := f.st.InsertRestoreCode(ctx, "b.zip", 1, "hash")
	require.NoError(t, err)

	dst := filepath.Join(t.TempDir(), "snap.db")
	require.NoError(t, ExportBusinessSnapshot(ctx, f.h.Path(), dst, time.Second))

	sqdb, err := sql.Open("sqlite", dst)
	require.NoError(t, err)
	defer sqdb.Close()
	var n int
	require.NoError(t, sqdb.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('restore_codes','log_state')`).Scan(&n))
	assert.Zero(t, n)
	require.NoError(t, sqdb.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestRestoreKeepsSessionStateCreatedAfterBackup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)

	name, err := f.engine.CreateBackup(ctx, "super_admin")
	require.NoError(t, err)

	_, err = f.st.InsertRestoreCode(ctx, name, 1, "hash-after-backup")
	require.NoError(t, err)
	require.NoError(t, f.st.UpsertWatermark(ctx, 1, 42))
	before := listCodes(t, f.st)

	require.NoError(t, f.engine.RestoreFromBackup(ctx, name, "sysadmin1"))

	assert.Equal(t, before, listCodes(t, f.st))
	seq, err := f.st.GetWatermark(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(42), seq)
}

func TestRestoreNeverReusesPreservedUserIDs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)

	name, err := f.engine.CreateBackup(ctx, "super_admin")
	require.NoError(t, err)

	later, err := f.st.CreateUser(ctx, models.User{Username: "sysadmn2", PasswordHash: "h2", Role: models.RoleSysAdmin})
	require.NoError(t, err)
	_, err = f.st.InsertRestoreCode(ctx, name, later.ID, "granted-to-later")
	require.NoError(t, err)
	require.NoError(t, f.st.UpsertWatermark(ctx, later.ID, 7))

	require.NoError(t, f.engine.RestoreFromBackup(ctx, name, "sysadmin1"))
	_, err = f.st.GetUserByUsername(ctx, "sysadmn2")
	require.ErrorIs(t, err, store.ErrNotFound)

	next, err := f.st.CreateUser(ctx, models.User{Username: "sysadmn3", PasswordHash: "h3", Role: models.RoleSysAdmin})
	require.NoError(t, err)
	assert.Greater(t, next.ID, later.ID)

	codes, err := f.st.ListRestoreCodes(ctx, next.ID)
	require.NoError(t, err)
	assert.Empty(t, codes)
	seq, err := f.st.GetWatermark(ctx, next.ID)
	require.NoError(t, err)
	assert.Zero(t, seq)

	codes, err = f.st.ListRestoreCodes(ctx, later.ID)
	require.NoError(t, err)
	assert.Len(t, codes, 1, "preserved rows stay untouched")
}

func TestRestoreDiscardsSessionRowsCarriedByArchive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)
	_, err := f.st.InsertRestoreCode(ctx, "old.zip", 1, "stale")
	require.NoError(t, err)

	// An archive holding a full copy of the store, session tables included.
	require.NoError(t, os.MkdirAll(f.dir, 0o750))
	name := "20200101_000000_um.zip"
	require.NoError(t, writeArchive(filepath.Join(f.dir, name), f.h.Path(), "app.db", time.Now()))

	sqdb, err := f.h.DB()
	require.NoError(t, err)
	_, err = sqdb.Exec(`DELETE FROM restore_codes`)
	require.NoError(t, err)
	_, err = f.st.InsertRestoreCode(ctx, "new.zip", 1, "fresh")
	require.NoError(t, err)

	require.NoError(t, f.engine.RestoreFromBackup(ctx, name, "sysadmin1"))

	codes := listCodes(t, f.st)
	require.Len(t, codes, 1)
	assert.Equal(t, "fresh", codes[0].CodeHash)
}

func TestRestoreMissingArchiveLeavesStoreUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)
	before := f.digest(t)

	err := f.engine.RestoreFromBackup(ctx, "20240101_000000_um.zip", "sysadmin1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	var berr *Error
	require.True(t, errors.As(err, &berr))
	assert.Equal(t, ReasonBackupNotFound, berr.Reason)

	assert.Equal(t, before, f.digest(t))
	events := f.events(t)
	assert.False(t, hasEvent(events, seclog.EventRestoreStarted))
	last := lastEvent(events)
	assert.Equal(t, seclog.EventRestoreFailed, last.Event)
	assert.Equal(t, ReasonBackupNotFound, last.Details["reason"])
}

func TestRestoreRejectsBadArchives(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)
	before := f.digest(t)
	require.NoError(t, os.MkdirAll(f.dir, 0o750))

	writeZip := func(name, entry string, body []byte) {
		out, err := os.Create(filepath.Join(f.dir, name))
		require.NoError(t, err)
		zw := zip.NewWriter(out)
		w, err := zw.Create(entry)
		require.NoError(t, err)
		_, err = w.Write(body)
		require.NoError(t, err)
		require.NoError(t, zw.Close())
		require.NoError(t, out.Close())
	}
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "garbage_um.zip"), []byte("not a zip"), 0o600))
	writeZip("noentry_um.zip", "other.db", []byte("SQLite format 3\x00"))
	writeZip("notsqlite_um.zip", "app.db", []byte("plain text payload"))
	writeZip("truncated_um.zip", "app.db", append([]byte("SQLite format 3\x00"), make([]byte, 64)...))

	cases := []struct {
		name   string
		reason string
	}{
		{"garbage_um.zip", ReasonCorrupted},
		{"noentry_um.zip", ReasonInvalidFormat},
		{"notsqlite_um.zip", ReasonInvalidFormat},
		{"truncated_um.zip", ReasonInvalidFormat},
		{"../data/app.db", ReasonBackupNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := f.engine.RestoreFromBackup(ctx, tc.name, "sysadmin1")
			var berr *Error
			require.True(t, errors.As(err, &berr), "%v", err)
			assert.Equal(t, tc.reason, berr.Reason)
			assert.Equal(t, tc.reason, lastEvent(f.events(t)).Details["reason"])
			assert.Equal(t, before, f.digest(t))
		})
	}
}

func TestRestoreMergeFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)
	name, err := f.engine.CreateBackup(ctx, "super_admin")
	require.NoError(t, err)
	_, err = f.st.CreateUser(ctx, models.User{Username: "engineer9", PasswordHash: "x", Role: models.RoleEngineer})
	require.NoError(t, err)
	before := f.digest(t)

	orig := mergeSessionState
	mergeSessionState = func(context.Context, string, string, time.Duration) error {
		return errors.New("disk full")
	}
	t.Cleanup(func() { mergeSessionState = orig })

	err = f.engine.RestoreFromBackup(ctx, name, "sysadmin1")
	assert.ErrorIs(t, err, apperr.ErrStorage)
	assert.Equal(t, before, f.digest(t))

	last := lastEvent(f.events(t))
	assert.Equal(t, seclog.EventRestoreFailed, last.Event)
	assert.Equal(t, ReasonSessionMergeFailed, last.Details["reason"])
	assert.True(t, last.Suspicious)

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(f.h.Path()), "*.tmp*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

// flakyResume fails the first Resume after a restore swapped the file in.
type flakyResume struct {
	*db.Handle
	failed bool
}

func (q *flakyResume) Resume(ctx context.Context) error {
	if !q.failed {
		q.failed = true
		return errors.New("reopen refused")
	}
	return q.Handle.Resume(ctx)
}

func TestRestoreResumeFailureReportsSwap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)
	name, err := f.engine.CreateBackup(ctx, "super_admin")
	require.NoError(t, err)
	_, err = f.st.CreateUser(ctx, models.User{Username: "engineer9", PasswordHash: "x", Role: models.RoleEngineer})
	require.NoError(t, err)

	live := &flakyResume{Handle: f.h}
	engine := NewEngine(f.dir, live, f.audit, nil)
	err = engine.RestoreFromBackup(ctx, name, "sysadmin1")
	assert.ErrorIs(t, err, apperr.ErrStorage)
	var berr *Error
	require.True(t, errors.As(err, &berr))
	assert.True(t, berr.Swapped)
	assert.Equal(t, ReasonSwappedResumeFailed, berr.Reason)

	last := lastEvent(f.events(t))
	assert.Equal(t, seclog.EventRestoreFailed, last.Event)
	assert.Equal(t, ReasonSwappedResumeFailed, last.Details["reason"])
	assert.Equal(t, "true", last.Details["live_replaced"])

	require.NoError(t, f.h.Resume(ctx))
	_, err = f.st.GetUserByUsername(ctx, "engineer9")
	assert.ErrorIs(t, err, store.ErrNotFound, "restored data is in place")
}

func TestListBackupsNewestFirst(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	f := newFixture(t, WithClock(func() time.Time { return now }))
	f.seed(t)

	first, err := f.engine.CreateBackup(ctx, "super_admin")
	require.NoError(t, err)
	assert.Equal(t, "20240101_100000_um.zip", first)
	second, err := f.engine.CreateBackup(ctx, "super_admin")
	require.NoError(t, err)
	assert.Equal(t, "20240101_100000-2_um.zip", second)

	require.NoError(t, os.Chtimes(filepath.Join(f.dir, first), now, now))
	later := now.Add(time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(f.dir, second), later, later))

	list, err := f.engine.ListBackups()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second, list[0].Name)
	assert.Equal(t, first, list[1].Name)
	assert.Positive(t, list[0].Size)

	assert.NoError(t, f.engine.Exists(first))
	assert.ErrorIs(t, f.engine.Exists("missing_um.zip"), apperr.ErrNotFound)
}
