// Package backup builds selective snapshots of the store and restores them
// without rolling back session metadata.
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"urbanmobility/internal/models"
	"urbanmobility/internal/seclog"
)

const (
	archiveSuffix = "_um.zip"
	nameLayout    = "20060102_150405"
)

// Quiescer is the live store as seen by the engine: a file path plus the
// ability to release and reacquire every handle to it.
type Quiescer interface {
	Path() string
	BusyTimeout() time.Duration
	Quiesce() error
	Resume(ctx context.Context) error
}

// mergeSessionState is a seam for failure-path tests.
var mergeSessionState = MergeSessionState

type Engine struct {
	mu    sync.Mutex
	dir   string
	live  Quiescer
	audit seclog.Recorder
	log   *zap.Logger
	now   func() time.Time
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(dir string, live Quiescer, audit seclog.Recorder, log *zap.Logger, opts ...Option) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{dir: dir, live: live, audit: audit, log: log.Named("backup"), now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) payloadEntry() string {
	return filepath.Base(e.live.Path())
}

// CreateBackup snapshots the business tables into a new archive and returns
// its name.
func (e *Engine) CreateBackup(ctx context.Context, actor string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	name, err := e.createBackup(ctx)
	if err != nil {
		e.record(ctx, seclog.EventBackupFailed, actor, map[string]string{"reason": err.Reason, "error": err.Err.Error()}, true)
		e.log.Error("backup failed", zap.String("reason", err.Reason), zap.Error(err.Err))
		return "", err
	}
	if aerr := e.audit.Log(ctx, seclog.EventBackupCreated, actor, map[string]string{"backup": name}, false); aerr != nil {
		e.log.Error("audit backup_created", zap.Error(aerr))
	}
	e.log.Info("backup created", zap.String("backup", name))
	return name, nil
}

func (e *Engine) createBackup(ctx context.Context) (string, *Error) {
	const op = "create backup"
	if err := os.MkdirAll(e.dir, 0o750); err != nil {
		return "", storage(op, ReasonArchiveFailed, err)
	}
	name, err := e.nextName()
	if err != nil {
		return "", storage(op, ReasonArchiveFailed, err)
	}
	id := uuid.NewString()
	snap := filepath.Join(e.dir, ".snapshot-"+id+".db")
	tmp := filepath.Join(e.dir, "."+name+"."+id+".tmp")
	defer removeQuietly(snap, snap+"-journal", tmp)

	if err := ExportBusinessSnapshot(ctx, e.live.Path(), snap, e.live.BusyTimeout()); err != nil {
		return "", storage(op, ReasonSnapshotFailed, err)
	}
	if err := writeArchive(tmp, snap, e.payloadEntry(), e.now()); err != nil {
		return "", storage(op, ReasonArchiveFailed, err)
	}
	if err := os.Rename(tmp, filepath.Join(e.dir, name)); err != nil {
		return "", storage(op, ReasonArchiveFailed, err)
	}
	if err := fsyncDir(e.dir); err != nil {
		return "", storage(op, ReasonArchiveFailed, err)
	}
	return name, nil
}

// nextName returns <YYYYMMDD_HHMMSS>_um.zip, disambiguating archives taken
// within the same second.
func (e *Engine) nextName() (string, error) {
	stamp := e.now().Format(nameLayout)
	for i := 1; i < 100; i++ {
		name := stamp + archiveSuffix
		if i > 1 {
			name = fmt.Sprintf("%s-%d%s", stamp, i, archiveSuffix)
		}
		if _, err := os.Stat(filepath.Join(e.dir, name)); errors.Is(err, os.ErrNotExist) {
			return name, nil
		} else if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("too many backups at %s", stamp)
}

// ListBackups returns the archives in the backup directory, newest first.
func (e *Engine) ListBackups() ([]models.BackupInfo, error) {
	entries, err := os.ReadDir(e.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, storage("list backups", ReasonArchiveFailed, err)
	}
	var out []models.BackupInfo
	for _, de := range entries {
		name := de.Name()
		if de.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, archiveSuffix) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, models.BackupInfo{Name: name, CreatedAt: info.ModTime().UTC(), Size: info.Size()})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Name > out[j].Name
	})
	return out, nil
}

// Exists reports a *Error matching apperr.ErrNotFound when name does not
// resolve to an archive in the backup directory.
func (e *Engine) Exists(name string) error {
	path, err := e.archivePath("lookup", name)
	if err != nil {
		return err
	}
	info, serr := os.Stat(path)
	if serr != nil || !info.Mode().IsRegular() {
		return notFound("lookup", fmt.Errorf("backup %q does not exist", name))
	}
	return nil
}

func (e *Engine) archivePath(op, name string) (string, *Error) {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", notFound(op, fmt.Errorf("invalid backup name %q", name))
	}
	return filepath.Join(e.dir, name), nil
}

// RestoreFromBackup replaces the live store with the snapshot in name while
// keeping the live session tables. A failure before the final rename leaves
// the live store as it was. A failure after it returns an *Error with Swapped
// set and a swapped_* reason, since the restored data is already in place.
// Either way the reason is audited before the error is returned.
func (e *Engine) RestoreFromBackup(ctx context.Context, name, actor string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	fail := func(err *Error) error {
		e.record(ctx, seclog.EventRestoreFailed, actor, map[string]string{
			"backup": name, "reason": err.Reason, "error": err.Err.Error(),
			"live_replaced": strconv.FormatBool(err.Swapped),
		}, true)
		e.log.Error("restore failed", zap.String("backup", name), zap.String("reason", err.Reason), zap.Error(err.Err))
		return err
	}

	path, perr := e.archivePath("restore", name)
	if perr != nil {
		return fail(perr)
	}
	if _, err := os.Stat(path); err != nil {
		return fail(notFound("restore", err))
	}
	if verr := validateArchive(path, e.payloadEntry()); verr != nil {
		verr.Op = "restore"
		return fail(verr)
	}
	if err := e.audit.Log(ctx, seclog.EventRestoreStarted, actor, map[string]string{"backup": name}, false); err != nil {
		return fail(storage("restore", ReasonAuditUnavailable, err))
	}

	if err := e.live.Quiesce(); err != nil {
		rerr := storage("restore", ReasonQuiesceFailed, err)
		if resErr := e.live.Resume(ctx); resErr != nil {
			e.log.Error("resume after failed quiesce", zap.Error(resErr))
		}
		return fail(rerr)
	}

	if err := e.swapIn(ctx, path); err != nil {
		if resErr := e.live.Resume(ctx); resErr != nil {
			e.log.Error("resume after failed restore", zap.Error(resErr))
		}
		return fail(err)
	}
	if err := e.live.Resume(ctx); err != nil {
		return fail(swapped("restore", ReasonSwappedResumeFailed, err))
	}

	if err := e.audit.Log(ctx, seclog.EventRestoreCompleted, actor, map[string]string{"backup": name}, false); err != nil {
		e.log.Error("audit restore_completed", zap.Error(err))
	}
	e.log.Info("restore completed", zap.String("backup", name))
	return nil
}

// swapIn runs with the live store quiesced. Until the final rename nothing
// touches the live file, so an error or crash before it leaves the store as
// it was.
func (e *Engine) swapIn(ctx context.Context, archive string) *Error {
	const op = "restore"
	live := e.live.Path()
	busy := e.live.BusyTimeout()
	id := uuid.NewString()
	tmp := live + ".restore-" + id + ".tmp"
	state := live + ".session-" + id + ".tmp"
	defer removeQuietly(tmp, tmp+"-journal", state, state+"-journal")

	if err := ExportSessionState(ctx, live, state, busy); err != nil {
		return storage(op, ReasonSessionExportFailed, err)
	}
	if err := extractPayload(archive, e.payloadEntry(), tmp); err != nil {
		return storage(op, ReasonExtractFailed, err)
	}
	if err := checkPayload(ctx, tmp, busy); err != nil {
		return integrity(op, ReasonInvalidFormat, err)
	}
	if err := mergeSessionState(ctx, tmp, state, busy); err != nil {
		return storage(op, ReasonSessionMergeFailed, err)
	}
	if err := fsyncFile(tmp); err != nil {
		return storage(op, ReasonSwapFailed, err)
	}
	// A leftover journal next to the live file would be replayed into the
	// restored one.
	for _, suffix := range []string{"-journal", "-wal", "-shm"} {
		if err := os.Remove(live + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return storage(op, ReasonSwapFailed, err)
		}
	}
	if err := os.Rename(tmp, live); err != nil {
		return storage(op, ReasonSwapFailed, err)
	}
	if err := fsyncDir(filepath.Dir(live)); err != nil {
		return swapped(op, ReasonSwappedNotSynced, err)
	}
	return nil
}

func (e *Engine) record(ctx context.Context, event, actor string, details map[string]string, suspicious bool) {
	if err := e.audit.Log(ctx, event, actor, details, suspicious); err != nil {
		e.log.Error("audit "+event, zap.Error(err))
	}
}

func removeQuietly(paths ...string) {
	for _, p := range paths {
		_ = os.Remove(p)
	}
}
