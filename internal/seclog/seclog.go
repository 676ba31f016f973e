// Package seclog is the append-only security audit trail. Every record is a
// JSON object sealed with the application key and written as one line.
package seclog

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"urbanmobility/internal/models"
)

const (
	EventLoginSuccess          = "login_success"
	EventLoginFailed           = "login_failed"
	EventSuspiciousActivity    = "suspicious_activity"
	EventPasswordChanged       = "password_changed"
	EventBackupCreated         = "backup_created"
	EventBackupFailed          = "backup_failed"
	EventRestoreStarted        = "restore_started"
	EventRestoreCompleted      = "restore_completed"
	EventRestoreFailed         = "restore_failed"
	EventRestoreCodeGenerated  = "restore_code_generated"
	EventRestoreCodeRejected   = "restore_code_rejected"
	EventSysAdminCreated       = "sys_admin_created"
	EventEngineerCreated       = "engineer_created"
	EventEngineerUpdated       = "engineer_updated"
	EventEngineerDeleted       = "engineer_deleted"
	EventEngineerPasswordReset = "engineer_password_reset"
	EventTravellerAdded        = "traveller_added"
	EventTravellerDeleted      = "traveller_deleted"
	EventScooterAdded          = "scooter_added"
	EventScooterUpdated        = "scooter_updated"
	EventScooterDeleted        = "scooter_deleted"
)

// SystemActor is recorded when no user is attached to an event.
const SystemActor = "system"

type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(token string) (string, error)
}

// Recorder is the write side of the log, as consumed by the services.
type Recorder interface {
	Log(ctx context.Context, event, actor string, details map[string]string, suspicious bool) error
}

type Logger struct {
	mu      sync.Mutex
	path    string
	box     Sealer
	log     *zap.Logger
	now     func() time.Time
	lastSeq int64
	loaded  bool
}

func New(path string, box Sealer, log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{path: path, box: box, log: log.Named("seclog"), now: time.Now}
}

// Log appends one record and fsyncs the file before returning.
func (l *Logger) Log(ctx context.Context, event, actor string, details map[string]string, suspicious bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(actor) == "" {
		actor = SystemActor
	}
	if details == nil {
		details = map[string]string{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.loaded {
		entries, err := l.readLocked()
		if err != nil {
			return err
		}
		for _, e := range entries {
			l.lastSeq = max(l.lastSeq, e.Seq)
		}
		l.loaded = true
	}

	entry := models.SecurityLogEntry{
		Seq:        l.lastSeq + 1,
		Timestamp:  l.now().UTC(),
		Actor:      actor,
		Event:      event,
		Details:    details,
		Suspicious: suspicious,
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	line, err := l.box.Seal(string(raw))
	if err != nil {
		return fmt.Errorf("seal audit record: %w", err)
	}
	if err := appendLine(l.path, line); err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	l.lastSeq = entry.Seq
	return nil
}

func appendLine(path, line string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ReadAll returns every readable record in append order. Lines that fail to
// decrypt or parse are skipped and reported through the operational logger.
func (l *Logger) ReadAll(ctx context.Context) ([]models.SecurityLogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readLocked()
}

func (l *Logger) readLocked() ([]models.SecurityLogEntry, error) {
	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	var out []models.SecurityLogEntry
	skipped := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		plain, err := l.box.Open(line)
		if err != nil {
			skipped++
			continue
		}
		var e models.SecurityLogEntry
		if err := json.Unmarshal([]byte(plain), &e); err != nil {
			skipped++
			continue
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	if skipped > 0 {
		l.log.Warn("skipped unreadable audit records", zap.Int("count", skipped))
	}
	return out, nil
}

// LatestSequence returns the highest sequence number written so far.
func (l *Logger) LatestSequence(ctx context.Context) (int64, error) {
	entries, err := l.ReadAll(ctx)
	if err != nil {
		return 0, err
	}
	var seq int64
	for _, e := range entries {
		seq = max(seq, e.Seq)
	}
	return seq, nil
}

// CountSuspiciousAfter counts suspicious records with a sequence above seq.
func CountSuspiciousAfter(entries []models.SecurityLogEntry, seq int64) int {
	n := 0
	for _, e := range entries {
		if e.Suspicious && e.Seq > seq {
			n++
		}
	}
	return n
}
