package backup

import (
	"fmt"

	"urbanmobility/internal/apperr"
)

// Machine-readable failure reasons written to the audit log.
const (
	ReasonBackupNotFound      = "backup_not_found"
	ReasonInvalidFormat       = "invalid_backup_format"
	ReasonCorrupted           = "corrupted_backup"
	ReasonSnapshotFailed      = "snapshot_failed"
	ReasonArchiveFailed       = "archive_failed"
	ReasonAuditUnavailable    = "audit_unavailable"
	ReasonQuiesceFailed       = "quiesce_failed"
	ReasonSessionExportFailed = "session_export_failed"
	ReasonExtractFailed       = "extract_failed"
	ReasonSessionMergeFailed  = "session_merge_failed"
	ReasonSwapFailed          = "swap_failed"

	// The restored file already replaced the live one when these occur.
	ReasonSwappedNotSynced    = "swapped_not_synced"
	ReasonSwappedResumeFailed = "swapped_resume_failed"
)

// Error is returned by every Engine operation. It matches both its apperr
// class and the underlying cause under errors.Is.
type Error struct {
	Op     string
	Reason string
	Kind   error
	Err    error
	// Swapped is set when the live file was replaced before the failure.
	Swapped bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Reason, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func notFound(op string, err error) *Error {
	return &Error{Op: op, Reason: ReasonBackupNotFound, Kind: apperr.ErrNotFound, Err: err}
}

func integrity(op, reason string, err error) *Error {
	return &Error{Op: op, Reason: reason, Kind: apperr.ErrIntegrity, Err: err}
}

func storage(op, reason string, err error) *Error {
	return &Error{Op: op, Reason: reason, Kind: apperr.ErrStorage, Err: err}
}

func swapped(op, reason string, err error) *Error {
	return &Error{Op: op, Reason: reason, Kind: apperr.ErrStorage, Err: err, Swapped: true}
}
