package backup

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/zip"
)

var sqliteHeader = []byte("SQLite format 3\x00")

// writeArchive zips the file at payload under entry into dst and fsyncs it.
func writeArchive(dst, payload, entry string, modified time.Time) error {
	in, err := os.Open(payload)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	zw := zip.NewWriter(out)
	w, err := zw.CreateHeader(&zip.FileHeader{Name: entry, Method: zip.Deflate, Modified: modified})
	if err == nil {
		_, err = io.Copy(w, in)
	}
	if err == nil {
		err = zw.Close()
	}
	if err == nil {
		err = out.Sync()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return err
}

// validateArchive checks that path is a readable zip holding entry, that the
// entry's checksum verifies, and that it starts with the SQLite header.
func validateArchive(path, entry string) *Error {
	const op = "validate"
	zr, err := zip.OpenReader(path)
	if errors.Is(err, os.ErrNotExist) {
		return notFound(op, err)
	}
	if err != nil {
		return integrity(op, ReasonCorrupted, err)
	}
	defer zr.Close()

	f := findEntry(&zr.Reader, entry)
	if f == nil {
		return integrity(op, ReasonInvalidFormat, fmt.Errorf("archive has no %s entry", entry))
	}
	rc, err := f.Open()
	if err != nil {
		return integrity(op, ReasonCorrupted, err)
	}
	defer rc.Close()
	head := make([]byte, len(sqliteHeader))
	if _, err := io.ReadFull(rc, head); err != nil || !bytes.Equal(head, sqliteHeader) {
		return integrity(op, ReasonInvalidFormat, fmt.Errorf("%s is not a SQLite database", entry))
	}
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return integrity(op, ReasonCorrupted, err)
	}
	return nil
}

func findEntry(zr *zip.Reader, entry string) *zip.File {
	for _, f := range zr.File {
		if f.Name == entry && !f.FileInfo().IsDir() {
			return f
		}
	}
	return nil
}

// extractPayload writes entry of the archive at path to dst and fsyncs it.
func extractPayload(path, entry, dst string) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return err
	}
	defer zr.Close()
	f := findEntry(&zr.Reader, entry)
	if f == nil {
		return fmt.Errorf("archive has no %s entry", entry)
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, rc)
	if err == nil {
		err = out.Sync()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return err
}

func fsyncFile(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func fsyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
