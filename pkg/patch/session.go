// Package patch applies replacement plans to PCK archives on disk.
//
// A Session holds one archive open for reading and writing together with the
// index built when it was opened. Replacements are relocations against that
// index; deletions rebuild the archive into a temporary file, swap it in and
// re-index. A Session is not safe for concurrent use, but sessions on
// different archives are independent.
package patch

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/goopsie/pckFileTools/pkg/config"
	"github.com/goopsie/pckFileTools/pkg/pck"
	"github.com/goopsie/pckFileTools/pkg/snapshot"
)

// Session is an open archive and its index.
type Session struct {
	path   string
	file   *os.File
	table  *pck.Table
	index  pck.Index
	logger *slog.Logger

	continueOnError bool
	snapshotPath    string
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger used for progress and warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithContinueOnError makes Apply keep going after a failed replacement and
// report every failure at the end instead of stopping at the first one.
func WithContinueOnError(cont bool) Option {
	return func(s *Session) {
		s.continueOnError = cont
	}
}

// WithSnapshot makes Apply record a table snapshot at path before the first
// replacement.
func WithSnapshot(path string) Option {
	return func(s *Session) {
		s.snapshotPath = path
	}
}

// Open opens the archive at path for reading and writing and indexes it.
func Open(path string, opts ...Option) (*Session, error) {
	s := &Session{path: path}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s.logger = s.logger.With("archive", path)

	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) open() error {
	f, err := os.OpenFile(s.path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	s.file = f
	if err := s.reindex(); err != nil {
		f.Close()
		s.file = nil
		return err
	}
	return nil
}

func (s *Session) reindex() error {
	t, err := pck.ReadTable(s.file)
	if err != nil {
		return fmt.Errorf("index archive: %w", err)
	}
	s.table = t
	s.index = t.Index()
	s.logger.Debug("indexed archive",
		"entries", len(t.Entries),
		"paths", len(s.index),
		"engine", t.Header.EngineVersion(),
	)
	return nil
}

// Close closes the archive.
func (s *Session) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// Path returns the archive path.
func (s *Session) Path() string {
	return s.path
}

// Header returns the archive header as read when the session was indexed.
func (s *Session) Header() pck.Header {
	return s.table.Header
}

// Index returns the current index.
func (s *Session) Index() pck.Index {
	return s.index
}

// Table returns the table as it was decoded when the session was indexed.
// Entries replaced since then are not reflected; use ReadFile for content.
func (s *Session) Table() *pck.Table {
	return s.table
}

// ReadFile returns the current content stored under a logical path.
func (s *Session) ReadFile(path string) ([]byte, error) {
	e, err := s.entry(path)
	if err != nil {
		return nil, err
	}
	return pck.ReadContent(s.file, e)
}

func (s *Session) entry(path string) (*pck.Entry, error) {
	off, ok := s.index[path]
	if !ok {
		return nil, &pck.NotFoundError{Path: path}
	}
	return pck.ReadEntryAt(s.file, off)
}

// Replace relocates the content of path to content.
func (s *Session) Replace(path string, content []byte) error {
	if err := pck.Relocate(s.file, s.index, path, content); err != nil {
		return err
	}
	s.logger.Info("replaced entry", "path", path, "size", len(content))
	return nil
}

// unchanged reports whether path already holds exactly content.
func (s *Session) unchanged(path string, content []byte) (bool, error) {
	e, err := s.entry(path)
	if err != nil {
		return false, err
	}
	return e.Size == uint64(len(content)) && e.MD5 == pck.Checksum(content), nil
}

// Delete removes the entries stored under paths by rebuilding the archive
// next to the original and renaming it into place. Paths the archive does
// not contain are skipped. The index is rebuilt afterwards, so indexes
// obtained earlier must not be used again.
func (s *Session) Delete(paths []string) (int, error) {
	for _, p := range paths {
		if _, ok := s.index[p]; !ok {
			s.logger.Warn("entry to delete not found", "path", p)
		}
	}

	info, err := s.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat archive: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("create temp archive: %w", err)
	}
	discard := func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}

	removed, err := pck.Compact(s.file, tmp, paths)
	if err != nil {
		discard()
		return 0, fmt.Errorf("compact archive: %w", err)
	}
	if removed == 0 {
		discard()
		return 0, nil
	}
	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		discard()
		return 0, fmt.Errorf("chmod temp archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("close temp archive: %w", err)
	}

	closeErr := s.file.Close()
	s.file = nil
	if closeErr != nil {
		os.Remove(tmp.Name())
		return 0, errors.Join(fmt.Errorf("close archive: %w", closeErr), s.open())
	}

	renameErr := os.Rename(tmp.Name(), s.path)
	if renameErr != nil {
		os.Remove(tmp.Name())
	}
	// Reopen whichever file now sits at the path.
	if err := s.open(); err != nil {
		return 0, errors.Join(renameErr, err)
	}
	if renameErr != nil {
		return 0, fmt.Errorf("replace archive: %w", renameErr)
	}

	s.logger.Info("deleted entries", "removed", removed, "remaining", len(s.table.Entries))
	return removed, nil
}

// Snapshot records the current table to a snapshot file at path.
func (s *Session) Snapshot(path string) error {
	snap, err := snapshot.Capture(s.file)
	if err != nil {
		return fmt.Errorf("capture snapshot: %w", err)
	}
	if err := snapshot.WriteFile(path, snap); err != nil {
		return err
	}
	s.logger.Info("wrote snapshot", "snapshot", path, "table_bytes", len(snap.Table))
	return nil
}

// Report summarizes an Apply run.
type Report struct {
	Deleted   int
	Replaced  int
	Unchanged int      // Replacements skipped because the content already matched
	Failed    []string // Paths whose replacement failed
}

// Apply deletes the plan's deletions, then replaces each of its
// replacements in order. Replacements whose content is already in place are
// skipped so that applying the same plan twice does not grow the archive.
//
// Each replacement is flushed on its own. By default Apply stops at the first
// failure; with WithContinueOnError it attempts every replacement and
// returns the joined errors.
func (s *Session) Apply(plan *config.Plan) (*Report, error) {
	report := &Report{}

	if len(plan.Deletions) > 0 {
		n, err := s.Delete(plan.Deletions)
		if err != nil {
			return report, fmt.Errorf("delete entries: %w", err)
		}
		report.Deleted = n
	}

	if s.snapshotPath != "" {
		if err := s.Snapshot(s.snapshotPath); err != nil {
			return report, err
		}
	}

	var errs []error
	for _, r := range plan.Replacements {
		same, err := s.unchanged(r.Path, r.Content)
		if err == nil && same {
			s.logger.Debug("entry unchanged", "path", r.Path)
			report.Unchanged++
			continue
		}
		if err == nil {
			err = s.Replace(r.Path, r.Content)
		}
		if err != nil {
			err = fmt.Errorf("replace %s: %w", r.Path, err)
			report.Failed = append(report.Failed, r.Path)
			if !s.continueOnError {
				return report, err
			}
			s.logger.Warn("replacement failed", "path", r.Path, "error", err)
			errs = append(errs, err)
			continue
		}
		report.Replaced++
	}

	return report, errors.Join(errs...)
}

// Restore rolls the archive at archivePath back to the snapshot stored at
// snapshotPath and checks that the result indexes cleanly.
func Restore(archivePath, snapshotPath string) error {
	snap, err := snapshot.ReadFile(snapshotPath)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(archivePath, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	if err := snapshot.Restore(f, snap); err != nil {
		return err
	}
	if _, _, err := pck.ReadIndex(f); err != nil {
		return fmt.Errorf("index restored archive: %w", err)
	}
	return nil
}
