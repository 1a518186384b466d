package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/goopsie/pckFileTools/pkg/pck"
)

// ErrArchiveRewritten is returned by Restore when the archive no longer has
// the table layout it had at snapshot time. Relocation never changes the
// layout; compaction and rebuilding do.
var ErrArchiveRewritten = errors.New("snapshot: archive was rewritten since the snapshot was taken")

// Snapshot is the header and entry table of an archive at a point in time.
type Snapshot struct {
	ArchiveLength int64
	Table         []byte // PCK header followed by the entry table
}

// Target is an archive that can be restored in place.
type Target interface {
	io.ReadWriteSeeker
	Truncate(size int64) error
}

// Capture records the table of the archive in rs.
func Capture(rs io.ReadSeeker) (*Snapshot, error) {
	t, err := pck.ReadTable(rs)
	if err != nil {
		return nil, fmt.Errorf("read table: %w", err)
	}

	end, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("seek to end: %w", err)
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek to start: %w", err)
	}

	table := make([]byte, t.End)
	if _, err := io.ReadFull(rs, table); err != nil {
		return nil, fmt.Errorf("read table bytes: %w", err)
	}

	return &Snapshot{ArchiveLength: end, Table: table}, nil
}

// Encode writes s to dst.
func Encode(dst io.WriteSeeker, s *Snapshot, opts ...WriterOption) error {
	w, err := NewWriter(dst, uint64(s.ArchiveLength), uint64(len(s.Table)), opts...)
	if err != nil {
		return err
	}
	if _, err := w.Write(s.Table); err != nil {
		return fmt.Errorf("write table: %w", err)
	}
	return w.Close()
}

// Decode reads a snapshot written by Encode.
func Decode(r io.Reader) (*Snapshot, error) {
	reader, err := NewReader(r)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	h := reader.Header()
	table := make([]byte, h.TableLength)
	if _, err := io.ReadFull(reader, table); err != nil {
		return nil, fmt.Errorf("read table: %w", err)
	}

	// The recorded table must still parse as one.
	var ph pck.Header
	if err := ph.UnmarshalBinary(table); err != nil {
		return nil, fmt.Errorf("parse recorded table: %w", err)
	}

	return &Snapshot{ArchiveLength: int64(h.ArchiveLength), Table: table}, nil
}

// Restore writes the recorded table back to the start of dst and truncates
// dst to the recorded length, discarding everything appended since. dst is
// left untouched unless its live table has the recorded layout.
func Restore(dst Target, s *Snapshot) error {
	recorded, err := pck.ReadTable(bytes.NewReader(s.Table))
	if err != nil {
		return fmt.Errorf("parse recorded table: %w", err)
	}
	if recorded.End != int64(len(s.Table)) {
		return fmt.Errorf("parse recorded table: %d trailing bytes", int64(len(s.Table))-recorded.End)
	}

	live, err := pck.ReadTable(dst)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrArchiveRewritten, err)
	}
	if err := sameLayout(live, recorded); err != nil {
		return fmt.Errorf("%w: %v", ErrArchiveRewritten, err)
	}

	end, err := dst.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("seek to end: %w", err)
	}
	if end < s.ArchiveLength {
		return fmt.Errorf("%w: length %d, recorded %d", ErrArchiveRewritten, end, s.ArchiveLength)
	}

	if _, err := dst.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek to start: %w", err)
	}
	if _, err := dst.Write(s.Table); err != nil {
		return fmt.Errorf("write table: %w", err)
	}
	if err := dst.Truncate(s.ArchiveLength); err != nil {
		return fmt.Errorf("truncate archive: %w", err)
	}
	if f, ok := dst.(interface{ Sync() error }); ok {
		if err := f.Sync(); err != nil {
			return fmt.Errorf("sync archive: %w", err)
		}
	}
	return nil
}

// sameLayout reports why live cannot take the recorded table in place, or
// nil if every entry sits at the same table offset with the same path bytes.
func sameLayout(live, recorded *pck.Table) error {
	if live.Header.FileCount != recorded.Header.FileCount {
		return fmt.Errorf("%d entries, recorded %d", live.Header.FileCount, recorded.Header.FileCount)
	}
	if live.End != recorded.End {
		return fmt.Errorf("table ends at %d, recorded %d", live.End, recorded.End)
	}
	for i, e := range recorded.Entries {
		if live.Offsets[i] != recorded.Offsets[i] || !bytes.Equal(live.Entries[i].RawPath, e.RawPath) {
			return fmt.Errorf("entry %d is %q, recorded %q", i, live.Paths[i], recorded.Paths[i])
		}
	}
	return nil
}

// WriteFile writes s to a new file at path.
func WriteFile(path string, s *Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	if err := Encode(f, s); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return f.Sync()
}

// ReadFile reads a snapshot from a file.
func ReadFile(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	return Decode(f)
}
