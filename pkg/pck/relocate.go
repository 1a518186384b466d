package pck

import (
	"bufio"
	"errors"
	"io"
)

// syncer is implemented by streams backed by durable storage, such as *os.File.
type syncer interface {
	Sync() error
}

// Relocate replaces the content of the entry stored under path.
//
// The new content is appended at the end of rws and flushed first; only then
// is the entry's offset, size and checksum rewritten in place. If the second
// step fails the entry still references its old, intact content and the
// appended bytes are unreachable trailing data. The path bytes are never
// touched, so the entry keeps its length and idx stays valid.
//
// Calls against the same stream must not run concurrently.
func Relocate(rws io.ReadWriteSeeker, idx Index, path string, content []byte) error {
	tableOffset, ok := idx[path]
	if !ok {
		return &NotFoundError{Path: path}
	}

	end, err := rws.Seek(0, io.SeekEnd)
	if err != nil {
		return ioError("seek to end for append", err)
	}

	w := bufio.NewWriter(rws)
	if _, err := w.Write(content); err != nil {
		return ioError("append content", err)
	}
	if err := flush(w, rws); err != nil {
		return ioError("flush appended content", err)
	}

	// The entry on disk is the source of truth for the path bytes written
	// back. Any failure to read it is an I/O failure of this call.
	entry, err := ReadEntryAt(rws, tableOffset)
	if err != nil {
		var ioErr *IOError
		if errors.As(err, &ioErr) {
			return err
		}
		return ioError("re-read entry", err)
	}

	entry.Offset = uint64(end)
	entry.Size = uint64(len(content))
	entry.MD5 = Checksum(content)

	record, err := entry.MarshalBinary()
	if err != nil {
		return ioError("encode entry", err)
	}

	if _, err := rws.Seek(tableOffset, io.SeekStart); err != nil {
		return ioError("seek to entry for overwrite", err)
	}
	w.Reset(rws)
	if _, err := w.Write(record); err != nil {
		return ioError("overwrite entry", err)
	}
	if err := flush(w, rws); err != nil {
		return ioError("flush entry", err)
	}

	return nil
}

// flush drains w and, when the destination supports it, commits the written
// bytes to storage.
func flush(w *bufio.Writer, dst io.Writer) error {
	if err := w.Flush(); err != nil {
		return err
	}
	if s, ok := dst.(syncer); ok {
		return s.Sync()
	}
	return nil
}
