package pck

import (
	"bufio"
	"io"
)

// Index maps a logical path to the table offset of its entry.
//
// An Index is a snapshot of the table. Relocation never changes the table
// layout, so it stays valid for any number of Relocate calls; Compact
// invalidates it.
type Index map[string]int64

// Table is a fully decoded entry table.
type Table struct {
	Header  Header
	Entries []*Entry
	Paths   []string // Decoded logical path of Entries[i]
	Offsets []int64  // Table offset of Entries[i]
	End     int64    // Offset of the first byte past the table
}

// Index builds the path to table offset mapping. If several entries share a
// path, the last one wins.
func (t *Table) Index() Index {
	idx := make(Index, len(t.Entries))
	for i, p := range t.Paths {
		idx[p] = t.Offsets[i]
	}
	return idx
}

// Lookup returns the last entry stored under path.
func (t *Table) Lookup(path string) (*Entry, bool) {
	for i := len(t.Paths) - 1; i >= 0; i-- {
		if t.Paths[i] == path {
			return t.Entries[i], true
		}
	}
	return nil, false
}

// ReadTable reads and validates the header at the start of rs, then decodes
// every entry of the table. It returns an error rather than a partial table.
func ReadTable(rs io.ReadSeeker) (*Table, error) {
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, ioError("seek to header", err)
	}
	r := bufio.NewReader(rs)

	var headerBuf [HeaderSize]byte
	if _, err := io.ReadFull(r, headerBuf[:]); err != nil {
		return nil, readError("read header", err)
	}

	t := &Table{}
	if err := t.Header.UnmarshalBinary(headerBuf[:]); err != nil {
		return nil, err
	}

	count := t.Header.FileCount
	t.Entries = make([]*Entry, 0, int(min(count, 1<<16)))
	t.Paths = make([]string, 0, cap(t.Entries))
	t.Offsets = make([]int64, 0, cap(t.Entries))

	// The buffered reader hides the stream position, so track it by hand.
	pos := int64(HeaderSize)
	for i := uint32(0); i < count; i++ {
		e, err := ReadEntry(r)
		if err != nil {
			return nil, err
		}
		path, err := e.Path()
		if err != nil {
			return nil, err
		}
		t.Entries = append(t.Entries, e)
		t.Paths = append(t.Paths, path)
		t.Offsets = append(t.Offsets, pos)
		pos += int64(e.Len())
	}
	t.End = pos

	return t, nil
}

// ReadIndex reads the archive header and builds an Index of its table.
// The stream position after return is unspecified.
func ReadIndex(rs io.ReadSeeker) (*Header, Index, error) {
	t, err := ReadTable(rs)
	if err != nil {
		return nil, nil, err
	}
	return &t.Header, t.Index(), nil
}

// ReadEntryAt decodes the entry that starts at the given table offset.
func ReadEntryAt(rs io.ReadSeeker, tableOffset int64) (*Entry, error) {
	if _, err := rs.Seek(tableOffset, io.SeekStart); err != nil {
		return nil, ioError("seek to entry", err)
	}
	return ReadEntry(bufio.NewReader(rs))
}

// ReadContent reads the content region referenced by e.
func ReadContent(rs io.ReadSeeker, e *Entry) ([]byte, error) {
	end, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, ioError("seek to end", err)
	}
	if e.Offset > uint64(end) || e.Size > uint64(end)-e.Offset {
		return nil, formatErrorf("content range %d+%d exceeds archive length %d", e.Offset, e.Size, end)
	}
	if _, err := rs.Seek(int64(e.Offset), io.SeekStart); err != nil {
		return nil, ioError("seek to content", err)
	}
	data := make([]byte, e.Size)
	if _, err := io.ReadFull(rs, data); err != nil {
		return nil, readError("read content", err)
	}
	return data, nil
}
