package pck

import (
	"bufio"
	"io"
)

// Compact writes a rebuilt copy of the archive in src to dst, leaving out
// every entry whose logical path is listed in drop.
//
// The copy has a fresh header and table followed by the content of the kept
// entries in table order, so stale bytes left behind by earlier relocations
// are dropped as well. Paths in drop that the archive does not contain are
// ignored; the number of entries actually removed is returned. Removing every
// entry is a format error since an archive must hold at least one file.
func Compact(src io.ReadSeeker, dst io.Writer, drop []string) (int, error) {
	t, err := ReadTable(src)
	if err != nil {
		return 0, err
	}

	dropSet := make(map[string]struct{}, len(drop))
	for _, p := range drop {
		dropSet[p] = struct{}{}
	}

	var kept []*Entry
	tableLen := int64(HeaderSize)
	for i, e := range t.Entries {
		if _, ok := dropSet[t.Paths[i]]; ok {
			continue
		}
		kept = append(kept, e)
		tableLen += int64(e.Len())
	}
	removed := len(t.Entries) - len(kept)
	if len(kept) == 0 {
		return 0, formatErrorf("compact would remove all %d entries", removed)
	}

	header := t.Header
	header.FileCount = uint32(len(kept))

	w := bufio.NewWriter(dst)
	headerBytes, _ := header.MarshalBinary()
	if _, err := w.Write(headerBytes); err != nil {
		return 0, ioError("write header", err)
	}

	offset := uint64(tableLen)
	for _, e := range kept {
		moved := *e
		moved.Offset = offset
		record, _ := moved.MarshalBinary()
		if _, err := w.Write(record); err != nil {
			return 0, ioError("write entry", err)
		}
		offset += e.Size
	}

	for _, e := range kept {
		if _, err := src.Seek(int64(e.Offset), io.SeekStart); err != nil {
			return 0, ioError("seek to content", err)
		}
		if _, err := io.CopyN(w, src, int64(e.Size)); err != nil {
			return 0, readError("copy content", err)
		}
	}

	if err := flush(w, dst); err != nil {
		return 0, ioError("flush compacted archive", err)
	}
	return removed, nil
}
