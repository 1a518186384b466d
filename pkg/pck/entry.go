package pck

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"errors"
	"io"
	"unicode/utf8"
)

// MaxPathLen bounds the declared path length of a single entry. The format
// itself allows any u32 length; this is a limit of this package that keeps
// corrupt tables from forcing huge allocations.
const MaxPathLen = 1 << 16

// entryFixedSize is the size of an entry without its path bytes.
const entryFixedSize = 4 + 8 + 8 + md5.Size

// Entry is one record of the file table.
type Entry struct {
	RawPath []byte // Path bytes exactly as stored, NUL padding included
	Offset  uint64 // Absolute offset of the content in the archive
	Size    uint64 // Content length in bytes
	MD5     [md5.Size]byte
}

// Len returns the on-disk size of the entry.
func (e *Entry) Len() int {
	return entryFixedSize + len(e.RawPath)
}

// Path decodes the logical path, dropping trailing NUL padding.
func (e *Entry) Path() (string, error) {
	if !utf8.Valid(e.RawPath) {
		return "", formatErrorf("entry path %q is not valid UTF-8", e.RawPath)
	}
	return string(bytes.TrimRight(e.RawPath, "\x00")), nil
}

// MarshalBinary encodes the entry. The path bytes are written unchanged, so
// the result always has the same length as the record it was read from.
func (e *Entry) MarshalBinary() ([]byte, error) {
	buf := make([]byte, e.Len())
	n := len(e.RawPath)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(n))
	copy(buf[4:4+n], e.RawPath)
	binary.LittleEndian.PutUint64(buf[4+n:12+n], e.Offset)
	binary.LittleEndian.PutUint64(buf[12+n:20+n], e.Size)
	copy(buf[20+n:], e.MD5[:])
	return buf, nil
}

// ReadEntry decodes one entry from r.
func ReadEntry(r io.Reader) (*Entry, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, readError("read entry path length", err)
	}
	pathLen := binary.LittleEndian.Uint32(lenBuf[:])
	if pathLen > MaxPathLen {
		return nil, formatErrorf("entry path length %d exceeds the supported limit of %d bytes", pathLen, MaxPathLen)
	}

	buf := make([]byte, int(pathLen)+entryFixedSize-4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, readError("read entry", err)
	}

	n := int(pathLen)
	e := &Entry{
		RawPath: buf[:n:n],
		Offset:  binary.LittleEndian.Uint64(buf[n : n+8]),
		Size:    binary.LittleEndian.Uint64(buf[n+8 : n+16]),
	}
	copy(e.MD5[:], buf[n+16:])
	return e, nil
}

// Checksum returns the content digest stored in entries.
func Checksum(content []byte) [md5.Size]byte {
	return md5.Sum(content)
}

// readError classifies a failed read: running out of bytes means the
// archive is truncated, anything else is a storage failure.
func readError(op string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return formatErrorf("%s: archive truncated", op)
	}
	return ioError(op, err)
}
