// Package pcktest builds PCK archives in memory for tests.
//
// The encoder here is written independently of package pck so that tests
// compare the library against a second rendition of the format.
package pcktest

import (
	"crypto/md5"
	"encoding/binary"
	"errors"
	"io"
)

// File describes one archived file.
type File struct {
	Path    string
	Content []byte
	Pad     int // Extra NUL bytes appended to the stored path
}

// Build encodes a version 1 archive holding files. Content is laid out in
// order directly after the table.
func Build(files ...File) []byte {
	return BuildWith(1, [16]uint32{}, uint32(len(files)), files...)
}

// BuildWith encodes an archive with an arbitrary version, reserved block and
// declared file count.
func BuildWith(version uint32, reserved [16]uint32, count uint32, files ...File) []byte {
	var out []byte
	out = append(out, 'G', 'D', 'P', 'C')
	out = binary.LittleEndian.AppendUint32(out, version)
	out = binary.LittleEndian.AppendUint32(out, 4)
	out = binary.LittleEndian.AppendUint32(out, 2)
	out = binary.LittleEndian.AppendUint32(out, 1)
	for _, w := range reserved {
		out = binary.LittleEndian.AppendUint32(out, w)
	}
	out = binary.LittleEndian.AppendUint32(out, count)

	tableEnd := len(out)
	for _, f := range files {
		tableEnd += 4 + len(f.Path) + f.Pad + 8 + 8 + md5.Size
	}

	offset := uint64(tableEnd)
	for _, f := range files {
		out = binary.LittleEndian.AppendUint32(out, uint32(len(f.Path)+f.Pad))
		out = append(out, f.Path...)
		out = append(out, make([]byte, f.Pad)...)
		out = binary.LittleEndian.AppendUint64(out, offset)
		out = binary.LittleEndian.AppendUint64(out, uint64(len(f.Content)))
		sum := md5.Sum(f.Content)
		out = append(out, sum[:]...)
		offset += uint64(len(f.Content))
	}
	for _, f := range files {
		out = append(out, f.Content...)
	}
	return out
}

// Buffer is an in-memory io.ReadWriteSeeker with Truncate and Sync, standing
// in for an *os.File.
type Buffer struct {
	data  []byte
	pos   int64
	Syncs int
}

// NewBuffer returns a Buffer holding a copy of data.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{data: append([]byte(nil), data...)}
}

// Bytes returns the current contents.
func (b *Buffer) Bytes() []byte {
	return b.data
}

func (b *Buffer) Read(p []byte) (int, error) {
	if b.pos >= int64(len(b.data)) {
		return 0, io.EOF
	}
	n := copy(p, b.data[b.pos:])
	b.pos += int64(n)
	return n, nil
}

func (b *Buffer) Write(p []byte) (int, error) {
	for int64(len(b.data)) < b.pos {
		b.data = append(b.data, 0)
	}
	n := copy(b.data[b.pos:], p)
	b.data = append(b.data, p[n:]...)
	b.pos += int64(len(p))
	return len(p), nil
}

func (b *Buffer) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = b.pos + offset
	case io.SeekEnd:
		pos = int64(len(b.data)) + offset
	}
	if pos < 0 {
		return 0, errors.New("pcktest: negative position")
	}
	b.pos = pos
	return pos, nil
}

// Truncate changes the size of the buffer.
func (b *Buffer) Truncate(size int64) error {
	if size < 0 {
		return errors.New("pcktest: negative size")
	}
	if size <= int64(len(b.data)) {
		b.data = b.data[:size]
		return nil
	}
	b.data = append(b.data, make([]byte, size-int64(len(b.data)))...)
	return nil
}

// Sync counts calls so tests can check flushing discipline.
func (b *Buffer) Sync() error {
	b.Syncs++
	return nil
}

// ErrInjected is returned by a FailingBuffer once its budget is spent.
var ErrInjected = errors.New("pcktest: injected write failure")

// FailingBuffer is a Buffer whose writes start failing after WriteBudget
// successful Write calls.
type FailingBuffer struct {
	*Buffer
	WriteBudget int
}

func (f *FailingBuffer) Write(p []byte) (int, error) {
	if f.WriteBudget <= 0 {
		return 0, ErrInjected
	}
	f.WriteBudget--
	return f.Buffer.Write(p)
}
