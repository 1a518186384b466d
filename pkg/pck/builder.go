package pck

import (
	"bufio"
	"crypto/md5"
	"fmt"
	"io"
	"os"
)

// DefaultPathAlignment is the boundary stored paths are NUL-padded to.
const DefaultPathAlignment = 4

// Builder writes new archives from files on disk.
type Builder struct {
	header    Header
	alignment int
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithEngineVersion sets the producer version recorded in the header.
func WithEngineVersion(major, minor, patch uint32) BuilderOption {
	return func(b *Builder) {
		b.header.EngineMajor = major
		b.header.EngineMinor = minor
		b.header.EnginePatch = patch
	}
}

// WithPathAlignment sets the boundary stored paths are padded to. Values
// below 2 disable padding.
func WithPathAlignment(n int) BuilderOption {
	return func(b *Builder) {
		b.alignment = n
	}
}

// NewBuilder creates a new archive builder.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		header:    *NewHeader(0),
		alignment: DefaultPathAlignment,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build writes an archive holding files to dst. Content follows the table in
// the order given.
func (b *Builder) Build(dst io.Writer, files []ScannedFile) error {
	if len(files) == 0 {
		return formatErrorf("cannot build an archive without files")
	}

	entries := make([]*Entry, len(files))
	tableLen := int64(HeaderSize)
	for i, f := range files {
		sum, err := fileChecksum(f)
		if err != nil {
			return err
		}
		entries[i] = &Entry{
			RawPath: b.padPath(f.Path),
			Size:    uint64(f.Size),
			MD5:     sum,
		}
		tableLen += int64(entries[i].Len())
	}

	header := b.header
	header.FileCount = uint32(len(files))

	w := bufio.NewWriter(dst)
	headerBytes, _ := header.MarshalBinary()
	if _, err := w.Write(headerBytes); err != nil {
		return ioError("write header", err)
	}

	offset := uint64(tableLen)
	for _, e := range entries {
		e.Offset = offset
		record, _ := e.MarshalBinary()
		if _, err := w.Write(record); err != nil {
			return ioError("write entry", err)
		}
		offset += e.Size
	}

	for _, f := range files {
		if err := copyFile(w, f); err != nil {
			return err
		}
	}

	if err := flush(w, dst); err != nil {
		return ioError("flush archive", err)
	}
	return nil
}

func (b *Builder) padPath(path string) []byte {
	raw := []byte(path)
	if b.alignment > 1 {
		if rem := len(raw) % b.alignment; rem != 0 {
			raw = append(raw, make([]byte, b.alignment-rem)...)
		}
	}
	return raw
}

func fileChecksum(f ScannedFile) ([md5.Size]byte, error) {
	var sum [md5.Size]byte

	src, err := os.Open(f.Source)
	if err != nil {
		return sum, fmt.Errorf("open %s: %w", f.Source, err)
	}
	defer src.Close()

	h := md5.New()
	n, err := io.Copy(h, src)
	if err != nil {
		return sum, fmt.Errorf("read %s: %w", f.Source, err)
	}
	if n != f.Size {
		return sum, fmt.Errorf("%s changed size during build: scanned %d, read %d", f.Source, f.Size, n)
	}
	copy(sum[:], h.Sum(nil))
	return sum, nil
}

func copyFile(w io.Writer, f ScannedFile) error {
	src, err := os.Open(f.Source)
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Source, err)
	}
	defer src.Close()

	if _, err := io.CopyN(w, src, f.Size); err != nil {
		return fmt.Errorf("copy %s: %w", f.Source, err)
	}
	return nil
}
