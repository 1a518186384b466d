package snapshot

import (
	"fmt"
	"io"

	"github.com/DataDog/zstd"
)

// DefaultCompressionLevel is the default compression level for snapshots.
const DefaultCompressionLevel = zstd.BestSpeed

// Writer compresses table bytes into a snapshot file.
type Writer struct {
	dst     io.WriteSeeker
	start   int64
	zWriter *zstd.Writer
	header  *Header
	level   int
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithCompressionLevel sets the compression level for the writer.
func WithCompressionLevel(level int) WriterOption {
	return func(w *Writer) {
		w.level = level
	}
}

// NewWriter creates a snapshot writer that writes to dst at its current
// position. The header is rewritten with the compressed size on Close.
func NewWriter(dst io.WriteSeeker, archiveLength, tableLength uint64, opts ...WriterOption) (*Writer, error) {
	start, err := dst.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("get position: %w", err)
	}

	w := &Writer{
		dst:    dst,
		start:  start,
		level:  DefaultCompressionLevel,
		header: NewHeader(archiveLength, tableLength),
	}
	for _, opt := range opts {
		opt(w)
	}

	// Placeholder until the compressed size is known.
	headerBytes, _ := w.header.MarshalBinary()
	if _, err := dst.Write(headerBytes); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	w.zWriter = zstd.NewWriterLevel(dst, w.level)
	return w, nil
}

// Write writes table bytes.
func (w *Writer) Write(p []byte) (n int, err error) {
	return w.zWriter.Write(p)
}

// Close finishes the compressed stream and patches the header.
func (w *Writer) Close() error {
	if err := w.zWriter.Close(); err != nil {
		return fmt.Errorf("close compressor: %w", err)
	}

	pos, err := w.dst.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("get position: %w", err)
	}
	w.header.CompressedLength = uint64(pos - w.start - HeaderSize)

	if _, err := w.dst.Seek(w.start, io.SeekStart); err != nil {
		return fmt.Errorf("seek to header: %w", err)
	}
	headerBytes, _ := w.header.MarshalBinary()
	if _, err := w.dst.Write(headerBytes); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	if _, err := w.dst.Seek(pos, io.SeekStart); err != nil {
		return fmt.Errorf("seek to end: %w", err)
	}
	return nil
}
