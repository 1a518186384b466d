// Package snapshot records and restores the header and entry table of a PCK
// archive.
//
// Relocation only appends content and rewrites table entries, so putting the
// recorded table back and truncating the archive to its recorded length
// undoes every relocation made after the snapshot was taken. The table bytes
// are stored zstd-compressed behind a small fixed header.
package snapshot

import (
	"encoding/binary"
	"fmt"

	"github.com/goopsie/pckFileTools/pkg/pck"
)

// Magic bytes identifying a snapshot file.
var Magic = [4]byte{'P', 'C', 'K', 'S'}

// HeaderSize is the fixed binary size of a snapshot header.
const HeaderSize = 32 // 4 + 4 + 8 + 8 + 8 bytes

// headerLength is the number of header bytes following the length field.
const headerLength = HeaderSize - 8

// Header describes the snapshot payload.
type Header struct {
	Magic            [4]byte
	HeaderLength     uint32
	ArchiveLength    uint64 // Archive size when the snapshot was taken
	TableLength      uint64 // Uncompressed size: PCK header plus entry table
	CompressedLength uint64 // Compressed payload size
}

// Size returns the binary size of the header.
func (h *Header) Size() int {
	return HeaderSize
}

// Validate checks the header for validity.
func (h *Header) Validate() error {
	if h.Magic != Magic {
		return fmt.Errorf("invalid magic: expected %x, got %x", Magic, h.Magic)
	}
	if h.HeaderLength != headerLength {
		return fmt.Errorf("invalid header length: expected %d, got %d", headerLength, h.HeaderLength)
	}
	if h.TableLength < pck.HeaderSize {
		return fmt.Errorf("table length %d is shorter than a pck header", h.TableLength)
	}
	if h.ArchiveLength < h.TableLength {
		return fmt.Errorf("archive length %d is shorter than table length %d", h.ArchiveLength, h.TableLength)
	}
	if h.CompressedLength == 0 {
		return fmt.Errorf("compressed size is zero")
	}
	return nil
}

// MarshalBinary encodes the header to binary format.
func (h *Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderSize)
	h.EncodeTo(buf)
	return buf, nil
}

// EncodeTo writes the header to the given buffer.
// The buffer must be at least HeaderSize bytes.
func (h *Header) EncodeTo(buf []byte) {
	copy(buf[0:4], h.Magic[:])
	binary.LittleEndian.PutUint32(buf[4:8], h.HeaderLength)
	binary.LittleEndian.PutUint64(buf[8:16], h.ArchiveLength)
	binary.LittleEndian.PutUint64(buf[16:24], h.TableLength)
	binary.LittleEndian.PutUint64(buf[24:32], h.CompressedLength)
}

// UnmarshalBinary decodes the header from binary format.
func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("header data too short: need %d, got %d", HeaderSize, len(data))
	}
	h.DecodeFrom(data)
	return h.Validate()
}

// DecodeFrom reads the header from the given buffer.
// Does not validate - use UnmarshalBinary for validation.
func (h *Header) DecodeFrom(data []byte) {
	copy(h.Magic[:], data[0:4])
	h.HeaderLength = binary.LittleEndian.Uint32(data[4:8])
	h.ArchiveLength = binary.LittleEndian.Uint64(data[8:16])
	h.TableLength = binary.LittleEndian.Uint64(data[16:24])
	h.CompressedLength = binary.LittleEndian.Uint64(data[24:32])
}

// NewHeader creates a snapshot header for the given archive and table sizes.
func NewHeader(archiveLength, tableLength uint64) *Header {
	return &Header{
		Magic:         Magic,
		HeaderLength:  headerLength,
		ArchiveLength: archiveLength,
		TableLength:   tableLength,
	}
}
