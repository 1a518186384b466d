// Package pck reads and patches Godot PCK archives (format version 1).
//
// An archive is a fixed-size header, a table of variable-size file entries
// laid out back to back, and a content region the entries point into.
// Content is replaced by appending the new bytes to the end of the archive
// and rewriting only the affected entry's offset, size and checksum, so the
// table layout never moves and an Index stays valid across a whole batch.
package pck

import (
	"encoding/binary"
	"fmt"
)

// Magic bytes identifying a PCK archive.
var Magic = [4]byte{'G', 'D', 'P', 'C'}

// Version is the only supported format version.
const Version = 1

// ReservedWords is the number of reserved 32-bit words in the header.
const ReservedWords = 16

// HeaderSize is the fixed binary size of an archive header.
const HeaderSize = 4 + 4 + 3*4 + ReservedWords*4 + 4 // 88 bytes

// Header represents the header of a PCK archive.
type Header struct {
	Magic       [4]byte
	Version     uint32
	EngineMajor uint32 // Producer version, carried as-is
	EngineMinor uint32
	EnginePatch uint32
	Reserved    [ReservedWords]uint32
	FileCount   uint32
}

// Size returns the binary size of the header.
func (h *Header) Size() int {
	return HeaderSize
}

// Validate checks the header for validity.
func (h *Header) Validate() error {
	if h.Magic != Magic {
		return formatErrorf("invalid magic: expected %q, got %q", Magic[:], h.Magic[:])
	}
	if h.Version != Version {
		return formatErrorf("unsupported version %d: only version %d is supported", h.Version, Version)
	}
	for i, w := range h.Reserved {
		if w != 0 {
			return formatErrorf("reserved word %d is 0x%x, expected zero", i, w)
		}
	}
	if h.FileCount == 0 {
		return formatErrorf("file count is zero")
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
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.EngineMajor)
	binary.LittleEndian.PutUint32(buf[12:16], h.EngineMinor)
	binary.LittleEndian.PutUint32(buf[16:20], h.EnginePatch)
	for i, w := range h.Reserved {
		binary.LittleEndian.PutUint32(buf[20+i*4:24+i*4], w)
	}
	binary.LittleEndian.PutUint32(buf[HeaderSize-4:HeaderSize], h.FileCount)
}

// UnmarshalBinary decodes the header from binary format and validates it.
func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderSize {
		return formatErrorf("header data too short: need %d, got %d", HeaderSize, len(data))
	}
	h.DecodeFrom(data)
	return h.Validate()
}

// DecodeFrom reads the header from the given buffer.
// Does not validate - use UnmarshalBinary for validation.
func (h *Header) DecodeFrom(data []byte) {
	copy(h.Magic[:], data[0:4])
	h.Version = binary.LittleEndian.Uint32(data[4:8])
	h.EngineMajor = binary.LittleEndian.Uint32(data[8:12])
	h.EngineMinor = binary.LittleEndian.Uint32(data[12:16])
	h.EnginePatch = binary.LittleEndian.Uint32(data[16:20])
	for i := range h.Reserved {
		h.Reserved[i] = binary.LittleEndian.Uint32(data[20+i*4 : 24+i*4])
	}
	h.FileCount = binary.LittleEndian.Uint32(data[HeaderSize-4 : HeaderSize])
}

// EngineVersion returns the producer version as "major.minor.patch".
func (h *Header) EngineVersion() string {
	return fmt.Sprintf("%d.%d.%d", h.EngineMajor, h.EngineMinor, h.EnginePatch)
}

// NewHeader creates a version 1 header for an archive with count entries.
func NewHeader(count uint32) *Header {
	return &Header{
		Magic:     Magic,
		Version:   Version,
		FileCount: count,
	}
}
