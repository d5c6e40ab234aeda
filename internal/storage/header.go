package storage

import (
	"encoding/binary"
	"errors"
	"hash/crc32"

	"github.com/google/uuid"
)

// File header constants.
const (
	// HeaderRegionSize is the space reserved for headers at the start of
	// the page file. Records begin right after it.
	HeaderRegionSize = 4096

	// HeaderSlotSize is the size of one header slot. The region holds two
	// slots that are written alternately, so a torn header write always
	// leaves the other slot intact.
	HeaderSlotSize = HeaderRegionSize / 2

	// headerFieldsSize is the number of bytes covered by the checksum.
	headerFieldsSize = 48

	// CurrentVersion is the current file format version.
	CurrentVersion uint32 = 1
)

// Magic identifies an arbor page file: "ARB\x00".
var Magic = [4]byte{'A', 'R', 'B', 0x00}

// FileHeader is one header slot of a page file.
// Layout:
//   - Bytes 0-3:   Magic ("ARB\x00")
//   - Bytes 4-7:   Version (uint32)
//   - Bytes 8-23:  StoreID (UUID)
//   - Bytes 24-31: Generation (uint64)
//   - Bytes 32-39: UberKey (int64, -1 before the first commit)
//   - Bytes 40-47: Revision (int64)
//   - Bytes 48-51: Checksum (CRC32 of bytes 0-47)
type FileHeader struct {
	Magic      [4]byte
	Version    uint32
	StoreID    uuid.UUID
	Generation uint64 // bumped on every head update
	UberKey    int64  // offset of the newest uber page record
	Revision   int64  // revision of that uber page
	Checksum   uint32
}

// Errors for file header operations.
var (
	ErrInvalidMagic       = errors.New("invalid magic number: not an arbor page file")
	ErrUnsupportedVersion = errors.New("unsupported file format version")
	ErrHeaderChecksum     = errors.New("file header checksum mismatch")
	ErrInvalidHeaderSize  = errors.New("invalid header size")
	ErrNoValidHeader      = errors.New("no valid header slot")
)

// NewFileHeader creates a header for a new store.
func NewFileHeader(id uuid.UUID) *FileHeader {
	return &FileHeader{
		Magic:    Magic,
		Version:  CurrentVersion,
		StoreID:  id,
		UberKey:  -1,
		Revision: -1,
	}
}

// Slot returns the header slot index the header is written to.
func (h *FileHeader) Slot() int {
	return int(h.Generation % 2)
}

// Serialize writes the header into a new HeaderSlotSize buffer.
func (h *FileHeader) Serialize() []byte {
	buf := make([]byte, HeaderSlotSize)
	copy(buf[0:4], h.Magic[:])
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	copy(buf[8:24], h.StoreID[:])
	binary.LittleEndian.PutUint64(buf[24:32], h.Generation)
	binary.LittleEndian.PutUint64(buf[32:40], uint64(h.UberKey))
	binary.LittleEndian.PutUint64(buf[40:48], uint64(h.Revision))

	h.Checksum = crc32.ChecksumIEEE(buf[:headerFieldsSize])
	binary.LittleEndian.PutUint32(buf[48:52], h.Checksum)
	return buf
}

// Deserialize reads the header from buf without validating it.
func (h *FileHeader) Deserialize(buf []byte) error {
	if len(buf) < headerFieldsSize+4 {
		return ErrInvalidHeaderSize
	}
	copy(h.Magic[:], buf[0:4])
	h.Version = binary.LittleEndian.Uint32(buf[4:8])
	copy(h.StoreID[:], buf[8:24])
	h.Generation = binary.LittleEndian.Uint64(buf[24:32])
	h.UberKey = int64(binary.LittleEndian.Uint64(buf[32:40]))
	h.Revision = int64(binary.LittleEndian.Uint64(buf[40:48]))
	h.Checksum = binary.LittleEndian.Uint32(buf[48:52])

	if crc32.ChecksumIEEE(buf[:headerFieldsSize]) != h.Checksum {
		return ErrHeaderChecksum
	}
	return nil
}

// Validate checks magic and version.
func (h *FileHeader) Validate() error {
	if h.Magic != Magic {
		return ErrInvalidMagic
	}
	if h.Version == 0 || h.Version > CurrentVersion {
		return ErrUnsupportedVersion
	}
	return nil
}

// ReadHeader picks the newest valid slot of a header region.
func ReadHeader(region []byte) (*FileHeader, error) {
	if len(region) < HeaderRegionSize {
		return nil, ErrInvalidHeaderSize
	}
	var best *FileHeader
	var firstErr error
	for slot := 0; slot < 2; slot++ {
		h := &FileHeader{}
		err := h.Deserialize(region[slot*HeaderSlotSize:])
		if err == nil {
			err = h.Validate()
		}
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if best == nil || h.Generation > best.Generation {
			best = h
		}
	}
	if best == nil {
		if firstErr != nil {
			return nil, firstErr
		}
		return nil, ErrNoValidHeader
	}
	return best, nil
}
