package zipstream

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	sigLocalFileHeader = 0x04034b50
	sigCentralDirectory = 0x02014b50
	sigZip64EOCDR       = 0x06064b50
	sigZip64EOCDL       = 0x07064b50
	sigEOCD             = 0x06054b50

	methodStored  uint16 = 0
	methodDeflate uint16 = 8

	versionNeeded = 45

	flagEncryptedBit      = 1 << 0
	flagDataDescriptorBit = 1 << 3
	flagPatchBit          = 1 << 5
	flagStrongEncryptBit  = 1 << 6

	localFileHeaderSize = 30
	cdFileHeaderSize    = 46
	zip64EOCDRSize      = 56
	zip64EOCDLSize      = 20
	eocdSize            = 22
)

// localHeader is the fixed 30-byte portion of a local file header, decoded with encoding/binary the same
// struct-tag-free manual field layout the teacher's zip/scan package uses for its own local/central headers.
type localHeader struct {
	Signature        uint32
	VersionNeeded    uint16
	Flags            uint16
	Method           uint16
	ModifiedTime     uint16
	ModifiedDate     uint16
	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32
	FileNameLength   uint16
	ExtraFieldLength uint16
}

func unmarshalLocalHeader(b []byte) (localHeader, error) {
	var h localHeader
	if len(b) < localFileHeaderSize {
		return h, fmt.Errorf("zipstream: local file header short read: got %d bytes", len(b))
	}
	if err := binary.Read(bytes.NewReader(b[:localFileHeaderSize]), binary.LittleEndian, &h); err != nil {
		return h, fmt.Errorf("zipstream: unmarshal local file header error: %w", err)
	}
	return h, nil
}

func (h localHeader) validate() error {
	if h.VersionNeeded > versionNeeded {
		return fmt.Errorf("zipstream: version needed %d: %w", h.VersionNeeded, ErrUnsupportedVersion)
	}
	if h.Flags&(flagEncryptedBit|flagDataDescriptorBit|flagPatchBit|flagStrongEncryptBit) != 0 {
		return fmt.Errorf("zipstream: flags 0x%04x: %w", h.Flags, ErrUnsupportedFlag)
	}
	return nil
}

// marshalLocalHeader encodes the fixed 30-byte local file header this package always writes: version-needed 45,
// both 32-bit size fields set to the ZIP64 sentinel 0xffffffff, MS-DOS timestamp fields left zero since real times
// live only in the extended-timestamp extra field.
func marshalLocalHeader(method uint16, crc32 uint32, nameLen, extraLen int) []byte {
	b := make([]byte, localFileHeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], sigLocalFileHeader)
	binary.LittleEndian.PutUint16(b[4:6], versionNeeded)
	binary.LittleEndian.PutUint16(b[6:8], 0)
	binary.LittleEndian.PutUint16(b[8:10], method)
	binary.LittleEndian.PutUint16(b[10:12], 0)
	binary.LittleEndian.PutUint16(b[12:14], 0)
	binary.LittleEndian.PutUint32(b[14:18], crc32)
	binary.LittleEndian.PutUint32(b[18:22], 0xffffffff)
	binary.LittleEndian.PutUint32(b[22:26], 0xffffffff)
	binary.LittleEndian.PutUint16(b[26:28], uint16(nameLen))
	binary.LittleEndian.PutUint16(b[28:30], uint16(extraLen))
	return b
}

// cdHeader mirrors the fixed 46-byte central directory file header.
type cdHeader struct {
	Signature         uint32
	CreatorVersion    uint16
	VersionNeeded     uint16
	Flags             uint16
	Method            uint16
	ModifiedTime      uint16
	ModifiedDate      uint16
	CRC32             uint32
	CompressedSize    uint32
	UncompressedSize  uint32
	FileNameLength    uint16
	ExtraFieldLength  uint16
	FileCommentLength uint16
	DiskNumber        uint16
	InternalAttrs     uint16
	ExternalAttrs     uint32
	Offset            uint32
}

// marshalCDHeader encodes the fixed 46-byte central directory file header this package always writes: creator and
// version-needed both 45, flags 0, both size fields and the offset set to the ZIP64 sentinel.
func marshalCDHeader(method uint16, crc32 uint32, nameLen, extraLen int) []byte {
	b := make([]byte, cdFileHeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], sigCentralDirectory)
	binary.LittleEndian.PutUint16(b[4:6], versionNeeded)
	binary.LittleEndian.PutUint16(b[6:8], versionNeeded)
	binary.LittleEndian.PutUint16(b[8:10], 0)
	binary.LittleEndian.PutUint16(b[10:12], method)
	binary.LittleEndian.PutUint16(b[12:14], 0)
	binary.LittleEndian.PutUint16(b[14:16], 0)
	binary.LittleEndian.PutUint32(b[16:20], crc32)
	binary.LittleEndian.PutUint32(b[20:24], 0xffffffff)
	binary.LittleEndian.PutUint32(b[24:28], 0xffffffff)
	binary.LittleEndian.PutUint16(b[28:30], uint16(nameLen))
	binary.LittleEndian.PutUint16(b[30:32], uint16(extraLen))
	binary.LittleEndian.PutUint16(b[32:34], 0)
	binary.LittleEndian.PutUint16(b[34:36], 0)
	binary.LittleEndian.PutUint16(b[36:38], 0)
	binary.LittleEndian.PutUint32(b[38:42], 0)
	binary.LittleEndian.PutUint32(b[42:46], 0xffffffff)
	return b
}

// marshalZip64EOCDR encodes the 56-byte ZIP64 end-of-central-directory record.
func marshalZip64EOCDR(entryCount uint64, cdSize, cdOffset uint64) []byte {
	b := make([]byte, zip64EOCDRSize)
	binary.LittleEndian.PutUint32(b[0:4], sigZip64EOCDR)
	binary.LittleEndian.PutUint64(b[4:12], zip64EOCDRSize-12)
	binary.LittleEndian.PutUint16(b[12:14], versionNeeded)
	binary.LittleEndian.PutUint16(b[14:16], versionNeeded)
	binary.LittleEndian.PutUint32(b[16:20], 0)
	binary.LittleEndian.PutUint32(b[20:24], 0)
	binary.LittleEndian.PutUint64(b[24:32], entryCount)
	binary.LittleEndian.PutUint64(b[32:40], entryCount)
	binary.LittleEndian.PutUint64(b[40:48], cdSize)
	binary.LittleEndian.PutUint64(b[48:56], cdOffset)
	return b
}

// marshalZip64EOCDL encodes the 20-byte ZIP64 end-of-central-directory locator.
func marshalZip64EOCDL(zip64EOCDROffset uint64) []byte {
	b := make([]byte, zip64EOCDLSize)
	binary.LittleEndian.PutUint32(b[0:4], sigZip64EOCDL)
	binary.LittleEndian.PutUint32(b[4:8], 0)
	binary.LittleEndian.PutUint64(b[8:16], zip64EOCDROffset)
	binary.LittleEndian.PutUint32(b[16:20], 1)
	return b
}

// marshalEOCD encodes the 22-byte plain end-of-central-directory record, sentinel-filled since ZIP64 is always
// used by this writer.
func marshalEOCD() []byte {
	b := make([]byte, eocdSize)
	binary.LittleEndian.PutUint32(b[0:4], sigEOCD)
	binary.LittleEndian.PutUint16(b[4:6], 0)
	binary.LittleEndian.PutUint16(b[6:8], 0)
	binary.LittleEndian.PutUint16(b[8:10], 0xffff)
	binary.LittleEndian.PutUint16(b[10:12], 0xffff)
	binary.LittleEndian.PutUint32(b[12:16], 0xffffffff)
	binary.LittleEndian.PutUint32(b[16:20], 0xffffffff)
	binary.LittleEndian.PutUint16(b[20:22], 0)
	return b
}
