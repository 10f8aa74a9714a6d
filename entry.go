package zipstream

import (
	"io"

	"github.com/nguyengg/zipstream/extrafield"
)

// Entry is the tagged variant yielded by (*Reader).Entries: either a FileEntry or a DirectoryEntry.
type Entry interface {
	isEntry()
}

// FileEntry describes a regular file entry and carries the Body handle the consumer must resolve (via Body.Stream
// or Body.Autodrain) before the next entry is produced.
type FileEntry struct {
	Name             string
	Timestamps       *extrafield.Timestamps
	UncompressedSize uint64
	CompressedSize   uint64
	CRC32            uint32
	Method           uint16
	Body             *Body
}

func (FileEntry) isEntry() {}

// DirectoryEntry describes a directory entry (name ends with "/"). Directories carry no body: this package drains
// their (normally zero-length) body internally before yielding.
type DirectoryEntry struct {
	Name       string
	Timestamps *extrafield.Timestamps
}

func (DirectoryEntry) isEntry() {}

// WriteEntry is the tagged variant accepted by (*Writer).WriteEntry: either a WriteFileEntry or a
// WriteDirectoryEntry.
type WriteEntry interface {
	isWriteEntry()
}

// WriteDirectoryEntry writes a directory entry. Name should end with "/"; WriteEntry appends it if missing.
type WriteDirectoryEntry struct {
	Name       string
	Timestamps *extrafield.Timestamps
}

func (WriteDirectoryEntry) isWriteEntry() {}

// WriteFileEntry writes a regular file entry. Body is one of StoredBody or DeflatedBody.
type WriteFileEntry struct {
	Name       string
	Timestamps *extrafield.Timestamps
	Body       WriteBody
}

func (WriteFileEntry) isWriteEntry() {}

// WriteBody is the tagged body carried by a WriteFileEntry: either StoredBody or DeflatedBody. The Writer never
// compresses on the caller's behalf; the caller supplies either raw bytes (Stored) or already-deflated bytes plus
// their sizes and CRC (Deflated).
type WriteBody interface {
	isWriteBody()
	crc32() uint32
	compressedSize() uint64
	uncompressedSize() uint64
	method() uint16
	reader() io.Reader
}

// StoredBody is an uncompressed (method 0) write body: Size raw bytes from Reader, with CRC32 already computed by
// the caller over those same raw bytes.
type StoredBody struct {
	Size   uint64
	CRC32  uint32
	Reader io.Reader
}

func (StoredBody) isWriteBody()             {}
func (b StoredBody) crc32() uint32          { return b.CRC32 }
func (b StoredBody) compressedSize() uint64 { return b.Size }
func (b StoredBody) uncompressedSize() uint64 { return b.Size }
func (StoredBody) method() uint16           { return methodStored }
func (b StoredBody) reader() io.Reader      { return b.Reader }

// DeflatedBody is a pre-compressed (method 8) write body: Reader already yields raw-DEFLATE bytes, CompressedSize
// long, decompressing to UncompressedSize bytes with the given CRC32.
type DeflatedBody struct {
	UncompressedSize uint64
	CompressedSize   uint64
	CRC32            uint32
	Reader           io.Reader
}

func (DeflatedBody) isWriteBody()              {}
func (b DeflatedBody) crc32() uint32            { return b.CRC32 }
func (b DeflatedBody) compressedSize() uint64   { return b.CompressedSize }
func (b DeflatedBody) uncompressedSize() uint64 { return b.UncompressedSize }
func (DeflatedBody) method() uint16             { return methodDeflate }
func (b DeflatedBody) reader() io.Reader        { return b.Reader }
