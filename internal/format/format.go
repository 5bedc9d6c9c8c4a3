// Package format defines the contract between flopview and the libraries that
// understand disk encodings and filesystems.
//
// A Library enumerates Formats (physical or logical disk encodings) and
// FileSystems (directory structures a decoded disk can be reinterpreted as).
// Formats score and decode a Source into a structural Image; FileSystems
// describe which flat geometries they accept and mount a flat buffer into a
// Handle that can be listed and read.
package format

import (
	"errors"
	"io"
)

var (
	ErrNotFound    = errors.New("path not found")
	ErrNotFile     = errors.New("not a file")
	ErrNotDir      = errors.New("not a directory")
	ErrUnsupported = errors.New("operation not supported")
)

// Source is a seekable, length-reporting byte stream. *bytes.Reader and
// *io.SectionReader both satisfy it.
type Source interface {
	io.ReaderAt
	Size() int64
}

// Format is a recognized physical or logical disk encoding.
type Format interface {
	Name() string
	Description() string
	Extensions() []string

	// Identify scores the source; zero means no match.
	Identify(src Source) Score

	// Decode reads the source into a structural image.
	Decode(src Source) (*Image, error)
}

// Converter translates a structural image into a flat byte buffer. Converters
// are compared by name: two geometries sharing a converter name produce the
// same bytes.
type Converter interface {
	Name() string
	Serialize(img *Image) ([]byte, error)
}

// Geometry is one flat layout a filesystem accepts.
type Geometry struct {
	Name        string
	Description string
	Converter   Converter
	Size        int64
}

// FileSystem is a logical directory structure that a decoded image may be
// reinterpreted as.
type FileSystem interface {
	Name() string
	Description() string
	CanRead() bool

	// Geometries lists candidate flat layouts, in preference order.
	Geometries() []Geometry

	// FileFields and DirectoryFields list the metadata fields this
	// filesystem reports for files and directories.
	FileFields() []MetaName
	DirectoryFields() []MetaName

	// Mount binds a flat buffer. The handle may keep a reference to data.
	Mount(data []byte) (Handle, error)
}

// EntryKind distinguishes files from directories.
type EntryKind int

const (
	KindFile EntryKind = iota
	KindDir
)

func (k EntryKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	default:
		return "unknown"
	}
}

// DirEntry is one item returned by Handle.ListDirectory.
type DirEntry struct {
	Name string
	Kind EntryKind
}

// Handle is a mounted filesystem. Paths are name lists relative to the root;
// the root itself is the empty list. Handles are not safe for concurrent use.
type Handle interface {
	VolumeMetadata() Metadata
	ListDirectory(path []string) ([]DirEntry, error)
	Metadata(path []string) (Metadata, error)
	ReadFile(path []string) ([]byte, error)
	Close() error
}

// Enumerator receives a library's formats and filesystems. Category sets the
// category for every following Add call.
type Enumerator interface {
	Category(name string)
	AddFormat(f Format)
	AddFileSystem(fs FileSystem)
}

// Library is a collection of formats and filesystems.
type Library interface {
	Enumerate(e Enumerator)
}
