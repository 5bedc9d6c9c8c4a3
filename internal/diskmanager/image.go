package diskmanager

import (
	"github.com/jgarman/flopview/internal/catalog"
	"github.com/jgarman/flopview/internal/format"
)

// Image is a mounted disk: the flat buffer a geometry produced bound to the
// filesystem handle reading it. An Image has one owner; Close releases the
// handle.
type Image struct {
	format     *catalog.FloppyFormat
	fileSystem *catalog.FileSystem
	geometry   format.Geometry
	data       []byte
	handle     format.Handle
}

func (i *Image) Format() *catalog.FloppyFormat   { return i.format }
func (i *Image) FileSystem() *catalog.FileSystem { return i.fileSystem }
func (i *Image) Geometry() format.Geometry       { return i.geometry }

// Bytes returns the mounted buffer. Its length equals Geometry().Size.
func (i *Image) Bytes() []byte {
	return i.data
}

// Handle returns the filesystem handle, or nil after Close.
func (i *Image) Handle() format.Handle {
	return i.handle
}

// FileFields returns the metadata fields the filesystem reports for files.
func (i *Image) FileFields() []format.MetaName {
	return i.fileSystem.FileSystem().FileFields()
}

// DirectoryFields returns the metadata fields reported for directories.
func (i *Image) DirectoryFields() []format.MetaName {
	return i.fileSystem.FileSystem().DirectoryFields()
}

// VolumeName returns the volume label, or "" if the filesystem has none.
func (i *Image) VolumeName() string {
	if i.handle == nil {
		return ""
	}
	return i.handle.VolumeMetadata().GetString(format.MetaNameName)
}

// Close releases the filesystem handle. It is safe to call more than once.
func (i *Image) Close() error {
	if i.handle == nil {
		return nil
	}
	h := i.handle
	i.handle = nil
	i.data = nil
	return h.Close()
}
