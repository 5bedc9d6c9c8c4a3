// Package fat reads FAT12 and FAT16 floppy filesystems.
package fat

import (
	"fmt"
	"strings"

	"github.com/jgarman/flopview/internal/format"
	"github.com/jgarman/flopview/internal/formats/pc"
)

// FileSystem mounts FAT12/16 volumes of standard PC floppy geometries.
type FileSystem struct{}

func (FileSystem) Name() string        { return "fat" }
func (FileSystem) Description() string { return "FAT12/16 floppy" }
func (FileSystem) CanRead() bool       { return true }

func (FileSystem) Geometries() []format.Geometry {
	return pc.FloppyGeometries(format.InterleavedConverter)
}

func (FileSystem) FileFields() []format.MetaName {
	return []format.MetaName{
		format.MetaNameName,
		format.MetaShortName,
		format.MetaLength,
		format.MetaCreationDate,
		format.MetaModifiedDate,
		format.MetaAttributes,
	}
}

func (FileSystem) DirectoryFields() []format.MetaName {
	return []format.MetaName{
		format.MetaNameName,
		format.MetaShortName,
		format.MetaCreationDate,
		format.MetaModifiedDate,
		format.MetaAttributes,
	}
}

func (FileSystem) Mount(data []byte) (format.Handle, error) {
	v, err := Open(data)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// VolumeMetadata returns the label, serial number, OEM name and free space.
func (v *Volume) VolumeMetadata() format.Metadata {
	meta := format.Metadata{
		format.MetaOEMName:      format.StringValue(v.bpb.OEMName),
		format.MetaVolumeSerial: format.StringValue(fmt.Sprintf("%04X-%04X", v.bpb.Serial>>16, v.bpb.Serial&0xffff)),
		format.MetaFreeBytes:    format.NumberValue(v.freeBytes()),
	}
	label := v.label
	if label == "" {
		label = v.bpb.Label
	}
	if label != "" && label != "NO NAME" {
		meta[format.MetaNameName] = format.StringValue(label)
	}
	return meta
}

func (v *Volume) ListDirectory(path []string) ([]format.DirEntry, error) {
	entries, err := v.readDir(path)
	if err != nil {
		return nil, err
	}
	out := make([]format.DirEntry, 0, len(entries))
	for _, d := range entries {
		kind := format.KindFile
		if d.isDir() {
			kind = format.KindDir
		}
		out = append(out, format.DirEntry{Name: d.name, Kind: kind})
	}
	return out, nil
}

func (v *Volume) Metadata(path []string) (format.Metadata, error) {
	if len(path) == 0 {
		return v.VolumeMetadata(), nil
	}
	d, err := v.lookup(path)
	if err != nil {
		return nil, err
	}
	meta := format.Metadata{
		format.MetaNameName:     format.StringValue(d.name),
		format.MetaShortName:    format.StringValue(d.shortName),
		format.MetaCreationDate: format.DateValue(d.created),
		format.MetaModifiedDate: format.DateValue(d.modified),
		format.MetaAttributes:   format.StringValue(attrString(d.attr)),
	}
	if !d.isDir() {
		meta[format.MetaLength] = format.NumberValue(uint64(d.size))
	}
	return meta, nil
}

func (v *Volume) ReadFile(path []string) ([]byte, error) {
	if len(path) == 0 {
		return nil, format.ErrNotFile
	}
	d, err := v.lookup(path)
	if err != nil {
		return nil, err
	}
	if d.isDir() {
		return nil, fmt.Errorf("%s: %w", strings.Join(path, "/"), format.ErrNotFile)
	}
	data, err := v.readChain(d.cluster, int64(d.size))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", strings.Join(path, "/"), err)
	}
	return data, nil
}

func (v *Volume) Close() error {
	v.data = nil
	return nil
}
