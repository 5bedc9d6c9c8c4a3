// Package fat32 mounts FAT32 superfloppies (ZIP, LS-120 and similar
// removable media) through go-diskfs.
package fat32

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	diskfs "github.com/diskfs/go-diskfs"
	"github.com/diskfs/go-diskfs/disk"
	"github.com/diskfs/go-diskfs/filesystem"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"github.com/jgarman/flopview/internal/format"
	"github.com/jgarman/flopview/internal/logging"
)

var ErrNotFAT32 = errors.New("not a FAT32 volume")

func init() {
	// go-diskfs logs every directory walk at info level
	logrus.SetLevel(logrus.WarnLevel)
}

// Media is a removable FAT32 medium size.
type Media struct {
	Name string
	Size int64
}

// DefaultMedia lists the superfloppy sizes recognized without configuration.
var DefaultMedia = []Media{
	{Name: "ZIP100", Size: 100663296},
	{Name: "LS-120", Size: 126222336},
	{Name: "ZIP250", Size: 250640384},
}

// FileSystem mounts FAT32 volumes of the sizes in its media list.
type FileSystem struct {
	media []Media
}

// New returns a FileSystem accepting DefaultMedia plus extra.
func New(extra ...Media) *FileSystem {
	media := append([]Media{}, DefaultMedia...)
	return &FileSystem{media: append(media, extra...)}
}

func (*FileSystem) Name() string        { return "fat32" }
func (*FileSystem) Description() string { return "FAT32 superfloppy" }
func (*FileSystem) CanRead() bool       { return true }

func (fs *FileSystem) Geometries() []format.Geometry {
	out := make([]format.Geometry, 0, len(fs.media))
	for _, m := range fs.media {
		out = append(out, format.Geometry{
			Name:        m.Name,
			Description: m.Name + " FAT32 superfloppy",
			Converter:   format.InterleavedConverter,
			Size:        m.Size,
		})
	}
	return out
}

func (*FileSystem) FileFields() []format.MetaName {
	return []format.MetaName{format.MetaNameName, format.MetaLength, format.MetaModifiedDate}
}

func (*FileSystem) DirectoryFields() []format.MetaName {
	return []format.MetaName{format.MetaNameName, format.MetaModifiedDate}
}

// Mount spools data to a temporary file and opens it read-only, since
// go-diskfs reads through a file-backed device.
func (*FileSystem) Mount(data []byte) (format.Handle, error) {
	tmp, err := os.CreateTemp("", "flopview-*.img")
	if err != nil {
		return nil, fmt.Errorf("failed to create spool file: %w", err)
	}
	name := tmp.Name()
	_, err = tmp.Write(data)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(name)
		return nil, fmt.Errorf("failed to write spool file: %w", err)
	}

	d, err := diskfs.Open(name, diskfs.WithOpenMode(diskfs.ReadOnly))
	if err != nil {
		os.Remove(name)
		return nil, fmt.Errorf("%w: %v", ErrNotFAT32, err)
	}
	fs, err := d.GetFilesystem(0)
	if err != nil || fs.Type() != filesystem.TypeFat32 {
		d.Close()
		os.Remove(name)
		if err == nil {
			err = fmt.Errorf("filesystem type %v", fs.Type())
		}
		return nil, fmt.Errorf("%w: %v", ErrNotFAT32, err)
	}

	logging.L().Debug("Mounted FAT32 volume",
		zap.String("spool", name),
		zap.String("label", fs.Label()),
	)
	return &handle{spool: name, disk: d, fs: fs}, nil
}

type handle struct {
	spool string
	disk  *disk.Disk
	fs    filesystem.FileSystem
}

func join(p []string) string {
	return "/" + path.Join(p...)
}

func (h *handle) VolumeMetadata() format.Metadata {
	meta := format.Metadata{}
	if label := strings.TrimSpace(h.fs.Label()); label != "" && label != "NO NAME" {
		meta[format.MetaNameName] = format.StringValue(label)
	}
	return meta
}

// entries lists a directory without the dot entries.
func (h *handle) entries(p []string) ([]os.FileInfo, error) {
	infos, err := h.fs.ReadDir(join(p))
	if err != nil {
		if os.IsNotExist(err) || strings.Contains(err.Error(), "does not exist") || strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("%s: %w", join(p), format.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read directory %s: %w", join(p), err)
	}
	out := infos[:0]
	for _, fi := range infos {
		if fi.Name() == "." || fi.Name() == ".." {
			continue
		}
		out = append(out, fi)
	}
	return out, nil
}

// stat resolves each path element against its parent listing and returns
// the entry with the path as stored on disk.
func (h *handle) stat(p []string) (os.FileInfo, []string, error) {
	var (
		fi     os.FileInfo
		stored []string
	)
	for i := range p {
		if fi != nil && !fi.IsDir() {
			return nil, nil, fmt.Errorf("%s: %w", join(p[:i]), format.ErrNotDir)
		}
		infos, err := h.entries(stored)
		if err != nil {
			return nil, nil, err
		}
		fi = match(infos, p[i])
		if fi == nil {
			return nil, nil, fmt.Errorf("%s: %w", join(p[:i+1]), format.ErrNotFound)
		}
		stored = append(stored, fi.Name())
	}
	return fi, stored, nil
}

func match(infos []os.FileInfo, name string) os.FileInfo {
	for _, fi := range infos {
		if fi.Name() == name {
			return fi
		}
	}
	for _, fi := range infos {
		if strings.EqualFold(fi.Name(), name) {
			return fi
		}
	}
	return nil
}

func (h *handle) ListDirectory(p []string) ([]format.DirEntry, error) {
	var stored []string
	if len(p) > 0 {
		fi, resolved, err := h.stat(p)
		if err != nil {
			return nil, err
		}
		if !fi.IsDir() {
			return nil, fmt.Errorf("%s: %w", join(p), format.ErrNotDir)
		}
		stored = resolved
	}
	infos, err := h.entries(stored)
	if err != nil {
		return nil, err
	}
	out := make([]format.DirEntry, 0, len(infos))
	for _, fi := range infos {
		kind := format.KindFile
		if fi.IsDir() {
			kind = format.KindDir
		}
		out = append(out, format.DirEntry{Name: fi.Name(), Kind: kind})
	}
	return out, nil
}

func (h *handle) Metadata(p []string) (format.Metadata, error) {
	if len(p) == 0 {
		return h.VolumeMetadata(), nil
	}
	fi, _, err := h.stat(p)
	if err != nil {
		return nil, err
	}
	meta := format.Metadata{
		format.MetaNameName:     format.StringValue(fi.Name()),
		format.MetaModifiedDate: format.DateValue(fi.ModTime()),
	}
	if !fi.IsDir() {
		meta[format.MetaLength] = format.NumberValue(uint64(fi.Size()))
	}
	return meta, nil
}

func (h *handle) ReadFile(p []string) ([]byte, error) {
	if len(p) == 0 {
		return nil, format.ErrNotFile
	}
	fi, stored, err := h.stat(p)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%s: %w", join(p), format.ErrNotFile)
	}
	f, err := h.fs.OpenFile(join(stored), os.O_RDONLY)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", join(p), err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, fi.Size()))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", join(p), err)
	}
	return data, nil
}

func (h *handle) Close() error {
	if h.disk == nil {
		return nil
	}
	err := h.disk.Close()
	h.disk = nil
	h.fs = nil
	if rerr := os.Remove(h.spool); err == nil && rerr != nil && !os.IsNotExist(rerr) {
		err = rerr
	}
	return err
}
