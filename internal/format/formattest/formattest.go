// Package formattest provides in-memory format library fakes for tests.
package formattest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jgarman/flopview/internal/format"
)

// ErrUnreadable is returned by ReadFile for nodes marked Unreadable.
var ErrUnreadable = errors.New("sector read error")

// Format is a configurable format.Format.
type Format struct {
	ID        string
	Desc      string
	Exts      []string
	Fixed     format.Score
	ScoreFunc func(src format.Source) format.Score
	DecodeErr error
	Image     *format.Image
}

func (f *Format) Name() string         { return f.ID }
func (f *Format) Description() string  { return f.Desc }
func (f *Format) Extensions() []string { return f.Exts }

func (f *Format) Identify(src format.Source) format.Score {
	if f.ScoreFunc != nil {
		return f.ScoreFunc(src)
	}
	return f.Fixed
}

func (f *Format) Decode(src format.Source) (*format.Image, error) {
	if f.DecodeErr != nil {
		return nil, f.DecodeErr
	}
	if f.Image != nil {
		return f.Image, nil
	}
	return RawImage(src, 512)
}

// RawImage decodes src as a single track of fixed-size sectors.
func RawImage(src format.Source, sectorSize int) (*format.Image, error) {
	size := src.Size()
	if size == 0 || size%int64(sectorSize) != 0 {
		return nil, fmt.Errorf("size %d is not a multiple of %d", size, sectorSize)
	}
	img := format.NewImage(1, 1)
	t := format.Track{}
	for off, id := int64(0), 1; off < size; off, id = off+int64(sectorSize), id+1 {
		data := make([]byte, sectorSize)
		if _, err := src.ReadAt(data, off); err != nil {
			return nil, err
		}
		t.Sectors = append(t.Sectors, format.Sector{ID: id, Data: data})
	}
	img.SetTrack(t)
	return img, nil
}

// Converter counts how often it serializes. Out, when set, replaces the
// serialized bytes.
type Converter struct {
	ID    string
	Out   []byte
	Calls int
}

func (c *Converter) Name() string { return c.ID }

func (c *Converter) Serialize(img *format.Image) ([]byte, error) {
	c.Calls++
	if c.Out != nil {
		out := make([]byte, len(c.Out))
		copy(out, c.Out)
		return out, nil
	}
	return format.InterleavedConverter.Serialize(img)
}

// Node is a file or directory of an in-memory filesystem.
type Node struct {
	Name       string
	IsDir      bool
	Data       []byte
	Meta       format.Metadata
	Unreadable bool
	Children   []*Node
}

// Dir returns a directory node.
func Dir(name string, children ...*Node) *Node {
	return &Node{Name: name, IsDir: true, Children: children}
}

// File returns a file node.
func File(name string, data string) *Node {
	return &Node{Name: name, Data: []byte(data)}
}

func (n *Node) child(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// FileSystem is a configurable format.FileSystem whose handles serve Root.
type FileSystem struct {
	ID        string
	Desc      string
	Readable  bool
	Geoms     []format.Geometry
	FileMeta  []format.MetaName
	DirMeta   []format.MetaName
	Root      *Node
	Volume    format.Metadata
	MountErr  error
	LastMount []byte
	Handles   []*Handle
}

func (fs *FileSystem) Name() string                       { return fs.ID }
func (fs *FileSystem) Description() string                { return fs.Desc }
func (fs *FileSystem) CanRead() bool                      { return fs.Readable }
func (fs *FileSystem) Geometries() []format.Geometry      { return fs.Geoms }
func (fs *FileSystem) FileFields() []format.MetaName      { return fs.FileMeta }
func (fs *FileSystem) DirectoryFields() []format.MetaName { return fs.DirMeta }

func (fs *FileSystem) Mount(data []byte) (format.Handle, error) {
	if fs.MountErr != nil {
		return nil, fs.MountErr
	}
	fs.LastMount = data
	root := fs.Root
	if root == nil {
		root = Dir("")
	}
	h := &Handle{Root: root, Volume: fs.Volume, ListCalls: make(map[string]int)}
	fs.Handles = append(fs.Handles, h)
	return h, nil
}

// Handle serves an in-memory tree and records directory listings.
type Handle struct {
	Root      *Node
	Volume    format.Metadata
	ListCalls map[string]int
	Closed    bool
}

func (h *Handle) walk(path []string) (*Node, error) {
	n := h.Root
	for _, name := range path {
		if !n.IsDir {
			return nil, format.ErrNotDir
		}
		if n = n.child(name); n == nil {
			return nil, fmt.Errorf("%s: %w", strings.Join(path, "/"), format.ErrNotFound)
		}
	}
	return n, nil
}

func (h *Handle) VolumeMetadata() format.Metadata {
	if h.Volume == nil {
		return format.Metadata{}
	}
	return h.Volume
}

func (h *Handle) ListDirectory(path []string) ([]format.DirEntry, error) {
	n, err := h.walk(path)
	if err != nil {
		return nil, err
	}
	if !n.IsDir {
		return nil, format.ErrNotDir
	}
	h.ListCalls["/"+strings.Join(path, "/")]++
	entries := make([]format.DirEntry, 0, len(n.Children))
	for _, c := range n.Children {
		kind := format.KindFile
		if c.IsDir {
			kind = format.KindDir
		}
		entries = append(entries, format.DirEntry{Name: c.Name, Kind: kind})
	}
	return entries, nil
}

func (h *Handle) Metadata(path []string) (format.Metadata, error) {
	n, err := h.walk(path)
	if err != nil {
		return nil, err
	}
	meta := format.Metadata{format.MetaNameName: format.StringValue(n.Name)}
	if !n.IsDir {
		meta[format.MetaLength] = format.NumberValue(uint64(len(n.Data)))
	}
	for k, v := range n.Meta {
		meta[k] = v
	}
	return meta, nil
}

func (h *Handle) ReadFile(path []string) ([]byte, error) {
	n, err := h.walk(path)
	if err != nil {
		return nil, err
	}
	if n.IsDir {
		return nil, format.ErrNotFile
	}
	if n.Unreadable {
		return nil, ErrUnreadable
	}
	out := make([]byte, len(n.Data))
	copy(out, n.Data)
	return out, nil
}

func (h *Handle) Close() error {
	h.Closed = true
	return nil
}

// Registration places a format or filesystem in a category.
type Registration struct {
	Category   string
	Format     format.Format
	FileSystem format.FileSystem
}

// Library enumerates its registrations in order.
type Library []Registration

func (l Library) Enumerate(e format.Enumerator) {
	for _, r := range l {
		e.Category(r.Category)
		if r.Format != nil {
			e.AddFormat(r.Format)
		}
		if r.FileSystem != nil {
			e.AddFileSystem(r.FileSystem)
		}
	}
}
