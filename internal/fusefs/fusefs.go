//go:build linux || darwin

// Package fusefs exposes an image tree as a read-only FUSE filesystem.
// Directories are listed from the image the first time they are looked up
// or read.
package fusefs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"go.uber.org/zap"

	"github.com/jgarman/flopview/internal/format"
	"github.com/jgarman/flopview/internal/imagetree"
	"github.com/jgarman/flopview/internal/logging"
)

// Options configures the mount.
type Options struct {
	// Mountpoint is created if it does not exist.
	Mountpoint string

	// AllowOther permits other users to access the mount. Requires
	// user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// Name shows up as the filesystem source in mount listings.
	Name string
}

// FS serializes all access to one tree.
type FS struct {
	mu   sync.Mutex
	tree *imagetree.Tree
}

func New(tree *imagetree.Tree) *FS {
	return &FS{tree: tree}
}

// Mount serves fs at the configured mountpoint. The caller must call Unmount
// on the returned server.
func Mount(fs *FS, opts Options) (*fuse.Server, error) {
	if opts.Mountpoint == "" {
		return nil, errors.New("mountpoint is required")
	}
	if err := os.MkdirAll(opts.Mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("creating mountpoint %s: %w", opts.Mountpoint, err)
	}
	if opts.Name == "" {
		opts.Name = "flopview"
	}

	timeout := time.Minute
	server, err := gofuse.Mount(opts.Mountpoint, &node{fs: fs, addr: imagetree.Root()}, &gofuse.Options{
		EntryTimeout: &timeout,
		AttrTimeout:  &timeout,
		MountOptions: fuse.MountOptions{
			FsName:     opts.Name,
			Name:       "flopview",
			AllowOther: opts.AllowOther,
			Options:    []string{"ro"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mounting FUSE filesystem at %s: %w", opts.Mountpoint, err)
	}
	logging.L().Info("image mounted", zap.String("mountpoint", opts.Mountpoint))
	return server, nil
}

type child struct {
	name string
	addr imagetree.Address
	dir  bool
}

// children expands a and returns its entries.
func (fs *FS) children(a imagetree.Address) ([]child, syscall.Errno) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := fs.tree.RequestExpand(a); err != nil {
		logging.L().Warn("failed to list directory", zap.Stringer("address", a), zap.Error(err))
		return nil, syscall.EIO
	}
	n := fs.tree.RowCount(a)
	out := make([]child, 0, n)
	for row := 0; row < n; row++ {
		c, err := fs.tree.Index(row, 0, a)
		if err != nil {
			continue
		}
		out = append(out, child{name: fs.tree.FileName(c), addr: c, dir: fs.tree.IsDirectory(c)})
	}
	return out, 0
}

func (fs *FS) lookup(a imagetree.Address, name string) (child, syscall.Errno) {
	kids, errno := fs.children(a)
	if errno != 0 {
		return child{}, errno
	}
	for _, c := range kids {
		if c.name == name {
			return c, 0
		}
	}
	return child{}, syscall.ENOENT
}

// attr fills out from the entry's metadata.
func (fs *FS) attr(a imagetree.Address, out *fuse.Attr) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	out.Ino = ino(a)
	if fs.tree.IsDirectory(a) {
		out.Mode = syscall.S_IFDIR | 0o555
		out.Nlink = 2
	} else {
		out.Mode = syscall.S_IFREG | 0o444
		out.Nlink = 1
	}
	meta, err := fs.tree.Metadata(a)
	if err != nil {
		return
	}
	if meta.Has(format.MetaLength) {
		out.Size = meta[format.MetaLength].AsNumber()
	}
	if meta.Has(format.MetaModifiedDate) {
		if d := meta[format.MetaModifiedDate].AsDate(); !d.IsZero() {
			out.SetTimes(nil, &d, &d)
		}
	}
}

func (fs *FS) read(a imagetree.Address) ([]byte, syscall.Errno) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := fs.tree.ReadFile(a)
	switch {
	case err == nil:
		return data, 0
	case errors.Is(err, imagetree.ErrNotFile):
		return nil, syscall.EISDIR
	default:
		logging.L().Warn("failed to read file", zap.Stringer("address", a), zap.Error(err))
		return nil, syscall.EIO
	}
}

// ino numbers entries by slot and row; the root is 1.
func ino(a imagetree.Address) uint64 {
	if a.IsRoot() {
		return 1
	}
	return uint64(a.Slot()+1)<<32 | uint64(a.Row()+1)
}

type node struct {
	gofuse.Inode
	fs   *FS
	addr imagetree.Address
}

var _ gofuse.InodeEmbedder = (*node)(nil)
var _ gofuse.NodeLookuper = (*node)(nil)
var _ gofuse.NodeReaddirer = (*node)(nil)
var _ gofuse.NodeGetattrer = (*node)(nil)
var _ gofuse.NodeOpener = (*node)(nil)
var _ gofuse.NodeReader = (*node)(nil)

func (n *node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	c, errno := n.fs.lookup(n.addr, name)
	if errno != 0 {
		return nil, errno
	}
	n.fs.attr(c.addr, &out.Attr)
	mode := uint32(syscall.S_IFREG)
	if c.dir {
		mode = syscall.S_IFDIR
	}
	inode := n.NewInode(ctx, &node{fs: n.fs, addr: c.addr}, gofuse.StableAttr{Mode: mode, Ino: ino(c.addr)})
	return inode, 0
}

func (n *node) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	kids, errno := n.fs.children(n.addr)
	if errno != 0 {
		return nil, errno
	}
	entries := make([]fuse.DirEntry, 0, len(kids))
	for _, c := range kids {
		mode := uint32(syscall.S_IFREG)
		if c.dir {
			mode = syscall.S_IFDIR
		}
		entries = append(entries, fuse.DirEntry{Name: c.name, Mode: mode, Ino: ino(c.addr)})
	}
	return gofuse.NewListDirStream(entries), 0
}

func (n *node) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	n.fs.attr(n.addr, &out.Attr)
	return 0
}

type fileHandle struct {
	data []byte
}

func (n *node) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return nil, 0, syscall.EROFS
	}
	data, errno := n.fs.read(n.addr)
	if errno != 0 {
		return nil, 0, errno
	}
	return &fileHandle{data: data}, fuse.FOPEN_KEEP_CACHE, 0
}

func (n *node) Read(ctx context.Context, f gofuse.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	fh, ok := f.(*fileHandle)
	if !ok {
		return nil, syscall.EBADF
	}
	if off >= int64(len(fh.data)) {
		return fuse.ReadResultData(nil), 0
	}
	end := off + int64(len(dest))
	if end > int64(len(fh.data)) {
		end = int64(len(fh.data))
	}
	return fuse.ReadResultData(fh.data[off:end]), 0
}
