// Package imagetree presents a mounted image as a lazily loaded tree.
//
// Directories are listed only when first expanded. Every listed directory
// gets a slot; slots are appended and never reused, so addresses handed out
// earlier stay valid as the tree grows. A Tree is not safe for concurrent
// use.
package imagetree

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jgarman/flopview/internal/format"
	"github.com/jgarman/flopview/internal/logging"
	"github.com/jgarman/flopview/internal/metrics"
)

var (
	ErrInvalidAddress = errors.New("invalid address")
	ErrNotFile        = errors.New("not a file")
	ErrDetached       = errors.New("tree has no mounted image")
	ErrInvalidName    = errors.New("name is not a valid path element")
)

// MountedImage is what a tree needs from a mounted disk.
type MountedImage interface {
	Handle() format.Handle
	FileFields() []format.MetaName
	DirectoryFields() []format.MetaName
	Close() error
}

const unresolved = -1

type entry struct {
	name     string
	kind     format.EntryKind
	meta     format.Metadata
	child    int
	expanded bool
}

type directory struct {
	parentSlot int
	parentRow  int
	entries    []entry
}

// Tree is the browsing state of one mounted image.
type Tree struct {
	image  MountedImage
	fields []format.MetaName
	dirs   []directory
}

// New lists the root directory of img and returns a tree over it. The tree
// takes ownership of img.
func New(img MountedImage) (*Tree, error) {
	t := &Tree{
		image:  img,
		fields: fieldSchema(img.FileFields(), img.DirectoryFields()),
	}
	if _, err := t.loadDirectory(-1, -1); err != nil {
		return nil, fmt.Errorf("failed to load root directory: %w", err)
	}
	return t, nil
}

// fieldSchema returns the file fields followed by directory fields not
// already present.
func fieldSchema(fileFields, dirFields []format.MetaName) []format.MetaName {
	fields := make([]format.MetaName, 0, len(fileFields)+len(dirFields))
	seen := make(map[format.MetaName]bool)
	for _, list := range [][]format.MetaName{fileFields, dirFields} {
		for _, name := range list {
			if !seen[name] {
				seen[name] = true
				fields = append(fields, name)
			}
		}
	}
	return fields
}

func (t *Tree) handle() (format.Handle, error) {
	if t.image == nil || t.image.Handle() == nil {
		return nil, ErrDetached
	}
	return t.image.Handle(), nil
}

// loadDirectory lists the directory named by parentSlot/parentRow (-1/-1 for
// the root) into a new slot.
func (t *Tree) loadDirectory(parentSlot, parentRow int) (int, error) {
	h, err := t.handle()
	if err != nil {
		return unresolved, err
	}

	var path []string
	if parentSlot >= 0 {
		path = t.pathOf(parentSlot, parentRow)
	}
	listing, err := h.ListDirectory(path)
	if err != nil {
		return unresolved, err
	}

	dir := directory{
		parentSlot: parentSlot,
		parentRow:  parentRow,
		entries:    make([]entry, 0, len(listing)),
	}
	for _, item := range listing {
		childPath := append(append(make([]string, 0, len(path)+1), path...), item.Name)
		meta, err := h.Metadata(childPath)
		if err != nil {
			logging.L().Warn("failed to read metadata",
				zap.String("path", strings.Join(childPath, "/")),
				zap.Error(err),
			)
			meta = format.Metadata{}
		}
		if !meta.Has(format.MetaNameName) {
			meta[format.MetaNameName] = format.StringValue(item.Name)
		}
		dir.entries = append(dir.entries, entry{
			name:  item.Name,
			kind:  item.Kind,
			meta:  meta,
			child: unresolved,
		})
	}

	slot := len(t.dirs)
	t.dirs = append(t.dirs, dir)
	if parentSlot >= 0 {
		t.dirs[parentSlot].entries[parentRow].child = slot
	}

	metrics.RecordDirectoryLoad()
	logging.L().Debug("loaded directory",
		zap.String("path", "/"+strings.Join(path, "/")),
		zap.Int("slot", slot),
		zap.Int("entries", len(dir.entries)),
	)
	return slot, nil
}

// pathOf returns the names from the root down to the entry at slot/row.
func (t *Tree) pathOf(slot, row int) []string {
	var reversed []string
	for slot >= 0 {
		reversed = append(reversed, t.dirs[slot].entries[row].name)
		slot, row = t.dirs[slot].parentSlot, t.dirs[slot].parentRow
	}
	path := make([]string, len(reversed))
	for i, name := range reversed {
		path[len(reversed)-1-i] = name
	}
	return path
}

func (t *Tree) lookup(a Address) (*entry, error) {
	if a.IsRoot() {
		return nil, nil
	}
	if a.slot < 0 || a.slot >= len(t.dirs) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, a)
	}
	entries := t.dirs[a.slot].entries
	if a.row < 0 || a.row >= len(entries) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, a)
	}
	return &entries[a.row], nil
}

// childSlot returns the slot listing the children of a, or unresolved.
func (t *Tree) childSlot(a Address) (int, error) {
	e, err := t.lookup(a)
	if err != nil {
		return unresolved, err
	}
	if e == nil {
		return 0, nil
	}
	if e.kind != format.KindDir {
		return unresolved, nil
	}
	return e.child, nil
}

// Index returns the address of the row'th child of parent. The parent must
// be the root or an expanded directory.
func (t *Tree) Index(row, column int, parent Address) (Address, error) {
	slot, err := t.childSlot(parent)
	if err != nil {
		return Address{}, err
	}
	if slot == unresolved || row < 0 || row >= len(t.dirs[slot].entries) {
		return Address{}, fmt.Errorf("%w: row %d of %s", ErrInvalidAddress, row, parent)
	}
	if column < 0 || column >= len(t.fields) {
		column = 0
	}
	return At(slot, row, column), nil
}

// Parent returns the address of the directory holding a. The root's parent
// is the root.
func (t *Tree) Parent(a Address) Address {
	if a.IsRoot() || a.slot <= 0 || a.slot >= len(t.dirs) {
		return Root()
	}
	dir := t.dirs[a.slot]
	return At(dir.parentSlot, dir.parentRow, a.column)
}

// RowCount returns the number of loaded children of a. Files and
// directories not yet expanded have none.
func (t *Tree) RowCount(a Address) int {
	slot, err := t.childSlot(a)
	if err != nil || slot == unresolved {
		return 0
	}
	return len(t.dirs[slot].entries)
}

// HasChildren reports whether a may have children: the root, and any
// directory that is unexpanded or non-empty.
func (t *Tree) HasChildren(a Address) bool {
	e, err := t.lookup(a)
	if err != nil {
		return false
	}
	if e == nil {
		return len(t.dirs[0].entries) > 0
	}
	if e.kind != format.KindDir {
		return false
	}
	return e.child == unresolved || len(t.dirs[e.child].entries) > 0
}

// ColumnCount returns the number of metadata fields.
func (t *Tree) ColumnCount() int {
	return len(t.fields)
}

// Fields returns the field schema: file fields, then directory-only fields.
func (t *Tree) Fields() []format.MetaName {
	return t.fields
}

// HeaderData returns the field name of column.
func (t *Tree) HeaderData(column int) string {
	if column < 0 || column >= len(t.fields) {
		return ""
	}
	return string(t.fields[column])
}

// Data returns the value of a's column field. ok is false for the root,
// invalid addresses and fields the entry does not carry.
func (t *Tree) Data(a Address) (v format.Value, ok bool) {
	e, err := t.lookup(a)
	if err != nil || e == nil || a.column < 0 || a.column >= len(t.fields) {
		return format.Value{}, false
	}
	v, ok = e.meta[t.fields[a.column]]
	return v, ok
}

// Metadata returns every field of the entry at a.
func (t *Tree) Metadata(a Address) (format.Metadata, error) {
	e, err := t.lookup(a)
	if err != nil {
		return nil, err
	}
	if e == nil {
		h, err := t.handle()
		if err != nil {
			return nil, err
		}
		return h.VolumeMetadata(), nil
	}
	return e.meta, nil
}

// FileName returns the entry's name, or "" for the root.
func (t *Tree) FileName(a Address) string {
	e, err := t.lookup(a)
	if err != nil || e == nil {
		return ""
	}
	return e.name
}

// IsDirectory reports whether a is the root or a directory entry.
func (t *Tree) IsDirectory(a Address) bool {
	e, err := t.lookup(a)
	if err != nil {
		return false
	}
	return e == nil || e.kind == format.KindDir
}

// IsResolved reports whether a directory's children have been loaded.
func (t *Tree) IsResolved(a Address) bool {
	slot, err := t.childSlot(a)
	return err == nil && slot != unresolved
}

// RequestExpand loads the children of an unexpanded directory. Expanding a
// loaded directory, a file or the root does nothing.
func (t *Tree) RequestExpand(a Address) error {
	e, err := t.lookup(a)
	if err != nil {
		return err
	}
	if e == nil || e.kind != format.KindDir || e.child != unresolved {
		return nil
	}
	if _, err := t.loadDirectory(a.slot, a.row); err != nil {
		return fmt.Errorf("failed to expand %s: %w", strings.Join(t.pathOf(a.slot, a.row), "/"), err)
	}
	return nil
}

// SetExpanded records whether a presentation shows a as open. Loaded
// children are kept either way.
func (t *Tree) SetExpanded(a Address, expanded bool) error {
	e, err := t.lookup(a)
	if err != nil {
		return err
	}
	if e != nil {
		e.expanded = expanded
	}
	return nil
}

// IsExpanded returns the flag set by SetExpanded.
func (t *Tree) IsExpanded(a Address) bool {
	e, err := t.lookup(a)
	return err == nil && e != nil && e.expanded
}

// ResolvePath returns the names from the root down to a. The root resolves
// to an empty path.
func (t *Tree) ResolvePath(a Address) ([]string, error) {
	e, err := t.lookup(a)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return []string{}, nil
	}
	return t.pathOf(a.slot, a.row), nil
}

// Find walks path from the root, expanding directories on the way. Names
// match exactly first, then case-insensitively.
func (t *Tree) Find(path []string) (Address, error) {
	a := Root()
	for _, name := range path {
		if name == "" {
			continue
		}
		if err := t.RequestExpand(a); err != nil {
			return Address{}, err
		}
		slot, err := t.childSlot(a)
		if err != nil {
			return Address{}, err
		}
		if slot == unresolved {
			return Address{}, fmt.Errorf("%s: %w", strings.Join(path, "/"), format.ErrNotDir)
		}
		row := findRow(t.dirs[slot].entries, name)
		if row < 0 {
			return Address{}, fmt.Errorf("%s: %w", strings.Join(path, "/"), format.ErrNotFound)
		}
		a = At(slot, row, 0)
	}
	return a, nil
}

func findRow(entries []entry, name string) int {
	for i := range entries {
		if entries[i].name == name {
			return i
		}
	}
	for i := range entries {
		if strings.EqualFold(entries[i].name, name) {
			return i
		}
	}
	return -1
}

// ReadFile returns the contents of the file at a.
func (t *Tree) ReadFile(a Address) ([]byte, error) {
	e, err := t.lookup(a)
	if err != nil {
		return nil, err
	}
	if e == nil || e.kind != format.KindFile {
		return nil, ErrNotFile
	}
	h, err := t.handle()
	if err != nil {
		return nil, err
	}
	return h.ReadFile(t.pathOf(a.slot, a.row))
}

// Image returns the mounted image, or nil once detached.
func (t *Tree) Image() MountedImage {
	return t.image
}

// Detach hands the mounted image to the caller. The tree keeps its loaded
// entries but can no longer expand, read or extract.
func (t *Tree) Detach() MountedImage {
	img := t.image
	t.image = nil
	return img
}

// Close closes the mounted image if the tree still owns it.
func (t *Tree) Close() error {
	img := t.Detach()
	if img == nil {
		return nil
	}
	return img.Close()
}
