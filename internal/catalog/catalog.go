// Package catalog holds the categorized lists of disk formats and filesystems
// known to a format library. A Catalog is built once and is read-only
// afterward.
package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jgarman/flopview/internal/format"
)

// FloppyFormat describes a disk encoding and the category it was registered in.
type FloppyFormat struct {
	category string
	impl     format.Format
}

func (f *FloppyFormat) Name() string          { return f.impl.Name() }
func (f *FloppyFormat) Description() string   { return f.impl.Description() }
func (f *FloppyFormat) Extensions() []string  { return f.impl.Extensions() }
func (f *FloppyFormat) Category() string      { return f.category }
func (f *FloppyFormat) Format() format.Format { return f.impl }

// FileSystem describes a filesystem and the category it was registered in.
type FileSystem struct {
	category string
	impl     format.FileSystem
}

func (f *FileSystem) Name() string                  { return f.impl.Name() }
func (f *FileSystem) Description() string           { return f.impl.Description() }
func (f *FileSystem) CanRead() bool                 { return f.impl.CanRead() }
func (f *FileSystem) Category() string              { return f.category }
func (f *FileSystem) FileSystem() format.FileSystem { return f.impl }

// Category is a named, ordered group of items.
type Category[T any] struct {
	Name  string
	Items []T
}

// Catalog is the set of formats and filesystems a library registered.
type Catalog struct {
	formats     []Category[*FloppyFormat]
	fileSystems []Category[*FileSystem]
}

// builder implements format.Enumerator.
type builder struct {
	c        *Catalog
	category string
}

func (b *builder) Category(name string) {
	b.category = name
}

func (b *builder) AddFormat(f format.Format) {
	cat := findOrAppend(&b.c.formats, b.category)
	cat.Items = append(cat.Items, &FloppyFormat{category: b.category, impl: f})
}

func (b *builder) AddFileSystem(fs format.FileSystem) {
	cat := findOrAppend(&b.c.fileSystems, b.category)
	cat.Items = append(cat.Items, &FileSystem{category: b.category, impl: fs})
}

func findOrAppend[T any](cats *[]Category[T], name string) *Category[T] {
	for i := range *cats {
		if (*cats)[i].Name == name {
			return &(*cats)[i]
		}
	}
	*cats = append(*cats, Category[T]{Name: name})
	return &(*cats)[len(*cats)-1]
}

// New enumerates lib and returns the resulting catalog. Categories are sorted
// by name; items keep registration order within their category.
func New(lib format.Library) *Catalog {
	c := &Catalog{}
	lib.Enumerate(&builder{c: c})

	sort.SliceStable(c.formats, func(i, j int) bool {
		return c.formats[i].Name < c.formats[j].Name
	})
	sort.SliceStable(c.fileSystems, func(i, j int) bool {
		return c.fileSystems[i].Name < c.fileSystems[j].Name
	})
	return c
}

// Formats returns the format categories. The slice must not be modified.
func (c *Catalog) Formats() []Category[*FloppyFormat] {
	return c.formats
}

// FileSystems returns the filesystem categories. The slice must not be modified.
func (c *Catalog) FileSystems() []Category[*FileSystem] {
	return c.fileSystems
}

// FindFormat looks a format up by name.
func (c *Catalog) FindFormat(name string) *FloppyFormat {
	for _, cat := range c.formats {
		for _, f := range cat.Items {
			if f.Name() == name {
				return f
			}
		}
	}
	return nil
}

// FindFileSystem looks a filesystem up by name.
func (c *Catalog) FindFileSystem(name string) *FileSystem {
	for _, cat := range c.fileSystems {
		for _, fs := range cat.Items {
			if fs.Name() == name {
				return fs
			}
		}
	}
	return nil
}

// FirstReadableFileSystem returns the first filesystem in the named category
// that can be read, or nil.
func (c *Catalog) FirstReadableFileSystem(category string) *FileSystem {
	for _, cat := range c.fileSystems {
		if cat.Name != category {
			continue
		}
		for _, fs := range cat.Items {
			if fs.CanRead() {
				return fs
			}
		}
	}
	return nil
}

// NameFilters returns one open-dialog style filter per format, prefixed by
// an "All files" entry, e.g. "PC: Raw sector image (*.img *.ima)".
func (c *Catalog) NameFilters() []string {
	results := []string{"All files (*)"}
	for _, cat := range c.formats {
		for _, f := range cat.Items {
			patterns := make([]string, 0, len(f.Extensions()))
			for _, ext := range f.Extensions() {
				patterns = append(patterns, "*."+ext)
			}
			results = append(results, fmt.Sprintf("%s: %s (%s)", cat.Name, f.Description(), strings.Join(patterns, " ")))
		}
	}
	return results
}
