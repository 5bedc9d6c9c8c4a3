// Package all bundles every format and filesystem flopview ships with.
package all

import (
	"github.com/jgarman/flopview/internal/format"
	"github.com/jgarman/flopview/internal/formats/fat"
	"github.com/jgarman/flopview/internal/formats/fat32"
	"github.com/jgarman/flopview/internal/formats/pc"
)

// Library enumerates the PC formats and filesystems. Media lists extra FAT32
// sizes on top of fat32.DefaultMedia.
type Library struct {
	Media []fat32.Media
}

func (l Library) Enumerate(e format.Enumerator) {
	e.Category("PC")
	e.AddFormat(pc.Raw{})
	e.AddFormat(pc.IMD{})
	e.AddFileSystem(fat.FileSystem{})
	e.AddFileSystem(fat32.New(l.Media...))
	e.AddFileSystem(pc.Unformatted{})
}
