package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgarman/flopview/internal/format/formattest"
)

func testLibrary() formattest.Library {
	return formattest.Library{
		{Category: "PC", Format: &formattest.Format{ID: "pc_raw", Desc: "PC raw", Exts: []string{"img", "ima"}}},
		{Category: "Apple II", Format: &formattest.Format{ID: "a2_do", Desc: "Apple DOS order", Exts: []string{"do"}}},
		{Category: "PC", Format: &formattest.Format{ID: "imd", Desc: "ImageDisk", Exts: []string{"imd"}}},
		{Category: "PC", FileSystem: &formattest.FileSystem{ID: "unformatted", Desc: "Blank", Readable: false}},
		{Category: "PC", FileSystem: &formattest.FileSystem{ID: "fat", Desc: "FAT", Readable: true}},
		{Category: "Apple II", FileSystem: &formattest.FileSystem{ID: "prodos", Desc: "ProDOS", Readable: true}},
	}
}

func TestNewSortsCategoriesByName(t *testing.T) {
	c := New(testLibrary())

	formats := c.Formats()
	require.Len(t, formats, 2)
	assert.Equal(t, "Apple II", formats[0].Name)
	assert.Equal(t, "PC", formats[1].Name)

	fileSystems := c.FileSystems()
	require.Len(t, fileSystems, 2)
	assert.Equal(t, "Apple II", fileSystems[0].Name)
	assert.Equal(t, "PC", fileSystems[1].Name)
}

func TestNewKeepsRegistrationOrderWithinCategory(t *testing.T) {
	c := New(testLibrary())

	pc := c.Formats()[1]
	require.Len(t, pc.Items, 2)
	assert.Equal(t, "pc_raw", pc.Items[0].Name())
	assert.Equal(t, "imd", pc.Items[1].Name())
	assert.Equal(t, "PC", pc.Items[1].Category())

	pcfs := c.FileSystems()[1]
	require.Len(t, pcfs.Items, 2)
	assert.Equal(t, "unformatted", pcfs.Items[0].Name())
	assert.Equal(t, "fat", pcfs.Items[1].Name())
}

func TestFind(t *testing.T) {
	c := New(testLibrary())

	f := c.FindFormat("imd")
	require.NotNil(t, f)
	assert.Equal(t, "ImageDisk", f.Description())
	assert.Nil(t, c.FindFormat("nope"))

	fs := c.FindFileSystem("prodos")
	require.NotNil(t, fs)
	assert.True(t, fs.CanRead())
	assert.Equal(t, "Apple II", fs.Category())
	assert.Nil(t, c.FindFileSystem("nope"))
}

func TestFirstReadableFileSystem(t *testing.T) {
	c := New(testLibrary())

	fs := c.FirstReadableFileSystem("PC")
	require.NotNil(t, fs)
	assert.Equal(t, "fat", fs.Name())

	assert.Nil(t, c.FirstReadableFileSystem("Commodore"))
}

func TestNameFilters(t *testing.T) {
	c := New(testLibrary())

	assert.Equal(t, []string{
		"All files (*)",
		"Apple II: Apple DOS order (*.do)",
		"PC: PC raw (*.img *.ima)",
		"PC: ImageDisk (*.imd)",
	}, c.NameFilters())
}

func TestEmptyLibrary(t *testing.T) {
	c := New(formattest.Library{})
	assert.Empty(t, c.Formats())
	assert.Empty(t, c.FileSystems())
	assert.Equal(t, []string{"All files (*)"}, c.NameFilters())
}
