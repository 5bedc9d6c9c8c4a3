package fat

import (
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	gofs "github.com/mitchellh/go-fs"
	gofat "github.com/mitchellh/go-fs/fat"
)

// FloppySize is the size of a 1.44M floppy image.
const FloppySize = 1474560

// BuildFloppy writes a new 1.44M FAT12 floppy image at imagePath holding
// files. Keys of files are slash separated paths; parent directories are
// created as needed.
//
// Example usage:
//
//	err := fat.BuildFloppy("disk.img", "GAMES", map[string][]byte{
//		"KEEN/KEEN.EXE": keen,
//	})
func BuildFloppy(imagePath, label string, files map[string][]byte) error {
	f, err := os.Create(imagePath)
	if err != nil {
		return fmt.Errorf("failed to create image: %w", err)
	}
	defer f.Close()
	if err := f.Truncate(FloppySize); err != nil {
		return fmt.Errorf("failed to size image: %w", err)
	}

	device, err := gofs.NewFileDisk(f)
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}
	err = gofat.FormatSuperFloppy(device, &gofat.SuperFloppyConfig{
		FATType: gofat.FAT12,
		Label:   label,
		OEMName: "flopview",
	})
	if err != nil {
		return fmt.Errorf("failed to format image: %w", err)
	}

	fs, err := gofat.New(device)
	if err != nil {
		return fmt.Errorf("failed to open filesystem: %w", err)
	}
	root, err := fs.RootDir()
	if err != nil {
		return fmt.Errorf("failed to open root directory: %w", err)
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		parts := strings.Split(strings.Trim(path.Clean("/"+name), "/"), "/")
		dir := root
		for _, part := range parts[:len(parts)-1] {
			if dir, err = subdir(dir, part); err != nil {
				return fmt.Errorf("failed to create directory for %s: %w", name, err)
			}
		}
		entry, err := dir.AddFile(parts[len(parts)-1])
		if err != nil {
			return fmt.Errorf("failed to add %s: %w", name, err)
		}
		w, err := entry.File()
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", name, err)
		}
		if _, err := w.Write(files[name]); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	return f.Sync()
}

func subdir(dir gofs.Directory, name string) (gofs.Directory, error) {
	entry := dir.Entry(name)
	if entry == nil {
		var err error
		if entry, err = dir.AddDirectory(name); err != nil {
			return nil, err
		}
	}
	return entry.Dir()
}
