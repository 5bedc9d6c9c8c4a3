package fat32

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"sort"

	diskfs "github.com/diskfs/go-diskfs"
	"github.com/diskfs/go-diskfs/disk"
	"github.com/diskfs/go-diskfs/filesystem"
)

// CreateImage writes a new superfloppy image of size bytes at imagePath,
// formatted FAT32 and populated with files. Keys of files are slash
// separated paths; parent directories are created as needed.
//
// Example usage:
//
//	err := fat32.CreateImage("zip.img", 100663296, "BACKUP", map[string][]byte{
//		"DOCS/README.TXT": []byte("hello"),
//	})
func CreateImage(imagePath string, size int64, label string, files map[string][]byte) error {
	d, err := diskfs.Create(imagePath, size, diskfs.SectorSizeDefault)
	if err != nil {
		return fmt.Errorf("failed to create disk: %w", err)
	}
	defer d.Close()

	fs, err := d.CreateFilesystem(disk.FilesystemSpec{
		Partition:   0,
		FSType:      filesystem.TypeFat32,
		VolumeLabel: label,
	})
	if err != nil {
		return fmt.Errorf("failed to create filesystem: %w", err)
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p := path.Clean("/" + name)
		if dir := path.Dir(p); dir != "/" {
			if err := ensureDir(fs, dir); err != nil {
				return err
			}
		}
		if err := writeFile(fs, p, files[name]); err != nil {
			return err
		}
	}
	return nil
}

// ensureDir creates dirPath and its parents, ignoring ones that exist.
func ensureDir(fs filesystem.FileSystem, dirPath string) error {
	current := "/"
	for _, part := range splitPath(dirPath) {
		current = path.Join(current, part)
		if err := fs.Mkdir(current); err != nil && !os.IsExist(err) {
			return fmt.Errorf("failed to create directory %s: %w", current, err)
		}
	}
	return nil
}

func splitPath(p string) []string {
	var parts []string
	for {
		dir, file := path.Split(p)
		if file != "" {
			parts = append([]string{file}, parts...)
		}
		if dir == "" || dir == "/" {
			return parts
		}
		p = path.Clean(dir)
	}
}

func writeFile(fs filesystem.FileSystem, p string, data []byte) error {
	f, err := fs.OpenFile(p, os.O_CREATE|os.O_RDWR|os.O_TRUNC)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", p, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write file %s: %w", p, err)
	}
	return nil
}
