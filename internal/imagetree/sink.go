package imagetree

import (
	"bufio"
	"fmt"
	"os"
)

// Sink receives extracted directories and files. Different implementations
// can write to the host filesystem, an archive, or memory.
type Sink interface {
	// Mkdir creates dir if it does not already exist.
	Mkdir(dir string) error

	// WriteFile writes a complete file, replacing any existing one.
	WriteFile(name string, data []byte) error
}

// DirSink writes to the host filesystem.
type DirSink struct{}

func (DirSink) Mkdir(dir string) error {
	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("%s exists and is not a directory", dir)
		}
		return nil
	}
	if err := os.Mkdir(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return nil
}

func (DirSink) WriteFile(name string, data []byte) error {
	file, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriterSize(file, 64*1024)
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush file: %w", err)
	}
	return file.Close()
}
