package config

import (
	"errors"
	"fmt"
	"strings"
)

var ErrBadRecent = errors.New("malformed recent file entry")

// Recent is an image opened with an explicit format and filesystem.
type Recent struct {
	Format     string
	FileSystem string
	Path       string
}

// String encodes r as "format,filesystem,path".
func (r Recent) String() string {
	return r.Format + "," + r.FileSystem + "," + r.Path
}

// ParseRecent decodes a "format,filesystem,path" entry. The path may itself
// contain commas.
func ParseRecent(s string) (Recent, error) {
	parts := strings.SplitN(s, ",", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Recent{}, fmt.Errorf("%w: %q", ErrBadRecent, s)
	}
	return Recent{Format: parts[0], FileSystem: parts[1], Path: parts[2]}, nil
}

// AddRecent moves r to the front of the recent list, dropping any older
// entry for the same path and trimming the list to MaxRecentFiles.
func (c *Config) AddRecent(r Recent) {
	list := []string{r.String()}
	for _, s := range c.RecentFiles {
		if old, err := ParseRecent(s); err == nil && old.Path == r.Path {
			continue
		}
		if len(list) == MaxRecentFiles {
			break
		}
		list = append(list, s)
	}
	c.RecentFiles = list
}

// Recents returns the parseable recent entries, newest first.
func (c *Config) Recents() []Recent {
	var out []Recent
	for _, s := range c.RecentFiles {
		if r, err := ParseRecent(s); err == nil {
			out = append(out, r)
		}
	}
	return out
}
