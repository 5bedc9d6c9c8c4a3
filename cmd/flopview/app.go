package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/jgarman/flopview/internal/catalog"
	"github.com/jgarman/flopview/internal/config"
	"github.com/jgarman/flopview/internal/diskmanager"
	"github.com/jgarman/flopview/internal/formats/all"
	"github.com/jgarman/flopview/internal/imagetree"
	"github.com/jgarman/flopview/internal/listing"
	"github.com/jgarman/flopview/internal/logging"
	"github.com/jgarman/flopview/internal/source"
)

var ErrNoRecent = errors.New("no such recent file")

// app holds the flags and state shared by every command.
type app struct {
	stdout io.Writer
	cfg    *config.Config

	configPath string
	logLevel   string
	formatName string
	fsName     string
	depth      int
	noRootName bool
	media      string
	label      string
}

func (a *app) addFlags(fs *pflag.FlagSet) {
	fs.StringVar(&a.configPath, "config", config.DefaultPath(), "configuration file (.json or .yaml)")
	fs.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.StringVarP(&a.formatName, "format", "f", "", "image format (default: best identified)")
	fs.StringVar(&a.fsName, "fs", "", "filesystem (default: first readable for the format)")
	fs.IntVarP(&a.depth, "depth", "d", -1, "ls: directory levels to show, negative for all")
	fs.BoolVar(&a.noRootName, "no-root-name", false, "extract: write into dest instead of dest/<name>")
	fs.StringVar(&a.media, "media", "", "mkimage: FAT32 media name (default: 1.44M FAT12 floppy)")
	fs.StringVar(&a.label, "label", "FLOPVIEW", "mkimage: volume label")
}

func (a *app) printer() *listing.Printer {
	return listing.New(a.stdout)
}

func (a *app) manager() *diskmanager.Manager {
	return diskmanager.New(catalog.New(all.Library{Media: a.cfg.FAT32Media()}))
}

// open reads, mounts and wraps the image at path and records it in the
// recent file list.
func (a *app) open(path string) (*imagetree.Tree, error) {
	im, err := source.Open(path)
	if err != nil {
		return nil, err
	}
	mgr := a.manager()
	sel, err := mgr.Select(im.Reader(), im.Hint(), a.formatName, a.fsName)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	img, err := mgr.Mount(im.Reader(), sel.Format, sel.FileSystem)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return a.wrap(path, img)
}

// openRecent reopens entry n of the recent file list, counting from 1, with
// the format and filesystem it was last mounted with.
func (a *app) openRecent(n int) (*imagetree.Tree, error) {
	list := a.cfg.Recents()
	if n < 1 || n > len(list) {
		return nil, fmt.Errorf("%w: %d of %d", ErrNoRecent, n, len(list))
	}
	r := list[n-1]
	im, err := source.Open(r.Path)
	if err != nil {
		return nil, err
	}
	img, err := a.manager().MountByName(im.Reader(), r.Format, r.FileSystem)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.Path, err)
	}
	return a.wrap(r.Path, img)
}

// wrap builds the tree for img and moves path to the top of the recent list.
func (a *app) wrap(path string, img *diskmanager.Image) (*imagetree.Tree, error) {
	tree, err := imagetree.New(img)
	if err != nil {
		img.Close()
		return nil, err
	}

	a.cfg.AddRecent(config.Recent{Format: img.Format().Name(), FileSystem: img.FileSystem().Name(), Path: path})
	if err := a.cfg.Save(a.configPath); err != nil {
		logging.L().Warn("could not save recent files", zap.Error(err))
	}
	return tree, nil
}

// splitPath turns "DOCS/A.TXT" or "/DOCS/A.TXT" into image path components.
func splitPath(p string) []string {
	var out []string
	for _, name := range strings.Split(p, "/") {
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}
