package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/jgarman/flopview/internal/format"
	"github.com/jgarman/flopview/internal/formats/fat"
	"github.com/jgarman/flopview/internal/formats/fat32"
	"github.com/jgarman/flopview/internal/imagetree"
	"github.com/jgarman/flopview/internal/source"
)

var ErrIncomplete = errors.New("extraction incomplete")

func wantArgs(args []string, min, max int) error {
	if len(args) < min || len(args) > max {
		return fmt.Errorf("%w: expected %d to %d arguments, got %d", errUsage, min, max, len(args))
	}
	return nil
}

func runFormats(a *app, _ *pflag.FlagSet, args []string) error {
	if err := wantArgs(args, 0, 0); err != nil {
		return err
	}
	a.printer().Formats(a.manager().Catalog())
	return nil
}

func runIdentify(a *app, _ *pflag.FlagSet, args []string) error {
	if err := wantArgs(args, 1, 1); err != nil {
		return err
	}
	im, err := source.Open(args[0])
	if err != nil {
		return err
	}
	mgr := a.manager()
	results := mgr.Identify(im.Reader(), im.Hint())
	sel, ok := mgr.DefaultSelection(results)
	if im.Compression != source.None {
		fmt.Fprintf(a.stdout, "%s compressed, %d bytes\n", im.Compression, len(im.Data))
	}
	a.printer().Identify(results, sel, ok)
	return nil
}

func runList(a *app, _ *pflag.FlagSet, args []string) error {
	if err := wantArgs(args, 1, 2); err != nil {
		return err
	}
	tree, err := a.open(args[0])
	if err != nil {
		return err
	}
	defer tree.Close()
	return listTree(a, tree, args[1:])
}

// listTree prints the volume, or the directory or file named by rest.
func listTree(a *app, tree *imagetree.Tree, rest []string) error {
	addr := imagetree.Root()
	if len(rest) == 1 {
		var err error
		if addr, err = tree.Find(splitPath(rest[0])); err != nil {
			return err
		}
		if !tree.IsDirectory(addr) {
			// a file prints its metadata
			return listFile(a, tree, addr)
		}
	} else if meta, err := tree.Metadata(addr); err == nil && meta.GetString(format.MetaNameName) != "" {
		fmt.Fprintf(a.stdout, "Volume %s\n", meta.GetString(format.MetaNameName))
	}
	a.printer().Tree(tree, addr, a.depth)
	return nil
}

func listFile(a *app, tree *imagetree.Tree, addr imagetree.Address) error {
	meta, err := tree.Metadata(addr)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, tree.FileName(addr))
	for _, f := range tree.Fields() {
		if v, ok := meta[f]; ok {
			fmt.Fprintf(a.stdout, "  %-18s %s\n", f, v)
		}
	}
	return nil
}

func runCat(a *app, _ *pflag.FlagSet, args []string) error {
	if err := wantArgs(args, 2, 2); err != nil {
		return err
	}
	tree, err := a.open(args[0])
	if err != nil {
		return err
	}
	defer tree.Close()

	addr, err := tree.Find(splitPath(args[1]))
	if err != nil {
		return err
	}
	data, err := tree.ReadFile(addr)
	if err != nil {
		return fmt.Errorf("%s: %w", args[1], err)
	}
	_, err = a.stdout.Write(data)
	return err
}

func runExtract(a *app, _ *pflag.FlagSet, args []string) error {
	if err := wantArgs(args, 3, 3); err != nil {
		return err
	}
	tree, err := a.open(args[0])
	if err != nil {
		return err
	}
	defer tree.Close()

	addr, err := tree.Find(splitPath(args[1]))
	if err != nil {
		return err
	}
	report, err := tree.Extract(addr, args[2], !a.noRootName)
	if err != nil {
		return err
	}
	a.printer().Report(report)
	if !report.OK() {
		return fmt.Errorf("%w: %d failures", ErrIncomplete, len(report.Failures()))
	}
	return nil
}

// runRecent prints the recent file list, or reopens entry n and lists it.
func runRecent(a *app, _ *pflag.FlagSet, args []string) error {
	if err := wantArgs(args, 0, 2); err != nil {
		return err
	}
	if len(args) == 0 {
		a.printer().Recent(a.cfg.Recents())
		return nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("%w: entry %q is not a number", errUsage, args[0])
	}
	tree, err := a.openRecent(n)
	if err != nil {
		return err
	}
	defer tree.Close()
	return listTree(a, tree, args[1:])
}

// readTree loads every regular file under dir keyed by its slash separated
// relative path.
func readTree(dir string) (map[string][]byte, error) {
	files := make(map[string][]byte)
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = data
		return nil
	})
	return files, err
}

func runMkImage(a *app, _ *pflag.FlagSet, args []string) error {
	if err := wantArgs(args, 2, 2); err != nil {
		return err
	}
	if _, err := os.Stat(args[0]); err == nil {
		return fmt.Errorf("%s already exists", args[0])
	}
	files, err := readTree(args[1])
	if err != nil {
		return err
	}

	if a.media == "" || strings.EqualFold(a.media, "1.44M") {
		err = fat.BuildFloppy(args[0], a.label, files)
	} else {
		size := mediaSize(a.media, fat32.DefaultMedia, a.cfg.FAT32Media())
		if size == 0 {
			return fmt.Errorf("unknown media %q", a.media)
		}
		err = fat32.CreateImage(args[0], size, a.label, files)
	}
	if err != nil {
		os.Remove(args[0])
		return err
	}
	fmt.Fprintf(a.stdout, "%s: %d files\n", args[0], len(files))
	return nil
}

// mediaSize returns the size of the named medium, later lists overriding
// earlier ones, or 0.
func mediaSize(name string, lists ...[]fat32.Media) int64 {
	var size int64
	for _, list := range lists {
		for _, m := range list {
			if strings.EqualFold(m.Name, name) {
				size = m.Size
			}
		}
	}
	return size
}
