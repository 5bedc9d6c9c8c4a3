//go:build linux || darwin

// Command flopview-mount serves an image as a read-only FUSE filesystem
// until interrupted.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/jgarman/flopview/internal/catalog"
	"github.com/jgarman/flopview/internal/config"
	"github.com/jgarman/flopview/internal/diskmanager"
	"github.com/jgarman/flopview/internal/formats/all"
	"github.com/jgarman/flopview/internal/fusefs"
	"github.com/jgarman/flopview/internal/imagetree"
	"github.com/jgarman/flopview/internal/logging"
	"github.com/jgarman/flopview/internal/source"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = pflag.String("config", config.DefaultPath(), "configuration file (.json or .yaml)")
		formatName = pflag.StringP("format", "f", "", "image format (default: best identified)")
		fsName     = pflag.String("fs", "", "filesystem (default: first readable for the format)")
		allowOther = pflag.Bool("allow-other", false, "let other users access the mount")
		logLevel   = pflag.String("log-level", "", "log level (overrides the configuration)")
	)
	pflag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: flopview-mount [flags] <image> <mountpoint>")
		pflag.PrintDefaults()
	}
	pflag.Parse()
	if pflag.NArg() != 2 {
		pflag.Usage()
		return fmt.Errorf("expected an image and a mountpoint")
	}
	imagePath, mountpoint := pflag.Arg(0), pflag.Arg(1)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := logging.Init(cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Sync()

	im, err := source.Open(imagePath)
	if err != nil {
		return err
	}
	mgr := diskmanager.New(catalog.New(all.Library{Media: cfg.FAT32Media()}))
	sel, err := mgr.Select(im.Reader(), im.Hint(), *formatName, *fsName)
	if err != nil {
		return err
	}
	img, err := mgr.Mount(im.Reader(), sel.Format, sel.FileSystem)
	if err != nil {
		return err
	}
	tree, err := imagetree.New(img)
	if err != nil {
		img.Close()
		return err
	}
	defer tree.Close()

	server, err := fusefs.Mount(fusefs.New(tree), fusefs.Options{
		Mountpoint: mountpoint,
		AllowOther: *allowOther,
		Name:       im.Name,
	})
	if err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		if err := server.Unmount(); err != nil {
			logging.L().Error("unmount failed", zap.Error(err))
		}
	}()

	server.Wait()
	logging.L().Info("unmounted", zap.String("mountpoint", mountpoint))
	return nil
}
