// Command flopview inspects floppy and removable-disk images: it identifies
// their format, lists and reads files and extracts them to the host.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/jgarman/flopview/internal/config"
	"github.com/jgarman/flopview/internal/logging"
)

var errUsage = errors.New("usage")

type command struct {
	name    string
	args    string
	summary string
	run     func(app *app, fs *pflag.FlagSet, args []string) error
}

var commands = []command{
	{"formats", "", "list known formats and filesystems", runFormats},
	{"identify", "<image>", "score an image against every format", runIdentify},
	{"ls", "<image> [path]", "list the files of an image", runList},
	{"cat", "<image> <path>", "write a file's contents to stdout", runCat},
	{"extract", "<image> <path> <dest>", "copy a file or directory to the host", runExtract},
	{"recent", "[n [path]]", "show recent images, or reopen entry n", runRecent},
	{"mkimage", "<image> <dir>", "build a new image from a host directory", runMkImage},
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: flopview <command> [flags] [args]")
	fmt.Fprintln(w)
	for _, c := range commands {
		fmt.Fprintf(w, "  %-9s %-24s %s\n", c.name, c.args, c.summary)
	}
}

// run dispatches args to a command writing to stdout.
func run(args []string, stdout io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		usage(os.Stderr)
		if len(args) == 0 {
			return errUsage
		}
		return nil
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == args[0] {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		usage(os.Stderr)
		return fmt.Errorf("unknown command %q", args[0])
	}

	app := &app{stdout: stdout}
	flagSet := pflag.NewFlagSet("flopview "+cmd.name, pflag.ContinueOnError)
	app.addFlags(flagSet)
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: flopview %s [flags] %s\n\n", cmd.name, cmd.args)
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	cfg, err := config.Load(app.configPath)
	if err != nil {
		return err
	}
	app.cfg = cfg
	logCfg := cfg.Logging
	if app.logLevel != "" {
		logCfg.Level = app.logLevel
	}
	if err := logging.Init(logCfg); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Sync()

	return cmd.run(app, flagSet, flagSet.Args())
}
