package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

const usage = `Usage: logstat [-config file] [-version] <command> [flags]

Commands:
  analyze PATH...   summarize syslog files, directories or stdin (-)
  serve             run the HTTP API and TCP ingest with a persistent store
  version           print version information
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], stdio{in: os.Stdin, out: os.Stdout, err: os.Stderr})
	stop()
	os.Exit(code)
}

// run executes one command line and returns the process exit code.
func run(ctx context.Context, args []string, std stdio) int {
	fs := flag.NewFlagSet("logstat", flag.ContinueOnError)
	fs.SetOutput(std.err)
	configPath := fs.String("config", "", "config file (default is $HOME/.config/logstat/config.yml)")
	showVersion := fs.Bool("version", false, "print version information")
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *showVersion || fs.Arg(0) == "version" {
		printVersion(std.out)
		return 0
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(std.err, "Error loading config: %v\n", err)
		return 1
	}

	cmd, cmdArgs := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "analyze":
		cleanupLogger := configureRuntimeLogger(cfg)
		defer cleanupLogger()
		err = runAnalyze(ctx, cfg, cmdArgs, std)
	case "serve":
		cleanupLogger := configureRuntimeLogger(cfg)
		defer cleanupLogger()
		err = runServe(ctx, cfg, cmdArgs, std)
	default:
		fmt.Fprintf(std.err, "unknown command %q\n\n", cmd)
		fs.Usage()
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errInputsFailed):
		// Per-input errors are already on stderr.
		return 1
	default:
		fmt.Fprintf(std.err, "Error: %v\n", err)
		return 1
	}
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "logstat - Syslog Statistics\n")
	fmt.Fprintf(w, "  Version:    %s\n", version)
	fmt.Fprintf(w, "  Commit:     %s\n", commit)
	fmt.Fprintf(w, "  Built:      %s\n", buildTime)
	fmt.Fprintf(w, "  Go version: %s\n", goVersion)
}
