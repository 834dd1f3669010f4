package main

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// configureRuntimeLogger routes the standard logger to the rotating log file,
// falling back to stderr when the file cannot be created.
func configureRuntimeLogger(cfg appConfig) func() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	out := runtimeLogWriter(cfg)
	log.SetOutput(out)
	return func() {
		if lj, ok := out.(*lumberjack.Logger); ok {
			_ = lj.Close()
		}
		log.SetOutput(os.Stderr)
	}
}

func runtimeLogWriter(cfg appConfig) io.Writer {
	if cfg.LogFile == "" {
		return os.Stderr
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0755); err != nil {
		return os.Stderr
	}
	return &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
	}
}
