// Package logging sets up the application's loggers: a rotating log file
// shared by all components, with per-component prefixes.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where the shared log goes and when it rotates.
type Options struct {
	File       string
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
	// Verbose mirrors the log to stderr as well.
	Verbose bool
}

// Setup wires the shared log destination. It returns a closer for the
// rotating file.
func Setup(opts Options) (io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
		return nil, err
	}

	rotator := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxAge:     opts.MaxAgeDays,
		MaxBackups: opts.MaxBackups,
		Compress:   true,
	}

	var out io.Writer = rotator
	if opts.Verbose {
		out = io.MultiWriter(rotator, os.Stderr)
	}
	sink = out
	return rotator, nil
}

// sink defaults to stderr until Setup runs, so early failures are visible.
var sink io.Writer = os.Stderr

// For returns a logger for one component, e.g. For("vault") writes lines
// prefixed "[vault] ".
func For(component string) *log.Logger {
	return log.New(sink, "["+component+"] ", log.LstdFlags)
}
