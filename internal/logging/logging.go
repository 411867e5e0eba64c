// Package logging builds the process log writer.
//
// The MCP transport owns stdout, so nothing here may ever write to it:
// logs go to a rotating file, optionally tee'd to stderr. Components make
// their own prefixed loggers over the shared writer.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Writer returns the shared log destination: a size-rotated file at path,
// tee'd to stderr when verbose is set.
func Writer(path string, verbose bool) io.Writer {
	file := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}
	if verbose {
		return io.MultiWriter(file, os.Stderr)
	}
	return file
}

// Component returns a logger with a bracketed component prefix over the
// shared writer.
func Component(w io.Writer, name string) *log.Logger {
	return log.New(w, "["+name+"] ", log.LstdFlags)
}
