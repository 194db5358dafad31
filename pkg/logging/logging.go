// Package logging builds the logger used by foldersync runs.
package logging

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// maxLogFileMegabytes is the size at which the log file is rotated.
	maxLogFileMegabytes = 10

	// maxLogFileBackups is the number of rotated log files that are kept.
	maxLogFileBackups = 5
)

// Options configures New.
type Options struct {
	// LogFile is the path of the rotating log file. No file is written if
	// it's empty.
	LogFile string

	// Verbose enables Debug events.
	Verbose bool

	// Console receives a copy of every event. It defaults to stderr.
	Console io.Writer
}

// New creates a logger that writes to the console and, if configured, to a
// rotating log file. The returned Closer releases the log file.
func New(opts Options) (*log.Logger, io.Closer) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	logger := log.New()
	logger.SetFormatter(&log.TextFormatter{
		// Show the full timestamp so that lines in the log file can be
		// correlated with the sync interval.
		FullTimestamp: true,

		// The same output goes to a file, which shouldn't contain escape
		// codes.
		DisableColors: true,
	})
	if opts.Verbose {
		logger.SetLevel(log.DebugLevel)
	}

	if opts.LogFile == "" {
		logger.SetOutput(console)
		return logger, nopCloser{}
	}

	logFile := &lumberjack.Logger{
		Filename:   opts.LogFile,
		MaxSize:    maxLogFileMegabytes,
		MaxBackups: maxLogFileBackups,
	}
	logger.SetOutput(io.MultiWriter(console, logFile))
	return logger, logFile
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
