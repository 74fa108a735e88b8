// Package logging provides centralized logging functionality using logrus.
// It configures the output, formatter and level of the standard logger and
// provides helpers that tag entries with the program name.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
)

var startTime = time.Now().Format("2006-01-02T15:04:05")

// programName is used as a field in all log entries for identification
var programName = filepath.Base(os.Args[0]) + "-" + startTime

// LogInfo logs an informational message with the programName field.
func LogInfo(msg string) {
	log.WithFields(log.Fields{"job": programName}).Info(msg)
}

// LogError logs a recoverable error message with the programName field.
func LogError(msg string) {
	log.WithFields(log.Fields{"job": programName}).Error(msg)
}

// PrepareLogs configures the standard logger.
//
// Parameters:
//   - logName: optional log file path; when set, entries go to both stdout
//     and the file (created if missing, appended otherwise)
//   - format: "json" or "text"
//   - level: any level accepted by logrus.ParseLevel
//
// Returns an error if the log file cannot be opened or format or level is
// invalid. The logger is left untouched on error.
func PrepareLogs(logName, format, level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	var formatter log.Formatter
	switch format {
	case "json":
		formatter = &log.JSONFormatter{}
	case "text":
		formatter = &log.TextFormatter{FullTimestamp: true}
	default:
		return fmt.Errorf("invalid log format: %s", format)
	}

	var out io.Writer = os.Stdout
	if logName != "" {
		logFile, err := os.OpenFile(logName, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		out = io.MultiWriter(os.Stdout, logFile)
	}

	log.SetOutput(out)
	log.SetFormatter(formatter)
	log.SetLevel(lvl)
	return nil
}
