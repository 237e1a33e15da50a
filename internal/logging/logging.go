// Package logging wraps the standard log package with a text/JSON format
// switch, the same small abstraction the teacher project uses so every
// component logs through one place regardless of output format.
package logging

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"time"
)

// Format represents the logging output format.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Logger wraps the standard logger with format options.
type Logger struct {
	format Format
	writer io.Writer
}

var defaultLogger = &Logger{
	format: FormatText,
	writer: os.Stderr,
}

// SetFormat sets the logging format globally.
func SetFormat(format Format) {
	defaultLogger.format = format
}

// SetWriter sets the output writer.
func SetWriter(w io.Writer) {
	defaultLogger.writer = w
	log.SetOutput(w)
}

// LogEntry is a structured log entry for JSON output.
type LogEntry struct {
	Timestamp string      `json:"timestamp"`
	Level     string      `json:"level"`
	Component string      `json:"component"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
}

// UpdateLogEntry is a structured entry for one applied database update.
type UpdateLogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Component string `json:"component"`
	Database  string `json:"database"`
	Time      int64  `json:"time"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// Info logs an info message.
func Info(component, message string, data interface{}) {
	if defaultLogger.format == FormatJSON {
		entry := LogEntry{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Level:     "info",
			Component: component,
			Message:   message,
			Data:      data,
		}
		jsonBytes, _ := json.Marshal(entry)
		defaultLogger.writer.Write(append(jsonBytes, '\n'))
	} else {
		log.Printf("[%s] %s", component, message)
	}
}

// UpdateResult logs one applied (or failed) database update.
func UpdateResult(database string, t int64, success bool, errMsg string) {
	if defaultLogger.format == FormatJSON {
		entry := UpdateLogEntry{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Level:     "info",
			Component: "UpdateCache",
			Database:  database,
			Time:      t,
			Success:   success,
			Error:     errMsg,
		}
		jsonBytes, _ := json.Marshal(entry)
		defaultLogger.writer.Write(append(jsonBytes, '\n'))
	} else {
		if success {
			log.Printf("[UpdateCache] %s: committed t=%d", database, t)
		} else {
			log.Printf("[UpdateCache] %s: FAILED t=%d - %s", database, t, errMsg)
		}
	}
}

// Error logs an error message.
func Error(component, message string, err error) {
	errStr := ""
	if err != nil {
		errStr = err.Error()
	}

	if defaultLogger.format == FormatJSON {
		entry := LogEntry{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Level:     "error",
			Component: component,
			Message:   message,
			Data:      map[string]string{"error": errStr},
		}
		jsonBytes, _ := json.Marshal(entry)
		defaultLogger.writer.Write(append(jsonBytes, '\n'))
	} else {
		if err != nil {
			log.Printf("[%s] %s: %v", component, message, err)
		} else {
			log.Printf("[%s] %s", component, message)
		}
	}
}

// GetFormat returns the current logging format.
func GetFormat() Format {
	return defaultLogger.format
}
