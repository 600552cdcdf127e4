// Package logging owns the process-wide structured logger. The TUI draws on
// stdout, so logs only ever go to a file.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// EnvDebug forces debug logging on when set to "1".
const EnvDebug = "SSHDOCK_DEBUG"

// Logger is shared by every package. It discards until Initialize enables it.
var Logger = log.New(io.Discard)

// Initialize points Logger at a log file. With debug off and no explicit file
// it keeps discarding. With no explicit file a uuid-named file is created in
// the state directory and older files beyond maxFiles are removed. It returns
// the path written to, or "" when discarding.
func Initialize(debug bool, file string, maxFiles int) (string, error) {
	if os.Getenv(EnvDebug) == "1" {
		debug = true
	}
	if !debug && file == "" {
		Logger = log.New(io.Discard)
		return "", nil
	}

	path := file
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return "", fmt.Errorf("log directory: %w", err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create log directory: %w", err)
		}
		if maxFiles > 0 {
			if err := rotate(dir, maxFiles); err != nil {
				fmt.Fprintf(os.Stderr, "warning: log rotation failed: %v\n", err)
			}
		}
		path = filepath.Join(dir, uuid.NewString()+".log")
	} else if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("open log file: %w", err)
	}

	Logger = New(f, debug)
	Logger.Info("logging initialized", "file", path)
	return path, nil
}

// New builds a JSON logger on w. It is exported for tests that want to
// capture output.
func New(w io.Writer, debug bool) *log.Logger {
	level := log.InfoLevel
	if debug {
		level = log.DebugLevel
	}
	return log.NewWithOptions(w, log.Options{
		Formatter:       log.JSONFormatter,
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339Nano,
	})
}

// rotate keeps at most maxFiles-1 .log files in dir so that the next file
// brings the count to maxFiles.
func rotate(dir string, maxFiles int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read log directory: %w", err)
	}

	type logFile struct {
		path    string
		modTime time.Time
	}
	var files []logFile
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".log" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, logFile{path: filepath.Join(dir, e.Name()), modTime: info.ModTime()})
	}
	if len(files) < maxFiles {
		return nil
	}

	sort.Slice(files, func(i, j int) bool { return files[i].modTime.Before(files[j].modTime) })
	excess := len(files) - maxFiles + 1
	for i := 0; i < excess; i++ {
		if err := os.Remove(files[i].path); err != nil {
			fmt.Fprintf(os.Stderr, "warning: remove old log %s: %v\n", files[i].path, err)
		}
	}
	return nil
}

// Dir returns the per-user state directory for logs and history.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Logs", "sshdock"), nil
	case "windows":
		base := os.Getenv("LOCALAPPDATA")
		if base == "" {
			base = filepath.Join(home, "AppData", "Local")
		}
		return filepath.Join(base, "sshdock", "logs"), nil
	default:
		state := os.Getenv("XDG_STATE_HOME")
		if state == "" {
			state = filepath.Join(home, ".local", "state")
		}
		return filepath.Join(state, "sshdock"), nil
	}
}
