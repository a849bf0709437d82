// Package errlog appends one line per failed job to a plain-text log:
//
//	<path>;<message>;<trace>
//
// Appends are serialized in-process with a mutex and across processes with
// an advisory lock on <log>.lock.
package errlog

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
)

const (
	// ConversionLogName is the default error log of the convert command.
	ConversionLogName = "conversion_errors.log"
	// SortLogName is the default error log of the sort command.
	SortLogName = "sort_errors.log"
)

// Entry is one failure.
type Entry struct {
	Path    string
	Message string
	Trace   string
}

// Log is an append-only error log. A nil *Log discards entries.
type Log struct {
	path string
	lock *flock.Flock

	mu    sync.Mutex
	count int
}

// Open prepares the log at path, creating its directory. The file itself
// is created on the first Append.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create error log directory: %w", err)
	}
	return &Log{path: path, lock: flock.New(path + ".lock")}, nil
}

// Path returns the log file path.
func (l *Log) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Count returns the number of entries appended through l.
func (l *Log) Count() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Append writes e as a single line.
func (l *Log) Append(e Entry) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.lock.Lock(); err != nil {
		return fmt.Errorf("lock error log: %w", err)
	}
	defer func() { _ = l.lock.Unlock() }()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open error log: %w", err)
	}
	if _, err := f.WriteString(Format(e) + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("write error log: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close error log: %w", err)
	}
	l.count++
	return nil
}

// Format renders e without its trailing newline. Line breaks inside fields
// are escaped so an entry always stays on one line.
func Format(e Entry) string {
	return escape(e.Path) + ";" + escape(e.Message) + ";" + escape(e.Trace)
}

var escaper = strings.NewReplacer("\r\n", `\n`, "\n", `\n`, "\r", `\n`)

func escape(s string) string {
	return escaper.Replace(strings.TrimSpace(s))
}

// Read parses every entry of the log at path. A missing file yields no entries.
func Read(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ";", 3)
		e := Entry{Path: parts[0]}
		if len(parts) > 1 {
			e.Message = parts[1]
		}
		if len(parts) > 2 {
			e.Trace = parts[2]
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}
