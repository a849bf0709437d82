// Package discovery walks source trees and yields candidate DICOM files.
package discovery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Filter selects which files are emitted.
type Filter string

const (
	// FilterExtension keeps files whose name contains ".dcm", any case.
	FilterExtension Filter = "extension"
	// FilterSniff keeps files carrying the DICM magic after the preamble.
	FilterSniff Filter = "sniff"
)

// AllFilters lists the supported filters.
var AllFilters = []Filter{FilterExtension, FilterSniff}

// ParseFilter validates a filter name.
func ParseFilter(s string) (Filter, error) {
	for _, f := range AllFilters {
		if strings.EqualFold(s, string(f)) {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown discovery filter %q, valid options: %v", s, AllFilters)
}

// Options configures Walk.
type Options struct {
	Filter         Filter // default FilterExtension
	FollowSymlinks bool
}

const (
	preambleSize = 128
	magic        = "DICM"
)

// IsDICOMName reports whether name looks like a DICOM file name.
func IsDICOMName(name string) bool {
	return strings.Contains(strings.ToLower(name), ".dcm")
}

// HasDICMMagic reports whether the file at path has "DICM" at offset 128.
func HasDICMMagic(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, preambleSize+len(magic))
	if _, err := io.ReadFull(f, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return false, nil
		}
		return false, err
	}
	return bytes.Equal(buf[preambleSize:], []byte(magic)), nil
}

// Walk emits the matching files under root in lexical order from a single
// goroutine. The paths channel closes when the walk ends; errors for
// unreadable directories are then delivered on the error channel, which is
// closed last. Callers drain paths first, then errors.
func Walk(ctx context.Context, root string, opts Options) (<-chan string, <-chan error) {
	if opts.Filter == "" {
		opts.Filter = FilterExtension
	}

	paths := make(chan string)
	w := &walker{ctx: ctx, opts: opts, paths: paths, visited: map[string]bool{}}

	var errs []error
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(paths)

		info, err := os.Stat(root)
		if err != nil {
			errs = append(errs, fmt.Errorf("stat source root: %w", err))
			return
		}
		if !info.IsDir() {
			errs = append(errs, fmt.Errorf("source root %s is not a directory", root))
			return
		}
		w.markVisited(root)
		w.walkDir(root)
		errs = append(errs, w.errs...)
	}()

	errc := make(chan error)
	go func() {
		defer close(errc)
		<-done
		for _, err := range errs {
			select {
			case errc <- err:
			case <-ctx.Done():
				return
			}
		}
	}()

	return paths, errc
}

// Collect runs Walk to completion and returns the matching files and the
// walk errors.
func Collect(ctx context.Context, root string, opts Options) ([]string, []error) {
	pathc, errc := Walk(ctx, root, opts)
	var files []string
	for p := range pathc {
		files = append(files, p)
	}
	var errs []error
	for err := range errc {
		errs = append(errs, err)
	}
	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	return files, errs
}

type walker struct {
	ctx     context.Context
	opts    Options
	paths   chan<- string
	visited map[string]bool
	errs    []error
}

// markVisited records the resolved path of dir and reports whether it was new.
func (w *walker) markVisited(dir string) bool {
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		resolved = dir
	}
	if abs, err := filepath.Abs(resolved); err == nil {
		resolved = abs
	}
	if w.visited[resolved] {
		return false
	}
	w.visited[resolved] = true
	return true
}

// walkDir returns false once the context is cancelled.
func (w *walker) walkDir(dir string) bool {
	// os.ReadDir sorts by file name
	entries, err := os.ReadDir(dir)
	if err != nil {
		w.errs = append(w.errs, fmt.Errorf("read directory %s: %w", dir, err))
		if len(entries) == 0 {
			return w.ctx.Err() == nil
		}
	}

	for _, entry := range entries {
		if w.ctx.Err() != nil {
			return false
		}
		path := filepath.Join(dir, entry.Name())

		isDir := entry.IsDir()
		if entry.Type()&fs.ModeSymlink != 0 {
			target, err := os.Stat(path)
			if err != nil {
				// dangling link
				continue
			}
			if target.IsDir() {
				if !w.opts.FollowSymlinks {
					continue
				}
				isDir = true
			}
		}

		if isDir {
			if !w.markVisited(path) {
				continue
			}
			if !w.walkDir(path) {
				return false
			}
			continue
		}

		if !entry.Type().IsRegular() && entry.Type()&fs.ModeSymlink == 0 {
			continue
		}
		if !w.match(path, entry.Name()) {
			continue
		}

		select {
		case w.paths <- path:
		case <-w.ctx.Done():
			return false
		}
	}
	return true
}

func (w *walker) match(path, name string) bool {
	switch w.opts.Filter {
	case FilterSniff:
		ok, err := HasDICMMagic(path)
		return err == nil && ok
	default:
		return IsDICOMName(name)
	}
}
