package sorter

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// Action is what happened to one source file.
type Action string

const (
	ActionLinked  Action = "linked"
	ActionCopied  Action = "copied"
	ActionSkipped Action = "skipped"
	ActionFailed  Action = "failed"
)

// materialize publishes src at dst by hard link or copy. An existing dst is
// never overwritten.
func materialize(src, dst string, link bool, log *slog.Logger) (Action, int64, error) {
	info, err := os.Stat(src)
	if err != nil {
		return ActionFailed, 0, fmt.Errorf("stat source: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return ActionFailed, 0, fmt.Errorf("create destination directory: %w", err)
	}
	if _, err := os.Lstat(dst); err == nil {
		return ActionSkipped, 0, nil
	}

	if link {
		err := os.Link(src, dst)
		switch {
		case err == nil:
			return ActionLinked, info.Size(), nil
		case errors.Is(err, fs.ErrExist):
			return ActionSkipped, 0, nil
		default:
			log.Warn("hard link failed, copying instead", "source", src, "destination", dst, "error", err)
		}
	}

	published, err := copyFile(src, dst, info)
	if err != nil {
		return ActionFailed, 0, err
	}
	if !published {
		return ActionSkipped, 0, nil
	}
	return ActionCopied, info.Size(), nil
}

// copyFile copies src into a temporary sibling of dst, keeping mode and
// mtime, then links it to dst. published is false when dst appeared in
// the meantime.
func copyFile(src, dst string, info os.FileInfo) (published bool, err error) {
	in, err := os.Open(src)
	if err != nil {
		return false, fmt.Errorf("open source: %w", err)
	}
	defer func() { _ = in.Close() }()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return false, fmt.Errorf("create temporary file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		return false, fmt.Errorf("copy: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("close temporary file: %w", err)
	}
	if err := os.Chmod(tmpName, info.Mode().Perm()); err != nil {
		return false, fmt.Errorf("preserve mode: %w", err)
	}
	if err := os.Chtimes(tmpName, info.ModTime(), info.ModTime()); err != nil {
		return false, fmt.Errorf("preserve modification time: %w", err)
	}

	err = os.Link(tmpName, dst)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrExist):
		return false, nil
	}

	// No hard links on this filesystem: fall back to a rename after a
	// last existence check.
	if _, statErr := os.Lstat(dst); statErr == nil {
		return false, nil
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return false, fmt.Errorf("publish copy: %w", err)
	}
	return true, nil
}
