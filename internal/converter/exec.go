package converter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// DefaultBinary is the converter executable looked up on PATH.
const DefaultBinary = "dcmrtstruct2nii"

// stderrTailSize bounds how much converter stderr is kept for the error log.
const stderrTailSize = 4096

// ExecError describes a failed converter process.
type ExecError struct {
	Args     []string
	ExitCode int // -1 when the process did not exit normally
	Stderr   string
	Err      error
}

func (e *ExecError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Args[0], e.ExitCode)
	if last := lastLine(e.Stderr); last != "" {
		msg += ": " + last
	}
	return msg
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// Trace returns the tail of the converter's stderr.
func (e *ExecError) Trace() string {
	return e.Stderr
}

// ExecConverter runs the external converter once per job:
//
//	<Binary> convert --rtstruct R --dicom D --output O --xy-scaling-factor N
//	    [--crop-mask] [--convert-original-dicom] [--structures a,b]
type ExecConverter struct {
	Binary string    // default DefaultBinary
	Stderr io.Writer // optional copy of the process stderr
}

// Command returns the argument vector for one conversion, binary first.
func (c *ExecConverter) Command(rtstructPath, seriesDir, outputDir string, opts Options) []string {
	binary := c.Binary
	if binary == "" {
		binary = DefaultBinary
	}
	args := []string{
		binary, "convert",
		"--rtstruct", rtstructPath,
		"--dicom", seriesDir,
		"--output", outputDir,
		"--xy-scaling-factor", strconv.Itoa(opts.scalingFactor()),
	}
	if opts.CropMask {
		args = append(args, "--crop-mask")
	}
	if opts.ConvertOriginal {
		args = append(args, "--convert-original-dicom")
	}
	if len(opts.Structures) > 0 {
		args = append(args, "--structures", strings.Join(opts.Structures, ","))
	}
	return args
}

// Convert runs the converter and waits for it.
func (c *ExecConverter) Convert(ctx context.Context, rtstructPath, seriesDir, outputDir string, opts Options) error {
	args := c.Command(rtstructPath, seriesDir, outputDir, opts)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)

	stderr := &tailBuffer{max: stderrTailSize}
	if c.Stderr != nil {
		cmd.Stderr = io.MultiWriter(stderr, c.Stderr)
	} else {
		cmd.Stderr = stderr
	}

	err := cmd.Run()
	if err == nil {
		return nil
	}

	execErr := &ExecError{Args: args, ExitCode: -1, Stderr: stderr.String(), Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		execErr.ExitCode = exitErr.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		execErr.Err = ctxErr
	}
	return fmt.Errorf("%w: %w", ErrConversion, execErr)
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(p)
	if len(p) > t.max {
		p = p[len(p)-t.max:]
	}
	if overflow := t.buf.Len() + len(p) - t.max; overflow > 0 {
		t.buf.Next(overflow)
	}
	t.buf.Write(p)
	return n, nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
