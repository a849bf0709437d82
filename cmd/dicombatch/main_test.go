package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mrsinham/dicombatch/internal/report"
)

func runCLI(t *testing.T, args ...string) (int, string) {
	t.Helper()
	var out bytes.Buffer
	code := run(context.Background(), args, &out, &out)
	return code, out.String()
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"synth without output", []string{"synth"}, "--output is required"},
		{"convert without source", []string{"convert", "-o", "/tmp/x"}, "convert.source is required"},
		{"sort without output", []string{"sort", "-s", "/tmp/x"}, "sort.output is required"},
		{"wizard unknown command", []string{"wizard", "--command", "burn"}, "--command must be convert or sort"},
		{"bad log level", []string{"scan", "-s", "/tmp", "--log-level", "loud"}, "log.level"},
		{"missing config", []string{"convert", "-c", "/nonexistent/dicombatch.yaml"}, "open config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, out := runCLI(t, tt.args...)
			if code != 1 {
				t.Errorf("exit code = %d, want 1\n%s", code, out)
			}
			if !strings.HasPrefix(out, "Error: ") || !strings.Contains(out, tt.want) {
				t.Errorf("output %q should be an error containing %q", out, tt.want)
			}
		})
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dir := t.TempDir()
	var out bytes.Buffer
	code := run(ctx, []string{"scan", "-s", dir, "--log-level", "error"}, &out, &out)
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(out.String(), "Error: interrupted") {
		t.Errorf("output = %q, want interrupted", out.String())
	}
}

func TestRun_ConfigFileAndFlags(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	out := filepath.Join(dir, "out")

	if code, output := runCLI(t, "synth", "-o", src, "--patients", "2"); code != 0 {
		t.Fatalf("synth failed: %s", output)
	}

	cfgPath := filepath.Join(dir, "dicombatch.toml")
	cfgText := "[convert]\nsource = '" + src + "'\noutput = '/ignored'\nconverter = 'manifest'\nworkers = 1\n\n[log]\nlevel = 'error'\n"
	if err := os.WriteFile(cfgPath, []byte(cfgText), 0644); err != nil {
		t.Fatal(err)
	}

	code, output := runCLI(t, "convert", "-c", cfgPath, "-o", out)
	if code != 0 {
		t.Fatalf("convert failed: %s", output)
	}
	if !strings.Contains(output, "2 structure sets: 2 converted") {
		t.Errorf("unexpected output:\n%s", output)
	}

	data, err := os.ReadFile(filepath.Join(out, report.FileName))
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	var rep report.Report
	if err := json.Unmarshal(data, &rep); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if rep.Summary.Succeeded != 2 || len(rep.Entries) != 2 {
		t.Errorf("report summary = %+v with %d entries", rep.Summary, len(rep.Entries))
	}
	if rep.RunID == "" {
		t.Error("report should carry the run ID")
	}
}
