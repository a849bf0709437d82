package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/mrsinham/dicombatch/internal/batch"
	"github.com/mrsinham/dicombatch/internal/checkpoint"
	"github.com/mrsinham/dicombatch/internal/config"
	"github.com/mrsinham/dicombatch/internal/converter"
	"github.com/mrsinham/dicombatch/internal/dicom"
	"github.com/mrsinham/dicombatch/internal/dicom/synth"
	"github.com/mrsinham/dicombatch/internal/errlog"
	"github.com/mrsinham/dicombatch/internal/logging"
	"github.com/mrsinham/dicombatch/internal/report"
)

type call struct {
	rtstruct, series, output string
	opts                     converter.Options
}

type recorder struct {
	mu    sync.Mutex
	calls []call
}

func (r *recorder) Convert(_ context.Context, rtstruct, series, output string, opts converter.Options) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{rtstruct, series, output, opts})
	return nil
}

// writePatient writes <root>/<id>/CT/1.dcm and an approved
// <root>/<id>/RTSTRUCT/rs.dcm referencing the series.
func writePatient(t *testing.T, root, id string) synth.Series {
	t.Helper()
	series, err := synth.WriteSeries(synth.SeriesOptions{
		Dir:               filepath.Join(root, id, "CT"),
		PatientID:         id,
		SeriesDescription: "Planning CT",
	})
	if err != nil {
		t.Fatalf("WriteSeries: %v", err)
	}
	err = synth.WriteStructureSet(synth.StructureSetOptions{
		Path:                 filepath.Join(root, id, "RTSTRUCT", "rs.dcm"),
		PatientID:            id,
		StudyInstanceUID:     series.StudyInstanceUID,
		ApprovalStatus:       "APPROVED",
		FrameOfReferenceUIDs: []string{series.FrameOfReferenceUID},
		ROIs: []synth.ROI{
			{Name: "GTV", FrameOfReferenceUID: series.FrameOfReferenceUID},
			{Name: "PTV", FrameOfReferenceUID: series.FrameOfReferenceUID},
		},
	})
	if err != nil {
		t.Fatalf("WriteStructureSet: %v", err)
	}
	return series
}

func convertConfig(source, output string) config.ConvertConfig {
	cfg := config.Default().Convert
	cfg.Source = source
	cfg.Output = output
	cfg.Workers = 2
	cfg.ApprovedOnly = true
	return cfg
}

func TestRun_SinglePatient(t *testing.T) {
	for _, mode := range []string{"index", "proximity"} {
		t.Run(mode, func(t *testing.T) {
			root := t.TempDir()
			out := t.TempDir()
			writePatient(t, root, "A")

			cfg := convertConfig(root, out)
			cfg.PairingMode = mode
			rec := &recorder{}

			res, err := Run(context.Background(), Options{Config: cfg, Converter: rec})
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}

			if res.Report.Summary != (batch.Summary{Total: 1, Succeeded: 1}) {
				t.Fatalf("Summary = %+v", res.Report.Summary)
			}
			if len(rec.calls) != 1 {
				t.Fatalf("converter called %d times, want 1", len(rec.calls))
			}
			got := rec.calls[0]
			if got.series != filepath.Join(root, "A", "CT") {
				t.Errorf("series dir = %s, want %s", got.series, filepath.Join(root, "A", "CT"))
			}
			if got.rtstruct != filepath.Join(root, "A", "RTSTRUCT", "rs.dcm") {
				t.Errorf("rtstruct = %s", got.rtstruct)
			}
			if !strings.HasPrefix(got.output, filepath.Join(out, "A")+string(filepath.Separator)) {
				t.Errorf("output dir = %s, want under %s", got.output, filepath.Join(out, "A"))
			}
			if got.opts.XYScalingFactor != 1 || got.opts.Structures != nil {
				t.Errorf("options = %+v", got.opts)
			}

			if res.CheckpointLoaded || !checkpoint.Exists(res.CheckpointPath) {
				t.Errorf("checkpoint %s should have been written", res.CheckpointPath)
			}
			if _, err := os.Stat(res.ReportPath); err != nil {
				t.Errorf("report not written: %v", err)
			}
			if _, err := os.Stat(res.ErrorLogPath); !os.IsNotExist(err) {
				t.Errorf("error log should not exist without failures, stat err = %v", err)
			}
		})
	}
}

func TestRun_FailuresAreIsolated(t *testing.T) {
	root := t.TempDir()
	out := t.TempDir()
	_, err := synth.WriteDemoTree(synth.DemoOptions{Root: root, Patients: 3, Slices: 1, Orphans: 1, Unapproved: 1})
	if err != nil {
		t.Fatalf("WriteDemoTree: %v", err)
	}

	rec := &recorder{}
	res, err := Run(context.Background(), Options{Config: convertConfig(root, out), Converter: rec})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// DEMO001 is unapproved and filtered out, DEMO003 has no matching series.
	if res.Report.Summary != (batch.Summary{Total: 2, Succeeded: 1, Failed: 1}) {
		t.Fatalf("Summary = %+v", res.Report.Summary)
	}
	if len(rec.calls) != 1 || !strings.Contains(rec.calls[0].rtstruct, "DEMO002") {
		t.Errorf("unexpected converter calls: %+v", rec.calls)
	}

	failed := res.Report.Failures()
	if len(failed) != 1 || !strings.Contains(failed[0].RTStruct, "DEMO003") || !strings.Contains(failed[0].Detail, "CT not found") {
		t.Errorf("failures = %+v", failed)
	}

	entries, err := errlog.Read(res.ErrorLogPath)
	if err != nil {
		t.Fatalf("read error log: %v", err)
	}
	if len(entries) != 1 || !strings.Contains(entries[0].Path, "DEMO003") {
		t.Errorf("error log = %+v", entries)
	}

	saved, err := report.Read(res.ReportPath)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if saved.Summary != res.Report.Summary {
		t.Errorf("saved summary = %+v", saved.Summary)
	}
}

// cancelOnConvert cancels the run during the first conversion.
type cancelOnConvert struct {
	cancel context.CancelFunc
	once   sync.Once
}

func (c *cancelOnConvert) Convert(ctx context.Context, _, _, _ string, _ converter.Options) error {
	c.once.Do(c.cancel)
	return ctx.Err()
}

func TestRun_InterruptedBatch(t *testing.T) {
	root := t.TempDir()
	out := t.TempDir()
	for _, id := range []string{"A", "B", "C", "D"} {
		writePatient(t, root, id)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cfg := convertConfig(root, out)
	cfg.Workers = 1

	res, err := Run(ctx, Options{Config: cfg, Converter: &cancelOnConvert{cancel: cancel}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	if res == nil || res.Report == nil {
		t.Fatal("an interrupted run should still return its report")
	}

	saved, err := report.Read(res.ReportPath)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if saved.Summary.Total != 4 || saved.Summary.Succeeded != 0 {
		t.Errorf("saved summary = %+v", saved.Summary)
	}
	notStarted := 0
	for _, f := range res.Report.Failures() {
		if strings.HasPrefix(f.Detail, "not started") {
			notStarted++
		}
	}
	if notStarted == 0 {
		t.Errorf("no job reported as not started: %+v", res.Report.Failures())
	}
}

func TestRun_CheckpointReuse(t *testing.T) {
	root := t.TempDir()
	out := t.TempDir()
	writePatient(t, root, "A")

	first, err := Run(context.Background(), Options{Config: convertConfig(root, out), Converter: &recorder{}})
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	// The second run only has the checkpoint; ROI names are read back from
	// the structure set because the CSV does not store them.
	cfg := convertConfig("", t.TempDir())
	cfg.Checkpoint = first.CheckpointPath
	cfg.Structures = []string{"gtv"}
	rec := &recorder{}
	res, err := Run(context.Background(), Options{Config: cfg, Converter: rec})
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if !res.CheckpointLoaded {
		t.Error("checkpoint should have been loaded")
	}
	if len(rec.calls) != 1 {
		t.Fatalf("converter called %d times, want 1", len(rec.calls))
	}
	if !reflect.DeepEqual(rec.calls[0].opts.Structures, []string{"GTV"}) {
		t.Errorf("Structures = %v, want [GTV]", rec.calls[0].opts.Structures)
	}
}

func TestRun_NoStructureMatches(t *testing.T) {
	root := t.TempDir()
	out := t.TempDir()
	writePatient(t, root, "A")

	cfg := convertConfig(root, out)
	cfg.Structures = []string{"Bladder", "Rectum*"}
	rec := &recorder{}
	res, err := Run(context.Background(), Options{Config: cfg, Converter: rec})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(rec.calls) != 0 {
		t.Errorf("converter should not run, got %+v", rec.calls)
	}
	failed := res.Report.Failures()
	if len(failed) != 1 || !strings.Contains(failed[0].Detail, ErrNoStructures.Error()) {
		t.Errorf("failures = %+v", failed)
	}
}

func TestRun_ManifestConverter(t *testing.T) {
	root := t.TempDir()
	out := t.TempDir()
	writePatient(t, root, "A")

	cfg := convertConfig(root, out)
	cfg.Converter = "manifest"
	res, err := Run(context.Background(), Options{Config: cfg})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Report.Summary.Succeeded != 1 {
		t.Fatalf("Summary = %+v", res.Report.Summary)
	}
	manifest := filepath.Join(res.Report.Entries[0].OutputDir, converter.ManifestFileName)
	if _, err := os.Stat(manifest); err != nil {
		t.Errorf("manifest not written: %v", err)
	}
}

func TestRun_SetupErrors(t *testing.T) {
	t.Run("invalid config", func(t *testing.T) {
		cfg := convertConfig(t.TempDir(), t.TempDir())
		cfg.Workers = 0
		if _, err := Run(context.Background(), Options{Config: cfg}); !errors.Is(err, config.ErrInvalid) {
			t.Errorf("expected ErrInvalid, got %v", err)
		}
	})
	t.Run("missing source", func(t *testing.T) {
		cfg := convertConfig(filepath.Join(t.TempDir(), "missing"), t.TempDir())
		if _, err := Run(context.Background(), Options{Config: cfg}); err == nil {
			t.Error("expected error for missing source")
		}
	})
	t.Run("missing checkpoint without source", func(t *testing.T) {
		out := t.TempDir()
		cfg := convertConfig("", out)
		cfg.Checkpoint = filepath.Join(out, "dicom_index.csv")
		if _, err := Run(context.Background(), Options{Config: cfg}); err == nil {
			t.Error("expected error for missing checkpoint")
		}
	})
}

func TestScan(t *testing.T) {
	root := t.TempDir()
	writePatient(t, root, "B")
	writePatient(t, root, "A")
	if err := os.WriteFile(filepath.Join(root, "notes.dcm.txt"), []byte("not dicom"), 0644); err != nil {
		t.Fatal(err)
	}

	var (
		mu       sync.Mutex
		progress int
	)
	classifier := dicom.NewClassifier(nil, dicom.ClassifierOptions{}, nil)
	records, err := Scan(context.Background(), root, classifier, ScanOptions{
		Workers: 3,
		Progress: func(current, total int) {
			mu.Lock()
			progress = max(progress, current)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	var paths []string
	for _, r := range records {
		paths = append(paths, r.Path)
	}
	want := []string{
		filepath.Join(root, "A", "CT", "1.dcm"),
		filepath.Join(root, "A", "RTSTRUCT", "rs.dcm"),
		filepath.Join(root, "B", "CT", "1.dcm"),
		filepath.Join(root, "B", "RTSTRUCT", "rs.dcm"),
	}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("paths = %v, want %v", paths, want)
	}
	if progress != 5 {
		t.Errorf("progress reached %d, want 5 examined files", progress)
	}
}

func TestOutputDir(t *testing.T) {
	tests := []struct {
		name string
		rec  dicom.Record
		want string
	}{
		{"complete", dicom.Record{PatientID: "P1", SeriesInstanceUID: "1.2.3"}, filepath.Join("/out", "P1", "1.2.3")},
		{"missing both", dicom.Record{}, filepath.Join("/out", "NA", "NA")},
		{"unsafe id", dicom.Record{PatientID: "../x", SeriesInstanceUID: ".."}, filepath.Join("/out", ".._x", "__")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OutputDir("/out", &tt.rec); got != tt.want {
				t.Errorf("OutputDir() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDisambiguate(t *testing.T) {
	tests := []struct {
		name string
		dirs []string
		want []string
	}{
		{
			name: "shared directory",
			dirs: []string{"/out/NA/NA", "/out/P/1", "/out/NA/NA"},
			want: []string{"/out/NA/NA", "/out/P/1", "/out/NA/NA_2"},
		},
		{
			name: "suffix already used by another series",
			dirs: []string{"/out/X/S", "/out/X/S", "/out/X/S_2"},
			want: []string{"/out/X/S", "/out/X/S_3", "/out/X/S_2"},
		},
		{
			name: "three way share with a taken suffix",
			dirs: []string{"/out/X/S_2", "/out/X/S", "/out/X/S", "/out/X/S"},
			want: []string{"/out/X/S_2", "/out/X/S", "/out/X/S_3", "/out/X/S_4"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs := make([]batch.Job, len(tt.dirs))
			for i, dir := range tt.dirs {
				jobs[i].OutputDir = dir
			}
			disambiguate(jobs, logging.Discard())

			var got []string
			seen := map[string]bool{}
			for _, job := range jobs {
				got = append(got, job.OutputDir)
				if seen[job.OutputDir] {
					t.Errorf("output directory %s used twice", job.OutputDir)
				}
				seen[job.OutputDir] = true
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("output dirs = %v, want %v", got, tt.want)
			}
		})
	}
}
