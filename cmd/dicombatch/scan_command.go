package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mrsinham/dicombatch/internal/checkpoint"
	"github.com/mrsinham/dicombatch/internal/config"
	"github.com/mrsinham/dicombatch/internal/dicom"
	"github.com/mrsinham/dicombatch/internal/dicom/modalities"
	"github.com/mrsinham/dicombatch/internal/discovery"
	"github.com/mrsinham/dicombatch/internal/pipeline"
	"github.com/mrsinham/dicombatch/internal/report"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	var fl convertFlags
	var save string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Classify a DICOM tree and optionally write a checkpoint",
		Long: `Scan walks --source, classifies every candidate file and prints how many
files of each modality it kept. With --save the result is written as a
checkpoint that convert can start from: a .csv file holds every record, a
.json file only the structure set paths.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.loadConfig(cmd)
			if err != nil {
				return err
			}
			c := &cfg.Convert
			fl.apply(cmd, c)
			if err := cfg.Normalize(); err != nil {
				return err
			}
			if c.Source == "" {
				return fmt.Errorf("%w: --source is required", config.ErrInvalid)
			}
			if c.Workers <= 0 {
				return fmt.Errorf("%w: workers must be > 0, got %d", config.ErrInvalid, c.Workers)
			}
			imageModalities, err := c.Modalities()
			if err != nil {
				return fmt.Errorf("%w: image modalities: %v", config.ErrInvalid, err)
			}
			filter, err := discovery.ParseFilter(c.Filter)
			if err != nil {
				return fmt.Errorf("%w: %v", config.ErrInvalid, err)
			}
			var format checkpoint.Format
			if save != "" {
				if save, err = config.ExpandPath(save); err != nil {
					return err
				}
				if format, err = checkpoint.FormatFor(save); err != nil {
					return fmt.Errorf("%w: %v", config.ErrInvalid, err)
				}
			}
			log, err := ctx.logger(cmd, cfg.Log)
			if err != nil {
				return err
			}

			classifier := dicom.NewClassifier(nil, dicom.ClassifierOptions{
				ApprovedOnly:    c.ApprovedOnly,
				ImageModalities: imageModalities,
			}, log)
			bar := newProgress(cmd.ErrOrStderr(), "scanning")
			records, err := pipeline.Scan(cmd.Context(), c.Source, classifier, pipeline.ScanOptions{
				Discovery: discovery.Options{Filter: filter, FollowSymlinks: c.FollowSymlinks},
				Workers:   c.Workers,
				Progress:  bar.Callback(),
				Logger:    log,
			})
			bar.Finish()
			if err != nil {
				return err
			}

			counts := map[string]int{}
			var rtstructs []string
			for _, rec := range records {
				counts[string(rec.Modality)]++
				if rec.Modality == modalities.RTSTRUCT {
					rtstructs = append(rtstructs, rec.Path)
				}
			}
			var order []string
			for _, m := range modalities.AllModalities() {
				if counts[string(m)] > 0 {
					order = append(order, string(m))
				}
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, report.ScanSummary(counts, order))

			switch format {
			case checkpoint.FormatJSON:
				err = checkpoint.SavePaths(save, rtstructs)
			case checkpoint.FormatCSV:
				err = checkpoint.SaveRecords(save, records)
			}
			if err != nil {
				return err
			}
			if save != "" {
				fmt.Fprintf(out, "Checkpoint: %s\n", save)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&fl.source, "source", "s", "", "Directory holding the DICOM tree")
	f.IntVarP(&fl.workers, "workers", "w", 0, "Number of parallel workers (default: CPU cores)")
	f.BoolVar(&fl.approvedOnly, "approved-only", false, "Drop structure sets whose ApprovalStatus is not APPROVED")
	f.StringSliceVar(&fl.imageModalities, "image-modalities", nil, "Image modalities to keep (default: CT,MR)")
	f.BoolVar(&fl.sniff, "sniff", false, "Select files by the DICM marker instead of the .dcm name")
	f.BoolVar(&fl.followSymlinks, "follow-symlinks", false, "Descend into symlinked directories")
	f.StringVar(&save, "save", "", "Write a checkpoint (.csv records or .json structure set paths)")
	return cmd
}
