package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mrsinham/dicombatch/internal/config"
	"github.com/mrsinham/dicombatch/internal/converter"
	"github.com/mrsinham/dicombatch/internal/pipeline"
	"github.com/mrsinham/dicombatch/internal/pool"
)

type convertFlags struct {
	source, output, checkpoint, errorLog   string
	pairingMode, match, collision, timeout string
	converter, converterBin                string
	workers, xyScaling, levels             int
	cropMask, convertOriginal              bool
	approvedOnly, skipExisting             bool
	sniff, followSymlinks                  bool
	structures, imageModalities            []string
}

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var fl convertFlags

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert every RT structure set under a tree to NIfTI masks",
		Long: `Convert finds the RT structure sets under --source, pairs each with the image
series it was drawn on and runs the converter for every pair on a worker pool.
A failing structure set is written to the error log and never stops the rest.

Pairing modes:
  index      look the referenced frame of reference up in an index of every
             image series (default)
  proximity  search the directories around the structure set, --levels up

The inventory is checkpointed into the output directory so later runs skip
the scan.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.loadConfig(cmd)
			if err != nil {
				return err
			}
			fl.apply(cmd, &cfg.Convert)
			if err := cfg.Normalize(); err != nil {
				return err
			}
			if err := cfg.Convert.Validate(); err != nil {
				return err
			}
			log, err := ctx.logger(cmd, cfg.Log)
			if err != nil {
				return err
			}

			scanBar := newProgress(cmd.ErrOrStderr(), "scanning")
			convertBar := newProgress(cmd.ErrOrStderr(), "converting")
			var onConvert pool.ProgressCallback
			if update := convertBar.Callback(); update != nil {
				onConvert = func(current, total int) {
					scanBar.Finish()
					update(current, total)
				}
			}
			res, err := pipeline.Run(cmd.Context(), pipeline.Options{
				Config:       cfg.Convert,
				RunID:        ctx.runID,
				ScanProgress: scanBar.Callback(),
				Progress:     onConvert,
				Logger:       log,
			})
			scanBar.Finish()
			convertBar.Finish()
			// An interrupted batch still returns its report.
			if res == nil || res.Report == nil {
				return err
			}

			out := cmd.OutOrStdout()
			if res.CheckpointLoaded {
				fmt.Fprintf(out, "Checkpoint: %s (loaded)\n", res.CheckpointPath)
			} else {
				fmt.Fprintf(out, "Checkpoint: %s\n", res.CheckpointPath)
			}
			res.Report.Print(out, res.ReportPath, res.ErrorLogPath)
			return err
		},
	}

	f := cmd.Flags()
	f.StringVarP(&fl.source, "source", "s", "", "Directory holding the DICOM tree")
	f.StringVarP(&fl.output, "output", "o", "", "Directory receiving one folder per structure set")
	f.IntVarP(&fl.workers, "workers", "w", 0, "Number of parallel conversions (default: CPU cores)")
	f.IntVar(&fl.xyScaling, "xy-scaling", 1, "In-plane scaling factor passed to the converter")
	f.BoolVar(&fl.cropMask, "crop-mask", false, "Crop masks to the structure bounding box")
	f.BoolVar(&fl.convertOriginal, "convert-original", false, "Also convert the image series itself")
	f.BoolVar(&fl.approvedOnly, "approved-only", false, "Only convert structure sets whose ApprovalStatus is APPROVED")
	f.StringArrayVar(&fl.structures, "structures", nil, `Structure name pattern, "!" excludes (repeatable, e.g. "GTV*" "!*_old")`)
	f.StringSliceVar(&fl.imageModalities, "image-modalities", nil, "Image modalities to pair with (default: CT,MR)")
	f.StringVar(&fl.checkpoint, "checkpoint", "", "Checkpoint file, read when present and written otherwise (.json or .csv)")
	f.StringVar(&fl.pairingMode, "pairing-mode", "", "Pairing mode: index or proximity")
	f.IntVar(&fl.levels, "levels", 0, "Proximity search: path components removed from the structure set path")
	f.StringVar(&fl.match, "match", "", "strict, or best-effort to fall back to the patient's first series")
	f.StringVar(&fl.collision, "collision", "", "Shared frame of reference: smallest path wins, or fail")
	f.BoolVar(&fl.sniff, "sniff", false, "Select files by the DICM marker instead of the .dcm name")
	f.BoolVar(&fl.followSymlinks, "follow-symlinks", false, "Descend into symlinked directories")
	f.StringVar(&fl.timeout, "timeout", "", "Per structure set time limit, e.g. 10m (default: none)")
	f.BoolVar(&fl.skipExisting, "skip-existing", false, "Skip structure sets whose output folder is not empty")
	f.StringVar(&fl.converter, "converter", "", "Converter: exec or manifest (dry run)")
	f.StringVar(&fl.converterBin, "converter-bin", "", "Converter executable (default: "+converter.DefaultBinary+")")
	f.StringVar(&fl.errorLog, "error-log", "", "Error log path (default: <output>/conversion_errors.log)")
	return cmd
}

// apply copies the flags the user set over c.
func (fl *convertFlags) apply(cmd *cobra.Command, c *config.ConvertConfig) {
	changed := cmd.Flags().Changed
	setString := func(name string, dst *string, v string) {
		if changed(name) {
			*dst = v
		}
	}
	setInt := func(name string, dst *int, v int) {
		if changed(name) {
			*dst = v
		}
	}
	setBool := func(name string, dst *bool, v bool) {
		if changed(name) {
			*dst = v
		}
	}

	setString("source", &c.Source, fl.source)
	setString("output", &c.Output, fl.output)
	setString("checkpoint", &c.Checkpoint, fl.checkpoint)
	setString("error-log", &c.ErrorLog, fl.errorLog)
	setString("pairing-mode", &c.PairingMode, fl.pairingMode)
	setString("match", &c.Match, fl.match)
	setString("collision", &c.Collision, fl.collision)
	setString("timeout", &c.Timeout, fl.timeout)
	setString("converter", &c.Converter, fl.converter)
	setString("converter-bin", &c.ConverterBinary, fl.converterBin)
	setInt("workers", &c.Workers, fl.workers)
	setInt("xy-scaling", &c.XYScalingFactor, fl.xyScaling)
	setInt("levels", &c.Levels, fl.levels)
	setBool("crop-mask", &c.CropMask, fl.cropMask)
	setBool("convert-original", &c.ConvertOriginal, fl.convertOriginal)
	setBool("approved-only", &c.ApprovedOnly, fl.approvedOnly)
	setBool("skip-existing", &c.SkipExisting, fl.skipExisting)
	setBool("follow-symlinks", &c.FollowSymlinks, fl.followSymlinks)
	if changed("sniff") {
		c.Filter = filterName(fl.sniff)
	}
	if changed("structures") {
		c.Structures = fl.structures
	}
	if changed("image-modalities") {
		c.ImageModalities = fl.imageModalities
	}
}
