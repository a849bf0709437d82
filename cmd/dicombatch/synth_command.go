package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrsinham/dicombatch/internal/config"
	"github.com/mrsinham/dicombatch/internal/dicom/modalities"
	"github.com/mrsinham/dicombatch/internal/dicom/synth"
)

func newSynthCommand() *cobra.Command {
	var opts synth.DemoOptions
	var modality string

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Write a demo tree of image series and structure sets",
		Long: `Synth writes <output>/<patient>/<modality>/*.dcm and
<output>/<patient>/RTSTRUCT/rs.dcm for every patient. UIDs are derived from
the patient IDs, so repeated runs write identical files.

--orphans makes the last patients' structure sets reference a frame of
reference no series carries; --unapproved marks the first ones UNAPPROVED.
--damaged adds a truncated file, a file with a malformed pixel data length
and a non-DICOM file named .dcm.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Root == "" {
				return fmt.Errorf("%w: --output is required", config.ErrInvalid)
			}
			root, err := config.ExpandPath(opts.Root)
			if err != nil {
				return err
			}
			opts.Root = root
			opts.Modality = modalities.Modality(strings.ToUpper(strings.TrimSpace(modality)))

			patients, err := synth.WriteDemoTree(opts)
			if err != nil {
				return fmt.Errorf("write demo tree: %w", err)
			}

			out := cmd.OutOrStdout()
			for _, p := range patients {
				var notes []string
				if !p.Approved {
					notes = append(notes, "unapproved")
				}
				if p.Orphan {
					notes = append(notes, "orphan")
				}
				line := fmt.Sprintf("%s  %d x %s  %s", p.PatientID, len(p.Series.Files), opts.Modality, p.StructureSet)
				if len(notes) > 0 {
					line += "  (" + strings.Join(notes, ", ") + ")"
				}
				fmt.Fprintln(out, line)
			}
			if opts.Damaged {
				fmt.Fprintf(out, "Damaged files in %s\n", filepath.Join(opts.Root, synth.DamagedDirName))
			}
			fmt.Fprintf(out, "Wrote %d patients to %s\n", len(patients), opts.Root)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.Root, "output", "o", "", "Directory to write the demo tree into")
	f.IntVar(&opts.Patients, "patients", 3, "Number of patients")
	f.IntVar(&opts.Slices, "slices", 4, "Images per series")
	f.StringVar(&modality, "modality", "CT", "Series modality: CT or MR")
	f.IntVar(&opts.Orphans, "orphans", 0, "Patients whose structure set matches no series")
	f.IntVar(&opts.Unapproved, "unapproved", 0, "Patients whose structure set is UNAPPROVED")
	f.BoolVar(&opts.Damaged, "damaged", false, "Also write truncated and malformed files under <output>/damaged")
	return cmd
}
