package help

// HelpText describes one wizard field.
type HelpText struct {
	Title       string
	Description string
	Details     string
}

// Texts maps form field keys to their help.
var Texts = map[string]HelpText{
	"command": {
		Title:       "COMMAND",
		Description: "Which command the configuration is for.",
		Details: `convert - pair RT structure sets with their image series and
          convert each pair to NIfTI masks
sort    - copy or link a DICOM tree into a tag-based layout`,
	},
	"source": {
		Title:       "SOURCE DIRECTORY",
		Description: "Root of the DICOM tree to read.",
		Details:     "Every file under it whose name contains .dcm is considered. '~' is expanded.",
	},
	"output": {
		Title:       "OUTPUT DIRECTORY",
		Description: "Where results, checkpoints and logs are written.",
		Details:     "Created when missing. For sort it must not lie inside the source.",
	},
	"workers": {
		Title:       "WORKERS",
		Description: "Number of files or jobs processed in parallel.",
		Details:     "Defaults to the number of CPUs.",
	},
	"pairing_mode": {
		Title:       "PAIRING MODE",
		Description: "How a structure set finds its image series.",
		Details: `index     - match by FrameOfReferenceUID over the whole tree
proximity - look in sibling directories near the structure set`,
	},
	"match": {
		Title:       "MATCH POLICY",
		Description: "What to do when the referenced frame cannot be found.",
		Details: `strict      - fail the structure set
best-effort - fall back to the nearest image series`,
	},
	"approved_only": {
		Title:       "APPROVED ONLY",
		Description: "Skip structure sets whose ApprovalStatus is not APPROVED.",
	},
	"xy_scaling": {
		Title:       "XY SCALING FACTOR",
		Description: "In-plane upsampling applied to the masks.",
		Details:     "1 keeps the image resolution.",
	},
	"crop_mask": {
		Title:       "CROP MASK",
		Description: "Crop each mask to the bounding box of its structure.",
	},
	"convert_original": {
		Title:       "CONVERT ORIGINAL",
		Description: "Also write the image series as a NIfTI volume.",
	},
	"structures": {
		Title:       "STRUCTURES",
		Description: "Comma-separated structure name patterns, case-insensitive.",
		Details: `Shell globs: gtv*, ptv?, ctv_[0-9]
A leading ! excludes: *, !body
The last matching pattern decides. Empty converts every structure.`,
	},
	"converter": {
		Title:       "CONVERTER",
		Description: "Backend that produces the NIfTI files.",
		Details: `exec     - run the external converter binary
manifest - write a JSON manifest of each job (dry run)`,
	},
	"timeout": {
		Title:       "TIMEOUT",
		Description: "Maximum duration of one conversion job.",
		Details:     "Go duration such as 90s or 10m. Empty means no limit.",
	},
	"skip_existing": {
		Title:       "SKIP EXISTING",
		Description: "Skip jobs whose output directory already holds results.",
	},
	"link": {
		Title:       "LINK",
		Description: "Hard-link files instead of copying them.",
		Details:     "Falls back to a copy across filesystems.",
	},
	"layout": {
		Title:       "LAYOUT",
		Description: "Destination path template relative to the output.",
		Details: `Placeholders are DICOM keywords in braces:
{PatientID}/{StudyDate}/{Modality}.{SeriesInstanceUID}.{InstanceNumber}.dcm
Missing values become NA.`,
	},
	"config_path": {
		Title:       "CONFIG FILE",
		Description: "Where to save the configuration.",
		Details:     "The extension picks the format: .yaml, .yml or .toml.",
	},
}
