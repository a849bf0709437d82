// Package wizard provides an interactive TUI that builds a dicombatch
// configuration file.
package wizard

// Commands the wizard can configure.
const (
	CommandConvert = "convert"
	CommandSort    = "sort"
)

// State holds the answers collected by the wizard. Numeric and list values
// are kept as strings because the form fields bind to strings.
type State struct {
	Command string
	Source  string
	Output  string
	Workers string

	// convert
	PairingMode     string
	Match           string
	ApprovedOnly    bool
	XYScaling       string
	CropMask        bool
	ConvertOriginal bool
	Structures      string // comma-separated patterns
	Converter       string
	Timeout         string
	SkipExisting    bool

	// sort
	Link   bool
	Layout string

	ConfigPath string
}
