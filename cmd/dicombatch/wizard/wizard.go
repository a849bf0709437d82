package wizard

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/mrsinham/dicombatch/cmd/dicombatch/wizard/components"
	"github.com/mrsinham/dicombatch/internal/config"
	"github.com/mrsinham/dicombatch/internal/converter"
	"github.com/mrsinham/dicombatch/internal/pairing"
	"github.com/mrsinham/dicombatch/internal/sorter"
)

// Phase is the screen the wizard is on.
type Phase int

const (
	PhaseCommand Phase = iota
	PhaseLocations
	PhaseConvert
	PhaseSort
	PhaseSave
	PhaseDone
)

var phaseTitles = map[Phase]string{
	PhaseCommand:   "dicombatch configuration",
	PhaseLocations: "Locations",
	PhaseConvert:   "Conversion options",
	PhaseSort:      "Sort options",
	PhaseSave:      "Save configuration",
}

// Wizard walks the user through the settings of one command and saves
// the resulting configuration file.
type Wizard struct {
	state *State
	base  config.Config

	phase Phase
	form  *huh.Form
	help  *components.HelpPanel

	// command whose section currently fills Source, Output and Workers
	locationsFor string

	width     int
	cancelled bool
	saved     string
	err       error
}

// New creates a wizard starting from state, whose answers are applied on
// top of base when saving.
func New(state *State, base config.Config) *Wizard {
	if state == nil {
		state = FromConfig(base, CommandConvert)
	}
	if state.ConfigPath == "" {
		state.ConfigPath = DefaultConfigPath
	}
	w := &Wizard{
		state:        state,
		base:         base,
		help:         components.NewHelpPanel(),
		locationsFor: state.Command,
	}
	w.enter(PhaseCommand)
	return w
}

// Init implements tea.Model.
func (w *Wizard) Init() tea.Cmd {
	return w.form.Init()
}

// Update implements tea.Model.
func (w *Wizard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		w.width = msg.Width
		w.help.SetWidth(msg.Width / 3)
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			w.cancelled = true
			return w, tea.Quit
		case "esc":
			return w.back()
		}
	}

	form, cmd := w.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		w.form = f
	}
	if focused := w.form.GetFocusedField(); focused != nil {
		w.help.SetField(focused.GetKey())
	}

	switch w.form.State {
	case huh.StateAborted:
		w.cancelled = true
		return w, tea.Quit
	case huh.StateCompleted:
		return w.next()
	}
	return w, cmd
}

// View implements tea.Model.
func (w *Wizard) View() string {
	if w.phase == PhaseDone {
		return ""
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top, w.form.View(), "  ", w.help.View())
	parts := []string{
		components.TitleStyle.Render(phaseTitles[w.phase]),
		components.SubtitleStyle.Render(w.subtitle()),
		body,
	}
	if w.err != nil {
		parts = append(parts, components.ErrorStyle.Render("Error: "+w.err.Error()))
	}
	parts = append(parts, components.KeyHintStyle.Render("Enter: next | Esc: back | Ctrl+C: quit"))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (w *Wizard) subtitle() string {
	switch w.phase {
	case PhaseCommand:
		return "Builds a configuration file for dicombatch"
	case PhaseSave:
		return fmt.Sprintf("%s from %s into %s", w.state.Command, w.state.Source, w.state.Output)
	default:
		return "Command: " + w.state.Command
	}
}

// next advances past the completed form.
func (w *Wizard) next() (tea.Model, tea.Cmd) {
	switch w.phase {
	case PhaseCommand:
		w.syncLocations()
		w.enter(PhaseLocations)
	case PhaseLocations:
		if w.state.Command == CommandSort {
			w.enter(PhaseSort)
		} else {
			w.enter(PhaseConvert)
		}
	case PhaseConvert, PhaseSort:
		w.enter(PhaseSave)
	case PhaseSave:
		if err := w.save(); err != nil {
			w.err = err
			w.enter(PhaseSave)
			return w, w.form.Init()
		}
		w.phase = PhaseDone
		return w, tea.Quit
	}
	return w, w.form.Init()
}

// back returns to the previous screen, or quits from the first one.
func (w *Wizard) back() (tea.Model, tea.Cmd) {
	switch w.phase {
	case PhaseCommand:
		w.cancelled = true
		return w, tea.Quit
	case PhaseLocations:
		w.enter(PhaseCommand)
	case PhaseConvert, PhaseSort:
		w.enter(PhaseLocations)
	case PhaseSave:
		if w.state.Command == CommandSort {
			w.enter(PhaseSort)
		} else {
			w.enter(PhaseConvert)
		}
	}
	return w, w.form.Init()
}

func (w *Wizard) enter(phase Phase) {
	w.phase = phase
	switch phase {
	case PhaseCommand:
		w.form = commandForm(w.state)
	case PhaseLocations:
		w.form = locationsForm(w.state)
	case PhaseConvert:
		w.form = convertForm(w.state)
	case PhaseSort:
		w.form = sortForm(w.state)
	case PhaseSave:
		w.form = saveForm(w.state)
	}
}

// syncLocations reloads the shared answers when the command changed.
func (w *Wizard) syncLocations() {
	if w.state.Command == w.locationsFor {
		return
	}
	fresh := FromConfig(w.base, w.state.Command)
	w.state.Source, w.state.Output, w.state.Workers = fresh.Source, fresh.Output, fresh.Workers
	w.locationsFor = w.state.Command
}

func (w *Wizard) save() error {
	cfg, err := ToConfig(w.state, w.base)
	if err != nil {
		return err
	}
	path := strings.TrimSpace(w.state.ConfigPath)
	if err := cfg.Save(path); err != nil {
		return err
	}
	w.saved = path
	w.err = nil
	return nil
}

func commandForm(s *State) *huh.Form {
	return newForm(huh.NewGroup(
		huh.NewSelect[string]().
			Key("command").
			Title("Command").
			Options(
				huh.NewOption("convert - RT structure sets to NIfTI", CommandConvert),
				huh.NewOption("sort - reorganise a DICOM tree", CommandSort),
			).
			Value(&s.Command),
	))
}

func locationsForm(s *State) *huh.Form {
	return newForm(huh.NewGroup(
		huh.NewInput().
			Key("source").
			Title("Source directory").
			Value(&s.Source).
			Validate(required("source directory")),
		huh.NewInput().
			Key("output").
			Title("Output directory").
			Value(&s.Output).
			Validate(required("output directory")),
		huh.NewInput().
			Key("workers").
			Title("Workers").
			Value(&s.Workers).
			Validate(validatePositiveInt),
	))
}

func convertForm(s *State) *huh.Form {
	return newForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("pairing_mode").
				Title("Pairing mode").
				Options(
					huh.NewOption("index - match by frame of reference", string(pairing.ModeIndex)),
					huh.NewOption("proximity - search nearby directories", string(pairing.ModeProximity)),
				).
				Value(&s.PairingMode),
			huh.NewSelect[string]().
				Key("match").
				Title("Match policy").
				Options(
					huh.NewOption("strict", string(pairing.MatchStrict)),
					huh.NewOption("best-effort", string(pairing.MatchBestEffort)),
				).
				Value(&s.Match),
			huh.NewConfirm().
				Key("approved_only").
				Title("Approved structure sets only?").
				Value(&s.ApprovedOnly),
			huh.NewInput().
				Key("structures").
				Title("Structures").
				Placeholder("e.g. gtv*, ptv*, !body").
				Value(&s.Structures).
				Validate(validateStructures),
		),
		huh.NewGroup(
			huh.NewInput().
				Key("xy_scaling").
				Title("XY scaling factor").
				Value(&s.XYScaling).
				Validate(validatePositiveInt),
			huh.NewConfirm().
				Key("crop_mask").
				Title("Crop masks?").
				Value(&s.CropMask),
			huh.NewConfirm().
				Key("convert_original").
				Title("Convert the image series too?").
				Value(&s.ConvertOriginal),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("converter").
				Title("Converter").
				Options(
					huh.NewOption("exec - external converter", string(converter.KindExec)),
					huh.NewOption("manifest - dry run", string(converter.KindManifest)),
				).
				Value(&s.Converter),
			huh.NewInput().
				Key("timeout").
				Title("Timeout per job").
				Placeholder("e.g. 10m, empty for none").
				Value(&s.Timeout).
				Validate(validateTimeout),
			huh.NewConfirm().
				Key("skip_existing").
				Title("Skip existing outputs?").
				Value(&s.SkipExisting),
		),
	)
}

func sortForm(s *State) *huh.Form {
	return newForm(huh.NewGroup(
		huh.NewInput().
			Key("layout").
			Title("Layout").
			Value(&s.Layout).
			Validate(validateLayout),
		huh.NewConfirm().
			Key("link").
			Title("Hard-link instead of copy?").
			Value(&s.Link),
	))
}

func saveForm(s *State) *huh.Form {
	return newForm(huh.NewGroup(
		huh.NewInput().
			Key("config_path").
			Title("Save configuration to").
			Value(&s.ConfigPath).
			Validate(validateConfigPath),
	))
}

func newForm(groups ...*huh.Group) *huh.Form {
	return huh.NewForm(groups...).WithShowHelp(false).WithShowErrors(true)
}

func required(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", what)
		}
		return nil
	}
}

func validatePositiveInt(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("must be a number")
	}
	if n <= 0 {
		return fmt.Errorf("must be greater than 0")
	}
	return nil
}

func validateStructures(s string) error {
	return converter.Options{XYScalingFactor: 1, Structures: splitList(s)}.Validate()
}

func validateTimeout(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("not a duration, use e.g. 90s or 10m")
	}
	if d <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func validateLayout(s string) error {
	_, err := sorter.ParseLayout(s)
	return err
}

func validateConfigPath(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("path is required")
	}
	switch strings.ToLower(filepath.Ext(s)) {
	case ".yaml", ".yml", ".toml":
		return nil
	}
	return fmt.Errorf("must end in .yaml, .yml or .toml")
}

// Run starts the interactive wizard for command. When from is set the
// wizard starts from that configuration file; savePath presets the
// destination. It returns the path written, or "" if the user quit.
func Run(from, command, savePath string) (string, error) {
	base := config.Default()
	if from != "" {
		loaded, err := config.Load(from)
		if err != nil {
			return "", fmt.Errorf("loading config: %w", err)
		}
		base = *loaded
	}

	state := FromConfig(base, command)
	if savePath != "" {
		state.ConfigPath = savePath
	} else if from != "" {
		state.ConfigPath = from
	}

	p := tea.NewProgram(New(state, base), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return "", fmt.Errorf("running wizard: %w", err)
	}

	w, ok := final.(*Wizard)
	if !ok || w.cancelled {
		return "", nil
	}
	return w.saved, w.err
}
