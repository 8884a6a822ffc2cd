package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"sra-harvest/internal/harvest"
	"sra-harvest/internal/model"
)

type monitorMode int

const (
	monitorModeForm monitorMode = iota
	monitorModeRunning
	monitorModeDone
)

const monitorEventWindow = 8

var (
	monitorTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	monitorMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	monitorErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	monitorOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	monitorPanelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

type monitorField struct {
	Label    string
	Input    textinput.Model
	Required bool
	Numeric  bool
}

type monitorModel struct {
	cfg    harvestConfig
	mode   monitorMode
	fields []monitorField
	focus  int
	bar    progress.Model

	events     <-chan harvest.Event
	done       <-chan harvestDoneMsg
	cancelRun  context.CancelFunc
	cancelling bool

	state         model.RunState
	bytesFetched  int64
	bytesExpected int64
	recent        []string
	summary       *model.RunSummary
	runErr        error
	formErr       string
	width         int
}

type harvestEventMsg harvest.Event

type harvestDoneMsg struct {
	summary model.RunSummary
	err     error
}

func runMonitor(args []string) error {
	fs := flag.NewFlagSet("monitor", flag.ContinueOnError)
	cleanDir := fs.String("clean-dir", defaultCleanDir, "directory for datasets that pass the quality gate")
	fastqcPath := fs.String("fastqc", "", "fastqc binary (default: $FASTQC_PATH, then PATH lookup)")
	email := fs.String("email", "", "contact email sent to NCBI (default: $NCBI_EMAIL)")
	apiKey := fs.String("api-key", "", "NCBI API key (default: $NCBI_API_KEY)")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !stdinIsTTY() {
		return errors.New("monitor requires an interactive terminal (TTY)")
	}

	cfg := harvestConfig{
		Target:        defaultTarget,
		Workers:       harvest.DefaultWorkers,
		FetchRetries:  harvest.DefaultFetchRetries,
		RetryDelay:    harvest.DefaultRetryDelay,
		AssessTimeout: defaultAssessTimeout,
		CleanDir:      strings.TrimSpace(*cleanDir),
		FastQCPath:    envOr(strings.TrimSpace(*fastqcPath), "FASTQC_PATH"),
		Email:         envOr(strings.TrimSpace(*email), "NCBI_EMAIL"),
		APIKey:        envOr(strings.TrimSpace(*apiKey), "NCBI_API_KEY"),
	}

	m := newMonitorModel(cfg)
	p := tea.NewProgram(m, tea.WithAltScreen())
	finalModel, err := p.Run()
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "tty") {
			return errors.New("monitor requires an interactive terminal (TTY)")
		}
		return err
	}
	if fm, ok := finalModel.(monitorModel); ok {
		if fm.runErr != nil {
			return fm.runErr
		}
		if fm.summary != nil && fm.summary.Outcome == model.OutcomeFailed {
			return fmt.Errorf("harvest failed: %s", fm.summary.FatalReason)
		}
	}
	return nil
}

func newMonitorModel(cfg harvestConfig) monitorModel {
	newInput := func(placeholder, value string) textinput.Model {
		in := textinput.New()
		in.Placeholder = placeholder
		in.SetValue(value)
		in.CharLimit = 120
		return in
	}
	fields := []monitorField{
		{Label: "Search term", Input: newInput("mouse chip-seq", ""), Required: true},
		{Label: "Clean datasets wanted", Input: newInput("", strconv.Itoa(cfg.Target)), Numeric: true},
		{Label: "Workers", Input: newInput("", strconv.Itoa(cfg.Workers)), Numeric: true},
	}
	fields[0].Input.Focus()

	return monitorModel{
		cfg:    cfg,
		mode:   monitorModeForm,
		fields: fields,
		bar:    progress.New(progress.WithDefaultGradient()),
		width:  80,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(20, msg.Width-20)
		return m, nil
	case harvestEventMsg:
		ev := harvest.Event(msg)
		m.state = ev.State
		m.bytesFetched = ev.BytesFetched
		m.bytesExpected = ev.BytesExpected
		if line := formatEventLine(ev); line != "" {
			m.recent = append(m.recent, line)
			if len(m.recent) > monitorEventWindow {
				m.recent = m.recent[len(m.recent)-monitorEventWindow:]
			}
		}
		return m, waitForEvent(m.events)
	case harvestDoneMsg:
		m.mode = monitorModeDone
		m.summary = &msg.summary
		m.runErr = msg.err
		return m, nil
	case tea.KeyMsg:
		return m.updateKey(msg)
	}
	return m.updateFocusedField(msg)
}

func (m monitorModel) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.mode {
	case monitorModeForm:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "tab", "down":
			return m.moveFocus(1), nil
		case "shift+tab", "up":
			return m.moveFocus(-1), nil
		case "enter":
			if m.focus < len(m.fields)-1 {
				return m.moveFocus(1), nil
			}
			return m.submitForm()
		}
		return m.updateFocusedField(msg)
	case monitorModeRunning:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.cancelRun != nil && !m.cancelling {
				m.cancelling = true
				m.cancelRun()
			}
			return m, nil
		}
		return m, nil
	default:
		switch msg.String() {
		case "q", "ctrl+c", "esc", "enter":
			return m, tea.Quit
		}
		return m, nil
	}
}

func (m monitorModel) updateFocusedField(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.mode != monitorModeForm {
		return m, nil
	}
	var cmd tea.Cmd
	m.fields[m.focus].Input, cmd = m.fields[m.focus].Input.Update(msg)
	return m, cmd
}

func (m monitorModel) moveFocus(delta int) monitorModel {
	m.fields[m.focus].Input.Blur()
	m.focus = (m.focus + delta + len(m.fields)) % len(m.fields)
	m.fields[m.focus].Input.Focus()
	return m
}

func (m monitorModel) submitForm() (tea.Model, tea.Cmd) {
	term := strings.TrimSpace(m.fields[0].Input.Value())
	if term == "" {
		m.formErr = "search term is required"
		return m, nil
	}
	target, err := strconv.Atoi(strings.TrimSpace(m.fields[1].Input.Value()))
	if err != nil || target <= 0 {
		m.formErr = "clean datasets wanted must be a positive number"
		return m, nil
	}
	workers, err := strconv.Atoi(strings.TrimSpace(m.fields[2].Input.Value()))
	if err != nil || workers <= 0 {
		m.formErr = "workers must be a positive number"
		return m, nil
	}

	m.cfg.Term = term
	m.cfg.Target = target
	m.cfg.Workers = workers
	m.formErr = ""
	m.mode = monitorModeRunning
	m.state = model.RunState{Target: target}
	return m.startHarvest()
}

func (m monitorModel) startHarvest() (tea.Model, tea.Cmd) {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelRun = cancel

	reporter := harvest.NewChannelReporter(256)
	done := make(chan harvestDoneMsg, 1)
	cfg := m.cfg
	go func() {
		opts, cleanup, err := buildPipeline(ctx, cfg)
		if err != nil {
			close(reporter.C)
			done <- harvestDoneMsg{err: err}
			return
		}
		opts.Reporter = reporter
		summary, runErr := harvest.Run(ctx, opts)
		cleanup()
		close(reporter.C)
		done <- harvestDoneMsg{summary: summary, err: runErr}
	}()

	m.events = reporter.C
	m.done = done
	return m, tea.Batch(waitForEvent(reporter.C), waitForDone(done))
}

func waitForEvent(ch <-chan harvest.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return harvestEventMsg(ev)
	}
}

func waitForDone(ch <-chan harvestDoneMsg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

func formatEventLine(ev harvest.Event) string {
	if ev.Accession == "" && ev.Reason == "" {
		return ""
	}
	ts := ev.Time.Format("15:04:05")
	verb := ev.Status
	if ev.Accession == "" {
		return fmt.Sprintf("%s %s", ts, ev.Reason)
	}
	if ev.Reason != "" {
		return fmt.Sprintf("%s %-9s %s (%s)", ts, verb, ev.Accession, ev.Reason)
	}
	return fmt.Sprintf("%s %-9s %s", ts, verb, ev.Accession)
}

func (m monitorModel) View() string {
	switch m.mode {
	case monitorModeForm:
		return m.viewForm()
	case monitorModeRunning:
		return m.viewRunning()
	default:
		return m.viewDone()
	}
}

func (m monitorModel) viewForm() string {
	var b strings.Builder
	b.WriteString(monitorTitleStyle.Render("sra-harvest monitor"))
	b.WriteString("\n\n")
	for i, f := range m.fields {
		cursor := "  "
		if i == m.focus {
			cursor = "> "
		}
		b.WriteString(fmt.Sprintf("%s%s\n  %s\n\n", cursor, f.Label, f.Input.View()))
	}
	if m.formErr != "" {
		b.WriteString(monitorErrorStyle.Render(m.formErr))
		b.WriteString("\n\n")
	}
	b.WriteString(monitorMutedStyle.Render("enter to start · tab to move · esc to quit"))
	return monitorPanelStyle.Render(b.String())
}

func (m monitorModel) viewRunning() string {
	checked := m.state.Clean + m.state.QualityFailed + m.state.FetchFailed + m.state.Failed
	rate := "n/a"
	if checked > 0 {
		rate = fmt.Sprintf("%.0f%%", 100*float64(m.state.Clean)/float64(checked))
	}

	var b strings.Builder
	b.WriteString(monitorTitleStyle.Render(fmt.Sprintf("harvesting %q", m.cfg.Term)))
	b.WriteString("\n\n")
	b.WriteString(m.bar.ViewAs(float64(m.state.Clean) / float64(m.state.Target)))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("checked %d · clean %d/%d · success rate %s\n",
		checked, m.state.Clean, m.state.Target, rate))
	b.WriteString(fmt.Sprintf("active %d · fetch failed %d · quality failed %d · other %d\n",
		m.state.Active, m.state.FetchFailed, m.state.QualityFailed, m.state.Failed))
	line := "fetched " + formatBytesIEC(m.bytesFetched)
	if m.bytesExpected > 0 {
		line += " of ~" + formatBytesIEC(m.bytesExpected)
	}
	b.WriteString(line + "\n\n")

	if len(m.recent) > 0 {
		b.WriteString(monitorMutedStyle.Render(strings.Join(m.recent, "\n")))
		b.WriteString("\n\n")
	}
	hint := "q to cancel (in-flight downloads finish first)"
	if m.cancelling {
		hint = "cancelling: draining in-flight downloads..."
	}
	b.WriteString(monitorMutedStyle.Render(hint))
	return monitorPanelStyle.Render(b.String())
}

func (m monitorModel) viewDone() string {
	var b strings.Builder
	if m.runErr != nil {
		b.WriteString(monitorErrorStyle.Render("harvest error: " + m.runErr.Error()))
		b.WriteString("\n\n")
		b.WriteString(monitorMutedStyle.Render("q to quit"))
		return monitorPanelStyle.Render(b.String())
	}
	s := m.summary
	header := fmt.Sprintf("harvest %s", s.Outcome)
	if s.Outcome == model.OutcomeCompleted {
		b.WriteString(monitorOKStyle.Render(header))
	} else {
		b.WriteString(monitorTitleStyle.Render(header))
	}
	b.WriteString("\n\n")
	if s.FatalReason != "" {
		b.WriteString(monitorErrorStyle.Render(s.FatalReason))
		b.WriteString("\n")
	}
	b.WriteString(fmt.Sprintf("clean %d/%d · attempted %d · fetched %s\n",
		s.State.Clean, s.State.Target, s.State.Attempted, formatBytesIEC(s.BytesFetched)))
	if len(s.Promoted) > 0 {
		b.WriteString("promoted: " + strings.Join(s.Promoted, ", ") + "\n")
	}
	b.WriteString("clean_dir: " + s.CleanDir + "\n\n")
	b.WriteString(monitorMutedStyle.Render("q to quit"))
	return monitorPanelStyle.Render(b.String())
}
