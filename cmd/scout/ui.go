package main

import (
	"context"
	"fmt"
	"strings"

	"scout/internal/config"
	"scout/internal/logging"
	"scout/internal/report"
	"scout/internal/research"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// uiCmd starts the interactive interface
var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Interactive research interface",
	Long: `Starts the interactive terminal interface.

Type a topic, watch the pipeline stages run, and read the finished report
inline. The report is saved to the report directory and archived
automatically.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInteractiveUI()
	},
}

// Palette shared by the interactive views
var (
	uiTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8BC34A"))
	uiStageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#2196F3"))
	uiErrorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#e53935"))
	uiMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	uiSpinStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107"))
)

type uiPhase int

const (
	phaseTopic uiPhase = iota
	phaseRunning
	phaseDone
	phaseFailed
)

// progressMsg carries one pipeline state transition into the UI loop
type progressMsg research.Progress

// runFinishedMsg ends the running phase
type runFinishedMsg struct {
	rep        *research.Report
	results    []research.SubtaskResult
	err        error
	archiveErr error
	savedPath  string
	saveErr    error
}

// uiModel drives the topic -> running -> report interaction
type uiModel struct {
	phase    uiPhase
	input    textinput.Model
	spin     spinner.Model
	view     viewport.Model
	renderer *glamour.TermRenderer

	cfg      *config.Config
	timeouts config.PipelineTimeouts

	topic        string
	defaultTopic string
	stages       []string
	progress     chan research.Progress
	cancel       context.CancelFunc
	cleanup      func()

	rep        *research.Report
	results    []research.SubtaskResult
	runErr     error
	archiveErr error
	savedPath  string
	saveErr    error

	width  int
	height int
}

// runInteractiveUI loads the config and starts the bubbletea program
func runInteractiveUI() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if apiKey != "" {
		cfg.LLM.APIKey = apiKey
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w (run 'scout config init' and set an API key)", err)
	}

	// Pick up logging switches edited in .scout/config.json mid-session
	if watcher, werr := config.NewWatcher(workspace, func() {
		_ = logging.ReloadConfig()
	}); werr == nil {
		wctx, wcancel := context.WithCancel(context.Background())
		defer wcancel()
		if watcher.Start(wctx) == nil {
			defer watcher.Stop()
		}
	}

	logging.UI("Interactive session started")
	p := tea.NewProgram(
		newUIModel(cfg),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	final, err := p.Run()
	if m, ok := final.(uiModel); ok {
		m.shutdown()
	}
	logging.UI("Interactive session ended")
	return err
}

func newUIModel(cfg *config.Config) uiModel {
	defaultTopic := "AI in Healthcare"
	if uc, err := config.LoadUserConfig(config.DefaultUserConfigPath()); err == nil {
		defaultTopic = uc.GetDefaultTopic()
	}

	ti := textinput.New()
	ti.Placeholder = defaultTopic
	ti.Focus()
	ti.Prompt = "| "
	ti.CharLimit = 512
	ti.Width = 70
	ti.PromptStyle = uiTitleStyle
	ti.TextStyle = lipgloss.NewStyle()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = uiSpinStyle

	vp := viewport.New(80, 20)
	vp.SetContent("")

	renderer, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(78),
	)

	return uiModel{
		phase:        phaseTopic,
		input:        ti,
		spin:         sp,
		view:         vp,
		renderer:     renderer,
		cfg:          cfg,
		timeouts:     config.GetPipelineTimeouts(),
		defaultTopic: defaultTopic,
		cleanup:      func() {},
	}
}

// shutdown cancels any in-flight run and releases the fetch browser
func (m uiModel) shutdown() {
	if m.cancel != nil {
		m.cancel()
	}
	if m.cleanup != nil {
		m.cleanup()
	}
}

func (m uiModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m uiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.phase == phaseTopic {
				return m.startRun()
			}
		}
		if m.phase == phaseDone || m.phase == phaseFailed {
			if msg.String() == "q" {
				return m, tea.Quit
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = min(msg.Width-6, 100)
		m.view.Width = msg.Width
		m.view.Height = msg.Height - 3
		wrap := min(msg.Width-2, 100)
		if r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(wrap)); err == nil {
			m.renderer = r
		}
		if m.phase == phaseDone && m.rep != nil {
			m.view.SetContent(m.renderReport())
		}

	case progressMsg:
		p := research.Progress(msg)
		if len(p.Results) > 0 {
			m.results = p.Results
		}
		if line := stageLine(p); line != "" {
			m.stages = append(m.stages, line)
		}
		return m, waitForProgress(m.progress)

	case runFinishedMsg:
		m.rep = msg.rep
		if len(msg.results) > 0 {
			m.results = msg.results
		}
		m.runErr = msg.err
		m.archiveErr = msg.archiveErr
		m.savedPath = msg.savedPath
		m.saveErr = msg.saveErr
		m.cancel = nil
		if msg.err != nil {
			m.phase = phaseFailed
			return m, nil
		}
		m.phase = phaseDone
		m.view.SetContent(m.renderReport())
		m.view.GotoTop()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	switch m.phase {
	case phaseTopic:
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	case phaseDone:
		m.view, cmd = m.view.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// startRun wires a pipeline for the entered topic and launches it
func (m uiModel) startRun() (tea.Model, tea.Cmd) {
	topic := strings.TrimSpace(m.input.Value())
	if topic == "" {
		topic = m.defaultTopic
	}

	pipe, cleanup, err := buildPipeline(m.cfg, m.timeouts, m.cfg.IsBrowserEnabled())
	if err != nil {
		m.phase = phaseFailed
		m.runErr = err
		return m, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.timeouts.RunTimeout)
	ch := make(chan research.Progress, 16)

	logging.UI("Starting research from interactive mode: %s", topic)
	m.topic = topic
	m.phase = phaseRunning
	m.stages = nil
	m.progress = ch
	m.cancel = cancel
	m.cleanup = cleanup

	// The callback runs on the same goroutine as Run, so results is only
	// touched there until the finished message is sent.
	var results []research.SubtaskResult
	pipe.OnProgress(func(p research.Progress) {
		if len(p.Results) > 0 {
			results = p.Results
		}
		ch <- p
	})

	cfg := m.cfg
	run := func() tea.Msg {
		defer cancel()
		rep, err := pipe.Run(ctx, topic)
		msg := runFinishedMsg{results: results, err: err}
		if err == nil && rep != nil {
			msg.rep = rep
			msg.archiveErr = archiveReport(ctx, cfg, rep, results)
			format, ferr := report.ParseFormat(cfg.Report.Format)
			if ferr != nil {
				format = report.FormatMarkdown
			}
			msg.savedPath, msg.saveErr = report.Save(rep, report.SaveOptions{
				Dir:    cfg.Report.Dir,
				Format: format,
			})
		}
		close(ch)
		return msg
	}

	return m, tea.Batch(m.spin.Tick, waitForProgress(ch), run)
}

// waitForProgress relays the next pipeline transition into the UI loop
func waitForProgress(ch chan research.Progress) tea.Cmd {
	return func() tea.Msg {
		p, ok := <-ch
		if !ok {
			return nil
		}
		return progressMsg(p)
	}
}

func stageLine(p research.Progress) string {
	switch p.State {
	case research.StateDecomposing:
		return "Decomposing topic into subtasks"
	case research.StateCollecting:
		return "Collecting evidence from the web"
	case research.StateSynthesizing:
		complete, partial, failed := research.CountStatuses(p.Results)
		return fmt.Sprintf("Synthesizing report (%d complete, %d partial, %d failed)", complete, partial, failed)
	case research.StateDone:
		return "Done"
	case research.StateAborted:
		return "Aborted"
	}
	return ""
}

// renderReport produces the markdown view of the finished report
func (m uiModel) renderReport() string {
	md, err := report.Render(m.rep, report.FormatMarkdown)
	if err != nil {
		return uiErrorStyle.Render(fmt.Sprintf("render failed: %v", err))
	}
	if m.renderer != nil {
		if pretty, err := m.renderer.Render(md); err == nil {
			return pretty
		}
	}
	return md
}

func (m uiModel) View() string {
	switch m.phase {
	case phaseTopic:
		var b strings.Builder
		b.WriteString(uiTitleStyle.Render("scout") + uiMutedStyle.Render("  research pipeline"))
		b.WriteString("\n\n")
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(uiMutedStyle.Render("Enter to start (empty input uses the shown topic), Ctrl+C to exit"))
		return b.String()

	case phaseRunning:
		var b strings.Builder
		b.WriteString(uiTitleStyle.Render("Researching: ") + m.topic)
		b.WriteString("\n\n")
		for _, line := range m.stages {
			b.WriteString(uiStageStyle.Render("  > "+line) + "\n")
		}
		b.WriteString("\n" + m.spin.View() + uiMutedStyle.Render(" working..."))
		return b.String()

	case phaseDone:
		footer := "q quit, arrows scroll"
		if m.savedPath != "" {
			footer = fmt.Sprintf("saved to %s | %s", m.savedPath, footer)
		} else if m.saveErr != nil {
			footer = fmt.Sprintf("save failed: %v | %s", m.saveErr, footer)
		}
		if m.archiveErr != nil {
			footer += " | archive failed"
		}
		return m.view.View() + "\n" + uiMutedStyle.Render(footer)

	case phaseFailed:
		return uiErrorStyle.Render("Research failed") + "\n\n" +
			fmt.Sprintf("%v", m.runErr) + "\n\n" +
			uiMutedStyle.Render("q to quit")
	}
	return ""
}
