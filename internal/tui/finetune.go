package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// Validation texts
const (
	RequiredText      = "Required"
	FinishFieldsText  = "*Please finish indicated fields"
	FileImportFailed  = "File import failed."
	logViewportHeight = 3
)

type focusField int

const (
	focusModel focusField = iota
	focusData
	focusButton
	focusCount
)

type fineTuneStartedMsg struct {
	job *Job
}

type fineTuneLineMsg struct {
	line string
}

type fineTuneExitMsg struct {
	err error
}

type fineTuneStartErrMsg struct {
	err error
}

// FineTuneModel is the "Fine Tune Model" view
type FineTuneModel struct {
	runner Runner

	modelInput textinput.Model
	dataInput  textinput.Model
	focus      focusField

	showValidation bool
	dataErr        string

	status   fineTuneStatus
	job      *Job
	cancel   context.CancelFunc
	output   []string
	log      viewport.Model
	progress progress.Model
	width    int
}

// NewFineTuneModel builds the view
func NewFineTuneModel(runner Runner) FineTuneModel {
	mi := textinput.New()
	mi.Placeholder = "Enter the url for model"
	mi.Prompt = ""
	mi.Focus()

	di := textinput.New()
	di.Placeholder = "Path to your .jsonl file"
	di.Prompt = ""

	return FineTuneModel{
		runner:     runner,
		modelInput: mi,
		dataInput:  di,
		status:     fineTuneStatus{Text: StatusWaiting},
		log:        viewport.New(80, logViewportHeight),
		progress:   progress.New(progress.WithDefaultGradient()),
		width:      80,
	}
}

func (m FineTuneModel) Init() tea.Cmd {
	return textinput.Blink
}

// Running reports whether a fine-tuning job is in flight
func (m FineTuneModel) Running() bool {
	return m.status.Running
}

func (m FineTuneModel) modelMissing() bool {
	return strings.TrimSpace(m.modelInput.Value()) == ""
}

// dataPath validates the dataset field, returning the path when usable
func (m FineTuneModel) dataPath() (string, string) {
	path := strings.TrimSpace(m.dataInput.Value())
	if path == "" {
		return "", ""
	}
	if !strings.EqualFold(filepath.Ext(path), ".jsonl") {
		return "", FileImportFailed
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return "", FileImportFailed
	}
	return path, ""
}

func (m *FineTuneModel) setFocus(f focusField) {
	m.focus = (f + focusCount) % focusCount
	m.modelInput.Blur()
	m.dataInput.Blur()
	switch m.focus {
	case focusModel:
		m.modelInput.Focus()
	case focusData:
		m.dataInput.Focus()
	}
}

func (m FineTuneModel) Update(msg tea.Msg) (FineTuneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.log.Width = msg.Width - 4
		m.progress.Width = min(msg.Width-4, 80)
		m.modelInput.Width = msg.Width - 8
		m.dataInput.Width = msg.Width - 8
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "tab", "down":
			m.setFocus(m.focus + 1)
			return m, nil
		case "shift+tab", "up":
			m.setFocus(m.focus - 1)
			return m, nil
		case "enter":
			if m.focus != focusButton {
				m.setFocus(m.focus + 1)
				return m, nil
			}
			return m.start()
		case "ctrl+s":
			return m.start()
		case "esc":
			if m.cancel != nil {
				m.cancel()
			}
			return m, nil
		}

	case fineTuneStartedMsg:
		m.job = msg.job
		return m, waitForJob(msg.job)

	case fineTuneStartErrMsg:
		m.status.Running = false
		m.dataErr = fmt.Sprintf("Failed to start fine-tuning: %v", msg.err)
		return m, nil

	case fineTuneLineMsg:
		m.output = append(m.output, msg.line)
		m.status = applyLine(m.status, msg.line)
		m.log.SetContent(strings.Join(m.output, "\n"))
		m.log.GotoBottom()
		return m, waitForJob(m.job)

	case fineTuneExitMsg:
		if msg.err != nil && m.status.Running {
			m.status.Text = fmt.Sprintf(StatusFailedFmt, msg.err)
		}
		m.status.Running = false
		m.job = nil
		if m.cancel != nil {
			m.cancel()
			m.cancel = nil
		}
		return m, nil
	}

	var cmd tea.Cmd
	switch m.focus {
	case focusModel:
		m.modelInput, cmd = m.modelInput.Update(msg)
	case focusData:
		m.dataInput, cmd = m.dataInput.Update(msg)
	}
	return m, cmd
}

func (m FineTuneModel) start() (FineTuneModel, tea.Cmd) {
	if m.status.Running {
		return m, nil
	}

	data, dataErr := m.dataPath()
	m.dataErr = dataErr
	if m.modelMissing() || data == "" {
		m.showValidation = true
		return m, nil
	}

	m.showValidation = false
	m.output = nil
	m.log.SetContent("")
	m.status = fineTuneStatus{Text: StatusStarting, Running: true}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	model := strings.TrimSpace(m.modelInput.Value())
	runner := m.runner

	return m, func() tea.Msg {
		job, err := runner.StartFineTune(ctx, model, data)
		if err != nil {
			return fineTuneStartErrMsg{err: err}
		}
		return fineTuneStartedMsg{job: job}
	}
}

// waitForJob delivers the next output line, then the exit status
func waitForJob(job *Job) tea.Cmd {
	if job == nil {
		return nil
	}
	return func() tea.Msg {
		if line, ok := <-job.Lines; ok {
			return fineTuneLineMsg{line: line}
		}
		return fineTuneExitMsg{err: <-job.Done}
	}
}

func (m FineTuneModel) View() string {
	var sb strings.Builder

	sb.WriteString(headingStyle.Render("Type in your Hugging Face base model."))
	sb.WriteString("\n")
	style := fieldStyle
	if m.showValidation && m.modelMissing() {
		style = invalidFieldStyle
	}
	sb.WriteString(style.Width(max(m.width-4, 20)).Render(m.modelInput.View()))
	sb.WriteString("\n")
	if m.showValidation && m.modelMissing() {
		sb.WriteString(errorStyle.Render(RequiredText) + "\n")
	}

	sb.WriteString("\n")
	sb.WriteString(headingStyle.Render("Select your .jsonl file"))
	sb.WriteString("\n")
	data, _ := m.dataPath()
	style = fieldStyle
	if m.showValidation && data == "" {
		style = invalidFieldStyle
	}
	sb.WriteString(style.Width(max(m.width-4, 20)).Render(m.dataInput.View()))
	sb.WriteString("\n")
	switch {
	case m.dataErr != "":
		sb.WriteString(errorStyle.Render("❌ "+m.dataErr) + "\n")
	case data != "":
		sb.WriteString(successStyle.Render("✅ Loaded: "+filepath.Base(data)) + "\n")
	case m.showValidation:
		sb.WriteString(errorStyle.Render(RequiredText) + "\n")
	}

	if m.showValidation && (m.modelMissing() || data == "") {
		sb.WriteString("\n" + errorStyle.Render(FinishFieldsText) + "\n")
	}

	if m.status.Running || len(m.output) > 0 {
		sb.WriteString("\n")
		sb.WriteString(statusStyle.Render(m.status.Text))
		sb.WriteString("\n")
		sb.WriteString(m.progress.ViewAs(m.status.Progress))
		sb.WriteString("\n")
		sb.WriteString(logStyle.Render(m.log.View()))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	button := buttonStyle
	switch {
	case m.status.Running:
		button = disabledButtonStyle
	case m.focus == focusButton:
		button = focusedButtonStyle
	}
	sb.WriteString(button.Render("Fine Tune Model"))
	sb.WriteString("\n\n")
	sb.WriteString(helpStyle.Render("Tab: Next field | Enter: Select | Ctrl+S: Start | Esc: Stop"))

	return sb.String()
}
