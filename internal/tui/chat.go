package tui

import (
	"context"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/xupit3r/tunebox/internal/chat"
	"github.com/xupit3r/tunebox/internal/logging"
)

// Chat view texts
const (
	DropHint        = "Drag and drop your model folder here"
	LoadErrorText   = "Error: Could not load the model from the provided folder."
	GeneratingText  = "Generating response..."
	chatChromeLines = 7
)

type chatReplyMsg struct {
	text string
}

// ChatModel is the "Chat with Model" view
type ChatModel struct {
	runner      Runner
	history     *chat.History
	historyPath string

	pathInput  textinput.Model
	input      textinput.Model
	viewport   viewport.Model
	loaded     bool
	loadErr    string
	generating bool
	width      int
	height     int
}

// NewChatModel builds the view around a persisted history file
func NewChatModel(runner Runner, historyPath string) ChatModel {
	history, err := chat.LoadHistory(historyPath)
	if err != nil {
		logging.Warnf("Starting with empty chat history: %v", err)
		history = &chat.History{}
	}

	pi := textinput.New()
	pi.Placeholder = DropHint
	pi.Prompt = "📁 "
	pi.Focus()

	in := textinput.New()
	in.Placeholder = "Enter your message"
	in.Prompt = "❯ "
	in.CharLimit = 4000

	m := ChatModel{
		runner:      runner,
		history:     history,
		historyPath: historyPath,
		pathInput:   pi,
		input:       in,
		viewport:    viewport.New(80, 20),
		width:       80,
		height:      24,
	}
	if history.ModelPath != "" {
		pi.SetValue(history.ModelPath)
		m.pathInput = pi
	}
	return m
}

func (m ChatModel) Init() tea.Cmd {
	return textinput.Blink
}

// CanSend reports whether Send is enabled
func (m ChatModel) CanSend() bool {
	return m.loaded && !m.generating && strings.TrimSpace(m.input.Value()) != ""
}

// Messages returns the conversation shown in the view
func (m ChatModel) Messages() []chat.Message {
	return m.history.Messages
}

func (m ChatModel) Update(msg tea.Msg) (ChatModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-chatChromeLines-4, 3)
		m.input.Width = msg.Width - 6
		m.pathInput.Width = msg.Width - 6
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if !m.loaded {
			if msg.Type == tea.KeyEnter {
				m.loadModel(strings.TrimSpace(m.pathInput.Value()))
				return m, nil
			}
			break
		}

		switch msg.String() {
		case "enter":
			if !m.CanSend() {
				return m, nil
			}
			return m.send()
		case "ctrl+r":
			m.resetChat()
			return m, nil
		case "ctrl+o":
			m.loaded = false
			m.input.Blur()
			m.pathInput.Focus()
			return m, nil
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case chatReplyMsg:
		m.generating = false
		m.history.Append(chat.RoleAssistant, msg.text)
		m.saveHistory()
		m.refresh()
		return m, nil
	}

	var cmd tea.Cmd
	if m.loaded {
		m.input, cmd = m.input.Update(msg)
	} else {
		m.pathInput, cmd = m.pathInput.Update(msg)
	}
	return m, cmd
}

// loadModel switches to the folder at path, clearing the conversation
// when it differs from the previous folder.
func (m *ChatModel) loadModel(path string) {
	info, err := os.Stat(path)
	if path == "" || err != nil || !info.IsDir() {
		m.loaded = false
		m.loadErr = LoadErrorText
		return
	}

	if m.history.SwitchModel(path) {
		m.saveHistory()
	}
	m.loaded = true
	m.loadErr = ""
	m.pathInput.Blur()
	m.input.Focus()
	m.refresh()
}

func (m ChatModel) send() (ChatModel, tea.Cmd) {
	text := m.input.Value()
	m.history.Append(chat.RoleUser, text)
	m.input.Reset()
	m.generating = true
	m.refresh()

	runner, modelPath := m.runner, m.history.ModelPath
	return m, func() tea.Msg {
		return chatReplyMsg{text: runner.Chat(context.Background(), text, modelPath)}
	}
}

func (m *ChatModel) resetChat() {
	m.history.Reset()
	m.saveHistory()
	m.refresh()
}

func (m *ChatModel) saveHistory() {
	if m.historyPath == "" {
		return
	}
	if err := m.history.Save(m.historyPath); err != nil {
		logging.Warnf("Failed to save chat history: %v", err)
	}
}

func (m *ChatModel) refresh() {
	var parts []string
	for _, msg := range m.history.Messages {
		if msg.IsUser() {
			parts = append(parts, userStyle.Render("You: ")+msg.Content)
		} else {
			parts = append(parts, assistantStyle.Render("Model: ")+HighlightCode(msg.Content))
		}
	}
	if m.generating {
		parts = append(parts, helpStyle.Render(GeneratingText))
	}
	m.viewport.SetContent(strings.Join(parts, "\n\n"))
	m.viewport.GotoBottom()
}

func (m ChatModel) View() string {
	var sb strings.Builder

	if !m.loaded {
		sb.WriteString(headingStyle.Render(DropHint))
		sb.WriteString("\n")
		sb.WriteString(fieldStyle.Width(max(m.width-4, 20)).Render(m.pathInput.View()))
		sb.WriteString("\n")
		if m.loadErr != "" {
			sb.WriteString(errorStyle.Render(m.loadErr) + "\n")
		}
		sb.WriteString("\n")
		sb.WriteString(helpStyle.Render("Enter: Load model folder"))
		return sb.String()
	}

	sb.WriteString(statusStyle.Render("📁 " + m.history.ModelPath))
	sb.WriteString("\n\n")
	sb.WriteString(m.viewport.View())
	sb.WriteString("\n\n")
	sb.WriteString(m.input.View())
	sb.WriteString("  ")
	if m.CanSend() {
		sb.WriteString(buttonStyle.Render("Send"))
	} else {
		sb.WriteString(disabledButtonStyle.Render("Send"))
	}
	sb.WriteString("\n\n")
	sb.WriteString(helpStyle.Render("Enter: Send | Ctrl+R: Reset Chat | Ctrl+O: Change model folder | PgUp/PgDn: Scroll"))

	return sb.String()
}
