package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

type tab int

const (
	tabFineTune tab = iota
	tabChat
)

var tabNames = []string{"Fine Tune Model", "Chat with Model"}

// Studio hosts the fine-tune and chat views behind a tab bar
type Studio struct {
	active   tab
	fineTune FineTuneModel
	chat     ChatModel
	width    int
}

// NewStudio builds the studio with both views sharing runner
func NewStudio(runner Runner, historyPath string) Studio {
	return Studio{
		fineTune: NewFineTuneModel(runner),
		chat:     NewChatModel(runner, historyPath),
		width:    80,
	}
}

func (s Studio) Init() tea.Cmd {
	return tea.Batch(s.fineTune.Init(), s.chat.Init())
}

func (s Studio) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		s.width = msg.Width
		inner := tea.WindowSizeMsg{Width: msg.Width, Height: msg.Height - 3}
		var c1, c2 tea.Cmd
		s.fineTune, c1 = s.fineTune.Update(inner)
		s.chat, c2 = s.chat.Update(inner)
		return s, tea.Batch(c1, c2)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			if s.fineTune.cancel != nil {
				s.fineTune.cancel()
			}
			return s, tea.Quit
		case "f1":
			s.active = tabFineTune
			return s, nil
		case "f2":
			s.active = tabChat
			return s, nil
		case "ctrl+t":
			s.active = (s.active + 1) % tab(len(tabNames))
			return s, nil
		}

	// background results go to their owner regardless of the active tab
	case fineTuneStartedMsg, fineTuneStartErrMsg, fineTuneLineMsg, fineTuneExitMsg:
		var cmd tea.Cmd
		s.fineTune, cmd = s.fineTune.Update(msg)
		return s, cmd
	case chatReplyMsg:
		var cmd tea.Cmd
		s.chat, cmd = s.chat.Update(msg)
		return s, cmd
	}

	var cmd tea.Cmd
	if s.active == tabChat {
		s.chat, cmd = s.chat.Update(msg)
	} else {
		s.fineTune, cmd = s.fineTune.Update(msg)
	}
	return s, cmd
}

func (s Studio) View() string {
	var tabs []string
	for i, name := range tabNames {
		if tab(i) == s.active {
			tabs = append(tabs, activeTabStyle.Render(name))
		} else {
			tabs = append(tabs, tabStyle.Render(name))
		}
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("🎛  tunebox studio"))
	sb.WriteString("\n")
	sb.WriteString(strings.Join(tabs, " "))
	sb.WriteString(helpStyle.Render("   F1/F2: Switch view | Ctrl+C: Quit"))
	sb.WriteString("\n\n")
	if s.active == tabChat {
		sb.WriteString(s.chat.View())
	} else {
		sb.WriteString(s.fineTune.View())
	}
	return sb.String()
}

// Run starts the studio in the alternate screen and blocks until exit
func Run(runner Runner, historyPath string) error {
	p := tea.NewProgram(NewStudio(runner, historyPath), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
