// Package tui renders the multi-session chat client: one tab per login,
// a viewport for the focused conversation, and a text input routed to
// the focused session. All chat state lives in the client.Manager; the
// model here only reads snapshots and forwards input.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/technologicalMayhem/chat-app/internal/client"
)

type mode int

const (
	modeLogin mode = iota
	modeChat
)

var (
	tabStyle        = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("245"))
	activeTabStyle  = lipgloss.NewStyle().Padding(0, 1).Bold(true).Foreground(lipgloss.Color("212"))
	offlineTabStyle = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("196"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	senderStyle     = lipgloss.NewStyle().Bold(true)
)

type nudgeMsg struct{}

type loginResultMsg struct {
	err error
}

type postResultMsg struct {
	err error
}

// Model is the bubbletea model for the whole client.
type Model struct {
	manager *client.Manager

	mode     mode
	viewport viewport.Model
	input    textinput.Model

	// login form
	userInput  textinput.Model
	passInput  textinput.Model
	loginField int
	register   bool
	loggingIn  bool

	status string
	width  int
	height int
	ready  bool
}

func New(manager *client.Manager) Model {
	input := textinput.New()
	input.Placeholder = "Type a message..."
	input.CharLimit = 512

	user := textinput.New()
	user.Placeholder = "username"
	user.Focus()

	pass := textinput.New()
	pass.Placeholder = "password"
	pass.EchoMode = textinput.EchoPassword

	return Model{
		manager:   manager,
		mode:      modeLogin,
		input:     input,
		userInput: user,
		passInput: pass,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForNudge())
}

// waitForNudge parks a command on the manager's nudge channel; every
// delivery, connectivity flip, or focus change lands here as a message.
func (m Model) waitForNudge() tea.Cmd {
	return func() tea.Msg {
		<-m.manager.Nudge()
		return nudgeMsg{}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		// Tab bar, separator, input, and status each take a line.
		contentHeight := msg.Height - 4
		if !m.ready {
			m.viewport = viewport.New(msg.Width, contentHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = contentHeight
		}
		m.input.Width = msg.Width - 4
		m.refreshConversation()
		return m, nil

	case nudgeMsg:
		m.refreshConversation()
		return m, tea.Batch(m.waitForNudge(), m.resolveNamesCmd())

	case loginResultMsg:
		m.loggingIn = false
		if msg.err != nil {
			m.status = errorStyle.Render(msg.err.Error())
			return m, nil
		}
		m.status = ""
		m.mode = modeChat
		m.userInput.SetValue("")
		m.passInput.SetValue("")
		m.input.Focus()
		m.refreshConversation()
		return m, nil

	case postResultMsg:
		if msg.err != nil {
			m.status = errorStyle.Render("send failed: " + msg.err.Error())
		}
		return m, nil
	}

	return m.updateFocusedInputs(msg)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		m.manager.CloseAll()
		return m, tea.Quit
	}

	if m.mode == modeLogin {
		return m.handleLoginKey(msg)
	}
	return m.handleChatKey(msg)
}

func (m Model) handleLoginKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		if len(m.manager.Slots()) > 0 {
			m.mode = modeChat
			m.status = ""
			m.input.Focus()
		}
		return m, nil

	case tea.KeyTab, tea.KeyShiftTab:
		m.loginField = 1 - m.loginField
		if m.loginField == 0 {
			m.userInput.Focus()
			m.passInput.Blur()
		} else {
			m.passInput.Focus()
			m.userInput.Blur()
		}
		return m, nil

	case tea.KeyCtrlR:
		m.register = !m.register
		return m, nil

	case tea.KeyEnter:
		username := strings.TrimSpace(m.userInput.Value())
		password := m.passInput.Value()
		if username == "" || password == "" || m.loggingIn {
			return m, nil
		}
		m.loggingIn = true
		m.status = statusStyle.Render("logging in as " + username + "...")
		register := m.register
		return m, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_, err := m.manager.Open(ctx, username, password, register)
			return loginResultMsg{err: err}
		}
	}

	var cmd tea.Cmd
	if m.loginField == 0 {
		m.userInput, cmd = m.userInput.Update(msg)
	} else {
		m.passInput, cmd = m.passInput.Update(msg)
	}
	return m, cmd
}

func (m Model) handleChatKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyTab:
		m.manager.CycleFocus(1)
		m.refreshConversation()
		return m, nil

	case tea.KeyShiftTab:
		m.manager.CycleFocus(-1)
		m.refreshConversation()
		return m, nil

	case tea.KeyCtrlN:
		m.mode = modeLogin
		m.loginField = 0
		m.userInput.Focus()
		m.passInput.Blur()
		return m, textinput.Blink

	case tea.KeyCtrlW:
		m.manager.Close(m.manager.Focused())
		if len(m.manager.Slots()) == 0 {
			m.mode = modeLogin
			m.userInput.Focus()
		}
		m.refreshConversation()
		return m, nil

	case tea.KeyEnter:
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		m.input.SetValue("")
		// Resolve the focused slot now, at keystroke time. If focus
		// moves while the post is in flight, it still goes out through
		// the session the user was looking at.
		slot := m.manager.Focused()
		return m, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return postResultMsg{err: m.manager.SendInput(ctx, slot, text)}
		}
	}

	return m.updateFocusedInputs(msg)
}

func (m Model) updateFocusedInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	var inputCmd, vpCmd tea.Cmd
	if m.mode == modeChat {
		m.input, inputCmd = m.input.Update(msg)
		m.viewport, vpCmd = m.viewport.Update(msg)
	} else if m.loginField == 0 {
		m.userInput, inputCmd = m.userInput.Update(msg)
	} else {
		m.passInput, inputCmd = m.passInput.Update(msg)
	}
	return m, tea.Batch(inputCmd, vpCmd)
}

// refreshConversation rebuilds the viewport from the focused session's
// snapshot. Reads only — the snapshot is already a private copy.
func (m *Model) refreshConversation() {
	if !m.ready {
		return
	}

	slot := m.manager.Focused()
	msgs := m.manager.MessagesFor(slot)

	lines := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		lines = append(lines, fmt.Sprintf("%s %s %s",
			statusStyle.Render(msg.CreatedAt.Local().Format("15:04")),
			senderStyle.Render(m.manager.Name(msg.UserID)+":"),
			msg.Text,
		))
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
	m.viewport.GotoBottom()
}

// resolveNamesCmd fills the username cache for the focused conversation
// in the background.
func (m Model) resolveNamesCmd() tea.Cmd {
	slot := m.manager.Focused()
	msgs := m.manager.MessagesFor(slot)
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m.manager.EnsureNames(ctx, slot, msgs)
		return nil
	}
}

func (m Model) View() string {
	if m.mode == modeLogin {
		return m.loginView()
	}
	if !m.ready {
		return "\n  Initializing..."
	}

	return fmt.Sprintf("%s\n%s\n%s\n%s\n%s",
		m.tabBar(),
		m.viewport.View(),
		strings.Repeat("─", max(m.width, 1)),
		m.input.View(),
		m.statusLine(),
	)
}

func (m Model) tabBar() string {
	focused := m.manager.Focused()
	var tabs []string
	for _, slot := range m.manager.Slots() {
		username, _, connected, ok := m.manager.SessionInfo(slot)
		if !ok {
			continue
		}
		label := username
		if !connected {
			label += " (offline)"
		}
		switch {
		case slot == focused:
			tabs = append(tabs, activeTabStyle.Render(label))
		case !connected:
			tabs = append(tabs, offlineTabStyle.Render(label))
		default:
			tabs = append(tabs, tabStyle.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m Model) statusLine() string {
	if m.status != "" {
		return m.status
	}
	return statusStyle.Render("tab: switch · ctrl+n: new login · ctrl+w: close · ctrl+c: quit")
}

func (m Model) loginView() string {
	var b strings.Builder
	b.WriteString("\n  Log in to chat\n\n")
	b.WriteString("  " + m.userInput.View() + "\n")
	b.WriteString("  " + m.passInput.View() + "\n\n")
	if m.register {
		b.WriteString("  [x] register a new account (ctrl+r)\n")
	} else {
		b.WriteString("  [ ] register a new account (ctrl+r)\n")
	}
	b.WriteString("\n  " + statusStyle.Render("enter: submit · tab: next field · esc: back") + "\n")
	if m.status != "" {
		b.WriteString("\n  " + m.status + "\n")
	}
	return b.String()
}
