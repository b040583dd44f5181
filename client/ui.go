package client

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/dkurenkov/veles/core/protocol"
)

var (
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	recordingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	helpStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
)

// StateMsg, ControlMsg and ErrorMsg are how the transport's callbacks reach
// the UI loop; main forwards them with Program.Send.
type (
	StateMsg   ConnectionState
	ControlMsg protocol.ControlMessage
	ErrorMsg   struct{ Err error }
)

type chatLine struct {
	speaker string
	text    string
}

// Model renders the conversation and drives recording. Space toggles the
// recording state rather than acting as push-to-talk; terminals report key
// presses only, never releases.
type Model struct {
	transport *Transport
	queue     *PlaybackQueue

	viewport viewport.Model
	spinner  spinner.Model

	lines      []chatLine
	responding bool
	state      ConnectionState
	lastErr    error

	width  int
	height int
	ready  bool
}

func NewModel(transport *Transport, queue *PlaybackQueue) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	return Model{
		transport: transport,
		queue:     queue,
		spinner:   s,
		state:     StateDisconnected,
	}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case " ":
			m.toggleRecording()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-2)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 2
		}
		m.viewport.SetContent(m.renderConversation())
		return m, nil

	case StateMsg:
		m.state = ConnectionState(msg)
		return m, nil

	case ControlMsg:
		m.applyControl(protocol.ControlMessage(msg))
		if m.ready {
			m.viewport.SetContent(m.renderConversation())
			m.viewport.GotoBottom()
		}
		return m, nil

	case ErrorMsg:
		m.lastErr = msg.Err
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Model) toggleRecording() {
	if m.transport.IsRecording() {
		if err := m.transport.StopRecording(); err != nil {
			m.lastErr = err
		}
		return
	}

	// Starting to talk takes over the output; stale playback is cut.
	m.queue.DrainAndStop()
	m.responding = false
	if err := m.transport.StartRecording(); err != nil {
		m.lastErr = err
	}
}

func (m *Model) applyControl(msg protocol.ControlMessage) {
	switch msg.Kind {
	case protocol.KindUserTranscription:
		m.lines = append(m.lines, chatLine{speaker: "Ты", text: msg.Text})
		m.responding = true
	case protocol.KindAssistantText:
		// Sentences of one turn merge into a single assistant line.
		if n := len(m.lines); n > 0 && m.lines[n-1].speaker == "Ассистент" && m.responding {
			m.lines[n-1].text += " " + msg.Text
		} else {
			m.lines = append(m.lines, chatLine{speaker: "Ассистент", text: msg.Text})
		}
	case protocol.KindEnd:
		m.responding = false
	}
}

func (m Model) renderConversation() string {
	width := m.width
	if width <= 0 {
		width = 80
	}

	var b strings.Builder
	for _, line := range m.lines {
		style := assistantStyle
		if line.speaker == "Ты" {
			style = userStyle
		}
		b.WriteString(style.Render(line.speaker+":") + " ")
		b.WriteString(wordwrap.String(line.text, width-len(line.speaker)-2))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) View() string {
	if !m.ready {
		return "Подключение..."
	}
	return m.viewport.View() + "\n" + m.statusLine()
}

func (m Model) statusLine() string {
	var status string
	switch m.state {
	case StateConnected:
		status = statusStyle.Render("соединение установлено")
	case StateConnecting:
		status = statusStyle.Render(m.spinner.View() + "подключение...")
	default:
		status = statusStyle.Render("нет соединения")
	}

	var activity string
	switch {
	case m.transport.IsRecording():
		activity = recordingStyle.Render("● запись")
	case m.responding:
		activity = statusStyle.Render(m.spinner.View() + "думаю...")
	}

	line := status
	if activity != "" {
		line += "  " + activity
	}
	if m.lastErr != nil {
		line += "  " + recordingStyle.Render(fmt.Sprintf("ошибка: %v", m.lastErr))
	}
	return line + "  " + helpStyle.Render("[пробел] говорить  [q] выход")
}
