package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	historydto "tempo/internal/modules/history/dto"
	sessiondto "tempo/internal/modules/session/dto"
	"tempo/internal/ui/components"
	"tempo/internal/ui/theme"
	historyview "tempo/internal/ui/views/history"
	timerview "tempo/internal/ui/views/timer"
)

// ─── ports ───────────────────────────────────────────────────────────────────
// Each port is the minimal interface that this orchestration layer requires.

type sessionPort interface {
	Start(ctx context.Context, input sessiondto.StartInput) (sessiondto.ActiveOutput, error)
	ToggleBreak(ctx context.Context) (sessiondto.ActiveOutput, error)
	UpdateDetails(ctx context.Context, input sessiondto.DetailsInput) (sessiondto.ActiveOutput, error)
	End(ctx context.Context) (sessiondto.EndOutput, error)
	Active(ctx context.Context) (sessiondto.ActiveOutput, error)
	Subscribe(buffer int) (<-chan sessiondto.Event, func())
	SyncStatus(ctx context.Context) (sessiondto.SyncStatus, error)
}

type historyPort interface {
	ListRecords(ctx context.Context) ([]historydto.RecordOutput, error)
	ListGoals(ctx context.Context) ([]historydto.GoalOutput, error)
	UpdateRecord(ctx context.Context, in historydto.UpdateRecordInput) (historydto.MutationOutput, error)
	DeleteRecord(ctx context.Context, id string) (historydto.MutationOutput, error)
	CreateGoal(ctx context.Context, in historydto.CreateGoalInput) (historydto.MutationOutput, error)
	DeleteGoal(ctx context.Context, id string) (historydto.MutationOutput, error)
}

type outboxPort interface {
	Drain(ctx context.Context) (drained, remaining int, err error)
}

// ─── tab index ───────────────────────────────────────────────────────────────

type tabID int

const (
	tabTimer tabID = iota
	tabHistory
	tabCount
)

var tabLabels = [tabCount]string{"Timer", "History"}

// ─── async messages ───────────────────────────────────────────────────────────

type activeLoadedMsg struct {
	active sessiondto.ActiveOutput
	err    error
}

type sessionChangedMsg struct {
	active sessiondto.ActiveOutput
	label  string
	err    error
}

type sessionEndedMsg struct {
	out sessiondto.EndOutput
	err error
}

type mirrorEventMsg struct {
	event sessiondto.Event
	ok    bool
}

type syncStatusMsg struct {
	status sessiondto.SyncStatus
	err    error
}

type mutationDoneMsg struct {
	label string
	err   error
}

type drainDoneMsg struct {
	drained   int
	remaining int
	err       error
}

// ─── key bindings ─────────────────────────────────────────────────────────────

type keyMap struct {
	Tab    key.Binding
	Help   key.Binding
	Pal    key.Binding
	Quit   key.Binding
	Break  key.Binding
	End    key.Binding
	Reload key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Tab:    key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next tab")),
		Help:   key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Pal:    key.NewBinding(key.WithKeys(":"), key.WithHelp(":", "palette")),
		Quit:   key.NewBinding(key.WithKeys("ctrl+c", "q"), key.WithHelp("q", "quit")),
		Break:  key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "toggle break")),
		End:    key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "end session")),
		Reload: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload history")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Tab, k.Help, k.Pal, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Break, k.End, k.Reload},
		{k.Tab, k.Help, k.Pal, k.Quit},
	}
}

const syncPollPeriod = 2 * time.Second

// ─── model ───────────────────────────────────────────────────────────────────

// Model is the root Bubble Tea model. It owns tab routing, the global
// help overlay, the command palette, and the sync status line. Business
// logic is delegated to port interfaces; rendering to sub-views.
type Model struct {
	session sessionPort
	history historyPort
	outbox  outboxPort

	timerView   timerview.Model
	historyView historyview.Model

	events   <-chan sessiondto.Event
	unsub    func()
	keys     keyMap
	help     help.Model
	showHelp bool
	palette  components.Palette

	activeTab tabID
	sync      sessiondto.SyncStatus
	status    string
	width     int
	height    int
}

func NewModel(session sessionPort, history historyPort, outbox outboxPort) Model {
	events, unsub := session.Subscribe(16)
	return Model{
		session:     session,
		history:     history,
		outbox:      outbox,
		timerView:   timerview.New(),
		historyView: historyview.New(history),
		events:      events,
		unsub:       unsub,
		keys:        defaultKeys(),
		help:        help.New(),
		palette:     components.NewPalette(),
		activeTab:   tabTimer,
		status:      "ready",
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.timerView.Init(),
		m.historyView.Init(),
		m.loadActiveCmd(),
		m.waitForEventCmd(),
		m.pollSyncCmd(),
	)
}

// ─── update ───────────────────────────────────────────────────────────────────

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	// The palette intercepts all input while open.
	if m.palette.Visible() {
		if _, isKey := msg.(tea.KeyMsg); isKey {
			var cmd tea.Cmd
			m.palette, cmd = m.palette.Update(msg)
			return m, cmd
		}
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.palette.SetWidth(min(m.width-4, 80))
		m.help.Width = m.width
		m.propagateSize()

	case activeLoadedMsg:
		if msg.err != nil {
			m.status = "session check: " + msg.err.Error()
		} else if msg.active.Active {
			m.timerView.SetActive(msg.active)
			m.status = "session recovered: " + msg.active.Title
		}

	case sessionChangedMsg:
		if msg.err != nil {
			m.status = msg.label + " failed: " + msg.err.Error()
		} else if msg.active.Active {
			m.timerView.SetActive(msg.active)
			m.status = msg.label + ": " + msg.active.Title
		} else {
			m.status = msg.label + ": no active session"
		}

	case sessionEndedMsg:
		if msg.err != nil {
			m.status = "end failed: " + msg.err.Error()
		} else {
			m.timerView.SetIdle()
			focus := time.Duration(msg.out.TotalFocusMs) * time.Millisecond
			m.status = fmt.Sprintf("session ended: %s focused", focus.Round(time.Second))
			if msg.out.Queued {
				m.status += " (queued)"
			}
			cmds = append(cmds, m.historyView.Reload())
		}

	case mirrorEventMsg:
		if !msg.ok {
			// Subscription closed; the app is shutting down.
			return m, nil
		}
		switch msg.event.Kind {
		case sessiondto.EventUpdated:
			m.timerView.SetActive(msg.event.Active)
		case sessiondto.EventCleared:
			m.timerView.SetIdle()
			cmds = append(cmds, m.historyView.Reload())
		}
		cmds = append(cmds, m.waitForEventCmd())

	case syncStatusMsg:
		if msg.err == nil {
			m.sync = msg.status
		}
		cmds = append(cmds, m.pollSyncCmd())

	case mutationDoneMsg:
		if msg.err != nil {
			m.status = msg.label + " failed: " + msg.err.Error()
		} else {
			m.status = msg.label
			cmds = append(cmds, m.historyView.Reload())
		}

	case drainDoneMsg:
		if msg.err != nil {
			m.status = "drain failed: " + msg.err.Error()
		} else {
			m.status = fmt.Sprintf("drained %d, %d left", msg.drained, msg.remaining)
		}

	case components.PaletteSubmitMsg:
		return m.executePalette(msg.Input)

	case components.PaletteCancelMsg:
		m.status = "ready"

	case tea.KeyMsg:
		if m.showHelp {
			if msg.String() == "?" || msg.String() == "esc" {
				m.showHelp = false
			}
			return m, nil
		}
		if m.activeTab == tabHistory && m.historyView.Filtering() {
			break
		}

		switch msg.String() {
		case "ctrl+c", "q":
			m.unsub()
			return m, tea.Quit
		case "tab":
			m.activeTab = (m.activeTab + 1) % tabCount
		case "shift+tab":
			m.activeTab = (m.activeTab + tabCount - 1) % tabCount
		case "?":
			m.showHelp = !m.showHelp
		case ":", "s":
			return m, m.palette.Open()
		case "b":
			cmds = append(cmds, m.toggleBreakCmd())
		case "e":
			cmds = append(cmds, m.endSessionCmd())
		case "r":
			cmds = append(cmds, m.historyView.Reload())
		}
	}

	// Propagate the message to the active tab's sub-view. Frame ticks
	// always reach the timer so the clock keeps running behind other
	// tabs.
	var tabCmd tea.Cmd
	if _, isFrame := msg.(timerview.FrameMsg); isFrame || m.activeTab == tabTimer {
		m.timerView, tabCmd = m.timerView.Update(msg)
		cmds = append(cmds, tabCmd)
	}
	if _, isFrame := msg.(timerview.FrameMsg); !isFrame && m.activeTab == tabHistory {
		m.historyView, tabCmd = m.historyView.Update(msg)
		cmds = append(cmds, tabCmd)
	}
	if _, isLoad := msg.(historyview.LoadedMsg); isLoad && m.activeTab != tabHistory {
		m.historyView, tabCmd = m.historyView.Update(msg)
		cmds = append(cmds, tabCmd)
	}

	return m, tea.Batch(cmds...)
}

// ─── commands ─────────────────────────────────────────────────────────────────

func (m Model) loadActiveCmd() tea.Cmd {
	session := m.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		active, err := session.Active(ctx)
		return activeLoadedMsg{active: active, err: err}
	}
}

func (m Model) startSessionCmd(title, category, notes string) tea.Cmd {
	session := m.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		active, err := session.Start(ctx, sessiondto.StartInput{Title: title, Category: category, Notes: notes})
		return sessionChangedMsg{active: active, label: "started", err: err}
	}
}

func (m Model) toggleBreakCmd() tea.Cmd {
	session := m.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		active, err := session.ToggleBreak(ctx)
		return sessionChangedMsg{active: active, label: "break toggled", err: err}
	}
}

func (m Model) updateDetailsCmd(title, notes *string) tea.Cmd {
	session := m.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		active, err := session.UpdateDetails(ctx, sessiondto.DetailsInput{Title: title, Notes: notes})
		return sessionChangedMsg{active: active, label: "updated", err: err}
	}
}

func (m Model) endSessionCmd() tea.Cmd {
	session := m.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		out, err := session.End(ctx)
		return sessionEndedMsg{out: out, err: err}
	}
}

func (m Model) waitForEventCmd() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		event, ok := <-events
		return mirrorEventMsg{event: event, ok: ok}
	}
}

func (m Model) pollSyncCmd() tea.Cmd {
	session := m.session
	return tea.Tick(syncPollPeriod, func(time.Time) tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		status, err := session.SyncStatus(ctx)
		return syncStatusMsg{status: status, err: err}
	})
}

// ─── view ────────────────────────────────────────────────────────────────────

func (m Model) View() string {
	tabBar := m.renderTabBar()
	statusBar := m.renderStatusBar()
	tabBarH := lipgloss.Height(tabBar)
	statusBarH := lipgloss.Height(statusBar)

	contentH := m.height - tabBarH - statusBarH
	if contentH < 1 {
		contentH = 1
	}

	var content string
	switch {
	case m.showHelp:
		content = lipgloss.NewStyle().Width(m.width).Height(contentH).
			Render(m.help.View(m.keys))
	case m.palette.Visible():
		content = lipgloss.Place(m.width, contentH,
			lipgloss.Center, lipgloss.Center, m.palette.View())
	default:
		content = m.activeView()
	}

	return lipgloss.JoinVertical(lipgloss.Left, tabBar, content, statusBar)
}

func (m Model) activeView() string {
	switch m.activeTab {
	case tabTimer:
		return m.timerView.View()
	case tabHistory:
		return m.historyView.View()
	}
	return ""
}

func (m Model) renderTabBar() string {
	parts := make([]string, tabCount)
	for i := tabID(0); i < tabCount; i++ {
		label := tabLabels[i]
		if i == m.activeTab {
			parts[i] = theme.Hot.Render(" " + label + " ")
		} else {
			parts[i] = theme.Muted.Render(" " + label + " ")
		}
	}
	sep := theme.Muted.Render(" │ ")
	bar := "tempo  " + strings.Join(parts, sep)
	return lipgloss.NewStyle().Background(theme.Mantle).Width(m.width).Render(bar) + "\n"
}

func (m Model) renderStatusBar() string {
	left := m.status
	conn := theme.Bad.Render("○ offline")
	if m.sync.Online {
		conn = theme.Good.Render("● online")
	}
	if m.sync.Pending > 0 {
		conn += theme.Muted.Render(fmt.Sprintf(" +%d queued", m.sync.Pending))
	}
	left = conn + "  " + left
	right := theme.Muted.Render("?:help  tab:switch  :::palette  q:quit")
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	bar := left + strings.Repeat(" ", gap) + right
	return "\n" + lipgloss.NewStyle().Background(theme.Mantle).Width(m.width).Render(bar)
}

func (m Model) propagateSize() {
	size := tea.WindowSizeMsg{Width: m.width, Height: m.height - 3}
	m.timerView, _ = m.timerView.Update(size)
	m.historyView, _ = m.historyView.Update(size)
}

// ─── palette execution ────────────────────────────────────────────────────────

func (m Model) executePalette(input string) (tea.Model, tea.Cmd) {
	if strings.TrimSpace(input) == "" {
		return m, nil
	}
	parts := strings.Fields(input)
	rest := strings.TrimSpace(strings.TrimPrefix(input, parts[0]))

	switch parts[0] {
	case "session:start":
		if rest == "" {
			m.status = "usage: session:start <title> [@category]"
			return m, nil
		}
		title, category := splitCategory(rest)
		return m, m.startSessionCmd(title, category, "")

	case "session:break":
		return m, m.toggleBreakCmd()

	case "session:end":
		return m, m.endSessionCmd()

	case "session:title":
		if rest == "" {
			m.status = "usage: session:title <text>"
			return m, nil
		}
		return m, m.updateDetailsCmd(&rest, nil)

	case "session:note":
		return m, m.updateDetailsCmd(nil, &rest)

	case "record:edit":
		if len(parts) < 3 {
			m.status = "usage: record:edit <id> <title>"
			return m, nil
		}
		title := strings.TrimSpace(strings.TrimPrefix(rest, parts[1]))
		return m, m.editRecordCmd(parts[1], title)

	case "record:delete":
		if len(parts) != 2 {
			m.status = "usage: record:delete <id>"
			return m, nil
		}
		return m, m.deleteRecordCmd(parts[1])

	case "goal:set":
		if len(parts) != 3 {
			m.status = "usage: goal:set <name> <hours/week>"
			return m, nil
		}
		hours, err := strconv.ParseFloat(parts[2], 64)
		if err != nil || hours <= 0 {
			m.status = "invalid hours"
			return m, nil
		}
		return m, m.setGoalCmd(parts[1], int64(hours*float64(time.Hour/time.Millisecond)))

	case "goal:delete":
		if len(parts) != 2 {
			m.status = "usage: goal:delete <id>"
			return m, nil
		}
		return m, m.deleteGoalCmd(parts[1])

	case "sync:status":
		m.status = fmt.Sprintf("online=%v pending=%d", m.sync.Online, m.sync.Pending)
		return m, nil

	case "sync:drain":
		return m, m.drainCmd()
	}

	m.status = "unknown command: " + parts[0]
	return m, nil
}

func (m Model) editRecordCmd(id, title string) tea.Cmd {
	history := m.history
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, err := history.UpdateRecord(ctx, historydto.UpdateRecordInput{ID: id, Title: &title})
		return mutationDoneMsg{label: "record updated", err: err}
	}
}

func (m Model) deleteRecordCmd(id string) tea.Cmd {
	history := m.history
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, err := history.DeleteRecord(ctx, id)
		return mutationDoneMsg{label: "record deleted", err: err}
	}
}

func (m Model) setGoalCmd(name string, targetWeekMs int64) tea.Cmd {
	history := m.history
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, err := history.CreateGoal(ctx, historydto.CreateGoalInput{Name: name, TargetWeekMs: targetWeekMs})
		return mutationDoneMsg{label: "goal saved", err: err}
	}
}

func (m Model) deleteGoalCmd(id string) tea.Cmd {
	history := m.history
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, err := history.DeleteGoal(ctx, id)
		return mutationDoneMsg{label: "goal deleted", err: err}
	}
}

func (m Model) drainCmd() tea.Cmd {
	outbox := m.outbox
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		drained, remaining, err := outbox.Drain(ctx)
		return drainDoneMsg{drained: drained, remaining: remaining, err: err}
	}
}

// splitCategory separates a trailing "@category" token from the title.
func splitCategory(s string) (title, category string) {
	fields := strings.Fields(s)
	if len(fields) > 1 && strings.HasPrefix(fields[len(fields)-1], "@") {
		category = strings.TrimPrefix(fields[len(fields)-1], "@")
		title = strings.TrimSpace(strings.Join(fields[:len(fields)-1], " "))
		return title, category
	}
	return s, ""
}
