package history

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	historydto "tempo/internal/modules/history/dto"
	"tempo/internal/ui/theme"
)

// ─── port ────────────────────────────────────────────────────────────────────

type HistoryPort interface {
	ListRecords(ctx context.Context) ([]historydto.RecordOutput, error)
	ListGoals(ctx context.Context) ([]historydto.GoalOutput, error)
}

// ─── messages ────────────────────────────────────────────────────────────────

type LoadedMsg struct {
	Records []historydto.RecordOutput
	Goals   []historydto.GoalOutput
	Err     error
}

// ─── list item ───────────────────────────────────────────────────────────────

type recordItem struct {
	rec historydto.RecordOutput
}

func (i recordItem) Title() string {
	title := i.rec.Title
	if i.rec.Pending {
		// Not yet confirmed by the remote store.
		title += " ~"
	}
	return title
}

func (i recordItem) Description() string {
	focus := time.Duration(i.rec.TotalFocusMs) * time.Millisecond
	day := i.rec.StartedAt.Local().Format("Jan 2 15:04")
	if i.rec.Category != "" {
		return fmt.Sprintf("%s  %s  @%s", day, formatDuration(focus), i.rec.Category)
	}
	return fmt.Sprintf("%s  %s", day, formatDuration(focus))
}

func (i recordItem) FilterValue() string { return i.rec.Title }

// ─── model ───────────────────────────────────────────────────────────────────

type Model struct {
	port   HistoryPort
	list   list.Model
	goals  []historydto.GoalOutput
	width  int
	height int
}

func New(port HistoryPort) Model {
	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.Foreground(theme.Lavender).BorderForeground(theme.Lavender)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.Foreground(theme.Sapphire).BorderForeground(theme.Lavender)

	l := list.New(nil, delegate, 0, 0)
	l.Title = "History"
	l.Styles.Title = theme.Title
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.SetShowHelp(false)

	return Model{port: port, list: l}
}

func (m Model) Init() tea.Cmd {
	return m.Reload()
}

// Reload fetches records and goals from the local projection; it never
// blocks on the network.
func (m Model) Reload() tea.Cmd {
	if m.port == nil {
		return nil
	}
	port := m.port
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		records, err := port.ListRecords(ctx)
		if err != nil {
			return LoadedMsg{Err: err}
		}
		goals, err := port.ListGoals(ctx)
		if err != nil {
			return LoadedMsg{Err: err}
		}
		return LoadedMsg{Records: records, Goals: goals}
	}
}

// SelectedRecordID reports the id under the cursor, if any.
func (m Model) SelectedRecordID() (string, bool) {
	item, ok := m.list.SelectedItem().(recordItem)
	if !ok {
		return "", false
	}
	return item.rec.ID, true
}

func (m Model) Filtering() bool {
	return m.list.FilterState() == list.Filtering
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()

	case LoadedMsg:
		if msg.Err != nil {
			m.list.Title = "History (load failed: " + msg.Err.Error() + ")"
			return m, nil
		}
		m.list.Title = "History"
		m.goals = msg.Goals
		items := make([]list.Item, len(msg.Records))
		for i, rec := range msg.Records {
			items[i] = recordItem{rec: rec}
		}
		return m, m.list.SetItems(items)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	listView := m.list.View()
	if len(m.goals) == 0 {
		return listView
	}
	return lipgloss.JoinVertical(lipgloss.Left, listView, m.renderGoals())
}

func (m *Model) resize() {
	h := m.height
	if len(m.goals) > 0 {
		h -= len(m.goals) + 2
	}
	if h < 3 {
		h = 3
	}
	m.list.SetSize(m.width, h)
}

func (m Model) renderGoals() string {
	out := theme.Title.Render("Goals") + "\n"
	for _, g := range m.goals {
		target := time.Duration(g.TargetWeekMs) * time.Millisecond
		line := fmt.Sprintf("  %s  %s/week", g.Name, formatDuration(target))
		if g.Pending {
			line += " ~"
		}
		out += theme.Muted.Render(line) + "\n"
	}
	return out
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	h := int(d.Hours())
	mnt := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm", h, mnt)
	}
	return fmt.Sprintf("%dm", mnt)
}
