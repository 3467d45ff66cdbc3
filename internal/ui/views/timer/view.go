package timer

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	sessiondto "tempo/internal/modules/session/dto"
	timerdomain "tempo/internal/modules/timer/domain"
	"tempo/internal/ui/theme"
)

// FrameMsg drives the running clock. The displayed value is recomputed
// from the session's timestamps on every frame, so a missed frame can
// never make the clock drift.
type FrameMsg struct{ At time.Time }

const framePeriod = 250 * time.Millisecond

func frameCmd() tea.Cmd {
	return tea.Tick(framePeriod, func(t time.Time) tea.Msg {
		return FrameMsg{At: t}
	})
}

// Model renders the active session: a large elapsed clock, the break
// clock while paused, and the session's details.
type Model struct {
	active  sessiondto.ActiveOutput
	has     bool
	running bool
	now     time.Time
	width   int
	height  int
}

func New() Model {
	return Model{now: time.Now()}
}

func (m Model) Init() tea.Cmd {
	return frameCmd()
}

// SetActive swaps in the latest projection; the next frame renders it.
func (m *Model) SetActive(active sessiondto.ActiveOutput) {
	m.active = active
	m.has = active.Active
}

func (m *Model) SetIdle() {
	m.active = sessiondto.ActiveOutput{}
	m.has = false
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case FrameMsg:
		m.now = msg.At
		return m, frameCmd()
	}
	return m, nil
}

func (m Model) View() string {
	if !m.has {
		idle := theme.Muted.Render("no active session") + "\n\n" +
			theme.Muted.Render("press s to start one, or : for the palette")
		return lipgloss.Place(m.width, m.contentHeight(), lipgloss.Center, lipgloss.Center, idle)
	}

	snap, err := timerdomain.Compute(m.now, m.active.StartedAt, m.active.Breaks, m.active.OnBreak)
	if err != nil {
		return lipgloss.Place(m.width, m.contentHeight(), lipgloss.Center, lipgloss.Center,
			theme.Bad.Render("timer error: "+err.Error()))
	}

	var sb strings.Builder
	sb.WriteString(theme.Title.Render(m.active.Title))
	if m.active.Category != "" {
		sb.WriteString("  " + theme.Muted.Render("@"+m.active.Category))
	}
	sb.WriteString("\n\n")

	sb.WriteString(theme.ClockFace.Render(formatClock(snap.DisplaySecond())))
	sb.WriteString("\n")
	if m.active.OnBreak {
		sb.WriteString(theme.Hot.Render("on break "+formatClock(snap.BreakSecond())) + "\n")
	} else if snap.BreakMs > 0 {
		sb.WriteString(theme.Muted.Render("breaks "+formatClock(snap.BreakMs/1000)) + "\n")
	}
	sb.WriteString("\n")
	sb.WriteString(theme.Muted.Render("started " + m.active.StartedAt.Local().Format("15:04")))
	if m.active.Notes != "" {
		sb.WriteString("\n\n" + theme.Muted.Render(m.active.Notes))
	}

	card := theme.PaneActive.Width(minInt(m.width-4, 60)).Render(sb.String())
	return lipgloss.Place(m.width, m.contentHeight(), lipgloss.Center, lipgloss.Center, card)
}

func (m Model) contentHeight() int {
	if m.height < 1 {
		return 1
	}
	return m.height
}

func formatClock(totalSeconds int64) string {
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	h := totalSeconds / 3600
	mnt := (totalSeconds % 3600) / 60
	s := totalSeconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, mnt, s)
	}
	return fmt.Sprintf("%02d:%02d", mnt, s)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
