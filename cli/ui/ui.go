// Package ui provides the interactive and tabular components of the ledger CLI.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/AshkanYarmoradi/go-ledger/cli/styles"
)

// SpinnerModel shows a spinner while a task runs.
type SpinnerModel struct {
	spinner  spinner.Model
	message  string
	quitting bool
	done     bool
	result   string
	err      error
}

// NewSpinner creates a spinner with the given message.
func NewSpinner(message string) SpinnerModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(styles.Primary)
	return SpinnerModel{spinner: s, message: message}
}

func (m SpinnerModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m SpinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case SpinnerDoneMsg:
		m.done = true
		m.result = msg.Result
		m.err = msg.Err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m SpinnerModel) View() string {
	switch {
	case m.done && m.err != nil:
		return styles.FormatError(m.result) + "\n"
	case m.done:
		return styles.FormatSuccess(m.result) + "\n"
	case m.quitting:
		return styles.FormatWarning("Cancelled") + "\n"
	}
	return m.spinner.View() + " " + styles.Normal.Render(m.message) + "\n"
}

// SpinnerDoneMsg signals that the spinner task is complete.
type SpinnerDoneMsg struct {
	Result string
	Err    error
}

// RunWithSpinner runs task, showing a spinner on out when out is a terminal.
// task returns the message printed on completion.
func RunWithSpinner(out io.Writer, message string, task func() (string, error)) error {
	if !IsTerminal(out) {
		result, err := task()
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(out, styles.FormatSuccess(result))
		return nil
	}

	p := tea.NewProgram(NewSpinner(message), tea.WithOutput(out))
	done := make(chan error, 1)
	go func() {
		result, err := task()
		if err != nil {
			result = err.Error()
		}
		done <- err
		p.Send(SpinnerDoneMsg{Result: result, Err: err})
	}()
	if _, err := p.Run(); err != nil {
		return err
	}
	return <-done
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

// ProgressModel is a progress bar component.
type ProgressModel struct {
	progress progress.Model
	percent  float64
	message  string
	done     bool
}

// NewProgress creates a new progress bar.
func NewProgress(message string) ProgressModel {
	return ProgressModel{
		progress: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40), progress.WithoutPercentage()),
		message:  message,
	}
}

func (m ProgressModel) Init() tea.Cmd {
	return nil
}

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}

	case ProgressMsg:
		m.percent = msg.Percent
		m.message = msg.Message
		if m.percent >= 1.0 {
			m.done = true
			return m, tea.Quit
		}
		return m, nil

	case progress.FrameMsg:
		model, cmd := m.progress.Update(msg)
		m.progress = model.(progress.Model)
		return m, cmd
	}

	return m, nil
}

func (m ProgressModel) View() string {
	if m.done {
		return styles.FormatSuccess(m.message) + "\n"
	}
	return m.progress.ViewAs(m.percent) + " " + styles.Muted.Render(m.message) + "\n"
}

// ProgressMsg updates the progress bar.
type ProgressMsg struct {
	Percent float64
	Message string
}

// ProgressBar renders a static bar for done out of total, used by status output.
func ProgressBar(done, total int64) string {
	if total <= 0 {
		return NewProgress("").progress.ViewAs(1)
	}
	return NewProgress("").progress.ViewAs(float64(done) / float64(total))
}

// Table renders rows with box-drawing borders.
type Table struct {
	headers []string
	rows    [][]string
	widths  []int
}

// NewTable creates a new table with headers.
func NewTable(headers ...string) *Table {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	return &Table{headers: headers, widths: widths}
}

// AddRow adds a row. Missing cells are blank and extra cells are dropped.
func (t *Table) AddRow(values ...string) {
	row := make([]string, len(t.headers))
	for i := range row {
		if i < len(values) {
			row[i] = values[i]
			if w := lipgloss.Width(values[i]); w > t.widths[i] {
				t.widths[i] = w
			}
		}
	}
	t.rows = append(t.rows, row)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

func (t *Table) rule(left, mid, right string) string {
	border := lipgloss.NewStyle().Foreground(styles.Border)
	parts := make([]string, len(t.widths))
	for i, w := range t.widths {
		parts[i] = strings.Repeat("─", w+2)
	}
	return border.Render(left + strings.Join(parts, mid) + right)
}

func (t *Table) line(cells []string, style lipgloss.Style) string {
	border := lipgloss.NewStyle().Foreground(styles.Border).Render("│")
	var sb strings.Builder
	sb.WriteString(border)
	for i, c := range cells {
		sb.WriteString(style.Width(t.widths[i] + 2).Render(c))
		sb.WriteString(border)
	}
	return sb.String()
}

// Render returns the formatted table.
func (t *Table) Render() string {
	if len(t.headers) == 0 {
		return ""
	}

	header := lipgloss.NewStyle().Bold(true).Foreground(styles.Primary).Padding(0, 1)
	cell := lipgloss.NewStyle().Foreground(styles.Text).Padding(0, 1)

	lines := []string{
		t.rule("┌", "┬", "┐"),
		t.line(t.headers, header),
		t.rule("├", "┼", "┤"),
	}
	for _, row := range t.rows {
		lines = append(lines, t.line(row, cell))
	}
	lines = append(lines, t.rule("└", "┴", "┘"))
	return strings.Join(lines, "\n")
}

// StatusBadge returns a styled status badge.
func StatusBadge(status string) string {
	badge := lipgloss.NewStyle().Padding(0, 1)
	switch strings.ToLower(status) {
	case "current", "ok", "applied", "restored":
		badge = badge.Background(styles.Success).Foreground(lipgloss.Color("#000000"))
	case "behind", "pending", "skipped":
		badge = badge.Background(styles.Warning).Foreground(lipgloss.Color("#000000"))
	case "error", "failed", "missing":
		badge = badge.Background(styles.Error).Foreground(lipgloss.Color("#FFFFFF"))
	default:
		badge = badge.Background(styles.Surface).Foreground(styles.Text)
	}
	return badge.Render(status)
}

// Banner returns the one-line CLI banner.
func Banner() string {
	return styles.IconLedger + " " + lipgloss.NewStyle().Bold(true).Foreground(styles.Primary).Render("ledger") +
		" " + styles.Muted.Render("- event-sourced persistence for Go")
}

// Divider returns a horizontal divider line.
func Divider(width int) string {
	return styles.Dim.Render(strings.Repeat("─", width))
}

// Confirm asks a yes/no question with huh. It defaults to no.
func Confirm(title, description string) (bool, error) {
	var confirmed bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(description).
				Affirmative("Yes").
				Negative("No").
				Value(&confirmed),
		),
	).WithTheme(huh.ThemeCharm())

	if err := form.Run(); err != nil {
		return false, err
	}
	return confirmed, nil
}
