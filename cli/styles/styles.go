// Package styles holds the lipgloss palette and message formatting of the ledger CLI.
package styles

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Palette
var (
	Primary      = lipgloss.Color("#0EA5E9") // Sky
	PrimaryLight = lipgloss.Color("#7DD3FC")
	Secondary    = lipgloss.Color("#14B8A6") // Teal

	Success = lipgloss.Color("#22C55E")
	Warning = lipgloss.Color("#EAB308")
	Error   = lipgloss.Color("#EF4444")
	Info    = lipgloss.Color("#3B82F6")

	Text      = lipgloss.Color("#F8FAFC")
	TextMuted = lipgloss.Color("#94A3B8")
	TextDim   = lipgloss.Color("#64748B")
	Surface   = lipgloss.Color("#1E293B")
	Border    = lipgloss.Color("#334155")
)

// Text styles
var (
	Bold      lipgloss.Style
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Normal    lipgloss.Style
	Muted     lipgloss.Style
	Dim       lipgloss.Style
	Highlight lipgloss.Style
	Code      lipgloss.Style

	SuccessStyle lipgloss.Style
	WarningStyle lipgloss.Style
	ErrorStyle   lipgloss.Style
	InfoStyle    lipgloss.Style

	Box     lipgloss.Style
	InfoBox lipgloss.Style
)

// Icons
const (
	IconSuccess  = "✓"
	IconError    = "✗"
	IconWarning  = "⚠"
	IconInfo     = "ℹ"
	IconArrow    = "→"
	IconDot      = "•"
	IconPending  = "◌"
	IconList     = "☰"
	IconDatabase = "🗄️"
	IconCamera   = "📸"
	IconLedger   = "📒"
)

func init() {
	build()
}

// build derives every style from the palette.
func build() {
	Bold = lipgloss.NewStyle().Bold(true)
	Title = lipgloss.NewStyle().Bold(true).Foreground(Primary).MarginBottom(1)
	Subtitle = lipgloss.NewStyle().Bold(true).Foreground(PrimaryLight)
	Normal = lipgloss.NewStyle().Foreground(Text)
	Muted = lipgloss.NewStyle().Foreground(TextMuted)
	Dim = lipgloss.NewStyle().Foreground(TextDim)
	Highlight = lipgloss.NewStyle().Bold(true).Foreground(Secondary)
	Code = lipgloss.NewStyle().Foreground(Warning).Background(Surface).Padding(0, 1)

	SuccessStyle = lipgloss.NewStyle().Foreground(Success)
	WarningStyle = lipgloss.NewStyle().Foreground(Warning)
	ErrorStyle = lipgloss.NewStyle().Foreground(Error)
	InfoStyle = lipgloss.NewStyle().Foreground(Info)

	Box = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(Border).Padding(1, 2)
	InfoBox = Box.BorderForeground(Info).MarginTop(1)
}

// FormatSuccess formats a success message with icon
func FormatSuccess(msg string) string {
	return SuccessStyle.Render(IconSuccess) + " " + Normal.Render(msg)
}

// FormatError formats an error message with icon
func FormatError(msg string) string {
	return ErrorStyle.Render(IconError) + " " + Normal.Render(msg)
}

// FormatWarning formats a warning message with icon
func FormatWarning(msg string) string {
	return WarningStyle.Render(IconWarning) + " " + Normal.Render(msg)
}

// FormatInfo formats an info message with icon
func FormatInfo(msg string) string {
	return InfoStyle.Render(IconInfo) + " " + Normal.Render(msg)
}

// FormatStep formats one step of a multi-step operation.
func FormatStep(step, total int, msg string) string {
	return lipgloss.NewStyle().Foreground(TextMuted).Width(8).
		Render(fmt.Sprintf("[%d/%d]", step, total)) + " " + msg
}

// FormatKeyValue formats a key-value pair
func FormatKeyValue(key, value string) string {
	return lipgloss.NewStyle().Foreground(TextMuted).Width(20).Render(key+":") + " " + Highlight.Render(value)
}

// DisableColors clears the palette and rebuilds the styles without color.
func DisableColors() {
	for _, c := range []*lipgloss.Color{
		&Primary, &PrimaryLight, &Secondary,
		&Success, &Warning, &Error, &Info,
		&Text, &TextMuted, &TextDim, &Surface, &Border,
	} {
		*c = lipgloss.Color("")
	}
	build()
}
