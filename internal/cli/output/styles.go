package output

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Styles holds the lipgloss styles used by text-mode output.
type Styles struct {
	Header1  lipgloss.Style
	Header2  lipgloss.Style
	Muted    lipgloss.Style
	Success  lipgloss.Style
	Warning  lipgloss.Style
	Error    lipgloss.Style
	CellAddr lipgloss.Style
	Formula  lipgloss.Style
	ErrValue lipgloss.Style
}

// NewStyles builds the style set. With colored false, or when the
// environment forbids color, every style renders plain.
func NewStyles(colored bool) *Styles {
	if colored && termenv.EnvColorProfile() == termenv.Ascii {
		colored = false
	}
	if !colored {
		plain := lipgloss.NewStyle()
		return &Styles{
			Header1:  plain,
			Header2:  plain,
			Muted:    plain,
			Success:  plain,
			Warning:  plain,
			Error:    plain,
			CellAddr: plain,
			Formula:  plain,
			ErrValue: plain,
		}
	}
	return &Styles{
		Header1:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Header2:  lipgloss.NewStyle().Bold(true),
		Muted:    lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		Success:  lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		Warning:  lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		Error:    lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		CellAddr: lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		Formula:  lipgloss.NewStyle().Foreground(lipgloss.Color("13")),
		ErrValue: lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
}
