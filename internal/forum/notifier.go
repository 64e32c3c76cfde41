package forum

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Notifier shows short-lived messages to the user.
type Notifier interface {
	Notify(kind StatusKind, message string)
}

var (
	MutedColor   = lipgloss.Color("#94A3B8")
	WarnColor    = lipgloss.Color("#FFE66D")
	DangerColor  = lipgloss.Color("#EF4444")
	SuccessColor = lipgloss.Color("#10B981")

	StatusInfoStyle = lipgloss.NewStyle().
			Foreground(MutedColor)

	StatusSuccessStyle = lipgloss.NewStyle().
				Foreground(SuccessColor)

	StatusWarnStyle = lipgloss.NewStyle().
			Foreground(WarnColor)

	// Failures always use the danger style.
	StatusDangerStyle = lipgloss.NewStyle().
				Foreground(DangerColor).
				Bold(true)
)

func styleFor(kind StatusKind) lipgloss.Style {
	switch kind {
	case StatusSuccess:
		return StatusSuccessStyle
	case StatusWarn:
		return StatusWarnStyle
	case StatusError:
		return StatusDangerStyle
	default:
		return StatusInfoStyle
	}
}

func iconFor(kind StatusKind) string {
	switch kind {
	case StatusSuccess:
		return "✓"
	case StatusWarn:
		return "!"
	case StatusError:
		return "✗"
	default:
		return "•"
	}
}

// TerminalNotifier writes one styled line per toast.
type TerminalNotifier struct {
	mu  sync.Mutex
	out io.Writer
	// Plain disables styling.
	Plain bool
	// Quiet drops info and success toasts.
	Quiet bool
}

func NewTerminalNotifier(out io.Writer) *TerminalNotifier {
	return &TerminalNotifier{out: out}
}

func (n *TerminalNotifier) Notify(kind StatusKind, message string) {
	if n.Quiet && kind < StatusWarn {
		return
	}

	line := iconFor(kind) + " " + message
	if !n.Plain {
		line = styleFor(kind).Render(line)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintln(n.out, line)
}

// NopNotifier discards every toast.
type NopNotifier struct{}

func (NopNotifier) Notify(StatusKind, string) {}
