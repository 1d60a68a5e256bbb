package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
)

// Notifier buffers user-visible messages for the UI. Notify never blocks;
// messages beyond the buffer are dropped.
type Notifier struct {
	ch chan string
}

// NewNotifier returns a Notifier with a small buffer.
func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan string, 8)}
}

func (n *Notifier) Notify(msg string) {
	select {
	case n.ch <- msg:
	default:
	}
}

// C returns the receive side for Deps.Notices.
func (n *Notifier) C() <-chan string {
	return n.ch
}

// Run shows the UI until the user quits or ctx is cancelled.
func Run(ctx context.Context, deps Deps) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(New(ctx, deps), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	}
	return nil
}
