package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap lists the timeline key bindings.
type KeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Play    key.Binding
	Back    key.Binding
	Forward key.Binding
	Record  key.Binding
	Delete  key.Binding
	Help    key.Binding
	Quit    key.Binding
}

// ShortHelp returns the bindings shown in the footer.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Play, k.Record, k.Delete, k.Help, k.Quit}
}

// FullHelp returns every binding, grouped in columns.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Play},
		{k.Back, k.Forward},
		{k.Record, k.Delete},
		{k.Help, k.Quit},
	}
}

// DefaultKeyMap is the timeline key map.
var DefaultKeyMap = KeyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Play: key.NewBinding(
		key.WithKeys("enter", " "),
		key.WithHelp("enter", "play/pause"),
	),
	Back: key.NewBinding(
		key.WithKeys("left", "h"),
		key.WithHelp("←", "-5s"),
	),
	Forward: key.NewBinding(
		key.WithKeys("right", "l"),
		key.WithHelp("→", "+5s"),
	),
	Record: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "record/stop"),
	),
	Delete: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "delete"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// Prompt bindings, active while the title input has focus.
var (
	saveKey    = key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "save"))
	discardKey = key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "discard"))
	abortKey   = key.NewBinding(key.WithKeys("ctrl+c"))
)
