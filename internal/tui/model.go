// Package tui is the terminal front end: a scrollable day-grouped timeline
// with inline playback, a recorder with a live level meter and a title
// prompt for finished recordings.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/starford/ansuz/internal/diary"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/player"
	"github.com/starford/ansuz/internal/recorder"
	"github.com/starford/ansuz/internal/timeline"
)

// SeekStep is how far left/right moves the playhead.
const SeekStep = 5 * time.Second

const (
	meterWidth  = 24
	maxLevel    = 32767
	statusClear = 5 * time.Second
)

// Deps are the controllers the UI drives.
type Deps struct {
	Diary    *diary.Service
	Recorder *recorder.Controller
	Player   *player.Controller
	Timeline *timeline.Projector
	// Notices may be nil.
	Notices  <-chan string
	Location *time.Location
}

// Model is the root bubbletea model.
type Model struct {
	ctx   context.Context
	deps  Deps
	keys  KeyMap
	help  help.Model
	input textinput.Model

	items  []timeline.Item
	cursor int

	rec       recorder.State
	amplitude int
	playback  player.PlaybackState

	prompting bool
	status    string
	errText   string
	width     int
	height    int

	itemsCh <-chan []timeline.Item
	stateCh <-chan recorder.State
	ampCh   <-chan int
	playCh  <-chan player.PlaybackState
}

// New subscribes to the controllers for the lifetime of ctx and returns the
// initial model.
func New(ctx context.Context, deps Deps) Model {
	if deps.Location == nil {
		deps.Location = time.Local
	}
	in := textinput.New()
	in.Placeholder = "Title"
	in.CharLimit = models.MaxTitleLength
	in.Prompt = "Save as: "

	return Model{
		ctx:     ctx,
		deps:    deps,
		keys:    DefaultKeyMap,
		help:    help.New(),
		input:   in,
		rec:     recorder.Idle{},
		itemsCh: deps.Timeline.Subscribe(ctx),
		stateCh: deps.Recorder.SubscribeState(ctx),
		ampCh:   deps.Recorder.SubscribeAmplitude(ctx),
		playCh:  deps.Player.Subscribe(ctx),
	}
}

// Init starts listening on every subscription.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		waitFor(m.itemsCh, func(v []timeline.Item) tea.Msg { return ItemsMsg{Items: v} }),
		waitFor(m.stateCh, func(v recorder.State) tea.Msg { return RecordingStateMsg{State: v} }),
		waitFor(m.ampCh, func(v int) tea.Msg { return AmplitudeMsg{Level: v} }),
		waitFor(m.playCh, func(v player.PlaybackState) tea.Msg { return PlaybackMsg{State: v} }),
	}
	if m.deps.Notices != nil {
		cmds = append(cmds, waitFor(m.deps.Notices, func(v string) tea.Msg { return NoticeMsg{Text: v} }))
	}
	return tea.Batch(cmds...)
}

// waitFor reads the next value from ch and wraps it as a message.
func waitFor[T any](ch <-chan T, wrap func(T) tea.Msg) tea.Cmd {
	return func() tea.Msg {
		v, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return wrap(v)
	}
}

func clearStatusCmd() tea.Cmd {
	return tea.Tick(statusClear, func(time.Time) tea.Msg {
		return ClearStatusMsg{}
	})
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		if m.prompting {
			return m.handlePromptKey(msg)
		}
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case ItemsMsg:
		m.setItems(msg.Items)
		return m, waitFor(m.itemsCh, func(v []timeline.Item) tea.Msg { return ItemsMsg{Items: v} })

	case RecordingStateMsg:
		m.rec = msg.State
		var cmd tea.Cmd
		switch msg.State.(type) {
		case recorder.Finished:
			if !m.prompting {
				m.prompting = true
				m.input.Reset()
				cmd = m.input.Focus()
			}
		case recorder.Idle:
			m.prompting = false
			m.input.Blur()
		}
		return m, tea.Batch(cmd, waitFor(m.stateCh, func(v recorder.State) tea.Msg { return RecordingStateMsg{State: v} }))

	case AmplitudeMsg:
		m.amplitude = msg.Level
		return m, waitFor(m.ampCh, func(v int) tea.Msg { return AmplitudeMsg{Level: v} })

	case PlaybackMsg:
		m.playback = msg.State
		return m, waitFor(m.playCh, func(v player.PlaybackState) tea.Msg { return PlaybackMsg{State: v} })

	case NoticeMsg:
		m.errText = msg.Text
		return m, tea.Batch(clearStatusCmd(), waitFor(m.deps.Notices, func(v string) tea.Msg { return NoticeMsg{Text: v} }))

	case ErrMsg:
		m.errText = msg.Err.Error()
		return m, clearStatusCmd()

	case SavedMsg:
		m.status = fmt.Sprintf("Saved %q", msg.Title)
		return m, clearStatusCmd()

	case DeletedMsg:
		m.status = "Deleted"
		return m, clearStatusCmd()

	case ClearStatusMsg:
		m.status = ""
		m.errText = ""
		return m, nil
	}

	if m.prompting {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil

	case key.Matches(msg, m.keys.Up):
		m.moveCursor(-1)
		return m, nil

	case key.Matches(msg, m.keys.Down):
		m.moveCursor(1)
		return m, nil

	case key.Matches(msg, m.keys.Play):
		rec, ok := m.selected()
		if !ok {
			return m, nil
		}
		return m, m.playCmd(rec)

	case key.Matches(msg, m.keys.Back):
		m.seek(-SeekStep)
		return m, nil

	case key.Matches(msg, m.keys.Forward):
		m.seek(SeekStep)
		return m, nil

	case key.Matches(msg, m.keys.Record):
		// The cached state lags behind fast key repeats; ask the recorder.
		if _, recording := m.deps.Recorder.State().(recorder.Recording); recording {
			return m, m.stopCmd()
		}
		return m, m.startCmd()

	case key.Matches(msg, m.keys.Delete):
		rec, ok := m.selected()
		if !ok {
			return m, nil
		}
		return m, m.deleteCmd(rec)
	}
	return m, nil
}

func (m Model) handlePromptKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, abortKey):
		return m, tea.Quit

	case key.Matches(msg, saveKey):
		return m, m.saveCmd(m.input.Value())

	case key.Matches(msg, discardKey):
		m.deps.Recorder.CleanupPendingRecording()
		m.prompting = false
		m.input.Blur()
		m.status = "Recording discarded"
		return m, clearStatusCmd()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) playCmd(rec models.AudioRecord) tea.Cmd {
	ctx, pl := m.ctx, m.deps.Player
	return func() tea.Msg {
		if err := pl.OnPlayPause(ctx, rec); err != nil {
			return ErrMsg{Err: err}
		}
		return nil
	}
}

func (m Model) startCmd() tea.Cmd {
	ctx, rc := m.ctx, m.deps.Recorder
	return func() tea.Msg {
		if err := rc.Start(ctx); err != nil {
			return ErrMsg{Err: fmt.Errorf("start recording: %w", err)}
		}
		return nil
	}
}

func (m Model) stopCmd() tea.Cmd {
	rc := m.deps.Recorder
	return func() tea.Msg {
		if err := rc.Stop(); err != nil {
			return ErrMsg{Err: fmt.Errorf("stop recording: %w", err)}
		}
		return nil
	}
}

func (m Model) saveCmd(title string) tea.Cmd {
	ctx, svc, rc := m.ctx, m.deps.Diary, m.deps.Recorder
	return func() tea.Msg {
		rec, err := svc.SaveRecording(ctx, rc, title)
		if err != nil {
			return ErrMsg{Err: err}
		}
		return SavedMsg{Title: rec.Title}
	}
}

func (m Model) deleteCmd(rec models.AudioRecord) tea.Cmd {
	ctx, svc, pl := m.ctx, m.deps.Diary, m.deps.Player
	return func() tea.Msg {
		if pl.State().IsCurrent(rec.ID) {
			pl.Release()
		}
		if err := svc.Delete(ctx, rec.ID); err != nil {
			return ErrMsg{Err: err}
		}
		return DeletedMsg{ID: rec.ID}
	}
}

// seek moves the playhead of the loaded record, clamped to its length.
func (m *Model) seek(d time.Duration) {
	if m.playback.CurrentRecordID == nil {
		return
	}
	pos := m.playback.CurrentPosition + int(d.Milliseconds())
	if m.playback.TotalDuration > 0 && pos > m.playback.TotalDuration {
		pos = m.playback.TotalDuration
	}
	if pos < 0 {
		pos = 0
	}
	m.deps.Player.SeekTo(pos)
	m.playback.CurrentPosition = pos
}

// setItems replaces the projection and keeps the cursor on the same record
// when it survived.
func (m *Model) setItems(items []timeline.Item) {
	var keep string
	if m.cursor < len(m.items) {
		keep = m.items[m.cursor].Key()
	}
	m.items = items
	for i, it := range items {
		if it.Key() == keep {
			m.cursor = i
			return
		}
	}
	if m.cursor >= len(items) {
		m.cursor = len(items) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	if !m.onAudio() {
		m.moveCursor(1)
		if !m.onAudio() {
			m.moveCursor(-1)
		}
	}
}

func (m *Model) onAudio() bool {
	return m.cursor < len(m.items) && m.items[m.cursor].Kind() == timeline.KindAudio
}

// moveCursor steps to the next audio row in direction dir, skipping headers.
func (m *Model) moveCursor(dir int) {
	for i := m.cursor + dir; i >= 0 && i < len(m.items); i += dir {
		if m.items[i].Kind() == timeline.KindAudio {
			m.cursor = i
			return
		}
	}
}

func (m Model) selected() (models.AudioRecord, bool) {
	if !m.onAudio() {
		return models.AudioRecord{}, false
	}
	return m.items[m.cursor].(timeline.Audio).Record, true
}

// View renders the UI.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("ansuz"))
	b.WriteString("  ")
	b.WriteString(m.recorderLine())
	b.WriteString("\n")

	b.WriteString(m.listView())

	if m.prompting {
		b.WriteString("\n")
		b.WriteString(promptStyle.Render(m.input.View()))
		b.WriteString("\n")
		b.WriteString(statusStyle.Render("enter save · esc discard"))
	}

	b.WriteString("\n")
	switch {
	case m.errText != "":
		b.WriteString(errorStyle.Render(m.errText))
	case m.status != "":
		b.WriteString(statusStyle.Render(m.status))
	}
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) recorderLine() string {
	switch m.rec.(type) {
	case recorder.Recording:
		return recordingStyle.Render("● REC") + " " + meterStyle.Render(meter(m.amplitude))
	case recorder.Finished:
		return statusStyle.Render("recording finished")
	default:
		return statusStyle.Render("idle")
	}
}

// meter renders level (0..32767) as a fixed-width bar.
func meter(level int) string {
	if level < 0 {
		level = 0
	}
	if level > maxLevel {
		level = maxLevel
	}
	n := level * meterWidth / maxLevel
	return strings.Repeat("█", n) + strings.Repeat("░", meterWidth-n)
}

func (m Model) listView() string {
	if len(m.items) == 0 {
		return "\n" + statusStyle.Render("No recordings yet. Press r to record.") + "\n"
	}

	lines := make([]string, 0, len(m.items))
	for i, it := range m.items {
		switch v := it.(type) {
		case timeline.Header:
			lines = append(lines, headerStyle.Render(v.Title))
		case timeline.Audio:
			lines = append(lines, m.row(v.Record, i == m.cursor))
		}
	}

	// Keep the cursor visible when the list is taller than the window.
	visible := m.height - 6
	if m.prompting {
		visible -= 4
	}
	if visible > 0 && len(lines) > visible {
		start := 0
		if m.cursor >= visible {
			start = m.cursor - visible + 1
		}
		end := start + visible
		if end > len(lines) {
			end = len(lines)
		}
		lines = lines[start:end]
	}
	return strings.Join(lines, "\n") + "\n"
}

func (m Model) row(rec models.AudioRecord, selected bool) string {
	marker := "  "
	length := timeline.FormatDuration(rec.Duration)
	current := m.playback.IsCurrent(rec.ID)
	if current {
		marker = "❚❚"
		if m.playback.IsPlaying {
			marker = "▶ "
		}
		length = timeline.FormatDuration(int64(m.playback.CurrentPosition)) + " / " +
			timeline.FormatDuration(int64(m.playback.TotalDuration))
	}
	clock := timeline.FormatClock(rec.Timestamp, m.deps.Location)
	line := fmt.Sprintf("%s %s  %s  %s", marker, clock, rec.Title, length)

	switch {
	case selected:
		return selectedStyle.Render(line)
	case current:
		return playingStyle.Render(line)
	default:
		return rowStyle.Render(marker+" ") + clockStyle.Render(clock) + rowStyle.Render("  "+rec.Title+"  "+length)
	}
}
