// Package timeline projects the record list into date-grouped display items.
package timeline

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/starford/ansuz/internal/models"
)

// HeaderLayout formats group titles, e.g. "Wednesday, April 10, 2024".
const HeaderLayout = "Monday, January 2, 2006"

// ClockLayout formats a record's time of day.
const ClockLayout = "15:04"

// Kind discriminates timeline items.
type Kind int

const (
	KindHeader Kind = iota
	KindAudio
)

func (k Kind) String() string {
	if k == KindHeader {
		return "header"
	}
	return "audio"
}

// Item is either a Header or an Audio entry.
type Item interface {
	Kind() Kind
	// Key identifies the item across projections.
	Key() string
	sealed()
}

// Header starts a group of records sharing one calendar date.
type Header struct {
	Title string
}

// Audio is one record inside a group.
type Audio struct {
	Record models.AudioRecord
}

func (Header) Kind() Kind { return KindHeader }
func (Audio) Kind() Kind  { return KindAudio }

func (h Header) Key() string { return "header:" + h.Title }
func (a Audio) Key() string  { return "audio:" + strconv.FormatInt(a.Record.ID, 10) }

func (Header) sealed() {}
func (Audio) sealed()  {}

// Project groups records by the calendar date of their timestamp in loc.
// Groups appear in order of first occurrence and members keep input order.
// Callers pass records newest first.
func Project(records []models.AudioRecord, loc *time.Location) []Item {
	if loc == nil {
		loc = time.Local
	}
	var order []string
	groups := make(map[string][]models.AudioRecord)
	for _, r := range records {
		title := r.CreatedAt().In(loc).Format(HeaderLayout)
		if _, ok := groups[title]; !ok {
			order = append(order, title)
		}
		groups[title] = append(groups[title], r)
	}

	items := make([]Item, 0, len(records)+len(order))
	for _, title := range order {
		items = append(items, Header{Title: title})
		for _, r := range groups[title] {
			items = append(items, Audio{Record: r})
		}
	}
	return items
}

// Records flattens items back to the records they contain.
func Records(items []Item) []models.AudioRecord {
	out := make([]models.AudioRecord, 0, len(items))
	for _, it := range items {
		if a, ok := it.(Audio); ok {
			out = append(out, a.Record)
		}
	}
	return out
}

// FormatDuration renders ms as "mm:ss". Minutes are not capped at 60.
func FormatDuration(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	secs := ms / 1000
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// FormatClock renders the time of day of a millisecond timestamp.
func FormatClock(ts int64, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return time.UnixMilli(ts).In(loc).Format(ClockLayout)
}

// Text renders items as a plain day-by-day listing: one line per header and
// an indented "clock  duration  title  (#id)" line per record.
func Text(items []Item, loc *time.Location) string {
	var b strings.Builder
	for _, it := range items {
		switch v := it.(type) {
		case Header:
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(v.Title)
			b.WriteByte('\n')
		case Audio:
			fmt.Fprintf(&b, "  %s  %s  %s  (#%d)\n",
				FormatClock(v.Record.Timestamp, loc),
				FormatDuration(v.Record.Duration),
				v.Record.Title,
				v.Record.ID,
			)
		}
	}
	return b.String()
}
