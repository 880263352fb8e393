package calendar

import (
	"time"

	"github.com/homesapp/rentals/internal/types"
)

// DefaultPageSize is the number of events per day-view page.
const DefaultPageSize = 5

// DefaultAgendaDays is the span of the agenda view.
const DefaultAgendaDays = 7

// DayView pages through the events of one date. Changing page collapses any
// expanded event.
type DayView struct {
	Date     string
	PageSize int
	Expanded string

	events []Event
	page   int
}

// NewDayView creates a day view on the first page.
func NewDayView(v View, date string, pageSize int) *DayView {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &DayView{Date: date, PageSize: pageSize, events: v.EventsByDate[date]}
}

// Pages is the number of pages; an empty day has one empty page.
func (d *DayView) Pages() int {
	if len(d.events) == 0 {
		return 1
	}
	return (len(d.events) + d.PageSize - 1) / d.PageSize
}

// Page returns the zero-based current page.
func (d *DayView) Page() int { return d.page }

// Items returns the events on the current page.
func (d *DayView) Items() []Event {
	start := d.page * d.PageSize
	if start >= len(d.events) {
		return nil
	}
	end := min(start+d.PageSize, len(d.events))
	return d.events[start:end]
}

// Next moves forward one page. It reports false on the last page.
func (d *DayView) Next() bool {
	if d.page+1 >= d.Pages() {
		return false
	}
	d.page++
	d.Expanded = ""
	return true
}

// Prev moves back one page. It reports false on the first page.
func (d *DayView) Prev() bool {
	if d.page == 0 {
		return false
	}
	d.page--
	d.Expanded = ""
	return true
}

// Goto jumps to page n, clamped to the valid range.
func (d *DayView) Goto(n int) {
	n = max(0, min(n, d.Pages()-1))
	if n != d.page {
		d.Expanded = ""
	}
	d.page = n
}

// Expand marks the event with sourceID as expanded if it is on this page.
func (d *DayView) Expand(sourceID string) bool {
	for _, ev := range d.Items() {
		if ev.SourceID == sourceID {
			d.Expanded = sourceID
			return true
		}
	}
	return false
}

// DayPage is the wire form of one day-view page.
type DayPage struct {
	Date     string  `json:"date"`
	Page     int     `json:"page"`
	Pages    int     `json:"pages"`
	PageSize int     `json:"pageSize"`
	Total    int     `json:"total"`
	Events   []Event `json:"events"`
	Counts   Counts  `json:"counts"`
}

// Snapshot renders the current page.
func (d *DayView) Snapshot(counts Counts) DayPage {
	items := d.Items()
	if items == nil {
		items = []Event{}
	}
	return DayPage{
		Date:     d.Date,
		Page:     d.page,
		Pages:    d.Pages(),
		PageSize: d.PageSize,
		Total:    len(d.events),
		Events:   items,
		Counts:   counts,
	}
}

// AgendaDay is one date of the agenda.
type AgendaDay struct {
	Date   string  `json:"date"`
	Events []Event `json:"events"`
}

// Agenda lists the events of days consecutive dates from start. Every day
// is present, possibly empty. Events without a resolvable date are dropped.
func Agenda(v View, start time.Time, days int) []AgendaDay {
	if days <= 0 {
		days = DefaultAgendaDays
	}
	start = types.Day(start)
	out := make([]AgendaDay, 0, days)
	for i := 0; i < days; i++ {
		date := types.FormatDate(start.AddDate(0, 0, i))
		evs := make([]Event, 0, len(v.EventsByDate[date]))
		for _, ev := range v.EventsByDate[date] {
			if ev.Date.IsZero() || ev.DateText != date {
				continue
			}
			evs = append(evs, ev)
		}
		out = append(out, AgendaDay{Date: date, Events: evs})
	}
	return out
}
