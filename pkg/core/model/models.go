package model

import (
	"fmt"
	"time"
)

// StatusName is the canonical presence state stored in the persons sheet.
// Localized display strings are a presentation concern (pkg/i18n).
type StatusName string

const (
	StatusHere     StatusName = "here"
	StatusOut      StatusName = "out"
	StatusShortOut StatusName = "short_out"

	// StatusReleased is derived from the releases sheet, never stored.
	StatusReleased StatusName = "released"
)

func (s StatusName) IsValid() bool {
	return s == StatusHere || s == StatusOut || s == StatusShortOut
}

// ParseStatusName maps a sheet cell value to a StatusName.
// Unknown or empty values default to here, matching a fresh roster row.
func ParseStatusName(raw string) StatusName {
	s := StatusName(raw)
	if !s.IsValid() {
		return StatusHere
	}
	return s
}

// Status is a person's current presence state and when it last changed.
type Status struct {
	Name      StatusName
	UpdatedAt time.Time
}

// Person is one roster member. Name is the sole stable key across
// tasks, teams, and status lookups.
type Person struct {
	Row    int // 1-based row in the persons sheet
	Name   string
	Phone  string
	Email  string
	Team   string
	Status Status
	ChatID int64 // 0 when the person never identified on the chat transport
}

// Description renders the person the way they appear in messages and
// in the releases sheet: "<name> <phone>".
func (p *Person) Description() string {
	return fmt.Sprintf("%s %s", p.Name, p.Phone)
}

// Team is an ordered list of member names. The first listed member is
// rendered as the team's commander.
type Team struct {
	Name    string
	Members []string
}

// Lead returns the first listed member, or "" for an empty team.
func (t Team) Lead() string {
	if len(t.Members) == 0 {
		return ""
	}
	return t.Members[0]
}

// Task is one duty occurrence reconstructed from a tasks sheet row.
// Tasks are ephemeral: recomputed on every query, never cached.
type Task struct {
	Name       string
	Sheet      string
	SheetIndex int
	Row        int   // 1-based sheet row
	Cols       []int // 0-based sheet columns, one per member slot
	Start      time.Time
	End        time.Time
	Members    []*Person
}

// MemberNames returns the names of all resolved members.
func (t *Task) MemberNames() []string {
	names := make([]string, len(t.Members))
	for i, m := range t.Members {
		names[i] = m.Name
	}
	return names
}

// MemberDescriptions returns the display descriptions of all members.
func (t *Task) MemberDescriptions() []string {
	descs := make([]string, len(t.Members))
	for i, m := range t.Members {
		descs[i] = m.Description()
	}
	return descs
}

// HasMember reports whether the named person is among resolved members.
func (t *Task) HasMember(name string) bool {
	for _, m := range t.Members {
		if m.Name == name {
			return true
		}
	}
	return false
}

// Ref returns the cell reference addressing this task's member slots.
func (t *Task) Ref() CellRef {
	cols := make([]int, len(t.Cols))
	copy(cols, t.Cols)
	return CellRef{SheetIndex: t.SheetIndex, Row: t.Row, Cols: cols}
}

// Describe renders the task for messages, optionally with its window.
func (t *Task) Describe(withTime bool) string {
	if !withTime {
		return t.Name
	}
	return fmt.Sprintf("%s %s %s - %s",
		t.Name,
		t.Start.Weekday(),
		t.Start.Format("02.01.06 15:04"),
		t.End.Format("15:04"))
}
