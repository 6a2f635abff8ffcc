package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/omerharel/dutywatch/pkg/core/model"
	"github.com/omerharel/dutywatch/pkg/core/tasks"
	"github.com/omerharel/dutywatch/pkg/i18n"
)

// ShiftService renders shift listings from the task resolver.
type ShiftService struct {
	tasks TaskFinder
	tr    *i18n.Translator
	log   *zap.Logger
}

// NewShiftService wires a ShiftService.
func NewShiftService(finder TaskFinder, tr *i18n.Translator, log *zap.Logger) *ShiftService {
	if tr == nil {
		tr = i18n.Nop()
	}
	return &ShiftService{tasks: finder, tr: tr, log: log}
}

// shiftGroup collects the tasks sharing one time range, in resolve
// order.
type shiftGroup struct {
	start, end time.Time
	tasks      []*model.Task
}

// ListShifts renders every task in the window grouped by identical
// start and end instants. A nil person lists everyone's shifts.
func (s *ShiftService) ListShifts(ctx context.Context, person *model.Person, from, to time.Time) (string, error) {
	found, err := s.tasks.Resolve(ctx, tasks.Query{Person: person, From: from, To: to})
	if err != nil {
		return "", fmt.Errorf("failed to resolve shifts: %w", err)
	}

	if len(found) == 0 {
		return s.tr.Get("no_shifts", "No shifts in this range"), nil
	}

	var b strings.Builder
	for _, g := range groupByRange(found) {
		fmt.Fprintf(&b, "%s %s - %s:\n",
			g.start.Weekday(),
			g.start.Format("02.01.06 15:04"),
			g.end.Format("15:04"))
		for _, t := range g.tasks {
			fmt.Fprintf(&b, "  %s: %s\n", t.Name, strings.Join(t.MemberNames(), ", "))
		}
	}
	return b.String(), nil
}

// Upcoming returns the raw upcoming tasks for one person, for flows
// that need Task values rather than rendered text (swap shift picking).
func (s *ShiftService) Upcoming(ctx context.Context, person *model.Person, until time.Time) ([]*model.Task, error) {
	found, err := s.tasks.Resolve(ctx, tasks.Query{Person: person, To: until})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve upcoming shifts: %w", err)
	}
	return found, nil
}

// groupByRange buckets sorted tasks by identical time range, keeping
// first-encounter order.
func groupByRange(found []*model.Task) []shiftGroup {
	var groups []shiftGroup
	for _, t := range found {
		if n := len(groups); n > 0 && groups[n-1].start.Equal(t.Start) && groups[n-1].end.Equal(t.End) {
			groups[n-1].tasks = append(groups[n-1].tasks, t)
			continue
		}
		groups = append(groups, shiftGroup{start: t.Start, end: t.End, tasks: []*model.Task{t}})
	}
	return groups
}
