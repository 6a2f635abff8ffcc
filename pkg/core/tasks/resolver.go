// Package tasks reconstructs duty Tasks from raw task sheet rows.
// Tasks are never cached: every query rescans the sheets so edits made
// directly in the spreadsheet are always visible.
package tasks

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/omerharel/dutywatch/pkg/core/model"
	"github.com/omerharel/dutywatch/pkg/core/timerange"
)

// Task sheet layout: a header row naming the duty per column, then data
// rows of date, time, and one member name per slot column.
const (
	headersRowIdx = 0
	dateCol       = 0
	timeCol       = 1
	// memberColOffset skips the date and time columns when converting a
	// member slot index to its sheet column.
	memberColOffset = 2
)

// SheetSource reads task sheets by name or by index.
type SheetSource interface {
	GetAllRows(ctx context.Context, sheet string) ([][]string, error)
	SheetIndex(ctx context.Context, name string) (int, error)
	SheetTitle(ctx context.Context, index int) (string, error)
}

// Roster resolves member names against the roster snapshot.
type Roster interface {
	Get(name string) (*model.Person, bool)
}

// Query selects tasks by instant or by window, optionally filtered to
// one person. A zero From means "from now"; a zero To means no upper
// bound.
type Query struct {
	Now    bool
	Person *model.Person
	From   time.Time
	To     time.Time
}

// Resolver scans the configured task sheets and produces Tasks.
type Resolver struct {
	source SheetSource
	roster Roster
	parser *timerange.Parser
	tabs   []string
	log    *zap.Logger
	now    func() time.Time
}

// NewResolver creates a Resolver over the given task sheet names.
func NewResolver(source SheetSource, roster Roster, parser *timerange.Parser, tabs []string, log *zap.Logger) *Resolver {
	return &Resolver{
		source: source,
		roster: roster,
		parser: parser,
		tabs:   tabs,
		log:    log,
		now:    time.Now,
	}
}

// Resolve returns all matching tasks across every task sheet, sorted
// ascending by start instant. The result is empty, never nil, when
// nothing matches.
func (r *Resolver) Resolve(ctx context.Context, q Query) ([]*model.Task, error) {
	found := make([]*model.Task, 0)
	for _, tab := range r.tabs {
		tabTasks, err := r.fromSheet(ctx, tab, q)
		if err != nil {
			return nil, err
		}
		found = append(found, tabTasks...)
	}

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].Start.Before(found[j].Start)
	})
	return found, nil
}

func (r *Resolver) fromSheet(ctx context.Context, tab string, q Query) ([]*model.Task, error) {
	rows, err := r.source.GetAllRows(ctx, tab)
	if err != nil {
		return nil, err
	}
	if len(rows) <= headersRowIdx {
		return nil, nil
	}

	sheetIndex, err := r.source.SheetIndex(ctx, tab)
	if err != nil {
		return nil, err
	}

	groups := groupHeaders(rows[headersRowIdx])
	now := r.now()
	from := q.From
	if from.IsZero() {
		from = now
	}

	var tasks []*model.Task
	var prevDate string
	for i, row := range rows[headersRowIdx+1:] {
		dateValue := rowCell(row, dateCol)
		timeValue := rowCell(row, timeCol)
		if dateValue == "" {
			// Blank dates inherit the nearest non-blank date above.
			dateValue = prevDate
		} else {
			prevDate = dateValue
		}

		start, end, err := r.parser.Window(dateValue, timeValue)
		if err != nil {
			r.log.Warn("skipping unparsable task row",
				zap.String("sheet", tab),
				zap.Int("row", i+2),
				zap.Error(err))
			continue
		}

		if q.Now {
			if !timerange.Contains(start, end, now) {
				continue
			}
		} else {
			to := q.To
			if to.IsZero() {
				to = end // unbounded above: anything not already over
			}
			if !timerange.Overlaps(start, end, from, to) {
				continue
			}
		}

		names := row[min(memberColOffset, len(row)):]
		if q.Person != nil && !containsName(names, q.Person.Name) {
			continue
		}

		for _, g := range groups {
			task := r.buildTask(tab, sheetIndex, i+2, g, names, start, end)
			if len(task.Members) == 0 {
				continue
			}
			if q.Person != nil && !task.HasMember(q.Person.Name) {
				// Stale or renamed entry: the raw cell matched but the
				// resolved members do not include the person.
				continue
			}
			tasks = append(tasks, task)
		}
	}
	return tasks, nil
}

// buildTask resolves one task-name column group into a Task, dropping
// names missing from the roster with a warning.
func (r *Resolver) buildTask(tab string, sheetIndex, row int, g headerGroup, names []string, start, end time.Time) *model.Task {
	task := &model.Task{
		Name:       g.name,
		Sheet:      tab,
		SheetIndex: sheetIndex,
		Row:        row,
		Start:      start,
		End:        end,
	}
	for _, slot := range g.slots {
		if slot >= len(names) {
			continue
		}
		name := names[slot]
		if name == "" {
			continue
		}
		member, ok := r.roster.Get(name)
		if !ok {
			r.log.Warn("task member not in roster",
				zap.String("sheet", tab),
				zap.String("name", name))
			continue
		}
		task.Members = append(task.Members, member)
		task.Cols = append(task.Cols, slot+memberColOffset)
	}
	return task
}

type headerGroup struct {
	name  string
	slots []int
}

// groupHeaders groups member slot columns by their header label,
// keeping first-encounter order. A label spanning several columns
// yields one group with several slots.
func groupHeaders(header []string) []headerGroup {
	if len(header) <= memberColOffset {
		return nil
	}
	var groups []headerGroup
	index := make(map[string]int)
	for slot, label := range header[memberColOffset:] {
		if label == "" {
			continue
		}
		gi, ok := index[label]
		if !ok {
			gi = len(groups)
			index[label] = gi
			groups = append(groups, headerGroup{name: label})
		}
		groups[gi].slots = append(groups[gi].slots, slot)
	}
	return groups
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func rowCell(row []string, col int) string {
	if col >= len(row) {
		return ""
	}
	return row[col]
}
