package tasks

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/omerharel/dutywatch/pkg/core/model"
	"github.com/omerharel/dutywatch/pkg/core/timerange"
)

type fakeSource struct {
	order  []string
	sheets map[string][][]string
}

func (f *fakeSource) GetAllRows(_ context.Context, sheet string) ([][]string, error) {
	rows, ok := f.sheets[sheet]
	if !ok {
		return nil, fmt.Errorf("no such sheet %q", sheet)
	}
	return rows, nil
}

func (f *fakeSource) SheetIndex(_ context.Context, name string) (int, error) {
	for i, n := range f.order {
		if n == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no such sheet %q", name)
}

func (f *fakeSource) SheetTitle(_ context.Context, index int) (string, error) {
	if index < 0 || index >= len(f.order) {
		return "", fmt.Errorf("no sheet at index %d", index)
	}
	return f.order[index], nil
}

type fakeRoster map[string]*model.Person

func (f fakeRoster) Get(name string) (*model.Person, bool) {
	p, ok := f[name]
	return p, ok
}

func testRoster() fakeRoster {
	roster := fakeRoster{}
	for _, name := range []string{"Dana", "Avi", "Noam", "Maya"} {
		roster[name] = &model.Person{Name: name, Phone: "050-000"}
	}
	return roster
}

// The fixture sheet: guard duty spans two slot columns, kitchen one.
// The second row inherits the 10.3 date via carry-forward.
func guardSheet() [][]string {
	return [][]string{
		{"date", "time", "Guard", "Guard", "Kitchen"},
		{"10.3", "07:00-19:00", "Dana", "Avi", "Noam"},
		{"", "19:00-07:00", "Maya", "", "Ghost"},
		{"12.3", "", "Avi", "", ""},
	}
}

func newTestResolver(src *fakeSource, roster Roster) *Resolver {
	parser := timerange.New(time.UTC, func() time.Time {
		return time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	})
	r := NewResolver(src, roster, parser, src.order, zap.NewNop())
	r.now = func() time.Time { return time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC) }
	return r
}

func TestResolve_InstantMode(t *testing.T) {
	src := &fakeSource{order: []string{"guards"}, sheets: map[string][][]string{"guards": guardSheet()}}
	r := newTestResolver(src, testRoster())

	tasks, err := r.Resolve(context.Background(), Query{Now: true})
	require.NoError(t, err)

	// Noon on 10.3 falls only inside the 07:00-19:00 row.
	require.Len(t, tasks, 2)
	assert.Equal(t, "Guard", tasks[0].Name)
	assert.Equal(t, []string{"Dana", "Avi"}, tasks[0].MemberNames())
	assert.Equal(t, []int{2, 3}, tasks[0].Cols)
	assert.Equal(t, "Kitchen", tasks[1].Name)
	assert.Equal(t, []string{"Noam"}, tasks[1].MemberNames())
	assert.Equal(t, 2, tasks[0].Row)
}

func TestResolve_CarryForwardDate(t *testing.T) {
	src := &fakeSource{order: []string{"guards"}, sheets: map[string][][]string{"guards": guardSheet()}}
	r := newTestResolver(src, testRoster())

	tasks, err := r.Resolve(context.Background(), Query{
		From: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 3, 11, 23, 59, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	// The blank-date night row inherits 10.3 and crosses midnight.
	var night *model.Task
	for _, task := range tasks {
		if task.Row == 3 {
			night = task
		}
	}
	require.NotNil(t, night, "night shift row should match the window")
	assert.Equal(t, time.Date(2024, 3, 10, 19, 0, 0, 0, time.UTC), night.Start)
	assert.Equal(t, time.Date(2024, 3, 11, 7, 0, 0, 0, time.UTC), night.End)
	// Ghost is not in the roster and is dropped, not an error.
	assert.Equal(t, []string{"Maya"}, night.MemberNames())
}

func TestResolve_PersonFilter(t *testing.T) {
	src := &fakeSource{order: []string{"guards"}, sheets: map[string][][]string{"guards": guardSheet()}}
	roster := testRoster()
	r := newTestResolver(src, roster)

	tasks, err := r.Resolve(context.Background(), Query{
		Person: roster["Avi"],
		From:   time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		To:     time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	require.Len(t, tasks, 2)
	for _, task := range tasks {
		assert.True(t, task.HasMember("Avi"))
		assert.Equal(t, "Guard", task.Name)
	}
}

func TestResolve_PersonNotAmongResolvedMembers(t *testing.T) {
	// Ghost appears in the raw cells but is absent from the roster, so
	// a query for Ghost must come back empty rather than match the row.
	src := &fakeSource{order: []string{"guards"}, sheets: map[string][][]string{"guards": guardSheet()}}
	r := newTestResolver(src, testRoster())

	tasks, err := r.Resolve(context.Background(), Query{
		Person: &model.Person{Name: "Ghost"},
		From:   time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		To:     time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Empty(t, tasks)
	assert.NotNil(t, tasks, "result is empty, never nil")
}

func TestResolve_SortedAcrossSheets(t *testing.T) {
	src := &fakeSource{
		order: []string{"guards", "patrol"},
		sheets: map[string][][]string{
			"guards": {
				{"date", "time", "Guard"},
				{"12.3", "07:00-19:00", "Dana"},
			},
			"patrol": {
				{"date", "time", "Patrol"},
				{"11.3", "07:00-19:00", "Avi"},
			},
		},
	}
	r := newTestResolver(src, testRoster())

	tasks, err := r.Resolve(context.Background(), Query{
		From: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	require.Len(t, tasks, 2)
	assert.Equal(t, "Patrol", tasks[0].Name)
	assert.Equal(t, "Guard", tasks[1].Name)
	assert.True(t, tasks[0].Start.Before(tasks[1].Start))
}

func TestResolve_Idempotent(t *testing.T) {
	src := &fakeSource{order: []string{"guards"}, sheets: map[string][][]string{"guards": guardSheet()}}
	r := newTestResolver(src, testRoster())

	q := Query{
		From: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC),
	}
	first, err := r.Resolve(context.Background(), q)
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestResolve_SkipsUnparsableRows(t *testing.T) {
	src := &fakeSource{
		order: []string{"guards"},
		sheets: map[string][][]string{
			"guards": {
				{"date", "time", "Guard"},
				{"not a date", "07:00-19:00", "Dana"},
				{"10.3", "07:00-19:00", "Avi"},
			},
		},
	}
	r := newTestResolver(src, testRoster())

	tasks, err := r.Resolve(context.Background(), Query{Now: true})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, []string{"Avi"}, tasks[0].MemberNames())
}

func TestTaskAt(t *testing.T) {
	src := &fakeSource{order: []string{"guards"}, sheets: map[string][][]string{"guards": guardSheet()}}
	roster := testRoster()
	r := newTestResolver(src, roster)

	ref := model.CellRef{SheetIndex: 0, Row: 2, Cols: []int{2, 3}}
	task, err := r.TaskAt(context.Background(), ref, roster["Avi"])
	require.NoError(t, err)

	assert.Equal(t, "Guard", task.Name)
	assert.Equal(t, []int{3}, task.Cols, "only the column Avi holds")
	assert.Equal(t, []string{"Avi"}, task.MemberNames())
}

func TestTaskAt_CarryForwardDate(t *testing.T) {
	src := &fakeSource{order: []string{"guards"}, sheets: map[string][][]string{"guards": guardSheet()}}
	roster := testRoster()
	r := newTestResolver(src, roster)

	// Row 3 has a blank date cell inheriting 10.3 from the row above.
	ref := model.CellRef{SheetIndex: 0, Row: 3, Cols: []int{2}}
	task, err := r.TaskAt(context.Background(), ref, roster["Maya"])
	require.NoError(t, err)

	assert.Equal(t, []string{"Maya"}, task.MemberNames())
	assert.Equal(t, time.Date(2024, 3, 10, 19, 0, 0, 0, time.UTC), task.Start)
	assert.Equal(t, time.Date(2024, 3, 11, 7, 0, 0, 0, time.UTC), task.End)
}

func TestTaskAt_NameGone(t *testing.T) {
	src := &fakeSource{order: []string{"guards"}, sheets: map[string][][]string{"guards": guardSheet()}}
	r := newTestResolver(src, testRoster())

	ref := model.CellRef{SheetIndex: 0, Row: 2, Cols: []int{2, 3}}
	_, err := r.TaskAt(context.Background(), ref, &model.Person{Name: "Maya"})
	require.Error(t, err)
	var lookupErr *model.LookupError
	assert.ErrorAs(t, err, &lookupErr)
}

func TestReplacers(t *testing.T) {
	src := &fakeSource{order: []string{"guards"}, sheets: map[string][][]string{"guards": guardSheet()}}
	r := newTestResolver(src, testRoster())

	ref := model.CellRef{SheetIndex: 0, Row: 2, Cols: []int{2, 3}}
	replacers, err := r.Replacers(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, []string{"Maya"}, replacers)
}
