package tasks

import (
	"context"
	"fmt"

	"github.com/omerharel/dutywatch/pkg/core/model"
)

// TaskAt reconstructs a single Task from a cell reference, keeping only
// the column where the given person currently appears. It returns a
// LookupError when the person no longer holds any of the referenced
// cells, which means the sheet changed under an in-flight negotiation.
func (r *Resolver) TaskAt(ctx context.Context, ref model.CellRef, person *model.Person) (*model.Task, error) {
	title, err := r.source.SheetTitle(ctx, ref.SheetIndex)
	if err != nil {
		return nil, err
	}
	rows, err := r.source.GetAllRows(ctx, title)
	if err != nil {
		return nil, err
	}
	if ref.Row < 1 || ref.Row > len(rows) {
		return nil, fmt.Errorf("row %d out of range in sheet %s", ref.Row, title)
	}

	row := rows[ref.Row-1]

	// Blank dates inherit the nearest non-blank date above, same as the
	// resolver's sheet scan.
	dateValue := rowCell(row, dateCol)
	for above := ref.Row - 2; dateValue == "" && above > headersRowIdx; above-- {
		dateValue = rowCell(rows[above], dateCol)
	}

	for _, col := range ref.Cols {
		if col >= len(row) || row[col] != person.Name {
			continue
		}

		start, end, err := r.parser.Window(dateValue, rowCell(row, timeCol))
		if err != nil {
			return nil, err
		}
		return &model.Task{
			Name:       rowCell(rows[headersRowIdx], col),
			Sheet:      title,
			SheetIndex: ref.SheetIndex,
			Row:        ref.Row,
			Cols:       []int{col},
			Start:      start,
			End:        end,
			Members:    []*model.Person{person},
		}, nil
	}

	return nil, &model.LookupError{
		Name:       person.Name,
		Sheet:      title,
		SheetIndex: ref.SheetIndex,
		Row:        ref.Row,
		Cols:       ref.Cols,
	}
}

// Replacers returns the names occupying the same duty columns on the
// row below the referenced shift, i.e. whoever takes over next.
func (r *Resolver) Replacers(ctx context.Context, ref model.CellRef) ([]string, error) {
	title, err := r.source.SheetTitle(ctx, ref.SheetIndex)
	if err != nil {
		return nil, err
	}
	rows, err := r.source.GetAllRows(ctx, title)
	if err != nil {
		return nil, err
	}
	if ref.Row >= len(rows) {
		return nil, nil
	}

	next := rows[ref.Row] // the row after ref.Row in 1-based terms
	replacers := make([]string, 0, len(ref.Cols))
	for _, col := range ref.Cols {
		if name := rowCell(next, col); name != "" {
			replacers = append(replacers, name)
		}
	}
	return replacers, nil
}
