package swap

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/omerharel/dutywatch/pkg/core/model"
)

// CellStore is the slice of the tabular store the executor mutates.
// Rows and columns are 1-based here, the way the sheet API addresses
// cells; CellRef columns are 0-based and converted at the call site.
type CellStore interface {
	CellValue(ctx context.Context, sheetIndex, row, col int) (string, error)
	UpdateCell(ctx context.Context, sheetIndex, row, col int, value string) error
}

// Result describes the cells an approved swap actually wrote.
type Result struct {
	GaveCell *model.CellRef // nil when the requester was just taking
	TookCell model.CellRef
}

// Executor applies an approved negotiation to the sheet.
type Executor struct {
	store CellStore
	log   *zap.Logger
}

// NewExecutor creates an Executor over the given cell store.
func NewExecutor(store CellStore, log *zap.Logger) *Executor {
	return &Executor{store: store, log: log}
}

// Execute applies the swap: the counterparty's name goes into the cell
// the requester gave up, the requester's name into the counterparty's
// cell. Both cells are re-read and precondition-checked before the
// first write; if either expected name is gone the whole operation
// fails with a LookupError and nothing is written. The two writes
// themselves are not atomic: the first can land and the second fail,
// leaving the sheet inconsistent. There is no rollback.
func (e *Executor) Execute(ctx context.Context, n *Negotiation, requester, counterparty *model.Person) (*Result, error) {
	if n.Stage != StageApproval {
		return nil, &StageError{Got: n.Stage, Want: StageApproval}
	}
	if n.Take == nil {
		return nil, fmt.Errorf("negotiation %s has no target shift", n.ID)
	}

	takeCol, err := e.findNameColumn(ctx, *n.Take, counterparty.Name)
	if err != nil {
		return nil, err
	}

	var giveCol int
	if n.Give != nil {
		giveCol, err = e.findNameColumn(ctx, *n.Give, requester.Name)
		if err != nil {
			return nil, err
		}
	}

	result := &Result{TookCell: model.CellRef{SheetIndex: n.Take.SheetIndex, Row: n.Take.Row, Cols: []int{takeCol}}}

	if n.Give != nil {
		e.log.Info("swap: writing counterparty into relinquished cell",
			zap.String("requester", requester.Name),
			zap.String("counterparty", counterparty.Name),
			zap.Int("sheet", n.Give.SheetIndex),
			zap.Int("row", n.Give.Row),
			zap.Int("col", giveCol))
		if err := e.store.UpdateCell(ctx, n.Give.SheetIndex, n.Give.Row, giveCol+1, counterparty.Name); err != nil {
			return nil, fmt.Errorf("failed to write relinquished cell: %w", err)
		}
		result.GaveCell = &model.CellRef{SheetIndex: n.Give.SheetIndex, Row: n.Give.Row, Cols: []int{giveCol}}
	}

	e.log.Info("swap: writing requester into counterparty cell",
		zap.String("requester", requester.Name),
		zap.String("counterparty", counterparty.Name),
		zap.Int("sheet", n.Take.SheetIndex),
		zap.Int("row", n.Take.Row),
		zap.Int("col", takeCol))
	if err := e.store.UpdateCell(ctx, n.Take.SheetIndex, n.Take.Row, takeCol+1, requester.Name); err != nil {
		// The relinquished cell may already hold the counterparty's
		// name at this point. Surfaced, not rolled back.
		return nil, fmt.Errorf("failed to write counterparty cell: %w", err)
	}

	return result, nil
}

// findNameColumn re-reads the referenced cells and returns the 0-based
// column where the expected name currently sits. This is the weak,
// advisory concurrency guard: read, compare, then write.
func (e *Executor) findNameColumn(ctx context.Context, ref model.CellRef, name string) (int, error) {
	for _, col := range ref.Cols {
		value, err := e.store.CellValue(ctx, ref.SheetIndex, ref.Row, col+1)
		if err != nil {
			return 0, fmt.Errorf("failed to read cell: %w", err)
		}
		if value == name {
			return col, nil
		}
	}
	return 0, &model.LookupError{
		Name:       name,
		SheetIndex: ref.SheetIndex,
		Row:        ref.Row,
		Cols:       ref.Cols,
	}
}
