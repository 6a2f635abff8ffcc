package model

import "fmt"

// LookupError reports that a name expected at a roster or sheet
// location was not found there, typically because the sheet was edited
// concurrently. Mutations abort before any write when this surfaces.
type LookupError struct {
	Name       string
	Sheet      string
	SheetIndex int
	Row        int
	Cols       []int
}

func (e *LookupError) Error() string {
	where := e.Sheet
	if where == "" {
		where = fmt.Sprintf("sheet %d", e.SheetIndex)
	}
	return fmt.Sprintf("%s not found at %s row %d cols %v", e.Name, where, e.Row, e.Cols)
}
