package swap

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/omerharel/dutywatch/pkg/core/model"
)

func TestNegotiation_FullHandshake(t *testing.T) {
	n := Start("Dana")
	assert.Equal(t, StageOwnShift, n.Stage)
	assert.NotEmpty(t, n.ID)

	give := model.CellRef{SheetIndex: 0, Row: 2, Cols: []int{2, 3}}
	require.NoError(t, n.ChooseOwnShift(&give))
	assert.Equal(t, StageCounterparty, n.Stage)

	require.NoError(t, n.ChooseCounterparty("Avi"))
	assert.Equal(t, StageCounterpartyShift, n.Stage)

	take := model.CellRef{SheetIndex: 1, Row: 5, Cols: []int{4}}
	require.NoError(t, n.ChooseCounterpartyShift(take))
	assert.Equal(t, StageApproval, n.Stage)
}

func TestNegotiation_OutOfOrderStep(t *testing.T) {
	n := Start("Dana")

	err := n.ChooseCounterparty("Avi")
	require.Error(t, err)
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageOwnShift, stageErr.Got)
	assert.Equal(t, StageCounterparty, stageErr.Want)
}

func TestToken_RoundTrip(t *testing.T) {
	n := Start("Dana")
	give := model.CellRef{SheetIndex: 0, Row: 2, Cols: []int{2, 3}}
	require.NoError(t, n.ChooseOwnShift(&give))
	require.NoError(t, n.ChooseCounterparty("Avi"))
	require.NoError(t, n.ChooseCounterpartyShift(model.CellRef{SheetIndex: 1, Row: 5, Cols: []int{4}}))

	decoded, err := ParseToken(n.Token())
	require.NoError(t, err)
	assert.Equal(t, n, decoded)
}

func TestToken_RoundTripJustTaking(t *testing.T) {
	n := Start("Dana")
	require.NoError(t, n.ChooseOwnShift(nil))

	decoded, err := ParseToken(n.Token())
	require.NoError(t, err)
	assert.Nil(t, decoded.Give)
	assert.Equal(t, StageCounterparty, decoded.Stage)
}

func TestToken_RoundTripAwkwardNames(t *testing.T) {
	tests := []struct {
		name         string
		requester    string
		counterparty string
	}{
		{"separator in name", "Bar|Lev", "Avi"},
		{"name is the empty placeholder", "-", "Avi"},
		{"spaces and percent", "Dana 50%", "Ben Or"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := Start(tt.requester)
			require.NoError(t, n.ChooseOwnShift(nil))
			require.NoError(t, n.ChooseCounterparty(tt.counterparty))

			decoded, err := ParseToken(n.Token())
			require.NoError(t, err)
			assert.Equal(t, tt.requester, decoded.Requester)
			assert.Equal(t, tt.counterparty, decoded.Counterparty)
		})
	}
}

func TestParseToken_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"wrong field count", "v1|id|own_shift"},
		{"bad version", "v2|id|own_shift|Dana|-|-|-"},
		{"bad stage", "v1|id|waiting|Dana|-|-|-"},
		{"no requester", "v1|id|own_shift||-|-|-"},
		{"bad ref", "v1|id|approval|Dana|junk|Avi|-"},
		{"bad requester escape", "v1|id|own_shift|%zz|-|-|-"},
		{"bad counterparty escape", "v1|id|approval|Dana|-|%zz|-"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseToken(tt.token)
			assert.Error(t, err)
		})
	}
}

// fakeCellStore is a tiny addressable grid: keys are sheet:row:col with
// 1-based row/col.
type fakeCellStore struct {
	cells      map[string]string
	writes     []string
	failWrites map[string]error
}

func key(sheet, row, col int) string {
	return fmt.Sprintf("%d:%d:%d", sheet, row, col)
}

func (f *fakeCellStore) CellValue(_ context.Context, sheet, row, col int) (string, error) {
	return f.cells[key(sheet, row, col)], nil
}

func (f *fakeCellStore) UpdateCell(_ context.Context, sheet, row, col int, value string) error {
	k := key(sheet, row, col)
	if err, ok := f.failWrites[k]; ok {
		return err
	}
	f.cells[k] = value
	f.writes = append(f.writes, k+"="+value)
	return nil
}

func approvedNegotiation(t *testing.T, give *model.CellRef) *Negotiation {
	t.Helper()
	n := Start("Dana")
	require.NoError(t, n.ChooseOwnShift(give))
	require.NoError(t, n.ChooseCounterparty("Avi"))
	require.NoError(t, n.ChooseCounterpartyShift(model.CellRef{SheetIndex: 0, Row: 5, Cols: []int{2, 3}}))
	return n
}

func swapPersons() (*model.Person, *model.Person) {
	return &model.Person{Name: "Dana"}, &model.Person{Name: "Avi"}
}

func TestExecute_WritesBothCells(t *testing.T) {
	store := &fakeCellStore{cells: map[string]string{
		key(0, 2, 3): "Dana", // requester's shift, col 2 0-based
		key(0, 5, 4): "Avi",  // counterparty's shift, col 3 0-based
	}}
	exec := NewExecutor(store, zap.NewNop())
	n := approvedNegotiation(t, &model.CellRef{SheetIndex: 0, Row: 2, Cols: []int{2, 3}})
	requester, counterparty := swapPersons()

	result, err := exec.Execute(context.Background(), n, requester, counterparty)
	require.NoError(t, err)

	assert.Equal(t, "Avi", store.cells[key(0, 2, 3)], "counterparty takes the relinquished cell")
	assert.Equal(t, "Dana", store.cells[key(0, 5, 4)], "requester takes the counterparty cell")
	require.NotNil(t, result.GaveCell)
	assert.Equal(t, []int{2}, result.GaveCell.Cols)
	assert.Equal(t, []int{3}, result.TookCell.Cols)
}

func TestExecute_JustTaking(t *testing.T) {
	store := &fakeCellStore{cells: map[string]string{
		key(0, 5, 3): "Avi",
	}}
	exec := NewExecutor(store, zap.NewNop())
	n := approvedNegotiation(t, nil)
	requester, counterparty := swapPersons()

	result, err := exec.Execute(context.Background(), n, requester, counterparty)
	require.NoError(t, err)

	assert.Nil(t, result.GaveCell)
	assert.Equal(t, "Dana", store.cells[key(0, 5, 3)])
	assert.Len(t, store.writes, 1)
}

func TestExecute_CounterpartyNameGone(t *testing.T) {
	// Someone edited the sheet: Avi is no longer in any referenced
	// cell. Nothing may be written.
	store := &fakeCellStore{cells: map[string]string{
		key(0, 2, 3): "Dana",
		key(0, 5, 3): "Somebody Else",
	}}
	exec := NewExecutor(store, zap.NewNop())
	n := approvedNegotiation(t, &model.CellRef{SheetIndex: 0, Row: 2, Cols: []int{2, 3}})
	requester, counterparty := swapPersons()

	_, err := exec.Execute(context.Background(), n, requester, counterparty)
	require.Error(t, err)
	var lookupErr *model.LookupError
	require.ErrorAs(t, err, &lookupErr)
	assert.Equal(t, "Avi", lookupErr.Name)
	assert.Empty(t, store.writes, "fail fast before any write")
}

func TestExecute_RequesterNameGone(t *testing.T) {
	store := &fakeCellStore{cells: map[string]string{
		key(0, 2, 3): "Somebody Else",
		key(0, 5, 3): "Avi",
	}}
	exec := NewExecutor(store, zap.NewNop())
	n := approvedNegotiation(t, &model.CellRef{SheetIndex: 0, Row: 2, Cols: []int{2, 3}})
	requester, counterparty := swapPersons()

	_, err := exec.Execute(context.Background(), n, requester, counterparty)
	require.Error(t, err)
	var lookupErr *model.LookupError
	require.ErrorAs(t, err, &lookupErr)
	assert.Equal(t, "Dana", lookupErr.Name)
	assert.Empty(t, store.writes)
}

// TestExecute_PartialFailureWindow documents the known correctness gap:
// the two writes are not atomic. When the second write fails the first
// has already landed and is not rolled back.
func TestExecute_PartialFailureWindow(t *testing.T) {
	store := &fakeCellStore{
		cells: map[string]string{
			key(0, 2, 3): "Dana",
			key(0, 5, 3): "Avi",
		},
		failWrites: map[string]error{
			key(0, 5, 3): errors.New("transport failure"),
		},
	}
	exec := NewExecutor(store, zap.NewNop())
	n := approvedNegotiation(t, &model.CellRef{SheetIndex: 0, Row: 2, Cols: []int{2, 3}})
	requester, counterparty := swapPersons()

	_, err := exec.Execute(context.Background(), n, requester, counterparty)
	require.Error(t, err)

	// The relinquished cell was already overwritten and stays that way.
	assert.Equal(t, "Avi", store.cells[key(0, 2, 3)])
	assert.Equal(t, "Avi", store.cells[key(0, 5, 3)], "second cell untouched")
}

func TestExecute_RequiresApprovalStage(t *testing.T) {
	store := &fakeCellStore{cells: map[string]string{}}
	exec := NewExecutor(store, zap.NewNop())
	n := Start("Dana")
	requester, counterparty := swapPersons()

	_, err := exec.Execute(context.Background(), n, requester, counterparty)
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
}
