package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/omerharel/dutywatch/pkg/core/model"
	"github.com/omerharel/dutywatch/pkg/core/swap"
)

type fakeCells struct {
	held      map[string]string   // ref encoding -> current holder
	replacers map[string][]string // ref encoding -> next row names
}

func (f *fakeCells) TaskAt(_ context.Context, ref model.CellRef, p *model.Person) (*model.Task, error) {
	if f.held[ref.Encode()] == p.Name {
		return &model.Task{
			Name:       "Guard",
			SheetIndex: ref.SheetIndex,
			Row:        ref.Row,
			Cols:       ref.Cols,
			Start:      time.Date(2024, 6, 16, 8, 0, 0, 0, time.UTC),
			End:        time.Date(2024, 6, 16, 12, 0, 0, 0, time.UTC),
			Members:    []*model.Person{p},
		}, nil
	}
	return nil, &model.LookupError{Name: p.Name, SheetIndex: ref.SheetIndex, Row: ref.Row, Cols: ref.Cols}
}

func (f *fakeCells) Replacers(_ context.Context, ref model.CellRef) ([]string, error) {
	return f.replacers[ref.Encode()], nil
}

type fakeExecutor struct {
	result *swap.Result
	err    error
	got    *swap.Negotiation
}

func (f *fakeExecutor) Execute(_ context.Context, n *swap.Negotiation, _, _ *model.Person) (*swap.Result, error) {
	f.got = n
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newSwapService(roster *fakeRoster, cells *fakeCells, exec *fakeExecutor) (*SwapService, *fakeSink, *fakeAudit) {
	sink := &fakeSink{}
	audit := &fakeAudit{}
	svc := NewSwapService(SwapParams{
		Roster:      roster,
		Cells:       cells,
		Executor:    exec,
		Sink:        sink,
		Audit:       audit,
		MainChannel: "main",
		OpsChannel:  "ops",
		Log:         zap.NewNop(),
	})
	return svc, sink, audit
}

func TestSwapFlow_FullExchange(t *testing.T) {
	dana := person("Dana", model.StatusHere, 1)
	omer := person("Omer", model.StatusHere, 2)
	roster := newFakeRoster(dana, omer)

	giveRef := model.CellRef{SheetIndex: 0, Row: 5, Cols: []int{2}}
	takeRef := model.CellRef{SheetIndex: 0, Row: 8, Cols: []int{2}}
	cells := &fakeCells{
		held: map[string]string{
			giveRef.Encode(): "Dana",
			takeRef.Encode(): "Omer",
		},
		replacers: map[string][]string{
			takeRef.Encode(): {"Noa"},
		},
	}
	exec := &fakeExecutor{result: &swap.Result{
		GaveCell: &giveRef,
		TookCell: takeRef,
	}}
	svc, sink, audit := newSwapService(roster, cells, exec)

	token := svc.Begin(dana)

	token, err := svc.OfferShift(context.Background(), token, &giveRef)
	require.NoError(t, err)

	token, err = svc.PickCounterparty(context.Background(), token, "Omer")
	require.NoError(t, err)

	token, summary, err := svc.PickCounterpartyShift(context.Background(), token, takeRef)
	require.NoError(t, err)
	assert.Contains(t, summary, "Dana asks to take your shift Guard")
	assert.Contains(t, summary, "in exchange for Guard")

	msg, err := svc.Approve(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "Swap completed", msg)

	require.NotNil(t, exec.got)
	assert.Equal(t, swap.StageApproval, exec.got.Stage)

	require.Len(t, audit.swaps, 1)
	assert.Equal(t, "Dana", audit.swaps[0].Requester)
	assert.Equal(t, "Omer", audit.swaps[0].Counterparty)
	assert.Equal(t, giveRef.Encode(), audit.swaps[0].GaveCell)
	assert.Equal(t, takeRef.Encode(), audit.swaps[0].TookCell)

	require.Len(t, sink.published, 2)
	assert.Contains(t, sink.published[0], "swapped shifts")
	assert.Contains(t, sink.published[1], "Noa")
}

func TestSwapFlow_JustTaking(t *testing.T) {
	dana := person("Dana", model.StatusHere, 1)
	omer := person("Omer", model.StatusHere, 2)
	roster := newFakeRoster(dana, omer)

	takeRef := model.CellRef{SheetIndex: 1, Row: 4, Cols: []int{3}}
	cells := &fakeCells{held: map[string]string{takeRef.Encode(): "Omer"}}
	exec := &fakeExecutor{result: &swap.Result{TookCell: takeRef}}
	svc, _, audit := newSwapService(roster, cells, exec)

	token := svc.Begin(dana)

	token, err := svc.OfferShift(context.Background(), token, nil)
	require.NoError(t, err)

	token, err = svc.PickCounterparty(context.Background(), token, "Omer")
	require.NoError(t, err)

	token, summary, err := svc.PickCounterpartyShift(context.Background(), token, takeRef)
	require.NoError(t, err)
	assert.NotContains(t, summary, "in exchange")

	_, err = svc.Approve(context.Background(), token)
	require.NoError(t, err)

	require.Len(t, audit.swaps, 1)
	assert.Empty(t, audit.swaps[0].GaveCell)
}

func TestOfferShift_NotHeld(t *testing.T) {
	dana := person("Dana", model.StatusHere, 1)
	roster := newFakeRoster(dana)
	cells := &fakeCells{held: map[string]string{}}
	svc, _, _ := newSwapService(roster, cells, &fakeExecutor{})

	token := svc.Begin(dana)
	ref := model.CellRef{SheetIndex: 0, Row: 5, Cols: []int{2}}

	_, err := svc.OfferShift(context.Background(), token, &ref)
	assert.Error(t, err)
}

func TestPickCounterparty_Validation(t *testing.T) {
	dana := person("Dana", model.StatusHere, 1)
	roster := newFakeRoster(dana)
	svc, _, _ := newSwapService(roster, &fakeCells{}, &fakeExecutor{})

	token := svc.Begin(dana)
	token, err := svc.OfferShift(context.Background(), token, nil)
	require.NoError(t, err)

	_, err = svc.PickCounterparty(context.Background(), token, "Ghost")
	assert.Error(t, err)

	_, err = svc.PickCounterparty(context.Background(), token, "Dana")
	assert.Error(t, err)
}

func TestApprove_ExecutorFailureGoesToOps(t *testing.T) {
	dana := person("Dana", model.StatusHere, 1)
	omer := person("Omer", model.StatusHere, 2)
	roster := newFakeRoster(dana, omer)

	takeRef := model.CellRef{SheetIndex: 0, Row: 4, Cols: []int{2}}
	cells := &fakeCells{held: map[string]string{takeRef.Encode(): "Omer"}}
	exec := &fakeExecutor{err: assert.AnError}
	svc, sink, audit := newSwapService(roster, cells, exec)

	token := svc.Begin(dana)
	token, err := svc.OfferShift(context.Background(), token, nil)
	require.NoError(t, err)
	token, err = svc.PickCounterparty(context.Background(), token, "Omer")
	require.NoError(t, err)
	token, _, err = svc.PickCounterpartyShift(context.Background(), token, takeRef)
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), token)
	assert.Error(t, err)

	require.Len(t, sink.published, 1)
	assert.Contains(t, sink.published[0], "ops: swap")
	assert.Empty(t, audit.swaps)
}

func TestApprove_MalformedToken(t *testing.T) {
	svc, _, _ := newSwapService(newFakeRoster(), &fakeCells{}, &fakeExecutor{})
	_, err := svc.Approve(context.Background(), "not-a-token")
	assert.Error(t, err)
}
