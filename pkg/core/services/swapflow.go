package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/omerharel/dutywatch/pkg/core/model"
	"github.com/omerharel/dutywatch/pkg/core/swap"
	"github.com/omerharel/dutywatch/pkg/db"
	"github.com/omerharel/dutywatch/pkg/i18n"
)

// CellTasks reconstructs tasks from cell references and looks up the
// next row's occupants.
type CellTasks interface {
	TaskAt(ctx context.Context, ref model.CellRef, person *model.Person) (*model.Task, error)
	Replacers(ctx context.Context, ref model.CellRef) ([]string, error)
}

// SwapExecutor applies an approved negotiation to the sheet.
type SwapExecutor interface {
	Execute(ctx context.Context, n *swap.Negotiation, requester, counterparty *model.Person) (*swap.Result, error)
}

// SwapParams collects the swap service dependencies.
type SwapParams struct {
	Roster      Roster
	Cells       CellTasks
	Executor    SwapExecutor
	Sink        Sink
	Audit       db.AuditStore
	Translator  *i18n.Translator
	MainChannel string
	OpsChannel  string
	Log         *zap.Logger
}

// SwapService drives a shift-swap negotiation step by step. Each step
// takes the token from the previous one, validates the sheet still
// matches, and returns the next token; no negotiation state is kept in
// the process.
type SwapService struct {
	roster      Roster
	cells       CellTasks
	executor    SwapExecutor
	sink        Sink
	audit       db.AuditStore
	tr          *i18n.Translator
	mainChannel string
	opsChannel  string
	log         *zap.Logger
	now         func() time.Time
}

// NewSwapService wires a SwapService. Audit may be nil.
func NewSwapService(p SwapParams) *SwapService {
	tr := p.Translator
	if tr == nil {
		tr = i18n.Nop()
	}
	return &SwapService{
		roster:      p.Roster,
		cells:       p.Cells,
		executor:    p.Executor,
		sink:        p.Sink,
		audit:       p.Audit,
		tr:          tr,
		mainChannel: p.MainChannel,
		opsChannel:  p.OpsChannel,
		log:         p.Log,
		now:         time.Now,
	}
}

// Begin opens a negotiation for the requester and returns its token.
func (s *SwapService) Begin(requester *model.Person) string {
	n := swap.Start(requester.Name)
	s.log.Info("swap negotiation started",
		zap.String("id", n.ID),
		zap.String("requester", requester.Name))
	return n.Token()
}

// OfferShift records which of the requester's shifts is being given
// away. A nil ref means the requester only takes a shift. The cell is
// verified against the sheet before it goes into the token.
func (s *SwapService) OfferShift(ctx context.Context, token string, ref *model.CellRef) (string, error) {
	n, err := swap.ParseToken(token)
	if err != nil {
		return "", err
	}

	if ref != nil {
		requester, ok := s.roster.Get(n.Requester)
		if !ok {
			return "", fmt.Errorf("requester %s not on roster", n.Requester)
		}
		if _, err := s.cells.TaskAt(ctx, *ref, requester); err != nil {
			return "", fmt.Errorf("offered shift no longer held: %w", err)
		}
	}

	if err := n.ChooseOwnShift(ref); err != nil {
		return "", err
	}
	return n.Token(), nil
}

// PickCounterparty records who the requester wants to swap with.
func (s *SwapService) PickCounterparty(ctx context.Context, token, name string) (string, error) {
	n, err := swap.ParseToken(token)
	if err != nil {
		return "", err
	}

	if _, ok := s.roster.Get(name); !ok {
		return "", fmt.Errorf("counterparty %s not on roster", name)
	}
	if name == n.Requester {
		return "", fmt.Errorf("cannot swap with yourself")
	}

	if err := n.ChooseCounterparty(name); err != nil {
		return "", err
	}
	return n.Token(), nil
}

// PickCounterpartyShift records the shift being taken and moves the
// negotiation to the approval stage. It returns the next token plus a
// summary the counterparty approves against.
func (s *SwapService) PickCounterpartyShift(ctx context.Context, token string, ref model.CellRef) (string, string, error) {
	n, err := swap.ParseToken(token)
	if err != nil {
		return "", "", err
	}

	counterparty, ok := s.roster.Get(n.Counterparty)
	if !ok {
		return "", "", fmt.Errorf("counterparty %s not on roster", n.Counterparty)
	}

	task, err := s.cells.TaskAt(ctx, ref, counterparty)
	if err != nil {
		return "", "", fmt.Errorf("target shift not held by %s: %w", n.Counterparty, err)
	}

	if err := n.ChooseCounterpartyShift(ref); err != nil {
		return "", "", err
	}

	summary := fmt.Sprintf("%s asks to take your shift %s", n.Requester, task.Describe(true))
	if n.Give != nil {
		requester, ok := s.roster.Get(n.Requester)
		if ok {
			if given, err := s.cells.TaskAt(ctx, *n.Give, requester); err == nil {
				summary += fmt.Sprintf(" in exchange for %s", given.Describe(true))
			}
		}
	}

	return n.Token(), summary, nil
}

// Approve executes the swap the token describes. The counterparty calls
// this; both cells are re-checked against the sheet inside the
// executor before anything is written.
func (s *SwapService) Approve(ctx context.Context, token string) (string, error) {
	n, err := swap.ParseToken(token)
	if err != nil {
		return "", err
	}

	requester, ok := s.roster.Get(n.Requester)
	if !ok {
		return "", fmt.Errorf("requester %s not on roster", n.Requester)
	}
	counterparty, ok := s.roster.Get(n.Counterparty)
	if !ok {
		return "", fmt.Errorf("counterparty %s not on roster", n.Counterparty)
	}

	result, err := s.executor.Execute(ctx, n, requester, counterparty)
	if err != nil {
		s.publish(ctx, s.opsChannel, fmt.Sprintf("swap %s failed: %v", n.ID, err))
		return "", err
	}

	s.recordAudit(ctx, n, result)
	s.publish(ctx, s.mainChannel,
		fmt.Sprintf("%s and %s swapped shifts", requester.Description(), counterparty.Description()))
	s.notifyReplacers(ctx, result)

	return s.tr.Get("swap_done", "Swap completed"), nil
}

// notifyReplacers tells whoever holds the following row that the person
// handing over to them changed.
func (s *SwapService) notifyReplacers(ctx context.Context, result *swap.Result) {
	refs := []*model.CellRef{result.GaveCell, &result.TookCell}
	seen := map[string]struct{}{}
	var names []string
	for _, ref := range refs {
		if ref == nil {
			continue
		}
		replacers, err := s.cells.Replacers(ctx, *ref)
		if err != nil {
			s.log.Warn("failed to look up replacers", zap.Error(err))
			continue
		}
		for _, name := range replacers {
			if _, dup := seen[name]; !dup {
				seen[name] = struct{}{}
				names = append(names, name)
			}
		}
	}
	if len(names) == 0 {
		return
	}
	s.publish(ctx, s.mainChannel,
		fmt.Sprintf("%s: the shift before yours changed hands, check the roster",
			strings.Join(names, ", ")))
}

func (s *SwapService) recordAudit(ctx context.Context, n *swap.Negotiation, result *swap.Result) {
	if s.audit == nil {
		return
	}
	rec := &db.ShiftSwap{
		ID:           uuid.New().String(),
		Requester:    n.Requester,
		Counterparty: n.Counterparty,
		TookCell:     result.TookCell.Encode(),
		ExecutedAt:   s.now(),
	}
	if result.GaveCell != nil {
		rec.GaveCell = result.GaveCell.Encode()
	}
	if err := s.audit.InsertShiftSwap(ctx, rec); err != nil {
		s.log.Warn("failed to record swap", zap.String("id", n.ID), zap.Error(err))
	}
}

func (s *SwapService) publish(ctx context.Context, channel, message string) {
	if err := s.sink.Publish(ctx, channel, message); err != nil {
		s.log.Warn("failed to publish message", zap.String("channel", channel), zap.Error(err))
	}
}
