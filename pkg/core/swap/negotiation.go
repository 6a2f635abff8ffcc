// Package swap implements the two-party shift-swap negotiation: a
// strictly ordered four-stage handshake whose whole state rides in an
// opaque token between steps. Nothing is stored server-side, so a lost
// token simply drops the in-flight negotiation.
package swap

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/omerharel/dutywatch/pkg/core/model"
)

// Stage is the current step of the handshake.
type Stage string

const (
	// StageOwnShift: the requester picks a shift to give up, or none.
	StageOwnShift Stage = "own_shift"
	// StageCounterparty: the requester picks who to swap with.
	StageCounterparty Stage = "counterparty"
	// StageCounterpartyShift: the requester picks the desired shift.
	StageCounterpartyShift Stage = "counterparty_shift"
	// StageApproval: the counterparty approves or denies.
	StageApproval Stage = "approval"
)

func (s Stage) valid() bool {
	switch s {
	case StageOwnShift, StageCounterparty, StageCounterpartyShift, StageApproval:
		return true
	}
	return false
}

// StageError reports a step applied out of order, which means a stale
// or tampered token.
type StageError struct {
	Got  Stage
	Want Stage
}

func (e *StageError) Error() string {
	return fmt.Sprintf("negotiation is at stage %s, expected %s", e.Got, e.Want)
}

// Negotiation is the accumulated state of one swap handshake.
type Negotiation struct {
	ID        string
	Stage     Stage
	Requester string
	// Give is the shift the requester relinquishes; nil means the
	// requester is just taking an open slot.
	Give         *model.CellRef
	Counterparty string
	Take         *model.CellRef
}

// Start opens a negotiation for the given requester.
func Start(requester string) *Negotiation {
	return &Negotiation{
		ID:        uuid.New().String(),
		Stage:     StageOwnShift,
		Requester: requester,
	}
}

// ChooseOwnShift records the shift the requester gives up. A nil ref
// means "just taking", no shift relinquished.
func (n *Negotiation) ChooseOwnShift(ref *model.CellRef) error {
	if n.Stage != StageOwnShift {
		return &StageError{Got: n.Stage, Want: StageOwnShift}
	}
	n.Give = ref
	n.Stage = StageCounterparty
	return nil
}

// ChooseCounterparty records who the requester wants to swap with.
func (n *Negotiation) ChooseCounterparty(name string) error {
	if n.Stage != StageCounterparty {
		return &StageError{Got: n.Stage, Want: StageCounterparty}
	}
	if name == "" {
		return fmt.Errorf("counterparty name is empty")
	}
	n.Counterparty = name
	n.Stage = StageCounterpartyShift
	return nil
}

// ChooseCounterpartyShift records the desired shift and moves the
// negotiation to the approval stage.
func (n *Negotiation) ChooseCounterpartyShift(ref model.CellRef) error {
	if n.Stage != StageCounterpartyShift {
		return &StageError{Got: n.Stage, Want: StageCounterpartyShift}
	}
	n.Take = &ref
	n.Stage = StageApproval
	return nil
}

const tokenVersion = "v1"

// Token serializes the negotiation into an opaque string carried in
// the action payload between steps.
func (n *Negotiation) Token() string {
	fields := []string{
		tokenVersion,
		n.ID,
		string(n.Stage),
		encodeName(n.Requester),
		encodeRef(n.Give),
		encodeName(n.Counterparty),
		encodeRef(n.Take),
	}
	return strings.Join(fields, "|")
}

// ParseToken deserializes a token back into a Negotiation, validating
// version, stage, and field shape.
func ParseToken(token string) (*Negotiation, error) {
	fields := strings.Split(token, "|")
	if len(fields) != 7 {
		return nil, fmt.Errorf("malformed swap token: expected 7 fields, got %d", len(fields))
	}
	if fields[0] != tokenVersion {
		return nil, fmt.Errorf("unsupported swap token version %q", fields[0])
	}

	stage := Stage(fields[2])
	if !stage.valid() {
		return nil, fmt.Errorf("unknown swap stage %q", fields[2])
	}

	requester, err := decodeName(fields[3])
	if err != nil {
		return nil, fmt.Errorf("malformed requester: %w", err)
	}
	if requester == "" {
		return nil, fmt.Errorf("swap token has no requester")
	}

	counterparty, err := decodeName(fields[5])
	if err != nil {
		return nil, fmt.Errorf("malformed counterparty: %w", err)
	}

	give, err := decodeRef(fields[4])
	if err != nil {
		return nil, fmt.Errorf("malformed give ref: %w", err)
	}
	take, err := decodeRef(fields[6])
	if err != nil {
		return nil, fmt.Errorf("malformed take ref: %w", err)
	}

	return &Negotiation{
		ID:           fields[1],
		Stage:        stage,
		Requester:    requester,
		Give:         give,
		Counterparty: counterparty,
		Take:         take,
	}, nil
}

func encodeRef(ref *model.CellRef) string {
	if ref == nil {
		return "-"
	}
	return ref.Encode()
}

func decodeRef(s string) (*model.CellRef, error) {
	if s == "-" || s == "" {
		return nil, nil
	}
	ref, err := model.ParseCellRef(s)
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

// encodeName escapes a name so it cannot collide with the token's "|"
// separator or the "-" empty placeholder.
func encodeName(s string) string {
	if s == "" {
		return "-"
	}
	esc := url.QueryEscape(s)
	if esc == "-" {
		return "%2D"
	}
	return esc
}

func decodeName(s string) (string, error) {
	if s == "-" {
		return "", nil
	}
	return url.QueryUnescape(s)
}
