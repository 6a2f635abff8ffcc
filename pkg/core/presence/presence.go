// Package presence derives who is effectively here, out, or short-out
// at a given moment and enforces the staffing floor and short-out cap
// before any status transition reaches the sheet.
package presence

import (
	"fmt"

	"github.com/omerharel/dutywatch/pkg/core/model"
)

// Limits are the staffing invariants.
type Limits struct {
	// MinIn is the staffing floor: the effective-here count must stay
	// strictly greater than this.
	MinIn int
	// MaxShortOut caps how many people may be short-out at once.
	MaxShortOut int
}

// FloorError rejects a transition that would breach the staffing floor.
type FloorError struct {
	MinIn         int
	EffectiveHere int
}

func (e *FloorError) Error() string {
	return fmt.Sprintf("staffing floor reached: %d effectively here, minimum is %d", e.EffectiveHere, e.MinIn)
}

// ShortOutCapError rejects a short-out when the cap is already full.
type ShortOutCapError struct {
	MaxShortOut int
}

func (e *ShortOutCapError) Error() string {
	return fmt.Sprintf("short-out allocation is full (%d)", e.MaxShortOut)
}

// Snapshot classifies the whole roster at one instant. Released people
// are an overlay: their stored status is untouched, they are simply
// subtracted from both the here and not-here sets.
type Snapshot struct {
	Total    int
	Here     []*model.Person // stored status here, not released
	Out      []*model.Person // stored status out (released or not)
	ShortOut []*model.Person // stored status short_out (released or not)
	NotHere  []*model.Person // out or short_out, not released
	Released []string        // person descriptions from the active window
}

// Classify buckets every person by stored status and applies the
// released overlay. released holds person descriptions as they appear
// in the releases sheet.
func Classify(persons []*model.Person, released []string) Snapshot {
	releasedSet := make(map[string]struct{}, len(released))
	for _, desc := range released {
		releasedSet[desc] = struct{}{}
	}

	snap := Snapshot{Total: len(persons), Released: released}
	for _, p := range persons {
		_, isReleased := releasedSet[p.Description()]
		switch p.Status.Name {
		case model.StatusHere:
			if !isReleased {
				snap.Here = append(snap.Here, p)
			}
		case model.StatusOut:
			snap.Out = append(snap.Out, p)
			if !isReleased {
				snap.NotHere = append(snap.NotHere, p)
			}
		case model.StatusShortOut:
			snap.ShortOut = append(snap.ShortOut, p)
			if !isReleased {
				snap.NotHere = append(snap.NotHere, p)
			}
		}
	}
	return snap
}

// CheckTransition enforces the staffing invariants for a requested
// transition, before the store is mutated. Transitions back to here are
// always allowed. The floor and cap checks are independent.
func (s Snapshot) CheckTransition(target model.StatusName, limits Limits) error {
	if target == model.StatusHere {
		return nil
	}

	if target == model.StatusShortOut && len(s.ShortOut) >= limits.MaxShortOut {
		return &ShortOutCapError{MaxShortOut: limits.MaxShortOut}
	}

	if len(s.Here) <= limits.MinIn {
		return &FloorError{MinIn: limits.MinIn, EffectiveHere: len(s.Here)}
	}
	return nil
}

// LongOutAllocation is how many people may be long-out at once. It is a
// soft guardrail used to hide the option in the UI, not a hard check at
// mutation time.
func (s Snapshot) LongOutAllocation(limits Limits) int {
	return s.Total - len(s.Released) - limits.MaxShortOut - limits.MinIn
}

// CanOfferLongOut reports whether the long-out option should still be
// offered.
func (s Snapshot) CanOfferLongOut(limits Limits) bool {
	return len(s.Out) < s.LongOutAllocation(limits)
}

// CanOfferShortOut reports whether the short-out option should still be
// offered.
func (s Snapshot) CanOfferShortOut(limits Limits) bool {
	return len(s.ShortOut) < limits.MaxShortOut
}

// ShouldNotifyCommanders samples status changes so commanders get a
// summary every fifth person out of the area instead of on every
// change. It is evaluated on the snapshot taken after the transition
// is applied, so the person who just left is counted in NotHere.
func (s Snapshot) ShouldNotifyCommanders() bool {
	return (len(s.NotHere)+1)%5 == 0
}
