// Package reminder nags people who are out or short-out to update
// their status. Each person gets at most one recurring timer, keyed by
// their chat identifier; timers fire onto the bot's event loop, never
// concurrently with inbound handlers.
package reminder

import (
	"context"
	"sync"
	"time"

	"github.com/teambition/rrule-go"
	"go.uber.org/zap"

	"github.com/omerharel/dutywatch/pkg/core/model"
)

// RemindFunc runs on the event loop when a reminder fires.
type RemindFunc func(person *model.Person)

// Scheduler owns the per-person reminder timers.
type Scheduler struct {
	log        *zap.Logger
	submit     func(func())
	remind     RemindFunc
	shortEvery time.Duration
	longEvery  time.Duration
	now        func() time.Time

	mu      sync.Mutex
	cancels map[int64]context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a Scheduler. submit enqueues onto the event loop; remind
// is what a fired timer runs there.
func New(submit func(func()), remind RemindFunc, shortEvery, longEvery time.Duration, log *zap.Logger) *Scheduler {
	return &Scheduler{
		log:        log,
		submit:     submit,
		remind:     remind,
		shortEvery: shortEvery,
		longEvery:  longEvery,
		now:        time.Now,
		cancels:    make(map[int64]context.CancelFunc),
	}
}

// Start begins (or restarts) the recurring reminder for a person whose
// status is out or short-out. Fire instants are anchored at the status
// change time plus whole intervals, so a restart after downtime does
// not fire immediately. People with no chat binding are skipped.
func (s *Scheduler) Start(person *model.Person) {
	interval, ok := s.intervalFor(person.Status.Name)
	if !ok {
		return
	}
	if person.ChatID == 0 {
		s.log.Warn("no chat id, skipping reminder", zap.String("name", person.Name))
		return
	}

	anchor := person.Status.UpdatedAt
	if anchor.IsZero() {
		anchor = s.now()
	}
	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:     rrule.SECONDLY,
		Interval: int(interval.Seconds()),
		Dtstart:  anchor,
	})
	if err != nil {
		s.log.Error("failed to build reminder rule",
			zap.String("name", person.Name),
			zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if prior, exists := s.cancels[person.ChatID]; exists {
		prior()
	}
	s.cancels[person.ChatID] = cancel
	s.mu.Unlock()

	s.log.Info("reminder started",
		zap.String("name", person.Name),
		zap.String("status", string(person.Status.Name)),
		zap.Duration("every", interval))

	s.wg.Add(1)
	go s.run(ctx, rule, person)
}

// Stop cancels the reminder for the given chat identifier, typically
// because the person is back.
func (s *Scheduler) Stop(chatID int64) {
	s.mu.Lock()
	cancel, ok := s.cancels[chatID]
	if ok {
		delete(s.cancels, chatID)
	}
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

// StopAll cancels every timer and waits for their goroutines to exit.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	for chatID, cancel := range s.cancels {
		cancel()
		delete(s.cancels, chatID)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Active reports whether a timer is running for the chat identifier.
func (s *Scheduler) Active(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.cancels[chatID]
	return ok
}

func (s *Scheduler) run(ctx context.Context, rule *rrule.RRule, person *model.Person) {
	defer s.wg.Done()
	for {
		next := rule.After(s.now(), false)
		if next.IsZero() {
			return
		}

		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.submit(func() { s.remind(person) })
		}
	}
}

func (s *Scheduler) intervalFor(status model.StatusName) (time.Duration, bool) {
	switch status {
	case model.StatusOut:
		return s.longEvery, true
	case model.StatusShortOut:
		return s.shortEvery, true
	}
	return 0, false
}
