// Package services orchestrates the core packages into the operations
// the bot exposes: status changes, presence reports, shift listings and
// swap negotiation. Services hold no roster state of their own; the
// repository and the sheets remain the system of record.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/omerharel/dutywatch/pkg/core/model"
	"github.com/omerharel/dutywatch/pkg/core/presence"
	"github.com/omerharel/dutywatch/pkg/core/tasks"
	"github.com/omerharel/dutywatch/pkg/db"
	"github.com/omerharel/dutywatch/pkg/i18n"
)

// Roster is the slice of the repository the services need. Reload
// replaces the whole snapshot from the sheet so edits made directly in
// the spreadsheet are honored before any presence computation.
type Roster interface {
	Reload(ctx context.Context) error
	Get(name string) (*model.Person, bool)
	All() []*model.Person
	Teams() []model.Team
	SetStatus(ctx context.Context, person *model.Person, status model.StatusName) error
}

// TaskFinder resolves duty tasks from the task sheets.
type TaskFinder interface {
	Resolve(ctx context.Context, q tasks.Query) ([]*model.Task, error)
}

// ReleaseLister reads the currently active release window.
type ReleaseLister interface {
	Active(ctx context.Context) ([]string, error)
}

// ReminderControl starts and stops per-person reminder timers.
type ReminderControl interface {
	Start(person *model.Person)
	Stop(chatID int64)
}

// InTaskError rejects a status change while the person is inside an
// active duty task.
type InTaskError struct {
	Task *model.Task
}

func (e *InTaskError) Error() string {
	return fmt.Sprintf("currently in task %s, cannot go out", e.Task.Describe(true))
}

// StatusParams collects the status service dependencies.
type StatusParams struct {
	Roster      Roster
	Tasks       TaskFinder
	Releases    ReleaseLister
	Reminders   ReminderControl
	Sink        Sink
	Mailer      Mailer
	Audit       db.AuditStore
	Translator  *i18n.Translator
	Limits      presence.Limits
	Commanders  []string
	MainChannel string
	OpsChannel  string
	Log         *zap.Logger
}

// StatusService handles presence transitions end to end: guards,
// write-through, reminders, audit and notifications.
type StatusService struct {
	roster      Roster
	tasks       TaskFinder
	releases    ReleaseLister
	reminders   ReminderControl
	sink        Sink
	mailer      Mailer
	audit       db.AuditStore
	tr          *i18n.Translator
	limits      presence.Limits
	commanders  []string
	mainChannel string
	opsChannel  string
	log         *zap.Logger
	now         func() time.Time
}

// NewStatusService wires a StatusService. Audit and Mailer may be nil;
// a nil Translator falls back to English.
func NewStatusService(p StatusParams) *StatusService {
	tr := p.Translator
	if tr == nil {
		tr = i18n.Nop()
	}
	return &StatusService{
		roster:      p.Roster,
		tasks:       p.Tasks,
		releases:    p.Releases,
		reminders:   p.Reminders,
		sink:        p.Sink,
		mailer:      p.Mailer,
		audit:       p.Audit,
		tr:          tr,
		limits:      p.Limits,
		commanders:  p.Commanders,
		mainChannel: p.MainChannel,
		opsChannel:  p.OpsChannel,
		log:         p.Log,
		now:         time.Now,
	}
}

// ChangeStatus applies one presence transition for a person. The
// returned string is the message to show the requester. Guard
// rejections come back as typed errors (InTaskError, FloorError,
// ShortOutCapError) so callers can render them distinctly.
func (s *StatusService) ChangeStatus(ctx context.Context, person *model.Person, target model.StatusName) (string, error) {
	if !target.IsValid() {
		return "", fmt.Errorf("unknown status %q", target)
	}

	// Refresh the snapshot first: the sheet may have been edited
	// directly, and the caller's pointer may predate a reload.
	if err := s.roster.Reload(ctx); err != nil {
		return "", fmt.Errorf("failed to refresh roster: %w", err)
	}
	fresh, ok := s.roster.Get(person.Name)
	if !ok {
		return "", fmt.Errorf("%s is no longer on the roster", person.Name)
	}
	person = fresh

	if person.Status.Name == target {
		return s.tr.Get("already_in_status",
			fmt.Sprintf("You are already %s", s.statusDisplay(target))), nil
	}

	// Leaving while inside an active task is refused outright.
	if target != model.StatusHere {
		active, err := s.tasks.Resolve(ctx, tasks.Query{Now: true, Person: person})
		if err != nil {
			return "", fmt.Errorf("failed to check active tasks: %w", err)
		}
		if len(active) > 0 {
			return "", &InTaskError{Task: active[0]}
		}
	}

	released, err := s.releases.Active(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read release window: %w", err)
	}

	snap := presence.Classify(s.roster.All(), released)
	if err := snap.CheckTransition(target, s.limits); err != nil {
		return "", err
	}

	previous := person.Status.Name
	if err := s.roster.SetStatus(ctx, person, target); err != nil {
		return "", err
	}

	s.recordAudit(ctx, person.Name, previous, target)
	s.adjustReminders(person, target)
	s.announce(ctx, person, target)

	// The digest sampling counts the roster as it stands after the
	// transition, trigger included.
	if target != model.StatusHere {
		after := presence.Classify(s.roster.All(), released)
		if after.ShouldNotifyCommanders() {
			s.notifyCommanders(ctx, after, person)
		}
	}

	return s.tr.Get("status_changed",
		fmt.Sprintf("Your status is now %s", s.statusDisplay(target))), nil
}

// InitReminders starts timers for everyone already out at startup. Fire
// instants stay anchored at each person's status change time, so a
// restart does not fire a burst of reminders.
func (s *StatusService) InitReminders() int {
	started := 0
	for _, p := range s.roster.All() {
		if p.Status.Name == model.StatusOut || p.Status.Name == model.StatusShortOut {
			s.reminders.Start(p)
			started++
		}
	}
	s.log.Info("reminders bootstrapped", zap.Int("count", started))
	return started
}

// Remind is the reminder timer callback: nudge the person to confirm
// they are still out.
func (s *StatusService) Remind(person *model.Person) {
	msg := s.tr.Get("reminder",
		fmt.Sprintf("%s, are you back? You are still marked %s",
			person.Name, s.statusDisplay(person.Status.Name)))
	if err := s.sink.Publish(context.Background(), s.mainChannel, msg); err != nil {
		s.log.Warn("failed to publish reminder",
			zap.String("name", person.Name),
			zap.Error(err))
	}
}

func (s *StatusService) adjustReminders(person *model.Person, target model.StatusName) {
	if target == model.StatusHere {
		s.reminders.Stop(person.ChatID)
		return
	}
	s.reminders.Start(person)
}

func (s *StatusService) recordAudit(ctx context.Context, name string, from, to model.StatusName) {
	if s.audit == nil {
		return
	}
	change := &db.StatusChange{
		ID:        uuid.New().String(),
		Person:    name,
		From:      string(from),
		To:        string(to),
		ChangedAt: s.now(),
	}
	if err := s.audit.InsertStatusChange(ctx, change); err != nil {
		s.log.Warn("failed to record status change", zap.String("name", name), zap.Error(err))
	}
}

func (s *StatusService) announce(ctx context.Context, person *model.Person, target model.StatusName) {
	msg := fmt.Sprintf("%s is now %s", person.Description(), s.statusDisplay(target))
	if err := s.sink.Publish(ctx, s.mainChannel, msg); err != nil {
		s.log.Warn("failed to announce status change", zap.Error(err))
	}
}

// notifyCommanders emails a not-here digest to every commander with an
// email address on the roster. Failures are logged per recipient.
func (s *StatusService) notifyCommanders(ctx context.Context, snap presence.Snapshot, trigger *model.Person) {
	if s.mailer == nil || len(s.commanders) == 0 {
		return
	}

	// snap is post-transition, so the trigger is already in NotHere.
	body := fmt.Sprintf("%s just went out.\n\nNot here now:\n", trigger.Description())
	for _, p := range snap.NotHere {
		body += fmt.Sprintf("- %s (%s)\n", p.Description(), s.statusDisplay(p.Status.Name))
	}

	subject := s.tr.Get("commanders_digest_subject", "Duty roster: people out update")
	for _, name := range s.commanders {
		commander, ok := s.roster.Get(name)
		if !ok || commander.Email == "" {
			s.log.Warn("commander has no email", zap.String("name", name))
			continue
		}
		if err := s.mailer.SendEmail(commander.Email, subject, body); err != nil {
			s.log.Warn("failed to email commander",
				zap.String("name", name),
				zap.Error(err))
		}
	}
}

func (s *StatusService) statusDisplay(name model.StatusName) string {
	switch name {
	case model.StatusHere:
		return s.tr.Get("status_here", "here")
	case model.StatusOut:
		return s.tr.Get("status_out", "out")
	case model.StatusShortOut:
		return s.tr.Get("status_short_out", "out for a bit")
	default:
		return string(name)
	}
}
