package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/omerharel/dutywatch/pkg/core/model"
	"github.com/omerharel/dutywatch/pkg/core/presence"
	"github.com/omerharel/dutywatch/pkg/core/tasks"
	"github.com/omerharel/dutywatch/pkg/i18n"
)

// ReportService renders the who-is-here presence report.
type ReportService struct {
	roster   Roster
	tasks    TaskFinder
	releases ReleaseLister
	tr       *i18n.Translator
	log      *zap.Logger
	now      func() time.Time
}

// NewReportService wires a ReportService.
func NewReportService(roster Roster, finder TaskFinder, releases ReleaseLister, tr *i18n.Translator, log *zap.Logger) *ReportService {
	if tr == nil {
		tr = i18n.Nop()
	}
	return &ReportService{
		roster:   roster,
		tasks:    finder,
		releases: releases,
		tr:       tr,
		log:      log,
		now:      time.Now,
	}
}

// WhoIsHere renders the full presence picture: the effective-here
// count, tasks running right now, the team hierarchy, the released
// window and everyone currently out with hours since they left.
func (r *ReportService) WhoIsHere(ctx context.Context) (string, error) {
	if err := r.roster.Reload(ctx); err != nil {
		return "", fmt.Errorf("failed to refresh roster: %w", err)
	}

	released, err := r.releases.Active(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read release window: %w", err)
	}

	snap := presence.Classify(r.roster.All(), released)

	active, err := r.tasks.Resolve(ctx, tasks.Query{Now: true})
	if err != nil {
		return "", fmt.Errorf("failed to resolve active tasks: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d/%d\n",
		r.tr.Get("here_count", "Here"), len(snap.Here), snap.Total)

	if len(active) > 0 {
		fmt.Fprintf(&b, "\n%s:\n", r.tr.Get("tasks_now", "On duty now"))
		for _, t := range active {
			fmt.Fprintf(&b, "%s: %s\n", t.Name, strings.Join(t.MemberDescriptions(), ", "))
		}
	}

	b.WriteString("\n" + r.tr.Get("teams", "Teams") + ":\n")
	r.writeTeams(&b)

	if len(snap.Released) > 0 {
		fmt.Fprintf(&b, "\n%s:\n", r.tr.Get("released", "Released"))
		for _, desc := range snap.Released {
			fmt.Fprintf(&b, "- %s\n", desc)
		}
	}

	if len(snap.NotHere) > 0 {
		fmt.Fprintf(&b, "\n%s:\n", r.tr.Get("not_here", "Not here"))
		for _, p := range snap.NotHere {
			fmt.Fprintf(&b, "- %s (%s, %s)\n",
				p.Description(),
				r.statusDisplay(p.Status.Name),
				r.hoursSince(p.Status.UpdatedAt))
		}
	}

	return b.String(), nil
}

// writeTeams renders the team hierarchy, first member as lead.
func (r *ReportService) writeTeams(b *strings.Builder) {
	for _, team := range r.roster.Teams() {
		fmt.Fprintf(b, "%s:\n", team.Name)
		for i, name := range team.Members {
			marker := "  "
			if i == 0 {
				marker = "* "
			}
			fmt.Fprintf(b, "%s%s\n", marker, name)
		}
	}
}

func (r *ReportService) hoursSince(t time.Time) string {
	if t.IsZero() {
		return r.tr.Get("since_unknown", "since unknown")
	}
	hours := r.now().Sub(t).Hours()
	return fmt.Sprintf("%.1fh", hours)
}

func (r *ReportService) statusDisplay(name model.StatusName) string {
	switch name {
	case model.StatusOut:
		return r.tr.Get("status_out", "out")
	case model.StatusShortOut:
		return r.tr.Get("status_short_out", "out for a bit")
	default:
		return string(name)
	}
}
