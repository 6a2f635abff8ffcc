// Package roster holds the authoritative in-memory snapshot of people
// and teams, loaded from the persons and teams sheets. The snapshot is
// replace-all refreshable so edits made directly in the spreadsheet are
// picked up; status and chat id changes are written through to the
// sheet immediately.
package roster

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/omerharel/dutywatch/pkg/core/model"
)

// Fixed column positions in the persons sheet (0-based).
const (
	nameCol       = 0
	phoneCol      = 1
	emailCol      = 4
	statusCol     = 5
	statusTimeCol = 6
	chatIDCol     = 7
)

// SheetReader reads a whole sheet as a string matrix.
type SheetReader interface {
	GetAllRows(ctx context.Context, sheet string) ([][]string, error)
}

// CellWriter writes a single cell. Row and column are 1-based, the way
// the sheet API addresses cells.
type CellWriter interface {
	SetCell(ctx context.Context, sheet string, row, col int, value string) error
}

// Store combines what the repository needs from the tabular store.
type Store interface {
	SheetReader
	CellWriter
}

// Repository is the single authoritative roster snapshot.
type Repository struct {
	store      Store
	log        *zap.Logger
	personsTab string
	teamsTab   string
	now        func() time.Time

	mu      sync.RWMutex
	persons map[string]*model.Person
	byChat  map[int64]*model.Person
	teams   []model.Team
}

// New creates an empty repository; call Reload before first use.
func New(store Store, log *zap.Logger, personsTab, teamsTab string) *Repository {
	return &Repository{
		store:      store,
		log:        log,
		personsTab: personsTab,
		teamsTab:   teamsTab,
		now:        time.Now,
		persons:    make(map[string]*model.Person),
		byChat:     make(map[int64]*model.Person),
	}
}

// Reload replaces the whole snapshot from the teams and persons sheets.
// People without a team are skipped with a warning; people dropped from
// the sheet disappear from the snapshot.
func (r *Repository) Reload(ctx context.Context) error {
	teams, err := r.loadTeams(ctx)
	if err != nil {
		return fmt.Errorf("failed to load teams: %w", err)
	}

	persons, byChat, err := r.loadPersons(ctx, teams)
	if err != nil {
		return fmt.Errorf("failed to load persons: %w", err)
	}

	r.mu.Lock()
	for name := range r.persons {
		if _, ok := persons[name]; !ok {
			r.log.Warn("person removed from roster", zap.String("name", name))
		}
	}
	r.teams = teams
	r.persons = persons
	r.byChat = byChat
	r.mu.Unlock()

	r.log.Info("roster reloaded",
		zap.Int("persons", len(persons)),
		zap.Int("teams", len(teams)))
	return nil
}

// Get returns the person with the given name.
func (r *Repository) Get(name string) (*model.Person, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.persons[name]
	return p, ok
}

// ByChatID returns the person bound to the given chat identifier.
func (r *Repository) ByChatID(chatID int64) (*model.Person, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byChat[chatID]
	return p, ok
}

// All returns every person, sorted by name for stable iteration.
func (r *Repository) All() []*model.Person {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]*model.Person, 0, len(r.persons))
	for _, p := range r.persons {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all
}

// Teams returns the teams in sheet column order.
func (r *Repository) Teams() []model.Team {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.teams
}

// Len returns the roster size.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.persons)
}

// SetStatus writes the new status through to the persons sheet and then
// updates the in-memory person. The sheet is the system of record: a
// failed write leaves the snapshot untouched.
func (r *Repository) SetStatus(ctx context.Context, person *model.Person, status model.StatusName) error {
	updated := model.Status{Name: status, UpdatedAt: r.now()}
	if err := r.store.SetCell(ctx, r.personsTab, person.Row, statusCol+1, string(updated.Name)); err != nil {
		return fmt.Errorf("failed to write status for %s: %w", person.Name, err)
	}
	if err := r.store.SetCell(ctx, r.personsTab, person.Row, statusTimeCol+1, updated.UpdatedAt.Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to write status time for %s: %w", person.Name, err)
	}

	r.mu.Lock()
	person.Status = updated
	r.mu.Unlock()

	r.log.Info("status changed",
		zap.String("name", person.Name),
		zap.String("status", string(status)))
	return nil
}

// SetChatID binds a chat identifier to a person, write-through. A chat
// id is assigned at most once per person and must be unique.
func (r *Repository) SetChatID(ctx context.Context, person *model.Person, chatID int64) error {
	r.mu.RLock()
	if existing, ok := r.byChat[chatID]; ok && existing.Name != person.Name {
		r.mu.RUnlock()
		return fmt.Errorf("chat id %d already bound to %s", chatID, existing.Name)
	}
	r.mu.RUnlock()

	if err := r.store.SetCell(ctx, r.personsTab, person.Row, chatIDCol+1, fmt.Sprintf("%d", chatID)); err != nil {
		return fmt.Errorf("failed to write chat id for %s: %w", person.Name, err)
	}

	r.mu.Lock()
	person.ChatID = chatID
	r.byChat[chatID] = person
	r.mu.Unlock()

	r.log.Info("chat id bound", zap.String("name", person.Name), zap.Int64("chat_id", chatID))
	return nil
}

// loadTeams reads the teams sheet: one column per team, the header row
// holds team names, member names fill the rows beneath.
func (r *Repository) loadTeams(ctx context.Context) ([]model.Team, error) {
	rows, err := r.store.GetAllRows(ctx, r.teamsTab)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("teams sheet %q is empty", r.teamsTab)
	}

	header := rows[0]
	teams := make([]model.Team, 0, len(header))
	for col, teamName := range header {
		if teamName == "" {
			continue
		}
		team := model.Team{Name: teamName}
		for _, row := range rows[1:] {
			if col < len(row) && row[col] != "" {
				team.Members = append(team.Members, row[col])
			}
		}
		teams = append(teams, team)
	}
	return teams, nil
}

func (r *Repository) loadPersons(ctx context.Context, teams []model.Team) (map[string]*model.Person, map[int64]*model.Person, error) {
	rows, err := r.store.GetAllRows(ctx, r.personsTab)
	if err != nil {
		return nil, nil, err
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("persons sheet %q is empty", r.personsTab)
	}

	teamOf := make(map[string]string)
	for _, team := range teams {
		for _, member := range team.Members {
			teamOf[member] = team.Name
		}
	}

	persons := make(map[string]*model.Person, len(rows)-1)
	byChat := make(map[int64]*model.Person)
	for i, row := range rows[1:] {
		name := cell(row, nameCol)
		if name == "" {
			continue
		}

		team, ok := teamOf[name]
		if !ok {
			r.log.Warn("person has no team, skipping", zap.String("name", name))
			continue
		}

		status := model.Status{
			Name:      model.ParseStatusName(cell(row, statusCol)),
			UpdatedAt: r.parseStatusTime(cell(row, statusTimeCol)),
		}

		person := &model.Person{
			Row:    i + 2, // 1-based sheet row, after the header
			Name:   name,
			Phone:  cell(row, phoneCol),
			Email:  cell(row, emailCol),
			Team:   team,
			Status: status,
		}

		if raw := cell(row, chatIDCol); raw != "" {
			var chatID int64
			if _, err := fmt.Sscanf(raw, "%d", &chatID); err != nil {
				r.log.Warn("malformed chat id", zap.String("name", name), zap.String("value", raw))
			} else {
				person.ChatID = chatID
				byChat[chatID] = person
			}
		}

		persons[name] = person
	}
	return persons, byChat, nil
}

func (r *Repository) parseStatusTime(raw string) time.Time {
	if raw == "" {
		return r.now()
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		r.log.Warn("malformed status time", zap.String("value", raw))
		return r.now()
	}
	return t
}

func cell(row []string, col int) string {
	if col >= len(row) {
		return ""
	}
	return row[col]
}
