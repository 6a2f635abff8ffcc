package reminder

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/omerharel/dutywatch/pkg/core/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	mu    sync.Mutex
	fired []string
}

func (r *recorder) remind(p *model.Person) {
	r.mu.Lock()
	r.fired = append(r.fired, p.Name)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fired)
}

// directSubmit runs the callback inline, standing in for the event loop.
func directSubmit(fn func()) { fn() }

func outPerson(name string, chatID int64) *model.Person {
	return &model.Person{
		Name:   name,
		ChatID: chatID,
		Status: model.Status{Name: model.StatusOut, UpdatedAt: time.Now()},
	}
}

func TestScheduler_FiresAndStops(t *testing.T) {
	rec := &recorder{}
	s := New(directSubmit, rec.remind, time.Second, time.Second, zap.NewNop())
	defer s.StopAll()

	s.Start(outPerson("Dana", 1001))
	require.True(t, s.Active(1001))

	require.Eventually(t, func() bool { return rec.count() >= 1 },
		3*time.Second, 50*time.Millisecond, "reminder should fire")

	s.Stop(1001)
	assert.False(t, s.Active(1001))
}

func TestScheduler_OneTimerPerPerson(t *testing.T) {
	rec := &recorder{}
	s := New(directSubmit, rec.remind, time.Hour, time.Hour, zap.NewNop())
	defer s.StopAll()

	p := outPerson("Dana", 1001)
	s.Start(p)
	s.Start(p) // replaces, does not stack
	assert.True(t, s.Active(1001))

	s.Stop(1001)
	assert.False(t, s.Active(1001), "a single stop clears the person")
}

func TestScheduler_SkipsHereAndUnbound(t *testing.T) {
	rec := &recorder{}
	s := New(directSubmit, rec.remind, time.Hour, time.Hour, zap.NewNop())
	defer s.StopAll()

	here := &model.Person{Name: "Avi", ChatID: 1002, Status: model.Status{Name: model.StatusHere}}
	s.Start(here)
	assert.False(t, s.Active(1002))

	unbound := outPerson("Noam", 0)
	s.Start(unbound)
	assert.False(t, s.Active(0))
}

func TestScheduler_StopAll(t *testing.T) {
	rec := &recorder{}
	s := New(directSubmit, rec.remind, time.Hour, time.Hour, zap.NewNop())

	s.Start(outPerson("Dana", 1))
	s.Start(outPerson("Avi", 2))
	s.StopAll()

	assert.False(t, s.Active(1))
	assert.False(t, s.Active(2))
}

func TestScheduler_AnchoredAtStatusChange(t *testing.T) {
	// Status changed 90 minutes ago with a 1h interval: the next fire
	// is 30 minutes out, not immediate and not a full hour away.
	rec := &recorder{}
	s := New(directSubmit, rec.remind, time.Hour, time.Hour, zap.NewNop())
	defer s.StopAll()

	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	p := outPerson("Dana", 1001)
	p.Status.UpdatedAt = now.Add(-90 * time.Minute)
	s.Start(p)
	require.True(t, s.Active(1001))

	// No fire yet: the goroutine is sleeping until the aligned instant.
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, rec.count())
	s.Stop(1001)
}
