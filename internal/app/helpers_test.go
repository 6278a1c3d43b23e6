package app_test

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"tracing-quiz-service/internal/app"
	"tracing-quiz-service/internal/domain"
	"tracing-quiz-service/internal/infra/memory"
)

var discard = log.New(io.Discard)

// fakeClock fires timers only when advanced.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) app.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	wasPending := !t.stopped && !t.fired
	t.stopped = true
	return wasPending
}

// Advance moves time forward and fires due timers in order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.at <= c.now {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at < due[j].at })
	for _, t := range due {
		t.f()
	}
}

// FireStopped delivers callbacks of timers that were stopped, modelling a
// cancellation that lost the race against the timer.
func (c *fakeClock) FireStopped() int {
	c.mu.Lock()
	var late []*fakeTimer
	for _, t := range c.timers {
		if t.stopped && !t.fired {
			t.fired = true
			late = append(late, t)
		}
	}
	c.mu.Unlock()
	for _, t := range late {
		t.f()
	}
	return len(late)
}

// recordingScreen captures everything the controller asks the screen to do.
type recordingScreen struct {
	mu          sync.Mutex
	snapshots   []domain.SessionSnapshot
	notices     []domain.Notice
	dismissed   []uint64
	handoffs    []domain.HandoffRequest
	navigations []domain.NavigationRequest
}

func (s *recordingScreen) Render(snap domain.SessionSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snap)
}

func (s *recordingScreen) Notify(n domain.Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, n)
}

func (s *recordingScreen) Dismiss(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dismissed = append(s.dismissed, id)
}

func (s *recordingScreen) StartHandoff(req domain.HandoffRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handoffs = append(s.handoffs, req)
}

func (s *recordingScreen) Navigate(req domain.NavigationRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navigations = append(s.navigations, req)
}

func (s *recordingScreen) noticeKinds() []domain.NoticeKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]domain.NoticeKind, 0, len(s.notices))
	for _, n := range s.notices {
		kinds = append(kinds, n.Kind)
	}
	return kinds
}

func (s *recordingScreen) last() domain.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshots[len(s.snapshots)-1]
}

// countingStore wraps a LocalStore, counting calls and optionally failing writes.
type countingStore struct {
	app.LocalStore
	mu        sync.Mutex
	gets      int
	sets      int
	failSets  bool
	failReads bool
}

func (s *countingStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	s.gets++
	fail := s.failReads
	s.mu.Unlock()
	if fail {
		return "", false, fmt.Errorf("%w: disk gone", domain.ErrStorageUnavailable)
	}
	return s.LocalStore.Get(ctx, key)
}

func (s *countingStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	s.sets++
	fail := s.failSets
	s.mu.Unlock()
	if fail {
		return fmt.Errorf("%w: disk full", domain.ErrStorageUnavailable)
	}
	return s.LocalStore.Set(ctx, key, value)
}

func (s *countingStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets + s.sets
}

// fakeRemote is an in-process RemoteAccount.
type fakeRemote struct {
	mu     sync.Mutex
	record domain.UserRecord
	values map[string]string
	fail   bool
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{record: domain.UserRecord{ID: "42"}, values: make(map[string]string)}
}

func (r *fakeRemote) err() error {
	if r.fail {
		return fmt.Errorf("%w: status 503", domain.ErrRemoteRequestFailed)
	}
	return nil
}

func (r *fakeRemote) GetUserRecord(context.Context) (domain.UserRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.record, r.err()
}

func (r *fakeRemote) PatchUserRecord(_ context.Context, patch domain.UserPatch) (domain.UserRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.err(); err != nil {
		return domain.UserRecord{}, err
	}
	stars, err := patch.ApplyStars(r.record.StarCount)
	if err != nil {
		return r.record, err
	}
	r.record.StarCount = stars
	if patch.CurrentAvatarBorderID != nil {
		id := *patch.CurrentAvatarBorderID
		r.record.CurrentAvatarBorderID = &id
	}
	return r.record, nil
}

func (r *fakeRemote) GetValue(_ context.Context, key string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.err(); err != nil {
		return "", false, err
	}
	v, ok := r.values[key]
	return v, ok, nil
}

func (r *fakeRemote) SetValue(_ context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.err(); err != nil {
		return err
	}
	r.values[key] = value
	return nil
}

func guestStore(t *testing.T) *countingStore {
	t.Helper()
	store := &countingStore{LocalStore: memory.NewKVStore()}
	require.NoError(t, store.Set(context.Background(), "is_guest", "true"))
	return store
}

func guestLedger(t *testing.T, store app.LocalStore) *app.Ledger {
	t.Helper()
	ns := app.NewGateway(store, nil, discard).Open(context.Background(), "")
	require.Equal(t, domain.ModeGuest, ns.Mode())
	return app.NewLedger(ns, domain.DefaultCatalog(), app.DefaultFirstCompletionBonus, discard)
}

// countingQuestions builds n numeral questions whose correct answer is the 1-based position.
func countingQuestions(n int) []domain.Question {
	questions := make([]domain.Question, 0, n)
	for i := 1; i <= n; i++ {
		questions = append(questions, domain.Question{
			PromptPrimary:   fmt.Sprintf("How many stars? (%d)", i),
			PromptSecondary: "སྐར་མ་ག་དེམ་ཅིག་ཡོདཔ་སྨོ?",
			ImageRef:        "counting/" + strconv.Itoa(i),
			Options:         []string{strconv.Itoa(i), strconv.Itoa(i + 1), strconv.Itoa(i + 2), strconv.Itoa(i + 3)},
			CorrectAnswer:   strconv.Itoa(i),
		})
	}
	return questions
}

func alphabetQuestions(answers ...string) []domain.Question {
	questions := make([]domain.Question, 0, len(answers))
	for _, a := range answers {
		questions = append(questions, domain.Question{
			PromptPrimary: "Which letter does it start with?",
			Options:       []string{a, "ཀ", "ཁ", "ག"},
			CorrectAnswer: a,
		})
	}
	return questions
}

type controllerFixture struct {
	ctrl   *app.Controller
	screen *recordingScreen
	clock  *fakeClock
	ledger *app.Ledger
}

func newControllerFixture(t *testing.T, category domain.Category, profile domain.CategoryProfile, questions []domain.Question, ledger *app.Ledger) controllerFixture {
	t.Helper()
	screen := &recordingScreen{}
	clock := &fakeClock{}
	ctrl, err := app.NewController(app.ControllerConfig{
		SessionID: "test-session",
		Category:  category,
		Profile:   profile,
		Questions: questions,
		Ledger:    ledger,
		Screen:    screen,
		Clock:     clock,
		Logger:    discard,
	})
	require.NoError(t, err)
	return controllerFixture{ctrl: ctrl, screen: screen, clock: clock, ledger: ledger}
}
