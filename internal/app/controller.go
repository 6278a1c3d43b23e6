package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"tracing-quiz-service/internal/domain"
)

const (
	DefaultFallbackTimeout = 5 * time.Second
	DefaultNoticeDuration  = 2500 * time.Millisecond

	quizHomeScreen = "QuizHomeScreen"
)

// Screen is the presentation side of a quiz session. Calls are fire-and-forget.
type Screen interface {
	Render(snapshot domain.SessionSnapshot)
	Notify(notice domain.Notice)
	Dismiss(noticeID uint64)
	StartHandoff(req domain.HandoffRequest)
	Navigate(req domain.NavigationRequest)
}

// ControllerConfig wires a Controller. Schedule must run its argument on the
// goroutine that drives the controller; timers deliver their events through it.
type ControllerConfig struct {
	SessionID       string
	Category        domain.Category
	Profile         domain.CategoryProfile
	Questions       []domain.Question
	Targets         domain.TracingTargets
	Ledger          *Ledger
	Screen          Screen
	Clock           Clock
	Schedule        func(func(context.Context))
	FallbackTimeout time.Duration
	NoticeDuration  time.Duration
	Logger          *log.Logger
}

// Controller is the quiz progression state machine. It is not safe for
// concurrent use: every method must be called from the single goroutine that
// owns the session.
type Controller struct {
	cfg ControllerConfig
	log *log.Logger

	phase     domain.Phase
	index     int
	score     int
	prior     domain.CompletionRecord
	hasPrior  bool
	suspended *suspension
	result    *domain.CompletionResult

	lastSuspension uint64
	lastNotice     uint64
	timers         map[Timer]struct{}
}

// suspension is one hand-off to the tracing activity. consumed is the
// one-shot guard shared by the resume signal and the fallback timer.
type suspension struct {
	id       uint64
	request  domain.HandoffRequest
	isFinal  bool
	consumed bool
	timer    Timer
}

func NewController(cfg ControllerConfig) (*Controller, error) {
	if len(cfg.Questions) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrEmptyQuestionBank, cfg.Category)
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}
	if cfg.Schedule == nil {
		cfg.Schedule = func(f func(context.Context)) { f(context.Background()) }
	}
	if cfg.FallbackTimeout <= 0 {
		cfg.FallbackTimeout = DefaultFallbackTimeout
	}
	if cfg.NoticeDuration <= 0 {
		cfg.NoticeDuration = DefaultNoticeDuration
	}
	if cfg.Targets == nil {
		cfg.Targets = domain.DefaultTracingTargets()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard)
	}
	return &Controller{
		cfg:    cfg,
		log:    cfg.Logger.With("session", cfg.SessionID, "category", cfg.Category),
		phase:  domain.PhaseInitializing,
		timers: make(map[Timer]struct{}),
	}, nil
}

// Start runs the Initializing phase: it loads the existing completion record
// and moves to the first question. A failed read is logged and treated as absent.
func (c *Controller) Start(ctx context.Context) {
	c.phase = domain.PhaseInitializing
	c.index = 0
	c.score = 0
	c.result = nil

	rec, ok, err := c.cfg.Ledger.GetCompletion(ctx, c.cfg.Category)
	if err != nil {
		c.log.Error("previous completion unavailable", "err", err)
	}
	c.prior, c.hasPrior = rec, ok

	c.phase = domain.PhaseActive
	c.render()
}

// Answer handles the learner selecting option for the current question and
// reports whether it was correct.
func (c *Controller) Answer(ctx context.Context, option string) (bool, error) {
	if c.phase != domain.PhaseActive {
		return false, fmt.Errorf("%w: answer in %s", domain.ErrInvalidPhase, c.phase)
	}
	question := c.cfg.Questions[c.index]
	if !question.HasOption(option) {
		return false, fmt.Errorf("%w: %q", domain.ErrOptionNotFound, option)
	}

	if option != question.CorrectAnswer {
		c.notifyTransient(domain.NoticeWrongAnswer, "")
		return false, nil
	}

	isFinal := c.index == len(c.cfg.Questions)-1
	if c.cfg.Profile.Tracing == domain.TracingNone {
		c.score++
		if isFinal {
			c.complete(ctx)
			return true, nil
		}
		c.index++
		c.render()
		return true, nil
	}

	req, err := c.cfg.Targets.Request(c.cfg.Profile.Tracing, question.CorrectAnswer, isFinal)
	if err != nil {
		c.log.Error("tracing hand-off aborted", "answer", question.CorrectAnswer, "err", err)
		c.notifyTransient(domain.NoticeError, "Could not find tracing item")
		return true, err
	}
	c.score++
	c.suspend(req, isFinal)
	return true, nil
}

func (c *Controller) suspend(req domain.HandoffRequest, isFinal bool) {
	c.lastSuspension++
	s := &suspension{id: c.lastSuspension, request: req, isFinal: isFinal}
	id := s.id
	s.timer = c.after(c.cfg.FallbackTimeout, func(ctx context.Context) {
		if c.resumeFrom(ctx, id) {
			c.log.Debug("resumed by fallback timer", "suspension", id)
		}
	})
	c.suspended = s
	c.phase = domain.PhaseSuspended

	c.cfg.Screen.StartHandoff(req)
	c.render()
}

// Resume handles the environment signalling that the learner returned to the
// quiz screen. It reports whether it drove a transition; signals outside a
// suspension are ignored.
func (c *Controller) Resume(ctx context.Context) bool {
	if c.phase != domain.PhaseSuspended || c.suspended == nil {
		return false
	}
	return c.resumeFrom(ctx, c.suspended.id)
}

func (c *Controller) resumeFrom(ctx context.Context, id uint64) bool {
	s := c.suspended
	if s == nil || s.id != id || s.consumed {
		return false
	}
	s.consumed = true
	c.stop(s.timer)
	c.suspended = nil

	if s.isFinal {
		c.complete(ctx)
		return true
	}
	c.index++
	c.phase = domain.PhaseActive
	c.render()
	return true
}

// complete is the completion procedure. It runs at most once per play-through.
func (c *Controller) complete(ctx context.Context) {
	if c.result != nil {
		return
	}
	total := len(c.cfg.Questions)
	stars := Stars(c.score, total)
	result := &domain.CompletionResult{Stars: stars, Score: c.score, Total: total}

	if !c.hasPrior || stars > c.prior.Stars {
		outcome, err := c.cfg.Ledger.RecordCompletion(ctx, c.cfg.Category, stars)
		switch {
		case err != nil:
			c.log.Error("completion not persisted", "stars", stars, "err", err)
		default:
			result.Recorded = true
			result.BonusAwarded = outcome.FirstCompletion && outcome.BonusCredited > 0
			result.AchievementUnlocked = outcome.AchievementUnlocked
			c.prior = domain.CompletionRecord{Completed: true, Stars: max(c.prior.Stars, stars)}
			c.hasPrior = true
		}
	}

	c.result = result
	c.phase = domain.PhaseCompleted

	c.notify(domain.NoticeQuizCompleted, "")
	if result.BonusAwarded {
		c.notify(domain.NoticeRewardEarned, "")
	}
	if result.AchievementUnlocked != "" {
		c.notify(domain.NoticeAchievementUnlocked, result.AchievementUnlocked)
	}
	c.render()
}

// Restart re-enters Initializing with score and index reset. A pending
// suspension is consumed so neither of its triggers can fire afterwards.
func (c *Controller) Restart(ctx context.Context) error {
	if c.phase == domain.PhaseInitializing {
		return fmt.Errorf("%w: restart in %s", domain.ErrInvalidPhase, c.phase)
	}
	if s := c.suspended; s != nil {
		s.consumed = true
		c.stop(s.timer)
		c.suspended = nil
	}
	c.Start(ctx)
	return nil
}

// Proceed asks the environment to open the quiz home of the related category group.
func (c *Controller) Proceed() error {
	if c.phase != domain.PhaseCompleted {
		return fmt.Errorf("%w: proceed in %s", domain.ErrInvalidPhase, c.phase)
	}
	c.cfg.Screen.Navigate(domain.NavigationRequest{
		Screen:            quizHomeScreen,
		QuizCategory:      c.cfg.Profile.Related,
		FromCompletion:    true,
		CompletedCategory: string(c.cfg.Category),
	})
	return nil
}

// Close stops every pending timer.
func (c *Controller) Close() {
	for t := range c.timers {
		t.Stop()
	}
	c.timers = make(map[Timer]struct{})
	if c.suspended != nil {
		c.suspended.consumed = true
		c.suspended = nil
	}
}

func (c *Controller) Phase() domain.Phase {
	return c.phase
}

func (c *Controller) Snapshot() domain.SessionSnapshot {
	snap := domain.SessionSnapshot{
		SessionID:           c.cfg.SessionID,
		Category:            c.cfg.Category,
		Phase:               c.phase,
		QuestionIndex:       c.index,
		Total:               len(c.cfg.Questions),
		Score:               c.score,
		PreviouslyCompleted: c.hasPrior,
		Result:              c.result,
	}
	if c.phase == domain.PhaseActive || c.phase == domain.PhaseSuspended {
		q := c.cfg.Questions[c.index]
		snap.Question = &domain.QuestionView{
			PromptPrimary:   q.PromptPrimary,
			PromptSecondary: q.PromptSecondary,
			ImageRef:        q.ImageRef,
			Options:         append([]string(nil), q.Options...),
		}
	}
	if c.suspended != nil {
		req := c.suspended.request
		snap.Handoff = &req
	}
	return snap
}

// Reject surfaces a refused action as a transient error notice.
func (c *Controller) Reject(err error) {
	c.notifyTransient(domain.NoticeError, err.Error())
}

func (c *Controller) render() {
	c.cfg.Screen.Render(c.Snapshot())
}

func (c *Controller) notify(kind domain.NoticeKind, message string) {
	c.lastNotice++
	c.cfg.Screen.Notify(domain.Notice{ID: c.lastNotice, Kind: kind, Message: message})
}

// notifyTransient shows a notice that is dismissed after the notice duration.
func (c *Controller) notifyTransient(kind domain.NoticeKind, message string) {
	c.lastNotice++
	id := c.lastNotice
	c.cfg.Screen.Notify(domain.Notice{
		ID:        id,
		Kind:      kind,
		Message:   message,
		Transient: true,
		Duration:  c.cfg.NoticeDuration,
	})
	c.after(c.cfg.NoticeDuration, func(context.Context) {
		c.cfg.Screen.Dismiss(id)
	})
}

// after arranges for f to run on the session goroutine once d has elapsed.
func (c *Controller) after(d time.Duration, f func(context.Context)) Timer {
	var t Timer
	t = c.cfg.Clock.AfterFunc(d, func() {
		c.cfg.Schedule(func(ctx context.Context) {
			delete(c.timers, t)
			f(ctx)
		})
	})
	c.timers[t] = struct{}{}
	return t
}

func (c *Controller) stop(t Timer) {
	if t == nil {
		return
	}
	t.Stop()
	delete(c.timers, t)
}

// IsUserFacing reports whether err was already surfaced to the learner as a notice.
func IsUserFacing(err error) bool {
	return errors.Is(err, domain.ErrUnmappedAnswer)
}
