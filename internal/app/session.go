package app

import (
	"context"

	"github.com/charmbracelet/log"

	"tracing-quiz-service/internal/domain"
)

// Session runs one quiz screen visit on a single event loop. Learner input,
// resume signals and timer callbacks are queued and applied one at a time.
type Session struct {
	id   string
	ctrl *Controller
	log  *log.Logger

	events chan func(context.Context)
	done   chan struct{}
}

func newSession(id string, logger *log.Logger) *Session {
	return &Session{
		id:     id,
		log:    logger,
		events: make(chan func(context.Context), 16),
		done:   make(chan struct{}),
	}
}

func (s *Session) ID() string {
	return s.id
}

// Run starts the session and processes events until ctx is canceled.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)
	defer s.ctrl.Close()

	s.ctrl.Start(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-s.events:
			ev(ctx)
		}
	}
}

// Done is closed once Run has returned.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Answer queues the learner's choice for the current question.
func (s *Session) Answer(option string) bool {
	return s.post(func(ctx context.Context) {
		if _, err := s.ctrl.Answer(ctx, option); err != nil {
			s.report(err)
		}
	})
}

// Resume queues the signal that the learner returned from the tracing activity.
func (s *Session) Resume() bool {
	return s.post(func(ctx context.Context) {
		if !s.ctrl.Resume(ctx) {
			s.log.Debug("resume signal ignored", "phase", s.ctrl.Phase())
		}
	})
}

func (s *Session) Restart() bool {
	return s.post(func(ctx context.Context) {
		if err := s.ctrl.Restart(ctx); err != nil {
			s.report(err)
		}
	})
}

func (s *Session) Proceed() bool {
	return s.post(func(context.Context) {
		if err := s.ctrl.Proceed(); err != nil {
			s.report(err)
		}
	})
}

// Snapshot returns the controller state as seen from the event loop.
func (s *Session) Snapshot(ctx context.Context) (domain.SessionSnapshot, bool) {
	out := make(chan domain.SessionSnapshot, 1)
	if !s.post(func(context.Context) { out <- s.ctrl.Snapshot() }) {
		return domain.SessionSnapshot{}, false
	}
	select {
	case snap := <-out:
		return snap, true
	case <-s.done:
		return domain.SessionSnapshot{}, false
	case <-ctx.Done():
		return domain.SessionSnapshot{}, false
	}
}

// post queues ev; it reports false once the loop has stopped, even when the
// queue still has room.
func (s *Session) post(ev func(context.Context)) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *Session) schedule(ev func(context.Context)) {
	if !s.post(ev) {
		s.log.Debug("timer fired after session end")
	}
}

func (s *Session) report(err error) {
	s.log.Warn("session action rejected", "err", err)
	if IsUserFacing(err) {
		return
	}
	s.ctrl.Reject(err)
}
