package app

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"tracing-quiz-service/internal/domain"
)

// QuestionBank serves the ordered, fixed question sequence of a category.
type QuestionBank interface {
	Questions(ctx context.Context, category domain.Category) ([]domain.Question, error)
}

// EngineOptions tunes the quiz engine; zero values fall back to defaults.
type EngineOptions struct {
	Catalog              domain.Catalog
	Targets              domain.TracingTargets
	Clock                Clock
	FallbackTimeout      time.Duration
	NoticeDuration       time.Duration
	FirstCompletionBonus int
}

// Engine opens quiz sessions and exposes the per-device ledger and shop.
type Engine struct {
	bank    QuestionBank
	gateway *Gateway
	opts    EngineOptions
	log     *log.Logger
}

func NewEngine(bank QuestionBank, gateway *Gateway, opts EngineOptions, logger *log.Logger) *Engine {
	if opts.Catalog == nil {
		opts.Catalog = domain.DefaultCatalog()
	}
	if opts.Targets == nil {
		opts.Targets = domain.DefaultTracingTargets()
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if opts.FallbackTimeout <= 0 {
		opts.FallbackTimeout = DefaultFallbackTimeout
	}
	if opts.NoticeDuration <= 0 {
		opts.NoticeDuration = DefaultNoticeDuration
	}
	if opts.FirstCompletionBonus <= 0 {
		opts.FirstCompletionBonus = DefaultFirstCompletionBonus
	}
	return &Engine{bank: bank, gateway: gateway, opts: opts, log: logger}
}

// OpenSession resolves the device's storage mode once and prepares a session
// for category. The caller drives it with Session.Run.
func (e *Engine) OpenSession(ctx context.Context, device string, category domain.Category, screen Screen) (*Session, error) {
	profile, err := e.opts.Catalog.Profile(category)
	if err != nil {
		return nil, err
	}
	questions, err := e.bank.Questions(ctx, category)
	if err != nil {
		return nil, err
	}

	ledger := e.Ledger(ctx, device)
	id := uuid.NewString()
	logger := e.log.With("device", device, "mode", ledger.Mode())
	session := newSession(id, logger.With("session", id))

	ctrl, err := NewController(ControllerConfig{
		SessionID:       id,
		Category:        category,
		Profile:         profile,
		Questions:       questions,
		Targets:         e.opts.Targets,
		Ledger:          ledger,
		Screen:          screen,
		Clock:           e.opts.Clock,
		Schedule:        session.schedule,
		FallbackTimeout: e.opts.FallbackTimeout,
		NoticeDuration:  e.opts.NoticeDuration,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}
	session.ctrl = ctrl
	return session, nil
}

// Ledger returns a ledger bound to the device's current mode.
func (e *Engine) Ledger(ctx context.Context, device string) *Ledger {
	ns := e.gateway.Open(ctx, device)
	return NewLedger(ns, e.opts.Catalog, e.opts.FirstCompletionBonus, e.log.With("device", device))
}

// Shop returns the avatar shop for the device.
func (e *Engine) Shop(ctx context.Context, device string) *Shop {
	return NewShop(e.Ledger(ctx, device))
}

// SetMode stores the onboarding decision for device.
func (e *Engine) SetMode(ctx context.Context, device string, mode domain.Mode, token string) error {
	return e.gateway.SetMode(ctx, device, mode, token)
}

// Profile gathers the device's persisted progress.
func (e *Engine) Profile(ctx context.Context, device string) (domain.Profile, error) {
	shop := e.Shop(ctx, device)
	ledger := shop.ledger

	rec, err := ledger.ns.GetUserRecord(ctx)
	if err != nil {
		return domain.Profile{}, err
	}
	achievements, err := ledger.Achievements(ctx)
	if err != nil {
		return domain.Profile{}, err
	}
	categoryStars, err := ledger.CategoryStars(ctx)
	if err != nil {
		return domain.Profile{}, err
	}
	borders, err := shop.Purchased(ctx)
	if err != nil {
		return domain.Profile{}, err
	}
	return domain.Profile{
		Mode:          ledger.Mode(),
		StarBalance:   rec.StarCount,
		Achievements:  achievements,
		CategoryStars: categoryStars,
		Borders:       borders,
		Equipped:      rec.CurrentAvatarBorderID,
	}, nil
}
