package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"

	"tracing-quiz-service/internal/domain"
)

const (
	keyCategoryStars = "category_stars"
	keyAchievements  = "achievements"

	// DefaultFirstCompletionBonus is credited the first time a category is completed.
	DefaultFirstCompletionBonus = 5
)

func completedKey(category domain.Category) string {
	return "quiz_" + string(category) + "_completed"
}

func starsKey(category domain.Category) string {
	return "quiz_" + string(category) + "_stars"
}

// Ledger reads and writes completion records, the star balance and the
// achievement set through one namespace. Every mutation re-reads the
// persisted value first, so retries never double-apply.
type Ledger struct {
	ns      *Namespace
	catalog domain.Catalog
	bonus   int
	log     *log.Logger
}

func NewLedger(ns *Namespace, catalog domain.Catalog, bonus int, logger *log.Logger) *Ledger {
	return &Ledger{ns: ns, catalog: catalog, bonus: bonus, log: logger}
}

func (l *Ledger) Mode() domain.Mode {
	return l.ns.Mode()
}

// GetCompletion returns the stored record; ok is false when the category was never completed.
func (l *Ledger) GetCompletion(ctx context.Context, category domain.Category) (domain.CompletionRecord, bool, error) {
	flag, ok, err := l.ns.Read(ctx, completedKey(category))
	if err != nil {
		return domain.CompletionRecord{}, false, fmt.Errorf("read completion of %s: %w", category, err)
	}
	if !ok || flag != "true" {
		return domain.CompletionRecord{}, false, nil
	}

	rec := domain.CompletionRecord{Completed: true}
	raw, ok, err := l.ns.Read(ctx, starsKey(category))
	if err != nil {
		return domain.CompletionRecord{}, false, fmt.Errorf("read stars of %s: %w", category, err)
	}
	if ok {
		if stars, err := strconv.Atoi(raw); err == nil {
			rec.Stars = stars
		}
	}
	return rec, true, nil
}

// RecordCompletion persists a finished run. The first completion marks the
// category completed, credits the bonus and unlocks the mapped achievement;
// later runs only raise the stored stars.
func (l *Ledger) RecordCompletion(ctx context.Context, category domain.Category, stars int) (domain.RecordOutcome, error) {
	if stars < 0 || stars > 3 {
		return domain.RecordOutcome{}, fmt.Errorf("%w: %d", domain.ErrInvalidStars, stars)
	}

	prev, ok, err := l.GetCompletion(ctx, category)
	if err != nil {
		return domain.RecordOutcome{}, err
	}
	if ok && prev.Stars >= stars {
		return domain.RecordOutcome{}, nil
	}

	if err := l.ns.Write(ctx, starsKey(category), strconv.Itoa(stars)); err != nil {
		return domain.RecordOutcome{}, fmt.Errorf("write stars of %s: %w", category, err)
	}
	if ok {
		if err := l.setCategoryStars(ctx, category, stars); err != nil {
			return domain.RecordOutcome{StarsUpdated: true}, err
		}
		return domain.RecordOutcome{StarsUpdated: true}, nil
	}

	if err := l.ns.Write(ctx, completedKey(category), "true"); err != nil {
		return domain.RecordOutcome{}, fmt.Errorf("write completion of %s: %w", category, err)
	}
	outcome := domain.RecordOutcome{FirstCompletion: true, StarsUpdated: true}
	if err := l.setCategoryStars(ctx, category, stars); err != nil {
		return outcome, err
	}

	balance, err := l.CreditStars(ctx, l.bonus)
	if err != nil {
		return outcome, err
	}
	outcome.BonusCredited = l.bonus
	l.log.Info("first completion bonus credited", "category", category, "bonus", l.bonus, "balance", balance)

	if profile, err := l.catalog.Profile(category); err == nil && profile.Achievement != "" {
		unlocked, err := l.UnlockAchievement(ctx, profile.Achievement)
		if err != nil {
			return outcome, err
		}
		if unlocked {
			outcome.AchievementUnlocked = profile.Achievement
		}
	}
	return outcome, nil
}

// UnlockAchievement sets the achievement flag and reports whether it was newly unlocked.
func (l *Ledger) UnlockAchievement(ctx context.Context, id string) (bool, error) {
	achievements, err := l.Achievements(ctx)
	if err != nil {
		return false, err
	}
	if achievements[id] {
		return false, nil
	}
	achievements[id] = true
	data, err := json.Marshal(achievements)
	if err != nil {
		return false, fmt.Errorf("encode achievements: %w", err)
	}
	if err := l.ns.Write(ctx, keyAchievements, string(data)); err != nil {
		return false, fmt.Errorf("write achievements: %w", err)
	}
	return true, nil
}

// Achievements returns the achievement set; an absent set is empty.
func (l *Ledger) Achievements(ctx context.Context) (map[string]bool, error) {
	achievements := make(map[string]bool)
	if err := l.readJSON(ctx, keyAchievements, &achievements); err != nil {
		return nil, err
	}
	if achievements == nil {
		achievements = make(map[string]bool)
	}
	return achievements, nil
}

// CategoryStars returns the per-category star map shown on the home screen.
func (l *Ledger) CategoryStars(ctx context.Context) (map[string]int, error) {
	stars := make(map[string]int)
	if err := l.readJSON(ctx, keyCategoryStars, &stars); err != nil {
		return nil, err
	}
	if stars == nil {
		stars = make(map[string]int)
	}
	return stars, nil
}

func (l *Ledger) setCategoryStars(ctx context.Context, category domain.Category, stars int) error {
	all, err := l.CategoryStars(ctx)
	if err != nil {
		return err
	}
	all[string(category)] = stars
	data, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("encode category stars: %w", err)
	}
	if err := l.ns.Write(ctx, keyCategoryStars, string(data)); err != nil {
		return fmt.Errorf("write category stars: %w", err)
	}
	return nil
}

// StarBalance reads the freshest persisted balance.
func (l *Ledger) StarBalance(ctx context.Context) (int, error) {
	rec, err := l.ns.GetUserRecord(ctx)
	if err != nil {
		return 0, fmt.Errorf("read star balance: %w", err)
	}
	return rec.StarCount, nil
}

// CreditStars adds amount to the persisted balance and returns the new balance.
func (l *Ledger) CreditStars(ctx context.Context, amount int) (int, error) {
	return l.adjustBalance(ctx, amount)
}

// DebitStars subtracts amount; the balance never goes negative. A refused
// debit reports the unchanged balance with ErrInsufficientStars.
func (l *Ledger) DebitStars(ctx context.Context, amount int) (int, error) {
	balance, err := l.adjustBalance(ctx, -amount)
	if errors.Is(err, domain.ErrInsufficientStars) {
		if current, readErr := l.StarBalance(ctx); readErr == nil {
			balance = current
		}
	}
	return balance, err
}

// adjustBalance applies delta as one patch so concurrent credits and debits
// of the same device never overwrite each other.
func (l *Ledger) adjustBalance(ctx context.Context, delta int) (int, error) {
	rec, err := l.ns.PatchUserRecord(ctx, domain.UserPatch{StarDelta: &delta})
	if err != nil {
		return 0, fmt.Errorf("adjust star balance by %d: %w", delta, err)
	}
	return rec.StarCount, nil
}

func (l *Ledger) readJSON(ctx context.Context, key string, v any) error {
	raw, ok, err := l.ns.Read(ctx, key)
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	if !ok || raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}
