package domain

import (
	"fmt"
	"time"
)

// Category is a named quiz topic with its own fixed question sequence.
type Category string

const (
	CategoryCounting Category = "counting"
	CategoryAnimals  Category = "animals"
	CategoryFruits   Category = "fruits"
)

// Mode selects which storage namespace a device resolves to.
type Mode string

const (
	ModeGuest  Mode = "guest"
	ModeOnline Mode = "online"
)

// Question is an immutable multiple-choice record from a category's question bank.
type Question struct {
	PromptPrimary   string   `json:"promptPrimary"`
	PromptSecondary string   `json:"promptSecondary"`
	ImageRef        string   `json:"imageRef"`
	Options         []string `json:"options"`
	CorrectAnswer   string   `json:"correctAnswer"`
}

// HasOption reports whether option is one of the question's choices.
func (q Question) HasOption(option string) bool {
	for _, o := range q.Options {
		if o == option {
			return true
		}
	}
	return false
}

// CompletionRecord is the persisted outcome of a category for one user mode.
type CompletionRecord struct {
	Completed bool `json:"completed"`
	Stars     int  `json:"stars"`
}

// RecordOutcome describes what a recordCompletion call changed.
type RecordOutcome struct {
	FirstCompletion     bool   `json:"firstCompletion"`
	StarsUpdated        bool   `json:"starsUpdated"`
	BonusCredited       int    `json:"bonusCredited"`
	AchievementUnlocked string `json:"achievementUnlocked,omitempty"`
}

// UserRecord is the account-level record holding the star balance and equipped border.
type UserRecord struct {
	ID                    string `json:"id"`
	StarCount             int    `json:"starCount"`
	CurrentAvatarBorderID *int   `json:"currentAvatarBorderId,omitempty"`
}

// UserPatch carries the user record fields to change; nil fields are left untouched.
// StarDelta is applied atomically by the store against the current balance and
// fails with ErrInsufficientStars when the result would be negative. It cannot
// be combined with StarCount.
type UserPatch struct {
	StarCount             *int `json:"starCount,omitempty"`
	StarDelta             *int `json:"starDelta,omitempty"`
	CurrentAvatarBorderID *int `json:"currentAvatarBorderId,omitempty"`
}

// ApplyStars returns the balance after applying the patch to current.
func (p UserPatch) ApplyStars(current int) (int, error) {
	next := current
	if p.StarCount != nil {
		next = *p.StarCount
	}
	if p.StarDelta != nil {
		next += *p.StarDelta
	}
	if next < 0 {
		return current, fmt.Errorf("%w: balance %d would become %d", ErrInsufficientStars, current, next)
	}
	return next, nil
}

// Phase is the position of a quiz session in its state machine.
type Phase string

const (
	PhaseInitializing Phase = "initializing"
	PhaseActive       Phase = "active"
	PhaseSuspended    Phase = "suspended"
	PhaseCompleted    Phase = "completed"
)

// HandoffRequest is sent to the external tracing activity.
type HandoffRequest struct {
	Identifier      string `json:"identifier"`
	SubCategory     string `json:"subCategory"`
	IsFinalQuestion bool   `json:"isFinalQuestion"`
}

// NavigationRequest asks the environment to leave the quiz screen.
type NavigationRequest struct {
	Screen            string `json:"screen"`
	QuizCategory      string `json:"quizCategory"`
	FromCompletion    bool   `json:"fromCompletionScreen"`
	CompletedCategory string `json:"completedCategory"`
}

// NoticeKind names a user-visible notification.
type NoticeKind string

const (
	NoticeWrongAnswer         NoticeKind = "wrong_answer"
	NoticeQuizCompleted       NoticeKind = "quiz_completed"
	NoticeRewardEarned        NoticeKind = "reward_earned"
	NoticeAchievementUnlocked NoticeKind = "achievement_unlocked"
	NoticeError               NoticeKind = "error"
)

// Notice is a fire-and-forget notification. Transient notices carry the
// duration after which they are dismissed.
type Notice struct {
	ID        uint64        `json:"id"`
	Kind      NoticeKind    `json:"kind"`
	Message   string        `json:"message,omitempty"`
	Transient bool          `json:"transient"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// CompletionResult summarizes a finished session.
type CompletionResult struct {
	Stars               int    `json:"stars"`
	Score               int    `json:"score"`
	Total               int    `json:"total"`
	BonusAwarded        bool   `json:"bonusAwarded"`
	AchievementUnlocked string `json:"achievementUnlocked,omitempty"`
	Recorded            bool   `json:"recorded"`
}

// QuestionView is the part of a question a screen needs to render it.
type QuestionView struct {
	PromptPrimary   string   `json:"promptPrimary"`
	PromptSecondary string   `json:"promptSecondary"`
	ImageRef        string   `json:"imageRef"`
	Options         []string `json:"options"`
}

// SessionSnapshot is the observable state of a quiz session after a transition.
type SessionSnapshot struct {
	SessionID           string            `json:"sessionId"`
	Category            Category          `json:"category"`
	Phase               Phase             `json:"phase"`
	QuestionIndex       int               `json:"questionIndex"`
	Total               int               `json:"total"`
	Score               int               `json:"score"`
	PreviouslyCompleted bool              `json:"previouslyCompleted"`
	Question            *QuestionView     `json:"question,omitempty"`
	Handoff             *HandoffRequest   `json:"handoff,omitempty"`
	Result              *CompletionResult `json:"result,omitempty"`
}

// AvatarBorder is a purchasable frame in the avatar shop.
type AvatarBorder struct {
	ID      int    `json:"id"`
	NameKey string `json:"nameKey"`
	Cost    int    `json:"cost"`
}

// Profile is the device-level view of persisted progress.
type Profile struct {
	Mode          Mode            `json:"mode"`
	StarBalance   int             `json:"starBalance"`
	Achievements  map[string]bool `json:"achievements"`
	CategoryStars map[string]int  `json:"categoryStars"`
	Borders       []int           `json:"purchasedBorders"`
	Equipped      *int            `json:"equippedBorder,omitempty"`
}
