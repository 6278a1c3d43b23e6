package domain

import "errors"

var (
	// ErrStorageUnavailable is returned when the local device store cannot be read or written.
	ErrStorageUnavailable = errors.New("local storage unavailable")
	// ErrRemoteRequestFailed wraps network and server failures of the remote account backend.
	ErrRemoteRequestFailed = errors.New("remote request failed")
	// ErrUnmappedAnswer indicates a correct answer has no tracing target.
	ErrUnmappedAnswer = errors.New("no tracing target for answer")
	// ErrInvalidPhase is returned when an action is not allowed in the current session phase.
	ErrInvalidPhase = errors.New("action not allowed in current phase")
	// ErrOptionNotFound indicates a selected option is not one of the question's choices.
	ErrOptionNotFound = errors.New("option not found")
	// ErrUnknownCategory indicates the category has no catalog entry.
	ErrUnknownCategory = errors.New("unknown quiz category")
	// ErrEmptyQuestionBank indicates a category has no questions.
	ErrEmptyQuestionBank = errors.New("question bank is empty")
	// ErrInvalidStars indicates a star rating outside [0,3].
	ErrInvalidStars = errors.New("star rating out of range")
	// ErrInsufficientStars is returned when a debit would make the star balance negative.
	ErrInsufficientStars = errors.New("not enough stars")
	// ErrBorderNotFound indicates an unknown avatar border id.
	ErrBorderNotFound = errors.New("avatar border not found")
	// ErrBorderNotPurchased is returned when equipping a border the user does not own.
	ErrBorderNotPurchased = errors.New("avatar border not purchased")
	// ErrAlreadyPurchased is returned when buying a border twice.
	ErrAlreadyPurchased = errors.New("avatar border already purchased")
	// ErrUnauthorized is returned by the account API for a missing or invalid token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUserNotFound indicates the account backend has no such user.
	ErrUserNotFound = errors.New("user not found")
)
