package domain

import (
	"fmt"
	"strconv"
)

// TracingKind selects how a correct answer is turned into a tracing hand-off.
type TracingKind int

const (
	TracingNone TracingKind = iota
	TracingNumerals
	TracingAlphabet
)

const (
	GroupNumbers   = "numbers"
	GroupAlphabets = "alphabets"
)

// CategoryProfile holds the per-category mapping tables.
type CategoryProfile struct {
	Tracing     TracingKind
	Achievement string
	Related     string
}

// Catalog maps every known category to its profile.
type Catalog map[Category]CategoryProfile

// Profile returns the category's profile or ErrUnknownCategory.
func (c Catalog) Profile(category Category) (CategoryProfile, error) {
	p, ok := c[category]
	if !ok {
		return CategoryProfile{}, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	return p, nil
}

// DefaultCatalog returns the categories shipped with the app.
func DefaultCatalog() Catalog {
	return Catalog{
		CategoryCounting: {Tracing: TracingNumerals, Achievement: "achievement6", Related: GroupNumbers},
		CategoryAnimals:  {Tracing: TracingAlphabet, Achievement: "achievement4", Related: GroupAlphabets},
		CategoryFruits:   {Tracing: TracingAlphabet, Achievement: "achievement5", Related: GroupAlphabets},
	}
}

// TracingTargets maps answer glyphs to tracing identifiers for alphabet categories.
type TracingTargets map[string]int

// DefaultTracingTargets returns the glyph table used by the alphabet tracing activity.
func DefaultTracingTargets() TracingTargets {
	return TracingTargets{
		"ཀ": 1,
		"ཁ": 2,
		"ག": 3,
		"ང": 4,
		"ད": 11,
		"ཕ": 14,
		"བ": 15,
		"ཚ": 18,
		"ཧ": 29,
		"ཨ": 30,
	}
}

// Request derives the hand-off request for a correctly answered question.
func (t TracingTargets) Request(kind TracingKind, answer string, isFinal bool) (HandoffRequest, error) {
	switch kind {
	case TracingNumerals:
		n, err := strconv.Atoi(answer)
		if err != nil {
			return HandoffRequest{}, fmt.Errorf("%w: %q is not a numeral", ErrUnmappedAnswer, answer)
		}
		// numeral ids are offset by one: zero is traced as id 1
		return HandoffRequest{
			Identifier:      strconv.Itoa(n + 1),
			SubCategory:     GroupNumbers,
			IsFinalQuestion: isFinal,
		}, nil
	case TracingAlphabet:
		id, ok := t[answer]
		if !ok {
			return HandoffRequest{}, fmt.Errorf("%w: %q", ErrUnmappedAnswer, answer)
		}
		return HandoffRequest{
			Identifier:      strconv.Itoa(id),
			SubCategory:     GroupAlphabets,
			IsFinalQuestion: isFinal,
		}, nil
	default:
		return HandoffRequest{}, fmt.Errorf("%w: category does not trace", ErrUnmappedAnswer)
	}
}

// AvatarBorders is the avatar shop catalog.
func AvatarBorders() []AvatarBorder {
	return []AvatarBorder{
		{ID: 1, NameKey: "bronzeBorder", Cost: 2},
		{ID: 2, NameKey: "silverBorder", Cost: 3},
		{ID: 3, NameKey: "goldenFlameBorder", Cost: 4},
		{ID: 4, NameKey: "diamondCrownBorder", Cost: 6},
	}
}

// FindAvatarBorder looks up a border by id.
func FindAvatarBorder(id int) (AvatarBorder, error) {
	for _, b := range AvatarBorders() {
		if b.ID == id {
			return b, nil
		}
	}
	return AvatarBorder{}, fmt.Errorf("%w: %d", ErrBorderNotFound, id)
}
