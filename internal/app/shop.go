package app

import (
	"context"
	"fmt"
	"slices"

	"github.com/goccy/go-json"

	"tracing-quiz-service/internal/domain"
)

const keyAvatarBorders = "avatar_borders"

// Shop spends the star balance on avatar borders. Each purchase debits the
// freshest persisted balance.
type Shop struct {
	ledger *Ledger
}

func NewShop(ledger *Ledger) *Shop {
	return &Shop{ledger: ledger}
}

func (s *Shop) Catalog() []domain.AvatarBorder {
	return domain.AvatarBorders()
}

// Purchased returns the ids of owned borders.
func (s *Shop) Purchased(ctx context.Context) ([]int, error) {
	var ids []int
	if err := s.ledger.readJSON(ctx, keyAvatarBorders, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// Purchase buys a border and returns the remaining balance.
func (s *Shop) Purchase(ctx context.Context, borderID int) (int, error) {
	border, err := domain.FindAvatarBorder(borderID)
	if err != nil {
		return 0, err
	}
	s.ledger.ns.purchases.Lock()
	defer s.ledger.ns.purchases.Unlock()

	owned, err := s.Purchased(ctx)
	if err != nil {
		return 0, err
	}
	if slices.Contains(owned, border.ID) {
		return 0, fmt.Errorf("%w: %d", domain.ErrAlreadyPurchased, border.ID)
	}

	balance, err := s.ledger.DebitStars(ctx, border.Cost)
	if err != nil {
		return balance, err
	}

	data, err := json.Marshal(append(owned, border.ID))
	if err != nil {
		return balance, fmt.Errorf("encode avatar borders: %w", err)
	}
	if err := s.ledger.ns.Write(ctx, keyAvatarBorders, string(data)); err != nil {
		return balance, fmt.Errorf("write avatar borders: %w", err)
	}
	return balance, nil
}

// Equip makes an owned border the current one.
func (s *Shop) Equip(ctx context.Context, borderID int) error {
	if _, err := domain.FindAvatarBorder(borderID); err != nil {
		return err
	}
	owned, err := s.Purchased(ctx)
	if err != nil {
		return err
	}
	if !slices.Contains(owned, borderID) {
		return fmt.Errorf("%w: %d", domain.ErrBorderNotPurchased, borderID)
	}
	if _, err := s.ledger.ns.PatchUserRecord(ctx, domain.UserPatch{CurrentAvatarBorderID: &borderID}); err != nil {
		return fmt.Errorf("equip border %d: %w", borderID, err)
	}
	return nil
}
