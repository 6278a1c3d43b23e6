package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"tracing-quiz-service/internal/domain"
)

type userModel struct {
	bun.BaseModel `bun:"table:users"`

	ID                    string    `bun:"id,pk"`
	StarCount             int       `bun:"star_count,notnull"`
	CurrentAvatarBorderID *int      `bun:"current_avatar_border_id"`
	CreatedAt             time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt             time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (m userModel) record() domain.UserRecord {
	return domain.UserRecord{
		ID:                    m.ID,
		StarCount:             m.StarCount,
		CurrentAvatarBorderID: m.CurrentAvatarBorderID,
	}
}

type userValueModel struct {
	bun.BaseModel `bun:"table:user_values"`

	UserID string `bun:"user_id,pk"`
	Key    string `bun:"key,pk"`
	Value  string `bun:"value,notnull"`
}

// AccountStore keeps account records and per-user values in Postgres through bun.
type AccountStore struct {
	db *bun.DB
}

func NewAccountStore(db *bun.DB) *AccountStore {
	return &AccountStore{db: db}
}

// User returns the record of id, creating an empty one on first access.
func (s *AccountStore) User(ctx context.Context, id string) (domain.UserRecord, error) {
	if _, err := s.db.NewInsert().
		Model(&userModel{ID: id}).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx); err != nil {
		return domain.UserRecord{}, fmt.Errorf("%w: ensure user: %v", domain.ErrStorageUnavailable, err)
	}

	var m userModel
	if err := s.db.NewSelect().Model(&m).Where("id = ?", id).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.UserRecord{}, fmt.Errorf("%w: %s", domain.ErrUserNotFound, id)
		}
		return domain.UserRecord{}, fmt.Errorf("%w: select user: %v", domain.ErrStorageUnavailable, err)
	}
	return m.record(), nil
}

// PatchUser applies the non-nil fields of patch inside one transaction.
func (s *AccountStore) PatchUser(ctx context.Context, id string, patch domain.UserPatch) (domain.UserRecord, error) {
	if _, err := s.User(ctx, id); err != nil {
		return domain.UserRecord{}, err
	}

	var out userModel
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := tx.NewSelect().Model(&out).Where("id = ?", id).For("UPDATE").Scan(ctx); err != nil {
			return err
		}
		stars, err := patch.ApplyStars(out.StarCount)
		if err != nil {
			return err
		}
		out.StarCount = stars
		if patch.CurrentAvatarBorderID != nil {
			border := *patch.CurrentAvatarBorderID
			out.CurrentAvatarBorderID = &border
		}
		out.UpdatedAt = time.Now().UTC()
		_, err = tx.NewUpdate().
			Model(&out).
			Column("star_count", "current_avatar_border_id", "updated_at").
			WherePK().
			Exec(ctx)
		return err
	})
	if errors.Is(err, domain.ErrInsufficientStars) {
		return domain.UserRecord{}, err
	}
	if err != nil {
		return domain.UserRecord{}, fmt.Errorf("%w: patch user: %v", domain.ErrStorageUnavailable, err)
	}
	return out.record(), nil
}

func (s *AccountStore) Value(ctx context.Context, id, key string) (string, bool, error) {
	var m userValueModel
	err := s.db.NewSelect().Model(&m).Where("user_id = ? AND key = ?", id, key).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: select value: %v", domain.ErrStorageUnavailable, err)
	}
	return m.Value, true, nil
}

func (s *AccountStore) SetValue(ctx context.Context, id, key, value string) error {
	if _, err := s.User(ctx, id); err != nil {
		return err
	}
	_, err := s.db.NewInsert().
		Model(&userValueModel{UserID: id, Key: key, Value: value}).
		On("CONFLICT (user_id, key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: upsert value: %v", domain.ErrStorageUnavailable, err)
	}
	return nil
}
