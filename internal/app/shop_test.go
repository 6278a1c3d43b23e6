package app_test

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tracing-quiz-service/internal/app"
	"tracing-quiz-service/internal/domain"
	"tracing-quiz-service/internal/infra/memory"
)

func TestShopPurchaseAndEquip(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewKVStore()
	engine := newTestEngine(t, kv, &fakeClock{})
	require.NoError(t, engine.SetMode(ctx, "tablet", domain.ModeGuest, ""))

	ledger := engine.Ledger(ctx, "tablet")
	_, err := ledger.CreditStars(ctx, 5)
	require.NoError(t, err)

	shop := engine.Shop(ctx, "tablet")
	require.Len(t, shop.Catalog(), 4)

	require.ErrorIs(t, shop.Equip(ctx, 2), domain.ErrBorderNotPurchased)

	balance, err := shop.Purchase(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, 2, balance)

	_, err = shop.Purchase(ctx, 2)
	require.ErrorIs(t, err, domain.ErrAlreadyPurchased)

	balance, err = shop.Purchase(ctx, 3)
	require.ErrorIs(t, err, domain.ErrInsufficientStars)
	require.Equal(t, 2, balance)

	_, err = shop.Purchase(ctx, 99)
	require.ErrorIs(t, err, domain.ErrBorderNotFound)

	require.NoError(t, shop.Equip(ctx, 2))

	profile, err := engine.Profile(ctx, "tablet")
	require.NoError(t, err)
	require.Equal(t, domain.ModeGuest, profile.Mode)
	require.Equal(t, 2, profile.StarBalance)
	require.Equal(t, []int{2}, profile.Borders)
	require.NotNil(t, profile.Equipped)
	require.Equal(t, 2, *profile.Equipped)
	require.Empty(t, profile.Achievements)
	require.Empty(t, profile.CategoryStars)
}

func TestEngineProfileAfterCompletion(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, memory.NewKVStore(), &fakeClock{})
	require.NoError(t, engine.SetMode(ctx, "tablet", domain.ModeGuest, ""))

	_, err := engine.Ledger(ctx, "tablet").RecordCompletion(ctx, domain.CategoryAnimals, 2)
	require.NoError(t, err)

	profile, err := engine.Profile(ctx, "tablet")
	require.NoError(t, err)
	require.Equal(t, 5, profile.StarBalance)
	require.Equal(t, map[string]bool{"achievement4": true}, profile.Achievements)
	require.Equal(t, map[string]int{"animals": 2}, profile.CategoryStars)
	require.Empty(t, profile.Borders)
	require.Nil(t, profile.Equipped)
}

// gatedStore parks the first read of the guest star count until release is closed.
type gatedStore struct {
	app.LocalStore
	arrived chan struct{}
	release chan struct{}
	once    sync.Once
	reads   atomic.Int32
}

func (s *gatedStore) Get(ctx context.Context, key string) (string, bool, error) {
	if strings.HasSuffix(key, "guest_starCount") {
		s.reads.Add(1)
		s.once.Do(func() {
			close(s.arrived)
			<-s.release
		})
	}
	return s.LocalStore.Get(ctx, key)
}

func TestConcurrentCompletionAndPurchaseKeepBalance(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewKVStore()
	store := &gatedStore{LocalStore: kv, arrived: make(chan struct{}), release: make(chan struct{})}
	engine := newTestEngine(t, store, &fakeClock{})
	require.NoError(t, engine.SetMode(ctx, "tablet", domain.ModeGuest, ""))
	require.NoError(t, kv.Set(ctx, "device:tablet:guest_starCount", "10"))

	ledger := engine.Ledger(ctx, "tablet")
	shop := engine.Shop(ctx, "tablet")

	errs := make(chan error, 2)
	go func() {
		_, err := ledger.RecordCompletion(ctx, domain.CategoryCounting, 3)
		errs <- err
	}()
	go func() {
		_, err := shop.Purchase(ctx, 4)
		errs <- err
	}()

	<-store.arrived
	// give the other writer time to reach the balance
	time.Sleep(20 * time.Millisecond)
	require.EqualValues(t, 1, store.reads.Load(), "a second balance read ran while the first was in flight")
	close(store.release)

	require.NoError(t, <-errs)
	require.NoError(t, <-errs)

	balance, err := ledger.StarBalance(ctx)
	require.NoError(t, err)
	require.Equal(t, 10+app.DefaultFirstCompletionBonus-6, balance)

	borders, err := shop.Purchased(ctx)
	require.NoError(t, err)
	require.Equal(t, []int{4}, borders)
}

func TestConcurrentPurchasesNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewKVStore()
	engine := newTestEngine(t, kv, &fakeClock{})
	require.NoError(t, engine.SetMode(ctx, "tablet", domain.ModeGuest, ""))
	require.NoError(t, kv.Set(ctx, "device:tablet:guest_starCount", "7"))

	var wg sync.WaitGroup
	results := make(chan error, 4)
	for id := 1; id <= 4; id++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			_, err := engine.Shop(ctx, "tablet").Purchase(ctx, id)
			results <- err
		}(id)
	}
	wg.Wait()
	close(results)

	for err := range results {
		if err != nil {
			require.ErrorIs(t, err, domain.ErrInsufficientStars)
		}
	}

	borders, err := engine.Shop(ctx, "tablet").Purchased(ctx)
	require.NoError(t, err)
	spent := 0
	for _, id := range borders {
		border, err := domain.FindAvatarBorder(id)
		require.NoError(t, err)
		spent += border.Cost
	}
	balance, err := engine.Ledger(ctx, "tablet").StarBalance(ctx)
	require.NoError(t, err)
	require.GreaterOrEqual(t, balance, 0)
	require.Equal(t, 7, spent+balance)
}
