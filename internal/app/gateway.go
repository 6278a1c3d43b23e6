package app

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/charmbracelet/log"

	"tracing-quiz-service/internal/domain"
)

const (
	keyIsGuest       = "is_guest"
	keyAuthToken     = "auth_token"
	guestPrefix      = "guest_"
	keyStarCount     = "starCount"
	keyCurrentBorder = "current_avatar_border"
)

// LocalStore is the on-device key/value store. Absent keys report ok=false
// with a nil error; failures wrap domain.ErrStorageUnavailable.
type LocalStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// RemoteAccount is the account backend used in online mode. Failures wrap
// domain.ErrRemoteRequestFailed.
type RemoteAccount interface {
	GetUserRecord(ctx context.Context) (domain.UserRecord, error)
	PatchUserRecord(ctx context.Context, patch domain.UserPatch) (domain.UserRecord, error)
	GetValue(ctx context.Context, key string) (string, bool, error)
	SetValue(ctx context.Context, key, value string) error
}

// RemoteDialer returns a RemoteAccount authorized with token.
type RemoteDialer func(token string) RemoteAccount

// ScopedStore prefixes every key with scope so one store can hold many devices.
func ScopedStore(store LocalStore, scope string) LocalStore {
	if scope == "" {
		return store
	}
	return scopedStore{store: store, prefix: "device:" + scope + ":"}
}

type scopedStore struct {
	store  LocalStore
	prefix string
}

func (s scopedStore) Get(ctx context.Context, key string) (string, bool, error) {
	return s.store.Get(ctx, s.prefix+key)
}

func (s scopedStore) Set(ctx context.Context, key, value string) error {
	return s.store.Set(ctx, s.prefix+key, value)
}

// Gateway resolves the storage mode of a device and hands out mode-bound namespaces.
type Gateway struct {
	local LocalStore
	dial  RemoteDialer
	log   *log.Logger

	// per-device locks serializing user record and shop read-modify-writes
	records   sync.Map
	purchases sync.Map
}

func NewGateway(local LocalStore, dial RemoteDialer, logger *log.Logger) *Gateway {
	return &Gateway{local: local, dial: dial, log: logger}
}

// Open reads the mode flag of device once and returns the namespace every
// entity operation of the session goes through. A failed flag read is logged
// and treated as absent.
func (g *Gateway) Open(ctx context.Context, device string) *Namespace {
	local := ScopedStore(g.local, device)
	records := deviceLock(&g.records, device)
	purchases := deviceLock(&g.purchases, device)

	flag, _, err := local.Get(ctx, keyIsGuest)
	if err != nil {
		g.log.Warn("mode flag unreadable, treating as absent", "device", device, "err", err)
	}
	if flag == "true" {
		return &Namespace{mode: domain.ModeGuest, local: local, records: records, purchases: purchases}
	}

	token, _, err := local.Get(ctx, keyAuthToken)
	if err != nil {
		g.log.Warn("auth token unreadable", "device", device, "err", err)
	}
	var remote RemoteAccount = unavailableAccount{}
	if g.dial != nil {
		remote = g.dial(token)
	}
	return &Namespace{mode: domain.ModeOnline, local: local, remote: remote, records: records, purchases: purchases}
}

func deviceLock(locks *sync.Map, device string) *sync.Mutex {
	mu, _ := locks.LoadOrStore(device, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// SetMode records the onboarding decision for device.
func (g *Gateway) SetMode(ctx context.Context, device string, mode domain.Mode, token string) error {
	local := ScopedStore(g.local, device)
	if err := local.Set(ctx, keyIsGuest, strconv.FormatBool(mode == domain.ModeGuest)); err != nil {
		return err
	}
	if mode == domain.ModeOnline {
		return local.Set(ctx, keyAuthToken, token)
	}
	return nil
}

// Namespace is the PersistenceGateway bound to one mode.
type Namespace struct {
	mode    domain.Mode
	local   LocalStore
	remote  RemoteAccount
	records *sync.Mutex

	// held by the shop across a purchase; never taken while holding records
	purchases *sync.Mutex
}

func (n *Namespace) Mode() domain.Mode {
	return n.mode
}

// Read returns the value of key; ok is false when the key is absent.
func (n *Namespace) Read(ctx context.Context, key string) (string, bool, error) {
	if n.mode == domain.ModeGuest {
		return n.local.Get(ctx, guestPrefix+key)
	}
	return n.remote.GetValue(ctx, key)
}

func (n *Namespace) Write(ctx context.Context, key, value string) error {
	if n.mode == domain.ModeGuest {
		return n.local.Set(ctx, guestPrefix+key, value)
	}
	return n.remote.SetValue(ctx, key, value)
}

// GetUserRecord returns the remote record online, or the locally emulated one for guests.
func (n *Namespace) GetUserRecord(ctx context.Context) (domain.UserRecord, error) {
	if n.mode == domain.ModeOnline {
		return n.remote.GetUserRecord(ctx)
	}

	rec := domain.UserRecord{ID: string(domain.ModeGuest)}
	stars, err := n.readInt(ctx, keyStarCount)
	if err != nil {
		return domain.UserRecord{}, err
	}
	if stars != nil {
		rec.StarCount = *stars
	}
	border, err := n.readInt(ctx, keyCurrentBorder)
	if err != nil {
		return domain.UserRecord{}, err
	}
	rec.CurrentAvatarBorderID = border
	return rec, nil
}

// PatchUserRecord applies patch. Patches of one device are serialized; online
// the account API applies StarDelta inside its own transaction.
func (n *Namespace) PatchUserRecord(ctx context.Context, patch domain.UserPatch) (domain.UserRecord, error) {
	n.records.Lock()
	defer n.records.Unlock()

	if n.mode == domain.ModeOnline {
		return n.remote.PatchUserRecord(ctx, patch)
	}
	if patch.StarCount != nil || patch.StarDelta != nil {
		current, err := n.GetUserRecord(ctx)
		if err != nil {
			return domain.UserRecord{}, err
		}
		stars, err := patch.ApplyStars(current.StarCount)
		if err != nil {
			return current, err
		}
		if err := n.Write(ctx, keyStarCount, strconv.Itoa(stars)); err != nil {
			return domain.UserRecord{}, err
		}
	}
	if patch.CurrentAvatarBorderID != nil {
		if err := n.Write(ctx, keyCurrentBorder, strconv.Itoa(*patch.CurrentAvatarBorderID)); err != nil {
			return domain.UserRecord{}, err
		}
	}
	return n.GetUserRecord(ctx)
}

func (n *Namespace) readInt(ctx context.Context, key string) (*int, error) {
	raw, ok, err := n.Read(ctx, key)
	if err != nil || !ok {
		return nil, err
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		// garbage in the store reads as absent
		return nil, nil
	}
	return &v, nil
}

type unavailableAccount struct{}

func (unavailableAccount) GetUserRecord(context.Context) (domain.UserRecord, error) {
	return domain.UserRecord{}, fmt.Errorf("%w: no remote backend configured", domain.ErrRemoteRequestFailed)
}

func (unavailableAccount) PatchUserRecord(context.Context, domain.UserPatch) (domain.UserRecord, error) {
	return domain.UserRecord{}, fmt.Errorf("%w: no remote backend configured", domain.ErrRemoteRequestFailed)
}

func (unavailableAccount) GetValue(context.Context, string) (string, bool, error) {
	return "", false, fmt.Errorf("%w: no remote backend configured", domain.ErrRemoteRequestFailed)
}

func (unavailableAccount) SetValue(context.Context, string, string) error {
	return fmt.Errorf("%w: no remote backend configured", domain.ErrRemoteRequestFailed)
}
