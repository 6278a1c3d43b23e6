package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionRegistry tracks the live quiz session of every device.
// Notes:
//   - Cancellation handles stay in-process; a device has at most one live
//     session and registering a new one stops the previous.
//   - Redis holds a liveness marker per device so other instances can see
//     which session is current.
type SessionRegistry struct {
	client *redis.Client
	ttl    time.Duration

	mu       sync.Mutex
	sessions map[string]liveSession
}

type liveSession struct {
	id     string
	cancel context.CancelFunc
}

func NewSessionRegistry(client *redis.Client, ttl time.Duration) *SessionRegistry {
	return &SessionRegistry{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]liveSession),
	}
}

// Track records sessionID as the live session of device, canceling any older one.
func (r *SessionRegistry) Track(device, sessionID string, cancel context.CancelFunc) {
	r.mu.Lock()
	prev, ok := r.sessions[device]
	r.sessions[device] = liveSession{id: sessionID, cancel: cancel}
	r.mu.Unlock()

	if ok && prev.id != sessionID {
		prev.cancel()
	}
	// best-effort liveness marker
	_ = r.client.Set(context.Background(), r.key(device), sessionID, r.ttl).Err()
}

// Release forgets sessionID if it is still the live session of device.
func (r *SessionRegistry) Release(device, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.sessions[device]
	if !ok || cur.id != sessionID {
		return
	}
	delete(r.sessions, device)
	_ = r.client.Del(context.Background(), r.key(device)).Err()
}

// Live returns the id of the device's live session.
func (r *SessionRegistry) Live(device string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.sessions[device]
	return cur.id, ok
}

func (r *SessionRegistry) key(device string) string {
	return "quiz:session:" + device
}
