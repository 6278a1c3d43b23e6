package memory

import (
	"context"
	"sync"
)

// SessionRegistry tracks the live quiz session of every device in-process.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]liveSession
}

type liveSession struct {
	id     string
	cancel context.CancelFunc
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]liveSession)}
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
}

func (r *SessionRegistry) Release(device, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[device]; ok && cur.id == sessionID {
		delete(r.sessions, device)
	}
}

func (r *SessionRegistry) Live(device string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.sessions[device]
	return cur.id, ok
}
