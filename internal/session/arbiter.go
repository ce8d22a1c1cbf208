// Package session implements the single-owner arbiter: at most one
// channel may mutate the shared game/engine state at a time, with
// explicit takeover and stale-message rejection.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Grant describes a newly granted or taken-over ownership.
type Grant struct {
	OwnerSince string
	OwnerToken string
	SessionID  string
}

// Occupancy describes the current owner when a grant request is denied.
type Occupancy struct {
	OwnerSince string
	Hint       string
}

func nowISO() string {
	return time.Now().UTC().Truncate(time.Second).Format(time.RFC3339)
}

// Hub arbitrates ownership of the single shared session among
// concurrent client channels, identified by an opaque comparable
// handle (e.g. a *websocket.Conn or any pointer-identity value).
type Hub struct {
	mu sync.Mutex

	owner      any
	ownerSince string
	ownerToken string
	sessionID  string
}

// NewHub returns an unowned Hub.
func NewHub() *Hub {
	return &Hub{}
}

// TryGrant grants ownership to ch only if no owner currently holds it.
func (h *Hub) TryGrant(ch any) (bool, Grant, Occupancy) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.owner == nil {
		h.owner = ch
		h.ownerSince = nowISO()
		h.ownerToken = uuid.NewString()
		h.sessionID = uuid.NewString()
		return true, Grant{OwnerSince: h.ownerSince, OwnerToken: h.ownerToken, SessionID: h.sessionID}, Occupancy{}
	}
	return false, Grant{}, Occupancy{OwnerSince: h.ownerSince, Hint: "another session is active"}
}

// Takeover unconditionally makes ch the owner, regenerating both
// tokens, and returns the previous owner (nil if ch was already
// owner or there was none) so the caller can notify and close it.
func (h *Hub) Takeover(ch any) (any, Grant) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.owner == ch {
		return nil, Grant{OwnerSince: h.ownerSince, OwnerToken: h.ownerToken, SessionID: h.sessionID}
	}
	old := h.owner
	h.owner = ch
	h.ownerSince = nowISO()
	h.ownerToken = uuid.NewString()
	h.sessionID = uuid.NewString()
	return old, Grant{OwnerSince: h.ownerSince, OwnerToken: h.ownerToken, SessionID: h.sessionID}
}

// IsOwner reports whether ch currently holds ownership.
func (h *Hub) IsOwner(ch any) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.owner == ch
}

// OwnerToken returns ch's current owner token, or "" if ch is not owner.
func (h *Hub) OwnerToken(ch any) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.owner == ch {
		return h.ownerToken
	}
	return ""
}

// SessionID returns ch's current session id, or "" if ch is not owner.
func (h *Hub) SessionID(ch any) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.owner == ch {
		return h.sessionID
	}
	return ""
}

// ReleaseIfOwner drops ownership iff ch is the current owner, reporting
// whether it did.
func (h *Hub) ReleaseIfOwner(ch any) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.owner != ch {
		return false
	}
	h.owner = nil
	h.ownerSince = ""
	h.ownerToken = ""
	h.sessionID = ""
	return true
}

// Fresh reports whether sessionID/ownerToken match ch's current pair;
// a mismatch means the message is stale and must be rejected without
// mutating state.
func (h *Hub) Fresh(ch any, sessionID, ownerToken string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.owner == ch && h.sessionID == sessionID && h.ownerToken == ownerToken
}
