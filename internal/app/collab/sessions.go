/*
Package collab implements the real-time collaboration core.

This file defines the SessionRegistry, which tracks every connected user,
their transport handles (a user can hold several concurrent connections),
their single active zone and the chat rooms they have joined. It is also the
fan-out point for room broadcasts.
*/
package collab

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ArchSirius/log3900-server/internal/app/user"
	"github.com/ArchSirius/log3900-server/internal/pkg/logx"
)

// session is the ephemeral per-user record, destroyed when the last handle
// disconnects.
type session struct {
	user    user.Ref
	clients []*Client
	zoneID  string
	rooms   map[string]struct{}
}

// SessionRegistry tracks connected users and their room memberships.
// Constructed once per server process and shared by every connection.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*session
	logger   zerolog.Logger
}

// NewSessionRegistry constructs an empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*session),
		logger:   logx.Logger().With().Str("component", "SessionRegistry").Logger(),
	}
}

// Join registers the client's handle under its user id, creating the session
// if it is the user's first handle. Re-adding the same handle is a no-op.
// It returns true iff the user was not connected before.
func (s *SessionRegistry) Join(c *Client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[c.user.ID]
	if ok {
		for _, existing := range sess.clients {
			if existing == c {
				return false
			}
		}
		sess.clients = append(sess.clients, c)
		s.logger.Debug().
			Str("user_id", c.user.ID).
			Int("handles", len(sess.clients)).
			Msg("Additional handle registered.")
		return false
	}

	s.sessions[c.user.ID] = &session{
		user:    c.user,
		clients: []*Client{c},
		rooms:   make(map[string]struct{}),
	}
	s.logger.Info().Str("user_id", c.user.ID).Str("username", c.user.Username).Msg("User connected.")
	return true
}

// Leave removes the client's handle. When no handles remain the session is
// deleted entirely and Leave returns true, signalling the caller to run the
// disconnect side effects (zone leave, presence broadcasts).
func (s *SessionRegistry) Leave(c *Client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[c.user.ID]
	if !ok {
		return false
	}
	for i, existing := range sess.clients {
		if existing == c {
			sess.clients = append(sess.clients[:i], sess.clients[i+1:]...)
			break
		}
	}
	if len(sess.clients) > 0 {
		return false
	}
	delete(s.sessions, c.user.ID)
	s.logger.Info().Str("user_id", c.user.ID).Msg("User fully disconnected.")
	return true
}

// RegisterZone sets the user's active zone.
func (s *SessionRegistry) RegisterZone(userID, zoneID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[userID]; ok {
		sess.zoneID = zoneID
	}
}

// UnregisterZone clears the user's active zone.
func (s *SessionRegistry) UnregisterZone(userID, zoneID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[userID]; ok && sess.zoneID == zoneID {
		sess.zoneID = ""
	}
}

// ZoneOf returns the user's active zone id, if any.
func (s *SessionRegistry) ZoneOf(userID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[userID]
	if !ok || sess.zoneID == "" {
		return "", false
	}
	return sess.zoneID, true
}

// JoinRoom adds the user to a chat room. It returns false if the user is
// already a member (idempotency guard) or not connected.
func (s *SessionRegistry) JoinRoom(userID, room string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return false
	}
	if _, member := sess.rooms[room]; member {
		return false
	}
	sess.rooms[room] = struct{}{}
	return true
}

// LeaveRoom removes the user from a chat room. It returns false if the user
// was not a member.
func (s *SessionRegistry) LeaveRoom(userID, room string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return false
	}
	if _, member := sess.rooms[room]; !member {
		return false
	}
	delete(sess.rooms, room)
	return true
}

// Rooms returns the chat rooms the user has joined.
func (s *SessionRegistry) Rooms(userID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return nil
	}
	rooms := make([]string, 0, len(sess.rooms))
	for room := range sess.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// User returns the connected user's identity, if connected.
func (s *SessionRegistry) User(userID string) (user.Ref, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return user.Ref{}, false
	}
	return sess.user, true
}

// UsersInZone returns the users whose active zone is zoneID.
func (s *SessionRegistry) UsersInZone(zoneID string) []user.Ref {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := []user.Ref{}
	for _, sess := range s.sessions {
		if sess.zoneID == zoneID {
			users = append(users, sess.user)
		}
	}
	return users
}

// UsersInRoom returns the members of a chat room.
func (s *SessionRegistry) UsersInRoom(room string) []user.Ref {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := []user.Ref{}
	for _, sess := range s.sessions {
		if _, member := sess.rooms[room]; member {
			users = append(users, sess.user)
		}
	}
	return users
}

// ClientsOf returns every transport handle of the user.
func (s *SessionRegistry) ClientsOf(userID string) []*Client {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return nil
	}
	clients := make([]*Client, len(sess.clients))
	copy(clients, sess.clients)
	return clients
}

// ChatClientsOf returns the user's handles that participate in chat delivery.
// Handles that opted out via init:chat are excluded, which makes private
// messages to them fall back to the pending queue.
func (s *SessionRegistry) ChatClientsOf(userID string) []*Client {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return nil
	}
	clients := make([]*Client, 0, len(sess.clients))
	for _, c := range sess.clients {
		if c.ChatEnabled() {
			clients = append(clients, c)
		}
	}
	return clients
}

// Broadcast sends the event to every handle of every member of the room,
// excluding the given handle. The payload is marshaled once; queue-full
// handles drop the message and are logged.
func (s *SessionRegistry) Broadcast(room string, exclude *Client, event string, data any) {
	env := envelope{Event: event, Data: data}
	raw, err := json.Marshal(env)
	if err != nil {
		s.logger.Error().Err(err).Str("event", event).Msg("Failed to marshal broadcast payload.")
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sess := range s.sessions {
		if _, member := sess.rooms[room]; !member {
			continue
		}
		for _, c := range sess.clients {
			if c == exclude {
				continue
			}
			c.enqueue(raw)
		}
	}
}
