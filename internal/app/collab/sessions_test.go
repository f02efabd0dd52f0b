package collab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArchSirius/log3900-server/internal/app/user"
)

func newHandle(id, username string) *Client {
	return NewClient(nil, nil, user.Ref{ID: id, Username: username})
}

func TestJoinLeaveTracksHandles(t *testing.T) {
	s := NewSessionRegistry()

	a1 := newHandle("u1", "alice")
	a2 := newHandle("u1", "alice")

	assert.True(t, s.Join(a1), "first handle makes the user present")
	assert.False(t, s.Join(a2), "second handle is not a new user")
	assert.Len(t, s.ClientsOf("u1"), 2)

	assert.False(t, s.Leave(a1), "one handle left, user still present")
	assert.True(t, s.Leave(a2), "last handle gone, user fully disconnected")
	assert.Empty(t, s.ClientsOf("u1"))
}

func TestJoinSameHandleTwiceIsIdempotent(t *testing.T) {
	s := NewSessionRegistry()
	c := newHandle("u1", "alice")

	s.Join(c)
	s.Join(c)
	assert.Len(t, s.ClientsOf("u1"), 1)
}

func TestLeaveUnknownUser(t *testing.T) {
	s := NewSessionRegistry()
	assert.False(t, s.Leave(newHandle("ghost", "ghost")))
}

func TestRoomMembership(t *testing.T) {
	s := NewSessionRegistry()
	c := newHandle("u1", "alice")
	s.Join(c)

	assert.True(t, s.JoinRoom("u1", "General"))
	assert.False(t, s.JoinRoom("u1", "General"), "second join is rejected")
	assert.Equal(t, []string{"General"}, s.Rooms("u1"))

	assert.True(t, s.LeaveRoom("u1", "General"))
	assert.False(t, s.LeaveRoom("u1", "General"), "second leave is rejected")
	assert.Empty(t, s.Rooms("u1"))
}

func TestZoneRegistration(t *testing.T) {
	s := NewSessionRegistry()
	c := newHandle("u1", "alice")
	s.Join(c)

	_, ok := s.ZoneOf("u1")
	assert.False(t, ok)

	s.RegisterZone("u1", "z1")
	zoneID, ok := s.ZoneOf("u1")
	require.True(t, ok)
	assert.Equal(t, "z1", zoneID)

	// Unregistering a different zone leaves the binding intact.
	s.UnregisterZone("u1", "z2")
	_, ok = s.ZoneOf("u1")
	assert.True(t, ok)

	s.UnregisterZone("u1", "z1")
	_, ok = s.ZoneOf("u1")
	assert.False(t, ok)
}

func TestUsersInZoneAndRoom(t *testing.T) {
	s := NewSessionRegistry()
	alice := newHandle("u1", "alice")
	bob := newHandle("u2", "bob")
	s.Join(alice)
	s.Join(bob)

	s.RegisterZone("u1", "z1")
	s.RegisterZone("u2", "z1")
	s.JoinRoom("u1", "z1")

	inZone := s.UsersInZone("z1")
	assert.ElementsMatch(t, []user.Ref{alice.User(), bob.User()}, inZone)

	inRoom := s.UsersInRoom("z1")
	assert.Equal(t, []user.Ref{alice.User()}, inRoom)
}

func TestBroadcastExcludesCaller(t *testing.T) {
	s := NewSessionRegistry()
	alice := newHandle("u1", "alice")
	bob := newHandle("u2", "bob")
	s.Join(alice)
	s.Join(bob)
	s.JoinRoom("u1", "General")
	s.JoinRoom("u2", "General")

	s.Broadcast("General", alice, EvUserJoin, UserEventPayload{Room: "General", User: alice.User()})

	_, data := recvEvent(t, bob)
	var payload UserEventPayload
	decodeInto(t, data, &payload)
	assert.Equal(t, "u1", payload.User.ID)

	select {
	case <-alice.send:
		t.Fatal("excluded client received the broadcast")
	default:
	}
}

func TestBroadcastSkipsNonMembers(t *testing.T) {
	s := NewSessionRegistry()
	alice := newHandle("u1", "alice")
	bob := newHandle("u2", "bob")
	s.Join(alice)
	s.Join(bob)
	s.JoinRoom("u1", "General")

	s.Broadcast("General", nil, EvUserJoin, UserEventPayload{Room: "General"})

	assert.Len(t, alice.send, 1)
	assert.Empty(t, bob.send)
}

func TestChatClientsOfFiltersDisabledHandles(t *testing.T) {
	s := NewSessionRegistry()
	a1 := newHandle("u1", "alice")
	a2 := newHandle("u1", "alice")
	s.Join(a1)
	s.Join(a2)

	a2.SetChatEnabled(false)

	clients := s.ChatClientsOf("u1")
	require.Len(t, clients, 1)
	assert.Same(t, a1, clients[0])
}

func TestUserLookup(t *testing.T) {
	s := NewSessionRegistry()
	s.Join(newHandle("u1", "alice"))

	ref, ok := s.User("u1")
	require.True(t, ok)
	assert.Equal(t, "alice", ref.Username)

	_, ok = s.User("u2")
	assert.False(t, ok)
}
