package collab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArchSirius/log3900-server/internal/app/user"
)

func newRelayEnv() (*MessageRelay, *SessionRegistry, *fakeMessageStore) {
	sessions := NewSessionRegistry()
	store := newFakeMessageStore(map[string]string{
		"u1": "alice",
		"u2": "bob",
	})
	return NewMessageRelay(sessions, store), sessions, store
}

func TestSendGroupDeliversToOtherMembersAndArchives(t *testing.T) {
	relay, sessions, _ := newRelayEnv()

	alice := newHandle("u1", "alice")
	bob := newHandle("u2", "bob")
	sessions.Join(alice)
	sessions.Join(bob)
	sessions.JoinRoom("u1", "General")
	sessions.JoinRoom("u2", "General")

	relay.SendGroup(alice, "General", "hello", 1000)

	data := recvNamed(t, bob, EvSendGroupMessage)
	var payload GroupMessagePayload
	decodeInto(t, data, &payload)
	assert.Equal(t, "hello", payload.Text)
	assert.Equal(t, "u1", payload.From.ID)
	assert.Equal(t, "General", payload.Room)

	assert.Empty(t, alice.send, "sending handle gets no copy")

	history := relay.GroupHistory("General")
	require.Len(t, history, 1)
	assert.Equal(t, "hello", history[0].Text)
	assert.Equal(t, "alice", history[0].CreatedBy.Username)
}

func TestSendGroupEchoesToSendersOtherHandles(t *testing.T) {
	relay, sessions, _ := newRelayEnv()

	a1 := newHandle("u1", "alice")
	a2 := newHandle("u1", "alice")
	sessions.Join(a1)
	sessions.Join(a2)
	sessions.JoinRoom("u1", "General")

	relay.SendGroup(a1, "General", "hello", 1000)

	assert.Empty(t, a1.send)
	assert.Len(t, a2.send, 1)
}

func TestSendPrivateDeliversLive(t *testing.T) {
	relay, sessions, store := newRelayEnv()

	alice := newHandle("u1", "alice")
	bob := newHandle("u2", "bob")
	sessions.Join(alice)
	sessions.Join(bob)

	relay.SendPrivate(alice, "u2", "psst", 1000)

	data := recvNamed(t, bob, EvSendPrivateMessage)
	var payload PrivateMessagePayload
	decodeInto(t, data, &payload)
	assert.Equal(t, "u1", payload.From.ID)
	assert.Equal(t, "u2", payload.To.ID)
	assert.Equal(t, "psst", payload.Text)

	assert.Empty(t, store.pending["u2"], "live delivery skips the pending queue")

	history, err := relay.PrivateHistory("u1", "u2")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "psst", history[0].Text)
}

func TestSendPrivateOfflineRecipientGoesPending(t *testing.T) {
	relay, sessions, store := newRelayEnv()

	alice := newHandle("u1", "alice")
	sessions.Join(alice)

	relay.SendPrivate(alice, "u2", "psst", 1000)

	require.Len(t, store.pending["u2"], 1)
}

func TestSendPrivateChatDisabledRecipientGoesPending(t *testing.T) {
	relay, sessions, store := newRelayEnv()

	alice := newHandle("u1", "alice")
	bob := newHandle("u2", "bob")
	sessions.Join(alice)
	sessions.Join(bob)
	bob.SetChatEnabled(false)

	relay.SendPrivate(alice, "u2", "psst", 1000)

	assert.Empty(t, bob.send)
	require.Len(t, store.pending["u2"], 1)
}

func TestSendPrivateEchoesToSendersOtherHandles(t *testing.T) {
	relay, sessions, _ := newRelayEnv()

	a1 := newHandle("u1", "alice")
	a2 := newHandle("u1", "alice")
	bob := newHandle("u2", "bob")
	sessions.Join(a1)
	sessions.Join(a2)
	sessions.Join(bob)

	relay.SendPrivate(a1, "u2", "psst", 1000)

	assert.Empty(t, a1.send)
	assert.Len(t, a2.send, 1)
	assert.Len(t, bob.send, 1)
}

func TestReplayPendingDrainsOnce(t *testing.T) {
	relay, sessions, store := newRelayEnv()

	alice := newHandle("u1", "alice")
	sessions.Join(alice)
	relay.SendPrivate(alice, "u2", "first", 1000)
	relay.SendPrivate(alice, "u2", "second", 2000)

	bob := newHandle("u2", "bob")
	sessions.Join(bob)
	relay.ReplayPending(bob)

	var texts []string
	for len(bob.send) > 0 {
		data := recvNamed(t, bob, EvSendPrivateMessage)
		var payload PrivateMessagePayload
		decodeInto(t, data, &payload)
		texts = append(texts, payload.Text)
	}
	assert.Equal(t, []string{"first", "second"}, texts)

	// A second replay finds nothing.
	relay.ReplayPending(bob)
	assert.Empty(t, bob.send)
	assert.Empty(t, store.pending["u2"])
}

func TestPrivateHistorySymmetric(t *testing.T) {
	relay, sessions, _ := newRelayEnv()

	alice := newHandle("u1", "alice")
	bob := newHandle("u2", "bob")
	sessions.Join(alice)
	sessions.Join(bob)

	relay.SendPrivate(alice, "u2", "one", 1000)
	relay.SendPrivate(bob, "u1", "two", 2000)

	forward, err := relay.PrivateHistory("u1", "u2")
	require.NoError(t, err)
	reverse, err := relay.PrivateHistory("u2", "u1")
	require.NoError(t, err)

	require.Len(t, forward, 2)
	assert.Equal(t, forward, reverse)
	assert.Equal(t, "one", forward[0].Text)
	assert.Equal(t, "two", forward[1].Text)
}

func TestSendPrivateToUnknownUserKeepsBareRef(t *testing.T) {
	relay, sessions, _ := newRelayEnv()

	a1 := newHandle("u1", "alice")
	a2 := newHandle("u1", "alice")
	sessions.Join(a1)
	sessions.Join(a2)

	relay.SendPrivate(a1, "u9", "psst", 1000)

	data := recvNamed(t, a2, EvSendPrivateMessage)
	var payload PrivateMessagePayload
	decodeInto(t, data, &payload)
	assert.Equal(t, user.Ref{ID: "u9"}, payload.To)
}
