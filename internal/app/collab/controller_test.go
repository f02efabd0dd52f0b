package collab

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArchSirius/log3900-server/internal/app/user"
	"github.com/ArchSirius/log3900-server/internal/app/zone"
)

var testUsers = []*user.User{
	{ID: "u1", Username: "alice"},
	{ID: "u2", Username: "bob"},
}

// editorZone is a zone with two editable nodes and one startpoint.
func editorZone() *zone.Zone {
	return testZone("z1",
		testNode("s1", zone.TypeStart),
		testNode("n1", zone.TypeWall),
		testNode("n2", zone.TypeTable),
	)
}

// mustJoinZone joins the zone, requires a success ack and discards the
// remaining join frames.
func mustJoinZone(t *testing.T, env *testEnv, c *Client, zoneID string) {
	t.Helper()

	dispatch(t, env.ctrl, c, EvJoinZone, JoinZoneRequest{ZoneID: zoneID})
	var ack JoinZoneAck
	decodeInto(t, recvNamed(t, c, EvJoinedZone), &ack)
	require.True(t, ack.Success)
	drainFrames(c)
}

func TestJoinZoneDeliversState(t *testing.T) {
	env := newTestEnv(false, []*zone.Zone{editorZone()}, testUsers)
	alice := env.connect("u1", "alice")

	dispatch(t, env.ctrl, alice, EvJoinZone, JoinZoneRequest{ZoneID: "z1"})

	var ack JoinZoneAck
	decodeInto(t, recvNamed(t, alice, EvJoinedZone), &ack)
	require.True(t, ack.Success)
	assert.Equal(t, "z1", ack.ZoneID)
	require.NotNil(t, ack.Data)
	assert.Len(t, ack.Data.Nodes, 3)
	assert.Equal(t, []user.Ref{alice.User()}, ack.Data.Users)
	assert.Empty(t, ack.Data.LockedNodes)
	assert.Empty(t, ack.Data.AssignedStartpoints)

	// The zone doubles as a chatroom.
	var chatAck ChatroomAck
	decodeInto(t, recvNamed(t, alice, EvJoinedChatroom), &chatAck)
	assert.True(t, chatAck.Success)
	assert.Equal(t, "z1", chatAck.Room)
}

func TestJoinZoneAnnouncesToPeers(t *testing.T) {
	env := newTestEnv(false, []*zone.Zone{editorZone()}, testUsers)
	alice := env.connect("u1", "alice")
	bob := env.connect("u2", "bob")
	mustJoinZone(t, env, alice, "z1")

	mustJoinZone(t, env, bob, "z1")

	var payload UserEventPayload
	decodeInto(t, recvNamed(t, alice, EvJoinZone), &payload)
	assert.Equal(t, "u2", payload.User.ID)
}

func TestJoinZoneNotFound(t *testing.T) {
	env := newTestEnv(false, nil, testUsers)
	alice := env.connect("u1", "alice")

	dispatch(t, env.ctrl, alice, EvJoinZone, JoinZoneRequest{ZoneID: "missing"})

	var ack JoinZoneAck
	decodeInto(t, recvNamed(t, alice, EvJoinedZone), &ack)
	assert.False(t, ack.Success)
	assert.Equal(t, "Zone not found.", ack.Message)
}

func TestJoinZonePrivateRequiresPassword(t *testing.T) {
	z := editorZone()
	z.Private = true
	hash, err := zone.HashSecret("sesame")
	require.NoError(t, err)
	z.SecretHash = hash

	env := newTestEnv(false, []*zone.Zone{z}, testUsers)
	alice := env.connect("u1", "alice")

	dispatch(t, env.ctrl, alice, EvJoinZone, JoinZoneRequest{ZoneID: "z1", Password: "wrong"})
	var ack JoinZoneAck
	decodeInto(t, recvNamed(t, alice, EvJoinedZone), &ack)
	assert.False(t, ack.Success)
	assert.Equal(t, "Access denied.", ack.Message)

	dispatch(t, env.ctrl, alice, EvJoinZone, JoinZoneRequest{ZoneID: "z1", Password: "sesame"})
	decodeInto(t, recvNamed(t, alice, EvJoinedZone), &ack)
	assert.True(t, ack.Success)
}

func TestJoinZoneAssignsStartpointOnRequest(t *testing.T) {
	env := newTestEnv(false, []*zone.Zone{editorZone()}, testUsers)
	alice := env.connect("u1", "alice")

	dispatch(t, env.ctrl, alice, EvJoinZone, JoinZoneRequest{ZoneID: "z1", AssignStartpoint: true})

	var ack StartpointAck
	decodeInto(t, recvNamed(t, alice, EvAssignedStartpoint), &ack)
	assert.True(t, ack.Success)
	assert.Equal(t, "s1", ack.NodeID)

	assignee, ok := env.locks.StartpointUser("z1", "s1")
	require.True(t, ok)
	assert.Equal(t, "u1", assignee)
}

func TestJoinZoneImplicitlyLeavesPrevious(t *testing.T) {
	env := newTestEnv(false, []*zone.Zone{editorZone(), testZone("z2", testNode("m1", zone.TypeWall))}, testUsers)
	alice := env.connect("u1", "alice")
	bob := env.connect("u2", "bob")
	mustJoinZone(t, env, alice, "z1")
	mustJoinZone(t, env, bob, "z1")
	drainFrames(bob)

	mustJoinZone(t, env, alice, "z2")

	zoneID, ok := env.sessions.ZoneOf("u1")
	require.True(t, ok)
	assert.Equal(t, "z2", zoneID)

	var payload UserEventPayload
	decodeInto(t, recvNamed(t, bob, EvLeaveZone), &payload)
	assert.Equal(t, "u1", payload.User.ID)
}

func TestRejoinCurrentZoneRefreshesSnapshotOnly(t *testing.T) {
	env := newTestEnv(false, []*zone.Zone{editorZone()}, testUsers)
	alice := env.connect("u1", "alice")
	bob := env.connect("u2", "bob")
	mustJoinZone(t, env, alice, "z1")
	mustJoinZone(t, env, bob, "z1")
	drainFrames(alice)
	drainFrames(bob)

	dispatch(t, env.ctrl, alice, EvJoinZone, JoinZoneRequest{ZoneID: "z1"})

	var ack JoinZoneAck
	decodeInto(t, recvNamed(t, alice, EvJoinedZone), &ack)
	require.True(t, ack.Success)
	require.NotNil(t, ack.Data)
	assert.Len(t, ack.Data.Users, 2)

	assert.Empty(t, alice.send, "no chatroom ack follows a re-join")
	assert.Empty(t, bob.send, "peers are not told about a re-join")

	zoneID, ok := env.sessions.ZoneOf("u1")
	require.True(t, ok)
	assert.Equal(t, "z1", zoneID)
}

func TestLeaveZoneWithoutActiveZone(t *testing.T) {
	env := newTestEnv(false, nil, testUsers)
	alice := env.connect("u1", "alice")

	dispatch(t, env.ctrl, alice, EvLeaveZone, struct{}{})

	var ack LeaveZoneAck
	decodeInto(t, recvNamed(t, alice, EvLeftZone), &ack)
	assert.False(t, ack.Success)
	assert.Equal(t, "No active zone.", ack.Message)
}

func TestLeaveZoneReleasesStartpoint(t *testing.T) {
	env := newTestEnv(false, []*zone.Zone{editorZone()}, testUsers)
	alice := env.connect("u1", "alice")
	bob := env.connect("u2", "bob")
	mustJoinZone(t, env, bob, "z1")

	dispatch(t, env.ctrl, alice, EvJoinZone, JoinZoneRequest{ZoneID: "z1", AssignStartpoint: true})
	drainFrames(alice)
	drainFrames(bob)

	dispatch(t, env.ctrl, alice, EvLeaveZone, struct{}{})

	var ack LeaveZoneAck
	decodeInto(t, recvNamed(t, alice, EvLeftZone), &ack)
	assert.True(t, ack.Success)

	_, ok := env.locks.StartpointUser("z1", "s1")
	assert.False(t, ok)

	var payload StartpointPayload
	decodeInto(t, recvNamed(t, bob, EvUnassignStartpoint), &payload)
	assert.Equal(t, "s1", payload.NodeID)
}

func TestEditNodesBlockedByForeignLock(t *testing.T) {
	env := newTestEnv(false, []*zone.Zone{editorZone()}, testUsers)
	alice := env.connect("u1", "alice")
	bob := env.connect("u2", "bob")
	mustJoinZone(t, env, alice, "z1")
	mustJoinZone(t, env, bob, "z1")
	drainFrames(alice)

	env.locks.Lock("z1", []string{"n1"}, "u1")

	x := 9.0
	dispatch(t, env.ctrl, bob, EvEditNodes, EditNodesRequest{Nodes: []NodePatch{
		{ID: "n1", Position: &zone.VectorPatch{X: &x}},
	}})

	var ack EditedNodesAck
	decodeInto(t, recvNamed(t, bob, EvEditedNodes), &ack)
	assert.True(t, ack.Success)
	assert.Empty(t, ack.Nodes, "locked node is skipped, not failed")

	owner, ok := env.locks.OwnerOf("z1", "n1")
	require.True(t, ok)
	assert.Equal(t, "u1", owner)

	z, err := env.zones.GetZone(t.Context(), "z1")
	require.NoError(t, err)
	assert.Zero(t, z.NodeByID("n1").Position.X, "skipped edit is not persisted")
}

func TestEditNodesAppliesAndBroadcasts(t *testing.T) {
	env := newTestEnv(false, []*zone.Zone{editorZone()}, testUsers)
	alice := env.connect("u1", "alice")
	bob := env.connect("u2", "bob")
	mustJoinZone(t, env, alice, "z1")
	mustJoinZone(t, env, bob, "z1")
	drainFrames(alice)

	env.locks.Lock("z1", []string{"n1"}, "u1")

	x := 5.0
	angle := 1.5
	dispatch(t, env.ctrl, alice, EvEditNodes, EditNodesRequest{Nodes: []NodePatch{
		{ID: "n1", Position: &zone.VectorPatch{X: &x}, Angle: &angle},
	}})

	var ack EditedNodesAck
	decodeInto(t, recvNamed(t, alice, EvEditedNodes), &ack)
	require.True(t, ack.Success)
	require.Len(t, ack.Nodes, 1)
	assert.Equal(t, "n1", ack.Nodes[0].ID)
	assert.Equal(t, 5.0, ack.Nodes[0].Position.X)
	assert.Equal(t, 1.5, ack.Nodes[0].Angle)
	assert.Equal(t, "u1", ack.Nodes[0].UpdatedBy)

	var payload EditedNodesPayload
	decodeInto(t, recvNamed(t, bob, EvEditNodes), &payload)
	require.Len(t, payload.Nodes, 1)
	assert.Equal(t, 5.0, payload.Nodes[0].Position.X)

	// Untouched transform fields survive the patch.
	z, err := env.zones.GetZone(t.Context(), "z1")
	require.NoError(t, err)
	n := z.NodeByID("n1")
	assert.Equal(t, 5.0, n.Position.X)
	assert.Equal(t, zone.Vector3{X: 1, Y: 1, Z: 1}, n.Scale)
}

func TestEditNodesPersistFailure(t *testing.T) {
	env := newTestEnv(false, []*zone.Zone{editorZone()}, testUsers)
	alice := env.connect("u1", "alice")
	mustJoinZone(t, env, alice, "z1")

	env.zones.saveErr = assert.AnError

	x := 5.0
	input := []NodePatch{{ID: "n1", Position: &zone.VectorPatch{X: &x}}}
	dispatch(t, env.ctrl, alice, EvEditNodes, EditNodesRequest{Nodes: input})

	var ack EditedNodesAck
	decodeInto(t, recvNamed(t, alice, EvEditedNodes), &ack)
	assert.False(t, ack.Success)
	assert.NotEmpty(t, ack.Error)
	require.Len(t, ack.Input, 1)
	assert.Equal(t, "n1", ack.Input[0].ID)
}

func TestEditNodesAggregateSaveFailure(t *testing.T) {
	env := newTestEnv(false, []*zone.Zone{editorZone()}, testUsers)
	alice := env.connect("u1", "alice")
	bob := env.connect("u2", "bob")
	mustJoinZone(t, env, alice, "z1")
	mustJoinZone(t, env, bob, "z1")
	drainFrames(alice)
	drainFrames(bob)

	env.zones.touchErr = assert.AnError

	x := 5.0
	dispatch(t, env.ctrl, alice, EvEditNodes, EditNodesRequest{Nodes: []NodePatch{
		{ID: "n1", Position: &zone.VectorPatch{X: &x}},
	}})

	var ack EditedNodesAck
	decodeInto(t, recvNamed(t, alice, EvEditedNodes), &ack)
	assert.False(t, ack.Success)
	assert.NotEmpty(t, ack.Error)
	require.Len(t, ack.Input, 1)
	assert.Equal(t, "n1", ack.Input[0].ID)

	assert.Empty(t, bob.send, "failed batches are not broadcast")
}

func TestCreateNodesAggregateSaveFailure(t *testing.T) {
	env := newTestEnv(false, []*zone.Zone{editorZone()}, testUsers)
	alice := env.connect("u1", "alice")
	bob := env.connect("u2", "bob")
	mustJoinZone(t, env, alice, "z1")
	mustJoinZone(t, env, bob, "z1")
	drainFrames(alice)
	drainFrames(bob)

	env.zones.touchErr = assert.AnError

	dispatch(t, env.ctrl, alice, EvCreateNodes, CreateNodesRequest{Nodes: []NewNode{
		{Type: zone.TypeTable, LocalID: "tmp-1"},
	}})

	var ack CreatedNodesAck
	decodeInto(t, recvNamed(t, alice, EvCreatedNodes), &ack)
	assert.False(t, ack.Success)
	assert.NotEmpty(t, ack.Error)
	require.Len(t, ack.Input, 1)
	assert.Equal(t, "tmp-1", ack.Input[0].LocalID)

	assert.Empty(t, bob.send, "failed batches are not broadcast")
}

func TestDeleteNodesAggregateSaveFailure(t *testing.T) {
	env := newTestEnv(false, []*zone.Zone{editorZone()}, testUsers)
	alice := env.connect("u1", "alice")
	bob := env.connect("u2", "bob")
	mustJoinZone(t, env, alice, "z1")
	mustJoinZone(t, env, bob, "z1")
	drainFrames(alice)
	drainFrames(bob)

	env.zones.touchErr = assert.AnError

	dispatch(t, env.ctrl, alice, EvDeleteNodes, NodeBatchRequest{Nodes: []NodeRef{{ID: "n1"}}})

	var ack NodeBatchAck
	decodeInto(t, recvNamed(t, alice, EvDeletedNodes), &ack)
	assert.False(t, ack.Success)
	assert.NotEmpty(t, ack.Error)

	assert.Empty(t, bob.send, "failed batches are not broadcast")
}

func TestCreateNodesEchoesLocalIDToCallerOnly(t *testing.T) {
	env := newTestEnv(false, []*zone.Zone{editorZone()}, testUsers)
	alice := env.connect("u1", "alice")
	bob := env.connect("u2", "bob")
	mustJoinZone(t, env, alice, "z1")
	mustJoinZone(t, env, bob, "z1")
	drainFrames(alice)

	dispatch(t, env.ctrl, alice, EvCreateNodes, CreateNodesRequest{Nodes: []NewNode{
		{Type: zone.TypeTable, LocalID: "tmp-1"},
	}})

	var ack CreatedNodesAck
	decodeInto(t, recvNamed(t, alice, EvCreatedNodes), &ack)
	require.True(t, ack.Success)
	require.Len(t, ack.Nodes, 1)
	assert.NotEmpty(t, ack.Nodes[0].ID)
	assert.Equal(t, "tmp-1", ack.Nodes[0].LocalID)
	assert.Equal(t, zone.Vector3{X: 1, Y: 1, Z: 1}, ack.Nodes[0].Scale)
	assert.Equal(t, "u1", ack.Nodes[0].CreatedBy)

	var payload CreatedNodesPayload
	decodeInto(t, recvNamed(t, bob, EvCreateNodes), &payload)
	require.Len(t, payload.Nodes, 1)
	assert.Equal(t, ack.Nodes[0].ID, payload.Nodes[0].ID)
	assert.Empty(t, payload.Nodes[0].LocalID, "local id never reaches peers")

	z, err := env.zones.GetZone(t.Context(), "z1")
	require.NoError(t, err)
	assert.NotNil(t, z.NodeByID(ack.Nodes[0].ID))
}

func TestCreateNodesRejectsInvalidType(t *testing.T) {
	env := newTestEnv(false, []*zone.Zone{editorZone()}, testUsers)
	alice := env.connect("u1", "alice")
	mustJoinZone(t, env, alice, "z1")

	dispatch(t, env.ctrl, alice, EvCreateNodes, CreateNodesRequest{Nodes: []NewNode{
		{Type: zone.TypeTable},
		{Type: "teapot"},
	}})

	var ack CreatedNodesAck
	decodeInto(t, recvNamed(t, alice, EvCreatedNodes), &ack)
	assert.False(t, ack.Success)
	assert.Equal(t, "Invalid node type.", ack.Message)
	assert.Len(t, ack.Input, 2)

	// Whole batch is rejected up front, nothing persisted.
	z, err := env.zones.GetZone(t.Context(), "z1")
	require.NoError(t, err)
	assert.Len(t, z.Nodes, 3)
}

func TestDeleteNodesSkipsForeignLocks(t *testing.T) {
	env := newTestEnv(false, []*zone.Zone{editorZone()}, testUsers)
	alice := env.connect("u1", "alice")
	bob := env.connect("u2", "bob")
	mustJoinZone(t, env, alice, "z1")
	mustJoinZone(t, env, bob, "z1")

	env.locks.Lock("z1", []string{"n1"}, "u1")

	dispatch(t, env.ctrl, bob, EvDeleteNodes, NodeBatchRequest{Nodes: []NodeRef{
		{ID: "n1"},
		{ID: "n2"},
		{ID: "ghost"},
	}})

	var ack NodeBatchAck
	decodeInto(t, recvNamed(t, bob, EvDeletedNodes), &ack)
	require.True(t, ack.Success)
	assert.Equal(t, []NodeRef{{ID: "n2"}}, ack.Nodes)

	z, err := env.zones.GetZone(t.Context(), "z1")
	require.NoError(t, err)
	assert.NotNil(t, z.NodeByID("n1"))
	assert.Nil(t, z.NodeByID("n2"))
}

func TestLockNodesReportsGrantedSubset(t *testing.T) {
	env := newTestEnv(false, []*zone.Zone{editorZone()}, testUsers)
	alice := env.connect("u1", "alice")
	bob := env.connect("u2", "bob")
	mustJoinZone(t, env, alice, "z1")
	mustJoinZone(t, env, bob, "z1")
	drainFrames(alice)

	env.locks.Lock("z1", []string{"n1"}, "u1")

	dispatch(t, env.ctrl, bob, EvLockNodes, NodeBatchRequest{Nodes: []NodeRef{
		{ID: "n1"},
		{ID: "n2"},
	}})

	var ack NodeBatchAck
	decodeInto(t, recvNamed(t, bob, EvLockedNodes), &ack)
	require.True(t, ack.Success)
	assert.Equal(t, []NodeRef{{ID: "n2"}}, ack.Nodes)

	var payload NodeBatchPayload
	decodeInto(t, recvNamed(t, alice, EvLockNodes), &payload)
	assert.Equal(t, []NodeRef{{ID: "n2"}}, payload.Nodes)
}

func TestUnlockNodesReleasesOwnLocks(t *testing.T) {
	env := newTestEnv(false, []*zone.Zone{editorZone()}, testUsers)
	alice := env.connect("u1", "alice")
	mustJoinZone(t, env, alice, "z1")

	env.locks.Lock("z1", []string{"n1", "n2"}, "u1")

	dispatch(t, env.ctrl, alice, EvUnlockNodes, NodeBatchRequest{Nodes: []NodeRef{{ID: "n1"}}})

	var ack NodeBatchAck
	decodeInto(t, recvNamed(t, alice, EvUnlockedNodes), &ack)
	require.True(t, ack.Success)
	assert.Equal(t, []NodeRef{{ID: "n1"}}, ack.Nodes)
	assert.False(t, env.locks.IsLocked("z1", "n1"))
	assert.True(t, env.locks.IsLocked("z1", "n2"))
}

func TestPingPositionCoercesAndBroadcasts(t *testing.T) {
	env := newTestEnv(false, []*zone.Zone{editorZone()}, testUsers)
	alice := env.connect("u1", "alice")
	bob := env.connect("u2", "bob")
	mustJoinZone(t, env, alice, "z1")
	mustJoinZone(t, env, bob, "z1")
	drainFrames(alice)
	drainFrames(bob)

	dispatch(t, env.ctrl, alice, EvPingPosition, PingPositionRequest{Position: map[string]any{
		"x": 1.5,
		"y": "oops",
	}})

	var payload PingPositionPayload
	decodeInto(t, recvNamed(t, bob, EvPingPosition), &payload)
	assert.Equal(t, zone.Vector3{X: 1.5, Y: 0, Z: 0}, payload.Position)

	assert.Empty(t, alice.send, "no ack or echo for pings")
}

func TestSimulationRecordsStats(t *testing.T) {
	env := newTestEnv(false, []*zone.Zone{editorZone()}, testUsers)
	alice := env.connect("u1", "alice")
	mustJoinZone(t, env, alice, "z1")

	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	env.ctrl.now = func() time.Time { return start }
	dispatch(t, env.ctrl, alice, EvStartSimulation, struct{}{})

	env.ctrl.now = func() time.Time { return start.Add(30 * time.Second) }
	dispatch(t, env.ctrl, alice, EvEndSimulation, struct{}{})

	assert.Equal(t, 1, env.zones.statsGames)
	assert.InDelta(t, 30.0, env.zones.statsSeconds, 0.001)

	u, err := env.users.GetUser(t.Context(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, u.Stats.PlayedGames)
	assert.InDelta(t, 30.0, u.Stats.PlayedTime, 0.001)
}

func TestEndSimulationWithoutStartSkipsStats(t *testing.T) {
	env := newTestEnv(false, []*zone.Zone{editorZone()}, testUsers)
	alice := env.connect("u1", "alice")
	mustJoinZone(t, env, alice, "z1")

	dispatch(t, env.ctrl, alice, EvEndSimulation, struct{}{})

	assert.Zero(t, env.zones.statsGames)
}

func TestDisconnectKeepsLocksReleasesStartpoint(t *testing.T) {
	env := newTestEnv(false, []*zone.Zone{editorZone()}, testUsers)
	alice := env.connect("u1", "alice")
	bob := env.connect("u2", "bob")
	mustJoinZone(t, env, bob, "z1")

	dispatch(t, env.ctrl, alice, EvJoinZone, JoinZoneRequest{ZoneID: "z1", AssignStartpoint: true})
	drainFrames(alice)
	env.locks.Lock("z1", []string{"n1"}, "u1")
	drainFrames(bob)

	env.ctrl.Disconnect(alice)

	assert.True(t, env.locks.IsLocked("z1", "n1"), "locks survive a disconnect")
	_, ok := env.locks.StartpointUser("z1", "s1")
	assert.False(t, ok, "startpoints never survive a disconnect")

	var leave UserEventPayload
	decodeInto(t, recvNamed(t, bob, EvLeaveZone), &leave)
	assert.Equal(t, "u1", leave.User.ID)

	var unassign StartpointPayload
	decodeInto(t, recvNamed(t, bob, EvUnassignStartpoint), &unassign)
	assert.Equal(t, "s1", unassign.NodeID)
}

func TestDisconnectReleasesLocksWhenEnabled(t *testing.T) {
	env := newTestEnv(true, []*zone.Zone{editorZone()}, testUsers)
	alice := env.connect("u1", "alice")
	bob := env.connect("u2", "bob")
	mustJoinZone(t, env, alice, "z1")
	mustJoinZone(t, env, bob, "z1")

	env.locks.Lock("z1", []string{"n1", "n2"}, "u1")
	drainFrames(bob)

	env.ctrl.Disconnect(alice)

	assert.False(t, env.locks.IsLocked("z1", "n1"))
	assert.False(t, env.locks.IsLocked("z1", "n2"))

	data := recvNamed(t, bob, EvUnlockNodes)
	var payload NodeBatchPayload
	decodeInto(t, data, &payload)
	assert.ElementsMatch(t, []NodeRef{{ID: "n1"}, {ID: "n2"}}, payload.Nodes)
}

func TestDisconnectOfOneHandleKeepsSessionAlive(t *testing.T) {
	env := newTestEnv(false, []*zone.Zone{editorZone()}, testUsers)
	a1 := env.connect("u1", "alice")
	a2 := env.connect("u1", "alice")
	bob := env.connect("u2", "bob")
	mustJoinZone(t, env, a1, "z1")
	mustJoinZone(t, env, bob, "z1")
	drainFrames(bob)

	env.ctrl.Disconnect(a2)

	zoneID, ok := env.sessions.ZoneOf("u1")
	require.True(t, ok)
	assert.Equal(t, "z1", zoneID)
	assert.Empty(t, bob.send, "peers only learn about the last handle leaving")
}

func TestJoinChatroomTwiceRejected(t *testing.T) {
	env := newTestEnv(false, nil, testUsers)
	alice := env.connect("u1", "alice")

	dispatch(t, env.ctrl, alice, EvJoinChatroom, ChatroomRequest{Room: "General"})
	drainFrames(alice)

	dispatch(t, env.ctrl, alice, EvJoinChatroom, ChatroomRequest{Room: "General"})

	var ack ChatroomAck
	decodeInto(t, recvNamed(t, alice, EvJoinedChatroom), &ack)
	assert.False(t, ack.Success)
	assert.Equal(t, "Already a member of this chatroom.", ack.Message)
}

func TestLeaveChatroomNotMemberRejected(t *testing.T) {
	env := newTestEnv(false, nil, testUsers)
	alice := env.connect("u1", "alice")

	dispatch(t, env.ctrl, alice, EvLeaveChatroom, ChatroomRequest{Room: "General"})

	var ack ChatroomAck
	decodeInto(t, recvNamed(t, alice, EvLeftChatroom), &ack)
	assert.False(t, ack.Success)
	assert.Equal(t, "Not a member of this chatroom.", ack.Message)
}

func TestJoinChatroomAckIncludesMembersAndHistory(t *testing.T) {
	env := newTestEnv(false, nil, testUsers)
	alice := env.connect("u1", "alice")
	bob := env.connect("u2", "bob")

	dispatch(t, env.ctrl, alice, EvJoinChatroom, ChatroomRequest{Room: "General"})
	drainFrames(alice)
	dispatch(t, env.ctrl, alice, EvSendGroupMessage, GroupMessageRequest{To: "General", Text: "hi"})

	dispatch(t, env.ctrl, bob, EvJoinChatroom, ChatroomRequest{Room: "General"})

	var ack ChatroomAck
	decodeInto(t, recvNamed(t, bob, EvJoinedChatroom), &ack)
	require.True(t, ack.Success)
	assert.Len(t, ack.Users, 2)
	require.Len(t, ack.Messages, 1)
	assert.Equal(t, "hi", ack.Messages[0].Text)
}

func TestGroupMessageTooLongDropped(t *testing.T) {
	env := newTestEnv(false, nil, testUsers)
	alice := env.connect("u1", "alice")
	bob := env.connect("u2", "bob")

	dispatch(t, env.ctrl, alice, EvJoinChatroom, ChatroomRequest{Room: "General"})
	dispatch(t, env.ctrl, bob, EvJoinChatroom, ChatroomRequest{Room: "General"})
	drainFrames(alice)
	drainFrames(bob)

	long := make([]byte, MaxContentBytes+1)
	for i := range long {
		long[i] = 'a'
	}
	dispatch(t, env.ctrl, alice, EvSendGroupMessage, GroupMessageRequest{To: "General", Text: string(long)})

	assert.Empty(t, bob.send)
	assert.Empty(t, env.relay.GroupHistory("General"))
}

func TestGetPrivateMessagesEmptyHistory(t *testing.T) {
	env := newTestEnv(false, nil, testUsers)
	alice := env.connect("u1", "alice")

	dispatch(t, env.ctrl, alice, EvGetPrivateMessages, PrivateHistoryRequest{ActiveUser: UserRef{ID: "u2"}})

	var ack PrivateHistoryAck
	decodeInto(t, recvNamed(t, alice, EvGetPrivateMessages), &ack)
	assert.True(t, ack.Success)
	assert.NotNil(t, ack.Messages)
	assert.Empty(t, ack.Messages)
}

func TestInitChatDisablesDelivery(t *testing.T) {
	env := newTestEnv(false, nil, testUsers)
	alice := env.connect("u1", "alice")

	disabled := false
	dispatch(t, env.ctrl, alice, EvInitChat, InitChatRequest{Value: &disabled})
	assert.False(t, alice.ChatEnabled())

	dispatch(t, env.ctrl, alice, EvInitChat, InitChatRequest{})
	assert.True(t, alice.ChatEnabled(), "missing value defaults to enabled")
}

func TestEditNodesIgnoredWithoutZone(t *testing.T) {
	env := newTestEnv(false, []*zone.Zone{editorZone()}, testUsers)
	alice := env.connect("u1", "alice")

	x := 5.0
	dispatch(t, env.ctrl, alice, EvEditNodes, EditNodesRequest{Nodes: []NodePatch{
		{ID: "n1", Position: &zone.VectorPatch{X: &x}},
	}})

	assert.Empty(t, alice.send)
}

func TestUnknownEventDropped(t *testing.T) {
	env := newTestEnv(false, nil, testUsers)
	alice := env.connect("u1", "alice")

	env.ctrl.Dispatch(alice, "warp:reality", nil)
	assert.Empty(t, alice.send)
}
