/*
This file defines the Controller, the protocol state machine behind every
connection. It translates inbound events into registry mutations, store calls
and the matching acknowledgement and broadcast events. Acks go to the calling
handle under the past-tense event name; broadcasts go to room peers under the
bare verb.
*/
package collab

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ArchSirius/log3900-server/internal/app/chat"
	"github.com/ArchSirius/log3900-server/internal/app/db"
	"github.com/ArchSirius/log3900-server/internal/app/zone"
	"github.com/ArchSirius/log3900-server/internal/pkg/logx"
)

// Controller drives a collaborative editing session per connection. It is the
// only layer translating store failures into failure acks; the registries
// below it never fail.
type Controller struct {
	sessions *SessionRegistry
	locks    *LockRegistry
	relay    *MessageRelay
	zones    ZoneStore
	users    UserStore

	// releaseLocksOnDisconnect enables the opt-in cleanup policy freeing a
	// user's node locks when their last handle disconnects. Off by default:
	// locks survive disconnects, startpoints never do.
	releaseLocksOnDisconnect bool

	logger zerolog.Logger

	// now is injectable for simulation-clock tests.
	now func() time.Time
}

// NewController constructs a Controller over the shared registries and stores.
func NewController(sessions *SessionRegistry, locks *LockRegistry, relay *MessageRelay, zones ZoneStore, users UserStore, releaseLocksOnDisconnect bool) *Controller {
	return &Controller{
		sessions:                 sessions,
		locks:                    locks,
		relay:                    relay,
		zones:                    zones,
		users:                    users,
		releaseLocksOnDisconnect: releaseLocksOnDisconnect,
		logger:                   logx.Logger().With().Str("component", "Controller").Logger(),
		now:                      time.Now,
	}
}

func (ctl *Controller) millis() int64 {
	return ctl.now().UnixMilli()
}

func (ctl *Controller) storeCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), storeTimeout)
}

// Init registers the connection's handle, pushes the init event and replays
// any pending private messages to this handle.
func (ctl *Controller) Init(c *Client) {
	ctl.sessions.Join(c)

	c.Send(EvInit, InitPayload{User: c.User(), Time: ctl.millis()})

	ctl.relay.ReplayPending(c)
}

// Dispatch routes an inbound event to its handler. Unknown events are logged
// and dropped; malformed payloads are dropped at the boundary.
func (ctl *Controller) Dispatch(c *Client, event string, raw json.RawMessage) {
	switch event {
	case EvInitChat:
		ctl.handleInitChat(c, raw)
	case EvJoinChatroom:
		ctl.handleJoinChatroom(c, raw)
	case EvLeaveChatroom:
		ctl.handleLeaveChatroom(c, raw)
	case EvSendGroupMessage:
		ctl.handleSendGroupMessage(c, raw)
	case EvSendPrivateMessage:
		ctl.handleSendPrivateMessage(c, raw)
	case EvGetPrivateMessages:
		ctl.handleGetPrivateMessages(c, raw)
	case EvJoinZone:
		ctl.handleJoinZone(c, raw)
	case EvLeaveZone:
		ctl.handleLeaveZone(c)
	case EvEditNodes:
		ctl.handleEditNodes(c, raw)
	case EvCreateNodes:
		ctl.handleCreateNodes(c, raw)
	case EvDeleteNodes:
		ctl.handleDeleteNodes(c, raw)
	case EvLockNodes:
		ctl.handleLockNodes(c, raw)
	case EvUnlockNodes:
		ctl.handleUnlockNodes(c, raw)
	case EvPingPosition:
		ctl.handlePingPosition(c, raw)
	case EvStartSimulation:
		ctl.handleStartSimulation(c)
	case EvEndSimulation:
		ctl.handleEndSimulation(c)
	default:
		ctl.logger.Warn().Str("event", event).Str("user_id", c.User().ID).Msg("Client sent unsupported event")
	}
}

// Disconnect runs the cleanup cascade when a handle closes. Zone occupancy,
// room memberships and presence broadcasts only cascade once the user's last
// handle is gone.
func (ctl *Controller) Disconnect(c *Client) {
	userID := c.User().ID

	// capture before Leave destroys the session record
	zoneID, inZone := ctl.sessions.ZoneOf(userID)
	rooms := ctl.sessions.Rooms(userID)

	if !ctl.sessions.Leave(c) {
		return
	}

	millis := ctl.millis()

	if inZone {
		ctl.sessions.UnregisterZone(userID, zoneID)
		ctl.sessions.Broadcast(zoneID, nil, EvLeaveZone, UserEventPayload{User: c.User(), Time: millis})

		if nodeID, ok := ctl.locks.UnassignStartpoint(zoneID, userID); ok {
			ctl.sessions.Broadcast(zoneID, nil, EvUnassignStartpoint, StartpointPayload{
				User:   c.User(),
				NodeID: nodeID,
				Time:   millis,
			})
		}

		if ctl.releaseLocksOnDisconnect {
			if freed := ctl.locks.ReleaseUser(zoneID, userID); len(freed) > 0 {
				ctl.sessions.Broadcast(zoneID, nil, EvUnlockNodes, NodeBatchPayload{
					User:  c.User(),
					Nodes: nodeRefs(freed),
					Time:  millis,
				})
			}
		}
	}

	for _, room := range rooms {
		ctl.sessions.Broadcast(room, nil, EvUserLeft, UserEventPayload{Room: room, User: c.User(), Time: millis})
	}
}

func (ctl *Controller) handleInitChat(c *Client, raw json.RawMessage) {
	var req InitChatRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		ctl.logger.Warn().Err(err).Msg("Client sent invalid init:chat payload")
		return
	}

	enabled := true
	if req.Value != nil {
		enabled = *req.Value
	}
	c.SetChatEnabled(enabled)
}

func (ctl *Controller) handleJoinChatroom(c *Client, raw json.RawMessage) {
	var req ChatroomRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.Room == "" {
		c.Send(EvJoinedChatroom, ChatroomAck{Success: false, Message: "Invalid room.", Time: ctl.millis()})
		return
	}

	ctl.joinChatroom(c, req.Room)
}

// joinChatroom performs the room join, the presence broadcast and the ack
// with member list and history. Shared by the explicit event and the implicit
// join on zone entry.
func (ctl *Controller) joinChatroom(c *Client, room string) {
	millis := ctl.millis()

	if !ctl.sessions.JoinRoom(c.User().ID, room) {
		c.Send(EvJoinedChatroom, ChatroomAck{
			Success: false,
			Message: "Already a member of this chatroom.",
			Room:    room,
			Time:    millis,
		})
		return
	}

	ctl.sessions.Broadcast(room, c, EvUserJoin, UserEventPayload{Room: room, User: c.User(), Time: millis})

	c.Send(EvJoinedChatroom, ChatroomAck{
		Success:  true,
		Room:     room,
		Users:    ctl.sessions.UsersInRoom(room),
		Messages: ctl.relay.GroupHistory(room),
		Time:     millis,
	})
}

func (ctl *Controller) handleLeaveChatroom(c *Client, raw json.RawMessage) {
	var req ChatroomRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.Room == "" {
		c.Send(EvLeftChatroom, ChatroomAck{Success: false, Message: "Invalid room.", Time: ctl.millis()})
		return
	}

	millis := ctl.millis()

	if !ctl.sessions.LeaveRoom(c.User().ID, req.Room) {
		c.Send(EvLeftChatroom, ChatroomAck{
			Success: false,
			Message: "Not a member of this chatroom.",
			Room:    req.Room,
			Time:    millis,
		})
		return
	}

	ctl.sessions.Broadcast(req.Room, c, EvUserLeft, UserEventPayload{Room: req.Room, User: c.User(), Time: millis})

	c.Send(EvLeftChatroom, ChatroomAck{Success: true, Room: req.Room, Time: millis})
}

func (ctl *Controller) handleSendGroupMessage(c *Client, raw json.RawMessage) {
	var req GroupMessageRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.To == "" {
		ctl.logger.Warn().Err(err).Msg("Client sent invalid group message payload")
		return
	}
	if len(req.Text) > MaxContentBytes {
		ctl.logger.Warn().Str("user_id", c.User().ID).Msg("Group message content too long, dropped")
		return
	}

	ctl.relay.SendGroup(c, req.To, req.Text, ctl.millis())
}

func (ctl *Controller) handleSendPrivateMessage(c *Client, raw json.RawMessage) {
	var req PrivateMessageRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.To == "" {
		ctl.logger.Warn().Err(err).Msg("Client sent invalid private message payload")
		return
	}
	if len(req.Text) > MaxContentBytes {
		ctl.logger.Warn().Str("user_id", c.User().ID).Msg("Private message content too long, dropped")
		return
	}

	ctl.relay.SendPrivate(c, req.To, req.Text, ctl.millis())
}

func (ctl *Controller) handleGetPrivateMessages(c *Client, raw json.RawMessage) {
	var req PrivateHistoryRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.ActiveUser.ID == "" {
		c.Send(EvGetPrivateMessages, PrivateHistoryAck{Success: false, Time: ctl.millis()})
		return
	}

	messages, err := ctl.relay.PrivateHistory(c.User().ID, req.ActiveUser.ID)
	if err != nil {
		ctl.logger.Error().Err(err).Str("user_id", c.User().ID).Msg("Failed to load private history.")
		c.Send(EvGetPrivateMessages, PrivateHistoryAck{Success: false, Time: ctl.millis()})
		return
	}
	if messages == nil {
		messages = []chat.Message{}
	}

	c.Send(EvGetPrivateMessages, PrivateHistoryAck{Success: true, Messages: messages, Time: ctl.millis()})
}

func (ctl *Controller) handleJoinZone(c *Client, raw json.RawMessage) {
	var req JoinZoneRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.ZoneID == "" {
		c.Send(EvJoinedZone, JoinZoneAck{Success: false, Message: "Invalid zone id.", Time: ctl.millis()})
		return
	}

	ctx, cancel := ctl.storeCtx()
	defer cancel()

	z, err := ctl.zones.GetZone(ctx, req.ZoneID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.Send(EvJoinedZone, JoinZoneAck{Success: false, Message: "Zone not found.", Time: ctl.millis()})
			return
		}
		ctl.logger.Error().Err(err).Str("zone_id", req.ZoneID).Msg("Failed to load zone.")
		c.Send(EvJoinedZone, JoinZoneAck{Success: false, Message: "Failed to load zone.", Time: ctl.millis()})
		return
	}

	if z.Private && !z.VerifySecret(req.Password) {
		c.Send(EvJoinedZone, JoinZoneAck{Success: false, Message: "Access denied.", Time: ctl.millis()})
		return
	}

	userID := c.User().ID

	// joining a new zone implicitly leaves the previous one; a re-join of the
	// current zone only refreshes the snapshot
	current, hasZone := ctl.sessions.ZoneOf(userID)
	rejoin := hasZone && current == req.ZoneID
	if hasZone && !rejoin {
		ctl.leaveZone(c, current)
	}

	millis := ctl.millis()

	ctl.sessions.RegisterZone(userID, req.ZoneID)
	if !rejoin {
		ctl.sessions.Broadcast(req.ZoneID, c, EvJoinZone, UserEventPayload{User: c.User(), Time: millis})
	}

	c.Send(EvJoinedZone, JoinZoneAck{
		Success: true,
		ZoneID:  z.ID,
		Data: &ZoneState{
			Users:               ctl.sessions.UsersInZone(req.ZoneID),
			Nodes:               z.Nodes,
			LockedNodes:         ctl.locks.ZoneLocks(z),
			AssignedStartpoints: ctl.locks.AssignedStartpoints(z),
		},
		Time: millis,
	})

	if req.AssignStartpoint {
		if nodeID, ok := ctl.locks.TryAssignStartpoint(z, userID); ok {
			ctl.sessions.Broadcast(req.ZoneID, c, EvAssignStartpoint, StartpointPayload{
				User:   c.User(),
				NodeID: nodeID,
				Time:   millis,
			})
			c.Send(EvAssignedStartpoint, StartpointAck{Success: true, NodeID: nodeID, Time: millis})
		}
	}

	// the zone doubles as its own chatroom
	if !rejoin {
		ctl.joinChatroom(c, req.ZoneID)
	}
}

func (ctl *Controller) handleLeaveZone(c *Client) {
	zoneID, ok := ctl.sessions.ZoneOf(c.User().ID)
	if !ok {
		c.Send(EvLeftZone, LeaveZoneAck{Success: false, Message: "No active zone.", Time: ctl.millis()})
		return
	}

	ctl.leaveZone(c, zoneID)
	c.Send(EvLeftZone, LeaveZoneAck{Success: true, Time: ctl.millis()})
}

// leaveZone unwinds zone occupancy: the chat room is left silently (no
// room-leave broadcast, only the zone-leave itself), peers are told, and any
// held startpoint is freed and announced separately.
func (ctl *Controller) leaveZone(c *Client, zoneID string) {
	userID := c.User().ID
	millis := ctl.millis()

	ctl.sessions.UnregisterZone(userID, zoneID)
	ctl.sessions.LeaveRoom(userID, zoneID)
	ctl.sessions.Broadcast(zoneID, c, EvLeaveZone, UserEventPayload{User: c.User(), Time: millis})

	if nodeID, ok := ctl.locks.UnassignStartpoint(zoneID, userID); ok {
		ctl.sessions.Broadcast(zoneID, c, EvUnassignStartpoint, StartpointPayload{
			User:   c.User(),
			NodeID: nodeID,
			Time:   millis,
		})
	}
}

func (ctl *Controller) handleEditNodes(c *Client, raw json.RawMessage) {
	var req EditNodesRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		ctl.logger.Warn().Err(err).Msg("Client sent invalid edit:nodes payload")
		return
	}

	zoneID, ok := ctl.sessions.ZoneOf(c.User().ID)
	if !ok {
		return
	}

	ctx, cancel := ctl.storeCtx()
	defer cancel()

	// fresh snapshot, never the one cached from join
	z, err := ctl.zones.GetZone(ctx, zoneID)
	if err != nil {
		ctl.logger.Error().Err(err).Str("zone_id", zoneID).Msg("Failed to load zone for edit.")
		c.Send(EvEditedNodes, EditedNodesAck{
			Success: false,
			Message: "Failed to edit nodes.",
			Error:   err.Error(),
			Input:   req.Nodes,
			Time:    ctl.millis(),
		})
		return
	}

	userID := c.User().ID
	now := ctl.now()
	edited := []zone.MinifiedNode{}
	var persistErr error

	for _, patch := range req.Nodes {
		n := z.NodeByID(patch.ID)
		if n == nil || !ctl.locks.HasAccess(zoneID, patch.ID, userID) {
			continue
		}

		if patch.Position != nil {
			patch.Position.Apply(&n.Position)
		}
		if patch.Scale != nil {
			patch.Scale.Apply(&n.Scale)
		}
		if patch.Angle != nil {
			n.Angle = *patch.Angle
		}
		n.UpdatedBy = userID
		n.UpdatedAt = now

		if err := ctl.zones.SaveNode(ctx, zoneID, n); err != nil {
			persistErr = err
			break
		}
		edited = append(edited, n.Minify())
	}

	millis := ctl.millis()

	if persistErr != nil {
		ctl.logger.Error().Err(persistErr).Str("zone_id", zoneID).Msg("Failed to persist node edit.")
		c.Send(EvEditedNodes, EditedNodesAck{
			Success: false,
			Message: "Failed to edit nodes.",
			Error:   persistErr.Error(),
			Input:   req.Nodes,
			Time:    millis,
		})
		return
	}

	if err := ctl.zones.TouchZone(ctx, zoneID, userID); err != nil {
		ctl.logger.Error().Err(err).Str("zone_id", zoneID).Msg("Failed to stamp zone audit fields.")
		c.Send(EvEditedNodes, EditedNodesAck{
			Success: false,
			Message: "Failed to edit nodes.",
			Error:   err.Error(),
			Input:   req.Nodes,
			Time:    millis,
		})
		return
	}

	ctl.sessions.Broadcast(zoneID, c, EvEditNodes, EditedNodesPayload{User: c.User(), Nodes: edited, Time: millis})
	c.Send(EvEditedNodes, EditedNodesAck{Success: true, Nodes: edited, Time: millis})
}

func (ctl *Controller) handleCreateNodes(c *Client, raw json.RawMessage) {
	var req CreateNodesRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		ctl.logger.Warn().Err(err).Msg("Client sent invalid create:nodes payload")
		return
	}

	zoneID, ok := ctl.sessions.ZoneOf(c.User().ID)
	if !ok {
		return
	}

	for _, in := range req.Nodes {
		if !zone.ValidNodeType(in.Type) {
			c.Send(EvCreatedNodes, CreatedNodesAck{
				Success: false,
				Message: "Invalid node type.",
				Input:   req.Nodes,
				Time:    ctl.millis(),
			})
			return
		}
	}

	ctx, cancel := ctl.storeCtx()
	defer cancel()

	userID := c.User().ID
	now := ctl.now()

	created := []zone.CreatedNode{}
	broadcast := []zone.CreatedNode{}

	for _, in := range req.Nodes {
		n := &zone.Node{
			ID:        uuid.NewString(),
			Type:      in.Type,
			Scale:     zone.Vector3{X: 1, Y: 1, Z: 1},
			Parent:    in.Parent,
			CreatedBy: userID,
			UpdatedBy: userID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if in.Position != nil {
			n.Position = *in.Position
		}
		if in.Angle != nil {
			n.Angle = *in.Angle
		}
		if in.Scale != nil {
			n.Scale = *in.Scale
		}

		if err := ctl.zones.CreateNode(ctx, zoneID, n); err != nil {
			ctl.logger.Error().Err(err).Str("zone_id", zoneID).Msg("Failed to persist new node.")
			c.Send(EvCreatedNodes, CreatedNodesAck{
				Success: false,
				Message: "Failed to create nodes.",
				Error:   err.Error(),
				Input:   req.Nodes,
				Time:    ctl.millis(),
			})
			return
		}

		soft := n.MinifySoft()
		broadcast = append(broadcast, soft)

		// the local id is reconciliation data for the caller only
		soft.LocalID = in.LocalID
		created = append(created, soft)
	}

	millis := ctl.millis()

	if err := ctl.zones.TouchZone(ctx, zoneID, userID); err != nil {
		ctl.logger.Error().Err(err).Str("zone_id", zoneID).Msg("Failed to stamp zone audit fields.")
		c.Send(EvCreatedNodes, CreatedNodesAck{
			Success: false,
			Message: "Failed to create nodes.",
			Error:   err.Error(),
			Input:   req.Nodes,
			Time:    millis,
		})
		return
	}

	ctl.sessions.Broadcast(zoneID, c, EvCreateNodes, CreatedNodesPayload{User: c.User(), Nodes: broadcast, Time: millis})
	c.Send(EvCreatedNodes, CreatedNodesAck{Success: true, Nodes: created, Time: millis})
}

func (ctl *Controller) handleDeleteNodes(c *Client, raw json.RawMessage) {
	var req NodeBatchRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		ctl.logger.Warn().Err(err).Msg("Client sent invalid delete:nodes payload")
		return
	}

	zoneID, ok := ctl.sessions.ZoneOf(c.User().ID)
	if !ok {
		return
	}

	ctx, cancel := ctl.storeCtx()
	defer cancel()

	z, err := ctl.zones.GetZone(ctx, zoneID)
	if err != nil {
		ctl.logger.Error().Err(err).Str("zone_id", zoneID).Msg("Failed to load zone for delete.")
		c.Send(EvDeletedNodes, NodeBatchAck{
			Success: false,
			Message: "Failed to delete nodes.",
			Error:   err.Error(),
			Nodes:   []NodeRef{},
			Time:    ctl.millis(),
		})
		return
	}

	userID := c.User().ID

	deletable := []string{}
	for _, ref := range req.Nodes {
		if z.NodeByID(ref.ID) == nil || !ctl.locks.HasAccess(zoneID, ref.ID, userID) {
			continue
		}
		deletable = append(deletable, ref.ID)
	}

	millis := ctl.millis()

	if len(deletable) > 0 {
		if err := ctl.zones.DeleteNodes(ctx, zoneID, deletable); err != nil {
			ctl.logger.Error().Err(err).Str("zone_id", zoneID).Msg("Failed to delete nodes.")
			c.Send(EvDeletedNodes, NodeBatchAck{
				Success: false,
				Message: "Failed to delete nodes.",
				Error:   err.Error(),
				Nodes:   []NodeRef{},
				Time:    millis,
			})
			return
		}
		if err := ctl.zones.TouchZone(ctx, zoneID, userID); err != nil {
			ctl.logger.Error().Err(err).Str("zone_id", zoneID).Msg("Failed to stamp zone audit fields.")
			c.Send(EvDeletedNodes, NodeBatchAck{
				Success: false,
				Message: "Failed to delete nodes.",
				Error:   err.Error(),
				Nodes:   []NodeRef{},
				Time:    millis,
			})
			return
		}
	}

	refs := nodeRefs(deletable)
	ctl.sessions.Broadcast(zoneID, c, EvDeleteNodes, NodeBatchPayload{User: c.User(), Nodes: refs, Time: millis})
	c.Send(EvDeletedNodes, NodeBatchAck{Success: true, Nodes: refs, Time: millis})
}

func (ctl *Controller) handleLockNodes(c *Client, raw json.RawMessage) {
	var req NodeBatchRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		ctl.logger.Warn().Err(err).Msg("Client sent invalid lock:nodes payload")
		return
	}

	zoneID, ok := ctl.sessions.ZoneOf(c.User().ID)
	if !ok {
		return
	}

	locked := ctl.locks.Lock(zoneID, refIDs(req.Nodes), c.User().ID)
	millis := ctl.millis()

	refs := nodeRefs(locked)
	ctl.sessions.Broadcast(zoneID, c, EvLockNodes, NodeBatchPayload{User: c.User(), Nodes: refs, Time: millis})
	c.Send(EvLockedNodes, NodeBatchAck{Success: true, Nodes: refs, Time: millis})
}

func (ctl *Controller) handleUnlockNodes(c *Client, raw json.RawMessage) {
	var req NodeBatchRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		ctl.logger.Warn().Err(err).Msg("Client sent invalid unlock:nodes payload")
		return
	}

	zoneID, ok := ctl.sessions.ZoneOf(c.User().ID)
	if !ok {
		return
	}

	unlocked := ctl.locks.Unlock(zoneID, refIDs(req.Nodes), c.User().ID)
	millis := ctl.millis()

	refs := nodeRefs(unlocked)
	ctl.sessions.Broadcast(zoneID, c, EvUnlockNodes, NodeBatchPayload{User: c.User(), Nodes: refs, Time: millis})
	c.Send(EvUnlockedNodes, NodeBatchAck{Success: true, Nodes: refs, Time: millis})
}

func (ctl *Controller) handlePingPosition(c *Client, raw json.RawMessage) {
	var req PingPositionRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		ctl.logger.Warn().Err(err).Msg("Client sent invalid ping:position payload")
		return
	}

	zoneID, ok := ctl.sessions.ZoneOf(c.User().ID)
	if !ok {
		return
	}

	pos := zone.Vector3{
		X: coerceFloat(req.Position["x"]),
		Y: coerceFloat(req.Position["y"]),
		Z: coerceFloat(req.Position["z"]),
	}

	// not delivered back to the sender, no ack
	ctl.sessions.Broadcast(zoneID, c, EvPingPosition, PingPositionPayload{
		User:     c.User(),
		Position: pos,
		Time:     ctl.millis(),
	})
}

func (ctl *Controller) handleStartSimulation(c *Client) {
	zoneID, ok := ctl.sessions.ZoneOf(c.User().ID)
	if !ok {
		return
	}

	c.simulationStart = ctl.now()
	ctl.sessions.Broadcast(zoneID, c, EvStartSimulation, SimulationPayload{User: c.User(), Time: ctl.millis()})
}

func (ctl *Controller) handleEndSimulation(c *Client) {
	zoneID, ok := ctl.sessions.ZoneOf(c.User().ID)
	if !ok {
		return
	}

	ctl.sessions.Broadcast(zoneID, c, EvEndSimulation, SimulationPayload{User: c.User(), Time: ctl.millis()})

	if c.simulationStart.IsZero() {
		return
	}
	elapsed := ctl.now().Sub(c.simulationStart).Seconds()
	c.simulationStart = time.Time{}

	ctx, cancel := ctl.storeCtx()
	defer cancel()

	// two independent increments, partial application on failure is logged only
	if err := ctl.zones.AddZoneStats(ctx, zoneID, 1, elapsed); err != nil {
		ctl.logger.Error().Err(err).Str("zone_id", zoneID).Msg("Failed to increment zone stats.")
	}
	if err := ctl.users.AddUserStats(ctx, c.User().ID, 1, elapsed); err != nil {
		ctl.logger.Error().Err(err).Str("user_id", c.User().ID).Msg("Failed to increment user stats.")
	}
}

// nodeRefs wraps raw node ids as wire references.
func nodeRefs(ids []string) []NodeRef {
	refs := make([]NodeRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, NodeRef{ID: id})
	}
	return refs
}

// refIDs unwraps wire references to raw node ids.
func refIDs(refs []NodeRef) []string {
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.ID)
	}
	return ids
}

// coerceFloat reads a loose JSON value as a float, defaulting non-numeric
// input to 0.0.
func coerceFloat(v any) float64 {
	f, ok := v.(float64)
	if !ok {
		return 0
	}
	return f
}
