/*
Package collab implements the real-time collaboration core: the session
registry tracking connected users, the lock registry arbitrating concurrent
node edits, the message relay for durable chat, and the protocol controller
driving zone editing sessions over websocket connections.

This file defines the wire catalogue: every event name exchanged with clients
and the explicit request/response schemas for their payloads. Inbound events
are acknowledged to the caller under the past-tense event name; a subset is
additionally broadcast to room peers under the bare verb.
*/
package collab

import (
	"github.com/ArchSirius/log3900-server/internal/app/chat"
	"github.com/ArchSirius/log3900-server/internal/app/user"
	"github.com/ArchSirius/log3900-server/internal/app/zone"
)

// Server-to-caller and broadcast event names.
const (
	EvInit               = "init"
	EvInitChat           = "init:chat"
	EvUserJoin           = "user:join"
	EvUserLeft           = "user:left"
	EvJoinChatroom       = "join:chatroom"
	EvJoinedChatroom     = "joined:chatroom"
	EvLeaveChatroom      = "leave:chatroom"
	EvLeftChatroom       = "left:chatroom"
	EvSendGroupMessage   = "send:group:message"
	EvSendPrivateMessage = "send:private:message"
	EvGetPrivateMessages = "get:private:messages"
	EvJoinZone           = "join:zone"
	EvJoinedZone         = "joined:zone"
	EvLeaveZone          = "leave:zone"
	EvLeftZone           = "left:zone"
	EvEditNodes          = "edit:nodes"
	EvEditedNodes        = "edited:nodes"
	EvCreateNodes        = "create:nodes"
	EvCreatedNodes       = "created:nodes"
	EvDeleteNodes        = "delete:nodes"
	EvDeletedNodes       = "deleted:nodes"
	EvLockNodes          = "lock:nodes"
	EvLockedNodes        = "locked:nodes"
	EvUnlockNodes        = "unlock:nodes"
	EvUnlockedNodes      = "unlocked:nodes"
	EvAssignStartpoint   = "assign:startpoint"
	EvAssignedStartpoint = "assigned:startpoint"
	EvUnassignStartpoint = "unassign:startpoint"
	EvPingPosition       = "ping:position"
	EvStartSimulation    = "start:simulation"
	EvEndSimulation      = "end:simulation"
)

// NodeRef identifies a node inside a batch request.
type NodeRef struct {
	ID string `json:"_id"`
}

// UserRef identifies a user inside a request payload.
type UserRef struct {
	ID string `json:"_id"`
}

// LockEntry pairs a node with the user holding its lock or startpoint.
type LockEntry struct {
	NodeID string `json:"nodeId"`
	UserID string `json:"userId"`
}

// Inbound request payloads.

// InitChatRequest toggles chat delivery for the calling connection.
// A missing value defaults to enabled.
type InitChatRequest struct {
	Value *bool `json:"value,omitempty"`
}

// ChatroomRequest names the room to join or leave.
type ChatroomRequest struct {
	Room string `json:"room"`
}

// GroupMessageRequest carries a group chat message; To names the room.
type GroupMessageRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

// PrivateMessageRequest carries a private message; To is the recipient user id.
type PrivateMessageRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

// PrivateHistoryRequest asks for the conversation with another user.
type PrivateHistoryRequest struct {
	ActiveUser UserRef `json:"activeUser"`
}

// JoinZoneRequest opens a collaborative editing session on a zone.
type JoinZoneRequest struct {
	ZoneID           string `json:"zoneId"`
	Password         string `json:"password,omitempty"`
	AssignStartpoint bool   `json:"assignStartpoint,omitempty"`
}

// NodePatch is a partial node edit; only supplied transform fields overwrite.
type NodePatch struct {
	ID       string            `json:"_id"`
	Position *zone.VectorPatch `json:"position,omitempty"`
	Angle    *float64          `json:"angle,omitempty"`
	Scale    *zone.VectorPatch `json:"scale,omitempty"`
}

// EditNodesRequest carries a batch of node edits.
type EditNodesRequest struct {
	Nodes []NodePatch `json:"nodes"`
}

// NewNode describes a node to create. LocalID is the caller's optimistic
// client-side id, echoed back on the ack for reconciliation.
type NewNode struct {
	Type     string        `json:"type"`
	Position *zone.Vector3 `json:"position,omitempty"`
	Angle    *float64      `json:"angle,omitempty"`
	Scale    *zone.Vector3 `json:"scale,omitempty"`
	Parent   string        `json:"parent,omitempty"`
	LocalID  string        `json:"localId,omitempty"`
}

// CreateNodesRequest carries a batch of node creations.
type CreateNodesRequest struct {
	Nodes []NewNode `json:"nodes"`
}

// NodeBatchRequest carries a batch of node references (delete/lock/unlock).
type NodeBatchRequest struct {
	Nodes []NodeRef `json:"nodes"`
}

// PingPositionRequest carries a raw cursor position. Components are held as
// loose values and coerced to floats: anything non-numeric becomes 0.0.
type PingPositionRequest struct {
	Position map[string]any `json:"position"`
}

// Outbound payloads.

// InitPayload is pushed to a connection once its user is resolved.
type InitPayload struct {
	User user.Ref `json:"user"`
	Time int64    `json:"time"`
}

// UserEventPayload announces a user presence change to a room.
type UserEventPayload struct {
	Room string   `json:"room,omitempty"`
	User user.Ref `json:"user"`
	Time int64    `json:"time"`
}

// ChatroomAck acknowledges a chatroom join or leave.
type ChatroomAck struct {
	Success  bool           `json:"success"`
	Message  string         `json:"message,omitempty"`
	Room     string         `json:"room"`
	Users    []user.Ref     `json:"users,omitempty"`
	Messages []chat.Message `json:"messages,omitempty"`
	Time     int64          `json:"time"`
}

// GroupMessagePayload is a group message delivered to a room or echoed to the
// sender.
type GroupMessagePayload struct {
	From user.Ref `json:"from"`
	Room string   `json:"room"`
	Text string   `json:"text"`
	Time int64    `json:"time"`
}

// PrivateMessagePayload is a private message delivered to a recipient's
// handles or echoed to the sender.
type PrivateMessagePayload struct {
	From user.Ref `json:"from"`
	To   user.Ref `json:"to"`
	Text string   `json:"text"`
	Time int64    `json:"time"`
}

// PrivateHistoryAck returns a private conversation's archived messages.
type PrivateHistoryAck struct {
	Success  bool           `json:"success"`
	Messages []chat.Message `json:"messages"`
	Time     int64          `json:"time"`
}

// ZoneState is the zone snapshot handed to a joining occupant.
type ZoneState struct {
	Users               []user.Ref   `json:"users"`
	Nodes               []*zone.Node `json:"nodes"`
	LockedNodes         []LockEntry  `json:"lockedNodes"`
	AssignedStartpoints []LockEntry  `json:"assignedStartpoints"`
}

// JoinZoneAck acknowledges a zone join.
type JoinZoneAck struct {
	Success bool       `json:"success"`
	Message string     `json:"message,omitempty"`
	ZoneID  string     `json:"zoneId,omitempty"`
	Data    *ZoneState `json:"data,omitempty"`
	Time    int64      `json:"time"`
}

// LeaveZoneAck acknowledges a zone leave.
type LeaveZoneAck struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Time    int64  `json:"time"`
}

// StartpointPayload announces a startpoint assignment change to a room.
type StartpointPayload struct {
	User   user.Ref `json:"user"`
	NodeID string   `json:"nodeId"`
	Time   int64    `json:"time"`
}

// StartpointAck acknowledges a startpoint assignment to the assignee.
type StartpointAck struct {
	Success bool   `json:"success"`
	NodeID  string `json:"nodeId"`
	Time    int64  `json:"time"`
}

// EditedNodesPayload broadcasts successfully edited nodes to a room.
type EditedNodesPayload struct {
	User  user.Ref            `json:"user"`
	Nodes []zone.MinifiedNode `json:"nodes"`
	Time  int64               `json:"time"`
}

// EditedNodesAck acknowledges a node edit batch; on failure Nodes carries the
// raw input back to the caller together with the error detail.
type EditedNodesAck struct {
	Success bool                `json:"success"`
	Message string              `json:"message,omitempty"`
	Error   string              `json:"error,omitempty"`
	Nodes   []zone.MinifiedNode `json:"nodes,omitempty"`
	Input   []NodePatch         `json:"input,omitempty"`
	Time    int64               `json:"time"`
}

// CreatedNodesPayload broadcasts created nodes to a room.
type CreatedNodesPayload struct {
	User  user.Ref           `json:"user"`
	Nodes []zone.CreatedNode `json:"nodes"`
	Time  int64              `json:"time"`
}

// CreatedNodesAck acknowledges a node creation batch; on failure Input carries
// the raw request back to the caller.
type CreatedNodesAck struct {
	Success bool               `json:"success"`
	Message string             `json:"message,omitempty"`
	Error   string             `json:"error,omitempty"`
	Nodes   []zone.CreatedNode `json:"nodes,omitempty"`
	Input   []NewNode          `json:"input,omitempty"`
	Time    int64              `json:"time"`
}

// NodeBatchPayload broadcasts a subset of node references to a room
// (delete/lock/unlock results).
type NodeBatchPayload struct {
	User  user.Ref  `json:"user"`
	Nodes []NodeRef `json:"nodes"`
	Time  int64     `json:"time"`
}

// NodeBatchAck acknowledges a delete/lock/unlock batch with the successful
// subset; callers diff against their request to detect skipped nodes.
type NodeBatchAck struct {
	Success bool      `json:"success"`
	Message string    `json:"message,omitempty"`
	Error   string    `json:"error,omitempty"`
	Nodes   []NodeRef `json:"nodes"`
	Time    int64     `json:"time"`
}

// PingPositionPayload broadcasts a coerced cursor position to room peers.
type PingPositionPayload struct {
	User     user.Ref     `json:"user"`
	Position zone.Vector3 `json:"position"`
	Time     int64        `json:"time"`
}

// SimulationPayload announces a simulation start or end to a room.
type SimulationPayload struct {
	User user.Ref `json:"user"`
	Time int64    `json:"time"`
}
