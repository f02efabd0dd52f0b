/*
This file defines the MessageRelay, the live chat delivery path. Group
messages fan out to room members, private messages go to the recipient's
chat-enabled handles or to the durable pending queue when none receive them.
Archival runs on the delivery path but never blocks it: a store failure is
logged and the live copy still goes out.
*/
package collab

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ArchSirius/log3900-server/internal/app/chat"
	"github.com/ArchSirius/log3900-server/internal/app/user"
	"github.com/ArchSirius/log3900-server/internal/pkg/logx"
)

// historyLimit caps the archived messages returned with a chatroom join or a
// private history request.
const historyLimit = 100

// MessageRelay delivers chat messages to connected handles and archives them.
type MessageRelay struct {
	sessions *SessionRegistry
	store    MessageStore
	logger   zerolog.Logger
}

// NewMessageRelay constructs a MessageRelay.
func NewMessageRelay(sessions *SessionRegistry, store MessageStore) *MessageRelay {
	return &MessageRelay{
		sessions: sessions,
		store:    store,
		logger:   logx.Logger().With().Str("component", "MessageRelay").Logger(),
	}
}

// SendGroup delivers a group message to every other member of the room,
// then archives it under the room's channel. The sending handle is excluded;
// the sender's other handles still receive the copy.
func (r *MessageRelay) SendGroup(sender *Client, room, text string, timeMillis int64) {
	from := sender.User()
	payload := GroupMessagePayload{
		From: from,
		Room: room,
		Text: text,
		Time: timeMillis,
	}
	r.sessions.Broadcast(room, sender, EvSendGroupMessage, payload)

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	channelID, err := r.store.EnsureChannel(ctx, room, from.ID)
	if err != nil {
		r.logger.Error().Err(err).Str("room", room).Msg("Failed to resolve channel for group message.")
		return
	}
	if _, err := r.store.ArchiveMessage(ctx, channelID, from.ID, text); err != nil {
		r.logger.Error().Err(err).Str("room", room).Msg("Failed to archive group message.")
	}
}

// SendPrivate delivers a private message to the recipient's chat-enabled
// handles and echoes it to the sender's other handles. The message is always
// archived; when no live handle received it, it is queued for offline
// delivery instead.
func (r *MessageRelay) SendPrivate(sender *Client, to, text string, timeMillis int64) {
	recipient, connected := r.sessions.User(to)
	if !connected {
		recipient = user.Ref{ID: to}
	}

	payload := PrivateMessagePayload{
		From: sender.User(),
		To:   recipient,
		Text: text,
		Time: timeMillis,
	}

	delivered := false
	for _, c := range r.sessions.ChatClientsOf(to) {
		c.Send(EvSendPrivateMessage, payload)
		delivered = true
	}
	for _, c := range r.sessions.ChatClientsOf(sender.User().ID) {
		if c != sender {
			c.Send(EvSendPrivateMessage, payload)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	channelID, err := r.store.EnsureRelationChannel(ctx, sender.User().ID, to)
	if err != nil {
		r.logger.Error().Err(err).Str("recipient_id", to).Msg("Failed to resolve relation channel.")
		return
	}
	msg, err := r.store.ArchiveMessage(ctx, channelID, sender.User().ID, text)
	if err != nil {
		r.logger.Error().Err(err).Str("recipient_id", to).Msg("Failed to archive private message.")
		return
	}

	if !delivered {
		if err := r.store.PendMessage(ctx, to, msg.ID); err != nil {
			r.logger.Error().Err(err).Str("recipient_id", to).Msg("Failed to queue pending message.")
		}
	}
}

// ReplayPending drains the user's offline queue and replays each message to
// the given handle as a private message event. The queue is consumed;
// replayed messages are not delivered twice.
func (r *MessageRelay) ReplayPending(c *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	pending, err := r.store.DrainPending(ctx, c.User().ID)
	if err != nil {
		r.logger.Error().Err(err).Str("user_id", c.User().ID).Msg("Failed to drain pending messages.")
		return
	}

	for _, msg := range pending {
		c.Send(EvSendPrivateMessage, PrivateMessagePayload{
			From: user.Ref{ID: msg.CreatedBy.ID, Username: msg.CreatedBy.Username},
			To:   c.User(),
			Text: msg.Text,
			Time: msg.CreatedAt.UnixMilli(),
		})
	}
}

// GroupHistory returns the room channel's recent messages, oldest-first.
// A room that never saw a message yields an empty history.
func (r *MessageRelay) GroupHistory(room string) []chat.Message {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	messages, err := r.store.ChannelHistory(ctx, room, historyLimit)
	if err != nil {
		r.logger.Error().Err(err).Str("room", room).Msg("Failed to load channel history.")
		return nil
	}
	return messages
}

// PrivateHistory returns the archived conversation between the two users,
// oldest-first.
func (r *MessageRelay) PrivateHistory(userA, userB string) ([]chat.Message, error) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	return r.store.RelationHistory(ctx, userA, userB, historyLimit)
}
