/*
Package chat contains the durable chat records: channels (named group scopes or
anonymous private-pair scopes), archived messages and the pending-message queue
used for offline delivery.
*/
package chat

import "time"

// Channel is a message scope. Group channels are named after their room;
// private channels back a chat relation between exactly two users.
type Channel struct {
	ID      string   `json:"_id"`
	Name    string   `json:"name"`
	Private bool     `json:"private"`
	Users   []string `json:"users,omitempty"`
}

// Author is the resolved identity of a message's creator.
type Author struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
}

// Message is an archived chat message, immutable once written.
type Message struct {
	ID        string    `json:"_id"`
	ChannelID string    `json:"channel"`
	Text      string    `json:"text"`
	CreatedBy Author    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}
