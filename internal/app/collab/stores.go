package collab

import (
	"context"
	"time"

	"github.com/ArchSirius/log3900-server/internal/app/chat"
	"github.com/ArchSirius/log3900-server/internal/app/user"
	"github.com/ArchSirius/log3900-server/internal/app/zone"
)

// storeTimeout bounds every persistence call issued from the collaboration
// layer. A store that cannot answer in time surfaces as a generic failure ack,
// never as a hung connection.
const storeTimeout = 5 * time.Second

// ZoneStore is the document-store collaborator for zones and their nodes.
// Lookups return db.ErrNotFound (wrapped) when the zone does not exist.
type ZoneStore interface {
	// GetZone loads a zone with its child nodes populated in document order.
	GetZone(ctx context.Context, id string) (*zone.Zone, error)

	// CreateNode appends a new node to the zone.
	CreateNode(ctx context.Context, zoneID string, n *zone.Node) error

	// SaveNode persists a node transform mutation.
	SaveNode(ctx context.Context, zoneID string, n *zone.Node) error

	// DeleteNodes removes the given nodes from the zone.
	DeleteNodes(ctx context.Context, zoneID string, nodeIDs []string) error

	// TouchZone stamps the zone aggregate's updatedBy/updatedAt audit fields.
	TouchZone(ctx context.Context, zoneID, userID string) error

	// AddZoneStats increments the zone's simulation counters.
	AddZoneStats(ctx context.Context, zoneID string, games int, seconds float64) error
}

// UserStore is the user-store collaborator consumed by the live layer.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*user.User, error)

	// AddUserStats increments the user's simulation counters.
	AddUserStats(ctx context.Context, userID string, games int, seconds float64) error
}

// MessageStore is the durable message archive behind the relay.
type MessageStore interface {
	// EnsureChannel finds or creates the named group channel, adding creatorID
	// to the allowed-users list on creation. Returns the channel id.
	EnsureChannel(ctx context.Context, name string, creatorID string) (string, error)

	// EnsureRelationChannel finds or creates the private channel backing the
	// chat relation for the unordered pair (userA, userB). The lookup is
	// symmetric: both argument orders resolve to the same channel.
	EnsureRelationChannel(ctx context.Context, userA, userB string) (string, error)

	// ArchiveMessage durably stores a message and returns it with its id and
	// resolved author.
	ArchiveMessage(ctx context.Context, channelID, authorID, text string) (*chat.Message, error)

	// PendMessage queues an archived message for offline delivery.
	PendMessage(ctx context.Context, recipientID, messageID string) error

	// DrainPending returns the recipient's pending messages oldest-first and
	// deletes them. Consume-once: a second call returns nothing.
	DrainPending(ctx context.Context, recipientID string) ([]chat.Message, error)

	// ChannelHistory returns the named channel's latest messages oldest-first,
	// or nothing if the channel does not exist.
	ChannelHistory(ctx context.Context, name string, limit int) ([]chat.Message, error)

	// RelationHistory returns the private conversation's latest messages for
	// the unordered pair, oldest-first.
	RelationHistory(ctx context.Context, userA, userB string, limit int) ([]chat.Message, error)
}
